package engine

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"pharmatlas/internal/association"
	"pharmatlas/internal/gene"
	"pharmatlas/internal/metrics"
)

// GeneDetail is one resolved gene in an aggregation.
type GeneDetail struct {
	Gene             string `json:"gene"`
	Identifier       string `json:"entrez_id"`
	AssociationCount int    `json:"disease_count"`
}

// RankedAssociation is an association name and the number of analyzed genes
// it appeared for.
type RankedAssociation struct {
	Name      string `json:"disease"`
	GeneCount int    `json:"gene_count"`
}

// Report is the result of a cross-gene aggregation.
type Report struct {
	GenesAnalyzed      []string            `json:"genes_analyzed"`
	Results            []GeneDetail        `json:"results"`
	CommonAssociations []RankedAssociation `json:"common_diseases"`
}

type geneOutcome struct {
	lookup  gene.Lookup
	records []association.Record
}

// Aggregate analyzes at most limit symbols, taken from the front of the list.
// Repeats within those are analyzed once.
// Each resolved gene is queried for diseases; genes that do not resolve are
// left out of the details and the tally. Details keep input order whatever
// order the lookups finish in.
func (e *Engine) Aggregate(ctx context.Context, symbols []string, limit int) *Report {
	metrics.RecordOperation("aggregate")

	if limit < 0 {
		limit = 0
	}
	if len(symbols) > limit {
		symbols = symbols[:limit]
	}
	symbols = dedupe(symbols)

	logger := e.logger.With(zap.String("request_id", uuid.NewString()))
	logger.Info("aggregating genes", zap.Strings("genes", symbols))

	outcomes := make([]geneOutcome, len(symbols))
	var g errgroup.Group
	g.SetLimit(e.opts.MaxConcurrency)
	for i, symbol := range symbols {
		g.Go(func() error {
			lookup := e.resolver.Resolve(ctx, symbol)
			outcomes[i].lookup = lookup
			if !lookup.Found() {
				return nil
			}
			raw := e.querier.Query(ctx, lookup.Identifier, DiseaseTarget.Category)
			records, errMsg := association.Split(association.Extract(raw, DiseaseTarget.Label))
			if errMsg != "" {
				logger.Warn("disease query failed",
					zap.String("gene", symbol),
					zap.String("error", errMsg))
			}
			outcomes[i].records = records
			return nil
		})
	}
	_ = g.Wait()

	report := &Report{
		GenesAnalyzed:      append([]string{}, symbols...),
		Results:            []GeneDetail{},
		CommonAssociations: []RankedAssociation{},
	}
	t := newTally()
	skipped := 0
	for _, o := range outcomes {
		if !o.lookup.Found() {
			skipped++
			logger.Debug("gene excluded from aggregation",
				zap.String("gene", o.lookup.Symbol),
				zap.String("status", string(o.lookup.Status)))
			continue
		}
		report.Results = append(report.Results, GeneDetail{
			Gene:             o.lookup.Symbol,
			Identifier:       o.lookup.Identifier,
			AssociationCount: len(o.records),
		})
		names := make([]string, 0, len(o.records))
		for _, r := range o.records {
			names = append(names, r.Name)
		}
		t.addGene(names)
	}
	metrics.RecordSkippedGenes(skipped)

	report.CommonAssociations = t.ranked(e.opts.TopK)
	return report
}

// dedupe keeps the first occurrence of each symbol so a repeated gene is
// analyzed and counted once.
func dedupe(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// tally counts, per association name, how many genes surfaced it. It remembers
// insertion order so equal counts rank first-inserted first.
type tally struct {
	counts map[string]int
	order  []string
}

func newTally() *tally {
	return &tally{counts: make(map[string]int)}
}

// addGene adds one to every distinct name in the list.
func (t *tally) addGene(names []string) {
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		if _, known := t.counts[name]; !known {
			t.order = append(t.order, name)
		}
		t.counts[name]++
	}
}

// ranked returns up to k entries by descending count, ties in insertion order.
func (t *tally) ranked(k int) []RankedAssociation {
	ranked := make([]RankedAssociation, 0, len(t.order))
	for _, name := range t.order {
		ranked = append(ranked, RankedAssociation{Name: name, GeneCount: t.counts[name]})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].GeneCount > ranked[j].GeneCount
	})
	if len(ranked) > k {
		ranked = ranked[:k]
	}
	return ranked
}
