package engine

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"pharmatlas/internal/association"
	"pharmatlas/internal/gene"
	"pharmatlas/internal/kg"
	"pharmatlas/internal/metrics"
)

type Counts struct {
	DiseaseCount int `json:"disease_count"`
	DrugCount    int `json:"drug_count"`
}

// Summary lists diseases and drugs related to one gene. Counts are taken
// before the lists are capped.
type Summary struct {
	Gene        string               `json:"gene"`
	Identifier  string               `json:"entrez_id"`
	Counts      Counts               `json:"summary"`
	TopDiseases []association.Record `json:"top_diseases"`
	TopDrugs    []association.Record `json:"top_drugs"`
	// QueryErrors maps a type label to the failure of its query.
	QueryErrors map[string]string `json:"query_errors,omitempty"`
}

// DiseaseReport lists every disease related to one gene.
type DiseaseReport struct {
	Gene                string               `json:"gene"`
	Identifier          string               `json:"entrez_id"`
	DiseaseAssociations []association.Record `json:"disease_associations"`
	TotalDiseasesFound  int                  `json:"total_diseases_found"`
	QueryError          string               `json:"query_error,omitempty"`
}

// LookupGene resolves a single symbol.
func (e *Engine) LookupGene(ctx context.Context, symbol string) gene.Lookup {
	metrics.RecordOperation("lookup")
	return e.resolver.Resolve(ctx, symbol)
}

// FindInteractions resolves the symbol and, if found, queries the disease and
// drug categories concurrently. A failed category query leaves that list empty
// and is noted in QueryErrors. An unresolved symbol returns *NotFoundError and
// issues no graph queries.
func (e *Engine) FindInteractions(ctx context.Context, symbol string) (*Summary, error) {
	metrics.RecordOperation("interactions")

	lookup := e.resolver.Resolve(ctx, symbol)
	if !lookup.Found() {
		return nil, &NotFoundError{Lookup: lookup}
	}

	e.logger.Info("fetching interactions",
		zap.String("gene", lookup.Symbol),
		zap.String("identifier", lookup.Identifier))

	var (
		g                   errgroup.Group
		diseaseRaw, drugRaw kg.Result
	)
	g.Go(func() error {
		diseaseRaw = e.querier.Query(ctx, lookup.Identifier, DiseaseTarget.Category)
		return nil
	})
	g.Go(func() error {
		drugRaw = e.querier.Query(ctx, lookup.Identifier, DrugTarget.Category)
		return nil
	})
	_ = g.Wait()

	diseases, diseaseErr := association.Split(association.Extract(diseaseRaw, DiseaseTarget.Label))
	drugs, drugErr := association.Split(association.Extract(drugRaw, DrugTarget.Label))

	summary := &Summary{
		Gene:       lookup.Symbol,
		Identifier: lookup.Identifier,
		Counts: Counts{
			DiseaseCount: len(diseases),
			DrugCount:    len(drugs),
		},
		TopDiseases: capRecords(diseases, e.opts.DisplayCap),
		TopDrugs:    capRecords(drugs, e.opts.DisplayCap),
	}
	for label, msg := range map[string]string{DiseaseTarget.Label: diseaseErr, DrugTarget.Label: drugErr} {
		if msg == "" {
			continue
		}
		if summary.QueryErrors == nil {
			summary.QueryErrors = make(map[string]string)
		}
		summary.QueryErrors[label] = msg
	}

	return summary, nil
}

// FindDiseases resolves the symbol and returns every related disease, uncapped.
func (e *Engine) FindDiseases(ctx context.Context, symbol string) (*DiseaseReport, error) {
	metrics.RecordOperation("diseases")

	lookup := e.resolver.Resolve(ctx, symbol)
	if !lookup.Found() {
		return nil, &NotFoundError{Lookup: lookup}
	}

	raw := e.querier.Query(ctx, lookup.Identifier, DiseaseTarget.Category)
	diseases, errMsg := association.Split(association.Extract(raw, DiseaseTarget.Label))

	return &DiseaseReport{
		Gene:                lookup.Symbol,
		Identifier:          lookup.Identifier,
		DiseaseAssociations: diseases,
		TotalDiseasesFound:  len(diseases),
		QueryError:          errMsg,
	}, nil
}

func capRecords(records []association.Record, n int) []association.Record {
	if len(records) > n {
		return records[:n]
	}
	return records
}
