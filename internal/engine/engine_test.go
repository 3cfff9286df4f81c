package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmatlas/internal/gene"
	"pharmatlas/internal/graph"
	"pharmatlas/internal/kg"
)

type stubResolver struct {
	mu     sync.Mutex
	ids    map[string]string
	delays map[string]time.Duration
	calls  []string
}

func (s *stubResolver) Resolve(ctx context.Context, symbol string) gene.Lookup {
	s.mu.Lock()
	s.calls = append(s.calls, symbol)
	delay := s.delays[symbol]
	id, ok := s.ids[symbol]
	s.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if !ok {
		return gene.Lookup{Symbol: symbol, Status: gene.StatusNotFound}
	}
	return gene.Lookup{Symbol: symbol, Identifier: id, Status: gene.StatusFound}
}

func (s *stubResolver) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type queryKey struct {
	id       string
	category graph.Category
}

type stubQuerier struct {
	mu      sync.Mutex
	results map[queryKey]kg.Result
	calls   []queryKey
}

func (s *stubQuerier) Query(ctx context.Context, identifier string, target graph.Category) kg.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := queryKey{identifier, target}
	s.calls = append(s.calls, key)
	if res, ok := s.results[key]; ok {
		return res
	}
	return kg.Success(graph.Document(`{"message": {"results": [], "knowledge_graph": {"nodes": {}}}}`))
}

func (s *stubQuerier) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// documentOf builds a knowledge-graph document binding n1 to each name in
// order. Names double as node ids prefixed with "ID:".
func documentOf(names ...string) kg.Result {
	type binding struct {
		ID string `json:"id"`
	}
	type row struct {
		NodeBindings map[string][]binding `json:"node_bindings"`
	}
	type node struct {
		Name string `json:"name"`
	}
	var rows []row
	nodes := map[string]node{}
	for _, n := range names {
		id := "ID:" + n
		rows = append(rows, row{NodeBindings: map[string][]binding{"n1": {{ID: id}}}})
		nodes[id] = node{Name: n}
	}
	raw, _ := json.Marshal(map[string]any{
		"message": map[string]any{
			"results":         rows,
			"knowledge_graph": map[string]any{"nodes": nodes},
		},
	})
	return kg.Success(graph.Document(raw))
}

func TestFindInteractionsNotFoundIssuesNoGraphQueries(t *testing.T) {
	resolver := &stubResolver{ids: map[string]string{}}
	querier := &stubQuerier{}
	e := New(resolver, querier, Options{})

	summary, err := e.FindInteractions(context.Background(), "ZZZNOTAGENE")

	assert.Nil(t, summary)
	var nf *NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, gene.StatusNotFound, nf.Lookup.Status)
	assert.Equal(t, "could not find gene: ZZZNOTAGENE", err.Error())
	assert.Equal(t, 0, querier.callCount())
}

func TestFindInteractionsResolverErrorShortCircuits(t *testing.T) {
	querier := &stubQuerier{}
	e := New(resolverFunc(func(ctx context.Context, symbol string) gene.Lookup {
		return gene.Lookup{Symbol: symbol, Status: gene.StatusError, ErrorDetail: "timeout"}
	}), querier, Options{})

	_, err := e.FindInteractions(context.Background(), "APOE")

	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Contains(t, err.Error(), "timeout")
	assert.Equal(t, 0, querier.callCount())
}

type resolverFunc func(ctx context.Context, symbol string) gene.Lookup

func (f resolverFunc) Resolve(ctx context.Context, symbol string) gene.Lookup { return f(ctx, symbol) }

func TestFindInteractionsQueriesBothCategories(t *testing.T) {
	resolver := &stubResolver{ids: map[string]string{"APOE": "348"}}
	querier := &stubQuerier{results: map[queryKey]kg.Result{
		{"348", graph.CategoryDisease}:        documentOf("Alzheimer disease", "atherosclerosis"),
		{"348", graph.CategoryChemicalEntity}: documentOf("donepezil"),
	}}
	e := New(resolver, querier, Options{})

	summary, err := e.FindInteractions(context.Background(), "APOE")
	require.NoError(t, err)

	assert.Equal(t, "APOE", summary.Gene)
	assert.Equal(t, "348", summary.Identifier)
	assert.Equal(t, Counts{DiseaseCount: 2, DrugCount: 1}, summary.Counts)
	require.Len(t, summary.TopDiseases, 2)
	assert.Equal(t, "Disease", summary.TopDiseases[0].Type)
	require.Len(t, summary.TopDrugs, 1)
	assert.Equal(t, "donepezil", summary.TopDrugs[0].Name)
	assert.Equal(t, "Drug", summary.TopDrugs[0].Type)
	assert.Empty(t, summary.QueryErrors)
	assert.ElementsMatch(t, []queryKey{
		{"348", graph.CategoryDisease},
		{"348", graph.CategoryChemicalEntity},
	}, querier.calls)
}

func TestFindInteractionsContainsDrugQueryFailure(t *testing.T) {
	resolver := &stubResolver{ids: map[string]string{"APOE": "348"}}
	querier := &stubQuerier{results: map[queryKey]kg.Result{
		{"348", graph.CategoryDisease}:        documentOf("Alzheimer disease"),
		{"348", graph.CategoryChemicalEntity}: kg.Failed(kg.FailureTransport, "Connection error: reset by peer"),
	}}
	e := New(resolver, querier, Options{})

	summary, err := e.FindInteractions(context.Background(), "APOE")
	require.NoError(t, err)

	require.Len(t, summary.TopDiseases, 1)
	assert.Equal(t, "Alzheimer disease", summary.TopDiseases[0].Name)
	assert.NotNil(t, summary.TopDrugs)
	assert.Empty(t, summary.TopDrugs)
	assert.Equal(t, 0, summary.Counts.DrugCount)
	assert.Equal(t, map[string]string{"Drug": "Connection error: reset by peer"}, summary.QueryErrors)

	raw, err := json.Marshal(summary)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"top_drugs":[]`)
}

func TestFindInteractionsCapsListsButCountsAll(t *testing.T) {
	var names []string
	for i := 0; i < 40; i++ {
		names = append(names, fmt.Sprintf("disease-%02d", i))
	}
	resolver := &stubResolver{ids: map[string]string{"TNF": "7124"}}
	querier := &stubQuerier{results: map[queryKey]kg.Result{
		{"7124", graph.CategoryDisease}: documentOf(names...),
	}}
	e := New(resolver, querier, Options{})

	summary, err := e.FindInteractions(context.Background(), "TNF")
	require.NoError(t, err)

	assert.Equal(t, 40, summary.Counts.DiseaseCount)
	require.Len(t, summary.TopDiseases, DefaultDisplayCap)
	assert.Equal(t, "disease-00", summary.TopDiseases[0].Name)
	assert.Equal(t, "disease-14", summary.TopDiseases[14].Name)
}

func TestFindDiseases(t *testing.T) {
	var names []string
	for i := 0; i < 20; i++ {
		names = append(names, fmt.Sprintf("d%d", i))
	}
	resolver := &stubResolver{ids: map[string]string{"APP": "351"}}
	querier := &stubQuerier{results: map[queryKey]kg.Result{
		{"351", graph.CategoryDisease}: documentOf(names...),
	}}
	e := New(resolver, querier, Options{})

	report, err := e.FindDiseases(context.Background(), "APP")
	require.NoError(t, err)

	assert.Equal(t, "351", report.Identifier)
	assert.Equal(t, 20, report.TotalDiseasesFound)
	assert.Len(t, report.DiseaseAssociations, 20)
	assert.Empty(t, report.QueryError)
	assert.Equal(t, []queryKey{{"351", graph.CategoryDisease}}, querier.calls)

	_, err = e.FindDiseases(context.Background(), "NOPE")
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestFindDiseasesQueryFailure(t *testing.T) {
	resolver := &stubResolver{ids: map[string]string{"APP": "351"}}
	querier := &stubQuerier{results: map[queryKey]kg.Result{
		{"351", graph.CategoryDisease}: kg.Failed(kg.FailureDecode, "Decode error: response is not a JSON object"),
	}}
	e := New(resolver, querier, Options{})

	report, err := e.FindDiseases(context.Background(), "APP")
	require.NoError(t, err)
	assert.Equal(t, 0, report.TotalDiseasesFound)
	assert.Empty(t, report.DiseaseAssociations)
	assert.Contains(t, report.QueryError, "Decode error")
}

func TestAggregateLimitBoundsLookups(t *testing.T) {
	symbols := []string{"A", "B", "C", "D", "E", "F", "G"}
	for _, limit := range []int{-1, 0, 1, 3, 7, 50} {
		t.Run(fmt.Sprintf("limit=%d", limit), func(t *testing.T) {
			resolver := &stubResolver{ids: map[string]string{"A": "1", "B": "2", "C": "3", "D": "4", "E": "5", "F": "6", "G": "7"}}
			e := New(resolver, &stubQuerier{}, Options{})

			report := e.Aggregate(context.Background(), symbols, limit)

			want := limit
			if want < 0 {
				want = 0
			}
			if want > len(symbols) {
				want = len(symbols)
			}
			assert.Equal(t, want, resolver.callCount())
			assert.Equal(t, symbols[:want], report.GenesAnalyzed)
		})
	}
}

func TestAggregateAnalyzesRepeatedSymbolOnce(t *testing.T) {
	resolver := &stubResolver{ids: map[string]string{"A": "1", "B": "2"}}
	querier := &stubQuerier{results: map[queryKey]kg.Result{
		{"1", graph.CategoryDisease}: documentOf("X"),
		{"2", graph.CategoryDisease}: documentOf("Y"),
	}}
	e := New(resolver, querier, Options{})

	// Truncation happens before repeats are removed.
	report := e.Aggregate(context.Background(), []string{"A", "A", "B"}, 2)

	assert.Equal(t, []string{"A"}, report.GenesAnalyzed)
	assert.Equal(t, 1, resolver.callCount())
	require.Len(t, report.Results, 1)
	assert.Equal(t, []RankedAssociation{{Name: "X", GeneCount: 1}}, report.CommonAssociations)
}

func TestAggregateCountsGenesNotOccurrences(t *testing.T) {
	resolver := &stubResolver{ids: map[string]string{"A": "1", "B": "2"}}
	querier := &stubQuerier{results: map[queryKey]kg.Result{
		// Distinct ids sharing a display name: three occurrences of X for gene A.
		{"1", graph.CategoryDisease}: kg.Success(graph.Document(`{"message": {
			"results": [
				{"node_bindings": {"n1": [{"id": "M:1"}]}},
				{"node_bindings": {"n1": [{"id": "M:2"}]}},
				{"node_bindings": {"n1": [{"id": "M:3"}]}}
			],
			"knowledge_graph": {"nodes": {"M:1": {"name": "X"}, "M:2": {"name": "X"}, "M:3": {"name": "X"}}}}}`)),
		{"2", graph.CategoryDisease}: documentOf("X"),
	}}
	e := New(resolver, querier, Options{})

	report := e.Aggregate(context.Background(), []string{"A", "B"}, 5)

	require.Len(t, report.CommonAssociations, 1)
	assert.Equal(t, RankedAssociation{Name: "X", GeneCount: 2}, report.CommonAssociations[0])
	assert.Equal(t, 3, report.Results[0].AssociationCount)
}

func TestTallyRankingIsStable(t *testing.T) {
	tl := newTally()
	tl.addGene([]string{"X", "Y", "Z"})
	tl.addGene([]string{"Y", "X"})
	tl.addGene([]string{"Y", "X", "Y"})

	assert.Equal(t, []RankedAssociation{
		{Name: "X", GeneCount: 3},
		{Name: "Y", GeneCount: 3},
		{Name: "Z", GeneCount: 1},
	}, tl.ranked(10))

	assert.Equal(t, []RankedAssociation{{Name: "X", GeneCount: 3}}, tl.ranked(1))
}

func TestAggregateCapsRankedOutput(t *testing.T) {
	var names []string
	for i := 0; i < 25; i++ {
		names = append(names, fmt.Sprintf("n%02d", i))
	}
	resolver := &stubResolver{ids: map[string]string{"A": "1"}}
	querier := &stubQuerier{results: map[queryKey]kg.Result{{"1", graph.CategoryDisease}: documentOf(names...)}}
	e := New(resolver, querier, Options{})

	report := e.Aggregate(context.Background(), []string{"A"}, 5)

	require.Len(t, report.CommonAssociations, DefaultTopK)
	assert.Equal(t, "n00", report.CommonAssociations[0].Name)
	assert.Equal(t, "n09", report.CommonAssociations[9].Name)
}

func TestAggregateEndToEndOrderIndependentOfCompletion(t *testing.T) {
	resolver := &stubResolver{
		ids: map[string]string{"APOE": "348", "APP": "351", "PSEN1": "5663", "ZZZ": "0"},
		// The first gene finishes last.
		delays: map[string]time.Duration{"APOE": 60 * time.Millisecond, "APP": 30 * time.Millisecond},
	}
	querier := &stubQuerier{results: map[queryKey]kg.Result{
		{"348", graph.CategoryDisease}:  documentOf("Alzheimer disease", "hyperlipidemia"),
		{"351", graph.CategoryDisease}:  documentOf("cerebral amyloid angiopathy", "Alzheimer disease"),
		{"5663", graph.CategoryDisease}: documentOf("Alzheimer disease", "cerebral amyloid angiopathy", "Pick disease"),
	}}
	e := New(resolver, querier, Options{MaxConcurrency: 3})

	report := e.Aggregate(context.Background(), []string{"APOE", "APP", "PSEN1", "ZZZ"}, 3)

	assert.Equal(t, []string{"APOE", "APP", "PSEN1"}, report.GenesAnalyzed)
	assert.Equal(t, []GeneDetail{
		{Gene: "APOE", Identifier: "348", AssociationCount: 2},
		{Gene: "APP", Identifier: "351", AssociationCount: 2},
		{Gene: "PSEN1", Identifier: "5663", AssociationCount: 3},
	}, report.Results)
	assert.Equal(t, []RankedAssociation{
		{Name: "Alzheimer disease", GeneCount: 3},
		{Name: "cerebral amyloid angiopathy", GeneCount: 2},
		{Name: "hyperlipidemia", GeneCount: 1},
		{Name: "Pick disease", GeneCount: 1},
	}, report.CommonAssociations)
	assert.NotContains(t, resolver.calls, "ZZZ")
}

func TestAggregateExcludesUnresolvedGenes(t *testing.T) {
	resolver := &stubResolver{ids: map[string]string{"APOE": "348"}}
	querier := &stubQuerier{results: map[queryKey]kg.Result{
		{"348", graph.CategoryDisease}: documentOf("Alzheimer disease"),
	}}
	e := New(resolver, querier, Options{})

	report := e.Aggregate(context.Background(), []string{"NOPE", "APOE", "ALSO-NOPE"}, 5)

	assert.Equal(t, []string{"NOPE", "APOE", "ALSO-NOPE"}, report.GenesAnalyzed)
	require.Len(t, report.Results, 1)
	assert.Equal(t, "APOE", report.Results[0].Gene)
	assert.Equal(t, []RankedAssociation{{Name: "Alzheimer disease", GeneCount: 1}}, report.CommonAssociations)
	assert.Equal(t, 1, querier.callCount())
}

func TestAggregateToleratesQueryFailure(t *testing.T) {
	resolver := &stubResolver{ids: map[string]string{"APOE": "348", "APP": "351"}}
	querier := &stubQuerier{results: map[queryKey]kg.Result{
		{"348", graph.CategoryDisease}: kg.Failed(kg.FailureTransport, "HTTP Error: 503 - busy"),
		{"351", graph.CategoryDisease}: documentOf("Alzheimer disease"),
	}}
	e := New(resolver, querier, Options{})

	report := e.Aggregate(context.Background(), []string{"APOE", "APP"}, 5)

	require.Len(t, report.Results, 2)
	assert.Equal(t, 0, report.Results[0].AssociationCount)
	assert.Equal(t, 1, report.Results[1].AssociationCount)
	for _, r := range report.CommonAssociations {
		assert.False(t, strings.Contains(r.Name, "HTTP Error"))
	}
}

func TestAggregateEmptyReportSerializesLists(t *testing.T) {
	e := New(&stubResolver{}, &stubQuerier{}, Options{})

	raw, err := json.Marshal(e.Aggregate(context.Background(), nil, 5))
	require.NoError(t, err)
	assert.JSONEq(t, `{"genes_analyzed": [], "results": [], "common_diseases": []}`, string(raw))
}
