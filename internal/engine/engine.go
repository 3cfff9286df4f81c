package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"pharmatlas/internal/gene"
	"pharmatlas/internal/graph"
	"pharmatlas/internal/kg"
)

const (
	DefaultDisplayCap     = 15
	DefaultTopK           = 10
	DefaultMaxConcurrency = 4
)

// Resolver maps a gene symbol to an identifier. Implementations report
// failures inside the Lookup.
type Resolver interface {
	Resolve(ctx context.Context, symbol string) gene.Lookup
}

// Querier runs one knowledge-graph query. Implementations report failures
// inside the Result.
type Querier interface {
	Query(ctx context.Context, identifier string, target graph.Category) kg.Result
}

// Target pairs a query category with the type label given to its records.
type Target struct {
	Category graph.Category
	Label    string
}

var (
	DiseaseTarget = Target{Category: graph.CategoryDisease, Label: "Disease"}
	DrugTarget    = Target{Category: graph.CategoryChemicalEntity, Label: "Drug"}
)

// NotFoundError is returned when a symbol does not resolve to an identifier,
// either because nothing matched or because the lookup itself failed.
type NotFoundError struct {
	Lookup gene.Lookup
}

func (e *NotFoundError) Error() string {
	if e.Lookup.Status == gene.StatusError {
		return fmt.Sprintf("could not resolve gene %s: %s", e.Lookup.Symbol, e.Lookup.ErrorDetail)
	}
	return fmt.Sprintf("could not find gene: %s", e.Lookup.Symbol)
}

type Options struct {
	// DisplayCap bounds each category list in an interaction summary.
	DisplayCap int
	// TopK bounds the ranked list of an aggregation report.
	TopK int
	// MaxConcurrency bounds how many genes an aggregation works on at once.
	MaxConcurrency int
	Logger         *zap.Logger
}

// Engine resolves genes, queries the knowledge graph and shapes the results.
// It holds no per-request state and is safe for concurrent use.
type Engine struct {
	resolver Resolver
	querier  Querier
	opts     Options
	logger   *zap.Logger
}

func New(resolver Resolver, querier Querier, opts Options) *Engine {
	if opts.DisplayCap <= 0 {
		opts.DisplayCap = DefaultDisplayCap
	}
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = DefaultMaxConcurrency
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		resolver: resolver,
		querier:  querier,
		opts:     opts,
		logger:   logger,
	}
}
