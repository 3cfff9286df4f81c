package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"pharmatlas/internal/engine"
	"pharmatlas/internal/gene"
	"pharmatlas/util"
)

// Arguments structs

type GeneSymbolArgs struct {
	GeneSymbol string `json:"gene_symbol" jsonschema:"Gene symbol, e.g. APOE, APP, PSEN1 or TNF"`
}

type AnalyzeGeneListArgs struct {
	GeneSymbols []string `json:"gene_symbols" jsonschema:"List of gene symbols to analyze"`
	Limit       *int     `json:"limit,omitempty" jsonschema:"Maximum number of genes to analyze (default: 5)"`
}

type UpstreamStatusArgs struct {
	Recent *int `json:"recent,omitempty" jsonschema:"Number of recent upstream calls to include (default: 10)"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_gene_info",
		Description: "Get basic information about a gene from the NCBI Gene database",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args GeneSymbolArgs) (*mcp.CallToolResult, any, error) {
		symbol := util.NormalizeSymbol(args.GeneSymbol)
		if symbol == "" {
			return errorResult("gene_symbol is required"), nil, nil
		}

		lookup := s.engine.LookupGene(ctx, symbol)
		return jsonResult(lookup), nil, nil
	})

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "find_gene_diseases",
		Description: "Find diseases associated with a specific gene using the NCATS Translator Knowledge Graph",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args GeneSymbolArgs) (*mcp.CallToolResult, any, error) {
		symbol := util.NormalizeSymbol(args.GeneSymbol)
		if symbol == "" {
			return errorResult("gene_symbol is required"), nil, nil
		}

		report, err := s.engine.FindDiseases(ctx, symbol)
		if err != nil {
			return notFoundResult(symbol, err), nil, nil
		}
		return jsonResult(report), nil, nil
	})

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "find_gene_interactions",
		Description: "Find both Diseases AND Drugs associated with a specific gene",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args GeneSymbolArgs) (*mcp.CallToolResult, any, error) {
		symbol := util.NormalizeSymbol(args.GeneSymbol)
		if symbol == "" {
			return errorResult("gene_symbol is required"), nil, nil
		}

		s.logger.Info("fetching data", zap.String("gene", symbol))
		summary, err := s.engine.FindInteractions(ctx, symbol)
		if err != nil {
			return notFoundResult(symbol, err), nil, nil
		}
		return jsonResult(summary), nil, nil
	})

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "analyze_gene_list",
		Description: "Analyze a list of genes and find common disease associations",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args AnalyzeGeneListArgs) (*mcp.CallToolResult, any, error) {
		limit := s.opts.DefaultLimit
		if args.Limit != nil {
			limit = *args.Limit
		}

		report := s.engine.Aggregate(ctx, util.NormalizeSymbols(args.GeneSymbols), limit)
		return jsonResult(report), nil, nil
	})

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "upstream_status",
		Description: "Returns circuit-breaker state, call statistics and recent calls for the remote services",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args UpstreamStatusArgs) (*mcp.CallToolResult, any, error) {
		recent := 10
		if args.Recent != nil {
			recent = *args.Recent
		}

		services := make([]map[string]string, 0, len(s.opts.Guards))
		for _, g := range s.opts.Guards {
			services = append(services, map[string]string{
				"service": g.Service(),
				"breaker": g.State(),
			})
		}
		result := map[string]any{
			"services": services,
		}

		if s.opts.Journal == nil {
			result["journal"] = "disabled"
			return jsonResult(result), nil, nil
		}

		stats, err := s.opts.Journal.Stats(ctx)
		if err != nil {
			return errorResult(fmt.Sprintf("Journal query failed: %v", err)), nil, nil
		}
		calls, err := s.opts.Journal.Recent(ctx, recent)
		if err != nil {
			return errorResult(fmt.Sprintf("Journal query failed: %v", err)), nil, nil
		}
		result["stats"] = stats
		result["recent"] = calls

		return jsonResult(result), nil, nil
	})
}

// notFoundResult renders an unresolved symbol as a plain message rather than
// a tool error: "not found" is a valid answer.
func notFoundResult(symbol string, err error) *mcp.CallToolResult {
	var nf *engine.NotFoundError
	if errors.As(err, &nf) && nf.Lookup.Status == gene.StatusError {
		return textResult(fmt.Sprintf("Could not find gene: %s (lookup failed: %s)", symbol, nf.Lookup.ErrorDetail))
	}
	return textResult(fmt.Sprintf("Could not find gene: %s", symbol))
}

func jsonResult(v any) *mcp.CallToolResult {
	jsonBytes, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to encode result: %v", err))
	}
	return textResult(string(jsonBytes))
}
