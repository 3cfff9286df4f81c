package server

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	uriScheme        = "pharmatlas://"
	uriGuidelines    = uriScheme + "usage-guidelines"
	uriTranslatorKG  = uriScheme + "translator-kg"
	uriNCBIGene      = uriScheme + "ncbi-gene"
	uriSchemasPrefix = uriScheme + "schemas/"
)

type endpointInfo struct {
	Endpoint         string   `json:"endpoint"`
	Description      string   `json:"description"`
	SupportedQueries []string `json:"supported_queries"`
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(&mcp.Resource{
		URI:         uriGuidelines,
		Name:        "Usage Guidelines",
		Description: "Usage guidelines for the Mini-PharmAtlas MCP server",
		MIMEType:    "text/markdown",
	}, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		return textResource(uriGuidelines, "text/markdown", s.systemPrompt), nil
	})

	s.addEndpointResource(uriTranslatorKG, "NCATS Translator Knowledge Graph", endpointInfo{
		Endpoint:         s.opts.KnowledgeGraphEndpoint,
		Description:      "Biomedical knowledge graph for gene-disease and gene-drug associations",
		SupportedQueries: []string{"gene-disease associations", "gene-chemical associations", "gene relationships"},
	})

	s.addEndpointResource(uriNCBIGene, "NCBI Gene Database", endpointInfo{
		Endpoint:         s.opts.NCBIEndpoint,
		Description:      "Gene information and identifiers from NCBI",
		SupportedQueries: []string{"gene ID lookup", "gene information"},
	})

	// Build a map of tool name -> schema JSON for dynamic dispatch.
	schemaMap := buildSchemaMap()

	s.mcpServer.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriSchemasPrefix + "{tool_name}",
		Name:        "Tool Schema",
		Description: "JSON schema for the named tool's arguments",
		MIMEType:    "application/schema+json",
	}, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		uri := req.Params.URI
		toolName := strings.TrimPrefix(uri, uriSchemasPrefix)
		schemaJSON, ok := schemaMap[toolName]
		if !ok {
			return nil, fmt.Errorf("unknown tool schema: %q", toolName)
		}
		return textResource(uri, "application/schema+json", schemaJSON), nil
	})
}

func (s *Server) addEndpointResource(uri, name string, info endpointInfo) {
	s.mcpServer.AddResource(&mcp.Resource{
		URI:         uri,
		Name:        name,
		Description: info.Description,
		MIMEType:    "application/json",
	}, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		body, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", uri, err)
		}
		return textResource(uri, "application/json", string(body)), nil
	})
}

func textResource(uri, mimeType, text string) *mcp.ReadResourceResult {
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{
				URI:      uri,
				MIMEType: mimeType,
				Text:     text,
			},
		},
	}
}

// buildSchemaMap constructs a map from tool name to its JSON schema string.
// Schemas are derived from the args structs using jsonschema inference.
func buildSchemaMap() map[string]string {
	m := make(map[string]string)
	addSchema[GeneSymbolArgs](m, "get_gene_info")
	addSchema[GeneSymbolArgs](m, "find_gene_diseases")
	addSchema[GeneSymbolArgs](m, "find_gene_interactions")
	addSchema[AnalyzeGeneListArgs](m, "analyze_gene_list")
	addSchema[UpstreamStatusArgs](m, "upstream_status")
	return m
}

func addSchema[T any](m map[string]string, name string) {
	schema, err := jsonschema.For[T](nil)
	if err != nil {
		return
	}
	schemaJSON, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return
	}
	m[name] = string(schemaJSON)
}
