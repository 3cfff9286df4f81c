package graph

import (
	"bytes"
	"encoding/json"
)

// Document is the raw JSON body returned by the knowledge-graph service.
type Document []byte

// Row is one entry of message.results, reduced to its node bindings.
// Bindings keeps the bound node ids per query-graph key, in document order.
type Row struct {
	Bindings map[string][]string
}

// Node is one entry of message.knowledge_graph.nodes.
type Node struct {
	Name       string   `json:"name"`
	Categories []string `json:"categories"`
}

// Response is the tolerant view of a Document used for extraction.
type Response struct {
	Rows  []Row
	Nodes map[string]Node
}

// IsObject reports whether the document is a well-formed JSON object.
func (d Document) IsObject() bool {
	trimmed := bytes.TrimSpace(d)
	return len(trimmed) > 0 && trimmed[0] == '{' && json.Valid(trimmed)
}

// Parse decodes the parts of the document the extractor needs. It never fails:
// a level that does not have the expected shape is treated as absent, and
// individual rows, bindings or nodes that cannot be decoded are dropped.
func (d Document) Parse() Response {
	resp := Response{Nodes: map[string]Node{}}

	var envelope struct {
		Message json.RawMessage `json:"message"`
	}
	if !decode(d, &envelope) {
		return resp
	}

	var message struct {
		Results        json.RawMessage `json:"results"`
		KnowledgeGraph json.RawMessage `json:"knowledge_graph"`
	}
	if !decode(envelope.Message, &message) {
		return resp
	}

	var kg struct {
		Nodes map[string]json.RawMessage `json:"nodes"`
	}
	if decode(message.KnowledgeGraph, &kg) {
		for id, raw := range kg.Nodes {
			var n Node
			if decode(raw, &n) {
				resp.Nodes[id] = n
			}
		}
	}

	var rows []json.RawMessage
	if !decode(message.Results, &rows) {
		return resp
	}
	for _, raw := range rows {
		var row struct {
			NodeBindings map[string]json.RawMessage `json:"node_bindings"`
		}
		if !decode(raw, &row) {
			continue
		}
		parsed := Row{Bindings: make(map[string][]string, len(row.NodeBindings))}
		for key, rawList := range row.NodeBindings {
			var entries []json.RawMessage
			if !decode(rawList, &entries) {
				continue
			}
			for _, e := range entries {
				var binding struct {
					ID string `json:"id"`
				}
				if decode(e, &binding) && binding.ID != "" {
					parsed.Bindings[key] = append(parsed.Bindings[key], binding.ID)
				}
			}
		}
		resp.Rows = append(resp.Rows, parsed)
	}

	return resp
}

func decode(raw []byte, v any) bool {
	if len(bytes.TrimSpace(raw)) == 0 {
		return false
	}
	return json.Unmarshal(raw, v) == nil
}
