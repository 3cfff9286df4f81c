package graph

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOneHopQueryShape(t *testing.T) {
	q := NewOneHopQuery("NCBIGene:348", CategoryDisease)

	raw, err := json.Marshal(q)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))

	qg := decoded["message"].(map[string]any)["query_graph"].(map[string]any)
	nodes := qg["nodes"].(map[string]any)
	require.Len(t, nodes, 2)

	n0 := nodes["n0"].(map[string]any)
	assert.Equal(t, []any{"NCBIGene:348"}, n0["ids"])
	assert.Equal(t, []any{"biolink:Gene"}, n0["categories"])

	n1 := nodes["n1"].(map[string]any)
	assert.NotContains(t, n1, "ids")
	assert.Equal(t, []any{"biolink:Disease"}, n1["categories"])

	edges := qg["edges"].(map[string]any)
	require.Len(t, edges, 1)
	e01 := edges["e01"].(map[string]any)
	assert.Equal(t, "n0", e01["subject"])
	assert.Equal(t, "n1", e01["object"])
	assert.Equal(t, []any{"biolink:related_to"}, e01["predicates"])

	assert.Equal(t, []any{map[string]any{"id": "lookup"}}, decoded["workflow"])
}

func TestDocumentIsObject(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want bool
	}{
		{"object", `{"message":{}}`, true},
		{"padded object", "  {}\n", true},
		{"array", `[1,2]`, false},
		{"truncated", `{"message":`, false},
		{"empty", ``, false},
		{"html", `<html></html>`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Document(tt.doc).IsObject())
		})
	}
}

func TestDocumentParseToleratesMalformedEntries(t *testing.T) {
	doc := Document(`{
	  "message": {
	    "results": [
	      {"node_bindings": {"n1": [{"id": "MONDO:1"}, {"nope": true}, "junk"]}},
	      "not a row",
	      {"node_bindings": "not a map"},
	      {"node_bindings": {"n1": [{"id": "MONDO:2"}], "n0": [{"id": "NCBIGene:348"}]}}
	    ],
	    "knowledge_graph": {
	      "nodes": {
	        "MONDO:1": {"name": "Alzheimer disease", "categories": ["biolink:Disease"]},
	        "MONDO:2": {"name": 42},
	        "MONDO:3": {}
	      }
	    }
	  }
	}`)

	resp := doc.Parse()

	require.Len(t, resp.Rows, 2)
	assert.Equal(t, []string{"MONDO:1"}, resp.Rows[0].Bindings[ObjectKey])
	assert.Equal(t, []string{"MONDO:2"}, resp.Rows[1].Bindings[ObjectKey])
	assert.Equal(t, []string{"NCBIGene:348"}, resp.Rows[1].Bindings[SubjectKey])

	assert.Contains(t, resp.Nodes, "MONDO:1")
	assert.NotContains(t, resp.Nodes, "MONDO:2")
	assert.Contains(t, resp.Nodes, "MONDO:3")
	assert.Equal(t, "Alzheimer disease", resp.Nodes["MONDO:1"].Name)
}

func TestDocumentParseMissingLevels(t *testing.T) {
	for _, doc := range []string{``, `{}`, `{"message": null}`, `{"message": []}`, `{"message": {"results": {}}}`} {
		resp := Document(doc).Parse()
		assert.Empty(t, resp.Rows, doc)
		assert.NotNil(t, resp.Nodes, doc)
	}
}
