package association

import (
	"pharmatlas/internal/graph"
	"pharmatlas/internal/kg"
)

// Record is one entity related to a gene. A record with Error set is a marker
// standing in for a failed query and carries no entity.
type Record struct {
	ID         string   `json:"id,omitempty"`
	Name       string   `json:"name,omitempty"`
	Type       string   `json:"type"`
	Categories []string `json:"categories"`
	Error      string   `json:"error,omitempty"`
}

func (r Record) IsError() bool {
	return r.Error != ""
}

// Extract turns a query result into records of the given type label, one per
// distinct object-node id in order of first appearance. A failed result yields
// a single error marker. Rows, bindings and nodes that are malformed or absent
// from the node catalogue are skipped.
func Extract(result kg.Result, typeLabel string) []Record {
	if !result.OK() {
		return []Record{{Type: typeLabel, Error: result.Err()}}
	}

	resp := result.Document.Parse()
	records := []Record{}
	seen := make(map[string]struct{})

	for _, row := range resp.Rows {
		for _, id := range row.Bindings[graph.ObjectKey] {
			if _, dup := seen[id]; dup {
				continue
			}
			node, ok := resp.Nodes[id]
			if !ok {
				continue
			}
			seen[id] = struct{}{}

			name := node.Name
			if name == "" {
				name = id
			}
			categories := node.Categories
			if categories == nil {
				categories = []string{}
			}
			records = append(records, Record{
				ID:         id,
				Name:       name,
				Type:       typeLabel,
				Categories: categories,
			})
		}
	}

	return records
}

// Split separates usable records from error markers. The first marker's
// message is returned as errMsg.
func Split(records []Record) (usable []Record, errMsg string) {
	usable = make([]Record, 0, len(records))
	for _, r := range records {
		if r.IsError() {
			if errMsg == "" {
				errMsg = r.Error
			}
			continue
		}
		usable = append(usable, r)
	}
	return usable, errMsg
}
