package graph

// Category is a biolink semantic type used to constrain query-graph nodes.
type Category string

const (
	CategoryGene           Category = "biolink:Gene"
	CategoryDisease        Category = "biolink:Disease"
	CategoryChemicalEntity Category = "biolink:ChemicalEntity"
)

// PredicateRelatedTo is the most general biolink predicate; every association
// the remote service knows about is a descendant of it.
const PredicateRelatedTo = "biolink:related_to"

// Query-graph keys. ObjectKey is the variable the extractor reads bindings for.
const (
	SubjectKey = "n0"
	ObjectKey  = "n1"
	EdgeKey    = "e01"
)

// QueryNode constrains one node of the query graph.
type QueryNode struct {
	IDs        []string   `json:"ids,omitempty"`
	Categories []Category `json:"categories,omitempty"`
}

// QueryEdge is a directed edge between two query-graph keys.
type QueryEdge struct {
	Subject    string   `json:"subject"`
	Object     string   `json:"object"`
	Predicates []string `json:"predicates"`
}

type QueryGraph struct {
	Nodes map[string]QueryNode `json:"nodes"`
	Edges map[string]QueryEdge `json:"edges"`
}

type QueryMessage struct {
	QueryGraph QueryGraph `json:"query_graph"`
}

type WorkflowStep struct {
	ID string `json:"id"`
}

// Query is the request body posted to the knowledge-graph service.
type Query struct {
	Message  QueryMessage   `json:"message"`
	Workflow []WorkflowStep `json:"workflow,omitempty"`
}

// NewOneHopQuery builds a two-node, one-edge lookup from a gene to any node of
// the target category.
func NewOneHopQuery(subjectCURIE string, target Category) Query {
	return Query{
		Message: QueryMessage{
			QueryGraph: QueryGraph{
				Nodes: map[string]QueryNode{
					SubjectKey: {IDs: []string{subjectCURIE}, Categories: []Category{CategoryGene}},
					ObjectKey:  {Categories: []Category{target}},
				},
				Edges: map[string]QueryEdge{
					EdgeKey: {
						Subject:    SubjectKey,
						Object:     ObjectKey,
						Predicates: []string{PredicateRelatedTo},
					},
				},
			},
		},
		Workflow: []WorkflowStep{{ID: "lookup"}},
	}
}
