package kg

import "pharmatlas/internal/graph"

// FailureKind distinguishes why a query produced no document. Callers are not
// required to look at it; every kind travels through the same error channel.
type FailureKind string

const (
	FailureTransport FailureKind = "transport"
	FailureDecode    FailureKind = "decode"
)

type Failure struct {
	Kind    FailureKind
	Message string
}

func (f *Failure) Error() string {
	return f.Message
}

// Result carries either a document or a failure, never both.
type Result struct {
	Document graph.Document
	Failure  *Failure
}

func Success(doc graph.Document) Result {
	return Result{Document: doc}
}

func Failed(kind FailureKind, message string) Result {
	return Result{Failure: &Failure{Kind: kind, Message: message}}
}

func (r Result) OK() bool {
	return r.Failure == nil
}

// Err returns the failure message, or "" for a successful result.
func (r Result) Err() string {
	if r.Failure == nil {
		return ""
	}
	return r.Failure.Message
}
