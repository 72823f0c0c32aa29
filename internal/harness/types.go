package harness

import (
	"github.com/roach88/docsync/internal/props"
)

// Outcome values used in traces and expectations.
const (
	OutcomeResolved = "resolved"
	OutcomeFailed   = "failed"
	OutcomeSkipped  = "skipped"
)

// OutcomeEvent is one callback observed by the harness.
type OutcomeEvent struct {
	Doc     string `json:"doc"`
	Outcome string `json:"outcome"`
	// Code is the error code for failed outcomes.
	Code string `json:"code,omitempty"`
}

// LeafState is one leaf of a document after the run.
type LeafState struct {
	Generation int          `json:"generation"`
	Deleted    bool         `json:"deleted,omitempty"`
	Properties props.Object `json:"properties"`
}

// DocumentState is a seeded document after the run. Leaves are in winner
// order.
type DocumentState struct {
	ID     string      `json:"id"`
	Leaves []LeafState `json:"leaves"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expectation held.
	Pass bool `json:"pass"`

	// Outcomes are sorted by document id.
	Outcomes []OutcomeEvent `json:"outcomes"`

	// Documents are sorted by id.
	Documents []DocumentState `json:"documents"`

	// Errors contains expectation failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:      true,
		Outcomes:  []OutcomeEvent{},
		Documents: []DocumentState{},
		Errors:    []string{},
	}
}

// AddError adds an expectation failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Outcome returns the recorded outcome for doc, or skipped.
func (r *Result) Outcome(doc string) OutcomeEvent {
	for _, o := range r.Outcomes {
		if o.Doc == doc {
			return o
		}
	}
	return OutcomeEvent{Doc: doc, Outcome: OutcomeSkipped}
}

// Document returns the final state of doc.
func (r *Result) Document(doc string) (DocumentState, bool) {
	for _, d := range r.Documents {
		if d.ID == doc {
			return d, true
		}
	}
	return DocumentState{}, false
}
