package harness

import (
	"github.com/roach88/docsync/internal/editor"
	"github.com/roach88/docsync/internal/session"
)

// TraceEvent is one session event, flattened for golden comparison.
type TraceEvent struct {
	// Seq orders events across all sessions, starting at 1.
	Seq int64 `json:"seq"`

	// AtMS is the fake clock reading, in milliseconds since the scenario
	// started.
	AtMS int64 `json:"at_ms"`

	// Session is the scenario name of the session, not its writer id.
	Session string `json:"session"`

	Kind     string `json:"kind"` // "commit", "remote" or "error"
	Writer   string `json:"writer,omitempty"`
	Text     string `json:"text"`
	Decision string `json:"decision,omitempty"`
	Restore  string `json:"restore,omitempty"`
	Error    string `json:"error,omitempty"`
}

// SessionState is the final state of one session.
type SessionState struct {
	Text      string           `json:"text"`
	Selection editor.Selection `json:"selection"`
	Stats     session.Stats    `json:"stats"`
}

// FinalState is what the scenario left behind.
type FinalState struct {
	StoreText    string                  `json:"store_text"`
	StoreCommits int                     `json:"store_commits"`
	Sessions     map[string]SessionState `json:"sessions"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	// Trace contains every session event in order.
	Trace []TraceEvent `json:"trace"`

	// Final is the state after the last step.
	Final FinalState `json:"final"`

	// Errors contains assertion failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		Final:  FinalState{Sessions: make(map[string]SessionState)},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends an event to the trace.
func (r *Result) AddTrace(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}
