package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/docsync/internal/editor"
	"github.com/roach88/docsync/internal/session"
)

func sampleResult() *Result {
	r := NewResult()
	r.Trace = []TraceEvent{
		{Seq: 1, Session: "a", Kind: "remote", Writer: "server-init", Decision: "discard_in_sync"},
		{Seq: 2, AtMS: 300, Session: "a", Kind: "commit", Writer: "session-a", Text: "hi"},
		{Seq: 3, AtMS: 300, Session: "a", Kind: "remote", Writer: "session-a", Text: "hi", Decision: "discard_in_sync"},
		{Seq: 4, AtMS: 300, Session: "b", Kind: "remote", Writer: "session-a", Text: "hi", Decision: "accept", Restore: "end"},
	}
	r.Final = FinalState{
		StoreText:    "hi",
		StoreCommits: 2,
		Sessions: map[string]SessionState{
			"a": {Text: "hi", Stats: session.Stats{Commits: 1, InSync: 2}},
			"b": {
				Text:      "hi",
				Selection: editor.Cursor(4),
				Stats:     session.Stats{Commits: 2, Applied: 1, Echoes: 1, CommitFailures: 1, ApplyFailures: 1, SubscriptionFailures: 1},
			},
		},
	}
	return r
}

func TestEvaluateAssertions_AllPass(t *testing.T) {
	errs := EvaluateAssertions(sampleResult(), []Assertion{
		{Type: AssertText, Session: "a", Text: ptr("hi")},
		{Type: AssertStoreText, Text: ptr("hi")},
		{Type: AssertCommitCount, Count: ptr(3)},
		{Type: AssertCommitCount, Session: "b", Count: ptr(2)},
		{Type: AssertAppliedCount, Session: "b", Count: ptr(1)},
		{Type: AssertEchoCount, Session: "b", Count: ptr(1)},
		{Type: AssertInSyncCount, Session: "a", Count: ptr(2)},
		{Type: AssertFailureCount, Session: "b", Count: ptr(3)},
		{Type: AssertSelection, Session: "b", Selection: &editor.Selection{From: 4, To: 4}},
		{Type: AssertDecisionOrder, Session: "a", Decisions: []string{"discard_in_sync", "discard_in_sync"}},
		{Type: AssertDecisionOrder, Session: "b", Decisions: []string{"accept"}},
	})
	assert.Empty(t, errs)
}

func TestEvaluateAssertions_Failures(t *testing.T) {
	tests := []struct {
		name      string
		assertion Assertion
		want      string
	}{
		{
			name:      "text",
			assertion: Assertion{Type: AssertText, Session: "a", Text: ptr("bye")},
			want:      `Expected: "bye"`,
		},
		{
			name:      "store text",
			assertion: Assertion{Type: AssertStoreText, Text: ptr("")},
			want:      `Actual: "hi"`,
		},
		{
			name:      "commit count",
			assertion: Assertion{Type: AssertCommitCount, Count: ptr(1)},
			want:      "Actual: 3",
		},
		{
			name:      "applied count",
			assertion: Assertion{Type: AssertAppliedCount, Session: "a", Count: ptr(1)},
			want:      "Actual: 0",
		},
		{
			name:      "selection",
			assertion: Assertion{Type: AssertSelection, Session: "b", Selection: &editor.Selection{From: 1, To: 2}},
			want:      "Actual: [4,4]",
		},
		{
			name:      "decision order",
			assertion: Assertion{Type: AssertDecisionOrder, Session: "b", Decisions: []string{"discard_echo"}},
			want:      "Actual: accept",
		},
		{
			name:      "unknown session",
			assertion: Assertion{Type: AssertText, Session: "z", Text: ptr("")},
			want:      "session not found",
		},
		{
			name:      "unknown type",
			assertion: Assertion{Type: "final_state"},
			want:      `unknown assertion type "final_state"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := EvaluateAssertions(sampleResult(), []Assertion{tt.assertion})
			require.Len(t, errs, 1)
			assert.Contains(t, errs[0], "assertions[0]")
			assert.Contains(t, errs[0], tt.want)
		})
	}
}

func TestAssertionError_ErrorFormat(t *testing.T) {
	err := &AssertionError{
		Type:     AssertText,
		Session:  "b",
		Expected: `"hello"`,
		Actual:   `"hel"`,
		Trace:    sampleResult().Trace,
	}

	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: text (session b)")
	assert.Contains(t, msg, `Expected: "hello"`)
	assert.Contains(t, msg, `Actual: "hel"`)
	assert.Contains(t, msg, "Full trace:")
	assert.Contains(t, msg, `[2] +300ms a commit from session-a "hi"`)
	assert.Contains(t, msg, `[4] +300ms b remote from session-a accept "hi"`)
}
