package harness

import (
	"fmt"
	"slices"
	"strings"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Session  string       // Session the assertion was scoped to, if any
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s", e.Type)
	if e.Session != "" {
		fmt.Fprintf(&buf, " (session %s)", e.Session)
	}
	buf.WriteString("\n")

	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, ev := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] +%dms %s %s", ev.Seq, ev.AtMS, ev.Session, ev.Kind)
		if ev.Writer != "" {
			fmt.Fprintf(&buf, " from %s", ev.Writer)
		}
		if ev.Decision != "" {
			fmt.Fprintf(&buf, " %s", ev.Decision)
		}
		if ev.Error != "" {
			fmt.Fprintf(&buf, " %s", ev.Error)
		} else {
			fmt.Fprintf(&buf, " %q", ev.Text)
		}
		buf.WriteString("\n")
	}

	return buf.String()
}

// EvaluateAssertions checks every assertion against the result and returns
// the failure messages. An empty slice means all assertions held.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluateAssertion(result, a); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %s", i, err.Error()))
		}
	}
	return errs
}

func evaluateAssertion(result *Result, a Assertion) error {
	switch a.Type {
	case AssertText:
		return assertText(result, a)
	case AssertStoreText:
		return compare(result, a, fmt.Sprintf("%q", *a.Text), fmt.Sprintf("%q", result.Final.StoreText))
	case AssertCommitCount:
		return assertCommitCount(result, a)
	case AssertAppliedCount, AssertEchoCount, AssertInSyncCount, AssertFailureCount:
		return assertCounter(result, a)
	case AssertSelection:
		return assertSelection(result, a)
	case AssertDecisionOrder:
		return assertDecisionOrder(result, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func compare(result *Result, a Assertion, expected, actual string) error {
	if expected == actual {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Session:  a.Session,
		Expected: expected,
		Actual:   actual,
		Trace:    result.Trace,
	}
}

func sessionState(result *Result, a Assertion) (SessionState, error) {
	st, ok := result.Final.Sessions[a.Session]
	if !ok {
		return SessionState{}, &AssertionError{
			Type:     a.Type,
			Session:  a.Session,
			Expected: "session to exist",
			Actual:   "session not found",
			Trace:    result.Trace,
		}
	}
	return st, nil
}

func assertText(result *Result, a Assertion) error {
	st, err := sessionState(result, a)
	if err != nil {
		return err
	}
	return compare(result, a, fmt.Sprintf("%q", *a.Text), fmt.Sprintf("%q", st.Text))
}

// assertCommitCount counts successful commits of one session, or of all
// sessions when none is named. The initial commit is not counted.
func assertCommitCount(result *Result, a Assertion) error {
	var total int64
	if a.Session != "" {
		st, err := sessionState(result, a)
		if err != nil {
			return err
		}
		total = st.Stats.Commits
	} else {
		for _, st := range result.Final.Sessions {
			total += st.Stats.Commits
		}
	}
	return compare(result, a, fmt.Sprint(*a.Count), fmt.Sprint(total))
}

func assertCounter(result *Result, a Assertion) error {
	st, err := sessionState(result, a)
	if err != nil {
		return err
	}

	var got int64
	switch a.Type {
	case AssertAppliedCount:
		got = st.Stats.Applied
	case AssertEchoCount:
		got = st.Stats.Echoes
	case AssertInSyncCount:
		got = st.Stats.InSync
	case AssertFailureCount:
		got = st.Stats.CommitFailures + st.Stats.ApplyFailures + st.Stats.SubscriptionFailures
	}
	return compare(result, a, fmt.Sprint(*a.Count), fmt.Sprint(got))
}

func assertSelection(result *Result, a Assertion) error {
	st, err := sessionState(result, a)
	if err != nil {
		return err
	}
	return compare(result, a, a.Selection.String(), st.Selection.String())
}

// assertDecisionOrder checks the exact sequence of remote decisions the
// session made, including the one for the initial snapshot.
func assertDecisionOrder(result *Result, a Assertion) error {
	var got []string
	for _, ev := range result.Trace {
		if ev.Session == a.Session && ev.Kind == "remote" {
			got = append(got, ev.Decision)
		}
	}
	if slices.Equal(got, a.Decisions) {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Session:  a.Session,
		Expected: strings.Join(a.Decisions, ", "),
		Actual:   strings.Join(got, ", "),
		Trace:    result.Trace,
	}
}
