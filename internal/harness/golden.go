package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/docsync/internal/content"
)

// TraceSnapshot captures the complete trace and final state of a scenario
// execution. It is serialized as canonical JSON for deterministic comparison.
type TraceSnapshot struct {
	Scenario string       `json:"scenario"`
	Document string       `json:"document"`
	Trace    []TraceEvent `json:"trace"`
	Final    FinalState   `json:"final"`
}

// Snapshot returns the canonical JSON encoding of a scenario result, the
// content of its golden file.
func Snapshot(scenario *Scenario, result *Result) ([]byte, error) {
	return content.MarshalCanonical(TraceSnapshot{
		Scenario: scenario.Name,
		Document: scenario.Document,
		Trace:    result.Trace,
		Final:    result.Final,
	})
}

// RunWithGolden executes a scenario and compares the snapshot against a
// golden file stored in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns an error if scenario execution fails. A golden mismatch or a failed
// assertion fails the test.
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	for _, msg := range result.Errors {
		t.Error(msg)
	}
	return AssertGolden(t, scenario, result)
}

// AssertGolden compares an existing result against the scenario's golden
// file without re-running it.
func AssertGolden(t *testing.T, scenario *Scenario, result *Result) error {
	t.Helper()

	data, err := Snapshot(scenario, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, data)
	return nil
}
