package harness

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/docsync/internal/editor"
)

// Scenario defines a collaboration scenario: a set of sessions editing one
// document, a scripted sequence of steps and assertions on the outcome.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Document is the document id every session edits.
	Document string `yaml:"document"`

	// DebounceMS overrides the debounce interval. Zero means the default.
	DebounceMS int `yaml:"debounce_ms,omitempty"`

	// Initial, when set, is committed as plain text by "server-init" before
	// any session opens.
	Initial *string `yaml:"initial,omitempty"`

	// Sessions names the sessions to open, in order. Session "a" writes as
	// "session-a".
	Sessions []string `yaml:"sessions"`

	// Steps run in order; the harness settles all sessions after each one.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final state.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one scripted action. Exactly one action field must be set.
type Step struct {
	// Session targets type, insert, select and close.
	Session string `yaml:"session,omitempty"`

	// Type replaces the session's document with this text as a local edit.
	Type *string `yaml:"type,omitempty"`

	// Insert types text at a position as a local edit.
	Insert *InsertStep `yaml:"insert,omitempty"`

	// Select moves the session's selection.
	Select *editor.Selection `yaml:"select,omitempty"`

	// Close tears the session down.
	Close bool `yaml:"close,omitempty"`

	// AdvanceMS moves the fake clock forward.
	AdvanceMS int `yaml:"advance_ms,omitempty"`

	// FailCommits makes every store commit fail with this message.
	FailCommits string `yaml:"fail_commits,omitempty"`

	// RestoreCommits undoes FailCommits.
	RestoreCommits bool `yaml:"restore_commits,omitempty"`
}

// InsertStep is the argument of an insert step.
type InsertStep struct {
	At   int    `yaml:"at"`
	Text string `yaml:"text"`
}

// Assertion types.
const (
	AssertText          = "text"
	AssertStoreText     = "store_text"
	AssertCommitCount   = "commit_count"
	AssertAppliedCount  = "applied_count"
	AssertEchoCount     = "echo_count"
	AssertInSyncCount   = "in_sync_count"
	AssertFailureCount  = "failure_count"
	AssertSelection     = "selection"
	AssertDecisionOrder = "decision_order"
)

// Assertion checks one property of the final state or trace.
type Assertion struct {
	Type string `yaml:"type"`

	// Session scopes the assertion. For commit_count an empty session means
	// the total over all sessions.
	Session string `yaml:"session,omitempty"`

	Text      *string           `yaml:"text,omitempty"`
	Count     *int              `yaml:"count,omitempty"`
	Selection *editor.Selection `yaml:"selection,omitempty"`

	// Decisions lists the expected remote decisions of Session, in order.
	Decisions []string `yaml:"decisions,omitempty"`
}

// kind returns the action name of a step, or "" when none or several are set.
func (s *Step) kind() string {
	var kinds []string
	if s.Type != nil {
		kinds = append(kinds, "type")
	}
	if s.Insert != nil {
		kinds = append(kinds, "insert")
	}
	if s.Select != nil {
		kinds = append(kinds, "select")
	}
	if s.Close {
		kinds = append(kinds, "close")
	}
	if s.AdvanceMS != 0 {
		kinds = append(kinds, "advance_ms")
	}
	if s.FailCommits != "" {
		kinds = append(kinds, "fail_commits")
	}
	if s.RestoreCommits {
		kinds = append(kinds, "restore_commits")
	}
	if len(kinds) != 1 {
		return ""
	}
	return kinds[0]
}

// LoadScenario reads and validates a scenario file. Unknown fields are
// rejected to catch typos.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	return scenario, nil
}

// ParseScenario decodes and validates a scenario document.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	if err := decoder.Decode(&scenario); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty scenario")
		}
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Document == "" {
		return fmt.Errorf("document is required")
	}
	if s.DebounceMS < 0 {
		return fmt.Errorf("debounce_ms must be non-negative")
	}
	if len(s.Sessions) == 0 {
		return fmt.Errorf("sessions list is required and must be non-empty")
	}

	known := make(map[string]bool, len(s.Sessions))
	for i, name := range s.Sessions {
		if name == "" {
			return fmt.Errorf("sessions[%d]: name is required", i)
		}
		if known[name] {
			return fmt.Errorf("sessions[%d]: duplicate session %q", i, name)
		}
		known[name] = true
	}

	for i := range s.Steps {
		step := &s.Steps[i]
		kind := step.kind()
		switch kind {
		case "":
			return fmt.Errorf("steps[%d]: exactly one action is required", i)
		case "type", "insert", "select", "close":
			if !known[step.Session] {
				return fmt.Errorf("steps[%d]: %s needs a known session, got %q", i, kind, step.Session)
			}
		case "advance_ms":
			if step.AdvanceMS < 0 {
				return fmt.Errorf("steps[%d]: advance_ms must be positive", i)
			}
			if step.Session != "" {
				return fmt.Errorf("steps[%d]: advance_ms applies to all sessions", i)
			}
		}
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i], known); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, sessions map[string]bool) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	needSession := func() error {
		if !sessions[a.Session] {
			return fmt.Errorf("assertions[%d]: %s needs a known session, got %q", index, a.Type, a.Session)
		}
		return nil
	}
	needCount := func() error {
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: non-negative count is required for %s", index, a.Type)
		}
		return nil
	}

	switch a.Type {
	case AssertText:
		if a.Text == nil {
			return fmt.Errorf("assertions[%d]: text is required for text", index)
		}
		return needSession()
	case AssertStoreText:
		if a.Text == nil {
			return fmt.Errorf("assertions[%d]: text is required for store_text", index)
		}
	case AssertCommitCount:
		if a.Session != "" {
			if err := needSession(); err != nil {
				return err
			}
		}
		return needCount()
	case AssertAppliedCount, AssertEchoCount, AssertInSyncCount, AssertFailureCount:
		if err := needSession(); err != nil {
			return err
		}
		return needCount()
	case AssertSelection:
		if a.Selection == nil {
			return fmt.Errorf("assertions[%d]: selection is required for selection", index)
		}
		return needSession()
	case AssertDecisionOrder:
		if len(a.Decisions) == 0 {
			return fmt.Errorf("assertions[%d]: decisions list is required for decision_order", index)
		}
		return needSession()
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
