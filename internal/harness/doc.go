// Package harness runs scripted collaboration scenarios against real
// sessions and checks the outcome.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: convergence
//	description: "Two sessions converge on the last write"
//	document: doc-1
//	debounce_ms: 300
//	initial: ""
//	sessions: [a, b]
//	steps:
//	  - session: a
//	    type: "hello"
//	  - advance_ms: 300
//	  - session: b
//	    select: { from: 1, to: 3 }
//	  - fail_commits: "store offline"
//	  - restore_commits: true
//	  - session: b
//	    insert: { at: 6, text: "!" }
//	  - session: a
//	    close: true
//	assertions:
//	  - type: text
//	    session: b
//	    text: "hello"
//	  - type: commit_count
//	    count: 1
//
// Every step carries exactly one action. Session "a" commits with writer id
// "session-a"; the initial content is committed by "server-init".
//
// # Assertion Types
//
//   - text: the session's document as plain text
//   - store_text: the committed document as plain text
//   - commit_count: successful commits of a session, or of all sessions
//   - applied_count, echo_count, in_sync_count: remote decisions of a session
//   - failure_count: commit, apply and subscription failures of a session
//   - selection: the session's final selection
//   - decision_order: the exact sequence of remote decisions of a session
//
// # Deterministic Testing
//
// Each scenario runs on a fresh in-memory store with a fake clock starting
// at testutil.Epoch. Sessions are never run on their own goroutines: after
// every step the harness drains them in declaration order and then lands
// the commits they started, until nothing is left to do; advance_ms moves
// the clock, firing due debounce timers. Commits land between drains, never
// in the middle of one.
// Traces are therefore identical across runs and can be compared against
// golden files with RunWithGolden.
package harness
