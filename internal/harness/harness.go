package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/docsync/internal/clock"
	"github.com/roach88/docsync/internal/content"
	"github.com/roach88/docsync/internal/editor"
	"github.com/roach88/docsync/internal/session"
	"github.com/roach88/docsync/internal/store"
	"github.com/roach88/docsync/internal/syncer"
	"github.com/roach88/docsync/internal/testutil"
)

// SeedWriter is the writer id of the initial commit.
const SeedWriter = "server-init"

// SessionIDPrefix is prepended to scenario session names to form writer ids.
const SessionIDPrefix = "session-"

type peer struct {
	name string
	sess *session.Session
	buf  *editor.Buffer
}

// Harness is the scenario execution engine. Every scenario gets a fresh
// in-memory store and a fake clock, and sessions are driven with Drain
// instead of running their loops, so the trace is fully deterministic.
type Harness struct {
	scenario *Scenario
	store    *store.Memory
	clock    *testutil.FakeClock
	runner   *testutil.Runner
	seq      *clock.Seq
	start    time.Time
	logger   *slog.Logger

	peers  map[string]*peer
	order  []*peer
	result *Result
}

// Run executes a scenario and returns the result.
//
// Execution flow:
//  1. Create a fresh in-memory store and fake clock
//  2. Commit the initial text, if any
//  3. Open every session and settle
//  4. Execute steps, settling after each
//  5. Capture the final state and evaluate assertions
//
// An error is returned when the scenario is invalid or a step could not be
// carried out; failed assertions only mark the result as not passing.
func Run(scenario *Scenario) (*Result, error) {
	if err := validateScenario(scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	fc := testutil.NewFakeClock(time.Time{})
	h := &Harness{
		scenario: scenario,
		store:    store.NewMemory(),
		clock:    fc,
		runner:   testutil.NewRunner(),
		seq:      clock.NewSeq(),
		start:    fc.Now(),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
		peers:    make(map[string]*peer),
		result:   NewResult(),
	}
	defer h.close()

	ctx := context.Background()

	if scenario.Initial != nil {
		err := h.store.Commit(ctx, store.Snapshot{
			DocumentID: scenario.Document,
			Content:    content.FromText(*scenario.Initial),
			WriterID:   SeedWriter,
			WriteTime:  h.clock.Now(),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to commit initial content: %w", err)
		}
	}

	for _, name := range scenario.Sessions {
		if err := h.open(ctx, name); err != nil {
			return nil, err
		}
	}
	h.settle()

	for i := range scenario.Steps {
		if err := h.execute(&scenario.Steps[i]); err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
		h.settle()
	}

	if err := h.captureFinal(ctx); err != nil {
		return nil, err
	}

	for _, msg := range EvaluateAssertions(h.result, scenario.Assertions) {
		h.result.AddError(msg)
	}
	return h.result, nil
}

func (h *Harness) open(ctx context.Context, name string) error {
	p := &peer{name: name, buf: editor.NewBuffer(nil)}

	sess, err := session.New(ctx, h.store, p.buf, session.Config{
		DocumentID:       h.scenario.Document,
		DebounceInterval: time.Duration(h.scenario.DebounceMS) * time.Millisecond,
	},
		session.WithLogger(h.logger),
		session.WithClock(h.clock),
		session.WithCommitRunner(h.runner.Go),
		session.WithIDGenerator(testutil.NewFixedIDGenerator(SessionIDPrefix+name)),
		session.WithEventHook(func(ev session.Event) { h.record(name, ev) }),
		session.WithErrorHandler(func(error) {}),
	)
	if err != nil {
		return fmt.Errorf("failed to open session %q: %w", name, err)
	}

	p.sess = sess
	h.peers[name] = p
	h.order = append(h.order, p)
	h.logger.Info("session opened", "name", name, "session", sess.SessionID())
	return nil
}

// settle drains every session, in scenario order, then lands the commits
// they started, until nothing is left to do.
func (h *Harness) settle() {
	for {
		n := 0
		for _, p := range h.order {
			n += p.sess.Drain()
		}
		n += h.runner.RunPending()
		if n == 0 {
			return
		}
	}
}

func (h *Harness) execute(step *Step) error {
	p := h.peers[step.Session]

	switch step.kind() {
	case "type":
		return p.buf.SetText(*step.Type)
	case "insert":
		return p.buf.Insert(step.Insert.At, step.Insert.Text)
	case "select":
		return p.buf.SetSelection(*step.Select)
	case "close":
		return p.sess.Close()
	case "advance_ms":
		// Pending local changes must arm their timers before time moves.
		h.settle()
		h.clock.Advance(time.Duration(step.AdvanceMS) * time.Millisecond)
	case "fail_commits":
		h.store.FailCommits(errors.New(step.FailCommits))
	case "restore_commits":
		h.store.FailCommits(nil)
	default:
		return fmt.Errorf("no action")
	}
	return nil
}

// record converts a session event into a trace event. Sessions are only
// ever drained from the harness goroutine, so no locking is needed.
func (h *Harness) record(name string, ev session.Event) {
	te := TraceEvent{
		Seq:     h.seq.Next(),
		AtMS:    h.clock.Now().Sub(h.start).Milliseconds(),
		Session: name,
		Kind:    string(ev.Kind),
		Writer:  ev.WriterID,
	}

	switch ev.Kind {
	case session.EventCommit:
		te.Text = content.Text(ev.Content)
	case session.EventRemote:
		te.Text = content.Text(ev.Content)
		te.Decision = ev.Decision.String()
		if ev.Decision == syncer.DecisionAccept {
			te.Restore = ev.Restore.String()
		}
	case session.EventError:
		te.Error = errorCode(ev.Err)
	}
	h.result.AddTrace(te)
}

// errorCode keeps traces stable: only the error kind is recorded, since
// messages carry wrapped store errors.
func errorCode(err error) string {
	var se *syncer.SyncError
	if errors.As(err, &se) {
		return string(se.Code)
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

func (h *Harness) captureFinal(ctx context.Context) error {
	final := &h.result.Final

	snap, err := h.store.Get(ctx, h.scenario.Document)
	switch {
	case err == nil:
		final.StoreText = content.Text(snap.Content)
	case errors.Is(err, store.ErrNotFound):
	default:
		return fmt.Errorf("failed to read final document: %w", err)
	}
	final.StoreCommits = h.store.CommitCount()

	for _, p := range h.order {
		final.Sessions[p.name] = SessionState{
			Text:      p.buf.Text(),
			Selection: p.buf.Selection(),
			Stats:     p.sess.Stats(),
		}
	}
	return nil
}

func (h *Harness) close() {
	for _, p := range h.order {
		p.sess.Close()
	}
	h.store.Close()
}
