package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/docsync/internal/clock"
	"github.com/roach88/docsync/internal/content"
	"github.com/roach88/docsync/internal/editor"
	"github.com/roach88/docsync/internal/store"
	"github.com/roach88/docsync/internal/syncer"
)

// Config configures a Session.
type Config struct {
	// DocumentID is the document to edit. Required.
	DocumentID string

	// DebounceInterval is passed to the controller. Zero means
	// syncer.DefaultDebounceInterval.
	DebounceInterval time.Duration

	// CommitTimeout is passed to the controller. Zero means
	// syncer.DefaultCommitTimeout.
	CommitTimeout time.Duration
}

// Session edits one document through one widget.
//
// Thread-safety model:
//   - Run() or Drain(): called from one goroutine at a time
//   - Close(), Stats(), SessionID(): safe from any goroutine
//   - the widget may be edited from any goroutine; changes are queued
type Session struct {
	cfg    Config
	store  store.Store
	widget editor.Widget
	ctl    *syncer.Controller
	sub    store.Subscription
	queue  *eventQueue
	seq    *clock.Seq

	logger    *slog.Logger
	clock     clock.Clock
	ids       syncer.IDGenerator
	onError   func(error)
	onEvent   func(Event)
	runCommit func(func())

	// updates is owned by the loop; nil once the subscription ended.
	updates <-chan store.Snapshot

	closeOnce sync.Once
	closed    atomic.Bool
	done      chan struct{}

	commits              atomic.Int64
	applied              atomic.Int64
	echoes               atomic.Int64
	inSync               atomic.Int64
	commitFailures       atomic.Int64
	applyFailures        atomic.Int64
	subscriptionFailures atomic.Int64
}

// New subscribes to cfg.DocumentID and binds w to it. Nothing is processed
// until Run or Drain is called.
func New(ctx context.Context, st store.Store, w editor.Widget, cfg Config, opts ...Option) (*Session, error) {
	if cfg.DocumentID == "" {
		return nil, errors.New("session: empty document id")
	}

	s := &Session{
		cfg:    cfg,
		store:  st,
		widget: w,
		queue:  newEventQueue(),
		seq:    clock.NewSeq(),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.clock == nil {
		s.clock = clock.System{}
	}
	if s.ids == nil {
		s.ids = syncer.UUIDv7Generator{}
	}

	s.ctl = syncer.New(syncer.Config{
		DocumentID:       cfg.DocumentID,
		DebounceInterval: cfg.DebounceInterval,
		CommitTimeout:    cfg.CommitTimeout,
	}, syncer.Deps{
		Store: st,
		Live:  w,
		Clock: s.clock,
		IDs:   s.ids,
		Go:    s.runCommit,
		Post: func(fn func()) {
			s.queue.Enqueue(event{typ: eventPosted, fn: fn})
		},
		Hooks: syncer.Hooks{
			OnCommit: s.handleCommit,
			OnError:  s.report,
		},
		Logger: s.logger,
	})
	s.logger = s.logger.With("document", cfg.DocumentID, "session", s.ctl.SessionID())

	sub, err := st.Subscribe(ctx, cfg.DocumentID)
	if err != nil {
		s.ctl.Close()
		return nil, fmt.Errorf("session %s: %w", cfg.DocumentID, err)
	}
	s.sub = sub
	s.updates = sub.Updates()

	w.OnChange(func(doc content.Doc) {
		s.queue.Enqueue(event{typ: eventLocalChange, doc: doc})
	})

	s.logger.Debug("session opened")
	return s, nil
}

// SessionID returns the id tagged on this session's commits.
func (s *Session) SessionID() string {
	return s.ctl.SessionID()
}

// DocumentID returns the edited document.
func (s *Session) DocumentID() string {
	return s.cfg.DocumentID
}

// Widget returns the bound widget.
func (s *Session) Widget() editor.Widget {
	return s.widget
}

// Pending reports whether a debounced commit is scheduled.
func (s *Session) Pending() bool {
	return s.ctl.Pending()
}

// InFlight returns the number of commits sent and not yet acknowledged.
func (s *Session) InFlight() int {
	return s.ctl.InFlight()
}

// LastSent returns the content of this session's last successful commit.
func (s *Session) LastSent() content.Doc {
	return s.ctl.LastSent()
}

// Run processes events until ctx is cancelled or Close is called.
//
// ERROR HANDLING: failures are reported through the error handler and the
// loop keeps running. A broken subscription stops remote updates but local
// edits are still committed.
func (s *Session) Run(ctx context.Context) error {
	s.logger.Debug("session loop starting")

	for {
		if s.closed.Load() {
			return nil
		}
		if ev, ok := s.queue.TryDequeue(); ok {
			s.process(ev)
			continue
		}

		select {
		case <-ctx.Done():
			s.logger.Debug("session loop stopping", "reason", ctx.Err())
			return ctx.Err()
		case <-s.done:
			return nil
		case <-s.queue.Wait():
		case snap, ok := <-s.updates:
			s.receive(snap, ok)
		}
	}
}

// Drain processes every queued event and delivered snapshot without
// blocking, and returns how many it handled. It must not run concurrently
// with Run.
func (s *Session) Drain() int {
	n := 0
	for !s.closed.Load() {
		if ev, ok := s.queue.TryDequeue(); ok {
			s.process(ev)
			n++
			continue
		}
		select {
		case snap, ok := <-s.updates:
			s.receive(snap, ok)
			n++
		default:
			return n
		}
	}
	return n
}

func (s *Session) process(ev event) {
	switch ev.typ {
	case eventLocalChange:
		s.ctl.OnLocalChange(ev.doc)
	case eventPosted:
		ev.fn()
	}
}

func (s *Session) receive(snap store.Snapshot, ok bool) {
	if ok {
		snap, ok = s.latest(snap)
		s.handleSnapshot(snap)
	}
	if !ok {
		s.updates = nil
		s.subscriptionEnded()
	}
}

// latest skips snapshots that are already superseded by newer ones waiting
// on the subscription. Deciding on a stale one could apply another writer's
// older value and then drop this session's newer echo.
func (s *Session) latest(snap store.Snapshot) (store.Snapshot, bool) {
	for {
		select {
		case next, ok := <-s.updates:
			if !ok {
				return snap, false
			}
			s.logger.Debug("snapshot superseded", "writer", snap.WriterID, "by", next.WriterID)
			snap = next
		default:
			return snap, true
		}
	}
}

func (s *Session) handleSnapshot(snap store.Snapshot) {
	decision := s.ctl.OnRemoteSnapshot(snap)
	restore := RestoreNone

	switch decision {
	case syncer.DecisionAccept:
		tier, err := s.applyRemoteUpdate(snap)
		if err != nil {
			s.report(syncer.NewApplyError(s.cfg.DocumentID, s.SessionID(), snap.WriterID, err))
			return
		}
		restore = tier
		s.applied.Add(1)
	case syncer.DecisionDiscardEcho:
		s.echoes.Add(1)
	case syncer.DecisionDiscardInSync:
		s.inSync.Add(1)
	}

	s.logger.Debug("remote snapshot",
		"writer", snap.WriterID,
		"decision", decision.String(),
		"restore", restore.String(),
	)
	s.emit(Event{
		Kind:      EventRemote,
		WriterID:  snap.WriterID,
		Content:   snap.Content,
		WriteTime: snap.WriteTime,
		Decision:  decision,
		Restore:   restore,
	})
}

// applyRemoteUpdate replaces the widget content with snap without emitting a
// change event, then restores the selection captured beforehand.
func (s *Session) applyRemoteUpdate(snap store.Snapshot) (RestoreTier, error) {
	prev := s.widget.Selection()

	if err := s.widget.SetContent(snap.Content, false); err != nil {
		return RestoreNone, fmt.Errorf("set content: %w", err)
	}

	tier, err := restoreSelection(s.widget, prev, content.Size(snap.Content))
	if err != nil {
		// Recovered locally: the replace stands with whatever selection the
		// widget kept.
		restoreErr := syncer.NewSelectionRestoreError(s.cfg.DocumentID, s.SessionID(), prev.From, prev.To, err)
		s.logger.Debug("selection restore failed", "error", restoreErr)
	}
	return tier, nil
}

func (s *Session) handleCommit(snap store.Snapshot) {
	s.commits.Add(1)
	s.emit(Event{
		Kind:      EventCommit,
		WriterID:  snap.WriterID,
		Content:   snap.Content,
		WriteTime: snap.WriteTime,
	})
}

func (s *Session) subscriptionEnded() {
	err := s.sub.Err()
	if err == nil || s.closed.Load() {
		s.logger.Debug("subscription closed")
		return
	}
	s.report(syncer.NewSubscriptionError(s.cfg.DocumentID, s.SessionID(), err))
}

// report counts and forwards a failure. Failures are scoped to this session.
func (s *Session) report(err error) {
	switch {
	case syncer.IsCommitFailure(err):
		s.commitFailures.Add(1)
	case syncer.IsApplyFailure(err):
		s.applyFailures.Add(1)
	case syncer.IsSubscriptionFailure(err):
		s.subscriptionFailures.Add(1)
	}
	s.logger.Warn("sync error", "error", err)

	if s.onError != nil {
		s.onError(err)
	}
	s.emit(Event{Kind: EventError, Err: err})
}

func (s *Session) emit(ev Event) {
	if s.onEvent == nil {
		return
	}
	ev.Seq = s.seq.Next()
	ev.SessionID = s.SessionID()
	ev.DocumentID = s.cfg.DocumentID
	s.onEvent(ev)
}

// Stats returns a snapshot of the session counters.
func (s *Session) Stats() Stats {
	return Stats{
		Commits:              s.commits.Load(),
		Applied:              s.applied.Load(),
		Echoes:               s.echoes.Load(),
		InSync:               s.inSync.Load(),
		CommitFailures:       s.commitFailures.Load(),
		ApplyFailures:        s.applyFailures.Load(),
		SubscriptionFailures: s.subscriptionFailures.Load(),
	}
}

// Close tears the session down: the pending commit is cancelled, the
// subscription closed, the loop stopped and the widget released. A commit
// already sent still reaches the store but its outcome is not reported.
// Safe to call more than once.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.ctl.Close()
		s.queue.Close()
		err = s.sub.Close()
		close(s.done)
		if d, ok := s.widget.(editor.Destroyer); ok {
			d.Destroy()
		}
		s.logger.Debug("session closed")
	})
	return err
}

// Done is closed when the session is closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}
