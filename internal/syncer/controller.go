package syncer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/docsync/internal/clock"
	"github.com/roach88/docsync/internal/content"
	"github.com/roach88/docsync/internal/store"
)

const (
	// DefaultDebounceInterval is the quiet period after the last local edit
	// before it is committed.
	DefaultDebounceInterval = 300 * time.Millisecond

	// DefaultCommitTimeout bounds one store round trip.
	DefaultCommitTimeout = 5 * time.Second
)

// Decision is the outcome of evaluating a remote snapshot.
type Decision int

const (
	// DecisionAccept means the snapshot is a genuine remote change and must
	// replace the editor's content.
	DecisionAccept Decision = iota + 1

	// DecisionDiscardInSync means the editor already shows the snapshot.
	DecisionDiscardInSync

	// DecisionDiscardEcho means the snapshot is this session's own last
	// commit coming back.
	DecisionDiscardEcho
)

// String returns the decision name used in logs and traces.
func (d Decision) String() string {
	switch d {
	case DecisionAccept:
		return "accept"
	case DecisionDiscardInSync:
		return "discard_in_sync"
	case DecisionDiscardEcho:
		return "discard_echo"
	default:
		return "unknown"
	}
}

// Accepted reports whether the snapshot must be applied.
func (d Decision) Accepted() bool {
	return d == DecisionAccept
}

// ContentSource exposes the editor's live content.
type ContentSource interface {
	Content() content.Doc
}

// Config configures a Controller.
type Config struct {
	// DocumentID is the document this controller commits to.
	DocumentID string

	// DebounceInterval is the trailing-edge quiet period.
	// Zero means DefaultDebounceInterval.
	DebounceInterval time.Duration

	// CommitTimeout bounds each commit. Zero means DefaultCommitTimeout.
	CommitTimeout time.Duration
}

// Hooks observe controller activity. Nil hooks are skipped.
type Hooks struct {
	// OnCommit is called after a successful commit.
	OnCommit func(snap store.Snapshot)

	// OnError is called with a *SyncError when a commit fails.
	OnError func(err error)
}

// Deps are the collaborators of a Controller.
type Deps struct {
	// Store receives commits. Required.
	Store store.Committer

	// Live is the editor content compared against incoming snapshots.
	// Required.
	Live ContentSource

	// Clock schedules the debounce timer. Nil means clock.System.
	Clock clock.Clock

	// IDs generates the session id. Nil means UUIDv7Generator.
	IDs IDGenerator

	// Post runs timer callbacks and commit results on the owner's loop.
	// Nil runs them on the calling goroutine.
	Post func(func())

	// Go runs a commit round trip off the owner's loop. Nil starts a
	// goroutine.
	Go func(func())

	Hooks Hooks

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Controller owns one session's synchronization state for one document.
//
// Thread-safety: all methods are safe for concurrent use, but the protocol
// assumes a single caller. Store commits run through Deps.Go and their
// outcome is applied through Deps.Post, so the owner's loop never waits on
// the store.
type Controller struct {
	cfg       Config
	deps      Deps
	sessionID string
	logger    *slog.Logger

	mu       sync.Mutex
	timer    clock.Timer
	gen      uint64 // bumped on every reschedule; stale timer firings see a mismatch
	sending  map[uint64]content.Doc
	sentGen  uint64 // generation of lastSent; older results never overwrite it
	lastSent content.Doc
	commits  int
	closed   bool
}

// New creates a Controller and generates its session id.
func New(cfg Config, deps Deps) *Controller {
	if cfg.DebounceInterval <= 0 {
		cfg.DebounceInterval = DefaultDebounceInterval
	}
	if cfg.CommitTimeout <= 0 {
		cfg.CommitTimeout = DefaultCommitTimeout
	}
	if deps.Clock == nil {
		deps.Clock = clock.System{}
	}
	if deps.IDs == nil {
		deps.IDs = UUIDv7Generator{}
	}
	if deps.Post == nil {
		deps.Post = func(f func()) { f() }
	}
	if deps.Go == nil {
		deps.Go = func(f func()) { go f() }
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	sessionID := deps.IDs.Generate()
	return &Controller{
		cfg:       cfg,
		deps:      deps,
		sessionID: sessionID,
		sending:   make(map[uint64]content.Doc),
		logger: deps.Logger.With(
			"document", cfg.DocumentID,
			"session", sessionID,
		),
	}
}

// SessionID returns the id tagged on every commit from this controller.
func (c *Controller) SessionID() string {
	return c.sessionID
}

// DocumentID returns the document this controller commits to.
func (c *Controller) DocumentID() string {
	return c.cfg.DocumentID
}

// OnLocalChange schedules doc to be committed after the debounce interval,
// replacing any commit still pending.
func (c *Controller) OnLocalChange(doc content.Doc) {
	doc = doc.Clone()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	c.gen++
	gen := c.gen
	c.timer = c.deps.Clock.AfterFunc(c.cfg.DebounceInterval, func() {
		c.deps.Post(func() { c.fire(gen, doc) })
	})
}

// fire starts committing doc if it is still the latest scheduled content.
// The round trip runs through Deps.Go; the loop is free for further edits
// and pushes until the outcome is posted back.
func (c *Controller) fire(gen uint64, doc content.Doc) {
	c.mu.Lock()
	if c.closed || gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.sending[gen] = doc
	c.mu.Unlock()

	snap := store.Snapshot{
		DocumentID: c.cfg.DocumentID,
		Content:    doc,
		WriterID:   c.sessionID,
		WriteTime:  c.deps.Clock.Now(),
	}
	c.deps.Go(func() {
		err := c.send(snap)
		c.deps.Post(func() { c.finish(gen, snap, err) })
	})
}

func (c *Controller) send(snap store.Snapshot) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.CommitTimeout)
	defer cancel()
	return c.deps.Store.Commit(ctx, snap)
}

// finish applies the outcome of a commit on the owner's loop.
func (c *Controller) finish(gen uint64, snap store.Snapshot, err error) {
	c.mu.Lock()
	delete(c.sending, gen)
	if err == nil {
		if gen > c.sentGen {
			c.sentGen = gen
			c.lastSent = snap.Content
		}
		c.commits++
	}
	c.mu.Unlock()

	if err != nil {
		syncErr := NewCommitError(c.cfg.DocumentID, c.sessionID, err)
		if c.deps.Hooks.OnError == nil {
			c.logger.Warn("commit failed", "error", err)
			return
		}
		c.deps.Hooks.OnError(syncErr)
		return
	}

	c.logger.Debug("committed", "size", content.Size(snap.Content))
	if c.deps.Hooks.OnCommit != nil {
		c.deps.Hooks.OnCommit(snap)
	}
}

// OnRemoteSnapshot decides whether snap must replace the editor's content.
// It does not touch the editor.
func (c *Controller) OnRemoteSnapshot(snap store.Snapshot) Decision {
	if content.Equal(snap.Content, c.deps.Live.Content()) {
		return DecisionDiscardInSync
	}

	if snap.WriterID == c.sessionID && c.sentByUs(snap.Content) {
		return DecisionDiscardEcho
	}
	return DecisionAccept
}

// sentByUs reports whether doc is the last committed content or a commit
// still in flight. The store may push a commit back before its result
// reaches the loop.
func (c *Controller) sentByUs(doc content.Doc) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if content.Equal(doc, c.lastSent) {
		return true
	}
	for _, sending := range c.sending {
		if content.Equal(doc, sending) {
			return true
		}
	}
	return false
}

// Pending reports whether a commit is scheduled and not yet started.
func (c *Controller) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timer != nil
}

// InFlight returns the number of commits started and not yet finished.
func (c *Controller) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sending)
}

// LastSent returns the content of the last successful commit, or nil.
func (c *Controller) LastSent() content.Doc {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSent.Clone()
}

// Commits returns the number of successful commits.
func (c *Controller) Commits() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.commits
}

// Close cancels the pending commit. No commit starts afterwards; one already
// in flight completes, but its outcome is only applied if the owner still
// runs posted callbacks.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}
