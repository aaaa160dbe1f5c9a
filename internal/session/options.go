package session

import (
	"log/slog"

	"github.com/roach88/docsync/internal/clock"
	"github.com/roach88/docsync/internal/syncer"
)

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		s.logger = l
	}
}

// WithClock sets the clock driving the debounce timer. Default: clock.System.
func WithClock(c clock.Clock) Option {
	return func(s *Session) {
		s.clock = c
	}
}

// WithIDGenerator sets the session id source. Default: syncer.UUIDv7Generator.
func WithIDGenerator(g syncer.IDGenerator) Option {
	return func(s *Session) {
		s.ids = g
	}
}

// WithCommitRunner sets how store commits are started off the session loop.
// Default: one goroutine per commit. Tests pass a testutil.Runner to decide
// when commits land.
func WithCommitRunner(run func(func())) Option {
	return func(s *Session) {
		s.runCommit = run
	}
}

// WithErrorHandler registers fn to receive commit, apply and subscription
// failures as *syncer.SyncError. It runs on the session loop.
func WithErrorHandler(fn func(error)) Option {
	return func(s *Session) {
		s.onError = fn
	}
}

// WithEventHook registers fn to observe every commit, remote decision and
// reported error. It runs on the session loop.
func WithEventHook(fn func(Event)) Option {
	return func(s *Session) {
		s.onEvent = fn
	}
}
