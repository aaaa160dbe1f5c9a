package session

import (
	"time"

	"github.com/roach88/docsync/internal/content"
	"github.com/roach88/docsync/internal/syncer"
)

// EventKind categorizes session events.
type EventKind string

const (
	// EventCommit is emitted after this session committed.
	EventCommit EventKind = "commit"
	// EventRemote is emitted for every pushed snapshot with its decision.
	EventRemote EventKind = "remote"
	// EventError is emitted for reported failures.
	EventError EventKind = "error"
)

// Event describes one thing a session did.
type Event struct {
	// Seq numbers events per session, starting at 1.
	Seq        int64
	Kind       EventKind
	SessionID  string
	DocumentID string

	// Snapshot fields, for commit and remote events.
	WriterID  string
	Content   content.Doc
	WriteTime time.Time

	// Decision and Restore are set for remote events. Restore is
	// RestoreNone unless the snapshot was applied.
	Decision syncer.Decision
	Restore  RestoreTier

	// Err is set for error events.
	Err error
}

// Stats are cumulative counters for one session.
type Stats struct {
	Commits              int64 `json:"commits"`
	Applied              int64 `json:"applied"`
	Echoes               int64 `json:"echoes"`
	InSync               int64 `json:"in_sync"`
	CommitFailures       int64 `json:"commit_failures"`
	ApplyFailures        int64 `json:"apply_failures"`
	SubscriptionFailures int64 `json:"subscription_failures"`
}
