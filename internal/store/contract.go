package store

import (
	"context"
	"errors"
	"time"

	"github.com/roach88/docsync/internal/content"
)

// SubscriptionBuffer is how many undelivered snapshots a subscription may
// hold before it is dropped with ErrSlowSubscriber.
const SubscriptionBuffer = 64

var (
	// ErrNotFound is returned by Get for a document that was never committed.
	ErrNotFound = errors.New("document not found")
	// ErrClosed is returned by operations on a closed store, and reported by
	// subscriptions ended because their store closed.
	ErrClosed = errors.New("store closed")
	// ErrSlowSubscriber ends a subscription whose consumer fell behind.
	ErrSlowSubscriber = errors.New("subscriber too slow")
)

// Snapshot is one committed state of a document.
type Snapshot struct {
	DocumentID string      `json:"document_id"`
	Content    content.Doc `json:"content"`
	WriterID   string      `json:"writer_id"`
	WriteTime  time.Time   `json:"write_time"`
}

// Committer persists snapshots.
type Committer interface {
	Commit(ctx context.Context, snap Snapshot) error
}

// Store is a document store with live subscriptions.
type Store interface {
	Committer

	// Get returns the committed snapshot of a document, or ErrNotFound.
	Get(ctx context.Context, documentID string) (Snapshot, error)

	// Subscribe opens a live stream of committed snapshots for one document.
	Subscribe(ctx context.Context, documentID string) (Subscription, error)

	// ListDocumentIDs returns every known document id in ascending order.
	ListDocumentIDs(ctx context.Context) ([]string, error)

	Close() error
}

// Subscription is a live stream of committed snapshots.
type Subscription interface {
	// Updates yields snapshots in commit order. It is closed when the
	// subscription ends.
	Updates() <-chan Snapshot

	// Err explains why Updates was closed. It is nil while the subscription
	// is live and after a deliberate Close.
	Err() error

	Close() error
}

func validate(snap Snapshot) error {
	if snap.DocumentID == "" {
		return errors.New("commit: empty document id")
	}
	if snap.Content.IsZero() {
		return errors.New("commit: empty content")
	}
	return nil
}

// normalize returns a copy safe to retain and share with subscribers.
func normalize(snap Snapshot) Snapshot {
	snap.Content = snap.Content.Clone()
	snap.WriteTime = snap.WriteTime.UTC()
	return snap
}
