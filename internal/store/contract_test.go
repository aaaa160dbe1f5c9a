package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/docsync/internal/content"
)

const receiveTimeout = 2 * time.Second

var t0 = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

func snapshot(docID, text, writer string, offset time.Duration) Snapshot {
	return Snapshot{
		DocumentID: docID,
		Content:    content.FromText(text),
		WriterID:   writer,
		WriteTime:  t0.Add(offset),
	}
}

// next waits for the next snapshot on sub.
func next(t *testing.T, sub Subscription) Snapshot {
	t.Helper()
	select {
	case snap, ok := <-sub.Updates():
		require.True(t, ok, "subscription ended: %v", sub.Err())
		return snap
	case <-time.After(receiveTimeout):
		t.Fatal("timed out waiting for snapshot")
		return Snapshot{}
	}
}

// nextText skips snapshots whose text is not want. Networked drivers may
// redeliver the state current at subscribe time.
func nextText(t *testing.T, sub Subscription, want string) Snapshot {
	t.Helper()
	deadline := time.After(receiveTimeout)
	for {
		select {
		case snap, ok := <-sub.Updates():
			require.True(t, ok, "subscription ended: %v", sub.Err())
			if content.Text(snap.Content) == want {
				return snap
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q", want)
			return Snapshot{}
		}
	}
}

func assertNoUpdate(t *testing.T, sub Subscription, wait time.Duration) {
	t.Helper()
	select {
	case snap, ok := <-sub.Updates():
		if ok {
			t.Fatalf("unexpected snapshot %q from %s", content.Text(snap.Content), snap.WriterID)
		}
	case <-time.After(wait):
	}
}

func waitClosed(t *testing.T, sub Subscription) {
	t.Helper()
	deadline := time.After(receiveTimeout)
	for {
		select {
		case _, ok := <-sub.Updates():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("subscription still open")
		}
	}
}

// runStoreContract exercises the behavior every driver shares. Each driver
// test passes a fresh, empty store; docIDs are namespaced by the caller for
// drivers backed by shared servers.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("get missing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("commit then get", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Commit(ctx, snapshot("doc-1", "hello", "session-a", 0)))

		got, err := s.Get(ctx, "doc-1")
		require.NoError(t, err)
		assert.Equal(t, "doc-1", got.DocumentID)
		assert.Equal(t, "session-a", got.WriterID)
		assert.True(t, content.Equal(content.FromText("hello"), got.Content))
		assert.True(t, t0.Equal(got.WriteTime))
	})

	t.Run("last writer wins", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Commit(ctx, snapshot("doc-1", "first", "session-a", 0)))
		require.NoError(t, s.Commit(ctx, snapshot("doc-1", "second", "session-b", time.Second)))

		got, err := s.Get(ctx, "doc-1")
		require.NoError(t, err)
		assert.Equal(t, "second", content.Text(got.Content))
		assert.Equal(t, "session-b", got.WriterID)
	})

	t.Run("rejects invalid snapshot", func(t *testing.T) {
		s := newStore(t)
		assert.Error(t, s.Commit(ctx, Snapshot{Content: content.FromText("x")}))
		assert.Error(t, s.Commit(ctx, Snapshot{DocumentID: "doc-1"}))
	})

	t.Run("list document ids", func(t *testing.T) {
		s := newStore(t)
		for _, id := range []string{"doc-b", "doc-a", "doc-c"} {
			require.NoError(t, s.Commit(ctx, snapshot(id, id, "w", 0)))
		}
		require.NoError(t, s.Commit(ctx, snapshot("doc-a", "again", "w", time.Second)))

		ids, err := s.ListDocumentIDs(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"doc-a", "doc-b", "doc-c"}, ids)
	})

	t.Run("subscribe delivers current state first", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Commit(ctx, snapshot("doc-1", "hello", "session-a", 0)))

		sub, err := s.Subscribe(ctx, "doc-1")
		require.NoError(t, err)
		defer sub.Close()

		got := next(t, sub)
		assert.Equal(t, "hello", content.Text(got.Content))
		assert.Equal(t, "session-a", got.WriterID)
	})

	t.Run("subscribe to missing document waits for first commit", func(t *testing.T) {
		s := newStore(t)
		sub, err := s.Subscribe(ctx, "doc-1")
		require.NoError(t, err)
		defer sub.Close()

		assertNoUpdate(t, sub, 50*time.Millisecond)
		require.NoError(t, s.Commit(ctx, snapshot("doc-1", "created", "session-a", 0)))
		got := next(t, sub)
		assert.Equal(t, "created", content.Text(got.Content))
	})

	t.Run("commits fan out in order including the writer's own", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Commit(ctx, snapshot("doc-1", "v0", "init", 0)))

		subA, err := s.Subscribe(ctx, "doc-1")
		require.NoError(t, err)
		defer subA.Close()
		subB, err := s.Subscribe(ctx, "doc-1")
		require.NoError(t, err)
		defer subB.Close()

		nextText(t, subA, "v0")
		nextText(t, subB, "v0")

		require.NoError(t, s.Commit(ctx, snapshot("doc-1", "v1", "session-a", time.Second)))
		require.NoError(t, s.Commit(ctx, snapshot("doc-1", "v2", "session-b", 2*time.Second)))

		for _, sub := range []Subscription{subA, subB} {
			got := nextText(t, sub, "v1")
			assert.Equal(t, "session-a", got.WriterID)
			got = nextText(t, sub, "v2")
			assert.Equal(t, "session-b", got.WriterID)
		}
	})

	t.Run("documents are isolated", func(t *testing.T) {
		s := newStore(t)
		sub, err := s.Subscribe(ctx, "doc-1")
		require.NoError(t, err)
		defer sub.Close()

		require.NoError(t, s.Commit(ctx, snapshot("doc-2", "other", "w", 0)))
		assertNoUpdate(t, sub, 100*time.Millisecond)
	})

	t.Run("close ends the stream", func(t *testing.T) {
		s := newStore(t)
		sub, err := s.Subscribe(ctx, "doc-1")
		require.NoError(t, err)

		require.NoError(t, sub.Close())
		waitClosed(t, sub)
		assert.NoError(t, sub.Err())
		assert.NoError(t, sub.Close())

		// Commits after the subscriber left must not block or fail.
		require.NoError(t, s.Commit(ctx, snapshot("doc-1", "later", "w", 0)))
	})
}
