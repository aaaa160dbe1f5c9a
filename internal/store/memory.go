package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Memory is an in-process Store.
//
// Commits are applied and published under one lock, so every subscriber sees
// the same commit order. FailCommits injects commit failures for tests.
type Memory struct {
	mu      sync.Mutex
	docs    map[string]Snapshot
	broker  *Broker
	failErr error
	commits int
	closed  bool
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		docs:   make(map[string]Snapshot),
		broker: NewBroker(),
	}
}

// Commit upserts the snapshot and pushes it to all subscribers.
func (m *Memory) Commit(ctx context.Context, snap Snapshot) error {
	if err := validate(snap); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("commit %s: %w", snap.DocumentID, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if m.failErr != nil {
		return fmt.Errorf("commit %s: %w", snap.DocumentID, m.failErr)
	}

	snap = normalize(snap)
	m.docs[snap.DocumentID] = snap
	m.commits++
	m.broker.Publish(snap)
	return nil
}

// Get returns the committed snapshot for documentID.
func (m *Memory) Get(ctx context.Context, documentID string) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return Snapshot{}, ErrClosed
	}
	snap, ok := m.docs[documentID]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return snap, nil
}

// Subscribe streams committed snapshots of documentID, starting with the
// current one.
func (m *Memory) Subscribe(ctx context.Context, documentID string) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}
	var initial *Snapshot
	if snap, ok := m.docs[documentID]; ok {
		initial = &snap
	}
	return m.broker.Subscribe(documentID, initial)
}

// ListDocumentIDs returns all document ids in ascending order.
func (m *Memory) ListDocumentIDs(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}
	ids := make([]string, 0, len(m.docs))
	for id := range m.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// FailCommits makes every following Commit fail with err until it is called
// again with nil.
func (m *Memory) FailCommits(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failErr = err
}

// CommitCount returns the number of successful commits.
func (m *Memory) CommitCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commits
}

// Subscribers counts live subscriptions on documentID.
func (m *Memory) Subscribers(documentID string) int {
	return m.broker.Subscribers(documentID)
}

// Close ends all subscriptions with ErrClosed.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	m.broker.Close()
	return nil
}
