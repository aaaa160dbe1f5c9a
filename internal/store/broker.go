package store

import "sync"

// Broker fans committed snapshots out to in-process subscribers.
//
// Drivers call Subscribe and Publish while holding their own commit lock so
// the initial snapshot and later publishes reach each subscriber in commit
// order with no gap.
type Broker struct {
	mu     sync.Mutex
	subs   map[string][]*Feed
	closed bool
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[string][]*Feed)}
}

// Subscribe registers a subscriber for documentID. When initial is non-nil
// it is delivered before anything published afterwards.
func (b *Broker) Subscribe(documentID string, initial *Snapshot) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}

	f := NewFeed(nil)
	if initial != nil {
		f.Push(*initial)
	}
	b.subs[documentID] = append(b.pruneLocked(documentID), f)
	return f, nil
}

// Track registers a feed produced elsewhere, such as a network listener, so
// that Close ends it. A feed tracked after Close is ended at once.
func (b *Broker) Track(documentID string, f *Feed) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		f.Finish(ErrClosed)
		return ErrClosed
	}
	b.subs[documentID] = append(b.pruneLocked(documentID), f)
	return nil
}

// Publish delivers snap to every live subscriber of its document.
// Subscribers that have ended are dropped.
func (b *Broker) Publish(snap Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[snap.DocumentID]
	live := subs[:0]
	for _, f := range subs {
		if f.Push(snap) {
			live = append(live, f)
		}
	}
	for i := len(live); i < len(subs); i++ {
		subs[i] = nil
	}
	if len(live) == 0 {
		delete(b.subs, snap.DocumentID)
		return
	}
	b.subs[snap.DocumentID] = live
}

// Subscribers counts live subscribers of documentID.
func (b *Broker) Subscribers(documentID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pruneLocked(documentID))
}

// Close ends every subscription with ErrClosed.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, subs := range b.subs {
		for _, f := range subs {
			f.Finish(ErrClosed)
		}
		delete(b.subs, id)
	}
}

func (b *Broker) pruneLocked(documentID string) []*Feed {
	subs := b.subs[documentID]
	live := subs[:0]
	for _, f := range subs {
		if !f.isDone() {
			live = append(live, f)
		}
	}
	for i := len(live); i < len(subs); i++ {
		subs[i] = nil
	}
	if len(live) == 0 {
		delete(b.subs, documentID)
		return nil
	}
	b.subs[documentID] = live
	return live
}
