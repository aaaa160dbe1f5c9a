package store

import "sync"

// Feed is the channel-backed Subscription shared by all drivers and the
// relay client.
//
// Sends never block: a full buffer ends the feed with ErrSlowSubscriber.
// Push and Finish are serialized by mu, so a send can never race the close
// of the channel.
type Feed struct {
	mu   sync.Mutex
	ch   chan Snapshot
	done bool
	err  error

	// stop releases driver resources. It runs once, outside mu.
	stop func() error
}

// NewFeed creates a feed. stop, if non-nil, releases the producer's
// resources when the feed ends for any reason.
func NewFeed(stop func() error) *Feed {
	return &Feed{
		ch:   make(chan Snapshot, SubscriptionBuffer),
		stop: stop,
	}
}

func (f *Feed) Updates() <-chan Snapshot {
	return f.ch
}

func (f *Feed) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// Close ends the feed deliberately.
func (f *Feed) Close() error {
	return f.Finish(nil)
}

// Push delivers snap. It returns false once the feed has ended, including
// when this push overflowed it.
func (f *Feed) Push(snap Snapshot) bool {
	f.mu.Lock()
	if f.done {
		f.mu.Unlock()
		return false
	}
	select {
	case f.ch <- snap:
		f.mu.Unlock()
		return true
	default:
	}
	f.mu.Unlock()
	f.Finish(ErrSlowSubscriber)
	return false
}

func (f *Feed) isDone() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.done
}

// Finish ends the feed with err. Only the first call has any effect.
func (f *Feed) Finish(err error) error {
	f.mu.Lock()
	if f.done {
		f.mu.Unlock()
		return nil
	}
	f.done = true
	f.err = err
	close(f.ch)
	f.mu.Unlock()

	if f.stop != nil {
		return f.stop()
	}
	return nil
}
