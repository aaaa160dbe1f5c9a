// Package clock abstracts wall time and timers so debounce behavior can be
// driven deterministically in tests.
package clock

import (
	"sync/atomic"
	"time"
)

// Timer is a scheduled callback that can be cancelled.
type Timer interface {
	// Stop prevents the callback from firing. It returns false if the
	// callback already fired or the timer was already stopped.
	Stop() bool
}

// Clock supplies the current time and one-shot timers.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// System is the real clock backed by package time.
type System struct{}

// Now returns the current wall time.
func (System) Now() time.Time {
	return time.Now()
}

// AfterFunc runs f on its own goroutine after d.
func (System) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Seq is a monotonic logical counter used to number events processed by a
// session. It never goes backwards and is independent of wall time.
//
// Safe for concurrent use.
type Seq struct {
	n atomic.Int64
}

// NewSeq creates a counter starting at 0. The first Next returns 1.
func NewSeq() *Seq {
	return &Seq{}
}

// Next increments and returns the counter.
func (s *Seq) Next() int64 {
	return s.n.Add(1)
}

// Current returns the last value handed out.
func (s *Seq) Current() int64 {
	return s.n.Load()
}
