package testutil

import "sync"

// Runner queues work instead of starting goroutines, so a test decides when
// a commit round trip happens relative to the session loop.
//
// Thread-safety: Go may be called from any goroutine. RunPending is meant
// for the test goroutine.
type Runner struct {
	mu      sync.Mutex
	pending []func()
}

// NewRunner creates an empty runner.
func NewRunner() *Runner {
	return &Runner{}
}

// Go queues fn. It has the signature of a goroutine launcher.
func (r *Runner) Go(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = append(r.pending, fn)
}

// Pending returns the number of queued functions.
func (r *Runner) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// RunPending runs queued functions in FIFO order until none is left, and
// returns how many ran.
func (r *Runner) RunPending() int {
	n := 0
	for {
		r.mu.Lock()
		if len(r.pending) == 0 {
			r.mu.Unlock()
			return n
		}
		fn := r.pending[0]
		r.pending[0] = nil
		r.pending = r.pending[1:]
		r.mu.Unlock()

		fn()
		n++
	}
}
