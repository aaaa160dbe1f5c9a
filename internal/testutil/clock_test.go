package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFakeClock_StartsAtEpoch(t *testing.T) {
	c := NewFakeClock(time.Time{})
	assert.Equal(t, Epoch, c.Now())

	start := time.Date(2030, 6, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, start, NewFakeClock(start).Now())
}

func TestFakeClock_FiresOnlyWhenDue(t *testing.T) {
	c := NewFakeClock(time.Time{})
	fired := 0
	c.AfterFunc(300*time.Millisecond, func() { fired++ })

	c.Advance(299 * time.Millisecond)
	assert.Equal(t, 0, fired)
	assert.Equal(t, 1, c.Pending())

	c.Advance(time.Millisecond)
	assert.Equal(t, 1, fired)
	assert.Equal(t, 0, c.Pending())

	c.Advance(time.Second)
	assert.Equal(t, 1, fired, "timers are one-shot")
}

func TestFakeClock_DeadlineOrder(t *testing.T) {
	c := NewFakeClock(time.Time{})
	var order []string
	c.AfterFunc(20*time.Millisecond, func() { order = append(order, "b") })
	c.AfterFunc(10*time.Millisecond, func() { order = append(order, "a") })
	c.AfterFunc(20*time.Millisecond, func() { order = append(order, "c") })

	c.Advance(time.Second)
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestFakeClock_NowInsideCallbackIsDeadline(t *testing.T) {
	c := NewFakeClock(time.Time{})
	var at time.Time
	c.AfterFunc(50*time.Millisecond, func() { at = c.Now() })

	c.Advance(time.Second)
	assert.Equal(t, Epoch.Add(50*time.Millisecond), at)
	assert.Equal(t, Epoch.Add(time.Second), c.Now())
}

func TestFakeClock_CallbackMaySchedule(t *testing.T) {
	c := NewFakeClock(time.Time{})
	fired := 0
	c.AfterFunc(10*time.Millisecond, func() {
		fired++
		c.AfterFunc(10*time.Millisecond, func() { fired++ })
	})

	c.Advance(15 * time.Millisecond)
	assert.Equal(t, 1, fired)
	c.Advance(5 * time.Millisecond)
	assert.Equal(t, 2, fired)
}

func TestFakeClock_Stop(t *testing.T) {
	c := NewFakeClock(time.Time{})
	timer := c.AfterFunc(10*time.Millisecond, func() { t.Error("stopped timer fired") })

	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop())
	c.Advance(time.Second)

	fired := c.AfterFunc(time.Millisecond, func() {})
	c.Advance(time.Millisecond)
	assert.False(t, fired.Stop(), "Stop after firing reports false")
}

func TestFakeClock_ThreadSafe(t *testing.T) {
	c := NewFakeClock(time.Time{})
	var wg sync.WaitGroup
	var mu sync.Mutex
	fired := 0

	wg.Add(10)
	for i := 0; i < 10; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.AfterFunc(time.Millisecond, func() {
					mu.Lock()
					fired++
					mu.Unlock()
				})
			}
		}()
	}
	wg.Wait()

	c.Advance(time.Millisecond)
	assert.Equal(t, 1000, fired)
}
