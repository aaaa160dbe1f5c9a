package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroker_InitialSnapshotFirst(t *testing.T) {
	b := NewBroker()
	initial := snapshot("doc-1", "v0", "init", 0)

	sub, err := b.Subscribe("doc-1", &initial)
	require.NoError(t, err)

	b.Publish(snapshot("doc-1", "v1", "w", 1))

	assert.Equal(t, "init", next(t, sub).WriterID)
	assert.Equal(t, "w", next(t, sub).WriterID)
}

func TestBroker_SlowSubscriberIsDropped(t *testing.T) {
	b := NewBroker()
	slow, err := b.Subscribe("doc-1", nil)
	require.NoError(t, err)

	for i := 0; i < SubscriptionBuffer; i++ {
		b.Publish(snapshot("doc-1", "x", "w", 0))
	}
	assert.Equal(t, 1, b.Subscribers("doc-1"))

	// One more than the buffer holds ends the subscription.
	b.Publish(snapshot("doc-1", "overflow", "w", 0))
	assert.Equal(t, 0, b.Subscribers("doc-1"))
	assert.ErrorIs(t, slow.Err(), ErrSlowSubscriber)

	count := 0
	for range slow.Updates() {
		count++
	}
	assert.Equal(t, SubscriptionBuffer, count)
}

func TestBroker_ClosedSubscribersArePruned(t *testing.T) {
	b := NewBroker()
	a, err := b.Subscribe("doc-1", nil)
	require.NoError(t, err)
	_, err = b.Subscribe("doc-1", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, b.Subscribers("doc-1"))

	require.NoError(t, a.Close())
	assert.Equal(t, 1, b.Subscribers("doc-1"))
}

func TestBroker_Close(t *testing.T) {
	b := NewBroker()
	sub, err := b.Subscribe("doc-1", nil)
	require.NoError(t, err)

	b.Close()
	waitClosed(t, sub)
	assert.ErrorIs(t, sub.Err(), ErrClosed)

	_, err = b.Subscribe("doc-1", nil)
	assert.ErrorIs(t, err, ErrClosed)

	// Publishing after close is a no-op.
	b.Publish(snapshot("doc-1", "x", "w", 0))
	b.Close()
}

func TestBroker_TrackEndsFeedOnClose(t *testing.T) {
	b := NewBroker()
	f := NewFeed(nil)
	require.NoError(t, b.Track("doc-1", f))
	assert.Equal(t, 1, b.Subscribers("doc-1"))

	b.Close()
	waitClosed(t, f)
	assert.ErrorIs(t, f.Err(), ErrClosed)

	late := NewFeed(nil)
	assert.ErrorIs(t, b.Track("doc-1", late), ErrClosed)
	waitClosed(t, late)
	assert.ErrorIs(t, late.Err(), ErrClosed)
}
