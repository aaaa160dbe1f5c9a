package relay

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/docsync/internal/content"
	"github.com/roach88/docsync/internal/store"
)

const wait = 2 * time.Second

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type relayFixture struct {
	mem *store.Memory
	srv *Server
	ts  *httptest.Server
	url string
}

func newRelay(t *testing.T) *relayFixture {
	t.Helper()
	mem := store.NewMemory()
	srv := NewServer(mem, quiet)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
		mem.Close()
	})
	return &relayFixture{
		mem: mem,
		srv: srv,
		ts:  ts,
		url: "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws",
	}
}

func (f *relayFixture) dial(t *testing.T) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()
	c, err := Dial(ctx, f.url, quiet)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func snap(docID, text, writer string) store.Snapshot {
	return store.Snapshot{
		DocumentID: docID,
		Content:    content.FromText(text),
		WriterID:   writer,
		WriteTime:  time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func next(t *testing.T, sub store.Subscription) store.Snapshot {
	t.Helper()
	select {
	case s, ok := <-sub.Updates():
		require.True(t, ok, "subscription ended: %v", sub.Err())
		return s
	case <-time.After(wait):
		t.Fatal("timed out waiting for snapshot")
		return store.Snapshot{}
	}
}

func waitClosed(t *testing.T, sub store.Subscription) {
	t.Helper()
	deadline := time.After(wait)
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

func TestClient_CommitGetList(t *testing.T) {
	ctx := context.Background()
	f := newRelay(t)
	c := f.dial(t)

	require.NoError(t, c.Commit(ctx, snap("doc-b", "bee", "session-A")))
	require.NoError(t, c.Commit(ctx, snap("doc-a", "ay", "session-A")))

	got, err := c.Get(ctx, "doc-b")
	require.NoError(t, err)
	assert.Equal(t, "bee", content.Text(got.Content))
	assert.Equal(t, "session-A", got.WriterID)

	// Visible in the server's store too.
	local, err := f.mem.Get(ctx, "doc-a")
	require.NoError(t, err)
	assert.Equal(t, "ay", content.Text(local.Content))

	ids, err := c.ListDocumentIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"doc-a", "doc-b"}, ids)
}

func TestClient_EmptyList(t *testing.T) {
	c := newRelay(t).dial(t)
	ids, err := c.ListDocumentIDs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestClient_ErrorsMapToSentinels(t *testing.T) {
	ctx := context.Background()
	f := newRelay(t)
	c := f.dial(t)

	_, err := c.Get(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	err = c.Commit(ctx, store.Snapshot{DocumentID: "doc-1"})
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, CodeInternal, remote.Code)
	assert.Contains(t, remote.Message, "empty content")
}

func TestClient_SubscribeFanOut(t *testing.T) {
	ctx := context.Background()
	f := newRelay(t)
	require.NoError(t, f.mem.Commit(ctx, snap("doc-1", "v0", "server-init")))

	a := f.dial(t)
	b := f.dial(t)

	subA, err := a.Subscribe(ctx, "doc-1")
	require.NoError(t, err)
	defer subA.Close()
	subB, err := b.Subscribe(ctx, "doc-1")
	require.NoError(t, err)
	defer subB.Close()

	assert.Equal(t, "v0", content.Text(next(t, subA).Content))
	assert.Equal(t, "v0", content.Text(next(t, subB).Content))

	require.NoError(t, a.Commit(ctx, snap("doc-1", "v1", "session-A")))

	for _, sub := range []store.Subscription{subA, subB} {
		got := next(t, sub)
		assert.Equal(t, "v1", content.Text(got.Content))
		assert.Equal(t, "session-A", got.WriterID, "the writer receives its own echo too")
	}
}

func TestClient_Unsubscribe(t *testing.T) {
	ctx := context.Background()
	f := newRelay(t)
	c := f.dial(t)

	sub, err := c.Subscribe(ctx, "doc-1")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return f.mem.Subscribers("doc-1") == 1 }, wait, 5*time.Millisecond)

	require.NoError(t, sub.Close())
	waitClosed(t, sub)
	assert.NoError(t, sub.Err())
	assert.Eventually(t, func() bool { return f.mem.Subscribers("doc-1") == 0 }, wait, 5*time.Millisecond)

	// The connection stays usable.
	require.NoError(t, c.Commit(ctx, snap("doc-1", "after", "w")))
}

func TestClient_StoreClosedEndsSubscription(t *testing.T) {
	f := newRelay(t)
	c := f.dial(t)

	sub, err := c.Subscribe(context.Background(), "doc-1")
	require.NoError(t, err)

	require.NoError(t, f.mem.Close())
	waitClosed(t, sub)
	assert.ErrorIs(t, sub.Err(), store.ErrClosed)
}

func TestClient_ServerGoneFailsEverything(t *testing.T) {
	ctx := context.Background()
	f := newRelay(t)
	c := f.dial(t)

	sub, err := c.Subscribe(ctx, "doc-1")
	require.NoError(t, err)

	f.srv.Close()
	waitClosed(t, sub)
	assert.Error(t, sub.Err())
	assert.NotErrorIs(t, sub.Err(), store.ErrClosed, "an unexpected disconnect is not a deliberate close")

	assert.Error(t, c.Commit(ctx, snap("doc-1", "x", "w")))
}

func TestClient_CloseEndsSubscriptions(t *testing.T) {
	ctx := context.Background()
	c := newRelay(t).dial(t)

	sub, err := c.Subscribe(ctx, "doc-1")
	require.NoError(t, err)

	require.NoError(t, c.Close())
	waitClosed(t, sub)
	assert.ErrorIs(t, sub.Err(), store.ErrClosed)
	assert.ErrorIs(t, c.Commit(ctx, snap("doc-1", "x", "w")), store.ErrClosed)
	assert.NoError(t, c.Close())
}

func TestClient_RequestHonorsContext(t *testing.T) {
	c := newRelay(t).dial(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.ListDocumentIDs(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestServer_UnknownMessageType(t *testing.T) {
	f := newRelay(t)
	ws, _, err := websocket.DefaultDialer.Dial(f.url, nil)
	require.NoError(t, err)
	defer ws.Close()

	require.NoError(t, ws.WriteJSON(Message{Type: "shout", ID: 7}))
	var resp Message
	require.NoError(t, ws.ReadJSON(&resp))
	assert.Equal(t, TypeAck, resp.Type)
	assert.Equal(t, uint64(7), resp.ID)
	assert.Equal(t, CodeBadRequest, resp.Code)
}

func TestServer_Healthz(t *testing.T) {
	f := newRelay(t)
	f.dial(t)
	require.Eventually(t, func() bool { return f.srv.Connections() == 1 }, wait, 5*time.Millisecond)

	resp, err := http.Get(f.ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"ok","connections":1}`, string(body))
}

func TestDial_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := Dial(ctx, "ws://127.0.0.1:1/ws", quiet)
	assert.Error(t, err)
}

var _ store.Store = (*Client)(nil)
