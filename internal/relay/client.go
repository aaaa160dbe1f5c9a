package relay

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roach88/docsync/internal/store"
)

// Client is a store.Store backed by a relay server.
//
// Requests are multiplexed over one connection. If the connection drops,
// pending requests fail and every subscription ends with an error; the
// client does not reconnect.
type Client struct {
	ws     *websocket.Conn
	logger *slog.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]chan Message
	subs    map[uint64]*store.Feed
	err     error // set once the connection is gone
	closing bool

	done chan struct{}
}

// Dial connects to a relay at url (ws:// or wss://). A nil logger uses
// slog.Default.
func Dial(ctx context.Context, url string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial relay %s: %w", url, err)
	}

	c := &Client{
		ws:      ws,
		logger:  logger,
		pending: make(map[uint64]chan Message),
		subs:    make(map[uint64]*store.Feed),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Commit sends snap and waits for the server to store it.
func (c *Client) Commit(ctx context.Context, snap store.Snapshot) error {
	_, err := c.request(ctx, Message{Type: TypeCommit, Snapshot: &snap})
	if err != nil {
		return fmt.Errorf("commit %s: %w", snap.DocumentID, err)
	}
	return nil
}

// Get fetches the committed snapshot of documentID.
func (c *Client) Get(ctx context.Context, documentID string) (store.Snapshot, error) {
	resp, err := c.request(ctx, Message{Type: TypeGet, DocumentID: documentID})
	if err != nil {
		return store.Snapshot{}, err
	}
	if resp.Snapshot == nil {
		return store.Snapshot{}, store.ErrNotFound
	}
	return *resp.Snapshot, nil
}

// ListDocumentIDs returns all document ids in ascending order.
func (c *Client) ListDocumentIDs(ctx context.Context) ([]string, error) {
	resp, err := c.request(ctx, Message{Type: TypeList})
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	if resp.IDs == nil {
		return []string{}, nil
	}
	return resp.IDs, nil
}

// Subscribe opens a live stream of documentID on the server.
func (c *Client) Subscribe(ctx context.Context, documentID string) (store.Subscription, error) {
	id, ch, err := c.register()
	if err != nil {
		return nil, err
	}

	// The feed is routable before the request goes out, so no snapshot
	// arriving right after the ack is lost.
	feed := store.NewFeed(func() error {
		c.mu.Lock()
		_, live := c.subs[id]
		delete(c.subs, id)
		c.mu.Unlock()
		if live {
			return c.write(Message{Type: TypeUnsubscribe, Sub: id})
		}
		return nil
	})
	c.mu.Lock()
	c.subs[id] = feed
	c.mu.Unlock()

	if _, err := c.roundTrip(ctx, id, ch, Message{Type: TypeSubscribe, ID: id, DocumentID: documentID}); err != nil {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
		feed.Finish(err)
		return nil, fmt.Errorf("subscribe %s: %w", documentID, err)
	}
	return feed, nil
}

// Close disconnects. Subscriptions end with store.ErrClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return nil
	}
	c.closing = true
	c.mu.Unlock()

	c.writeMu.Lock()
	c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.writeMu.Unlock()

	err := c.ws.Close()
	<-c.done
	return err
}

func (c *Client) request(ctx context.Context, m Message) (Message, error) {
	id, ch, err := c.register()
	if err != nil {
		return Message{}, err
	}
	m.ID = id
	return c.roundTrip(ctx, id, ch, m)
}

// register allocates a request id and its reply slot.
func (c *Client) register() (uint64, chan Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		return 0, nil, c.err
	}
	if c.closing {
		return 0, nil, store.ErrClosed
	}
	c.nextID++
	ch := make(chan Message, 1)
	c.pending[c.nextID] = ch
	return c.nextID, ch, nil
}

func (c *Client) roundTrip(ctx context.Context, id uint64, ch chan Message, m Message) (Message, error) {
	if err := c.write(m); err != nil {
		c.forget(id)
		return Message{}, err
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return Message{}, c.connErr()
		}
		if err := errorOf(resp); err != nil {
			return Message{}, err
		}
		return resp, nil
	case <-ctx.Done():
		c.forget(id)
		return Message{}, ctx.Err()
	}
}

func (c *Client) forget(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, id)
}

func (c *Client) write(m Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.ws.WriteJSON(m); err != nil {
		return fmt.Errorf("relay write: %w", err)
	}
	return nil
}

func (c *Client) connErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	return store.ErrClosed
}

func (c *Client) readLoop() {
	defer close(c.done)

	for {
		var m Message
		if err := c.ws.ReadJSON(&m); err != nil {
			c.fail(err)
			return
		}

		switch m.Type {
		case TypeAck:
			c.mu.Lock()
			ch, ok := c.pending[m.ID]
			delete(c.pending, m.ID)
			c.mu.Unlock()
			if ok {
				ch <- m
			}

		case TypeSnapshot:
			c.mu.Lock()
			feed, ok := c.subs[m.Sub]
			c.mu.Unlock()
			if ok && m.Snapshot != nil {
				// A full feed ends itself and unsubscribes.
				feed.Push(*m.Snapshot)
			}

		case TypeEnd:
			c.mu.Lock()
			feed, ok := c.subs[m.Sub]
			delete(c.subs, m.Sub)
			c.mu.Unlock()
			if ok {
				feed.Finish(errorOf(m))
			}

		default:
			c.logger.Debug("ignoring relay frame", "type", m.Type)
		}
	}
}

// fail ends every pending request and subscription after the connection
// is gone.
func (c *Client) fail(readErr error) {
	c.mu.Lock()
	err := store.ErrClosed
	if !c.closing {
		err = fmt.Errorf("relay connection lost: %w", readErr)
	}
	c.err = err
	pending := c.pending
	subs := c.subs
	c.pending = make(map[uint64]chan Message)
	c.subs = make(map[uint64]*store.Feed)
	c.mu.Unlock()

	for _, ch := range pending {
		close(ch)
	}
	for _, feed := range subs {
		feed.Finish(err)
	}
}
