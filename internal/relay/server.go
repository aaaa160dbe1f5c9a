package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roach88/docsync/internal/store"
)

const (
	// sendBuffer is the number of frames queued per connection before the
	// client is considered too slow and disconnected.
	sendBuffer = 256

	writeTimeout = 10 * time.Second
)

// Server serves a store to WebSocket clients.
type Server struct {
	store    store.Store
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu     sync.Mutex
	conns  map[*conn]struct{}
	closed bool
}

// NewServer creates a server for st. A nil logger uses slog.Default.
func NewServer(st store.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store:  st,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns: make(map[*conn]struct{}),
	}
}

// Handler routes /ws to the relay and /healthz to a liveness check.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/ws", s)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"status": "ok", "connections": s.Connections()})
	})
	return mux
}

// ServeHTTP upgrades the request and serves the connection until it closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := &conn{
		srv:  s,
		ws:   ws,
		send: make(chan Message, sendBuffer),
		done: make(chan struct{}),
		subs: make(map[uint64]store.Subscription),
	}
	if !s.track(c) {
		ws.Close()
		return
	}
	defer s.untrack(c)

	s.logger.Info("client connected", "remote", r.RemoteAddr)
	c.serve(r.Context())
	s.logger.Info("client disconnected", "remote", r.RemoteAddr)
}

// Connections returns the number of connected clients.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Close disconnects every client. The store is left open.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	conns := make([]*conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.shutdown()
	}
}

func (s *Server) track(c *conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[c] = struct{}{}
	return true
}

func (s *Server) untrack(c *conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, c)
}

// conn is one client connection. The read loop handles requests in order;
// a writer goroutine owns all writes.
type conn struct {
	srv  *Server
	ws   *websocket.Conn
	send chan Message

	done     chan struct{}
	doneOnce sync.Once

	mu   sync.Mutex
	subs map[uint64]store.Subscription
}

func (c *conn) serve(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go c.writeLoop()
	defer c.shutdown()
	defer c.closeSubscriptions()

	for {
		var msg Message
		if err := c.ws.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				select {
				case <-c.done:
				default:
					c.srv.logger.Debug("read failed", "error", err)
				}
			}
			return
		}
		c.handle(ctx, msg)
	}
}

func (c *conn) handle(ctx context.Context, msg Message) {
	ack := Message{Type: TypeAck, ID: msg.ID}

	switch msg.Type {
	case TypeCommit:
		if msg.Snapshot == nil {
			ack.Code, ack.Error = CodeBadRequest, "commit without snapshot"
			break
		}
		ack = withError(ack, c.srv.store.Commit(ctx, *msg.Snapshot))

	case TypeGet:
		snap, err := c.srv.store.Get(ctx, msg.DocumentID)
		if err == nil {
			ack.Snapshot = &snap
		}
		ack = withError(ack, err)

	case TypeList:
		ids, err := c.srv.store.ListDocumentIDs(ctx)
		ack.IDs = ids
		ack = withError(ack, err)

	case TypeSubscribe:
		sub, err := c.srv.store.Subscribe(ctx, msg.DocumentID)
		if err != nil {
			ack = withError(ack, err)
			break
		}
		c.mu.Lock()
		c.subs[msg.ID] = sub
		c.mu.Unlock()
		// The ack is queued before any snapshot of this subscription.
		c.enqueue(ack)
		go c.forward(msg.ID, sub)
		return

	case TypeUnsubscribe:
		c.mu.Lock()
		sub, ok := c.subs[msg.Sub]
		delete(c.subs, msg.Sub)
		c.mu.Unlock()
		if ok {
			sub.Close()
		}
		return

	default:
		ack.Code, ack.Error = CodeBadRequest, fmt.Sprintf("unknown message type %q", msg.Type)
	}

	c.enqueue(ack)
}

// forward relays one subscription until it ends, then tells the client why.
func (c *conn) forward(id uint64, sub store.Subscription) {
	for snap := range sub.Updates() {
		if !c.enqueue(Message{Type: TypeSnapshot, Sub: id, Snapshot: &snap}) {
			sub.Close()
			return
		}
	}

	c.mu.Lock()
	delete(c.subs, id)
	c.mu.Unlock()
	c.enqueue(withError(Message{Type: TypeEnd, Sub: id}, sub.Err()))
}

// enqueue queues a frame for the writer. A client that cannot keep up is
// disconnected.
func (c *conn) enqueue(m Message) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- m:
		return true
	case <-c.done:
		return false
	default:
		c.srv.logger.Warn("client too slow, disconnecting", "remote", c.ws.RemoteAddr().String())
		c.shutdown()
		return false
	}
}

func (c *conn) writeLoop() {
	for {
		select {
		case m := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteJSON(m); err != nil {
				c.shutdown()
				return
			}
		case <-c.done:
			deadline := time.Now().Add(time.Second)
			c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			return
		}
	}
}

func (c *conn) closeSubscriptions() {
	c.mu.Lock()
	subs := c.subs
	c.subs = make(map[uint64]store.Subscription)
	c.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
}

// shutdown stops the writer and closes the socket, which ends the read loop.
func (c *conn) shutdown() {
	c.doneOnce.Do(func() {
		close(c.done)
		// Give the writer a moment to send the close frame.
		time.AfterFunc(100*time.Millisecond, func() { c.ws.Close() })
	})
}
