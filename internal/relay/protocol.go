// Package relay exposes a store.Store over WebSocket so sessions in other
// processes can share it.
//
// Every frame is one JSON Message. Requests carry an id that the server
// echoes in its ack. A subscription is named by the id of the request that
// opened it; snapshots and the final end frame carry it in Sub.
//
//	client → server: commit, get, list, subscribe, unsubscribe
//	server → client: ack, snapshot, end
package relay

import (
	"errors"

	"github.com/roach88/docsync/internal/store"
)

// MessageType discriminates frames.
type MessageType string

const (
	TypeCommit      MessageType = "commit"
	TypeGet         MessageType = "get"
	TypeList        MessageType = "list"
	TypeSubscribe   MessageType = "subscribe"
	TypeUnsubscribe MessageType = "unsubscribe"

	TypeAck      MessageType = "ack"
	TypeSnapshot MessageType = "snapshot"
	TypeEnd      MessageType = "end"
)

// Message is the single frame layout used in both directions.
type Message struct {
	Type       MessageType     `json:"type"`
	ID         uint64          `json:"id,omitempty"`
	Sub        uint64          `json:"sub,omitempty"`
	DocumentID string          `json:"document_id,omitempty"`
	Snapshot   *store.Snapshot `json:"snapshot,omitempty"`
	IDs        []string        `json:"ids,omitempty"`
	Code       string          `json:"code,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// Error codes carried in Message.Code.
const (
	CodeNotFound       = "not_found"
	CodeClosed         = "closed"
	CodeSlowSubscriber = "slow_subscriber"
	CodeBadRequest     = "bad_request"
	CodeInternal       = "internal"
)

// RemoteError is a failure reported by the server that has no store
// sentinel.
type RemoteError struct {
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	return "relay: " + e.Code + ": " + e.Message
}

// withError fills the error fields of m from err.
func withError(m Message, err error) Message {
	if err == nil {
		return m
	}
	m.Error = err.Error()
	switch {
	case errors.Is(err, store.ErrNotFound):
		m.Code = CodeNotFound
	case errors.Is(err, store.ErrClosed):
		m.Code = CodeClosed
	case errors.Is(err, store.ErrSlowSubscriber):
		m.Code = CodeSlowSubscriber
	default:
		m.Code = CodeInternal
	}
	return m
}

// errorOf turns the error fields of m back into an error, mapping codes to
// store sentinels.
func errorOf(m Message) error {
	if m.Code == "" && m.Error == "" {
		return nil
	}
	switch m.Code {
	case CodeNotFound:
		return store.ErrNotFound
	case CodeClosed:
		return store.ErrClosed
	case CodeSlowSubscriber:
		return store.ErrSlowSubscriber
	}
	return &RemoteError{Code: m.Code, Message: m.Error}
}
