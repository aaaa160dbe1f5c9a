package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/roach88/docsync/internal/content"
)

// Redis is a networked Store.
//
// Layout, with the default "docsync:" prefix:
//
//	docsync:doc:<id>           hash {content, updated_by, updated_at}
//	docsync:docs               set of document ids
//	docsync:doc:<id>:updates   pub/sub channel carrying JSON snapshots
//
// Commit writes the hash, the id set and publishes in one MULTI/EXEC, so the
// channel carries commits in the order Redis applied them.
type Redis struct {
	client *redis.Client
	prefix string
	feeds  *Broker
}

// NewRedis connects to the Redis server at redisURL.
func NewRedis(ctx context.Context, redisURL string) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisWithClient(client), nil
}

// NewRedisWithClient creates a store from an existing Redis client.
func NewRedisWithClient(client *redis.Client) *Redis {
	return &Redis{
		client: client,
		prefix: "docsync:",
		feeds:  NewBroker(),
	}
}

func (r *Redis) docKey(documentID string) string {
	return r.prefix + "doc:" + documentID
}

func (r *Redis) channel(documentID string) string {
	return r.prefix + "doc:" + documentID + ":updates"
}

func (r *Redis) idsKey() string {
	return r.prefix + "docs"
}

// Commit upserts the document and publishes the snapshot.
func (r *Redis) Commit(ctx context.Context, snap Snapshot) error {
	if err := validate(snap); err != nil {
		return err
	}
	snap = normalize(snap)

	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, r.docKey(snap.DocumentID),
		"content", string(snap.Content),
		"updated_by", snap.WriterID,
		"updated_at", snap.WriteTime.Format(time.RFC3339Nano),
	)
	pipe.SAdd(ctx, r.idsKey(), snap.DocumentID)
	pipe.Publish(ctx, r.channel(snap.DocumentID), payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("commit %s: %w", snap.DocumentID, err)
	}
	return nil
}

// Get returns the committed snapshot for documentID.
func (r *Redis) Get(ctx context.Context, documentID string) (Snapshot, error) {
	fields, err := r.client.HGetAll(ctx, r.docKey(documentID)).Result()
	if err != nil {
		return Snapshot{}, fmt.Errorf("get %s: %w", documentID, err)
	}
	if len(fields) == 0 {
		return Snapshot{}, ErrNotFound
	}

	writeTime, err := time.Parse(time.RFC3339Nano, fields["updated_at"])
	if err != nil {
		return Snapshot{}, fmt.Errorf("get %s: parse updated_at: %w", documentID, err)
	}

	return Snapshot{
		DocumentID: documentID,
		Content:    content.Doc(fields["content"]),
		WriterID:   fields["updated_by"],
		WriteTime:  writeTime,
	}, nil
}

// Subscribe listens on the document's channel. The subscription is
// confirmed before the current state is read, so no commit falls between the
// initial snapshot and the stream. A commit landing in that window may be
// delivered twice; consumers compare content and ignore the repeat.
func (r *Redis) Subscribe(ctx context.Context, documentID string) (Subscription, error) {
	ps := r.client.Subscribe(ctx, r.channel(documentID))
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", documentID, err)
	}

	current, err := r.Get(ctx, documentID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", documentID, err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	f := NewFeed(func() error {
		cancel()
		return ps.Close()
	})
	if err == nil {
		f.Push(current)
	}
	if err := r.feeds.Track(documentID, f); err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", documentID, err)
	}

	go r.forward(loopCtx, ps, f)
	return f, nil
}

// forward relays channel messages into the feed until either side ends.
func (r *Redis) forward(ctx context.Context, ps *redis.PubSub, f *Feed) {
	for {
		msg, err := ps.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			f.Finish(fmt.Errorf("redis subscription: %w", err))
			return
		}

		var snap Snapshot
		if err := json.Unmarshal([]byte(msg.Payload), &snap); err != nil {
			f.Finish(fmt.Errorf("decode snapshot: %w", err))
			return
		}
		if !f.Push(snap) {
			return
		}
	}
}

// ListDocumentIDs returns all document ids in ascending order.
func (r *Redis) ListDocumentIDs(ctx context.Context) ([]string, error) {
	ids, err := r.client.SMembers(ctx, r.idsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

// Ping checks if Redis is reachable.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close ends live subscriptions with ErrClosed, then closes the connection
// pool.
func (r *Redis) Close() error {
	r.feeds.Close()
	return r.client.Close()
}
