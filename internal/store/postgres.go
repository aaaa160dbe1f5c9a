package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/roach88/docsync/internal/content"
)

const postgresSchema = `
	CREATE TABLE IF NOT EXISTS documents (
		id         TEXT PRIMARY KEY,
		content    JSONB NOT NULL,
		updated_by TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_documents_updated_at ON documents(updated_at);
	CREATE INDEX IF NOT EXISTS idx_documents_updated_by ON documents(updated_by);
`

// notifyChannel carries the id of each committed document.
const notifyChannel = "docsync_documents"

// Postgres is a networked Store on PostgreSQL.
//
// Content is stored as JSONB, which reorders keys and drops whitespace; the
// sync core compares canonical forms so this is not seen as a change.
// Commit and pg_notify share a transaction, so notifications arrive in
// commit order. Each notification carries only the document id and the
// subscriber reads the row, which may already hold a later commit.
type Postgres struct {
	pool  *pgxpool.Pool
	feeds *Broker
}

// OpenPostgres connects to databaseURL and ensures the schema exists.
func OpenPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &Postgres{pool: pool, feeds: NewBroker()}, nil
}

// Commit upserts the snapshot and notifies listeners.
func (p *Postgres) Commit(ctx context.Context, snap Snapshot) error {
	if err := validate(snap); err != nil {
		return err
	}
	snap = normalize(snap)

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("commit %s: begin tx: %w", snap.DocumentID, err)
	}
	defer tx.Rollback(ctx) // No-op if committed

	if _, err := tx.Exec(ctx, `
		INSERT INTO documents (id, content, updated_by, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			updated_by = EXCLUDED.updated_by,
			updated_at = EXCLUDED.updated_at
	`, snap.DocumentID, string(snap.Content), snap.WriterID, snap.WriteTime); err != nil {
		return fmt.Errorf("commit %s: %w", snap.DocumentID, err)
	}

	if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, snap.DocumentID); err != nil {
		return fmt.Errorf("commit %s: notify: %w", snap.DocumentID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit %s: %w", snap.DocumentID, err)
	}
	return nil
}

// Get returns the committed snapshot for documentID.
func (p *Postgres) Get(ctx context.Context, documentID string) (Snapshot, error) {
	return getPostgres(ctx, p.pool, documentID)
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getPostgres(ctx context.Context, q rowQuerier, documentID string) (Snapshot, error) {
	var (
		raw       []byte
		writer    string
		writeTime time.Time
	)
	err := q.QueryRow(ctx, `
		SELECT content, updated_by, updated_at FROM documents WHERE id = $1
	`, documentID).Scan(&raw, &writer, &writeTime)
	if errors.Is(err, pgx.ErrNoRows) {
		return Snapshot{}, ErrNotFound
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("get %s: %w", documentID, err)
	}
	return Snapshot{
		DocumentID: documentID,
		Content:    content.Doc(raw),
		WriterID:   writer,
		WriteTime:  writeTime.UTC(),
	}, nil
}

// Subscribe holds a pooled connection in LISTEN mode for the lifetime of the
// subscription.
func (p *Postgres) Subscribe(ctx context.Context, documentID string) (Subscription, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: acquire: %w", documentID, err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{notifyChannel}.Sanitize()); err != nil {
		conn.Release()
		return nil, fmt.Errorf("subscribe %s: listen: %w", documentID, err)
	}

	current, err := getPostgres(ctx, conn, documentID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		conn.Release()
		return nil, fmt.Errorf("subscribe %s: %w", documentID, err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	f := NewFeed(func() error {
		cancel()
		return nil
	})
	if err == nil {
		f.Push(current)
	}

	go p.listen(loopCtx, conn, documentID, f)
	if err := p.feeds.Track(documentID, f); err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", documentID, err)
	}
	return f, nil
}

// listen waits for notifications until the feed ends, then returns the
// connection to the pool.
func (p *Postgres) listen(ctx context.Context, conn *pgxpool.Conn, documentID string, f *Feed) {
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := conn.Exec(cleanupCtx, "UNLISTEN *"); err != nil {
			// Drop the connection rather than return a listening one to the pool.
			conn.Conn().Close(cleanupCtx)
		}
		conn.Release()
	}()

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			f.Finish(fmt.Errorf("postgres subscription: %w", err))
			return
		}
		if n.Payload != documentID {
			continue
		}

		snap, err := getPostgres(ctx, conn, documentID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			f.Finish(err)
			return
		}
		if !f.Push(snap) {
			return
		}
	}
}

// ListDocumentIDs returns all document ids in ascending order.
func (p *Postgres) ListDocumentIDs(ctx context.Context) ([]string, error) {
	rows, err := p.pool.Query(ctx, `SELECT id FROM documents ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return ids, nil
}

// Close ends live subscriptions with ErrClosed, which releases their
// listening connections, then closes the connection pool.
func (p *Postgres) Close() error {
	p.feeds.Close()
	p.pool.Close()
	return nil
}
