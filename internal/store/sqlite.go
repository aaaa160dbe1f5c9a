package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/docsync/internal/content"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (documents table only)
// 1 - Indexes on documents.updated_at and documents.updated_by
const currentSchemaVersion = 1

// SQLite is a durable Store backed by a SQLite file.
//
// Pushes to subscribers are in-process only: processes sharing one database
// file do not see each other's commits live.
type SQLite struct {
	db     *sql.DB
	mu     sync.Mutex // orders commit+publish against subscribe
	broker *Broker
}

// OpenSQLite creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//
// This function is idempotent - safe to call multiple times.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLite{db: db, broker: NewBroker()}, nil
}

// Commit upserts the snapshot and pushes it to local subscribers.
func (s *SQLite) Commit(ctx context.Context, snap Snapshot) error {
	if err := validate(snap); err != nil {
		return err
	}
	snap = normalize(snap)

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, content, updated_by, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content = excluded.content,
			updated_by = excluded.updated_by,
			updated_at = excluded.updated_at
	`,
		snap.DocumentID,
		string(snap.Content),
		snap.WriterID,
		snap.WriteTime.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("commit %s: %w", snap.DocumentID, err)
	}

	s.broker.Publish(snap)
	return nil
}

// Get returns the committed snapshot for documentID.
func (s *SQLite) Get(ctx context.Context, documentID string) (Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT content, updated_by, updated_at FROM documents WHERE id = ?
	`, documentID)

	var raw, writer, at string
	if err := row.Scan(&raw, &writer, &at); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Snapshot{}, ErrNotFound
		}
		return Snapshot{}, fmt.Errorf("get %s: %w", documentID, err)
	}

	writeTime, err := time.Parse(time.RFC3339Nano, at)
	if err != nil {
		return Snapshot{}, fmt.Errorf("get %s: parse updated_at: %w", documentID, err)
	}

	return Snapshot{
		DocumentID: documentID,
		Content:    content.Doc(raw),
		WriterID:   writer,
		WriteTime:  writeTime,
	}, nil
}

// Subscribe streams committed snapshots of documentID, starting with the
// current one.
func (s *SQLite) Subscribe(ctx context.Context, documentID string) (Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var initial *Snapshot
	snap, err := s.Get(ctx, documentID)
	switch {
	case err == nil:
		initial = &snap
	case !errors.Is(err, ErrNotFound):
		return nil, fmt.Errorf("subscribe %s: %w", documentID, err)
	}
	return s.broker.Subscribe(documentID, initial)
}

// ListDocumentIDs returns all document ids in ascending order.
func (s *SQLite) ListDocumentIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM documents ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("list documents: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return ids, nil
}

// Close ends all subscriptions and closes the database.
func (s *SQLite) Close() error {
	s.broker.Close()
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
// This function is idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 indexes the metadata columns listed by the document browser.
func migrateToV1(db *sql.DB) error {
	stmts := []string{
		`CREATE INDEX IF NOT EXISTS idx_documents_updated_at ON documents(updated_at)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_updated_by ON documents(updated_by)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate to v1: %w", err)
		}
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *SQLite) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
