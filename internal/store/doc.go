// Package store defines the document store contract consumed by editing
// sessions and provides its drivers.
//
// A store keeps one committed Snapshot per document id and pushes every
// committed snapshot to all subscribers of that id, the writer included.
// Ordering across writers is decided by the store alone: whichever commit
// the store applies last wins, and subscribers observe commits in that order.
//
// # Contract
//
//   - Commit is an upsert. The first commit creates the document; later
//     commits replace content, writer and write time.
//   - Subscribe delivers the current snapshot first (when the document
//     exists), then every later commit, in commit order.
//   - A broken stream closes Updates; Err reports the cause. Err is nil after
//     a deliberate Close. Nothing resubscribes automatically.
//   - A subscriber more than SubscriptionBuffer snapshots behind is dropped
//     with ErrSlowSubscriber.
//
// # Drivers
//
//   - Memory: in-process, for tests and demos; supports failure injection.
//   - SQLite: durable single-process store (WAL mode, busy_timeout=5000,
//     schema versioned through PRAGMA user_version). Push is in-process.
//   - Redis: hash per document, id set, pub/sub channel per document;
//     commit and publish run in one MULTI/EXEC.
//   - Postgres: table upsert plus pg_notify inside one transaction; each
//     subscription holds a LISTEN connection.
//
// The relay package adds a WebSocket client implementing Store.
package store
