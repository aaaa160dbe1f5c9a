// Package syncer decides when a session persists its local edits and whether
// a snapshot pushed by the store should replace the editor's content.
//
// Local edits are debounced on the trailing edge: each change cancels the
// pending commit and schedules a new one, so a burst of edits produces one
// commit carrying the final content. Every commit is tagged with the
// session's id and the content is remembered as last-sent.
//
// Remote snapshots are checked in order:
//  1. Equal to the editor's live content: discard, already in sync.
//  2. Written by this session and equal to last-sent: discard, echo.
//  3. Otherwise: accept.
//
// Equality is structural (see content.Equal). The store decides write order;
// concurrent writers are resolved last-writer-wins with no merge.
//
// A Controller is driven from one goroutine. Timer callbacks are handed to
// Deps.Post so the commit runs on the owner's loop, never on a timer
// goroutine.
package syncer
