// Package session binds a sync controller to a live editor widget and a
// store subscription for one document.
//
// ARCHITECTURE:
//
// Single-Writer Event Loop:
// Local edits, debounce timer firings and pushed snapshots are all handled
// on one goroutine (Run, or Drain in tests). Nothing else touches the
// controller's decisions or the widget's content, so a snapshot is never
// evaluated while a commit from the same session is half done.
//
// Event Flow:
//  1. The widget fires a change; the listener enqueues it.
//  2. The loop hands it to the controller, which (re)arms the debounce timer.
//  3. The timer callback is enqueued; the loop runs the commit.
//  4. The store pushes the snapshot to every subscriber, this one included.
//  5. The loop asks the controller for a decision and, on accept, replaces
//     the widget content and restores the selection.
//
// Remote replacements never emit widget change events, so an applied
// snapshot cannot loop back into a commit.
package session
