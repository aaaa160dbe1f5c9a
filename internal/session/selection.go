package session

import (
	"github.com/roach88/docsync/internal/editor"
)

// RestoreTier reports how the selection was restored after a remote replace.
type RestoreTier int

const (
	// RestoreNone means no restore was attempted.
	RestoreNone RestoreTier = iota

	// RestoreExact means the previous range fit the new document.
	RestoreExact

	// RestoreCursor means the range did not fit and the cursor was
	// collapsed at its start.
	RestoreCursor

	// RestoreEnd means the cursor was moved to the end of the document.
	RestoreEnd

	// RestoreFailed means not even the end of the document was accepted.
	RestoreFailed
)

func (t RestoreTier) String() string {
	switch t {
	case RestoreNone:
		return "none"
	case RestoreExact:
		return "exact"
	case RestoreCursor:
		return "cursor"
	case RestoreEnd:
		return "end"
	case RestoreFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// restoreSelection puts back prev after a content replace, falling back to a
// cursor at prev.From and then to a cursor at end. Positions are not remapped
// for edits upstream of the selection.
func restoreSelection(w editor.Widget, prev editor.Selection, end int) (RestoreTier, error) {
	if err := w.SetSelection(prev); err == nil {
		return RestoreExact, nil
	}
	if err := w.SetSelection(editor.Cursor(prev.From)); err == nil {
		return RestoreCursor, nil
	}
	if err := w.SetSelection(editor.Cursor(end)); err != nil {
		return RestoreFailed, err
	}
	return RestoreEnd, nil
}
