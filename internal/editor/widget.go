// Package editor defines the editing widget a session drives and a headless
// implementation of it.
package editor

import (
	"errors"
	"fmt"

	"github.com/roach88/docsync/internal/content"
)

var (
	// ErrInvalidSelection is returned by SetSelection for a range outside
	// the current document.
	ErrInvalidSelection = errors.New("invalid selection")

	// ErrInvalidPosition is returned by edits at a position that does not
	// accept text.
	ErrInvalidPosition = errors.New("invalid position")

	// ErrDestroyed is returned by operations on a released widget.
	ErrDestroyed = errors.New("editor destroyed")
)

// Selection is a range of document positions. From == To is a collapsed
// cursor.
type Selection struct {
	From int `json:"from" yaml:"from"`
	To   int `json:"to" yaml:"to"`
}

// Cursor returns a collapsed selection at pos.
func Cursor(pos int) Selection {
	return Selection{From: pos, To: pos}
}

// Empty reports whether the selection is a collapsed cursor.
func (s Selection) Empty() bool {
	return s.From == s.To
}

// Valid reports whether the selection fits a document of the given size.
func (s Selection) Valid(size int) bool {
	return s.From >= 0 && s.From <= s.To && s.To <= size
}

func (s Selection) String() string {
	return fmt.Sprintf("[%d,%d]", s.From, s.To)
}

// Widget is the editing component a session binds to.
type Widget interface {
	// Content returns the current document.
	Content() content.Doc

	// SetContent replaces the document. Change listeners run only when
	// emitChange is true.
	SetContent(doc content.Doc, emitChange bool) error

	// Selection returns the current selection.
	Selection() Selection

	// SetSelection moves the selection, or returns ErrInvalidSelection when
	// the range does not fit the current document.
	SetSelection(sel Selection) error

	// OnChange registers fn to run after every local edit with the new
	// content.
	OnChange(fn func(content.Doc))
}

// Destroyer is implemented by widgets that hold resources to release when
// their session ends.
type Destroyer interface {
	Destroy()
}
