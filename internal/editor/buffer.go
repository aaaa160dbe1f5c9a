package editor

import (
	"fmt"
	"strings"
	"sync"
	"unicode/utf16"

	"github.com/roach88/docsync/internal/content"
)

// textblocks hold inline content directly.
var textblocks = map[string]bool{
	"paragraph": true,
	"heading":   true,
	"codeBlock": true,
}

// Buffer is a headless Widget holding a document tree, used by the CLI and
// tests in place of a rendered editor.
//
// Replacing the content clamps the selection to the new document, so the
// selection is always valid between calls.
//
// Thread-safety: All methods are safe for concurrent use. Change listeners run
// on the editing goroutine without the buffer's lock held.
type Buffer struct {
	mu        sync.Mutex
	doc       content.Doc
	size      int
	sel       Selection
	listeners []func(content.Doc)
	destroyed bool
}

// NewBuffer creates a buffer showing doc. A zero doc starts with one empty
// paragraph, like a freshly mounted editor.
func NewBuffer(doc content.Doc) *Buffer {
	if doc.IsZero() {
		doc = content.FromText("")
	}
	doc = doc.Clone()
	return &Buffer{doc: doc, size: content.Size(doc)}
}

// Content returns a copy of the current document.
func (b *Buffer) Content() content.Doc {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.doc.Clone()
}

// SetContent replaces the document.
func (b *Buffer) SetContent(doc content.Doc, emitChange bool) error {
	if _, err := content.Parse(doc); err != nil {
		return err
	}
	return b.replace(doc.Clone(), emitChange)
}

func (b *Buffer) replace(doc content.Doc, emitChange bool) error {
	b.mu.Lock()
	if b.destroyed {
		b.mu.Unlock()
		return ErrDestroyed
	}
	b.doc = doc
	b.size = content.Size(doc)
	b.sel = Selection{From: min(b.sel.From, b.size), To: min(b.sel.To, b.size)}
	listeners := b.listeners
	b.mu.Unlock()

	if emitChange {
		for _, fn := range listeners {
			fn(doc.Clone())
		}
	}
	return nil
}

// Selection returns the current selection.
func (b *Buffer) Selection() Selection {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sel
}

// SetSelection moves the selection.
func (b *Buffer) SetSelection(sel Selection) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.destroyed {
		return ErrDestroyed
	}
	if !sel.Valid(b.size) {
		return fmt.Errorf("%w: %s outside [0,%d]", ErrInvalidSelection, sel, b.size)
	}
	b.sel = sel
	return nil
}

// OnChange registers a change listener.
func (b *Buffer) OnChange(fn func(content.Doc)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroyed {
		return
	}
	b.listeners = append(b.listeners, fn)
}

// SetText replaces the document with one paragraph per line, as a local edit.
func (b *Buffer) SetText(text string) error {
	return b.replace(content.FromText(text), true)
}

// Insert types text at pos as a local edit and leaves the cursor after it.
// text must not contain newlines.
func (b *Buffer) Insert(pos int, text string) error {
	if strings.ContainsAny(text, "\r\n") {
		return fmt.Errorf("%w: insert text spans lines", ErrInvalidPosition)
	}

	b.mu.Lock()
	if b.destroyed {
		b.mu.Unlock()
		return ErrDestroyed
	}
	root, err := content.Parse(b.doc)
	if err != nil {
		b.mu.Unlock()
		return err
	}
	if !insertAt(&root, pos, text) {
		b.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrInvalidPosition, pos)
	}
	doc := root.Encode()
	b.doc = doc
	b.size = content.Size(doc)
	b.sel = Cursor(pos + len(utf16.Encode([]rune(text))))
	listeners := b.listeners
	b.mu.Unlock()

	for _, fn := range listeners {
		fn(doc.Clone())
	}
	return nil
}

// Text returns the document as plain text.
func (b *Buffer) Text() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return content.Text(b.doc)
}

// Size returns the largest valid position.
func (b *Buffer) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Destroy releases the buffer. Listeners are dropped and further edits fail.
func (b *Buffer) Destroy() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.destroyed = true
	b.listeners = nil
}

// Destroyed reports whether Destroy was called.
func (b *Buffer) Destroyed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.destroyed
}

// insertAt inserts text at rel, a position relative to the start of n's
// content. It reports whether some descendant accepted the text.
func insertAt(n *content.Node, rel int, text string) bool {
	inline := textblocks[n.Type]
	off := 0
	for i := range n.Content {
		child := &n.Content[i]
		size := child.NodeSize()

		switch {
		case child.Type == "text":
			if rel >= off && rel <= off+size {
				return spliceText(child, rel-off, text)
			}
		case size == 1:
			// Leaf: text may go right before it.
			if inline && rel == off {
				n.Content = append(n.Content[:i], append([]content.Node{{Type: "text", Text: text}}, n.Content[i:]...)...)
				return true
			}
		default:
			if rel >= off+1 && rel <= off+1+child.ContentSize() {
				return insertAt(child, rel-off-1, text)
			}
		}
		off += size
	}

	if inline && rel == off {
		n.Content = append(n.Content, content.Node{Type: "text", Text: text})
		return true
	}
	return false
}

// spliceText inserts text at a UTF-16 offset inside a text node.
func spliceText(n *content.Node, offset int, text string) bool {
	units := utf16.Encode([]rune(n.Text))
	if offset > 0 && offset < len(units) && utf16.IsSurrogate(rune(units[offset])) && utf16.IsSurrogate(rune(units[offset-1])) {
		// Inside a surrogate pair.
		return false
	}
	ins := utf16.Encode([]rune(text))
	out := make([]uint16, 0, len(units)+len(ins))
	out = append(out, units[:offset]...)
	out = append(out, ins...)
	out = append(out, units[offset:]...)
	n.Text = string(utf16.Decode(out))
	return true
}
