package content

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf16"
)

// Doc is a document in its JSON wire form, as produced by the editor widget
// and persisted by the store. It is opaque to the sync core.
type Doc []byte

// MarshalJSON embeds the document verbatim.
func (d Doc) MarshalJSON() ([]byte, error) {
	if len(d) == 0 {
		return []byte("null"), nil
	}
	return d, nil
}

// UnmarshalJSON keeps a copy of the raw document.
func (d *Doc) UnmarshalJSON(data []byte) error {
	if string(bytes.TrimSpace(data)) == "null" {
		*d = nil
		return nil
	}
	*d = append((*d)[:0], data...)
	return nil
}

// IsZero reports whether the document is absent.
func (d Doc) IsZero() bool {
	return len(bytes.TrimSpace(d)) == 0
}

// String returns the raw JSON.
func (d Doc) String() string {
	return string(d)
}

// Clone returns an independent copy.
func (d Doc) Clone() Doc {
	if d == nil {
		return nil
	}
	return append(Doc(nil), d...)
}

// Equal reports structural equality: both documents are normalized through
// Canonical before comparison. Documents that fail to parse fall back to a
// byte comparison.
func Equal(a, b Doc) bool {
	ca, errA := Canonical(a)
	cb, errB := Canonical(b)
	if errA != nil || errB != nil {
		return bytes.Equal(a, b)
	}
	return bytes.Equal(ca, cb)
}

// FromValue encodes any JSON-encodable value as a Doc.
func FromValue(v any) (Doc, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return Doc(data), nil
}

// Node is a ProseMirror-style document node.
type Node struct {
	Type    string         `json:"type"`
	Attrs   map[string]any `json:"attrs,omitempty"`
	Content []Node         `json:"content,omitempty"`
	Text    string         `json:"text,omitempty"`
	Marks   []Mark         `json:"marks,omitempty"`
}

// Mark is inline formatting attached to a text node.
type Mark struct {
	Type  string         `json:"type"`
	Attrs map[string]any `json:"attrs,omitempty"`
}

// leafTypes are node types without content that still occupy one position.
var leafTypes = map[string]bool{
	"hardBreak":      true,
	"horizontalRule": true,
	"image":          true,
}

// Parse decodes a Doc into a Node tree.
func Parse(d Doc) (Node, error) {
	var n Node
	if d.IsZero() {
		return n, fmt.Errorf("parse document: empty")
	}
	if err := json.Unmarshal(d, &n); err != nil {
		return n, fmt.Errorf("parse document: %w", err)
	}
	return n, nil
}

// Encode serializes a Node tree.
func (n Node) Encode() Doc {
	// Node holds only JSON-safe types; attrs come from decoded JSON or callers
	// building literal maps.
	data, err := json.Marshal(n)
	if err != nil {
		panic(fmt.Sprintf("content: encode node: %v", err))
	}
	return Doc(data)
}

// FromText builds a doc with one paragraph per line. Empty lines become
// empty paragraphs, so FromText("") is a doc holding one empty paragraph,
// which is what a freshly created editor reports.
func FromText(text string) Doc {
	lines := strings.Split(text, "\n")
	doc := Node{Type: "doc", Content: make([]Node, 0, len(lines))}
	for _, line := range lines {
		p := Node{Type: "paragraph"}
		if line != "" {
			p.Content = []Node{{Type: "text", Text: line}}
		}
		doc.Content = append(doc.Content, p)
	}
	return doc.Encode()
}

// PlainText flattens the tree: text nodes are concatenated, block children of
// the root are joined by newlines and hard breaks become newlines.
func (n Node) PlainText() string {
	if n.Type == "doc" {
		parts := make([]string, len(n.Content))
		for i, child := range n.Content {
			parts[i] = child.PlainText()
		}
		return strings.Join(parts, "\n")
	}
	switch n.Type {
	case "text":
		return n.Text
	case "hardBreak":
		return "\n"
	}
	var b strings.Builder
	for _, child := range n.Content {
		b.WriteString(child.PlainText())
	}
	return b.String()
}

// NodeSize is the number of positions the node occupies in its parent,
// following ProseMirror: text counts UTF-16 units, leaves count one, and
// other nodes count their content plus an opening and closing token.
func (n Node) NodeSize() int {
	if n.Type == "text" {
		return len(utf16.Encode([]rune(n.Text)))
	}
	if leafTypes[n.Type] && len(n.Content) == 0 {
		return 1
	}
	return 2 + n.ContentSize()
}

// ContentSize is the size of the node's content.
func (n Node) ContentSize() int {
	size := 0
	for _, child := range n.Content {
		size += child.NodeSize()
	}
	return size
}

// Text returns the plain text of a Doc, or "" when it does not parse.
func Text(d Doc) string {
	n, err := Parse(d)
	if err != nil {
		return ""
	}
	return n.PlainText()
}

// Size returns the content size of a Doc, the largest valid position.
// Unparseable documents have size 0.
func Size(d Doc) int {
	n, err := Parse(d)
	if err != nil {
		return 0
	}
	return n.ContentSize()
}
