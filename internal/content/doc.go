// Package content models the editor document that collaborating sessions
// exchange.
//
// The sync core treats a document as one atomic value: it is never diffed or
// merged. The only operation the core performs on content is structural
// comparison, and that comparison always goes through Canonical so both sides
// of the comparison share one serialization path.
//
// # Canonical form
//
// Canonical re-encodes a JSON document following RFC 8785 rules:
//   - object keys sorted by UTF-16 code units
//   - no insignificant whitespace
//   - no HTML escaping; only quote, backslash and control characters are escaped
//   - strings NFC normalized
//   - numbers normalized (2, 2.0 and 2e0 all encode as 2)
//
// Two documents are structurally equal when their canonical forms are
// byte-identical. Key order, whitespace and number spelling introduced by a
// serializer (the widget, jsonb in Postgres, a Redis round trip) therefore do
// not count as changes.
//
// # Document tree
//
// Node is the ProseMirror-style tree produced by rich-text widgets (type,
// attrs, content, text, marks). Size reports the ProseMirror content size used
// for selection bounds.
package content
