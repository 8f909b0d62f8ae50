package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Document is the immutable text shared read-only by every specialist in a run.
type Document struct {
	text string
}

// NewDocument validates text against the input preconditions.
// Whitespace-only text is refused, as is text larger than maxBytes.
// A maxBytes of zero or less applies DefaultMaxDocumentBytes.
func NewDocument(text string, maxBytes int) (Document, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxDocumentBytes
	}
	if strings.TrimSpace(text) == "" {
		return Document{}, ErrInputPrecondition(CodeEmptyDocument,
			"document is empty or contains only whitespace")
	}
	if len(text) > maxBytes {
		return Document{}, ErrInputPrecondition(CodeDocumentTooLarge,
			fmt.Sprintf("document is %d bytes, limit is %d", len(text), maxBytes)).
			WithDetail("size", len(text)).
			WithDetail("limit", maxBytes)
	}
	return Document{text: text}, nil
}

// Text returns the document content.
func (d Document) Text() string { return d.text }

// Len returns the document size in bytes.
func (d Document) Len() int { return len(d.text) }

// IsZero reports whether the document was never built through NewDocument.
func (d Document) IsZero() bool { return d.text == "" }

// Digest returns the hex sha256 of the content. Run records store this instead of the text.
func (d Document) Digest() string {
	sum := sha256.Sum256([]byte(d.text))
	return hex.EncodeToString(sum[:])
}
