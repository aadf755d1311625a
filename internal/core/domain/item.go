package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Attachment is one binary referenced by an item.
type Attachment struct {
	// URL is the remote location of the attachment.
	URL string `json:"url"`

	// Name is the adapter-supplied filename, if any.
	Name string `json:"name,omitempty"`

	// LocalPath is set once the attachment has been downloaded.
	LocalPath string `json:"localPath,omitempty"`

	// Error is a placeholder recorded when the download was given up on.
	Error string `json:"error,omitempty"`
}

// Origin records where an item came from, for two-way reply routing.
type Origin struct {
	// AdapterType is the plugin type that produced the item.
	AdapterType string `json:"adapterType,omitempty"`

	// Channel is the adapter-specific channel or feed identifier.
	Channel string `json:"channel,omitempty"`

	// Sender identifies the author where the adapter knows one.
	Sender string `json:"sender,omitempty"`

	// ThreadID is the adapter-native thread identifier, if threaded.
	ThreadID string `json:"threadId,omitempty"`
}

// IngestItem is one unit of new content produced by an adapter.
type IngestItem struct {
	// ID is the adapter-stable, source-scoped identifier.
	ID string `json:"id"`

	// Hash fingerprints the item content.
	Hash string `json:"hash"`

	Title       string `json:"title"`
	Description string `json:"description,omitempty"`

	// Attachments are fetched before task creation.
	Attachments []Attachment `json:"attachments,omitempty"`

	// Fields holds typed values matching the plugin's declared itemFields.
	Fields map[string]any `json:"fields,omitempty"`

	// ThreadTS groups near-simultaneous messages from one thread.
	ThreadTS string `json:"threadTs,omitempty"`

	// Origin carries routing metadata for reply tracking.
	Origin Origin `json:"origin,omitempty"`
}

// ContentHash fingerprints arbitrary content the way adapters stamp
// item hashes.
func ContentHash(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// Reply is one threaded follow-up to a previously ingested item.
type Reply struct {
	// ParentItemID is the item the reply belongs to.
	ParentItemID string `json:"parentItemId"`

	Author string    `json:"author,omitempty"`
	Body   string    `json:"body"`
	At     time.Time `json:"at,omitempty"`

	// Cursor is the adapter's position after this reply; the thread
	// cursor advances to the last successfully appended reply.
	Cursor string `json:"cursor,omitempty"`

	Attachments []Attachment `json:"attachments,omitempty"`
}

// NewTask is the payload handed to the task tracker for one item
// (possibly merged from several buffered items).
type NewTask struct {
	Project     string       `json:"project"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	SourceID    string       `json:"sourceId"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Origin      Origin       `json:"origin,omitempty"`
}
