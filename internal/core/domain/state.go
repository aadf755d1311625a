package domain

import "time"

// DedupRecord is the durable record that a source item produced a task.
// A (SourceID, ItemID) pair is recorded at most once; the record is the
// single source of truth for "has this item been ingested".
type DedupRecord struct {
	SourceID   string    `json:"sourceId"`
	ItemID     string    `json:"itemId"`
	ItemHash   string    `json:"itemHash"`
	TaskID     string    `json:"taskId"`
	Origin     Origin    `json:"origin,omitempty"`
	IngestedAt time.Time `json:"ingestedAt"`
}

// PollLogEntry is one append-only record of a poll attempt.
type PollLogEntry struct {
	SourceID string        `json:"sourceId"`
	Found    int           `json:"found"`
	New      int           `json:"new"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
	At       time.Time     `json:"at"`
}

// ThreadRecord tracks a parent item that may receive replies.
// Threads are deactivated explicitly, never deleted.
type ThreadRecord struct {
	SourceID     string    `json:"sourceId"`
	ParentItemID string    `json:"parentItemId"`
	TaskID       string    `json:"taskId"`
	ReplyCursor  string    `json:"replyCursor,omitempty"`
	ReplyCount   int       `json:"replyCount"`
	Active       bool      `json:"active"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// ConnectionStatus is the lifecycle state of a realtime connection.
type ConnectionStatus string

const (
	ConnConnecting    ConnectionStatus = "connecting"
	ConnConnected     ConnectionStatus = "connected"
	ConnReconnecting  ConnectionStatus = "reconnecting"
	ConnDisconnecting ConnectionStatus = "disconnecting"
	ConnDisconnected  ConnectionStatus = "disconnected"
)

// ConnectionMeta is the connection bookkeeping persisted alongside the
// adapter's own cursor data in the per-source state blob.
type ConnectionMeta struct {
	Status        ConnectionStatus `json:"status"`
	ConnectedAt   time.Time        `json:"connectedAt,omitempty"`
	LastMessageAt time.Time        `json:"lastMessageAt,omitempty"`
	Reconnects    int              `json:"reconnects"`
}
