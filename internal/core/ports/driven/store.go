package driven

import (
	"context"
	"encoding/json"

	"github.com/taskdeck/ingestd/internal/core/domain"
)

// DedupStore is the durable record of already-ingested items.
type DedupStore interface {
	// IsDuplicate reports whether a (sourceID, itemID) pair has been
	// recorded before.
	IsDuplicate(ctx context.Context, sourceID, itemID string) (bool, error)

	// RecordItem records an ingested item. The insert is idempotent: a
	// duplicate record is a no-op, not an error.
	RecordItem(ctx context.Context, rec domain.DedupRecord) error

	// GetRecord returns the dedup record for an item, or ErrNotFound.
	GetRecord(ctx context.Context, sourceID, itemID string) (*domain.DedupRecord, error)
}

// AdapterStateStore persists the opaque per-source state blob. The blob
// is replaced wholesale after each successful cycle.
type AdapterStateStore interface {
	// GetState returns the stored blob, or nil when none exists.
	GetState(ctx context.Context, sourceID string) (json.RawMessage, error)

	// SetState replaces the stored blob.
	SetState(ctx context.Context, sourceID string, state json.RawMessage) error
}

// PollLogStore is the append-only poll history.
type PollLogStore interface {
	// LogPoll appends one poll attempt.
	LogPoll(ctx context.Context, entry domain.PollLogEntry) error

	// RecentPolls returns the newest entries for a source, newest first.
	RecentPolls(ctx context.Context, sourceID string, limit int) ([]domain.PollLogEntry, error)

	// PrunePolls keeps only the newest keep entries per source.
	PrunePolls(ctx context.Context, keep int) error
}

// ThreadStore tracks parent items that may receive replies.
type ThreadStore interface {
	// RegisterThread records a threadable parent item. Registering the
	// same (sourceID, parentItemID) twice is a no-op.
	RegisterThread(ctx context.Context, rec domain.ThreadRecord) error

	// ActiveThreads returns the active threads for a source.
	ActiveThreads(ctx context.Context, sourceID string) ([]domain.ThreadRecord, error)

	// UpdateThreadCursor advances a thread's reply cursor and count.
	UpdateThreadCursor(ctx context.Context, sourceID, parentItemID, cursor string, replies int) error

	// DeactivateThread marks a thread inactive. The record is kept.
	DeactivateThread(ctx context.Context, sourceID, parentItemID string) error
}

// StateStore aggregates the four persisted concerns backed by one
// embedded store.
type StateStore interface {
	DedupStore
	AdapterStateStore
	PollLogStore
	ThreadStore
}
