package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/taskdeck/ingestd/internal/core/domain"
	"github.com/taskdeck/ingestd/internal/core/ports/driven"
)

// dedupStore implements driven.DedupStore.
type dedupStore struct {
	store *Store
}

var _ driven.DedupStore = (*dedupStore)(nil)

// IsDuplicate reports whether the (sourceID, itemID) pair has been
// recorded. "Already ingested" is a pure existence check.
func (d dedupStore) IsDuplicate(ctx context.Context, sourceID, itemID string) (bool, error) {
	var one int
	err := d.store.db.QueryRowContext(ctx, `
		SELECT 1 FROM ingested_items WHERE source_id = ? AND item_id = ?
	`, sourceID, itemID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking duplicate: %w", err)
	}
	return true, nil
}

// RecordItem inserts the dedup record. The insert is idempotent: a
// pair already recorded stays untouched and no error is returned.
func (d dedupStore) RecordItem(ctx context.Context, rec domain.DedupRecord) error {
	if rec.SourceID == "" || rec.ItemID == "" {
		return domain.ErrInvalidInput
	}
	at := rec.IngestedAt
	if at.IsZero() {
		at = time.Now()
	}
	_, err := d.store.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO ingested_items
			(source_id, item_id, item_hash, task_id, ingested_at,
			 origin_type, origin_channel, origin_sender, origin_thread)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.SourceID, rec.ItemID, rec.ItemHash, rec.TaskID, at.UTC().Format(time.RFC3339),
		rec.Origin.AdapterType, rec.Origin.Channel, rec.Origin.Sender, rec.Origin.ThreadID)
	if err != nil {
		return fmt.Errorf("recording item: %w", err)
	}
	return nil
}

// GetRecord returns the dedup record for an item.
func (d dedupStore) GetRecord(ctx context.Context, sourceID, itemID string) (*domain.DedupRecord, error) {
	row := d.store.db.QueryRowContext(ctx, `
		SELECT source_id, item_id, item_hash, task_id, ingested_at,
		       origin_type, origin_channel, origin_sender, origin_thread
		FROM ingested_items WHERE source_id = ? AND item_id = ?
	`, sourceID, itemID)

	var rec domain.DedupRecord
	var at string
	err := row.Scan(&rec.SourceID, &rec.ItemID, &rec.ItemHash, &rec.TaskID, &at,
		&rec.Origin.AdapterType, &rec.Origin.Channel, &rec.Origin.Sender, &rec.Origin.ThreadID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading dedup record: %w", err)
	}
	if t, parseErr := time.Parse(time.RFC3339, at); parseErr == nil {
		rec.IngestedAt = t
	}
	return &rec, nil
}
