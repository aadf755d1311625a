package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/taskdeck/ingestd/internal/core/domain"
	"github.com/taskdeck/ingestd/internal/core/ports/driven"
)

// threadStore implements driven.ThreadStore.
type threadStore struct {
	store *Store
}

var _ driven.ThreadStore = (*threadStore)(nil)

// RegisterThread records a threadable parent item. Registering an
// existing (sourceID, parentItemID) pair is a no-op.
func (t threadStore) RegisterThread(ctx context.Context, rec domain.ThreadRecord) error {
	if rec.SourceID == "" || rec.ParentItemID == "" {
		return domain.ErrInvalidInput
	}
	at := rec.RegisteredAt
	if at.IsZero() {
		at = time.Now()
	}
	_, err := t.store.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO thread_replies
			(source_id, parent_item_id, task_id, reply_cursor, reply_count, active, registered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, rec.SourceID, rec.ParentItemID, rec.TaskID, rec.ReplyCursor, rec.ReplyCount,
		boolToInt(rec.Active), at.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("registering thread: %w", err)
	}
	return nil
}

// ActiveThreads returns the active thread records for a source.
func (t threadStore) ActiveThreads(ctx context.Context, sourceID string) ([]domain.ThreadRecord, error) {
	rows, err := t.store.db.QueryContext(ctx, `
		SELECT source_id, parent_item_id, task_id, reply_cursor, reply_count, active, registered_at
		FROM thread_replies WHERE source_id = ? AND active = 1
	`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("querying threads: %w", err)
	}
	defer rows.Close()

	var threads []domain.ThreadRecord
	for rows.Next() {
		var (
			rec    domain.ThreadRecord
			active int
			at     string
		)
		if err := rows.Scan(&rec.SourceID, &rec.ParentItemID, &rec.TaskID,
			&rec.ReplyCursor, &rec.ReplyCount, &active, &at); err != nil {
			return nil, fmt.Errorf("scanning thread record: %w", err)
		}
		rec.Active = active != 0
		if parsed, parseErr := time.Parse(time.RFC3339, at); parseErr == nil {
			rec.RegisteredAt = parsed
		}
		threads = append(threads, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating threads: %w", err)
	}
	return threads, nil
}

// UpdateThreadCursor advances a thread's reply cursor and count.
func (t threadStore) UpdateThreadCursor(ctx context.Context, sourceID, parentItemID, cursor string, replies int) error {
	_, err := t.store.db.ExecContext(ctx, `
		UPDATE thread_replies SET reply_cursor = ?, reply_count = ?
		WHERE source_id = ? AND parent_item_id = ?
	`, cursor, replies, sourceID, parentItemID)
	if err != nil {
		return fmt.Errorf("updating thread cursor: %w", err)
	}
	return nil
}

// DeactivateThread marks a thread inactive. The record is kept.
func (t threadStore) DeactivateThread(ctx context.Context, sourceID, parentItemID string) error {
	_, err := t.store.db.ExecContext(ctx, `
		UPDATE thread_replies SET active = 0
		WHERE source_id = ? AND parent_item_id = ?
	`, sourceID, parentItemID)
	if err != nil {
		return fmt.Errorf("deactivating thread: %w", err)
	}
	return nil
}
