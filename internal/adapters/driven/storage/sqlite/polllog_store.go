package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/taskdeck/ingestd/internal/core/domain"
	"github.com/taskdeck/ingestd/internal/core/ports/driven"
)

// pollLogStore implements driven.PollLogStore.
type pollLogStore struct {
	store *Store
}

var _ driven.PollLogStore = (*pollLogStore)(nil)

// LogPoll appends one poll attempt. Entries are never mutated after
// insert.
func (p pollLogStore) LogPoll(ctx context.Context, entry domain.PollLogEntry) error {
	at := entry.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := p.store.db.ExecContext(ctx, `
		INSERT INTO poll_log (source_id, found, new_items, error, duration_ms, polled_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, entry.SourceID, entry.Found, entry.New, nullString(entry.Error),
		entry.Duration.Milliseconds(), at.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("logging poll: %w", err)
	}
	return nil
}

// RecentPolls returns the newest entries for a source, newest first.
func (p pollLogStore) RecentPolls(ctx context.Context, sourceID string, limit int) ([]domain.PollLogEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := p.store.db.QueryContext(ctx, `
		SELECT source_id, found, new_items, error, duration_ms, polled_at
		FROM poll_log WHERE source_id = ?
		ORDER BY id DESC LIMIT ?
	`, sourceID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying poll log: %w", err)
	}
	defer rows.Close()

	var entries []domain.PollLogEntry
	for rows.Next() {
		var (
			e       domain.PollLogEntry
			errText sql.NullString
			ms      int64
			at      string
		)
		if err := rows.Scan(&e.SourceID, &e.Found, &e.New, &errText, &ms, &at); err != nil {
			return nil, fmt.Errorf("scanning poll log entry: %w", err)
		}
		e.Error = errText.String
		e.Duration = time.Duration(ms) * time.Millisecond
		if t, parseErr := time.Parse(time.RFC3339, at); parseErr == nil {
			e.At = t
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating poll log: %w", err)
	}
	return entries, nil
}

// PrunePolls keeps only the newest keep entries per source.
func (p pollLogStore) PrunePolls(ctx context.Context, keep int) error {
	if keep <= 0 {
		return domain.ErrInvalidInput
	}
	_, err := p.store.db.ExecContext(ctx, `
		DELETE FROM poll_log WHERE id NOT IN (
			SELECT id FROM poll_log AS newer
			WHERE newer.source_id = poll_log.source_id
			ORDER BY newer.id DESC LIMIT ?
		)
	`, keep)
	if err != nil {
		return fmt.Errorf("pruning poll log: %w", err)
	}
	return nil
}
