package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/taskdeck/ingestd/internal/core/ports/driven"
)

// stateStore implements driven.AdapterStateStore.
type stateStore struct {
	store *Store
}

var _ driven.AdapterStateStore = (*stateStore)(nil)

// GetState returns the per-source state blob, nil when none exists.
func (s stateStore) GetState(ctx context.Context, sourceID string) (json.RawMessage, error) {
	var blob string
	err := s.store.db.QueryRowContext(ctx, `
		SELECT state FROM adapter_state WHERE source_id = ?
	`, sourceID).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading adapter state: %w", err)
	}
	return json.RawMessage(blob), nil
}

// SetState replaces the stored blob wholesale. State is never partially
// written.
func (s stateStore) SetState(ctx context.Context, sourceID string, state json.RawMessage) error {
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO adapter_state (source_id, state, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(source_id) DO UPDATE SET
			state = excluded.state,
			updated_at = excluded.updated_at
	`, sourceID, string(state), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("saving adapter state: %w", err)
	}
	return nil
}
