package driven

import (
	"context"

	"github.com/taskdeck/ingestd/internal/core/domain"
)

// SourceStore loads source definitions from configuration.
// Implementations cache by file modification time and fall back to the
// last good configuration when a reload fails validation.
type SourceStore interface {
	// Load returns all configured sources.
	Load(ctx context.Context) ([]domain.Source, error)

	// Enabled returns only sources with enabled set.
	Enabled(ctx context.Context) ([]domain.Source, error)

	// Get returns one source by ID, or ErrNotFound.
	Get(ctx context.Context, id string) (*domain.Source, error)
}
