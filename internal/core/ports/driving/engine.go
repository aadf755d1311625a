package driving

import (
	"context"

	"github.com/taskdeck/ingestd/internal/core/domain"
)

// StartOptions restrict or soften an engine run.
type StartOptions struct {
	// SourceID restricts the engine to one source, for ad-hoc testing.
	SourceID string

	// DryRun runs the full pipeline but skips attachment download, task
	// creation and state persistence, logging what would have happened.
	DryRun bool
}

// SourceRunState is the observable state of one running source.
type SourceRunState struct {
	SourceID   string
	Mode       domain.Mode
	Connection domain.ConnectionStatus
	LastPoll   *domain.PollLogEntry
}

// Engine is the ingestion engine lifecycle, the only public entry point.
type Engine interface {
	// Start brings up pollers and connections for the enabled sources
	// and returns once they are running.
	Start(ctx context.Context, opts StartOptions) error

	// Stop cancels poll timers, disconnects realtime connections and
	// then drains debounce buffers, tolerating individual failures.
	Stop(ctx context.Context) error

	// Status reports the running sources.
	Status(ctx context.Context) []SourceRunState
}
