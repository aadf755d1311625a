package driven

import (
	"context"

	"github.com/taskdeck/ingestd/internal/core/domain"
)

// TaskWriter hands created tasks to the downstream task tracker.
// The tracker guarantees nothing beyond accepting the write; at-most-once
// creation is enforced on this side through the dedup store.
type TaskWriter interface {
	// CreateTask creates one task and returns its tracker ID.
	CreateTask(ctx context.Context, task domain.NewTask) (string, error)

	// AppendReplies appends threaded replies to an existing task in one
	// batched write.
	AppendReplies(ctx context.Context, taskID string, replies []domain.Reply) error
}

// AutomationRunner triggers a downstream automation directive after a
// task is created. Failures are logged, never fatal to ingestion.
type AutomationRunner interface {
	Trigger(ctx context.Context, taskID, directive string) error
}
