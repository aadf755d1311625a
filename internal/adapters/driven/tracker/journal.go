package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/taskdeck/ingestd/internal/core/domain"
	"github.com/taskdeck/ingestd/internal/core/ports/driven"
	"github.com/taskdeck/ingestd/internal/logger"
)

// Ensure Journal implements the interfaces.
var (
	_ driven.TaskWriter       = (*Journal)(nil)
	_ driven.AutomationRunner = (*Journal)(nil)
)

// Journal is a filesystem TaskWriter used when no tracker endpoint is
// configured: each task becomes a JSON file in an outbox directory, for
// the tracker to import later. Task IDs are generated locally.
type Journal struct {
	mu  sync.Mutex
	dir string
}

// NewJournal creates a journal writing under dir. If dir is empty,
// defaults to ~/.ingestd/outbox.
func NewJournal(dir string) (*Journal, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dir = filepath.Join(home, ".ingestd", "outbox")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating outbox directory: %w", err)
	}
	return &Journal{dir: dir}, nil
}

type journalTask struct {
	ID        string         `json:"id"`
	Task      domain.NewTask `json:"task"`
	Replies   []domain.Reply `json:"replies,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// CreateTask writes a task file and returns its generated ID.
func (j *Journal) CreateTask(_ context.Context, task domain.NewTask) (string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	id := uuid.NewString()
	entry := journalTask{ID: id, Task: task, CreatedAt: time.Now()}
	if err := j.write(id, &entry); err != nil {
		return "", err
	}
	return id, nil
}

// AppendReplies loads the task file, appends the batch and rewrites it.
func (j *Journal) AppendReplies(_ context.Context, taskID string, replies []domain.Reply) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	var entry journalTask
	data, err := os.ReadFile(j.path(taskID))
	if err != nil {
		return fmt.Errorf("read task %s: %w", taskID, err)
	}
	if err := json.Unmarshal(data, &entry); err != nil {
		return fmt.Errorf("parse task %s: %w", taskID, err)
	}
	entry.Replies = append(entry.Replies, replies...)
	return j.write(taskID, &entry)
}

// Trigger records the directive; the journal has no automation engine
// to hand it to.
func (j *Journal) Trigger(_ context.Context, taskID, directive string) error {
	logger.Info("journal: automation %q requested for task %s", directive, taskID)
	return nil
}

func (j *Journal) path(id string) string {
	return filepath.Join(j.dir, id+".json")
}

func (j *Journal) write(id string, entry *journalTask) error {
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}
	if err := os.WriteFile(j.path(id), data, 0600); err != nil {
		return fmt.Errorf("write task file: %w", err)
	}
	return nil
}
