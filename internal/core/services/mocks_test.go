package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/taskdeck/ingestd/internal/core/domain"
	"github.com/taskdeck/ingestd/internal/core/ports/driven"
)

// --- Shared mocks for service tests ---

// mockStateStore implements driven.StateStore in memory.
type mockStateStore struct {
	mu      sync.Mutex
	records map[string]domain.DedupRecord
	states  map[string]json.RawMessage
	polls   map[string][]domain.PollLogEntry
	threads map[string]*domain.ThreadRecord

	dupErr   error
	stateErr error
}

func newMockStateStore() *mockStateStore {
	return &mockStateStore{
		records: make(map[string]domain.DedupRecord),
		states:  make(map[string]json.RawMessage),
		polls:   make(map[string][]domain.PollLogEntry),
		threads: make(map[string]*domain.ThreadRecord),
	}
}

func dedupKey(sourceID, itemID string) string { return sourceID + "\x00" + itemID }

func (m *mockStateStore) IsDuplicate(_ context.Context, sourceID, itemID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dupErr != nil {
		return false, m.dupErr
	}
	_, ok := m.records[dedupKey(sourceID, itemID)]
	return ok, nil
}

func (m *mockStateStore) RecordItem(_ context.Context, rec domain.DedupRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := dedupKey(rec.SourceID, rec.ItemID)
	if _, exists := m.records[key]; exists {
		return nil
	}
	m.records[key] = rec
	return nil
}

func (m *mockStateStore) GetRecord(_ context.Context, sourceID, itemID string) (*domain.DedupRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[dedupKey(sourceID, itemID)]
	if !ok {
		return nil, fmt.Errorf("record %s/%s: %w", sourceID, itemID, domain.ErrNotFound)
	}
	return &rec, nil
}

func (m *mockStateStore) GetState(_ context.Context, sourceID string) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stateErr != nil {
		return nil, m.stateErr
	}
	return m.states[sourceID], nil
}

func (m *mockStateStore) SetState(_ context.Context, sourceID string, state json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stateErr != nil {
		return m.stateErr
	}
	m.states[sourceID] = state
	return nil
}

func (m *mockStateStore) LogPoll(_ context.Context, entry domain.PollLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.polls[entry.SourceID] = append(m.polls[entry.SourceID], entry)
	return nil
}

func (m *mockStateStore) RecentPolls(_ context.Context, sourceID string, limit int) ([]domain.PollLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := m.polls[sourceID]
	out := make([]domain.PollLogEntry, 0, limit)
	for i := len(entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, entries[i])
	}
	return out, nil
}

func (m *mockStateStore) PrunePolls(_ context.Context, keep int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, entries := range m.polls {
		if len(entries) > keep {
			m.polls[id] = entries[len(entries)-keep:]
		}
	}
	return nil
}

func (m *mockStateStore) RegisterThread(_ context.Context, rec domain.ThreadRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := dedupKey(rec.SourceID, rec.ParentItemID)
	if _, exists := m.threads[key]; exists {
		return nil
	}
	cp := rec
	m.threads[key] = &cp
	return nil
}

func (m *mockStateStore) ActiveThreads(_ context.Context, sourceID string) ([]domain.ThreadRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ThreadRecord
	for _, t := range m.threads {
		if t.SourceID == sourceID && t.Active {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (m *mockStateStore) UpdateThreadCursor(_ context.Context, sourceID, parentItemID, cursor string, replies int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.threads[dedupKey(sourceID, parentItemID)]
	if !ok {
		return fmt.Errorf("thread %s/%s: %w", sourceID, parentItemID, domain.ErrNotFound)
	}
	t.ReplyCursor = cursor
	t.ReplyCount = replies
	return nil
}

func (m *mockStateStore) DeactivateThread(_ context.Context, sourceID, parentItemID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.threads[dedupKey(sourceID, parentItemID)]
	if !ok {
		return fmt.Errorf("thread %s/%s: %w", sourceID, parentItemID, domain.ErrNotFound)
	}
	t.Active = false
	return nil
}

func (m *mockStateStore) recordCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func (m *mockStateStore) state(sourceID string) json.RawMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[sourceID]
}

// mockTaskWriter implements driven.TaskWriter and driven.AutomationRunner.
type mockTaskWriter struct {
	mu        sync.Mutex
	tasks     []domain.NewTask
	replies   map[string][]domain.Reply
	triggers  []string
	createErr error
	nextID    int
}

func newMockTaskWriter() *mockTaskWriter {
	return &mockTaskWriter{replies: make(map[string][]domain.Reply)}
}

func (m *mockTaskWriter) CreateTask(_ context.Context, task domain.NewTask) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return "", m.createErr
	}
	m.nextID++
	m.tasks = append(m.tasks, task)
	return fmt.Sprintf("task-%d", m.nextID), nil
}

func (m *mockTaskWriter) AppendReplies(_ context.Context, taskID string, replies []domain.Reply) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies[taskID] = append(m.replies[taskID], replies...)
	return nil
}

func (m *mockTaskWriter) Trigger(_ context.Context, taskID, directive string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.triggers = append(m.triggers, taskID+":"+directive)
	return nil
}

func (m *mockTaskWriter) taskCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

func (m *mockTaskWriter) task(i int) domain.NewTask {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tasks[i]
}

// mockDownloader marks every attachment downloaded without fetching.
type mockDownloader struct {
	mu      sync.Mutex
	calls   int
	headers map[string]string
}

func (m *mockDownloader) DownloadAttachments(_ context.Context, sourceID string, atts []domain.Attachment, authHeaders map[string]string) []domain.Attachment {
	m.mu.Lock()
	m.calls++
	m.headers = authHeaders
	m.mu.Unlock()
	out := make([]domain.Attachment, len(atts))
	for i, a := range atts {
		a.LocalPath = "/downloads/" + sourceID + "/" + a.Name
		out[i] = a
	}
	return out
}

// mockAdapter is a scriptable poll adapter.
type mockAdapter struct {
	mu      sync.Mutex
	polls   int
	items   []domain.IngestItem
	state   json.RawMessage
	pollErr error
	seen    []json.RawMessage
}

func (m *mockAdapter) Poll(_ context.Context, _ domain.Source, state json.RawMessage, _ driven.SecretResolver) (*driven.PollResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.polls++
	m.seen = append(m.seen, state)
	if m.pollErr != nil {
		return nil, m.pollErr
	}
	return &driven.PollResult{Items: m.items, State: m.state}, nil
}

func (m *mockAdapter) Test(_ context.Context, _ domain.Source, _ driven.SecretResolver) (*driven.TestResult, error) {
	return &driven.TestResult{OK: true}, nil
}

func (m *mockAdapter) pollCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.polls
}

func noSecrets(name string) (string, error) {
	return "", fmt.Errorf("secret %q: %w", name, domain.ErrSecretUnresolved)
}
