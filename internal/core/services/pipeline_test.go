package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskdeck/ingestd/internal/core/domain"
)

func pipelineFixture(dryRun bool) (*Pipeline, *mockStateStore, *mockTaskWriter, *mockDownloader) {
	store := newMockStateStore()
	tasks := newMockTaskWriter()
	dl := &mockDownloader{}
	p := NewPipeline(NewFilterEngine(), store, dl, tasks, tasks, dryRun)
	return p, store, tasks, dl
}

func pipelineSource() domain.Source {
	return domain.Source{ID: "src-1", Type: "feed", Project: "inbox", Enabled: true}
}

func pipelineMeta() *domain.PluginMetadata {
	return &domain.PluginMetadata{
		Type: "feed", Name: "Feed", Description: "d", Version: "1.0.0",
		ItemFields: []domain.ItemField{{Key: "state", Label: "State", Type: domain.FieldString}},
	}
}

func TestPipelineCreatesTaskImmediately(t *testing.T) {
	p, store, tasks, _ := pipelineFixture(false)
	source := pipelineSource()

	ok, err := p.HandleItem(context.Background(), source, pipelineMeta(),
		domain.IngestItem{ID: "a", Hash: "h", Title: "hello", Description: "world"}, nil)
	require.NoError(t, err)
	assert.True(t, ok)

	require.Equal(t, 1, tasks.taskCount())
	task := tasks.task(0)
	assert.Equal(t, "inbox", task.Project)
	assert.Equal(t, "hello", task.Title)
	assert.Equal(t, "src-1", task.SourceID)

	rec, err := store.GetRecord(context.Background(), "src-1", "a")
	require.NoError(t, err)
	assert.Equal(t, "task-1", rec.TaskID)
}

func TestPipelineSkipsDuplicates(t *testing.T) {
	p, _, tasks, _ := pipelineFixture(false)
	source := pipelineSource()
	item := domain.IngestItem{ID: "a", Hash: "h", Title: "hello"}

	ok, err := p.HandleItem(context.Background(), source, pipelineMeta(), item, nil)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.HandleItem(context.Background(), source, pipelineMeta(), item, nil)
	require.NoError(t, err)
	assert.False(t, ok, "second pass is a duplicate")
	assert.Equal(t, 1, tasks.taskCount())
}

func TestPipelineFiltersBeforeDedup(t *testing.T) {
	p, store, tasks, _ := pipelineFixture(false)
	source := pipelineSource()
	source.Filter = []domain.FilterCondition{{Field: "state", Operator: domain.OpEquals, Value: "open"}}

	ok, err := p.HandleItem(context.Background(), source, pipelineMeta(),
		domain.IngestItem{ID: "a", Fields: map[string]any{"state": "closed"}}, nil)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, tasks.taskCount())
	assert.Equal(t, 0, store.recordCount(), "filtered items leave no dedup record")
}

func TestPipelineDefaultFilterApplies(t *testing.T) {
	p, _, tasks, _ := pipelineFixture(false)
	meta := pipelineMeta()
	meta.DefaultFilter = []domain.FilterCondition{{Field: "state", Operator: domain.OpEquals, Value: "open"}}

	ok, err := p.HandleItem(context.Background(), pipelineSource(), meta,
		domain.IngestItem{ID: "a", Fields: map[string]any{"state": "closed"}}, nil)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, tasks.taskCount())
}

func TestPipelineDryRunCreatesNothing(t *testing.T) {
	p, store, tasks, dl := pipelineFixture(true)

	ok, err := p.HandleItem(context.Background(), pipelineSource(), pipelineMeta(),
		domain.IngestItem{ID: "a", Title: "t", Attachments: []domain.Attachment{{URL: "http://x/f.png"}}}, nil)
	require.NoError(t, err)
	assert.True(t, ok, "dry run still reports the item as new")

	assert.Equal(t, 0, tasks.taskCount())
	assert.Equal(t, 0, store.recordCount())
	assert.Equal(t, 0, dl.calls, "dry run skips downloads")
}

func TestPipelineDownloadsAttachments(t *testing.T) {
	p, _, tasks, dl := pipelineFixture(false)

	_, err := p.HandleItem(context.Background(), pipelineSource(), pipelineMeta(),
		domain.IngestItem{ID: "a", Title: "t", Attachments: []domain.Attachment{{URL: "http://x/f.png", Name: "f.png"}}},
		map[string]string{"Authorization": "Bearer tok"})
	require.NoError(t, err)

	require.Equal(t, 1, dl.calls)
	assert.Equal(t, "Bearer tok", dl.headers["Authorization"])
	require.Equal(t, 1, tasks.taskCount())
	require.Len(t, tasks.task(0).Attachments, 1)
	assert.Equal(t, "/downloads/src-1/f.png", tasks.task(0).Attachments[0].LocalPath)
}

func TestPipelineDebounceMergesBurst(t *testing.T) {
	p, store, tasks, _ := pipelineFixture(false)
	source := pipelineSource()
	source.Debounce = domain.Debounce{Enabled: true, Window: 30 * time.Millisecond}

	for _, id := range []string{"1", "2", "3"} {
		item := domain.IngestItem{
			ID: id, Title: "msg " + id, Description: "body " + id,
			Origin: domain.Origin{Channel: "general", Sender: "ana"},
		}
		ok, err := p.HandleItem(context.Background(), source, pipelineMeta(), item, nil)
		require.NoError(t, err)
		assert.True(t, ok)
	}

	assert.Equal(t, 0, tasks.taskCount(), "nothing created before the window closes")

	require.Eventually(t, func() bool { return tasks.taskCount() == 1 }, time.Second, 5*time.Millisecond)
	task := tasks.task(0)
	assert.Equal(t, "msg 1 (+2 more)", task.Title)
	assert.Equal(t, "body 1\n---\nbody 2\n---\nbody 3", task.Description)
	assert.Equal(t, 3, store.recordCount(), "every merged item gets its own dedup record")
}

func TestPipelineAutomationTriggered(t *testing.T) {
	p, _, tasks, _ := pipelineFixture(false)
	source := pipelineSource()
	source.Automation = "notify-oncall"

	_, err := p.HandleItem(context.Background(), source, pipelineMeta(),
		domain.IngestItem{ID: "a", Title: "t"}, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"task-1:notify-oncall"}, tasks.triggers)
}

func TestPipelineTracksReplies(t *testing.T) {
	p, store, tasks, _ := pipelineFixture(false)
	source := pipelineSource()
	source.TrackReplies = true

	_, err := p.HandleItem(context.Background(), source, pipelineMeta(),
		domain.IngestItem{ID: "parent", Title: "t", ThreadTS: "100"}, nil)
	require.NoError(t, err)

	threads, err := store.ActiveThreads(context.Background(), "src-1")
	require.NoError(t, err)
	require.Len(t, threads, 1)
	assert.Equal(t, "parent", threads[0].ParentItemID)
	assert.Equal(t, "task-1", threads[0].TaskID)
	assert.Equal(t, "100", threads[0].ReplyCursor)
	_ = tasks
}

func TestPipelineRoutesBufferedRepliesToThread(t *testing.T) {
	p, store, tasks, _ := pipelineFixture(false)
	source := pipelineSource()
	source.TrackReplies = true
	source.Debounce = domain.Debounce{Enabled: true, Window: 20 * time.Millisecond}

	require.NoError(t, store.RegisterThread(context.Background(), domain.ThreadRecord{
		SourceID: "src-1", ParentItemID: "parent", TaskID: "task-9", Active: true,
	}))

	reply := domain.IngestItem{
		ID: "r1", Title: "re", Description: "a reply", ThreadTS: "200",
		Origin: domain.Origin{Sender: "bob", ThreadID: "parent"},
	}
	ok, err := p.HandleItem(context.Background(), source, pipelineMeta(), reply, nil)
	require.NoError(t, err)
	assert.True(t, ok)

	require.Eventually(t, func() bool {
		tasks.mu.Lock()
		defer tasks.mu.Unlock()
		return len(tasks.replies["task-9"]) == 1
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, 0, tasks.taskCount(), "a routed reply creates no new task")

	threads, err := store.ActiveThreads(context.Background(), "src-1")
	require.NoError(t, err)
	require.Len(t, threads, 1)
	assert.Equal(t, "200", threads[0].ReplyCursor)
	assert.Equal(t, 1, threads[0].ReplyCount)

	rec, err := store.GetRecord(context.Background(), "src-1", "r1")
	require.NoError(t, err)
	assert.Equal(t, "task-9", rec.TaskID, "replies dedup against the parent task")
}

func TestPipelineFlushAllOnShutdown(t *testing.T) {
	p, _, tasks, _ := pipelineFixture(false)
	source := pipelineSource()
	source.Debounce = domain.Debounce{Enabled: true, Window: time.Hour}

	_, err := p.HandleItem(context.Background(), source, pipelineMeta(),
		domain.IngestItem{ID: "a", Title: "t", Origin: domain.Origin{Channel: "c", Sender: "s"}}, nil)
	require.NoError(t, err)

	p.Buffer().FlushAll()
	assert.Equal(t, 1, tasks.taskCount())
}
