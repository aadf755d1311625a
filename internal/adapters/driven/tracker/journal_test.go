package tracker

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskdeck/ingestd/internal/core/domain"
)

func TestJournalCreateTask(t *testing.T) {
	dir := t.TempDir()
	j, err := NewJournal(dir)
	require.NoError(t, err)

	id, err := j.CreateTask(context.Background(), domain.NewTask{
		Project: "inbox",
		Title:   "broken feed",
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	data, err := os.ReadFile(filepath.Join(dir, id+".json"))
	require.NoError(t, err)

	var entry journalTask
	require.NoError(t, json.Unmarshal(data, &entry))
	assert.Equal(t, id, entry.ID)
	assert.Equal(t, "broken feed", entry.Task.Title)
	assert.False(t, entry.CreatedAt.IsZero())
}

func TestJournalIDsAreUnique(t *testing.T) {
	j, err := NewJournal(t.TempDir())
	require.NoError(t, err)

	a, err := j.CreateTask(context.Background(), domain.NewTask{Title: "a"})
	require.NoError(t, err)
	b, err := j.CreateTask(context.Background(), domain.NewTask{Title: "b"})
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestJournalAppendReplies(t *testing.T) {
	dir := t.TempDir()
	j, err := NewJournal(dir)
	require.NoError(t, err)

	id, err := j.CreateTask(context.Background(), domain.NewTask{Title: "thread"})
	require.NoError(t, err)

	require.NoError(t, j.AppendReplies(context.Background(), id, []domain.Reply{
		{ParentItemID: "m1", Body: "first"},
	}))
	require.NoError(t, j.AppendReplies(context.Background(), id, []domain.Reply{
		{ParentItemID: "m1", Body: "second"},
	}))

	data, err := os.ReadFile(filepath.Join(dir, id+".json"))
	require.NoError(t, err)
	var entry journalTask
	require.NoError(t, json.Unmarshal(data, &entry))
	require.Len(t, entry.Replies, 2)
	assert.Equal(t, "first", entry.Replies[0].Body)
	assert.Equal(t, "second", entry.Replies[1].Body)
	assert.Equal(t, "thread", entry.Task.Title, "original task preserved")
}

func TestJournalAppendToUnknownTask(t *testing.T) {
	j, err := NewJournal(t.TempDir())
	require.NoError(t, err)

	err = j.AppendReplies(context.Background(), "no-such-task", []domain.Reply{{Body: "x"}})
	assert.Error(t, err)
}

func TestJournalTriggerIsRecorded(t *testing.T) {
	j, err := NewJournal(t.TempDir())
	require.NoError(t, err)
	assert.NoError(t, j.Trigger(context.Background(), "t1", "notify-oncall"))
}
