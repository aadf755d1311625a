package services

import (
	"context"
	"fmt"
	"time"

	"github.com/taskdeck/ingestd/internal/core/domain"
	"github.com/taskdeck/ingestd/internal/core/ports/driven"
	"github.com/taskdeck/ingestd/internal/logger"
)

// flushTimeout bounds the downstream writes performed by a timer-driven
// buffer flush, which has no caller context to inherit.
const flushTimeout = 30 * time.Second

// Pipeline runs the identical per-item flow shared by polling and
// realtime sources: filter, dedup check, attachment download, debounce
// buffering or immediate task creation, dedup recording, automation
// trigger and thread registration.
type Pipeline struct {
	filters    *FilterEngine
	store      driven.StateStore
	downloader driven.Downloader
	tasks      driven.TaskWriter
	automation driven.AutomationRunner
	buffer     *MessageBuffer
	dryRun     bool
}

// NewPipeline wires the pipeline. automation may be nil when no
// automation engine is configured.
func NewPipeline(
	filters *FilterEngine,
	store driven.StateStore,
	downloader driven.Downloader,
	tasks driven.TaskWriter,
	automation driven.AutomationRunner,
	dryRun bool,
) *Pipeline {
	p := &Pipeline{
		filters:    filters,
		store:      store,
		downloader: downloader,
		tasks:      tasks,
		automation: automation,
		dryRun:     dryRun,
	}
	p.buffer = NewMessageBuffer(p.flushBuffered)
	return p
}

// Buffer exposes the debounce buffer for shutdown draining.
func (p *Pipeline) Buffer() *MessageBuffer {
	return p.buffer
}

// HandleItem runs one item through the pipeline. Returns true when the
// item was accepted (created immediately or parked in the buffer),
// false when it was filtered out or a duplicate.
func (p *Pipeline) HandleItem(
	ctx context.Context,
	source domain.Source,
	meta *domain.PluginMetadata,
	item domain.IngestItem,
	authHeaders map[string]string,
) (bool, error) {
	conds := p.filters.Resolve(source.Filter, meta.DefaultFilter)
	if !p.filters.Apply(&item, conds) {
		logger.Debug("source %s: item %s filtered out", source.ID, item.ID)
		return false, nil
	}

	dup, err := p.store.IsDuplicate(ctx, source.ID, item.ID)
	if err != nil {
		return false, fmt.Errorf("dedup check: %w", err)
	}
	if dup {
		logger.Debug("source %s: item %s already ingested", source.ID, item.ID)
		return false, nil
	}

	if p.dryRun {
		logger.Info("dry-run: source %s would create task %q (item %s)", source.ID, item.Title, item.ID)
		return true, nil
	}

	if len(item.Attachments) > 0 {
		item.Attachments = p.downloader.DownloadAttachments(ctx, source.ID, item.Attachments, authHeaders)
	}

	if source.Debounce.Enabled {
		p.buffer.Add(BufferKey(source.ID, &item), BufferedItem{Source: source, Item: item}, source.Debounce.EffectiveWindow())
		return true, nil
	}

	if err := p.createTask(ctx, source, []BufferedItem{{Source: source, Item: item}}); err != nil {
		return false, err
	}
	return true, nil
}

// flushBuffered is the buffer's flush callback. Entries that turn out
// to be replies to an actively tracked thread are routed to the
// existing task and removed from the batch before merging.
func (p *Pipeline) flushBuffered(key string, entries []BufferedItem) {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	source := entries[0].Source
	remaining := make([]BufferedItem, 0, len(entries))
	for _, e := range entries {
		routed, err := p.routeToThread(ctx, e)
		if err != nil {
			logger.Warn("source %s: thread routing for item %s: %v", source.ID, e.Item.ID, err)
		}
		if !routed {
			remaining = append(remaining, e)
		}
	}
	if len(remaining) == 0 {
		return
	}

	if err := p.createTask(ctx, source, remaining); err != nil {
		logger.Warn("source %s: flush of buffer %s: %v", source.ID, key, err)
	}
}

// routeToThread appends a buffered entry to an existing task when its
// thread id matches an active thread record.
func (p *Pipeline) routeToThread(ctx context.Context, e BufferedItem) (bool, error) {
	threadID := e.Item.Origin.ThreadID
	if threadID == "" {
		return false, nil
	}
	threads, err := p.store.ActiveThreads(ctx, e.Source.ID)
	if err != nil {
		return false, err
	}
	for _, t := range threads {
		if t.ParentItemID != threadID {
			continue
		}
		reply := domain.Reply{
			ParentItemID: t.ParentItemID,
			Author:       e.Item.Origin.Sender,
			Body:         e.Item.Description,
			Cursor:       e.Item.ThreadTS,
			Attachments:  e.Item.Attachments,
		}
		if err := p.tasks.AppendReplies(ctx, t.TaskID, []domain.Reply{reply}); err != nil {
			return false, err
		}
		if err := p.store.UpdateThreadCursor(ctx, t.SourceID, t.ParentItemID, reply.Cursor, t.ReplyCount+1); err != nil {
			return false, err
		}
		rec := domain.DedupRecord{
			SourceID:   e.Source.ID,
			ItemID:     e.Item.ID,
			ItemHash:   e.Item.Hash,
			TaskID:     t.TaskID,
			Origin:     e.Item.Origin,
			IngestedAt: time.Now(),
		}
		if err := p.store.RecordItem(ctx, rec); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// createTask creates one task for the entries (merged when several),
// records every original item id in the dedup store, triggers the
// source's automation directive and registers the parent thread.
func (p *Pipeline) createTask(ctx context.Context, source domain.Source, entries []BufferedItem) error {
	item := MergeBuffered(entries)

	taskID, err := p.tasks.CreateTask(ctx, domain.NewTask{
		Project:     source.Project,
		Title:       item.Title,
		Description: item.Description,
		SourceID:    source.ID,
		Attachments: item.Attachments,
		Origin:      item.Origin,
	})
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}

	now := time.Now()
	for _, e := range entries {
		rec := domain.DedupRecord{
			SourceID:   source.ID,
			ItemID:     e.Item.ID,
			ItemHash:   e.Item.Hash,
			TaskID:     taskID,
			Origin:     e.Item.Origin,
			IngestedAt: now,
		}
		if err := p.store.RecordItem(ctx, rec); err != nil {
			return fmt.Errorf("record item %s: %w", e.Item.ID, err)
		}
	}

	if source.Automation != "" && p.automation != nil {
		if err := p.automation.Trigger(ctx, taskID, source.Automation); err != nil {
			logger.Warn("source %s: automation %q: %v", source.ID, source.Automation, err)
		}
	}

	if source.TrackReplies {
		err := p.store.RegisterThread(ctx, domain.ThreadRecord{
			SourceID:     source.ID,
			ParentItemID: item.ID,
			TaskID:       taskID,
			ReplyCursor:  item.ThreadTS,
			Active:       true,
			RegisteredAt: now,
		})
		if err != nil {
			logger.Warn("source %s: register thread for %s: %v", source.ID, item.ID, err)
		}
	}

	logger.Info("source %s: created task %s (%q)", source.ID, taskID, item.Title)
	return nil
}

// AppendReplies fetches replies for the source's active threads through
// a reply-capable adapter, downloads their attachments, appends them to
// the owning task in one batched write and advances each thread's
// cursor only on success.
func (p *Pipeline) AppendReplies(
	ctx context.Context,
	source domain.Source,
	rp driven.ReplyPoller,
	secrets driven.SecretResolver,
	authHeaders map[string]string,
) error {
	threads, err := p.store.ActiveThreads(ctx, source.ID)
	if err != nil {
		return fmt.Errorf("active threads: %w", err)
	}
	if len(threads) == 0 {
		return nil
	}

	replies, err := rp.PollReplies(ctx, source, threads, secrets)
	if err != nil {
		return fmt.Errorf("poll replies: %w", err)
	}
	if len(replies) == 0 || p.dryRun {
		return nil
	}

	byParent := make(map[string][]domain.Reply)
	for _, r := range replies {
		for i := range r.Attachments {
			downloaded := p.downloader.DownloadAttachments(ctx, source.ID, []domain.Attachment{r.Attachments[i]}, authHeaders)
			r.Attachments[i] = downloaded[0]
		}
		byParent[r.ParentItemID] = append(byParent[r.ParentItemID], r)
	}

	for _, t := range threads {
		batch := byParent[t.ParentItemID]
		if len(batch) == 0 {
			continue
		}
		if err := p.tasks.AppendReplies(ctx, t.TaskID, batch); err != nil {
			logger.Warn("source %s: append replies to task %s: %v", source.ID, t.TaskID, err)
			continue
		}
		cursor := batch[len(batch)-1].Cursor
		if err := p.store.UpdateThreadCursor(ctx, t.SourceID, t.ParentItemID, cursor, t.ReplyCount+len(batch)); err != nil {
			logger.Warn("source %s: advance thread cursor for %s: %v", source.ID, t.ParentItemID, err)
		}
	}
	return nil
}
