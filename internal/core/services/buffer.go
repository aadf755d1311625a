package services

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/taskdeck/ingestd/internal/core/domain"
)

// MaxBufferedEntries is the pending count at which a buffer key flushes
// immediately, regardless of its sliding-window timer.
const MaxBufferedEntries = 10

// BufferedItem is one item parked in the debounce buffer together with
// a snapshot of its source configuration. Buffer keys are source-scoped,
// so every entry under one key shares a source and therefore a
// destination project.
type BufferedItem struct {
	Source domain.Source
	Item   domain.IngestItem
}

// FlushFunc receives the pending entries for one key when the sliding
// window closes or the buffer overflows.
type FlushFunc func(key string, entries []BufferedItem)

// MessageBuffer collapses bursts of near-simultaneous items from the
// same sender or thread into one flush. Each key owns a sliding-window
// timer that is reset on every add; a timer fires once, so flush
// execution is serialised per key while different keys flush
// independently.
type MessageBuffer struct {
	mu      sync.Mutex
	pending map[string]*bufferSlot
	flush   FlushFunc
}

type bufferSlot struct {
	entries []BufferedItem
	timer   *time.Timer
}

// NewMessageBuffer creates a buffer delivering to flush.
func NewMessageBuffer(flush FlushFunc) *MessageBuffer {
	return &MessageBuffer{
		pending: make(map[string]*bufferSlot),
		flush:   flush,
	}
}

// BufferKey derives the debounce key for an item: thread-scoped when the
// item carries a thread timestamp, else channel+sender scoped.
func BufferKey(sourceID string, item *domain.IngestItem) string {
	if item.ThreadTS != "" {
		return fmt.Sprintf("%s:thread:%s", sourceID, item.ThreadTS)
	}
	return fmt.Sprintf("%s:%s:%s", sourceID, item.Origin.Channel, item.Origin.Sender)
}

// Add parks an entry under key and resets the key's sliding-window
// timer to window. When the pending count reaches MaxBufferedEntries
// the key flushes immediately on the caller's goroutine.
func (b *MessageBuffer) Add(key string, entry BufferedItem, window time.Duration) {
	b.mu.Lock()
	slot, ok := b.pending[key]
	if !ok {
		slot = &bufferSlot{}
		b.pending[key] = slot
	}
	slot.entries = append(slot.entries, entry)

	if len(slot.entries) >= MaxBufferedEntries {
		entries := b.takeLocked(key)
		b.mu.Unlock()
		b.flush(key, entries)
		return
	}

	if slot.timer != nil {
		slot.timer.Stop()
	}
	slot.timer = time.AfterFunc(window, func() {
		b.flushKey(key)
	})
	b.mu.Unlock()
}

// PendingKeys returns the keys currently holding entries.
func (b *MessageBuffer) PendingKeys() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	keys := make([]string, 0, len(b.pending))
	for k := range b.pending {
		keys = append(keys, k)
	}
	return keys
}

// FlushAll drains every pending key. Called at shutdown so no buffered
// message is silently dropped.
func (b *MessageBuffer) FlushAll() {
	for _, key := range b.PendingKeys() {
		b.flushKey(key)
	}
}

func (b *MessageBuffer) flushKey(key string) {
	b.mu.Lock()
	entries := b.takeLocked(key)
	b.mu.Unlock()
	if len(entries) > 0 {
		b.flush(key, entries)
	}
}

// takeLocked removes and returns the entries for key, cancelling its
// timer. Caller holds the mutex.
func (b *MessageBuffer) takeLocked(key string) []BufferedItem {
	slot, ok := b.pending[key]
	if !ok {
		return nil
	}
	if slot.timer != nil {
		slot.timer.Stop()
	}
	delete(b.pending, key)
	return slot.entries
}

// MergeBuffered collapses flushed entries into one synthetic item: the
// first title suffixed with the overflow count, descriptions joined
// with a separator, attachments unioned by URL. A single entry passes
// through unchanged.
func MergeBuffered(entries []BufferedItem) domain.IngestItem {
	if len(entries) == 1 {
		return entries[0].Item
	}

	first := entries[0].Item
	merged := domain.IngestItem{
		ID:       first.ID,
		Hash:     first.Hash,
		Title:    fmt.Sprintf("%s (+%d more)", first.Title, len(entries)-1),
		Fields:   first.Fields,
		ThreadTS: first.ThreadTS,
		Origin:   first.Origin,
	}

	descs := make([]string, 0, len(entries))
	seen := make(map[string]bool)
	for _, e := range entries {
		if e.Item.Description != "" {
			descs = append(descs, e.Item.Description)
		}
		for _, att := range e.Item.Attachments {
			if !seen[att.URL] {
				seen[att.URL] = true
				merged.Attachments = append(merged.Attachments, att)
			}
		}
	}
	merged.Description = strings.Join(descs, "\n---\n")
	return merged
}
