package services

import (
	"context"
	"sync"
	"time"

	"github.com/taskdeck/ingestd/internal/core/domain"
	"github.com/taskdeck/ingestd/internal/core/ports/driven"
	"github.com/taskdeck/ingestd/internal/logger"
)

// StartStagger spaces out initial polls so many sources starting at
// once do not hit their providers in the same instant.
const StartStagger = 2 * time.Second

// Poller drives one interval-polled source. Each poll cycle calls the
// adapter, runs returned items through the pipeline, polls thread
// replies where supported and persists the adapter's replacement state
// once per cycle, even when no items were returned. Consecutive errors
// double the delay to the next cycle, capped by the backoff maximum;
// a success resets it to the source's poll interval.
type Poller struct {
	source   domain.Source
	adapter  driven.Adapter
	meta     *domain.PluginMetadata
	pipeline *Pipeline
	store    driven.StateStore
	secrets  driven.SecretResolver
	backoff  Backoff
	stagger  time.Duration
	dryRun   bool

	mu       sync.Mutex
	failures int
	lastPoll *domain.PollLogEntry

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewPoller creates a poller for one source. stagger delays the first
// cycle so simultaneous starts spread out.
func NewPoller(
	source domain.Source,
	adapter driven.Adapter,
	meta *domain.PluginMetadata,
	pipeline *Pipeline,
	store driven.StateStore,
	secrets driven.SecretResolver,
	stagger time.Duration,
	dryRun bool,
) *Poller {
	return &Poller{
		source:   source,
		adapter:  adapter,
		meta:     meta,
		pipeline: pipeline,
		store:    store,
		secrets:  secrets,
		backoff:  DefaultBackoff(),
		stagger:  stagger,
		dryRun:   dryRun,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the poll loop on its own goroutine.
func (p *Poller) Start(ctx context.Context) {
	go p.run(ctx)
}

// Stop cancels the poll timer and waits for an in-flight cycle to
// finish.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	<-p.doneCh
}

// LastPoll returns the most recent poll log entry, if any.
func (p *Poller) LastPoll() *domain.PollLogEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lastPoll == nil {
		return nil
	}
	entry := *p.lastPoll
	return &entry
}

func (p *Poller) run(ctx context.Context) {
	defer close(p.doneCh)

	if !p.sleep(ctx, p.stagger) {
		return
	}

	for {
		p.pollOnce(ctx)

		p.mu.Lock()
		failures := p.failures
		p.mu.Unlock()

		delay := p.source.PollInterval()
		if failures > 0 {
			delay = p.backoff.Delay(failures)
		}
		if !p.sleep(ctx, delay) {
			return
		}
	}
}

// sleep waits for d, returning false when the poller is stopping.
func (p *Poller) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		select {
		case <-p.stopCh:
			return false
		case <-ctx.Done():
			return false
		default:
			return true
		}
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-p.stopCh:
		return false
	case <-ctx.Done():
		return false
	}
}

func (p *Poller) pollOnce(ctx context.Context) {
	started := time.Now()
	entry := domain.PollLogEntry{SourceID: p.source.ID, At: started}

	found, accepted, err := p.cycle(ctx)
	entry.Found = found
	entry.New = accepted
	entry.Duration = time.Since(started)

	p.mu.Lock()
	if err != nil {
		entry.Error = err.Error()
		p.failures++
		logger.Warn("source %s: poll failed (%d consecutive): %v", p.source.ID, p.failures, err)
	} else {
		p.failures = 0
	}
	p.lastPoll = &entry
	p.mu.Unlock()

	if p.dryRun {
		logger.Info("dry-run: source %s polled: %d found, %d new", p.source.ID, found, accepted)
		return
	}
	if logErr := p.store.LogPoll(ctx, entry); logErr != nil {
		logger.Warn("source %s: record poll log: %v", p.source.ID, logErr)
	}
}

// cycle performs one complete poll: adapter call, item pipeline, reply
// polling and the once-per-cycle state commit.
func (p *Poller) cycle(ctx context.Context) (found, accepted int, err error) {
	state, err := p.store.GetState(ctx, p.source.ID)
	if err != nil {
		return 0, 0, err
	}

	result, err := p.adapter.Poll(ctx, p.source, state, p.secrets)
	if err != nil {
		return 0, 0, err
	}

	authHeaders := p.downloadAuth()

	for _, item := range result.Items {
		ok, itemErr := p.pipeline.HandleItem(ctx, p.source, p.meta, item, authHeaders)
		if itemErr != nil {
			logger.Warn("source %s: item %s: %v", p.source.ID, item.ID, itemErr)
			continue
		}
		if ok {
			accepted++
		}
	}

	if rp, hasReplies := p.adapter.(driven.ReplyPoller); hasReplies && p.source.TrackReplies {
		if replyErr := p.pipeline.AppendReplies(ctx, p.source, rp, p.secrets, authHeaders); replyErr != nil {
			logger.Warn("source %s: reply polling: %v", p.source.ID, replyErr)
		}
	}

	// Cursors advance even on an empty poll.
	if !p.dryRun && result.State != nil {
		if stateErr := p.store.SetState(ctx, p.source.ID, result.State); stateErr != nil {
			return len(result.Items), accepted, stateErr
		}
	}

	return len(result.Items), accepted, nil
}

func (p *Poller) downloadAuth() map[string]string {
	provider, ok := p.adapter.(driven.AuthHeaderProvider)
	if !ok {
		return nil
	}
	headers, err := provider.DownloadAuth(p.source, p.secrets)
	if err != nil {
		logger.Warn("source %s: download auth: %v", p.source.ID, err)
		return nil
	}
	return headers
}
