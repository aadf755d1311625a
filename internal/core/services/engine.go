package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/taskdeck/ingestd/internal/core/domain"
	"github.com/taskdeck/ingestd/internal/core/ports/driven"
	"github.com/taskdeck/ingestd/internal/core/ports/driving"
	"github.com/taskdeck/ingestd/internal/logger"
)

// DefaultReconcileInterval is how often the live source list is diffed
// against the running pollers and connections.
const DefaultReconcileInterval = 30 * time.Second

// pollLogKeep bounds the retained poll history per source.
const pollLogKeep = 100

// Ensure Engine implements the lifecycle interface.
var _ driving.Engine = (*Engine)(nil)

// EngineConfig carries the engine's tunables. Zero values use defaults.
type EngineConfig struct {
	ReconcileInterval time.Duration
	HealthInterval    time.Duration
	StaleThreshold    time.Duration
}

// Engine is the ingestion engine lifecycle: it resolves each enabled
// source to poll or realtime mode, runs both concurrently, reconciles
// against configuration changes and drains everything on stop. The
// registries of running pollers and connections are owned by the
// engine instance, so several engines can coexist in tests.
type Engine struct {
	registry   *PluginRegistry
	sources    driven.SourceStore
	store      driven.StateStore
	downloader driven.Downloader
	tasks      driven.TaskWriter
	automation driven.AutomationRunner
	secrets    driven.SecretResolver
	filters    *FilterEngine
	config     EngineConfig

	mu       sync.Mutex
	running  bool
	opts     driving.StartOptions
	pipeline *Pipeline
	pollers  map[string]*Poller
	modes    map[string]domain.Mode
	connMgr  *ConnectionManager

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewEngine wires an engine from its collaborators.
func NewEngine(
	registry *PluginRegistry,
	sources driven.SourceStore,
	store driven.StateStore,
	downloader driven.Downloader,
	tasks driven.TaskWriter,
	automation driven.AutomationRunner,
	secrets driven.SecretResolver,
	config EngineConfig,
) *Engine {
	return &Engine{
		registry:   registry,
		sources:    sources,
		store:      store,
		downloader: downloader,
		tasks:      tasks,
		automation: automation,
		secrets:    secrets,
		filters:    NewFilterEngine(),
		config:     config,
	}
}

// Start brings up pollers and connections for the enabled sources.
func (e *Engine) Start(ctx context.Context, opts driving.StartOptions) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return domain.ErrEngineRunning
	}
	e.running = true
	e.opts = opts
	e.pipeline = NewPipeline(e.filters, e.store, e.downloader, e.tasks, e.automation, opts.DryRun)
	e.pollers = make(map[string]*Poller)
	e.modes = make(map[string]domain.Mode)
	e.connMgr = NewConnectionManager(e.config.HealthInterval, e.config.StaleThreshold)
	e.stopCh = make(chan struct{})
	e.doneCh = make(chan struct{})
	e.mu.Unlock()

	sources, err := e.targetSources(ctx)
	if err != nil {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
		return err
	}

	for i, src := range sources {
		e.startSource(ctx, src, time.Duration(i)*StartStagger)
	}

	e.connMgr.Start(ctx)
	go e.reconcileLoop(ctx)

	logger.Info("engine started: %d sources", len(sources))
	return nil
}

// Stop halts poll timers and realtime connections, then drains the
// debounce buffers, tolerating individual source failures. Flushing
// last means an in-flight poll cannot add to a buffer after it has
// already been emptied.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = false
	pipeline := e.pipeline
	pollers := e.pollers
	connMgr := e.connMgr
	close(e.stopCh)
	e.mu.Unlock()

	<-e.doneCh

	// Phase one: cancel poll timers and wait out in-flight cycles.
	var g errgroup.Group
	for _, p := range pollers {
		g.Go(func() error {
			p.Stop()
			return nil
		})
	}
	_ = g.Wait()

	// Phase two: disconnect realtime connections.
	connMgr.StopAll(ctx)

	// Phase three: with every producer stopped, flush whatever the
	// debounce buffers still hold so no item is silently dropped.
	pipeline.Buffer().FlushAll()

	logger.Info("engine stopped")
	return nil
}

// Status reports the running sources.
func (e *Engine) Status(_ context.Context) []driving.SourceRunState {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []driving.SourceRunState
	for id, p := range e.pollers {
		out = append(out, driving.SourceRunState{
			SourceID: id,
			Mode:     domain.ModePoll,
			LastPoll: p.LastPoll(),
		})
	}
	if e.connMgr != nil {
		for id, mode := range e.modes {
			if mode != domain.ModeRealtime {
				continue
			}
			out = append(out, driving.SourceRunState{
				SourceID:   id,
				Mode:       domain.ModeRealtime,
				Connection: e.connMgr.Status(id),
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceID < out[j].SourceID })
	return out
}

// targetSources returns the enabled sources the engine should run,
// restricted to one when StartOptions names a source.
func (e *Engine) targetSources(ctx context.Context) ([]domain.Source, error) {
	sources, err := e.sources.Enabled(ctx)
	if err != nil {
		return nil, fmt.Errorf("load sources: %w", err)
	}
	if e.opts.SourceID == "" {
		return sources, nil
	}
	for _, s := range sources {
		if s.ID == e.opts.SourceID {
			return []domain.Source{s}, nil
		}
	}
	return nil, fmt.Errorf("source %q: %w", e.opts.SourceID, domain.ErrNotFound)
}

// startSource resolves a source's mode and launches its poller or
// connection. Failures are logged per source, never fatal to others.
// startSource launches the poller or realtime connection for one
// source. stagger spaces initial polls within a startup batch.
func (e *Engine) startSource(ctx context.Context, src domain.Source, stagger time.Duration) {
	adapter, meta, err := e.registry.NewAdapter(src.Type)
	if err != nil {
		logger.Warn("source %s: %v", src.ID, err)
		return
	}

	mode := src.ResolveMode(meta.SupportsRealtime)
	if mode == domain.ModeRealtime {
		rt, ok := adapter.(driven.RealtimeAdapter)
		if !ok {
			if src.Mode == domain.ModeRealtime {
				logger.Warn("source %s: %v", src.ID, domain.ErrRealtimeUnsupported)
				return
			}
			mode = domain.ModePoll
		} else {
			e.mu.Lock()
			e.modes[src.ID] = domain.ModeRealtime
			e.mu.Unlock()
			conn := NewConnection(src, rt, meta, e.pipeline, e.store, e.secrets, e.opts.DryRun)
			e.connMgr.Add(ctx, conn)
			return
		}
	}

	e.mu.Lock()
	poller := NewPoller(src, adapter, meta, e.pipeline, e.store, e.secrets, stagger, e.opts.DryRun)
	e.pollers[src.ID] = poller
	e.modes[src.ID] = domain.ModePoll
	e.mu.Unlock()

	poller.Start(ctx)
}

// stopSource stops whichever runner a source has.
func (e *Engine) stopSource(ctx context.Context, id string) {
	e.mu.Lock()
	poller := e.pollers[id]
	delete(e.pollers, id)
	delete(e.modes, id)
	e.mu.Unlock()

	if poller != nil {
		poller.Stop()
	}
	if err := e.connMgr.Remove(ctx, id); err != nil {
		logger.Warn("source %s: disconnect: %v", id, err)
	}
}

func (e *Engine) reconcileLoop(ctx context.Context) {
	defer close(e.doneCh)

	interval := e.config.ReconcileInterval
	if interval <= 0 {
		interval = DefaultReconcileInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.reconcile(ctx)
		}
	}
}

// reconcile diffs the live source list against the running sources,
// stopping removed or disabled ones and starting newly added ones
// without restarting the rest. Pruning of old poll history piggybacks
// on the same tick.
func (e *Engine) reconcile(ctx context.Context) {
	sources, err := e.targetSources(ctx)
	if err != nil {
		logger.Warn("reconcile: %v", err)
		return
	}

	want := make(map[string]domain.Source, len(sources))
	for _, s := range sources {
		want[s.ID] = s
	}

	e.mu.Lock()
	runningIDs := make([]string, 0, len(e.modes))
	for id := range e.modes {
		runningIDs = append(runningIDs, id)
	}
	e.mu.Unlock()

	for _, id := range runningIDs {
		if _, keep := want[id]; !keep {
			logger.Info("source %s: removed or disabled, stopping", id)
			e.stopSource(ctx, id)
		}
	}

	running := make(map[string]bool, len(runningIDs))
	for _, id := range runningIDs {
		running[id] = true
	}
	// Stagger restarts from zero for each reconcile batch.
	added := 0
	for id, src := range want {
		if !running[id] {
			logger.Info("source %s: added, starting", id)
			e.startSource(ctx, src, time.Duration(added)*StartStagger)
			added++
		}
	}

	if !e.opts.DryRun {
		if err := e.store.PrunePolls(ctx, pollLogKeep); err != nil {
			logger.Debug("prune poll log: %v", err)
		}
	}
}
