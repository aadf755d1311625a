package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/taskdeck/ingestd/internal/core/domain"
	"github.com/taskdeck/ingestd/internal/core/ports/driven"
	"github.com/taskdeck/ingestd/internal/logger"
)

const (
	// DefaultHealthInterval is how often connections are health-checked.
	DefaultHealthInterval = 60 * time.Second

	// DefaultStaleThreshold flags a connection stale when it has
	// received messages before but none within this window.
	DefaultStaleThreshold = 300 * time.Second

	// connectionMetaKey is the reserved key under which connection
	// bookkeeping is merged into the adapter state blob. The merge is
	// the one sanctioned exception to whole-blob state replacement.
	connectionMetaKey = "_connection"
)

// Connection drives one realtime source: connect, deliver messages
// through the pipeline, reconnect with exponential backoff on error or
// staleness.
type Connection struct {
	source   domain.Source
	adapter  driven.RealtimeAdapter
	meta     *domain.PluginMetadata
	pipeline *Pipeline
	store    driven.StateStore
	secrets  driven.SecretResolver
	backoff  Backoff
	dryRun   bool

	mu            sync.Mutex
	status        domain.ConnectionStatus
	connectedAt   time.Time
	lastMessageAt time.Time
	receivedAny   bool
	reconnects    int
	deliberate    bool
	reconnecting  bool

	stopCh chan struct{}
}

// NewConnection creates an unconnected connection for a source.
func NewConnection(
	source domain.Source,
	adapter driven.RealtimeAdapter,
	meta *domain.PluginMetadata,
	pipeline *Pipeline,
	store driven.StateStore,
	secrets driven.SecretResolver,
	dryRun bool,
) *Connection {
	return &Connection{
		source:   source,
		adapter:  adapter,
		meta:     meta,
		pipeline: pipeline,
		store:    store,
		secrets:  secrets,
		backoff:  DefaultBackoff(),
		dryRun:   dryRun,
		status:   domain.ConnDisconnected,
		stopCh:   make(chan struct{}),
	}
}

// Status returns the connection's lifecycle state.
func (c *Connection) Status() domain.ConnectionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Connect establishes the connection and persists its metadata.
func (c *Connection) Connect(ctx context.Context) error {
	c.setStatus(domain.ConnConnecting)

	err := c.adapter.Connect(ctx, c.source, c.secrets, driven.ConnectionCallbacks{
		OnMessage:    c.onMessage,
		OnError:      c.onError,
		OnDisconnect: c.onDisconnect,
	})
	if err != nil {
		c.setStatus(domain.ConnDisconnected)
		return err
	}

	c.mu.Lock()
	c.status = domain.ConnConnected
	c.connectedAt = time.Now()
	c.mu.Unlock()
	c.persistMeta(ctx)
	logger.Info("source %s: connected", c.source.ID)
	return nil
}

// Disconnect tears the connection down deliberately; the subsequent
// OnDisconnect callback does not trigger a reconnect.
func (c *Connection) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	c.deliberate = true
	c.status = domain.ConnDisconnecting
	c.mu.Unlock()
	close(c.stopCh)

	err := c.adapter.Disconnect(ctx)
	c.setStatus(domain.ConnDisconnected)
	c.persistMeta(ctx)
	return err
}

// Stale reports whether the connection has received at least one
// message before but none within the threshold. A zero threshold
// disables the check.
func (c *Connection) Stale(threshold time.Duration) bool {
	if threshold <= 0 {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != domain.ConnConnected || !c.receivedAny {
		return false
	}
	return time.Since(c.lastMessageAt) > threshold
}

// ForceReconnect treats the connection as dropped. Used by the health
// monitor when a connection goes stale.
func (c *Connection) ForceReconnect(ctx context.Context) {
	logger.Warn("source %s: connection stale, reconnecting", c.source.ID)
	if err := c.adapter.Disconnect(ctx); err != nil {
		logger.Debug("source %s: disconnect before reconnect: %v", c.source.ID, err)
	}
	// A deliberate=false disconnect path follows through onDisconnect.
}

func (c *Connection) onMessage(item domain.IngestItem) {
	c.mu.Lock()
	c.lastMessageAt = time.Now()
	c.receivedAny = true
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	var authHeaders map[string]string
	if provider, ok := c.adapter.(driven.AuthHeaderProvider); ok {
		if h, err := provider.DownloadAuth(c.source, c.secrets); err == nil {
			authHeaders = h
		}
	}

	if _, err := c.pipeline.HandleItem(ctx, c.source, c.meta, item, authHeaders); err != nil {
		logger.Warn("source %s: realtime item %s: %v", c.source.ID, item.ID, err)
	}
}

func (c *Connection) onError(err error) {
	logger.Warn("source %s: connection error: %v", c.source.ID, err)
}

func (c *Connection) onDisconnect(err error) {
	c.mu.Lock()
	deliberate := c.deliberate
	c.mu.Unlock()
	if deliberate {
		return
	}
	if err != nil {
		logger.Warn("source %s: connection dropped: %v", c.source.ID, err)
	}
	c.startReconnect()
}

// startReconnect launches the reconnect loop unless one is already
// running. A forced disconnect can race the adapter's own disconnect
// callback; only one loop may drive the connection at a time.
func (c *Connection) startReconnect() {
	c.mu.Lock()
	if c.reconnecting || c.deliberate {
		c.mu.Unlock()
		return
	}
	c.reconnecting = true
	c.mu.Unlock()
	go c.reconnectLoop()
}

// reconnectLoop retries the connection with exponential backoff until
// it succeeds or the connection is stopped.
func (c *Connection) reconnectLoop() {
	defer func() {
		c.mu.Lock()
		c.reconnecting = false
		c.mu.Unlock()
	}()

	c.setStatus(domain.ConnReconnecting)

	for attempt := 1; ; attempt++ {
		delay := c.backoff.Delay(attempt)
		timer := time.NewTimer(delay)
		select {
		case <-c.stopCh:
			timer.Stop()
			return
		case <-timer.C:
		}

		c.mu.Lock()
		c.reconnects++
		c.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		err := c.Connect(ctx)
		cancel()
		if err == nil {
			return
		}
		c.setStatus(domain.ConnReconnecting)
		logger.Warn("source %s: reconnect attempt %d failed: %v", c.source.ID, attempt, err)
	}
}

func (c *Connection) setStatus(s domain.ConnectionStatus) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
}

// persistMeta merges connection bookkeeping into the adapter state blob
// without clobbering any cursor data the adapter stores there.
func (c *Connection) persistMeta(ctx context.Context) {
	if c.dryRun {
		return
	}
	c.mu.Lock()
	meta := domain.ConnectionMeta{
		Status:        c.status,
		ConnectedAt:   c.connectedAt,
		LastMessageAt: c.lastMessageAt,
		Reconnects:    c.reconnects,
	}
	c.mu.Unlock()

	blob, err := c.store.GetState(ctx, c.source.ID)
	if err != nil {
		logger.Warn("source %s: read state for connection meta: %v", c.source.ID, err)
		return
	}

	state := make(map[string]json.RawMessage)
	if len(blob) > 0 {
		if err := json.Unmarshal(blob, &state); err != nil {
			// Adapter state is not an object; keep it under its own key
			// so nothing is lost.
			state = map[string]json.RawMessage{"state": blob}
		}
	}
	encoded, err := json.Marshal(meta)
	if err != nil {
		return
	}
	state[connectionMetaKey] = encoded

	merged, err := json.Marshal(state)
	if err != nil {
		return
	}
	if err := c.store.SetState(ctx, c.source.ID, merged); err != nil {
		logger.Warn("source %s: persist connection meta: %v", c.source.ID, err)
	}
}

// ConnectionManager owns the realtime connections and their health
// monitoring.
type ConnectionManager struct {
	healthInterval time.Duration
	staleDefault   time.Duration

	mu    sync.Mutex
	conns map[string]*Connection

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewConnectionManager creates a manager. Zero intervals use defaults.
func NewConnectionManager(healthInterval, staleDefault time.Duration) *ConnectionManager {
	if healthInterval <= 0 {
		healthInterval = DefaultHealthInterval
	}
	if staleDefault <= 0 {
		staleDefault = DefaultStaleThreshold
	}
	return &ConnectionManager{
		healthInterval: healthInterval,
		staleDefault:   staleDefault,
		conns:          make(map[string]*Connection),
		stopCh:         make(chan struct{}),
		doneCh:         make(chan struct{}),
	}
}

// Start launches the health monitor.
func (m *ConnectionManager) Start(ctx context.Context) {
	go m.healthLoop(ctx)
}

// Add registers and connects a connection. A connect failure leaves the
// connection registered and retrying in the background.
func (m *ConnectionManager) Add(ctx context.Context, conn *Connection) {
	m.mu.Lock()
	m.conns[conn.source.ID] = conn
	m.mu.Unlock()

	if err := conn.Connect(ctx); err != nil {
		logger.Warn("source %s: initial connect failed: %v", conn.source.ID, err)
		conn.startReconnect()
	}
}

// Remove disconnects and forgets a source's connection.
func (m *ConnectionManager) Remove(ctx context.Context, sourceID string) error {
	m.mu.Lock()
	conn, ok := m.conns[sourceID]
	delete(m.conns, sourceID)
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return conn.Disconnect(ctx)
}

// Has reports whether a source has a registered connection.
func (m *ConnectionManager) Has(sourceID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.conns[sourceID]
	return ok
}

// Status returns the lifecycle state for a source's connection.
func (m *ConnectionManager) Status(sourceID string) domain.ConnectionStatus {
	m.mu.Lock()
	conn, ok := m.conns[sourceID]
	m.mu.Unlock()
	if !ok {
		return domain.ConnDisconnected
	}
	return conn.Status()
}

// StopAll disconnects every connection, tolerating individual failures,
// and stops the health monitor.
func (m *ConnectionManager) StopAll(ctx context.Context) {
	m.stopOnce.Do(func() { close(m.stopCh) })
	<-m.doneCh

	m.mu.Lock()
	conns := make([]*Connection, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	m.conns = make(map[string]*Connection)
	m.mu.Unlock()

	for _, c := range conns {
		if err := c.Disconnect(ctx); err != nil {
			logger.Warn("source %s: disconnect: %v", c.source.ID, err)
		}
	}
}

func (m *ConnectionManager) healthLoop(ctx context.Context) {
	defer close(m.doneCh)
	ticker := time.NewTicker(m.healthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.checkHealth(ctx)
		}
	}
}

// checkHealth flags stale connections and persists fresh metadata for
// the rest.
func (m *ConnectionManager) checkHealth(ctx context.Context) {
	m.mu.Lock()
	conns := make([]*Connection, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	m.mu.Unlock()

	for _, c := range conns {
		threshold := c.source.StaleThreshold(m.staleDefault)
		if c.Stale(threshold) {
			c.ForceReconnect(ctx)
			continue
		}
		c.persistMeta(ctx)
	}
}
