package driven

import (
	"context"
	"encoding/json"

	"github.com/taskdeck/ingestd/internal/core/domain"
)

// SecretResolver resolves a named credential for adapters and the
// downloader. Resolution failure must surface as a descriptive error,
// never a silent empty credential.
type SecretResolver func(name string) (string, error)

// PollResult is what one poll cycle returns: zero or more new items and
// the adapter's replacement state blob. State is replaced wholesale by
// the caller, never merged field by field.
type PollResult struct {
	Items []domain.IngestItem
	State json.RawMessage
}

// TestResult reports a connectivity test.
type TestResult struct {
	OK          bool
	Message     string
	SampleItems []domain.IngestItem
}

// Adapter ingests one source type. Poll and Test are the required
// contract; realtime and reply support are optional capabilities
// discovered with type assertions.
type Adapter interface {
	// Poll fetches items newer than the given state and returns the
	// replacement state. A nil state means first poll.
	Poll(ctx context.Context, source domain.Source, state json.RawMessage, secrets SecretResolver) (*PollResult, error)

	// Test verifies the source is reachable with its current
	// configuration and credentials.
	Test(ctx context.Context, source domain.Source, secrets SecretResolver) (*TestResult, error)
}

// ConnectionCallbacks are wired into a realtime adapter on connect.
type ConnectionCallbacks struct {
	// OnMessage delivers one inbound item through the ingest pipeline.
	OnMessage func(item domain.IngestItem)

	// OnError reports a non-fatal connection error.
	OnError func(err error)

	// OnDisconnect reports the connection dropping. deliberate is true
	// when the manager itself initiated the disconnect.
	OnDisconnect func(err error)
}

// RealtimeAdapter is implemented by adapters that can hold a persistent
// connection. The connection manager checks for this interface before
// resolving a source to realtime mode.
type RealtimeAdapter interface {
	Adapter

	// Connect establishes the connection and wires callbacks. It
	// returns once the connection is established; message delivery
	// happens on the adapter's own goroutine.
	Connect(ctx context.Context, source domain.Source, secrets SecretResolver, cb ConnectionCallbacks) error

	// Disconnect tears the connection down. OnDisconnect still fires a
	// final time after a deliberate disconnect.
	Disconnect(ctx context.Context) error
}

// AuthHeaderProvider is implemented by adapters whose attachment URLs
// require authenticated fetches. The returned headers are applied to
// every download request for the source.
type AuthHeaderProvider interface {
	DownloadAuth(source domain.Source, secrets SecretResolver) (map[string]string, error)
}

// ReplyPoller is implemented by adapters that can fetch threaded
// replies for previously ingested items.
type ReplyPoller interface {
	// PollReplies fetches replies newer than each thread's cursor.
	PollReplies(ctx context.Context, source domain.Source, threads []domain.ThreadRecord, secrets SecretResolver) ([]domain.Reply, error)
}

// Plugin couples adapter metadata with a factory for adapter instances.
// One adapter instance is created per running source.
type Plugin struct {
	Metadata domain.PluginMetadata
	New      func() Adapter
}
