// Package wschat ingests messages from a websocket chat endpoint that
// pushes JSON frames. The endpoint owns history, so polling returns
// nothing; this source is realtime-only in practice.
package wschat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"github.com/taskdeck/ingestd/internal/core/domain"
	"github.com/taskdeck/ingestd/internal/core/ports/driven"
)

// Plugin returns the wschat plugin registration.
func Plugin() driven.Plugin {
	return driven.Plugin{
		Metadata: domain.PluginMetadata{
			Type:             "wschat",
			Name:             "Websocket Chat",
			Description:      "Ingests messages pushed over a websocket connection",
			Version:          "0.4.0",
			SupportsRealtime: true,
			ConfigFields: []domain.ConfigField{
				{Key: "url", Label: "Websocket URL", Type: domain.ConfigString, Required: true},
				{Key: "tokenSecret", Label: "Token Secret Name", Type: domain.ConfigSecret},
			},
			ItemFields: []domain.ItemField{
				{Key: "sender", Label: "Sender", Type: domain.FieldString},
				{Key: "channel", Label: "Channel", Type: domain.FieldString},
			},
		},
		New: func() driven.Adapter { return &adapter{} },
	}
}

var _ driven.RealtimeAdapter = (*adapter)(nil)

type adapter struct {
	mu   sync.Mutex
	conn *websocket.Conn
	stop context.CancelFunc
	done chan struct{}
}

// frame is one inbound chat message.
type frame struct {
	ID          string `json:"id"`
	Channel     string `json:"channel"`
	Sender      string `json:"sender"`
	Text        string `json:"text"`
	ThreadTS    string `json:"threadTs"`
	Attachments []struct {
		URL  string `json:"url"`
		Name string `json:"name"`
	} `json:"attachments"`
}

// Poll is a no-op: the server does not replay history, so there is
// nothing to fetch between connections.
func (a *adapter) Poll(ctx context.Context, source domain.Source, state json.RawMessage, _ driven.SecretResolver) (*driven.PollResult, error) {
	return &driven.PollResult{State: state}, nil
}

func (a *adapter) Test(ctx context.Context, source domain.Source, secrets driven.SecretResolver) (*driven.TestResult, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, err := a.dial(ctx, source, secrets)
	if err != nil {
		return &driven.TestResult{OK: false, Message: err.Error()}, nil
	}
	conn.Close(websocket.StatusNormalClosure, "test")
	return &driven.TestResult{OK: true, Message: "websocket endpoint reachable"}, nil
}

func (a *adapter) Connect(ctx context.Context, source domain.Source, secrets driven.SecretResolver, cb driven.ConnectionCallbacks) error {
	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	conn, err := a.dial(dialCtx, source, secrets)
	cancel()
	if err != nil {
		return err
	}

	readCtx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})

	a.mu.Lock()
	a.conn = conn
	a.stop = stop
	a.done = done
	a.mu.Unlock()

	go func() {
		defer close(done)
		for {
			_, data, err := conn.Read(readCtx)
			if err != nil {
				if readCtx.Err() != nil {
					cb.OnDisconnect(nil)
				} else {
					cb.OnDisconnect(err)
				}
				return
			}
			var f frame
			if err := json.Unmarshal(data, &f); err != nil {
				cb.OnError(fmt.Errorf("bad frame: %w", err))
				continue
			}
			cb.OnMessage(toItem(f))
		}
	}()
	return nil
}

func (a *adapter) Disconnect(ctx context.Context) error {
	a.mu.Lock()
	conn, stop, done := a.conn, a.stop, a.done
	a.conn, a.stop, a.done = nil, nil, nil
	a.mu.Unlock()

	if conn == nil {
		return domain.ErrNotConnected
	}
	stop()
	conn.Close(websocket.StatusNormalClosure, "shutdown")
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (a *adapter) dial(ctx context.Context, source domain.Source, secrets driven.SecretResolver) (*websocket.Conn, error) {
	opts := &websocket.DialOptions{}
	if name := source.Config["tokenSecret"]; name != "" {
		token, err := secrets(name)
		if err != nil {
			return nil, err
		}
		opts.HTTPHeader = http.Header{"Authorization": {"Bearer " + token}}
	}
	conn, _, err := websocket.Dial(ctx, source.Config["url"], opts)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", source.Config["url"], err)
	}
	return conn, nil
}

func toItem(f frame) domain.IngestItem {
	item := domain.IngestItem{
		ID:          f.ID,
		Hash:        domain.ContentHash(f.ID, f.Text),
		Title:       title(f.Text),
		Description: f.Text,
		ThreadTS:    f.ThreadTS,
		Fields: map[string]any{
			"sender":  f.Sender,
			"channel": f.Channel,
		},
		Origin: domain.Origin{
			AdapterType: "wschat",
			Channel:     f.Channel,
			Sender:      f.Sender,
			ThreadID:    f.ThreadTS,
		},
	}
	for _, att := range f.Attachments {
		item.Attachments = append(item.Attachments, domain.Attachment{URL: att.URL, Name: att.Name})
	}
	return item
}

func title(text string) string {
	for i, r := range text {
		if r == '\n' {
			text = text[:i]
			break
		}
	}
	if len(text) > 80 {
		text = text[:77] + "..."
	}
	if text == "" {
		text = "(no text)"
	}
	return text
}
