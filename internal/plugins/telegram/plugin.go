// Package telegram ingests messages from a Telegram bot, either over a
// long-polling realtime connection or on a plain poll schedule.
package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/taskdeck/ingestd/internal/core/domain"
	"github.com/taskdeck/ingestd/internal/core/ports/driven"
	"github.com/taskdeck/ingestd/internal/logger"
)

// Plugin returns the telegram plugin registration.
func Plugin() driven.Plugin {
	return driven.Plugin{
		Metadata: domain.PluginMetadata{
			Type:             "telegram",
			Name:             "Telegram Bot",
			Description:      "Ingests messages sent to a Telegram bot",
			Version:          "2.0.0",
			SupportsRealtime: true,
			ConfigFields: []domain.ConfigField{
				{Key: "tokenSecret", Label: "Bot Token Secret Name", Type: domain.ConfigSecret, Required: true},
				{Key: "chatId", Label: "Restrict To Chat ID", Type: domain.ConfigString},
			},
			ItemFields: []domain.ItemField{
				{Key: "sender", Label: "Sender", Type: domain.FieldString},
				{Key: "chat", Label: "Chat", Type: domain.FieldString},
				{Key: "hasAttachment", Label: "Has Attachment", Type: domain.FieldBoolean},
			},
		},
		New: func() driven.Adapter { return &adapter{} },
	}
}

var _ driven.RealtimeAdapter = (*adapter)(nil)

type adapter struct {
	mu   sync.Mutex
	bot  *tgbotapi.BotAPI
	stop chan struct{}
	done chan struct{}
}

type cursor struct {
	Offset int `json:"offset"`
}

func (a *adapter) Poll(ctx context.Context, source domain.Source, state json.RawMessage, secrets driven.SecretResolver) (*driven.PollResult, error) {
	var cur cursor
	if len(state) > 0 {
		_ = json.Unmarshal(state, &cur)
	}

	bot, err := a.connectBot(source, secrets)
	if err != nil {
		return nil, err
	}

	updates, err := bot.GetUpdates(tgbotapi.UpdateConfig{Offset: cur.Offset, Limit: 100})
	if err != nil {
		return nil, fmt.Errorf("get updates: %w", err)
	}

	var items []domain.IngestItem
	for _, u := range updates {
		if u.UpdateID >= cur.Offset {
			cur.Offset = u.UpdateID + 1
		}
		item, ok := a.toItem(bot, source, u)
		if !ok {
			continue
		}
		items = append(items, item)
	}

	next, err := json.Marshal(cur)
	if err != nil {
		return nil, fmt.Errorf("encode cursor: %w", err)
	}
	return &driven.PollResult{Items: items, State: next}, nil
}

func (a *adapter) Test(ctx context.Context, source domain.Source, secrets driven.SecretResolver) (*driven.TestResult, error) {
	bot, err := a.connectBot(source, secrets)
	if err != nil {
		return &driven.TestResult{OK: false, Message: err.Error()}, nil
	}
	return &driven.TestResult{
		OK:      true,
		Message: fmt.Sprintf("authenticated as @%s", bot.Self.UserName),
	}, nil
}

// Connect starts a long-polling update loop on the adapter's goroutine.
func (a *adapter) Connect(ctx context.Context, source domain.Source, secrets driven.SecretResolver, cb driven.ConnectionCallbacks) error {
	bot, err := a.connectBot(source, secrets)
	if err != nil {
		return err
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := bot.GetUpdatesChan(u)

	a.mu.Lock()
	a.bot = bot
	a.stop = make(chan struct{})
	a.done = make(chan struct{})
	stop, done := a.stop, a.done
	a.mu.Unlock()

	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				cb.OnDisconnect(nil)
				return
			case upd, ok := <-updates:
				if !ok {
					cb.OnDisconnect(fmt.Errorf("update channel closed"))
					return
				}
				item, keep := a.toItem(bot, source, upd)
				if keep {
					cb.OnMessage(item)
				}
			}
		}
	}()
	return nil
}

func (a *adapter) Disconnect(ctx context.Context) error {
	a.mu.Lock()
	bot, stop, done := a.bot, a.stop, a.done
	a.bot, a.stop, a.done = nil, nil, nil
	a.mu.Unlock()

	if bot == nil {
		return domain.ErrNotConnected
	}
	bot.StopReceivingUpdates()
	close(stop)
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (a *adapter) connectBot(source domain.Source, secrets driven.SecretResolver) (*tgbotapi.BotAPI, error) {
	token, err := secrets(source.Config["tokenSecret"])
	if err != nil {
		return nil, err
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram auth: %w", err)
	}
	return bot, nil
}

// toItem converts one update into an ingest item. Updates without a
// message, or from a chat the source is not watching, are dropped.
func (a *adapter) toItem(bot *tgbotapi.BotAPI, source domain.Source, u tgbotapi.Update) (domain.IngestItem, bool) {
	msg := u.Message
	if msg == nil {
		return domain.IngestItem{}, false
	}
	if want := source.Config["chatId"]; want != "" && want != strconv.FormatInt(msg.Chat.ID, 10) {
		return domain.IngestItem{}, false
	}

	text := msg.Text
	if text == "" {
		text = msg.Caption
	}

	sender := msg.From.UserName
	if sender == "" {
		sender = msg.From.FirstName
	}

	id := strconv.Itoa(msg.MessageID)
	item := domain.IngestItem{
		ID:          id,
		Hash:        domain.ContentHash(id, text),
		Title:       firstLine(text),
		Description: text,
		Fields: map[string]any{
			"sender": sender,
			"chat":   msg.Chat.Title,
		},
		Origin: domain.Origin{
			AdapterType: "telegram",
			Channel:     strconv.FormatInt(msg.Chat.ID, 10),
			Sender:      sender,
		},
	}

	if msg.ReplyToMessage != nil {
		parent := strconv.Itoa(msg.ReplyToMessage.MessageID)
		item.ThreadTS = parent
		item.Origin.ThreadID = parent
	}

	item.Attachments = a.attachments(bot, msg)
	item.Fields["hasAttachment"] = len(item.Attachments) > 0
	return item, true
}

func (a *adapter) attachments(bot *tgbotapi.BotAPI, msg *tgbotapi.Message) []domain.Attachment {
	var out []domain.Attachment
	if len(msg.Photo) > 0 {
		// Telegram sends several sizes; the last is the largest.
		fileID := msg.Photo[len(msg.Photo)-1].FileID
		if url, err := bot.GetFileDirectURL(fileID); err == nil {
			out = append(out, domain.Attachment{URL: url, Name: "photo.jpg"})
		} else {
			logger.Warn("telegram: resolve photo url: %v", err)
		}
	}
	if msg.Document != nil {
		if url, err := bot.GetFileDirectURL(msg.Document.FileID); err == nil {
			out = append(out, domain.Attachment{URL: url, Name: msg.Document.FileName})
		} else {
			logger.Warn("telegram: resolve document url: %v", err)
		}
	}
	return out
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 80 {
		s = s[:77] + "..."
	}
	if s == "" {
		s = "(no text)"
	}
	return s
}
