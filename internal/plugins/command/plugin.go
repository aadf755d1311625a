// Package command runs an external program as a source adapter. The
// program receives one JSON request on stdin and writes one JSON
// response to stdout. User plugins installed from manifests are backed
// by this adapter.
package command

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/taskdeck/ingestd/internal/core/domain"
	"github.com/taskdeck/ingestd/internal/core/ports/driven"
)

const defaultTimeout = 60 * time.Second

// Plugin returns the command plugin registration.
func Plugin() driven.Plugin {
	return driven.Plugin{
		Metadata: domain.PluginMetadata{
			Type:        "command",
			Name:        "External Command",
			Description: "Delegates polling to an external program speaking JSON on stdin/stdout",
			Version:     "1.0.0",
			ConfigFields: []domain.ConfigField{
				{Key: "command", Label: "Command", Type: domain.ConfigString, Required: true},
				{Key: "timeoutSec", Label: "Timeout (seconds)", Type: domain.ConfigNumber},
			},
		},
		New: func() driven.Adapter { return &Adapter{} },
	}
}

var (
	_ driven.Adapter     = (*Adapter)(nil)
	_ driven.ReplyPoller = (*Adapter)(nil)
)

// Adapter shells out to a configured command. Command is an override
// used by manifest-backed plugins; when empty the source's "command"
// config key is used.
type Adapter struct {
	Command string
}

// request is what the program reads from stdin.
type request struct {
	Mode    string                `json:"mode"`
	Source  requestSource         `json:"source"`
	State   json.RawMessage       `json:"state,omitempty"`
	Threads []domain.ThreadRecord `json:"threads,omitempty"`
}

type requestSource struct {
	ID      string            `json:"id"`
	Project string            `json:"project"`
	Config  map[string]string `json:"config"`
}

// response is what the program writes to stdout.
type response struct {
	Items   []domain.IngestItem `json:"items"`
	State   json.RawMessage     `json:"state"`
	OK      bool                `json:"ok"`
	Message string              `json:"message"`
	Replies []domain.Reply      `json:"replies"`
}

func (a *Adapter) Poll(ctx context.Context, source domain.Source, state json.RawMessage, _ driven.SecretResolver) (*driven.PollResult, error) {
	resp, err := a.run(ctx, source, request{Mode: "poll", State: state})
	if err != nil {
		return nil, err
	}
	next := resp.State
	if len(next) == 0 {
		next = state
	}
	return &driven.PollResult{Items: resp.Items, State: next}, nil
}

func (a *Adapter) Test(ctx context.Context, source domain.Source, _ driven.SecretResolver) (*driven.TestResult, error) {
	resp, err := a.run(ctx, source, request{Mode: "test"})
	if err != nil {
		return &driven.TestResult{OK: false, Message: err.Error()}, nil
	}
	msg := resp.Message
	if msg == "" && resp.OK {
		msg = "command ran"
	}
	return &driven.TestResult{OK: resp.OK, Message: msg, SampleItems: resp.Items}, nil
}

// PollReplies asks the program for replies to the given threads. The
// program reports each reply with its parent item id and a cursor.
func (a *Adapter) PollReplies(ctx context.Context, source domain.Source, threads []domain.ThreadRecord, _ driven.SecretResolver) ([]domain.Reply, error) {
	resp, err := a.run(ctx, source, request{Mode: "replies", Threads: threads})
	if err != nil {
		return nil, err
	}
	return resp.Replies, nil
}

func (a *Adapter) run(ctx context.Context, source domain.Source, req request) (*response, error) {
	command := a.Command
	if command == "" {
		command = source.Config["command"]
	}
	if command == "" {
		return nil, fmt.Errorf("command: %w", domain.ErrInvalidInput)
	}

	req.Source = requestSource{ID: source.ID, Project: source.Project, Config: source.Config}
	input, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout(source))
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Stdin = bytes.NewReader(input)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail != "" {
			return nil, fmt.Errorf("run %q: %w: %s", command, err, detail)
		}
		return nil, fmt.Errorf("run %q: %w", command, err)
	}

	var resp response
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return nil, fmt.Errorf("decode output of %q: %w", command, err)
	}
	return &resp, nil
}

func (a *Adapter) timeout(source domain.Source) time.Duration {
	if v := source.Config["timeoutSec"]; v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	return defaultTimeout
}
