// Package tracker hands created tasks to the downstream task tracker.
// The tracker itself is an external collaborator; this package only
// implements its write interface.
package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/taskdeck/ingestd/internal/core/domain"
	"github.com/taskdeck/ingestd/internal/core/ports/driven"
)

// Ensure Client implements the interfaces.
var (
	_ driven.TaskWriter       = (*Client)(nil)
	_ driven.AutomationRunner = (*Client)(nil)
)

// Client is an HTTP client for the task-tracker API.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewClient creates a tracker client. token may be empty for trackers
// without authentication.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// CreateTask creates one task and returns its tracker ID.
func (c *Client) CreateTask(ctx context.Context, task domain.NewTask) (string, error) {
	var resp struct {
		ID string `json:"id"`
	}
	if err := c.post(ctx, "/api/tasks", task, &resp); err != nil {
		return "", fmt.Errorf("create task: %w", err)
	}
	if resp.ID == "" {
		return "", fmt.Errorf("create task: tracker returned no id")
	}
	return resp.ID, nil
}

// AppendReplies appends threaded replies to a task in one batched write.
func (c *Client) AppendReplies(ctx context.Context, taskID string, replies []domain.Reply) error {
	payload := struct {
		Replies []domain.Reply `json:"replies"`
	}{Replies: replies}
	if err := c.post(ctx, "/api/tasks/"+taskID+"/replies", payload, nil); err != nil {
		return fmt.Errorf("append replies: %w", err)
	}
	return nil
}

// Trigger fires an automation directive for a task.
func (c *Client) Trigger(ctx context.Context, taskID, directive string) error {
	payload := struct {
		TaskID    string `json:"taskId"`
		Directive string `json:"directive"`
	}{TaskID: taskID, Directive: directive}
	if err := c.post(ctx, "/api/automations/trigger", payload, nil); err != nil {
		return fmt.Errorf("trigger automation: %w", err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("tracker returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
