// Package pim is the HTTP client for the personal information service that
// owns tasks, calendar, email and notes. It backs both the context
// aggregator's bounded reads and the action executor's writes.
package pim

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/sandevgo/aide/internal/core"
)

const defaultTimeout = 20 * time.Second

type Client struct {
	client  *http.Client
	baseURL string
	token   string
}

func New(baseURL, token string) *Client {
	return &Client{
		client:  &http.Client{Timeout: defaultTimeout},
		baseURL: baseURL,
		token:   token,
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("User-Agent", core.AideUserAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("pim %s %s: http %d: %s", method, path, resp.StatusCode, string(data))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// handleResponse is the write-endpoint reply: the service's opaque id for
// the created or changed resource.
type handleResponse struct {
	ID string `json:"id"`
}

func (c *Client) RecentTasks(ctx context.Context, n int) ([]core.TaskRecord, error) {
	var out []core.TaskRecord
	if err := c.do(ctx, http.MethodGet, "/v1/tasks/recent?limit="+strconv.Itoa(n), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) UpcomingEvents(ctx context.Context, n int) ([]core.EventRecord, error) {
	var out []core.EventRecord
	if err := c.do(ctx, http.MethodGet, "/v1/calendar/upcoming?limit="+strconv.Itoa(n), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) RecentMail(ctx context.Context, n int) ([]core.MailRecord, error) {
	var out []core.MailRecord
	if err := c.do(ctx, http.MethodGet, "/v1/mail/recent?limit="+strconv.Itoa(n), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateTask(ctx context.Context, data core.TaskData) (string, error) {
	var out handleResponse
	if err := c.do(ctx, http.MethodPost, "/v1/tasks", data, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (c *Client) UpdateTask(ctx context.Context, data core.TaskUpdateData) (string, error) {
	var out handleResponse
	path := "/v1/tasks/" + data.TaskID
	if err := c.do(ctx, http.MethodPatch, path, data, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (c *Client) CreateEvent(ctx context.Context, data core.EventData) (string, error) {
	var out handleResponse
	if err := c.do(ctx, http.MethodPost, "/v1/calendar/events", data, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (c *Client) CreateNote(ctx context.Context, data core.NoteData) (string, error) {
	var out handleResponse
	if err := c.do(ctx, http.MethodPost, "/v1/notes", data, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (c *Client) EditNote(ctx context.Context, data core.NoteData) (string, error) {
	var out handleResponse
	if err := c.do(ctx, http.MethodPut, "/v1/notes", data, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (c *Client) MoveNote(ctx context.Context, data core.MoveNoteData) (string, error) {
	var out handleResponse
	if err := c.do(ctx, http.MethodPost, "/v1/notes/move", data, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (c *Client) DraftEmail(ctx context.Context, data core.EmailDraftData) (string, error) {
	var out handleResponse
	if err := c.do(ctx, http.MethodPost, "/v1/mail/drafts", data, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}
