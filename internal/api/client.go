// Package api is the REST client for the task backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bkonkle/taskdeck/internal/roster"
	"github.com/bkonkle/taskdeck/internal/task"
)

// DefaultTimeout is applied to every request when none is configured.
const DefaultTimeout = 30 * time.Second

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Code, body)
}

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}

// Client provides typed access to the task backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the per-request timeout. A client passed with
// WithHTTPClient is copied, not modified.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			hc := *c.httpClient
			hc.Timeout = d
			c.httpClient = &hc
		}
	}
}

// NewClient creates a client for the backend at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the configured backend address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// CreateRequest is the body of POST /api/tasks.
type CreateRequest struct {
	UserID  string `json:"user_id"`
	Text    string `json:"text"`
	AgentID string `json:"agent_id,omitempty"`
}

// UpdateRequest is the body of PATCH /api/tasks/{id}. Nil fields are left
// unchanged.
type UpdateRequest struct {
	Status *task.Status `json:"status,omitempty"`
	Result *string      `json:"result,omitempty"`
}

// FeedbackRequest is the body of POST /api/tasks/{id}/feedback.
type FeedbackRequest struct {
	Rating   int    `json:"rating"`
	Feedback string `json:"feedback,omitempty"`
}

// ListTasks returns every task of the user. It backs the initial snapshot.
func (c *Client) ListTasks(ctx context.Context, userID string) ([]task.Task, error) {
	query := url.Values{}
	query.Set("user_id", userID)

	var tasks []task.Task
	if err := c.do(ctx, http.MethodGet, "/api/tasks", query, nil, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// GetTask fetches a single task by id.
func (c *Client) GetTask(ctx context.Context, id string) (task.Task, error) {
	var t task.Task
	if err := c.do(ctx, http.MethodGet, "/api/tasks/"+url.PathEscape(id), nil, nil, &t); err != nil {
		return task.Task{}, err
	}
	return t, nil
}

// PurgeTasks deletes every task in one of the given statuses.
func (c *Client) PurgeTasks(ctx context.Context, statuses ...task.Status) error {
	query := url.Values{}
	for _, s := range statuses {
		query.Add("status", string(s))
	}
	return c.do(ctx, http.MethodDelete, "/api/tasks", query, nil, nil)
}

// CreateTask submits a command and returns the created task.
func (c *Client) CreateTask(ctx context.Context, req CreateRequest) (task.Task, error) {
	var t task.Task
	if err := c.do(ctx, http.MethodPost, "/api/tasks", nil, req, &t); err != nil {
		return task.Task{}, err
	}
	return t, nil
}

// UpdateTask patches the status and/or result of a task.
func (c *Client) UpdateTask(ctx context.Context, id string, req UpdateRequest) (task.Task, error) {
	var t task.Task
	if err := c.do(ctx, http.MethodPatch, "/api/tasks/"+url.PathEscape(id), nil, req, &t); err != nil {
		return task.Task{}, err
	}
	return t, nil
}

// ListAgents returns the worker roster.
func (c *Client) ListAgents(ctx context.Context) ([]roster.Worker, error) {
	var workers []roster.Worker
	if err := c.do(ctx, http.MethodGet, "/api/agents", nil, nil, &workers); err != nil {
		return nil, err
	}
	return workers, nil
}

// SubmitFeedback rates a finished task.
func (c *Client) SubmitFeedback(ctx context.Context, id string, req FeedbackRequest) error {
	return c.do(ctx, http.MethodPost, "/api/tasks/"+url.PathEscape(id)+"/feedback", nil, req, nil)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, result any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: string(respBody)}
	}

	// An empty 2xx body is an acknowledgement and leaves result untouched.
	if result != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("decode %s %s response: %w", method, path, err)
		}
	}
	return nil
}
