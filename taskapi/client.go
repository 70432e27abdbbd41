// Package taskapi is a typed client for the remote task service. Every call
// is gated by the session: without a live credential nothing is sent.
package taskapi

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"prism-board/domain"
)

const (
	tasksRoute    = "/tasks"
	taskRoute     = "/tasks/:id"
	maxResponse   = 4 << 20 // 4 MiB
	requestIDHead = "X-Request-ID"
)

// TokenSource yields the bearer token for an outgoing call.
type TokenSource interface {
	CurrentToken(ctx context.Context) (string, error)
}

// Invalidator is implemented by token sources that log out when the remote
// rejects their token.
type Invalidator interface {
	Invalidate(ctx context.Context, token string) error
}

// Client talks to the task REST API. It holds no task state.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Tokens  TokenSource
	Logger  *log.Logger
}

// New creates a Client. A nil httpClient uses a zero http.Client; a nil
// logger uses the logrus standard logger.
func New(baseURL string, tokens TokenSource, httpClient *http.Client, logger *log.Logger) *Client {
	if tokens == nil {
		panic("taskapi.New: token source is nil")
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    httpClient,
		Tokens:  tokens,
		Logger:  logger,
	}
}

// List returns the caller's tasks in server order. Set filter fields are
// forwarded as query parameters.
func (c *Client) List(ctx context.Context, f domain.Filter) ([]domain.Task, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	q := url.Values{}
	if f.Status != "" {
		q.Set("status", string(f.Status))
	}
	if f.Priority != "" {
		q.Set("priority", string(f.Priority))
	}

	var tasks []domain.Task
	err := c.do(ctx, http.MethodGet, tasksRoute, tasksRoute, q, nil, func(m *requestMetrics, data []byte) error {
		var err error
		tasks, err = decodeTaskList(data)
		if err == nil {
			m.SetTasksReturned(len(tasks))
		}
		return err
	})
	return tasks, err
}

// Create stores a new task and returns it with its server-assigned id.
func (c *Client) Create(ctx context.Context, fields domain.TaskFields) (domain.Task, error) {
	if err := fields.Validate(); err != nil {
		return domain.Task{}, err
	}
	return c.sendTask(ctx, http.MethodPost, tasksRoute, tasksRoute, fields)
}

// UpdateStatus moves a task to another column.
func (c *Client) UpdateStatus(ctx context.Context, id string, status domain.Status) (domain.Task, error) {
	if err := checkID(id); err != nil {
		return domain.Task{}, err
	}
	if !status.Valid() {
		return domain.Task{}, &domain.ValidationError{Field: "status", Message: "unknown status " + string(status)}
	}
	body := struct {
		Status domain.Status `json:"status"`
	}{status}
	return c.sendTask(ctx, http.MethodPut, taskRoute, taskPath(id), body)
}

// Patch applies a partial update.
func (c *Client) Patch(ctx context.Context, id string, patch domain.TaskPatch) (domain.Task, error) {
	if err := checkID(id); err != nil {
		return domain.Task{}, err
	}
	if err := patch.Validate(); err != nil {
		return domain.Task{}, err
	}
	return c.sendTask(ctx, http.MethodPatch, taskRoute, taskPath(id), patch)
}

// Delete removes a task. The response body is ignored.
func (c *Client) Delete(ctx context.Context, id string) error {
	if err := checkID(id); err != nil {
		return err
	}
	return c.do(ctx, http.MethodDelete, taskRoute, taskPath(id), nil, nil, nil)
}

func (c *Client) sendTask(ctx context.Context, method, route, path string, body any) (domain.Task, error) {
	var task domain.Task
	err := c.do(ctx, method, route, path, nil, body, func(_ *requestMetrics, data []byte) error {
		var err error
		task, err = decodeTask(data)
		return err
	})
	return task, err
}

func (c *Client) do(ctx context.Context, method, route, path string, query url.Values, body any, decode func(*requestMetrics, []byte) error) (err error) {
	metrics, ctx := newRequestMetrics(ctx, c.Logger, method, route)
	status := 0
	defer func() { metrics.Log(status, err) }()

	token, err := c.Tokens.CurrentToken(ctx)
	if err != nil {
		metrics.SetErrorStage("auth")
		return err
	}

	var reader io.Reader
	if body != nil {
		payload, merr := sonic.Marshal(body)
		if merr != nil {
			metrics.SetErrorStage("encode")
			return merr
		}
		reader = bytes.NewReader(payload)
	}

	target := c.BaseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		metrics.SetErrorStage("request")
		return err
	}
	requestID := uuid.NewString()
	metrics.SetRequestID(requestID)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set(requestIDHead, requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		metrics.SetErrorStage("transport")
		return &domain.RemoteError{Message: transportMessage(ctx, err), Err: err}
	}
	defer resp.Body.Close()
	status = resp.StatusCode

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponse))
	if err != nil {
		metrics.SetErrorStage("transport")
		return &domain.RemoteError{StatusCode: status, Message: "read response", Err: err}
	}

	if status < 200 || status > 299 {
		metrics.SetErrorStage("remote")
		remote := domain.RemoteErrorFromBody(status, data)
		if status == http.StatusUnauthorized {
			c.invalidate(ctx, token)
			return &domain.AuthError{Reason: domain.Unauthenticated, Err: remote}
		}
		return remote
	}

	if decode == nil {
		return nil
	}
	if derr := decode(metrics, data); derr != nil {
		metrics.SetErrorStage("decode")
		return &domain.RemoteError{StatusCode: status, Message: "unexpected response: " + derr.Error(), Err: derr}
	}
	return nil
}

func (c *Client) invalidate(ctx context.Context, token string) {
	inv, ok := c.Tokens.(Invalidator)
	if !ok {
		return
	}
	if err := inv.Invalidate(context.WithoutCancel(ctx), token); err != nil {
		c.Logger.WithError(err).Warn("taskapi.invalidate_failed")
	}
}

func transportMessage(ctx context.Context, err error) string {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return "request timed out"
	case errors.Is(ctx.Err(), context.Canceled):
		return "request canceled"
	}
	var uerr *url.Error
	if errors.As(err, &uerr) && uerr.Timeout() {
		return "request timed out"
	}
	return err.Error()
}

func checkID(id string) error {
	if strings.TrimSpace(id) == "" {
		return &domain.ValidationError{Field: "id", Message: "task id is required"}
	}
	return nil
}

func taskPath(id string) string {
	return tasksRoute + "/" + url.PathEscape(id)
}
