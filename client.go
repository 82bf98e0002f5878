// client.go is the HTTP transport to the agent service REST API.
//
// One AgentClient is shared by every tool call in the process. Its pooled
// *http.Client is built lazily on first use and is safe for concurrent use.
// Wire JSON is decoded here into the types in task.go; nothing above this
// layer sees raw maps.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// maxResponseSize bounds JSON response reads. Task bodies with long message
// logs are a few MB at most.
const maxResponseSize int64 = 64 << 20

// AgentClient issues requests against the agent service base URL.
type AgentClient struct {
	baseURL string
	timeout time.Duration
	logger  *slog.Logger

	once       sync.Once
	httpClient *http.Client
	transport  http.RoundTripper // nil means a pooled *http.Transport
}

// NewAgentClient creates a client for baseURL. timeout caps every single
// request, including body reads.
func NewAgentClient(baseURL string, timeout time.Duration, logger *slog.Logger) *AgentClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &AgentClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		logger:  logger,
	}
}

// BaseURL returns the configured service URL without a trailing slash.
func (c *AgentClient) BaseURL() string { return c.baseURL }

// pool returns the shared client, creating it on first use.
func (c *AgentClient) pool() *http.Client {
	c.once.Do(func() {
		rt := c.transport
		if rt == nil {
			rt = &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				MaxConnsPerHost:     5,
				IdleConnTimeout:     300 * time.Second,
			}
		}
		c.httpClient = &http.Client{Transport: rt, Timeout: c.timeout}
	})
	return c.httpClient
}

// Close releases idle pooled connections. The client stays usable.
func (c *AgentClient) Close() {
	c.pool().CloseIdleConnections()
}

// response is a fully read HTTP response. The body is closed before it is
// returned, so callers never own a live connection.
type response struct {
	StatusCode int
	Body       []byte
	Latency    time.Duration
}

// do sends one request and reads the whole body. Non-2xx statuses become
// *APIError.
func (c *AgentClient) do(ctx context.Context, method, path string, query url.Values, contentType string, body []byte) (*response, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("build request %s %s: %w", method, path, err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	resp, err := c.pool().Do(req)
	if err != nil {
		c.logger.Debug("agent request failed", "method", method, "path", path, "request_id", requestID, "error", err)
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	latency := time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("%s %s: reading response body: %w", method, path, err)
	}
	c.logger.Debug("agent request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"request_id", requestID,
		"latency", latency,
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       errorDetail(data),
		}
	}
	return &response{StatusCode: resp.StatusCode, Body: data, Latency: latency}, nil
}

// errorDetail pulls a human message out of an error body. NestJS-style
// services answer {"statusCode":404,"message":"..."}; anything else is
// returned trimmed.
func errorDetail(body []byte) string {
	if msg := gjson.GetBytes(body, "message"); msg.Exists() {
		if msg.IsArray() {
			parts := make([]string, 0, len(msg.Array()))
			for _, m := range msg.Array() {
				parts = append(parts, m.String())
			}
			return strings.Join(parts, "; ")
		}
		return msg.String()
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 300 {
		s = s[:300]
	}
	return s
}

// ValidateResponse reports whether body is a JSON object containing every
// key in keys.
func ValidateResponse(body []byte, keys ...string) bool {
	if !gjson.ValidBytes(body) {
		return false
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return false
	}
	for _, k := range keys {
		if !root.Get(k).Exists() {
			return false
		}
	}
	return true
}

// decodeTask decodes a single task body.
func decodeTask(method, path string, body []byte) (*Task, error) {
	if !ValidateResponse(body, "id") {
		return nil, fmt.Errorf("%s %s: %w: missing task id", method, path, ErrMalformedResponse)
	}
	var t Task
	if err := json.Unmarshal(body, &t); err != nil {
		return nil, fmt.Errorf("%s %s: %w: %v", method, path, ErrMalformedResponse, err)
	}
	return &t, nil
}

// CreateTaskRequest is the JSON body of POST /tasks.
type CreateTaskRequest struct {
	Description string          `json:"description"`
	Priority    Priority        `json:"priority"`
	Type        string          `json:"type"`
	Control     string          `json:"control"`
	Model       ModelDescriptor `json:"model"`
}

// CreateTask submits a new task and returns it with its assigned ID.
func (c *AgentClient) CreateTask(ctx context.Context, in CreateTaskRequest) (*Task, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("encode task: %w", err)
	}
	resp, err := c.do(ctx, http.MethodPost, "/tasks", nil, "application/json", body)
	if err != nil {
		return nil, err
	}
	return decodeTask(http.MethodPost, "/tasks", resp.Body)
}

// UploadFile is one file attached to a task.
type UploadFile struct {
	Filename    string
	ContentType string
	Content     []byte
}

// CreateTaskWithFiles submits a task as multipart/form-data with one
// "files" part per upload. The model descriptor travels as a JSON string
// field.
func (c *AgentClient) CreateTaskWithFiles(ctx context.Context, in CreateTaskRequest, files []UploadFile) (*Task, error) {
	body, contentType, err := encodeMultipart(in, files)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(ctx, http.MethodPost, "/tasks", nil, contentType, body)
	if err != nil {
		return nil, err
	}
	return decodeTask(http.MethodPost, "/tasks", resp.Body)
}

func encodeMultipart(in CreateTaskRequest, files []UploadFile) ([]byte, string, error) {
	model, err := json.Marshal(in.Model)
	if err != nil {
		return nil, "", fmt.Errorf("encode model: %w", err)
	}
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fields := [][2]string{
		{"description", in.Description},
		{"priority", string(in.Priority)},
		{"type", in.Type},
		{"control", in.Control},
		{"model", string(model)},
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", f[0], err)
		}
	}
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename="%s"`, escapeQuotes(f.Filename)))
		h.Set("Content-Type", f.ContentType)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("create part %s: %w", f.Filename, err)
		}
		if _, err := part.Write(f.Content); err != nil {
			return nil, "", fmt.Errorf("write part %s: %w", f.Filename, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string { return quoteEscaper.Replace(s) }

// GetTask fetches one task including its messages.
func (c *AgentClient) GetTask(ctx context.Context, id string) (*Task, error) {
	path := "/tasks/" + url.PathEscape(id)
	resp, err := c.do(ctx, http.MethodGet, path, nil, "", nil)
	if err != nil {
		return nil, err
	}
	return decodeTask(http.MethodGet, path, resp.Body)
}

// ListOptions selects a page of GET /tasks. Zero values are omitted from
// the query string.
type ListOptions struct {
	Page   int
	Limit  int
	Status Status
}

func (o ListOptions) query() url.Values {
	q := url.Values{}
	if o.Page > 0 {
		q.Set("page", strconv.Itoa(o.Page))
	}
	if o.Limit > 0 {
		q.Set("limit", strconv.Itoa(o.Limit))
	}
	if o.Status != "" {
		q.Set("status", string(o.Status))
	}
	return q
}

// ListResult is a decoded task page plus what the transport observed about
// the response.
type ListResult struct {
	TaskPage
	// ServerFiltered is true when the response echoes the status filter
	// back, meaning the service applied it.
	ServerFiltered bool
	StatusCode     int
	Latency        time.Duration
}

// ListTasks fetches a page of tasks. A body without a top-level "tasks" key
// is ErrMalformedResponse.
func (c *AgentClient) ListTasks(ctx context.Context, opts ListOptions) (*ListResult, error) {
	resp, err := c.do(ctx, http.MethodGet, "/tasks", opts.query(), "", nil)
	if err != nil {
		return nil, err
	}
	if !ValidateResponse(resp.Body, "tasks") {
		return nil, fmt.Errorf("GET /tasks: %w", ErrMalformedResponse)
	}
	var page TaskPage
	if err := json.Unmarshal(resp.Body, &page); err != nil {
		return nil, fmt.Errorf("GET /tasks: %w: %v", ErrMalformedResponse, err)
	}
	if !gjson.GetBytes(resp.Body, "total").Exists() {
		page.Total = len(page.Tasks)
	}
	if page.TotalPages == 0 {
		page.TotalPages = 1
	}
	res := &ListResult{TaskPage: page, StatusCode: resp.StatusCode, Latency: resp.Latency}
	if opts.Status != "" {
		echo := gjson.GetManyBytes(resp.Body, "status", "filter.status")
		res.ServerFiltered = strings.EqualFold(echo[0].String(), string(opts.Status)) ||
			strings.EqualFold(echo[1].String(), string(opts.Status))
	}
	return res, nil
}

// CancelResult describes a successful DELETE.
type CancelResult struct {
	StatusCode int
}

// CancelTask issues DELETE /tasks/{id}.
func (c *AgentClient) CancelTask(ctx context.Context, id string) (*CancelResult, error) {
	path := "/tasks/" + url.PathEscape(id)
	resp, err := c.do(ctx, http.MethodDelete, path, nil, "", nil)
	if err != nil {
		return nil, err
	}
	return &CancelResult{StatusCode: resp.StatusCode}, nil
}

// ProbeResult is what check_connection learns from a raw GET /tasks.
type ProbeResult struct {
	StatusCode int
	Latency    time.Duration
	// Page is nil when the body did not have the expected shape.
	Page *TaskPage
}

// Probe issues a single unretried GET /tasks and reports the round trip.
// Unlike ListTasks, an unexpected shape is not an error.
func (c *AgentClient) Probe(ctx context.Context) (*ProbeResult, error) {
	resp, err := c.do(ctx, http.MethodGet, "/tasks", nil, "", nil)
	if err != nil {
		return nil, err
	}
	res := &ProbeResult{StatusCode: resp.StatusCode, Latency: resp.Latency}
	if ValidateResponse(resp.Body, "tasks") {
		var page TaskPage
		if err := json.Unmarshal(resp.Body, &page); err == nil {
			if !gjson.GetBytes(resp.Body, "total").Exists() {
				page.Total = len(page.Tasks)
			}
			res.Page = &page
		}
	}
	return res, nil
}
