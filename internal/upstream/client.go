// ABOUTME: HTTP client for the AnythingLLM workspace API
// ABOUTME: Creates threads and sends chat messages, classifying every failure

package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Operation names used in errors, logs and metrics.
const (
	OpCreateThread  = "create_thread"
	OpThreadChat    = "thread_chat"
	OpWorkspaceChat = "workspace_chat"
)

const (
	// DefaultTimeout bounds each upstream call when Config.Timeout is zero
	DefaultTimeout = 120 * time.Second

	// maxBodyBytes caps how much of a response body is read
	maxBodyBytes = 4 << 20

	// maxErrorBodyBytes caps how much of a body is retained on an Error
	maxErrorBodyBytes = 8 << 10
)

// Config holds the connection settings for one upstream workspace.
type Config struct {
	// BaseURL is the API root, e.g. http://localhost:3001/api
	BaseURL string

	// WorkspaceSlug selects the workspace all calls target
	WorkspaceSlug string

	// APIKey is sent as a Bearer token when non-empty
	APIKey string

	// Timeout bounds each call from dial through body read
	Timeout time.Duration
}

// Observer receives one callback per completed upstream call.
// outcome is "ok" or a Kind label.
type Observer interface {
	ObserveUpstream(op, outcome string, elapsed time.Duration)
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the client's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger.With("component", "upstream")
		}
	}
}

// WithObserver registers a call observer, typically the metrics collector.
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// Client talks to a single upstream workspace. It performs no retries;
// the caller decides what to do with a retryable Error.
type Client struct {
	cfg      Config
	http     *http.Client
	logger   *slog.Logger
	observer Observer
}

// New creates a Client for cfg.
func New(cfg Config, opts ...Option) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	c := &Client{
		cfg:    cfg,
		http:   &http.Client{},
		logger: slog.Default().With("component", "upstream"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Config returns the client's effective configuration.
func (c *Client) Config() Config {
	return c.cfg
}

// CreateThread opens a new conversation thread in the workspace and returns its id.
// The id is read from threadSlug, slug, or thread.slug in the response.
func (c *Client) CreateThread(ctx context.Context) (string, error) {
	body, err := c.post(ctx, OpCreateThread, c.workspacePath("thread", "new"), map[string]any{})
	if err != nil {
		return "", err
	}

	if id := threadIDFrom(body); id != "" {
		return id, nil
	}

	raw, _ := json.Marshal(body)
	return "", &Error{
		Op:    OpCreateThread,
		Kind:  KindMalformed,
		Body:  truncate(string(raw)),
		Cause: errors.New("response carries no thread identifier"),
	}
}

// SendToThread sends message within an existing thread and returns the decoded body.
func (c *Client) SendToThread(ctx context.Context, threadID, message string) (map[string]any, error) {
	return c.post(ctx, OpThreadChat, c.workspacePath("thread", threadID, "chat"), map[string]any{
		"message": message,
	})
}

// SendToWorkspace sends message to the workspace without a thread and returns the decoded body.
func (c *Client) SendToWorkspace(ctx context.Context, message string) (map[string]any, error) {
	return c.post(ctx, OpWorkspaceChat, c.workspacePath("chat"), map[string]any{
		"message": message,
		"mode":    "chat",
	})
}

func (c *Client) workspacePath(parts ...string) string {
	segs := []string{c.cfg.BaseURL, "v1", "workspace", url.PathEscape(c.cfg.WorkspaceSlug)}
	for _, p := range parts {
		segs = append(segs, url.PathEscape(p))
	}
	return strings.Join(segs, "/")
}

// post sends a JSON body and decodes a JSON object response.
func (c *Client) post(ctx context.Context, op, endpoint string, payload any) (result map[string]any, err error) {
	start := time.Now()
	defer func() {
		c.observe(op, err, time.Since(start))
	}()

	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", op, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	c.logger.Debug("upstream request", "op", op, "url", endpoint)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.transportError(op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, c.transportError(op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		uerr := &Error{
			Op:         op,
			Kind:       KindStatus,
			StatusCode: resp.StatusCode,
			Body:       truncate(string(data)),
		}
		c.logger.Warn("upstream returned error status",
			"op", op,
			"status", resp.StatusCode,
			"retryable", uerr.Retryable(),
			"message", uerr.Message(),
		)
		return nil, uerr
	}

	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, &Error{Op: op, Kind: KindMalformed, Body: truncate(string(data)), Cause: err}
	}
	obj, ok := decoded.(map[string]any)
	if !ok {
		return nil, &Error{
			Op:    op,
			Kind:  KindMalformed,
			Body:  truncate(string(data)),
			Cause: fmt.Errorf("expected JSON object, got %T", decoded),
		}
	}
	return obj, nil
}

// transportError classifies errors from Do and body reads. Caller
// cancellation is passed through unclassified.
func (c *Client) transportError(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("upstream %s: %w", op, err)
	}

	kind := KindConnect
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = KindTimeout
	}

	c.logger.Warn("upstream call failed", "op", op, "kind", kind.String(), "error", err)
	return &Error{Op: op, Kind: kind, Cause: err}
}

func (c *Client) observe(op string, err error, elapsed time.Duration) {
	if c.observer == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		var uerr *Error
		if errors.As(err, &uerr) {
			outcome = uerr.Kind.String()
		} else {
			outcome = "canceled"
		}
	}
	c.observer.ObserveUpstream(op, outcome, elapsed)
}

func threadIDFrom(body map[string]any) string {
	for _, key := range []string{"threadSlug", "slug"} {
		if id, ok := body[key].(string); ok && strings.TrimSpace(id) != "" {
			return strings.TrimSpace(id)
		}
	}
	if thread, ok := body["thread"].(map[string]any); ok {
		if id, ok := thread["slug"].(string); ok && strings.TrimSpace(id) != "" {
			return strings.TrimSpace(id)
		}
	}
	return ""
}

func truncate(s string) string {
	if len(s) <= maxErrorBodyBytes {
		return s
	}
	return s[:maxErrorBodyBytes]
}
