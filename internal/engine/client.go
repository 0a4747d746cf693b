// ABOUTME: HTTP client for the container engine over a Unix socket or TCP
// ABOUTME: Executes one Operation per call and classifies every failure

package engine

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
	"strconv"
	"strings"
	"time"
)

const (
	// maxBodySize caps how much of a non-streaming reply is read.
	maxBodySize = 16 << 20

	// maxErrorBody caps how much of a rejected reply is kept in RejectedError.
	maxErrorBody = 1024
)

// Config describes how to reach the engine. Socket wins over Host/Port.
type Config struct {
	Socket     string
	Host       string
	Port       int
	APIVersion string        // e.g. "1.43"; empty uses the engine's default
	Timeout    time.Duration // per-call timeout for Execute and Ping; 0 disables
}

// Client issues engine API calls.
type Client struct {
	http      *http.Client // request/response calls
	streaming *http.Client // long-lived event feed, no client timeout
	baseURL   string
	prefix    string
	timeout   time.Duration
	logger    *slog.Logger
}

// New creates a Client from cfg. Pass nil logger for default.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	transport := &http.Transport{
		MaxIdleConns:    16,
		IdleConnTimeout: 90 * time.Second,
	}

	var baseURL string
	switch {
	case cfg.Socket != "":
		socket := cfg.Socket
		transport.DialContext = func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socket)
		}
		baseURL = "http://engine"
	case cfg.Host != "":
		port := cfg.Port
		if port == 0 {
			port = 2375
		}
		baseURL = "http://" + net.JoinHostPort(cfg.Host, strconv.Itoa(port))
	default:
		return nil, errors.New("engine: socket or host is required")
	}

	prefix := ""
	if v := strings.TrimPrefix(strings.TrimSpace(cfg.APIVersion), "v"); v != "" {
		prefix = "/v" + v
	}

	return &Client{
		http:      &http.Client{Transport: transport},
		streaming: &http.Client{Transport: transport},
		baseURL:   baseURL,
		prefix:    prefix,
		timeout:   cfg.Timeout,
		logger:    logger.With("component", "engine"),
	}, nil
}

// Endpoint returns the base URL the client talks to, for logging.
func (c *Client) Endpoint() string {
	return c.baseURL + c.prefix
}

// Execute performs op as exactly one engine call.
func (c *Client) Execute(ctx context.Context, op Operation) (*Response, error) {
	h, ok := dispatch[op.Kind]
	if !ok {
		return nil, fmt.Errorf("unknown operation %s", op.Kind)
	}
	req := h.build(op)

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	status, body, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("engine call",
		"operation", op.Kind.String(),
		"method", req.Method,
		"path", req.Path,
		"status", status,
		"duration", time.Since(start))

	switch {
	case status >= 200 && status < 300:
	case status == http.StatusNotModified && h.notModifiedOK:
	default:
		return nil, &RejectedError{StatusCode: status, Body: truncate(body, maxErrorBody)}
	}

	v, err := h.decode(op, status, body)
	if err != nil {
		return nil, err
	}
	return &Response{StatusCode: replyStatus(status), Body: v}, nil
}

// Ping checks that the engine answers GET /_ping with 200.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	status, body, err := c.do(ctx, Request{Method: http.MethodGet, Path: "/_ping"})
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return &RejectedError{StatusCode: status, Body: truncate(body, maxErrorBody)}
	}
	return nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout > 0 {
		return context.WithTimeout(ctx, c.timeout)
	}
	return ctx, func() {}
}

func (c *Client) newHTTPRequest(ctx context.Context, req Request) (*http.Request, error) {
	u := c.baseURL + c.prefix + req.Path
	if len(req.Query) > 0 {
		u += "?" + req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	return httpReq, nil
}

// do performs req and returns status and body. Transport failures are ErrUnreachable.
func (c *Client) do(ctx context.Context, req Request) (int, []byte, error) {
	httpReq, err := c.newHTTPRequest(ctx, req)
	if err != nil {
		return 0, nil, err
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return 0, nil, fmt.Errorf("%w: reading body: %v", ErrUnreachable, err)
	}
	return resp.StatusCode, data, nil
}

// replyStatus maps the engine status onto the status relayed to HTTP clients.
// Bodiless engine replies (204, 304) become 200 because the gateway always sends a body.
func replyStatus(status int) int {
	switch status {
	case http.StatusNoContent, http.StatusNotModified:
		return http.StatusOK
	default:
		return status
	}
}

func truncate(b []byte, n int) string {
	s := strings.TrimSpace(string(b))
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
