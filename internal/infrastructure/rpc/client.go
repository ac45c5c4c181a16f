// Package rpc calls whitelisted methods on a Frappe/ERPNext server over
// HTTP. It is the production fetcher.Invoker.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"txcalc/internal/domain/fetcher"
	"txcalc/pkg/logger"
)

var tracer = otel.Tracer("txcalc/rpc")

// ErrNotConfigured is returned when the server URL is missing.
var ErrNotConfigured = errors.New("rpc: server url is not configured")

// maxBody caps the response size read from the server.
const maxBody = 8 << 20

// Config configures the client.
type Config struct {
	// BaseURL of the site, e.g. https://erp.example.com
	BaseURL string
	// APIKey and APISecret form the "token key:secret" authorization.
	// SENSITIVE: never logged.
	APIKey    string
	APISecret string
	// Timeout per request (default 15s)
	Timeout time.Duration
	// HTTPClient overrides the default client (tests)
	HTTPClient *http.Client
}

// Client invokes /api/method/<method>.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

var _ fetcher.Invoker = (*Client)(nil)

// NewClient creates an RPC client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, ErrNotConfigured
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	var token string
	if cfg.APIKey != "" {
		token = "token " + cfg.APIKey + ":" + cfg.APISecret
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      token,
	}, nil
}

// Invoke implements fetcher.Invoker. Server exceptions come back in the
// response envelope; only transport and protocol failures are errors.
func (c *Client) Invoke(ctx context.Context, method string, args map[string]any) (fetcher.Response, error) {
	ctx, span := tracer.Start(ctx, "rpc "+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("rpc.method", method)))
	defer span.End()

	resp, err := c.do(ctx, method, args)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fetcher.Response{}, err
	}
	if resp.Failed() {
		span.SetStatus(codes.Error, resp.ExcMessage())
	}
	return resp, nil
}

func (c *Client) do(ctx context.Context, method string, args map[string]any) (fetcher.Response, error) {
	if args == nil {
		args = map[string]any{}
	}
	body, err := json.Marshal(args)
	if err != nil {
		return fetcher.Response{}, fmt.Errorf("marshal args: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/method/"+method, bytes.NewReader(body))
	if err != nil {
		return fetcher.Response{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", c.token)
	}

	start := time.Now()
	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return fetcher.Response{}, fmt.Errorf("request failed: %w", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBody))
	if err != nil {
		return fetcher.Response{}, fmt.Errorf("read response: %w", err)
	}
	logger.Debug(ctx, "rpc call", "method", method, "status", httpResp.StatusCode, "duration", time.Since(start))

	var out fetcher.Response
	if err := json.Unmarshal(raw, &out); err != nil {
		if httpResp.StatusCode != http.StatusOK {
			return fetcher.Response{}, fmt.Errorf("http %d: %s", httpResp.StatusCode, snippet(raw))
		}
		return fetcher.Response{}, fmt.Errorf("decode response: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK && !out.Failed() {
		return fetcher.Response{}, fmt.Errorf("http %d: %s", httpResp.StatusCode, snippet(raw))
	}
	return out, nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
