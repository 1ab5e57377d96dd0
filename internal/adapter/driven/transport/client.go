// Package transport implements the driven.Transport port over net/http.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ericfisherdev/vendorbridge/internal/domain/port/driven"
)

// DefaultMaxBody caps how much of a vendor response is read into memory.
const DefaultMaxBody = 10 << 20

// Compile-time interface satisfaction check.
var _ driven.Transport = (*Client)(nil)

// Client is the production Transport. It applies a per-request timeout and
// reads at most maxBody bytes of each response.
type Client struct {
	http    *http.Client
	timeout time.Duration
	maxBody int64
	logger  *slog.Logger
}

// NewClient creates a Client with the given default timeout. httpClient may be
// nil to use a fresh http.Client.
func NewClient(httpClient *http.Client, timeout time.Duration, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{http: httpClient, timeout: timeout, maxBody: DefaultMaxBody, logger: logger}
}

// Do performs req. Non-2xx statuses are returned as responses, not errors.
func (c *Client) Do(ctx context.Context, req *driven.Request) (*driven.Response, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.logger.Debug("vendor request failed", "method", req.Method, "url", redact(httpReq), "error", err)
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if int64(len(data)) > c.maxBody {
		return nil, fmt.Errorf("response body exceeds %d bytes", c.maxBody)
	}

	c.logger.Debug("vendor request",
		"method", req.Method,
		"url", redact(httpReq),
		"status", resp.StatusCode,
		"elapsed", time.Since(start),
	)

	return &driven.Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

// redact drops the query string, which may carry tokens for some vendors.
func redact(r *http.Request) string {
	u := *r.URL
	u.RawQuery = ""
	u.User = nil
	return u.String()
}
