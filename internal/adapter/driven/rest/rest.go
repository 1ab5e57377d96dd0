// Package rest is the JSON-over-HTTP helper vendor adapters build on. It turns
// every non-2xx reply into a *model.NormalizedError using the adapter's
// classifier, so adapters only deal with field mapping.
package rest

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/ericfisherdev/vendorbridge/internal/domain/model"
	"github.com/ericfisherdev/vendorbridge/internal/domain/port/driven"
	"github.com/ericfisherdev/vendorbridge/internal/resilience"
)

// Client issues JSON calls against one vendor base URL.
type Client struct {
	Transport driven.Transport
	BaseURL   string
	// Authorize sets credentials on every request.
	Authorize func(http.Header)
	Classify  resilience.Classifier
	// Message extracts a human-readable error from a vendor body. Defaults to ErrorMessage.
	Message func(body []byte) string
	Clock   clockwork.Clock
	Logger  *slog.Logger
	Timeout time.Duration
}

// Call describes one request.
type Call struct {
	Method string
	Path   string
	Query  url.Values
	Body   any // JSON-encoded when non-nil.
	Header http.Header
}

// Do performs call and decodes a 2xx JSON body into out when out is non-nil.
// The raw response is returned for adapters that need headers.
func (c *Client) Do(ctx context.Context, call Call, out any) (*driven.Response, error) {
	req := &driven.Request{
		Method:  call.Method,
		URL:     c.url(call.Path, call.Query),
		Header:  http.Header{},
		Timeout: c.Timeout,
	}
	req.Header.Set("Accept", "application/json")
	if call.Body != nil {
		data, err := json.Marshal(call.Body)
		if err != nil {
			return nil, &model.NormalizedError{Kind: model.KindValidation, Message: "encode request: " + err.Error(), Cause: err}
		}
		req.Body = data
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range call.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if c.Authorize != nil {
		c.Authorize(req.Header)
	}

	resp, err := c.Transport.Do(ctx, req)
	if err != nil {
		return nil, resilience.FromError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msgFn := c.Message
		if msgFn == nil {
			msgFn = ErrorMessage
		}
		ne := resilience.FromStatus(c.Classify, resp.StatusCode, resp.Header, resp.Body, msgFn(resp.Body), c.now())
		c.logger().Debug("vendor call rejected",
			"method", call.Method,
			"path", call.Path,
			"status", resp.StatusCode,
			"kind", ne.Kind,
		)
		return resp, ne
	}

	if out != nil && len(resp.Body) > 0 {
		if err := json.Unmarshal(resp.Body, out); err != nil {
			return resp, &model.NormalizedError{
				Kind:             model.KindUnknown,
				Message:          "decode response: " + err.Error(),
				VendorStatusCode: resp.StatusCode,
				VendorPayload:    resp.Body,
				Cause:            err,
			}
		}
	}
	return resp, nil
}

func (c *Client) url(path string, q url.Values) string {
	u := strings.TrimRight(c.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

func (c *Client) now() time.Time {
	if c.Clock == nil {
		return time.Now()
	}
	return c.Clock.Now()
}

func (c *Client) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

// BearerAuth sets an Authorization: Bearer header.
func BearerAuth(token string) func(http.Header) {
	return func(h http.Header) { h.Set("Authorization", "Bearer "+token) }
}

// BasicAuth sets an Authorization: Basic header.
func BasicAuth(user, password string) func(http.Header) {
	encoded := base64.StdEncoding.EncodeToString([]byte(user + ":" + password))
	return func(h http.Header) { h.Set("Authorization", "Basic "+encoded) }
}

// ErrorMessage pulls the first recognizable message out of a vendor error
// body. Shapes seen in the wild: {"message"}, {"error": "..."},
// {"error": {"message"}}, {"errors": [{"message"}]}, {"description"}.
func ErrorMessage(body []byte) string {
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return truncate(strings.TrimSpace(string(body)))
	}
	for _, key := range []string{"message", "error_description", "description", "detail"} {
		if s, ok := doc[key].(string); ok && s != "" {
			return s
		}
	}
	switch e := doc["error"].(type) {
	case string:
		return e
	case map[string]any:
		if s, ok := e["message"].(string); ok {
			return s
		}
	}
	if errs, ok := doc["errors"].([]any); ok && len(errs) > 0 {
		switch first := errs[0].(type) {
		case map[string]any:
			for _, key := range []string{"message", "detail", "title"} {
				if s, ok := first[key].(string); ok && s != "" {
					return s
				}
			}
		case string:
			return first
		}
	}
	return ""
}

func truncate(s string) string {
	const limit = 200
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}

// PathEscape escapes a vendor ID for use as a path segment.
func PathEscape(id string) string { return url.PathEscape(id) }

// RequireID returns a validation failure when id is blank.
func RequireID(name, id string) error {
	if strings.TrimSpace(id) == "" {
		return &model.NormalizedError{Kind: model.KindValidation, Message: fmt.Sprintf("%s is required", name)}
	}
	return nil
}
