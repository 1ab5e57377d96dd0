package driven

import (
	"context"
	"net/http"
	"time"
)

// Request is a single outbound vendor call.
type Request struct {
	Method  string
	URL     string
	Header  http.Header
	Body    []byte
	Timeout time.Duration // Zero uses the transport default.
}

// Response is the raw vendor reply. Non-2xx statuses are not errors at this layer.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Transport performs vendor HTTP calls. Implementations return an error only
// for transport-level failures (timeouts, refused connections, DNS).
type Transport interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}
