package transport

import (
	"bytes"
	"fmt"
	"io"
	"net/http"

	"github.com/ericfisherdev/vendorbridge/internal/domain/port/driven"
)

// RoundTripper exposes a driven.Transport as an http.RoundTripper so SDK
// clients that want an *http.Client still go through the shared timeout and
// body limits.
func RoundTripper(t driven.Transport) http.RoundTripper {
	return roundTripper{t: t}
}

type roundTripper struct {
	t driven.Transport
}

func (rt roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		data, err := io.ReadAll(req.Body)
		_ = req.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read request body: %w", err)
		}
		body = data
	}

	resp, err := rt.t.Do(req.Context(), &driven.Request{
		Method: req.Method,
		URL:    req.URL.String(),
		Header: req.Header.Clone(),
		Body:   body,
	})
	if err != nil {
		return nil, err
	}

	header := resp.Header
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
		StatusCode:    resp.StatusCode,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(resp.Body)),
		ContentLength: int64(len(resp.Body)),
		Request:       req,
	}, nil
}
