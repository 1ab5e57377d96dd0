package transport_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/vendorbridge/internal/adapter/driven/transport"
	"github.com/ericfisherdev/vendorbridge/internal/domain/model"
	"github.com/ericfisherdev/vendorbridge/internal/domain/port/driven"
	"github.com/ericfisherdev/vendorbridge/internal/resilience"
)

func TestClient_DoSendsRequestAndReturnsResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"a":1}`, string(body))

		w.Header().Set("X-Request-Id", "r-1")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"x"}`))
	}))
	defer srv.Close()

	c := transport.NewClient(nil, time.Second, nil)
	resp, err := c.Do(context.Background(), &driven.Request{
		Method: http.MethodPost,
		URL:    srv.URL + "/things",
		Header: http.Header{"Authorization": []string{"Bearer tok"}},
		Body:   []byte(`{"a":1}`),
	})

	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "r-1", resp.Header.Get("X-Request-Id"))
	assert.JSONEq(t, `{"id":"x"}`, string(resp.Body))
}

func TestClient_NonSuccessIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	resp, err := transport.NewClient(nil, time.Second, nil).Do(context.Background(),
		&driven.Request{Method: http.MethodGet, URL: srv.URL})

	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestClient_TimeoutIsNetworkFailure(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := transport.NewClient(nil, time.Second, nil).Do(context.Background(),
		&driven.Request{Method: http.MethodGet, URL: srv.URL, Timeout: 50 * time.Millisecond})

	require.Error(t, err)
	assert.Equal(t, model.KindNetwork, resilience.FromError(err).Kind)
}

func TestClient_RefusedConnectionIsNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := transport.NewClient(nil, time.Second, nil).Do(context.Background(),
		&driven.Request{Method: http.MethodGet, URL: url})

	require.Error(t, err)
	assert.Equal(t, model.KindNetwork, resilience.FromError(err).Kind)
}

func TestClient_RejectsOversizedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", transport.DefaultMaxBody+1)))
	}))
	defer srv.Close()

	_, err := transport.NewClient(nil, time.Second, nil).Do(context.Background(),
		&driven.Request{Method: http.MethodGet, URL: srv.URL})

	assert.ErrorContains(t, err, "exceeds")
}

type recordingTransport struct {
	got  *driven.Request
	resp *driven.Response
	err  error
}

func (r *recordingTransport) Do(_ context.Context, req *driven.Request) (*driven.Response, error) {
	r.got = req
	return r.resp, r.err
}

func TestRoundTripper_BridgesRequestAndResponse(t *testing.T) {
	rt := &recordingTransport{resp: &driven.Response{
		StatusCode: http.StatusAccepted,
		Header:     http.Header{"Etag": []string{`"v1"`}},
		Body:       []byte(`{"ok":true}`),
	}}
	client := &http.Client{Transport: transport.RoundTripper(rt)}

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPut, "https://api.example.test/items/1", strings.NewReader(`{"n":1}`))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer tok")
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.NotNil(t, rt.got)
	assert.Equal(t, http.MethodPut, rt.got.Method)
	assert.Equal(t, "https://api.example.test/items/1", rt.got.URL)
	assert.Equal(t, "Bearer tok", rt.got.Header.Get("Authorization"))
	assert.Equal(t, `{"n":1}`, string(rt.got.Body))

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "202 Accepted", resp.Status)
	assert.Equal(t, `"v1"`, resp.Header.Get("ETag"))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, string(body))
}

func TestRoundTripper_PropagatesTransportError(t *testing.T) {
	rt := &recordingTransport{err: &model.NormalizedError{Kind: model.KindNetwork, Message: "connection refused"}}
	client := &http.Client{Transport: transport.RoundTripper(rt)}

	_, err := client.Get("https://api.example.test/")

	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindNetwork))
}
