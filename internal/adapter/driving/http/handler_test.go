package httphandler_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httphandler "github.com/ericfisherdev/vendorbridge/internal/adapter/driving/http"
	"github.com/ericfisherdev/vendorbridge/internal/domain/model"
)

type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(_ context.Context) error { return m.err }

type mockVendors map[model.Domain][]string

func (m mockVendors) Vendors(d model.Domain) []string { return m[d] }

func setupMux(store httphandler.Pinger, metrics http.Handler) http.Handler {
	h := httphandler.NewHandler(store, mockVendors{
		model.DomainHelpdesk:  {"github", "zendesk"},
		model.DomainKnowledge: {"local"},
	}, slog.Default())
	return httphandler.NewServeMux(h, metrics, slog.Default())
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	require.NoError(t, json.NewDecoder(rec.Body).Decode(v))
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name         string
		pingErr      error
		wantStatus   int
		wantStatusIn string
		wantDatabase string
	}{
		{name: "database reachable", wantStatus: http.StatusOK, wantStatusIn: "ok", wantDatabase: "ok"},
		{name: "database down", pingErr: errors.New("disk I/O error"), wantStatus: http.StatusServiceUnavailable, wantStatusIn: "degraded", wantDatabase: "unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := setupMux(&mockPinger{err: tt.pingErr}, nil)
			rec := httptest.NewRecorder()

			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			var resp httphandler.HealthResponse
			decodeJSON(t, rec, &resp)
			assert.Equal(t, tt.wantStatusIn, resp.Status)
			assert.Equal(t, tt.wantDatabase, resp.Database)
			assert.NotEmpty(t, resp.Time)
			assert.Equal(t, []string{"github", "zendesk"}, resp.Vendors["helpdesk"])
			assert.Equal(t, []string{"local"}, resp.Vendors["knowledge"])
			assert.Contains(t, resp.Vendors, "crm")
		})
	}
}

func TestMetricsRoute(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("vendorbridge_up 1\n"))
	})

	t.Run("served when configured", func(t *testing.T) {
		rec := httptest.NewRecorder()
		setupMux(&mockPinger{}, metrics).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "vendorbridge_up 1\n", rec.Body.String())
	})

	t.Run("absent otherwise", func(t *testing.T) {
		rec := httptest.NewRecorder()
		setupMux(&mockPinger{}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("wrong method", func(t *testing.T) {
		rec := httptest.NewRecorder()
		setupMux(&mockPinger{}, metrics).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/metrics", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

type panickingPinger struct{}

func (panickingPinger) Ping(context.Context) error { panic("boom") }

func TestRecoveryMiddleware(t *testing.T) {
	rec := httptest.NewRecorder()

	setupMux(panickingPinger{}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var resp map[string]string
	decodeJSON(t, rec, &resp)
	assert.Equal(t, "internal server error", resp["error"])
}
