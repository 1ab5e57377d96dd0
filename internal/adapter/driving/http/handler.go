// Package httphandler serves the operational endpoints of a running
// vendorbridge command: liveness and Prometheus metrics.
package httphandler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ericfisherdev/vendorbridge/internal/domain/model"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// VendorLister reports the vendors registered for a domain.
type VendorLister interface {
	Vendors(domain model.Domain) []string
}

// Handler serves the health endpoint.
type Handler struct {
	store   Pinger
	vendors VendorLister
	logger  *slog.Logger
	now     func() time.Time
}

// NewHandler creates a Handler. A nil logger uses slog.Default.
func NewHandler(store Pinger, vendors VendorLister, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{store: store, vendors: vendors, logger: logger, now: time.Now}
}

// NewServeMux registers the health endpoint and, when metrics is non-nil,
// the metrics endpoint. Both are wrapped with logging and recovery middleware.
func NewServeMux(h *Handler, metrics http.Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", h.Health)
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)

	return wrapped
}

// Health reports "ok" with the registered vendors per domain, or 503 when
// the database does not answer within two seconds.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{
		Status:   "ok",
		Time:     h.now().UTC().Format(time.RFC3339),
		Database: "ok",
		Vendors:  make(map[string][]string, len(model.AllDomains())),
	}
	if h.vendors != nil {
		for _, d := range model.AllDomains() {
			resp.Vendors[string(d)] = h.vendors.Vendors(d)
		}
	}

	status := http.StatusOK
	if err := h.store.Ping(ctx); err != nil {
		h.logger.Warn("health check failed", "error", err)
		resp.Status = "degraded"
		resp.Database = "unavailable"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
