// Package googlecalendar implements the Calendar contract against the Google
// Calendar v3 API.
package googlecalendar

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/ericfisherdev/vendorbridge/internal/adapter/driven/rest"
	"github.com/ericfisherdev/vendorbridge/internal/domain/model"
	"github.com/ericfisherdev/vendorbridge/internal/domain/port/driven"
	"github.com/ericfisherdev/vendorbridge/internal/provider"
	"github.com/ericfisherdev/vendorbridge/internal/resilience"
)

// Vendor is the registry name of this adapter.
const Vendor = "google_calendar"

const defaultBaseURL = "https://www.googleapis.com/calendar/v3"

// Spec allows 600 requests per minute per user and accepts OAuth only.
var Spec = provider.Spec{
	RateLimit:           model.RateLimit{MaxRequests: 600, Window: time.Minute},
	Policy:              resilience.DefaultPolicy(),
	AuthModes:           []model.AuthMode{model.AuthModeOAuth2},
	ValidateOnConstruct: true,
}

// Compile-time interface satisfaction check.
var _ driven.Calendar = (*Client)(nil)

// Client is a Google Calendar provider bound to one calendar.
type Client struct {
	id       model.ProviderIdentity
	calendar string
	timeZone string
	ex       *resilience.Executor
	api      *rest.Client
}

// New constructs a Client for the configured calendar, "primary" by default.
func New(d provider.Deps) (*Client, error) {
	cfg, _ := d.Config.(model.CalendarConfig)
	base := d.Credentials.Endpoint()
	if base == "" {
		base = defaultBaseURL
	}
	return &Client{
		id:       d.Identity,
		calendar: cfg.Calendar(),
		timeZone: cfg.TimeZone,
		ex:       d.Executor,
		api: &rest.Client{
			Transport: d.Transport,
			BaseURL:   base,
			Authorize: rest.BearerAuth(model.BearerToken(d.Credentials)),
			Classify:  classify,
			Clock:     d.Clock,
			Logger:    d.Logger,
		},
	}, nil
}

// Identity returns the provider identity.
func (c *Client) Identity() model.ProviderIdentity { return c.id }

// Validate reads the calendar's metadata.
func (c *Client) Validate(ctx context.Context) error {
	return resilience.Run(ctx, c.ex, "validate", func(ctx context.Context) error {
		_, err := c.api.Do(ctx, rest.Call{Method: http.MethodGet, Path: c.calendarPath()}, nil)
		return err
	})
}

func (c *Client) calendarPath() string {
	return "/calendars/" + rest.PathEscape(c.calendar)
}

// Google signals quota exhaustion with 403 and a rate limit reason, and
// reports deleted events as 410.
func classify(status int, payload []byte) model.ErrorKind {
	switch {
	case status == http.StatusForbidden && strings.Contains(string(payload), "ateLimitExceeded"):
		return model.KindRateLimit
	case status == http.StatusGone:
		return model.KindNotFound
	}
	return resilience.ClassifyStatus(status)
}

// eventID derives a client-supplied event ID from an idempotency key. Google
// accepts lowercase base32hex characters, which include every hex digit, so a
// repeated create with the same key collides instead of duplicating.
func eventID(key string) string {
	if key == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:16])
}
