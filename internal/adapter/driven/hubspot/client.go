// Package hubspot implements the CRM contract against the HubSpot CRM v3 API.
package hubspot

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"github.com/ericfisherdev/vendorbridge/internal/adapter/driven/rest"
	"github.com/ericfisherdev/vendorbridge/internal/domain/model"
	"github.com/ericfisherdev/vendorbridge/internal/domain/port/driven"
	"github.com/ericfisherdev/vendorbridge/internal/provider"
	"github.com/ericfisherdev/vendorbridge/internal/resilience"
)

// Vendor is the registry name of this adapter.
const Vendor = "hubspot"

const defaultBaseURL = "https://api.hubapi.com"

// Association type IDs defined by HubSpot.
const (
	assocNoteToContact = 202
	assocDealToContact = 3
)

// Spec describes HubSpot's fixed limits: 100 requests per 10 seconds for
// private apps.
var Spec = provider.Spec{
	RateLimit:           model.RateLimit{MaxRequests: 100, Window: 10 * time.Second},
	Policy:              resilience.DefaultPolicy(),
	AuthModes:           []model.AuthMode{model.AuthModeAPIKey, model.AuthModeOAuth2},
	ValidateOnConstruct: true,
}

// Compile-time interface satisfaction check.
var _ driven.CRM = (*Client)(nil)

// Client is a HubSpot CRM provider bound to one tenant's credentials.
type Client struct {
	id  model.ProviderIdentity
	cfg model.CRMConfig
	ex  *resilience.Executor
	api *rest.Client
}

// New constructs a Client. Private app tokens and OAuth access tokens are
// both presented as bearer tokens.
func New(d provider.Deps) (*Client, error) {
	cfg, _ := d.Config.(model.CRMConfig)
	base := d.Credentials.Endpoint()
	if base == "" {
		base = defaultBaseURL
	}
	return &Client{
		id:  d.Identity,
		cfg: cfg,
		ex:  d.Executor,
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

// Validate lists a single contact to confirm the token is accepted.
func (c *Client) Validate(ctx context.Context) error {
	return resilience.Run(ctx, c.ex, "validate", func(ctx context.Context) error {
		_, err := c.api.Do(ctx, rest.Call{
			Method: http.MethodGet,
			Path:   "/crm/v3/objects/contacts",
			Query:  url.Values{"limit": {"1"}},
		}, nil)
		return err
	})
}

// HubSpot reports duplicates as 409, but some batch and association endpoints
// use 400 with an OBJECT_ALREADY_EXISTS category.
func classify(status int, payload []byte) model.ErrorKind {
	if status == http.StatusBadRequest && bytes.Contains(payload, []byte("OBJECT_ALREADY_EXISTS")) {
		return model.KindConflict
	}
	return resilience.ClassifyStatus(status)
}

var existingIDPattern = regexp.MustCompile(`Existing ID:\s*(\d+)`)

// existingID extracts the ID of the record a create collided with.
func existingID(err error) string {
	ne, ok := model.AsNormalized(err)
	if !ok || ne.Kind != model.KindConflict {
		return ""
	}
	m := existingIDPattern.FindSubmatch(append([]byte(ne.Message+" "), ne.VendorPayload...))
	if m == nil {
		return ""
	}
	return string(m[1])
}
