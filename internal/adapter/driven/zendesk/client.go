// Package zendesk implements the Helpdesk contract against the Zendesk
// Support API.
package zendesk

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ericfisherdev/vendorbridge/internal/adapter/driven/rest"
	"github.com/ericfisherdev/vendorbridge/internal/domain/model"
	"github.com/ericfisherdev/vendorbridge/internal/domain/port/driven"
	"github.com/ericfisherdev/vendorbridge/internal/provider"
	"github.com/ericfisherdev/vendorbridge/internal/resilience"
)

// Vendor is the registry name of this adapter.
const Vendor = "zendesk"

// Spec uses the Support API limit of the Team plan, 700 requests per minute.
var Spec = provider.Spec{
	RateLimit:           model.RateLimit{MaxRequests: 700, Window: time.Minute},
	Policy:              resilience.DefaultPolicy(),
	AuthModes:           []model.AuthMode{model.AuthModeAPIKey, model.AuthModeOAuth2},
	ValidateOnConstruct: true,
}

// ErrMissingSubdomain is returned when credentials carry no account URL.
var ErrMissingSubdomain = errors.New("zendesk credentials require base_url, e.g. https://acme.zendesk.com")

// Compile-time interface satisfaction check.
var _ driven.Helpdesk = (*Client)(nil)

// Client is a Zendesk provider for one tenant account.
type Client struct {
	id      model.ProviderIdentity
	cfg     model.HelpdeskConfig
	groupID int64
	ex      *resilience.Executor
	api     *rest.Client
}

// New constructs a Client. API key tokens take the form "email:api_token" and
// use basic auth as Zendesk expects; a bare token is sent as a bearer token.
func New(d provider.Deps) (*Client, error) {
	base := d.Credentials.Endpoint()
	if base == "" {
		return nil, ErrMissingSubdomain
	}
	cfg, _ := d.Config.(model.HelpdeskConfig)

	var groupID int64
	if cfg.Project != "" {
		id, err := strconv.ParseInt(cfg.Project, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("zendesk project must be a numeric group id, got %q", cfg.Project)
		}
		groupID = id
	}

	return &Client{
		id:      d.Identity,
		cfg:     cfg,
		groupID: groupID,
		ex:      d.Executor,
		api: &rest.Client{
			Transport: d.Transport,
			BaseURL:   base,
			Authorize: authorizer(d.Credentials),
			Clock:     d.Clock,
			Logger:    d.Logger,
		},
	}, nil
}

func authorizer(creds model.Credentials) func(http.Header) {
	if key, ok := creds.(model.APIKeyCredentials); ok {
		if email, token, found := strings.Cut(key.Token, ":"); found {
			return rest.BasicAuth(email+"/token", token)
		}
	}
	return rest.BearerAuth(model.BearerToken(creds))
}

// Identity returns the provider identity.
func (c *Client) Identity() model.ProviderIdentity { return c.id }

// Validate fetches the authenticated agent.
func (c *Client) Validate(ctx context.Context) error {
	return resilience.Run(ctx, c.ex, "validate", func(ctx context.Context) error {
		var out struct {
			User struct {
				ID   int64  `json:"id"`
				Role string `json:"role"`
			} `json:"user"`
		}
		if _, err := c.api.Do(ctx, rest.Call{Method: http.MethodGet, Path: "/api/v2/users/me.json"}, &out); err != nil {
			return err
		}
		// Zendesk answers unauthenticated requests to /me with an anonymous user.
		if out.User.ID == 0 {
			return &model.NormalizedError{Kind: model.KindAuthentication, Message: "credentials resolved to an anonymous user"}
		}
		return nil
	})
}
