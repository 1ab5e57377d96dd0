// Package github implements the Helpdesk contract on GitHub Issues using the
// go-github library. Each tenant configures one repository as its project.
package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	gh "github.com/google/go-github/v82/github"
	"github.com/gregjones/httpcache"
	"github.com/jonboulle/clockwork"

	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"

	"github.com/ericfisherdev/vendorbridge/internal/adapter/driven/transport"
	"github.com/ericfisherdev/vendorbridge/internal/domain/model"
	"github.com/ericfisherdev/vendorbridge/internal/domain/port/driven"
	"github.com/ericfisherdev/vendorbridge/internal/provider"
	"github.com/ericfisherdev/vendorbridge/internal/resilience"
)

// Vendor is the registry name of this adapter.
const Vendor = "github"

// Spec reflects the authenticated REST quota of 5000 requests per hour.
var Spec = provider.Spec{
	RateLimit:           model.RateLimit{MaxRequests: 5000, Window: time.Hour},
	Policy:              resilience.DefaultPolicy(),
	AuthModes:           []model.AuthMode{model.AuthModeAPIKey, model.AuthModeOAuth2},
	ValidateOnConstruct: true,
}

// Compile-time interface satisfaction check.
var _ driven.Helpdesk = (*Client)(nil)

// Client implements driven.Helpdesk against one GitHub repository.
type Client struct {
	id     model.ProviderIdentity
	cfg    model.HelpdeskConfig
	owner  string
	repo   string
	gh     *gh.Client
	ex     *resilience.Executor
	clock  clockwork.Clock
	logger *slog.Logger
}

// New creates a Client with the following transport stack:
//  1. the shared vendor transport (timeouts, body limits)
//  2. httpcache (ETag-based conditional request caching)
//  3. go-github-ratelimit (secondary rate limit middleware)
//  4. go-github (REST client with token auth)
//
// A credentials base URL points the client at GitHub Enterprise or a test server.
func New(d provider.Deps) (*Client, error) {
	cfg, _ := d.Config.(model.HelpdeskConfig)
	owner, repo, err := splitRepo(cfg.Project)
	if err != nil {
		return nil, err
	}

	cacheTransport := httpcache.NewTransport(httpcache.NewMemoryCache())
	cacheTransport.Transport = transport.RoundTripper(d.Transport)
	rateLimitClient := github_ratelimit.NewClient(cacheTransport)
	client := gh.NewClient(rateLimitClient).WithAuthToken(model.BearerToken(d.Credentials))

	if base := d.Credentials.Endpoint(); base != "" {
		u, err := url.Parse(strings.TrimRight(base, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("parsing base URL: %w", err)
		}
		client.BaseURL = u
	}

	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		id:     d.Identity,
		cfg:    cfg,
		owner:  owner,
		repo:   repo,
		gh:     client,
		ex:     d.Executor,
		clock:  d.Clock,
		logger: logger,
	}, nil
}

// Identity returns the provider identity.
func (c *Client) Identity() model.ProviderIdentity { return c.id }

// Validate fetches the authenticated user, then the configured repository so
// a token without access to the project fails at construction.
func (c *Client) Validate(ctx context.Context) error {
	user, err := resilience.Do(ctx, c.ex, "validate", func(ctx context.Context) (*gh.User, error) {
		user, resp, err := c.gh.Users.Get(ctx, "")
		if err != nil {
			return nil, c.normalize(err)
		}
		c.logRateLimit(resp, "user", 0, 1)
		return user, nil
	})
	if err != nil {
		return err
	}

	err = resilience.Run(ctx, c.ex, "validate", func(ctx context.Context) error {
		_, resp, err := c.gh.Repositories.Get(ctx, c.owner, c.repo)
		if err != nil {
			return c.normalize(err)
		}
		c.logRateLimit(resp, c.owner+"/"+c.repo, 0, 1)
		return nil
	})
	if err != nil {
		return err
	}

	c.logger.Debug("github token validated", "login", user.GetLogin(), "repo", c.owner+"/"+c.repo)
	return nil
}

// normalize maps go-github errors onto the shared error taxonomy.
func (c *Client) normalize(err error) error {
	if err == nil {
		return nil
	}

	var rle *gh.RateLimitError
	if errors.As(err, &rle) {
		wait := rle.Rate.Reset.Time.Sub(c.now())
		if wait < 0 {
			wait = 0
		}
		return &model.NormalizedError{
			Kind:             model.KindRateLimit,
			Message:          rle.Message,
			RetryAfter:       wait,
			VendorStatusCode: statusOf(rle.Response),
			Cause:            err,
		}
	}

	var abuse *gh.AbuseRateLimitError
	if errors.As(err, &abuse) {
		ne := &model.NormalizedError{
			Kind:             model.KindRateLimit,
			Message:          abuse.Message,
			VendorStatusCode: statusOf(abuse.Response),
			Cause:            err,
		}
		if ra := abuse.GetRetryAfter(); ra > 0 {
			ne.RetryAfter = ra
		}
		return ne
	}

	var er *gh.ErrorResponse
	if errors.As(err, &er) {
		status := statusOf(er.Response)
		msg := er.Message
		if len(er.Errors) > 0 && er.Errors[0].Message != "" {
			msg = msg + ": " + er.Errors[0].Message
		}
		if msg == "" {
			msg = http.StatusText(status)
		}
		ne := &model.NormalizedError{
			Kind:             resilience.ClassifyStatus(status),
			Message:          msg,
			VendorStatusCode: status,
			Cause:            err,
		}
		if ne.Kind == model.KindRateLimit && er.Response != nil {
			ne.RetryAfter = resilience.ParseRetryAfter(er.Response.Header, c.now())
		}
		return ne
	}

	return resilience.FromError(err)
}

func statusOf(resp *http.Response) int {
	if resp == nil {
		return 0
	}
	return resp.StatusCode
}

func (c *Client) now() time.Time {
	if c.clock == nil {
		return time.Now()
	}
	return c.clock.Now()
}

// logRateLimit logs the GitHub API rate limit status after each call.
func (c *Client) logRateLimit(resp *gh.Response, endpoint string, page, count int) {
	if resp == nil {
		return
	}

	c.logger.Debug("github api call",
		"endpoint", endpoint,
		"page", page,
		"count", count,
		"rate_remaining", resp.Rate.Remaining,
		"rate_limit", resp.Rate.Limit,
	)

	if resp.Rate.Limit > 0 && resp.Rate.Remaining < 100 {
		c.logger.Warn("github rate limit low",
			"remaining", resp.Rate.Remaining,
			"reset_in", resp.Rate.Reset.Time.Sub(c.now()).Round(time.Second),
		)
	}
}

// splitRepo splits a "owner/repo" string into its two components.
func splitRepo(fullName string) (string, string, error) {
	parts := strings.SplitN(fullName, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repo name %q: expected owner/repo", fullName)
	}
	return parts[0], parts[1], nil
}
