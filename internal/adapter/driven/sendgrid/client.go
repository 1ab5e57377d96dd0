// Package sendgrid implements the Email contract against the SendGrid v3 API.
package sendgrid

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/ericfisherdev/vendorbridge/internal/adapter/driven/rest"
	"github.com/ericfisherdev/vendorbridge/internal/domain/model"
	"github.com/ericfisherdev/vendorbridge/internal/domain/port/driven"
	"github.com/ericfisherdev/vendorbridge/internal/provider"
	"github.com/ericfisherdev/vendorbridge/internal/render"
	"github.com/ericfisherdev/vendorbridge/internal/resilience"
)

// Vendor is the registry name of this adapter.
const Vendor = "sendgrid"

const defaultBaseURL = "https://api.sendgrid.com"

// Spec matches the per-key limit of the mail send endpoint.
var Spec = provider.Spec{
	RateLimit:           model.RateLimit{MaxRequests: 600, Window: time.Minute},
	Policy:              resilience.DefaultPolicy(),
	AuthModes:           []model.AuthMode{model.AuthModeAPIKey},
	ValidateOnConstruct: true,
}

// Compile-time interface satisfaction check.
var _ driven.Email = (*Client)(nil)

// Client is a SendGrid provider.
type Client struct {
	id  model.ProviderIdentity
	cfg model.EmailConfig
	ex  *resilience.Executor
	api *rest.Client
}

// New constructs a Client.
func New(d provider.Deps) (*Client, error) {
	cfg, _ := d.Config.(model.EmailConfig)
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

// Validate lists the scopes granted to the API key.
func (c *Client) Validate(ctx context.Context) error {
	return resilience.Run(ctx, c.ex, "validate", func(ctx context.Context) error {
		_, err := c.api.Do(ctx, rest.Call{Method: http.MethodGet, Path: "/v3/scopes"}, nil)
		return err
	})
}

// An oversized message is a caller error, not something a retry can fix.
func classify(status int, _ []byte) model.ErrorKind {
	if status == http.StatusRequestEntityTooLarge {
		return model.KindValidation
	}
	return resilience.ClassifyStatus(status)
}

type address struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type personalization struct {
	To         []address         `json:"to"`
	Cc         []address         `json:"cc,omitempty"`
	Bcc        []address         `json:"bcc,omitempty"`
	CustomArgs map[string]string `json:"custom_args,omitempty"`
}

type content struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type mailSend struct {
	Personalizations []personalization `json:"personalizations"`
	From             address           `json:"from"`
	ReplyTo          *address          `json:"reply_to,omitempty"`
	Subject          string            `json:"subject"`
	Content          []content         `json:"content"`
	Headers          map[string]string `json:"headers,omitempty"`
}

func addresses(emails []string) []address {
	return lo.Map(emails, func(e string, _ int) address { return address{Email: e} })
}

// Send submits a message. Markdown bodies are rendered to sanitized HTML with
// a plain text alternative. The idempotency key travels as a custom arg so it
// shows up in event webhooks.
func (c *Client) Send(ctx context.Context, msg model.EmailMessage) (*model.SentEmail, error) {
	if err := model.Validate(msg); err != nil {
		return nil, err
	}
	from := address{
		Email: lo.CoalesceOrEmpty(msg.From, c.cfg.FromAddress),
		Name:  lo.CoalesceOrEmpty(msg.FromName, c.cfg.FromName),
	}
	if from.Email == "" {
		return nil, &model.NormalizedError{Kind: model.KindValidation, Message: "from: required when no default sender is configured"}
	}

	p := personalization{To: addresses(msg.To), Cc: addresses(msg.Cc), Bcc: addresses(msg.Bcc)}
	if msg.IdempotencyKey != "" {
		p.CustomArgs = map[string]string{"idempotency_key": msg.IdempotencyKey}
	}
	body := mailSend{
		Personalizations: []personalization{p},
		From:             from,
		Subject:          msg.Subject,
		Content:          c.contents(msg),
		Headers:          msg.Headers,
	}
	if msg.ReplyTo != "" {
		body.ReplyTo = &address{Email: msg.ReplyTo}
	}

	return resilience.Do(ctx, c.ex, "send_email", func(ctx context.Context) (*model.SentEmail, error) {
		resp, err := c.api.Do(ctx, rest.Call{Method: http.MethodPost, Path: "/v3/mail/send", Body: body}, nil)
		if err != nil {
			return nil, err
		}
		return &model.SentEmail{
			MessageID:  resp.Header.Get("X-Message-Id"),
			AcceptedAt: c.ex.Clock().Now().UTC(),
		}, nil
	})
}

func (c *Client) contents(msg model.EmailMessage) []content {
	format := msg.Format
	if format == "" && c.cfg.RenderMarkdown {
		format = model.FormatMarkdown
	}
	switch format {
	case model.FormatHTML:
		return []content{
			{Type: "text/plain", Value: render.PlainText(msg.Body)},
			{Type: "text/html", Value: msg.Body},
		}
	case model.FormatMarkdown:
		html := render.Markdown(msg.Body)
		return []content{
			{Type: "text/plain", Value: render.PlainText(html)},
			{Type: "text/html", Value: html},
		}
	default:
		return []content{{Type: "text/plain", Value: msg.Body}}
	}
}

type activity struct {
	Messages []struct {
		MsgID         string    `json:"msg_id"`
		FromEmail     string    `json:"from_email"`
		ToEmail       string    `json:"to_email"`
		Subject       string    `json:"subject"`
		Status        string    `json:"status"`
		LastEventTime time.Time `json:"last_event_time"`
	} `json:"messages"`
}

// Search queries the Email Activity feed. The feed has no cursor, so results
// are a single page of at most the requested limit.
func (c *Client) Search(ctx context.Context, q model.EmailSearch) (*model.Page[model.EmailSummary], error) {
	if err := model.Validate(q); err != nil {
		return nil, err
	}
	if q.Page.Cursor != "" {
		return nil, &model.NormalizedError{Kind: model.KindValidation, Message: "cursor: sendgrid activity search is not paginated"}
	}
	params := url.Values{"limit": {strconv.Itoa(min(q.Page.EffectiveLimit(), 1000))}}
	if query := activityQuery(q); query != "" {
		params.Set("query", query)
	}

	return resilience.Do(ctx, c.ex, "search_email", func(ctx context.Context) (*model.Page[model.EmailSummary], error) {
		var out activity
		if _, err := c.api.Do(ctx, rest.Call{Method: http.MethodGet, Path: "/v3/messages", Query: params}, &out); err != nil {
			return nil, err
		}
		page := &model.Page[model.EmailSummary]{Items: make([]model.EmailSummary, 0, len(out.Messages))}
		for _, m := range out.Messages {
			page.Items = append(page.Items, model.EmailSummary{
				MessageID: m.MsgID,
				From:      m.FromEmail,
				To:        m.ToEmail,
				Subject:   m.Subject,
				Status:    m.Status,
				SentAt:    m.LastEventTime,
			})
		}
		return page, nil
	})
}

func activityQuery(q model.EmailSearch) string {
	var clauses []string
	if q.To != "" {
		clauses = append(clauses, fmt.Sprintf("to_email=%q", q.To))
	}
	if q.Status != "" {
		clauses = append(clauses, fmt.Sprintf("status=%q", q.Status))
	}
	if s := strings.TrimSpace(q.Query); s != "" {
		clauses = append(clauses, fmt.Sprintf("subject LIKE %q", "%"+s+"%"))
	}
	if q.Since != nil {
		clauses = append(clauses, fmt.Sprintf("last_event_time>TIMESTAMP %q", q.Since.UTC().Format(time.RFC3339)))
	}
	return strings.Join(clauses, " AND ")
}
