package zendesk

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/ericfisherdev/vendorbridge/internal/adapter/driven/rest"
	"github.com/ericfisherdev/vendorbridge/internal/domain/model"
	"github.com/ericfisherdev/vendorbridge/internal/resilience"
)

type ticket struct {
	ID          int64     `json:"id"`
	URL         string    `json:"url"`
	Subject     string    `json:"subject"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	Priority    string    `json:"priority"`
	RequesterID int64     `json:"requester_id"`
	AssigneeID  *int64    `json:"assignee_id"`
	Tags        []string  `json:"tags"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type ticketEnvelope struct {
	Ticket ticket `json:"ticket"`
	Audit  *struct {
		Events []struct {
			ID       int64  `json:"id"`
			Type     string `json:"type"`
			Body     string `json:"body"`
			Public   bool   `json:"public"`
			AuthorID int64  `json:"author_id"`
		} `json:"events"`
		CreatedAt time.Time `json:"created_at"`
	} `json:"audit,omitempty"`
}

type comment struct {
	Body   string `json:"body"`
	Public *bool  `json:"public,omitempty"`
}

type ticketWrite struct {
	Subject    string         `json:"subject,omitempty"`
	Comment    *comment       `json:"comment,omitempty"`
	Status     string         `json:"status,omitempty"`
	Priority   string         `json:"priority,omitempty"`
	AssigneeID *int64         `json:"assignee_id,omitempty"`
	GroupID    int64          `json:"group_id,omitempty"`
	Tags       []string       `json:"tags,omitempty"`
	Requester  map[string]any `json:"requester,omitempty"`
}

// CreateTicket opens a ticket. The idempotency key is forwarded as the
// Idempotency-Key header, which Zendesk honors for ticket creation.
func (c *Client) CreateTicket(ctx context.Context, in model.TicketInput) (*model.Ticket, error) {
	if err := model.Validate(in); err != nil {
		return nil, err
	}

	w := ticketWrite{
		Subject:  in.Subject,
		Comment:  &comment{Body: in.Description},
		Priority: string(lo.CoalesceOrEmpty(in.Priority, c.cfg.DefaultPriority)),
		GroupID:  c.groupID,
		Tags:     normalizeTags(append(slices.Clone(c.cfg.DefaultTags), in.Tags...)),
	}
	if in.RequesterEmail != "" {
		w.Requester = map[string]any{"email": in.RequesterEmail}
	}
	header := http.Header{}
	if in.IdempotencyKey != "" {
		header.Set("Idempotency-Key", in.IdempotencyKey)
	}

	return resilience.Do(ctx, c.ex, "create_ticket", func(ctx context.Context) (*model.Ticket, error) {
		var out ticketEnvelope
		if _, err := c.api.Do(ctx, rest.Call{
			Method: http.MethodPost,
			Path:   "/api/v2/tickets.json",
			Body:   map[string]ticketWrite{"ticket": w},
			Header: header,
		}, &out); err != nil {
			return nil, err
		}
		t := mapTicket(out.Ticket)
		t.RequesterEmail = in.RequesterEmail
		return &t, nil
	})
}

// UpdateTicket applies a partial update.
func (c *Client) UpdateTicket(ctx context.Context, id string, upd model.TicketUpdate) (*model.Ticket, error) {
	ticketID, err := parseID("ticket id", id)
	if err != nil {
		return nil, err
	}
	if err := model.Validate(upd); err != nil {
		return nil, err
	}

	w := ticketWrite{Subject: lo.FromPtr(upd.Subject)}
	if upd.Status != nil {
		w.Status = string(*upd.Status)
	}
	if upd.Priority != nil {
		w.Priority = string(*upd.Priority)
	}
	if upd.AssigneeID != nil {
		assignee, err := parseID("assignee id", *upd.AssigneeID)
		if err != nil {
			return nil, err
		}
		w.AssigneeID = &assignee
	}
	if upd.Tags != nil {
		w.Tags = normalizeTags(upd.Tags)
	}

	return resilience.Do(ctx, c.ex, "update_ticket", func(ctx context.Context) (*model.Ticket, error) {
		var out ticketEnvelope
		if _, err := c.api.Do(ctx, rest.Call{
			Method: http.MethodPut,
			Path:   fmt.Sprintf("/api/v2/tickets/%d.json", ticketID),
			Body:   map[string]ticketWrite{"ticket": w},
		}, &out); err != nil {
			return nil, err
		}
		t := mapTicket(out.Ticket)
		return &t, nil
	})
}

type searchResponse struct {
	Results  []ticket `json:"results"`
	NextPage *string  `json:"next_page"`
	Count    int      `json:"count"`
}

// SearchTickets uses the unified search endpoint restricted to tickets. The
// cursor is the page number of the next result page.
func (c *Client) SearchTickets(ctx context.Context, q model.TicketSearch) (*model.Page[model.TicketMatch], error) {
	if err := model.Validate(q); err != nil {
		return nil, err
	}
	page := 1
	if q.Page.Cursor != "" {
		n, err := strconv.Atoi(q.Page.Cursor)
		if err != nil || n < 1 {
			return nil, &model.NormalizedError{Kind: model.KindValidation, Message: fmt.Sprintf("invalid cursor %q", q.Page.Cursor)}
		}
		page = n
	}
	params := url.Values{
		"query":    {c.searchQuery(q)},
		"page":     {strconv.Itoa(page)},
		"per_page": {strconv.Itoa(min(q.Page.EffectiveLimit(), 100))},
	}

	return resilience.Do(ctx, c.ex, "search_tickets", func(ctx context.Context) (*model.Page[model.TicketMatch], error) {
		var out searchResponse
		if _, err := c.api.Do(ctx, rest.Call{Method: http.MethodGet, Path: "/api/v2/search.json", Query: params}, &out); err != nil {
			return nil, err
		}
		n := len(out.Results)
		result := &model.Page[model.TicketMatch]{
			Items: lo.Map(out.Results, func(t ticket, i int) model.TicketMatch {
				return model.TicketMatch{Ticket: mapTicket(t), Score: 1 - float64(i)/float64(n)}
			}),
			Total: out.Count,
		}
		if out.NextPage != nil && *out.NextPage != "" {
			result.NextCursor = strconv.Itoa(page + 1)
		}
		return result, nil
	})
}

func (c *Client) searchQuery(q model.TicketSearch) string {
	parts := []string{"type:ticket"}
	if c.groupID != 0 {
		parts = append(parts, fmt.Sprintf("group:%d", c.groupID))
	}
	if q.Status != "" {
		parts = append(parts, "status:"+string(q.Status))
	}
	keys := lo.Keys(q.Filters)
	slices.Sort(keys)
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s:%q", k, q.Filters[k]))
	}
	if s := strings.TrimSpace(q.Query); s != "" {
		parts = append(parts, s)
	}
	return strings.Join(parts, " ")
}

// AddComment adds a public reply or an internal note.
func (c *Client) AddComment(ctx context.Context, ticketID, text string, visibility model.CommentVisibility) (*model.Comment, error) {
	id, err := parseID("ticket id", ticketID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, &model.NormalizedError{Kind: model.KindValidation, Message: "comment text is required"}
	}
	if visibility == "" {
		visibility = model.VisibilityPublic
	}
	public := visibility == model.VisibilityPublic

	return resilience.Do(ctx, c.ex, "add_comment", func(ctx context.Context) (*model.Comment, error) {
		var out ticketEnvelope
		if _, err := c.api.Do(ctx, rest.Call{
			Method: http.MethodPut,
			Path:   fmt.Sprintf("/api/v2/tickets/%d.json", id),
			Body:   map[string]ticketWrite{"ticket": {Comment: &comment{Body: text, Public: &public}}},
		}, &out); err != nil {
			return nil, err
		}

		result := &model.Comment{TicketID: ticketID, Body: text, Visibility: visibility, CreatedAt: out.Ticket.UpdatedAt}
		if out.Audit != nil {
			result.CreatedAt = out.Audit.CreatedAt
			for _, ev := range out.Audit.Events {
				if ev.Type == "Comment" {
					result.ID = strconv.FormatInt(ev.ID, 10)
					result.AuthorID = strconv.FormatInt(ev.AuthorID, 10)
					break
				}
			}
		}
		return result, nil
	})
}

func parseID(name, id string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
	if err != nil || n <= 0 {
		return 0, &model.NormalizedError{Kind: model.KindValidation, Message: fmt.Sprintf("invalid %s %q", name, id)}
	}
	return n, nil
}

// Zendesk tags are lowercase and may not contain spaces.
func normalizeTags(tags []string) []string {
	return lo.Uniq(lo.FilterMap(tags, func(t string, _ int) (string, bool) {
		t = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(t)), " ", "_")
		return t, t != ""
	}))
}

func mapTicket(t ticket) model.Ticket {
	status := model.TicketStatus(t.Status)
	if t.Status == "hold" {
		status = model.TicketStatusPending
	}
	out := model.Ticket{
		ID:          strconv.FormatInt(t.ID, 10),
		Subject:     t.Subject,
		Description: t.Description,
		Status:      status,
		Priority:    model.TicketPriority(t.Priority),
		Tags:        t.Tags,
		URL:         t.URL,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
	if t.AssigneeID != nil {
		out.AssigneeID = strconv.FormatInt(*t.AssigneeID, 10)
	}
	return out
}
