package github

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	gh "github.com/google/go-github/v82/github"
	"github.com/samber/lo"

	"github.com/ericfisherdev/vendorbridge/internal/domain/model"
	"github.com/ericfisherdev/vendorbridge/internal/resilience"
)

// Priority and pending status have no native field on an issue; they are
// carried as labels with these prefixes.
const (
	priorityLabelPrefix = "priority:"
	pendingLabel        = "status:pending"
)

// CreateTicket opens an issue in the configured repository.
func (c *Client) CreateTicket(ctx context.Context, in model.TicketInput) (*model.Ticket, error) {
	if err := model.Validate(in); err != nil {
		return nil, err
	}

	priority := in.Priority
	if priority == "" {
		priority = c.cfg.DefaultPriority
	}
	labels := withPriority(lo.Uniq(append(slices.Clone(c.cfg.DefaultTags), in.Tags...)), priority)

	body := in.Description
	if in.RequesterEmail != "" {
		body += "\n\n---\nRequested by " + in.RequesterEmail
	}

	return resilience.Do(ctx, c.ex, "create_ticket", func(ctx context.Context) (*model.Ticket, error) {
		req := &gh.IssueRequest{Title: gh.Ptr(in.Subject), Body: gh.Ptr(body)}
		if len(labels) > 0 {
			req.Labels = &labels
		}
		issue, resp, err := c.gh.Issues.Create(ctx, c.owner, c.repo, req)
		if err != nil {
			return nil, c.normalize(err)
		}
		c.logRateLimit(resp, c.owner+"/"+c.repo+"/issues", 0, 1)

		t := mapIssue(issue)
		t.RequesterEmail = in.RequesterEmail
		return &t, nil
	})
}

// UpdateTicket edits an issue. Solved closes it as completed and closed
// closes it as not planned; any other status reopens it.
func (c *Client) UpdateTicket(ctx context.Context, id string, upd model.TicketUpdate) (*model.Ticket, error) {
	number, err := issueNumber(id)
	if err != nil {
		return nil, err
	}
	if err := model.Validate(upd); err != nil {
		return nil, err
	}

	return resilience.Do(ctx, c.ex, "update_ticket", func(ctx context.Context) (*model.Ticket, error) {
		req := &gh.IssueRequest{Title: upd.Subject}
		if upd.AssigneeID != nil {
			req.Assignees = gh.Ptr(lo.Compact([]string{*upd.AssigneeID}))
		}
		if upd.Status != nil {
			state, reason := issueState(*upd.Status)
			req.State = gh.Ptr(state)
			if reason != "" {
				req.StateReason = gh.Ptr(reason)
			}
		}

		if upd.Tags != nil || upd.Priority != nil || upd.Status != nil {
			labels, err := c.updatedLabels(ctx, number, upd)
			if err != nil {
				return nil, err
			}
			req.Labels = &labels
		}

		issue, resp, err := c.gh.Issues.Edit(ctx, c.owner, c.repo, number, req)
		if err != nil {
			return nil, c.normalize(err)
		}
		c.logRateLimit(resp, c.owner+"/"+c.repo+"/issues/"+id, 0, 1)

		t := mapIssue(issue)
		return &t, nil
	})
}

// updatedLabels computes the label set after upd. Labels the update does not
// mention are read from the current issue.
func (c *Client) updatedLabels(ctx context.Context, number int, upd model.TicketUpdate) ([]string, error) {
	var current []string
	if upd.Tags != nil {
		current = slices.Clone(upd.Tags)
	} else {
		issue, _, err := c.gh.Issues.Get(ctx, c.owner, c.repo, number)
		if err != nil {
			return nil, c.normalize(err)
		}
		current = labelNames(issue.Labels)
	}

	priority := priorityOf(current)
	if upd.Priority != nil {
		priority = *upd.Priority
	}
	labels := withPriority(lo.Uniq(current), priority)

	if upd.Status != nil {
		labels = lo.Without(labels, pendingLabel)
		if *upd.Status == model.TicketStatusPending {
			labels = append(labels, pendingLabel)
		}
	}
	return labels, nil
}

// SearchTickets queries issues in the configured repository through the
// search API. The cursor is the next page number.
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
	query := c.searchQuery(q)

	return resilience.Do(ctx, c.ex, "search_tickets", func(ctx context.Context) (*model.Page[model.TicketMatch], error) {
		result, resp, err := c.gh.Search.Issues(ctx, query, &gh.SearchOptions{
			ListOptions: gh.ListOptions{Page: page, PerPage: min(q.Page.EffectiveLimit(), 100)},
		})
		if err != nil {
			return nil, c.normalize(err)
		}
		c.logRateLimit(resp, "search/issues", page, len(result.Issues))

		n := len(result.Issues)
		out := &model.Page[model.TicketMatch]{
			Items: lo.Map(result.Issues, func(issue *gh.Issue, i int) model.TicketMatch {
				// Search results arrive best match first without a usable score.
				return model.TicketMatch{Ticket: mapIssue(issue), Score: 1 - float64(i)/float64(n)}
			}),
			Total: result.GetTotal(),
		}
		if resp != nil && resp.NextPage > 0 {
			out.NextCursor = strconv.Itoa(resp.NextPage)
		}
		return out, nil
	})
}

func (c *Client) searchQuery(q model.TicketSearch) string {
	parts := []string{"repo:" + c.owner + "/" + c.repo, "is:issue"}
	if s := strings.TrimSpace(q.Query); s != "" {
		parts = append(parts, s)
	}
	switch q.Status {
	case model.TicketStatusSolved:
		parts = append(parts, "is:closed", "reason:completed")
	case model.TicketStatusClosed:
		parts = append(parts, "is:closed")
	case model.TicketStatusPending:
		parts = append(parts, "is:open", fmt.Sprintf("label:%q", pendingLabel))
	case model.TicketStatusNew, model.TicketStatusOpen:
		parts = append(parts, "is:open")
	}
	keys := lo.Keys(q.Filters)
	slices.Sort(keys)
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s:%q", k, q.Filters[k]))
	}
	return strings.Join(parts, " ")
}

// AddComment posts a comment on an issue. GitHub issues have no private
// comments, so internal visibility is rejected before any call is made.
func (c *Client) AddComment(ctx context.Context, ticketID, text string, visibility model.CommentVisibility) (*model.Comment, error) {
	number, err := issueNumber(ticketID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, &model.NormalizedError{Kind: model.KindValidation, Message: "comment text is required"}
	}
	if visibility == model.VisibilityInternal {
		return nil, &model.NormalizedError{Kind: model.KindValidation, Message: "github issues do not support internal comments"}
	}

	return resilience.Do(ctx, c.ex, "add_comment", func(ctx context.Context) (*model.Comment, error) {
		comment, resp, err := c.gh.Issues.CreateComment(ctx, c.owner, c.repo, number, &gh.IssueComment{Body: gh.Ptr(text)})
		if err != nil {
			return nil, c.normalize(err)
		}
		c.logRateLimit(resp, c.owner+"/"+c.repo+"/comments", 0, 1)

		return &model.Comment{
			ID:         strconv.FormatInt(comment.GetID(), 10),
			TicketID:   ticketID,
			Body:       comment.GetBody(),
			Visibility: model.VisibilityPublic,
			AuthorID:   comment.GetUser().GetLogin(),
			CreatedAt:  comment.GetCreatedAt().Time,
		}, nil
	})
}

func issueNumber(id string) (int, error) {
	n, err := strconv.Atoi(strings.TrimPrefix(strings.TrimSpace(id), "#"))
	if err != nil || n <= 0 {
		return 0, &model.NormalizedError{Kind: model.KindValidation, Message: fmt.Sprintf("invalid issue number %q", id)}
	}
	return n, nil
}

func issueState(s model.TicketStatus) (state, reason string) {
	switch s {
	case model.TicketStatusSolved:
		return "closed", "completed"
	case model.TicketStatusClosed:
		return "closed", "not_planned"
	default:
		return "open", ""
	}
}

// mapIssue converts a go-github Issue to a domain Ticket.
// It uses GetXxx() helper methods exclusively to avoid nil pointer panics.
func mapIssue(issue *gh.Issue) model.Ticket {
	labels := labelNames(issue.Labels)

	status := model.TicketStatusOpen
	switch {
	case issue.GetState() == "closed" && issue.GetStateReason() == "completed":
		status = model.TicketStatusSolved
	case issue.GetState() == "closed":
		status = model.TicketStatusClosed
	case slices.Contains(labels, pendingLabel):
		status = model.TicketStatusPending
	case issue.GetComments() == 0 && issue.GetAssignee() == nil:
		status = model.TicketStatusNew
	}

	return model.Ticket{
		ID:          strconv.Itoa(issue.GetNumber()),
		Subject:     issue.GetTitle(),
		Description: issue.GetBody(),
		Status:      status,
		Priority:    priorityOf(labels),
		AssigneeID:  issue.GetAssignee().GetLogin(),
		Tags: lo.Filter(labels, func(l string, _ int) bool {
			return !strings.HasPrefix(l, priorityLabelPrefix) && l != pendingLabel
		}),
		URL:       issue.GetHTMLURL(),
		CreatedAt: issue.GetCreatedAt().Time,
		UpdatedAt: issue.GetUpdatedAt().Time,
	}
}

func labelNames(labels []*gh.Label) []string {
	return lo.Map(labels, func(l *gh.Label, _ int) string { return l.GetName() })
}

func priorityOf(labels []string) model.TicketPriority {
	for _, l := range labels {
		if p, ok := strings.CutPrefix(l, priorityLabelPrefix); ok {
			return model.TicketPriority(p)
		}
	}
	return ""
}

// withPriority replaces any priority label with p. An empty p removes it.
func withPriority(labels []string, p model.TicketPriority) []string {
	out := lo.Reject(labels, func(l string, _ int) bool { return strings.HasPrefix(l, priorityLabelPrefix) })
	if p != "" {
		out = append(out, priorityLabelPrefix+string(p))
	}
	return out
}
