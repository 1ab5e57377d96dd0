package model

import "time"

// TicketStatus is the normalized lifecycle state of a ticket.
type TicketStatus string

const (
	TicketStatusNew     TicketStatus = "new"
	TicketStatusOpen    TicketStatus = "open"
	TicketStatusPending TicketStatus = "pending"
	TicketStatusSolved  TicketStatus = "solved"
	TicketStatusClosed  TicketStatus = "closed"
)

// TicketPriority is the normalized urgency of a ticket.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "low"
	TicketPriorityNormal TicketPriority = "normal"
	TicketPriorityHigh   TicketPriority = "high"
	TicketPriorityUrgent TicketPriority = "urgent"
)

// CommentVisibility controls whether the requester can see a comment.
type CommentVisibility string

const (
	VisibilityPublic   CommentVisibility = "public"
	VisibilityInternal CommentVisibility = "internal"
)

// Ticket is a support request held by a helpdesk vendor.
type Ticket struct {
	ID             string         `json:"id"`
	Subject        string         `json:"subject"`
	Description    string         `json:"description,omitempty"`
	Status         TicketStatus   `json:"status"`
	Priority       TicketPriority `json:"priority,omitempty"`
	RequesterEmail string         `json:"requester_email,omitempty"`
	AssigneeID     string         `json:"assignee_id,omitempty"`
	Tags           []string       `json:"tags,omitempty"`
	URL            string         `json:"url,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// TicketInput is the payload for CreateTicket.
type TicketInput struct {
	Subject        string         `json:"subject" validate:"required,max=500"`
	Description    string         `json:"description" validate:"required"`
	Priority       TicketPriority `json:"priority,omitempty" validate:"omitempty,oneof=low normal high urgent"`
	RequesterEmail string         `json:"requester_email,omitempty" validate:"omitempty,email"`
	Tags           []string       `json:"tags,omitempty"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
}

// TicketUpdate is a partial update; nil fields are left unchanged.
type TicketUpdate struct {
	Subject    *string         `json:"subject,omitempty"`
	Status     *TicketStatus   `json:"status,omitempty" validate:"omitempty,oneof=new open pending solved closed"`
	Priority   *TicketPriority `json:"priority,omitempty" validate:"omitempty,oneof=low normal high urgent"`
	AssigneeID *string         `json:"assignee_id,omitempty"`
	Tags       []string        `json:"tags,omitempty"`
}

// TicketSearch queries tickets by free text and filters.
type TicketSearch struct {
	Query   string            `json:"query,omitempty"`
	Status  TicketStatus      `json:"status,omitempty"`
	Filters map[string]string `json:"filters,omitempty"`
	Page    Pagination        `json:"page"`
}

// TicketMatch is a ticket search hit.
type TicketMatch struct {
	Ticket Ticket  `json:"ticket"`
	Score  float64 `json:"score"`
}

// Comment is a reply on a ticket.
type Comment struct {
	ID         string            `json:"id"`
	TicketID   string            `json:"ticket_id"`
	Body       string            `json:"body"`
	Visibility CommentVisibility `json:"visibility"`
	AuthorID   string            `json:"author_id,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}
