package model

import "time"

// BodyFormat says how EmailMessage.Body should be interpreted.
type BodyFormat string

const (
	FormatText     BodyFormat = "text"
	FormatHTML     BodyFormat = "html"
	FormatMarkdown BodyFormat = "markdown" // Rendered to sanitized HTML before sending.
)

// EmailMessage is an outbound message.
type EmailMessage struct {
	From           string            `json:"from,omitempty" validate:"omitempty,email"`
	FromName       string            `json:"from_name,omitempty"`
	To             []string          `json:"to" validate:"required,min=1,dive,email"`
	Cc             []string          `json:"cc,omitempty" validate:"dive,email"`
	Bcc            []string          `json:"bcc,omitempty" validate:"dive,email"`
	ReplyTo        string            `json:"reply_to,omitempty" validate:"omitempty,email"`
	Subject        string            `json:"subject" validate:"required,max=998"`
	Body           string            `json:"body" validate:"required"`
	Format         BodyFormat        `json:"format,omitempty" validate:"omitempty,oneof=text html markdown"`
	Headers        map[string]string `json:"headers,omitempty"`
	IdempotencyKey string            `json:"idempotency_key,omitempty"`
}

// SentEmail acknowledges a message accepted by the vendor.
type SentEmail struct {
	MessageID  string    `json:"message_id"`
	AcceptedAt time.Time `json:"accepted_at"`
}

// EmailSearch filters the vendor's message activity.
type EmailSearch struct {
	Query  string     `json:"query,omitempty"`
	To     string     `json:"to,omitempty" validate:"omitempty,email"`
	Status string     `json:"status,omitempty"`
	Since  *time.Time `json:"since,omitempty"`
	Page   Pagination `json:"page"`
}

// EmailSummary is one entry of message activity.
type EmailSummary struct {
	MessageID string    `json:"message_id"`
	From      string    `json:"from,omitempty"`
	To        string    `json:"to"`
	Subject   string    `json:"subject"`
	Status    string    `json:"status"`
	SentAt    time.Time `json:"sent_at"`
}
