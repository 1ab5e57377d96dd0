package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Contact is a person record held by a CRM vendor.
type Contact struct {
	ID         string            `json:"id"`
	Email      string            `json:"email"`
	FirstName  string            `json:"first_name,omitempty"`
	LastName   string            `json:"last_name,omitempty"`
	Phone      string            `json:"phone,omitempty"`
	Company    string            `json:"company,omitempty"`
	Properties map[string]string `json:"properties,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// ContactInput is the payload for creating a contact.
type ContactInput struct {
	Email      string            `json:"email" validate:"required,email"`
	FirstName  string            `json:"first_name,omitempty" validate:"max=200"`
	LastName   string            `json:"last_name,omitempty" validate:"max=200"`
	Phone      string            `json:"phone,omitempty" validate:"max=50"`
	Company    string            `json:"company,omitempty" validate:"max=200"`
	Properties map[string]string `json:"properties,omitempty"`
	// IdempotencyKey is forwarded to vendors that support it. It is not stored.
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// ContactOptions tunes CreateContact.
type ContactOptions struct {
	// UpdateIfExists turns a vendor duplicate conflict into an update of the
	// existing record.
	UpdateIfExists bool `json:"update_if_exists,omitempty"`
}

// ContactUpdate holds a partial update; nil fields are left unchanged.
type ContactUpdate struct {
	Email      *string           `json:"email,omitempty" validate:"omitempty,email"`
	FirstName  *string           `json:"first_name,omitempty"`
	LastName   *string           `json:"last_name,omitempty"`
	Phone      *string           `json:"phone,omitempty"`
	Company    *string           `json:"company,omitempty"`
	Properties map[string]string `json:"properties,omitempty"`
}

// IsEmpty reports whether the update changes nothing.
func (u ContactUpdate) IsEmpty() bool {
	return u.Email == nil && u.FirstName == nil && u.LastName == nil &&
		u.Phone == nil && u.Company == nil && len(u.Properties) == 0
}

// ContactSearch queries contacts by free text and exact-match filters.
type ContactSearch struct {
	Query   string            `json:"query,omitempty"`
	Filters map[string]string `json:"filters,omitempty"`
	Page    Pagination        `json:"page"`
}

// ContactMatch is a search hit. Score is in [0,1], higher is better.
type ContactMatch struct {
	Contact Contact `json:"contact"`
	Score   float64 `json:"score"`
}

// Note is free text attached to a CRM record.
type Note struct {
	ID        string    `json:"id"`
	TargetID  string    `json:"target_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// NoteInput is the payload for AddNote. Markdown bodies are rendered to
// sanitized HTML by vendors that display rich text.
type NoteInput struct {
	Body     string `json:"body" validate:"required"`
	Markdown bool   `json:"markdown,omitempty"`
}

// Deal is a sales opportunity.
type Deal struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency,omitempty"`
	Stage      string          `json:"stage,omitempty"`
	Pipeline   string          `json:"pipeline,omitempty"`
	ContactIDs []string        `json:"contact_ids,omitempty"`
	CloseDate  *time.Time      `json:"close_date,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// DealInput is the payload for CreateDeal.
type DealInput struct {
	Name           string          `json:"name" validate:"required,max=500"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency,omitempty" validate:"omitempty,len=3"`
	Stage          string          `json:"stage,omitempty"`
	ContactIDs     []string        `json:"contact_ids,omitempty"`
	CloseDate      *time.Time      `json:"close_date,omitempty"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
}
