// Package driven defines secondary port interfaces for external adapters.
package driven

import (
	"context"

	"github.com/ericfisherdev/vendorbridge/internal/domain/model"
)

// Provider is implemented by every vendor adapter regardless of domain.
// Every method of a domain contract returns either a value or a
// *model.NormalizedError; nothing unclassified crosses this boundary.
type Provider interface {
	Identity() model.ProviderIdentity
	// Validate performs a lightweight authenticated call to confirm the
	// credentials are accepted by the vendor.
	Validate(ctx context.Context) error
}

// CRM is the contract for customer-relationship vendors.
type CRM interface {
	Provider
	CreateContact(ctx context.Context, in model.ContactInput, opts model.ContactOptions) (*model.Contact, error)
	UpdateContact(ctx context.Context, id string, upd model.ContactUpdate) (*model.Contact, error)
	// SearchContacts returns matches ordered by descending score.
	SearchContacts(ctx context.Context, q model.ContactSearch) ([]model.ContactMatch, error)
	AddNote(ctx context.Context, targetID string, note model.NoteInput) (*model.Note, error)
	CreateDeal(ctx context.Context, in model.DealInput) (*model.Deal, error)
}

// Helpdesk is the contract for ticketing vendors.
type Helpdesk interface {
	Provider
	CreateTicket(ctx context.Context, in model.TicketInput) (*model.Ticket, error)
	UpdateTicket(ctx context.Context, id string, upd model.TicketUpdate) (*model.Ticket, error)
	SearchTickets(ctx context.Context, q model.TicketSearch) (*model.Page[model.TicketMatch], error)
	AddComment(ctx context.Context, ticketID, text string, visibility model.CommentVisibility) (*model.Comment, error)
}

// Calendar is the contract for scheduling vendors.
type Calendar interface {
	Provider
	CreateEvent(ctx context.Context, in model.EventInput) (*model.Event, error)
	UpdateEvent(ctx context.Context, id string, upd model.EventUpdate) (*model.Event, error)
	DeleteEvent(ctx context.Context, id string) error
	FindAvailability(ctx context.Context, q model.AvailabilityQuery) ([]model.TimeSlot, error)
}

// Email is the contract for transactional email vendors.
type Email interface {
	Provider
	Send(ctx context.Context, msg model.EmailMessage) (*model.SentEmail, error)
	Search(ctx context.Context, q model.EmailSearch) (*model.Page[model.EmailSummary], error)
}

// Knowledge is the contract for document stores.
type Knowledge interface {
	Provider
	Store(ctx context.Context, in model.DocumentInput) (*model.Document, error)
	Search(ctx context.Context, q model.KnowledgeQuery) ([]model.KnowledgeMatch, error)
	Get(ctx context.Context, id string) (*model.Document, error)
	Delete(ctx context.Context, id string) error
}
