package application

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/ericfisherdev/vendorbridge/internal/domain/model"
	"github.com/ericfisherdev/vendorbridge/internal/domain/port/driven"
	"github.com/ericfisherdev/vendorbridge/internal/resilience"
)

// Target selects the tenant and, optionally, the vendor for a call. An empty
// Vendor uses the tenant's configured default for the domain.
type Target struct {
	TenantID string
	Vendor   string
}

// IntegrationService is the vendor-blind entry point for callers. It obtains
// providers from the factory and records an action-log entry for every call,
// whatever the outcome.
type IntegrationService struct {
	factory  *ProviderFactory
	settings driven.SettingsResolver
	sink     driven.ActionLogSink
	clock    clockwork.Clock
	logger   *slog.Logger
}

// NewIntegrationService creates a new IntegrationService. settings and sink may be nil.
func NewIntegrationService(factory *ProviderFactory, settings driven.SettingsResolver, sink driven.ActionLogSink, logger *slog.Logger) *IntegrationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &IntegrationService{
		factory:  factory,
		settings: settings,
		sink:     sink,
		clock:    factory.clock,
		logger:   logger,
	}
}

// ErrNoDefaultVendor is the cause attached when a call names no vendor and the
// tenant has not configured one for the domain.
var ErrNoDefaultVendor = errors.New("no vendor given and tenant has no default for domain")

func (s *IntegrationService) resolveVendor(t Target, domain model.Domain) (string, error) {
	if t.Vendor != "" {
		return t.Vendor, nil
	}
	if s.settings != nil {
		settings, found, err := s.settings.Settings(t.TenantID, domain)
		if err != nil {
			return "", &model.ConfigurationError{
				Key:    model.CacheKey{TenantID: t.TenantID, Domain: domain},
				Reason: model.ErrInvalidConfig,
				Err:    err,
			}
		}
		if found && settings.Vendor != "" {
			return settings.Vendor, nil
		}
	}
	return "", &model.ConfigurationError{
		Key:    model.CacheKey{TenantID: t.TenantID, Domain: domain},
		Reason: model.ErrUnknownVendor,
		Err:    ErrNoDefaultVendor,
	}
}

// invoke resolves the provider, runs call and records the outcome.
func invoke[P driven.Provider, T any](
	ctx context.Context,
	s *IntegrationService,
	t Target,
	domain model.Domain,
	operation string,
	get func(context.Context, string, string) (P, error),
	call func(context.Context, P) (T, error),
) (T, error) {
	var result T
	start := s.clock.Now()
	attempts := func() int { return 0 }

	vendor, err := s.resolveVendor(t, domain)
	if err == nil {
		var p P
		if p, err = get(ctx, t.TenantID, vendor); err == nil {
			// Only calls made by the operation itself count, not the
			// validation call of a fresh instance.
			var callCtx context.Context
			callCtx, attempts = resilience.TrackAttempts(ctx)
			result, err = call(callCtx, p)
		}
	}

	rec := model.ActionRecord{
		ID:        uuid.NewString(),
		TenantID:  t.TenantID,
		Domain:    domain,
		Vendor:    vendor,
		Operation: operation,
		StartedAt: start,
		Duration:  s.clock.Since(start),
		Status:    model.ActionSuccess,
		Attempts:  attempts(),
	}
	if err != nil {
		rec.Status = model.ActionFailure
		rec.Message = err.Error()
		if model.IsConfigurationError(err) {
			rec.ErrorKind = model.ErrorKindConfiguration
		} else {
			ne := resilience.FromError(err)
			rec.ErrorKind = ne.Kind
			if rec.Attempts == 0 {
				rec.Attempts = ne.Attempts
			}
		}
	}
	s.record(ctx, rec)

	return result, err
}

func (s *IntegrationService) record(ctx context.Context, rec model.ActionRecord) {
	if s.sink == nil {
		return
	}
	// The call already happened; its outcome must be logged even if the
	// caller's context is gone.
	if err := s.sink.Record(context.WithoutCancel(ctx), rec); err != nil {
		s.logger.Warn("failed to record action",
			"tenant", rec.TenantID,
			"operation", rec.Operation,
			"error", err,
		)
	}
}

// CRM

func (s *IntegrationService) CreateContact(ctx context.Context, t Target, in model.ContactInput, opts model.ContactOptions) (*model.Contact, error) {
	return invoke(ctx, s, t, model.DomainCRM, "create_contact", s.factory.CRM,
		func(ctx context.Context, p driven.CRM) (*model.Contact, error) { return p.CreateContact(ctx, in, opts) })
}

func (s *IntegrationService) UpdateContact(ctx context.Context, t Target, id string, upd model.ContactUpdate) (*model.Contact, error) {
	return invoke(ctx, s, t, model.DomainCRM, "update_contact", s.factory.CRM,
		func(ctx context.Context, p driven.CRM) (*model.Contact, error) { return p.UpdateContact(ctx, id, upd) })
}

func (s *IntegrationService) SearchContacts(ctx context.Context, t Target, q model.ContactSearch) ([]model.ContactMatch, error) {
	return invoke(ctx, s, t, model.DomainCRM, "search_contacts", s.factory.CRM,
		func(ctx context.Context, p driven.CRM) ([]model.ContactMatch, error) { return p.SearchContacts(ctx, q) })
}

func (s *IntegrationService) AddNote(ctx context.Context, t Target, targetID string, note model.NoteInput) (*model.Note, error) {
	return invoke(ctx, s, t, model.DomainCRM, "add_note", s.factory.CRM,
		func(ctx context.Context, p driven.CRM) (*model.Note, error) { return p.AddNote(ctx, targetID, note) })
}

func (s *IntegrationService) CreateDeal(ctx context.Context, t Target, in model.DealInput) (*model.Deal, error) {
	return invoke(ctx, s, t, model.DomainCRM, "create_deal", s.factory.CRM,
		func(ctx context.Context, p driven.CRM) (*model.Deal, error) { return p.CreateDeal(ctx, in) })
}

// Helpdesk

func (s *IntegrationService) CreateTicket(ctx context.Context, t Target, in model.TicketInput) (*model.Ticket, error) {
	return invoke(ctx, s, t, model.DomainHelpdesk, "create_ticket", s.factory.Helpdesk,
		func(ctx context.Context, p driven.Helpdesk) (*model.Ticket, error) { return p.CreateTicket(ctx, in) })
}

func (s *IntegrationService) UpdateTicket(ctx context.Context, t Target, id string, upd model.TicketUpdate) (*model.Ticket, error) {
	return invoke(ctx, s, t, model.DomainHelpdesk, "update_ticket", s.factory.Helpdesk,
		func(ctx context.Context, p driven.Helpdesk) (*model.Ticket, error) { return p.UpdateTicket(ctx, id, upd) })
}

func (s *IntegrationService) SearchTickets(ctx context.Context, t Target, q model.TicketSearch) (*model.Page[model.TicketMatch], error) {
	return invoke(ctx, s, t, model.DomainHelpdesk, "search_tickets", s.factory.Helpdesk,
		func(ctx context.Context, p driven.Helpdesk) (*model.Page[model.TicketMatch], error) {
			return p.SearchTickets(ctx, q)
		})
}

func (s *IntegrationService) AddComment(ctx context.Context, t Target, ticketID, text string, visibility model.CommentVisibility) (*model.Comment, error) {
	return invoke(ctx, s, t, model.DomainHelpdesk, "add_comment", s.factory.Helpdesk,
		func(ctx context.Context, p driven.Helpdesk) (*model.Comment, error) {
			return p.AddComment(ctx, ticketID, text, visibility)
		})
}

// Calendar

func (s *IntegrationService) CreateEvent(ctx context.Context, t Target, in model.EventInput) (*model.Event, error) {
	return invoke(ctx, s, t, model.DomainCalendar, "create_event", s.factory.Calendar,
		func(ctx context.Context, p driven.Calendar) (*model.Event, error) { return p.CreateEvent(ctx, in) })
}

func (s *IntegrationService) UpdateEvent(ctx context.Context, t Target, id string, upd model.EventUpdate) (*model.Event, error) {
	return invoke(ctx, s, t, model.DomainCalendar, "update_event", s.factory.Calendar,
		func(ctx context.Context, p driven.Calendar) (*model.Event, error) { return p.UpdateEvent(ctx, id, upd) })
}

func (s *IntegrationService) DeleteEvent(ctx context.Context, t Target, id string) error {
	_, err := invoke(ctx, s, t, model.DomainCalendar, "delete_event", s.factory.Calendar,
		func(ctx context.Context, p driven.Calendar) (struct{}, error) { return struct{}{}, p.DeleteEvent(ctx, id) })
	return err
}

func (s *IntegrationService) FindAvailability(ctx context.Context, t Target, q model.AvailabilityQuery) ([]model.TimeSlot, error) {
	return invoke(ctx, s, t, model.DomainCalendar, "find_availability", s.factory.Calendar,
		func(ctx context.Context, p driven.Calendar) ([]model.TimeSlot, error) { return p.FindAvailability(ctx, q) })
}

// Email

func (s *IntegrationService) SendEmail(ctx context.Context, t Target, msg model.EmailMessage) (*model.SentEmail, error) {
	return invoke(ctx, s, t, model.DomainEmail, "send_email", s.factory.Email,
		func(ctx context.Context, p driven.Email) (*model.SentEmail, error) { return p.Send(ctx, msg) })
}

func (s *IntegrationService) SearchEmail(ctx context.Context, t Target, q model.EmailSearch) (*model.Page[model.EmailSummary], error) {
	return invoke(ctx, s, t, model.DomainEmail, "search_email", s.factory.Email,
		func(ctx context.Context, p driven.Email) (*model.Page[model.EmailSummary], error) { return p.Search(ctx, q) })
}

// Knowledge

func (s *IntegrationService) StoreDocument(ctx context.Context, t Target, in model.DocumentInput) (*model.Document, error) {
	return invoke(ctx, s, t, model.DomainKnowledge, "store_document", s.factory.Knowledge,
		func(ctx context.Context, p driven.Knowledge) (*model.Document, error) { return p.Store(ctx, in) })
}

func (s *IntegrationService) SearchKnowledge(ctx context.Context, t Target, q model.KnowledgeQuery) ([]model.KnowledgeMatch, error) {
	return invoke(ctx, s, t, model.DomainKnowledge, "search_knowledge", s.factory.Knowledge,
		func(ctx context.Context, p driven.Knowledge) ([]model.KnowledgeMatch, error) { return p.Search(ctx, q) })
}

func (s *IntegrationService) GetDocument(ctx context.Context, t Target, id string) (*model.Document, error) {
	return invoke(ctx, s, t, model.DomainKnowledge, "get_document", s.factory.Knowledge,
		func(ctx context.Context, p driven.Knowledge) (*model.Document, error) { return p.Get(ctx, id) })
}

func (s *IntegrationService) DeleteDocument(ctx context.Context, t Target, id string) error {
	_, err := invoke(ctx, s, t, model.DomainKnowledge, "delete_document", s.factory.Knowledge,
		func(ctx context.Context, p driven.Knowledge) (struct{}, error) { return struct{}{}, p.Delete(ctx, id) })
	return err
}
