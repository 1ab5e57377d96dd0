package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/samber/lo"

	"github.com/ericfisherdev/vendorbridge/internal/application"
	"github.com/ericfisherdev/vendorbridge/internal/domain/model"
	"github.com/ericfisherdev/vendorbridge/internal/resilience"
)

// operation decodes a JSON input and runs one contract call.
type operation struct {
	domain model.Domain
	run    func(ctx context.Context, svc *application.IntegrationService, t application.Target, input []byte) (any, error)
}

func op[In, Out any](domain model.Domain, call func(context.Context, *application.IntegrationService, application.Target, In) (Out, error)) operation {
	return operation{
		domain: domain,
		run: func(ctx context.Context, svc *application.IntegrationService, t application.Target, input []byte) (any, error) {
			var in In
			if err := decodeInput(input, &in); err != nil {
				return nil, err
			}
			return call(ctx, svc, t, in)
		},
	}
}

func decodeInput(input []byte, v any) error {
	if len(bytes.TrimSpace(input)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(input))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return &model.NormalizedError{Kind: model.KindValidation, Message: "decode input: " + err.Error(), Cause: err}
	}
	return nil
}

type createContactInput struct {
	Contact model.ContactInput   `json:"contact"`
	Options model.ContactOptions `json:"options"`
}

type updateContactInput struct {
	ID     string              `json:"id"`
	Update model.ContactUpdate `json:"update"`
}

type addNoteInput struct {
	TargetID string          `json:"target_id"`
	Note     model.NoteInput `json:"note"`
}

type updateTicketInput struct {
	ID     string             `json:"id"`
	Update model.TicketUpdate `json:"update"`
}

type addCommentInput struct {
	TicketID   string                  `json:"ticket_id"`
	Body       string                  `json:"body"`
	Visibility model.CommentVisibility `json:"visibility"`
}

type updateEventInput struct {
	ID     string            `json:"id"`
	Update model.EventUpdate `json:"update"`
}

type idInput struct {
	ID string `json:"id"`
}

type deleted struct {
	Deleted string `json:"deleted"`
}

var operations = map[string]operation{
	"create_contact": op(model.DomainCRM, func(ctx context.Context, s *application.IntegrationService, t application.Target, in createContactInput) (*model.Contact, error) {
		return s.CreateContact(ctx, t, in.Contact, in.Options)
	}),
	"update_contact": op(model.DomainCRM, func(ctx context.Context, s *application.IntegrationService, t application.Target, in updateContactInput) (*model.Contact, error) {
		return s.UpdateContact(ctx, t, in.ID, in.Update)
	}),
	"search_contacts": op(model.DomainCRM, func(ctx context.Context, s *application.IntegrationService, t application.Target, in model.ContactSearch) ([]model.ContactMatch, error) {
		return s.SearchContacts(ctx, t, in)
	}),
	"add_note": op(model.DomainCRM, func(ctx context.Context, s *application.IntegrationService, t application.Target, in addNoteInput) (*model.Note, error) {
		return s.AddNote(ctx, t, in.TargetID, in.Note)
	}),
	"create_deal": op(model.DomainCRM, func(ctx context.Context, s *application.IntegrationService, t application.Target, in model.DealInput) (*model.Deal, error) {
		return s.CreateDeal(ctx, t, in)
	}),

	"create_ticket": op(model.DomainHelpdesk, func(ctx context.Context, s *application.IntegrationService, t application.Target, in model.TicketInput) (*model.Ticket, error) {
		return s.CreateTicket(ctx, t, in)
	}),
	"update_ticket": op(model.DomainHelpdesk, func(ctx context.Context, s *application.IntegrationService, t application.Target, in updateTicketInput) (*model.Ticket, error) {
		return s.UpdateTicket(ctx, t, in.ID, in.Update)
	}),
	"search_tickets": op(model.DomainHelpdesk, func(ctx context.Context, s *application.IntegrationService, t application.Target, in model.TicketSearch) (*model.Page[model.TicketMatch], error) {
		return s.SearchTickets(ctx, t, in)
	}),
	"add_comment": op(model.DomainHelpdesk, func(ctx context.Context, s *application.IntegrationService, t application.Target, in addCommentInput) (*model.Comment, error) {
		return s.AddComment(ctx, t, in.TicketID, in.Body, lo.CoalesceOrEmpty(in.Visibility, model.VisibilityPublic))
	}),

	"create_event": op(model.DomainCalendar, func(ctx context.Context, s *application.IntegrationService, t application.Target, in model.EventInput) (*model.Event, error) {
		return s.CreateEvent(ctx, t, in)
	}),
	"update_event": op(model.DomainCalendar, func(ctx context.Context, s *application.IntegrationService, t application.Target, in updateEventInput) (*model.Event, error) {
		return s.UpdateEvent(ctx, t, in.ID, in.Update)
	}),
	"delete_event": op(model.DomainCalendar, func(ctx context.Context, s *application.IntegrationService, t application.Target, in idInput) (deleted, error) {
		return deleted{in.ID}, s.DeleteEvent(ctx, t, in.ID)
	}),
	"find_availability": op(model.DomainCalendar, func(ctx context.Context, s *application.IntegrationService, t application.Target, in model.AvailabilityQuery) ([]model.TimeSlot, error) {
		return s.FindAvailability(ctx, t, in)
	}),

	"send_email": op(model.DomainEmail, func(ctx context.Context, s *application.IntegrationService, t application.Target, in model.EmailMessage) (*model.SentEmail, error) {
		return s.SendEmail(ctx, t, in)
	}),
	"search_email": op(model.DomainEmail, func(ctx context.Context, s *application.IntegrationService, t application.Target, in model.EmailSearch) (*model.Page[model.EmailSummary], error) {
		return s.SearchEmail(ctx, t, in)
	}),

	"store_document": op(model.DomainKnowledge, func(ctx context.Context, s *application.IntegrationService, t application.Target, in model.DocumentInput) (*model.Document, error) {
		return s.StoreDocument(ctx, t, in)
	}),
	"search_knowledge": op(model.DomainKnowledge, func(ctx context.Context, s *application.IntegrationService, t application.Target, in model.KnowledgeQuery) ([]model.KnowledgeMatch, error) {
		return s.SearchKnowledge(ctx, t, in)
	}),
	"get_document": op(model.DomainKnowledge, func(ctx context.Context, s *application.IntegrationService, t application.Target, in idInput) (*model.Document, error) {
		return s.GetDocument(ctx, t, in.ID)
	}),
	"delete_document": op(model.DomainKnowledge, func(ctx context.Context, s *application.IntegrationService, t application.Target, in idInput) (deleted, error) {
		return deleted{in.ID}, s.DeleteDocument(ctx, t, in.ID)
	}),
}

// operationNames returns the supported operation names in sorted order.
func operationNames() []string {
	names := lo.Keys(operations)
	slices.Sort(names)
	return names
}

func runOperation(ctx context.Context, svc *application.IntegrationService, name string, t application.Target, input []byte) (any, error) {
	o, ok := operations[name]
	if !ok {
		return nil, fmt.Errorf("unknown operation %q", name)
	}
	return o.run(ctx, svc, t, input)
}

// callError is the JSON shape of a failed call.
type callError struct {
	Kind     string `json:"kind"`
	Message  string `json:"message"`
	Attempts int    `json:"attempts,omitempty"`
}

func describeError(err error) *callError {
	if err == nil {
		return nil
	}
	if model.IsConfigurationError(err) {
		return &callError{Kind: string(model.ErrorKindConfiguration), Message: err.Error()}
	}
	ne := resilience.FromError(err)
	return &callError{Kind: string(ne.Kind), Message: ne.Message, Attempts: ne.Attempts}
}
