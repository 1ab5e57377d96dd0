package googlecalendar

import (
	"context"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/ericfisherdev/vendorbridge/internal/adapter/driven/rest"
	"github.com/ericfisherdev/vendorbridge/internal/domain/model"
	"github.com/ericfisherdev/vendorbridge/internal/resilience"
)

type eventTime struct {
	DateTime time.Time `json:"dateTime"`
	TimeZone string    `json:"timeZone,omitempty"`
}

type attendee struct {
	Email string `json:"email"`
}

type event struct {
	ID          string     `json:"id,omitempty"`
	Summary     string     `json:"summary,omitempty"`
	Description string     `json:"description,omitempty"`
	Location    string     `json:"location,omitempty"`
	Start       *eventTime `json:"start,omitempty"`
	End         *eventTime `json:"end,omitempty"`
	Attendees   []attendee `json:"attendees,omitempty"`
	HTMLLink    string     `json:"htmlLink,omitempty"`
}

func (c *Client) at(t time.Time) *eventTime {
	return &eventTime{DateTime: t, TimeZone: c.timeZone}
}

func toAttendees(emails []string) []attendee {
	return lo.Map(emails, func(e string, _ int) attendee { return attendee{Email: e} })
}

func toEvent(e event) *model.Event {
	out := &model.Event{
		ID:          e.ID,
		Title:       e.Summary,
		Description: e.Description,
		Location:    e.Location,
		Attendees:   lo.Map(e.Attendees, func(a attendee, _ int) string { return a.Email }),
		URL:         e.HTMLLink,
	}
	if e.Start != nil {
		out.Start = e.Start.DateTime
	}
	if e.End != nil {
		out.End = e.End.DateTime
	}
	return out
}

// CreateEvent inserts an event. With an idempotency key the event ID is
// derived from it, and a repeated create returns the event already stored.
func (c *Client) CreateEvent(ctx context.Context, in model.EventInput) (*model.Event, error) {
	if err := model.Validate(in); err != nil {
		return nil, err
	}
	body := event{
		ID:          eventID(in.IdempotencyKey),
		Summary:     in.Title,
		Description: in.Description,
		Location:    in.Location,
		Start:       c.at(in.Start),
		End:         c.at(in.End),
		Attendees:   toAttendees(in.Attendees),
	}

	created, err := resilience.Do(ctx, c.ex, "create_event", func(ctx context.Context) (*model.Event, error) {
		var out event
		if _, err := c.api.Do(ctx, rest.Call{Method: http.MethodPost, Path: c.calendarPath() + "/events", Body: body}, &out); err != nil {
			return nil, err
		}
		return toEvent(out), nil
	})
	if err == nil || body.ID == "" || !model.IsKind(err, model.KindConflict) {
		return created, err
	}

	return resilience.Do(ctx, c.ex, "create_event", func(ctx context.Context) (*model.Event, error) {
		var out event
		if _, err := c.api.Do(ctx, rest.Call{Method: http.MethodGet, Path: c.eventPath(body.ID)}, &out); err != nil {
			return nil, err
		}
		return toEvent(out), nil
	})
}

func (c *Client) eventPath(id string) string {
	return c.calendarPath() + "/events/" + rest.PathEscape(id)
}

// UpdateEvent patches the given fields of an event.
func (c *Client) UpdateEvent(ctx context.Context, id string, upd model.EventUpdate) (*model.Event, error) {
	if err := rest.RequireID("event id", id); err != nil {
		return nil, err
	}
	if err := model.Validate(upd); err != nil {
		return nil, err
	}
	if upd.Start != nil && upd.End != nil && !upd.End.After(*upd.Start) {
		return nil, &model.NormalizedError{Kind: model.KindValidation, Message: "end: must be after start"}
	}

	body := event{
		Summary:     lo.FromPtr(upd.Title),
		Description: lo.FromPtr(upd.Description),
		Location:    lo.FromPtr(upd.Location),
		Attendees:   toAttendees(upd.Attendees),
	}
	if upd.Start != nil {
		body.Start = c.at(*upd.Start)
	}
	if upd.End != nil {
		body.End = c.at(*upd.End)
	}

	return resilience.Do(ctx, c.ex, "update_event", func(ctx context.Context) (*model.Event, error) {
		var out event
		if _, err := c.api.Do(ctx, rest.Call{Method: http.MethodPatch, Path: c.eventPath(id), Body: body}, &out); err != nil {
			return nil, err
		}
		return toEvent(out), nil
	})
}

// DeleteEvent removes an event. Deleting an already deleted event reports
// NotFound.
func (c *Client) DeleteEvent(ctx context.Context, id string) error {
	if err := rest.RequireID("event id", id); err != nil {
		return err
	}
	return resilience.Run(ctx, c.ex, "delete_event", func(ctx context.Context) error {
		_, err := c.api.Do(ctx, rest.Call{Method: http.MethodDelete, Path: c.eventPath(id)}, nil)
		return err
	})
}

type freeBusyRequest struct {
	TimeMin  time.Time           `json:"timeMin"`
	TimeMax  time.Time           `json:"timeMax"`
	TimeZone string              `json:"timeZone,omitempty"`
	Items    []map[string]string `json:"items"`
}

type freeBusyResponse struct {
	Calendars map[string]struct {
		Busy   []model.TimeSlot `json:"busy"`
		Errors []struct {
			Reason string `json:"reason"`
		} `json:"errors"`
	} `json:"calendars"`
}

// FindAvailability queries free/busy for every attendee and returns the
// slots of the requested length in which all of them are free.
func (c *Client) FindAvailability(ctx context.Context, q model.AvailabilityQuery) ([]model.TimeSlot, error) {
	if err := model.Validate(q); err != nil {
		return nil, err
	}
	req := freeBusyRequest{
		TimeMin:  q.Start,
		TimeMax:  q.End,
		TimeZone: c.timeZone,
		Items:    lo.Map(q.Attendees, func(e string, _ int) map[string]string { return map[string]string{"id": e} }),
	}

	return resilience.Do(ctx, c.ex, "find_availability", func(ctx context.Context) ([]model.TimeSlot, error) {
		var out freeBusyResponse
		if _, err := c.api.Do(ctx, rest.Call{Method: http.MethodPost, Path: "/freeBusy", Body: req}, &out); err != nil {
			return nil, err
		}

		var busy []model.TimeSlot
		var unknown []string
		for _, email := range q.Attendees {
			cal, ok := out.Calendars[email]
			if !ok || len(cal.Errors) > 0 {
				unknown = append(unknown, email)
				continue
			}
			busy = append(busy, cal.Busy...)
		}
		if len(unknown) > 0 {
			slices.Sort(unknown)
			return nil, &model.NormalizedError{
				Kind:    model.KindNotFound,
				Message: "free/busy unavailable for " + strings.Join(unknown, ", "),
			}
		}
		return model.FreeSlots(busy, q.Start, q.End, q.SlotDuration()), nil
	})
}
