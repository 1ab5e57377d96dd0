package model

import (
	"slices"
	"time"
)

// Event is a calendar entry.
type Event struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Attendees   []string  `json:"attendees,omitempty"`
	URL         string    `json:"url,omitempty"`
}

// EventInput is the payload for CreateEvent.
type EventInput struct {
	Title          string    `json:"title" validate:"required,max=1000"`
	Description    string    `json:"description,omitempty"`
	Location       string    `json:"location,omitempty"`
	Start          time.Time `json:"start" validate:"required"`
	End            time.Time `json:"end" validate:"required,gtfield=Start"`
	Attendees      []string  `json:"attendees,omitempty" validate:"dive,email"`
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
}

// EventUpdate is a partial update; nil fields are left unchanged.
type EventUpdate struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Location    *string    `json:"location,omitempty"`
	Start       *time.Time `json:"start,omitempty"`
	End         *time.Time `json:"end,omitempty"`
	Attendees   []string   `json:"attendees,omitempty" validate:"dive,email"`
}

// AvailabilityQuery asks for free slots shared by all attendees.
type AvailabilityQuery struct {
	Start       time.Time `json:"start" validate:"required"`
	End         time.Time `json:"end" validate:"required,gtfield=Start"`
	Attendees   []string  `json:"attendees" validate:"required,min=1,dive,email"`
	SlotMinutes int       `json:"slot_minutes" validate:"min=0,max=1440"`
}

// SlotDuration returns the requested slot length, defaulting to 30 minutes.
func (q AvailabilityQuery) SlotDuration() time.Duration {
	if q.SlotMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(q.SlotMinutes) * time.Minute
}

// TimeSlot is a half-open interval [Start, End).
type TimeSlot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// FreeSlots returns consecutive slot-length intervals inside [from, to) that do
// not overlap any busy interval. Busy intervals may be unsorted and overlapping.
func FreeSlots(busy []TimeSlot, from, to time.Time, slot time.Duration) []TimeSlot {
	if slot <= 0 || !to.After(from) {
		return nil
	}

	sorted := slices.Clone(busy)
	slices.SortFunc(sorted, func(a, b TimeSlot) int { return a.Start.Compare(b.Start) })

	var free []TimeSlot
	cursor := from
	emit := func(gapEnd time.Time) {
		for s := cursor; !s.Add(slot).After(gapEnd); s = s.Add(slot) {
			free = append(free, TimeSlot{Start: s, End: s.Add(slot)})
		}
	}

	for _, b := range sorted {
		if !b.End.After(cursor) {
			continue
		}
		if b.Start.After(cursor) {
			end := b.Start
			if end.After(to) {
				end = to
			}
			emit(end)
		}
		if b.End.After(cursor) {
			cursor = b.End
		}
		if !cursor.Before(to) {
			return free
		}
	}
	emit(to)
	return free
}
