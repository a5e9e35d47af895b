// Package calendar is the agent scheduling calendar: it projects stored
// appointments onto a week grid, lets an agent drag them to new slots or
// park them in a staging area, and batches the resulting edits into one
// save against the appointment store.
package calendar

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lakestack/hometrace/internal/models"
)

// EventKind tells candidate-derived events apart from agent-scheduled ones
type EventKind string

const (
	KindCandidate EventKind = "candidate"
	KindScheduled EventKind = "scheduled"
)

const scheduledSuffix = "agent-scheduled"

var ErrBadEventID = errors.New("malformed event id")

// EventRef identifies one rendered event. A candidate event is keyed by its
// position in the customer's list so siblings never collide.
type EventRef struct {
	AppointmentID uuid.UUID
	Kind          EventKind
	Index         int
}

func CandidateRef(appointmentID uuid.UUID, index int) EventRef {
	return EventRef{AppointmentID: appointmentID, Kind: KindCandidate, Index: index}
}

func ScheduledRef(appointmentID uuid.UUID) EventRef {
	return EventRef{AppointmentID: appointmentID, Kind: KindScheduled}
}

// DisplayID is the string form used by HTTP clients
func (r EventRef) DisplayID() string {
	if r.Kind == KindScheduled {
		return r.AppointmentID.String() + "-" + scheduledSuffix
	}
	return r.AppointmentID.String() + "-" + strconv.Itoa(r.Index)
}

func (r EventRef) String() string { return r.DisplayID() }

// MarshalText encodes the ref as its display id
func (r EventRef) MarshalText() ([]byte, error) {
	return []byte(r.DisplayID()), nil
}

func (r *EventRef) UnmarshalText(text []byte) error {
	ref, err := ParseEventRef(string(text))
	if err != nil {
		return err
	}
	*r = ref
	return nil
}

// ParseEventRef is the inverse of DisplayID
func ParseEventRef(s string) (EventRef, error) {
	const idLen = 36
	if len(s) < idLen+2 || s[idLen] != '-' {
		return EventRef{}, fmt.Errorf("%w: %q", ErrBadEventID, s)
	}
	id, err := uuid.Parse(s[:idLen])
	if err != nil {
		return EventRef{}, fmt.Errorf("%w: %q", ErrBadEventID, s)
	}
	suffix := s[idLen+1:]
	if suffix == scheduledSuffix {
		return ScheduledRef(id), nil
	}
	idx, err := strconv.Atoi(suffix)
	if err != nil || idx < 0 || strings.HasPrefix(suffix, "+") {
		return EventRef{}, fmt.Errorf("%w: %q", ErrBadEventID, s)
	}
	return CandidateRef(id, idx), nil
}

// Event is one appointment time placed on the calendar. Events live only in
// the editing session and are rebuilt from the store on every load.
type Event struct {
	Ref             EventRef  `json:"ref"`
	Start           time.Time `json:"start"`
	DurationSlots   int       `json:"durationSlots"`
	Status          string    `json:"status"`
	CustomerName    string    `json:"customerName"`
	PropertyAddress string    `json:"propertyAddress"`
	IsOriginal      bool      `json:"isOriginal"`
}

func (e Event) AppointmentID() uuid.UUID { return e.Ref.AppointmentID }

// IsAgentScheduled reports whether the event came from the agent's time
func (e Event) IsAgentScheduled() bool { return e.Ref.Kind == KindScheduled }

func (e Event) End() time.Time {
	slots := e.DurationSlots
	if slots <= 0 {
		slots = DefaultDurationSlots
	}
	return e.Start.Add(time.Duration(slots*SlotMinutes) * time.Minute)
}

// MarshalJSON adds the derived end time and kind so clients never have to
// pick apart the ref
func (e Event) MarshalJSON() ([]byte, error) {
	type plain Event
	return json.Marshal(struct {
		plain
		End              time.Time `json:"end"`
		IsAgentScheduled bool      `json:"isAgentScheduled"`
	}{plain(e), e.End(), e.IsAgentScheduled()})
}

// Project expands appointments into calendar events. The agent-scheduled
// time wins over customer candidates; anything starting before today (in
// loc) is left out.
func Project(appointments []models.Appointment, now time.Time, loc *time.Location) []Event {
	today := startOfDay(now.In(loc))
	var events []Event

	for i := range appointments {
		a := &appointments[i]
		base := Event{
			Status:          a.Status,
			CustomerName:    a.FullName(),
			PropertyAddress: a.PropertyAddress(),
			DurationSlots:   DefaultDurationSlots,
		}
		if base.Status == "" {
			base.Status = models.StatusPending
		}

		if a.AgentScheduledAt != nil {
			start := a.AgentScheduledAt.In(loc)
			if start.Before(today) {
				continue
			}
			ev := base
			ev.Ref = ScheduledRef(a.ID)
			ev.Start = start
			events = append(events, ev)
			continue
		}

		for idx, pd := range a.PreferredDates {
			if idx >= models.MaxPreferredDates {
				break
			}
			start, err := pd.In(loc)
			if err != nil || start.Before(today) {
				continue
			}
			ev := base
			ev.Ref = CandidateRef(a.ID, idx)
			ev.Start = start
			ev.IsOriginal = true
			events = append(events, ev)
		}
	}
	return events
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
