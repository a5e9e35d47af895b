package calendar

import (
	"time"

	"github.com/google/uuid"
)

// State is the working copy an editing session mutates: the events on the
// grid, the staging list and the pending changes. It is never durable; the
// store stays the source of truth.
type State struct {
	Events  []Event
	Staging *Staging
	Changes *ChangeSet
}

func NewState() *State {
	return &State{Staging: &Staging{}, Changes: NewChangeSet()}
}

// FindEvent returns the grid event for ref
func (s *State) FindEvent(ref EventRef) (Event, bool) {
	for _, ev := range s.Events {
		if ev.Ref == ref {
			return ev, true
		}
	}
	return Event{}, false
}

// EventsFor returns every grid event of one appointment
func (s *State) EventsFor(appointmentID uuid.UUID) []Event {
	var out []Event
	for _, ev := range s.Events {
		if ev.AppointmentID() == appointmentID {
			out = append(out, ev)
		}
	}
	return out
}

func (s *State) removeEvent(ref EventRef) bool {
	for i, ev := range s.Events {
		if ev.Ref == ref {
			s.Events = append(s.Events[:i], s.Events[i+1:]...)
			return true
		}
	}
	return false
}

func (s *State) removeAppointment(appointmentID uuid.UUID) int {
	kept := s.Events[:0]
	removed := 0
	for _, ev := range s.Events {
		if ev.AppointmentID() == appointmentID {
			removed++
			continue
		}
		kept = append(kept, ev)
	}
	s.Events = kept
	return removed
}

// ConsolidateToSingleTime replaces every grid event of ev's appointment with
// a single event at the given time. Unpicked candidates disappear. The
// returned event keeps ev's identity and default duration.
func (s *State) ConsolidateToSingleTime(ev Event, at time.Time) Event {
	s.removeAppointment(ev.AppointmentID())
	moved := ev
	moved.Start = at
	moved.DurationSlots = DefaultDurationSlots
	moved.IsOriginal = false
	s.Events = append(s.Events, moved)
	return moved
}

// setStatus updates the status of every grid event of an appointment
func (s *State) setStatus(appointmentID uuid.UUID, status string) {
	for i := range s.Events {
		if s.Events[i].AppointmentID() == appointmentID {
			s.Events[i].Status = status
		}
	}
}

// Rebuild replaces the grid with a fresh projection and replays what the
// session still holds on top. Each staged entry hides only its own event,
// so sibling candidates stay on the grid, and pending changes are reapplied
// to whatever events of the appointment remain.
func (s *State) Rebuild(projected []Event, loc *time.Location) {
	s.Events = append([]Event(nil), projected...)

	for _, e := range s.Staging.Entries() {
		if s.removeEvent(e.Event.Ref) {
			continue
		}
		// scheduled since the lift: the agent-scheduled event stands in for
		// the staged candidate
		s.removeEvent(ScheduledRef(e.Event.AppointmentID()))
	}

	for _, ch := range s.Changes.List() {
		current := s.EventsFor(ch.AppointmentID)
		if len(current) == 0 {
			continue
		}
		placed := false
		for _, ev := range current {
			if sameSlot(ev.Start, ch.NewDateTime, loc) {
				placed = true
				break
			}
		}
		if !placed {
			s.ConsolidateToSingleTime(current[0], ch.NewDateTime.In(loc))
		}
		if ch.Status != "" {
			s.setStatus(ch.AppointmentID, ch.Status)
		}
	}
}
