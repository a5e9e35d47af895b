package calendar

import (
	"time"

	"github.com/google/uuid"
)

// StagingEntry is an event lifted off the grid. OriginalStart is where it
// sat before the lift and is shown until it is dropped again.
type StagingEntry struct {
	Event         Event     `json:"event"`
	OriginalStart time.Time `json:"originalStart"`
}

// OriginallyLabel renders "Originally: Tue 11 Mar, 2:00 PM"
func (e StagingEntry) OriginallyLabel(loc *time.Location) string {
	return "Originally: " + e.OriginalStart.In(loc).Format("Mon 2 Jan, 3:04 PM")
}

// Staging is the ordered holding list for lifted events
type Staging struct {
	entries []StagingEntry
}

// Add appends ev. The staged copy no longer counts as a customer original.
func (s *Staging) Add(ev Event) StagingEntry {
	ev.IsOriginal = false
	entry := StagingEntry{Event: ev, OriginalStart: ev.Start}
	s.entries = append(s.entries, entry)
	return entry
}

func (s *Staging) Find(ref EventRef) (StagingEntry, bool) {
	for _, e := range s.entries {
		if e.Event.Ref == ref {
			return e, true
		}
	}
	return StagingEntry{}, false
}

// Remove drops the entry for ref. Pending changes are not touched.
func (s *Staging) Remove(ref EventRef) (StagingEntry, bool) {
	for i, e := range s.entries {
		if e.Event.Ref == ref {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return e, true
		}
	}
	return StagingEntry{}, false
}

// HasAppointment reports whether any entry belongs to the appointment
func (s *Staging) HasAppointment(appointmentID uuid.UUID) bool {
	for _, e := range s.entries {
		if e.Event.AppointmentID() == appointmentID {
			return true
		}
	}
	return false
}

// Retain keeps only the entries keep approves of
func (s *Staging) Retain(keep func(StagingEntry) bool) {
	out := s.entries[:0]
	for _, e := range s.entries {
		if keep(e) {
			out = append(out, e)
		}
	}
	s.entries = out
}

func (s *Staging) Len() int { return len(s.entries) }

// Entries returns a copy in insertion order
func (s *Staging) Entries() []StagingEntry {
	return append([]StagingEntry(nil), s.entries...)
}

func (s *Staging) set(entries []StagingEntry) {
	s.entries = append([]StagingEntry(nil), entries...)
}
