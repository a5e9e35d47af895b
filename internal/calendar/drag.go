package calendar

import (
	"errors"
	"fmt"
	"time"

	"github.com/lakestack/hometrace/internal/models"
)

var (
	ErrNoActiveDrag  = errors.New("no drag in progress")
	ErrEventNotFound = errors.New("event not found")
	ErrInvalidStatus = errors.New("invalid status")
)

// DropResult says what a drop did
type DropResult int

const (
	// DropNoop means the event was released on its own cell
	DropNoop DropResult = iota
	// DropMoved means the event moved across the grid
	DropMoved
	// DropUnstaged means the event came back from staging
	DropUnstaged
)

func (r DropResult) String() string {
	switch r {
	case DropMoved:
		return "moved"
	case DropUnstaged:
		return "unstaged"
	}
	return "noop"
}

type activeDrag struct {
	event       Event
	fromStaging bool
}

// DragEngine runs one drag gesture at a time against a State
type DragEngine struct {
	state  *State
	loc    *time.Location
	active *activeDrag
}

func NewDragEngine(state *State, loc *time.Location) *DragEngine {
	return &DragEngine{state: state, loc: loc}
}

// Start picks up the event from the grid or the staging list. A drag that
// is already running is abandoned.
func (d *DragEngine) Start(ref EventRef) error {
	if ev, ok := d.state.FindEvent(ref); ok {
		d.active = &activeDrag{event: ev}
		return nil
	}
	if entry, ok := d.state.Staging.Find(ref); ok {
		d.active = &activeDrag{event: entry.Event, fromStaging: true}
		return nil
	}
	return fmt.Errorf("%w: %s", ErrEventNotFound, ref)
}

// Active returns the dragged event, if any
func (d *DragEngine) Active() (Event, bool) {
	if d.active == nil {
		return Event{}, false
	}
	return d.active.event, true
}

func (d *DragEngine) Dragging() bool { return d.active != nil }

// Cancel abandons the drag without touching the state
func (d *DragEngine) Cancel() { d.active = nil }

// Drop releases the dragged event at a grid time and ends the drag.
// Releasing it on its own cell changes nothing.
func (d *DragEngine) Drop(at time.Time) (DropResult, error) {
	if d.active == nil {
		return DropNoop, ErrNoActiveDrag
	}
	at = at.In(d.loc)
	if _, ok := slotOf(at); !ok {
		return DropNoop, fmt.Errorf("%w: %s", ErrInvalidSlot, at.Format(time.RFC3339))
	}

	drag := *d.active
	d.active = nil

	if sameSlot(drag.event.Start, at, d.loc) {
		return DropNoop, nil
	}

	result := DropMoved
	if drag.fromStaging {
		d.state.Staging.Remove(drag.event.Ref)
		result = DropUnstaged
	}
	d.state.ConsolidateToSingleTime(drag.event, at)
	d.state.Changes.RecordMove(drag.event.AppointmentID(), at)
	return result, nil
}

// DropToStaging lifts the dragged event off the grid. No pending change is
// recorded for the lift itself.
func (d *DragEngine) DropToStaging() error {
	if d.active == nil {
		return ErrNoActiveDrag
	}
	drag := *d.active
	d.active = nil

	if drag.fromStaging {
		return nil
	}
	d.state.removeEvent(drag.event.Ref)
	d.state.Staging.Add(drag.event)
	return nil
}

// ChangeStatus records a status edit for a clicked grid event without
// moving it
func (d *DragEngine) ChangeStatus(ref EventRef, status string) error {
	if !models.ValidStatus(status) {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	ev, ok := d.state.FindEvent(ref)
	if !ok {
		return fmt.Errorf("%w: %s", ErrEventNotFound, ref)
	}
	d.state.setStatus(ev.AppointmentID(), status)
	d.state.Changes.RecordStatus(ev.AppointmentID(), ev.Start, status)
	return nil
}
