package calendar

import (
	"errors"
	"testing"
	"time"

	"github.com/lakestack/hometrace/internal/models"
)

func newEngine(appts ...models.Appointment) (*State, *DragEngine) {
	st := NewState()
	st.Events = Project(appts, testNow, time.UTC)
	return st, NewDragEngine(st, time.UTC)
}

func TestDropConsolidatesCandidates(t *testing.T) {
	a := appointment(candidates("2025-03-10", "10:00", "2025-03-11", "11:00", "2025-03-12", "12:00"), nil)
	other := appointment(candidates("2025-03-10", "10:00"), nil)
	st, d := newEngine(a, other)

	if err := d.Start(CandidateRef(a.ID, 1)); err != nil {
		t.Fatalf("Start: %v", err)
	}
	res, err := d.Drop(at("2025-03-13T15:00"))
	if err != nil || res != DropMoved {
		t.Fatalf("Drop = %v, %v", res, err)
	}

	if n := countFor(st.Events, a.ID); n != 1 {
		t.Fatalf("expected one event left for the appointment, got %d", n)
	}
	if countFor(st.Events, other.ID) != 1 {
		t.Fatal("other appointments must be untouched")
	}
	moved := st.EventsFor(a.ID)[0]
	if moved.IsOriginal || !moved.Start.Equal(at("2025-03-13T15:00")) || moved.Ref != CandidateRef(a.ID, 1) {
		t.Fatalf("unexpected moved event %+v", moved)
	}
	if st.Changes.Len() != 1 {
		t.Fatalf("expected 1 pending change, got %d", st.Changes.Len())
	}
	ch, _ := st.Changes.Get(a.ID)
	if !ch.NewDateTime.Equal(at("2025-03-13T15:00")) || ch.Status != "" {
		t.Fatalf("unexpected change %+v", ch)
	}
	if d.Dragging() {
		t.Fatal("drag should end on drop")
	}
}

func TestDropOnOwnCellIsNoop(t *testing.T) {
	a := appointment(candidates("2025-03-10", "10:00", "2025-03-11", "11:00"), nil)
	st, d := newEngine(a)
	before := append([]Event(nil), st.Events...)

	_ = d.Start(CandidateRef(a.ID, 0))
	res, err := d.Drop(at("2025-03-10T10:00"))
	if err != nil || res != DropNoop {
		t.Fatalf("Drop = %v, %v", res, err)
	}
	if st.Changes.Len() != 0 {
		t.Fatal("no change expected")
	}
	if len(st.Events) != len(before) {
		t.Fatal("event list must not change")
	}
	for i := range before {
		if st.Events[i] != before[i] {
			t.Fatalf("event %d changed", i)
		}
	}
	if d.Dragging() {
		t.Fatal("drag should end")
	}
}

func TestSecondMoveReplacesChange(t *testing.T) {
	a := appointment(candidates("2025-03-10", "10:00"), nil)
	b := appointment(candidates("2025-03-10", "11:00"), nil)
	st, d := newEngine(a, b)

	_ = d.Start(CandidateRef(a.ID, 0))
	_, _ = d.Drop(at("2025-03-11T09:00"))
	_ = d.Start(CandidateRef(b.ID, 0))
	_, _ = d.Drop(at("2025-03-11T10:00"))
	_ = d.Start(CandidateRef(a.ID, 0))
	_, _ = d.Drop(at("2025-03-12T16:30"))

	list := st.Changes.List()
	if len(list) != 2 {
		t.Fatalf("expected 2 changes, got %d", len(list))
	}
	if list[0].AppointmentID != a.ID || !list[0].NewDateTime.Equal(at("2025-03-12T16:30")) {
		t.Fatalf("first change should be a's latest move, got %+v", list[0])
	}
	if list[1].AppointmentID != b.ID {
		t.Fatal("recording order must be preserved")
	}
}

func TestStagingRoundTrip(t *testing.T) {
	a := appointment(nil, ptr(at("2025-03-11T14:00")))
	st, d := newEngine(a)
	ref := ScheduledRef(a.ID)

	_ = d.Start(ref)
	if err := d.DropToStaging(); err != nil {
		t.Fatalf("DropToStaging: %v", err)
	}
	if len(st.Events) != 0 || st.Staging.Len() != 1 {
		t.Fatalf("event should move to staging, grid=%d staging=%d", len(st.Events), st.Staging.Len())
	}
	if st.Changes.Len() != 0 {
		t.Fatal("staging alone must not record a change")
	}
	entry, _ := st.Staging.Find(ref)
	if !entry.OriginalStart.Equal(at("2025-03-11T14:00")) {
		t.Fatalf("original start lost: %v", entry.OriginalStart)
	}
	if entry.OriginallyLabel(time.UTC) != "Originally: Tue 11 Mar, 2:00 PM" {
		t.Fatalf("label = %q", entry.OriginallyLabel(time.UTC))
	}

	_ = d.Start(ref)
	res, err := d.Drop(at("2025-03-19T09:30"))
	if err != nil || res != DropUnstaged {
		t.Fatalf("Drop = %v, %v", res, err)
	}
	if st.Staging.Len() != 0 || countFor(st.Events, a.ID) != 1 {
		t.Fatal("event should be back on the grid exactly once")
	}
	ch, ok := st.Changes.Get(a.ID)
	if !ok || !ch.NewDateTime.Equal(at("2025-03-19T09:30")) {
		t.Fatalf("unexpected change %+v", ch)
	}
}

func TestStagedCandidateLeavesSiblingsUntilRedrop(t *testing.T) {
	a := appointment(candidates("2025-03-10", "10:00", "2025-03-11", "11:00"), nil)
	st, d := newEngine(a)

	_ = d.Start(CandidateRef(a.ID, 0))
	_ = d.DropToStaging()
	if countFor(st.Events, a.ID) != 1 {
		t.Fatal("only the lifted candidate leaves the grid")
	}

	_ = d.Start(CandidateRef(a.ID, 0))
	_, _ = d.Drop(at("2025-03-20T12:00"))
	if countFor(st.Events, a.ID) != 1 {
		t.Fatal("redrop consolidates the remaining candidates")
	}
}

func TestConsolidateToSingleTime(t *testing.T) {
	a := appointment(candidates("2025-03-10", "10:00", "2025-03-11", "11:00", "2025-03-12", "12:00"), nil)
	st, _ := newEngine(a)
	src := st.EventsFor(a.ID)[2]
	src.DurationSlots = 8

	got := st.ConsolidateToSingleTime(src, at("2025-03-14T09:00"))
	if len(st.Events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(st.Events))
	}
	if got.Ref != CandidateRef(a.ID, 2) || got.IsOriginal || got.DurationSlots != DefaultDurationSlots {
		t.Fatalf("unexpected consolidated event %+v", got)
	}
	if st.Changes.Len() != 0 {
		t.Fatal("consolidation alone records no change")
	}
}

func TestChangeStatus(t *testing.T) {
	a := appointment(candidates("2025-03-10", "10:00", "2025-03-11", "11:00"), nil)
	st, d := newEngine(a)

	if err := d.ChangeStatus(CandidateRef(a.ID, 1), models.StatusCancelled); err != nil {
		t.Fatalf("ChangeStatus: %v", err)
	}
	ch, _ := st.Changes.Get(a.ID)
	if ch.Status != models.StatusCancelled || !ch.NewDateTime.Equal(at("2025-03-11T11:00")) {
		t.Fatalf("unexpected change %+v", ch)
	}
	for _, ev := range st.Events {
		if ev.Status != models.StatusCancelled {
			t.Fatal("every event of the appointment shows the new status")
		}
	}

	// a later move keeps the chosen status
	_ = d.Start(CandidateRef(a.ID, 0))
	_, _ = d.Drop(at("2025-03-12T13:00"))
	ch, _ = st.Changes.Get(a.ID)
	if ch.Status != models.StatusCancelled || !ch.NewDateTime.Equal(at("2025-03-12T13:00")) {
		t.Fatalf("unexpected change after move %+v", ch)
	}

	// a status change after a move keeps the time
	_ = d.ChangeStatus(CandidateRef(a.ID, 0), models.StatusConfirmed)
	ch, _ = st.Changes.Get(a.ID)
	if ch.Status != models.StatusConfirmed || !ch.NewDateTime.Equal(at("2025-03-12T13:00")) {
		t.Fatalf("unexpected change after status %+v", ch)
	}

	if err := d.ChangeStatus(CandidateRef(a.ID, 0), "archived"); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestDragErrors(t *testing.T) {
	a := appointment(candidates("2025-03-10", "10:00"), nil)
	_, d := newEngine(a)

	if _, err := d.Drop(at("2025-03-10T11:00")); !errors.Is(err, ErrNoActiveDrag) {
		t.Fatalf("expected ErrNoActiveDrag, got %v", err)
	}
	if err := d.DropToStaging(); !errors.Is(err, ErrNoActiveDrag) {
		t.Fatalf("expected ErrNoActiveDrag, got %v", err)
	}
	if err := d.Start(CandidateRef(a.ID, 5)); !errors.Is(err, ErrEventNotFound) {
		t.Fatalf("expected ErrEventNotFound, got %v", err)
	}

	_ = d.Start(CandidateRef(a.ID, 0))
	if _, err := d.Drop(at("2025-03-10T19:00")); !errors.Is(err, ErrInvalidSlot) {
		t.Fatalf("expected ErrInvalidSlot, got %v", err)
	}
	if !d.Dragging() {
		t.Fatal("an invalid drop keeps the drag alive")
	}
	d.Cancel()
	if d.Dragging() {
		t.Fatal("cancel ends the drag")
	}
}
