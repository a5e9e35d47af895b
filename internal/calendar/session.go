package calendar

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lakestack/hometrace/internal/models"
	"go.uber.org/zap"
)

var ErrUnknownNavAction = errors.New("unknown navigation action")

// NavAction is a week navigation request
type NavAction string

const (
	NavPrev    NavAction = "prev"
	NavNext    NavAction = "next"
	NavToday   NavAction = "today"
	NavJump    NavAction = "jump"
	NavForward NavAction = "forward"
)

// Options configure a Session
type Options struct {
	Store     Store
	Location  *time.Location
	WeekStart time.Weekday
	Now       func() time.Time
	EdgeDelay time.Duration
	AfterFunc AfterFunc
	Log       *zap.Logger
	// OnChange is called after a change the caller did not ask for,
	// namely a week turn from a drag resting on an edge column.
	OnChange func(*Session)
}

// Session is one agent's calendar editing session. Every method is safe for
// concurrent use; the only blocking calls are Load and Save.
type Session struct {
	mu sync.Mutex

	store    Store
	loc      *time.Location
	nav      Navigator
	now      func() time.Time
	log      *zap.Logger
	onChange func(*Session)

	anchor       time.Time
	window       Window
	loaded       bool
	appointments []models.Appointment

	state *State
	drag  *DragEngine
	edge  *EdgeNavigator
	coord *Coordinator
}

func NewSession(opts Options) *Session {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	log := opts.Log.Named("calendar")

	s := &Session{
		store:    opts.Store,
		loc:      opts.Location,
		nav:      Navigator{WeekStart: opts.WeekStart, Location: opts.Location, Now: opts.Now},
		now:      opts.Now,
		log:      log,
		onChange: opts.OnChange,
		state:    NewState(),
		coord:    NewCoordinator(opts.Store, log),
	}
	s.drag = NewDragEngine(s.state, s.loc)
	s.edge = NewEdgeNavigator(opts.EdgeDelay, opts.AfterFunc, s.edgeFired)
	return s
}

// View is everything a client needs to render the calendar
type View struct {
	Week      WeekView        `json:"week"`
	Staging   []StagingEntry  `json:"staging"`
	Changes   []PendingChange `json:"changes"`
	Saving    bool            `json:"saving"`
	Dragging  *EventRef       `json:"dragging,omitempty"`
	EdgeArmed string          `json:"edgeArmed,omitempty"`
}

// Snapshot is the part of a session worth keeping across restarts. The
// grid itself is rebuilt from the store.
type Snapshot struct {
	Anchor  time.Time       `json:"anchor"`
	Window  Window          `json:"window"`
	Staging []StagingEntry  `json:"staging"`
	Changes []PendingChange `json:"changes"`
}

// Load fetches appointments for w (nil keeps the current window) and
// rebuilds the grid, keeping staged entries and pending changes.
func (s *Session) Load(ctx context.Context, w *Window) error {
	s.mu.Lock()
	if w != nil {
		s.window = *w
	}
	window := s.window
	s.mu.Unlock()

	appts, err := s.store.Load(ctx, window)
	if err != nil {
		return fmt.Errorf("load appointments: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.appointments = appts
	s.reproject()
	s.loaded = true
	return nil
}

// Loaded reports whether Load has succeeded at least once
func (s *Session) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

func (s *Session) reproject() {
	events := Project(s.appointments, s.now(), s.loc)
	s.state.Rebuild(events, s.loc)
	if s.anchor.IsZero() {
		s.anchor = s.nav.Initial(s.state.Events)
	}
}

func (s *Session) currentAnchor() time.Time {
	if s.anchor.IsZero() {
		s.anchor = s.nav.Today()
	}
	return s.anchor
}

// View renders the current week
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		Week:    LayoutWeek(s.currentAnchor(), s.state.Events),
		Staging: s.state.Staging.Entries(),
		Changes: s.state.Changes.List(),
		Saving:  s.coord.Saving(),
	}
	if ev, ok := s.drag.Active(); ok {
		ref := ev.Ref
		v.Dragging = &ref
	}
	if dir := s.edge.Armed(); dir != EdgeNone {
		v.EdgeArmed = dir.String()
	}
	return v
}

// Events returns a copy of the grid events
func (s *Session) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.state.Events...)
}

// Anchor returns the first day of the displayed week
func (s *Session) Anchor() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentAnchor()
}

// Navigate moves the displayed week. target is used by NavJump and weeks
// by NavForward.
func (s *Session) Navigate(action NavAction, target time.Time, weeks int) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	anchor := s.currentAnchor()
	switch action {
	case NavPrev:
		anchor = s.nav.Prev(anchor)
	case NavNext:
		anchor = s.nav.Next(anchor)
	case NavToday:
		anchor = s.nav.Today()
	case NavJump:
		if target.IsZero() {
			return anchor, fmt.Errorf("%w: jump needs a date", ErrUnknownNavAction)
		}
		anchor = s.nav.JumpTo(target)
	case NavForward:
		anchor = s.nav.FastForward(anchor, weeks)
	default:
		return anchor, fmt.Errorf("%w: %q", ErrUnknownNavAction, action)
	}
	s.anchor = anchor
	return anchor, nil
}

// StartDrag picks up an event from the grid or staging
func (s *Session) StartDrag(ref EventRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edge.Cancel()
	return s.drag.Start(ref)
}

// Hover reports the day column under an active drag
func (s *Session) Hover(day int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.drag.Dragging() {
		return ErrNoActiveDrag
	}
	if day < 0 || day >= DaysPerWeek {
		return fmt.Errorf("%w: %d", ErrInvalidDay, day)
	}
	s.edge.Hover(day)
	return nil
}

// Leave is called when the drag leaves the grid
func (s *Session) Leave() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edge.Cancel()
}

// Drop releases the drag on a cell of the displayed week
func (s *Session) Drop(day, slotIndex int) (DropResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edge.Cancel()

	if !s.drag.Dragging() {
		return DropNoop, ErrNoActiveDrag
	}
	if day < 0 || day >= DaysPerWeek {
		return DropNoop, fmt.Errorf("%w: %d", ErrInvalidDay, day)
	}
	slot, err := SlotAt(slotIndex)
	if err != nil {
		return DropNoop, err
	}
	at := slot.At(WeekDays(s.currentAnchor())[day])
	return s.drag.Drop(at)
}

// DropToStaging releases the drag on the staging area
func (s *Session) DropToStaging() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edge.Cancel()
	return s.drag.DropToStaging()
}

// CancelDrag abandons the drag
func (s *Session) CancelDrag() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edge.Cancel()
	s.drag.Cancel()
}

// ChangeStatus records a status edit for a grid event
func (s *Session) ChangeStatus(ref EventRef, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drag.ChangeStatus(ref, status)
}

// RemoveFromStaging discards a staged entry. The appointment goes back to
// whatever the store and any pending change say.
func (s *Session) RemoveFromStaging(ref EventRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.state.Staging.Remove(ref); !ok {
		return fmt.Errorf("%w: %s", ErrEventNotFound, ref)
	}
	s.reproject()
	return nil
}

// Save applies the pending changes to the store in recording order and
// reloads. Changes the store rejected stay pending for another attempt,
// along with their staged entries. Edits made while the save runs are left
// for the next save. A started batch runs to the end even if ctx is
// cancelled; SaveTimeout bounds the batch and the reload instead.
func (s *Session) Save(ctx context.Context) (Summary, error) {
	s.mu.Lock()
	changes := s.state.Changes.List()
	if len(changes) == 0 {
		s.mu.Unlock()
		return Summary{}, ErrNothingToSave
	}
	if !s.coord.begin() {
		s.mu.Unlock()
		return Summary{}, ErrSaveInProgress
	}
	staged := map[EventRef]bool{}
	for _, e := range s.state.Staging.Entries() {
		staged[e.Event.Ref] = true
	}
	window := s.window
	s.mu.Unlock()
	defer s.coord.end()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), SaveTimeout)
	defer cancel()

	sum, applied := s.coord.apply(ctx, changes)
	appts, loadErr := s.store.Load(ctx, window)

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ch := range applied {
		s.state.Changes.RemoveIfUnchanged(ch)
	}
	s.state.Staging.Retain(func(e StagingEntry) bool {
		if !staged[e.Event.Ref] {
			return true
		}
		_, pending := s.state.Changes.Get(e.Event.AppointmentID())
		return pending
	})

	if loadErr != nil {
		s.log.Warn("reload after save failed", zap.Error(loadErr))
		return sum, nil
	}
	s.appointments = appts
	s.reproject()
	return sum, nil
}

// Saving reports whether a save is running
func (s *Session) Saving() bool { return s.coord.Saving() }

// Snapshot captures the session for persistence
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Anchor:  s.anchor,
		Window:  s.window,
		Staging: s.state.Staging.Entries(),
		Changes: s.state.Changes.List(),
	}
}

// Restore replaces staging, changes and week from a snapshot. Call Load
// afterwards to rebuild the grid.
func (s *Session) Restore(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !snap.Anchor.IsZero() {
		s.anchor = snap.Anchor.In(s.loc)
	}
	s.window = snap.Window
	s.state.Staging.set(snap.Staging)
	s.state.Changes = NewChangeSet()
	for _, ch := range snap.Changes {
		if ch.Status != "" {
			s.state.Changes.RecordStatus(ch.AppointmentID, ch.NewDateTime, ch.Status)
		}
		s.state.Changes.RecordMove(ch.AppointmentID, ch.NewDateTime)
	}
}

// Close stops any pending edge timer
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edge.Cancel()
	s.drag.Cancel()
}

func (s *Session) edgeFired(dir Direction, gen uint64) {
	s.mu.Lock()
	if !s.edge.Claim(gen) || !s.drag.Dragging() {
		s.mu.Unlock()
		return
	}
	anchor := s.currentAnchor()
	if dir == EdgePrev {
		s.anchor = s.nav.Prev(anchor)
	} else {
		s.anchor = s.nav.Next(anchor)
	}
	s.log.Debug("edge navigation", zap.String("direction", dir.String()), zap.Time("anchor", s.anchor))
	s.mu.Unlock()

	if s.onChange != nil {
		s.onChange(s)
	}
}
