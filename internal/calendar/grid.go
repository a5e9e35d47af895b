package calendar

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

var (
	ErrInvalidSlot = errors.New("invalid slot position")
	ErrInvalidDay  = errors.New("invalid day index")
)

const (
	// FirstHour is the hour of slot 0
	FirstHour = 9
	// SlotMinutes is the grid resolution
	SlotMinutes = 15
	// SlotsPerDay covers 9:00 through 18:45
	SlotsPerDay = 40
	// DaysPerWeek is the number of day columns
	DaysPerWeek = 7
	// DefaultDurationSlots is one hour
	DefaultDurationSlots = 4
	// MaxVisiblePerSlot caps side-by-side events in one cell
	MaxVisiblePerSlot = 3
)

// Slot is one 15-minute row of the grid
type Slot struct {
	Index  int `json:"index"`
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

// Label renders the slot as "9:00"
func (s Slot) Label() string {
	return fmt.Sprintf("%d:%02d", s.Hour, s.Minute)
}

// SlotAt returns the slot for a row index
func SlotAt(index int) (Slot, error) {
	if index < 0 || index >= SlotsPerDay {
		return Slot{}, fmt.Errorf("%w: %d", ErrInvalidSlot, index)
	}
	return Slot{
		Index:  index,
		Hour:   FirstHour + index/4,
		Minute: (index % 4) * SlotMinutes,
	}, nil
}

// TimeSlots lists every slot of a day in order
func TimeSlots() []Slot {
	slots := make([]Slot, SlotsPerDay)
	for i := range slots {
		slots[i], _ = SlotAt(i)
	}
	return slots
}

// slotOf finds the grid row a wall-clock time starts in. Times off the grid
// or outside business hours have none.
func slotOf(t time.Time) (Slot, bool) {
	if t.Second() != 0 || t.Nanosecond() != 0 || t.Minute()%SlotMinutes != 0 {
		return Slot{}, false
	}
	idx := (t.Hour()-FirstHour)*4 + t.Minute()/SlotMinutes
	s, err := SlotAt(idx)
	return s, err == nil
}

// At combines a day and a slot into a wall-clock instant in the day's zone
func (s Slot) At(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, s.Hour, s.Minute, 0, 0, day.Location())
}

// StartOfWeek returns midnight of the first day of t's week
func StartOfWeek(t time.Time, weekStart time.Weekday) time.Time {
	diff := (int(t.Weekday()) - int(weekStart) + DaysPerWeek) % DaysPerWeek
	return startOfDay(t).AddDate(0, 0, -diff)
}

// WeekDays returns the seven day columns starting at anchor
func WeekDays(anchor time.Time) []time.Time {
	days := make([]time.Time, DaysPerWeek)
	for i := range days {
		days[i] = anchor.AddDate(0, 0, i)
	}
	return days
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// sameSlot compares day, hour and minute in loc
func sameSlot(a, b time.Time, loc *time.Location) bool {
	a, b = a.In(loc), b.In(loc)
	return sameDay(a, b) && a.Hour() == b.Hour() && a.Minute() == b.Minute()
}

// Placement is where an event renders inside its start cell. Left and Width
// are percentages of the cell; Rows is the vertical extent in slots.
type Placement struct {
	Event  Event   `json:"event"`
	Day    int     `json:"day"`
	Slot   int     `json:"slot"`
	Column int     `json:"column"`
	Left   float64 `json:"left"`
	Width  float64 `json:"width"`
	ZIndex int     `json:"zIndex"`
	Rows   int     `json:"rows"`
}

// Overflow marks a cell with more events than can sit side by side
type Overflow struct {
	Day    int `json:"day"`
	Slot   int `json:"slot"`
	Hidden int `json:"hidden"`
}

func (o Overflow) Label() string { return fmt.Sprintf("+%d more", o.Hidden) }

// WeekView is the rendered grid for one week
type WeekView struct {
	Anchor     time.Time   `json:"anchor"`
	Days       []time.Time `json:"days"`
	Slots      []Slot      `json:"slots"`
	Placements []Placement `json:"placements"`
	Overflow   []Overflow  `json:"overflow"`
}

// End is the last day of the week
func (w WeekView) End() time.Time { return w.Days[len(w.Days)-1] }

type cellKey struct{ day, slot int }

// LayoutWeek positions events on the week starting at anchor. Events that
// share a start cell split its width evenly, up to three; the rest are
// counted in an Overflow. Ties are broken by display id.
func LayoutWeek(anchor time.Time, events []Event) WeekView {
	loc := anchor.Location()
	view := WeekView{
		Anchor: anchor,
		Days:   WeekDays(anchor),
		Slots:  TimeSlots(),
	}

	cells := map[cellKey][]Event{}
	var keys []cellKey
	for _, ev := range events {
		start := ev.Start.In(loc)
		day := -1
		for i, d := range view.Days {
			if sameDay(d, start) {
				day = i
				break
			}
		}
		if day < 0 {
			continue
		}
		slot, ok := slotOf(start)
		if !ok {
			continue
		}
		k := cellKey{day, slot.Index}
		if _, seen := cells[k]; !seen {
			keys = append(keys, k)
		}
		cells[k] = append(cells[k], ev)
	}

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].day != keys[j].day {
			return keys[i].day < keys[j].day
		}
		return keys[i].slot < keys[j].slot
	})

	for _, k := range keys {
		group := cells[k]
		sort.Slice(group, func(i, j int) bool {
			return group[i].Ref.DisplayID() < group[j].Ref.DisplayID()
		})
		visible := min(len(group), MaxVisiblePerSlot)
		width := 100.0 / float64(visible)
		for col, ev := range group[:visible] {
			rows := ev.DurationSlots
			if rows <= 0 {
				rows = DefaultDurationSlots
			}
			view.Placements = append(view.Placements, Placement{
				Event:  ev,
				Day:    k.day,
				Slot:   k.slot,
				Column: col,
				Left:   float64(col) * width,
				Width:  width,
				ZIndex: col + 1,
				Rows:   rows,
			})
		}
		if hidden := len(group) - visible; hidden > 0 {
			view.Overflow = append(view.Overflow, Overflow{Day: k.day, Slot: k.slot, Hidden: hidden})
		}
	}
	return view
}

// Navigator moves the week anchor. It holds no state of its own.
type Navigator struct {
	WeekStart time.Weekday
	Location  *time.Location
	Now       func() time.Time
}

func (n Navigator) Next(anchor time.Time) time.Time { return anchor.AddDate(0, 0, DaysPerWeek) }

func (n Navigator) Prev(anchor time.Time) time.Time { return anchor.AddDate(0, 0, -DaysPerWeek) }

// FastForward moves by whole weeks; negative values go back
func (n Navigator) FastForward(anchor time.Time, weeks int) time.Time {
	return anchor.AddDate(0, 0, DaysPerWeek*weeks)
}

func (n Navigator) Today() time.Time { return n.JumpTo(n.Now()) }

// JumpTo anchors on the week containing target
func (n Navigator) JumpTo(target time.Time) time.Time {
	return StartOfWeek(target.In(n.Location), n.WeekStart)
}

// Initial picks the week of the earliest event, or the current week when
// there are none. Events are expected to be projected already, so nothing
// in the past remains.
func (n Navigator) Initial(events []Event) time.Time {
	if len(events) == 0 {
		return n.Today()
	}
	earliest := events[0].Start
	for _, ev := range events[1:] {
		if ev.Start.Before(earliest) {
			earliest = ev.Start
		}
	}
	return n.JumpTo(earliest)
}
