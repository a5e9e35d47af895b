package calendar

import (
	"sync"
	"time"
)

// EdgeHoverDelay is how long a drag must rest on the first or last day
// column before the week turns
const EdgeHoverDelay = time.Second

// Direction of an edge navigation
type Direction int

const (
	EdgeNone Direction = iota
	EdgePrev
	EdgeNext
)

func (d Direction) String() string {
	switch d {
	case EdgePrev:
		return "prev"
	case EdgeNext:
		return "next"
	}
	return "none"
}

// Timer is the part of *time.Timer the navigator needs
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// EdgeNavigator arms a timer while a drag hovers an edge column. When it
// fires, onFire receives the direction and a generation; the receiver must
// Claim that generation before acting so a timer racing with a drop or a
// leave is ignored.
type EdgeNavigator struct {
	mu        sync.Mutex
	delay     time.Duration
	afterFunc AfterFunc
	onFire    func(dir Direction, gen uint64)
	armed     Direction
	timer     Timer
	gen       uint64
}

func NewEdgeNavigator(delay time.Duration, after AfterFunc, onFire func(Direction, uint64)) *EdgeNavigator {
	if delay <= 0 {
		delay = EdgeHoverDelay
	}
	if after == nil {
		after = realAfterFunc
	}
	return &EdgeNavigator{delay: delay, afterFunc: after, onFire: onFire}
}

// Hover reports the day column under the drag. Day 0 arms "previous week",
// the last day arms "next week" and any other column disarms. Hovering the
// same edge again leaves the running timer alone.
func (n *EdgeNavigator) Hover(day int) {
	dir := EdgeNone
	switch day {
	case 0:
		dir = EdgePrev
	case DaysPerWeek - 1:
		dir = EdgeNext
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if dir == n.armed {
		return
	}
	n.stopLocked()
	if dir == EdgeNone {
		return
	}
	n.armed = dir
	gen := n.gen
	n.timer = n.afterFunc(n.delay, func() { n.onFire(dir, gen) })
}

// Cancel disarms any pending navigation
func (n *EdgeNavigator) Cancel() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stopLocked()
}

// Claim consumes a fired timer. It returns false when the timer was
// cancelled or superseded after it fired.
func (n *EdgeNavigator) Claim(gen uint64) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if gen != n.gen || n.armed == EdgeNone {
		return false
	}
	n.armed = EdgeNone
	n.timer = nil
	n.gen++
	return true
}

// Armed returns the pending direction
func (n *EdgeNavigator) Armed() Direction {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.armed
}

func (n *EdgeNavigator) stopLocked() {
	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
	}
	n.armed = EdgeNone
	n.gen++
}
