package clock

import (
	"sync"
	"time"
)

// TimeMachine holds the application-wide notion of "now". It either tracks
// the real wall clock or is pinned to an operator-set virtual time. All
// urgency and scheduling decisions read time from here, never from time.Now
// directly, so the whole app can be moved forward or backward at will.
type TimeMachine struct {
	mu        sync.Mutex
	current   time.Time
	system    bool
	wall      func() time.Time
	listeners map[int]func(time.Time)
	nextID    int
}

// New returns a TimeMachine tracking the real wall clock.
func New() *TimeMachine {
	return NewWithWall(time.Now)
}

// NewWithWall uses a custom wall-clock source. Tests inject a fixed one.
func NewWithWall(wall func() time.Time) *TimeMachine {
	return &TimeMachine{
		current:   wall(),
		system:    true,
		wall:      wall,
		listeners: make(map[int]func(time.Time)),
	}
}

// Now returns the current authoritative time, real or virtual.
func (m *TimeMachine) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// UsingSystemTime reports whether the machine tracks the real clock.
func (m *TimeMachine) UsingSystemTime() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.system
}

// SetTime pins the machine to t and notifies subscribers. Subscribers must
// treat the change as a discontinuous jump in either direction, not a tick.
func (m *TimeMachine) SetTime(t time.Time) {
	m.mu.Lock()
	m.current = t
	m.system = false
	m.mu.Unlock()
	m.notify(t)
}

// Advance shifts the current time by d (negative moves backward) and pins
// the machine to the result.
func (m *TimeMachine) Advance(d time.Duration) {
	m.mu.Lock()
	t := m.current.Add(d)
	m.current = t
	m.system = false
	m.mu.Unlock()
	m.notify(t)
}

// ResetToSystemTime resumes tracking the real wall clock.
func (m *TimeMachine) ResetToSystemTime() {
	m.mu.Lock()
	t := m.wall()
	m.current = t
	m.system = true
	m.mu.Unlock()
	m.notify(t)
}

// Refresh re-reads the wall clock when tracking system time. A periodic job
// calls this at least once per minute so urgency stays accurate without any
// explicit operator action. Pinned mode ignores it.
func (m *TimeMachine) Refresh() {
	m.mu.Lock()
	if !m.system {
		m.mu.Unlock()
		return
	}
	t := m.wall()
	m.current = t
	m.mu.Unlock()
	m.notify(t)
}

// IsInFuture reports whether t is after the current time.
func (m *TimeMachine) IsInFuture(t time.Time) bool {
	return t.After(m.Now())
}

// IsInPast reports whether t is before the current time.
func (m *TimeMachine) IsInPast(t time.Time) bool {
	return t.Before(m.Now())
}

// IsSameDay reports whether t falls on the current virtual calendar day.
func (m *TimeMachine) IsSameDay(t time.Time) bool {
	now := m.Now()
	y1, m1, d1 := now.Date()
	y2, m2, d2 := t.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// Subscribe registers a listener invoked with the new time on every change.
// It returns an unsubscribe function. Listeners run on the mutating
// goroutine, outside the internal lock; no ordering is guaranteed between
// independent listeners.
func (m *TimeMachine) Subscribe(fn func(time.Time)) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

func (m *TimeMachine) notify(t time.Time) {
	m.mu.Lock()
	fns := make([]func(time.Time), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(t)
	}
}
