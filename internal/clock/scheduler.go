// Package clock provides the timer abstraction behind the engine's debounce
// table, with a wall-clock implementation and a manual one for tests.
package clock

import (
	"sort"
	"sync"
	"time"
)

// Timer is a cancellable scheduled call.
type Timer interface {
	// Stop cancels the call. It reports false if the call already ran or
	// was already stopped.
	Stop() bool
}

// Scheduler runs f after d.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// Real schedules on the wall clock via time.AfterFunc.
type Real struct{}

// AfterFunc implements Scheduler.
func (Real) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Manual is a Scheduler driven by Advance. Timer callbacks run
// synchronously on the goroutine calling Advance, in due-time order.
//
// Thread-safety: all methods are safe for concurrent use. Callbacks run
// without the internal lock held, so they may schedule new timers.
type Manual struct {
	mu     sync.Mutex
	now    time.Duration
	nextID int64
	timers map[int64]*manualTimer
}

type manualTimer struct {
	owner *Manual
	id    int64
	due   time.Duration
	fn    func()
}

// NewManual creates a Manual scheduler at logical time zero.
func NewManual() *Manual {
	return &Manual{timers: make(map[int64]*manualTimer)}
}

// AfterFunc implements Scheduler.
func (m *Manual) AfterFunc(d time.Duration, f func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	t := &manualTimer{owner: m, id: m.nextID, due: m.now + d, fn: f}
	m.timers[t.id] = t
	return t
}

// Stop implements Timer.
func (t *manualTimer) Stop() bool {
	t.owner.mu.Lock()
	defer t.owner.mu.Unlock()

	if _, ok := t.owner.timers[t.id]; !ok {
		return false
	}
	delete(t.owner.timers, t.id)
	return true
}

// Advance moves logical time forward by d and runs every timer that falls
// due, including timers scheduled by callbacks within the window.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now + d
	m.mu.Unlock()

	for {
		m.mu.Lock()
		next := m.earliestLocked(target)
		if next == nil {
			m.now = target
			m.mu.Unlock()
			return
		}
		delete(m.timers, next.id)
		m.now = next.due
		m.mu.Unlock()

		next.fn()
	}
}

func (m *Manual) earliestLocked(limit time.Duration) *manualTimer {
	due := make([]*manualTimer, 0, len(m.timers))
	for _, t := range m.timers {
		if t.due <= limit {
			due = append(due, t)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].due != due[j].due {
			return due[i].due < due[j].due
		}
		return due[i].id < due[j].id
	})
	return due[0]
}

// Pending returns the number of scheduled timers.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

// Now returns the logical time elapsed since creation.
func (m *Manual) Now() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}
