// Package mock provides deterministic test doubles for the reconcile package:
// a manually advanced Scheduler and a Dispatcher whose requests are resolved
// explicitly by the test.
//
// Neither double is safe for concurrent use. They are meant to be driven from
// the test goroutine, which plays the role of the reconciler's goroutine.
package mock

import (
	"sort"
	"time"

	"github.com/MrWong99/jurubahasa/internal/reconcile"
)

// ---- Scheduler ----

// Scheduler is a reconcile.Scheduler driven by Advance.
type Scheduler struct {
	now    time.Duration
	nextID uint64
	timers []*timer
}

type timer struct {
	id      uint64
	due     time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *timer) Stop() bool {
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// AfterFunc implements reconcile.Scheduler.
func (s *Scheduler) AfterFunc(d time.Duration, f func()) reconcile.Timer {
	s.nextID++
	t := &timer{id: s.nextID, due: s.now + d, f: f}
	s.timers = append(s.timers, t)
	return t
}

// Advance moves the clock forward by d, running every timer that becomes due
// in due-time order. Timers armed by callbacks also run if they fall inside
// the window.
func (s *Scheduler) Advance(d time.Duration) {
	end := s.now + d
	for {
		t := s.nextDue(end)
		if t == nil {
			break
		}
		s.now = t.due
		t.fired = true
		t.f()
	}
	s.now = end
}

func (s *Scheduler) nextDue(end time.Duration) *timer {
	live := s.timers[:0]
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			live = append(live, t)
		}
	}
	s.timers = live
	sort.SliceStable(s.timers, func(i, j int) bool {
		if s.timers[i].due != s.timers[j].due {
			return s.timers[i].due < s.timers[j].due
		}
		return s.timers[i].id < s.timers[j].id
	})
	if len(s.timers) == 0 || s.timers[0].due > end {
		return nil
	}
	return s.timers[0]
}

// Elapsed returns the virtual time advanced so far.
func (s *Scheduler) Elapsed() time.Duration { return s.now }

// Pending returns how many timers are armed and not yet fired.
func (s *Scheduler) Pending() int {
	n := 0
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

var _ reconcile.Scheduler = (*Scheduler)(nil)

// ---- Dispatcher ----

// Call is one recorded Dispatch.
type Call struct {
	Request  reconcile.Request
	Resolved bool
	done     func(reconcile.Outcome)
}

// Dispatcher records requests and leaves them pending until Resolve is
// called. When Auto is set, requests resolve synchronously inside Dispatch.
type Dispatcher struct {
	// Auto, if non-nil, resolves every request immediately.
	Auto func(reconcile.Request) reconcile.Outcome

	Calls []*Call
}

// Dispatch implements reconcile.Dispatcher.
func (d *Dispatcher) Dispatch(req reconcile.Request, done func(reconcile.Outcome)) {
	c := &Call{Request: req, done: done}
	d.Calls = append(d.Calls, c)
	if d.Auto != nil {
		c.Resolved = true
		done(d.Auto(req))
	}
}

// Resolve completes call i with o. Resolving a call twice panics.
func (d *Dispatcher) Resolve(i int, o reconcile.Outcome) {
	c := d.Calls[i]
	if c.Resolved {
		panic("mock: call resolved twice")
	}
	c.Resolved = true
	c.done(o)
}

// ResolveText completes call i with a successful translation.
func (d *Dispatcher) ResolveText(i int, text string) {
	d.Resolve(i, reconcile.Outcome{Text: text, Provider: "mock"})
}

// Texts returns the source text of every request, in order.
func (d *Dispatcher) Texts() []string {
	out := make([]string, len(d.Calls))
	for i, c := range d.Calls {
		out[i] = c.Request.Text
	}
	return out
}

// Count returns how many requests had the given intent.
func (d *Dispatcher) Count(intent reconcile.Intent) int {
	n := 0
	for _, c := range d.Calls {
		if c.Request.Intent == intent {
			n++
		}
	}
	return n
}

// Last returns the index of the most recent request, or -1.
func (d *Dispatcher) Last() int { return len(d.Calls) - 1 }

var _ reconcile.Dispatcher = (*Dispatcher)(nil)
