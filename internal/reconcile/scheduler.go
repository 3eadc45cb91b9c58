package reconcile

import "time"

// Timer is a pending callback.
type Timer interface {
	// Stop prevents the callback from running if it has not been started.
	// It reports whether the call stopped the timer.
	Stop() bool
}

// Scheduler arms one-shot timers. Callbacks must run on the reconciler's
// goroutine.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// LoopScheduler is a Scheduler backed by the runtime clock. Expired
// callbacks are handed to Post, which must run them on the reconciler's
// goroutine.
type LoopScheduler struct {
	Post func(func())
}

// AfterFunc implements Scheduler.
func (s LoopScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, func() { s.Post(f) })
}

// Slot holds the single outstanding timer of one purpose. Arming a slot
// cancels the previous timer. The generation number makes callbacks that were
// already queued when the slot was cancelled harmless.
//
// The zero value is ready to use. A Slot belongs to the goroutine that runs
// its callbacks.
type Slot struct {
	timer Timer
	gen   uint64
}

// Arm schedules f after d, replacing any outstanding timer.
func (s *Slot) Arm(sched Scheduler, d time.Duration, f func()) {
	s.Cancel()
	gen := s.gen
	s.timer = sched.AfterFunc(d, func() {
		if s.gen != gen || s.timer == nil {
			return
		}
		s.timer = nil
		f()
	})
}

// Cancel stops the outstanding timer, if any.
func (s *Slot) Cancel() {
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// Pending reports whether a timer is armed and has not fired.
func (s *Slot) Pending() bool { return s.timer != nil }
