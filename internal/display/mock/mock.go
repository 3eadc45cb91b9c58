// Package mock provides a recording test double for the display.Sink
// interface.
package mock

import (
	"sync"

	"github.com/MrWong99/jurubahasa/internal/display"
)

// Sink records every display operation in order.
type Sink struct {
	mu  sync.Mutex
	ops []display.Op
}

func (s *Sink) record(op display.Op) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, op)
}

func (s *Sink) ShowStatus(st display.Status) {
	s.record(display.Op{Type: display.OpStatus, Status: &st})
}

func (s *Sink) UpsertLiveCard(c display.LiveCard) {
	s.record(display.Op{Type: display.OpLiveUpsert, Live: &c})
}

func (s *Sink) RemoveLiveCard() {
	s.record(display.Op{Type: display.OpLiveRemove})
}

func (s *Sink) AppendFinalCard(c display.FinalCard) {
	s.record(display.Op{Type: display.OpFinalAppend, Final: &c})
}

func (s *Sink) ShowNotification(n display.Notification) {
	s.record(display.Op{Type: display.OpNotification, Notification: &n})
}

// Ops returns a copy of all recorded operations.
func (s *Sink) Ops() []display.Op {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]display.Op(nil), s.ops...)
}

// Types returns the recorded operation types in order.
func (s *Sink) Types() []display.OpType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]display.OpType, len(s.ops))
	for i, op := range s.ops {
		out[i] = op.Type
	}
	return out
}

// Finals returns all appended final cards.
func (s *Sink) Finals() []display.FinalCard {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []display.FinalCard
	for _, op := range s.ops {
		if op.Final != nil {
			out = append(out, *op.Final)
		}
	}
	return out
}

// Statuses returns all status lines shown.
func (s *Sink) Statuses() []display.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []display.Status
	for _, op := range s.ops {
		if op.Status != nil {
			out = append(out, *op.Status)
		}
	}
	return out
}

// LastStatus returns the most recent status line.
func (s *Sink) LastStatus() (display.Status, bool) {
	st := s.Statuses()
	if len(st) == 0 {
		return display.Status{}, false
	}
	return st[len(st)-1], true
}

// LiveUpserts returns every live card shown, in order.
func (s *Sink) LiveUpserts() []display.LiveCard {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []display.LiveCard
	for _, op := range s.ops {
		if op.Live != nil {
			out = append(out, *op.Live)
		}
	}
	return out
}

// Live returns the live card currently visible, replaying upserts and
// removals.
func (s *Sink) Live() (display.LiveCard, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var cur *display.LiveCard
	for _, op := range s.ops {
		switch op.Type {
		case display.OpLiveUpsert:
			cur = op.Live
		case display.OpLiveRemove:
			cur = nil
		}
	}
	if cur == nil {
		return display.LiveCard{}, false
	}
	return *cur, true
}

// Notifications returns all notifications shown.
func (s *Sink) Notifications() []display.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []display.Notification
	for _, op := range s.ops {
		if op.Notification != nil {
			out = append(out, *op.Notification)
		}
	}
	return out
}

// Count returns how many operations of type t were recorded.
func (s *Sink) Count(t display.OpType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, op := range s.ops {
		if op.Type == t {
			n++
		}
	}
	return n
}

// Reset clears all recorded operations.
func (s *Sink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = nil
}

var _ display.Sink = (*Sink)(nil)
