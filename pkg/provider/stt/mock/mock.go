// Package mock provides test doubles for the stt package interfaces.
//
// Recognizer never emits events on its own: tests drive it explicitly with
// Emit so that the consumer sees exactly the sequence under test.
//
// Example:
//
//	rec := mock.NewRecognizer()
//	p := &mock.Provider{Recognizer: rec}
//	// ... consumer calls p.NewRecognizer and rec.Start ...
//	rec.Emit(stt.StartEvent())
//	rec.Emit(stt.ResultEvent(0, stt.Result{Transcript: "halo", IsFinal: true}))
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/jurubahasa/pkg/provider/stt"
)

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Recognizer is returned by NewRecognizer. If nil a fresh Recognizer is
	// created on each call.
	Recognizer *Recognizer

	// NewErr, if non-nil, is returned from NewRecognizer.
	NewErr error

	// Configs records the config of every NewRecognizer call.
	Configs []stt.Config
}

// NewRecognizer records the call and returns Recognizer, NewErr.
func (p *Provider) NewRecognizer(cfg stt.Config) (stt.Recognizer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Configs = append(p.Configs, cfg)
	if p.NewErr != nil {
		return nil, p.NewErr
	}
	if p.Recognizer != nil {
		return p.Recognizer, nil
	}
	return NewRecognizer(), nil
}

// CallCount returns how many times NewRecognizer was called.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Configs)
}

var _ stt.Provider = (*Provider)(nil)

// Recognizer is a mock implementation of stt.Recognizer.
type Recognizer struct {
	mu sync.Mutex

	events chan stt.Event

	// StartErrs are returned by successive Start calls, one per call. Once
	// exhausted, Start returns StartErr.
	StartErrs []error

	// StartErr is returned by Start when StartErrs is empty.
	StartErr error

	// StopErr and AbortErr are returned by Stop and Abort.
	StopErr  error
	AbortErr error

	startCalls int
	stopCalls  int
	abortCalls int
	closeCalls int
	closeOnce  sync.Once
}

// NewRecognizer returns a Recognizer with an unbuffered event channel, so
// Emit returns only once the consumer has received the event.
func NewRecognizer() *Recognizer {
	return &Recognizer{events: make(chan stt.Event)}
}

// Start records the call and returns the next scripted error.
func (r *Recognizer) Start(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.startCalls++
	if len(r.StartErrs) > 0 {
		err := r.StartErrs[0]
		r.StartErrs = r.StartErrs[1:]
		return err
	}
	return r.StartErr
}

// Stop records the call and returns StopErr.
func (r *Recognizer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopCalls++
	return r.StopErr
}

// Abort records the call and returns AbortErr.
func (r *Recognizer) Abort() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.abortCalls++
	return r.AbortErr
}

// Events returns the event channel.
func (r *Recognizer) Events() <-chan stt.Event { return r.events }

// Close records the call and closes the event channel once.
func (r *Recognizer) Close() error {
	r.mu.Lock()
	r.closeCalls++
	r.mu.Unlock()
	r.closeOnce.Do(func() { close(r.events) })
	return nil
}

// Emit delivers ev to the consumer, blocking until it is received.
func (r *Recognizer) Emit(ev stt.Event) {
	r.events <- ev
}

// StartCalls returns the number of Start calls.
func (r *Recognizer) StartCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.startCalls
}

// StopCalls returns the number of Stop calls.
func (r *Recognizer) StopCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopCalls
}

// AbortCalls returns the number of Abort calls.
func (r *Recognizer) AbortCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.abortCalls
}

// CloseCalls returns the number of Close calls.
func (r *Recognizer) CloseCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closeCalls
}

var _ stt.Recognizer = (*Recognizer)(nil)
