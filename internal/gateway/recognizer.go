package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/MrWong99/jurubahasa/pkg/provider/stt"
)

const eventBuffer = 64

// browserProvider hands out the recognizer of one browser connection.
type browserProvider struct {
	speech bool
	send   func(ServerMessage) error

	mu  sync.Mutex
	rec *browserRecognizer
}

func (p *browserProvider) NewRecognizer(cfg stt.Config) (stt.Recognizer, error) {
	if !p.speech {
		return nil, fmt.Errorf("gateway: browser reports no speech engine: %w", stt.ErrUnavailable)
	}
	r := &browserRecognizer{
		cfg:    cfg,
		send:   p.send,
		events: make(chan stt.Event, eventBuffer),
		done:   make(chan struct{}),
	}
	p.mu.Lock()
	old := p.rec
	p.rec = r
	p.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
	return r, nil
}

// current returns the live recognizer, if any.
func (p *browserProvider) current() *browserRecognizer {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rec
}

// browserRecognizer is an stt.Recognizer whose engine runs in the browser.
// Commands travel to the browser as ServerMessages and the browser's
// recognition events come back through deliver.
//
// The browser only accepts a start while its engine is idle. The recognizer
// tracks that locally: a start is outstanding from Start until the browser
// reports the end of the session.
type browserRecognizer struct {
	cfg  stt.Config
	send func(ServerMessage) error

	mu     sync.Mutex // guards active and closed
	active bool
	closed bool

	// chMu is held for reading while sending on events so that Close cannot
	// close the channel under a blocked sender.
	chMu      sync.RWMutex
	events    chan stt.Event
	done      chan struct{}
	closeOnce sync.Once
}

func (r *browserRecognizer) Start(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return stt.ErrClosed
	}
	if r.active {
		return stt.ErrAlreadyStarted
	}
	err := r.send(ServerMessage{
		Type:    MsgCommand,
		Command: CommandStart,
		Config: &CommandConfig{
			Language:       r.cfg.Language,
			InterimResults: r.cfg.InterimResults,
			Continuous:     r.cfg.Continuous,
		},
	})
	if err != nil {
		return fmt.Errorf("gateway: send start: %w", err)
	}
	r.active = true
	return nil
}

func (r *browserRecognizer) Stop() error  { return r.command(CommandStop) }
func (r *browserRecognizer) Abort() error { return r.command(CommandAbort) }

func (r *browserRecognizer) command(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return stt.ErrClosed
	}
	if !r.active {
		return nil
	}
	if err := r.send(ServerMessage{Type: MsgCommand, Command: name}); err != nil {
		return fmt.Errorf("gateway: send %s: %w", name, err)
	}
	return nil
}

func (r *browserRecognizer) Events() <-chan stt.Event { return r.events }

// deliver forwards a browser event to the consumer. It blocks while the
// event buffer is full and returns false once the recognizer is closed.
func (r *browserRecognizer) deliver(ev stt.Event) bool {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return false
	}
	switch ev.Kind {
	case stt.EventStart:
		r.active = true
	case stt.EventEnd:
		r.active = false
	}
	r.mu.Unlock()

	r.chMu.RLock()
	defer r.chMu.RUnlock()
	select {
	case <-r.done:
		return false
	default:
	}
	select {
	case r.events <- ev:
		return true
	case <-r.done:
		return false
	}
}

func (r *browserRecognizer) Close() error {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		r.mu.Unlock()

		close(r.done)
		r.chMu.Lock()
		close(r.events)
		r.chMu.Unlock()
	})
	return nil
}

var (
	_ stt.Provider   = (*browserProvider)(nil)
	_ stt.Recognizer = (*browserRecognizer)(nil)
)
