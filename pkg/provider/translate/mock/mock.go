// Package mock provides a test double for the translate.Translator interface.
//
// By default Translator answers with "<Prefix><text>" so tests can tell which
// source text produced which card. Set Err or Func to change that. Set Hold
// to park calls until Release is called, which lets tests resolve
// translations out of order.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/jurubahasa/pkg/provider/translate"
)

// Call records a single invocation of Translate.
type Call struct {
	Req translate.Request
}

// Translator is a mock implementation of translate.Translator.
type Translator struct {
	mu sync.Mutex

	// Prefix is prepended to the source text in the default answer.
	// Defaults to "EN:" when empty.
	Prefix string

	// Name is reported as Result.Provider.
	Name string

	// Err, if non-nil, is returned by every call.
	Err error

	// Func, when set, takes precedence over Prefix and Err.
	Func func(ctx context.Context, req translate.Request) (translate.Result, error)

	// Hold parks every call until Release is called for its text.
	Hold bool

	// Calls records every invocation in order.
	Calls []Call

	gates map[string][]chan struct{}
}

// Translate records the call and answers per the configured behaviour.
func (m *Translator) Translate(ctx context.Context, req translate.Request) (translate.Result, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, Call{Req: req})
	var gate chan struct{}
	if m.Hold {
		gate = make(chan struct{})
		if m.gates == nil {
			m.gates = make(map[string][]chan struct{})
		}
		m.gates[req.Text] = append(m.gates[req.Text], gate)
	}
	fn, err, prefix, name := m.Func, m.Err, m.Prefix, m.Name
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return translate.Result{}, ctx.Err()
		}
	}
	if fn != nil {
		return fn(ctx, req)
	}
	if err != nil {
		return translate.Result{}, err
	}
	if prefix == "" {
		prefix = "EN:"
	}
	if name == "" {
		name = "mock"
	}
	return translate.Result{Text: prefix + req.Text, Provider: name}, nil
}

// Release unblocks the oldest held call for text. It reports whether a call
// was waiting.
func (m *Translator) Release(text string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := m.gates[text]
	if len(q) == 0 {
		return false
	}
	close(q[0])
	m.gates[text] = q[1:]
	return true
}

// CallCount returns the number of Translate invocations.
func (m *Translator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// Texts returns the request texts in call order.
func (m *Translator) Texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.Calls))
	for i, c := range m.Calls {
		out[i] = c.Req.Text
	}
	return out
}

// Reset clears recorded calls.
func (m *Translator) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
}

var _ translate.Translator = (*Translator)(nil)
