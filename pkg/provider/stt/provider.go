// Package stt defines the speech recognition capability consumed by a
// translation session.
//
// A capability is modelled after a browser-style recogniser rather than a raw
// audio pipe: the caller asks it to Start, Stop or Abort, and it reports what
// happened through a single ordered stream of [Event] values (session start,
// session end, result batches and errors). Sessions may end on their own, for
// example when a platform bounds how long one recognition session may stay
// open; restarting is the caller's decision.
//
// Implementations must be safe for concurrent use. The Events channel lives as
// long as the Recognizer and spans any number of Start/End cycles; it is closed
// only by Close.
package stt

import (
	"context"
	"errors"
)

// ErrAlreadyStarted is returned by Start when a recognition session is
// already active.
var ErrAlreadyStarted = errors.New("stt: recognition already started")

// ErrUnavailable is returned by Provider.NewRecognizer when the capability is
// not available at all in the current environment (missing credentials, no
// audio input, unsupported client). It is fatal: no restart is attempted.
var ErrUnavailable = errors.New("stt: speech recognition unavailable")

// ErrClosed is returned by any Recognizer method called after Close.
var ErrClosed = errors.New("stt: recognizer closed")

// Config describes how a Recognizer should recognise speech.
type Config struct {
	// Language is the BCP-47 tag of the fixed source language (e.g., "id-ID").
	Language string

	// InterimResults requests provisional results in addition to finals.
	// Sessions always set this to true.
	InterimResults bool

	// Continuous keeps one recognition session open across utterances. When
	// false the capability ends the session after each committed fragment and
	// the caller is expected to restart it.
	Continuous bool

	// SampleRate and Channels describe the PCM audio fed to server-side
	// recognisers. Ignored by capabilities that capture audio themselves.
	SampleRate int
	Channels   int
}

// Recognizer is one speech recognition capability instance.
//
// Start begins a recognition session and returns once the request has been
// accepted; the matching [EventStart] arrives on Events. Stop ends the session
// gracefully so that pending audio may still yield a final result. Abort ends
// it immediately, discarding anything pending. Both eventually produce an
// [EventEnd] when a session was active.
type Recognizer interface {
	Start(ctx context.Context) error
	Stop() error
	Abort() error
	Events() <-chan Event
	Close() error
}

// Provider creates Recognizers.
type Provider interface {
	// NewRecognizer returns a new Recognizer configured by cfg. It returns an
	// error wrapping ErrUnavailable when the capability cannot exist here.
	NewRecognizer(cfg Config) (Recognizer, error)
}
