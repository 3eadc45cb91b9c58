// Package translate defines the Translator interface for text translation
// backends.
//
// A translator turns one piece of recognised text into the target language.
// It either returns a non-empty translation or an error; an empty payload from
// the backend is reported as [ErrNoResult] so callers can drop it silently.
//
// Implementations must be safe for concurrent use. Calls are independent and
// may resolve in any order.
package translate

import (
	"context"
	"errors"
)

var (
	// ErrNoResult is returned when the backend answered but produced no text.
	ErrNoResult = errors.New("translate: no result")

	// ErrUnavailable is returned when no backend is currently able to serve
	// requests, for example because every circuit breaker is open.
	ErrUnavailable = errors.New("translate: unavailable")
)

// Request is one translation call.
type Request struct {
	// Text is the source text. Callers never send empty text.
	Text string

	// Source is the BCP-47 language code of Text (e.g. "id").
	Source string

	// Target is the BCP-47 language code to translate into (e.g. "en").
	Target string
}

// Result is a successful translation.
type Result struct {
	// Text is the translated text, never empty.
	Text string

	// Provider names the backend that produced Text. Fallback chains set it
	// to the backend that actually answered.
	Provider string
}

// Translator is the abstraction over any translation backend.
type Translator interface {
	// Translate translates req.Text from req.Source to req.Target.
	Translate(ctx context.Context, req Request) (Result, error)
}

// Func adapts a plain function to the Translator interface.
type Func func(ctx context.Context, req Request) (Result, error)

// Translate implements Translator.
func (f Func) Translate(ctx context.Context, req Request) (Result, error) {
	return f(ctx, req)
}
