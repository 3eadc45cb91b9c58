package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/MrWong99/jurubahasa/pkg/provider/translate"
)

// TranslateFallback implements [translate.Translator] with failover across
// several translation backends, each behind its own circuit breaker.
//
// An empty translation is not a backend failure: it does not trip the breaker
// but the next backend still gets a chance. When every backend answered with
// nothing the error wraps [translate.ErrNoResult]; when every backend failed
// or was skipped the error wraps [translate.ErrUnavailable] and
// [ErrAllFailed].
type TranslateFallback struct {
	group *FallbackGroup[translate.Translator]
}

var _ translate.Translator = (*TranslateFallback)(nil)

// NewTranslateFallback creates a [TranslateFallback] with primary as the
// preferred backend.
func NewTranslateFallback(primary translate.Translator, primaryName string, cfg FallbackConfig) *TranslateFallback {
	neutral := cfg.CircuitBreaker.Neutral
	cfg.CircuitBreaker.Neutral = func(err error) bool {
		if errors.Is(err, translate.ErrNoResult) || errors.Is(err, context.Canceled) {
			return true
		}
		return neutral != nil && neutral(err)
	}
	return &TranslateFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional backend.
func (f *TranslateFallback) AddFallback(name string, t translate.Translator) {
	f.group.AddFallback(name, t)
}

// Names returns the backend names in the order they are tried.
func (f *TranslateFallback) Names() []string { return f.group.Names() }

// Breaker returns the circuit breaker guarding the named backend, or nil.
func (f *TranslateFallback) Breaker(name string) *CircuitBreaker { return f.group.Breaker(name) }

// Translate sends req to the first healthy backend that produces a result.
func (f *TranslateFallback) Translate(ctx context.Context, req translate.Request) (translate.Result, error) {
	var empty atomic.Int32
	res, err := ExecuteWithResult(f.group, func(t translate.Translator) (translate.Result, error) {
		r, err := t.Translate(ctx, req)
		if errors.Is(err, translate.ErrNoResult) {
			empty.Add(1)
		}
		return r, err
	})
	switch {
	case err == nil:
		return res, nil
	case ctx.Err() != nil:
		return translate.Result{}, fmt.Errorf("resilience: translate: %w", ctx.Err())
	case empty.Load() > 0:
		return translate.Result{}, fmt.Errorf("resilience: translate: %w", translate.ErrNoResult)
	default:
		return translate.Result{}, fmt.Errorf("resilience: translate: %w: %w", translate.ErrUnavailable, err)
	}
}
