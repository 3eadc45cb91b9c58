package reconcile

import (
	"context"
	"time"

	"github.com/MrWong99/jurubahasa/internal/observe"
	"github.com/MrWong99/jurubahasa/pkg/provider/translate"
)

// Intent says what a translation result will be used for.
type Intent int

const (
	// IntentPreview results replace the live card.
	IntentPreview Intent = iota
	// IntentFinal results become final cards.
	IntentFinal
)

// String returns "preview" or "final".
func (i Intent) String() string {
	if i == IntentFinal {
		return "final"
	}
	return "preview"
}

// Request is one translation call issued by a Reconciler.
type Request struct {
	translate.Request

	Intent Intent

	// Seq increases with every request of a Reconciler.
	Seq uint64
}

// Outcome is the resolution of a Request.
type Outcome struct {
	Text     string
	Provider string
	Err      error
}

// Dispatcher performs translation calls. done must be invoked exactly once,
// on the reconciler's goroutine.
type Dispatcher interface {
	Dispatch(req Request, done func(Outcome))
}

// TranslatorDispatcher runs each request on its own goroutine against a
// Translator and posts the outcome back through Post. Calls are never
// cancelled; stale results are discarded by the Reconciler.
type TranslatorDispatcher struct {
	Translator translate.Translator

	// Post runs a function on the reconciler's goroutine.
	Post func(func())

	// Timeout bounds each call. Zero means 10 seconds.
	Timeout time.Duration

	// Metrics is optional.
	Metrics *observe.Metrics
}

// Dispatch implements Dispatcher.
func (d *TranslatorDispatcher) Dispatch(req Request, done func(Outcome)) {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		ctx, span := observe.StartTranslateSpan(ctx, req.Intent.String(), req.Source, req.Target, len(req.Text))
		start := time.Now()
		res, err := d.Translator.Translate(ctx, req.Request)
		elapsed := time.Since(start)

		status := "ok"
		if err != nil {
			status = "error"
		}
		if res.Provider != "" {
			span.SetAttributes(observe.AttrProvider.String(res.Provider))
		}
		observe.EndSpan(span, err, translate.ErrNoResult)

		if d.Metrics != nil {
			provider := res.Provider
			if provider == "" {
				provider = "unknown"
			}
			d.Metrics.RecordTranslation(ctx, provider, req.Intent.String(), elapsed.Seconds())
			d.Metrics.RecordProviderRequest(ctx, provider, "translate", status)
		}
		observe.Logger(ctx).Debug("reconcile: translation resolved",
			"seq", req.Seq,
			"intent", req.Intent.String(),
			"provider", res.Provider,
			"elapsed", elapsed,
			"err", err,
		)

		d.Post(func() {
			done(Outcome{Text: res.Text, Provider: res.Provider, Err: err})
		})
	}()
}

var _ Dispatcher = (*TranslatorDispatcher)(nil)
