package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MrWong99/jurubahasa/internal/display"
	"github.com/MrWong99/jurubahasa/internal/observe"
	"github.com/MrWong99/jurubahasa/pkg/provider/stt"
	"github.com/MrWong99/jurubahasa/pkg/provider/translate"
)

// State is the text state of a Reconciler.
type State struct {
	// Accumulated holds final fragments not yet committed (fragmented mode).
	Accumulated string

	// LastFinalized is the most recently committed text.
	LastFinalized string

	// History holds recently committed texts, oldest first.
	History []string
}

// Pending describes outstanding work.
type Pending struct {
	PreviewScheduled bool
	SilenceScheduled bool

	// InFlight counts dispatched translations that have not resolved yet.
	InFlight int
}

// Idle reports whether nothing is outstanding.
func (p Pending) Idle() bool {
	return !p.PreviewScheduled && !p.SilenceScheduled && p.InFlight == 0
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithMetrics sets the metrics sink. Default: observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Reconciler) { r.metrics = m }
}

// WithClock overrides the clock used to timestamp final cards.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Reconciler) { r.log = l }
}

// Reconciler applies the interim/final policy of one session.
//
// All methods must be called from a single goroutine, the same one that
// runs scheduler callbacks and dispatcher completions.
type Reconciler struct {
	policy  Policy
	sched   Scheduler
	disp    Dispatcher
	sink    display.Sink
	metrics *observe.Metrics
	now     func() time.Time
	log     *slog.Logger

	dedup       *Deduper
	accumulated string

	preview Slot
	silence Slot

	// seq numbers every request. Previews are applied only when newer than
	// both previewShown and previewFloor.
	seq          uint64
	previewShown uint64
	previewFloor uint64

	// Finals are displayed in dispatch order: finalIssued numbers them,
	// finalNext is the next one due, finalDone parks early arrivals.
	finalIssued uint64
	finalNext   uint64
	finalDone   map[uint64]finalResult

	inFlight       int
	outageNotified bool
	cardID         uint64
}

type finalResult struct {
	req     Request
	outcome Outcome
}

// New returns a Reconciler. All collaborators are required.
func New(policy Policy, sched Scheduler, disp Dispatcher, sink display.Sink, opts ...Option) (*Reconciler, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if sched == nil || disp == nil || sink == nil {
		return nil, errors.New("reconcile: scheduler, dispatcher and sink are required")
	}
	r := &Reconciler{
		policy:    policy,
		sched:     sched,
		disp:      disp,
		sink:      sink,
		now:       time.Now,
		log:       slog.Default(),
		dedup:     NewDeduper(policy.Dedup),
		finalDone: make(map[uint64]finalResult),
	}
	for _, o := range opts {
		o(r)
	}
	if r.metrics == nil {
		r.metrics = observe.DefaultMetrics()
	}
	return r, nil
}

// Policy returns the policy r was built with.
func (r *Reconciler) Policy() Policy { return r.policy }

// State returns a copy of the text state.
func (r *Reconciler) State() State {
	return State{
		Accumulated:   r.accumulated,
		LastFinalized: r.dedup.Last(),
		History:       r.dedup.History(),
	}
}

// Pending reports outstanding timers and translations.
func (r *Reconciler) Pending() Pending {
	return Pending{
		PreviewScheduled: r.preview.Pending(),
		SilenceScheduled: r.silence.Pending(),
		InFlight:         r.inFlight,
	}
}

// Reset clears accumulated text and duplicate memory, cancels both timers and
// invalidates outstanding previews. Translations already in flight still
// resolve; finals among them are still displayed.
func (r *Reconciler) Reset() {
	r.cancelTimers()
	r.invalidatePreviews()
	r.accumulated = ""
	r.dedup.Reset()
}

// HandleResults processes one recognition batch. Only results from index
// onward are considered. Final text is handled before interim text.
func (r *Reconciler) HandleResults(index int, results []stt.Result) {
	interim, final := partition(index, results)
	if final != "" {
		if r.policy.Mode == ModeFragmented {
			r.handleFragment(final)
		} else {
			r.handleFinal(final)
		}
	}
	if interim != "" {
		r.handleInterim(interim)
	}
}

// Flush commits accumulated text as one final translation. The live card is
// removed even when there is nothing to commit.
func (r *Reconciler) Flush() {
	r.cancelTimers()
	r.invalidatePreviews()
	text := r.accumulated
	r.accumulated = ""
	r.sink.RemoveLiveCard()
	if text == "" {
		return
	}
	r.commit(text)
}

// Stop flushes like Flush and then discards the duplicate memory. Flush
// alone keeps it across recognizer restarts.
func (r *Reconciler) Stop() {
	r.Flush()
	r.dedup.Reset()
}

// ---- result paths ----

func (r *Reconciler) handleInterim(text string) {
	shown := text
	if r.policy.Mode == ModeFragmented && r.accumulated != "" {
		shown = r.accumulated + " " + text
	}
	r.sink.ShowStatus(display.Status{Kind: display.StatusInterim, Text: shown})
	r.preview.Arm(r.sched, r.policy.PreviewDelay, func() {
		r.dispatchPreview(shown)
	})
}

// handleFinal commits a final result immediately (continuous mode).
func (r *Reconciler) handleFinal(text string) {
	r.preview.Cancel()
	r.invalidatePreviews()
	r.sink.RemoveLiveCard()
	r.commit(text)
}

// handleFragment accumulates a final fragment (fragmented mode).
func (r *Reconciler) handleFragment(text string) {
	r.preview.Cancel()
	r.invalidatePreviews()

	switch {
	case r.accumulated == "":
		r.accumulated = text
	case !strings.HasSuffix(r.accumulated, text):
		r.accumulated += " " + text
	}
	r.sink.ShowStatus(display.Status{Kind: display.StatusInterim, Text: r.accumulated})

	r.silence.Arm(r.sched, r.policy.SilenceTimeout, r.Flush)
	if r.policy.FragmentPreview {
		r.preview.Arm(r.sched, r.policy.PreviewDelay, func() {
			if r.accumulated != "" {
				r.dispatchPreview(r.accumulated)
			}
		})
	}
}

// commit applies the duplicate guard and dispatches a final translation.
func (r *Reconciler) commit(text string) {
	if r.dedup.IsDuplicate(text) {
		r.metrics.RecordSuppressed(context.Background(), string(r.policy.Dedup.Rule))
		r.log.Debug("reconcile: duplicate final suppressed", "text", text, "rule", r.policy.Dedup.Rule)
		return
	}
	r.dedup.Remember(text)
	if r.policy.Mode == ModeContinuous {
		r.sink.ShowStatus(display.Status{Kind: display.StatusConfirmed, Text: text})
	}
	r.dispatchFinal(text)
}

// ---- dispatch ----

func (r *Reconciler) request(intent Intent, text string) Request {
	r.seq++
	return Request{
		Request: translate.Request{Text: text, Source: r.policy.Source, Target: r.policy.Target},
		Intent:  intent,
		Seq:     r.seq,
	}
}

func (r *Reconciler) dispatchPreview(text string) {
	req := r.request(IntentPreview, text)
	r.inFlight++
	r.metrics.RecordDispatched(context.Background(), IntentPreview.String())
	r.disp.Dispatch(req, func(o Outcome) {
		r.inFlight--
		r.previewResolved(req, o)
	})
}

func (r *Reconciler) dispatchFinal(text string) {
	req := r.request(IntentFinal, text)
	order := r.finalIssued
	r.finalIssued++
	r.inFlight++
	r.metrics.RecordDispatched(context.Background(), IntentFinal.String())
	r.disp.Dispatch(req, func(o Outcome) {
		r.inFlight--
		r.finalDone[order] = finalResult{req: req, outcome: o}
		r.drainFinals()
	})
}

func (r *Reconciler) previewResolved(req Request, o Outcome) {
	if !r.usable(req, o) {
		return
	}
	if req.Seq <= r.previewShown || req.Seq <= r.previewFloor {
		r.metrics.RecordDropped(context.Background(), IntentPreview.String(), "stale")
		r.logDropped(req, "stale", nil)
		return
	}
	r.previewShown = req.Seq
	r.sink.UpsertLiveCard(display.LiveCard{Translated: strings.TrimSpace(o.Text), Original: req.Text})
}

// drainFinals appends every final that is due, in dispatch order.
func (r *Reconciler) drainFinals() {
	for {
		res, ok := r.finalDone[r.finalNext]
		if !ok {
			return
		}
		delete(r.finalDone, r.finalNext)
		r.finalNext++

		if !r.usable(res.req, res.outcome) {
			continue
		}
		r.cardID++
		r.sink.AppendFinalCard(display.FinalCard{
			ID:         r.cardID,
			Translated: strings.TrimSpace(res.outcome.Text),
			Original:   res.req.Text,
			Provider:   res.outcome.Provider,
			Timestamp:  r.now(),
		})
	}
}

// usable drops failed and empty outcomes and tracks translator outages.
func (r *Reconciler) usable(req Request, o Outcome) bool {
	text := strings.TrimSpace(o.Text)
	switch {
	case o.Err != nil && errors.Is(o.Err, translate.ErrUnavailable):
		r.dropped(req, "unavailable", o.Err)
		if !r.outageNotified {
			r.outageNotified = true
			r.sink.ShowNotification(display.Notification{
				Level: display.LevelWarning,
				Text:  "Translation service unavailable",
				TTL:   r.policy.NotificationTTL,
			})
		}
		return false
	case o.Err != nil && !errors.Is(o.Err, translate.ErrNoResult):
		r.dropped(req, "error", o.Err)
		return false
	case o.Err != nil || text == "":
		r.dropped(req, "empty", o.Err)
		return false
	}
	r.outageNotified = false
	return true
}

func (r *Reconciler) dropped(req Request, reason string, err error) {
	r.metrics.RecordDropped(context.Background(), req.Intent.String(), reason)
	r.logDropped(req, reason, err)
}

// ---- helpers ----

func (r *Reconciler) cancelTimers() {
	r.preview.Cancel()
	r.silence.Cancel()
}

// invalidatePreviews makes every preview issued so far stale.
func (r *Reconciler) invalidatePreviews() {
	r.previewFloor = r.seq
}

// partition splits the batch starting at index into interim and final text.
// Whitespace is collapsed and trimmed.
func partition(index int, results []stt.Result) (interim, final string) {
	if index < 0 {
		index = 0
	}
	var ib, fb []string
	for i := index; i < len(results); i++ {
		t := normalize(results[i].Transcript)
		if t == "" {
			continue
		}
		if results[i].IsFinal {
			fb = append(fb, t)
		} else {
			ib = append(ib, t)
		}
	}
	return strings.Join(ib, " "), strings.Join(fb, " ")
}

func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// String implements fmt.Stringer for debugging.
func (s State) String() string {
	return fmt.Sprintf("accumulated=%q last=%q history=%d", s.Accumulated, s.LastFinalized, len(s.History))
}

func (r *Reconciler) logDropped(req Request, reason string, err error) {
	r.log.Debug("reconcile: translation dropped",
		"seq", req.Seq,
		"intent", req.Intent.String(),
		"reason", reason,
		"err", err,
	)
}
