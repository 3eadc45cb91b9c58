// Package session runs one translation session: it owns a speech recognizer,
// keeps it alive by policy and feeds its results to a reconcile.Reconciler.
//
// A [Controller] has a single event loop ([Controller.Run]). Recognizer
// events, timer expiries, translation completions and user commands are all
// handled on that goroutine, so session state needs no locks. Public methods
// other than [Controller.State] post their work into the loop and wait for
// it.
//
// Lifecycle:
//
//	Idle ──Start──▶ Starting ──start event──▶ Listening
//	Listening ──end event, restart on──▶ Ended ──retry policy──▶ Starting
//	Listening ──hidden──▶ Paused ──visible──▶ Starting
//	any ──Stop / fatal error / retries exhausted──▶ Idle
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/jurubahasa/internal/display"
	"github.com/MrWong99/jurubahasa/internal/observe"
	"github.com/MrWong99/jurubahasa/internal/reconcile"
	"github.com/MrWong99/jurubahasa/internal/resilience"
	"github.com/MrWong99/jurubahasa/pkg/provider/stt"
	"github.com/MrWong99/jurubahasa/pkg/provider/translate"
)

// ErrClosed is returned by Controller methods once the event loop has exited.
var ErrClosed = errors.New("session: controller stopped")

// State is the lifecycle state of a Controller.
type State int32

const (
	StateIdle State = iota
	StateStarting
	StateListening
	StateEnded
	StatePaused
)

// String returns the lowercase name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateListening:
		return "listening"
	case StateEnded:
		return "ended"
	case StatePaused:
		return "paused"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Config configures a Controller.
type Config struct {
	// Policy drives the reconciler.
	Policy reconcile.Policy

	// Recognizer is the template passed to stt.Provider.NewRecognizer.
	// InterimResults is always enabled; Continuous follows Policy.Mode.
	Recognizer stt.Config

	// Restart is the schedule for restarting a recognizer that ended on its
	// own. Each failed start call consumes one delay; an accepted start
	// resets the schedule.
	Restart resilience.RetryPolicy

	// StartRetryDelay is the wait before starting again when Start found the
	// recognizer still busy.
	StartRetryDelay time.Duration

	// ResumeDelay is the wait before starting again when the session becomes
	// visible.
	ResumeDelay time.Duration

	// StartupHint, if set, is shown once when the loop starts.
	StartupHint string
}

// DefaultConfig returns the defaults for mode with an Indonesian recognizer.
func DefaultConfig(mode reconcile.Mode) Config {
	return Config{
		Policy:          reconcile.DefaultPolicy(mode),
		Recognizer:      stt.Config{Language: "id-ID", SampleRate: 16000, Channels: 1},
		Restart:         resilience.DefaultRestartPolicy(),
		StartRetryDelay: 300 * time.Millisecond,
		ResumeDelay:     500 * time.Millisecond,
	}
}

// Validate reports every problem with cfg.
func (cfg Config) Validate() error {
	var errs []error
	if err := cfg.Policy.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := cfg.Restart.Validate(); err != nil {
		errs = append(errs, err)
	}
	if cfg.Recognizer.Language == "" {
		errs = append(errs, errors.New("session: recognizer language is required"))
	}
	if cfg.StartRetryDelay < 0 || cfg.ResumeDelay < 0 {
		errs = append(errs, errors.New("session: delays must not be negative"))
	}
	return errors.Join(errs...)
}

// Info is a point-in-time view of a Controller.
type Info struct {
	ID             string
	State          State
	RestartEnabled bool
	Paused         bool
	Text           reconcile.State
	Pending        reconcile.Pending
}

// Option configures a Controller.
type Option func(*Controller)

// WithID sets the session ID used in logs. Default: a process-unique ID.
func WithID(id string) Option {
	return func(c *Controller) { c.id = id }
}

// WithScheduler replaces the runtime-clock scheduler. The scheduler must run
// callbacks on the event loop.
func WithScheduler(s reconcile.Scheduler) Option {
	return func(c *Controller) { c.sched = s }
}

// WithDispatcher replaces the translator-backed dispatcher. The dispatcher
// must deliver completions on the event loop.
func WithDispatcher(d reconcile.Dispatcher) Option {
	return func(c *Controller) { c.disp = d }
}

// WithMetrics sets the metrics sink. Default: observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithClock overrides the clock used to timestamp final cards.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

var sessionSeq atomic.Uint64

// Controller owns one recognizer and one reconciler.
type Controller struct {
	id       string
	cfg      Config
	provider stt.Provider
	sink     display.Sink
	metrics  *observe.Metrics
	sched    reconcile.Scheduler
	disp     reconcile.Dispatcher
	now      func() time.Time
	rec      *reconcile.Reconciler

	inbox     chan func()
	done      chan struct{}
	running   atomic.Bool
	state     atomic.Int32
	closeOnce sync.Once

	// Owned by the event loop.
	ctx         context.Context
	recognizer  stt.Recognizer
	events      <-chan stt.Event
	restart     bool
	paused      bool
	unavailable bool
	attempt     int
	starter     reconcile.Slot
}

// New creates a Controller. translator may be nil when WithDispatcher is
// given.
func New(cfg Config, provider stt.Provider, translator translate.Translator, sink display.Sink, opts ...Option) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if provider == nil || sink == nil {
		return nil, errors.New("session: recognizer provider and sink are required")
	}
	c := &Controller{
		cfg:      cfg,
		provider: provider,
		sink:     sink,
		now:      time.Now,
		inbox:    make(chan func(), 64),
		done:     make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	if c.id == "" {
		c.id = fmt.Sprintf("s%d", sessionSeq.Add(1))
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	if c.sched == nil {
		c.sched = reconcile.LoopScheduler{Post: c.post}
	}
	if c.disp == nil {
		if translator == nil {
			return nil, errors.New("session: translator is required")
		}
		c.disp = &reconcile.TranslatorDispatcher{Translator: translator, Post: c.post, Metrics: c.metrics}
	}
	rec, err := reconcile.New(cfg.Policy, c.sched, c.disp, sink,
		reconcile.WithMetrics(c.metrics),
		reconcile.WithClock(c.now),
		reconcile.WithLogger(slog.Default().With("session", c.id)),
	)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	c.rec = rec
	return c, nil
}

// ID returns the session ID.
func (c *Controller) ID() string { return c.id }

// State returns the current lifecycle state. Safe to call from any goroutine.
func (c *Controller) State() State { return State(c.state.Load()) }

// Done is closed when Run has returned.
func (c *Controller) Done() <-chan struct{} { return c.done }

// Run executes the event loop until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return errors.New("session: already running")
	}
	defer close(c.done)

	c.ctx = ctx
	c.metrics.ActiveSessions.Add(ctx, 1)
	defer c.metrics.ActiveSessions.Add(context.Background(), -1)

	slog.Info("session: running", "id", c.id, "mode", c.cfg.Policy.Mode, "language", c.cfg.Recognizer.Language)
	c.sink.ShowStatus(display.Status{Kind: display.StatusIdle, Text: textIdle})
	if c.cfg.StartupHint != "" {
		c.notify(display.LevelInfo, c.cfg.StartupHint, c.cfg.Policy.NotificationTTL)
	}

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			slog.Info("session: stopped", "id", c.id)
			return nil
		case f := <-c.inbox:
			f()
		case ev, ok := <-c.events:
			if !ok {
				c.recognizerGone()
				continue
			}
			c.handleEvent(ev)
		}
	}
}

// Close releases the recognizer. Call it after Run has returned.
func (c *Controller) Close() error {
	var err error
	c.closeOnce.Do(func() {
		if c.recognizer != nil {
			err = c.recognizer.Close()
			c.recognizer = nil
			c.events = nil
		}
	})
	return err
}

// Start begins listening: it enables automatic restarts, clears reconciler
// state and starts the recognizer. An unavailable capability is reported
// once and leaves the session Idle.
func (c *Controller) Start(ctx context.Context) error {
	return c.call(ctx, c.start)
}

// Stop ends the session: restarts are disabled, the recognizer is aborted,
// buffered text is translated once and the live card is removed.
func (c *Controller) Stop(ctx context.Context) error {
	return c.call(ctx, func() error {
		c.stop()
		return nil
	})
}

// SetVisible pauses the session while it is hidden and resumes it when it
// becomes visible again.
func (c *Controller) SetVisible(ctx context.Context, visible bool) error {
	return c.call(ctx, func() error {
		c.setVisible(visible)
		return nil
	})
}

// Inspect returns a snapshot of the session.
func (c *Controller) Inspect(ctx context.Context) (Info, error) {
	var info Info
	err := c.call(ctx, func() error {
		info = Info{
			ID:             c.id,
			State:          c.State(),
			RestartEnabled: c.restart,
			Paused:         c.paused,
			Text:           c.rec.State(),
			Pending:        c.rec.Pending(),
		}
		return nil
	})
	return info, err
}

// ---- loop plumbing ----

// post queues f on the event loop. It drops f once the loop has exited.
func (c *Controller) post(f func()) {
	select {
	case c.inbox <- f:
	case <-c.done:
	}
}

// call runs f on the event loop and waits for its result.
func (c *Controller) call(ctx context.Context, f func() error) error {
	reply := make(chan error, 1)
	select {
	case c.inbox <- func() { reply <- f() }:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrClosed
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrClosed
	}
}

func (c *Controller) setState(s State) {
	if prev := State(c.state.Swap(int32(s))); prev != s {
		slog.Debug("session: state changed", "id", c.id, "from", prev, "to", s)
	}
}

func (c *Controller) notify(level display.Level, text string, ttl time.Duration) {
	c.sink.ShowNotification(display.Notification{Level: level, Text: text, TTL: ttl})
}

func (c *Controller) status(kind display.StatusKind, text string) {
	c.sink.ShowStatus(display.Status{Kind: kind, Text: text})
}

// ---- commands ----

func (c *Controller) start() error {
	if c.unavailable {
		return fmt.Errorf("session: start: %w", stt.ErrUnavailable)
	}
	if err := c.ensureRecognizer(); err != nil {
		return err
	}
	c.restart = true
	c.paused = false
	c.attempt = 0
	c.starter.Cancel()
	c.rec.Reset()
	c.setState(StateStarting)

	if err := c.recognizer.Start(c.ctx); err != nil {
		slog.Info("session: recognizer busy, restarting", "id", c.id, "err", err)
		if err := c.recognizer.Abort(); err != nil {
			slog.Debug("session: abort failed", "id", c.id, "err", err)
		}
		c.starter.Arm(c.sched, c.cfg.StartRetryDelay, func() {
			if !c.restart {
				return
			}
			if err := c.startRecognizer(); err != nil {
				slog.Warn("session: start retry failed", "id", c.id, "err", err)
				c.giveUp()
			}
		})
	}
	return nil
}

func (c *Controller) stop() {
	c.restart = false
	c.paused = false
	c.starter.Cancel()
	c.abortRecognizer()
	c.rec.Stop()
	c.setState(StateIdle)
	c.status(display.StatusStopped, textStopped)
}

func (c *Controller) setVisible(visible bool) {
	if !visible {
		if !c.restart || c.paused {
			return
		}
		c.paused = true
		c.starter.Cancel()
		c.abortRecognizer()
		c.setState(StatePaused)
		return
	}
	if !c.paused {
		return
	}
	c.paused = false
	c.setState(StateStarting)
	c.starter.Arm(c.sched, c.cfg.ResumeDelay, func() {
		if !c.restart || c.paused {
			return
		}
		if err := c.startRecognizer(); err != nil {
			slog.Debug("session: resume start failed", "id", c.id, "err", err)
		}
	})
}

// giveUp stops the session after a start could not be recovered.
func (c *Controller) giveUp() {
	c.restart = false
	c.starter.Cancel()
	c.rec.Stop()
	c.setState(StateIdle)
	c.status(display.StatusStopped, textStopped)
}

func (c *Controller) shutdown() {
	c.restart = false
	c.starter.Cancel()
	c.rec.Reset()
	c.abortRecognizer()
	c.setState(StateIdle)
}

// ---- recognizer ----

func (c *Controller) ensureRecognizer() error {
	if c.recognizer != nil {
		return nil
	}
	rcfg := c.cfg.Recognizer
	rcfg.InterimResults = true
	rcfg.Continuous = c.cfg.Policy.Mode == reconcile.ModeContinuous

	r, err := c.provider.NewRecognizer(rcfg)
	if err != nil {
		if errors.Is(err, stt.ErrUnavailable) {
			c.unavailable = true
			c.metrics.RecordRecognizerError(c.ctx, "unavailable")
			c.notify(display.LevelError, textUnavailable, 0)
			slog.Warn("session: speech recognition unavailable", "id", c.id, "err", err)
		}
		return fmt.Errorf("session: create recognizer: %w", err)
	}
	c.recognizer = r
	c.events = r.Events()
	return nil
}

func (c *Controller) startRecognizer() error {
	if err := c.ensureRecognizer(); err != nil {
		return err
	}
	c.setState(StateStarting)
	if err := c.recognizer.Start(c.ctx); err != nil {
		return fmt.Errorf("session: start recognizer: %w", err)
	}
	return nil
}

func (c *Controller) abortRecognizer() {
	if c.recognizer == nil {
		return
	}
	if err := c.recognizer.Abort(); err != nil {
		slog.Debug("session: abort failed", "id", c.id, "err", err)
	}
}

// recognizerGone handles a recognizer whose event stream closed. A new one
// is created on the next start.
func (c *Controller) recognizerGone() {
	slog.Warn("session: recognizer closed its event stream", "id", c.id)
	c.recognizer = nil
	c.events = nil
	c.handleEnd()
}

// ---- events ----

func (c *Controller) handleEvent(ev stt.Event) {
	switch ev.Kind {
	case stt.EventStart:
		c.attempt = 0
		if c.paused {
			return
		}
		c.setState(StateListening)
		c.status(display.StatusListening, textListening)
	case stt.EventResult:
		if c.State() == StateIdle {
			slog.Debug("session: result after stop ignored", "id", c.id)
			return
		}
		c.rec.HandleResults(ev.ResultIndex, ev.Results)
	case stt.EventError:
		c.handleError(ev.Err)
	case stt.EventEnd:
		c.handleEnd()
	}
}

func (c *Controller) handleError(e *stt.Error) {
	if e == nil {
		return
	}
	class := Classify(e.Code)
	c.metrics.RecordRecognizerError(c.ctx, string(e.Code))

	switch class {
	case ClassIgnored:
		slog.Debug("session: recognizer error ignored", "id", c.id, "code", e.Code)
	case ClassFatal:
		slog.Warn("session: recognizer not permitted", "id", c.id, "code", e.Code, "message", e.Message)
		c.restart = false
		c.starter.Cancel()
		c.status(display.StatusError, textPermissionStatus)
		c.notify(display.LevelError, textPermissionHelp, 0)
	case ClassHint:
		slog.Info("session: no audio input", "id", c.id, "message", e.Message)
		c.notify(display.LevelInfo, textAudioCapture, c.cfg.Policy.NotificationTTL)
	case ClassTransient:
		slog.Warn("session: recognizer network error", "id", c.id, "message", e.Message)
		c.status(display.StatusError, textNetworkStatus)
		c.notify(display.LevelWarning, textNetworkWarning, c.cfg.Policy.NotificationTTL)
	default:
		slog.Warn("session: recognizer error", "id", c.id, "code", e.Code, "message", e.Message)
		c.notify(display.LevelWarning, warningText(e), c.cfg.Policy.NotificationTTL)
	}
}

func (c *Controller) handleEnd() {
	switch {
	case c.restart && c.paused:
		c.setState(StatePaused)
	case c.restart:
		c.setState(StateEnded)
		c.scheduleRestart()
	default:
		c.rec.Flush()
		c.setState(StateIdle)
	}
}

// scheduleRestart arms the next restart attempt or gives up when the retry
// policy is exhausted.
func (c *Controller) scheduleRestart() {
	delay, ok := c.cfg.Restart.Delay(c.attempt)
	if !ok {
		slog.Warn("session: restart attempts exhausted", "id", c.id, "attempts", c.attempt)
		c.giveUp()
		return
	}
	c.attempt++
	c.starter.Arm(c.sched, delay, func() {
		if !c.restart || c.paused {
			return
		}
		c.metrics.RecordRestart(c.ctx)
		if err := c.startRecognizer(); err != nil {
			slog.Debug("session: restart failed", "id", c.id, "attempt", c.attempt, "err", err)
			c.scheduleRestart()
			return
		}
		c.attempt = 0
	})
}
