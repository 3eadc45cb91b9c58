// Package app wires the jurubahasa subsystems into a running application.
//
// The App struct owns the full lifecycle: New builds the display sinks, the
// optional headless session and the HTTP surface, Run serves until the
// context is cancelled, and Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithMetricsHandler,
// WithKafkaWriters, etc.). Subsystems that are not configured are simply not
// built.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/jurubahasa/internal/config"
	"github.com/MrWong99/jurubahasa/internal/discord"
	"github.com/MrWong99/jurubahasa/internal/display"
	"github.com/MrWong99/jurubahasa/internal/display/kafka"
	"github.com/MrWong99/jurubahasa/internal/gateway"
	"github.com/MrWong99/jurubahasa/internal/health"
	"github.com/MrWong99/jurubahasa/internal/observe"
	"github.com/MrWong99/jurubahasa/internal/reconcile"
	"github.com/MrWong99/jurubahasa/internal/session"
	"github.com/MrWong99/jurubahasa/pkg/provider/stt"
	"github.com/MrWong99/jurubahasa/pkg/provider/translate"
)

// HeadlessID is the session ID of the server-side session.
const HeadlessID = "headless"

const shutdownGrace = 10 * time.Second

// Runner is a background task that runs until ctx is cancelled.
type Runner interface {
	Run(ctx context.Context) error
}

// Providers holds the provider values built by main.go via the config
// registry.
type Providers struct {
	// Translator serves every session. Required.
	Translator translate.Translator

	// STT is the server-side recognizer of the headless session. Nil when
	// the browser is the only recognizer.
	STT stt.Provider

	// Audio feeds STT. Run alongside the headless session when set.
	Audio Runner
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers
	headless  bool

	metrics        *observe.Metrics
	metricsHandler http.Handler
	levelVar       *slog.LevelVar
	sessionCfg     atomic.Pointer[config.SessionConfig]

	// Subsystems, initialised in New and torn down in Shutdown.
	board     *display.Board
	session   *session.Controller
	bot       *discord.Bot
	dashboard *discord.Dashboard
	kafka     *kafka.Sink
	gateway   *gateway.Server
	health    *health.Handler
	handler   http.Handler
	server    *http.Server

	kafkaWriters [2]kafka.MessageWriter
	runners      []Runner

	// closers are called in order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithHeadless runs the server-side session fed by Providers.STT.
func WithHeadless(on bool) Option {
	return func(a *App) { a.headless = on }
}

// WithMetrics replaces the default metrics instruments.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler replaces the Prometheus handler served on /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithLevelVar lets configuration reloads change the log level.
func WithLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.levelVar = v }
}

// WithKafkaWriters replaces the Kafka writers of the display sink.
func WithKafkaWriters(live, final kafka.MessageWriter) Option {
	return func(a *App) { a.kafkaWriters = [2]kafka.MessageWriter{live, final} }
}

// WithRunner adds a background task to Run, such as the config watcher.
func WithRunner(r Runner) Option {
	return func(a *App) { a.runners = append(a.runners, r) }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App from cfg and providers. Connections to Discord are made
// here; everything else starts in Run.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.Translator == nil {
		return nil, errors.New("app: a translator is required")
	}
	a := &App{cfg: cfg, providers: providers}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.metricsHandler == nil {
		a.metricsHandler = promhttp.Handler()
	}
	sc := cfg.Session
	a.sessionCfg.Store(&sc)

	if a.headless {
		if err := a.initHeadless(ctx); err != nil {
			a.closeAll()
			return nil, err
		}
	}
	if err := a.initHTTP(); err != nil {
		a.closeAll()
		return nil, err
	}
	return a, nil
}

func (a *App) initHeadless(ctx context.Context) error {
	if a.providers.STT == nil {
		return fmt.Errorf("app: headless session needs a server-side recognizer, got stt %q", a.cfg.Providers.STT.Name)
	}
	scfg, err := a.cfg.Session.Build("")
	if err != nil {
		return fmt.Errorf("app: session config: %w", err)
	}

	a.board = display.NewBoard()
	sinks := []display.Sink{a.board}
	if a.cfg.Display.Console {
		sinks = append(sinks, display.NewConsole(slog.Default()))
	}
	if kc := a.cfg.Display.Kafka; kc != nil {
		var kopts []kafka.Option
		if a.kafkaWriters[0] != nil {
			kopts = append(kopts, kafka.WithWriters(a.kafkaWriters[0], a.kafkaWriters[1]))
		}
		kopts = append(kopts, kafka.WithMetrics(a.metrics))
		sink, err := kafka.New(kafka.Config{
			Brokers:    kc.Brokers,
			LiveTopic:  kc.LiveTopic,
			FinalTopic: kc.FinalTopic,
			Session:    HeadlessID,
			QueueSize:  kc.QueueSize,
		}, kopts...)
		if err != nil {
			return err
		}
		a.kafka = sink
		a.closers = append(a.closers, sink.Close)
		sinks = append(sinks, sink)
	}
	if dc := a.cfg.Display.Discord; dc != nil {
		bot, err := discord.New(ctx, discord.Config{
			Token:          dc.Token,
			GuildID:        dc.GuildID,
			ChannelID:      dc.ChannelID,
			OperatorRoleID: dc.OperatorRoleID,
		})
		if err != nil {
			return err
		}
		a.bot = bot
		a.dashboard = bot.NewDashboard()
		// The dashboard pushes its last state before the bot disconnects.
		a.closers = append(a.closers, func() error { a.dashboard.Stop(); return nil }, bot.Close)
		sinks = append(sinks, a.dashboard)
	}

	ctrl, err := session.New(scfg, a.providers.STT, a.providers.Translator, display.NewMulti(sinks...),
		session.WithID(HeadlessID),
		session.WithMetrics(a.metrics),
	)
	if err != nil {
		return fmt.Errorf("app: headless session: %w", err)
	}
	a.session = ctrl
	// The session goes first so its last display updates still reach the
	// sinks closed after it.
	a.closers = append([]func() error{ctrl.Close}, a.closers...)

	if a.bot != nil {
		discord.NewTranslateCommands(ctrl, a.bot.Permissions()).Register(a.bot.Router())
	}
	slog.Info("app: headless session ready",
		"mode", scfg.Policy.Mode,
		"sinks", len(sinks),
		"source", scfg.Policy.Source,
		"target", scfg.Policy.Target,
	)
	return nil
}

func (a *App) initHTTP() error {
	gcfg := gateway.Config{
		NewSession:     a.newBrowserSession,
		OriginPatterns: a.cfg.Server.AllowedOrigins,
	}
	var checkers []health.Checker
	if a.session != nil {
		gcfg.Board = a.board
		gcfg.Control = a.session
		checkers = append(checkers, health.SessionChecker(HeadlessID, a.session))
	}
	gw, err := gateway.New(gcfg)
	if err != nil {
		return err
	}
	a.gateway = gw
	a.health = health.New(checkers...)

	mux := http.NewServeMux()
	gw.Register(mux)
	a.health.Register(mux)
	if a.cfg.Observe.MetricsEnabled() {
		mux.Handle("GET /metrics", a.metricsHandler)
	}
	a.handler = observe.Middleware(a.metrics)(mux)
	a.server = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return nil
}

// newBrowserSession builds the session of one /session websocket from the
// most recently loaded session configuration.
func (a *App) newBrowserSession(mode reconcile.Mode, p stt.Provider, sink display.Sink) (*session.Controller, error) {
	scfg, err := a.sessionCfg.Load().Build(mode)
	if err != nil {
		return nil, fmt.Errorf("app: session config: %w", err)
	}
	return session.New(scfg, p, a.providers.Translator, sink, session.WithMetrics(a.metrics))
}

// Handler returns the HTTP handler with every route and middleware.
func (a *App) Handler() http.Handler { return a.handler }

// Board returns the headless session's board, or nil.
func (a *App) Board() *display.Board { return a.board }

// Session returns the headless session, or nil.
func (a *App) Session() *session.Controller { return a.session }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP and drives the headless session, the audio input, the
// Discord bot and every extra runner until ctx is cancelled or one of them
// fails. The HTTP server is shut down gracefully before Run returns.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.server.Addr)
	if err != nil {
		return fmt.Errorf("app: listen %s: %w", a.server.Addr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.server.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			err = a.server.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: http server: %w", err)
	})
	g.Go(func() error {
		<-gctx.Done()
		a.health.Drain()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return a.server.Shutdown(sctx)
	})

	if a.session != nil {
		g.Go(func() error {
			if err := a.session.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			if err := a.session.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Warn("app: headless session did not start", "err", err)
			}
			return nil
		})
	}
	if a.providers.Audio != nil && a.session != nil {
		g.Go(func() error { return runUntilCancel(gctx, "audio", a.providers.Audio) })
	}
	if a.dashboard != nil {
		a.dashboard.Start(gctx)
	}
	if a.bot != nil {
		g.Go(func() error { return runUntilCancel(gctx, "discord", a.bot) })
	}
	for _, r := range a.runners {
		g.Go(func() error { return runUntilCancel(gctx, "runner", r) })
	}

	slog.Info("app: serving", "addr", ln.Addr().String(), "headless", a.session != nil, "tls", a.cfg.Server.TLS != nil)
	return g.Wait()
}

func runUntilCancel(ctx context.Context, name string, r Runner) error {
	if err := r.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("app: %s: %w", name, err)
	}
	return nil
}

// ─── Reload ──────────────────────────────────────────────────────────────────

// ApplyConfig hot-applies what can change without a restart: the log level
// and the session tunables of sessions created from now on.
func (a *App) ApplyConfig(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.LogLevelChanged && a.levelVar != nil {
		a.levelVar.Set(ParseLevel(d.NewLogLevel))
		slog.Info("app: log level changed", "level", d.NewLogLevel)
	}
	if d.SessionChanged {
		sc := new.Session
		a.sessionCfg.Store(&sc)
		slog.Info("app: session settings reloaded; new sessions use them")
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("app: configuration changes need a restart", "sections", d.RestartRequired)
	}
}

// ParseLevel maps a config log level to slog.
func ParseLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("app: shutting down", "closers", len(a.closers))
		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("app: shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("app: closer error", "index", i, "err", err)
			}
		}
		slog.Info("app: shutdown complete")
	})
	return shutdownErr
}

func (a *App) closeAll() {
	for _, c := range a.closers {
		_ = c()
	}
}
