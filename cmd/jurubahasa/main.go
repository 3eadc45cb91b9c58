// Command jurubahasa serves live speech translation: browsers connect over
// websockets and act as the recognizer, and an optional headless session
// translates a server-side audio stream into Discord, Kafka and /watch
// viewers.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrWong99/jurubahasa/internal/app"
	"github.com/MrWong99/jurubahasa/internal/config"
	"github.com/MrWong99/jurubahasa/internal/observe"
	"github.com/MrWong99/jurubahasa/pkg/audio"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	headless := flag.Bool("headless", false, "also run the server-side session fed by audio.input")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	var level slog.LevelVar
	var application *app.App
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		if application != nil {
			application.ApplyConfig(old, new)
		}
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "jurubahasa: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "jurubahasa: %v\n", err)
		}
		return 1
	}
	cfg := watcher.Current()

	// ── Logger ────────────────────────────────────────────────────────────────
	level.Set(app.ParseLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &level})))

	slog.Info("jurubahasa starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
		"headless", *headless,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: cfg.Observe.ServiceName,
		Languages:   languagePair(cfg.Session),
		SampleRatio: cfg.Observe.TraceSampleRatio,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = otelShutdown(sctx)
	}()

	// ── Providers ─────────────────────────────────────────────────────────────
	var src *audio.ReaderSource
	if *headless {
		var closer io.Closer
		src, closer, err = openAudio(cfg.Audio)
		if err != nil {
			slog.Error("failed to open audio input", "err", err)
			return 1
		}
		if closer != nil {
			defer closer.Close()
		}
	}
	var source audio.Source
	if src != nil {
		source = src
	}
	reg := config.NewRegistry()
	registerBuiltinProviders(reg, source, cfg.Providers.LLM)

	providers, err := buildProviders(cfg, reg, src)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	printStartupSummary(cfg, *headless)

	application, err = app.New(ctx, cfg, providers,
		app.WithHeadless(*headless),
		app.WithLevelVar(&level),
		app.WithRunner(watcher),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("server ready, press Ctrl+C to shut down")
	runErr := application.Run(ctx)
	if runErr != nil {
		slog.Error("run error", "err", runErr)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	if runErr != nil {
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, headless bool) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║      jurubahasa · startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	mode := cfg.Session.Mode
	if mode == "" {
		mode = "continuous"
	}
	printRow("Mode", mode)
	printRow("STT", providerLabel(cfg.Providers.STT))
	for i, e := range cfg.Providers.Translate {
		label := "Translate"
		if i > 0 {
			label = "  fallback"
		}
		printRow(label, providerLabel(e))
	}
	if cfg.Providers.LLM.Name != "" {
		printRow("LLM", providerLabel(cfg.Providers.LLM))
	}
	printRow("Headless", onOff(headless))
	printRow("Discord", onOff(headless && cfg.Display.Discord != nil))
	printRow("Kafka", onOff(headless && cfg.Display.Kafka != nil))
	printRow("Metrics", onOff(cfg.Observe.MetricsEnabled()))
	printRow("Listen addr", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

// languagePair renders the configured source and target as "id-en".
func languagePair(s config.SessionConfig) string {
	src, tgt := s.SourceLanguage, s.TargetLanguage
	if src == "" {
		src = "id"
	}
	if tgt == "" {
		tgt = "en"
	}
	return src + "-" + tgt
}

func providerLabel(e config.ProviderEntry) string {
	if e.Model == "" {
		return e.Name
	}
	return e.Name + " / " + e.Model
}

func onOff(b bool) string {
	if b {
		return "enabled"
	}
	return "(disabled)"
}

func printRow(kind, value string) {
	if value == "" {
		value = "(not configured)"
	}
	if r := []rune(value); len(r) > 19 {
		value = string(r[:18]) + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}
