package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/jurubahasa/internal/app"
	"github.com/MrWong99/jurubahasa/internal/config"
	"github.com/MrWong99/jurubahasa/internal/resilience"
	"github.com/MrWong99/jurubahasa/pkg/audio"
	"github.com/MrWong99/jurubahasa/pkg/provider/llm"
	"github.com/MrWong99/jurubahasa/pkg/provider/llm/anyllm"
	"github.com/MrWong99/jurubahasa/pkg/provider/llm/openai"
	"github.com/MrWong99/jurubahasa/pkg/provider/stt"
	"github.com/MrWong99/jurubahasa/pkg/provider/stt/deepgram"
	"github.com/MrWong99/jurubahasa/pkg/provider/stt/whisper"
	"github.com/MrWong99/jurubahasa/pkg/provider/translate"
	"github.com/MrWong99/jurubahasa/pkg/provider/translate/google"
	llmtranslate "github.com/MrWong99/jurubahasa/pkg/provider/translate/llm"
)

// registerBuiltinProviders wires all built-in provider factories into reg.
// src feeds the server-side recognizers and may be nil; llmEntry is the
// model behind the "llm" translator.
func registerBuiltinProviders(reg *config.Registry, src audio.Source, llmEntry config.ProviderEntry) {
	// ── LLM ───────────────────────────────────────────────────────────────────
	// openai talks to the API directly so that it can honour an organisation
	// and a timeout; everything else goes through any-llm-go.
	reg.RegisterLLM("openai", func(e config.ProviderEntry) (llm.Provider, error) {
		var opts []openai.Option
		if e.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(e.BaseURL))
		}
		if org := e.Option("organization", ""); org != "" {
			opts = append(opts, openai.WithOrganization(org))
		}
		if d, err := time.ParseDuration(e.Option("timeout", "")); err == nil {
			opts = append(opts, openai.WithTimeout(d))
		}
		if n, err := strconv.Atoi(e.Option("max_retries", "")); err == nil {
			opts = append(opts, openai.WithMaxRetries(n))
		}
		return openai.New(e.APIKey, e.Model, opts...)
	})
	for _, name := range anyllm.Supported {
		if name == "openai" {
			continue
		}
		reg.RegisterLLM(name, func(e config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if e.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(e.APIKey))
			}
			if e.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(e.BaseURL))
			}
			return anyllm.New(name, e.Model, opts...)
		})
	}

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("deepgram", func(e config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if e.Model != "" {
			opts = append(opts, deepgram.WithModel(e.Model))
		}
		if e.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(e.BaseURL))
		}
		if src != nil {
			opts = append(opts, deepgram.WithSampleRate(src.Format().SampleRate))
		}
		if d, err := time.ParseDuration(e.Option("max_session", "")); err == nil {
			opts = append(opts, deepgram.WithMaxSession(d))
		}
		return deepgram.New(e.APIKey, src, opts...)
	})

	reg.RegisterSTT("whisper", func(e config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if e.Model != "" {
			opts = append(opts, whisper.WithModel(e.Model))
		}
		if src != nil {
			opts = append(opts, whisper.WithSampleRate(src.Format().SampleRate))
		}
		if ms, err := strconv.Atoi(e.Option("silence_threshold_ms", "")); err == nil {
			opts = append(opts, whisper.WithSilenceThresholdMs(ms))
		}
		if ms, err := strconv.Atoi(e.Option("max_buffer_ms", "")); err == nil {
			opts = append(opts, whisper.WithMaxBufferDurationMs(ms))
		}
		return whisper.New(e.BaseURL, src, opts...)
	})

	// ── Translate ─────────────────────────────────────────────────────────────

	reg.RegisterTranslate("google", func(e config.ProviderEntry) (translate.Translator, error) {
		var opts []google.Option
		if e.BaseURL != "" {
			opts = append(opts, google.WithEndpoint(e.BaseURL))
		}
		return google.New(opts...), nil
	})

	reg.RegisterTranslate("llm", func(e config.ProviderEntry) (translate.Translator, error) {
		p, err := reg.CreateLLM(llmEntry)
		if err != nil {
			return nil, err
		}
		opts := []llmtranslate.Option{llmtranslate.WithName("llm/" + llmEntry.Name)}
		if f, err := strconv.ParseFloat(e.Option("temperature", ""), 64); err == nil {
			opts = append(opts, llmtranslate.WithTemperature(f))
		}
		if n, err := strconv.Atoi(e.Option("max_tokens", "")); err == nil {
			opts = append(opts, llmtranslate.WithMaxTokens(n))
		}
		return llmtranslate.New(p, opts...)
	})

	for _, kind := range []string{"llm", "stt", "translate"} {
		slog.Debug("registered providers", "kind", kind, "names", reg.Names(kind))
	}
}

// openAudio returns the PCM source named by cfg.Input, or nil when none is
// configured. The returned closer releases the underlying file and is nil
// for stdin.
func openAudio(cfg config.AudioConfig) (*audio.ReaderSource, io.Closer, error) {
	if cfg.Input == "" {
		return nil, nil, nil
	}
	var (
		r      io.Reader
		closer io.Closer
	)
	if cfg.Input == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(cfg.Input)
		if err != nil {
			return nil, nil, fmt.Errorf("open audio input: %w", err)
		}
		r, closer = f, f
	}
	src, err := audio.NewReaderSource(r, audio.Format{SampleRate: cfg.SampleRate, Channels: cfg.Channels},
		audio.WithRealtime(cfg.Realtime),
	)
	if err != nil {
		if closer != nil {
			_ = closer.Close()
		}
		return nil, nil, err
	}
	return src, closer, nil
}

// buildProviders instantiates the providers named in cfg.
func buildProviders(cfg *config.Config, reg *config.Registry, src *audio.ReaderSource) (*app.Providers, error) {
	ps := &app.Providers{}

	translators, err := reg.CreateTranslators(cfg.Providers.Translate)
	if err != nil {
		return nil, err
	}
	fb := resilience.NewTranslateFallback(translators[0], cfg.Providers.Translate[0].Name, resilience.FallbackConfig{})
	for i, t := range translators[1:] {
		fb.AddFallback(cfg.Providers.Translate[i+1].Name, t)
	}
	ps.Translator = fb
	slog.Info("provider created", "kind", "translate", "chain", fb.Names())

	if name := cfg.Providers.STT.Name; name != "browser" {
		p, err := reg.CreateSTT(cfg.Providers.STT)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			return nil, fmt.Errorf("stt provider %q is not available in this build", name)
		}
		if err != nil {
			return nil, err
		}
		ps.STT = p
		slog.Info("provider created", "kind", "stt", "name", name)
	}
	if src != nil {
		ps.Audio = src
	}
	return ps, nil
}
