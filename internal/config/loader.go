package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/jurubahasa/internal/reconcile"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt":       {"browser", "deepgram", "whisper"},
	"translate": {"google", "llm"},
	"llm":       {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// An empty document yields the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills unset fields that have a single sensible default.
// Session tunables are left alone; [SessionConfig.Build] resolves them per
// mode.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Providers.STT.Name == "" {
		cfg.Providers.STT.Name = "browser"
	}
	if len(cfg.Providers.Translate) == 0 {
		cfg.Providers.Translate = []ProviderEntry{{Name: "google"}}
	}
	if cfg.Audio.SampleRate == 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.Channels == 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Observe.ServiceName == "" {
		cfg.Observe.ServiceName = "jurubahasa"
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Session
	if _, err := reconcile.ParseMode(cfg.Session.Mode); err != nil {
		errs = append(errs, fmt.Errorf("session.mode: %w", err))
	} else if _, err := cfg.Session.Build(""); err != nil {
		errs = append(errs, fmt.Errorf("session: %w", err))
	}

	// Provider name validation: unknown names only warn, a factory may have
	// been registered for them.
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("llm", cfg.Providers.LLM.Name)
	usesLLM := false
	for i, e := range cfg.Providers.Translate {
		if e.Name == "" {
			errs = append(errs, fmt.Errorf("providers.translate[%d]: name is required", i))
			continue
		}
		validateProviderName("translate", e.Name)
		if e.Name == "llm" {
			usesLLM = true
		}
	}
	if usesLLM && cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("providers.translate uses \"llm\" but providers.llm.name is empty"))
	}

	// Audio
	switch cfg.Providers.STT.Name {
	case "deepgram", "whisper":
		if cfg.Audio.Input == "" {
			slog.Warn("config: server-side recognizer configured without audio.input; the headless session will not run",
				"stt", cfg.Providers.STT.Name)
		}
	}
	if cfg.Audio.SampleRate < 0 || cfg.Audio.Channels < 0 {
		errs = append(errs, errors.New("audio: sample_rate and channels must not be negative"))
	}

	if r := cfg.Observe.TraceSampleRatio; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("observe.trace_sample_ratio %v must be within [0, 1]", r))
	}

	// Display
	if d := cfg.Display.Discord; d != nil {
		if d.Token == "" {
			errs = append(errs, errors.New("display.discord.token is required"))
		}
		if d.ChannelID == "" {
			errs = append(errs, errors.New("display.discord.channel_id is required"))
		}
	}
	if k := cfg.Display.Kafka; k != nil {
		if len(k.Brokers) == 0 {
			errs = append(errs, errors.New("display.kafka.brokers must not be empty"))
		}
		if k.LiveTopic == "" || k.FinalTopic == "" {
			errs = append(errs, errors.New("display.kafka requires live_topic and final_topic"))
		}
		if k.QueueSize < 0 {
			errs = append(errs, errors.New("display.kafka.queue_size must not be negative"))
		}
	}

	return errors.Join(errs...)
}

func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	if !slices.Contains(ValidProviderNames[kind], name) {
		slog.Warn("config: unknown provider name", "kind", kind, "name", name, "known", ValidProviderNames[kind])
	}
}
