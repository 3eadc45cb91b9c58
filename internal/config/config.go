// Package config provides the configuration schema, loader, watcher and
// provider registry for jurubahasa.
package config

import (
	"time"

	"github.com/MrWong99/jurubahasa/internal/reconcile"
	"github.com/MrWong99/jurubahasa/internal/resilience"
	"github.com/MrWong99/jurubahasa/internal/session"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Session   SessionConfig   `yaml:"session"`
	Providers ProvidersConfig `yaml:"providers"`
	Audio     AudioConfig     `yaml:"audio"`
	Display   DisplayConfig   `yaml:"display"`
	Observe   ObserveConfig   `yaml:"observe"`
}

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	// ListenAddr is the address the HTTP server binds to. Default: ":8080".
	ListenAddr string `yaml:"listen_addr"`

	LogLevel LogLevel `yaml:"log_level"`

	// TLS enables HTTPS when set.
	TLS *TLSConfig `yaml:"tls"`

	// AllowedOrigins are extra hosts allowed to open websockets, in the
	// pattern syntax of path.Match.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// TLSConfig holds the certificate pair for HTTPS.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// SessionConfig tunes recognition sessions. Zero values keep the defaults of
// the selected mode.
type SessionConfig struct {
	// Mode is "continuous" or "fragmented". Default: continuous.
	Mode string `yaml:"mode"`

	// SourceLanguage and TargetLanguage are the translation pair.
	// Default: "id" to "en".
	SourceLanguage string `yaml:"source_language"`
	TargetLanguage string `yaml:"target_language"`

	// RecognizerLanguage is the BCP-47 tag handed to the recognizer.
	// Default: "id-ID".
	RecognizerLanguage string `yaml:"recognizer_language"`

	PreviewDelay    time.Duration `yaml:"preview_delay"`
	SilenceTimeout  time.Duration `yaml:"silence_timeout"`
	FragmentPreview *bool         `yaml:"fragment_preview"`

	Dedup DedupConfig `yaml:"dedup"`

	// RestartDelays is the recognizer restart schedule. An empty list keeps
	// the default of 50ms then 500ms.
	RestartDelays   []time.Duration `yaml:"restart_delays"`
	StartRetryDelay time.Duration   `yaml:"start_retry_delay"`
	ResumeDelay     time.Duration   `yaml:"resume_delay"`
	NotificationTTL time.Duration   `yaml:"notification_ttl"`
	StartupHint     string          `yaml:"startup_hint"`
}

// DedupConfig selects the duplicate-final rule.
type DedupConfig struct {
	Rule      string  `yaml:"rule"`
	History   int     `yaml:"history"`
	Threshold float64 `yaml:"threshold"`
}

// ProvidersConfig selects the speech recognizer, the translators and the
// language model behind the llm translator.
type ProvidersConfig struct {
	STT ProviderEntry `yaml:"stt"`

	// Translate is tried in order; later entries are fallbacks.
	Translate []ProviderEntry `yaml:"translate"`

	LLM ProviderEntry `yaml:"llm"`
}

// ProviderEntry is the configuration for a single named provider.
type ProviderEntry struct {
	// Name selects the registered factory (e.g., "deepgram", "google").
	Name string `yaml:"name"`

	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`

	// Options holds provider-specific settings.
	Options map[string]any `yaml:"options"`
}

// Option returns the string value of key in e.Options, or def.
func (e ProviderEntry) Option(key, def string) string {
	if v, ok := e.Options[key].(string); ok && v != "" {
		return v
	}
	return def
}

// AudioConfig describes the PCM input of the headless session.
type AudioConfig struct {
	// Input is a file path of raw signed 16-bit little-endian PCM, or "-" for
	// stdin.
	Input string `yaml:"input"`

	SampleRate int `yaml:"sample_rate"`
	Channels   int `yaml:"channels"`

	// Realtime paces file input at the rate it would be captured.
	Realtime bool `yaml:"realtime"`
}

// DisplayConfig enables the additional display sinks of the headless
// session.
type DisplayConfig struct {
	// Console logs every display operation.
	Console bool `yaml:"console"`

	Discord *DiscordConfig `yaml:"discord"`
	Kafka   *KafkaConfig   `yaml:"kafka"`
}

// DiscordConfig mirrors translations into a Discord channel.
type DiscordConfig struct {
	Token          string `yaml:"token"`
	GuildID        string `yaml:"guild_id"`
	ChannelID      string `yaml:"channel_id"`
	OperatorRoleID string `yaml:"operator_role_id"`
}

// KafkaConfig publishes live and final translations.
type KafkaConfig struct {
	Brokers    []string `yaml:"brokers"`
	LiveTopic  string   `yaml:"live_topic"`
	FinalTopic string   `yaml:"final_topic"`
	QueueSize  int      `yaml:"queue_size"`
}

// ObserveConfig configures metrics and tracing.
type ObserveConfig struct {
	// ServiceName labels exported telemetry. Default: "jurubahasa".
	ServiceName string `yaml:"service_name"`

	// TraceSampleRatio is the fraction of translation traces kept, in
	// [0, 1]. Zero keeps all of them.
	TraceSampleRatio float64 `yaml:"trace_sample_ratio"`

	// Metrics exposes GET /metrics. Default: true.
	Metrics *bool `yaml:"metrics"`
}

// MetricsEnabled reports whether /metrics is served.
func (o ObserveConfig) MetricsEnabled() bool { return o.Metrics == nil || *o.Metrics }

// Build returns the session configuration for mode: the defaults of the mode
// with every non-zero field of s applied. An empty mode uses s.Mode.
func (s SessionConfig) Build(mode reconcile.Mode) (session.Config, error) {
	if mode == "" {
		m, err := reconcile.ParseMode(s.Mode)
		if err != nil {
			return session.Config{}, err
		}
		mode = m
	}
	cfg := session.DefaultConfig(mode)
	p := &cfg.Policy

	if s.SourceLanguage != "" {
		p.Source = s.SourceLanguage
	}
	if s.TargetLanguage != "" {
		p.Target = s.TargetLanguage
	}
	if s.RecognizerLanguage != "" {
		cfg.Recognizer.Language = s.RecognizerLanguage
	}
	if s.PreviewDelay > 0 {
		p.PreviewDelay = s.PreviewDelay
	}
	if s.SilenceTimeout > 0 {
		p.SilenceTimeout = s.SilenceTimeout
	}
	if s.FragmentPreview != nil {
		p.FragmentPreview = *s.FragmentPreview
	}
	if s.Dedup.Rule != "" {
		p.Dedup.Rule = reconcile.DedupRule(s.Dedup.Rule)
	}
	if s.Dedup.History > 0 {
		p.Dedup.History = s.Dedup.History
	}
	if s.Dedup.Threshold > 0 {
		p.Dedup.Threshold = s.Dedup.Threshold
	}
	if s.NotificationTTL > 0 {
		p.NotificationTTL = s.NotificationTTL
	}
	if len(s.RestartDelays) > 0 {
		cfg.Restart = resilience.RetryPolicy{Delays: append([]time.Duration(nil), s.RestartDelays...)}
	}
	if s.StartRetryDelay > 0 {
		cfg.StartRetryDelay = s.StartRetryDelay
	}
	if s.ResumeDelay > 0 {
		cfg.ResumeDelay = s.ResumeDelay
	}
	switch {
	case s.StartupHint != "":
		cfg.StartupHint = s.StartupHint
	case mode == reconcile.ModeFragmented:
		cfg.StartupHint = defaultFragmentedHint
	}
	if err := cfg.Validate(); err != nil {
		return session.Config{}, err
	}
	return cfg, nil
}

const defaultFragmentedHint = "Pause briefly between sentences; each pause sends the sentence for translation."
