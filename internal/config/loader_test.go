package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrWong99/jurubahasa/internal/config"
	"github.com/MrWong99/jurubahasa/pkg/provider/stt"
	"github.com/MrWong99/jurubahasa/pkg/provider/translate"
)

func TestValidate_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		yaml string
		want []string
	}{
		{
			name: "bad log level",
			yaml: "server:\n  log_level: bananas\n",
			want: []string{"log_level"},
		},
		{
			name: "half tls",
			yaml: "server:\n  tls:\n    cert_file: a.pem\n",
			want: []string{"cert_file and key_file"},
		},
		{
			name: "bad mode",
			yaml: "session:\n  mode: sometimes\n",
			want: []string{"session.mode"},
		},
		{
			name: "bad dedup rule",
			yaml: "session:\n  dedup:\n    rule: fuzzy\n",
			want: []string{"dedup rule"},
		},
		{
			name: "negative restart delay",
			yaml: "session:\n  restart_delays: [-1s]\n",
			want: []string{"negative"},
		},
		{
			name: "llm translator without llm",
			yaml: "providers:\n  translate:\n    - name: llm\n",
			want: []string{"providers.llm.name"},
		},
		{
			name: "unnamed translator",
			yaml: "providers:\n  translate:\n    - model: x\n",
			want: []string{"providers.translate[0]"},
		},
		{
			name: "discord incomplete",
			yaml: "display:\n  discord:\n    guild_id: g\n",
			want: []string{"discord.token", "discord.channel_id"},
		},
		{
			name: "kafka incomplete",
			yaml: "display:\n  kafka:\n    live_topic: l\n",
			want: []string{"brokers", "final_topic"},
		},
		{
			name: "sample ratio out of range",
			yaml: "observe:\n  trace_sample_ratio: 1.5\n",
			want: []string{"trace_sample_ratio"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tt.yaml))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			for _, w := range tt.want {
				if !strings.Contains(err.Error(), w) {
					t.Errorf("error should mention %q, got: %v", w, err)
				}
			}
		})
	}
}

func TestValidate_UnknownProviderOnlyWarns(t *testing.T) {
	t.Parallel()
	yaml := `
providers:
  stt:
    name: my-recognizer
  translate:
    - name: deepl
`
	if _, err := config.LoadFromReader(strings.NewReader(yaml)); err != nil {
		t.Fatalf("unknown provider names should not fail validation: %v", err)
	}
}

func TestLoad_File(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("session:\n  mode: fragmented\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Session.Mode != "fragmented" {
		t.Errorf("mode = %q", cfg.Session.Mode)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, want ErrNotExist", err)
	}
}

type nopProvider struct{}

func (nopProvider) NewRecognizer(stt.Config) (stt.Recognizer, error) { return nil, stt.ErrUnavailable }

func TestRegistry(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	reg.RegisterSTT("browser", func(config.ProviderEntry) (stt.Provider, error) { return nopProvider{}, nil })
	reg.RegisterTranslate("echo", func(e config.ProviderEntry) (translate.Translator, error) {
		return translate.Func(nil), nil
	})
	reg.RegisterTranslate("broken", func(config.ProviderEntry) (translate.Translator, error) {
		return nil, errors.New("no key")
	})

	if _, err := reg.CreateSTT(config.ProviderEntry{Name: "browser"}); err != nil {
		t.Errorf("CreateSTT: %v", err)
	}
	if _, err := reg.CreateSTT(config.ProviderEntry{Name: "deepgram"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateSTT unknown: %v", err)
	}
	if _, err := reg.CreateLLM(config.ProviderEntry{Name: "openai"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateLLM unknown: %v", err)
	}

	ts, err := reg.CreateTranslators([]config.ProviderEntry{{Name: "echo"}, {Name: "echo"}})
	if err != nil || len(ts) != 2 {
		t.Errorf("CreateTranslators = %d, %v", len(ts), err)
	}
	_, err = reg.CreateTranslators([]config.ProviderEntry{{Name: "broken"}, {Name: "missing"}})
	if err == nil || !strings.Contains(err.Error(), "no key") || !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateTranslators errors = %v", err)
	}

	if got := reg.Names("translate"); len(got) != 2 || got[0] != "broken" || got[1] != "echo" {
		t.Errorf("Names = %v", got)
	}
}
