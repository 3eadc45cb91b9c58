// Package llm provides a translator that prompts an LLM provider. It lets any
// backend supported by pkg/provider/llm (OpenAI, Anthropic, Gemini, Ollama and
// others) serve as a translation service.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	llmprovider "github.com/MrWong99/jurubahasa/pkg/provider/llm"
	"github.com/MrWong99/jurubahasa/pkg/provider/translate"
)

const defaultMaxTokens = 512

// languageNames maps common codes to the English names models follow best.
var languageNames = map[string]string{
	"id": "Indonesian",
	"en": "English",
	"ms": "Malay",
	"ja": "Japanese",
	"zh": "Chinese",
	"ko": "Korean",
	"de": "German",
	"fr": "French",
	"es": "Spanish",
	"nl": "Dutch",
	"jv": "Javanese",
	"su": "Sundanese",
}

// Option is a functional option for the Translator.
type Option func(*Translator)

// WithName sets the provider name reported in results. Default: "llm".
func WithName(name string) Option {
	return func(t *Translator) {
		t.name = name
	}
}

// WithTemperature sets the sampling temperature. Default: 0 (provider default).
func WithTemperature(temp float64) Option {
	return func(t *Translator) {
		t.temperature = temp
	}
}

// WithMaxTokens caps the completion length. Default: 512.
func WithMaxTokens(n int) Option {
	return func(t *Translator) {
		t.maxTokens = n
	}
}

// Translator implements translate.Translator over an llm.Provider.
type Translator struct {
	provider    llmprovider.Provider
	name        string
	temperature float64
	maxTokens   int
}

// New returns a Translator that prompts p.
func New(p llmprovider.Provider, opts ...Option) (*Translator, error) {
	if p == nil {
		return nil, errors.New("llm translate: provider must not be nil")
	}
	t := &Translator{
		provider:  p,
		name:      "llm",
		maxTokens: defaultMaxTokens,
	}
	for _, o := range opts {
		o(t)
	}
	return t, nil
}

// Translate implements translate.Translator.
func (t *Translator) Translate(ctx context.Context, req translate.Request) (translate.Result, error) {
	if strings.TrimSpace(req.Text) == "" {
		return translate.Result{}, errors.New("llm translate: empty text")
	}
	resp, err := t.provider.Complete(ctx, llmprovider.CompletionRequest{
		SystemPrompt: systemPrompt(req.Source, req.Target),
		Messages:     []llmprovider.Message{{Role: llmprovider.RoleUser, Content: req.Text}},
		Temperature:  t.temperature,
		MaxTokens:    t.maxTokens,
	})
	if errors.Is(err, llmprovider.ErrEmptyResponse) {
		return translate.Result{}, fmt.Errorf("llm translate: %w", translate.ErrNoResult)
	}
	if err != nil {
		return translate.Result{}, fmt.Errorf("llm translate: %w", err)
	}
	if resp == nil {
		return translate.Result{}, translate.ErrNoResult
	}
	text := cleanOutput(resp.Content)
	if text == "" {
		return translate.Result{}, translate.ErrNoResult
	}
	if resp.Truncated {
		slog.Warn("llm translate: translation cut at max tokens",
			"provider", t.name, "model", resp.Model, "max_tokens", t.maxTokens, "chars", len(req.Text))
	}
	return translate.Result{Text: text, Provider: t.name}, nil
}

func systemPrompt(source, target string) string {
	return fmt.Sprintf(
		"You are a live interpreter. Translate the user's message from %s to %s. "+
			"The text is a speech transcript and may lack punctuation. "+
			"Reply with the translation only, without quotes, notes or explanations.",
		languageName(source), languageName(target))
}

func languageName(code string) string {
	base := strings.ToLower(code)
	if i := strings.IndexAny(base, "-_"); i > 0 {
		base = base[:i]
	}
	if name, ok := languageNames[base]; ok {
		return name
	}
	return code
}

// cleanOutput trims whitespace and one pair of wrapping quotes that models
// like to add.
func cleanOutput(s string) string {
	s = strings.TrimSpace(s)
	for _, q := range [][2]string{{`"`, `"`}, {"“", "”"}, {"'", "'"}} {
		if len(s) >= len(q[0])+len(q[1]) && strings.HasPrefix(s, q[0]) && strings.HasSuffix(s, q[1]) {
			s = strings.TrimSpace(s[len(q[0]) : len(s)-len(q[1])])
			break
		}
	}
	return s
}

var _ translate.Translator = (*Translator)(nil)
