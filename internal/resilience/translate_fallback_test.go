package resilience

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/MrWong99/jurubahasa/pkg/provider/translate"
	"github.com/MrWong99/jurubahasa/pkg/provider/translate/mock"
)

func TestTranslateFallback(t *testing.T) {
	down := errors.New("503")
	tests := []struct {
		name      string
		primary   *mock.Translator
		secondary *mock.Translator
		wantText  string
		wantErr   error
	}{
		{"primary answers", &mock.Translator{Name: "google"}, &mock.Translator{Name: "llm"}, "EN:halo", nil},
		{"primary down", &mock.Translator{Err: down}, &mock.Translator{Name: "llm", Prefix: "LLM:"}, "LLM:halo", nil},
		{"primary empty", &mock.Translator{Err: translate.ErrNoResult}, &mock.Translator{Prefix: "LLM:"}, "LLM:halo", nil},
		{"all empty", &mock.Translator{Err: translate.ErrNoResult}, &mock.Translator{Err: translate.ErrNoResult}, "", translate.ErrNoResult},
		{"all down", &mock.Translator{Err: down}, &mock.Translator{Err: down}, "", translate.ErrUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewTranslateFallback(tt.primary, "google", FallbackConfig{})
			f.AddFallback("llm", tt.secondary)

			res, err := f.Translate(context.Background(), translate.Request{Text: "halo", Source: "id", Target: "en"})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.Text != tt.wantText {
				t.Errorf("text = %q, want %q", res.Text, tt.wantText)
			}
		})
	}
}

func TestTranslateFallback_UnavailableWrapsAllFailed(t *testing.T) {
	f := NewTranslateFallback(&mock.Translator{Err: errTest}, "google", FallbackConfig{})
	_, err := f.Translate(context.Background(), translate.Request{Text: "x"})
	if !errors.Is(err, ErrAllFailed) || !errors.Is(err, translate.ErrUnavailable) || !errors.Is(err, errTest) {
		t.Errorf("err = %v", err)
	}
}

func TestTranslateFallback_EmptyDoesNotTripBreaker(t *testing.T) {
	primary := &mock.Translator{Err: translate.ErrNoResult}
	f := NewTranslateFallback(primary, "google", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour},
	})
	for i := 0; i < 5; i++ {
		_, _ = f.Translate(context.Background(), translate.Request{Text: "hmm"})
	}
	if s := f.Breaker("google").State(); s != StateClosed {
		t.Errorf("breaker = %v, want closed", s)
	}
	if primary.CallCount() != 5 {
		t.Errorf("calls = %d, want 5", primary.CallCount())
	}
}

func TestTranslateFallback_OpenBreakerReportsUnavailable(t *testing.T) {
	primary := &mock.Translator{Err: errTest}
	f := NewTranslateFallback(primary, "google", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour},
	})
	_, _ = f.Translate(context.Background(), translate.Request{Text: "a"})
	_, err := f.Translate(context.Background(), translate.Request{Text: "b"})
	if !errors.Is(err, translate.ErrUnavailable) || !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("err = %v, want unavailable via open circuit", err)
	}
	if primary.CallCount() != 1 {
		t.Errorf("calls = %d, want 1", primary.CallCount())
	}
	if got := f.Names(); !reflect.DeepEqual(got, []string{"google"}) {
		t.Errorf("Names() = %v", got)
	}
}

func TestTranslateFallback_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := NewTranslateFallback(&mock.Translator{Err: context.Canceled}, "google", FallbackConfig{})
	_, err := f.Translate(ctx, translate.Request{Text: "x"})
	if !errors.Is(err, context.Canceled) || errors.Is(err, translate.ErrUnavailable) {
		t.Errorf("err = %v, want plain cancellation", err)
	}
}

func TestRetryPolicy(t *testing.T) {
	p := DefaultRestartPolicy()
	if p.Attempts() != 2 {
		t.Fatalf("attempts = %d", p.Attempts())
	}
	for n, want := range []time.Duration{50 * time.Millisecond, 500 * time.Millisecond} {
		if d, ok := p.Delay(n); !ok || d != want {
			t.Errorf("Delay(%d) = %v, %v", n, d, ok)
		}
	}
	if _, ok := p.Delay(2); ok {
		t.Error("Delay(2) allowed, want exhausted")
	}
	if _, ok := p.Delay(-1); ok {
		t.Error("Delay(-1) allowed")
	}
	if err := (RetryPolicy{Delays: []time.Duration{-time.Second}}).Validate(); err == nil {
		t.Error("expected error for negative delay")
	}
}

func TestBackoff(t *testing.T) {
	got := Backoff(time.Second, 5*time.Second, 5).Delays
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Backoff = %v, want %v", got, want)
	}
}
