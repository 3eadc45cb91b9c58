package resilience

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

func newGroup(cfg CircuitBreakerConfig) *FallbackGroup[string] {
	fg := NewFallbackGroup("google", "google", FallbackConfig{CircuitBreaker: cfg})
	fg.AddFallback("llm", "llm")
	return fg
}

func TestFallbackGroup_Order(t *testing.T) {
	fg := newGroup(CircuitBreakerConfig{MaxFailures: 3})
	if got := fg.Names(); !reflect.DeepEqual(got, []string{"google", "llm"}) {
		t.Errorf("Names() = %v", got)
	}
	if fg.Breaker("llm") == nil || fg.Breaker("deepl") != nil {
		t.Error("Breaker lookup mismatch")
	}
}

func TestFallbackGroup_Execute(t *testing.T) {
	tests := []struct {
		name     string
		failing  map[string]bool
		wantCall []string
		wantErr  bool
	}{
		{"primary succeeds", nil, []string{"google"}, false},
		{"primary fails", map[string]bool{"google": true}, []string{"google", "llm"}, false},
		{"all fail", map[string]bool{"google": true, "llm": true}, []string{"google", "llm"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fg := newGroup(CircuitBreakerConfig{MaxFailures: 3})
			var calls []string
			err := fg.Execute(func(v string) error {
				calls = append(calls, v)
				if tt.failing[v] {
					return errTest
				}
				return nil
			})
			if !reflect.DeepEqual(calls, tt.wantCall) {
				t.Errorf("calls = %v, want %v", calls, tt.wantCall)
			}
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && (!errors.Is(err, ErrAllFailed) || !errors.Is(err, errTest)) {
				t.Errorf("err = %v, want ErrAllFailed wrapping errTest", err)
			}
		})
	}
}

func TestFallbackGroup_SkipsOpenBreaker(t *testing.T) {
	fg := newGroup(CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour})

	for i := 0; i < 2; i++ {
		_ = fg.Execute(func(v string) error {
			if v == "google" {
				return errTest
			}
			return nil
		})
	}

	var calls []string
	if err := fg.Execute(func(v string) error { calls = append(calls, v); return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(calls, []string{"llm"}) {
		t.Errorf("calls = %v, want only llm", calls)
	}
	if fg.Breaker("google").State() != StateOpen {
		t.Errorf("google breaker = %v, want open", fg.Breaker("google").State())
	}
}

func TestExecuteWithResult(t *testing.T) {
	fg := newGroup(CircuitBreakerConfig{MaxFailures: 3})

	got, err := ExecuteWithResult(fg, func(v string) (string, error) {
		if v == "google" {
			return "", errTest
		}
		return "from-" + v, nil
	})
	if err != nil || got != "from-llm" {
		t.Fatalf("got %q, %v", got, err)
	}

	_, err = ExecuteWithResult(fg, func(string) (int, error) { return 0, errTest })
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}
