package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/MrWong99/jurubahasa/pkg/provider/stt"
)

type sentLog struct {
	mu   sync.Mutex
	msgs []ServerMessage
	err  error
}

func (l *sentLog) send(m ServerMessage) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.msgs = append(l.msgs, m)
	return nil
}

func (l *sentLog) commands() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, m := range l.msgs {
		out = append(out, m.Command)
	}
	return out
}

func newTestRecognizer(t *testing.T, log *sentLog) *browserRecognizer {
	t.Helper()
	p := &browserProvider{speech: true, send: log.send}
	r, err := p.NewRecognizer(stt.Config{Language: "id-ID", InterimResults: true, Continuous: false})
	if err != nil {
		t.Fatalf("NewRecognizer: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r.(*browserRecognizer)
}

func TestBrowserProvider_NoSpeech(t *testing.T) {
	p := &browserProvider{speech: false}
	if _, err := p.NewRecognizer(stt.Config{}); !errors.Is(err, stt.ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestBrowserProvider_ReplacesRecognizer(t *testing.T) {
	log := &sentLog{}
	p := &browserProvider{speech: true, send: log.send}
	first, _ := p.NewRecognizer(stt.Config{})
	second, _ := p.NewRecognizer(stt.Config{})
	if p.current() != second.(*browserRecognizer) {
		t.Error("current() is not the newest recognizer")
	}
	if _, ok := <-first.Events(); ok {
		t.Error("old recognizer still open")
	}
}

func TestBrowserRecognizer_StartCommand(t *testing.T) {
	log := &sentLog{}
	r := newTestRecognizer(t, log)

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	log.mu.Lock()
	cfg := log.msgs[0].Config
	log.mu.Unlock()
	if cfg == nil || cfg.Language != "id-ID" || !cfg.InterimResults || cfg.Continuous {
		t.Errorf("config = %+v", cfg)
	}
	if err := r.Start(context.Background()); !errors.Is(err, stt.ErrAlreadyStarted) {
		t.Errorf("second Start err = %v, want ErrAlreadyStarted", err)
	}
}

func TestBrowserRecognizer_EndAllowsRestart(t *testing.T) {
	log := &sentLog{}
	r := newTestRecognizer(t, log)

	_ = r.Start(context.Background())
	r.deliver(stt.StartEvent())
	if err := r.Abort(); err != nil {
		t.Fatal(err)
	}
	r.deliver(stt.EndEvent())
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start after end: %v", err)
	}

	want := []string{CommandStart, CommandAbort, CommandStart}
	got := log.commands()
	if len(got) != len(want) {
		t.Fatalf("commands = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("commands = %v, want %v", got, want)
		}
	}
	if ev := <-r.Events(); ev.Kind != stt.EventStart {
		t.Errorf("first event = %v", ev.Kind)
	}
}

func TestBrowserRecognizer_IdleStopIsNoop(t *testing.T) {
	log := &sentLog{}
	r := newTestRecognizer(t, log)
	if err := r.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := r.Abort(); err != nil {
		t.Fatal(err)
	}
	if n := len(log.commands()); n != 0 {
		t.Errorf("sent %d commands while idle", n)
	}
}

func TestBrowserRecognizer_SendFailure(t *testing.T) {
	log := &sentLog{err: errConnClosed}
	r := newTestRecognizer(t, log)
	if err := r.Start(context.Background()); !errors.Is(err, errConnClosed) {
		t.Fatalf("err = %v", err)
	}
	log.err = nil
	if err := r.Start(context.Background()); err != nil {
		t.Errorf("Start after failed send: %v", err)
	}
}

func TestBrowserRecognizer_Closed(t *testing.T) {
	r := newTestRecognizer(t, &sentLog{})
	_ = r.Close()
	if r.deliver(stt.StartEvent()) {
		t.Error("deliver succeeded after Close")
	}
	if err := r.Start(context.Background()); !errors.Is(err, stt.ErrClosed) {
		t.Errorf("Start err = %v", err)
	}
	if err := r.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestWireEvent_Decode(t *testing.T) {
	tests := []struct {
		name    string
		in      WireEvent
		want    stt.EventKind
		wantErr bool
	}{
		{"start", WireEvent{Kind: "start"}, stt.EventStart, false},
		{"end", WireEvent{Kind: "end"}, stt.EventEnd, false},
		{"result", WireEvent{Kind: "result", ResultIndex: 1, Results: []stt.Result{{Transcript: "a"}, {Transcript: "b", IsFinal: true}}}, stt.EventResult, false},
		{"result index out of range", WireEvent{Kind: "result", ResultIndex: 3}, 0, true},
		{"error", WireEvent{Kind: "error", Error: &WireError{Code: "network"}}, stt.EventError, false},
		{"error without code", WireEvent{Kind: "error"}, 0, true},
		{"unknown", WireEvent{Kind: "soundstart"}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := tt.in.Decode()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if ev.Kind != tt.want {
				t.Errorf("kind = %v, want %v", ev.Kind, tt.want)
			}
		})
	}
}
