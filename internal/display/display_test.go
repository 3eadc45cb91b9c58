package display_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/jurubahasa/internal/display"
	"github.com/MrWong99/jurubahasa/internal/display/mock"
)

func TestStatusKind_Text(t *testing.T) {
	for k := display.StatusIdle; k <= display.StatusStopped; k++ {
		b, _ := k.MarshalText()
		var back display.StatusKind
		if err := back.UnmarshalText(b); err != nil || back != k {
			t.Errorf("round trip %v: got %v, %v", k, back, err)
		}
	}
	var k display.StatusKind
	if err := k.UnmarshalText([]byte("shouting")); err == nil {
		t.Error("expected error for unknown kind")
	}
	if s := display.StatusKind(42).String(); s != "StatusKind(42)" {
		t.Errorf("String() = %q", s)
	}
}

func TestNotification_Persistent(t *testing.T) {
	if !(display.Notification{}).Persistent() {
		t.Error("zero TTL should be persistent")
	}
	if (display.Notification{TTL: 4 * time.Second}).Persistent() {
		t.Error("4s TTL should not be persistent")
	}
}

func TestOp_ApplyReplays(t *testing.T) {
	ops := []display.Op{
		{Type: display.OpStatus, Status: &display.Status{Kind: display.StatusListening, Text: "Listening..."}},
		{Type: display.OpLiveUpsert, Live: &display.LiveCard{Translated: "Hello", Original: "Halo"}},
		{Type: display.OpLiveRemove},
		{Type: display.OpFinalAppend, Final: &display.FinalCard{ID: 1, Translated: "Hello world"}},
		{Type: display.OpNotification, Notification: &display.Notification{Level: display.LevelWarning, Text: "x"}},
	}
	sink := &mock.Sink{}
	for _, op := range ops {
		if err := op.Apply(sink); err != nil {
			t.Fatalf("Apply(%s): %v", op.Type, err)
		}
	}
	got := sink.Types()
	for i, op := range ops {
		if got[i] != op.Type {
			t.Errorf("op[%d] = %s, want %s", i, got[i], op.Type)
		}
	}
}

func TestOp_ApplyRejectsMalformed(t *testing.T) {
	for _, op := range []display.Op{
		{Type: display.OpStatus},
		{Type: display.OpLiveUpsert},
		{Type: display.OpFinalAppend},
		{Type: display.OpNotification},
		{Type: "bogus"},
	} {
		if err := op.Apply(&mock.Sink{}); err == nil {
			t.Errorf("Apply(%q) succeeded, want error", op.Type)
		}
	}
}

func TestOp_JSON(t *testing.T) {
	var got []display.Op
	f := display.OpFunc(func(op display.Op) { got = append(got, op) })
	f.ShowNotification(display.Notification{Level: display.LevelError, Text: "denied"})

	b, err := json.Marshal(got[0])
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), `"level":"error"`) || !strings.Contains(string(b), `"type":"notification"`) {
		t.Errorf("json = %s", b)
	}
	var back display.Op
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatal(err)
	}
	if back.Notification == nil || back.Notification.Level != display.LevelError {
		t.Errorf("decoded = %+v", back)
	}
}

func TestMulti_FansOutSkippingNil(t *testing.T) {
	a, b := &mock.Sink{}, &mock.Sink{}
	m := display.NewMulti(a, nil, b)
	if len(m) != 2 {
		t.Fatalf("len = %d, want 2", len(m))
	}
	m.UpsertLiveCard(display.LiveCard{Translated: "x"})
	m.RemoveLiveCard()
	m.AppendFinalCard(display.FinalCard{ID: 7})
	for _, s := range []*mock.Sink{a, b} {
		if n := len(s.Ops()); n != 3 {
			t.Errorf("ops = %d, want 3", n)
		}
	}
}

func TestConsole_LogsFinals(t *testing.T) {
	var buf bytes.Buffer
	c := display.NewConsole(slog.New(slog.NewTextHandler(&buf, nil)))
	c.AppendFinalCard(display.FinalCard{ID: 3, Translated: "I always say", Original: "Saya selalu bilang"})
	c.ShowNotification(display.Notification{Level: display.LevelError, Text: "denied"})
	out := buf.String()
	if !strings.Contains(out, `translated="I always say"`) {
		t.Errorf("missing final card in %q", out)
	}
	if !strings.Contains(out, "level=ERROR") {
		t.Errorf("notification not logged at error level: %q", out)
	}
}
