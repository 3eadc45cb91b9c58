package discord

import (
	"reflect"
	"testing"
	"time"

	"github.com/MrWong99/jurubahasa/internal/discord/mock"
	"github.com/MrWong99/jurubahasa/internal/display"
)

func newTestDashboard(ch *mock.Channel, now func() time.Time) *Dashboard {
	return NewDashboard(DashboardConfig{API: ch, ChannelID: "chan", Now: now})
}

func TestDashboard_Defaults(t *testing.T) {
	t.Parallel()

	d := NewDashboard(DashboardConfig{ChannelID: "ch"})
	if d.interval != defaultInterval {
		t.Errorf("default interval = %v, want %v", d.interval, defaultInterval)
	}
}

func TestDashboard_LiveCardEditedInPlace(t *testing.T) {
	t.Parallel()

	ch := &mock.Channel{}
	d := newTestDashboard(ch, nil)

	d.UpsertLiveCard(display.LiveCard{Translated: "I", Original: "Saya"})
	d.flush()
	d.UpsertLiveCard(display.LiveCard{Translated: "I always", Original: "Saya selalu"})
	d.UpsertLiveCard(display.LiveCard{Translated: "I always say", Original: "Saya selalu bilang"})
	d.flush()
	d.RemoveLiveCard()
	d.flush()

	calls := ch.Calls()
	if got := ch.Methods(); !reflect.DeepEqual(got, []string{"send", "edit", "delete"}) {
		t.Fatalf("methods = %v", got)
	}
	if calls[1].MessageID != calls[0].MessageID || calls[2].MessageID != calls[0].MessageID {
		t.Errorf("live card not kept in one message: %+v", calls)
	}
	if calls[1].Embed.Description != "I always say" {
		t.Errorf("edit = %q, want the newest card", calls[1].Embed.Description)
	}
}

func TestDashboard_FinalPostedBelowLiveCard(t *testing.T) {
	t.Parallel()

	ch := &mock.Channel{}
	d := newTestDashboard(ch, nil)

	d.UpsertLiveCard(display.LiveCard{Translated: "Hello"})
	d.flush()
	d.AppendFinalCard(display.FinalCard{ID: 1, Translated: "Hello world", Original: "Halo dunia", Provider: "google"})
	d.UpsertLiveCard(display.LiveCard{Translated: "How"})
	d.flush()

	want := []string{"send", "delete", "send", "send"}
	if got := ch.Methods(); !reflect.DeepEqual(got, want) {
		t.Fatalf("methods = %v, want %v", got, want)
	}
	calls := ch.Calls()
	if calls[2].Embed.Description != "Hello world" || calls[2].Embed.Footer.Text != "Halo dunia · google" {
		t.Errorf("final embed = %+v", calls[2].Embed)
	}
	if calls[3].Embed.Description != "How" {
		t.Errorf("live embed = %q", calls[3].Embed.Description)
	}
}

func TestDashboard_StatusAndNotification(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ch := &mock.Channel{}
	d := newTestDashboard(ch, func() time.Time { return now })

	d.ShowStatus(display.Status{Kind: display.StatusListening, Text: "Listening..."})
	d.ShowNotification(display.Notification{Level: display.LevelWarning, Text: "network", TTL: 4 * time.Second})
	d.flush()

	calls := ch.Calls()
	if len(calls) != 1 || calls[0].Embed.Description != "Listening..." {
		t.Fatalf("calls = %+v", calls)
	}
	if f := calls[0].Embed.Fields; len(f) != 1 || f[0].Name != "Warning" {
		t.Errorf("fields = %+v", f)
	}

	now = now.Add(5 * time.Second)
	d.expireNotification()
	d.flush()
	calls = ch.Calls()
	if len(calls) != 2 || calls[1].Method != "edit" || len(calls[1].Embed.Fields) != 0 {
		t.Errorf("expected notification removed by an edit, got %+v", calls)
	}
}

func TestDashboard_PersistentNotificationStays(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ch := &mock.Channel{}
	d := newTestDashboard(ch, func() time.Time { return now })

	d.ShowNotification(display.Notification{Level: display.LevelError, Text: "Microphone access denied"})
	d.flush()
	now = now.Add(time.Hour)
	d.expireNotification()
	d.flush()

	if n := len(ch.Calls()); n != 1 {
		t.Errorf("calls = %d, want 1", n)
	}
	if c := ch.Calls()[0].Embed.Color; c != embedColorRed {
		t.Errorf("color = %x, want red", c)
	}
}

func TestDashboard_StopFlushes(t *testing.T) {
	t.Parallel()

	ch := &mock.Channel{}
	d := newTestDashboard(ch, nil)
	d.AppendFinalCard(display.FinalCard{ID: 1, Translated: "bye", Timestamp: time.Unix(0, 0)})
	d.Stop()
	d.Stop()

	calls := ch.Calls()
	if len(calls) != 1 || calls[0].Embed.Timestamp != "1970-01-01T00:00:00Z" {
		t.Errorf("calls = %+v", calls)
	}
}
