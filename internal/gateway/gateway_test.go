package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/jurubahasa/internal/display"
	"github.com/MrWong99/jurubahasa/internal/reconcile"
	"github.com/MrWong99/jurubahasa/internal/session"
	"github.com/MrWong99/jurubahasa/pkg/provider/stt"
	"github.com/MrWong99/jurubahasa/pkg/provider/translate/mock"
)

func startServer(t *testing.T, cfg Config) *httptest.Server {
	t.Helper()
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	mux := http.NewServeMux()
	s.Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	ws, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	t.Cleanup(func() { ws.Close(websocket.StatusNormalClosure, "") })
	return ws
}

func write(t *testing.T, ws *websocket.Conn, m ClientMessage) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := wsjson.Write(ctx, ws, m); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// readUntil reads server messages until match returns true.
func readUntil(t *testing.T, ws *websocket.Conn, match func(ServerMessage) bool) ServerMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		var m ServerMessage
		if err := wsjson.Read(ctx, ws, &m); err != nil {
			t.Fatalf("read: %v", err)
		}
		if match(m) {
			return m
		}
	}
}

func isCommand(name string) func(ServerMessage) bool {
	return func(m ServerMessage) bool { return m.Type == MsgCommand && m.Command == name }
}

func isOp(typ display.OpType) func(ServerMessage) bool {
	return func(m ServerMessage) bool { return m.Type == MsgDisplay && m.Op != nil && m.Op.Type == typ }
}

func browserFactory(tr *mock.Translator) SessionFactory {
	return func(mode reconcile.Mode, p stt.Provider, sink display.Sink) (*session.Controller, error) {
		return session.New(session.DefaultConfig(mode), p, tr, sink)
	}
}

func boolPtr(b bool) *bool { return &b }

func TestNew_RequiresSomething(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error for empty config")
	}
}

func TestSession_ContinuousFinalTranslated(t *testing.T) {
	srv := startServer(t, Config{NewSession: browserFactory(&mock.Translator{Name: "mock"})})
	ws := dial(t, srv, "/session")

	write(t, ws, ClientMessage{Type: MsgHello, Mode: "continuous"})
	readUntil(t, ws, isOp(display.OpStatus))

	write(t, ws, ClientMessage{Type: MsgStart})
	cmd := readUntil(t, ws, isCommand(CommandStart))
	if cmd.Config == nil || !cmd.Config.Continuous || !cmd.Config.InterimResults {
		t.Errorf("start config = %+v", cmd.Config)
	}

	write(t, ws, ClientMessage{Type: MsgEvent, Event: &WireEvent{Kind: "start"}})
	write(t, ws, ClientMessage{Type: MsgEvent, Event: &WireEvent{
		Kind:    "result",
		Results: []stt.Result{{Transcript: "Halo dunia", IsFinal: true}},
	}})

	m := readUntil(t, ws, isOp(display.OpFinalAppend))
	if got := m.Op.Final.Translated; got != "EN:Halo dunia" {
		t.Errorf("final = %q, want EN:Halo dunia", got)
	}
	if m.Op.Final.Original != "Halo dunia" {
		t.Errorf("original = %q", m.Op.Final.Original)
	}
}

func TestSession_FragmentedAsksForShortSessions(t *testing.T) {
	srv := startServer(t, Config{NewSession: browserFactory(&mock.Translator{})})
	ws := dial(t, srv, "/session")

	write(t, ws, ClientMessage{Type: MsgHello, Mode: "fragmented"})
	write(t, ws, ClientMessage{Type: MsgStart})
	cmd := readUntil(t, ws, isCommand(CommandStart))
	if cmd.Config.Continuous {
		t.Error("fragmented session asked for a continuous recognizer")
	}
}

func TestSession_NoSpeechEngine(t *testing.T) {
	srv := startServer(t, Config{NewSession: browserFactory(&mock.Translator{})})
	ws := dial(t, srv, "/session")

	write(t, ws, ClientMessage{Type: MsgHello, Speech: boolPtr(false)})
	write(t, ws, ClientMessage{Type: MsgStart})
	m := readUntil(t, ws, isOp(display.OpNotification))
	if m.Op.Notification.Level != display.LevelError || !m.Op.Notification.Persistent() {
		t.Errorf("notification = %+v", m.Op.Notification)
	}
}

func TestSession_RejectsMissingHello(t *testing.T) {
	srv := startServer(t, Config{NewSession: browserFactory(&mock.Translator{})})
	ws := dial(t, srv, "/session")

	write(t, ws, ClientMessage{Type: MsgStart})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var m ServerMessage
	err := wsjson.Read(ctx, ws, &m)
	if websocket.CloseStatus(err) != websocket.StatusPolicyViolation {
		t.Errorf("close status = %v (err %v), want policy violation", websocket.CloseStatus(err), err)
	}
}

func TestHub_SnapshotThenLiveOps(t *testing.T) {
	board := display.NewBoard()
	board.ShowStatus(display.Status{Kind: display.StatusListening, Text: "Listening..."})
	board.AppendFinalCard(display.FinalCard{ID: 1, Translated: "Hello"})

	s, err := New(Config{Board: board})
	if err != nil {
		t.Fatal(err)
	}
	mux := http.NewServeMux()
	s.Register(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ws := dial(t, srv, "/watch")
	first := readUntil(t, ws, func(ServerMessage) bool { return true })
	if first.Op == nil || first.Op.Type != display.OpStatus {
		t.Fatalf("first = %+v, want status", first)
	}
	if m := readUntil(t, ws, func(ServerMessage) bool { return true }); m.Op.Final == nil || m.Op.Final.ID != 1 {
		t.Fatalf("second = %+v, want snapshot final", m)
	}

	deadline := time.Now().Add(5 * time.Second)
	for s.Hub().Viewers() != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	board.AppendFinalCard(display.FinalCard{ID: 2, Translated: "World"})
	m := readUntil(t, ws, isOp(display.OpFinalAppend))
	if m.Op.Final.ID != 2 {
		t.Errorf("live final = %+v", m.Op.Final)
	}
}

type fakeControl struct {
	starts, stops int
	err           error
}

func (f *fakeControl) Start(context.Context) error { f.starts++; return f.err }
func (f *fakeControl) Stop(context.Context) error  { f.stops++; return f.err }
func (f *fakeControl) Inspect(context.Context) (session.Info, error) {
	return session.Info{ID: "headless", State: session.StateListening, RestartEnabled: true}, nil
}

func TestControl_StartStopStatus(t *testing.T) {
	ctrl := &fakeControl{}
	srv := startServer(t, Config{Control: ctrl})

	resp, err := http.Post(srv.URL+"/control/start", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	var body controlResponse
	_ = json.NewDecoder(resp.Body).Decode(&body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || body.State != "listening" || body.ID != "headless" {
		t.Errorf("start: %d %+v", resp.StatusCode, body)
	}

	resp, err = http.Get(srv.URL + "/control/stop")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET /control/stop = %d, want 405", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/control/status")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if ctrl.starts != 1 || ctrl.stops != 0 {
		t.Errorf("starts=%d stops=%d", ctrl.starts, ctrl.stops)
	}
}

func TestControl_Error(t *testing.T) {
	srv := startServer(t, Config{Control: &fakeControl{err: session.ErrClosed}})
	resp, err := http.Post(srv.URL+"/control/stop", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var body controlResponse
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if resp.StatusCode != http.StatusServiceUnavailable || body.Error == "" {
		t.Errorf("stop: %d %+v", resp.StatusCode, body)
	}
}
