package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/jurubahasa/internal/display"
	"github.com/MrWong99/jurubahasa/internal/reconcile"
	"github.com/MrWong99/jurubahasa/internal/session"
)

func (s *Server) serveSession(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.cfg.OriginPatterns})
	if err != nil {
		slog.Debug("gateway: session upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	hello, err := s.readHello(ctx, ws)
	if err != nil {
		slog.Info("gateway: bad hello", "remote", r.RemoteAddr, "err", err)
		ws.Close(websocket.StatusPolicyViolation, "expected hello")
		return
	}
	mode, err := reconcile.ParseMode(hello.Mode)
	if err != nil {
		ws.Close(websocket.StatusPolicyViolation, err.Error())
		return
	}

	c := newConn(ctx, ws, s.cfg.SendQueue, r.RemoteAddr)
	defer c.close("session ended")

	provider := &browserProvider{
		speech: hello.Speech == nil || *hello.Speech,
		send:   c.send,
	}
	sink := display.OpFunc(func(op display.Op) { _ = c.send(displayMessage(op)) })

	ctrl, err := s.cfg.NewSession(mode, provider, sink)
	if err != nil {
		slog.Error("gateway: create session", "remote", r.RemoteAddr, "err", err)
		ws.Close(websocket.StatusInternalError, "session unavailable")
		return
	}
	go func() { _ = ctrl.Run(c.ctx) }()
	defer func() {
		c.cancel()
		<-ctrl.Done()
		_ = ctrl.Close()
	}()

	slog.Info("gateway: session opened", "id", ctrl.ID(), "remote", r.RemoteAddr, "mode", mode)
	for {
		var m ClientMessage
		if err := wsjson.Read(c.ctx, ws, &m); err != nil {
			if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
				slog.Debug("gateway: read failed", "id", ctrl.ID(), "err", err)
			}
			break
		}
		s.handleClient(c.ctx, ctrl, provider, m)
	}
	slog.Info("gateway: session closed", "id", ctrl.ID(), "remote", r.RemoteAddr)
}

func (s *Server) readHello(ctx context.Context, ws *websocket.Conn) (ClientMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.HelloTimeout)
	defer cancel()
	var m ClientMessage
	if err := wsjson.Read(ctx, ws, &m); err != nil {
		return m, err
	}
	if m.Type != MsgHello {
		return m, errors.New("gateway: first message must be hello")
	}
	return m, nil
}

func (s *Server) handleClient(ctx context.Context, ctrl *session.Controller, p *browserProvider, m ClientMessage) {
	var err error
	switch m.Type {
	case MsgEvent:
		if m.Event == nil {
			slog.Debug("gateway: event message without event", "id", ctrl.ID())
			return
		}
		ev, derr := m.Event.Decode()
		if derr != nil {
			slog.Warn("gateway: bad recognizer event", "id", ctrl.ID(), "err", derr)
			return
		}
		rec := p.current()
		if rec == nil {
			slog.Debug("gateway: event without recognizer", "id", ctrl.ID(), "kind", ev.Kind)
			return
		}
		rec.deliver(ev)
	case MsgVisibility:
		if m.Visible != nil {
			err = ctrl.SetVisible(ctx, *m.Visible)
		}
	case MsgStart:
		err = ctrl.Start(ctx)
	case MsgStop:
		err = ctrl.Stop(ctx)
	default:
		slog.Debug("gateway: unknown message", "id", ctrl.ID(), "type", m.Type)
	}
	if err != nil {
		slog.Info("gateway: command failed", "id", ctrl.ID(), "type", m.Type, "err", err)
	}
}
