// Package gateway is the HTTP surface of jurubahasa.
//
// GET /session upgrades to a websocket on which the browser is both the
// speech recognizer and the display: the server sends display operations and
// recognizer commands, the browser sends its recognition events, visibility
// changes and start/stop requests. Every connection gets its own session.
//
// GET /watch lets read-only viewers follow the headless session, and the
// /control endpoints start and stop it.
//
// Wire format: one JSON object per text frame.
//
//	browser → server  {"type":"hello","mode":"fragmented","speech":true}
//	                  {"type":"event","event":{"kind":"result","resultIndex":0,"results":[{"transcript":"halo","isFinal":true}]}}
//	                  {"type":"visibility","visible":false}
//	                  {"type":"start"} | {"type":"stop"}
//	server → browser  {"type":"command","command":"start","config":{"lang":"id-ID","interimResults":true,"continuous":true}}
//	                  {"type":"display","op":{"type":"final.append","final":{...}}}
package gateway

import (
	"errors"
	"net/http"
	"time"

	"github.com/MrWong99/jurubahasa/internal/display"
	"github.com/MrWong99/jurubahasa/internal/reconcile"
	"github.com/MrWong99/jurubahasa/internal/session"
	"github.com/MrWong99/jurubahasa/pkg/provider/stt"
)

const (
	defaultSendQueue    = 256
	defaultHelloTimeout = 5 * time.Second
)

// SessionFactory creates the controller for one browser connection. The
// returned controller must not be running yet.
type SessionFactory func(mode reconcile.Mode, provider stt.Provider, sink display.Sink) (*session.Controller, error)

// Config configures a Server.
type Config struct {
	// NewSession builds browser sessions. Required for /session.
	NewSession SessionFactory

	// Board is the headless session's display, served on /watch when set.
	Board *display.Board

	// Control is the headless session, driven by /control when set.
	Control Control

	// OriginPatterns are the extra hosts allowed to open websockets.
	OriginPatterns []string

	// SendQueue bounds each connection's outbound backlog. Default: 256.
	SendQueue int

	// HelloTimeout bounds how long a browser may take to introduce itself.
	// Default: 5s.
	HelloTimeout time.Duration
}

// Server holds the gateway handlers.
type Server struct {
	cfg Config
	hub *Hub
}

// New validates cfg and returns a Server.
func New(cfg Config) (*Server, error) {
	if cfg.NewSession == nil && cfg.Board == nil && cfg.Control == nil {
		return nil, errors.New("gateway: nothing to serve")
	}
	if cfg.SendQueue <= 0 {
		cfg.SendQueue = defaultSendQueue
	}
	if cfg.HelloTimeout <= 0 {
		cfg.HelloTimeout = defaultHelloTimeout
	}
	s := &Server{cfg: cfg}
	if cfg.Board != nil {
		s.hub = NewHub(cfg.Board, cfg.SendQueue, cfg.OriginPatterns)
	}
	return s, nil
}

// Hub returns the viewer hub, or nil without a board.
func (s *Server) Hub() *Hub { return s.hub }

// Register adds the configured routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	if s.cfg.NewSession != nil {
		mux.HandleFunc("GET /session", s.serveSession)
	}
	if s.hub != nil {
		mux.Handle("GET /watch", s.hub)
	}
	if s.cfg.Control != nil {
		RegisterControl(mux, s.cfg.Control)
	}
}
