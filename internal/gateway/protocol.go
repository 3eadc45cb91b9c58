package gateway

import (
	"fmt"

	"github.com/MrWong99/jurubahasa/internal/display"
	"github.com/MrWong99/jurubahasa/pkg/provider/stt"
)

// Message types sent by the browser on /session.
const (
	MsgHello      = "hello"
	MsgEvent      = "event"
	MsgVisibility = "visibility"
	MsgStart      = "start"
	MsgStop       = "stop"
)

// Message types sent by the server.
const (
	MsgDisplay = "display"
	MsgCommand = "command"
)

// Commands the server sends to the browser's recognizer.
const (
	CommandStart = "start"
	CommandStop  = "stop"
	CommandAbort = "abort"
)

// ClientMessage is one JSON frame received from a browser.
type ClientMessage struct {
	Type string `json:"type"`

	// Hello fields. Mode is "continuous" or "fragmented"; Speech is false when
	// the browser has no speech recognition engine.
	Mode   string `json:"mode,omitempty"`
	Speech *bool  `json:"speech,omitempty"`

	Event   *WireEvent `json:"event,omitempty"`
	Visible *bool      `json:"visible,omitempty"`
}

// WireEvent is the JSON form of stt.Event.
type WireEvent struct {
	Kind        string       `json:"kind"`
	ResultIndex int          `json:"resultIndex,omitempty"`
	Results     []stt.Result `json:"results,omitempty"`
	Error       *WireError   `json:"error,omitempty"`
}

// WireError is the JSON form of stt.Error.
type WireError struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// Decode converts w into an stt.Event.
func (w WireEvent) Decode() (stt.Event, error) {
	switch w.Kind {
	case "start":
		return stt.StartEvent(), nil
	case "end":
		return stt.EndEvent(), nil
	case "result":
		if w.ResultIndex < 0 || w.ResultIndex > len(w.Results) {
			return stt.Event{}, fmt.Errorf("gateway: result index %d out of range", w.ResultIndex)
		}
		return stt.ResultEvent(w.ResultIndex, w.Results...), nil
	case "error":
		if w.Error == nil || w.Error.Code == "" {
			return stt.Event{}, fmt.Errorf("gateway: error event without code")
		}
		return stt.ErrorEvent(stt.ErrorCode(w.Error.Code), w.Error.Message), nil
	default:
		return stt.Event{}, fmt.Errorf("gateway: unknown event kind %q", w.Kind)
	}
}

// ServerMessage is one JSON frame sent to a browser or viewer.
type ServerMessage struct {
	Type string `json:"type"`

	Op *display.Op `json:"op,omitempty"`

	Command string         `json:"command,omitempty"`
	Config  *CommandConfig `json:"config,omitempty"`
}

// CommandConfig accompanies a start command.
type CommandConfig struct {
	Language       string `json:"lang"`
	InterimResults bool   `json:"interimResults"`
	Continuous     bool   `json:"continuous"`
}

func displayMessage(op display.Op) ServerMessage {
	return ServerMessage{Type: MsgDisplay, Op: &op}
}
