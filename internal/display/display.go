// Package display defines the Sink that sessions render into and the
// value types that travel through it.
//
// A session shows at most one live card, which is replaced in place while
// the speaker is talking, and an append-only list of final cards. Status
// lines and transient notifications complete the surface.
//
// Sink methods are called from a session's event loop and must not block
// for long. Sinks that talk to the network queue work internally.
package display

import (
	"fmt"
	"time"
)

// StatusKind classifies a status line so that renderers can pick colours or
// icons.
type StatusKind int

const (
	// StatusIdle prompts the user to start a session.
	StatusIdle StatusKind = iota
	// StatusListening tells the user the recognizer is running.
	StatusListening
	// StatusInterim carries text that is still being recognised.
	StatusInterim
	// StatusConfirmed carries text that has been committed.
	StatusConfirmed
	// StatusError carries a failure the user must act on.
	StatusError
	// StatusStopped is shown after an explicit stop.
	StatusStopped
)

var statusKindNames = [...]string{"idle", "listening", "interim", "confirmed", "error", "stopped"}

// String returns the lower-case name of k.
func (k StatusKind) String() string {
	if int(k) >= 0 && int(k) < len(statusKindNames) {
		return statusKindNames[k]
	}
	return fmt.Sprintf("StatusKind(%d)", int(k))
}

// MarshalText implements encoding.TextMarshaler.
func (k StatusKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *StatusKind) UnmarshalText(b []byte) error {
	for i, n := range statusKindNames {
		if n == string(b) {
			*k = StatusKind(i)
			return nil
		}
	}
	return fmt.Errorf("display: unknown status kind %q", b)
}

// Status is the single status line.
type Status struct {
	Kind StatusKind `json:"kind"`
	Text string     `json:"text"`
}

// LiveCard is the provisional translation of speech that is still in
// progress. There is at most one.
type LiveCard struct {
	Translated string `json:"translated"`
	Original   string `json:"original"`
}

// FinalCard is a committed translation. It is never modified once appended.
type FinalCard struct {
	ID         uint64    `json:"id"`
	Translated string    `json:"translated"`
	Original   string    `json:"original"`
	Provider   string    `json:"provider,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Level is the severity of a notification.
type Level int

const (
	LevelInfo Level = iota
	LevelWarning
	LevelError
)

var levelNames = [...]string{"info", "warning", "error"}

// String returns the lower-case name of l.
func (l Level) String() string {
	if int(l) >= 0 && int(l) < len(levelNames) {
		return levelNames[l]
	}
	return fmt.Sprintf("Level(%d)", int(l))
}

// MarshalText implements encoding.TextMarshaler.
func (l Level) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Level) UnmarshalText(b []byte) error {
	for i, n := range levelNames {
		if n == string(b) {
			*l = Level(i)
			return nil
		}
	}
	return fmt.Errorf("display: unknown level %q", b)
}

// Notification is a transient message. A zero TTL keeps it until replaced.
type Notification struct {
	Level Level         `json:"level"`
	Text  string        `json:"text"`
	TTL   time.Duration `json:"ttl"`
}

// Persistent reports whether n stays until replaced.
func (n Notification) Persistent() bool { return n.TTL <= 0 }

// Sink receives the display operations of one session.
type Sink interface {
	ShowStatus(s Status)
	UpsertLiveCard(c LiveCard)
	RemoveLiveCard()
	AppendFinalCard(c FinalCard)
	ShowNotification(n Notification)
}
