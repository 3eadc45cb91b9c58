package stt

import "fmt"

// EventKind classifies an [Event].
type EventKind int

const (
	// EventStart reports that a recognition session is now listening.
	EventStart EventKind = iota + 1

	// EventEnd reports that the current recognition session has ended, either
	// on request or on the capability's own initiative.
	EventEnd

	// EventResult carries a batch of recognition results.
	EventResult

	// EventError reports a recognition error. An EventEnd usually follows.
	EventError
)

// String returns the lowercase name of the kind.
func (k EventKind) String() string {
	switch k {
	case EventStart:
		return "start"
	case EventEnd:
		return "end"
	case EventResult:
		return "result"
	case EventError:
		return "error"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Result is one recognition hypothesis inside a batch.
type Result struct {
	// Transcript is the recognised text.
	Transcript string `json:"transcript"`

	// IsFinal marks a result the capability will not revise further.
	IsFinal bool `json:"isFinal"`

	// Confidence is the recogniser's confidence (0.0–1.0), zero if unknown.
	Confidence float64 `json:"confidence,omitempty"`
}

// Event is a single notification from a Recognizer.
type Event struct {
	Kind EventKind

	// ResultIndex is the index of the first result in Results that changed
	// since the previous batch. Only meaningful for EventResult.
	ResultIndex int

	// Results is the batch carried by an EventResult.
	Results []Result

	// Err is set for EventError.
	Err *Error
}

// ErrorCode is the coarse error code reported by a capability. The values
// mirror the codes used by browser speech engines so remote capabilities can
// forward them verbatim.
type ErrorCode string

const (
	CodeNotAllowed        ErrorCode = "not-allowed"
	CodeServiceNotAllowed ErrorCode = "service-not-allowed"
	CodeAudioCapture      ErrorCode = "audio-capture"
	CodeNoSpeech          ErrorCode = "no-speech"
	CodeAborted           ErrorCode = "aborted"
	CodeNetwork           ErrorCode = "network"
	CodeLanguage          ErrorCode = "language-not-supported"
)

// Error is a recognition error reported through an [EventError].
type Error struct {
	Code    ErrorCode
	Message string
}

// Error implements error.
func (e *Error) Error() string {
	if e.Message == "" {
		return "stt: " + string(e.Code)
	}
	return fmt.Sprintf("stt: %s: %s", e.Code, e.Message)
}

// StartEvent, EndEvent, ResultEvent and ErrorEvent build events for
// Recognizer implementations.
func StartEvent() Event { return Event{Kind: EventStart} }

func EndEvent() Event { return Event{Kind: EventEnd} }

func ResultEvent(index int, results ...Result) Event {
	return Event{Kind: EventResult, ResultIndex: index, Results: results}
}

func ErrorEvent(code ErrorCode, msg string) Event {
	return Event{Kind: EventError, Err: &Error{Code: code, Message: msg}}
}
