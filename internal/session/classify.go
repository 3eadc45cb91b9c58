package session

import (
	"fmt"

	"github.com/MrWong99/jurubahasa/pkg/provider/stt"
)

// Class says how the controller reacts to a recognizer error.
type Class int

const (
	// ClassIgnored errors are the expected noise of the restart cycle.
	ClassIgnored Class = iota

	// ClassHint errors show an informational notification and keep going.
	ClassHint

	// ClassTransient errors show an error status and a short warning; the
	// restart cycle continues.
	ClassTransient

	// ClassWarning errors are shown verbatim as a short warning.
	ClassWarning

	// ClassFatal errors disable the automatic restart.
	ClassFatal
)

// String returns the lowercase name of the class.
func (c Class) String() string {
	switch c {
	case ClassIgnored:
		return "ignored"
	case ClassHint:
		return "hint"
	case ClassTransient:
		return "transient"
	case ClassWarning:
		return "warning"
	case ClassFatal:
		return "fatal"
	default:
		return fmt.Sprintf("Class(%d)", int(c))
	}
}

// Classify maps a recognizer error code to its class.
func Classify(code stt.ErrorCode) Class {
	switch code {
	case stt.CodeNotAllowed, stt.CodeServiceNotAllowed:
		return ClassFatal
	case stt.CodeAudioCapture:
		return ClassHint
	case stt.CodeNoSpeech, stt.CodeAborted:
		return ClassIgnored
	case stt.CodeNetwork:
		return ClassTransient
	default:
		return ClassWarning
	}
}

// User-facing texts.
const (
	textIdle             = "Press Start to begin"
	textListening        = "Listening..."
	textStopped          = "Stopped"
	textPermissionStatus = "Microphone access denied"
	textPermissionHelp   = "Allow microphone access for this page (lock icon next to the address bar), then press Start."
	textAudioCapture     = "No microphone input. Check that a microphone is connected and not used by another app."
	textNetworkStatus    = "Network problem, check the connection"
	textNetworkWarning   = "Speech recognition lost its network connection"
	textUnavailable      = "Speech recognition is not available here"
)

// warningText renders an unclassified error verbatim.
func warningText(e *stt.Error) string {
	if e.Message == "" {
		return "Speech recognition error: " + string(e.Code)
	}
	return fmt.Sprintf("Speech recognition error: %s (%s)", e.Code, e.Message)
}
