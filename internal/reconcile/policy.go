// Package reconcile turns a stream of interim and final speech recognition
// results into a small number of translation calls and display updates.
//
// A [Reconciler] is single-threaded: every method, every timer callback and
// every translation completion must run on the same goroutine. The session
// package provides that goroutine; tests drive it directly with the manual
// scheduler and dispatcher from the mock sub-package.
package reconcile

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Mode selects how final results are committed.
type Mode string

const (
	// ModeContinuous commits every final result immediately. Recognizers
	// that keep one long session open behave this way.
	ModeContinuous Mode = "continuous"

	// ModeFragmented accumulates final fragments and commits them after a
	// period of silence. Recognizers that end the session after every short
	// utterance behave this way.
	ModeFragmented Mode = "fragmented"
)

// ParseMode parses a mode name. The empty string yields ModeContinuous.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeContinuous:
		return ModeContinuous, nil
	case ModeFragmented:
		return ModeFragmented, nil
	default:
		return "", fmt.Errorf("reconcile: unknown mode %q", s)
	}
}

// Policy holds the tunables of a Reconciler.
type Policy struct {
	Mode Mode

	// PreviewDelay debounces live previews after the last interim result.
	PreviewDelay time.Duration

	// SilenceTimeout commits accumulated fragments after the last final
	// fragment. Fragmented mode only.
	SilenceTimeout time.Duration

	// FragmentPreview also schedules a live preview of the accumulated text
	// after each final fragment. Fragmented mode only.
	FragmentPreview bool

	Dedup DedupPolicy

	// Source and Target are the fixed language pair.
	Source string
	Target string

	// NotificationTTL is how long warnings raised by the reconciler stay
	// visible.
	NotificationTTL time.Duration
}

// DefaultPolicy returns the defaults for mode.
func DefaultPolicy(mode Mode) Policy {
	p := Policy{
		Mode:            mode,
		PreviewDelay:    800 * time.Millisecond,
		Dedup:           DefaultDedupPolicy(),
		Source:          "id",
		Target:          "en",
		NotificationTTL: 4 * time.Second,
	}
	if mode == ModeFragmented {
		p.PreviewDelay = 500 * time.Millisecond
		p.SilenceTimeout = 3 * time.Second
		p.FragmentPreview = true
	}
	return p
}

// Validate reports every problem with p.
func (p Policy) Validate() error {
	var errs []error
	switch p.Mode {
	case ModeContinuous, ModeFragmented:
	default:
		errs = append(errs, fmt.Errorf("reconcile: unknown mode %q", p.Mode))
	}
	if p.PreviewDelay < 0 {
		errs = append(errs, errors.New("reconcile: preview delay must not be negative"))
	}
	if p.Mode == ModeFragmented && p.SilenceTimeout <= 0 {
		errs = append(errs, errors.New("reconcile: fragmented mode needs a positive silence timeout"))
	}
	if p.Source == "" || p.Target == "" {
		errs = append(errs, errors.New("reconcile: source and target languages are required"))
	}
	if err := p.Dedup.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
