package reconcile

import (
	"errors"
	"fmt"
	"strings"

	"github.com/antzucaro/matchr"
)

// DedupRule selects how a candidate final is compared with what was already
// committed.
type DedupRule string

const (
	// DedupExact suppresses a final equal to the last committed text.
	DedupExact DedupRule = "exact"

	// DedupContains suppresses a final equal to, or contained in, any of the
	// recently committed texts.
	DedupContains DedupRule = "contains"

	// DedupSimilar suppresses a final whose Jaro-Winkler similarity with a
	// recently committed text reaches the threshold.
	DedupSimilar DedupRule = "similar"
)

// DedupPolicy configures a Deduper.
type DedupPolicy struct {
	Rule DedupRule

	// History is how many committed texts the contains and similar rules
	// remember.
	History int

	// Threshold is the minimum similarity for DedupSimilar, in [0, 1].
	Threshold float64
}

// DefaultDedupPolicy returns the exact rule with a 20 entry history and a
// 0.92 similarity threshold.
func DefaultDedupPolicy() DedupPolicy {
	return DedupPolicy{Rule: DedupExact, History: 20, Threshold: 0.92}
}

// Validate reports every problem with p.
func (p DedupPolicy) Validate() error {
	var errs []error
	switch p.Rule {
	case DedupExact, DedupContains, DedupSimilar:
	default:
		errs = append(errs, fmt.Errorf("reconcile: unknown dedup rule %q", p.Rule))
	}
	if p.Rule != DedupExact && p.History <= 0 {
		errs = append(errs, fmt.Errorf("reconcile: dedup rule %q needs a positive history", p.Rule))
	}
	if p.Rule == DedupSimilar && (p.Threshold <= 0 || p.Threshold > 1) {
		errs = append(errs, errors.New("reconcile: dedup threshold must be in (0, 1]"))
	}
	return errors.Join(errs...)
}

// Deduper remembers committed finals and recognises repeats. It is a best
// effort guard against recognizers that report the same utterance twice.
// Not safe for concurrent use.
type Deduper struct {
	policy  DedupPolicy
	last    string
	history []string
}

// NewDeduper returns an empty Deduper.
func NewDeduper(p DedupPolicy) *Deduper {
	return &Deduper{policy: p}
}

// IsDuplicate reports whether text repeats something already committed.
func (d *Deduper) IsDuplicate(text string) bool {
	if text == "" {
		return false
	}
	switch d.policy.Rule {
	case DedupContains:
		for _, h := range d.history {
			if h == text || strings.Contains(h, text) {
				return true
			}
		}
		return false
	case DedupSimilar:
		cand := strings.ToLower(text)
		for _, h := range d.history {
			if h == text || matchr.JaroWinkler(strings.ToLower(h), cand, false) >= d.policy.Threshold {
				return true
			}
		}
		return false
	default:
		return text == d.last
	}
}

// Remember records text as committed. The history keeps the most recent
// entries up to the configured size.
func (d *Deduper) Remember(text string) {
	d.last = text
	if d.policy.History <= 0 {
		return
	}
	d.history = append(d.history, text)
	if over := len(d.history) - d.policy.History; over > 0 {
		d.history = append([]string(nil), d.history[over:]...)
	}
}

// Reset forgets everything.
func (d *Deduper) Reset() {
	d.last = ""
	d.history = nil
}

// Last returns the most recently committed text.
func (d *Deduper) Last() string { return d.last }

// History returns a copy of the remembered texts, oldest first.
func (d *Deduper) History() []string {
	return append([]string(nil), d.history...)
}
