// Package match decides when the performer is holding the target chord.
package match

import (
	"fmt"
	"time"

	"github.com/icco/chordcoach/internal/clock"
	"github.com/icco/chordcoach/internal/music"
)

// DefaultDelay is how long the matcher waits after the last NoteOn before
// comparing. It must stay below the release delay so a quick tap is still
// evaluated before its notes drop out.
const DefaultDelay = 150 * time.Millisecond

// Outcome is the result of one evaluation.
type Outcome int

const (
	Miss Outcome = iota
	Match
	// Unmatchable means the target chord itself is malformed.
	Unmatchable
)

func (o Outcome) String() string {
	switch o {
	case Match:
		return "match"
	case Unmatchable:
		return "unmatchable"
	default:
		return "miss"
	}
}

func (o Outcome) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

func (o *Outcome) UnmarshalText(b []byte) error {
	switch string(b) {
	case "match":
		*o = Match
	case "miss":
		*o = Miss
	case "unmatchable":
		*o = Unmatchable
	default:
		return fmt.Errorf("unknown outcome %q", b)
	}
	return nil
}

// Evaluation records one comparison of held notes against a target.
type Evaluation struct {
	Seq     uint64         `json:"seq"`
	Outcome Outcome        `json:"outcome"`
	Index   int            `json:"index"`
	Held    music.PitchSet `json:"-"`
	Target  music.PitchSet `json:"-"`
	Err     error          `json:"-"`
	At      time.Time      `json:"at"`
}

// Holder is the held-notes store the matcher reads and, on a match, clears.
type Holder interface {
	Snapshot() music.PitchSet
	Clear()
}

// TargetFunc returns the index and pitch set of the chord to match now.
// A non-nil error marks the chord as malformed.
type TargetFunc func() (int, music.PitchSet, error)

// Matcher runs a single debounced evaluation after note activity.
type Matcher struct {
	clk    clock.Clock
	slot   *clock.Slot
	delay  time.Duration
	held   Holder
	target TargetFunc
	seq    uint64

	// OnResult is called with every evaluation. On Match the held notes
	// have already been cleared.
	OnResult func(Evaluation)
}

// New returns a Matcher comparing the notes held in h with target, delay
// after the last Schedule. A non-positive delay uses DefaultDelay.
func New(c clock.Clock, delay time.Duration, h Holder, target TargetFunc) *Matcher {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Matcher{clk: c, slot: clock.NewSlot(c), delay: delay, held: h, target: target}
}

// Schedule replaces any pending evaluation with a fresh one.
func (m *Matcher) Schedule() {
	m.slot.Reset(m.delay, m.fire)
}

// Cancel drops the pending evaluation, if any.
func (m *Matcher) Cancel() { m.slot.Stop() }

// Pending reports whether an evaluation is scheduled.
func (m *Matcher) Pending() bool { return m.slot.Pending() }

func (m *Matcher) Delay() time.Duration { return m.delay }

// Evaluate compares immediately, cancelling any pending evaluation.
func (m *Matcher) Evaluate() Evaluation {
	m.slot.Stop()
	return m.evaluate()
}

func (m *Matcher) fire() { m.evaluate() }

func (m *Matcher) evaluate() Evaluation {
	m.seq++
	snap := m.held.Snapshot()
	idx, want, err := m.target()
	ev := Evaluation{Seq: m.seq, Index: idx, Held: snap, Target: want, Err: err, At: m.clk.Now()}
	switch {
	case err != nil:
		ev.Outcome = Unmatchable
	case snap == want:
		ev.Outcome = Match
		m.held.Clear()
	default:
		ev.Outcome = Miss
	}
	if m.OnResult != nil {
		m.OnResult(ev)
	}
	return ev
}
