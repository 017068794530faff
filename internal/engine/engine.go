// Package engine is the performance controller. It owns the session (mode,
// chord position, held notes) and wires the input adapters, held-notes
// tracker, chord matcher and scheduler together.
//
// A Controller is not safe for concurrent use. Every method, and every
// clock callback, must run on one loop goroutine; see package clock.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/icco/chordcoach/internal/clock"
	"github.com/icco/chordcoach/internal/held"
	"github.com/icco/chordcoach/internal/input"
	"github.com/icco/chordcoach/internal/match"
	"github.com/icco/chordcoach/internal/music"
	"github.com/icco/chordcoach/internal/sched"
)

var (
	ErrNoProgression   = errors.New("no progression loaded")
	ErrPerforming      = errors.New("a performance is in progress")
	ErrSessionActive   = errors.New("session is active")
	ErrChordIndex      = sched.ErrIndex
	ErrClosed          = errors.New("controller closed")
	ErrMIDIUnavailable = errors.New("MIDI input unavailable")
	ErrTempoRange      = errors.New("tempo out of range")
	ErrBadMode         = errors.New("not a perform mode")
)

const (
	MinTempo = 20
	MaxTempo = 300
)

// Mode is the session state.
type Mode int

const (
	Idle Mode = iota
	AutoPlaying
	PerformingMIDI
	PerformingDemo
)

func (m Mode) String() string {
	switch m {
	case AutoPlaying:
		return "autoplay"
	case PerformingMIDI:
		return "midi"
	case PerformingDemo:
		return "demo"
	default:
		return "idle"
	}
}

// Performing reports whether m is one of the perform modes.
func (m Mode) Performing() bool { return m == PerformingMIDI || m == PerformingDemo }

func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *Mode) UnmarshalText(b []byte) error {
	mode, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

// ParseMode accepts the names produced by Mode.String.
func ParseMode(s string) (Mode, error) {
	for _, m := range []Mode{Idle, AutoPlaying, PerformingMIDI, PerformingDemo} {
		if m.String() == s {
			return m, nil
		}
	}
	return Idle, fmt.Errorf("unknown mode %q", s)
}

// ToneEngine sounds notes. Implementations must not block the caller for
// the duration of the note.
type ToneEngine interface {
	PlayNotes(ps []music.Pitch, dur time.Duration, velocity uint8) error
	Click(accent bool) error
	StopAll()
	Ready() bool
}

// Metrics receives engine counters. All methods are called on the loop.
type Metrics interface {
	NoteEvent(kind input.Kind)
	Evaluation(outcome match.Outcome)
	ChordChange(mode Mode)
	ModeChange(mode Mode)
	AudioError()
}

type nopMetrics struct{}

func (nopMetrics) NoteEvent(input.Kind)     {}
func (nopMetrics) Evaluation(match.Outcome) {}
func (nopMetrics) ChordChange(Mode)         {}
func (nopMetrics) ModeChange(Mode)          {}
func (nopMetrics) AudioError()              {}

// Options configure a Controller. Zero values take defaults.
type Options struct {
	// Clock schedules every timer. Its callbacks must run on the loop.
	Clock clock.Clock
	// Post hands work from MIDI driver goroutines to the loop.
	Post clock.PostFunc
	Tone ToneEngine
	// MIDI is the host MIDI capability; nil means unsupported.
	MIDI    input.MIDIAccess
	Logger  *slog.Logger
	Metrics Metrics

	MatchDelay    time.Duration
	ReleaseDelay  time.Duration
	FrameInterval time.Duration
	// ChordDuration is how long a selected chord sounds. Zero means one
	// measure.
	ChordDuration time.Duration
	NoteDuration  time.Duration
	Velocity      uint8

	Tempo           float64
	BeatsPerMeasure int
	Metronome       bool
	Synthesis       bool

	// Device is the preferred MIDI input, by ID or name fragment.
	Device string
}

const (
	defaultNoteDuration = 400 * time.Millisecond
	defaultVelocity     = 90
)

func (o *Options) setDefaults() {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Metrics == nil {
		o.Metrics = nopMetrics{}
	}
	if o.MatchDelay <= 0 {
		o.MatchDelay = match.DefaultDelay
	}
	if o.ReleaseDelay <= 0 {
		o.ReleaseDelay = held.DefaultReleaseDelay
	}
	if o.FrameInterval <= 0 {
		o.FrameInterval = sched.DefaultFrameInterval
	}
	if o.NoteDuration <= 0 {
		o.NoteDuration = defaultNoteDuration
	}
	if o.Velocity == 0 {
		o.Velocity = defaultVelocity
	}
	if o.Tempo <= 0 {
		o.Tempo = sched.DefaultTempo
	}
	if o.BeatsPerMeasure <= 0 {
		o.BeatsPerMeasure = sched.DefaultBeatsPerMeasure
	}
}
