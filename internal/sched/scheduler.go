// Package sched drives the chord position: a tempo clock in Auto-Play, and
// plain advance/select calls in Perform mode.
package sched

import (
	"errors"
	"fmt"
	"time"

	"github.com/icco/chordcoach/internal/clock"
)

const (
	DefaultFrameInterval   = 10 * time.Millisecond
	DefaultTempo           = 120.0
	DefaultBeatsPerMeasure = 4
)

var ErrIndex = errors.New("chord index out of range")

// Scheduler owns the chord index and beat counter. In Auto-Play a frame
// loop, finer than one beat, derives elapsed beats from an absolute anchor
// time so per-frame jitter never accumulates.
type Scheduler struct {
	clk   clock.Clock
	frame *clock.Slot
	every time.Duration

	tempo float64
	meter int

	length int
	index  int
	beat   int

	running bool
	anchor  time.Time
	beats   int64

	// OnChord is called when Auto-Play reaches a chord, including the first
	// one at start.
	OnChord func(index int)
	// OnBeat is called on every beat while Auto-Play runs, including beat 0
	// at start.
	OnBeat func(beat int)
}

func New(c clock.Clock, frameInterval time.Duration) *Scheduler {
	if frameInterval <= 0 {
		frameInterval = DefaultFrameInterval
	}
	return &Scheduler{
		clk:   c,
		frame: clock.NewSlot(c),
		every: frameInterval,
		tempo: DefaultTempo,
		meter: DefaultBeatsPerMeasure,
	}
}

// SetLength sets the progression length and rewinds to the first chord.
func (s *Scheduler) SetLength(n int) {
	s.length = n
	s.index = 0
	s.beat = 0
}

func (s *Scheduler) Length() int          { return s.length }
func (s *Scheduler) Index() int           { return s.index }
func (s *Scheduler) Beat() int            { return s.beat }
func (s *Scheduler) Running() bool        { return s.running }
func (s *Scheduler) Tempo() float64       { return s.tempo }
func (s *Scheduler) BeatsPerMeasure() int { return s.meter }

// BeatDuration is 60000/tempo milliseconds.
func (s *Scheduler) BeatDuration() time.Duration {
	return time.Duration(float64(time.Minute) / s.tempo)
}

// MeasureDuration is one full bar at the current tempo.
func (s *Scheduler) MeasureDuration() time.Duration {
	return s.BeatDuration() * time.Duration(s.meter)
}

// SetTempo changes the tempo. While running, the beat grid is re-anchored
// at the last beat so the beat in progress is neither lost nor repeated.
func (s *Scheduler) SetTempo(bpm float64) {
	if bpm <= 0 {
		return
	}
	if s.running {
		s.anchor = s.anchor.Add(time.Duration(s.beats) * s.BeatDuration())
		s.beats = 0
	}
	s.tempo = bpm
}

func (s *Scheduler) SetBeatsPerMeasure(n int) {
	if n <= 0 {
		return
	}
	s.meter = n
	s.beat %= n
}

// Start begins Auto-Play from the current index. The current chord sounds
// immediately.
func (s *Scheduler) Start() {
	if s.running || s.length == 0 {
		return
	}
	s.running = true
	s.restartMeasure()
	if s.OnBeat != nil {
		s.OnBeat(s.beat)
	}
	if s.OnChord != nil {
		s.OnChord(s.index)
	}
	s.scheduleFrame()
}

// Stop cancels the frame loop and resets the beat counter.
func (s *Scheduler) Stop() {
	s.running = false
	s.frame.Stop()
	s.beat = 0
	s.beats = 0
}

func (s *Scheduler) restartMeasure() {
	s.beat = 0
	s.beats = 0
	s.anchor = s.clk.Now()
}

func (s *Scheduler) scheduleFrame() {
	s.frame.Reset(s.every, s.tick)
}

func (s *Scheduler) tick() {
	if !s.running {
		return
	}
	elapsed := int64(s.clk.Now().Sub(s.anchor) / s.BeatDuration())
	for s.running && s.beats < elapsed {
		s.beats++
		s.beat = (s.beat + 1) % s.meter
		if s.OnBeat != nil {
			s.OnBeat(s.beat)
		}
		if s.beat == 0 {
			s.index = s.wrap(s.index + 1)
			if s.OnChord != nil {
				s.OnChord(s.index)
			}
		}
	}
	if s.running {
		s.scheduleFrame()
	}
}

func (s *Scheduler) wrap(i int) int {
	if s.length == 0 {
		return 0
	}
	return ((i % s.length) + s.length) % s.length
}

// Advance moves to the next chord, wrapping to 0 after the last.
func (s *Scheduler) Advance() int {
	s.index = s.wrap(s.index + 1)
	s.resync()
	return s.index
}

// Back moves to the previous chord, wrapping to the last.
func (s *Scheduler) Back() int {
	s.index = s.wrap(s.index - 1)
	s.resync()
	return s.index
}

// Select jumps to chord i.
func (s *Scheduler) Select(i int) error {
	if i < 0 || i >= s.length {
		return fmt.Errorf("%w: %d not in [0,%d)", ErrIndex, i, s.length)
	}
	s.index = i
	s.resync()
	return nil
}

// resync gives a manually chosen chord a full measure in Auto-Play.
func (s *Scheduler) resync() {
	if s.running {
		s.restartMeasure()
	}
}
