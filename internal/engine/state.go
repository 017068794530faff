package engine

import (
	"time"

	"github.com/icco/chordcoach/internal/input"
	"github.com/icco/chordcoach/internal/match"
	"github.com/icco/chordcoach/internal/music"
)

// State is a snapshot of the session for display.
type State struct {
	Mode            Mode    `json:"mode"`
	SongID          string  `json:"song_id,omitempty"`
	Title           string  `json:"title,omitempty"`
	Index           int     `json:"index"`
	Beat            int     `json:"beat"`
	Tempo           float64 `json:"tempo"`
	BeatsPerMeasure int     `json:"beats_per_measure"`
	Metronome       bool    `json:"metronome"`
	Synthesis       bool    `json:"synthesis"`
	AudioReady      bool    `json:"audio_ready"`

	Chords []ChordView     `json:"chords"`
	Held   []music.Pitch   `json:"held"`
	Target []music.Pitch   `json:"target"`
	Last   *EvaluationView `json:"last_evaluation,omitempty"`

	// Problems lists chords that can never be matched.
	Problems []ProblemView `json:"problems,omitempty"`

	Device          *input.Device      `json:"device,omitempty"`
	DeviceConnected bool               `json:"device_connected"`
	DemoOffered     bool               `json:"demo_offered"`
	Layout          string             `json:"layout,omitempty"`
	Keys            []input.KeyBinding `json:"keys,omitempty"`
	Error           string             `json:"error,omitempty"`
}

// ChordView is one chord of the progression.
type ChordView struct {
	Name    string   `json:"name"`
	Notes   []string `json:"notes"`
	Problem string   `json:"problem,omitempty"`
}

// ProblemView is a malformed chord.
type ProblemView struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

// EvaluationView is the last matcher result.
type EvaluationView struct {
	Seq     uint64        `json:"seq"`
	Outcome match.Outcome `json:"outcome"`
	Index   int           `json:"index"`
	Held    []music.Pitch `json:"held"`
	Target  []music.Pitch `json:"target"`
	At      time.Time     `json:"at"`
}

// HeldSet returns Held as a set.
func (s State) HeldSet() music.PitchSet { return music.NewPitchSet(s.Held...) }

// Current returns the chord at Index, if any.
func (s State) Current() (ChordView, bool) {
	if s.Index < 0 || s.Index >= len(s.Chords) {
		return ChordView{}, false
	}
	return s.Chords[s.Index], true
}

func newEvaluationView(ev match.Evaluation) *EvaluationView {
	return &EvaluationView{
		Seq:     ev.Seq,
		Outcome: ev.Outcome,
		Index:   ev.Index,
		Held:    ev.Held.Pitches(),
		Target:  ev.Target.Pitches(),
		At:      ev.At,
	}
}
