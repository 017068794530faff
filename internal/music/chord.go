package music

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyChord       = errors.New("chord has no notes")
	ErrEmptyProgression = errors.New("progression has no chords")
)

// NoteError reports a chord entry that could not be parsed into a pitch.
type NoteError struct {
	Entry string
	Index int
	Err   error
}

func (e *NoteError) Error() string {
	return fmt.Sprintf("chord entry %d %q: %v", e.Index, e.Entry, e.Err)
}

func (e *NoteError) Unwrap() error { return e.Err }

// Chord is a stored chord: an optional display name and its entries as
// name+octave strings ("C4", "Eb4", ...). Entries stay as strings so that a
// bad entry in stored data is reported when the chord is used rather than
// silently replaced.
type Chord struct {
	Name  string   `json:"name,omitempty"`
	Notes []string `json:"notes"`
}

// ChordOf builds a Chord from pitches.
func ChordOf(name string, ps ...Pitch) Chord {
	c := Chord{Name: name, Notes: make([]string, len(ps))}
	for i, p := range ps {
		c.Notes[i] = p.String()
	}
	return c
}

// PitchSet parses every entry and returns the chord's pitches. Order and
// repeated entries do not matter; octave does. Any unparsable entry fails
// the whole chord.
func (c Chord) PitchSet() (PitchSet, error) {
	if len(c.Notes) == 0 {
		return PitchSet{}, ErrEmptyChord
	}
	var s PitchSet
	for i, entry := range c.Notes {
		p, err := ParsePitch(entry)
		if err != nil {
			return PitchSet{}, &NoteError{Entry: entry, Index: i, Err: err}
		}
		s = s.With(p)
	}
	return s, nil
}

// Label returns the chord's name, or its notes when it has none.
func (c Chord) Label() string {
	if c.Name != "" {
		return c.Name
	}
	return strings.Join(c.Notes, " ")
}

// Progression is the ordered chord list of a song.
type Progression []Chord

// ChordProblem describes a chord in a progression that can never match.
type ChordProblem struct {
	Index int
	Err   error
}

// Problems parses every chord and returns the ones that fail.
func (p Progression) Problems() []ChordProblem {
	var out []ChordProblem
	for i, c := range p {
		if _, err := c.PitchSet(); err != nil {
			out = append(out, ChordProblem{Index: i, Err: err})
		}
	}
	return out
}

// Range returns the union of every parsable chord's pitches.
func (p Progression) Range() PitchSet {
	var all PitchSet
	for _, c := range p {
		if s, err := c.PitchSet(); err == nil {
			all = all.Union(s)
		}
	}
	return all
}

// Song is a titled progression with its tempo and meter.
type Song struct {
	ID              string      `json:"id"`
	Title           string      `json:"title"`
	Tempo           int         `json:"tempo"`
	BeatsPerMeasure int         `json:"beatsPerMeasure"`
	Chords          Progression `json:"chords"`
}

// Validate checks the structural requirements of a song. Malformed chord
// entries are not an error here; they surface as Progression.Problems.
func (s Song) Validate() error {
	if len(s.Chords) == 0 {
		return ErrEmptyProgression
	}
	for i, c := range s.Chords {
		if len(c.Notes) == 0 {
			return fmt.Errorf("chord %d: %w", i, ErrEmptyChord)
		}
	}
	if s.Tempo < 0 || s.BeatsPerMeasure < 0 {
		return fmt.Errorf("song %q: negative tempo or meter", s.Title)
	}
	return nil
}
