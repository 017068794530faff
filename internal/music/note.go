// Package music holds the note and chord model: pitches, pitch classes,
// chords, progressions and the conversions between them.
package music

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	MinPitch       Pitch = 0
	MaxPitch       Pitch = 127
	notesPerOctave       = 12
	MinOctave            = -1
	MaxOctave            = 9
)

var (
	ErrPitchRange    = errors.New("pitch out of MIDI range")
	ErrMalformedNote = errors.New("malformed note")
)

// Pitch is a MIDI note number in [0,127]. All note comparisons use it.
type Pitch uint8

// NoteName is one of the twelve pitch classes, C = 0 through B = 11.
type NoteName uint8

const (
	C NoteName = iota
	CSharp
	D
	DSharp
	E
	F
	FSharp
	G
	GSharp
	A
	ASharp
	B
)

var noteNames = [notesPerOctave]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// semitone offset of each natural letter from C
var letterOffsets = map[byte]int{'C': 0, 'D': 2, 'E': 4, 'F': 5, 'G': 7, 'A': 9, 'B': 11}

func (n NoteName) String() string {
	if int(n) >= notesPerOctave {
		return "?"
	}
	return noteNames[n]
}

// IsAccidental reports whether the pitch class is a black key.
func (n NoteName) IsAccidental() bool {
	switch n {
	case CSharp, DSharp, FSharp, GSharp, ASharp:
		return true
	}
	return false
}

// PitchToNoteOctave splits a pitch into its pitch class and octave.
// Pitch 60 is C4.
func PitchToNoteOctave(p Pitch) (NoteName, int) {
	return NoteName(int(p) % notesPerOctave), int(p)/notesPerOctave - 1
}

// NoteOctaveToPitch is the inverse of PitchToNoteOctave.
func NoteOctaveToPitch(n NoteName, octave int) (Pitch, error) {
	if int(n) >= notesPerOctave {
		return 0, fmt.Errorf("%w: pitch class %d", ErrMalformedNote, n)
	}
	return pitchFromParts(int(n), octave)
}

func pitchFromParts(semitone, octave int) (Pitch, error) {
	v := (octave+1)*notesPerOctave + semitone
	if v < int(MinPitch) || v > int(MaxPitch) {
		return 0, fmt.Errorf("%w: %d", ErrPitchRange, v)
	}
	return Pitch(v), nil
}

// Octave returns the octave number of p.
func (p Pitch) Octave() int {
	_, o := PitchToNoteOctave(p)
	return o
}

// Name returns the pitch class of p.
func (p Pitch) Name() NoteName {
	n, _ := PitchToNoteOctave(p)
	return n
}

// String renders p as name plus octave, e.g. "C#4".
func (p Pitch) String() string {
	n, o := PitchToNoteOctave(p)
	return n.String() + strconv.Itoa(o)
}

// ParseNoteName parses a pitch class with an optional sharp or flat,
// e.g. "C", "F#", "Bb". Enharmonic spellings across the octave line
// ("B#", "Cb") wrap around.
func ParseNoteName(s string) (NoteName, error) {
	semi, rest, err := parseLetter(s)
	if err != nil {
		return 0, err
	}
	if rest != "" {
		return 0, fmt.Errorf("%w: %q", ErrMalformedNote, s)
	}
	return NoteName((semi%notesPerOctave + notesPerOctave) % notesPerOctave), nil
}

// ParsePitch parses a note name with octave, e.g. "C4", "Db3", "G#-1".
func ParsePitch(s string) (Pitch, error) {
	s = strings.TrimSpace(s)
	semi, rest, err := parseLetter(s)
	if err != nil {
		return 0, err
	}
	if rest == "" {
		return 0, fmt.Errorf("%w: %q has no octave", ErrMalformedNote, s)
	}
	octave, err := strconv.Atoi(rest)
	if err != nil || octave < MinOctave || octave > MaxOctave {
		return 0, fmt.Errorf("%w: %q has a bad octave", ErrMalformedNote, s)
	}
	p, err := pitchFromParts(semi, octave)
	if err != nil {
		return 0, fmt.Errorf("%q: %w", s, err)
	}
	return p, nil
}

// parseLetter reads the letter and accidental at the start of s and returns
// the semitone offset from C (which may be -1 or 12 for Cb/B#) plus the
// remaining text.
func parseLetter(s string) (int, string, error) {
	if s == "" {
		return 0, "", fmt.Errorf("%w: empty", ErrMalformedNote)
	}
	off, ok := letterOffsets[upper(s[0])]
	if !ok {
		return 0, "", fmt.Errorf("%w: %q", ErrMalformedNote, s)
	}
	rest := s[1:]
	if rest != "" {
		switch rest[0] {
		case '#':
			off++
			rest = rest[1:]
		case 'b':
			off--
			rest = rest[1:]
		}
	}
	return off, rest, nil
}

func upper(b byte) byte {
	if b >= 'a' && b <= 'z' {
		return b - 'a' + 'A'
	}
	return b
}
