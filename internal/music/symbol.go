package music

import (
	"fmt"
	"sort"
	"strings"
)

// chord qualities by suffix, as semitones above the root; longest suffix wins
var qualityIntervals = map[string][]int{
	"":     {0, 4, 7},
	"maj":  {0, 4, 7},
	"m":    {0, 3, 7},
	"min":  {0, 3, 7},
	"dim":  {0, 3, 6},
	"aug":  {0, 4, 8},
	"+":    {0, 4, 8},
	"sus2": {0, 2, 7},
	"sus4": {0, 5, 7},
	"sus":  {0, 5, 7},
	"6":    {0, 4, 7, 9},
	"m6":   {0, 3, 7, 9},
	"7":    {0, 4, 7, 10},
	"maj7": {0, 4, 7, 11},
	"M7":   {0, 4, 7, 11},
	"m7":   {0, 3, 7, 10},
	"min7": {0, 3, 7, 10},
	"dim7": {0, 3, 6, 9},
	"m7b5": {0, 3, 6, 10},
	"add9": {0, 4, 7, 14},
	"9":    {0, 4, 7, 10, 14},
	"m9":   {0, 3, 7, 10, 14},
	"maj9": {0, 4, 7, 11, 14},
}

// ChordFromSymbol expands a chord symbol such as "Am7", "F#dim" or "C/E"
// into a root-position Chord whose root sits in the given octave. A slash
// bass is placed in the octave below.
func ChordFromSymbol(symbol string, octave int) (Chord, error) {
	symbol = strings.TrimSpace(symbol)
	base, bass, hasBass := strings.Cut(symbol, "/")

	rootSemi, suffix, err := parseLetter(base)
	if err != nil {
		return Chord{}, fmt.Errorf("chord %q: %w", symbol, err)
	}
	intervals, ok := qualityIntervals[suffix]
	if !ok {
		return Chord{}, fmt.Errorf("chord %q: %w: unknown quality %q", symbol, ErrMalformedNote, suffix)
	}

	var ps []Pitch
	if hasBass {
		bassName, err := ParseNoteName(bass)
		if err != nil {
			return Chord{}, fmt.Errorf("chord %q bass: %w", symbol, err)
		}
		p, err := NoteOctaveToPitch(bassName, octave-1)
		if err != nil {
			return Chord{}, fmt.Errorf("chord %q bass: %w", symbol, err)
		}
		ps = append(ps, p)
	}
	for _, iv := range intervals {
		p, err := pitchFromParts(rootSemi+iv, octave)
		if err != nil {
			return Chord{}, fmt.Errorf("chord %q: %w", symbol, err)
		}
		ps = append(ps, p)
	}
	sort.Slice(ps, func(i, j int) bool { return ps[i] < ps[j] })
	return ChordOf(symbol, ps...), nil
}

// ParseProgression expands a whitespace- or comma-separated list of chord
// symbols, e.g. "C Am F G".
func ParseProgression(symbols string, octave int) (Progression, error) {
	fields := strings.FieldsFunc(symbols, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '|'
	})
	if len(fields) == 0 {
		return nil, ErrEmptyProgression
	}
	prog := make(Progression, 0, len(fields))
	for _, f := range fields {
		c, err := ChordFromSymbol(f, octave)
		if err != nil {
			return nil, err
		}
		prog = append(prog, c)
	}
	return prog, nil
}
