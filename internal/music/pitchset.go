package music

import (
	"math/bits"
	"strconv"
	"strings"
)

// PitchSet is a set of pitches. It is a value type: two sets holding the
// same pitches compare equal with ==.
type PitchSet [2]uint64

// NewPitchSet builds a set from ps. Duplicates collapse.
func NewPitchSet(ps ...Pitch) PitchSet {
	var s PitchSet
	for _, p := range ps {
		s = s.With(p)
	}
	return s
}

// With returns a copy of s that includes p.
func (s PitchSet) With(p Pitch) PitchSet {
	if p > MaxPitch {
		return s
	}
	s[p/64] |= 1 << (p % 64)
	return s
}

// Without returns a copy of s that excludes p.
func (s PitchSet) Without(p Pitch) PitchSet {
	if p > MaxPitch {
		return s
	}
	s[p/64] &^= 1 << (p % 64)
	return s
}

func (s PitchSet) Has(p Pitch) bool {
	if p > MaxPitch {
		return false
	}
	return s[p/64]&(1<<(p%64)) != 0
}

func (s PitchSet) Len() int {
	return bits.OnesCount64(s[0]) + bits.OnesCount64(s[1])
}

func (s PitchSet) Empty() bool {
	return s[0] == 0 && s[1] == 0
}

// Pitches returns the members of s in ascending order.
func (s PitchSet) Pitches() []Pitch {
	out := make([]Pitch, 0, s.Len())
	for word := 0; word < 2; word++ {
		w := s[word]
		for w != 0 {
			i := bits.TrailingZeros64(w)
			out = append(out, Pitch(word*64+i))
			w &^= 1 << i
		}
	}
	return out
}

// Lowest and Highest return the extreme members; ok is false for an empty set.
func (s PitchSet) Lowest() (Pitch, bool) {
	ps := s.Pitches()
	if len(ps) == 0 {
		return 0, false
	}
	return ps[0], true
}

func (s PitchSet) Highest() (Pitch, bool) {
	ps := s.Pitches()
	if len(ps) == 0 {
		return 0, false
	}
	return ps[len(ps)-1], true
}

// Union returns the pitches in either set.
func (s PitchSet) Union(o PitchSet) PitchSet {
	return PitchSet{s[0] | o[0], s[1] | o[1]}
}

// Key renders the set as ascending MIDI numbers joined by "-", e.g. "60-64-67".
func (s PitchSet) Key() string {
	ps := s.Pitches()
	parts := make([]string, len(ps))
	for i, p := range ps {
		parts[i] = strconv.Itoa(int(p))
	}
	return strings.Join(parts, "-")
}

// Names renders the set as note names, e.g. "C4 E4 G4".
func (s PitchSet) Names() []string {
	ps := s.Pitches()
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.String()
	}
	return out
}

func (s PitchSet) String() string {
	return "{" + strings.Join(s.Names(), " ") + "}"
}
