package input

import (
	"sort"
	"strings"

	"github.com/icco/chordcoach/internal/music"
)

// Layout is the shape of a demo keyboard mapping.
type Layout int

const (
	// SingleOctave uses the home row for naturals and the row above for
	// accidentals, like a piano under the fingers.
	SingleOctave Layout = iota
	// MultiOctave uses the two tracker rows: z-row for the lower octave,
	// q-row for the octave above.
	MultiOctave
)

func (l Layout) String() string {
	if l == MultiOctave {
		return "multi-octave"
	}
	return "single-octave"
}

var (
	singleOctaveKeys = []string{"a", "w", "s", "e", "d", "f", "t", "g", "y", "h", "u", "j", "k", "o", "l", "p", ";", "'"}
	lowerRowKeys     = []string{"z", "s", "x", "d", "c", "v", "g", "b", "h", "n", "j", "m", ",", "l", ".", ";", "/"}
	upperRowKeys     = []string{"q", "2", "w", "3", "e", "r", "5", "t", "6", "y", "7", "u", "i", "9", "o", "0", "p", "[", "=", "]"}
)

// KeyMapping maps computer-keyboard keys to pitches for demo mode. It is
// derived from a progression and never changes afterwards.
type KeyMapping struct {
	Layout Layout
	// Octave is the octave of the lowest C in the layout.
	Octave int
	keys   map[string]music.Pitch
}

// KeyBinding is one key of a mapping.
type KeyBinding struct {
	Key   string      `json:"key"`
	Pitch music.Pitch `json:"pitch"`
}

// BuildKeyMapping inspects the octaves a progression actually uses. If
// every chord fits in one octave the single-octave layout is used;
// otherwise the wider two-row layout starting at the lowest octave.
func BuildKeyMapping(prog music.Progression) KeyMapping {
	r := prog.Range()
	lo, ok := r.Lowest()
	if !ok {
		return newMapping(SingleOctave, 4)
	}
	hi, _ := r.Highest()
	if lo.Octave() == hi.Octave() {
		return newMapping(SingleOctave, lo.Octave())
	}
	return newMapping(MultiOctave, lo.Octave())
}

func newMapping(layout Layout, octave int) KeyMapping {
	m := KeyMapping{Layout: layout, Octave: octave, keys: make(map[string]music.Pitch)}
	switch layout {
	case SingleOctave:
		m.bindRow(singleOctaveKeys, octave)
	case MultiOctave:
		m.bindRow(lowerRowKeys, octave)
		m.bindRow(upperRowKeys, octave+1)
	}
	return m
}

func (m *KeyMapping) bindRow(keys []string, octave int) {
	base, err := music.NoteOctaveToPitch(music.C, octave)
	if err != nil {
		return
	}
	for i, k := range keys {
		p := int(base) + i
		if p > int(music.MaxPitch) {
			return
		}
		m.keys[k] = music.Pitch(p)
	}
}

// Pitch returns the pitch bound to key. Keys are case-insensitive.
func (m KeyMapping) Pitch(key string) (music.Pitch, bool) {
	p, ok := m.keys[strings.ToLower(key)]
	return p, ok
}

// KeysFor returns every key bound to p, sorted.
func (m KeyMapping) KeysFor(p music.Pitch) []string {
	var out []string
	for k, kp := range m.keys {
		if kp == p {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// Bindings lists the mapping ordered by pitch, then key.
func (m KeyMapping) Bindings() []KeyBinding {
	out := make([]KeyBinding, 0, len(m.keys))
	for k, p := range m.keys {
		out = append(out, KeyBinding{Key: k, Pitch: p})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Pitch != out[j].Pitch {
			return out[i].Pitch < out[j].Pitch
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// Unreachable returns the pitches of prog that no key produces.
func (m KeyMapping) Unreachable(prog music.Progression) []music.Pitch {
	var reachable music.PitchSet
	for _, p := range m.keys {
		reachable = reachable.With(p)
	}
	var out []music.Pitch
	for _, p := range prog.Range().Pitches() {
		if !reachable.Has(p) {
			out = append(out, p)
		}
	}
	return out
}
