// Package input turns hardware MIDI messages and computer-keyboard key
// events into one stream of note events.
package input

import (
	"fmt"

	"github.com/icco/chordcoach/internal/music"
	"gitlab.com/gomidi/midi/v2"
)

// Kind is the type of a note event.
type Kind uint8

const (
	NoteOn Kind = iota + 1
	NoteOff
)

func (k Kind) String() string {
	switch k {
	case NoteOn:
		return "NoteOn"
	case NoteOff:
		return "NoteOff"
	default:
		return "Unknown"
	}
}

// Event is a decoded note event. Velocity is zero for NoteOff.
type Event struct {
	Kind     Kind
	Pitch    music.Pitch
	Velocity uint8
	Channel  uint8
}

func (e Event) String() string {
	return fmt.Sprintf("%s %s vel:%d ch:%d", e.Kind, e.Pitch, e.Velocity, e.Channel+1)
}

// Sink receives normalized note events.
type Sink interface {
	NoteOn(p music.Pitch, velocity uint8)
	NoteOff(p music.Pitch)
}

// Adapter is a source of note events. Only one is active at a time.
type Adapter interface {
	// Start begins delivering events to sink.
	Start(sink Sink) error
	// Stop detaches the sink and releases any device. No event is delivered
	// after Stop returns.
	Stop() error
	Name() string
}

// Decode interprets a raw channel-voice message. A Note-On with velocity 0
// is a NoteOff. Anything other than a complete 3-byte note message is
// ignored.
func Decode(raw []byte) (Event, bool) {
	if len(raw) < 3 || raw[1] > 0x7F || raw[2] > 0x7F {
		return Event{}, false
	}
	msg := midi.Message(raw[:3])

	var ch, key, vel uint8
	switch {
	case msg.GetNoteStart(&ch, &key, &vel):
		return Event{Kind: NoteOn, Pitch: music.Pitch(key), Velocity: vel, Channel: ch}, true
	case msg.GetNoteEnd(&ch, &key):
		return Event{Kind: NoteOff, Pitch: music.Pitch(key), Channel: ch}, true
	}
	return Event{}, false
}

// Deliver sends e to sink.
func Deliver(sink Sink, e Event) {
	switch e.Kind {
	case NoteOn:
		sink.NoteOn(e.Pitch, e.Velocity)
	case NoteOff:
		sink.NoteOff(e.Pitch)
	}
}
