package input

import (
	"strings"

	"github.com/icco/chordcoach/internal/music"
)

// DefaultKeyVelocity is the velocity given to demo key presses.
const DefaultKeyVelocity = 100

// KeyboardAdapter turns key-down/key-up events into note events through a
// KeyMapping. It must be driven from the loop goroutine.
type KeyboardAdapter struct {
	mapping  KeyMapping
	velocity uint8
	sink     Sink
	down     map[string]music.Pitch
}

func NewKeyboardAdapter(m KeyMapping, velocity uint8) *KeyboardAdapter {
	if velocity == 0 {
		velocity = DefaultKeyVelocity
	}
	return &KeyboardAdapter{mapping: m, velocity: velocity}
}

func (a *KeyboardAdapter) Name() string { return "demo:" + a.mapping.Layout.String() }

// Mapping returns the adapter's key mapping.
func (a *KeyboardAdapter) Mapping() KeyMapping { return a.mapping }

func (a *KeyboardAdapter) Start(sink Sink) error {
	a.sink = sink
	a.down = make(map[string]music.Pitch)
	return nil
}

func (a *KeyboardAdapter) Stop() error {
	a.sink = nil
	a.down = nil
	return nil
}

// KeyDown handles a key press. An auto-repeat of a key already down is
// ignored. It reports whether a NoteOn was emitted.
func (a *KeyboardAdapter) KeyDown(key string) bool {
	if a.sink == nil {
		return false
	}
	key = strings.ToLower(key)
	p, ok := a.mapping.Pitch(key)
	if !ok {
		return false
	}
	if _, held := a.down[key]; held {
		return false
	}
	a.down[key] = p
	a.sink.NoteOn(p, a.velocity)
	return true
}

// KeyUp handles a key release. It reports whether a NoteOff was emitted.
func (a *KeyboardAdapter) KeyUp(key string) bool {
	if a.sink == nil {
		return false
	}
	key = strings.ToLower(key)
	p, ok := a.down[key]
	if !ok {
		return false
	}
	delete(a.down, key)
	a.sink.NoteOff(p)
	return true
}
