//go:build nomidi

package audio

import (
	"errors"
	"log/slog"
	"time"

	"github.com/icco/chordcoach/internal/music"
)

var errNoMIDI = errors.New("MIDI support not compiled in this build")

// MIDIOut is unavailable in builds without MIDI support.
type MIDIOut struct{}

func OutPorts() []string { return nil }

func NewMIDIOut(string, *slog.Logger) (*MIDIOut, error) { return nil, errNoMIDI }

func (m *MIDIOut) PlayNotes([]music.Pitch, time.Duration, uint8) error { return errNoMIDI }
func (m *MIDIOut) Click(bool) error                                    { return errNoMIDI }
func (m *MIDIOut) StopAll()                                            {}
func (m *MIDIOut) Ready() bool                                         { return false }
func (m *MIDIOut) Close() error                                        { return nil }
