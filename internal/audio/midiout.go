//go:build !nomidi

package audio

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/icco/chordcoach/internal/music"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"

	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

// MIDIOut plays tones on an external MIDI output port. Metronome clicks go
// to the General MIDI percussion channel as wood blocks.
type MIDIOut struct {
	mu     sync.Mutex
	out    drivers.Out
	send   func(msg midi.Message) error
	timers map[*time.Timer]struct{}
	log    *slog.Logger
}

// OutPorts lists the names of the available MIDI output ports.
func OutPorts() []string {
	var names []string
	for _, out := range midi.GetOutPorts() {
		names = append(names, out.String())
	}
	return names
}

// NewMIDIOut opens the first output port whose name contains name. An
// empty name picks the first port.
func NewMIDIOut(name string, logger *slog.Logger) (*MIDIOut, error) {
	if logger == nil {
		logger = slog.Default()
	}
	outs := midi.GetOutPorts()
	if len(outs) == 0 {
		return nil, fmt.Errorf("no MIDI output ports")
	}
	var out drivers.Out
	for _, o := range outs {
		if name == "" || strings.Contains(strings.ToLower(o.String()), strings.ToLower(name)) {
			out = o
			break
		}
	}
	if out == nil {
		return nil, fmt.Errorf("MIDI output %q not found", name)
	}
	send, err := midi.SendTo(out)
	if err != nil {
		return nil, fmt.Errorf("failed to open port %s: %w", out.String(), err)
	}
	logger.Info("audio: midi out", slog.String("port", out.String()))
	return &MIDIOut{out: out, send: send, timers: make(map[*time.Timer]struct{}), log: logger}, nil
}

func (m *MIDIOut) PlayNotes(ps []music.Pitch, dur time.Duration, velocity uint8) error {
	return m.play(noteChannel, ps, dur, velocity)
}

// Click sends a high wood block on the accent and a low one otherwise.
func (m *MIDIOut) Click(accent bool) error {
	key := music.Pitch(77)
	if accent {
		key = 76
	}
	return m.play(clickChannel, []music.Pitch{key}, clickDuration, 110)
}

func (m *MIDIOut) play(channel uint8, ps []music.Pitch, dur time.Duration, velocity uint8) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.send == nil {
		return ErrNotReady
	}
	for _, p := range ps {
		if err := m.send(midi.NoteOn(channel, uint8(p), velocity)); err != nil {
			return fmt.Errorf("note on %s: %w", p, err)
		}
	}
	var t *time.Timer
	t = time.AfterFunc(dur, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if _, ok := m.timers[t]; !ok || m.send == nil {
			return
		}
		delete(m.timers, t)
		for _, p := range ps {
			if err := m.send(midi.NoteOff(channel, uint8(p))); err != nil {
				m.log.Warn("audio: note off failed", slog.String("note", p.String()), slog.Any("error", err))
			}
		}
	})
	m.timers[t] = struct{}{}
	return nil
}

// StopAll sends All Notes Off (CC 123) on the note and click channels.
func (m *MIDIOut) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopAllLocked()
}

func (m *MIDIOut) stopAllLocked() {
	for t := range m.timers {
		t.Stop()
		delete(m.timers, t)
	}
	if m.send == nil {
		return
	}
	for _, ch := range []uint8{noteChannel, clickChannel} {
		_ = m.send(midi.ControlChange(ch, midi.AllNotesOff, midi.Off))
	}
}

func (m *MIDIOut) Ready() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.send != nil
}

func (m *MIDIOut) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopAllLocked()
	m.send = nil
	if m.out == nil {
		return nil
	}
	err := m.out.Close()
	m.out = nil
	return err
}
