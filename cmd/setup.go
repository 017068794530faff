package cmd

import (
	"errors"
	"io"
	"log/slog"

	"github.com/icco/chordcoach/internal/audio"
	"github.com/icco/chordcoach/internal/clock"
	"github.com/icco/chordcoach/internal/config"
	"github.com/icco/chordcoach/internal/engine"
	"github.com/icco/chordcoach/internal/input"
)

// tone is a tone engine that holds a device.
type tone interface {
	engine.ToneEngine
	io.Closer
}

// newTone opens the configured audio backend. A backend that cannot open
// degrades to silence: the engine works without sound.
func newTone(c *config.Config, logger *slog.Logger) tone {
	switch c.Audio {
	case config.AudioSynth:
		s, err := audio.NewSynth(c.Volume)
		if err == nil {
			return s
		}
		logger.Warn("audio synth unavailable, continuing silently", slog.Any("error", err))
	case config.AudioMIDI:
		m, err := audio.NewMIDIOut(c.MIDIOut, logger)
		if err == nil {
			return m
		}
		logger.Warn("MIDI output unavailable, continuing silently", slog.Any("error", err))
	}
	return audio.Silent{}
}

// openMIDI opens host MIDI input. A nil result means the host has none,
// which the engine reports when a MIDI performance is requested.
func openMIDI(c *config.Config, logger *slog.Logger) *input.RtMIDI {
	m, err := input.NewRtMIDI(logger, c.RescanPeriod, c.VirtualPort)
	if err != nil {
		if errors.Is(err, input.ErrUnsupported) {
			logger.Info("MIDI input unsupported", slog.Any("error", err))
		} else {
			logger.Warn("MIDI input unavailable", slog.Any("error", err))
		}
		return nil
	}
	return m
}

// engineOptions builds controller options from the configuration.
func engineOptions(c *config.Config, clk clock.Clock, post clock.PostFunc, t engine.ToneEngine, m *input.RtMIDI, logger *slog.Logger) engine.Options {
	opts := engine.Options{
		Clock:           clk,
		Post:            post,
		Tone:            t,
		Logger:          logger,
		MatchDelay:      c.MatchDelay,
		ReleaseDelay:    c.ReleaseDelay,
		FrameInterval:   c.FrameInterval,
		ChordDuration:   c.ChordDuration,
		Velocity:        uint8(c.Velocity),
		Tempo:           c.Tempo,
		BeatsPerMeasure: c.BeatsPerMeasure,
		Metronome:       c.Metronome,
		Synthesis:       c.Synthesis,
		Device:          c.Device,
	}
	// Leave the interface nil rather than holding a nil pointer.
	if m != nil {
		opts.MIDI = m
	}
	return opts
}
