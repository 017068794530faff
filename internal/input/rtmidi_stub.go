//go:build nomidi

package input

import (
	"log/slog"
	"time"
)

// RtMIDI is unavailable in builds without MIDI support.
type RtMIDI struct{}

func NewRtMIDI(_ *slog.Logger, _ time.Duration, _ string) (*RtMIDI, error) {
	return nil, ErrUnsupported
}

func (r *RtMIDI) Devices() ([]Device, error)       { return nil, ErrUnsupported }
func (r *RtMIDI) Connect(string) error             { return ErrUnsupported }
func (r *RtMIDI) Disconnect() error                { return nil }
func (r *RtMIDI) OnMessage(func([]byte))           {}
func (r *RtMIDI) OnStateChange(func(Device, bool)) {}
func (r *RtMIDI) Close() error                     { return nil }
