package audio

import (
	"time"

	"github.com/icco/chordcoach/internal/music"
)

// Silent is a tone engine that plays nothing.
type Silent struct{}

func (Silent) PlayNotes([]music.Pitch, time.Duration, uint8) error { return nil }
func (Silent) Click(bool) error                                    { return nil }
func (Silent) StopAll()                                            {}
func (Silent) Ready() bool                                         { return true }
func (Silent) Close() error                                        { return nil }
