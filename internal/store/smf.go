package store

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/icco/chordcoach/internal/music"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

const ticksPerQuarterNote = 960 // Standard MIDI resolution

var ErrNoNotes = errors.New("MIDI file has no notes")

// ImportSMF reads a Standard MIDI File as a song. Note-ons that start at
// the same tick, in any track, form one chord. The first tempo and time
// signature set the song's tempo and meter. An empty title is taken from
// the first track name, if any.
func ImportSMF(r io.Reader, title string) (music.Song, error) {
	rd, err := smf.ReadFrom(r)
	if err != nil {
		return music.Song{}, fmt.Errorf("read MIDI file: %w", err)
	}

	song := music.Song{Title: title, Tempo: 120, BeatsPerMeasure: 4}
	if tc := rd.TempoChanges(); len(tc) > 0 {
		song.Tempo = int(math.Round(tc[0].BPM))
	}

	starts := make(map[int64]music.PitchSet)
	var meterSet, named bool
	for _, track := range rd.Tracks {
		var tick int64
		for _, ev := range track {
			tick += int64(ev.Delta)

			var num, denom, cpt, dsqpq uint8
			var name string
			var ch, key, vel uint8
			switch {
			case ev.Message.GetNoteOn(&ch, &key, &vel):
				if vel > 0 {
					starts[tick] = starts[tick].With(music.Pitch(key))
				}
			case !meterSet && ev.Message.GetMetaTimeSig(&num, &denom, &cpt, &dsqpq):
				if num > 0 {
					song.BeatsPerMeasure = int(num)
					meterSet = true
				}
			case title == "" && !named && ev.Message.GetMetaTrackName(&name):
				if name != "" {
					song.Title = name
					named = true
				}
			}
		}
	}
	if len(starts) == 0 {
		return music.Song{}, ErrNoNotes
	}

	ticks := make([]int64, 0, len(starts))
	for t := range starts {
		ticks = append(ticks, t)
	}
	sort.Slice(ticks, func(i, j int) bool { return ticks[i] < ticks[j] })
	for _, t := range ticks {
		song.Chords = append(song.Chords, music.ChordOf("", starts[t].Pitches()...))
	}
	if song.Tempo < 20 || song.Tempo > 300 {
		song.Tempo = 120
	}
	return song, song.Validate()
}

// ExportSMF writes a song as a Standard MIDI File with one chord per
// measure. Malformed chords cannot be written.
func ExportSMF(song music.Song, w io.Writer) error {
	if err := song.Validate(); err != nil {
		return err
	}
	meter := song.BeatsPerMeasure
	if meter <= 0 {
		meter = 4
	}
	tempo := song.Tempo
	if tempo <= 0 {
		tempo = 120
	}

	sm := smf.New()
	sm.TimeFormat = smf.MetricTicks(ticksPerQuarterNote)

	// Track 0: tempo track
	var track0 smf.Track
	track0.Add(0, smf.MetaTrackSequenceName(song.Title))
	track0.Add(0, smf.MetaMeter(uint8(meter), 4))
	track0.Add(0, smf.MetaTempo(float64(tempo)))
	track0.Close(0)
	if err := sm.Add(track0); err != nil {
		return fmt.Errorf("error adding tempo track: %w", err)
	}

	measure := uint32(meter * ticksPerQuarterNote)
	var chords smf.Track
	for i, c := range song.Chords {
		set, err := c.PitchSet()
		if err != nil {
			return fmt.Errorf("chord %d: %w", i, err)
		}
		ps := set.Pitches()
		for _, p := range ps {
			chords.Add(0, midi.NoteOn(0, uint8(p), 90))
		}
		for j, p := range ps {
			var delta uint32
			if j == 0 {
				delta = measure
			}
			chords.Add(delta, midi.NoteOff(0, uint8(p)))
		}
	}
	chords.Close(0)
	if err := sm.Add(chords); err != nil {
		return fmt.Errorf("error adding chord track: %w", err)
	}

	if _, err := sm.WriteTo(w); err != nil {
		return fmt.Errorf("error writing MIDI file: %w", err)
	}
	return nil
}
