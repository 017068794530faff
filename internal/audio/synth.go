// Package audio provides tone engines: a software synthesizer, a MIDI output
// port, and a silent engine.
package audio

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/icco/chordcoach/internal/music"
)

const (
	sampleRate   = 44100
	channelCount = 2 // stereo
	bitDepth     = 2 // 16-bit

	noteChannel  = 0
	clickChannel = 9

	clickDuration = 40 * time.Millisecond
	accentPitch   = music.Pitch(84)
	clickPitch    = music.Pitch(79)
)

var ErrNotReady = errors.New("tone engine not ready")

// WaveType represents different oscillator wave shapes
type WaveType int

const (
	WaveSine WaveType = iota
	WaveSquare
	WaveSawtooth
	WaveTriangle
)

// voice is a single playing note
type voice struct {
	id        uint64
	note      uint8
	channel   uint8
	velocity  uint8
	frequency float64
	phase     float64
	envelope  float64 // 0-1
	decay     float64
	releasing bool
	active    bool
}

// mixer renders the active voices into 16-bit stereo PCM.
type mixer struct {
	mu           sync.Mutex
	voices       []*voice
	maxVoices    int
	masterVolume float64
	waveTypes    [16]WaveType
	nextID       uint64
}

func newMixer() *mixer {
	m := &mixer{maxVoices: 64, masterVolume: 0.3}
	for i := range m.waveTypes {
		m.waveTypes[i] = WaveSine
	}
	m.waveTypes[clickChannel] = WaveSquare
	return m
}

// Read implements io.Reader for oto's player.
func (m *mixer) Read(buf []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	numSamples := len(buf) / (channelCount * bitDepth)
	for i := 0; i < numSamples; i++ {
		var sample float64
		for _, v := range m.voices {
			if !v.active {
				continue
			}
			osc := generateWave(m.waveTypes[v.channel%16], v.phase)
			sample += osc * float64(v.velocity) / 127.0 * v.envelope * 0.2

			v.phase += v.frequency / sampleRate
			if v.phase >= 1.0 {
				v.phase -= 1.0
			}

			if v.releasing {
				v.envelope *= v.decay
				if v.envelope < 0.001 {
					v.active = false
				}
			} else if v.envelope < 1.0 {
				v.envelope += 0.001
				if v.envelope > 1.0 {
					v.envelope = 1.0
				}
			}
		}

		sample *= m.masterVolume
		if sample > 1.0 {
			sample = 1.0
		} else if sample < -1.0 {
			sample = -1.0
		}

		s := int16(sample * 32767)
		idx := i * channelCount * bitDepth
		buf[idx] = byte(s)
		buf[idx+1] = byte(s >> 8)
		buf[idx+2] = byte(s)
		buf[idx+3] = byte(s >> 8)
	}
	return numSamples * channelCount * bitDepth, nil
}

func generateWave(waveType WaveType, phase float64) float64 {
	switch waveType {
	case WaveSquare:
		if phase < 0.5 {
			return 0.8
		}
		return -0.8
	case WaveSawtooth:
		return 2*phase - 1
	case WaveTriangle:
		if phase < 0.5 {
			return 4*phase - 1
		}
		return 3 - 4*phase
	default:
		return math.Sin(2 * math.Pi * phase)
	}
}

// noteOn starts a voice and returns its id, reusing an idle voice or
// stealing the oldest one.
func (m *mixer) noteOn(channel, note, velocity uint8) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	var v *voice
	for _, cand := range m.voices {
		if !cand.active {
			v = cand
			break
		}
	}
	if v == nil {
		if len(m.voices) < m.maxVoices {
			v = &voice{}
			m.voices = append(m.voices, v)
		} else {
			v = m.voices[0]
			m.voices = append(m.voices[1:], v)
		}
	}

	m.nextID++
	*v = voice{
		id:        m.nextID,
		note:      note,
		channel:   channel,
		velocity:  velocity,
		frequency: midiNoteToFreq(note),
		decay:     0.9995,
		active:    true,
	}
	return v.id
}

// release lets the voice with the given id fade out. A voice that was
// re-triggered since has a new id and is left alone.
func (m *mixer) release(id uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.voices {
		if v.active && v.id == id {
			v.releasing = true
			return
		}
	}
}

func (m *mixer) releaseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.voices {
		if v.active {
			v.releasing = true
			v.decay = 0.995
		}
	}
}

// sounding counts voices that are not yet released.
func (m *mixer) sounding() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, v := range m.voices {
		if v.active && !v.releasing {
			n++
		}
	}
	return n
}

func (m *mixer) setVolume(vol float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.masterVolume = math.Max(0, math.Min(1, vol))
}

// Synth is a polyphonic software synthesizer played through oto.
type Synth struct {
	mix    *mixer
	ctx    *oto.Context
	player *oto.Player

	mu     sync.Mutex
	timers map[uint64]*time.Timer
	ready  bool
}

// NewSynth opens the audio device and starts the output stream.
func NewSynth(volume float64) (*Synth, error) {
	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channelCount,
		Format:       oto.FormatSignedInt16LE,
	}
	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return nil, err
	}
	<-readyChan

	s := &Synth{mix: newMixer(), ctx: ctx, timers: make(map[uint64]*time.Timer), ready: true}
	if volume > 0 {
		s.mix.setVolume(volume)
	}
	s.player = ctx.NewPlayer(s.mix)
	s.player.Play()
	return s, nil
}

// PlayNotes sounds every pitch for dur.
func (s *Synth) PlayNotes(ps []music.Pitch, dur time.Duration, velocity uint8) error {
	return s.play(noteChannel, ps, dur, velocity)
}

// Click plays a metronome tick, higher on the accent.
func (s *Synth) Click(accent bool) error {
	p := clickPitch
	if accent {
		p = accentPitch
	}
	return s.play(clickChannel, []music.Pitch{p}, clickDuration, 110)
}

func (s *Synth) play(channel uint8, ps []music.Pitch, dur time.Duration, velocity uint8) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return ErrNotReady
	}
	for _, p := range ps {
		id := s.mix.noteOn(channel, uint8(p), velocity)
		s.timers[id] = time.AfterFunc(dur, func() {
			s.mix.release(id)
			s.mu.Lock()
			delete(s.timers, id)
			s.mu.Unlock()
		})
	}
	return nil
}

// StopAll fades out every voice and drops pending releases.
func (s *Synth) StopAll() {
	s.mu.Lock()
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	s.mu.Unlock()
	s.mix.releaseAll()
}

func (s *Synth) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// Sounding is the number of notes not yet released.
func (s *Synth) Sounding() int { return s.mix.sounding() }

// SetVolume sets the master volume (0.0 - 1.0)
func (s *Synth) SetVolume(vol float64) { s.mix.setVolume(vol) }

func (s *Synth) Close() error {
	s.StopAll()
	s.mu.Lock()
	s.ready = false
	s.mu.Unlock()
	// As of oto v3.4 the player needs no explicit Close.
	return nil
}

// midiNoteToFreq converts a MIDI note number to frequency in Hz
func midiNoteToFreq(note uint8) float64 {
	// A4 (note 69) = 440 Hz
	return 440.0 * math.Pow(2.0, (float64(note)-69.0)/12.0)
}
