package engine_test

import (
	"errors"
	"testing"
	"time"

	"github.com/icco/chordcoach/internal/clock/clocktest"
	"github.com/icco/chordcoach/internal/engine"
	"github.com/icco/chordcoach/internal/input"
	"github.com/icco/chordcoach/internal/match"
	"github.com/icco/chordcoach/internal/music"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type played struct {
	at    time.Duration
	notes []music.Pitch
}

// fakeTone records what would sound. Notes keep sounding until StopAll.
type fakeTone struct {
	fc       *clocktest.Fake
	start    time.Time
	plays    []played
	clicks   []bool
	sounding map[music.Pitch]bool
	fail     error
	notReady bool
}

func newFakeTone(fc *clocktest.Fake) *fakeTone {
	return &fakeTone{fc: fc, start: fc.Now(), sounding: make(map[music.Pitch]bool)}
}

func (f *fakeTone) PlayNotes(ps []music.Pitch, _ time.Duration, _ uint8) error {
	if f.fail != nil {
		return f.fail
	}
	f.plays = append(f.plays, played{at: f.fc.Now().Sub(f.start), notes: append([]music.Pitch(nil), ps...)})
	for _, p := range ps {
		f.sounding[p] = true
	}
	return nil
}

func (f *fakeTone) Click(accent bool) error {
	f.clicks = append(f.clicks, accent)
	return nil
}

func (f *fakeTone) StopAll()    { f.sounding = make(map[music.Pitch]bool) }
func (f *fakeTone) Ready() bool { return !f.notReady }

type fakeMetrics struct {
	outcomes []match.Outcome
	modes    []engine.Mode
	audio    int
}

func (m *fakeMetrics) NoteEvent(input.Kind)        {}
func (m *fakeMetrics) Evaluation(o match.Outcome)  { m.outcomes = append(m.outcomes, o) }
func (m *fakeMetrics) ChordChange(engine.Mode)     {}
func (m *fakeMetrics) ModeChange(mode engine.Mode) { m.modes = append(m.modes, mode) }
func (m *fakeMetrics) AudioError()                 { m.audio++ }

type fakeMIDI struct {
	devices []input.Device
	listErr error
	conn    string
	onMsg   func([]byte)
	onState func(input.Device, bool)
}

func (f *fakeMIDI) Devices() ([]input.Device, error) { return f.devices, f.listErr }
func (f *fakeMIDI) Connect(id string) error          { f.conn = id; return nil }
func (f *fakeMIDI) Disconnect() error                { f.conn = ""; return nil }
func (f *fakeMIDI) OnMessage(h func([]byte))         { f.onMsg = h }
func (f *fakeMIDI) OnStateChange(h func(input.Device, bool)) {
	f.onState = h
}

type rig struct {
	fc      *clocktest.Fake
	tone    *fakeTone
	metrics *fakeMetrics
	c       *engine.Controller
	states  []engine.State
}

func newRig(t *testing.T, mutate func(*engine.Options)) *rig {
	t.Helper()
	fc := clocktest.New()
	r := &rig{fc: fc, tone: newFakeTone(fc), metrics: &fakeMetrics{}}
	opts := engine.Options{
		Clock:     fc,
		Post:      func(f func()) { f() },
		Tone:      r.tone,
		Metrics:   r.metrics,
		Synthesis: true,
		Tempo:     120,
	}
	if mutate != nil {
		mutate(&opts)
	}
	r.c = engine.New(opts)
	r.c.Subscribe(func(s engine.State) { r.states = append(r.states, s) })
	return r
}

func twoChordSong() music.Song {
	return music.Song{
		ID:    "s1",
		Title: "Two chords",
		Chords: music.Progression{
			music.ChordOf("C", 60, 64, 67),
			music.ChordOf("Am", 69, 72, 76),
		},
	}
}

func (r *rig) on(ps ...music.Pitch) {
	for _, p := range ps {
		r.c.Sink().NoteOn(p, 100)
	}
}

func (r *rig) off(ps ...music.Pitch) {
	for _, p := range ps {
		r.c.Sink().NoteOff(p)
	}
}

func (r *rig) last() engine.State { return r.states[len(r.states)-1] }

func TestPerformScenario(t *testing.T) {
	r := newRig(t, nil)
	require.NoError(t, r.c.Load(twoChordSong()))
	require.NoError(t, r.c.EnterPerform(engine.PerformingDemo))
	assert.Equal(t, 0, r.c.Index())

	r.on(64, 60, 67)
	r.fc.Advance(150 * time.Millisecond)
	assert.Equal(t, 1, r.c.Index())
	assert.True(t, r.c.Held().Empty())
	require.NotNil(t, r.last().Last)
	assert.Equal(t, match.Match, r.last().Last.Outcome)

	r.on(60, 64)
	r.fc.Advance(time.Second)
	assert.Equal(t, 1, r.c.Index())
	assert.Equal(t, match.Miss, r.last().Last.Outcome)
	assert.Equal(t, []match.Outcome{match.Match, match.Miss}, r.metrics.outcomes)
}

func TestDemoKeysDriveTheMatcher(t *testing.T) {
	r := newRig(t, nil)
	require.NoError(t, r.c.Load(twoChordSong()))
	require.NoError(t, r.c.EnterPerform(engine.PerformingDemo))

	km := r.c.KeyMapping()
	assert.Equal(t, input.MultiOctave, km.Layout)
	for _, p := range []music.Pitch{60, 64, 67} {
		keys := km.KeysFor(p)
		require.NotEmpty(t, keys)
		assert.True(t, r.c.KeyDown(keys[0]))
		assert.False(t, r.c.KeyDown(keys[0]), "auto-repeat")
	}
	r.fc.Advance(150 * time.Millisecond)
	assert.Equal(t, 1, r.c.Index())
	assert.NotEmpty(t, r.last().Keys)
}

func TestAdvanceWraps(t *testing.T) {
	r := newRig(t, nil)
	require.NoError(t, r.c.Load(twoChordSong()))
	require.NoError(t, r.c.EnterPerform(engine.PerformingDemo))
	require.NoError(t, r.c.SelectChord(1))

	r.on(69, 72, 76)
	r.fc.Advance(150 * time.Millisecond)
	assert.Equal(t, 0, r.c.Index())
}

func TestNoteFeedbackOnlyForNewNotes(t *testing.T) {
	r := newRig(t, nil)
	require.NoError(t, r.c.Load(twoChordSong()))
	require.NoError(t, r.c.EnterPerform(engine.PerformingDemo))

	r.on(60)
	r.off(60)
	r.fc.Advance(100 * time.Millisecond)
	r.on(60)
	require.Len(t, r.tone.plays, 1, "a re-press inside the release window is not a second note")

	r.on(64, 67)
	r.fc.Advance(150 * time.Millisecond)
	assert.Equal(t, 1, r.c.Index(), "the chord evaluation in flight still matched")
}

func TestModeSwitchLeavesNothingRunning(t *testing.T) {
	r := newRig(t, func(o *engine.Options) { o.Metronome = true })
	require.NoError(t, r.c.Load(twoChordSong()))
	require.NoError(t, r.c.Start())
	r.fc.Advance(700 * time.Millisecond)
	assert.NotEmpty(t, r.tone.sounding)

	require.NoError(t, r.c.EnterPerform(engine.PerformingDemo))
	assert.Equal(t, engine.PerformingDemo, r.c.Mode())
	assert.Empty(t, r.tone.sounding)
	assert.Equal(t, 0, r.fc.Pending())
	assert.Equal(t, 0, r.c.Index())

	r.on(60, 64)
	r.off(60)
	require.NoError(t, r.c.ExitPerform())
	assert.Equal(t, engine.Idle, r.c.Mode())
	assert.Empty(t, r.tone.sounding)
	assert.Equal(t, 0, r.fc.Pending())
	assert.True(t, r.c.Held().Empty())

	before := len(r.states)
	r.fc.Advance(10 * time.Second)
	assert.Len(t, r.states, before, "no timer fires after the transition")
}

func TestAutoPlayTiming(t *testing.T) {
	r := newRig(t, func(o *engine.Options) { o.Metronome = true })
	require.NoError(t, r.c.Load(twoChordSong()))
	require.NoError(t, r.c.Start())

	require.Len(t, r.tone.plays, 1)
	assert.Equal(t, time.Duration(0), r.tone.plays[0].at)
	assert.Equal(t, []music.Pitch{60, 64, 67}, r.tone.plays[0].notes)

	r.fc.Advance(500 * time.Millisecond)
	assert.Len(t, r.tone.plays, 1, "nothing new after one beat")

	r.fc.Advance(1500 * time.Millisecond)
	require.Len(t, r.tone.plays, 2)
	assert.Equal(t, 2000*time.Millisecond, r.tone.plays[1].at)
	assert.Equal(t, []music.Pitch{69, 72, 76}, r.tone.plays[1].notes)
	assert.Equal(t, []bool{true, false, false, false, true}, r.tone.clicks)
	assert.Equal(t, 0, r.last().Beat)
}

func TestStartRejectedWhilePerforming(t *testing.T) {
	r := newRig(t, nil)
	assert.ErrorIs(t, r.c.Start(), engine.ErrNoProgression)
	require.NoError(t, r.c.Load(twoChordSong()))
	require.NoError(t, r.c.EnterPerform(engine.PerformingDemo))
	assert.ErrorIs(t, r.c.Start(), engine.ErrPerforming)
	assert.ErrorIs(t, r.c.Load(twoChordSong()), engine.ErrSessionActive)
	assert.ErrorIs(t, r.c.EnterPerform(engine.AutoPlaying), engine.ErrBadMode)

	require.NoError(t, r.c.Stop())
	assert.Equal(t, engine.Idle, r.c.Mode())
}

func TestNextPrevSelectSoundTheChord(t *testing.T) {
	r := newRig(t, nil)
	require.NoError(t, r.c.Load(twoChordSong()))

	require.NoError(t, r.c.Next())
	assert.Equal(t, 1, r.c.Index())
	require.NoError(t, r.c.Next())
	assert.Equal(t, 0, r.c.Index())
	require.NoError(t, r.c.Prev())
	assert.Equal(t, 1, r.c.Index())
	assert.ErrorIs(t, r.c.SelectChord(5), engine.ErrChordIndex)
	require.NoError(t, r.c.SelectChord(0))

	assert.Len(t, r.tone.plays, 4)
	assert.Equal(t, engine.Idle, r.c.Mode())
}

func TestMalformedChordIsUnmatchable(t *testing.T) {
	r := newRig(t, nil)
	song := twoChordSong()
	song.Chords[0] = music.Chord{Name: "bad", Notes: []string{"C4", "H4", "G4"}}
	require.NoError(t, r.c.Load(song))

	st := r.c.State()
	require.Len(t, st.Problems, 1)
	assert.Equal(t, 0, st.Problems[0].Index)
	assert.NotEmpty(t, st.Chords[0].Problem)

	require.NoError(t, r.c.EnterPerform(engine.PerformingDemo))
	r.on(60, 67)
	r.fc.Advance(time.Second)
	assert.Equal(t, 0, r.c.Index())
	assert.Equal(t, match.Unmatchable, r.last().Last.Outcome)

	require.NoError(t, r.c.Next())
	assert.Equal(t, 1, r.c.Index(), "the performer can skip past it")
}

func TestAudioFailureDoesNotStopTheSession(t *testing.T) {
	r := newRig(t, nil)
	r.tone.fail = errors.New("device busy")
	require.NoError(t, r.c.Load(twoChordSong()))
	require.NoError(t, r.c.Start())
	r.fc.Advance(2 * time.Second)
	assert.Equal(t, engine.AutoPlaying, r.c.Mode())
	assert.Equal(t, 1, r.c.Index())
	assert.Equal(t, 2, r.metrics.audio)
}

func TestMIDIUnsupportedOffersDemo(t *testing.T) {
	r := newRig(t, nil)
	require.NoError(t, r.c.Load(twoChordSong()))
	err := r.c.EnterPerform(engine.PerformingMIDI)
	require.Error(t, err)
	assert.True(t, engine.IsMIDIUnavailable(err))
	assert.ErrorIs(t, err, input.ErrUnsupported)
	assert.Equal(t, engine.Idle, r.c.Mode())
	assert.True(t, r.last().DemoOffered)

	require.NoError(t, r.c.EnterPerform(engine.PerformingDemo))
	assert.False(t, r.last().DemoOffered)
}

func TestMIDINoDevices(t *testing.T) {
	r := newRig(t, func(o *engine.Options) { o.MIDI = &fakeMIDI{} })
	require.NoError(t, r.c.Load(twoChordSong()))
	err := r.c.EnterPerform(engine.PerformingMIDI)
	assert.ErrorIs(t, err, input.ErrNoDevices)
	assert.ErrorIs(t, err, engine.ErrMIDIUnavailable)
	assert.True(t, r.c.State().DemoOffered)
}

func TestMIDIPerformance(t *testing.T) {
	midi := &fakeMIDI{devices: []input.Device{{ID: "in-1", Name: "USB Keys"}}}
	r := newRig(t, func(o *engine.Options) { o.MIDI = midi })
	require.NoError(t, r.c.Load(twoChordSong()))
	require.NoError(t, r.c.EnterPerform(engine.PerformingMIDI))
	assert.Equal(t, "in-1", midi.conn)
	assert.True(t, r.last().DeviceConnected)

	midi.onMsg([]byte{0x90, 67, 90})
	midi.onMsg([]byte{0x90, 64, 90})
	midi.onMsg([]byte{0x90, 60, 90})
	r.fc.Advance(150 * time.Millisecond)
	assert.Equal(t, 1, r.c.Index())

	midi.onMsg([]byte{0x90, 69, 90})
	midi.onState(midi.devices[0], false)
	assert.True(t, r.c.Held().Empty(), "held notes are dropped when the device goes away")
	assert.False(t, r.last().DeviceConnected)
	assert.Equal(t, engine.PerformingMIDI, r.c.Mode())

	midi.onState(midi.devices[0], true)
	assert.True(t, r.last().DeviceConnected)
	assert.Equal(t, "in-1", midi.conn)

	require.NoError(t, r.c.ExitPerform())
	assert.Empty(t, midi.conn)
	assert.Nil(t, midi.onMsg)
	assert.Equal(t, 0, r.fc.Pending())
}

func TestSelectDevice(t *testing.T) {
	midi := &fakeMIDI{devices: []input.Device{{ID: "a", Name: "First"}, {ID: "b", Name: "Second"}}}
	r := newRig(t, func(o *engine.Options) { o.MIDI = midi })
	require.NoError(t, r.c.Load(twoChordSong()))
	require.NoError(t, r.c.EnterPerform(engine.PerformingMIDI))
	assert.Equal(t, "a", midi.conn)

	require.NoError(t, r.c.SelectDevice("second"))
	assert.Equal(t, "b", midi.conn)
	assert.ErrorIs(t, r.c.SelectDevice("third"), input.ErrDeviceNotFound)
	assert.Equal(t, "b", r.c.State().Device.ID)
}

func TestSuspendAndClose(t *testing.T) {
	midi := &fakeMIDI{devices: []input.Device{{ID: "a", Name: "Keys"}}}
	r := newRig(t, func(o *engine.Options) { o.MIDI = midi })
	require.NoError(t, r.c.Load(twoChordSong()))
	require.NoError(t, r.c.EnterPerform(engine.PerformingMIDI))
	midi.onMsg([]byte{0x90, 60, 90})
	assert.NotEmpty(t, r.tone.sounding)

	r.c.Suspend()
	assert.Equal(t, engine.Idle, r.c.Mode())
	assert.Empty(t, midi.conn)
	assert.Empty(t, r.tone.sounding)
	assert.Equal(t, 0, r.fc.Pending())

	require.NoError(t, r.c.Close())
	assert.ErrorIs(t, r.c.Start(), engine.ErrClosed)
	assert.ErrorIs(t, r.c.Load(twoChordSong()), engine.ErrClosed)
}

func TestSetTempo(t *testing.T) {
	r := newRig(t, nil)
	assert.ErrorIs(t, r.c.SetTempo(10), engine.ErrTempoRange)
	require.NoError(t, r.c.SetTempo(90))
	assert.Equal(t, 90.0, r.c.State().Tempo)

	song := twoChordSong()
	song.Tempo = 60
	song.BeatsPerMeasure = 3
	require.NoError(t, r.c.Load(song))
	st := r.c.State()
	assert.Equal(t, 60.0, st.Tempo)
	assert.Equal(t, 3, st.BeatsPerMeasure)
}

func TestSynthesisOff(t *testing.T) {
	r := newRig(t, func(o *engine.Options) { o.Synthesis = false })
	require.NoError(t, r.c.Load(twoChordSong()))
	require.NoError(t, r.c.Start())
	r.fc.Advance(4 * time.Second)
	assert.Empty(t, r.tone.plays)
	assert.Empty(t, r.tone.clicks, "metronome defaults off")

	r.c.SetMetronome(true)
	r.fc.Advance(500 * time.Millisecond)
	assert.Len(t, r.tone.clicks, 1)
}

func TestModeText(t *testing.T) {
	for _, m := range []engine.Mode{engine.Idle, engine.AutoPlaying, engine.PerformingMIDI, engine.PerformingDemo} {
		b, err := m.MarshalText()
		require.NoError(t, err)
		var back engine.Mode
		require.NoError(t, back.UnmarshalText(b))
		assert.Equal(t, m, back)
	}
	_, err := engine.ParseMode("karaoke")
	assert.Error(t, err)
}

func TestNewRequiresMatchBeforeRelease(t *testing.T) {
	tests := []struct {
		name      string
		match     time.Duration
		release   time.Duration
		wantPanic bool
	}{
		{"defaults", 0, 0, false},
		{"shorter", 100 * time.Millisecond, 300 * time.Millisecond, false},
		{"equal", 200 * time.Millisecond, 200 * time.Millisecond, true},
		{"longer", 300 * time.Millisecond, 200 * time.Millisecond, true},
		{"longer than default release", 250 * time.Millisecond, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if got := recover() != nil; got != tt.wantPanic {
					t.Errorf("panicked = %v, want %v", got, tt.wantPanic)
				}
			}()
			engine.New(engine.Options{
				Clock:        clocktest.New(),
				MatchDelay:   tt.match,
				ReleaseDelay: tt.release,
			})
		})
	}
}
