package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/icco/chordcoach/internal/held"
	"github.com/icco/chordcoach/internal/input"
	"github.com/icco/chordcoach/internal/match"
	"github.com/icco/chordcoach/internal/music"
	"github.com/icco/chordcoach/internal/sched"
)

// Controller runs one performance session at a time.
type Controller struct {
	opts    Options
	log     *slog.Logger
	tone    ToneEngine
	midi    input.MIDIAccess
	metrics Metrics

	tracker *held.Tracker
	matcher *match.Matcher
	sched   *sched.Scheduler

	song       music.Song
	loaded     bool
	targets    []music.PitchSet
	targetErrs []error
	keymap     input.KeyMapping

	mode     Mode
	adapter  input.Adapter
	keyboard *input.KeyboardAdapter
	midiIn   *input.MIDIAdapter

	device          *input.Device
	deviceConnected bool
	demoOffered     bool
	lastErr         error
	last            *match.Evaluation

	metronome bool
	synthesis bool

	subs    map[int]func(State)
	nextSub int
	closed  bool
}

// New returns an idle Controller. opts.Clock is required, and so is
// opts.Post when opts.MIDI is set. After defaults are applied the match
// delay must be shorter than the release delay.
func New(opts Options) *Controller {
	if opts.Clock == nil {
		panic("engine: Options.Clock is required")
	}
	if opts.MIDI != nil && opts.Post == nil {
		panic("engine: Options.Post is required with MIDI")
	}
	opts.setDefaults()
	if opts.MatchDelay >= opts.ReleaseDelay {
		panic(fmt.Sprintf("engine: match delay %s must be shorter than release delay %s", opts.MatchDelay, opts.ReleaseDelay))
	}

	c := &Controller{
		opts:      opts,
		log:       opts.Logger,
		tone:      opts.Tone,
		midi:      opts.MIDI,
		metrics:   opts.Metrics,
		metronome: opts.Metronome,
		synthesis: opts.Synthesis,
		subs:      make(map[int]func(State)),
	}
	if c.tone == nil {
		c.tone = silentTone{}
	}

	c.tracker = held.NewTracker(opts.Clock, opts.ReleaseDelay)
	c.tracker.OnRelease = func(music.Pitch) { c.notify() }

	c.matcher = match.New(opts.Clock, opts.MatchDelay, c.tracker, c.target)
	c.matcher.OnResult = c.evaluated

	c.sched = sched.New(opts.Clock, opts.FrameInterval)
	c.sched.SetTempo(opts.Tempo)
	c.sched.SetBeatsPerMeasure(opts.BeatsPerMeasure)
	c.sched.OnBeat = c.beat
	c.sched.OnChord = c.autoChord

	c.keymap = input.BuildKeyMapping(nil)
	return c
}

type silentTone struct{}

func (silentTone) PlayNotes([]music.Pitch, time.Duration, uint8) error { return nil }
func (silentTone) Click(bool) error                                    { return nil }
func (silentTone) StopAll()                                            {}
func (silentTone) Ready() bool                                         { return true }

// noteSink receives normalized events from the active adapter.
type noteSink struct{ c *Controller }

func (s noteSink) NoteOn(p music.Pitch, velocity uint8) { s.c.noteOn(p, velocity) }
func (s noteSink) NoteOff(p music.Pitch)                { s.c.noteOff(p) }

// Sink accepts note events from sources outside the built-in adapters,
// such as a browser forwarding its own MIDI input. Events are ignored
// unless a perform mode is active.
func (c *Controller) Sink() input.Sink { return noteSink{c} }

func (c *Controller) noteOn(p music.Pitch, velocity uint8) {
	if !c.mode.Performing() {
		return
	}
	c.metrics.NoteEvent(input.NoteOn)
	if c.tracker.NoteOn(p) && c.synthesis {
		c.play([]music.Pitch{p}, c.opts.NoteDuration, velocity)
	}
	c.matcher.Schedule()
	c.notify()
}

func (c *Controller) noteOff(p music.Pitch) {
	if !c.mode.Performing() {
		return
	}
	c.metrics.NoteEvent(input.NoteOff)
	c.tracker.NoteOff(p)
}

func (c *Controller) target() (int, music.PitchSet, error) {
	i := c.sched.Index()
	if i >= len(c.targets) {
		return i, music.PitchSet{}, ErrNoProgression
	}
	return i, c.targets[i], c.targetErrs[i]
}

func (c *Controller) evaluated(ev match.Evaluation) {
	c.last = &ev
	c.metrics.Evaluation(ev.Outcome)
	switch ev.Outcome {
	case match.Match:
		next := c.sched.Advance()
		c.metrics.ChordChange(c.mode)
		c.log.Debug("engine: chord matched", slog.Int("index", ev.Index), slog.Int("next", next))
	case match.Unmatchable:
		c.log.Warn("engine: target chord cannot be matched", slog.Int("index", ev.Index), slog.Any("error", ev.Err))
	default:
		c.log.Debug("engine: no match", slog.String("held", ev.Held.String()), slog.String("target", ev.Target.String()))
	}
	c.notify()
}

func (c *Controller) beat(b int) {
	if c.metronome {
		if err := c.tone.Click(b == 0); err != nil {
			c.audioFailed(err)
		}
	}
	c.notify()
}

func (c *Controller) autoChord(i int) {
	c.metrics.ChordChange(c.mode)
	c.soundChord(i)
	c.notify()
}

func (c *Controller) soundChord(i int) {
	if !c.synthesis || i >= len(c.targets) {
		return
	}
	if err := c.targetErrs[i]; err != nil {
		c.log.Warn("engine: cannot sound malformed chord", slog.Int("index", i), slog.Any("error", err))
		return
	}
	dur := c.opts.ChordDuration
	if dur <= 0 {
		dur = c.sched.MeasureDuration()
	}
	c.play(c.targets[i].Pitches(), dur, c.opts.Velocity)
}

func (c *Controller) play(ps []music.Pitch, dur time.Duration, velocity uint8) {
	if !c.tone.Ready() {
		c.log.Debug("engine: tone engine not ready")
		return
	}
	if err := c.tone.PlayNotes(ps, dur, velocity); err != nil {
		c.audioFailed(err)
	}
}

func (c *Controller) audioFailed(err error) {
	c.metrics.AudioError()
	c.log.Warn("engine: audio failed", slog.Any("error", err))
}

// Load installs a song. It is only allowed while idle.
func (c *Controller) Load(song music.Song) error {
	if c.closed {
		return ErrClosed
	}
	if c.mode != Idle {
		return ErrSessionActive
	}
	if err := song.Validate(); err != nil {
		return fmt.Errorf("load %q: %w", song.Title, err)
	}

	c.song = song
	c.loaded = true
	c.targets = make([]music.PitchSet, len(song.Chords))
	c.targetErrs = make([]error, len(song.Chords))
	for i, ch := range song.Chords {
		c.targets[i], c.targetErrs[i] = ch.PitchSet()
		if c.targetErrs[i] != nil {
			c.log.Warn("engine: malformed chord", slog.String("song", song.Title), slog.Int("index", i), slog.Any("error", c.targetErrs[i]))
		}
	}
	c.keymap = input.BuildKeyMapping(song.Chords)
	if missing := c.keymap.Unreachable(song.Chords); len(missing) > 0 {
		c.log.Warn("engine: pitches outside the demo keyboard", slog.String("pitches", music.NewPitchSet(missing...).String()))
	}

	c.sched.SetLength(len(song.Chords))
	if song.Tempo > 0 {
		c.sched.SetTempo(float64(song.Tempo))
	}
	if song.BeatsPerMeasure > 0 {
		c.sched.SetBeatsPerMeasure(song.BeatsPerMeasure)
	}
	c.last = nil
	c.lastErr = nil
	c.log.Info("engine: song loaded", slog.String("song", song.Title), slog.Int("chords", len(song.Chords)))
	c.notify()
	return nil
}

func (c *Controller) ready() error {
	if c.closed {
		return ErrClosed
	}
	if !c.loaded {
		return ErrNoProgression
	}
	return nil
}

func (c *Controller) setMode(m Mode) {
	if c.mode == m {
		return
	}
	c.log.Info("engine: mode", slog.String("from", c.mode.String()), slog.String("to", m.String()))
	c.mode = m
	c.metrics.ModeChange(m)
}

// halt cancels every timer, detaches the input adapter and silences audio.
func (c *Controller) halt() {
	c.sched.Stop()
	c.matcher.Cancel()
	c.tracker.Clear()
	c.stopAdapter()
	c.tone.StopAll()
}

func (c *Controller) stopAdapter() {
	if c.adapter != nil {
		if err := c.adapter.Stop(); err != nil {
			c.log.Warn("engine: stop input", slog.String("adapter", c.adapter.Name()), slog.Any("error", err))
		}
	}
	c.adapter = nil
	c.keyboard = nil
	c.midiIn = nil
	c.deviceConnected = false
}

// Start begins Auto-Play from the current chord.
func (c *Controller) Start() error {
	if err := c.ready(); err != nil {
		return err
	}
	switch {
	case c.mode.Performing():
		return ErrPerforming
	case c.mode == AutoPlaying:
		return nil
	}
	c.setMode(AutoPlaying)
	c.sched.Start()
	c.notify()
	return nil
}

// Stop ends Auto-Play or a performance and silences audio.
func (c *Controller) Stop() error {
	if c.closed {
		return nil
	}
	if c.mode.Performing() {
		return c.ExitPerform()
	}
	c.halt()
	c.setMode(Idle)
	c.notify()
	return nil
}

// EnterPerform starts a performance from the first chord. If MIDI is not
// available the session stays idle, the error wraps ErrMIDIUnavailable and
// the state offers demo mode instead.
func (c *Controller) EnterPerform(m Mode) error {
	if !m.Performing() {
		return fmt.Errorf("%w: %s", ErrBadMode, m)
	}
	if err := c.ready(); err != nil {
		return err
	}
	if c.mode == m {
		return nil
	}
	c.halt()
	c.setMode(Idle)
	if err := c.sched.Select(0); err != nil {
		return err
	}
	c.demoOffered = false
	c.lastErr = nil
	c.last = nil

	switch m {
	case PerformingDemo:
		kb := input.NewKeyboardAdapter(c.keymap, c.opts.Velocity)
		if err := kb.Start(noteSink{c}); err != nil {
			return err
		}
		c.adapter = kb
		c.keyboard = kb
	case PerformingMIDI:
		if err := c.connectMIDI(); err != nil {
			c.demoOffered = true
			c.lastErr = err
			c.log.Warn("engine: MIDI unavailable, demo mode offered", slog.Any("error", err))
			c.notify()
			return err
		}
	}
	c.setMode(m)
	c.notify()
	return nil
}

func (c *Controller) connectMIDI() error {
	if c.midi == nil {
		return fmt.Errorf("%w: %w", ErrMIDIUnavailable, input.ErrUnsupported)
	}
	if c.device == nil {
		d, err := c.chooseDevice()
		if err != nil {
			return fmt.Errorf("%w: %w", ErrMIDIUnavailable, err)
		}
		c.device = &d
	}
	a := input.NewMIDIAdapter(c.midi, *c.device, c.opts.Post, c.log)
	a.OnStatus = c.deviceStatus
	if err := a.Start(noteSink{c}); err != nil {
		return fmt.Errorf("%w: %w", ErrMIDIUnavailable, err)
	}
	c.adapter = a
	c.midiIn = a
	c.deviceConnected = true
	return nil
}

func (c *Controller) chooseDevice() (input.Device, error) {
	devs, err := c.midi.Devices()
	if err != nil {
		return input.Device{}, err
	}
	if len(devs) == 0 {
		return input.Device{}, input.ErrNoDevices
	}
	if c.opts.Device != "" {
		if d, ok := input.FindDevice(devs, c.opts.Device); ok {
			return d, nil
		}
		c.log.Warn("engine: preferred MIDI device not present", slog.String("device", c.opts.Device))
	}
	d, _ := input.PickDevice(devs)
	return d, nil
}

func (c *Controller) deviceStatus(s input.DeviceStatus) {
	if c.mode != PerformingMIDI {
		return
	}
	switch {
	case !s.Connected:
		c.matcher.Cancel()
		c.tracker.Clear()
		c.tone.StopAll()
		c.deviceConnected = false
		c.lastErr = fmt.Errorf("MIDI device %q disconnected", s.Device.Name)
	case s.Err != nil:
		c.lastErr = s.Err
	default:
		c.deviceConnected = true
		c.lastErr = nil
	}
	c.notify()
}

// ExitPerform ends a performance, releasing the MIDI device.
func (c *Controller) ExitPerform() error {
	if c.closed || !c.mode.Performing() {
		return nil
	}
	c.halt()
	c.setMode(Idle)
	c.notify()
	return nil
}

// Next moves to the following chord and sounds it.
func (c *Controller) Next() error {
	if err := c.ready(); err != nil {
		return err
	}
	c.sched.Advance()
	c.selected()
	return nil
}

// Prev moves to the previous chord and sounds it.
func (c *Controller) Prev() error {
	if err := c.ready(); err != nil {
		return err
	}
	c.sched.Back()
	c.selected()
	return nil
}

// SelectChord jumps to chord i and sounds it.
func (c *Controller) SelectChord(i int) error {
	if err := c.ready(); err != nil {
		return err
	}
	if err := c.sched.Select(i); err != nil {
		return err
	}
	c.selected()
	return nil
}

func (c *Controller) selected() {
	if c.mode.Performing() {
		c.matcher.Cancel()
		c.tracker.Clear()
	}
	c.metrics.ChordChange(c.mode)
	c.tone.StopAll()
	c.soundChord(c.sched.Index())
	c.notify()
}

// SetTempo changes the tempo in beats per minute.
func (c *Controller) SetTempo(bpm float64) error {
	if bpm < MinTempo || bpm > MaxTempo {
		return fmt.Errorf("%w: %g not in [%d,%d]", ErrTempoRange, bpm, MinTempo, MaxTempo)
	}
	c.sched.SetTempo(bpm)
	c.notify()
	return nil
}

// SetBeatsPerMeasure changes the meter.
func (c *Controller) SetBeatsPerMeasure(n int) error {
	if n < 1 || n > 16 {
		return fmt.Errorf("beats per measure %d not in [1,16]", n)
	}
	c.sched.SetBeatsPerMeasure(n)
	c.notify()
	return nil
}

func (c *Controller) SetMetronome(on bool) {
	c.metronome = on
	c.notify()
}

// SetSynthesis turns chord and note feedback sounds on or off.
func (c *Controller) SetSynthesis(on bool) {
	c.synthesis = on
	if !on {
		c.tone.StopAll()
	}
	c.notify()
}

// Devices lists MIDI inputs.
func (c *Controller) Devices() ([]input.Device, error) {
	if c.midi == nil {
		return nil, fmt.Errorf("%w: %w", ErrMIDIUnavailable, input.ErrUnsupported)
	}
	return c.midi.Devices()
}

// SelectDevice chooses the MIDI input by ID or name. During a MIDI
// performance the input is switched at once, from a clean held-notes state.
func (c *Controller) SelectDevice(idOrName string) error {
	devs, err := c.Devices()
	if err != nil {
		return err
	}
	d, ok := input.FindDevice(devs, idOrName)
	if !ok {
		return fmt.Errorf("%w: %s", input.ErrDeviceNotFound, idOrName)
	}
	c.device = &d
	if c.mode == PerformingMIDI {
		c.stopAdapter()
		c.matcher.Cancel()
		c.tracker.Clear()
		if err := c.connectMIDI(); err != nil {
			c.halt()
			c.setMode(Idle)
			c.demoOffered = true
			c.lastErr = err
			c.notify()
			return err
		}
	}
	c.notify()
	return nil
}

// KeyDown feeds a computer-keyboard key press in demo mode. It reports
// whether the key produced a note.
func (c *Controller) KeyDown(key string) bool {
	if c.mode != PerformingDemo || c.keyboard == nil {
		return false
	}
	return c.keyboard.KeyDown(key)
}

// KeyUp feeds a key release in demo mode.
func (c *Controller) KeyUp(key string) bool {
	if c.mode != PerformingDemo || c.keyboard == nil {
		return false
	}
	return c.keyboard.KeyUp(key)
}

// Suspend tears the session down to idle: no loop, no timers, no sound and
// no open device. Run it whenever the view goes away or is hidden.
func (c *Controller) Suspend() {
	if c.closed {
		return
	}
	c.halt()
	c.setMode(Idle)
	c.notify()
}

// Close suspends the session for good.
func (c *Controller) Close() error {
	if c.closed {
		return nil
	}
	c.Suspend()
	c.closed = true
	c.subs = nil
	return nil
}

// Subscribe registers f to receive the state after every change. The
// returned function unregisters it.
func (c *Controller) Subscribe(f func(State)) func() {
	if c.closed {
		return func() {}
	}
	id := c.nextSub
	c.nextSub++
	c.subs[id] = f
	return func() { delete(c.subs, id) }
}

func (c *Controller) notify() {
	if len(c.subs) == 0 {
		return
	}
	ids := make([]int, 0, len(c.subs))
	for id := range c.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	st := c.State()
	for _, id := range ids {
		if f, ok := c.subs[id]; ok {
			f(st)
		}
	}
}

func (c *Controller) Mode() Mode                   { return c.mode }
func (c *Controller) Index() int                   { return c.sched.Index() }
func (c *Controller) Song() music.Song             { return c.song }
func (c *Controller) KeyMapping() input.KeyMapping { return c.keymap }
func (c *Controller) Held() music.PitchSet         { return c.tracker.Snapshot() }

// State returns a snapshot of the session.
func (c *Controller) State() State {
	st := State{
		Mode:            c.mode,
		SongID:          c.song.ID,
		Title:           c.song.Title,
		Index:           c.sched.Index(),
		Beat:            c.sched.Beat(),
		Tempo:           c.sched.Tempo(),
		BeatsPerMeasure: c.sched.BeatsPerMeasure(),
		Metronome:       c.metronome,
		Synthesis:       c.synthesis,
		AudioReady:      c.tone.Ready(),
		Held:            c.tracker.Snapshot().Pitches(),
		DeviceConnected: c.deviceConnected,
		DemoOffered:     c.demoOffered,
		Layout:          c.keymap.Layout.String(),
	}
	if c.device != nil {
		d := *c.device
		st.Device = &d
	}
	for i, ch := range c.song.Chords {
		cv := ChordView{Name: ch.Label(), Notes: append([]string(nil), ch.Notes...)}
		if err := c.targetErrs[i]; err != nil {
			cv.Problem = err.Error()
			st.Problems = append(st.Problems, ProblemView{Index: i, Error: err.Error()})
		}
		st.Chords = append(st.Chords, cv)
	}
	if _, t, err := c.target(); err == nil {
		st.Target = t.Pitches()
	}
	if c.last != nil {
		st.Last = newEvaluationView(*c.last)
	}
	if c.mode == PerformingDemo {
		st.Keys = c.keymap.Bindings()
	}
	if c.lastErr != nil {
		st.Error = c.lastErr.Error()
	}
	return st
}

// IsMIDIUnavailable reports whether err means MIDI input cannot be used
// and demo mode should be offered.
func IsMIDIUnavailable(err error) bool { return errors.Is(err, ErrMIDIUnavailable) }
