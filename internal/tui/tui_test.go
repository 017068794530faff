package tui

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/icco/chordcoach/internal/clock/clocktest"
	"github.com/icco/chordcoach/internal/engine"
	"github.com/icco/chordcoach/internal/music"
	"github.com/icco/chordcoach/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeLibrary struct {
	songs map[string]music.Song
	next  int
}

func newFakeLibrary(songs ...music.Song) *fakeLibrary {
	l := &fakeLibrary{songs: make(map[string]music.Song)}
	for _, s := range songs {
		l.PutSong(s) //nolint:errcheck
	}
	return l
}

func (l *fakeLibrary) ListSongs() ([]music.Song, error) {
	out := make([]music.Song, 0, len(l.songs))
	for _, s := range l.songs {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out, nil
}

func (l *fakeLibrary) PutSong(s music.Song) (music.Song, error) {
	if s.ID == "" {
		l.next++
		s.ID = string(rune('a' + l.next))
	}
	l.songs[s.ID] = s
	return s, nil
}

func (l *fakeLibrary) DeleteSong(id string) error {
	delete(l.songs, id)
	return nil
}

func twoChords() music.Song {
	return music.Song{
		Title: "Two Chords",
		Chords: music.Progression{
			music.ChordOf("C", 60, 64, 67),
			music.ChordOf("F", 60, 65, 69),
		},
	}
}

type harness struct {
	fc  *clocktest.Fake
	ctl *engine.Controller
	m   *Model
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	fc := clocktest.New()
	ctl := engine.New(engine.Options{Clock: fc, Logger: quiet})
	opts.Controller = ctl
	opts.Clock = fc
	opts.Logger = quiet
	return &harness{fc: fc, ctl: ctl, m: New(opts)}
}

func (h *harness) send(msg tea.Msg) tea.Cmd {
	_, cmd := h.m.Update(msg)
	return cmd
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func (h *harness) typeKeys(keys ...string) {
	for _, k := range keys {
		h.send(runes(k))
	}
}

func writeMIDI(t *testing.T, path string, song music.Song) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, store.ExportSMF(song, f))
}

func TestBrowserListsSongsAndMIDIFiles(t *testing.T) {
	dir := t.TempDir()
	writeMIDI(t, filepath.Join(dir, "tune.mid"), twoChords())
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0600))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0750))

	lib := newFakeLibrary(music.Song{Title: "Library Song", Chords: music.Progression{music.ChordOf("C", 60, 64, 67)}})
	h := newHarness(t, Options{Library: lib, Dir: dir})

	var names []string
	for _, e := range h.m.browser.entries {
		names = append(names, e.name)
	}
	assert.Equal(t, []string{"Library Song", "..", "sub", "tune.mid"}, names)

	view := h.m.View()
	assert.Contains(t, view, "Library Song")
	assert.Contains(t, view, "tune.mid")
	assert.NotContains(t, view, "notes.txt")

	// Open the .mid file.
	for i := 0; i < 3; i++ {
		h.send(tea.KeyMsg{Type: tea.KeyDown})
	}
	cmd := h.send(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	h.send(cmd())

	assert.Equal(t, performMode, h.m.mode)
	assert.Len(t, h.ctl.Song().Chords, 2)
	assert.Contains(t, h.m.View(), "Two Chords")
}

func TestBrowserAddAndDelete(t *testing.T) {
	dir := t.TempDir()
	writeMIDI(t, filepath.Join(dir, "tune.mid"), twoChords())
	lib := newFakeLibrary()
	h := newHarness(t, Options{Library: lib, Dir: dir})

	// ".." then "tune.mid".
	h.send(tea.KeyMsg{Type: tea.KeyDown})
	h.typeKeys("a")
	require.Len(t, lib.songs, 1)
	assert.Equal(t, songEntry, h.m.browser.entries[0].kind)

	h.m.browser.cursor = 0
	h.typeKeys("x")
	assert.Empty(t, lib.songs)
	assert.Contains(t, h.m.browser.message, "Deleted")
}

func TestBrowserViewportScrolls(t *testing.T) {
	var songs []music.Song
	for i := 0; i < 30; i++ {
		songs = append(songs, music.Song{Title: string(rune('A' + i)), Chords: music.Progression{music.ChordOf("C", 60)}})
	}
	h := newHarness(t, Options{Library: newFakeLibrary(songs...)})
	h.send(tea.WindowSizeMsg{Width: 80, Height: 20})

	lines := h.m.browser.visibleLines(20)
	for i := 0; i < lines+5; i++ {
		h.send(tea.KeyMsg{Type: tea.KeyDown})
	}
	assert.Equal(t, lines+5, h.m.browser.cursor)
	assert.Equal(t, h.m.browser.cursor-lines+1, h.m.browser.viewportTop)

	for i := 0; i < lines+3; i++ {
		h.send(tea.KeyMsg{Type: tea.KeyUp})
	}
	assert.Equal(t, 2, h.m.browser.cursor)
	assert.Equal(t, 2, h.m.browser.viewportTop)
}

func TestDemoKeysSynthesizeRelease(t *testing.T) {
	song := twoChords()
	h := newHarness(t, Options{Song: &song})
	require.Equal(t, performMode, h.m.mode)

	h.typeKeys("d")
	require.Equal(t, engine.PerformingDemo, h.ctl.Mode())
	assert.Contains(t, h.m.View(), "C4=a")

	// C4 E4 G4 on the single-octave layout.
	h.typeKeys("a", "d", "g")
	assert.Equal(t, music.NewPitchSet(60, 64, 67), h.ctl.Held())

	h.fc.Advance(150 * time.Millisecond)
	assert.Equal(t, 1, h.ctl.Index())
	assert.Equal(t, 1, h.m.perform.state.Index)
	assert.True(t, h.m.perform.flashing)

	h.fc.Advance(DefaultKeyHold)
	assert.Equal(t, 0, h.m.perform.keys.Len(), "every key released after the hold window")
	h.fc.Advance(time.Second)
	assert.False(t, h.m.perform.flashing)
}

func TestDemoKeyRepeatExtendsHold(t *testing.T) {
	song := twoChords()
	h := newHarness(t, Options{Song: &song, KeyHold: 300 * time.Millisecond})
	h.typeKeys("d")

	// F4 is not in the first chord, so nothing matches and clears it.
	h.typeKeys("f")
	h.fc.Advance(200 * time.Millisecond)
	h.typeKeys("f")
	h.fc.Advance(200 * time.Millisecond)
	assert.True(t, h.ctl.Held().Has(65), "auto-repeat keeps the key down")

	h.fc.Advance(100 * time.Millisecond)
	assert.Equal(t, 0, h.m.perform.keys.Len())
	h.fc.Advance(250 * time.Millisecond)
	assert.True(t, h.ctl.Held().Empty(), "released after the release debounce")
}

func TestEscLeavesPerformanceThenScreen(t *testing.T) {
	song := twoChords()
	h := newHarness(t, Options{Song: &song})

	h.typeKeys("d", "a")
	h.send(tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, engine.Idle, h.ctl.Mode())
	assert.Equal(t, 0, h.m.perform.keys.Len(), "pending key releases dropped")
	assert.Equal(t, performMode, h.m.mode)

	h.send(tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, browserMode, h.m.mode)
}

func TestMIDIUnavailableOffersDemo(t *testing.T) {
	song := twoChords()
	h := newHarness(t, Options{Song: &song})

	h.typeKeys("m")
	assert.Equal(t, engine.Idle, h.ctl.Mode())
	assert.True(t, h.m.perform.state.DemoOffered)
	assert.Contains(t, h.m.View(), "Press d")

	h.typeKeys("d")
	assert.Equal(t, engine.PerformingDemo, h.ctl.Mode())
}

func TestAutoPlayAndBlur(t *testing.T) {
	song := twoChords()
	h := newHarness(t, Options{Song: &song})

	h.send(tea.KeyMsg{Type: tea.KeySpace})
	require.Equal(t, engine.AutoPlaying, h.ctl.Mode())
	h.fc.Advance(2 * time.Second)
	assert.Equal(t, 1, h.m.perform.state.Index)
	assert.Contains(t, h.m.View(), "Playing")

	h.send(tea.BlurMsg{})
	assert.Equal(t, engine.Idle, h.ctl.Mode())
	assert.Equal(t, 0, h.fc.Pending())
}

func TestTempoAndToggles(t *testing.T) {
	song := twoChords()
	h := newHarness(t, Options{Song: &song})

	h.typeKeys("+", "+", "-")
	assert.Equal(t, 125.0, h.m.perform.state.Tempo)
	h.typeKeys("c")
	assert.True(t, h.m.perform.state.Metronome)
	h.typeKeys("s")
	assert.True(t, h.m.perform.state.Synthesis)

	h.send(tea.KeyMsg{Type: tea.KeyRight})
	assert.Equal(t, 1, h.ctl.Index())
	h.send(tea.KeyMsg{Type: tea.KeyLeft})
	assert.Equal(t, 0, h.ctl.Index())
}

func TestProblemsBanner(t *testing.T) {
	song := music.Song{
		Title: "Broken",
		Chords: music.Progression{
			music.ChordOf("C", 60, 64, 67),
			{Name: "X", Notes: []string{"H4"}},
		},
	}
	h := newHarness(t, Options{Song: &song})
	assert.Contains(t, h.m.View(), "can never be matched: #2")
}

func TestBridgeRunsInOrder(t *testing.T) {
	b := NewBridge()
	var got []int
	for i := 0; i < 3; i++ {
		i := i
		b.Post(func() { got = append(got, i) })
	}

	msgs := make(chan tea.Msg, 1)
	b.Attach(func(msg tea.Msg) { msgs <- msg })
	select {
	case msg := <-msgs:
		assert.IsType(t, drainMsg{}, msg)
	case <-time.After(time.Second):
		t.Fatal("no drain requested")
	}
	b.drain()
	assert.Equal(t, []int{0, 1, 2}, got)

	b.Post(func() { got = append(got, 3) })
	select {
	case <-msgs:
	case <-time.After(time.Second):
		t.Fatal("no drain requested")
	}
	b.drain()
	assert.Equal(t, []int{0, 1, 2, 3}, got)
}

func TestKeyboardOctave(t *testing.T) {
	assert.Equal(t, 3, keyboardOctave(music.PitchSet{}))
	assert.Equal(t, 3, keyboardOctave(music.NewPitchSet(60, 64, 67)))
	assert.Equal(t, 3, keyboardOctave(music.NewPitchSet(48, 64)))
	assert.Equal(t, 6, keyboardOctave(music.NewPitchSet(84, 100)))
}

func TestRenderKeyboardShape(t *testing.T) {
	out := renderKeyboard(3, music.NewPitchSet(60), music.NewPitchSet(64))
	rows := splitLines(out)
	require.Len(t, rows, 2)
	assert.NotEmpty(t, rows[0])
	assert.NotEmpty(t, rows[1])
	assert.Equal(t, "-", pitchNames(nil))
	assert.Equal(t, "C4 E4", pitchNames([]music.Pitch{60, 64}))
}

func splitLines(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	return append(out, s[start:])
}
