package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/icco/chordcoach/internal/clock"
	"github.com/icco/chordcoach/internal/engine"
	"github.com/icco/chordcoach/internal/input"
	"github.com/icco/chordcoach/internal/match"
	"github.com/icco/chordcoach/internal/music"
)

// DefaultKeyHold is how long a terminal key counts as held after its last
// press or auto-repeat. Terminals do not report key releases.
const DefaultKeyHold = 600 * time.Millisecond

const (
	flashFor  = 700 * time.Millisecond
	tempoStep = 5
)

var (
	chordStyle        = lipgloss.NewStyle().Padding(0, 1)
	currentChordStyle = lipgloss.NewStyle().Padding(0, 1).Bold(true).
				Foreground(lipgloss.Color("#FFFFFF")).Background(lipgloss.Color("#7D56F4"))
	badChordStyle = lipgloss.NewStyle().Padding(0, 1).Foreground(lipgloss.Color("#FF5555")).Strikethrough(true)
	labelStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	okStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00")).Bold(true)
	warnStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFAA00")).Bold(true)
	matchFlash    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#000000")).Background(lipgloss.Color("#00FF00")).Padding(0, 1)
	missFlash     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFFFF")).Background(lipgloss.Color("#AA3333")).Padding(0, 1)
)

// performModel is the performance screen for the loaded song.
type performModel struct {
	ctl   *engine.Controller
	clock clock.Clock
	hold  time.Duration

	// keys holds a release timer per demo key currently down.
	keys  *clock.Set[string]
	flash *clock.Slot

	state    engine.State
	lastSeq  uint64
	flashing bool
	message  string

	selectingDevice bool
	devices         []input.Device
	deviceCursor    int
}

func newPerformModel(ctl *engine.Controller, c clock.Clock, hold time.Duration) *performModel {
	if hold <= 0 {
		hold = DefaultKeyHold
	}
	p := &performModel{
		ctl:   ctl,
		clock: c,
		hold:  hold,
		keys:  clock.NewSet[string](c),
		flash: clock.NewSlot(c),
	}
	p.state = ctl.State()
	ctl.Subscribe(p.onState)
	return p
}

func (p *performModel) onState(st engine.State) {
	if st.Mode != engine.PerformingDemo {
		p.keys.CancelAll()
	}
	if st.Last != nil && st.Last.Seq != p.lastSeq {
		p.lastSeq = st.Last.Seq
		p.flashing = true
		p.flash.Reset(flashFor, func() { p.flashing = false })
	}
	p.state = st
}

// pressKey feeds a terminal key press to the demo keyboard. A press of a
// key already down is auto-repeat and only extends the hold.
func (p *performModel) pressKey(k string) bool {
	if _, ok := p.ctl.KeyMapping().Pitch(k); !ok {
		return false
	}
	if p.keys.Pending(k) {
		p.keys.Start(k, p.hold, func() { p.ctl.KeyUp(k) })
		return true
	}
	if !p.ctl.KeyDown(k) {
		return false
	}
	p.keys.Start(k, p.hold, func() { p.ctl.KeyUp(k) })
	return true
}

// update handles a key. It reports whether the user asked to leave the
// screen.
func (p *performModel) update(msg tea.KeyMsg) (leave bool) {
	key := msg.String()

	if p.selectingDevice {
		p.updateDeviceSelection(key)
		return false
	}

	if p.state.Mode == engine.PerformingDemo && msg.Type == tea.KeyRunes && len(msg.Runes) == 1 {
		if p.pressKey(strings.ToLower(key)) {
			return false
		}
	}

	var err error
	switch key {
	case keyEsc:
		if p.state.Mode.Performing() {
			err = p.ctl.ExitPerform()
		} else {
			p.ctl.Suspend()
			return true
		}
	case "q":
		p.ctl.Suspend()
		return true
	case keyLeft, "h":
		err = p.ctl.Prev()
	case keyRight, "l":
		err = p.ctl.Next()
	case " ":
		if p.state.Mode == engine.AutoPlaying {
			err = p.ctl.Stop()
		} else {
			err = p.ctl.Start()
		}
	case "m":
		err = p.ctl.EnterPerform(engine.PerformingMIDI)
	case "d":
		err = p.ctl.EnterPerform(engine.PerformingDemo)
	case "+", "=":
		err = p.ctl.SetTempo(p.state.Tempo + tempoStep)
	case "-", "_":
		err = p.ctl.SetTempo(p.state.Tempo - tempoStep)
	case "c":
		p.ctl.SetMetronome(!p.state.Metronome)
	case "s":
		p.ctl.SetSynthesis(!p.state.Synthesis)
	case "i":
		p.openDeviceSelection()
		return false
	default:
		return false
	}

	switch {
	case err == nil:
		p.message = ""
	case engine.IsMIDIUnavailable(err):
		p.message = fmt.Sprintf("%v. Press d to play with the computer keyboard.", err)
	default:
		p.message = fmt.Sprintf("Error: %v", err)
	}
	return false
}

func (p *performModel) openDeviceSelection() {
	devs, err := p.ctl.Devices()
	if err != nil {
		p.message = fmt.Sprintf("Error: %v", err)
		return
	}
	p.devices = devs
	p.deviceCursor = 0
	if p.state.Device != nil {
		for i, d := range devs {
			if d.ID == p.state.Device.ID {
				p.deviceCursor = i
			}
		}
	}
	p.selectingDevice = true
	if len(devs) == 0 {
		p.message = "No MIDI inputs found. Press 'r' to refresh."
	} else {
		p.message = fmt.Sprintf("Found %d MIDI input(s)", len(devs))
	}
}

func (p *performModel) updateDeviceSelection(key string) {
	switch key {
	case keyUp, "k":
		if p.deviceCursor > 0 {
			p.deviceCursor--
		}
	case keyDown, "j":
		if p.deviceCursor < len(p.devices)-1 {
			p.deviceCursor++
		}
	case keyEnter:
		if p.deviceCursor < len(p.devices) {
			d := p.devices[p.deviceCursor]
			if err := p.ctl.SelectDevice(d.ID); err != nil {
				p.message = fmt.Sprintf("Error: %v", err)
			} else {
				p.message = fmt.Sprintf("MIDI input: %s", d.Name)
			}
		}
		p.selectingDevice = false
	case keyEsc, "q", "i":
		p.selectingDevice = false
	case "r":
		p.openDeviceSelection()
	}
}

func (p *performModel) view() string {
	if p.selectingDevice {
		return p.viewDeviceSelection()
	}
	st := p.state
	var b strings.Builder

	title := st.Title
	if title == "" {
		title = "(no song)"
	}
	b.WriteString(titleStyle.Render("CHORDCOACH") + " " + title + "\n\n")

	b.WriteString(labelStyle.Render("Mode: ") + modeLabel(st.Mode))
	b.WriteString(labelStyle.Render("   Tempo: ") + fmt.Sprintf("%g BPM %d/4", st.Tempo, st.BeatsPerMeasure))
	b.WriteString(labelStyle.Render("   Metronome: ") + onOff(st.Metronome))
	b.WriteString(labelStyle.Render("   Sound: ") + onOff(st.Synthesis))
	if !st.AudioReady {
		b.WriteString(" " + warnStyle.Render("(audio not ready)"))
	}
	b.WriteString("\n")
	b.WriteString(deviceLine(st) + "\n\n")

	if len(st.Problems) > 0 {
		idx := make([]string, len(st.Problems))
		for i, pr := range st.Problems {
			idx[i] = fmt.Sprintf("#%d", pr.Index+1)
		}
		b.WriteString(warnStyle.Render(fmt.Sprintf("⚠ %d chord(s) can never be matched: %s", len(st.Problems), strings.Join(idx, ", "))) + "\n\n")
	}

	b.WriteString(renderChordStrip(st) + "\n\n")
	b.WriteString(renderClockBar(st.BeatsPerMeasure, st.Mode == engine.AutoPlaying, st.Beat) + "\n\n")

	b.WriteString(labelStyle.Render("Target: ") + pitchNames(st.Target) + "\n")
	b.WriteString(labelStyle.Render("Held:   ") + pitchNames(st.Held) + "\n\n")

	held := st.HeldSet()
	target := music.NewPitchSet(st.Target...)
	b.WriteString(renderKeyboard(keyboardOctave(held.Union(target)), held, target) + "\n\n")

	if st.Mode == engine.PerformingDemo {
		b.WriteString(labelStyle.Render("Keys: ") + p.targetKeys(st.Target) + "\n")
	}

	if line := p.flashLine(); line != "" {
		b.WriteString(line + "\n")
	}

	b.WriteString("\n")
	if p.message != "" {
		b.WriteString(errorStyle.Render(p.message) + "\n")
	} else if st.Error != "" {
		b.WriteString(errorStyle.Render(st.Error) + "\n")
	}

	if st.Mode == engine.PerformingDemo {
		b.WriteString("\n" + helpStyle.Render("Play the chord on the keys shown • ←/→: chord • esc: stop performing"))
	} else {
		b.WriteString("\n" + helpStyle.Render("space: play/stop • ←/→ or h/l: chord • m: perform (MIDI) • d: perform (keyboard)"))
		b.WriteString("\n" + helpStyle.Render("+/-: tempo • c: metronome • s: sound • i: MIDI input • esc: stop/back • q: back"))
	}
	return b.String()
}

func (p *performModel) flashLine() string {
	last := p.state.Last
	if last == nil {
		return ""
	}
	name := fmt.Sprintf("#%d", last.Index+1)
	if last.Index < len(p.state.Chords) {
		name = p.state.Chords[last.Index].Name
	}
	var text string
	style := missFlash
	switch last.Outcome {
	case match.Match:
		text = "✓ " + name
		style = matchFlash
	case match.Unmatchable:
		text = "! " + name + " cannot be matched"
	default:
		text = "✗ " + pitchNames(last.Held)
	}
	if !p.flashing {
		return labelStyle.Render("Last: " + text)
	}
	return style.Render(text)
}

// targetKeys lists the demo keys for each target note.
func (p *performModel) targetKeys(target []music.Pitch) string {
	m := p.ctl.KeyMapping()
	parts := make([]string, 0, len(target))
	for _, t := range target {
		keys := m.KeysFor(t)
		if len(keys) == 0 {
			parts = append(parts, t.String()+"=?")
			continue
		}
		parts = append(parts, t.String()+"="+strings.Join(keys, "/"))
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, "  ")
}

func (p *performModel) viewDeviceSelection() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Select MIDI Input") + "\n\n")
	if len(p.devices) == 0 {
		b.WriteString("No MIDI input ports found.\n\n")
		b.WriteString("Make sure your MIDI keyboard is connected.\n")
	}
	for i, d := range p.devices {
		cursor := "  "
		if i == p.deviceCursor {
			cursor = "> "
		}
		connected := ""
		if p.state.Device != nil && p.state.Device.ID == d.ID {
			connected = " (selected)"
		}
		virtual := ""
		if d.Virtual {
			virtual = " [virtual]"
		}
		line := fmt.Sprintf("%s%s%s%s", cursor, d.Name, virtual, connected)
		if i == p.deviceCursor {
			b.WriteString(selectedStyle.Render(line) + "\n")
		} else {
			b.WriteString(line + "\n")
		}
	}

	b.WriteString("\n")
	if p.message != "" {
		b.WriteString(errorStyle.Render(p.message) + "\n")
	}
	b.WriteString("\n" + helpStyle.Render("↑/k: up • ↓/j: down • enter: select • r: refresh • q/esc: cancel"))
	return b.String()
}

func modeLabel(m engine.Mode) string {
	switch m {
	case engine.AutoPlaying:
		return okStyle.Render("playing")
	case engine.PerformingMIDI:
		return okStyle.Render("performing (MIDI)")
	case engine.PerformingDemo:
		return okStyle.Render("performing (keyboard)")
	default:
		return "stopped"
	}
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

func deviceLine(st engine.State) string {
	switch {
	case st.Device == nil:
		return labelStyle.Render("MIDI in: ") + "none selected"
	case st.Mode != engine.PerformingMIDI:
		return labelStyle.Render("MIDI in: ") + st.Device.Name
	case st.DeviceConnected:
		return labelStyle.Render("MIDI in: ") + okStyle.Render(st.Device.Name+" ✓")
	default:
		return labelStyle.Render("MIDI in: ") + warnStyle.Render(st.Device.Name+" (disconnected)")
	}
}

func renderChordStrip(st engine.State) string {
	cells := make([]string, len(st.Chords))
	for i, c := range st.Chords {
		switch {
		case i == st.Index:
			cells[i] = currentChordStyle.Render(c.Name)
		case c.Problem != "":
			cells[i] = badChordStyle.Render(c.Name)
		default:
			cells[i] = chordStyle.Render(c.Name)
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, cells...)
}

// renderClockBar draws one cell per beat of the measure.
func renderClockBar(beats int, isPlaying bool, currentBeat int) string {
	colors := []string{
		"#00FFFF", "#00CCFF", "#0099FF", "#0066FF",
		"#3333FF", "#6600FF", "#9900FF", "#CC00FF",
		"#FF00FF", "#FF00CC", "#FF0099", "#FF0066",
		"#FF3333", "#FF6600", "#FF9900", "#FFCC00",
	}

	bar := strings.Builder{}
	bar.WriteString("Beat ")
	for i := 0; i < beats; i++ {
		var cell string
		var cellStyle lipgloss.Style
		color := lipgloss.Color(colors[i%len(colors)])

		switch {
		case isPlaying && i == currentBeat:
			cell = " ▶ "
			cellStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#FFFFFF")).
				Background(color).
				Bold(true)
		case isPlaying && i < currentBeat:
			cell = " █ "
			cellStyle = lipgloss.NewStyle().Foreground(color)
		default:
			cell = " · "
			cellStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#444444"))
		}
		bar.WriteString(cellStyle.Render(cell))
	}

	status := " Stopped"
	statusStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	if isPlaying {
		status = " Playing"
		statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00")).Bold(true)
	}
	bar.WriteString(statusStyle.Render(status))
	return bar.String()
}
