// Package tui is the terminal front end: a song browser and a performance
// screen. The bubbletea program doubles as the engine loop; see Bridge.
package tui

import (
	"fmt"
	"log/slog"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/icco/chordcoach/internal/clock"
	"github.com/icco/chordcoach/internal/engine"
	"github.com/icco/chordcoach/internal/music"
)

const (
	keyUp    = "up"
	keyDown  = "down"
	keyLeft  = "left"
	keyRight = "right"
	keyEnter = "enter"
	keyEsc   = "esc"
)

type viewMode int

const (
	browserMode viewMode = iota
	performMode
)

// Options configure the terminal UI. Controller, Clock and Bridge must
// all refer to the same loop: the controller's clock posts through the
// bridge.
type Options struct {
	Controller *engine.Controller
	Clock      clock.Clock
	Bridge     *Bridge
	Library    Library
	// Dir is browsed for .mid files. Empty lists library songs only.
	Dir     string
	KeyHold time.Duration
	// Song, if set, is loaded and the performance screen shown at once.
	Song   *music.Song
	Logger *slog.Logger
}

// Model is the bubbletea model.
type Model struct {
	mode    viewMode
	ctl     *engine.Controller
	bridge  *Bridge
	browser browserModel
	perform *performModel
	log     *slog.Logger
	width   int
	height  int
}

func New(opts Options) *Model {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	m := &Model{
		ctl:     opts.Controller,
		bridge:  opts.Bridge,
		browser: browserModel{library: opts.Library, currentDir: opts.Dir},
		perform: newPerformModel(opts.Controller, opts.Clock, opts.KeyHold),
		log:     opts.Logger,
	}
	m.browser.load()
	if opts.Song != nil {
		m.open(*opts.Song)
	}
	return m
}

func (m *Model) Init() tea.Cmd {
	return nil
}

// open loads song and switches to the performance screen.
func (m *Model) open(song music.Song) {
	m.ctl.Suspend()
	if err := m.ctl.Load(song); err != nil {
		m.browser.message = fmt.Sprintf("Error loading song: %v", err)
		return
	}
	m.perform.message = ""
	m.mode = performMode
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case drainMsg:
		if m.bridge != nil {
			m.bridge.drain()
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.BlurMsg:
		// The terminal lost focus: nothing may keep playing unattended.
		m.ctl.Suspend()
		return m, nil

	case songChosenMsg:
		m.open(msg.song)
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.ctl.Close() //nolint:errcheck
			return m, tea.Quit
		}

		switch m.mode {
		case browserMode:
			if msg.String() == "q" {
				m.ctl.Close() //nolint:errcheck
				return m, tea.Quit
			}
			return m, m.browser.update(msg, m.height)
		case performMode:
			if m.perform.update(msg) {
				m.mode = browserMode
				m.browser.load()
			}
		}
	}

	return m, nil
}

func (m *Model) View() string {
	switch m.mode {
	case browserMode:
		return m.browser.view(m.height)
	case performMode:
		return m.perform.view()
	default:
		return "Unknown mode"
	}
}
