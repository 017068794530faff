package tui

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/icco/chordcoach/internal/music"
	"github.com/icco/chordcoach/internal/store"
)

// Library is the song store the browser reads and edits.
type Library interface {
	ListSongs() ([]music.Song, error)
	PutSong(s music.Song) (music.Song, error)
	DeleteSong(id string) error
}

type entryKind int

const (
	songEntry entryKind = iota
	dirEntry
	fileEntry
)

type entry struct {
	kind entryKind
	name string
	path string
	song music.Song
}

// browserModel lists library songs, then the directories and .mid files of
// the current directory.
type browserModel struct {
	library     Library
	currentDir  string
	entries     []entry
	cursor      int
	viewportTop int
	message     string
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7D56F4")).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)

	dirStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00AAFF")).
			Bold(true)

	midiStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00FF00"))

	songStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFD700"))
)

func (b *browserModel) load() {
	b.entries = nil

	if b.library != nil {
		songs, err := b.library.ListSongs()
		if err != nil {
			b.message = fmt.Sprintf("Error reading library: %v", err)
		}
		for _, s := range songs {
			b.entries = append(b.entries, entry{kind: songEntry, name: s.Title, song: s})
		}
	}

	if b.currentDir != "" {
		b.loadDir()
	}

	if b.cursor >= len(b.entries) {
		b.cursor = len(b.entries) - 1
	}
	if b.cursor < 0 {
		b.cursor = 0
	}
	if b.viewportTop > b.cursor {
		b.viewportTop = b.cursor
	}
}

func (b *browserModel) loadDir() {
	if parent := filepath.Dir(b.currentDir); parent != b.currentDir {
		b.entries = append(b.entries, entry{kind: dirEntry, name: "..", path: parent})
	}

	files, err := os.ReadDir(b.currentDir)
	if err != nil {
		b.message = fmt.Sprintf("Error reading directory: %v", err)
		return
	}
	for _, f := range files {
		if strings.HasPrefix(f.Name(), ".") {
			continue
		}
		path := filepath.Join(b.currentDir, f.Name())
		switch {
		case f.IsDir():
			b.entries = append(b.entries, entry{kind: dirEntry, name: f.Name(), path: path})
		case isMIDIFile(f.Name()):
			b.entries = append(b.entries, entry{kind: fileEntry, name: f.Name(), path: path})
		}
	}
}

func isMIDIFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".mid" || ext == ".midi"
}

// readSong imports a .mid file, titled after its track name or else the
// file.
func readSong(path string) (music.Song, error) {
	f, err := os.Open(path)
	if err != nil {
		return music.Song{}, err
	}
	defer f.Close()
	s, err := store.ImportSMF(f, "")
	if err != nil {
		return music.Song{}, err
	}
	if s.Title == "" {
		s.Title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return s, nil
}

func (b *browserModel) visibleLines(height int) int {
	return max(height-9, 5)
}

// songChosenMsg is emitted when the user picks a song to perform.
type songChosenMsg struct{ song music.Song }

func (b *browserModel) update(msg tea.KeyMsg, height int) tea.Cmd {
	switch msg.String() {
	case keyUp, "k":
		if b.cursor > 0 {
			b.cursor--
		}
		if b.cursor < b.viewportTop {
			b.viewportTop = b.cursor
		}
	case keyDown, "j":
		if b.cursor < len(b.entries)-1 {
			b.cursor++
		}
		if lines := b.visibleLines(height); b.cursor >= b.viewportTop+lines {
			b.viewportTop = b.cursor - lines + 1
		}
	case keyEnter:
		e, ok := b.selected()
		if !ok {
			return nil
		}
		switch e.kind {
		case dirEntry:
			b.currentDir = e.path
			b.cursor = 0
			b.viewportTop = 0
			b.message = ""
			b.load()
		case songEntry:
			return chooseSong(e.song)
		case fileEntry:
			song, err := readSong(e.path)
			if err != nil {
				b.message = fmt.Sprintf("Error loading MIDI: %v", err)
				return nil
			}
			return chooseSong(song)
		}
	case "a":
		// Add a .mid file to the library.
		e, ok := b.selected()
		if !ok || e.kind != fileEntry || b.library == nil {
			return nil
		}
		song, err := readSong(e.path)
		if err == nil {
			song, err = b.library.PutSong(song)
		}
		if err != nil {
			b.message = fmt.Sprintf("Error importing: %v", err)
			return nil
		}
		b.message = fmt.Sprintf("Added %q to the library", song.Title)
		b.load()
	case "x":
		e, ok := b.selected()
		if !ok || e.kind != songEntry || b.library == nil {
			return nil
		}
		if err := b.library.DeleteSong(e.song.ID); err != nil {
			b.message = fmt.Sprintf("Error deleting: %v", err)
			return nil
		}
		b.message = fmt.Sprintf("Deleted %q", e.song.Title)
		b.load()
	}
	return nil
}

func chooseSong(s music.Song) tea.Cmd {
	return func() tea.Msg { return songChosenMsg{song: s} }
}

func (b *browserModel) selected() (entry, bool) {
	if b.cursor < 0 || b.cursor >= len(b.entries) {
		return entry{}, false
	}
	return b.entries[b.cursor], true
}

func (b *browserModel) view(height int) string {
	var s strings.Builder

	s.WriteString(titleStyle.Render("CHORDCOACH") + "\n\n")
	if b.currentDir != "" {
		s.WriteString(fmt.Sprintf("Directory: %s\n\n", b.currentDir))
	}

	if len(b.entries) == 0 {
		s.WriteString("No songs or MIDI files found.\n")
	}

	lines := b.visibleLines(height)
	end := min(b.viewportTop+lines, len(b.entries))
	for i := b.viewportTop; i < end; i++ {
		e := b.entries[i]
		cursor := " "
		if i == b.cursor {
			cursor = ">"
		}

		var name string
		switch e.kind {
		case songEntry:
			name = songStyle.Render(fmt.Sprintf("♪ %s (%d chords)", e.name, len(e.song.Chords)))
		case dirEntry:
			name = dirStyle.Render(e.name + "/")
		default:
			name = midiStyle.Render(e.name)
		}

		if i == b.cursor {
			s.WriteString(selectedStyle.Render(fmt.Sprintf("%s %s", cursor, name)) + "\n")
		} else {
			s.WriteString(fmt.Sprintf("%s %s\n", cursor, name))
		}
	}

	s.WriteString("\n")
	if b.message != "" {
		s.WriteString(errorStyle.Render(b.message) + "\n")
	}
	s.WriteString("\n" + helpStyle.Render("↑/k: up • ↓/j: down • enter: open • a: add .mid to library • x: delete song • q: quit"))
	return s.String()
}
