package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/icco/chordcoach/internal/clock"
	"github.com/icco/chordcoach/internal/engine"
	"github.com/icco/chordcoach/internal/music"
	"github.com/icco/chordcoach/internal/store"
	"github.com/icco/chordcoach/internal/tui"
	"github.com/spf13/cobra"
)

var performCmd = &cobra.Command{
	Use:   "perform",
	Short: "Open the terminal performance view",
	Long: `Open the song browser and performance view in the terminal.

Pick a song from the library or a .mid file, then play along on a MIDI
keyboard (m) or the computer keyboard (d), or let it play (space).`,
	Args: cobra.NoArgs,
	RunE: runPerform,
}

func init() {
	f := performCmd.Flags()
	f.String("song", "", "open this library song id directly")
	f.String("file", "", "open this .mid file directly")
	f.String("chords", "", `open a progression of chord symbols directly, e.g. "C Am F G"`)
	f.String("dir", "", "directory to browse for .mid files")
	f.String("device", "", "preferred MIDI input, by id or name")
	f.String("virtual", "", "create a virtual MIDI input port with this name")
	f.Float64("tempo", 0, "tempo in beats per minute")
	f.Bool("metronome", true, "click on every beat")
	f.String("audio", "", "audio backend: synth, midi or none")
	rootCmd.AddCommand(performCmd)
}

func runPerform(cmd *cobra.Command, args []string) error {
	closeLog, err := initLogger(true)
	if err != nil {
		return err
	}
	defer closeLog()

	lib, err := store.Open(cfg.Library, logger)
	if err != nil {
		return err
	}
	defer lib.Close()

	song, err := initialSong(cmd, lib)
	if err != nil {
		return err
	}

	t := newTone(cfg, logger)
	defer t.Close()
	midi := openMIDI(cfg, logger)
	if midi != nil {
		defer midi.Close()
	}

	bridge := tui.NewBridge()
	clk := clock.NewLoopClock(bridge.Post)
	ctl := engine.New(engineOptions(cfg, clk, bridge.Post, t, midi, logger))

	dir, err := filepath.Abs(cfg.SongDir)
	if err != nil {
		dir = cfg.SongDir
	}
	m := tui.New(tui.Options{
		Controller: ctl,
		Clock:      clk,
		Bridge:     bridge,
		Library:    lib,
		Dir:        dir,
		KeyHold:    cfg.KeyHold,
		Song:       song,
		Logger:     logger,
	})

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithReportFocus())
	bridge.Attach(p.Send)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(c)
	go func() {
		<-c
		p.Send(tea.Quit())
	}()

	_, err = p.Run()
	// The program has stopped, so nothing else touches the controller now.
	ctl.Close() //nolint:errcheck
	if err != nil {
		return fmt.Errorf("error running program: %w", err)
	}
	return nil
}

// initialSong resolves --song, --file or --chords, in that order.
func initialSong(cmd *cobra.Command, lib *store.Badger) (*music.Song, error) {
	f := cmd.Flags()
	id, _ := f.GetString("song")
	file, _ := f.GetString("file")
	chords, _ := f.GetString("chords")

	switch {
	case id != "":
		s, err := lib.GetSong(id)
		if err != nil {
			return nil, fmt.Errorf("song %s: %w", id, err)
		}
		return &s, nil
	case file != "":
		s, err := importFile(file, "")
		if err != nil {
			return nil, err
		}
		return &s, nil
	case chords != "":
		prog, err := music.ParseProgression(chords, 4)
		if err != nil {
			return nil, err
		}
		s := music.Song{Title: chords, Chords: prog}
		return &s, s.Validate()
	}
	return nil, nil
}

// importFile reads a Standard MIDI File. An empty title uses the track
// name, then the file name.
func importFile(path, title string) (music.Song, error) {
	f, err := os.Open(path)
	if err != nil {
		return music.Song{}, err
	}
	defer f.Close()
	s, err := store.ImportSMF(f, title)
	if err != nil {
		return music.Song{}, fmt.Errorf("import %s: %w", path, err)
	}
	if s.Title == "" {
		s.Title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	logger.Debug("imported MIDI file", slog.String("path", path), slog.Int("chords", len(s.Chords)))
	return s, nil
}
