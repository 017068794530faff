package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/icco/chordcoach/internal/music"
	"github.com/icco/chordcoach/internal/store"
	"github.com/spf13/cobra"
)

var songsCmd = &cobra.Command{
	Use:   "songs",
	Short: "Manage the song library",
}

var songsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List library songs",
	Args:  cobra.NoArgs,
	RunE: withLibrary(func(cmd *cobra.Command, lib *store.Badger, args []string) error {
		songs, err := lib.ListSongs()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(songs) == 0 {
			fmt.Fprintln(out, dimStyle.Render("The library is empty."))
			return nil
		}
		for _, s := range songs {
			labels := make([]string, len(s.Chords))
			for i, c := range s.Chords {
				labels[i] = c.Label()
			}
			fmt.Fprintf(out, "%s  %s  %s\n", s.ID, headerStyle.Render(s.Title), dimStyle.Render(strings.Join(labels, " ")))
		}
		return nil
	}),
}

var songsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a song from chord symbols",
	Long: `Add a song from a list of chord symbols.

Example:
  chordcoach songs add --title "Axis" --chords "C G Am F"
`,
	Args: cobra.NoArgs,
	RunE: withLibrary(func(cmd *cobra.Command, lib *store.Badger, args []string) error {
		f := cmd.Flags()
		title, _ := f.GetString("title")
		chords, _ := f.GetString("chords")
		tempo, _ := f.GetInt("tempo")
		beats, _ := f.GetInt("beats")
		octave, _ := f.GetInt("octave")

		prog, err := music.ParseProgression(chords, octave)
		if err != nil {
			return err
		}
		return putSong(cmd, lib, music.Song{Title: title, Tempo: tempo, BeatsPerMeasure: beats, Chords: prog})
	}),
}

var songsImportCmd = &cobra.Command{
	Use:   "import FILE.mid",
	Short: "Import a Standard MIDI File",
	Args:  cobra.ExactArgs(1),
	RunE: withLibrary(func(cmd *cobra.Command, lib *store.Badger, args []string) error {
		title, _ := cmd.Flags().GetString("title")
		s, err := importFile(args[0], title)
		if err != nil {
			return err
		}
		return putSong(cmd, lib, s)
	}),
}

var songsExportCmd = &cobra.Command{
	Use:   "export ID FILE.mid",
	Short: "Export a song as a Standard MIDI File",
	Args:  cobra.ExactArgs(2),
	RunE: withLibrary(func(cmd *cobra.Command, lib *store.Badger, args []string) error {
		s, err := lib.GetSong(args[0])
		if err != nil {
			return fmt.Errorf("song %s: %w", args[0], err)
		}
		f, err := os.Create(args[1])
		if err != nil {
			return err
		}
		if err := store.ExportSMF(s, f); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %q to %s\n", s.Title, args[1])
		return nil
	}),
}

var songsRmCmd = &cobra.Command{
	Use:   "rm ID",
	Short: "Delete a library song",
	Args:  cobra.ExactArgs(1),
	RunE: withLibrary(func(cmd *cobra.Command, lib *store.Badger, args []string) error {
		if err := lib.DeleteSong(args[0]); err != nil {
			return fmt.Errorf("song %s: %w", args[0], err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
		return nil
	}),
}

func init() {
	af := songsAddCmd.Flags()
	af.String("title", "", "song title")
	af.String("chords", "", `chord symbols separated by spaces, e.g. "C Am F G"`)
	af.Int("tempo", 0, "song tempo in beats per minute (0 uses the session tempo)")
	af.Int("beats", 0, "beats per measure (0 uses the session meter)")
	af.Int("octave", 4, "octave of the chord roots")
	songsAddCmd.MarkFlagRequired("title")  //nolint:errcheck
	songsAddCmd.MarkFlagRequired("chords") //nolint:errcheck

	songsImportCmd.Flags().String("title", "", "song title (default: the file name)")

	songsCmd.AddCommand(songsListCmd, songsAddCmd, songsImportCmd, songsExportCmd, songsRmCmd)
	rootCmd.AddCommand(songsCmd)
}

// withLibrary opens the library around a command.
func withLibrary(run func(cmd *cobra.Command, lib *store.Badger, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		closeLog, err := initLogger(false)
		if err != nil {
			return err
		}
		defer closeLog()

		lib, err := store.Open(cfg.Library, logger)
		if err != nil {
			return err
		}
		defer lib.Close()
		return run(cmd, lib, args)
	}
}

func putSong(cmd *cobra.Command, lib *store.Badger, s music.Song) error {
	if err := s.Validate(); err != nil {
		return err
	}
	s, err := lib.PutSong(s)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Added %q as %s\n", s.Title, s.ID)
	return nil
}
