package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/icco/chordcoach/internal/config"
	"github.com/spf13/cobra"
)

var (
	cfg     *config.Config
	logger  *slog.Logger
	envFile string
)

var rootCmd = &cobra.Command{
	Use:   "chordcoach",
	Short: "Practise chord progressions against a live keyboard",
	Long: `chordcoach plays chord progressions back in time and listens to what you
play on a MIDI keyboard (or the computer keyboard) to tell you when you hit
the chord.

It provides a terminal performance view, a headless HTTP/WebSocket server and
a small song library.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadDotEnv(envFile); err != nil {
			return err
		}
		c, err := config.Load()
		if err != nil {
			return err
		}
		applyFlags(cmd, c)
		if err := c.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		cfg = c
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.Bool("debug", false, "enable debug logging (adds source location)")
	pf.String("log-file", "", "write logs to this file")
	pf.StringVar(&envFile, "env", "", "read environment from this file (default .env)")
	pf.String("library", "", "song library directory")
}

// applyFlags overrides configuration with the flags the user actually set.
func applyFlags(cmd *cobra.Command, c *config.Config) {
	f := cmd.Flags()
	if f.Changed("debug") {
		c.Debug, _ = f.GetBool("debug")
	}
	if f.Changed("log-file") {
		c.LogFile, _ = f.GetString("log-file")
	}
	if f.Changed("library") {
		c.Library, _ = f.GetString("library")
	}
	if f.Lookup("tempo") != nil && f.Changed("tempo") {
		c.Tempo, _ = f.GetFloat64("tempo")
	}
	if f.Lookup("metronome") != nil && f.Changed("metronome") {
		c.Metronome, _ = f.GetBool("metronome")
	}
	if f.Lookup("audio") != nil && f.Changed("audio") {
		c.Audio, _ = f.GetString("audio")
	}
	if f.Lookup("device") != nil && f.Changed("device") {
		c.Device, _ = f.GetString("device")
	}
	if f.Lookup("virtual") != nil && f.Changed("virtual") {
		c.VirtualPort, _ = f.GetString("virtual")
	}
	if f.Lookup("addr") != nil && f.Changed("addr") {
		c.Addr, _ = f.GetString("addr")
	}
	if f.Lookup("dir") != nil && f.Changed("dir") {
		c.SongDir, _ = f.GetString("dir")
	}
}

// initLogger configures the shared slog logger and makes it the default.
// Without a log file, logs go to stderr, or nowhere when quiet is set because
// the terminal belongs to the UI.
func initLogger(quiet bool) (func(), error) {
	var w io.Writer = os.Stderr
	closer := func() {}
	switch {
	case cfg.LogFile != "":
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		w = f
		closer = func() { f.Close() }
	case quiet:
		w = io.Discard
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	h := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.Debug,
	})
	logger = slog.New(h)
	slog.SetDefault(logger)
	return closer, nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
