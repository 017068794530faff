package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/icco/chordcoach/internal/clock"
	"github.com/icco/chordcoach/internal/engine"
	"github.com/icco/chordcoach/internal/metrics"
	"github.com/icco/chordcoach/internal/store"
	"github.com/icco/chordcoach/internal/web"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the engine headless behind an HTTP API",
	Long: `Run the engine without a terminal UI. It is controlled over a small HTTP
API, streams its state over a websocket at /ws and exposes Prometheus
metrics at /metrics.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.String("addr", "", "listen address")
	f.String("song", "", "library song id to load at start")
	f.String("device", "", "preferred MIDI input, by id or name")
	f.String("virtual", "", "create a virtual MIDI input port with this name")
	f.Float64("tempo", 0, "tempo in beats per minute")
	f.Bool("metronome", true, "click on every beat")
	f.String("audio", "", "audio backend: synth, midi or none")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	closeLog, err := initLogger(false)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lib, err := store.Open(cfg.Library, logger)
	if err != nil {
		return err
	}
	defer lib.Close()

	t := newTone(cfg, logger)
	defer t.Close()
	midi := openMIDI(cfg, logger)
	if midi != nil {
		defer midi.Close()
	}

	loop := clock.NewLoop()
	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()
	loopDone := make(chan error, 1)
	go func() { loopDone <- loop.Run(loopCtx) }()

	rec := metrics.New()
	opts := engineOptions(cfg, loop.Clock(), loop.Post, t, midi, logger)
	opts.Metrics = rec
	ctl := engine.New(opts)

	if id, _ := cmd.Flags().GetString("song"); id != "" {
		song, err := lib.GetSong(id)
		if err != nil {
			return fmt.Errorf("song %s: %w", id, err)
		}
		var lerr error
		if err := loop.Do(ctx, func() { lerr = ctl.Load(song) }); err != nil {
			return err
		}
		if lerr != nil {
			return fmt.Errorf("load %s: %w", id, lerr)
		}
	}

	srv := web.New(web.Options{
		Loop:       loop,
		Controller: ctl,
		Songs:      lib,
		Metrics:    rec.Handler(),
		Logger:     logger,
	})
	detach, err := srv.Attach(ctx)
	if err != nil {
		return err
	}
	defer detach()

	httpSrv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("listening", slog.String("addr", cfg.Addr))
		serveErr <- httpSrv.ListenAndServe()
	}()

	select {
	case err = <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if serr := httpSrv.Shutdown(shutCtx); serr != nil {
			logger.Error("http shutdown", slog.Any("error", serr))
		}
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if derr := loop.Do(closeCtx, func() { ctl.Close() }); derr != nil {
		logger.Warn("engine close", slog.Any("error", derr))
	}
	stopLoop()
	<-loopDone
	return err
}
