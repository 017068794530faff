// Package web serves the engine over HTTP: a small control API, a
// websocket state feed and the Prometheus metrics.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/icco/chordcoach/internal/engine"
	"github.com/icco/chordcoach/internal/input"
	"github.com/icco/chordcoach/internal/music"
	"github.com/icco/chordcoach/internal/store"
	"github.com/rs/cors"
)

// Runner executes functions on the engine's loop goroutine.
type Runner interface {
	Do(ctx context.Context, f func()) error
	Post(f func())
}

// SongStore is the part of the library the server reads.
type SongStore interface {
	ListSongs() ([]music.Song, error)
	GetSong(id string) (music.Song, error)
}

// Server routes requests to a Controller. The Controller is only ever
// touched through the Runner.
type Server struct {
	loop    Runner
	ctl     *engine.Controller
	songs   SongStore
	metrics http.Handler
	hub     *Hub
	log     *slog.Logger
}

// Options configures a Server. Songs and Metrics are optional.
type Options struct {
	Loop       Runner
	Controller *engine.Controller
	Songs      SongStore
	Metrics    http.Handler
	Logger     *slog.Logger
	// Coalesce is how long state broadcasts are held back so a burst of
	// changes goes out as one message.
	Coalesce time.Duration
}

// DefaultCoalesce is the websocket broadcast window.
const DefaultCoalesce = 25 * time.Millisecond

func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Coalesce <= 0 {
		opts.Coalesce = DefaultCoalesce
	}
	s := &Server{
		loop:    opts.Loop,
		ctl:     opts.Controller,
		songs:   opts.Songs,
		metrics: opts.Metrics,
		log:     opts.Logger,
	}
	s.hub = NewHub(opts.Coalesce, s.command, opts.Logger)
	return s
}

// Hub returns the websocket hub.
func (s *Server) Hub() *Hub { return s.hub }

// Attach subscribes the hub to controller state changes. The returned
// function detaches it.
func (s *Server) Attach(ctx context.Context) (func(), error) {
	var unsub func()
	err := s.loop.Do(ctx, func() {
		unsub = s.ctl.Subscribe(s.hub.Publish)
		s.hub.Publish(s.ctl.State())
	})
	if err != nil {
		return nil, err
	}
	return func() { s.loop.Post(unsub) }, nil
}

// Handler returns the routed handler with CORS applied.
func (s *Server) Handler() http.Handler {
	return cors.New(cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
	}).Handler(s.Router())
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter().StrictSlash(true)

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}
	r.HandleFunc("/ws", s.websocketHandler)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.logMiddleware)
	api.HandleFunc("/state", s.stateHandler).Methods(http.MethodGet)
	api.HandleFunc("/start", s.action(func(c *engine.Controller) error { return c.Start() })).Methods(http.MethodPost)
	api.HandleFunc("/stop", s.action(func(c *engine.Controller) error { return c.Stop() })).Methods(http.MethodPost)
	api.HandleFunc("/next", s.action(func(c *engine.Controller) error { return c.Next() })).Methods(http.MethodPost)
	api.HandleFunc("/prev", s.action(func(c *engine.Controller) error { return c.Prev() })).Methods(http.MethodPost)
	api.HandleFunc("/perform/exit", s.action(func(c *engine.Controller) error { return c.ExitPerform() })).Methods(http.MethodPost)
	api.HandleFunc("/perform/{mode}", s.performHandler).Methods(http.MethodPost)
	api.HandleFunc("/select/{index:[0-9]+}", s.selectHandler).Methods(http.MethodPost)
	api.HandleFunc("/tempo/{bpm}", s.tempoHandler).Methods(http.MethodPost)
	api.HandleFunc("/metronome/{on}", s.metronomeHandler).Methods(http.MethodPost)
	api.HandleFunc("/devices", s.devicesHandler).Methods(http.MethodGet)
	api.HandleFunc("/devices/{id}/select", s.selectDeviceHandler).Methods(http.MethodPost)
	api.HandleFunc("/songs", s.songsHandler).Methods(http.MethodGet)
	api.HandleFunc("/songs/{id}/load", s.loadHandler).Methods(http.MethodPost)

	return r
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("web: request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Duration("took", time.Since(start)))
	})
}

// run calls f on the loop and captures the state afterwards.
func (s *Server) run(ctx context.Context, f func(c *engine.Controller) error) (engine.State, error) {
	var (
		st  engine.State
		err error
	)
	if lerr := s.loop.Do(ctx, func() {
		err = f(s.ctl)
		st = s.ctl.State()
	}); lerr != nil {
		return st, fmt.Errorf("%w: %w", errLoop, lerr)
	}
	return st, err
}

func (s *Server) action(f func(c *engine.Controller) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := s.run(r.Context(), f)
		s.respond(w, st, err)
	}
}

func (s *Server) stateHandler(w http.ResponseWriter, r *http.Request) {
	st, err := s.run(r.Context(), func(*engine.Controller) error { return nil })
	s.respond(w, st, err)
}

func (s *Server) performHandler(w http.ResponseWriter, r *http.Request) {
	m, err := engine.ParseMode(mux.Vars(r)["mode"])
	if err != nil || !m.Performing() {
		writeError(w, http.StatusBadRequest, "perform mode must be midi or demo")
		return
	}
	st, err := s.run(r.Context(), func(c *engine.Controller) error { return c.EnterPerform(m) })
	s.respond(w, st, err)
}

func (s *Server) selectHandler(w http.ResponseWriter, r *http.Request) {
	i, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad chord index")
		return
	}
	st, err := s.run(r.Context(), func(c *engine.Controller) error { return c.SelectChord(i) })
	s.respond(w, st, err)
}

func (s *Server) tempoHandler(w http.ResponseWriter, r *http.Request) {
	bpm, err := strconv.ParseFloat(mux.Vars(r)["bpm"], 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad tempo")
		return
	}
	st, err := s.run(r.Context(), func(c *engine.Controller) error { return c.SetTempo(bpm) })
	s.respond(w, st, err)
}

func (s *Server) metronomeHandler(w http.ResponseWriter, r *http.Request) {
	on, err := strconv.ParseBool(mux.Vars(r)["on"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "metronome must be true or false")
		return
	}
	st, err := s.run(r.Context(), func(c *engine.Controller) error {
		c.SetMetronome(on)
		return nil
	})
	s.respond(w, st, err)
}

func (s *Server) devicesHandler(w http.ResponseWriter, r *http.Request) {
	var devs []input.Device
	_, err := s.run(r.Context(), func(c *engine.Controller) error {
		var err error
		devs, err = c.Devices()
		return err
	})
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	if devs == nil {
		devs = []input.Device{}
	}
	writeJSON(w, http.StatusOK, devs)
}

func (s *Server) selectDeviceHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	st, err := s.run(r.Context(), func(c *engine.Controller) error { return c.SelectDevice(id) })
	s.respond(w, st, err)
}

// SongSummary is a library entry without its chords.
type SongSummary struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Chords int    `json:"chords"`
	Tempo  int    `json:"tempo,omitempty"`
}

func (s *Server) songsHandler(w http.ResponseWriter, r *http.Request) {
	if s.songs == nil {
		writeJSON(w, http.StatusOK, []SongSummary{})
		return
	}
	songs, err := s.songs.ListSongs()
	if err != nil {
		s.log.Error("web: list songs", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]SongSummary, 0, len(songs))
	for _, song := range songs {
		out = append(out, SongSummary{ID: song.ID, Title: song.Title, Chords: len(song.Chords), Tempo: song.Tempo})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) loadHandler(w http.ResponseWriter, r *http.Request) {
	if s.songs == nil {
		writeError(w, http.StatusNotFound, store.ErrNotFound.Error())
		return
	}
	song, err := s.songs.GetSong(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	st, err := s.run(r.Context(), func(c *engine.Controller) error { return c.Load(song) })
	s.respond(w, st, err)
}

// errorBody is returned with every failed request. The state is included
// when the engine was reached, so a client can see DemoOffered after a
// failed MIDI perform request.
type errorBody struct {
	Error string        `json:"error"`
	State *engine.State `json:"state,omitempty"`
}

func (s *Server) respond(w http.ResponseWriter, st engine.State, err error) {
	if err == nil {
		writeJSON(w, http.StatusOK, st)
		return
	}
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.log.Warn("web: request failed", slog.Any("error", err))
	}
	body := errorBody{Error: err.Error()}
	if !errors.Is(err, errLoop) {
		body.State = &st
	}
	writeJSON(w, code, body)
}

var errLoop = errors.New("engine loop unavailable")

func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, input.ErrDeviceNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrChordIndex), errors.Is(err, engine.ErrTempoRange), errors.Is(err, engine.ErrBadMode):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrNoProgression), errors.Is(err, engine.ErrPerforming), errors.Is(err, engine.ErrSessionActive):
		return http.StatusConflict
	case errors.Is(err, engine.ErrMIDIUnavailable), errors.Is(err, engine.ErrClosed), errors.Is(err, errLoop):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorBody{Error: msg})
}
