// Package metrics exports engine counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/icco/chordcoach/internal/engine"
	"github.com/icco/chordcoach/internal/input"
	"github.com/icco/chordcoach/internal/match"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder implements engine.Metrics on its own registry.
type Recorder struct {
	Registry *prometheus.Registry

	notes       *prometheus.CounterVec
	evaluations *prometheus.CounterVec
	chords      *prometheus.CounterVec
	modes       *prometheus.CounterVec
	mode        *prometheus.GaugeVec
	audioErrors prometheus.Counter
}

var _ engine.Metrics = (*Recorder)(nil)

func New() *Recorder {
	reg := prometheus.NewRegistry()
	r := &Recorder{
		Registry: reg,
		notes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chordcoach",
			Name:      "note_events_total",
			Help:      "Note events received from the active input.",
		}, []string{"kind"}),
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chordcoach",
			Name:      "chord_evaluations_total",
			Help:      "Held-notes evaluations by outcome.",
		}, []string{"outcome"}),
		chords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chordcoach",
			Name:      "chord_changes_total",
			Help:      "Chord position changes by session mode.",
		}, []string{"mode"}),
		modes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chordcoach",
			Name:      "mode_changes_total",
			Help:      "Transitions into each session mode.",
		}, []string{"mode"}),
		mode: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "chordcoach",
			Name:      "mode",
			Help:      "1 for the current session mode.",
		}, []string{"mode"}),
		audioErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chordcoach",
			Name:      "audio_errors_total",
			Help:      "Tone engine failures.",
		}),
	}
	reg.MustRegister(
		r.notes, r.evaluations, r.chords, r.modes, r.mode, r.audioErrors,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	r.ModeChange(engine.Idle)
	return r
}

func (r *Recorder) NoteEvent(kind input.Kind) {
	r.notes.WithLabelValues(kind.String()).Inc()
}

func (r *Recorder) Evaluation(o match.Outcome) {
	r.evaluations.WithLabelValues(o.String()).Inc()
}

func (r *Recorder) ChordChange(m engine.Mode) {
	r.chords.WithLabelValues(m.String()).Inc()
}

func (r *Recorder) ModeChange(m engine.Mode) {
	r.modes.WithLabelValues(m.String()).Inc()
	for _, each := range []engine.Mode{engine.Idle, engine.AutoPlaying, engine.PerformingMIDI, engine.PerformingDemo} {
		v := 0.0
		if each == m {
			v = 1
		}
		r.mode.WithLabelValues(each.String()).Set(v)
	}
}

func (r *Recorder) AudioError() { r.audioErrors.Inc() }

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.Registry, promhttp.HandlerOpts{Registry: r.Registry})
}
