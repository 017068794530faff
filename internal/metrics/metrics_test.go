package metrics_test

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/icco/chordcoach/internal/engine"
	"github.com/icco/chordcoach/internal/input"
	"github.com/icco/chordcoach/internal/match"
	"github.com/icco/chordcoach/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderCounts(t *testing.T) {
	r := metrics.New()
	r.NoteEvent(input.NoteOn)
	r.NoteEvent(input.NoteOn)
	r.NoteEvent(input.NoteOff)
	r.Evaluation(match.Match)
	r.ModeChange(engine.PerformingDemo)
	r.AudioError()

	n, err := testutil.GatherAndCount(r.Registry, "chordcoach_note_events_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n, "one series per kind")

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), `chordcoach_note_events_total{kind="NoteOn"} 2`)
	assert.Contains(t, string(body), `chordcoach_chord_evaluations_total{outcome="match"} 1`)
	assert.Contains(t, string(body), `chordcoach_mode{mode="demo"} 1`)
	assert.Contains(t, string(body), `chordcoach_mode{mode="idle"} 0`)
	assert.Contains(t, string(body), "chordcoach_audio_errors_total 1")
}
