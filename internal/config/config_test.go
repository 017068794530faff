package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/icco/chordcoach/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	c, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, 120.0, c.Tempo)
	assert.Equal(t, 4, c.BeatsPerMeasure)
	assert.Equal(t, 150*time.Millisecond, c.MatchDelay)
	assert.Equal(t, 200*time.Millisecond, c.ReleaseDelay)
	assert.Equal(t, 10*time.Millisecond, c.FrameInterval)
	assert.Equal(t, config.AudioSynth, c.Audio)
	assert.NoError(t, c.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CHORDCOACH_TEMPO", "96")
	t.Setenv("CHORDCOACH_MATCH_DELAY", "100ms")
	t.Setenv("CHORDCOACH_METRONOME", "false")
	t.Setenv("CHORDCOACH_AUDIO", "none")

	c, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, 96.0, c.Tempo)
	assert.Equal(t, 100*time.Millisecond, c.MatchDelay)
	assert.False(t, c.Metronome)
	assert.Equal(t, config.AudioNone, c.Audio)
}

func TestLoadRejectsGarbage(t *testing.T) {
	t.Setenv("CHORDCOACH_RELEASE_DELAY", "soon")
	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CHORDCOACH_RELEASE_DELAY")
}

func TestValidate(t *testing.T) {
	base := func() *config.Config {
		c, err := config.Load()
		require.NoError(t, err)
		return c
	}

	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"slow tempo", func(c *config.Config) { c.Tempo = 10 }, "tempo"},
		{"fast tempo", func(c *config.Config) { c.Tempo = 400 }, "tempo"},
		{"meter", func(c *config.Config) { c.BeatsPerMeasure = 0 }, "beats per measure"},
		{"match not shorter", func(c *config.Config) { c.MatchDelay = 200 * time.Millisecond }, "shorter than release"},
		{"frame", func(c *config.Config) { c.FrameInterval = 0 }, "frame interval"},
		{"audio", func(c *config.Config) { c.Audio = "speaker" }, "audio backend"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			err := c.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("CHORDCOACH_BEATS_PER_MEASURE=3\n"), 0o600))
	t.Setenv("CHORDCOACH_BEATS_PER_MEASURE", "")
	os.Unsetenv("CHORDCOACH_BEATS_PER_MEASURE")

	require.NoError(t, config.LoadDotEnv(path))
	t.Cleanup(func() { os.Unsetenv("CHORDCOACH_BEATS_PER_MEASURE") })
	c, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, 3, c.BeatsPerMeasure)

	assert.NoError(t, config.LoadDotEnv(filepath.Join(dir, "missing.env")))
}
