// Package config loads runtime settings from the environment. Command-line
// flags override what is loaded here.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const envPrefix = "CHORDCOACH_"

// Audio backends.
const (
	AudioSynth = "synth"
	AudioMIDI  = "midi"
	AudioNone  = "none"
)

// Config holds the application configuration
type Config struct {
	// Session defaults
	Tempo           float64
	BeatsPerMeasure int
	Metronome       bool
	Synthesis       bool
	Velocity        int

	// Timing
	MatchDelay    time.Duration // wait after the last NoteOn before comparing
	ReleaseDelay  time.Duration // how long a note stays held after key-up
	FrameInterval time.Duration // Auto-Play loop resolution
	ChordDuration time.Duration // 0 means one measure
	KeyHold       time.Duration // synthesized key-up delay for terminals

	// Audio
	Audio   string // synth, midi or none
	MIDIOut string
	Volume  float64

	// MIDI input
	Device       string
	VirtualPort  string
	RescanPeriod time.Duration

	// Storage and serving
	Library string
	SongDir string
	Addr    string

	Debug   bool
	LogFile string
}

// LoadDotEnv reads a .env file into the environment if one exists.
// Variables already set win.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load reads the configuration from CHORDCOACH_* variables. A variable that
// is set but unparsable is an error.
func Load() (*Config, error) {
	p := &parser{}
	c := &Config{
		Tempo:           p.float("TEMPO", 120),
		BeatsPerMeasure: p.int("BEATS_PER_MEASURE", 4),
		Metronome:       p.bool("METRONOME", true),
		Synthesis:       p.bool("SYNTHESIS", true),
		Velocity:        p.int("VELOCITY", 90),

		MatchDelay:    p.duration("MATCH_DELAY", 150*time.Millisecond),
		ReleaseDelay:  p.duration("RELEASE_DELAY", 200*time.Millisecond),
		FrameInterval: p.duration("FRAME_INTERVAL", 10*time.Millisecond),
		ChordDuration: p.duration("CHORD_DURATION", 0),
		KeyHold:       p.duration("KEY_HOLD", 600*time.Millisecond),

		Audio:   getEnv("AUDIO", AudioSynth),
		MIDIOut: getEnv("MIDI_OUT", ""),
		Volume:  p.float("VOLUME", 0.3),

		Device:       getEnv("DEVICE", ""),
		VirtualPort:  getEnv("VIRTUAL_PORT", ""),
		RescanPeriod: p.duration("RESCAN_PERIOD", time.Second),

		Library: getEnv("LIBRARY", defaultLibrary()),
		SongDir: getEnv("SONG_DIR", "."),
		Addr:    getEnv("ADDR", ":8090"),

		Debug:   p.bool("DEBUG", false),
		LogFile: getEnv("LOG_FILE", ""),
	}
	if p.err != nil {
		return nil, p.err
	}
	return c, nil
}

func defaultLibrary() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "chordcoach-library"
	}
	return filepath.Join(dir, "chordcoach", "library")
}

// Validate checks ranges and the ordering of the debounce delays.
func (c *Config) Validate() error {
	var errs []error
	if c.Tempo < 20 || c.Tempo > 300 {
		errs = append(errs, fmt.Errorf("tempo %g not in [20,300]", c.Tempo))
	}
	if c.BeatsPerMeasure < 1 || c.BeatsPerMeasure > 16 {
		errs = append(errs, fmt.Errorf("beats per measure %d not in [1,16]", c.BeatsPerMeasure))
	}
	if c.MatchDelay <= 0 || c.ReleaseDelay <= 0 {
		errs = append(errs, errors.New("match and release delays must be positive"))
	} else if c.MatchDelay >= c.ReleaseDelay {
		errs = append(errs, fmt.Errorf("match delay %s must be shorter than release delay %s", c.MatchDelay, c.ReleaseDelay))
	}
	if c.FrameInterval <= 0 {
		errs = append(errs, errors.New("frame interval must be positive"))
	}
	if c.Velocity < 1 || c.Velocity > 127 {
		errs = append(errs, fmt.Errorf("velocity %d not in [1,127]", c.Velocity))
	}
	switch c.Audio {
	case AudioSynth, AudioMIDI, AudioNone:
	default:
		errs = append(errs, fmt.Errorf("unknown audio backend %q", c.Audio))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(envPrefix + key)
	if value != "" {
		return value
	}
	return defaultValue
}

// parser keeps the first conversion error.
type parser struct {
	err error
}

func (p *parser) fail(key, value string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("%s%s=%q: %w", envPrefix, key, value, err)
	}
}

func (p *parser) int(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return n
}

func (p *parser) float(key string, def float64) float64 {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return f
}

func (p *parser) bool(key string, def bool) bool {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return b
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return d
}
