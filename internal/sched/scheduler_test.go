package sched_test

import (
	"testing"
	"time"

	"github.com/icco/chordcoach/internal/clock/clocktest"
	"github.com/icco/chordcoach/internal/sched"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type hit struct {
	at    time.Duration
	index int
}

func newScheduler(t *testing.T, length int) (*clocktest.Fake, *sched.Scheduler, *[]hit, *[]int) {
	t.Helper()
	fc := clocktest.New()
	start := fc.Now()
	s := sched.New(fc, 10*time.Millisecond)
	s.SetLength(length)
	var chords []hit
	var beats []int
	s.OnChord = func(i int) { chords = append(chords, hit{at: fc.Now().Sub(start), index: i}) }
	s.OnBeat = func(b int) { beats = append(beats, b) }
	return fc, s, &chords, &beats
}

func TestAutoPlayTiming(t *testing.T) {
	fc, s, chords, beats := newScheduler(t, 2)
	s.SetTempo(120)
	assert.Equal(t, 500*time.Millisecond, s.BeatDuration())

	s.Start()
	require.Len(t, *chords, 1)
	assert.Equal(t, hit{0, 0}, (*chords)[0], "first chord sounds at once")

	fc.Advance(500 * time.Millisecond)
	assert.Len(t, *chords, 1, "one beat is not a measure")
	assert.Equal(t, 1, s.Beat())

	fc.Advance(1490 * time.Millisecond)
	assert.Len(t, *chords, 1)

	fc.Advance(10 * time.Millisecond)
	require.Len(t, *chords, 2)
	assert.Equal(t, hit{2000 * time.Millisecond, 1}, (*chords)[1])
	assert.Equal(t, 0, s.Beat())
	assert.Equal(t, []int{0, 1, 2, 3, 0}, *beats)

	fc.Advance(2000 * time.Millisecond)
	require.Len(t, *chords, 3)
	assert.Equal(t, 0, (*chords)[2].index, "wraps to the first chord")
}

func TestStopCancelsFrameLoop(t *testing.T) {
	fc, s, chords, _ := newScheduler(t, 3)
	s.Start()
	assert.Equal(t, 1, fc.Pending())
	fc.Advance(700 * time.Millisecond)

	s.Stop()
	assert.False(t, s.Running())
	assert.Equal(t, 0, fc.Pending())
	assert.Equal(t, 0, s.Beat())

	fc.Advance(10 * time.Second)
	assert.Len(t, *chords, 1)
}

func TestStartWithoutProgressionIsNoop(t *testing.T) {
	fc, s, chords, _ := newScheduler(t, 0)
	s.Start()
	assert.False(t, s.Running())
	assert.Empty(t, *chords)
	assert.Equal(t, 0, fc.Pending())
}

func TestTempoChangeKeepsBeatPhase(t *testing.T) {
	fc, s, _, beats := newScheduler(t, 2)
	s.SetTempo(60)
	s.Start()
	fc.Advance(1000 * time.Millisecond)
	assert.Equal(t, []int{0, 1}, *beats)

	s.SetTempo(120)
	fc.Advance(490 * time.Millisecond)
	assert.Equal(t, []int{0, 1}, *beats)
	fc.Advance(10 * time.Millisecond)
	assert.Equal(t, []int{0, 1, 2}, *beats)
}

func TestAdvanceBackSelectWrap(t *testing.T) {
	_, s, _, _ := newScheduler(t, 3)
	assert.Equal(t, 1, s.Advance())
	assert.Equal(t, 2, s.Advance())
	assert.Equal(t, 0, s.Advance())
	assert.Equal(t, 2, s.Back())

	require.NoError(t, s.Select(1))
	assert.Equal(t, 1, s.Index())
	assert.ErrorIs(t, s.Select(3), sched.ErrIndex)
	assert.ErrorIs(t, s.Select(-1), sched.ErrIndex)
	assert.Equal(t, 1, s.Index())
}

func TestSelectWhileRunningRestartsMeasure(t *testing.T) {
	fc, s, chords, _ := newScheduler(t, 4)
	s.SetTempo(120)
	s.Start()
	fc.Advance(1500 * time.Millisecond)
	require.NoError(t, s.Select(2))
	assert.Equal(t, 0, s.Beat())

	fc.Advance(1990 * time.Millisecond)
	assert.Len(t, *chords, 1)
	fc.Advance(10 * time.Millisecond)
	require.Len(t, *chords, 2)
	assert.Equal(t, 3, (*chords)[1].index)
}

func TestThreeFourMeter(t *testing.T) {
	fc, s, chords, _ := newScheduler(t, 2)
	s.SetTempo(120)
	s.SetBeatsPerMeasure(3)
	assert.Equal(t, 1500*time.Millisecond, s.MeasureDuration())
	s.Start()
	fc.Advance(1500 * time.Millisecond)
	require.Len(t, *chords, 2)
	assert.Equal(t, 1500*time.Millisecond, (*chords)[1].at)
}
