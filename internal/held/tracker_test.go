package held_test

import (
	"testing"
	"time"

	"github.com/icco/chordcoach/internal/clock/clocktest"
	"github.com/icco/chordcoach/internal/held"
	"github.com/icco/chordcoach/internal/music"
	"github.com/stretchr/testify/assert"
)

func TestNoteOffReleasesAfterDelay(t *testing.T) {
	fc := clocktest.New()
	tr := held.NewTracker(fc, 200*time.Millisecond)
	var released []music.Pitch
	tr.OnRelease = func(p music.Pitch) { released = append(released, p) }

	assert.True(t, tr.NoteOn(60))
	tr.NoteOff(60)
	assert.True(t, tr.Held(60), "still held inside the grace window")
	assert.True(t, tr.Releasing(60))

	fc.Advance(199 * time.Millisecond)
	assert.True(t, tr.Held(60))

	fc.Advance(time.Millisecond)
	assert.False(t, tr.Held(60))
	assert.Equal(t, []music.Pitch{60}, released)
	assert.Equal(t, 0, tr.PendingReleases())
}

func TestRepressInsideWindowCancelsRelease(t *testing.T) {
	fc := clocktest.New()
	tr := held.NewTracker(fc, 200*time.Millisecond)

	assert.True(t, tr.NoteOn(60))
	tr.NoteOff(60)
	fc.Advance(100 * time.Millisecond)
	assert.False(t, tr.NoteOn(60), "a re-press inside the window is not a new note")
	assert.Equal(t, 0, tr.PendingReleases())

	fc.Advance(time.Second)
	assert.True(t, tr.Held(60))
}

func TestRepeatedNoteOffKeepsOneTimer(t *testing.T) {
	fc := clocktest.New()
	tr := held.NewTracker(fc, 200*time.Millisecond)

	tr.NoteOn(60)
	assert.False(t, tr.NoteOn(60))
	assert.False(t, tr.NoteOn(60))
	assert.Equal(t, 0, fc.Pending(), "key repeat must not start release timers")

	tr.NoteOff(60)
	fc.Advance(150 * time.Millisecond)
	tr.NoteOff(60)
	assert.Equal(t, 1, fc.Pending())

	fc.Advance(50 * time.Millisecond)
	assert.False(t, tr.Held(60), "the second NoteOff did not restart the window")
}

func TestNoteOffForUnheldPitchIsIgnored(t *testing.T) {
	fc := clocktest.New()
	tr := held.NewTracker(fc, 0)
	tr.NoteOff(61)
	assert.Equal(t, 0, fc.Pending())
	assert.Equal(t, held.DefaultReleaseDelay, tr.ReleaseDelay())
}

func TestClearCancelsEverything(t *testing.T) {
	fc := clocktest.New()
	tr := held.NewTracker(fc, 200*time.Millisecond)
	tr.OnRelease = func(music.Pitch) { t.Fatal("release fired after Clear") }

	for _, p := range []music.Pitch{60, 64, 67} {
		tr.NoteOn(p)
		tr.NoteOff(p)
	}
	tr.NoteOn(72)
	tr.Clear()

	assert.True(t, tr.Snapshot().Empty())
	assert.Equal(t, 0, tr.PendingReleases())
	assert.Equal(t, 0, fc.Pending())
	fc.Advance(time.Second)
	assert.True(t, tr.Snapshot().Empty())
}

func TestSnapshotIsAValue(t *testing.T) {
	fc := clocktest.New()
	tr := held.NewTracker(fc, 200*time.Millisecond)
	tr.NoteOn(60)
	snap := tr.Snapshot()
	tr.NoteOn(64)
	assert.Equal(t, music.NewPitchSet(60), snap)
	assert.Equal(t, music.NewPitchSet(60, 64), tr.Snapshot())
}
