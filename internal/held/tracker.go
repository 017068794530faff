// Package held tracks which pitches the performer is holding down.
//
// Key-up does not release a pitch at once. It stays held for a short grace
// window so a chord whose fingers leave the keys a few milliseconds apart
// is still seen as held all together.
package held

import (
	"time"

	"github.com/icco/chordcoach/internal/clock"
	"github.com/icco/chordcoach/internal/music"
)

// DefaultReleaseDelay is how long a pitch stays held after key-up.
const DefaultReleaseDelay = 200 * time.Millisecond

// Tracker is the authoritative held-notes set. It is not safe for
// concurrent use; drive it from the loop goroutine.
type Tracker struct {
	held    music.PitchSet
	release *clock.Set[music.Pitch]
	delay   time.Duration

	// OnRelease, if set, is called after a release timer drops a pitch.
	OnRelease func(p music.Pitch)
}

// NewTracker returns an empty Tracker. A non-positive releaseDelay uses
// DefaultReleaseDelay.
func NewTracker(c clock.Clock, releaseDelay time.Duration) *Tracker {
	if releaseDelay <= 0 {
		releaseDelay = DefaultReleaseDelay
	}
	return &Tracker{release: clock.NewSet[music.Pitch](c), delay: releaseDelay}
}

// NoteOn marks p held and cancels any pending release of p. It reports
// whether p was newly added; a press inside the release window of the same
// pitch is a continuation, not a new note.
func (t *Tracker) NoteOn(p music.Pitch) bool {
	t.release.Cancel(p)
	if t.held.Has(p) {
		return false
	}
	t.held = t.held.With(p)
	return true
}

// NoteOff starts the release timer for p. A release already pending for p
// is left running.
func (t *Tracker) NoteOff(p music.Pitch) {
	if !t.held.Has(p) || t.release.Pending(p) {
		return
	}
	t.release.Start(p, t.delay, func() {
		t.held = t.held.Without(p)
		if t.OnRelease != nil {
			t.OnRelease(p)
		}
	})
}

// Snapshot returns the current held set by value.
func (t *Tracker) Snapshot() music.PitchSet { return t.held }

func (t *Tracker) Held(p music.Pitch) bool { return t.held.Has(p) }

// Releasing reports whether p is held but its key is already up.
func (t *Tracker) Releasing(p music.Pitch) bool { return t.release.Pending(p) }

// PendingReleases is the number of outstanding release timers.
func (t *Tracker) PendingReleases() int { return t.release.Len() }

// Clear cancels every release timer and empties the set.
func (t *Tracker) Clear() {
	t.release.CancelAll()
	t.held = music.PitchSet{}
}

func (t *Tracker) ReleaseDelay() time.Duration { return t.delay }
