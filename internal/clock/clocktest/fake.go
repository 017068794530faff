// Package clocktest provides a manually advanced clock for deterministic
// tests of timer-driven code.
package clocktest

import (
	"sort"
	"time"

	"github.com/icco/chordcoach/internal/clock"
)

// Fake is a clock.Clock whose time only moves when Advance is called.
// Callbacks run synchronously on the goroutine calling Advance, in deadline
// order; callbacks with equal deadlines run in scheduling order.
type Fake struct {
	now    time.Time
	seq    uint64
	timers []*fakeTimer
}

type fakeTimer struct {
	f        *Fake
	deadline time.Time
	seq      uint64
	fn       func()
	done     bool
}

var _ clock.Clock = (*Fake)(nil)

// New returns a Fake starting at an arbitrary fixed instant.
func New() *Fake {
	return &Fake{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *Fake) Now() time.Time { return f.now }

func (f *Fake) AfterFunc(d time.Duration, fn func()) clock.Timer {
	if d < 0 {
		d = 0
	}
	f.seq++
	t := &fakeTimer{f: f, deadline: f.now.Add(d), seq: f.seq, fn: fn}
	f.timers = append(f.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	if t.done {
		return false
	}
	t.done = true
	t.f.remove(t)
	return true
}

func (f *Fake) remove(t *fakeTimer) {
	for i, x := range f.timers {
		if x == t {
			f.timers = append(f.timers[:i], f.timers[i+1:]...)
			return
		}
	}
}

// Advance moves time forward by d, firing every callback that comes due,
// including ones scheduled by callbacks during the advance.
func (f *Fake) Advance(d time.Duration) {
	target := f.now.Add(d)
	for {
		next := f.next()
		if next == nil || next.deadline.After(target) {
			break
		}
		if next.deadline.After(f.now) {
			f.now = next.deadline
		}
		next.done = true
		f.remove(next)
		next.fn()
	}
	f.now = target
}

func (f *Fake) next() *fakeTimer {
	if len(f.timers) == 0 {
		return nil
	}
	sort.SliceStable(f.timers, func(i, j int) bool {
		a, b := f.timers[i], f.timers[j]
		if !a.deadline.Equal(b.deadline) {
			return a.deadline.Before(b.deadline)
		}
		return a.seq < b.seq
	})
	return f.timers[0]
}

// Pending returns the number of scheduled, unfired callbacks.
func (f *Fake) Pending() int {
	return len(f.timers)
}
