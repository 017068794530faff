// Package clock provides the engine's only notion of time: a Clock that
// schedules cancellable callbacks, and the two timer shapes built on it
// (Slot for a single replaceable timer, Set for keyed timers).
//
// Every callback runs on the engine's loop goroutine, never concurrently
// with other engine code. A timer that has been stopped never runs, even if
// the underlying OS timer had already expired when Stop was called.
package clock

import (
	"sync/atomic"
	"time"
)

// Timer is a pending callback.
type Timer interface {
	// Stop cancels the callback. It reports whether the call prevented the
	// callback from running.
	Stop() bool
}

// Clock schedules callbacks.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// PostFunc hands a function to the loop goroutine for execution.
type PostFunc func(func())

// LoopClock is a Clock backed by real time whose callbacks are delivered
// through post.
type LoopClock struct {
	post PostFunc
}

// NewLoopClock returns a Clock that runs callbacks via post.
func NewLoopClock(post PostFunc) *LoopClock {
	return &LoopClock{post: post}
}

// Now returns the wall clock time.
func (c *LoopClock) Now() time.Time { return time.Now() }

// AfterFunc posts f to the loop after d. A Stop made on the loop keeps f
// from running even if the OS timer has already fired.
func (c *LoopClock) AfterFunc(d time.Duration, f func()) Timer {
	lt := &loopTimer{}
	lt.t = time.AfterFunc(d, func() {
		c.post(func() {
			// Stop may have run on the loop between expiry and delivery.
			if lt.done.CompareAndSwap(false, true) {
				f()
			}
		})
	})
	return lt
}

type loopTimer struct {
	t    *time.Timer
	done atomic.Bool
}

func (lt *loopTimer) Stop() bool {
	lt.t.Stop()
	return lt.done.CompareAndSwap(false, true)
}
