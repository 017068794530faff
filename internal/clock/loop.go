package clock

import (
	"context"
	"errors"
	"sync"
)

// ErrLoopStopped is returned by Do when the loop exits before running f.
var ErrLoopStopped = errors.New("loop stopped")

// Loop runs posted functions one at a time on a single goroutine. It is
// the headless counterpart of the terminal UI's event loop.
type Loop struct {
	mu      sync.Mutex
	pending []func()
	wake    chan struct{}
	stopped chan struct{}
	closed  bool
}

// NewLoop returns a Loop. Nothing runs until Run is called.
func NewLoop() *Loop {
	return &Loop{
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
	}
}

// Post queues f. It never blocks, so it is safe to call from driver
// callbacks and from the loop itself. Functions posted after the loop has
// stopped are dropped.
func (l *Loop) Post(f func()) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.pending = append(l.pending, f)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Do runs f on the loop and waits for it to finish. It must not be called
// from the loop goroutine.
func (l *Loop) Do(ctx context.Context, f func()) error {
	done := make(chan struct{})
	l.Post(func() {
		defer close(done)
		f()
	})
	select {
	case <-done:
		return nil
	case <-l.stopped:
		return ErrLoopStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run executes posted functions until ctx is cancelled. Pending functions
// are discarded on exit.
func (l *Loop) Run(ctx context.Context) error {
	defer func() {
		l.mu.Lock()
		l.closed = true
		l.pending = nil
		l.mu.Unlock()
		close(l.stopped)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}

		for {
			l.mu.Lock()
			if len(l.pending) == 0 {
				l.mu.Unlock()
				break
			}
			batch := l.pending
			l.pending = nil
			l.mu.Unlock()

			for _, f := range batch {
				f()
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
	}
}

// Clock returns a real-time Clock whose callbacks run on this loop.
func (l *Loop) Clock() *LoopClock {
	return NewLoopClock(l.Post)
}
