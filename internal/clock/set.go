package clock

import "time"

// Set is a group of timers keyed by K, at most one per key.
type Set[K comparable] struct {
	clock  Clock
	timers map[K]*entry
}

type entry struct {
	t Timer
}

// NewSet returns an empty Set scheduling on c.
func NewSet[K comparable](c Clock) *Set[K] {
	return &Set[K]{clock: c, timers: make(map[K]*entry)}
}

// Start schedules f for key k after d, cancelling any timer already
// pending for k.
func (s *Set[K]) Start(k K, d time.Duration, f func()) {
	s.Cancel(k)
	e := &entry{}
	e.t = s.clock.AfterFunc(d, func() {
		if s.timers[k] != e {
			return
		}
		delete(s.timers, k)
		f()
	})
	s.timers[k] = e
}

// Cancel stops the timer for k. It reports whether one was pending.
func (s *Set[K]) Cancel(k K) bool {
	e, ok := s.timers[k]
	if !ok {
		return false
	}
	delete(s.timers, k)
	e.t.Stop()
	return true
}

// CancelAll stops every timer and returns how many were pending.
func (s *Set[K]) CancelAll() int {
	n := len(s.timers)
	for k, e := range s.timers {
		e.t.Stop()
		delete(s.timers, k)
	}
	return n
}

func (s *Set[K]) Pending(k K) bool {
	_, ok := s.timers[k]
	return ok
}

func (s *Set[K]) Len() int {
	return len(s.timers)
}
