package clock

import "time"

// Slot holds at most one pending timer. Scheduling a new one cancels the
// previous one first.
type Slot struct {
	clock Clock
	t     Timer
	gen   uint64
}

// NewSlot returns an idle Slot scheduling on c.
func NewSlot(c Clock) *Slot {
	return &Slot{clock: c}
}

// Reset cancels any pending callback and schedules f after d.
func (s *Slot) Reset(d time.Duration, f func()) {
	s.Stop()
	s.gen++
	gen := s.gen
	s.t = s.clock.AfterFunc(d, func() {
		if gen != s.gen {
			return
		}
		s.t = nil
		f()
	})
}

// Stop cancels the pending callback, if any, and reports whether one was
// cancelled.
func (s *Slot) Stop() bool {
	if s.t == nil {
		return false
	}
	stopped := s.t.Stop()
	s.t = nil
	s.gen++
	return stopped
}

// Pending reports whether a callback is scheduled.
func (s *Slot) Pending() bool {
	return s.t != nil
}
