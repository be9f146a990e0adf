package sched

import "time"

// SleepFor parks the current thread for at least d.
//
// The slot's claim is handed to a one-shot timer before the thread is
// parked; on expiry the timer re-admits the thread (taking a fresh
// queue claim) and releases its own. The returned frame belongs to the
// next selection — the sleeping thread resumes only after re-admission
// and a later selection.
func (s *Scheduler) SleepFor(d time.Duration, f *Frame) *Frame {
	s.deps.IRQ.Mask()
	defer s.deps.IRQ.Unmask()
	t := s.cur
	if t == nil {
		fatalf("sched: sleep with no current thread")
	}

	t.Retain() // timer claim, taken before the slot claim is dropped
	if t.timer == nil {
		t.timer = s.deps.Timers.NewTimer()
	}
	t.timer.Start(d, func() { s.wake(t) })

	return s.parkLocked(t, f)
}

// SleepOnEvent parks the current thread with no wake mechanism. Some
// external actor must hold a claim on the thread and later call
// AddThread to resume it; there is no cancellation or timeout.
func (s *Scheduler) SleepOnEvent(f *Frame) *Frame {
	s.deps.IRQ.Mask()
	defer s.deps.IRQ.Unmask()
	t := s.cur
	if t == nil {
		fatalf("sched: sleep with no current thread")
	}
	return s.parkLocked(t, f)
}

// parkLocked moves t out of the running slot: SLEEPING, slot claim
// released, switch forced. The claim-count guard catches a thread
// being parked whose only claim is the slot's — such a thread could
// never be woken.
func (s *Scheduler) parkLocked(t *Thread, f *Frame) *Frame {
	t.state = StateSleeping
	if t.refs.Load() <= 1 {
		fatalf("sched: parking %s with no surviving claim", t)
	}
	next := s.switchLocked(f)
	t.Release() // running-slot claim
	return next
}

// wake is the timer expiry path. It runs in interrupt context, so it
// takes the mask itself.
func (s *Scheduler) wake(t *Thread) {
	s.deps.IRQ.Mask()
	defer s.deps.IRQ.Unmask()
	s.admitLocked(t) // re-takes a queue claim
	t.Release()      // timer claim handed back
	if t.timer != nil {
		t.timer.Stop()
	}
}
