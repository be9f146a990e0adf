package sched

import (
	"errors"
	"fmt"
)

// ErrInvalidState reports an admission or withdrawal that does not
// match the thread's current placement.
var ErrInvalidState = errors.New("sched: invalid thread state")

// AddThread admits t to the ready queue matching its level and takes a
// queue claim on it.
//
// A DEAD thread is left alone (nil error). A thread of a LOCKED
// process is marked READY but not linked and no claim is taken; the
// owner must re-admit it after unlocking. Admitting a nil, already
// linked, or currently running thread fails with ErrInvalidState.
func (s *Scheduler) AddThread(t *Thread) error {
	if t == nil {
		return ErrInvalidState
	}
	s.deps.IRQ.Mask()
	defer s.deps.IRQ.Unmask()
	if t.queue != nil || t == s.cur {
		return ErrInvalidState
	}
	s.admitLocked(t)
	return nil
}

func (s *Scheduler) admitLocked(t *Thread) {
	if t.state == StateDead {
		return
	}
	t.state = StateReady
	if t.kind == KindUser && t.proc.Locked() {
		// Documented anomaly: READY but unlinked, no claim taken.
		s.logf("sched: admit %s held back by locked process %s", t, t.proc.Name())
		return
	}
	s.queues[t.level].push(t)
	t.Retain()
}

// RemoveThread withdraws t from its ready queue and releases the queue
// claim. It fails with ErrInvalidState if t is not linked.
func (s *Scheduler) RemoveThread(t *Thread) error {
	if t == nil {
		return ErrInvalidState
	}
	s.deps.IRQ.Mask()
	defer s.deps.IRQ.Unmask()
	return s.withdrawLocked(t)
}

func (s *Scheduler) withdrawLocked(t *Thread) error {
	if t.queue == nil {
		return ErrInvalidState
	}
	if !t.queue.remove(t) {
		fatalf("sched: %s linked to a queue that does not hold it", t)
	}
	t.Release()
	return nil
}

// AddProcess admits every thread p owns. It stops at the first failure
// and returns it; threads admitted before the failure stay admitted.
func (s *Scheduler) AddProcess(p *Process) error {
	if p == nil {
		return ErrInvalidState
	}
	for _, t := range p.Threads() {
		if err := s.AddThread(t); err != nil {
			return fmt.Errorf("sched: admit %s of process %s: %w", t, p.Name(), err)
		}
	}
	return nil
}

// RemoveProcess withdraws every thread p owns. Unlike AddProcess it
// never stops early; it returns the number of threads actually
// withdrawn.
func (s *Scheduler) RemoveProcess(p *Process) int {
	if p == nil {
		return 0
	}
	removed := 0
	for _, t := range p.Threads() {
		if s.RemoveThread(t) == nil {
			removed++
		}
	}
	return removed
}

// CurrentThread returns the thread occupying the running slot, or nil.
func (s *Scheduler) CurrentThread() *Thread {
	s.deps.IRQ.Mask()
	defer s.deps.IRQ.Unmask()
	return s.cur
}

// CurrentProcess returns the owning process of the current thread, or
// nil when no thread is current or the current thread is kernel-kind.
func (s *Scheduler) CurrentProcess() *Process {
	s.deps.IRQ.Mask()
	defer s.deps.IRQ.Unmask()
	if s.cur == nil || s.cur.kind != KindUser {
		return nil
	}
	return s.cur.proc
}

// VoluntaryYield gives up the CPU early. When nothing but the idle
// level has work it is a no-op and f is returned unchanged; otherwise
// it switches immediately.
func (s *Scheduler) VoluntaryYield(f *Frame) *Frame {
	s.deps.IRQ.Mask()
	defer s.deps.IRQ.Unmask()
	if s.idlingLocked() {
		return f
	}
	return s.switchLocked(f)
}

// Exit terminates the current thread: it is marked DEAD, loses its
// running-slot claim, and is never re-admitted. The returned frame
// belongs to the next selection; the exiting thread's context is never
// restored again.
func (s *Scheduler) Exit(f *Frame) *Frame {
	s.deps.IRQ.Mask()
	defer s.deps.IRQ.Unmask()
	t := s.cur
	if t == nil {
		fatalf("sched: exit with no current thread")
	}
	t.state = StateDead
	next := s.switchLocked(f)
	t.Release() // running-slot claim
	return next
}
