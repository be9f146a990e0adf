package sched

import (
	"errors"
	"fmt"
	"time"

	"ion/hal"
)

// Deps wires the collaborators the scheduler consumes.
type Deps struct {
	Clock  hal.Clock
	IRQ    hal.Interrupts
	Timers hal.TimerDriver

	// Log is a best-effort sink for switch records. Optional.
	Log hal.Logger

	// Signals attempts delivery of a pending signal to a freshly
	// selected thread. It reports whether the thread's scheduling
	// eligibility changed (for example the signal terminated it), in
	// which case the selection is discarded and another thread is
	// picked. Optional.
	Signals func(t *Thread) bool
}

// Scheduler is the preemptive thread scheduler: per-level ready
// queues, a single running slot, quantum-driven preemption, and the
// sleep and lifecycle bridges.
//
// One Scheduler value assumes one execution unit. All state is mutated
// with interrupts masked; public entry points take the mask, internal
// *Locked helpers assume it is held.
type Scheduler struct {
	deps    Deps
	quantum [NumLevels]time.Duration

	queues   [NumLevels]readyQueue
	cur      *Thread
	curSince time.Duration
	started  bool
	switches uint64
}

// New builds a scheduler with zeroed ready queues.
func New(deps Deps, cfg Config) (*Scheduler, error) {
	if deps.Clock == nil {
		return nil, errors.New("sched: nil clock")
	}
	if deps.IRQ == nil {
		return nil, errors.New("sched: nil interrupt controller")
	}
	if deps.Timers == nil {
		return nil, errors.New("sched: nil timer driver")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	s := &Scheduler{deps: deps, quantum: cfg.Quantum}
	s.Init()
	return s, nil
}

// Init zero-initializes the ready queues and the running slot. It must
// not be called once scheduling has started.
func (s *Scheduler) Init() {
	if s.started {
		fatalf("sched: init after start")
	}
	s.queues = [NumLevels]readyQueue{}
	s.cur = nil
	s.curSince = 0
	s.switches = 0
}

// Start begins scheduling. No thread may be current yet; the first
// Schedule call performs the cold-start switch.
func (s *Scheduler) Start() {
	s.deps.IRQ.Mask()
	defer s.deps.IRQ.Unmask()
	if s.started {
		fatalf("sched: started twice")
	}
	if s.cur != nil {
		fatalf("sched: start with %s already current", s.cur)
	}
	s.started = true
	s.logf("sched: start")
}

// Schedule is the trap-return entry point. Given the interrupted
// context it either lets the current thread continue (returning f
// unchanged) or performs a switch and returns the new thread's saved
// context.
//
// A switch happens on cold start, or when f is preemptible (not
// privileged) and the current thread has been running longer than its
// level's quantum. Privileged contexts are never quantum-preempted,
// so kernel-side critical sections run to completion.
func (s *Scheduler) Schedule(f *Frame) *Frame {
	s.deps.IRQ.Mask()
	defer s.deps.IRQ.Unmask()

	if s.cur == nil {
		return s.switchLocked(f)
	}
	if f.Privileged() {
		return f
	}
	if s.deps.Clock.Now()-s.curSince > s.quantum[s.cur.level] {
		return s.switchLocked(f)
	}
	return f
}

// YieldAndSwitch unconditionally switches to a new selection and
// returns its saved context.
func (s *Scheduler) YieldAndSwitch(f *Frame) *Frame {
	s.deps.IRQ.Mask()
	defer s.deps.IRQ.Unmask()
	return s.switchLocked(f)
}

// switchLocked attaches f to the outgoing thread, selects the next
// thread with signal delivery interleaved, re-admits the outgoing
// thread if it is still RUNNING, and returns the new context.
//
// Interleaving signal delivery here guarantees a thread is never
// resumed with an undelivered state-changing signal. The loop is
// bounded: each discarded candidate has already been removed from its
// queue.
func (s *Scheduler) switchLocked(f *Frame) *Frame {
	prev := s.cur
	if prev != nil {
		prev.frame = f
	}

	var next *Thread
	for {
		next = s.selectLocked()
		s.setCurrentLocked(next)
		if next.kind == KindUser && next.proc.SignalPending() && s.deps.Signals != nil {
			if s.deps.Signals(next) {
				// The claim the queue transferred into the slot dies
				// with the discarded selection.
				next.Release()
				continue
			}
		}
		break
	}

	s.switches++
	s.logf("sched: switch to %s", next)

	if prev != nil && prev.state == StateRunning {
		s.admitLocked(prev)
		prev.Release() // running-slot claim
	}
	return next.frame
}

// selectLocked scans from LevelMax down to LevelIdle and pops the
// first non-empty queue. The idle thread keeps the LevelIdle queue
// non-empty, so an empty scan means corrupted state.
func (s *Scheduler) selectLocked() *Thread {
	for l := LevelMax; l >= LevelIdle; l-- {
		if t := s.queues[l].pop(); t != nil {
			return t
		}
	}
	fatalf("sched: all ready queues empty")
	return nil
}

// setCurrentLocked installs t in the running slot and stamps the
// selection time. The queue's claim transfers into the slot; no count
// changes here.
func (s *Scheduler) setCurrentLocked(t *Thread) {
	s.curSince = s.deps.Clock.Now()
	s.cur = t
	t.state = StateRunning
}

// IsIdling reports whether every queue above LevelIdle is empty.
func (s *Scheduler) IsIdling() bool {
	s.deps.IRQ.Mask()
	defer s.deps.IRQ.Unmask()
	return s.idlingLocked()
}

func (s *Scheduler) idlingLocked() bool {
	for l := LevelIdle + 1; l <= LevelMax; l++ {
		if !s.queues[l].empty() {
			return false
		}
	}
	return true
}

// Switches returns the number of context switches performed.
func (s *Scheduler) Switches() uint64 {
	s.deps.IRQ.Mask()
	defer s.deps.IRQ.Unmask()
	return s.switches
}

func (s *Scheduler) logf(format string, args ...any) {
	if s.deps.Log == nil {
		return
	}
	s.deps.Log.WriteLineString(fmt.Sprintf(format, args...))
}
