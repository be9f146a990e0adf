package sched

import (
	"fmt"
	"sync/atomic"

	"ion/hal"
)

// TID identifies a thread.
type TID uint32

// Kind tags a thread as kernel-only or user.
type Kind uint8

const (
	// KindKernel threads have no owning process.
	KindKernel Kind = iota
	// KindUser threads belong to a Process.
	KindUser
)

func (k Kind) String() string {
	switch k {
	case KindKernel:
		return "kernel"
	case KindUser:
		return "user"
	default:
		return "unknown"
	}
}

// State is a thread's scheduling state.
type State uint8

const (
	StateReady State = iota
	StateRunning
	StateSleeping
	StateDead
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateSleeping:
		return "sleeping"
	case StateDead:
		return "dead"
	default:
		return "unknown"
	}
}

// Frame is a trapped execution context.
//
// The scheduler treats it as an opaque handle: it records which thread
// the context belongs to and whether the interrupted code was running
// privileged. Privileged contexts are never preempted by quantum
// expiry.
type Frame struct {
	tid  TID
	priv bool
}

// NewFrame builds a context handle for t. t may be nil for the boot
// context that exists before any thread is current.
func NewFrame(t *Thread, privileged bool) *Frame {
	f := &Frame{priv: privileged}
	if t != nil {
		f.tid = t.id
	}
	return f
}

// TID returns the owning thread's ID, or 0 for the boot context.
func (f *Frame) TID() TID { return f.tid }

// Privileged reports whether the interrupted code ran in kernel mode.
func (f *Frame) Privileged() bool { return f.priv }

var nextTID atomic.Uint32

// Thread is one schedulable unit.
//
// A thread's reference count equals the number of live ownership
// claims on it: ready-queue membership, sleep-timer registration, and
// occupancy of the running slot each hold one claim, plus whatever
// claims external owners (typically the creator) hold. The count
// reaches zero exactly once, at which point the reclaimer fires.
//
// State, linkage, and the saved frame are guarded by the scheduler's
// interrupt mask; the reference count is atomic so timer callbacks and
// external wakers may release claims directly.
type Thread struct {
	id    TID
	name  string
	level Level
	kind  Kind
	proc  *Process

	state State
	refs  atomic.Int32

	// intrusive ready-queue linkage; queue is nil when unlinked
	next  *Thread
	queue *readyQueue

	timer hal.Timer
	frame *Frame

	reclaim func(*Thread)
}

// NewThread creates a thread in the READY state holding one claim, the
// creator's. User threads must name their owning process; kernel
// threads pass nil.
func NewThread(name string, level Level, kind Kind, proc *Process) *Thread {
	if !level.Valid() {
		fatalf("sched: new thread %q with invalid level %d", name, level)
	}
	if kind == KindUser && proc == nil {
		fatalf("sched: new user thread %q without a process", name)
	}
	t := &Thread{
		id:    TID(nextTID.Add(1)),
		name:  name,
		level: level,
		kind:  kind,
		proc:  proc,
		state: StateReady,
	}
	t.refs.Store(1)
	if proc != nil {
		proc.attach(t)
	}
	return t
}

func (t *Thread) ID() TID           { return t.id }
func (t *Thread) Name() string      { return t.name }
func (t *Thread) Level() Level      { return t.level }
func (t *Thread) Kind() Kind        { return t.kind }
func (t *Thread) Process() *Process { return t.proc }

// State returns the thread's scheduling state.
func (t *Thread) State() State { return t.state }

// SetReclaimer installs fn, invoked once when the last claim drops.
func (t *Thread) SetReclaimer(fn func(*Thread)) {
	t.reclaim = fn
}

// SetFrame installs the entry context for a thread that has never run.
// Context construction and restoration belong to the trap layer; the
// scheduler only stores and returns the handle.
func (t *Thread) SetFrame(f *Frame) {
	t.frame = f
}

// Kill marks t DEAD without touching its claims. It is meant for
// signal-delivery hooks, which run with the interrupt mask held on a
// freshly selected thread; the scheduler releases the discarded
// selection's claim itself.
func (t *Thread) Kill() {
	t.state = StateDead
}

// Retain takes one reference claim on t.
func (t *Thread) Retain() {
	if t.refs.Add(1) <= 1 {
		fatalf("sched: retain on reclaimed thread %s", t.name)
	}
}

// Release drops one reference claim. Dropping the last claim fires the
// reclaimer; releasing past zero is a fatal accounting violation.
func (t *Thread) Release() {
	n := t.refs.Add(-1)
	if n < 0 {
		fatalf("sched: release past zero on thread %s", t.name)
	}
	if n == 0 && t.reclaim != nil {
		t.reclaim(t)
	}
}

func (t *Thread) String() string {
	return fmt.Sprintf("%s#%d(%s/%s)", t.name, t.id, t.kind, t.level)
}
