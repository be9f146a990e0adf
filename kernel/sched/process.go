package sched

import (
	"sync/atomic"
)

// PID identifies a process.
type PID uint32

var nextPID atomic.Uint32

// Process owns a set of user threads.
//
// The scheduler iterates the thread set for batch admission and
// removal but never owns it; creation and destruction of the process
// itself happen elsewhere.
type Process struct {
	id   PID
	name string

	locked  atomic.Bool // set: admission of owned threads is suspended
	pending atomic.Bool // set: the scheduling core must attempt signal delivery

	threads []*Thread
}

// NewProcess creates an empty process in the NORMAL (unlocked) state.
func NewProcess(name string) *Process {
	return &Process{id: PID(nextPID.Add(1)), name: name}
}

func (p *Process) ID() PID      { return p.id }
func (p *Process) Name() string { return p.name }

// Threads returns a snapshot of the owned thread set.
func (p *Process) Threads() []*Thread {
	out := make([]*Thread, len(p.threads))
	copy(out, p.threads)
	return out
}

func (p *Process) attach(t *Thread) {
	p.threads = append(p.threads, t)
}

// Lock suspends ready-queue admission for all of p's threads. Threads
// admitted while locked are marked READY but stay unlinked; unlocking
// does not re-admit them — the owner must call AddThread again.
func (p *Process) Lock() { p.locked.Store(true) }

// Unlock clears the lock flag.
func (p *Process) Unlock() { p.locked.Store(false) }

// Locked reports whether admission is suspended.
func (p *Process) Locked() bool { return p.locked.Load() }

// SetSignalPending marks or clears the pending-signal indicator
// consumed by the scheduling core.
func (p *Process) SetSignalPending(v bool) { p.pending.Store(v) }

// SignalPending reports whether a signal awaits delivery.
func (p *Process) SignalPending() bool { return p.pending.Load() }
