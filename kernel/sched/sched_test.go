package sched

import (
	"strings"
	"testing"
	"time"

	"ion/hal"
)

type fakeClock struct {
	now time.Duration
}

func (c *fakeClock) Now() time.Duration      { return c.now }
func (c *fakeClock) advance(d time.Duration) { c.now += d }

type fakeIRQ struct {
	depth int
}

func (i *fakeIRQ) Mask() {
	i.depth++
	if i.depth != 1 {
		panic("nested interrupt mask")
	}
}

func (i *fakeIRQ) Unmask() {
	i.depth--
	if i.depth != 0 {
		panic("unbalanced interrupt unmask")
	}
}

type fakeTimer struct {
	d     time.Duration
	fn    func()
	armed bool
}

func (t *fakeTimer) Start(d time.Duration, fn func()) {
	t.d, t.fn, t.armed = d, fn, true
}

func (t *fakeTimer) Stop() bool {
	was := t.armed
	t.armed = false
	return was
}

// fire simulates timer expiry in interrupt context.
func (t *fakeTimer) fire() {
	if !t.armed {
		return
	}
	t.armed = false
	t.fn()
}

type fakeTimers struct {
	made []*fakeTimer
}

func (d *fakeTimers) NewTimer() hal.Timer {
	t := &fakeTimer{}
	d.made = append(d.made, t)
	return t
}

func (d *fakeTimers) last() *fakeTimer {
	if len(d.made) == 0 {
		return nil
	}
	return d.made[len(d.made)-1]
}

func newTestSched(t *testing.T, cfg Config) (*Scheduler, *fakeClock, *fakeTimers) {
	t.Helper()
	clk := &fakeClock{}
	tms := &fakeTimers{}
	s, err := New(Deps{Clock: clk, IRQ: &fakeIRQ{}, Timers: tms}, cfg)
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	return s, clk, tms
}

// newWorker creates a thread with an entry frame installed.
func newWorker(name string, level Level, kind Kind, proc *Process) *Thread {
	t := NewThread(name, level, kind, proc)
	t.SetFrame(NewFrame(t, kind == KindKernel))
	return t
}

func admit(t *testing.T, s *Scheduler, th *Thread) {
	t.Helper()
	if err := s.AddThread(th); err != nil {
		t.Fatalf("admit %s: %v", th, err)
	}
}

func addIdle(t *testing.T, s *Scheduler) *Thread {
	t.Helper()
	idle := newWorker("idle", LevelIdle, KindKernel, nil)
	admit(t, s, idle)
	return idle
}

func bootFrame() *Frame {
	return NewFrame(nil, true)
}

func expectFatal(t *testing.T, want string, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		if r == nil {
			t.Fatalf("expected fatal %q, got none", want)
		}
		msg, ok := r.(string)
		if !ok || !strings.Contains(msg, want) {
			t.Fatalf("expected fatal containing %q, got %v", want, r)
		}
	}()
	fn()
}

func TestNewRejectsMissingDeps(t *testing.T) {
	clk := &fakeClock{}
	tms := &fakeTimers{}
	if _, err := New(Deps{IRQ: &fakeIRQ{}, Timers: tms}, DefaultConfig()); err == nil {
		t.Fatal("expected error for nil clock")
	}
	if _, err := New(Deps{Clock: clk, Timers: tms}, DefaultConfig()); err == nil {
		t.Fatal("expected error for nil interrupt controller")
	}
	if _, err := New(Deps{Clock: clk, IRQ: &fakeIRQ{}}, DefaultConfig()); err == nil {
		t.Fatal("expected error for nil timer driver")
	}
}

func TestNewRejectsBadQuantum(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Quantum[LevelNormal] = 0
	clk := &fakeClock{}
	if _, err := New(Deps{Clock: clk, IRQ: &fakeIRQ{}, Timers: &fakeTimers{}}, cfg); err == nil {
		t.Fatal("expected error for zero quantum")
	}
}

func TestColdStartSelectsHighestPriority(t *testing.T) {
	s, _, _ := newTestSched(t, DefaultConfig())
	addIdle(t, s)
	w := newWorker("worker", LevelHigh, KindKernel, nil)
	admit(t, s, w)
	s.Start()

	got := s.Schedule(bootFrame())
	if got != w.frame {
		t.Fatalf("expected worker frame, got %v", got)
	}
	if s.CurrentThread() != w {
		t.Fatalf("expected worker current, got %v", s.CurrentThread())
	}
	if w.State() != StateRunning {
		t.Fatalf("expected running, got %s", w.State())
	}
}

func TestPriorityStrictness(t *testing.T) {
	s, _, _ := newTestSched(t, DefaultConfig())
	addIdle(t, s)
	low := newWorker("low", LevelLow, KindKernel, nil)
	highA := newWorker("high-a", LevelHigh, KindKernel, nil)
	highB := newWorker("high-b", LevelHigh, KindKernel, nil)
	admit(t, s, low)
	admit(t, s, highA)
	admit(t, s, highB)
	s.Start()

	f := s.Schedule(bootFrame())
	if s.CurrentThread() != highA {
		t.Fatalf("expected high-a first, got %s", s.CurrentThread())
	}
	f = s.YieldAndSwitch(f)
	if s.CurrentThread() != highB {
		t.Fatalf("expected high-b while a high thread is ready, got %s", s.CurrentThread())
	}
	f = s.YieldAndSwitch(f)
	if s.CurrentThread() != highA {
		t.Fatalf("expected round robin back to high-a, got %s", s.CurrentThread())
	}
	_ = f
	if low.State() != StateReady || low.queue == nil {
		t.Fatal("expected low thread still ready and linked")
	}
}

func TestFIFOFairnessWithinLevel(t *testing.T) {
	s, _, _ := newTestSched(t, DefaultConfig())
	addIdle(t, s)
	t1 := newWorker("t1", LevelNormal, KindKernel, nil)
	t2 := newWorker("t2", LevelNormal, KindKernel, nil)
	t3 := newWorker("t3", LevelNormal, KindKernel, nil)
	admit(t, s, t1)
	admit(t, s, t2)
	admit(t, s, t3)
	s.Start()

	want := []*Thread{t1, t2, t3, t1, t2, t3}
	f := bootFrame()
	for i, w := range want {
		if i == 0 {
			f = s.Schedule(f)
		} else {
			f = s.YieldAndSwitch(f)
		}
		if s.CurrentThread() != w {
			t.Fatalf("selection %d: expected %s, got %s", i, w, s.CurrentThread())
		}
	}
}

func TestQuantumAdherence(t *testing.T) {
	cfg := DefaultConfig()
	for i := range cfg.Quantum {
		cfg.Quantum[i] = time.Second
	}
	s, clk, _ := newTestSched(t, cfg)
	addIdle(t, s)
	proc := NewProcess("app")
	w1 := newWorker("w1", LevelNormal, KindUser, proc)
	w2 := newWorker("w2", LevelNormal, KindUser, proc)
	admit(t, s, w1)
	admit(t, s, w2)
	s.Start()

	f := s.Schedule(bootFrame())
	if s.CurrentThread() != w1 {
		t.Fatalf("expected w1 current, got %s", s.CurrentThread())
	}

	clk.advance(900 * time.Millisecond)
	if got := s.Schedule(f); got != f || s.CurrentThread() != w1 {
		t.Fatal("expected no switch at 900ms of a 1000ms quantum")
	}

	clk.advance(600 * time.Millisecond)
	got := s.Schedule(f)
	if s.CurrentThread() != w2 {
		t.Fatalf("expected switch to w2 at 1500ms, got %s", s.CurrentThread())
	}
	if got != w2.frame {
		t.Fatal("expected w2's saved frame after the switch")
	}
	if w1.State() != StateReady || w1.queue == nil {
		t.Fatal("expected preempted w1 re-admitted")
	}
}

func TestPrivilegedContextNeverPreempted(t *testing.T) {
	cfg := DefaultConfig()
	for i := range cfg.Quantum {
		cfg.Quantum[i] = time.Second
	}
	s, clk, _ := newTestSched(t, cfg)
	addIdle(t, s)
	proc := NewProcess("app")
	w1 := newWorker("w1", LevelNormal, KindUser, proc)
	w2 := newWorker("w2", LevelNormal, KindUser, proc)
	admit(t, s, w1)
	admit(t, s, w2)
	s.Start()

	s.Schedule(bootFrame())
	clk.advance(5 * time.Second)

	priv := NewFrame(w1, true)
	if got := s.Schedule(priv); got != priv || s.CurrentThread() != w1 {
		t.Fatal("expected privileged context to keep the CPU past its quantum")
	}
}

func TestIsIdling(t *testing.T) {
	s, _, _ := newTestSched(t, DefaultConfig())
	if !s.IsIdling() {
		t.Fatal("expected idling with empty queues")
	}
	addIdle(t, s)
	if !s.IsIdling() {
		t.Fatal("expected idling with only the idle level occupied")
	}
	w := newWorker("w", LevelNormal, KindKernel, nil)
	admit(t, s, w)
	if s.IsIdling() {
		t.Fatal("expected not idling with a normal-level thread ready")
	}
	s.Start()
	s.Schedule(bootFrame()) // w becomes current, leaves its queue
	if !s.IsIdling() {
		t.Fatal("expected idling once the only worker is running")
	}
}

func TestSwitchRecording(t *testing.T) {
	clk := &fakeClock{}
	ring := hal.NewRingLog()
	s, err := New(Deps{Clock: clk, IRQ: &fakeIRQ{}, Timers: &fakeTimers{}, Log: ring}, DefaultConfig())
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	addIdle(t, s)
	w := newWorker("w", LevelNormal, KindKernel, nil)
	admit(t, s, w)
	s.Start()

	f := s.Schedule(bootFrame())
	s.YieldAndSwitch(f)
	if s.Switches() != 2 {
		t.Fatalf("expected 2 switches, got %d", s.Switches())
	}
	var switchLines int
	for _, line := range ring.Drain() {
		if strings.Contains(line, "switch to") {
			switchLines++
		}
	}
	if switchLines != 2 {
		t.Fatalf("expected 2 switch records, got %d", switchLines)
	}
}

func TestEmptyQueuesIsFatal(t *testing.T) {
	s, _, _ := newTestSched(t, DefaultConfig())
	s.Start()
	expectFatal(t, "ready queues empty", func() {
		s.Schedule(bootFrame())
	})
	if !InFatalMode() {
		t.Fatal("expected fatal mode latched")
	}
}

func TestStartTwiceIsFatal(t *testing.T) {
	s, _, _ := newTestSched(t, DefaultConfig())
	s.Start()
	expectFatal(t, "started twice", func() {
		s.Start()
	})
}

func TestInitAfterStartIsFatal(t *testing.T) {
	s, _, _ := newTestSched(t, DefaultConfig())
	s.Start()
	expectFatal(t, "init after start", func() {
		s.Init()
	})
}

func TestSignalDeliveryDiscardsTerminatedCandidate(t *testing.T) {
	clk := &fakeClock{}
	var victim *Thread
	deps := Deps{Clock: clk, IRQ: &fakeIRQ{}, Timers: &fakeTimers{}}
	deps.Signals = func(th *Thread) bool {
		if th != victim {
			return false
		}
		// Fatal signal: the thread is terminated and leaves scheduling.
		th.Kill()
		th.proc.SetSignalPending(false)
		return true
	}
	s, err := New(deps, DefaultConfig())
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	addIdle(t, s)

	proc := NewProcess("app")
	victim = newWorker("victim", LevelHigh, KindUser, proc)
	other := newWorker("other", LevelNormal, KindUser, proc)
	admit(t, s, victim)
	admit(t, s, other)
	proc.SetSignalPending(true)
	s.Start()

	s.Schedule(bootFrame())
	if s.CurrentThread() != other {
		t.Fatalf("expected terminated candidate skipped, got %s", s.CurrentThread())
	}
	if victim.State() != StateDead {
		t.Fatalf("expected victim dead, got %s", victim.State())
	}
	if got := victim.refs.Load(); got != 1 {
		t.Fatalf("expected only the creator claim on the victim, got %d", got)
	}
	if s.Switches() != 1 {
		t.Fatalf("expected a single recorded switch, got %d", s.Switches())
	}
}
