package main

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"ion/config"
	"ion/hal"
	"ion/kernel/sched"
)

// simClock is a virtual monotonic clock advanced by the trap loop.
type simClock struct {
	now time.Duration
}

func (c *simClock) Now() time.Duration { return c.now }

type simTimer struct {
	drv      *simTimers
	fn       func()
	deadline time.Duration
	armed    bool
}

func (t *simTimer) Start(d time.Duration, fn func()) {
	t.fn = fn
	t.deadline = t.drv.clock.now + d
	t.armed = true
}

func (t *simTimer) Stop() bool {
	was := t.armed
	t.armed = false
	return was
}

// simTimers is a TimerDriver on virtual time; the trap loop fires due
// timers once per tick, outside the masked sections.
type simTimers struct {
	clock  *simClock
	timers []*simTimer
}

func (d *simTimers) NewTimer() hal.Timer {
	t := &simTimer{drv: d}
	d.timers = append(d.timers, t)
	return t
}

func (d *simTimers) fireDue() {
	for _, t := range d.timers {
		if t.armed && t.deadline <= d.clock.now {
			t.armed = false
			t.fn()
		}
	}
}

type behaviorKind int

const (
	behaviorSpin behaviorKind = iota
	behaviorYield
	behaviorSleep
	behaviorExit
	behaviorSignal
)

// behavior scripts what a simulated thread does with its CPU time.
type behavior struct {
	kind behaviorKind

	every time.Duration // yield period
	run   time.Duration // sleep: run stretch; exit/signal: deadline
	nap   time.Duration // sleep duration
}

func parseBehavior(s string) (behavior, error) {
	if s == "" || s == "spin" {
		return behavior{kind: behaviorSpin}, nil
	}
	parts := strings.Split(s, ":")
	millis := func(i int) (time.Duration, error) {
		n, err := strconv.ParseInt(parts[i], 10, 64)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("behavior %q: bad duration %q", s, parts[i])
		}
		return time.Duration(n) * time.Millisecond, nil
	}
	switch {
	case parts[0] == "yield" && len(parts) == 2:
		every, err := millis(1)
		if err != nil {
			return behavior{}, err
		}
		return behavior{kind: behaviorYield, every: every}, nil
	case parts[0] == "sleep" && len(parts) == 3:
		run, err := millis(1)
		if err != nil {
			return behavior{}, err
		}
		nap, err := millis(2)
		if err != nil {
			return behavior{}, err
		}
		return behavior{kind: behaviorSleep, run: run, nap: nap}, nil
	case parts[0] == "exit" && len(parts) == 2:
		run, err := millis(1)
		if err != nil {
			return behavior{}, err
		}
		return behavior{kind: behaviorExit, run: run}, nil
	case parts[0] == "signal" && len(parts) == 2:
		run, err := millis(1)
		if err != nil {
			return behavior{}, err
		}
		return behavior{kind: behaviorSignal, run: run}, nil
	}
	return behavior{}, fmt.Errorf("behavior %q: unknown script", s)
}

type simThread struct {
	th *sched.Thread
	b  behavior

	ran      time.Duration // total time as current
	stretch  time.Duration // time as current since the last action
	selected int
	acted    bool // one-shot behaviors (exit, signal) already triggered
}

type simulation struct {
	cfg    *config.Config
	log    *slog.Logger
	clock  *simClock
	timers *simTimers
	s      *sched.Scheduler

	threads map[sched.TID]*simThread
	order   []*simThread
}

func newSimulation(cfg *config.Config, log *slog.Logger) (*simulation, error) {
	clock := &simClock{}
	timers := &simTimers{clock: clock}

	sim := &simulation{
		cfg:     cfg,
		log:     log,
		clock:   clock,
		timers:  timers,
		threads: make(map[sched.TID]*simThread),
	}

	deps := sched.Deps{
		Clock:  clock,
		IRQ:    hal.NewHostInterrupts(),
		Timers: timers,
		Log:    hal.NewSlogLogger(log),
		// Pending signals are fatal in this workload model: delivery
		// terminates the thread and removes it from scheduling.
		Signals: func(t *sched.Thread) bool {
			t.Kill()
			t.Process().SetSignalPending(false)
			log.Info("signal delivered", "thread", t.Name())
			return true
		},
	}
	s, err := sched.New(deps, cfg.SchedConfig())
	if err != nil {
		return nil, err
	}
	sim.s = s

	// The idle thread yields every tick so real work admitted at any
	// level gets the CPU back immediately.
	sim.addThread("idle", sched.LevelIdle, sched.KindKernel, nil, behavior{kind: behaviorYield})

	procs := make(map[string]*sched.Process)
	for _, ts := range cfg.Threads {
		b, err := parseBehavior(ts.Behavior)
		if err != nil {
			return nil, err
		}
		kind := sched.KindKernel
		var proc *sched.Process
		if ts.Kind == "user" {
			kind = sched.KindUser
			proc = procs[ts.Process]
			if proc == nil {
				proc = sched.NewProcess(ts.Process)
				procs[ts.Process] = proc
			}
		}
		sim.addThread(ts.Name, sched.Level(ts.Priority), kind, proc, b)
	}
	return sim, nil
}

func (sim *simulation) addThread(name string, level sched.Level, kind sched.Kind, proc *sched.Process, b behavior) {
	th := sched.NewThread(name, level, kind, proc)
	th.SetFrame(sched.NewFrame(th, kind == sched.KindKernel))
	th.SetReclaimer(func(t *sched.Thread) {
		sim.log.Debug("thread reclaimed", "thread", t.Name())
	})
	st := &simThread{th: th, b: b}
	sim.threads[th.ID()] = st
	sim.order = append(sim.order, st)
}

func (sim *simulation) run() (*summary, error) {
	runID := uuid.NewString()
	sim.log.Info("simulation start", "run", runID,
		"tick_ms", sim.cfg.TickMillis, "run_ms", sim.cfg.RunMillis)

	for _, st := range sim.order {
		if err := sim.s.AddThread(st.th); err != nil {
			return nil, fmt.Errorf("admit %s: %w", st.th.Name(), err)
		}
	}
	sim.s.Start()

	tick := time.Duration(sim.cfg.TickMillis) * time.Millisecond
	ticks := sim.cfg.RunMillis / sim.cfg.TickMillis
	f := sched.NewFrame(nil, true) // boot context

	for i := 0; i < ticks; i++ {
		sim.clock.now += tick
		sim.timers.fireDue()

		cur := sim.s.CurrentThread()
		if cur == nil {
			f = sim.s.Schedule(f)
			sim.noteSelection(f)
			continue
		}

		st := sim.threads[cur.ID()]
		st.ran += tick
		st.stretch += tick

		prev := f
		f = sim.step(st, f)
		if f == prev {
			f = sim.s.Schedule(f)
		}
		if sim.s.CurrentThread() != cur {
			sim.noteSelection(f)
		}
	}

	sum := &summary{
		runID:    runID,
		ticks:    ticks,
		switches: sim.s.Switches(),
	}
	for _, st := range sim.order {
		sum.rows = append(sum.rows, summaryRow{
			name:     st.th.Name(),
			state:    st.th.State().String(),
			level:    st.th.Level().String(),
			ran:      st.ran,
			selected: st.selected,
		})
	}
	sort.SliceStable(sum.rows, func(i, j int) bool { return sum.rows[i].ran > sum.rows[j].ran })
	sim.log.Info("simulation done", "run", runID, "switches", sum.switches)
	return sum, nil
}

// step applies the current thread's behavior script for this tick and
// returns the frame to restore. An unchanged frame means no scheduler
// entry point was taken yet.
func (sim *simulation) step(st *simThread, f *sched.Frame) *sched.Frame {
	switch st.b.kind {
	case behaviorYield:
		if st.stretch >= st.b.every {
			st.stretch = 0
			return sim.s.VoluntaryYield(f)
		}
	case behaviorSleep:
		if st.stretch >= st.b.run {
			st.stretch = 0
			return sim.s.SleepFor(st.b.nap, f)
		}
	case behaviorExit:
		if !st.acted && st.ran >= st.b.run {
			st.acted = true
			return sim.s.Exit(f)
		}
	case behaviorSignal:
		if !st.acted && st.ran >= st.b.run {
			st.acted = true
			st.th.Process().SetSignalPending(true)
		}
	}
	return f
}

func (sim *simulation) noteSelection(f *sched.Frame) {
	if st, ok := sim.threads[f.TID()]; ok {
		st.selected++
	}
}

type summaryRow struct {
	name     string
	state    string
	level    string
	ran      time.Duration
	selected int
}

type summary struct {
	runID    string
	ticks    int
	switches uint64
	rows     []summaryRow
}

func (s *summary) print(w io.Writer) {
	fmt.Fprintf(w, "run %s: %d ticks, %d switches\n", s.runID, s.ticks, s.switches)
	fmt.Fprintf(w, "%-12s  %-8s  %-9s  %10s  %s\n", "THREAD", "LEVEL", "STATE", "CPU", "SELECTED")
	for _, r := range s.rows {
		fmt.Fprintf(w, "%-12s  %-8s  %-9s  %10s  %d\n", r.name, r.level, r.state, r.ran, r.selected)
	}
}
