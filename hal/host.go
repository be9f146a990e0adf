package hal

import (
	"sync"
	"time"
)

type hostClock struct {
	start time.Time
}

// NewHostClock returns a Clock backed by the process monotonic clock.
func NewHostClock() Clock {
	return &hostClock{start: time.Now()}
}

func (c *hostClock) Now() time.Duration {
	return time.Since(c.start)
}

type hostInterrupts struct {
	mu sync.Mutex
}

// NewHostInterrupts returns a mutex-backed interrupt mask.
//
// Host "interrupts" are goroutines (timer expiries, external wakers);
// holding the mask excludes them exactly like disabling IRQs would.
func NewHostInterrupts() Interrupts {
	return &hostInterrupts{}
}

func (i *hostInterrupts) Mask()   { i.mu.Lock() }
func (i *hostInterrupts) Unmask() { i.mu.Unlock() }

type hostTimer struct {
	mu sync.Mutex
	t  *time.Timer
}

func (ht *hostTimer) Start(d time.Duration, fn func()) {
	ht.mu.Lock()
	defer ht.mu.Unlock()
	if ht.t != nil {
		ht.t.Stop()
	}
	ht.t = time.AfterFunc(d, fn)
}

func (ht *hostTimer) Stop() bool {
	ht.mu.Lock()
	defer ht.mu.Unlock()
	if ht.t == nil {
		return false
	}
	return ht.t.Stop()
}

type hostTimers struct{}

// NewHostTimers returns a TimerDriver backed by time.AfterFunc.
func NewHostTimers() TimerDriver {
	return hostTimers{}
}

func (hostTimers) NewTimer() Timer {
	return &hostTimer{}
}
