package hal

import "time"

// Clock is a monotonic time source.
//
// Readings are durations since an arbitrary fixed epoch; only the
// difference between two readings is meaningful.
type Clock interface {
	Now() time.Duration
}

// Interrupts masks and unmasks interrupt delivery.
//
// Scheduler state is only mutated between Mask and Unmask. On the host
// the pair is backed by a mutex so timer-callback goroutines model IRQ
// re-entrancy faithfully.
type Interrupts interface {
	Mask()
	Unmask()
}

// Timer is a one-shot timer.
//
// Start arms the timer; a second Start re-arms it with the new duration
// and callback. Stop disarms it and reports whether a pending expiry
// was cancelled.
type Timer interface {
	Start(d time.Duration, fn func())
	Stop() bool
}

// TimerDriver mints one-shot timers.
type TimerDriver interface {
	NewTimer() Timer
}

// Logger writes newline-delimited log lines.
//
// Implementations must be best-effort and non-blocking: callers may
// hold the interrupt mask.
type Logger interface {
	WriteLineString(s string)
	WriteLineBytes(b []byte)
}
