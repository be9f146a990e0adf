package sched

import (
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// FatalInfo describes an unrecoverable scheduler invariant violation.
type FatalInfo struct {
	Reason string
	Stack  []byte
}

var (
	fatalActive atomic.Bool
	fatalOnce   sync.Once

	fatalHandler atomic.Value // func(FatalInfo)
)

// InFatalMode reports whether a fatal invariant violation occurred.
func InFatalMode() bool {
	return fatalActive.Load()
}

// SetFatalHandler installs a process-wide handler for fatal invariant
// violations.
//
// The handler is invoked at most once (on the first violation), before
// the panic unwinds. It must not panic.
func SetFatalHandler(fn func(FatalInfo)) {
	fatalHandler.Store(fn)
}

// fatalf records an invariant violation and panics. Violations signal
// corrupted scheduler state, never a recoverable condition.
func fatalf(format string, args ...any) {
	reason := fmt.Sprintf(format, args...)
	fatalOnce.Do(func() {
		fatalActive.Store(true)
		info := FatalInfo{Reason: reason, Stack: debug.Stack()}
		if v := fatalHandler.Load(); v != nil {
			if fn, ok := v.(func(FatalInfo)); ok && fn != nil {
				fn(info)
			}
		}
	})
	panic(reason)
}
