package sched

import (
	"fmt"
	"time"
)

// Level is a scheduling priority level. Higher is more urgent.
type Level int8

const (
	// LevelIdle is reserved for the perpetually-present idle thread.
	LevelIdle Level = iota
	LevelLow
	LevelNormal
	LevelHigh
	LevelMax
)

// NumLevels is the number of priority levels.
const NumLevels = int(LevelMax) + 1

// DefaultQuantum is the per-level time slice used when none is configured.
const DefaultQuantum = 100 * time.Millisecond

// Valid reports whether l is a usable priority level.
func (l Level) Valid() bool {
	return l >= LevelIdle && l <= LevelMax
}

func (l Level) String() string {
	switch l {
	case LevelIdle:
		return "idle"
	case LevelLow:
		return "low"
	case LevelNormal:
		return "normal"
	case LevelHigh:
		return "high"
	case LevelMax:
		return "max"
	default:
		return fmt.Sprintf("level(%d)", int8(l))
	}
}

// Config tunes a scheduler.
type Config struct {
	// Quantum holds the time slice for each priority level. A thread
	// becomes eligible for preemption once it has been current longer
	// than its level's quantum.
	Quantum [NumLevels]time.Duration
}

// DefaultConfig returns a config with DefaultQuantum at every level.
func DefaultConfig() Config {
	var c Config
	for i := range c.Quantum {
		c.Quantum[i] = DefaultQuantum
	}
	return c
}

func (c Config) validate() error {
	for i, q := range c.Quantum {
		if q <= 0 {
			return fmt.Errorf("sched: quantum for %s must be positive, got %v", Level(i), q)
		}
	}
	return nil
}
