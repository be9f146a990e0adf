package hal

import (
	"log/slog"
	"sync"
)

type slogLogger struct {
	l *slog.Logger
}

// NewSlogLogger adapts a slog.Logger into a line sink.
func NewSlogLogger(l *slog.Logger) Logger {
	return &slogLogger{l: l}
}

func (s *slogLogger) WriteLineString(line string) {
	s.l.Info(line)
}

func (s *slogLogger) WriteLineBytes(b []byte) {
	s.l.Info(string(b))
}

const ringSlots = 64

// RingLog is a fixed-capacity line sink that drops when full.
//
// It never blocks the writer, which makes it safe as the scheduler's
// log sink: a full ring loses lines instead of stalling a masked
// section.
type RingLog struct {
	mu      sync.Mutex
	head    uint32
	tail    uint32
	dropped uint64
	slots   [ringSlots]string
}

// NewRingLog returns an empty ring sink.
func NewRingLog() *RingLog {
	return &RingLog{}
}

func (r *RingLog) WriteLineString(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.head-r.tail >= ringSlots {
		r.dropped++
		return
	}
	r.slots[r.head%ringSlots] = s
	r.head++
}

func (r *RingLog) WriteLineBytes(b []byte) {
	r.WriteLineString(string(b))
}

// Drain removes and returns all buffered lines in write order.
func (r *RingLog) Drain() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for r.tail != r.head {
		out = append(out, r.slots[r.tail%ringSlots])
		r.tail++
	}
	return out
}

// Dropped reports how many lines were lost to a full ring.
func (r *RingLog) Dropped() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}
