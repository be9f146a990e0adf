package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"ion/kernel/sched"
)

// ThreadSpec describes one simulated thread.
type ThreadSpec struct {
	Name     string `yaml:"name"`
	Priority int    `yaml:"priority"`
	// Kind is "kernel" or "user". User threads are grouped into a
	// process by the Process field.
	Kind    string `yaml:"kind"`
	Process string `yaml:"process"`
	// Behavior scripts what the thread does while current:
	//   spin                       run until preempted
	//   yield:<every-ms>           voluntary yield on a period
	//   sleep:<run-ms>:<sleep-ms>  run, then timed sleep, repeat
	//   exit:<after-ms>            terminate after accumulated runtime
	Behavior string `yaml:"behavior"`
}

// Config is the simulator configuration file.
type Config struct {
	// QuantumMillis holds one entry per priority level, lowest first.
	// Empty means the scheduler default at every level.
	QuantumMillis []int64 `yaml:"quantum_ms"`

	TickMillis int `yaml:"tick_ms"`
	RunMillis  int `yaml:"run_ms"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	Threads []ThreadSpec `yaml:"threads"`
}

// Default returns the configuration used when no file is given: two
// spinning user workers and one sleeper, default quanta.
func Default() *Config {
	return &Config{
		TickMillis: 1,
		RunMillis:  2000,
		LogLevel:   "info",
		LogFormat:  "text",
		Threads: []ThreadSpec{
			{Name: "spin-a", Priority: int(sched.LevelNormal), Kind: "user", Process: "demo", Behavior: "spin"},
			{Name: "spin-b", Priority: int(sched.LevelNormal), Kind: "user", Process: "demo", Behavior: "spin"},
			{Name: "napper", Priority: int(sched.LevelHigh), Kind: "user", Process: "demo", Behavior: "sleep:50:200"},
		},
	}
}

// Load reads a YAML config file, fills defaults, and validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	cfg.Threads = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if len(c.QuantumMillis) != 0 && len(c.QuantumMillis) != sched.NumLevels {
		return fmt.Errorf("quantum_ms needs %d entries, got %d", sched.NumLevels, len(c.QuantumMillis))
	}
	for i, q := range c.QuantumMillis {
		if q <= 0 {
			return fmt.Errorf("quantum_ms[%d] must be positive, got %d", i, q)
		}
	}
	if c.TickMillis <= 0 {
		return fmt.Errorf("tick_ms must be positive, got %d", c.TickMillis)
	}
	if c.RunMillis <= 0 {
		return fmt.Errorf("run_ms must be positive, got %d", c.RunMillis)
	}
	for _, ts := range c.Threads {
		if ts.Name == "" {
			return fmt.Errorf("thread without a name")
		}
		if !sched.Level(ts.Priority).Valid() {
			return fmt.Errorf("thread %q: invalid priority %d", ts.Name, ts.Priority)
		}
		switch ts.Kind {
		case "kernel":
			if ts.Process != "" {
				return fmt.Errorf("thread %q: kernel threads have no process", ts.Name)
			}
		case "user":
			if ts.Process == "" {
				return fmt.Errorf("thread %q: user threads need a process", ts.Name)
			}
		default:
			return fmt.Errorf("thread %q: kind must be kernel or user, got %q", ts.Name, ts.Kind)
		}
	}
	return nil
}

// SchedConfig converts the quantum table into a scheduler config.
func (c *Config) SchedConfig() sched.Config {
	out := sched.DefaultConfig()
	for i, q := range c.QuantumMillis {
		out.Quantum[i] = time.Duration(q) * time.Millisecond
	}
	return out
}
