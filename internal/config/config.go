// Package config loads runtime configuration from CUE or YAML files.
//
// Both formats are validated against the same embedded CUE schema, which
// also supplies every default. A configuration turns into runtime objects
// through NewAllocator and EngineOptions.
package config

import (
	"fmt"
	"runtime"
	"time"

	"cuelang.org/go/cue/token"
	"gopkg.in/yaml.v3"
)

// Config is a complete, defaulted configuration.
type Config struct {
	Pool     Pool    `json:"pool" yaml:"pool"`
	Queue    Queue   `json:"queue" yaml:"queue"`
	Threads  Threads `json:"threads" yaml:"threads"`
	Cranking string  `json:"cranking" yaml:"cranking"`
}

// Pool selects and sizes the cell allocator.
type Pool struct {
	Kind         string `json:"kind" yaml:"kind"`
	CellCapacity int    `json:"cellCapacity" yaml:"cellCapacity"`
	Capacity     int    `json:"capacity" yaml:"capacity"`
	MinimumSize  int    `json:"minimumSize" yaml:"minimumSize"`
	MaximumSize  int    `json:"maximumSize" yaml:"maximumSize"`
	Heaps        []Heap `json:"heaps" yaml:"heaps"`
}

// Heap is one member of a composite pool.
type Heap struct {
	Cells        int `json:"cells" yaml:"cells"`
	CellCapacity int `json:"cellCapacity" yaml:"cellCapacity"`
}

// Queue holds the defaults every input's queue starts from.
type Queue struct {
	Kind            string `json:"kind" yaml:"kind"`
	QueueCapacity   int    `json:"queueCapacity" yaml:"queueCapacity"`
	BacklogCapacity int    `json:"backlogCapacity" yaml:"backlogCapacity"`
	Overflow        string `json:"overflow" yaml:"overflow"`
}

// Threads sizes the pump.
type Threads struct {
	MinimumThreads int    `json:"minimumThreads" yaml:"minimumThreads"`
	MaximumThreads int    `json:"maximumThreads" yaml:"maximumThreads"`
	IdleTimeout    string `json:"idleTimeout" yaml:"idleTimeout"`
	PollInterval   string `json:"pollInterval" yaml:"pollInterval"`
}

// Error is a configuration problem, positioned when it came from a CUE
// file.
type Error struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Default returns the schema defaults: a fixed pool of 4096 cells of 64
// bytes, unbounded array queues under THROW and 1 to runtime.NumCPU()
// pump workers.
func Default() Config {
	_, def, err := schema()
	if err != nil {
		panic(fmt.Sprintf("config: embedded schema: %v", err))
	}
	c, err := decode(def)
	if err != nil {
		panic(fmt.Sprintf("config: embedded schema: %v", err))
	}
	return c
}

// MaxThreads resolves a MaximumThreads of 0 to runtime.NumCPU(), never
// below MinimumThreads.
func (t Threads) MaxThreads() int {
	n := t.MaximumThreads
	if n == 0 {
		n = runtime.NumCPU()
	}
	return max(n, t.MinimumThreads)
}

// Validate checks the constraints that span fields. The schema has
// already checked each field on its own.
func (c Config) Validate() error {
	switch c.Pool.Kind {
	case "dynamic":
		if c.Pool.MaximumSize < c.Pool.MinimumSize {
			return &Error{Field: "pool.maximumSize", Message: fmt.Sprintf("%d is below minimumSize %d", c.Pool.MaximumSize, c.Pool.MinimumSize)}
		}
	case "composite":
		if len(c.Pool.Heaps) == 0 || len(c.Pool.Heaps) > 256 {
			return &Error{Field: "pool.heaps", Message: fmt.Sprintf("a composite pool needs 1 to 256 heaps, got %d", len(c.Pool.Heaps))}
		}
	}
	if c.Threads.MaximumThreads != 0 && c.Threads.MaximumThreads < c.Threads.MinimumThreads {
		return &Error{Field: "threads.maximumThreads", Message: fmt.Sprintf("%d is below minimumThreads %d", c.Threads.MaximumThreads, c.Threads.MinimumThreads)}
	}
	for _, f := range []struct{ name, value string }{
		{"threads.idleTimeout", c.Threads.IdleTimeout},
		{"threads.pollInterval", c.Threads.PollInterval},
	} {
		d, err := time.ParseDuration(f.value)
		if err != nil {
			return &Error{Field: f.name, Message: err.Error()}
		}
		if d <= 0 {
			return &Error{Field: f.name, Message: "must be positive"}
		}
	}
	return nil
}

// YAML renders the configuration in the YAML file format.
func (c Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
