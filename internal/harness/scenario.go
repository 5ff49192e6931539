package harness

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/cascade/internal/config"
)

// DefaultMaxSteps bounds the crank passes of a deterministic run.
const DefaultMaxSteps = 1000

// Scenario describes a topology, the messages seeded into it and what it
// is expected to produce.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// Config overrides the runtime configuration, in the YAML config file
	// format. Thread settings only apply to pumped runs.
	Config *yaml.Node `yaml:"config,omitempty"`

	Reactors    []ReactorSpec `yaml:"reactors"`
	Connections []Connection  `yaml:"connections,omitempty"`
	Sends       []Send        `yaml:"sends,omitempty"`

	// Sinks are inputs whose queued stacks are reported at the end.
	Sinks []string `yaml:"sinks,omitempty"`

	// MaxSteps bounds the crank passes of a deterministic run. Zero means
	// DefaultMaxSteps.
	MaxSteps int `yaml:"max_steps,omitempty"`

	Expect *Expect `yaml:"expect,omitempty"`
}

// ReactorSpec declares one reactor.
type ReactorSpec struct {
	Name      string         `yaml:"name"`
	Cranking  string         `yaml:"cranking,omitempty"`
	Inputs    []InputSpec    `yaml:"inputs,omitempty"`
	Outputs   []string       `yaml:"outputs,omitempty"`
	Reactions []ReactionSpec `yaml:"reactions,omitempty"`
}

// InputSpec declares an input. Zero fields take the configured queue
// defaults.
type InputSpec struct {
	Name     string `yaml:"name"`
	Capacity int    `yaml:"capacity,omitempty"`
	Overflow string `yaml:"overflow,omitempty"`
	Kind     string `yaml:"kind,omitempty"`
}

// ReactionSpec declares a reaction; see the package documentation for
// what its body does.
type ReactionSpec struct {
	Name     string   `yaml:"name"`
	Requires []string `yaml:"requires,omitempty"`
	Push     []Value  `yaml:"push,omitempty"`
	Ops      []string `yaml:"ops,omitempty"`
}

// Connection links reactor.output to reactor.input.
type Connection struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// Send seeds one stack into an input. Push lists operands bottom first.
type Send struct {
	To     string  `yaml:"to"`
	Push   []Value `yaml:"push"`
	Repeat int     `yaml:"repeat,omitempty"`

	// Drain cranks the topology to quiescence after this send, before the
	// next one is seeded.
	Drain bool `yaml:"drain,omitempty"`
}

// Expect lists the checks made after a run. Keys of Fired are
// reactor.reaction; keys of Dropped and Rejected are reactor.input.
type Expect struct {
	Sinks      map[string][]string `yaml:"sinks,omitempty"`
	Fired      map[string]int      `yaml:"fired,omitempty"`
	Dropped    map[string]int      `yaml:"dropped,omitempty"`
	Rejected   map[string]int      `yaml:"rejected,omitempty"`
	Exceptions *int                `yaml:"exceptions,omitempty"`
}

// LoadScenario reads and validates a scenario file. Unknown fields are
// rejected so typos do not go unnoticed.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates a scenario document.
func ParseScenario(data []byte) (*Scenario, error) {
	var sc Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&sc); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if errs := Validate(&sc); len(errs) > 0 {
		return nil, &InvalidScenarioError{Scenario: sc.Name, Errors: errs}
	}
	return &sc, nil
}

// InvalidScenarioError carries every problem Validate found.
type InvalidScenarioError struct {
	Scenario string
	Errors   []ValidationError
}

func (e *InvalidScenarioError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, ve := range e.Errors {
		msgs[i] = ve.Error()
	}
	return fmt.Sprintf("invalid scenario %q: %s", e.Scenario, strings.Join(msgs, "; "))
}

// RuntimeConfig resolves the scenario's config block on top of the
// defaults.
func (sc *Scenario) RuntimeConfig() (config.Config, error) {
	if sc.Config == nil {
		return config.Default(), nil
	}
	data, err := yaml.Marshal(sc.Config)
	if err != nil {
		return config.Config{}, fmt.Errorf("scenario config: %w", err)
	}
	return config.ParseYAML(data)
}

func (sc *Scenario) maxSteps() int {
	if sc.MaxSteps > 0 {
		return sc.MaxSteps
	}
	return DefaultMaxSteps
}

// splitEndpoint splits reactor.endpoint at the last dot.
func splitEndpoint(ref string) (reactor, endpoint string, ok bool) {
	i := strings.LastIndex(ref, ".")
	if i <= 0 || i == len(ref)-1 {
		return "", "", false
	}
	return ref[:i], ref[i+1:], true
}
