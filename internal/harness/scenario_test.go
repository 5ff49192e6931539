package harness

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cascade/internal/config"
	"github.com/roach88/cascade/internal/engine"
)

func codes(errs []ValidationError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Code + " " + e.Field
	}
	return out
}

func parse(t *testing.T, doc string) *Scenario {
	t.Helper()
	sc, err := ParseScenario([]byte(doc))
	require.NoError(t, err)
	return sc
}

func TestLoadScenario_Testdata(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)
	for _, p := range paths {
		sc, err := LoadScenario(p)
		require.NoError(t, err, p)
		assert.NotEmpty(t, sc.Name)
		assert.NotNil(t, sc.Expect, "%s has no expectations", p)
	}
}

func TestLoadScenario_Missing(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestParseScenario_UnknownField(t *testing.T) {
	_, err := ParseScenario([]byte(`
name: typo
reactor:
  - name: a
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "field reactor not found")
}

func TestParseScenario_ReportsEveryProblem(t *testing.T) {
	_, err := ParseScenario([]byte(`
name: broken
max_steps: -1
reactors:
  - name: a
    cranking: sometimes
    inputs:
      - {name: in, capacity: -2, overflow: SPILL, kind: ring}
      - {name: in}
    outputs: [out, "bad name"]
    reactions:
      - name: go
        requires: [in, missing]
        push: [{int: 1, long: 2}, {byte: 300}]
        ops: [addI, frobnicate]
  - name: a
connections:
  - {from: a.out, to: b.in}
  - {from: a.out, to: a.in}
sends:
  - {to: a.in, repeat: -1}
sinks: [a.nowhere]
expect:
  fired:
    a.stop: 1
  dropped:
    b.in: 1
`))
	require.Error(t, err)
	var invalid *InvalidScenarioError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "broken", invalid.Scenario)
	assert.Equal(t, []string{
		"E209 max_steps",
		"E206 reactors[0].cranking",
		"E209 reactors[0].inputs[0].capacity",
		"E206 reactors[0].inputs[0].overflow",
		"E206 reactors[0].inputs[0].kind",
		"E203 reactors[0].inputs[1].name",
		"E202 reactors[0].outputs[1]",
		"E204 reactors[0].reactions[0].requires[1]",
		"E205 reactors[0].reactions[0].ops[1]",
		"E207 reactors[0].reactions[0].push[0]",
		"E207 reactors[0].reactions[0].push[1]",
		"E203 reactors[1].name",
		"E204 connections[0].to",
		"E208 connections[1].from",
		"E201 sends[0].push",
		"E209 sends[0].repeat",
		"E204 sinks[0]",
		"E204 expect.fired.a.stop",
		"E204 expect.dropped.b.in",
	}, codes(invalid.Errors))
	assert.Contains(t, err.Error(), `[E207] reactors[0].reactions[0].push[1]: byte: 300 out of range [0, 255]`)
}

func TestValidate_Minimal(t *testing.T) {
	errs := Validate(&Scenario{})
	assert.Equal(t, []string{"E201 name", "E201 reactors"}, codes(errs))

	errs = Validate(&Scenario{Name: "x", Reactors: []ReactorSpec{{Name: "a..b"}}})
	require.Len(t, errs, 1)
	assert.Equal(t, ErrInvalidName, errs[0].Code)
	assert.Equal(t, "reactors[0].name", errs[0].Field)
}

func TestValidate_Config(t *testing.T) {
	_, err := ParseScenario([]byte(`
name: bad-config
config:
  queue:
    overflow: SOMETIMES
reactors:
  - name: a
`))
	var invalid *InvalidScenarioError
	require.ErrorAs(t, err, &invalid)
	require.Len(t, invalid.Errors, 1)
	assert.Equal(t, ErrInvalidConfig, invalid.Errors[0].Code)
	assert.Equal(t, "config", invalid.Errors[0].Field)
}

func TestScenario_RuntimeConfig(t *testing.T) {
	sc := parse(t, `
name: tuned
config:
  queue:
    queueCapacity: 4
    overflow: DROP_NEWEST
reactors:
  - name: a
    inputs: [{name: in}]
`)
	cfg, err := sc.RuntimeConfig()
	require.NoError(t, err)
	opts, err := cfg.EngineOptions()
	require.NoError(t, err)

	e := engine.New(append(opts, engine.WithThreads(0, 0))...)
	in := e.NewReactor(engine.WithName("probe")).NewInput("in")
	assert.Equal(t, 4, in.Capacity())
	assert.Equal(t, engine.DropNewest, in.Policy())

	plain := parse(t, "name: plain\nreactors: [{name: a}]\n")
	def, err := plain.RuntimeConfig()
	require.NoError(t, err)
	assert.Equal(t, 0, plain.MaxSteps)
	assert.Equal(t, DefaultMaxSteps, plain.maxSteps())
	assert.Equal(t, config.Default(), def)
}

func TestSplitEndpoint(t *testing.T) {
	tests := []struct {
		ref, reactor, endpoint string
		ok                     bool
	}{
		{"a.in", "a", "in", true},
		{"pipeline.stage1.out", "pipeline.stage1", "out", true},
		{"noDot", "", "", false},
		{".in", "", "", false},
		{"a.", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			r, e, ok := splitEndpoint(tt.ref)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.reactor, r)
			assert.Equal(t, tt.endpoint, e)
		})
	}
}
