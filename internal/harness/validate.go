package harness

import (
	"fmt"

	"github.com/roach88/cascade/internal/engine"
	"github.com/roach88/cascade/internal/ident"
	"github.com/roach88/cascade/internal/operand"
)

// Validation error codes (E200-E299)
const (
	ErrMissingField      = "E201" // required field is empty
	ErrInvalidName       = "E202" // reactor or endpoint name does not parse
	ErrDuplicateName     = "E203" // reactor or endpoint declared twice
	ErrUnknownEndpoint   = "E204" // reference to an undeclared endpoint
	ErrUnknownOp         = "E205" // op not understood by operand.Stack.Apply
	ErrInvalidSetting    = "E206" // bad overflow policy, queue kind or crank policy
	ErrInvalidValue      = "E207" // push value that does not decode
	ErrAlreadyConnected  = "E208" // endpoint linked by two connections
	ErrNegativeParameter = "E209" // negative capacity, repeat or max_steps
	ErrInvalidConfig     = "E210" // config block rejected by the config schema
)

// ValidationError is one problem in a scenario.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

type validator struct {
	errs    []ValidationError
	inputs  map[string]bool
	outputs map[string]bool
}

func (v *validator) add(code, field, format string, args ...any) {
	v.errs = append(v.errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...), Code: code})
}

// Validate checks a scenario and returns every problem found, in document
// order.
func Validate(sc *Scenario) []ValidationError {
	v := &validator{inputs: map[string]bool{}, outputs: map[string]bool{}}

	if sc.Name == "" {
		v.add(ErrMissingField, "name", "is required")
	}
	if len(sc.Reactors) == 0 {
		v.add(ErrMissingField, "reactors", "at least one reactor is required")
	}
	if sc.MaxSteps < 0 {
		v.add(ErrNegativeParameter, "max_steps", "must not be negative, got %d", sc.MaxSteps)
	}
	if _, err := sc.RuntimeConfig(); err != nil {
		v.add(ErrInvalidConfig, "config", "%v", err)
	}

	reactors := map[string]bool{}
	for i, rs := range sc.Reactors {
		field := fmt.Sprintf("reactors[%d]", i)
		if _, err := ident.Parse(rs.Name); err != nil {
			v.add(ErrInvalidName, field+".name", "%v", err)
		} else if reactors[rs.Name] {
			v.add(ErrDuplicateName, field+".name", "reactor %s declared twice", rs.Name)
		}
		reactors[rs.Name] = true
		v.reactor(field, rs)
	}

	connectedIn := map[string]bool{}
	connectedOut := map[string]bool{}
	for i, c := range sc.Connections {
		field := fmt.Sprintf("connections[%d]", i)
		if !v.outputs[c.From] {
			v.add(ErrUnknownEndpoint, field+".from", "no output %q", c.From)
		} else if connectedOut[c.From] {
			v.add(ErrAlreadyConnected, field+".from", "output %s is already connected", c.From)
		}
		if !v.inputs[c.To] {
			v.add(ErrUnknownEndpoint, field+".to", "no input %q", c.To)
		} else if connectedIn[c.To] {
			v.add(ErrAlreadyConnected, field+".to", "input %s is already connected", c.To)
		}
		connectedOut[c.From] = true
		connectedIn[c.To] = true
	}

	for i, s := range sc.Sends {
		field := fmt.Sprintf("sends[%d]", i)
		if !v.inputs[s.To] {
			v.add(ErrUnknownEndpoint, field+".to", "no input %q", s.To)
		}
		if len(s.Push) == 0 {
			v.add(ErrMissingField, field+".push", "at least one value is required")
		}
		if s.Repeat < 0 {
			v.add(ErrNegativeParameter, field+".repeat", "must not be negative, got %d", s.Repeat)
		}
		v.values(field+".push", s.Push)
	}

	for i, ref := range sc.Sinks {
		if !v.inputs[ref] {
			v.add(ErrUnknownEndpoint, fmt.Sprintf("sinks[%d]", i), "no input %q", ref)
		}
	}

	if sc.Expect != nil {
		v.expect(sc)
	}
	return v.errs
}

func (v *validator) reactor(field string, rs ReactorSpec) {
	if rs.Cranking != "" && rs.Cranking != "first-ready" && rs.Cranking != "all-ready" {
		v.add(ErrInvalidSetting, field+".cranking", "unknown crank policy %q", rs.Cranking)
	}

	local := map[string]bool{}
	for j, in := range rs.Inputs {
		f := fmt.Sprintf("%s.inputs[%d]", field, j)
		if v.endpointName(f+".name", in.Name, local) {
			v.inputs[rs.Name+"."+in.Name] = true
		}
		if in.Capacity < 0 {
			v.add(ErrNegativeParameter, f+".capacity", "must not be negative, got %d", in.Capacity)
		}
		if in.Overflow != "" {
			if _, err := engine.ParseOverflowPolicy(in.Overflow); err != nil {
				v.add(ErrInvalidSetting, f+".overflow", "%v", err)
			}
		}
		if in.Kind != "" {
			if _, err := engine.ParseQueueKind(in.Kind); err != nil {
				v.add(ErrInvalidSetting, f+".kind", "%v", err)
			}
		}
	}

	local = map[string]bool{}
	for j, name := range rs.Outputs {
		if v.endpointName(fmt.Sprintf("%s.outputs[%d]", field, j), name, local) {
			v.outputs[rs.Name+"."+name] = true
		}
	}

	local = map[string]bool{}
	for j, rx := range rs.Reactions {
		f := fmt.Sprintf("%s.reactions[%d]", field, j)
		v.endpointName(f+".name", rx.Name, local)
		for k, req := range rx.Requires {
			if !v.inputs[rs.Name+"."+req] {
				v.add(ErrUnknownEndpoint, fmt.Sprintf("%s.requires[%d]", f, k), "reactor %s has no input %q", rs.Name, req)
			}
		}
		for k, op := range rx.Ops {
			if !operand.HasOp(op) {
				v.add(ErrUnknownOp, fmt.Sprintf("%s.ops[%d]", f, k), "unknown op %q", op)
			}
		}
		v.values(f+".push", rx.Push)
	}
}

// endpointName checks a single-token name unique among seen and reports
// whether it is usable.
func (v *validator) endpointName(field, name string, seen map[string]bool) bool {
	if _, err := ident.NewToken(name); err != nil {
		v.add(ErrInvalidName, field, "%v", err)
		return false
	}
	if seen[name] {
		v.add(ErrDuplicateName, field, "%s declared twice", name)
		return false
	}
	seen[name] = true
	return true
}

func (v *validator) values(field string, vals []Value) {
	for i, val := range vals {
		if err := val.check(); err != nil {
			v.add(ErrInvalidValue, fmt.Sprintf("%s[%d]", field, i), "%v", err)
		}
	}
}

func (v *validator) expect(sc *Scenario) {
	reactions := map[string]bool{}
	for _, rs := range sc.Reactors {
		for _, rx := range rs.Reactions {
			reactions[rs.Name+"."+rx.Name] = true
		}
	}
	for _, ref := range sortedKeys(sc.Expect.Sinks) {
		if !v.inputs[ref] {
			v.add(ErrUnknownEndpoint, "expect.sinks."+ref, "no input %q", ref)
		}
	}
	for _, ref := range sortedKeys(sc.Expect.Fired) {
		if !reactions[ref] {
			v.add(ErrUnknownEndpoint, "expect.fired."+ref, "no reaction %q", ref)
		}
	}
	for _, ref := range sortedKeys(sc.Expect.Dropped) {
		if !v.inputs[ref] {
			v.add(ErrUnknownEndpoint, "expect.dropped."+ref, "no input %q", ref)
		}
	}
	for _, ref := range sortedKeys(sc.Expect.Rejected) {
		if !v.inputs[ref] {
			v.add(ErrUnknownEndpoint, "expect.rejected."+ref, "no input %q", ref)
		}
	}
}
