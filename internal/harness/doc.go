// Package harness runs reactor topologies described in YAML scenarios.
//
// # Scenario Format
//
//	name: doubler
//	description: "Doubles every int it receives"
//	reactors:
//	  - name: doubler
//	    inputs: [{name: in}]
//	    outputs: [out]
//	    reactions:
//	      - name: double
//	        requires: [in]
//	        push: [{int: 2}]
//	        ops: [mulI]
//	  - name: sink
//	    inputs: [{name: in, capacity: 4, overflow: DROP_OLDEST}]
//	connections:
//	  - {from: doubler.out, to: sink.in}
//	sends:
//	  - {to: doubler.in, push: [{int: 21}]}
//	sinks: [sink.in]
//	expect:
//	  sinks:
//	    sink.in: ["[int:42]"]
//
// A reaction polls one stack from each required input. The first stack is
// the base and the top operand of every other one is pushed onto it. The
// push constants follow, then the ops run in order (see operand.Stack.Apply)
// and the result goes to every connected output. A reaction without
// requires is always ready, so it should only appear on reactors that
// never get cranked to exhaustion.
//
// Endpoints are written reactor.endpoint; the reactor part may itself
// contain dots.
//
// # Execution
//
// Deterministic mode (the default) runs without a pump: the harness seeds
// the sends and cranks every reactor in creation order until a pass fires
// nothing, with a logical clock and reactor ids seeded from the scenario
// name. Traces are identical from run to run, which is what golden files
// compare.
//
// Pumped mode runs the same topology on the configured worker pool and
// waits until the topology is quiescent. Sink contents are comparable
// across modes only where a sink has a single upstream path.
package harness
