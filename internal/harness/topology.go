package harness

import (
	"fmt"
	"slices"
	"strings"
)

// CycleWarning reports reactors that feed each other. Feedback loops are
// legal; they are reported because a loop that never drops a message
// keeps the topology busy until the step limit ends the run.
type CycleWarning struct {
	Path    []string `json:"path"` // ["a", "b", "a"]
	Message string   `json:"message"`
}

// topology is the reactor-level connection graph in declaration order.
type topology struct {
	nodes []string
	edges map[string][]string
}

func buildTopology(sc *Scenario) topology {
	t := topology{edges: map[string][]string{}}
	for _, rs := range sc.Reactors {
		t.nodes = append(t.nodes, rs.Name)
	}
	for _, c := range sc.Connections {
		from, _, ok1 := splitEndpoint(c.From)
		to, _, ok2 := splitEndpoint(c.To)
		if ok1 && ok2 {
			t.edges[from] = append(t.edges[from], to)
		}
	}
	return t
}

// AnalyzeCycles finds every feedback loop between reactors using Tarjan's
// strongly connected components. Results follow declaration order.
func AnalyzeCycles(sc *Scenario) []CycleWarning {
	t := buildTopology(sc)
	order := make(map[string]int, len(t.nodes))
	for i, n := range t.nodes {
		order[n] = i
	}

	var warnings []CycleWarning
	for _, scc := range t.components() {
		if len(scc) == 1 && !t.hasEdge(scc[0], scc[0]) {
			continue
		}
		path := t.cyclePath(scc, order)
		warnings = append(warnings, CycleWarning{
			Path:    path,
			Message: fmt.Sprintf("feedback loop: %s", strings.Join(path, " -> ")),
		})
	}
	// Tarjan emits components in reverse topological order.
	slices.SortFunc(warnings, func(a, b CycleWarning) int {
		return order[a.Path[0]] - order[b.Path[0]]
	})
	return warnings
}

func (t topology) hasEdge(from, to string) bool {
	for _, n := range t.edges[from] {
		if n == to {
			return true
		}
	}
	return false
}

func (t topology) components() [][]string {
	var (
		index   int
		stack   []string
		indices = map[string]int{}
		lowlink = map[string]int{}
		onStack = map[string]bool{}
		sccs    [][]string
	)

	var connect func(string)
	connect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range t.edges[v] {
			if _, seen := indices[w]; !seen {
				connect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for _, n := range t.nodes {
		if _, seen := indices[n]; !seen {
			connect(n)
		}
	}
	return sccs
}

// cyclePath walks from the earliest declared member of scc along edges
// that stay inside it until it returns to the start.
func (t topology) cyclePath(scc []string, order map[string]int) []string {
	members := make(map[string]bool, len(scc))
	start := scc[0]
	for _, n := range scc {
		members[n] = true
		if order[n] < order[start] {
			start = n
		}
	}
	if len(scc) == 1 {
		return []string{start, start}
	}

	path := []string{start}
	visited := map[string]bool{start: true}
	cur := start
	for {
		next := ""
		for _, w := range t.edges[cur] {
			if w == start && len(path) > 1 {
				return append(path, start)
			}
			if members[w] && !visited[w] && next == "" {
				next = w
			}
		}
		if next == "" {
			// Dead end inside the component; close the loop as written.
			return append(path, start)
		}
		visited[next] = true
		path = append(path, next)
		cur = next
	}
}
