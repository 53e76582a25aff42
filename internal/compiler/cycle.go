package compiler

import (
	"strings"

	"github.com/roach88/formwalk/internal/expr"
	"github.com/roach88/formwalk/internal/ir"
)

// CalculateCycle is a set of calculated questions whose expressions
// depend on each other.
type CalculateCycle struct {
	Path  []string `json:"path"`  // Cycle path: ["a", "b", "a"]
	Field string   `json:"field"` // Field of the first question on the path
}

// AnalyzeCalculateCycles finds cycles among calculate expressions.
//
// The algorithm:
//  1. Build question -> calculated questions it reads, from expression refs
//  2. Use Tarjan's algorithm to find strongly connected components
//  3. Report each SCC with size > 1 or a self-loop
//
// Questions are visited in declaration order so results are stable.
// Expressions that fail to parse are skipped; Validate reports those.
// A reference to this is not an edge: a question reading its own
// current value may still converge, and the engine bounds evaluation.
func AnalyzeCalculateCycles(def *ir.FormDef) []CalculateCycle {
	graph, order, fields := buildCalculateGraph(def.Body)
	if len(order) == 0 {
		return nil
	}

	var cycles []CalculateCycle
	for _, scc := range tarjanSCC(graph, order) {
		if len(scc) > 1 || hasSelfLoop(scc[0], graph) {
			path := reconstructCyclePath(earliestFirst(scc, order), graph)
			cycles = append(cycles, CalculateCycle{Path: path, Field: fields[path[0]]})
		}
	}
	return cycles
}

// dependencyGraph maps question name -> calculated questions it reads.
type dependencyGraph map[string][]string

func buildCalculateGraph(body []*ir.Node) (dependencyGraph, []string, map[string]string) {
	graph := make(dependencyGraph)
	fields := map[string]string{}
	var order []string

	var collect func(nodes []*ir.Node, parent string)
	collect = func(nodes []*ir.Node, parent string) {
		for _, n := range nodes {
			field := parent + "." + n.Name
			if n.Type == ir.NodeQuestion && n.Calculate != "" {
				if _, seen := fields[n.Name]; !seen {
					fields[n.Name] = field + ".calculate"
					order = append(order, n.Name)
				}
			}
			collect(n.Children, field)
		}
	}
	collect(body, "form")

	var link func(nodes []*ir.Node)
	link = func(nodes []*ir.Node) {
		for _, n := range nodes {
			if n.Type == ir.NodeQuestion && n.Calculate != "" {
				if x, err := expr.Parse(n.Calculate); err == nil {
					if graph[n.Name] == nil {
						graph[n.Name] = []string{}
					}
					for _, ref := range x.Refs() {
						if _, calculated := fields[ref]; calculated && ref != expr.This {
							graph[n.Name] = append(graph[n.Name], ref)
						}
					}
				}
			}
			link(n.Children)
		}
	}
	link(body)

	return graph, order, fields
}

// hasSelfLoop checks if a node has an edge to itself.
func hasSelfLoop(node string, graph dependencyGraph) bool {
	for _, neighbor := range graph[node] {
		if neighbor == node {
			return true
		}
	}
	return false
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
//
// Returns a list of SCCs, where each SCC is a list of question names.
// Single-node SCCs without self-loops are NOT cycles.
func tarjanSCC(graph dependencyGraph, order []string) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// v is a root node: pop the stack and emit an SCC
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

	for _, node := range order {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}

	return sccs
}

// earliestFirst rotates scc so the earliest-declared member leads.
func earliestFirst(scc []string, order []string) []string {
	member := make(map[string]bool, len(scc))
	for _, n := range scc {
		member[n] = true
	}
	for _, n := range order {
		if member[n] {
			out := []string{n}
			for _, m := range scc {
				if m != n {
					out = append(out, m)
				}
			}
			return out
		}
	}
	return scc
}

// reconstructCyclePath builds a cycle path from an SCC.
//
// Starts at the first node in the SCC and follows edges to other members
// until it returns to the start node.
func reconstructCyclePath(scc []string, graph dependencyGraph) []string {
	if len(scc) == 0 {
		return []string{}
	}

	sccSet := make(map[string]bool)
	for _, node := range scc {
		sccSet[node] = true
	}

	start := scc[0]
	current := start
	path := []string{current}
	visited := make(map[string]bool)

	for {
		visited[current] = true

		var next string
		for _, neighbor := range graph[current] {
			if sccSet[neighbor] && (!visited[neighbor] || neighbor == start) {
				next = neighbor
				break
			}
		}
		if next == "" {
			break
		}

		path = append(path, next)
		if next == start {
			break
		}
		current = next
	}

	return path
}

func (v *validator) checkCalculateCycles(def *ir.FormDef) {
	for _, c := range AnalyzeCalculateCycles(def) {
		v.add(c.Field, ErrCalculateCycle, "calculation cycle: %s", strings.Join(c.Path, " -> "))
	}
}
