package compiler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/orb-framework/orb-sub002/internal/schema"
)

// CycleWarning represents a shortcut loop between schemas.
//
// Loops are warnings, not errors: a registry that declares one still
// compiles, and only queries that name a shortcut on the loop fail
// during expansion.
type CycleWarning struct {
	Path    []string `json:"path"`    // Cycle path: ["A.x", "B.y", "A.x"]
	Message string   `json:"message"` // Human-readable description
	Level   string   `json:"level"`   // "warning" or "info"
}

// AnalyzeShortcuts performs static cycle analysis on shortcut columns.
//
// Every shortcut column is a node named "Schema.column". Following a
// shortcut path through references and collectors, each segment that is
// itself a shortcut column adds an edge to that column. Strongly
// connected components of the graph are loops expansion cannot finish.
//
// A registry without loops returns an empty warning list.
func AnalyzeShortcuts(reg *schema.Registry) []CycleWarning {
	graph := buildShortcutGraph(reg)
	if len(graph) == 0 {
		return []CycleWarning{}
	}

	sccs := tarjanSCC(graph)

	warnings := []CycleWarning{}
	for _, scc := range sccs {
		if len(scc) > 1 || (len(scc) == 1 && hasSelfLoop(scc[0], graph)) {
			sort.Strings(scc)
			warnings = append(warnings, cycleSCCToWarning(scc, graph))
		}
	}
	sort.Slice(warnings, func(i, j int) bool {
		return warnings[i].Path[0] < warnings[j].Path[0]
	})
	return warnings
}

// dependencyGraph maps a shortcut node to the shortcut nodes its path uses.
type dependencyGraph map[string][]string

func shortcutNode(c *schema.Column) string {
	return c.Schema() + "." + c.Name
}

// buildShortcutGraph constructs the shortcut dependency graph.
//
// Segments that do not resolve end the walk silently; Validate reports
// them.
func buildShortcutGraph(reg *schema.Registry) dependencyGraph {
	graph := make(dependencyGraph)
	for _, name := range reg.Names() {
		for _, col := range reg.MustSchema(name).Columns() {
			if col.Shortcut == "" {
				continue
			}
			node := shortcutNode(col)
			graph[node] = append(graph[node], shortcutEdges(reg, name, col.ShortcutPath())...)
		}
	}
	return graph
}

func shortcutEdges(reg *schema.Registry, model string, path []string) []string {
	edges := []string{}
	current := model
	for i, seg := range path {
		m, err := reg.Member(current, seg)
		if err != nil {
			break
		}
		if m.Column != nil && m.Column.Shortcut != "" {
			edges = append(edges, shortcutNode(m.Column))
		}
		if i == len(path)-1 {
			break
		}
		switch {
		case m.Column != nil && m.Column.IsReference():
			current = m.Column.Reference
		case m.Collector != nil:
			if current, err = reg.CollectorTarget(m.Collector); err != nil {
				return edges
			}
		default:
			return edges
		}
	}
	return edges
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
// Returns a list of SCCs, where each SCC is a list of shortcut nodes.
// Single-node SCCs without self-loops are NOT cycles.
func tarjanSCC(graph dependencyGraph) [][]string {
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
		// Set the depth index for v
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		// Consider successors of v
		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				// Successor w has not yet been visited; recurse on it
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				// Successor w is on stack and hence in the current SCC
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// If v is a root node, pop the stack and create an SCC
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

	// Visit all nodes in a stable order
	nodes := make([]string, 0, len(graph))
	for node := range graph {
		nodes = append(nodes, node)
	}
	sort.Strings(nodes)
	for _, node := range nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}

	return sccs
}

// cycleSCCToWarning converts an SCC to a CycleWarning.
//
// The path shows the cycle sequence by reconstructing a path through the SCC.
// For self-loops, the path is [node, node].
// For multi-node cycles, the path shows a cycle traversal.
func cycleSCCToWarning(scc []string, graph dependencyGraph) CycleWarning {
	if len(scc) == 1 {
		node := scc[0]
		return CycleWarning{
			Path:    []string{node, node},
			Message: fmt.Sprintf("Shortcut refers to itself: %s -> %s", node, node),
			Level:   "warning",
		}
	}

	// Multi-node cycle - reconstruct a cycle path
	path := reconstructCyclePath(scc, graph)

	return CycleWarning{
		Path:    path,
		Message: fmt.Sprintf("Shortcut loop: %s", strings.Join(path, " -> ")),
		Level:   "warning",
	}
}

// reconstructCyclePath builds a cycle path from an SCC.
//
// Strategy: Start at first node in SCC, follow edges to other SCC members,
// continue until we return to start node.
func reconstructCyclePath(scc []string, graph dependencyGraph) []string {
	if len(scc) == 0 {
		return []string{}
	}

	// Build set of SCC members for fast lookup
	sccSet := make(map[string]bool)
	for _, node := range scc {
		sccSet[node] = true
	}

	// Start at first node
	start := scc[0]
	current := start
	path := []string{current}
	visited := make(map[string]bool)

	// Follow edges within SCC until we return to start
	for {
		visited[current] = true

		// Find next SCC member reachable from current
		var next string
		for _, neighbor := range graph[current] {
			if sccSet[neighbor] && (!visited[neighbor] || neighbor == start) {
				next = neighbor
				break
			}
		}

		if next == "" {
			// No more unvisited neighbors in SCC
			break
		}

		path = append(path, next)

		if next == start {
			// Completed the cycle
			break
		}

		current = next
	}

	return path
}
