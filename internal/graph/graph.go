// Package graph provides the validated workflow model: structural
// well-formedness checks, topological ordering, and readiness computation.
package graph

import (
	"github.com/skillflow/orchestrator/pkg/types"
)

// Model is a validated graph with precomputed adjacency. It is immutable
// after New and safe for concurrent reads.
type Model struct {
	def   *types.Graph
	order []string // declaration order of node ids
	preds map[string][]string
	succs map[string][]string
}

// New validates the graph and builds its adjacency model. The first
// structural violation found is returned as a ValidationError.
func New(g *types.Graph) (*Model, error) {
	if err := Validate(g); err != nil {
		return nil, err
	}

	m := &Model{
		def:   g,
		order: make([]string, 0, len(g.Nodes)),
		preds: make(map[string][]string, len(g.Nodes)),
		succs: make(map[string][]string, len(g.Nodes)),
	}
	for i := range g.Nodes {
		m.order = append(m.order, g.Nodes[i].ID)
	}
	for _, e := range g.Edges {
		m.preds[e.To] = append(m.preds[e.To], e.From)
		m.succs[e.From] = append(m.succs[e.From], e.To)
	}
	return m, nil
}

// Validate checks structural well-formedness without mutating the graph:
// unique node ids, non-empty skill capabilities, edge endpoints that exist,
// no duplicate edges, input references backed by a node and an edge, and
// acyclicity. The first violation found is returned.
func Validate(g *types.Graph) error {
	ids := make(map[string]bool, len(g.Nodes))
	for i := range g.Nodes {
		n := &g.Nodes[i]
		if ids[n.ID] {
			return &DuplicateNodeError{ID: n.ID}
		}
		ids[n.ID] = true
		if n.Skill == "" {
			return &MissingCapabilityError{Node: n.ID}
		}
	}

	seen := make(map[types.Edge]bool, len(g.Edges))
	for _, e := range g.Edges {
		if !ids[e.From] {
			return &UnknownNodeError{ID: e.From}
		}
		if !ids[e.To] {
			return &UnknownNodeError{ID: e.To}
		}
		if seen[e] {
			return &DuplicateEdgeError{From: e.From, To: e.To}
		}
		seen[e] = true
	}

	// Every "<id>.output" input must name an existing node and be backed by
	// a declared edge from that node.
	for i := range g.Nodes {
		n := &g.Nodes[i]
		for _, in := range n.Inputs {
			src, ok := types.RefNodeID(in)
			if !ok {
				continue // literal
			}
			if !ids[src] || !seen[types.Edge{From: src, To: n.ID}] {
				return &DanglingInputError{Node: n.ID, Ref: in}
			}
		}
	}

	if path := findCycle(g); path != nil {
		return &CycleError{Path: path}
	}
	return nil
}

// findCycle runs a depth-first traversal and returns the node ids along the
// first back-edge cycle found, or nil if the graph is acyclic.
func findCycle(g *types.Graph) []string {
	succs := make(map[string][]string, len(g.Nodes))
	for _, e := range g.Edges {
		succs[e.From] = append(succs[e.From], e.To)
	}

	const (
		white = 0 // unvisited
		grey  = 1 // on stack
		black = 2 // finished
	)
	color := make(map[string]int, len(g.Nodes))
	var stack []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = grey
		stack = append(stack, id)
		for _, next := range succs[id] {
			switch color[next] {
			case grey:
				// Back-edge: slice the stack from the first occurrence.
				for i, v := range stack {
					if v == next {
						cycle = append(append([]string(nil), stack[i:]...), next)
						return true
					}
				}
			case white:
				if visit(next) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
		return false
	}

	for i := range g.Nodes {
		id := g.Nodes[i].ID
		if color[id] == white && visit(id) {
			return cycle
		}
	}
	return nil
}

// Definition returns the underlying graph definition.
func (m *Model) Definition() *types.Graph { return m.def }

// NodeIDs returns node ids in declaration order.
func (m *Model) NodeIDs() []string { return m.order }

// Predecessors returns the sources of a node's incoming edges.
func (m *Model) Predecessors(id string) []string { return m.preds[id] }

// Successors returns the targets of a node's outgoing edges.
func (m *Model) Successors(id string) []string { return m.succs[id] }

// TopologicalOrder returns a linear extension consistent with the edges.
// Ties among nodes with no remaining dependencies break by declaration
// order, so the result is stable across runs.
func (m *Model) TopologicalOrder() []string {
	remaining := make(map[string]int, len(m.order))
	for _, id := range m.order {
		remaining[id] = len(m.preds[id])
	}

	out := make([]string, 0, len(m.order))
	emitted := make(map[string]bool, len(m.order))
	for len(out) < len(m.order) {
		for _, id := range m.order {
			if emitted[id] || remaining[id] != 0 {
				continue
			}
			emitted[id] = true
			out = append(out, id)
			for _, next := range m.succs[id] {
				remaining[next]--
			}
		}
	}
	return out
}

// ReadySet returns, in declaration order, the Pending nodes whose every
// predecessor is Done. Root nodes are ready immediately. For any state that
// marks completions in dependency order, no two returned nodes have a direct
// or transitive dependency relationship.
func (m *Model) ReadySet(state map[string]types.NodeStatus) []string {
	var ready []string
	for _, id := range m.order {
		if state[id] != types.NodeStatusPending {
			continue
		}
		ok := true
		for _, p := range m.preds[id] {
			if state[p] != types.NodeStatusDone {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, id)
		}
	}
	return ready
}

// Descendants returns every node reachable from id via edges, in
// declaration order.
func (m *Model) Descendants(id string) []string {
	reach := make(map[string]bool)
	var walk func(string)
	walk = func(cur string) {
		for _, next := range m.succs[cur] {
			if !reach[next] {
				reach[next] = true
				walk(next)
			}
		}
	}
	walk(id)

	out := make([]string, 0, len(reach))
	for _, nid := range m.order {
		if reach[nid] {
			out = append(out, nid)
		}
	}
	return out
}
