// Package types provides shared types for the skillflow orchestrator.
package types

import "strings"

// OutputSuffix is appended to a node ID to form its context output key.
const OutputSuffix = ".output"

// Graph is a named workflow definition: nodes bound to skills, plus the
// dependency edges between them. A Graph is immutable once built; execution
// state lives elsewhere so the same definition can be re-run.
type Graph struct {
	ID    string `json:"id"`
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges,omitempty"`
}

// Node is a unit of work bound to a named skill capability.
// Inputs are either literal values or references of the form "<node-id>.output".
type Node struct {
	ID     string            `json:"id"`
	Skill  string            `json:"skill"`
	Inputs []string          `json:"inputs,omitempty"`
	Config map[string]string `json:"config,omitempty"`
}

// Edge means the To node depends on the From node completing first.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// OutputKey returns the context key a node's output is stored under.
func OutputKey(nodeID string) string {
	return nodeID + OutputSuffix
}

// RefNodeID reports whether an input is an output reference, and if so
// which node it refers to.
func RefNodeID(input string) (string, bool) {
	if !strings.HasSuffix(input, OutputSuffix) {
		return "", false
	}
	id := strings.TrimSuffix(input, OutputSuffix)
	if id == "" {
		return "", false
	}
	return id, true
}

// NodeByID returns the node with the given ID, or nil.
func (g *Graph) NodeByID(id string) *Node {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return &g.Nodes[i]
		}
	}
	return nil
}

// Clone returns a deep copy of the graph. Used by template instantiation,
// which must never mutate the stored definition.
func (g *Graph) Clone() *Graph {
	out := &Graph{ID: g.ID}
	out.Nodes = make([]Node, len(g.Nodes))
	for i, n := range g.Nodes {
		cp := Node{ID: n.ID, Skill: n.Skill}
		if n.Inputs != nil {
			cp.Inputs = append([]string(nil), n.Inputs...)
		}
		if n.Config != nil {
			cp.Config = make(map[string]string, len(n.Config))
			for k, v := range n.Config {
				cp.Config[k] = v
			}
		}
		out.Nodes[i] = cp
	}
	if g.Edges != nil {
		out.Edges = append([]Edge(nil), g.Edges...)
	}
	return out
}
