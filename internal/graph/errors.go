package graph

import (
	"fmt"
	"strings"
)

// ValidationError is implemented by every structural violation reported by
// Validate. Validation errors are always fatal to a run and never retried.
type ValidationError interface {
	error
	validation()
}

// CycleError reports a dependency cycle reachable via the graph's edges.
type CycleError struct {
	Path []string // node ids along the cycle, first == last
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cycle detected: %s", strings.Join(e.Path, " -> "))
}

// UnknownNodeError reports an edge endpoint that references no declared node.
type UnknownNodeError struct {
	ID string
}

func (e *UnknownNodeError) Error() string {
	return fmt.Sprintf("edge references unknown node %q", e.ID)
}

// DuplicateNodeError reports two nodes declared with the same id.
type DuplicateNodeError struct {
	ID string
}

func (e *DuplicateNodeError) Error() string {
	return fmt.Sprintf("duplicate node id %q", e.ID)
}

// DuplicateEdgeError reports the same edge declared twice.
type DuplicateEdgeError struct {
	From, To string
}

func (e *DuplicateEdgeError) Error() string {
	return fmt.Sprintf("duplicate edge %s -> %s", e.From, e.To)
}

// DanglingInputError reports an "<id>.output" input reference with no
// matching node or no matching edge.
type DanglingInputError struct {
	Node string // node declaring the input
	Ref  string // the offending reference
}

func (e *DanglingInputError) Error() string {
	return fmt.Sprintf("node %q input %q has no matching node and edge", e.Node, e.Ref)
}

// MissingCapabilityError reports a node with an empty skill reference.
type MissingCapabilityError struct {
	Node string
}

func (e *MissingCapabilityError) Error() string {
	return fmt.Sprintf("node %q has no skill capability", e.Node)
}

func (*CycleError) validation()             {}
func (*UnknownNodeError) validation()       {}
func (*DuplicateNodeError) validation()     {}
func (*DuplicateEdgeError) validation()     {}
func (*DanglingInputError) validation()     {}
func (*MissingCapabilityError) validation() {}
