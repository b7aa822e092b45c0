// Package contextstore holds the shared execution context for one run:
// per-node outputs, the original task, and the global context visible to
// every node.
package contextstore

import (
	"errors"
	"fmt"
	"sync"

	"github.com/skillflow/orchestrator/pkg/types"
)

// Invariant-violation errors. Both indicate a scheduling bug rather than a
// recoverable condition and are fatal to the run.
var (
	// ErrUndefinedReference is returned by Get for a key that was never
	// written. Distinct from a key written with an empty value.
	ErrUndefinedReference = errors.New("undefined context reference")

	// ErrDuplicateWrite is returned by Put when a key is already set.
	// Outputs are write-once; a second write means a node was dispatched
	// twice.
	ErrDuplicateWrite = errors.New("duplicate context write")

	// ErrUnresolvedInput is returned by SnapshotFor when a declared
	// reference is not yet available. Unreachable under correct scheduling.
	ErrUnresolvedInput = errors.New("unresolved input reference")
)

// Bundle is the resolved input set handed to a skill invocation.
type Bundle struct {
	Task   string                 `json:"task"`
	Global map[string]interface{} `json:"global_context,omitempty"`
	Inputs []interface{}          `json:"inputs,omitempty"`
	Config map[string]string      `json:"config,omitempty"`
}

// Store is the per-run context. Single writer at a time, many readers;
// writes are serialized through the mutex.
type Store struct {
	mu      sync.RWMutex
	task    string
	global  map[string]interface{}
	outputs map[string]interface{}
}

// New creates a context store seeded with the original task and an optional
// global context. The task is immutable for the lifetime of the run.
func New(task string, global map[string]interface{}) *Store {
	g := make(map[string]interface{}, len(global))
	for k, v := range global {
		g[k] = v
	}
	return &Store{
		task:    task,
		global:  g,
		outputs: make(map[string]interface{}),
	}
}

// Task returns the original request this run was started with.
func (s *Store) Task() string { return s.task }

// Put records a node output under key ("<node-id>.output"). Each key may be
// written exactly once.
func (s *Store) Put(key string, value interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.outputs[key]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateWrite, key)
	}
	s.outputs[key] = value
	return nil
}

// Get returns the stored output for key.
func (s *Store) Get(key string) (interface{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.outputs[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUndefinedReference, key)
	}
	return v, nil
}

// SnapshotFor assembles the input bundle for a node about to run: declared
// references resolve against current context, literals pass through
// verbatim, and the task and global context are included unchanged.
func (s *Store) SnapshotFor(node *types.Node) (*Bundle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b := &Bundle{
		Task:   s.task,
		Global: make(map[string]interface{}, len(s.global)),
		Config: node.Config,
	}
	for k, v := range s.global {
		b.Global[k] = v
	}

	for _, in := range node.Inputs {
		if src, ok := types.RefNodeID(in); ok {
			v, exists := s.outputs[types.OutputKey(src)]
			if !exists {
				return nil, fmt.Errorf("%w: node %q needs %s", ErrUnresolvedInput, node.ID, in)
			}
			b.Inputs = append(b.Inputs, v)
			continue
		}
		b.Inputs = append(b.Inputs, in)
	}
	return b, nil
}

// Outputs returns a copy of every output written so far.
func (s *Store) Outputs() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]interface{}, len(s.outputs))
	for k, v := range s.outputs {
		out[k] = v
	}
	return out
}
