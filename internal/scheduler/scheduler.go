// Package scheduler owns per-run execution state and decides what may run
// concurrently.
package scheduler

import (
	"errors"
	"fmt"
	"sync"

	"github.com/skillflow/orchestrator/internal/contextstore"
	"github.com/skillflow/orchestrator/internal/graph"
	"github.com/skillflow/orchestrator/pkg/types"
)

// ErrBadTransition reports a state transition that the lifecycle does not
// allow, e.g. completing a node that was never dispatched.
var ErrBadTransition = errors.New("invalid node state transition")

// Scheduler drives NodeStatus transitions for one run. All mutations are
// serialized through its mutex, so completions may arrive from any
// goroutine in any interleaving.
type Scheduler struct {
	model  *graph.Model
	ctx    *contextstore.Store
	policy types.FailurePolicy

	mu         sync.Mutex
	state      map[string]types.NodeStatus
	nodeErrs   map[string]string
	failedNode string // first failure, fail-fast surfaces this
}

// New creates a scheduler with every node Pending.
func New(model *graph.Model, ctx *contextstore.Store, policy types.FailurePolicy) *Scheduler {
	if policy == "" {
		policy = types.PolicyFailFast
	}
	state := make(map[string]types.NodeStatus, len(model.NodeIDs()))
	for _, id := range model.NodeIDs() {
		state[id] = types.NodeStatusPending
	}
	return &Scheduler{
		model:    model,
		ctx:      ctx,
		policy:   policy,
		state:    state,
		nodeErrs: make(map[string]string),
	}
}

// Advance recomputes readiness and returns the current Ready set in
// declaration order. Pending nodes with a Failed or Skipped predecessor
// become Skipped instead of Ready (merge-point rule). Advance is
// idempotent: without intervening completions it returns the same set.
func (s *Scheduler) Advance() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.propagateSkips()

	for _, id := range s.model.ReadySet(s.state) {
		s.state[id] = types.NodeStatusReady
	}

	var ready []string
	for _, id := range s.model.NodeIDs() {
		if s.state[id] == types.NodeStatusReady {
			ready = append(ready, id)
		}
	}
	return ready
}

// propagateSkips marks Pending nodes unreachable through a Failed or
// Skipped predecessor as Skipped. Caller holds the mutex.
func (s *Scheduler) propagateSkips() {
	for changed := true; changed; {
		changed = false
		for _, id := range s.model.NodeIDs() {
			if s.state[id] != types.NodeStatusPending {
				continue
			}
			for _, p := range s.model.Predecessors(id) {
				if ps := s.state[p]; ps == types.NodeStatusFailed || ps == types.NodeStatusSkipped {
					s.state[id] = types.NodeStatusSkipped
					changed = true
					break
				}
			}
		}
	}
}

// MarkRunning transitions a node from Ready to Running.
func (s *Scheduler) MarkRunning(nodeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state[nodeID] != types.NodeStatusReady {
		return fmt.Errorf("%w: %s is %s, want ready", ErrBadTransition, nodeID, s.state[nodeID])
	}
	s.state[nodeID] = types.NodeStatusRunning
	return nil
}

// MarkDone records a successful completion: the output is written once to
// the context store under "<nodeID>.output" and dependents become eligible
// on the next Advance. Valid only from Running.
func (s *Scheduler) MarkDone(nodeID string, output interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state[nodeID] != types.NodeStatusRunning {
		return fmt.Errorf("%w: %s is %s, want running", ErrBadTransition, nodeID, s.state[nodeID])
	}
	if err := s.ctx.Put(types.OutputKey(nodeID), output); err != nil {
		return err
	}
	s.state[nodeID] = types.NodeStatusDone
	return nil
}

// MarkFailed records a node failure. Valid only from Running. Under
// fail-fast the failure cascades: every not-yet-terminal descendant becomes
// Skipped, and the returned slice lists them. Under best-effort only this
// node is marked and independent branches keep scheduling.
func (s *Scheduler) MarkFailed(nodeID string, cause error) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state[nodeID] != types.NodeStatusRunning {
		return nil, fmt.Errorf("%w: %s is %s, want running", ErrBadTransition, nodeID, s.state[nodeID])
	}
	s.state[nodeID] = types.NodeStatusFailed
	if cause != nil {
		s.nodeErrs[nodeID] = cause.Error()
	}
	if s.failedNode == "" {
		s.failedNode = nodeID
	}

	if s.policy != types.PolicyFailFast {
		return nil, nil
	}

	var skipped []string
	for _, d := range s.model.Descendants(nodeID) {
		if !s.state[d].Terminal() && s.state[d] != types.NodeStatusRunning {
			s.state[d] = types.NodeStatusSkipped
			skipped = append(skipped, d)
		}
	}
	return skipped, nil
}

// Status returns the current status of one node.
func (s *Scheduler) Status(nodeID string) types.NodeStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state[nodeID]
}

// States returns a copy of the full execution state.
func (s *Scheduler) States() map[string]types.NodeStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]types.NodeStatus, len(s.state))
	for k, v := range s.state {
		out[k] = v
	}
	return out
}

// Finished reports whether no node remains Pending, Ready, or Running.
func (s *Scheduler) Finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.propagateSkips()
	for _, st := range s.state {
		if !st.Terminal() {
			return false
		}
	}
	return true
}

// FirstFailure returns the first failed node and its recorded error, or
// empty strings if every node succeeded.
func (s *Scheduler) FirstFailure() (string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failedNode, s.nodeErrs[s.failedNode]
}

// NodeErrors returns the recorded error message per failed node.
func (s *Scheduler) NodeErrors() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]string, len(s.nodeErrs))
	for k, v := range s.nodeErrs {
		out[k] = v
	}
	return out
}
