package runstore

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/skillflow/orchestrator/pkg/types"
)

// MemoryStore keeps all run state in process memory. It is the default
// backend for single-instance deployments and for tests.
type MemoryStore struct {
	mu     sync.RWMutex
	cfg    Config
	runs   map[string]*memoryRun
	nextID func() string
}

type memoryRun struct {
	meta    types.RunMeta
	graph   *types.Graph
	nodes   map[string]*types.NodeState
	outputs map[string]interface{}
	events  []*types.Event
	seq     int64
	subs    map[int64]chan *types.Event
	nextSub int64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(cfg Config) *MemoryStore {
	return &MemoryStore{cfg: cfg, runs: make(map[string]*memoryRun), nextID: generateRunID}
}

func (s *MemoryStore) CreateRun(ctx context.Context, graph *types.Graph, task string, global map[string]interface{}, mode types.ExecutionMode, policy types.FailurePolicy) (*types.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID()
	now := time.Now().UTC()
	r := &memoryRun{
		meta: types.RunMeta{
			RunID:         id,
			GraphName:     graph.ID,
			Task:          task,
			GlobalContext: global,
			Mode:          mode,
			Policy:        policy,
			Status:        types.RunStatusQueued,
			CreatedAt:     now,
		},
		graph:   graph.Clone(),
		nodes:   make(map[string]*types.NodeState, len(graph.Nodes)),
		outputs: make(map[string]interface{}),
		subs:    make(map[int64]chan *types.Event),
	}
	for _, n := range graph.Nodes {
		r.nodes[n.ID] = &types.NodeState{NodeID: n.ID, Status: types.NodeStatusPending}
	}
	s.runs[id] = r
	return s.snapshotRun(r), nil
}

func (s *MemoryStore) GetRunMeta(ctx context.Context, runID string) (*types.RunMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[runID]
	if !ok {
		return nil, ErrRunNotFound
	}
	meta := r.meta
	return &meta, nil
}

func (s *MemoryStore) GetRun(ctx context.Context, runID string) (*types.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[runID]
	if !ok {
		return nil, ErrRunNotFound
	}
	return s.snapshotRun(r), nil
}

func (s *MemoryStore) ListRuns(ctx context.Context, limit int) ([]*types.RunMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	metas := make([]*types.RunMeta, 0, len(s.runs))
	for _, r := range s.runs {
		meta := r.meta
		metas = append(metas, &meta)
	}
	sort.Slice(metas, func(i, j int) bool { return metas[i].CreatedAt.After(metas[j].CreatedAt) })
	if limit > 0 && len(metas) > limit {
		metas = metas[:limit]
	}
	return metas, nil
}

func (s *MemoryStore) UpdateRunStatus(ctx context.Context, runID string, status types.RunStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[runID]
	if !ok {
		return ErrRunNotFound
	}
	r.meta.Status = status
	now := time.Now().UTC()
	switch status {
	case types.RunStatusRunning:
		if r.meta.StartedAt == nil {
			r.meta.StartedAt = &now
		}
	case types.RunStatusCompleted, types.RunStatusFailed, types.RunStatusCancelled:
		if r.meta.FinishedAt == nil {
			r.meta.FinishedAt = &now
		}
	}
	return nil
}

func (s *MemoryStore) CancelRun(ctx context.Context, runID string) error {
	return s.UpdateRunStatus(ctx, runID, types.RunStatusCancelled)
}

func (s *MemoryStore) IsCancelled(ctx context.Context, runID string) (bool, error) {
	meta, err := s.GetRunMeta(ctx, runID)
	if err != nil {
		return false, err
	}
	return meta.Status == types.RunStatusCancelled, nil
}

func (s *MemoryStore) UpdateNodeState(ctx context.Context, runID, nodeID string, status types.NodeStatus, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[runID]
	if !ok {
		return ErrRunNotFound
	}
	ns, ok := r.nodes[nodeID]
	if !ok {
		ns = &types.NodeState{NodeID: nodeID}
		r.nodes[nodeID] = ns
	}
	ns.Status = status
	ns.Error = errMsg
	now := time.Now().UTC()
	switch status {
	case types.NodeStatusRunning:
		ns.StartedAt = &now
	case types.NodeStatusDone, types.NodeStatusFailed, types.NodeStatusSkipped:
		ns.FinishedAt = &now
	}
	return nil
}

func (s *MemoryStore) GetNodeStates(ctx context.Context, runID string) (map[string]*types.NodeState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[runID]
	if !ok {
		return nil, ErrRunNotFound
	}
	out := make(map[string]*types.NodeState, len(r.nodes))
	for id, ns := range r.nodes {
		cp := *ns
		out[id] = &cp
	}
	return out, nil
}

func (s *MemoryStore) SetNodeOutput(ctx context.Context, runID, nodeID string, output interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[runID]
	if !ok {
		return ErrRunNotFound
	}
	r.outputs[nodeID] = output
	return nil
}

func (s *MemoryStore) GetOutputs(ctx context.Context, runID string) (map[string]interface{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[runID]
	if !ok {
		return nil, ErrRunNotFound
	}
	out := make(map[string]interface{}, len(r.outputs))
	for k, v := range r.outputs {
		out[k] = v
	}
	return out, nil
}

func (s *MemoryStore) AppendEvent(ctx context.Context, runID string, ev *types.Event) error {
	s.mu.Lock()
	r, ok := s.runs[runID]
	if !ok {
		s.mu.Unlock()
		return ErrRunNotFound
	}
	r.seq++
	ev.Seq = r.seq
	ev.ID = strconv.FormatInt(r.seq, 10)
	ev.RunID = runID
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	r.events = append(r.events, ev)
	if max := s.cfg.EventMaxLen; max > 0 && int64(len(r.events)) > max {
		r.events = r.events[int64(len(r.events))-max:]
	}
	// Fan out while still holding the lock so a concurrent unsubscribe
	// cannot race the send. Channels are buffered and the send never
	// blocks, so the critical section stays short.
	for _, ch := range r.subs {
		select {
		case ch <- ev:
		default:
			// Slow subscriber, drop rather than block the run.
		}
	}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) GetEventsSince(ctx context.Context, runID string, afterSeq int64) ([]*types.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[runID]
	if !ok {
		return nil, ErrRunNotFound
	}
	var out []*types.Event
	for _, ev := range r.events {
		if ev.Seq > afterSeq {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (s *MemoryStore) Subscribe(ctx context.Context, runID string) (<-chan *types.Event, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[runID]
	if !ok {
		return nil, nil, ErrRunNotFound
	}
	id := r.nextSub
	r.nextSub++
	ch := make(chan *types.Event, 64)
	r.subs[id] = ch

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if r, ok := s.runs[runID]; ok {
			// Don't close the channel here; AppendEvent may still hold a
			// reference to it. Dropping the subscription is enough, the
			// channel is collected once the reader returns.
			delete(r.subs, id)
		}
	}
	return ch, cancel, nil
}

func (s *MemoryStore) AdapterInfo() string { return "memory" }

func (s *MemoryStore) Close() error { return nil }

// snapshotRun must be called with at least the read lock held.
func (s *MemoryStore) snapshotRun(r *memoryRun) *types.Run {
	meta := r.meta
	nodes := make(map[string]*types.NodeState, len(r.nodes))
	for id, ns := range r.nodes {
		cp := *ns
		nodes[id] = &cp
	}
	outputs := make(map[string]interface{}, len(r.outputs))
	for k, v := range r.outputs {
		outputs[k] = v
	}
	return &types.Run{Meta: meta, Graph: r.graph.Clone(), Nodes: nodes, Outputs: outputs}
}
