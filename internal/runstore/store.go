package runstore

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/skillflow/orchestrator/pkg/types"
)

// ErrRunNotFound is returned when a run ID does not exist in the store.
var ErrRunNotFound = errors.New("run not found")

// Config carries backend tuning knobs shared by all store implementations.
type Config struct {
	// EventMaxLen caps the retained event history per run.
	EventMaxLen int64
	// TTLSeconds expires run records after inactivity. Zero keeps them forever.
	TTLSeconds int
}

// DefaultConfig returns the settings used when none are supplied.
func DefaultConfig() Config {
	return Config{EventMaxLen: 5000, TTLSeconds: 0}
}

// RunStore persists run metadata, per-node execution state and the
// append-only event log consumed by the SSE layer.
type RunStore interface {
	// CreateRun registers a new run and its graph under a fresh ID. global
	// is the optional seed context made visible to every node.
	CreateRun(ctx context.Context, graph *types.Graph, task string, global map[string]interface{}, mode types.ExecutionMode, policy types.FailurePolicy) (*types.Run, error)

	GetRunMeta(ctx context.Context, runID string) (*types.RunMeta, error)
	GetRun(ctx context.Context, runID string) (*types.Run, error)
	ListRuns(ctx context.Context, limit int) ([]*types.RunMeta, error)

	UpdateRunStatus(ctx context.Context, runID string, status types.RunStatus) error
	CancelRun(ctx context.Context, runID string) error
	IsCancelled(ctx context.Context, runID string) (bool, error)

	UpdateNodeState(ctx context.Context, runID, nodeID string, status types.NodeStatus, errMsg string) error
	GetNodeStates(ctx context.Context, runID string) (map[string]*types.NodeState, error)

	SetNodeOutput(ctx context.Context, runID, nodeID string, output interface{}) error
	GetOutputs(ctx context.Context, runID string) (map[string]interface{}, error)

	// AppendEvent assigns the event a monotonic sequence number, stores it
	// and fans it out to live subscribers.
	AppendEvent(ctx context.Context, runID string, ev *types.Event) error
	// GetEventsSince returns stored events with Seq > afterSeq in order.
	GetEventsSince(ctx context.Context, runID string, afterSeq int64) ([]*types.Event, error)
	// Subscribe streams events appended after the call. The returned cancel
	// function releases the subscription.
	Subscribe(ctx context.Context, runID string) (<-chan *types.Event, func(), error)

	// AdapterInfo names the backing implementation for health reporting.
	AdapterInfo() string
	Close() error
}

func generateRunID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "run-" + hex.EncodeToString([]byte(time.Now().Format("150405.000")))
	}
	return "run-" + hex.EncodeToString(b)
}
