package types

import (
	"time"
)

// RunStatus represents the current state of a run.
type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// NodeStatus represents the current state of a node within a run.
type NodeStatus string

const (
	NodeStatusPending NodeStatus = "pending"
	NodeStatusReady   NodeStatus = "ready"
	NodeStatusRunning NodeStatus = "running"
	NodeStatusDone    NodeStatus = "done"
	NodeStatusFailed  NodeStatus = "failed"
	NodeStatusSkipped NodeStatus = "skipped"
)

// Terminal reports whether a node can make no further transitions.
func (s NodeStatus) Terminal() bool {
	return s == NodeStatusDone || s == NodeStatusFailed || s == NodeStatusSkipped
}

// ExecutionMode selects how the engine walks the graph.
type ExecutionMode string

const (
	ModeSequential ExecutionMode = "sequential"
	ModeParallel   ExecutionMode = "parallel"
)

// FailurePolicy decides whether a node failure aborts dependent branches
// (fail-fast) or only the failed branch (best-effort).
type FailurePolicy string

const (
	PolicyFailFast   FailurePolicy = "fail-fast"
	PolicyBestEffort FailurePolicy = "best-effort"
)

// Run represents a single execution of a graph, including its live node
// states and the outputs collected so far.
type Run struct {
	Meta    RunMeta                `json:"meta"`
	Graph   *Graph                 `json:"graph,omitempty"`
	Nodes   map[string]*NodeState  `json:"nodes,omitempty"`
	Outputs map[string]interface{} `json:"outputs,omitempty"`
}

// RunMeta is a lightweight representation of a run for listing.
// GlobalContext is the optional seed visible to every node's input bundle.
type RunMeta struct {
	RunID         string                 `json:"run_id"`
	GraphName     string                 `json:"graph_name,omitempty"`
	Task          string                 `json:"task,omitempty"`
	GlobalContext map[string]interface{} `json:"global_context,omitempty"`
	Mode          ExecutionMode          `json:"mode"`
	Policy        FailurePolicy          `json:"policy"`
	Status        RunStatus              `json:"status"`
	StartedAt     *time.Time             `json:"started_at,omitempty"`
	FinishedAt    *time.Time             `json:"finished_at,omitempty"`
	Error         string                 `json:"error,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
}

// NodeState tracks the runtime state of a node within a run.
type NodeState struct {
	NodeID     string     `json:"node_id"`
	Status     NodeStatus `json:"status"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// RunResult is the contract surfaced to callers after a run finishes.
// Outputs are keyed by "<node-id>.output". On failure, PartialOutputs holds
// exactly the outputs of nodes that reached Done before the failure; they are
// never discarded.
type RunResult struct {
	Status         RunStatus              `json:"status"`
	Outputs        map[string]interface{} `json:"outputs,omitempty"`
	FailedNode     string                 `json:"failed_node,omitempty"`
	Error          string                 `json:"error,omitempty"`
	PartialOutputs map[string]interface{} `json:"partial_outputs,omitempty"`
	Duration       time.Duration          `json:"duration_ms,omitempty"`
}

// Completed reports whether every node reached a successful terminal state.
func (r *RunResult) Completed() bool {
	return r.Status == RunStatusCompleted
}
