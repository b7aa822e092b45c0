package engine

import (
	"context"

	"github.com/skillflow/orchestrator/pkg/types"
)

// StateSink receives run progress for persistence and streaming. The engine
// calls it from the coordinating goroutine only.
type StateSink interface {
	RunStatus(ctx context.Context, runID string, status types.RunStatus, errMsg string)
	NodeStatus(ctx context.Context, runID, nodeID string, status types.NodeStatus, errMsg string)
	NodeOutput(ctx context.Context, runID, nodeID string, output interface{})
}

type nopSink struct{}

func (nopSink) RunStatus(context.Context, string, types.RunStatus, string) {}

func (nopSink) NodeStatus(context.Context, string, string, types.NodeStatus, string) {}

func (nopSink) NodeOutput(context.Context, string, string, interface{}) {}
