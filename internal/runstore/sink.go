package runstore

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/skillflow/orchestrator/internal/metrics"
	"github.com/skillflow/orchestrator/pkg/types"
)

// Sink bridges engine progress callbacks into a RunStore: it updates the
// persisted state and appends the matching event so SSE subscribers see
// every transition.
type Sink struct {
	store  RunStore
	logger *slog.Logger
}

// NewSink wraps a store. A nil logger falls back to slog.Default.
func NewSink(store RunStore, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{store: store, logger: logger}
}

func (s *Sink) RunStatus(ctx context.Context, runID string, status types.RunStatus, errMsg string) {
	if err := s.store.UpdateRunStatus(ctx, runID, status); err != nil {
		s.logger.Warn("update run status", "run_id", runID, "status", status, "error", err)
	}
	s.append(ctx, runID, &types.Event{
		Type: types.EventTypeRunStatus,
		Data: mustJSON(types.RunStatusEvent{Status: status, Error: errMsg}),
	})
}

func (s *Sink) NodeStatus(ctx context.Context, runID, nodeID string, status types.NodeStatus, errMsg string) {
	if err := s.store.UpdateNodeState(ctx, runID, nodeID, status, errMsg); err != nil {
		s.logger.Warn("update node state", "run_id", runID, "node_id", nodeID, "status", status, "error", err)
	}
	s.append(ctx, runID, &types.Event{
		Type:   types.EventTypeNodeStatus,
		NodeID: nodeID,
		Data:   mustJSON(types.NodeStatusEvent{Status: status, Error: errMsg}),
	})
}

func (s *Sink) NodeOutput(ctx context.Context, runID, nodeID string, output interface{}) {
	if err := s.store.SetNodeOutput(ctx, runID, nodeID, output); err != nil {
		s.logger.Warn("persist node output", "run_id", runID, "node_id", nodeID, "error", err)
	}
	s.append(ctx, runID, &types.Event{
		Type:   types.EventTypeNodeOutput,
		NodeID: nodeID,
		Data:   mustJSON(map[string]interface{}{"output": output}),
	})
}

func (s *Sink) append(ctx context.Context, runID string, ev *types.Event) {
	if err := s.store.AppendEvent(ctx, runID, ev); err != nil {
		s.logger.Warn("append event", "run_id", runID, "type", ev.Type, "error", err)
		return
	}
	metrics.EventsTotal.WithLabelValues(string(ev.Type)).Inc()
}

func mustJSON(v interface{}) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return raw
}
