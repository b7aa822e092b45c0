package artifact

import (
	"context"
	"log/slog"

	"github.com/skillflow/orchestrator/internal/engine"
	"github.com/skillflow/orchestrator/internal/metrics"
	"github.com/skillflow/orchestrator/pkg/types"
)

// Sink decorates a state sink so oversized node outputs are offloaded
// before they reach persistence and the event stream. Offload failures fall
// back to passing the original output through.
type Sink struct {
	next   engine.StateSink
	store  *Store
	logger *slog.Logger
}

// NewSink wraps next with offloading through store.
func NewSink(next engine.StateSink, store *Store, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{next: next, store: store, logger: logger}
}

func (s *Sink) RunStatus(ctx context.Context, runID string, status types.RunStatus, errMsg string) {
	s.next.RunStatus(ctx, runID, status, errMsg)
}

func (s *Sink) NodeStatus(ctx context.Context, runID, nodeID string, status types.NodeStatus, errMsg string) {
	s.next.NodeStatus(ctx, runID, nodeID, status, errMsg)
}

func (s *Sink) NodeOutput(ctx context.Context, runID, nodeID string, output interface{}) {
	replaced, offloaded, err := s.store.MaybeOffload(ctx, runID, nodeID, output)
	if err != nil {
		metrics.ArtifactOffloads.WithLabelValues("error").Inc()
		s.logger.Warn("artifact offload failed, storing inline", "run_id", runID, "node_id", nodeID, "error", err)
		s.next.NodeOutput(ctx, runID, nodeID, output)
		return
	}
	if offloaded {
		metrics.ArtifactOffloads.WithLabelValues("ok").Inc()
	}
	s.next.NodeOutput(ctx, runID, nodeID, replaced)
}
