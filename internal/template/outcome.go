package template

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// StatsRecorder folds run outcomes back into template statistics. Graph IDs
// that do not correspond to a stored template are ignored, so it is safe to
// record every run through it.
type StatsRecorder struct {
	store  Store
	logger *slog.Logger
}

// NewStatsRecorder creates a recorder backed by the store.
func NewStatsRecorder(store Store, logger *slog.Logger) *StatsRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatsRecorder{store: store, logger: logger}
}

// RecordOutcome updates the stats of the template named by graphID.
func (r *StatsRecorder) RecordOutcome(ctx context.Context, graphID string, success bool, duration time.Duration) {
	if graphID == "" {
		return
	}
	err := r.store.RecordOutcome(ctx, graphID, success, duration)
	if err != nil && !errors.Is(err, ErrTemplateNotFound) {
		r.logger.Warn("failed to record template outcome", "template", graphID, "error", err)
	}
}
