package api

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/skillflow/orchestrator/internal/engine"
	"github.com/skillflow/orchestrator/internal/runstore"
	"github.com/skillflow/orchestrator/pkg/types"
)

// ErrRunActive is returned when a run is already executing.
var ErrRunActive = errors.New("run already executing")

// Launcher executes runs in the background and tracks the active ones so
// they can be cancelled. Execution uses a detached context: a run outlives
// the HTTP request that started it.
type Launcher struct {
	engine *engine.Engine
	store  runstore.RunStore
	logger *slog.Logger

	mu     sync.Mutex
	active map[string]context.CancelFunc
	wg     sync.WaitGroup
}

// NewLauncher creates a launcher.
func NewLauncher(eng *engine.Engine, store runstore.RunStore, logger *slog.Logger) *Launcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Launcher{
		engine: eng,
		store:  store,
		logger: logger,
		active: make(map[string]context.CancelFunc),
	}
}

// Start begins executing the run in the background. Returns ErrRunActive if
// the run is already executing.
func (l *Launcher) Start(run *types.Run) error {
	l.mu.Lock()
	if _, ok := l.active[run.Meta.RunID]; ok {
		l.mu.Unlock()
		return ErrRunActive
	}
	ctx, cancel := context.WithCancel(context.Background())
	l.active[run.Meta.RunID] = cancel
	l.wg.Add(1)
	l.mu.Unlock()

	go l.execute(ctx, run)
	return nil
}

// Cancel aborts an executing run. Returns false when the run is not active.
func (l *Launcher) Cancel(runID string) bool {
	l.mu.Lock()
	cancel, ok := l.active[runID]
	l.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Active reports whether the run is currently executing.
func (l *Launcher) Active(runID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.active[runID]
	return ok
}

// Wait blocks until all in-flight runs have finished.
func (l *Launcher) Wait() {
	l.wg.Wait()
}

func (l *Launcher) execute(ctx context.Context, run *types.Run) {
	runID := run.Meta.RunID
	defer func() {
		l.mu.Lock()
		if cancel, ok := l.active[runID]; ok {
			cancel()
			delete(l.active, runID)
		}
		l.mu.Unlock()
		l.wg.Done()
	}()

	result, err := l.engine.Run(ctx, &engine.Request{
		RunID:  runID,
		Graph:  run.Graph,
		Task:   run.Meta.Task,
		Global: run.Meta.GlobalContext,
		Mode:   run.Meta.Mode,
		Policy: run.Meta.Policy,
	})
	if err != nil {
		// Pre-flight failure: the engine never reported status through
		// the sink, so record it here.
		l.logger.Error("run rejected", "run_id", runID, "error", err)
		bg := context.Background()
		if serr := l.store.UpdateRunStatus(bg, runID, types.RunStatusFailed); serr != nil {
			l.logger.Error("failed to record run failure", "run_id", runID, "error", serr)
		}
		return
	}

	// A cancel should read as cancelled even though the engine saw the
	// aborted nodes as failures.
	if ctx.Err() != nil {
		bg := context.Background()
		if serr := l.store.UpdateRunStatus(bg, runID, types.RunStatusCancelled); serr != nil {
			l.logger.Error("failed to record cancellation", "run_id", runID, "error", serr)
		}
		l.logger.Info("run cancelled", "run_id", runID)
		return
	}

	l.logger.Info("run finished",
		"run_id", runID,
		"status", result.Status,
		"duration", result.Duration,
	)
}
