// Package engine drives one run of a graph to completion, tying the
// scheduler, the context store, and the external skill invoker together.
package engine

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/skillflow/orchestrator/internal/contextstore"
	"github.com/skillflow/orchestrator/internal/graph"
	"github.com/skillflow/orchestrator/internal/metrics"
	"github.com/skillflow/orchestrator/internal/scheduler"
	"github.com/skillflow/orchestrator/pkg/types"
)

// Invoker executes a single skill capability with a resolved input bundle.
// It is the external collaborator: semantic matching, skill loading, and
// actual dispatch live behind it. A timeout inside Invoke is reported as an
// ordinary failure.
type Invoker interface {
	Invoke(ctx context.Context, capability string, bundle *contextstore.Bundle) (interface{}, error)
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, capability string, bundle *contextstore.Bundle) (interface{}, error)

// Invoke calls f.
func (f InvokerFunc) Invoke(ctx context.Context, capability string, bundle *contextstore.Bundle) (interface{}, error) {
	return f(ctx, capability, bundle)
}

// OutcomeRecorder is an opaque sink the engine reports run outcomes to,
// e.g. for template analytics. Implementations must not block.
type OutcomeRecorder interface {
	RecordOutcome(ctx context.Context, graphID string, success bool, duration time.Duration)
}

// Request describes one run of a graph.
type Request struct {
	RunID  string
	Graph  *types.Graph
	Task   string
	Global map[string]interface{}
	Mode   types.ExecutionMode
	Policy types.FailurePolicy
}

// Engine executes graphs against an Invoker.
type Engine struct {
	invoker  Invoker
	recorder OutcomeRecorder // optional
	sink     StateSink       // optional
	logger   *slog.Logger
	tracer   trace.Tracer
}

// New creates an engine. recorder and sink may be nil.
func New(invoker Invoker, recorder OutcomeRecorder, sink StateSink, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if sink == nil {
		sink = nopSink{}
	}
	return &Engine{
		invoker:  invoker,
		recorder: recorder,
		sink:     sink,
		logger:   logger,
		tracer:   otel.Tracer("skillflow/engine"),
	}
}

// completion funnels a finished invocation back to the coordinating
// goroutine. Scheduler and context store are only touched from there, so
// sibling completions may interleave in any order.
type completion struct {
	nodeID string
	output interface{}
	err    error
}

// Run executes the graph and returns the run result. Validation errors
// surface before any node runs. Execution errors come back inside the
// result with partial outputs preserved; the error return is reserved for
// pre-flight failures.
func (e *Engine) Run(ctx context.Context, req *Request) (*types.RunResult, error) {
	model, err := graph.New(req.Graph)
	if err != nil {
		return nil, err
	}

	mode := req.Mode
	if mode == "" {
		mode = types.ModeParallel
	}
	policy := req.Policy
	if policy == "" {
		policy = types.PolicyFailFast
	}

	ctx, span := e.tracer.Start(ctx, "engine.Run",
		trace.WithAttributes(
			attribute.String("graph.id", req.Graph.ID),
			attribute.String("run.id", req.RunID),
			attribute.String("mode", string(mode)),
		))
	defer span.End()

	cs := contextstore.New(req.Task, req.Global)
	sched := scheduler.New(model, cs, policy)

	start := time.Now()
	e.sink.RunStatus(ctx, req.RunID, types.RunStatusRunning, "")
	metrics.RunsActive.Inc()
	defer metrics.RunsActive.Dec()

	var runErr error
	switch mode {
	case types.ModeSequential:
		runErr = e.runSequential(ctx, req, model, sched, cs, policy)
	default:
		runErr = e.runParallel(ctx, req, model, sched, cs, policy)
	}

	result := e.buildResult(sched, cs, time.Since(start))
	if runErr != nil && result.Status != types.RunStatusFailed {
		// Context cancellation without a node failure.
		result.Status = types.RunStatusCancelled
		result.Error = runErr.Error()
	}

	e.sink.RunStatus(ctx, req.RunID, result.Status, result.Error)
	metrics.RunsTotal.WithLabelValues(string(result.Status)).Inc()
	metrics.RunDuration.WithLabelValues(string(result.Status)).Observe(result.Duration.Seconds())
	if e.recorder != nil {
		e.recorder.RecordOutcome(ctx, req.Graph.ID, result.Completed(), result.Duration)
	}

	e.logger.Info("run finished",
		slog.String("run_id", req.RunID),
		slog.String("graph_id", req.Graph.ID),
		slog.String("status", string(result.Status)),
		slog.Duration("duration", result.Duration),
	)
	return result, nil
}

// runParallel is the batch fan-out loop: dispatch the whole Ready set
// concurrently, await the barrier, fold completions, repeat. If fail-fast
// triggers mid-batch, in-flight siblings finish but no new batch starts.
func (e *Engine) runParallel(ctx context.Context, req *Request, model *graph.Model, sched *scheduler.Scheduler, cs *contextstore.Store, policy types.FailurePolicy) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if failed, _ := sched.FirstFailure(); failed != "" && policy == types.PolicyFailFast {
			return nil
		}

		ready := sched.Advance()
		if len(ready) == 0 {
			return nil // Finished, or nothing left schedulable.
		}

		results := make(chan completion, len(ready))
		dispatched := 0
		for _, nodeID := range ready {
			node := model.Definition().NodeByID(nodeID)
			bundle, err := cs.SnapshotFor(node)
			if err != nil {
				// Invariant violation: the scheduler said this node was
				// ready but a dependency is missing.
				return err
			}
			if err := sched.MarkRunning(nodeID); err != nil {
				return err
			}
			e.sink.NodeStatus(ctx, req.RunID, nodeID, types.NodeStatusRunning, "")
			dispatched++
			go e.dispatch(ctx, req.RunID, node, bundle, results)
		}

		// Barrier: fold every dispatched completion through the single
		// coordinating goroutine before computing the next batch.
		for i := 0; i < dispatched; i++ {
			c := <-results
			if err := e.fold(ctx, req.RunID, sched, c); err != nil {
				return err
			}
		}
	}
}

// runSequential walks the stable topological order, invoking each node
// after resolving its snapshot.
func (e *Engine) runSequential(ctx context.Context, req *Request, model *graph.Model, sched *scheduler.Scheduler, cs *contextstore.Store, policy types.FailurePolicy) error {
	for _, nodeID := range model.TopologicalOrder() {
		if err := ctx.Err(); err != nil {
			return err
		}

		sched.Advance()
		if sched.Status(nodeID) != types.NodeStatusReady {
			continue // skipped by an earlier failure
		}

		node := model.Definition().NodeByID(nodeID)
		bundle, err := cs.SnapshotFor(node)
		if err != nil {
			return err
		}
		if err := sched.MarkRunning(nodeID); err != nil {
			return err
		}
		e.sink.NodeStatus(ctx, req.RunID, nodeID, types.NodeStatusRunning, "")

		results := make(chan completion, 1)
		e.dispatch(ctx, req.RunID, node, bundle, results)
		if err := e.fold(ctx, req.RunID, sched, <-results); err != nil {
			return err
		}

		if failed, _ := sched.FirstFailure(); failed != "" && policy == types.PolicyFailFast {
			return nil
		}
	}
	return nil
}

// dispatch invokes one node and reports the completion.
func (e *Engine) dispatch(ctx context.Context, runID string, node *types.Node, bundle *contextstore.Bundle, results chan<- completion) {
	nodeCtx, span := e.tracer.Start(ctx, "engine.invoke",
		trace.WithAttributes(
			attribute.String("node.id", node.ID),
			attribute.String("skill", node.Skill),
		))
	defer span.End()

	start := time.Now()
	output, err := e.invoker.Invoke(nodeCtx, node.Skill, bundle)
	metrics.NodeDuration.WithLabelValues(node.Skill).Observe(time.Since(start).Seconds())

	results <- completion{nodeID: node.ID, output: output, err: err}
}

// fold applies one completion to scheduler and context state.
func (e *Engine) fold(ctx context.Context, runID string, sched *scheduler.Scheduler, c completion) error {
	if c.err != nil {
		skipped, err := sched.MarkFailed(c.nodeID, c.err)
		if err != nil {
			return err
		}
		metrics.NodesTotal.WithLabelValues("failed").Inc()
		e.sink.NodeStatus(ctx, runID, c.nodeID, types.NodeStatusFailed, c.err.Error())
		for _, id := range skipped {
			metrics.NodesTotal.WithLabelValues("skipped").Inc()
			e.sink.NodeStatus(ctx, runID, id, types.NodeStatusSkipped, "")
		}
		e.logger.Warn("node failed",
			slog.String("run_id", runID),
			slog.String("node_id", c.nodeID),
			slog.String("error", c.err.Error()),
		)
		return nil
	}

	if err := sched.MarkDone(c.nodeID, c.output); err != nil {
		return err
	}
	metrics.NodesTotal.WithLabelValues("done").Inc()
	e.sink.NodeStatus(ctx, runID, c.nodeID, types.NodeStatusDone, "")
	e.sink.NodeOutput(ctx, runID, c.nodeID, c.output)
	return nil
}

// buildResult assembles the caller-facing run result. Skipped nodes are
// absent from outputs: downstream consumers see an absent optional value,
// never a partial default.
func (e *Engine) buildResult(sched *scheduler.Scheduler, cs *contextstore.Store, elapsed time.Duration) *types.RunResult {
	outputs := cs.Outputs()
	failedNode, failMsg := sched.FirstFailure()

	if failedNode == "" {
		return &types.RunResult{
			Status:   types.RunStatusCompleted,
			Outputs:  outputs,
			Duration: elapsed,
		}
	}
	return &types.RunResult{
		Status:         types.RunStatusFailed,
		FailedNode:     failedNode,
		Error:          failMsg,
		PartialOutputs: outputs,
		Duration:       elapsed,
	}
}
