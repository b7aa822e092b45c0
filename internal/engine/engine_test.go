package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/skillflow/orchestrator/internal/contextstore"
	grapherr "github.com/skillflow/orchestrator/internal/graph"
	"github.com/skillflow/orchestrator/pkg/types"
)

// diamond builds n1 -> n2 -> {n3, n4} -> n5.
func diamond() *types.Graph {
	return &types.Graph{
		ID: "diamond",
		Nodes: []types.Node{
			{ID: "n1", Skill: "analyze"},
			{ID: "n2", Skill: "plan", Inputs: []string{"n1.output"}},
			{ID: "n3", Skill: "build-frontend", Inputs: []string{"n2.output"}},
			{ID: "n4", Skill: "build-backend", Inputs: []string{"n2.output"}},
			{ID: "n5", Skill: "integrate", Inputs: []string{"n3.output", "n4.output"}},
		},
		Edges: []types.Edge{
			{From: "n1", To: "n2"},
			{From: "n2", To: "n3"},
			{From: "n2", To: "n4"},
			{From: "n3", To: "n5"},
			{From: "n4", To: "n5"},
		},
	}
}

// recordingInvoker echoes successful invocations and fails listed skills.
type recordingInvoker struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
}

func (r *recordingInvoker) Invoke(ctx context.Context, capability string, bundle *contextstore.Bundle) (interface{}, error) {
	r.mu.Lock()
	r.calls = append(r.calls, capability)
	r.mu.Unlock()

	if err, ok := r.fail[capability]; ok {
		return nil, err
	}
	return fmt.Sprintf("%s ok", capability), nil
}

func TestRunParallelCompletes(t *testing.T) {
	inv := &recordingInvoker{}
	e := New(inv, nil, nil, nil)

	res, err := e.Run(context.Background(), &Request{
		RunID: "r1",
		Graph: diamond(),
		Task:  "ship the feature",
		Mode:  types.ModeParallel,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if !res.Completed() {
		t.Fatalf("expected completed run, got %+v", res)
	}
	for _, key := range []string{"n1.output", "n2.output", "n3.output", "n4.output", "n5.output"} {
		if _, ok := res.Outputs[key]; !ok {
			t.Errorf("missing output %s", key)
		}
	}
	if res.Outputs["n5.output"] != "integrate ok" {
		t.Errorf("unexpected n5 output: %v", res.Outputs["n5.output"])
	}
}

func TestRunParallelBatchesFanOut(t *testing.T) {
	// n3 and n4 must be dispatched in the same batch: each blocks until the
	// other has started.
	arrived := make(chan string, 2)
	gate := make(chan struct{})
	var once sync.Once
	concurrent := false

	go func() {
		<-arrived
		select {
		case <-arrived:
			concurrent = true
		case <-time.After(2 * time.Second):
		}
		once.Do(func() { close(gate) })
	}()

	inv := InvokerFunc(func(ctx context.Context, capability string, bundle *contextstore.Bundle) (interface{}, error) {
		if capability == "build-frontend" || capability == "build-backend" {
			arrived <- capability
			<-gate
		}
		return capability + " ok", nil
	})

	e := New(inv, nil, nil, nil)
	res, err := e.Run(context.Background(), &Request{
		RunID: "r2",
		Graph: diamond(),
		Task:  "task",
		Mode:  types.ModeParallel,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !res.Completed() {
		t.Fatalf("expected completed run, got %+v", res)
	}
	if !concurrent {
		t.Error("n3 and n4 were not dispatched concurrently")
	}
}

func TestRunSequentialOrder(t *testing.T) {
	inv := &recordingInvoker{}
	e := New(inv, nil, nil, nil)

	res, err := e.Run(context.Background(), &Request{
		RunID: "r3",
		Graph: diamond(),
		Task:  "task",
		Mode:  types.ModeSequential,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !res.Completed() {
		t.Fatalf("expected completed run, got %+v", res)
	}

	want := []string{"analyze", "plan", "build-frontend", "build-backend", "integrate"}
	if len(inv.calls) != len(want) {
		t.Fatalf("expected %v, got %v", want, inv.calls)
	}
	for i := range want {
		if inv.calls[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, inv.calls)
		}
	}
}

func TestFailFastSequential(t *testing.T) {
	inv := &recordingInvoker{
		fail: map[string]error{"build-frontend": errors.New("frontend build broke")},
	}
	e := New(inv, nil, nil, nil)

	res, err := e.Run(context.Background(), &Request{
		RunID:  "r4",
		Graph:  diamond(),
		Task:   "task",
		Mode:   types.ModeSequential,
		Policy: types.PolicyFailFast,
	})
	if err != nil {
		t.Fatalf("Run returned pre-flight error: %v", err)
	}

	if res.Status != types.RunStatusFailed {
		t.Fatalf("expected failed run, got %+v", res)
	}
	if res.FailedNode != "n3" {
		t.Errorf("expected failed node n3, got %q", res.FailedNode)
	}
	if res.Error != "frontend build broke" {
		t.Errorf("unexpected error message: %q", res.Error)
	}

	// Exactly the nodes that reached Done before the failure.
	if len(res.PartialOutputs) != 2 {
		t.Fatalf("expected 2 partial outputs, got %v", res.PartialOutputs)
	}
	for _, key := range []string{"n1.output", "n2.output"} {
		if _, ok := res.PartialOutputs[key]; !ok {
			t.Errorf("missing partial output %s", key)
		}
	}
}

func TestFailFastParallelSkipsMerge(t *testing.T) {
	inv := &recordingInvoker{
		fail: map[string]error{"build-frontend": errors.New("boom")},
	}
	e := New(inv, nil, nil, nil)

	res, err := e.Run(context.Background(), &Request{
		RunID:  "r5",
		Graph:  diamond(),
		Task:   "task",
		Mode:   types.ModeParallel,
		Policy: types.PolicyFailFast,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if res.Status != types.RunStatusFailed || res.FailedNode != "n3" {
		t.Fatalf("expected n3 failure, got %+v", res)
	}
	if _, ok := res.PartialOutputs["n5.output"]; ok {
		t.Error("skipped merge node must not have an output")
	}
	for _, key := range []string{"n1.output", "n2.output"} {
		if _, ok := res.PartialOutputs[key]; !ok {
			t.Errorf("missing partial output %s", key)
		}
	}
	// The invoker must never have been asked to integrate.
	for _, c := range inv.calls {
		if c == "integrate" {
			t.Error("n5 was invoked despite a failed predecessor")
		}
	}
}

func TestBestEffortParallel(t *testing.T) {
	g := &types.Graph{
		ID: "forked",
		Nodes: []types.Node{
			{ID: "a", Skill: "left"},
			{ID: "b", Skill: "right"},
			{ID: "a2", Skill: "left-next", Inputs: []string{"a.output"}},
			{ID: "b2", Skill: "right-next", Inputs: []string{"b.output"}},
		},
		Edges: []types.Edge{
			{From: "a", To: "a2"},
			{From: "b", To: "b2"},
		},
	}
	inv := &recordingInvoker{fail: map[string]error{"left": errors.New("boom")}}
	e := New(inv, nil, nil, nil)

	res, err := e.Run(context.Background(), &Request{
		RunID:  "r6",
		Graph:  g,
		Task:   "task",
		Mode:   types.ModeParallel,
		Policy: types.PolicyBestEffort,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if res.Status != types.RunStatusFailed || res.FailedNode != "a" {
		t.Fatalf("expected failure on a, got %+v", res)
	}
	// Independent branch ran to completion.
	if _, ok := res.PartialOutputs["b2.output"]; !ok {
		t.Errorf("independent branch output missing: %v", res.PartialOutputs)
	}
	if _, ok := res.PartialOutputs["a2.output"]; ok {
		t.Error("descendant of failed node must not run")
	}
}

func TestValidationErrorBeforeExecution(t *testing.T) {
	inv := &recordingInvoker{}
	e := New(inv, nil, nil, nil)

	_, err := e.Run(context.Background(), &Request{
		RunID: "r7",
		Graph: &types.Graph{
			Nodes: []types.Node{
				{ID: "n1", Skill: "a"},
				{ID: "n2", Skill: "b"},
			},
			Edges: []types.Edge{
				{From: "n1", To: "n2"},
				{From: "n2", To: "n1"},
			},
		},
		Task: "task",
	})

	var cerr *grapherr.CycleError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected CycleError, got %v", err)
	}
	if len(inv.calls) != 0 {
		t.Errorf("no node may run before validation passes, got %v", inv.calls)
	}
}

type countingRecorder struct {
	mu      sync.Mutex
	graphID string
	success bool
	calls   int
}

func (c *countingRecorder) RecordOutcome(ctx context.Context, graphID string, success bool, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.graphID = graphID
	c.success = success
	c.calls++
}

func TestOutcomeReported(t *testing.T) {
	rec := &countingRecorder{}
	e := New(&recordingInvoker{}, rec, nil, nil)

	if _, err := e.Run(context.Background(), &Request{
		RunID: "r8",
		Graph: diamond(),
		Task:  "task",
	}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if rec.calls != 1 || rec.graphID != "diamond" || !rec.success {
		t.Errorf("unexpected outcome record: %+v", rec)
	}
}
