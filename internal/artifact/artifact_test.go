package artifact

import (
	"context"
	"strings"
	"testing"

	"github.com/skillflow/orchestrator/pkg/types"
)

func TestMaybeOffloadUnderThreshold(t *testing.T) {
	store := NewStore(NewMemoryBackend(), 1024)

	out, offloaded, err := store.MaybeOffload(context.Background(), "r1", "n1", "small")
	if err != nil {
		t.Fatalf("MaybeOffload: %v", err)
	}
	if offloaded {
		t.Fatal("small output should not be offloaded")
	}
	if out != "small" {
		t.Fatalf("output = %v", out)
	}
}

func TestMaybeOffloadAndResolve(t *testing.T) {
	store := NewStore(NewMemoryBackend(), 16)
	ctx := context.Background()

	big := map[string]interface{}{"report": strings.Repeat("x", 100)}
	out, offloaded, err := store.MaybeOffload(ctx, "r1", "n1", big)
	if err != nil {
		t.Fatalf("MaybeOffload: %v", err)
	}
	if !offloaded {
		t.Fatal("large output should be offloaded")
	}

	env, ok := out.(map[string]interface{})
	if !ok || env["$artifact"] == nil {
		t.Fatalf("expected reference envelope, got %v", out)
	}
	ref, ok := env["$artifact"].(*Ref)
	if !ok || !strings.HasPrefix(ref.URI, "memory://runs/r1/nodes/n1/") {
		t.Fatalf("ref = %+v", env["$artifact"])
	}
	if ref.Checksum == "" || ref.Size == 0 {
		t.Fatalf("ref missing checksum or size: %+v", ref)
	}

	resolved, err := store.Resolve(ctx, out)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	m, ok := resolved.(map[string]interface{})
	if !ok || m["report"] != big["report"] {
		t.Fatalf("resolved = %v", resolved)
	}
}

func TestResolvePassthrough(t *testing.T) {
	store := NewStore(NewMemoryBackend(), 16)
	got, err := store.Resolve(context.Background(), map[string]interface{}{"plain": true})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.(map[string]interface{})["plain"] != true {
		t.Fatalf("got = %v", got)
	}
}

func TestOffloadDisabled(t *testing.T) {
	store := NewStore(NewMemoryBackend(), 0)
	out, offloaded, err := store.MaybeOffload(context.Background(), "r", "n", strings.Repeat("x", 4096))
	if err != nil || offloaded {
		t.Fatalf("MaybeOffload = %v, %v; want passthrough", offloaded, err)
	}
	if len(out.(string)) != 4096 {
		t.Fatal("output changed despite disabled offloading")
	}
}

func TestListRun(t *testing.T) {
	store := NewStore(NewMemoryBackend(), 8)
	ctx := context.Background()

	for _, node := range []string{"n1", "n2"} {
		if _, _, err := store.MaybeOffload(ctx, "r1", node, strings.Repeat("y", 64)); err != nil {
			t.Fatalf("MaybeOffload: %v", err)
		}
	}
	if _, _, err := store.MaybeOffload(ctx, "r2", "n1", strings.Repeat("y", 64)); err != nil {
		t.Fatalf("MaybeOffload: %v", err)
	}

	refs, err := store.ListRun(ctx, "r1")
	if err != nil {
		t.Fatalf("ListRun: %v", err)
	}
	if len(refs) != 2 {
		t.Fatalf("refs = %d, want 2", len(refs))
	}
}

type captureSink struct {
	outputs map[string]interface{}
}

func (c *captureSink) RunStatus(context.Context, string, types.RunStatus, string) {}

func (c *captureSink) NodeStatus(context.Context, string, string, types.NodeStatus, string) {}

func (c *captureSink) NodeOutput(ctx context.Context, runID, nodeID string, output interface{}) {
	c.outputs[nodeID] = output
}

func TestSinkOffloadsLargeOutputs(t *testing.T) {
	inner := &captureSink{outputs: make(map[string]interface{})}
	sink := NewSink(inner, NewStore(NewMemoryBackend(), 32), nil)
	ctx := context.Background()

	sink.NodeOutput(ctx, "r1", "small", "tiny")
	sink.NodeOutput(ctx, "r1", "large", strings.Repeat("z", 256))

	if inner.outputs["small"] != "tiny" {
		t.Fatalf("small output = %v", inner.outputs["small"])
	}
	env, ok := inner.outputs["large"].(map[string]interface{})
	if !ok || env["$artifact"] == nil {
		t.Fatalf("large output = %v, want reference envelope", inner.outputs["large"])
	}
}
