package graph

import (
	"errors"
	"testing"

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

func TestValidate(t *testing.T) {
	t.Run("accepts well-formed graph", func(t *testing.T) {
		if err := Validate(diamond()); err != nil {
			t.Fatalf("Validate failed: %v", err)
		}
	})

	t.Run("rejects cycle", func(t *testing.T) {
		g := &types.Graph{
			ID: "loop",
			Nodes: []types.Node{
				{ID: "n1", Skill: "a"},
				{ID: "n2", Skill: "b"},
			},
			Edges: []types.Edge{
				{From: "n1", To: "n2"},
				{From: "n2", To: "n1"},
			},
		}
		err := Validate(g)
		var cerr *CycleError
		if !errors.As(err, &cerr) {
			t.Fatalf("expected CycleError, got %v", err)
		}
		if len(cerr.Path) < 3 || cerr.Path[0] != cerr.Path[len(cerr.Path)-1] {
			t.Errorf("cycle path should loop back to its start, got %v", cerr.Path)
		}
	})

	t.Run("rejects edge to unknown node", func(t *testing.T) {
		g := &types.Graph{
			Nodes: []types.Node{{ID: "n1", Skill: "a"}},
			Edges: []types.Edge{{From: "n1", To: "ghost"}},
		}
		var uerr *UnknownNodeError
		if err := Validate(g); !errors.As(err, &uerr) {
			t.Fatalf("expected UnknownNodeError, got %v", err)
		} else if uerr.ID != "ghost" {
			t.Errorf("expected offending id %q, got %q", "ghost", uerr.ID)
		}
	})

	t.Run("rejects duplicate node id", func(t *testing.T) {
		g := &types.Graph{
			Nodes: []types.Node{
				{ID: "n1", Skill: "a"},
				{ID: "n1", Skill: "b"},
			},
		}
		var derr *DuplicateNodeError
		if err := Validate(g); !errors.As(err, &derr) {
			t.Fatalf("expected DuplicateNodeError, got %v", err)
		}
	})

	t.Run("rejects duplicate edge", func(t *testing.T) {
		g := &types.Graph{
			Nodes: []types.Node{
				{ID: "n1", Skill: "a"},
				{ID: "n2", Skill: "b"},
			},
			Edges: []types.Edge{
				{From: "n1", To: "n2"},
				{From: "n1", To: "n2"},
			},
		}
		var derr *DuplicateEdgeError
		if err := Validate(g); !errors.As(err, &derr) {
			t.Fatalf("expected DuplicateEdgeError, got %v", err)
		}
	})

	t.Run("rejects input reference without node", func(t *testing.T) {
		g := &types.Graph{
			Nodes: []types.Node{
				{ID: "n1", Skill: "a", Inputs: []string{"ghost.output"}},
			},
		}
		var derr *DanglingInputError
		if err := Validate(g); !errors.As(err, &derr) {
			t.Fatalf("expected DanglingInputError, got %v", err)
		}
	})

	t.Run("rejects input reference without edge", func(t *testing.T) {
		g := &types.Graph{
			Nodes: []types.Node{
				{ID: "n1", Skill: "a"},
				{ID: "n2", Skill: "b", Inputs: []string{"n1.output"}},
			},
		}
		var derr *DanglingInputError
		if err := Validate(g); !errors.As(err, &derr) {
			t.Fatalf("expected DanglingInputError, got %v", err)
		}
		if derr.Node != "n2" || derr.Ref != "n1.output" {
			t.Errorf("unexpected error fields: %+v", derr)
		}
	})

	t.Run("rejects empty skill", func(t *testing.T) {
		g := &types.Graph{
			Nodes: []types.Node{{ID: "n1"}},
		}
		var merr *MissingCapabilityError
		if err := Validate(g); !errors.As(err, &merr) {
			t.Fatalf("expected MissingCapabilityError, got %v", err)
		}
	})

	t.Run("literals are not references", func(t *testing.T) {
		g := &types.Graph{
			Nodes: []types.Node{
				{ID: "n1", Skill: "a", Inputs: []string{"just text", "path/to.file"}},
			},
		}
		if err := Validate(g); err != nil {
			t.Fatalf("literal inputs should validate, got %v", err)
		}
	})
}

func TestTopologicalOrder(t *testing.T) {
	m, err := New(diamond())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	order := m.TopologicalOrder()
	if len(order) != 5 {
		t.Fatalf("expected 5 nodes, got %v", order)
	}

	pos := make(map[string]int, len(order))
	for i, id := range order {
		pos[id] = i
	}
	for _, e := range diamond().Edges {
		if pos[e.From] >= pos[e.To] {
			t.Errorf("edge %s -> %s violated: order %v", e.From, e.To, order)
		}
	}

	// Stable tie-break by declaration order: n3 before n4.
	if pos["n3"] >= pos["n4"] {
		t.Errorf("expected n3 before n4, got %v", order)
	}
}

func TestReadySet(t *testing.T) {
	m, err := New(diamond())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	pending := func() map[string]types.NodeStatus {
		s := make(map[string]types.NodeStatus)
		for _, id := range m.NodeIDs() {
			s[id] = types.NodeStatusPending
		}
		return s
	}

	t.Run("roots are ready immediately", func(t *testing.T) {
		got := m.ReadySet(pending())
		if len(got) != 1 || got[0] != "n1" {
			t.Errorf("expected [n1], got %v", got)
		}
	})

	t.Run("fan-out becomes ready together", func(t *testing.T) {
		s := pending()
		s["n1"] = types.NodeStatusDone
		s["n2"] = types.NodeStatusDone
		got := m.ReadySet(s)
		if len(got) != 2 || got[0] != "n3" || got[1] != "n4" {
			t.Errorf("expected [n3 n4], got %v", got)
		}
	})

	t.Run("merge waits for all predecessors", func(t *testing.T) {
		s := pending()
		s["n1"] = types.NodeStatusDone
		s["n2"] = types.NodeStatusDone
		s["n3"] = types.NodeStatusDone
		// n4 still pending: n5 must not be ready.
		got := m.ReadySet(s)
		if len(got) != 1 || got[0] != "n4" {
			t.Errorf("expected [n4], got %v", got)
		}

		s["n4"] = types.NodeStatusDone
		got = m.ReadySet(s)
		if len(got) != 1 || got[0] != "n5" {
			t.Errorf("expected [n5], got %v", got)
		}
	})

	t.Run("skipped predecessor never yields ready", func(t *testing.T) {
		s := pending()
		s["n1"] = types.NodeStatusDone
		s["n2"] = types.NodeStatusDone
		s["n3"] = types.NodeStatusDone
		s["n4"] = types.NodeStatusSkipped
		for _, id := range m.ReadySet(s) {
			if id == "n5" {
				t.Error("n5 must not be ready with a skipped predecessor")
			}
		}
	})
}

func TestDescendants(t *testing.T) {
	m, err := New(diamond())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	got := m.Descendants("n2")
	want := []string{"n3", "n4", "n5"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}

	if ds := m.Descendants("n5"); len(ds) != 0 {
		t.Errorf("leaf should have no descendants, got %v", ds)
	}
}
