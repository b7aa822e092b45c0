package template

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/skillflow/orchestrator/pkg/types"
)

func deployTemplate() *types.Template {
	return &types.Template{
		Name:            "deploy-service",
		Description:     "Build, test and deploy a service",
		TriggerPatterns: []string{"deploy"},
		Variables: []types.TemplateVariable{
			{Name: "service", Required: true},
			{Name: "env", Required: false, Default: "staging"},
		},
		Graph: &types.Graph{
			Nodes: []types.Node{
				{ID: "build", Skill: "build", Inputs: []string{"build ${service}"}},
				{ID: "test", Skill: "test", Inputs: []string{"build.output"}},
				{ID: "ship", Skill: "deploy", Inputs: []string{"test.output"}, Config: map[string]string{"target": "${env}"}},
			},
			Edges: []types.Edge{{From: "build", To: "test"}, {From: "test", To: "ship"}},
		},
	}
}

func TestMemoryStoreCRUD(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	saved, err := s.Save(ctx, deployTemplate())
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if saved.CreatedAt.IsZero() {
		t.Fatal("expected CreatedAt to be set")
	}

	if _, err := s.Save(ctx, deployTemplate()); !errors.Is(err, ErrTemplateExists) {
		t.Fatalf("second Save err = %v, want ErrTemplateExists", err)
	}

	got, err := s.Get(ctx, "deploy-service")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got.Graph.Nodes) != 3 {
		t.Fatalf("graph nodes = %d, want 3", len(got.Graph.Nodes))
	}

	// Mutating the returned copy must not affect the stored template.
	got.Graph.Nodes[0].Skill = "mutated"
	again, _ := s.Get(ctx, "deploy-service")
	if again.Graph.Nodes[0].Skill != "build" {
		t.Fatal("stored template was mutated through a returned copy")
	}

	if err := s.Delete(ctx, "deploy-service"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "deploy-service"); !errors.Is(err, ErrTemplateNotFound) {
		t.Fatalf("Get after delete err = %v, want ErrTemplateNotFound", err)
	}
}

func TestMemoryStoreUpdateKeepsStats(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	if _, err := s.Save(ctx, deployTemplate()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.RecordOutcome(ctx, "deploy-service", true, 2*time.Second); err != nil {
		t.Fatalf("RecordOutcome: %v", err)
	}

	tpl := deployTemplate()
	tpl.Description = "updated"
	updated, err := s.Update(ctx, tpl)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Stats.UsageCount != 1 {
		t.Fatalf("usage count = %d, want 1 preserved across update", updated.Stats.UsageCount)
	}
	if updated.Description != "updated" {
		t.Fatalf("description = %q", updated.Description)
	}
}

func TestRecordOutcomeStats(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	if _, err := s.Save(ctx, deployTemplate()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	for _, c := range []struct {
		success  bool
		duration time.Duration
	}{
		{true, 2 * time.Second},
		{true, 4 * time.Second},
		{false, 6 * time.Second},
		{true, 4 * time.Second},
	} {
		if err := s.RecordOutcome(ctx, "deploy-service", c.success, c.duration); err != nil {
			t.Fatalf("RecordOutcome: %v", err)
		}
	}

	tpl, _ := s.Get(ctx, "deploy-service")
	if tpl.Stats.UsageCount != 4 {
		t.Fatalf("usage count = %d, want 4", tpl.Stats.UsageCount)
	}
	if diff := tpl.Stats.SuccessRate - 0.75; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("success rate = %v, want 0.75", tpl.Stats.SuccessRate)
	}
	if tpl.Stats.AvgDuration != 4*time.Second {
		t.Fatalf("avg duration = %v, want 4s", tpl.Stats.AvgDuration)
	}
}

func TestInstantiateSubstitutes(t *testing.T) {
	tpl := deployTemplate()
	g, err := Instantiate(tpl, map[string]string{"service": "billing"})
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	if g.Nodes[0].Inputs[0] != "build billing" {
		t.Fatalf("input = %q", g.Nodes[0].Inputs[0])
	}
	if g.Nodes[2].Config["target"] != "staging" {
		t.Fatalf("config target = %q, want default applied", g.Nodes[2].Config["target"])
	}
	// Output references survive untouched.
	if g.Nodes[1].Inputs[0] != "build.output" {
		t.Fatalf("reference input = %q", g.Nodes[1].Inputs[0])
	}
	// The template's own graph must be untouched.
	if tpl.Graph.Nodes[0].Inputs[0] != "build ${service}" {
		t.Fatal("template graph was mutated by instantiation")
	}
}

func TestInstantiateMissingRequired(t *testing.T) {
	_, err := Instantiate(deployTemplate(), nil)
	var missing *MissingVariableError
	if !errors.As(err, &missing) {
		t.Fatalf("err = %v, want MissingVariableError", err)
	}
	if missing.Variable != "service" {
		t.Fatalf("missing variable = %q", missing.Variable)
	}
}

func TestInstantiateUndeclaredPlaceholder(t *testing.T) {
	tpl := deployTemplate()
	tpl.Graph.Nodes[0].Inputs[0] = "build ${service} for ${region}"
	_, err := Instantiate(tpl, map[string]string{"service": "billing"})
	var unknown *UnknownVariableError
	if !errors.As(err, &unknown) {
		t.Fatalf("err = %v, want UnknownVariableError", err)
	}
	if unknown.Variable != "region" {
		t.Fatalf("unknown variable = %q", unknown.Variable)
	}
}

func TestMatcherRanksByPatternLength(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	broad := deployTemplate()
	broad.Name = "deploy-anything"
	broad.TriggerPatterns = []string{"deploy"}
	if _, err := s.Save(ctx, broad); err != nil {
		t.Fatalf("Save: %v", err)
	}

	specific := deployTemplate()
	specific.Name = "deploy-api"
	specific.TriggerPatterns = []string{"deploy the api"}
	if _, err := s.Save(ctx, specific); err != nil {
		t.Fatalf("Save: %v", err)
	}

	matches, err := NewMatcher(s).Match(ctx, "please Deploy the API to production")
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("matches = %d, want 2", len(matches))
	}
	if matches[0].Template.Name != "deploy-api" {
		t.Fatalf("top match = %q, want deploy-api", matches[0].Template.Name)
	}
}

func TestMatcherWhenExpression(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	tpl := deployTemplate()
	tpl.When = `task contains "production"`
	if _, err := s.Save(ctx, tpl); err != nil {
		t.Fatalf("Save: %v", err)
	}

	m := NewMatcher(s)
	if got, err := m.Best(ctx, "deploy to staging"); err != nil || got != nil {
		t.Fatalf("Best = %v, %v; want nil match", got, err)
	}
	got, err := m.Best(ctx, "deploy to production")
	if err != nil {
		t.Fatalf("Best: %v", err)
	}
	if got == nil || got.Template.Name != "deploy-service" {
		t.Fatalf("Best = %+v, want deploy-service", got)
	}
}

func TestMatcherNoTrigger(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	if _, err := s.Save(ctx, deployTemplate()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	matches, err := NewMatcher(s).Match(ctx, "summarize the quarterly report")
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("matches = %d, want 0", len(matches))
	}
}
