package matcher

import (
	"context"
	"errors"
	"testing"

	"github.com/skillflow/orchestrator/internal/registry"
)

func seedRegistry(t *testing.T) *registry.MemoryRegistry {
	t.Helper()
	reg := registry.NewMemoryRegistry()
	ctx := context.Background()

	skills := []*registry.Skill{
		{
			Name:        "code-review",
			Description: "Review code changes for quality and correctness",
			Keywords:    []string{"review", "code", "quality"},
		},
		{
			Name:        "deploy-service",
			Description: "Deploy services to production with rollback support",
			Keywords:    []string{"deploy", "production", "rollback", "release"},
		},
		{
			Name:        "write-docs",
			Description: "Generate documentation from source",
			Keywords:    []string{"documentation", "generate"},
		},
	}
	for _, s := range skills {
		if _, err := reg.Register(ctx, s); err != nil {
			t.Fatalf("Register %s: %v", s.Name, err)
		}
	}
	return reg
}

func TestLexicalScore(t *testing.T) {
	skill := &registry.Skill{
		Name:        "code-review",
		Description: "Review code changes for quality and correctness",
		Keywords:    []string{"review", "code", "quality"},
	}

	t.Run("name match dominates", func(t *testing.T) {
		full := LexicalScore("code review for the payment service", skill)
		none := LexicalScore("translate marketing copy", skill)
		if full <= none {
			t.Fatalf("matching score %v not above non-matching %v", full, none)
		}
		if full <= nameWeight {
			t.Fatalf("score %v should exceed the name weight alone with keyword hits", full)
		}
	})

	t.Run("empty task scores zero", func(t *testing.T) {
		if got := LexicalScore("", skill); got != 0 {
			t.Fatalf("score = %v, want 0", got)
		}
	})

	t.Run("score capped at one", func(t *testing.T) {
		if got := LexicalScore("review code quality changes correctness", skill); got > 1 {
			t.Fatalf("score = %v, want <= 1", got)
		}
	})
}

func TestRankLexicalOrder(t *testing.T) {
	m := New(seedRegistry(t), nil, nil)

	ranked, err := m.Rank(context.Background(), "deploy the billing service to production")
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if len(ranked) != 3 {
		t.Fatalf("ranked = %d, want 3", len(ranked))
	}
	if ranked[0].Skill.Name != "deploy-service" {
		t.Fatalf("top = %q, want deploy-service", ranked[0].Skill.Name)
	}
	if ranked[0].FinalScore != ranked[0].LexicalScore {
		t.Fatal("without a semantic ranker, final score must equal lexical score")
	}
}

type fixedRanker struct {
	scores []SemanticScore
	err    error
}

func (f *fixedRanker) Rank(ctx context.Context, task string, candidates []*registry.Skill) ([]SemanticScore, error) {
	return f.scores, f.err
}

func TestRankHybridBlending(t *testing.T) {
	ranker := &fixedRanker{scores: []SemanticScore{
		{Name: "write-docs", Score: 0.95, Reason: "task asks for documentation"},
	}}
	m := New(seedRegistry(t), ranker, nil)

	ranked, err := m.Rank(context.Background(), "deploy new documentation")
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if ranked[0].Skill.Name != "write-docs" {
		t.Fatalf("top = %q, want write-docs promoted by semantic score", ranked[0].Skill.Name)
	}
	top := ranked[0]
	want := lexicalBlend*top.LexicalScore + semanticBlend*0.95
	if diff := top.FinalScore - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("final = %v, want %v", top.FinalScore, want)
	}
	if top.Reason == "" {
		t.Fatal("expected the semantic reason to be carried through")
	}
	// Skills the ranker did not mention keep a discounted lexical score.
	for _, r := range ranked[1:] {
		want := lexicalBlend * r.LexicalScore
		if diff := r.FinalScore - want; diff > 1e-9 || diff < -1e-9 {
			t.Fatalf("%s final = %v, want %v", r.Skill.Name, r.FinalScore, want)
		}
	}
}

func TestRankSemanticFailureFallsBack(t *testing.T) {
	ranker := &fixedRanker{err: errors.New("model unavailable")}
	m := New(seedRegistry(t), ranker, nil)

	ranked, err := m.Rank(context.Background(), "review the code changes")
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if ranked[0].Skill.Name != "code-review" {
		t.Fatalf("top = %q, want code-review from lexical fallback", ranked[0].Skill.Name)
	}
	if ranked[0].FinalScore != ranked[0].LexicalScore {
		t.Fatal("fallback must leave lexical scores as final")
	}
}

func TestTop(t *testing.T) {
	m := New(seedRegistry(t), nil, nil)
	top, err := m.Top(context.Background(), "review code", 1)
	if err != nil {
		t.Fatalf("Top: %v", err)
	}
	if len(top) != 1 || top[0].Skill.Name != "code-review" {
		t.Fatalf("top = %+v, want single code-review", top)
	}
}
