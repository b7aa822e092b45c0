package registry

import (
	"context"
	"testing"
)

func TestMemoryRegistry_Register(t *testing.T) {
	reg := NewMemoryRegistry()
	defer reg.Close()
	ctx := context.Background()

	t.Run("registers new skill", func(t *testing.T) {
		skill := &Skill{
			Name:        "code-review",
			Description: "Review code changes for defects",
			Keywords:    []string{"review", "code", "quality"},
			Scripts:     []string{"review.py"},
			Version:     "1.0.0",
		}

		got, err := reg.Register(ctx, skill)
		if err != nil {
			t.Fatalf("Register failed: %v", err)
		}

		if got.Name != skill.Name {
			t.Errorf("expected Name %q, got %q", skill.Name, got.Name)
		}
		if got.CreatedAt.IsZero() {
			t.Error("CreatedAt should be set")
		}
		if got.UpdatedAt.IsZero() {
			t.Error("UpdatedAt should be set")
		}
	})

	t.Run("returns error for duplicate name", func(t *testing.T) {
		skill := &Skill{Name: "dup", Description: "first"}

		if _, err := reg.Register(ctx, skill); err != nil {
			t.Fatalf("first Register failed: %v", err)
		}
		if _, err := reg.Register(ctx, skill); err != ErrSkillExists {
			t.Errorf("expected ErrSkillExists, got %v", err)
		}
	})

	t.Run("validates required fields", func(t *testing.T) {
		tests := []struct {
			name  string
			skill *Skill
		}{
			{"missing name", &Skill{Description: "no name"}},
			{"missing description", &Skill{Name: "no-description"}},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				if _, err := reg.Register(ctx, tt.skill); err == nil {
					t.Error("expected validation error")
				}
			})
		}
	})
}

func TestMemoryRegistry_Get(t *testing.T) {
	reg := NewMemoryRegistry()
	defer reg.Close()
	ctx := context.Background()

	if _, err := reg.Register(ctx, &Skill{
		Name:        "summarize",
		Description: "Summarize documents",
		Keywords:    []string{"summary", "text"},
	}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	t.Run("returns registered skill", func(t *testing.T) {
		skill, err := reg.Get(ctx, "summarize")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if skill.Description != "Summarize documents" {
			t.Errorf("description = %q", skill.Description)
		}
	})

	t.Run("returns ErrSkillNotFound for unknown name", func(t *testing.T) {
		if _, err := reg.Get(ctx, "nope"); err != ErrSkillNotFound {
			t.Errorf("expected ErrSkillNotFound, got %v", err)
		}
	})

	t.Run("returned skill is a copy", func(t *testing.T) {
		skill, _ := reg.Get(ctx, "summarize")
		skill.Keywords[0] = "mutated"

		again, _ := reg.Get(ctx, "summarize")
		if again.Keywords[0] != "summary" {
			t.Error("stored skill was mutated through a returned copy")
		}
	})
}

func TestMemoryRegistry_Update(t *testing.T) {
	reg := NewMemoryRegistry()
	defer reg.Close()
	ctx := context.Background()

	if _, err := reg.Register(ctx, &Skill{
		Name:        "deploy",
		Description: "Deploy a service",
		Version:     "1.0.0",
	}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	t.Run("applies partial updates", func(t *testing.T) {
		version := "2.0.0"
		skill, err := reg.Update(ctx, "deploy", &UpdateSkillRequest{
			Version:  &version,
			Keywords: []string{"deploy", "release"},
		})
		if err != nil {
			t.Fatalf("Update failed: %v", err)
		}
		if skill.Version != "2.0.0" {
			t.Errorf("version = %q", skill.Version)
		}
		if len(skill.Keywords) != 2 {
			t.Errorf("keywords = %v", skill.Keywords)
		}
		if skill.Description != "Deploy a service" {
			t.Errorf("description changed unexpectedly: %q", skill.Description)
		}
	})

	t.Run("returns ErrSkillNotFound for unknown name", func(t *testing.T) {
		if _, err := reg.Update(ctx, "nope", &UpdateSkillRequest{}); err != ErrSkillNotFound {
			t.Errorf("expected ErrSkillNotFound, got %v", err)
		}
	})
}

func TestMemoryRegistry_Delete(t *testing.T) {
	reg := NewMemoryRegistry()
	defer reg.Close()
	ctx := context.Background()

	if _, err := reg.Register(ctx, &Skill{Name: "temp", Description: "temporary"}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if err := reg.Delete(ctx, "temp"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := reg.Get(ctx, "temp"); err != ErrSkillNotFound {
		t.Errorf("expected ErrSkillNotFound after delete, got %v", err)
	}
	if err := reg.Delete(ctx, "temp"); err != ErrSkillNotFound {
		t.Errorf("expected ErrSkillNotFound on double delete, got %v", err)
	}
}

func TestMemoryRegistry_List(t *testing.T) {
	reg := NewMemoryRegistry()
	defer reg.Close()
	ctx := context.Background()

	seed := []*Skill{
		{Name: "analyze", Description: "d", Keywords: []string{"analysis", "code"}},
		{Name: "build", Description: "d", Keywords: []string{"build", "code"}},
		{Name: "report", Description: "d", Keywords: []string{"report"}},
	}
	for _, s := range seed {
		if _, err := reg.Register(ctx, s); err != nil {
			t.Fatalf("Register %s: %v", s.Name, err)
		}
	}

	t.Run("lists all sorted by name", func(t *testing.T) {
		skills, err := reg.List(ctx, nil)
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(skills) != 3 {
			t.Fatalf("got %d skills, want 3", len(skills))
		}
		if skills[0].Name != "analyze" || skills[2].Name != "report" {
			t.Errorf("unexpected order: %s, %s, %s", skills[0].Name, skills[1].Name, skills[2].Name)
		}
	})

	t.Run("filters by keywords", func(t *testing.T) {
		skills, err := reg.List(ctx, &ListOptions{Keywords: []string{"code"}})
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(skills) != 2 {
			t.Fatalf("got %d skills, want 2", len(skills))
		}
	})

	t.Run("applies offset and limit", func(t *testing.T) {
		skills, err := reg.List(ctx, &ListOptions{Offset: 1, Limit: 1})
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(skills) != 1 || skills[0].Name != "build" {
			t.Errorf("got %+v, want single build", skills)
		}
	})

	t.Run("offset past end returns empty", func(t *testing.T) {
		skills, err := reg.List(ctx, &ListOptions{Offset: 10})
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(skills) != 0 {
			t.Errorf("got %d skills, want 0", len(skills))
		}
	})
}

func TestMemoryRegistry_Exists(t *testing.T) {
	reg := NewMemoryRegistry()
	defer reg.Close()
	ctx := context.Background()

	if _, err := reg.Register(ctx, &Skill{Name: "here", Description: "d"}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	ok, err := reg.Exists(ctx, "here")
	if err != nil || !ok {
		t.Errorf("Exists(here) = %v, %v; want true, nil", ok, err)
	}
	ok, err = reg.Exists(ctx, "gone")
	if err != nil || ok {
		t.Errorf("Exists(gone) = %v, %v; want false, nil", ok, err)
	}
}
