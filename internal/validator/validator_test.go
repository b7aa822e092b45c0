package validator

import "testing"

func newValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return v
}

func TestValidateGraph(t *testing.T) {
	v := newValidator(t)

	t.Run("valid", func(t *testing.T) {
		result := v.ValidateGraph(map[string]interface{}{
			"id": "review-pipeline",
			"nodes": []interface{}{
				map[string]interface{}{"id": "n0", "skill": "code-review", "inputs": []interface{}{"check this"}},
				map[string]interface{}{"id": "n1", "skill": "write-docs", "inputs": []interface{}{"n0.output"}},
			},
			"edges": []interface{}{
				map[string]interface{}{"from": "n0", "to": "n1"},
			},
		})
		if !result.Valid {
			t.Fatalf("expected valid, errors: %v", result.Errors)
		}
	})

	t.Run("missing nodes", func(t *testing.T) {
		result := v.ValidateGraph(map[string]interface{}{"id": "empty"})
		if result.Valid {
			t.Fatal("expected invalid")
		}
	})

	t.Run("node without skill", func(t *testing.T) {
		result := v.ValidateGraph(map[string]interface{}{
			"nodes": []interface{}{
				map[string]interface{}{"id": "n0"},
			},
		})
		if result.Valid {
			t.Fatal("expected invalid")
		}
	})

	t.Run("bad node id", func(t *testing.T) {
		result := v.ValidateGraph(map[string]interface{}{
			"nodes": []interface{}{
				map[string]interface{}{"id": "0-bad", "skill": "x"},
			},
		})
		if result.Valid {
			t.Fatal("expected invalid")
		}
	})

	t.Run("edge without to", func(t *testing.T) {
		result := v.ValidateGraph(map[string]interface{}{
			"nodes": []interface{}{
				map[string]interface{}{"id": "n0", "skill": "x"},
			},
			"edges": []interface{}{
				map[string]interface{}{"from": "n0"},
			},
		})
		if result.Valid {
			t.Fatal("expected invalid")
		}
	})
}

func TestValidateSkill(t *testing.T) {
	v := newValidator(t)

	t.Run("valid", func(t *testing.T) {
		result := v.ValidateSkill(map[string]interface{}{
			"name":        "code-review",
			"description": "Reviews code for quality issues",
			"version":     "1.2.0",
			"keywords":    []interface{}{"review", "quality"},
		})
		if !result.Valid {
			t.Fatalf("expected valid, errors: %v", result.Errors)
		}
	})

	t.Run("missing description", func(t *testing.T) {
		result := v.ValidateSkill(map[string]interface{}{"name": "code-review"})
		if result.Valid {
			t.Fatal("expected invalid")
		}
		if len(result.Errors) == 0 {
			t.Fatal("expected at least one error")
		}
	})

	t.Run("uppercase name", func(t *testing.T) {
		result := v.ValidateSkill(map[string]interface{}{
			"name":        "CodeReview",
			"description": "nope",
		})
		if result.Valid {
			t.Fatal("expected invalid")
		}
	})

	t.Run("bad version", func(t *testing.T) {
		result := v.ValidateSkill(map[string]interface{}{
			"name":        "code-review",
			"description": "ok",
			"version":     "one",
		})
		if result.Valid {
			t.Fatal("expected invalid")
		}
	})
}

func TestValidateJSON(t *testing.T) {
	v := newValidator(t)

	t.Run("malformed graph JSON", func(t *testing.T) {
		result := v.ValidateGraphJSON([]byte(`{"nodes": [`))
		if result.Valid {
			t.Fatal("expected invalid")
		}
		if result.Errors[0].Path != "$" {
			t.Fatalf("path = %q", result.Errors[0].Path)
		}
	})

	t.Run("valid skill JSON", func(t *testing.T) {
		result := v.ValidateSkillJSON([]byte(`{"name": "deploy", "description": "Ships a service"}`))
		if !result.Valid {
			t.Fatalf("expected valid, errors: %v", result.Errors)
		}
	})
}
