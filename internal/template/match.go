package template

import (
	"context"
	"sort"
	"strings"

	"github.com/expr-lang/expr"

	"github.com/skillflow/orchestrator/pkg/types"
)

// Match holds a template that triggered for a task, with its match strength.
type Match struct {
	Template *types.Template
	Pattern  string
}

// Matcher finds stored templates whose triggers fire for a task.
type Matcher struct {
	store Store
}

// NewMatcher creates a matcher over a template store.
func NewMatcher(store Store) *Matcher {
	return &Matcher{store: store}
}

// Match returns templates triggered by the task, strongest first. A template
// triggers when any of its patterns is a case-insensitive substring of the
// task; an optional When expression must additionally evaluate to true.
// Ranking: longest matched pattern, then success rate, then usage count.
func (m *Matcher) Match(ctx context.Context, task string) ([]*Match, error) {
	templates, err := m.store.List(ctx, nil)
	if err != nil {
		return nil, err
	}

	lower := strings.ToLower(task)
	var matches []*Match
	for _, tpl := range templates {
		pattern := longestTrigger(tpl.TriggerPatterns, lower)
		if pattern == "" {
			continue
		}
		if tpl.When != "" {
			ok, err := evalWhen(tpl.When, task)
			if err != nil || !ok {
				continue
			}
		}
		matches = append(matches, &Match{Template: tpl, Pattern: pattern})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if len(a.Pattern) != len(b.Pattern) {
			return len(a.Pattern) > len(b.Pattern)
		}
		if a.Template.Stats.SuccessRate != b.Template.Stats.SuccessRate {
			return a.Template.Stats.SuccessRate > b.Template.Stats.SuccessRate
		}
		return a.Template.Stats.UsageCount > b.Template.Stats.UsageCount
	})
	return matches, nil
}

// Best returns the single strongest match, or nil when nothing triggers.
func (m *Matcher) Best(ctx context.Context, task string) (*Match, error) {
	matches, err := m.Match(ctx, task)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, nil
	}
	return matches[0], nil
}

func longestTrigger(patterns []string, lowerTask string) string {
	best := ""
	for _, p := range patterns {
		if p == "" {
			continue
		}
		if strings.Contains(lowerTask, strings.ToLower(p)) && len(p) > len(best) {
			best = p
		}
	}
	return best
}

func evalWhen(code, task string) (bool, error) {
	env := map[string]interface{}{"task": task}
	program, err := expr.Compile(code, expr.Env(env), expr.AsBool())
	if err != nil {
		return false, err
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return false, err
	}
	ok, _ := out.(bool)
	return ok, nil
}
