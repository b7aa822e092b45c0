// Package matcher ranks registered skills against a task description using
// lexical scoring, optionally refined by a semantic ranker.
package matcher

import (
	"context"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/skillflow/orchestrator/internal/metrics"
	"github.com/skillflow/orchestrator/internal/registry"
)

// Scoring weights. Name matches carry the most signal, then keyword overlap,
// then raw description hits. When a semantic ranker contributes, its score
// dominates the lexical one.
const (
	nameWeight        = 0.4
	keywordWeight     = 0.35
	descriptionWeight = 0.25

	lexicalBlend  = 0.4
	semanticBlend = 0.6

	// keywordCap limits how many keywords count toward the denominator so
	// keyword-heavy skills are not penalized.
	keywordCap = 20

	// semanticCandidates caps how many top lexical hits are sent for
	// semantic refinement.
	semanticCandidates = 20
)

var taskWordRe = regexp.MustCompile(`\b[a-z][a-z0-9-]{2,}\b`)

// SemanticScore is one skill's relevance as judged by a semantic ranker.
type SemanticScore struct {
	Name   string  `json:"name"`
	Score  float64 `json:"score"`
	Reason string  `json:"reason,omitempty"`
}

// SemanticRanker refines a lexical ranking, typically by calling a model.
// Implementations receive candidates in lexical order, strongest first.
type SemanticRanker interface {
	Rank(ctx context.Context, task string, candidates []*registry.Skill) ([]SemanticScore, error)
}

// RankedSkill is a skill with its scores for a particular task.
type RankedSkill struct {
	Skill        *registry.Skill `json:"skill"`
	LexicalScore float64         `json:"lexical_score"`
	Semantic     float64         `json:"semantic_score,omitempty"`
	FinalScore   float64         `json:"final_score"`
	Reason       string          `json:"reason,omitempty"`
}

// Matcher ranks skills from a registry. A nil semantic ranker means purely
// lexical ranking.
type Matcher struct {
	reg      registry.SkillRegistry
	semantic SemanticRanker
	logger   *slog.Logger
}

// New creates a matcher. semantic may be nil.
func New(reg registry.SkillRegistry, semantic SemanticRanker, logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{reg: reg, semantic: semantic, logger: logger}
}

// Rank scores every registered skill against the task and returns them
// strongest first. A failing semantic ranker degrades to lexical-only
// ranking rather than failing the request.
func (m *Matcher) Rank(ctx context.Context, task string) ([]*RankedSkill, error) {
	skills, err := m.reg.List(ctx, nil)
	if err != nil {
		return nil, err
	}

	ranked := make([]*RankedSkill, 0, len(skills))
	for _, skill := range skills {
		score := LexicalScore(task, skill)
		ranked = append(ranked, &RankedSkill{Skill: skill, LexicalScore: score, FinalScore: score})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].LexicalScore > ranked[j].LexicalScore })

	if m.semantic == nil {
		metrics.MatchRequests.WithLabelValues("lexical").Inc()
		return ranked, nil
	}

	candidates := ranked
	if len(candidates) > semanticCandidates {
		candidates = candidates[:semanticCandidates]
	}
	skillArgs := make([]*registry.Skill, len(candidates))
	for i, r := range candidates {
		skillArgs[i] = r.Skill
	}

	scores, err := m.semantic.Rank(ctx, task, skillArgs)
	if err != nil || len(scores) == 0 {
		if err != nil {
			m.logger.Warn("semantic ranking failed, using lexical only", "error", err)
		}
		metrics.MatchRequests.WithLabelValues("lexical").Inc()
		return ranked, nil
	}

	byName := make(map[string]SemanticScore, len(scores))
	for _, s := range scores {
		byName[s.Name] = s
	}
	for _, r := range ranked {
		if s, ok := byName[r.Skill.Name]; ok {
			r.Semantic = s.Score
			r.Reason = s.Reason
			r.FinalScore = lexicalBlend*r.LexicalScore + semanticBlend*s.Score
		} else {
			r.FinalScore = lexicalBlend * r.LexicalScore
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].FinalScore > ranked[j].FinalScore })

	metrics.MatchRequests.WithLabelValues("hybrid").Inc()
	return ranked, nil
}

// Top returns the n strongest matches for the task.
func (m *Matcher) Top(ctx context.Context, task string, n int) ([]*RankedSkill, error) {
	ranked, err := m.Rank(ctx, task)
	if err != nil {
		return nil, err
	}
	if n > 0 && len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked, nil
}

// LexicalScore computes the weighted keyword relevance of a skill for a
// task, in [0, 1]. Name word overlap scores highest, then overlap with the
// skill's extracted keywords, then task words appearing in the description.
func LexicalScore(task string, skill *registry.Skill) float64 {
	taskWords := wordSet(strings.ToLower(task))
	if len(taskWords) == 0 {
		return 0
	}

	name := strings.ToLower(strings.ReplaceAll(skill.Name, "-", " "))
	description := strings.ToLower(skill.Description)

	if len(skill.Keywords) == 0 && name == "" {
		return 0
	}

	score := 0.0

	nameWords := wordSet(name)
	if n := overlap(taskWords, nameWords); n > 0 {
		score += nameWeight * float64(n) / float64(len(nameWords))
	}

	if len(skill.Keywords) > 0 {
		kwSet := make(map[string]struct{}, len(skill.Keywords))
		for _, kw := range skill.Keywords {
			kwSet[kw] = struct{}{}
		}
		denom := len(skill.Keywords)
		if denom > keywordCap {
			denom = keywordCap
		}
		score += keywordWeight * float64(overlap(taskWords, kwSet)) / float64(denom)
	}

	descHits := 0
	for w := range taskWords {
		if strings.Contains(description, w) {
			descHits++
		}
	}
	frac := float64(descHits) / float64(len(taskWords))
	if frac > 1 {
		frac = 1
	}
	score += descriptionWeight * frac

	if score > 1 {
		score = 1
	}
	return score
}

func wordSet(s string) map[string]struct{} {
	words := taskWordRe.FindAllString(s, -1)
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

func overlap(a, b map[string]struct{}) int {
	n := 0
	for w := range a {
		if _, ok := b[w]; ok {
			n++
		}
	}
	return n
}
