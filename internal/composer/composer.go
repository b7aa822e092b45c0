// Package composer turns a task into a runnable graph. The mode decides how
// much work goes into composition: from picking a single skill to building a
// multi-skill chain, reusing saved templates or saving new ones.
package composer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/skillflow/orchestrator/internal/matcher"
	"github.com/skillflow/orchestrator/internal/template"
	"github.com/skillflow/orchestrator/pkg/types"
)

// Mode selects a composition strategy.
type Mode string

const (
	// ModeQuick runs the single best-matching skill.
	ModeQuick Mode = "QUICK"
	// ModeStandard chains the top three matching skills.
	ModeStandard Mode = "STANDARD"
	// ModeDeep chains the top five matching skills and saves the result
	// as a reusable template.
	ModeDeep Mode = "DEEP"
	// ModeExpert reuses a triggered template when one exists, otherwise
	// falls back to ModeDeep.
	ModeExpert Mode = "EXPERT"
)

// ErrNoMatchingSkills is returned when ranking produces no usable skill.
var ErrNoMatchingSkills = errors.New("no matching skills for task")

// ParseMode normalizes a mode string. Empty defaults to STANDARD.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToUpper(s)) {
	case "":
		return ModeStandard, nil
	case ModeQuick:
		return ModeQuick, nil
	case ModeStandard:
		return ModeStandard, nil
	case ModeDeep:
		return ModeDeep, nil
	case ModeExpert:
		return ModeExpert, nil
	}
	return "", fmt.Errorf("unknown composition mode %q", s)
}

func (m Mode) skillBudget() int {
	switch m {
	case ModeQuick:
		return 1
	case ModeStandard:
		return 3
	default:
		return 5
	}
}

// Composition is the result of composing a task: the graph to run, plus how
// it came to be. FromTemplate names the template when one was used, and
// Variables carries the values it was instantiated with.
type Composition struct {
	Graph        *types.Graph           `json:"graph"`
	Mode         Mode                   `json:"mode"`
	Skills       []*matcher.RankedSkill `json:"skills,omitempty"`
	FromTemplate string                 `json:"from_template,omitempty"`
	SavedAs      string                 `json:"saved_as,omitempty"`
	Variables    map[string]string      `json:"variables,omitempty"`
}

// Composer builds graphs from tasks. The template store may be nil, which
// disables template reuse and auto-save.
type Composer struct {
	matcher   *matcher.Matcher
	templates template.Store
	tplMatch  *template.Matcher
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a composer.
func New(m *matcher.Matcher, templates template.Store, logger *slog.Logger) *Composer {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Composer{matcher: m, templates: templates, logger: logger, now: time.Now}
	if templates != nil {
		c.tplMatch = template.NewMatcher(templates)
	}
	return c
}

// Compose builds a graph for the task according to the mode. vars are
// template variables, only consulted when a template is used.
func (c *Composer) Compose(ctx context.Context, task string, mode Mode, vars map[string]string) (*Composition, error) {
	switch mode {
	case ModeQuick, ModeStandard:
		return c.composeChain(ctx, task, mode)
	case ModeDeep:
		comp, err := c.composeChain(ctx, task, mode)
		if err != nil {
			return nil, err
		}
		c.autoSave(ctx, task, comp)
		return comp, nil
	case ModeExpert:
		return c.composeExpert(ctx, task, vars)
	}
	return nil, fmt.Errorf("unknown composition mode %q", mode)
}

// composeChain ranks skills and links the top ones into a linear chain
// n0 -> n1 -> ..., each node feeding its predecessor's output forward.
func (c *Composer) composeChain(ctx context.Context, task string, mode Mode) (*Composition, error) {
	ranked, err := c.matcher.Top(ctx, task, mode.skillBudget())
	if err != nil {
		return nil, err
	}
	ranked = withScore(ranked)
	if len(ranked) == 0 {
		return nil, ErrNoMatchingSkills
	}

	g := &types.Graph{ID: fmt.Sprintf("%s-%s", strings.ToLower(string(mode)), slug(task))}
	var prev string
	for i, r := range ranked {
		node := types.Node{
			ID:    fmt.Sprintf("n%d", i),
			Skill: r.Skill.Name,
		}
		if prev == "" {
			node.Inputs = []string{task}
		} else {
			node.Inputs = []string{types.OutputKey(prev)}
			g.Edges = append(g.Edges, types.Edge{From: prev, To: node.ID})
		}
		g.Nodes = append(g.Nodes, node)
		prev = node.ID
	}

	c.logger.Info("composed chain", "mode", mode, "nodes", len(g.Nodes), "graph", g.ID)
	return &Composition{Graph: g, Mode: mode, Skills: ranked}, nil
}

func (c *Composer) composeExpert(ctx context.Context, task string, vars map[string]string) (*Composition, error) {
	if c.tplMatch != nil {
		match, err := c.tplMatch.Best(ctx, task)
		if err != nil {
			return nil, err
		}
		if match != nil {
			g, err := template.Instantiate(match.Template, vars)
			if err != nil {
				return nil, err
			}
			c.logger.Info("composed from template", "template", match.Template.Name, "pattern", match.Pattern)
			return &Composition{
				Graph:        g,
				Mode:         ModeExpert,
				FromTemplate: match.Template.Name,
				Variables:    vars,
			}, nil
		}
	}

	// No template triggered; build and save the deep chain instead.
	comp, err := c.composeChain(ctx, task, ModeDeep)
	if err != nil {
		return nil, err
	}
	comp.Mode = ModeExpert
	c.autoSave(ctx, task, comp)
	return comp, nil
}

// autoSave stores the composed graph as a template keyed by the task prefix
// so future EXPERT runs of similar tasks reuse it. Save failures are logged,
// not fatal.
func (c *Composer) autoSave(ctx context.Context, task string, comp *Composition) {
	if c.templates == nil {
		return
	}
	name := "auto-" + c.now().UTC().Format("20060102-150405")
	tpl := &types.Template{
		Name:            name,
		Description:     clip(task, 100),
		TriggerPatterns: []string{clip(task, 50)},
		Graph:           comp.Graph,
	}
	if _, err := c.templates.Save(ctx, tpl); err != nil {
		c.logger.Warn("auto-save template failed", "template", name, "error", err)
		return
	}
	comp.SavedAs = name
	c.logger.Info("auto-saved template", "template", name)
}

// withScore drops trailing candidates that scored zero; a chain of
// irrelevant skills is worse than failing composition outright.
func withScore(ranked []*matcher.RankedSkill) []*matcher.RankedSkill {
	out := ranked[:0:0]
	for _, r := range ranked {
		if r.FinalScore > 0 {
			out = append(out, r)
		}
	}
	return out
}

// clip truncates to n characters, never splitting a multi-byte rune.
func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func slug(task string) string {
	words := strings.Fields(strings.ToLower(task))
	if len(words) > 4 {
		words = words[:4]
	}
	var b strings.Builder
	for i, w := range words {
		if i > 0 {
			b.WriteByte('-')
		}
		for _, r := range w {
			if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
				b.WriteRune(r)
			}
		}
	}
	if b.Len() == 0 {
		return "task"
	}
	return b.String()
}
