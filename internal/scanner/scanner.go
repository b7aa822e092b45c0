// Package scanner discovers skills on disk. A skill is a directory with a
// SKILL.md manifest carrying YAML frontmatter; the scanner extracts the
// skill's profile from it and registers the result.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/skillflow/orchestrator/internal/metrics"
	"github.com/skillflow/orchestrator/internal/registry"
)

// ErrNoManifest is returned when a skill directory has no SKILL.md.
var ErrNoManifest = errors.New("no SKILL.md manifest")

// frontmatter is the YAML header of a SKILL.md.
type frontmatter struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Version     string `yaml:"version"`
}

var frontmatterRe = regexp.MustCompile(`(?s)^---\s*\n(.*?)\n---`)

// Scanner walks a skills root directory and registers what it finds.
type Scanner struct {
	root   string
	reg    registry.SkillRegistry
	logger *slog.Logger
}

// New creates a scanner over the given skills root.
func New(root string, reg registry.SkillRegistry, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{root: root, reg: reg, logger: logger}
}

// Scan walks the root, parses every skill directory and registers the
// results, replacing any previously registered version. It returns the
// number of skills indexed.
func (s *Scanner) Scan(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return 0, fmt.Errorf("read skills root %s: %w", s.root, err)
	}

	count := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") || name == "common" {
			continue
		}

		skill, err := ParseSkillDir(filepath.Join(s.root, name))
		if errors.Is(err, ErrNoManifest) {
			continue
		}
		if err != nil {
			s.logger.Warn("skipping skill", "dir", name, "error", err)
			continue
		}

		if err := s.register(ctx, skill); err != nil {
			return count, err
		}
		count++
	}

	metrics.SkillsIndexed.Set(float64(count))
	s.logger.Info("skill scan complete", "root", s.root, "indexed", count)
	return count, nil
}

func (s *Scanner) register(ctx context.Context, skill *registry.Skill) error {
	_, err := s.reg.Register(ctx, skill)
	if err == registry.ErrSkillExists {
		_, err = s.reg.Update(ctx, skill.Name, &registry.UpdateSkillRequest{
			Description: &skill.Description,
			Keywords:    skill.Keywords,
			Scripts:     skill.Scripts,
			References:  skill.References,
			Version:     &skill.Version,
			Path:        &skill.Path,
		})
	}
	if err != nil {
		return fmt.Errorf("register skill %s: %w", skill.Name, err)
	}
	return nil
}

// ParseSkillDir reads a single skill directory into a registry entry.
// The manifest must declare both a name and a description.
func ParseSkillDir(dir string) (*registry.Skill, error) {
	raw, err := os.ReadFile(filepath.Join(dir, "SKILL.md"))
	if os.IsNotExist(err) {
		return nil, ErrNoManifest
	}
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	fm, err := parseFrontmatter(raw)
	if err != nil {
		return nil, err
	}
	if fm.Name == "" || fm.Description == "" {
		return nil, fmt.Errorf("manifest in %s missing name or description", dir)
	}
	if fm.Version == "" {
		fm.Version = "1.0.0"
	}

	return &registry.Skill{
		Name:        fm.Name,
		Description: fm.Description,
		Keywords:    ExtractKeywords(fm.Description),
		Scripts:     listFiles(filepath.Join(dir, "scripts")),
		References:  listFiles(filepath.Join(dir, "references")),
		Version:     fm.Version,
		Path:        dir,
	}, nil
}

func parseFrontmatter(content []byte) (*frontmatter, error) {
	m := frontmatterRe.FindSubmatch(content)
	if m == nil {
		return nil, errors.New("manifest has no YAML frontmatter")
	}
	var fm frontmatter
	if err := yaml.Unmarshal(m[1], &fm); err != nil {
		return nil, fmt.Errorf("parse frontmatter: %w", err)
	}
	return &fm, nil
}

func listFiles(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names
}

// Signal vocabularies the keyword extractor recognizes in descriptions.
// Matches become discovery keywords alongside any remaining significant words.
var keywordPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(build|create|generate|implement|develop|design)\b`),
	regexp.MustCompile(`\b(analyze|debug|test|validate|review|optimize)\b`),
	regexp.MustCompile(`\b(deploy|configure|setup|install|manage)\b`),
	regexp.MustCompile(`\b(process|transform|convert|parse|extract)\b`),
	regexp.MustCompile(`\b(search|query|fetch|retrieve|discover)\b`),
	regexp.MustCompile(`\b(authenticate|authorize|login|auth|oauth|jwt|session)\b`),
	regexp.MustCompile(`\b(payment|checkout|stripe|billing|subscription)\b`),
	regexp.MustCompile(`\b(database|db|sql|nosql|schema|migration)\b`),
	regexp.MustCompile(`\b(frontend|backend|fullstack|full-stack|api)\b`),
	regexp.MustCompile(`\b(mobile|ios|android|native|app)\b`),
	regexp.MustCompile(`\b(cloud|serverless|docker|kubernetes|k8s)\b`),
	regexp.MustCompile(`\b(ui|ux|design|styling|component|layout)\b`),
	regexp.MustCompile(`\b(image|video|audio|media|file)\b`),
	regexp.MustCompile(`\b(chart|graph|visualization|dashboard)\b`),
	regexp.MustCompile(`\b(e-commerce|ecommerce|shop|store|cart)\b`),
	regexp.MustCompile(`\b(react|next\.?js|vue|angular|svelte|remix)\b`),
	regexp.MustCompile(`\b(node\.?js|python|typescript|javascript|go|rust)\b`),
	regexp.MustCompile(`\b(mongodb|postgresql|postgres|redis|mysql|sqlite)\b`),
	regexp.MustCompile(`\b(docker|kubernetes|aws|gcp|azure|cloudflare)\b`),
	regexp.MustCompile(`\b(api|rest|graphql|grpc|websocket)\b`),
	regexp.MustCompile(`\b(css|html|tailwind|sass|scss)\b`),
	regexp.MustCompile(`\b(express|fastapi|nestjs|django|flask)\b`),
	regexp.MustCompile(`\b(gemini|openai|anthropic|claude|gpt)\b`),
	regexp.MustCompile(`\b(three\.?js|webgl|canvas|svg)\b`),
}

var wordRe = regexp.MustCompile(`\b([a-z][a-z0-9-]{3,})\b`)

var stopWords = map[string]struct{}{
	"this": {}, "that": {}, "with": {}, "from": {}, "have": {}, "been": {},
	"will": {}, "would": {}, "could": {}, "should": {}, "when": {}, "where": {},
	"what": {}, "which": {}, "their": {}, "there": {}, "these": {}, "those": {},
	"your": {}, "about": {}, "into": {}, "over": {}, "such": {}, "only": {},
	"other": {}, "some": {}, "than": {}, "then": {}, "them": {}, "well": {},
	"also": {}, "back": {}, "after": {}, "most": {}, "made": {}, "being": {},
	"through": {}, "using": {}, "used": {}, "uses": {}, "need": {}, "needs": {},
	"like": {}, "make": {}, "just": {},
}

// ExtractKeywords derives discovery keywords from a skill description:
// matches against the signal vocabularies plus any significant word of four
// or more characters that is not a stop word. The result is sorted.
func ExtractKeywords(text string) []string {
	lower := strings.ToLower(text)
	set := make(map[string]struct{})

	for _, re := range keywordPatterns {
		for _, m := range re.FindAllStringSubmatch(lower, -1) {
			set[m[1]] = struct{}{}
		}
	}

	for _, m := range wordRe.FindAllStringSubmatch(lower, -1) {
		word := m[1]
		if _, stop := stopWords[word]; stop {
			continue
		}
		if strings.HasPrefix(word, "http") {
			continue
		}
		set[word] = struct{}{}
	}

	out := make([]string, 0, len(set))
	for kw := range set {
		out = append(out, kw)
	}
	sort.Strings(out)
	return out
}
