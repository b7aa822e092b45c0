// Package template provides saved, parameterized workflow templates:
// persistence, ${var} instantiation, trigger matching and outcome stats.
package template

import (
	"context"
	"errors"
	"time"

	"github.com/skillflow/orchestrator/pkg/types"
)

// Common errors returned by Store implementations.
var (
	ErrTemplateNotFound = errors.New("template not found")
	ErrTemplateExists   = errors.New("template already exists")
)

// ListOptions configures list queries.
type ListOptions struct {
	Limit  int
	Offset int
}

// Store defines the interface for template persistence.
// Implementations must be safe for concurrent use.
type Store interface {
	// Save stores a new template. Returns ErrTemplateExists if the name is taken.
	Save(ctx context.Context, tpl *types.Template) (*types.Template, error)

	// Get retrieves a template by name. Returns ErrTemplateNotFound if absent.
	Get(ctx context.Context, name string) (*types.Template, error)

	// Update replaces an existing template's definition, keeping its stats.
	Update(ctx context.Context, tpl *types.Template) (*types.Template, error)

	// Delete removes a template. Returns ErrTemplateNotFound if absent.
	Delete(ctx context.Context, name string) error

	// List returns stored templates.
	List(ctx context.Context, opts *ListOptions) ([]*types.Template, error)

	// RecordOutcome folds a finished run into the template's stats.
	RecordOutcome(ctx context.Context, name string, success bool, duration time.Duration) error

	// Close releases any resources.
	Close() error
}

func validate(tpl *types.Template) error {
	if tpl.Name == "" {
		return errors.New("template name is required")
	}
	if tpl.Graph == nil || len(tpl.Graph.Nodes) == 0 {
		return errors.New("template graph is required")
	}
	return nil
}

// foldOutcome updates stats in place with one more observed run.
func foldOutcome(stats *types.TemplateStats, success bool, duration time.Duration) {
	n := float64(stats.UsageCount)
	succ := stats.SuccessRate * n
	if success {
		succ++
	}
	total := time.Duration(float64(stats.AvgDuration) * n)
	stats.UsageCount++
	stats.SuccessRate = succ / float64(stats.UsageCount)
	stats.AvgDuration = (total + duration) / time.Duration(stats.UsageCount)
}
