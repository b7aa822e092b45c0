// Package registry provides skill registration and discovery.
package registry

import (
	"context"
	"errors"
	"time"
)

// Common errors returned by SkillRegistry implementations.
var (
	ErrSkillNotFound = errors.New("skill not found")
	ErrSkillExists   = errors.New("skill already exists")
)

// Skill is the registered profile of a capability: what it is called, what
// it does, and the signals the matcher scores against.
type Skill struct {
	// Name is the unique identifier (e.g. "code-review")
	Name string `json:"name"`

	// Description is a one-line summary of what the skill does
	Description string `json:"description,omitempty"`

	// Keywords are discovery signals extracted from the skill's manifest
	Keywords []string `json:"keywords,omitempty"`

	// Scripts are executable entrypoints bundled with the skill
	Scripts []string `json:"scripts,omitempty"`

	// References are documentation files bundled with the skill
	References []string `json:"references,omitempty"`

	// Version is the skill version (semver recommended)
	Version string `json:"version,omitempty"`

	// Path is where the skill's directory lives on disk
	Path string `json:"path,omitempty"`

	// Command overrides how the skill is invoked; empty means the default
	// runner for its first script
	Command []string `json:"command,omitempty"`

	// Metadata holds additional key-value pairs
	Metadata map[string]string `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UpdateSkillRequest is the input for updating an existing skill.
// Nil pointer fields are left unchanged.
type UpdateSkillRequest struct {
	Description *string           `json:"description,omitempty"`
	Keywords    []string          `json:"keywords,omitempty"`
	Scripts     []string          `json:"scripts,omitempty"`
	References  []string          `json:"references,omitempty"`
	Version     *string           `json:"version,omitempty"`
	Path        *string           `json:"path,omitempty"`
	Command     []string          `json:"command,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// ListOptions configures list queries.
type ListOptions struct {
	// Keywords filters skills that carry ALL specified keywords
	Keywords []string

	// Limit is the maximum number of skills to return (0 = no limit)
	Limit int

	// Offset is the number of skills to skip (for pagination)
	Offset int
}

// SkillRegistry defines the interface for skill registration and discovery.
// Implementations must be safe for concurrent use.
type SkillRegistry interface {
	// Register adds a new skill. Returns ErrSkillExists if the name is taken.
	Register(ctx context.Context, skill *Skill) (*Skill, error)

	// Get retrieves a skill by name. Returns ErrSkillNotFound if absent.
	Get(ctx context.Context, name string) (*Skill, error)

	// Update modifies an existing skill. Returns ErrSkillNotFound if absent.
	Update(ctx context.Context, name string, req *UpdateSkillRequest) (*Skill, error)

	// Delete removes a skill. Returns ErrSkillNotFound if absent.
	Delete(ctx context.Context, name string) error

	// List returns all skills matching the options.
	List(ctx context.Context, opts *ListOptions) ([]*Skill, error)

	// Exists checks if a skill with the given name is registered.
	Exists(ctx context.Context, name string) (bool, error)

	// Close releases any resources.
	Close() error
}

// Validate checks that a skill is registrable.
func (s *Skill) Validate() error {
	if s.Name == "" {
		return errors.New("skill name is required")
	}
	if s.Description == "" {
		return errors.New("skill description is required")
	}
	return nil
}

func hasAllKeywords(skill *Skill, want []string) bool {
	for _, kw := range want {
		found := false
		for _, have := range skill.Keywords {
			if have == kw {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
