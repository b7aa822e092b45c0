package registry

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRegistry implements SkillRegistry using in-memory storage.
// Suitable for testing and local development. It is also the live registry
// the scanner repopulates on rescan.
type MemoryRegistry struct {
	mu     sync.RWMutex
	skills map[string]*Skill
}

// NewMemoryRegistry creates a new in-memory skill registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		skills: make(map[string]*Skill),
	}
}

// Register adds a new skill.
func (r *MemoryRegistry) Register(ctx context.Context, skill *Skill) (*Skill, error) {
	if err := skill.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.skills[skill.Name]; exists {
		return nil, ErrSkillExists
	}

	now := time.Now().UTC()
	stored := cloneSkill(skill)
	stored.CreatedAt = now
	stored.UpdatedAt = now

	r.skills[skill.Name] = stored
	return cloneSkill(stored), nil
}

// Get retrieves a skill by name.
func (r *MemoryRegistry) Get(ctx context.Context, name string) (*Skill, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	skill, ok := r.skills[name]
	if !ok {
		return nil, ErrSkillNotFound
	}
	return cloneSkill(skill), nil
}

// Update modifies an existing skill.
func (r *MemoryRegistry) Update(ctx context.Context, name string, req *UpdateSkillRequest) (*Skill, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	skill, ok := r.skills[name]
	if !ok {
		return nil, ErrSkillNotFound
	}

	if req.Description != nil {
		skill.Description = *req.Description
	}
	if req.Keywords != nil {
		skill.Keywords = req.Keywords
	}
	if req.Scripts != nil {
		skill.Scripts = req.Scripts
	}
	if req.References != nil {
		skill.References = req.References
	}
	if req.Version != nil {
		skill.Version = *req.Version
	}
	if req.Path != nil {
		skill.Path = *req.Path
	}
	if req.Command != nil {
		skill.Command = req.Command
	}
	if req.Metadata != nil {
		skill.Metadata = req.Metadata
	}
	skill.UpdatedAt = time.Now().UTC()

	return cloneSkill(skill), nil
}

// Delete removes a skill.
func (r *MemoryRegistry) Delete(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.skills[name]; !ok {
		return ErrSkillNotFound
	}

	delete(r.skills, name)
	return nil
}

// List returns all skills matching the options, sorted by name.
func (r *MemoryRegistry) List(ctx context.Context, opts *ListOptions) ([]*Skill, error) {
	if opts == nil {
		opts = &ListOptions{}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var skills []*Skill
	for _, skill := range r.skills {
		if len(opts.Keywords) > 0 && !hasAllKeywords(skill, opts.Keywords) {
			continue
		}
		skills = append(skills, cloneSkill(skill))
	}
	sort.Slice(skills, func(i, j int) bool { return skills[i].Name < skills[j].Name })

	if opts.Offset > 0 {
		if opts.Offset >= len(skills) {
			return []*Skill{}, nil
		}
		skills = skills[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(skills) {
		skills = skills[:opts.Limit]
	}

	return skills, nil
}

// Exists checks if a skill with the given name is registered.
func (r *MemoryRegistry) Exists(ctx context.Context, name string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.skills[name]
	return ok, nil
}

// Close is a no-op for the memory registry.
func (r *MemoryRegistry) Close() error {
	return nil
}

func cloneSkill(s *Skill) *Skill {
	cp := *s
	if s.Keywords != nil {
		cp.Keywords = append([]string(nil), s.Keywords...)
	}
	if s.Scripts != nil {
		cp.Scripts = append([]string(nil), s.Scripts...)
	}
	if s.References != nil {
		cp.References = append([]string(nil), s.References...)
	}
	if s.Command != nil {
		cp.Command = append([]string(nil), s.Command...)
	}
	if s.Metadata != nil {
		cp.Metadata = make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}
