package template

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/skillflow/orchestrator/pkg/types"
)

// MemoryStore implements Store using in-memory storage.
// Suitable for testing and local development.
type MemoryStore struct {
	mu        sync.RWMutex
	templates map[string]*types.Template
}

// NewMemoryStore creates a new in-memory template store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{templates: make(map[string]*types.Template)}
}

func (s *MemoryStore) Save(ctx context.Context, tpl *types.Template) (*types.Template, error) {
	if err := validate(tpl); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.templates[tpl.Name]; exists {
		return nil, ErrTemplateExists
	}

	now := time.Now().UTC()
	stored := cloneTemplate(tpl)
	stored.CreatedAt = now
	stored.UpdatedAt = now
	stored.Stats = types.TemplateStats{}
	s.templates[tpl.Name] = stored
	return cloneTemplate(stored), nil
}

func (s *MemoryStore) Get(ctx context.Context, name string) (*types.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tpl, ok := s.templates[name]
	if !ok {
		return nil, ErrTemplateNotFound
	}
	return cloneTemplate(tpl), nil
}

func (s *MemoryStore) Update(ctx context.Context, tpl *types.Template) (*types.Template, error) {
	if err := validate(tpl); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.templates[tpl.Name]
	if !ok {
		return nil, ErrTemplateNotFound
	}

	stored := cloneTemplate(tpl)
	stored.Stats = prev.Stats
	stored.CreatedAt = prev.CreatedAt
	stored.UpdatedAt = time.Now().UTC()
	s.templates[tpl.Name] = stored
	return cloneTemplate(stored), nil
}

func (s *MemoryStore) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.templates[name]; !ok {
		return ErrTemplateNotFound
	}
	delete(s.templates, name)
	return nil
}

func (s *MemoryStore) List(ctx context.Context, opts *ListOptions) ([]*types.Template, error) {
	if opts == nil {
		opts = &ListOptions{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*types.Template, 0, len(s.templates))
	for _, tpl := range s.templates {
		out = append(out, cloneTemplate(tpl))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return []*types.Template{}, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(out) {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (s *MemoryStore) RecordOutcome(ctx context.Context, name string, success bool, duration time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tpl, ok := s.templates[name]
	if !ok {
		return ErrTemplateNotFound
	}
	foldOutcome(&tpl.Stats, success, duration)
	tpl.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) Close() error { return nil }

func cloneTemplate(tpl *types.Template) *types.Template {
	cp := *tpl
	if tpl.TriggerPatterns != nil {
		cp.TriggerPatterns = append([]string(nil), tpl.TriggerPatterns...)
	}
	if tpl.Variables != nil {
		cp.Variables = append([]types.TemplateVariable(nil), tpl.Variables...)
	}
	if tpl.Graph != nil {
		cp.Graph = tpl.Graph.Clone()
	}
	return &cp
}
