package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	skillKeyPrefix = "skillflow:skill:"
	skillIndexKey  = "skillflow:skills"
)

// RedisRegistry implements SkillRegistry using Redis for persistence.
type RedisRegistry struct {
	client *redis.Client
}

// NewRedisRegistry creates a new Redis-backed skill registry.
func NewRedisRegistry(ctx context.Context, url string) (*RedisRegistry, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisRegistry{client: client}, nil
}

// NewRedisRegistryFromClient creates a registry from an existing Redis client.
func NewRedisRegistryFromClient(client *redis.Client) *RedisRegistry {
	return &RedisRegistry{client: client}
}

func skillKey(name string) string {
	return skillKeyPrefix + name
}

// Register adds a new skill.
func (r *RedisRegistry) Register(ctx context.Context, skill *Skill) (*Skill, error) {
	if err := skill.Validate(); err != nil {
		return nil, err
	}

	key := skillKey(skill.Name)
	exists, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("check exists: %w", err)
	}
	if exists > 0 {
		return nil, ErrSkillExists
	}

	now := time.Now().UTC()
	stored := cloneSkill(skill)
	stored.CreatedAt = now
	stored.UpdatedAt = now

	if err := r.put(ctx, stored); err != nil {
		return nil, err
	}
	return stored, nil
}

// Get retrieves a skill by name.
func (r *RedisRegistry) Get(ctx context.Context, name string) (*Skill, error) {
	data, err := r.client.Get(ctx, skillKey(name)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrSkillNotFound
		}
		return nil, fmt.Errorf("get skill: %w", err)
	}

	var skill Skill
	if err := json.Unmarshal(data, &skill); err != nil {
		return nil, fmt.Errorf("unmarshal skill: %w", err)
	}
	return &skill, nil
}

// Update modifies an existing skill.
func (r *RedisRegistry) Update(ctx context.Context, name string, req *UpdateSkillRequest) (*Skill, error) {
	skill, err := r.Get(ctx, name)
	if err != nil {
		return nil, err
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

	if err := r.put(ctx, skill); err != nil {
		return nil, err
	}
	return skill, nil
}

// Delete removes a skill.
func (r *RedisRegistry) Delete(ctx context.Context, name string) error {
	key := skillKey(name)

	exists, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists == 0 {
		return ErrSkillNotFound
	}

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SRem(ctx, skillIndexKey, name)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete skill: %w", err)
	}
	return nil
}

// List returns all skills matching the options, sorted by name.
func (r *RedisRegistry) List(ctx context.Context, opts *ListOptions) ([]*Skill, error) {
	if opts == nil {
		opts = &ListOptions{}
	}

	names, err := r.client.SMembers(ctx, skillIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list skill names: %w", err)
	}
	if len(names) == 0 {
		return []*Skill{}, nil
	}

	var skills []*Skill
	for _, name := range names {
		skill, err := r.Get(ctx, name)
		if err != nil {
			if err == ErrSkillNotFound {
				// Clean up stale index entry.
				r.client.SRem(ctx, skillIndexKey, name)
				continue
			}
			return nil, err
		}
		if len(opts.Keywords) > 0 && !hasAllKeywords(skill, opts.Keywords) {
			continue
		}
		skills = append(skills, skill)
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
func (r *RedisRegistry) Exists(ctx context.Context, name string) (bool, error) {
	exists, err := r.client.Exists(ctx, skillKey(name)).Result()
	if err != nil {
		return false, fmt.Errorf("check exists: %w", err)
	}
	return exists > 0, nil
}

// Close releases Redis connection resources.
func (r *RedisRegistry) Close() error {
	return r.client.Close()
}

func (r *RedisRegistry) put(ctx context.Context, skill *Skill) error {
	data, err := json.Marshal(skill)
	if err != nil {
		return fmt.Errorf("marshal skill: %w", err)
	}
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, skillKey(skill.Name), data, 0)
	pipe.SAdd(ctx, skillIndexKey, skill.Name)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save skill: %w", err)
	}
	return nil
}
