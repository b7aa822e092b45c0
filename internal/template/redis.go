package template

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/skillflow/orchestrator/pkg/types"
)

const (
	tplKeyPrefix = "skillflow:template:"
	tplIndexKey  = "skillflow:templates"
)

// RedisStore implements Store using Redis.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis-backed template store.
func NewRedisStore(ctx context.Context, url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisStore{client: client}, nil
}

// NewRedisStoreWithClient creates a store using an existing Redis client.
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func tplKey(name string) string { return tplKeyPrefix + name }

func (s *RedisStore) Save(ctx context.Context, tpl *types.Template) (*types.Template, error) {
	if err := validate(tpl); err != nil {
		return nil, err
	}

	exists, err := s.client.Exists(ctx, tplKey(tpl.Name)).Result()
	if err != nil {
		return nil, fmt.Errorf("check exists: %w", err)
	}
	if exists > 0 {
		return nil, ErrTemplateExists
	}

	now := time.Now().UTC()
	stored := cloneTemplate(tpl)
	stored.CreatedAt = now
	stored.UpdatedAt = now
	stored.Stats = types.TemplateStats{}

	if err := s.put(ctx, stored); err != nil {
		return nil, err
	}
	return stored, nil
}

func (s *RedisStore) Get(ctx context.Context, name string) (*types.Template, error) {
	data, err := s.client.Get(ctx, tplKey(name)).Bytes()
	if err == redis.Nil {
		return nil, ErrTemplateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	var tpl types.Template
	if err := json.Unmarshal(data, &tpl); err != nil {
		return nil, fmt.Errorf("unmarshal template: %w", err)
	}
	return &tpl, nil
}

func (s *RedisStore) Update(ctx context.Context, tpl *types.Template) (*types.Template, error) {
	if err := validate(tpl); err != nil {
		return nil, err
	}
	prev, err := s.Get(ctx, tpl.Name)
	if err != nil {
		return nil, err
	}

	stored := cloneTemplate(tpl)
	stored.Stats = prev.Stats
	stored.CreatedAt = prev.CreatedAt
	stored.UpdatedAt = time.Now().UTC()

	if err := s.put(ctx, stored); err != nil {
		return nil, err
	}
	return stored, nil
}

func (s *RedisStore) Delete(ctx context.Context, name string) error {
	exists, err := s.client.Exists(ctx, tplKey(name)).Result()
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists == 0 {
		return ErrTemplateNotFound
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, tplKey(name))
	pipe.SRem(ctx, tplIndexKey, name)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context, opts *ListOptions) ([]*types.Template, error) {
	if opts == nil {
		opts = &ListOptions{}
	}

	names, err := s.client.SMembers(ctx, tplIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list template names: %w", err)
	}

	var out []*types.Template
	for _, name := range names {
		tpl, err := s.Get(ctx, name)
		if err == ErrTemplateNotFound {
			// Stale reference, clean up.
			s.client.SRem(ctx, tplIndexKey, name)
			continue
		}
		if err != nil {
			continue
		}
		out = append(out, tpl)
	}

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

func (s *RedisStore) RecordOutcome(ctx context.Context, name string, success bool, duration time.Duration) error {
	tpl, err := s.Get(ctx, name)
	if err != nil {
		return err
	}
	foldOutcome(&tpl.Stats, success, duration)
	tpl.UpdatedAt = time.Now().UTC()
	return s.put(ctx, tpl)
}

func (s *RedisStore) Close() error { return s.client.Close() }

func (s *RedisStore) put(ctx context.Context, tpl *types.Template) error {
	data, err := json.Marshal(tpl)
	if err != nil {
		return fmt.Errorf("marshal template: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, tplKey(tpl.Name), data, 0)
	pipe.SAdd(ctx, tplIndexKey, tpl.Name)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save template: %w", err)
	}
	return nil
}
