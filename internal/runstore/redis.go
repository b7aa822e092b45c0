package runstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/skillflow/orchestrator/pkg/types"
)

const keyPrefix = "skillflow:run:"

// RedisStore persists run state in Redis so multiple orchestrator instances
// can share it. Run metadata and node states live in hashes, events in a
// stream capped at Config.EventMaxLen.
type RedisStore struct {
	client *redis.Client
	cfg    Config
}

// NewRedisStore connects to Redis at the given URL and verifies the
// connection before returning.
func NewRedisStore(ctx context.Context, url string, cfg Config) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisStore{client: client, cfg: cfg}, nil
}

func keyMeta(runID string) string    { return keyPrefix + runID + ":meta" }
func keyGraph(runID string) string   { return keyPrefix + runID + ":graph" }
func keyNodes(runID string) string   { return keyPrefix + runID + ":nodes" }
func keyOutputs(runID string) string { return keyPrefix + runID + ":outputs" }
func keyEvents(runID string) string  { return keyPrefix + runID + ":events" }
func keySeq(runID string) string     { return keyPrefix + runID + ":seq" }

const keyIndex = "skillflow:runs"

func (s *RedisStore) CreateRun(ctx context.Context, graph *types.Graph, task string, global map[string]interface{}, mode types.ExecutionMode, policy types.FailurePolicy) (*types.Run, error) {
	id := generateRunID()
	now := time.Now().UTC()
	meta := types.RunMeta{
		RunID:         id,
		GraphName:     graph.ID,
		Task:          task,
		GlobalContext: global,
		Mode:          mode,
		Policy:        policy,
		Status:        types.RunStatusQueued,
		CreatedAt:     now,
	}
	metaJSON, err := json.Marshal(&meta)
	if err != nil {
		return nil, fmt.Errorf("marshal run meta: %w", err)
	}
	graphJSON, err := json.Marshal(graph)
	if err != nil {
		return nil, fmt.Errorf("marshal graph: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, keyMeta(id), metaJSON, s.ttl())
	pipe.Set(ctx, keyGraph(id), graphJSON, s.ttl())
	for _, n := range graph.Nodes {
		ns, _ := json.Marshal(&types.NodeState{NodeID: n.ID, Status: types.NodeStatusPending})
		pipe.HSet(ctx, keyNodes(id), n.ID, ns)
	}
	if s.cfg.TTLSeconds > 0 {
		pipe.Expire(ctx, keyNodes(id), s.ttl())
	}
	pipe.ZAdd(ctx, keyIndex, redis.Z{Score: float64(now.UnixMilli()), Member: id})
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("create run %s: %w", id, err)
	}

	nodes := make(map[string]*types.NodeState, len(graph.Nodes))
	for _, n := range graph.Nodes {
		nodes[n.ID] = &types.NodeState{NodeID: n.ID, Status: types.NodeStatusPending}
	}
	return &types.Run{Meta: meta, Graph: graph.Clone(), Nodes: nodes, Outputs: map[string]interface{}{}}, nil
}

func (s *RedisStore) GetRunMeta(ctx context.Context, runID string) (*types.RunMeta, error) {
	raw, err := s.client.Get(ctx, keyMeta(runID)).Bytes()
	if err == redis.Nil {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run meta %s: %w", runID, err)
	}
	var meta types.RunMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("decode run meta %s: %w", runID, err)
	}
	return &meta, nil
}

func (s *RedisStore) GetRun(ctx context.Context, runID string) (*types.Run, error) {
	meta, err := s.GetRunMeta(ctx, runID)
	if err != nil {
		return nil, err
	}
	run := &types.Run{Meta: *meta}

	if raw, err := s.client.Get(ctx, keyGraph(runID)).Bytes(); err == nil {
		var g types.Graph
		if err := json.Unmarshal(raw, &g); err == nil {
			run.Graph = &g
		}
	}
	nodes, err := s.GetNodeStates(ctx, runID)
	if err != nil {
		return nil, err
	}
	run.Nodes = nodes
	outputs, err := s.GetOutputs(ctx, runID)
	if err != nil {
		return nil, err
	}
	run.Outputs = outputs
	return run, nil
}

func (s *RedisStore) ListRuns(ctx context.Context, limit int) ([]*types.RunMeta, error) {
	if limit <= 0 {
		limit = 50
	}
	ids, err := s.client.ZRevRange(ctx, keyIndex, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	metas := make([]*types.RunMeta, 0, len(ids))
	for _, id := range ids {
		meta, err := s.GetRunMeta(ctx, id)
		if err == ErrRunNotFound {
			// Expired run still in the index.
			continue
		}
		if err != nil {
			return nil, err
		}
		metas = append(metas, meta)
	}
	return metas, nil
}

func (s *RedisStore) UpdateRunStatus(ctx context.Context, runID string, status types.RunStatus) error {
	meta, err := s.GetRunMeta(ctx, runID)
	if err != nil {
		return err
	}
	meta.Status = status
	now := time.Now().UTC()
	switch status {
	case types.RunStatusRunning:
		if meta.StartedAt == nil {
			meta.StartedAt = &now
		}
	case types.RunStatusCompleted, types.RunStatusFailed, types.RunStatusCancelled:
		if meta.FinishedAt == nil {
			meta.FinishedAt = &now
		}
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal run meta: %w", err)
	}
	return s.client.Set(ctx, keyMeta(runID), raw, s.ttl()).Err()
}

func (s *RedisStore) CancelRun(ctx context.Context, runID string) error {
	return s.UpdateRunStatus(ctx, runID, types.RunStatusCancelled)
}

func (s *RedisStore) IsCancelled(ctx context.Context, runID string) (bool, error) {
	meta, err := s.GetRunMeta(ctx, runID)
	if err != nil {
		return false, err
	}
	return meta.Status == types.RunStatusCancelled, nil
}

func (s *RedisStore) UpdateNodeState(ctx context.Context, runID, nodeID string, status types.NodeStatus, errMsg string) error {
	raw, err := s.client.HGet(ctx, keyNodes(runID), nodeID).Bytes()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("get node state %s/%s: %w", runID, nodeID, err)
	}
	ns := &types.NodeState{NodeID: nodeID}
	if err == nil {
		_ = json.Unmarshal(raw, ns)
	}
	ns.Status = status
	ns.Error = errMsg
	now := time.Now().UTC()
	switch status {
	case types.NodeStatusRunning:
		ns.StartedAt = &now
	case types.NodeStatusDone, types.NodeStatusFailed, types.NodeStatusSkipped:
		ns.FinishedAt = &now
	}
	out, err := json.Marshal(ns)
	if err != nil {
		return fmt.Errorf("marshal node state: %w", err)
	}
	return s.client.HSet(ctx, keyNodes(runID), nodeID, out).Err()
}

func (s *RedisStore) GetNodeStates(ctx context.Context, runID string) (map[string]*types.NodeState, error) {
	raw, err := s.client.HGetAll(ctx, keyNodes(runID)).Result()
	if err != nil {
		return nil, fmt.Errorf("get node states %s: %w", runID, err)
	}
	out := make(map[string]*types.NodeState, len(raw))
	for id, v := range raw {
		ns := &types.NodeState{}
		if err := json.Unmarshal([]byte(v), ns); err != nil {
			continue
		}
		out[id] = ns
	}
	return out, nil
}

func (s *RedisStore) SetNodeOutput(ctx context.Context, runID, nodeID string, output interface{}) error {
	raw, err := json.Marshal(output)
	if err != nil {
		return fmt.Errorf("marshal output %s/%s: %w", runID, nodeID, err)
	}
	return s.client.HSet(ctx, keyOutputs(runID), nodeID, raw).Err()
}

func (s *RedisStore) GetOutputs(ctx context.Context, runID string) (map[string]interface{}, error) {
	raw, err := s.client.HGetAll(ctx, keyOutputs(runID)).Result()
	if err != nil {
		return nil, fmt.Errorf("get outputs %s: %w", runID, err)
	}
	out := make(map[string]interface{}, len(raw))
	for id, v := range raw {
		var val interface{}
		if err := json.Unmarshal([]byte(v), &val); err != nil {
			val = v
		}
		out[id] = val
	}
	return out, nil
}

func (s *RedisStore) AppendEvent(ctx context.Context, runID string, ev *types.Event) error {
	seq, err := s.client.Incr(ctx, keySeq(runID)).Result()
	if err != nil {
		return fmt.Errorf("next event seq %s: %w", runID, err)
	}
	ev.Seq = seq
	ev.ID = strconv.FormatInt(seq, 10)
	ev.RunID = runID
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: keyEvents(runID),
		MaxLen: s.cfg.EventMaxLen,
		Approx: true,
		Values: map[string]interface{}{"seq": seq, "payload": payload},
	}).Err()
}

func (s *RedisStore) GetEventsSince(ctx context.Context, runID string, afterSeq int64) ([]*types.Event, error) {
	entries, err := s.client.XRange(ctx, keyEvents(runID), "-", "+").Result()
	if err != nil {
		return nil, fmt.Errorf("read events %s: %w", runID, err)
	}
	var out []*types.Event
	for _, entry := range entries {
		ev := decodeStreamEvent(entry)
		if ev != nil && ev.Seq > afterSeq {
			out = append(out, ev)
		}
	}
	return out, nil
}

// Subscribe tails the run's event stream with blocking XRead until the
// returned cancel function is called or ctx is done.
func (s *RedisStore) Subscribe(ctx context.Context, runID string) (<-chan *types.Event, func(), error) {
	if _, err := s.GetRunMeta(ctx, runID); err != nil {
		return nil, nil, err
	}
	ch := make(chan *types.Event, 64)
	readCtx, cancel := context.WithCancel(ctx)

	go func() {
		defer close(ch)
		lastID := "$"
		for {
			res, err := s.client.XRead(readCtx, &redis.XReadArgs{
				Streams: []string{keyEvents(runID), lastID},
				Block:   5 * time.Second,
				Count:   100,
			}).Result()
			if readCtx.Err() != nil {
				return
			}
			if err == redis.Nil {
				continue
			}
			if err != nil {
				return
			}
			for _, stream := range res {
				for _, entry := range stream.Messages {
					lastID = entry.ID
					if ev := decodeStreamEvent(entry); ev != nil {
						select {
						case ch <- ev:
						case <-readCtx.Done():
							return
						}
					}
				}
			}
		}
	}()
	return ch, cancel, nil
}

func (s *RedisStore) AdapterInfo() string { return "redis" }

func (s *RedisStore) Close() error { return s.client.Close() }

func (s *RedisStore) ttl() time.Duration {
	if s.cfg.TTLSeconds <= 0 {
		return 0
	}
	return time.Duration(s.cfg.TTLSeconds) * time.Second
}

func decodeStreamEvent(entry redis.XMessage) *types.Event {
	payload, ok := entry.Values["payload"].(string)
	if !ok {
		return nil
	}
	ev := &types.Event{}
	if err := json.Unmarshal([]byte(payload), ev); err != nil {
		return nil
	}
	return ev
}
