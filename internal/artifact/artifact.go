// Package artifact offloads oversized node outputs to object storage so the
// context store and event stream carry references instead of payloads.
package artifact

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Ref points at an offloaded output in storage.
type Ref struct {
	// URI is the full artifact path (e.g. "s3://bucket/runs/r1/nodes/n2/output.json")
	URI string `json:"uri"`

	// ContentType is the MIME type
	ContentType string `json:"content_type,omitempty"`

	// Size in bytes
	Size int64 `json:"size,omitempty"`

	// Checksum (SHA256)
	Checksum string `json:"checksum,omitempty"`

	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Backend defines the storage backend interface.
type Backend interface {
	// Put stores data and returns an artifact reference
	Put(ctx context.Context, path string, data io.Reader, contentType string) (*Ref, error)

	// Get retrieves data for an artifact
	Get(ctx context.Context, ref *Ref) (io.ReadCloser, error)

	// Delete removes an artifact
	Delete(ctx context.Context, ref *Ref) error

	// List lists artifacts with a prefix
	List(ctx context.Context, prefix string) ([]*Ref, error)

	// PresignGet generates a presigned URL for download
	PresignGet(ctx context.Context, ref *Ref, expiry time.Duration) (string, error)
}

// Store offloads and retrieves node outputs.
type Store struct {
	backend Backend

	// threshold is the serialized size above which an output is offloaded.
	threshold int
}

// NewStore creates a store. threshold <= 0 disables offloading.
func NewStore(backend Backend, threshold int) *Store {
	return &Store{backend: backend, threshold: threshold}
}

// outputPath is where a node's offloaded output lives.
func outputPath(runID, nodeID string) string {
	return fmt.Sprintf("runs/%s/nodes/%s/output.json", runID, nodeID)
}

// refEnvelope is how a reference appears in place of the original output.
type refEnvelope struct {
	ArtifactRef *Ref `json:"$artifact"`
}

// MaybeOffload serializes the output and, when it exceeds the threshold,
// uploads it and returns a reference envelope in its place. Outputs under
// the threshold come back unchanged.
func (s *Store) MaybeOffload(ctx context.Context, runID, nodeID string, output interface{}) (interface{}, bool, error) {
	if s == nil || s.backend == nil || s.threshold <= 0 {
		return output, false, nil
	}

	raw, err := json.Marshal(output)
	if err != nil {
		return nil, false, fmt.Errorf("encode output %s/%s: %w", runID, nodeID, err)
	}
	if len(raw) <= s.threshold {
		return output, false, nil
	}

	ref, err := s.backend.Put(ctx, outputPath(runID, nodeID), bytes.NewReader(raw), "application/json")
	if err != nil {
		return nil, false, fmt.Errorf("offload output %s/%s: %w", runID, nodeID, err)
	}
	return map[string]interface{}{"$artifact": ref}, true, nil
}

// Resolve fetches an offloaded output back. Values that are not reference
// envelopes are returned as-is.
func (s *Store) Resolve(ctx context.Context, value interface{}) (interface{}, error) {
	ref := refOf(value)
	if ref == nil {
		return value, nil
	}

	body, err := s.backend.Get(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("fetch artifact %s: %w", ref.URI, err)
	}
	defer body.Close()

	var out interface{}
	if err := json.NewDecoder(body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode artifact %s: %w", ref.URI, err)
	}
	return out, nil
}

// DownloadURL presigns a download link for an offloaded output.
func (s *Store) DownloadURL(ctx context.Context, value interface{}, expiry time.Duration) (string, error) {
	ref := refOf(value)
	if ref == nil {
		return "", fmt.Errorf("value is not an artifact reference")
	}
	return s.backend.PresignGet(ctx, ref, expiry)
}

// PresignURL presigns a download link for a known artifact reference.
func (s *Store) PresignURL(ctx context.Context, ref *Ref, expiry time.Duration) (string, error) {
	return s.backend.PresignGet(ctx, ref, expiry)
}

// ListRun lists every artifact stored for a run.
func (s *Store) ListRun(ctx context.Context, runID string) ([]*Ref, error) {
	return s.backend.List(ctx, fmt.Sprintf("runs/%s/", runID))
}

// refOf recognizes both typed and JSON-roundtripped reference envelopes.
func refOf(value interface{}) *Ref {
	switch v := value.(type) {
	case map[string]interface{}:
		raw, ok := v["$artifact"]
		if !ok || len(v) != 1 {
			return nil
		}
		switch r := raw.(type) {
		case *Ref:
			return r
		case map[string]interface{}:
			data, err := json.Marshal(r)
			if err != nil {
				return nil
			}
			var ref Ref
			if err := json.Unmarshal(data, &ref); err != nil || ref.URI == "" {
				return nil
			}
			return &ref
		}
	case refEnvelope:
		return v.ArtifactRef
	case *refEnvelope:
		return v.ArtifactRef
	}
	return nil
}
