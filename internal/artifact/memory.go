package artifact

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// MemoryBackend keeps artifacts in process memory. For tests and local runs.
type MemoryBackend struct {
	mu        sync.RWMutex
	artifacts map[string]*memoryArtifact
}

type memoryArtifact struct {
	ref  *Ref
	data []byte
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{artifacts: make(map[string]*memoryArtifact)}
}

func (m *MemoryBackend) Put(ctx context.Context, path string, data io.Reader, contentType string) (*Ref, error) {
	content, err := io.ReadAll(data)
	if err != nil {
		return nil, err
	}
	hash := sha256.Sum256(content)

	ref := &Ref{
		URI:         "memory://" + path,
		ContentType: contentType,
		Size:        int64(len(content)),
		Checksum:    hex.EncodeToString(hash[:]),
		CreatedAt:   time.Now().UTC(),
	}

	m.mu.Lock()
	m.artifacts[path] = &memoryArtifact{ref: ref, data: content}
	m.mu.Unlock()
	return ref, nil
}

func (m *MemoryBackend) Get(ctx context.Context, ref *Ref) (io.ReadCloser, error) {
	path := strings.TrimPrefix(ref.URI, "memory://")

	m.mu.RLock()
	a, ok := m.artifacts[path]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("artifact not found: %s", ref.URI)
	}
	return io.NopCloser(bytes.NewReader(a.data)), nil
}

func (m *MemoryBackend) Delete(ctx context.Context, ref *Ref) error {
	path := strings.TrimPrefix(ref.URI, "memory://")
	m.mu.Lock()
	delete(m.artifacts, path)
	m.mu.Unlock()
	return nil
}

func (m *MemoryBackend) List(ctx context.Context, prefix string) ([]*Ref, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var refs []*Ref
	for path, a := range m.artifacts {
		if strings.HasPrefix(path, prefix) {
			refs = append(refs, a.ref)
		}
	}
	return refs, nil
}

func (m *MemoryBackend) PresignGet(ctx context.Context, ref *Ref, expiry time.Duration) (string, error) {
	return "", fmt.Errorf("presigned URLs not supported for memory backend")
}
