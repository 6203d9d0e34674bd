// Package artifact resolves the two serialized blobs that make up a model:
// the fitted estimator and its metadata record.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var ErrNotFound = errors.New("artifact not found")

type Blobs struct {
	Model    []byte
	Metadata []byte
}

// Source fetches the artifact blobs for a model identifier.
type Source interface {
	Fetch(ctx context.Context, id string) (Blobs, error)
	Describe(id string) string
}

// Sink stores artifact blobs, used when publishing trained models.
type Sink interface {
	Put(ctx context.Context, id string, blobs Blobs) error
}

// MemorySource keeps blobs in memory.
type MemorySource struct {
	mu    sync.RWMutex
	blobs map[string]Blobs
}

func NewMemorySource() *MemorySource {
	return &MemorySource{blobs: make(map[string]Blobs)}
}

func (m *MemorySource) Fetch(ctx context.Context, id string) (Blobs, error) {
	if err := ctx.Err(); err != nil {
		return Blobs{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	blobs, ok := m.blobs[id]
	if !ok {
		return Blobs{}, fmt.Errorf("%w: %s", ErrNotFound, m.Describe(id))
	}
	return blobs, nil
}

func (m *MemorySource) Put(ctx context.Context, id string, blobs Blobs) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[id] = blobs
	return nil
}

func (m *MemorySource) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, id)
}

func (m *MemorySource) Describe(id string) string {
	return "memory://" + id
}
