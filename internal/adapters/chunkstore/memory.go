package chunkstore

import (
	"context"
	"slices"
	"sync"

	"go.trai.ch/strata/internal/core/domain"
)

// MemoryStore implements ports.ChunkStore in process memory. It backs the
// "none" driver: tiles survive eviction but not a restart.
type MemoryStore struct {
	mu     sync.RWMutex
	chunks map[domain.ChunkKey][]byte
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{chunks: make(map[domain.ChunkKey][]byte)}
}

// Load returns a copy of the payload stored under key.
func (s *MemoryStore) Load(ctx context.Context, key domain.ChunkKey) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.chunks[key]), nil
}

// Save stores a copy of data under key.
func (s *MemoryStore) Save(ctx context.Context, key domain.ChunkKey, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks[key] = append([]byte{}, data...)
	return nil
}

// Delete removes the chunk.
func (s *MemoryStore) Delete(ctx context.Context, key domain.ChunkKey) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.chunks, key)
	return nil
}

// Exists reports whether a chunk is stored under key.
func (s *MemoryStore) Exists(ctx context.Context, key domain.ChunkKey) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.chunks[key]
	return ok, nil
}

// Len returns the number of stored chunks.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

// Close drops every chunk.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.chunks)
	return nil
}
