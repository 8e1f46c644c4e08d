package dataset

import (
	"context"
	"sync"

	"mljobs/internal/apperrors"
)

// MemStore is an in-memory dataset store for tests.
type MemStore struct {
	mu       sync.RWMutex
	schemas  map[string]Schema
	contents map[string][]byte
}

// NewMem creates an empty in-memory dataset store.
func NewMem() *MemStore {
	return &MemStore{
		schemas:  make(map[string]Schema),
		contents: make(map[string][]byte),
	}
}

// Add registers a dataset under a reference.
func (s *MemStore) Add(ref string, schema Schema, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schemas[ref] = schema
	s.contents[ref] = data
}

// FetchSchema returns the registered schema for a reference.
func (s *MemStore) FetchSchema(ctx context.Context, ref string) (Schema, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	schema, ok := s.schemas[ref]
	if !ok {
		return Schema{}, apperrors.NotFound("dataset", ref)
	}
	return schema, nil
}

// FetchBytes returns the registered bytes for a reference.
func (s *MemStore) FetchBytes(ctx context.Context, ref string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.contents[ref]
	if !ok {
		return nil, apperrors.NotFound("dataset", ref)
	}
	return data, nil
}

var _ Store = (*MemStore)(nil)
