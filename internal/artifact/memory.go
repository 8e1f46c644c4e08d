package artifact

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"mljobs/internal/apperrors"
)

// MemStore is an in-memory artifact store for tests and local development.
type MemStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMem creates an empty in-memory artifact store.
func NewMem() *MemStore {
	return &MemStore{blobs: make(map[string][]byte)}
}

// Put stores a copy of the blob under a fresh reference.
func (s *MemStore) Put(ctx context.Context, data []byte) (string, error) {
	ref := uuid.NewString() + ".model"
	cp := make([]byte, len(data))
	copy(cp, data)

	s.mu.Lock()
	s.blobs[ref] = cp
	s.mu.Unlock()
	return ref, nil
}

// PutRef stores a blob under a caller-chosen reference. Test helper for
// scenarios that need a known ref before the update arrives.
func (s *MemStore) PutRef(ref string, data []byte) {
	cp := make([]byte, len(data))
	copy(cp, data)

	s.mu.Lock()
	s.blobs[ref] = cp
	s.mu.Unlock()
}

// Exists reports whether the reference is stored.
func (s *MemStore) Exists(ctx context.Context, ref string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blobs[ref]
	return ok, nil
}

// Get returns a copy of the stored blob.
func (s *MemStore) Get(ctx context.Context, ref string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.blobs[ref]
	if !ok {
		return nil, apperrors.NotFound("artifact", ref)
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

var _ Store = (*MemStore)(nil)
