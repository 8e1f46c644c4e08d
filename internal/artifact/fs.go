package artifact

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"mljobs/internal/apperrors"
)

// FSStore stores model blobs as files under a root directory. References are
// minted as "<uuid>.model" so they are safe to embed in URLs and callbacks.
type FSStore struct {
	root string
}

// NewFS creates a filesystem-backed artifact store rooted at dir.
func NewFS(dir string) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperrors.Internal("artifact.mkdir", err)
	}
	return &FSStore{root: dir}, nil
}

// Put writes the blob to a new file and returns its reference.
func (s *FSStore) Put(ctx context.Context, data []byte) (string, error) {
	ref := uuid.NewString() + ".model"
	if err := os.WriteFile(filepath.Join(s.root, ref), data, 0o644); err != nil {
		return "", apperrors.Internal("artifact.put", err)
	}
	return ref, nil
}

// Exists reports whether the reference resolves to a file under the root.
func (s *FSStore) Exists(ctx context.Context, ref string) (bool, error) {
	path, err := s.resolve(ref)
	if err != nil {
		return false, nil
	}
	_, err = os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, apperrors.Internal("artifact.stat", err)
	}
	return true, nil
}

// Get returns the blob for a reference.
func (s *FSStore) Get(ctx context.Context, ref string) ([]byte, error) {
	path, err := s.resolve(ref)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, apperrors.NotFound("artifact", ref)
	}
	if err != nil {
		return nil, apperrors.Internal("artifact.get", err)
	}
	return data, nil
}

// resolve validates a reference and maps it to a path under the root.
// Refs are flat file names; anything that escapes the root is rejected.
func (s *FSStore) resolve(ref string) (string, error) {
	if ref == "" || strings.Contains(ref, "/") || strings.Contains(ref, "\\") {
		return "", apperrors.Validation("ref", "artifact ref must be a flat file name")
	}
	if strings.Contains(ref, "..") {
		return "", apperrors.Validation("ref", "artifact ref must not contain path traversal")
	}
	return filepath.Join(s.root, ref), nil
}

var _ Store = (*FSStore)(nil)
