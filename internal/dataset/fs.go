package dataset

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"mljobs/internal/apperrors"
)

// FSStore serves CSV datasets from a directory. The dataset reference is the
// file name; the schema is the CSV header row.
type FSStore struct {
	root string
}

// NewFS creates a filesystem-backed dataset store rooted at dir.
func NewFS(dir string) *FSStore {
	return &FSStore{root: dir}
}

// FetchSchema reads the header row of the referenced CSV file.
func (s *FSStore) FetchSchema(ctx context.Context, ref string) (Schema, error) {
	data, err := s.FetchBytes(ctx, ref)
	if err != nil {
		return Schema{}, err
	}

	header, err := csv.NewReader(bytes.NewReader(data)).Read()
	if errors.Is(err, io.EOF) {
		return Schema{}, apperrors.Validation("dataset", "dataset is empty")
	}
	if err != nil {
		return Schema{}, apperrors.Validation("dataset", "dataset header is not valid CSV")
	}

	cols := make([]string, 0, len(header))
	for _, c := range header {
		cols = append(cols, strings.TrimSpace(c))
	}
	return Schema{Columns: cols}, nil
}

// FetchBytes returns the raw bytes of the referenced file.
func (s *FSStore) FetchBytes(ctx context.Context, ref string) ([]byte, error) {
	path, err := s.resolve(ref)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, apperrors.NotFound("dataset", ref)
	}
	if err != nil {
		return nil, apperrors.Internal("dataset.read", err)
	}
	return data, nil
}

// resolve maps a reference to a path under the root, rejecting anything that
// would escape it.
func (s *FSStore) resolve(ref string) (string, error) {
	if ref == "" || strings.Contains(ref, "..") || strings.HasPrefix(ref, "/") {
		return "", apperrors.Validation("datasetId", "dataset ref must be a relative file name")
	}
	return filepath.Join(s.root, filepath.Clean(ref)), nil
}

var _ Store = (*FSStore)(nil)
