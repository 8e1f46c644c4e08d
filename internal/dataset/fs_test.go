package dataset

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"mljobs/internal/apperrors"
)

func writeDataset(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write dataset: %v", err)
	}
}

func TestFSStore_FetchSchema(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeDataset(t, dir, "churn.csv", "age,tenure,plan,label\n34,12,basic,yes\n")

	store := NewFS(dir)
	schema, err := store.FetchSchema(context.Background(), "churn.csv")
	if err != nil {
		t.Fatalf("FetchSchema: %v", err)
	}

	want := []string{"age", "tenure", "plan", "label"}
	if len(schema.Columns) != len(want) {
		t.Fatalf("got %d columns, want %d", len(schema.Columns), len(want))
	}
	for i, col := range want {
		if schema.Columns[i] != col {
			t.Errorf("column %d = %q, want %q", i, schema.Columns[i], col)
		}
	}
	if !schema.HasColumn("label") {
		t.Error("HasColumn(label) = false, want true")
	}
	if schema.HasColumn("missing") {
		t.Error("HasColumn(missing) = true, want false")
	}
}

func TestFSStore_EmptyDataset(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeDataset(t, dir, "empty.csv", "")

	store := NewFS(dir)
	_, err := store.FetchSchema(context.Background(), "empty.csv")
	if !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestFSStore_MissingDataset(t *testing.T) {
	t.Parallel()
	store := NewFS(t.TempDir())

	_, err := store.FetchBytes(context.Background(), "absent.csv")
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("expected not found error, got %v", err)
	}
}

func TestFSStore_RejectsEscapingRefs(t *testing.T) {
	t.Parallel()
	store := NewFS(t.TempDir())

	for _, ref := range []string{"../secrets.csv", "/etc/passwd", ""} {
		_, err := store.FetchBytes(context.Background(), ref)
		if !errors.Is(err, apperrors.ErrValidation) {
			t.Errorf("FetchBytes(%q): expected validation error, got %v", ref, err)
		}
	}
}
