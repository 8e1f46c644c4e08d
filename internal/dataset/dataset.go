// Package dataset is the client side of the dataset collaborator: uploaded
// tabular files and their column schemas, fetched by opaque reference.
package dataset

import "context"

// Schema describes the columns of a tabular dataset.
type Schema struct {
	Columns []string `json:"columns"`
}

// HasColumn reports whether the schema contains the named column.
func (s Schema) HasColumn(name string) bool {
	for _, c := range s.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Store exposes the two operations the orchestration core needs from the
// dataset collaborator.
type Store interface {
	// FetchSchema returns the column schema for a dataset reference.
	FetchSchema(ctx context.Context, ref string) (Schema, error)

	// FetchBytes returns the raw dataset bytes for a reference.
	FetchBytes(ctx context.Context, ref string) ([]byte, error)
}
