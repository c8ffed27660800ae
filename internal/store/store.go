// Package store defines the document collection the editor persists file
// records to. Backends live in the subpackages.
package store

import (
	"context"
	"errors"

	"github.com/lemesvini/codeLog/internal/files"
)

var (
	// ErrNotFound is returned when updating a record that does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrUnsupportedField is returned by FetchWhere for unknown fields.
	ErrUnsupportedField = errors.New("unsupported query field")
)

// Collection is one owner's flat set of file records.
type Collection interface {
	// Insert stores r under a freshly generated id and returns it.
	Insert(ctx context.Context, r files.Record) (string, error)
	FetchAll(ctx context.Context) ([]files.Record, error)
	// FetchWhere returns the records whose field equals value.
	FetchWhere(ctx context.Context, field, value string) ([]files.Record, error)
	UpdateByID(ctx context.Context, id string, p files.Patch) error
	// DeleteByID removes a record. Missing ids are not an error.
	DeleteByID(ctx context.Context, id string) error
}

// Store hands out per-owner collections.
type Store interface {
	Collection(owner string) Collection
	Type() string
	Close() error
}

// Filter applies a FetchWhere query to an in-memory slice. Backends that
// cannot filter natively use it.
func Filter(records []files.Record, field, value string) ([]files.Record, error) {
	var out []files.Record
	for i := range records {
		match, ok := files.Matches(&records[i], field, value)
		if !ok {
			return nil, ErrUnsupportedField
		}
		if match {
			out = append(out, records[i])
		}
	}
	return out, nil
}

// ValidField reports whether field can be used with FetchWhere.
func ValidField(field string) bool {
	_, ok := files.Matches(&files.Record{}, field, "")
	return ok
}
