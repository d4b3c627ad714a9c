package memory

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrRecordNotFound indicates the requested record does not exist in the scope.
	ErrRecordNotFound = errors.New("memory: record not found")

	// ErrDuplicateRecord is returned when a Put reuses an existing id.
	// Records are immutable; corrections are new records.
	ErrDuplicateRecord = errors.New("memory: duplicate record")
)

// Hit is one nearest-neighbor result.
type Hit struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// Store persists memory records partitioned by scope. Every read takes a scope
// so no call can cross a partition. Implementations must be safe for
// concurrent use, and a Put must be visible to a subsequent Search by the
// same caller.
type Store interface {
	// Put validates and stores a new record.
	Put(ctx context.Context, rec Record) error

	// Search returns up to k hits for query on channel ch, ordered by
	// descending similarity, restricted to records matching filter.
	Search(ctx context.Context, scopeID string, ch Channel, query Vector, k int, filter Filter) ([]Hit, error)

	// Get returns the record with the given id in the scope.
	Get(ctx context.Context, scopeID, id string) (Record, error)

	// Recent returns up to k records matching filter, newest first.
	Recent(ctx context.Context, scopeID string, k int, filter Filter) ([]Record, error)

	// Count returns the number of records in the scope.
	Count(ctx context.Context, scopeID string) (int, error)

	// Dimensions returns the fixed vector length D.
	Dimensions() int
}

// CheckQuery validates a search request against the store dimensionality.
func CheckQuery(ch Channel, query Vector, dim int) error {
	if !ch.Valid() {
		return fmt.Errorf("memory: unknown channel %q", ch)
	}
	if len(query) != dim {
		return fmt.Errorf("memory: query vector has %d dimensions, want %d", len(query), dim)
	}
	return nil
}

// ScopeLister is implemented by stores that can enumerate their partitions.
// Maintenance jobs use it; retrieval never does.
type ScopeLister interface {
	Scopes(ctx context.Context) ([]string, error)
}
