package vectordb

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrDimensionMismatch is returned when a vector's length differs from the
	// index dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrConnection is returned when the index backend cannot be reached.
	ErrConnection = errors.New("vector index unreachable")
)

// Record is a vector with string metadata, addressed by ID within a namespace.
type Record struct {
	ID       string
	Vector   []float32
	Metadata map[string]string
}

// Match is a query hit ordered by descending similarity.
type Match struct {
	ID       string
	Score    float32
	Metadata map[string]string
}

// Index stores vectors partitioned by namespace. Queries never cross
// namespaces.
type Index interface {
	// Upsert inserts or replaces records in the namespace.
	Upsert(ctx context.Context, namespace string, records []Record) error

	// Query returns up to topK nearest records in the namespace. An empty or
	// unknown namespace yields no matches.
	Query(ctx context.Context, namespace string, vector []float32, topK int) ([]Match, error)

	// Count returns the number of records in the namespace.
	Count(ctx context.Context, namespace string) (int, error)

	// Close releases backend resources.
	Close() error
}

func checkDims(want int, vec []float32) error {
	if want > 0 && len(vec) != want {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), want)
	}
	return nil
}
