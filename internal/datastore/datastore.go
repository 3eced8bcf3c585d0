// Package datastore defines the storage contract for relationship tuples.
// Implementations own tuple durability and uniqueness; graph semantics
// (relation hierarchies, via paths) live above in internal/graph.
package datastore

import (
	"context"
	"errors"

	"github.com/relguard/relguard/pkg/tuple"
)

// ErrEmptyFilter is returned by RevokeAll when the filter constrains
// nothing. An unfiltered bulk delete is always a caller bug.
var ErrEmptyFilter = errors.New("revoke all requires at least one filter constraint")

// ErrInvalidTuple is returned by writes naming a tuple with an empty
// identity field.
var ErrInvalidTuple = errors.New("relationship tuple requires subject, relation, and resource")

// TupleStore is the durable set of relationship tuples. The full 5-tuple is
// unique; Grant on an existing tuple is a no-op. Persistence errors
// propagate to the caller: they indicate a data-integrity problem, not an
// authorization outcome.
type TupleStore interface {
	// Grant writes the tuple if absent. Returns whether a new row was
	// created; granting an existing tuple returns false with no error.
	Grant(ctx context.Context, t tuple.Tuple) (bool, error)

	// Revoke deletes the exact tuple, returning the number of rows removed
	// (zero or one). A missing tuple is not an error.
	Revoke(ctx context.Context, t tuple.Tuple) (int, error)

	// RevokeAll bulk-deletes every tuple matching the filter and returns the
	// removed count. An empty filter returns ErrEmptyFilter.
	RevokeAll(ctx context.Context, filter tuple.Filter) (int, error)

	// Exists reports whether the exact tuple is present. No hierarchy is
	// consulted.
	Exists(ctx context.Context, t tuple.Tuple) (bool, error)

	// Query returns all tuples matching the filter.
	Query(ctx context.Context, filter tuple.Filter) ([]tuple.Tuple, error)

	// Close releases any resources held by the store.
	Close() error
}
