// Package memdb implements the tuple store on an in-memory MVCC database.
// It is the default backend for tests and single-process deployments.
package memdb

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-memdb"

	"github.com/relguard/relguard/internal/datastore"
	"github.com/relguard/relguard/pkg/tuple"
)

const (
	errUnableToInstantiate = "unable to instantiate tuple store: %w"
	errUnableToWrite       = "unable to write tuple: %w"
	errUnableToQuery       = "unable to query tuples: %w"
	errUnableToDelete      = "unable to delete tuples: %w"
)

// Store is a TupleStore backed by hashicorp/go-memdb.
type Store struct {
	db *memdb.MemDB

	// memdb serializes write transactions internally, but we take our own
	// lock so that a Grant's read-then-insert is a single atomic step.
	writeMu sync.Mutex
}

var _ datastore.TupleStore = (*Store)(nil)

// New creates an empty in-memory tuple store.
func New() (*Store, error) {
	db, err := memdb.NewMemDB(schema)
	if err != nil {
		return nil, fmt.Errorf(errUnableToInstantiate, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Grant(_ context.Context, t tuple.Tuple) (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	txn := s.db.Txn(true)
	defer txn.Abort()

	found, err := txn.First(tableRelationship, indexID,
		t.Resource.Type, t.Resource.ID, t.Relation, t.Subject.Type, t.Subject.ID)
	if err != nil {
		return false, fmt.Errorf(errUnableToWrite, err)
	}
	if found != nil {
		return false, nil
	}

	if err := txn.Insert(tableRelationship, fromTuple(t)); err != nil {
		return false, fmt.Errorf(errUnableToWrite, err)
	}
	txn.Commit()
	return true, nil
}

func (s *Store) Revoke(_ context.Context, t tuple.Tuple) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	txn := s.db.Txn(true)
	defer txn.Abort()

	found, err := txn.First(tableRelationship, indexID,
		t.Resource.Type, t.Resource.ID, t.Relation, t.Subject.Type, t.Subject.ID)
	if err != nil {
		return 0, fmt.Errorf(errUnableToDelete, err)
	}
	if found == nil {
		return 0, nil
	}

	if err := txn.Delete(tableRelationship, found); err != nil {
		return 0, fmt.Errorf(errUnableToDelete, err)
	}
	txn.Commit()
	return 1, nil
}

func (s *Store) RevokeAll(ctx context.Context, filter tuple.Filter) (int, error) {
	if filter.IsEmpty() {
		return 0, datastore.ErrEmptyFilter
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	txn := s.db.Txn(true)
	defer txn.Abort()

	matches, err := queryTxn(txn, filter)
	if err != nil {
		return 0, err
	}

	for _, rel := range matches {
		if err := txn.Delete(tableRelationship, rel); err != nil {
			return 0, fmt.Errorf(errUnableToDelete, err)
		}
	}
	txn.Commit()
	return len(matches), nil
}

func (s *Store) Exists(_ context.Context, t tuple.Tuple) (bool, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	found, err := txn.First(tableRelationship, indexID,
		t.Resource.Type, t.Resource.ID, t.Relation, t.Subject.Type, t.Subject.ID)
	if err != nil {
		return false, fmt.Errorf(errUnableToQuery, err)
	}
	return found != nil, nil
}

func (s *Store) Query(_ context.Context, filter tuple.Filter) ([]tuple.Tuple, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	matches, err := queryTxn(txn, filter)
	if err != nil {
		return nil, err
	}

	results := make([]tuple.Tuple, 0, len(matches))
	for _, rel := range matches {
		results = append(results, rel.Tuple())
	}
	return results, nil
}

func (s *Store) Close() error { return nil }

// queryTxn iterates the narrowest index the filter allows and applies the
// remaining constraints in memory.
func queryTxn(txn *memdb.Txn, filter tuple.Filter) ([]*relationship, error) {
	it, err := bestIterator(txn, filter)
	if err != nil {
		return nil, fmt.Errorf(errUnableToQuery, err)
	}

	var matches []*relationship
	for raw := it.Next(); raw != nil; raw = it.Next() {
		rel := raw.(*relationship)
		if filter.Matches(rel.Tuple()) {
			matches = append(matches, rel)
		}
	}
	return matches, nil
}

func bestIterator(txn *memdb.Txn, filter tuple.Filter) (memdb.ResultIterator, error) {
	switch {
	case filter.OptionalResource != nil && filter.OptionalRelation != "":
		return txn.Get(tableRelationship, indexResourceAndRelation,
			filter.OptionalResource.Type, filter.OptionalResource.ID, filter.OptionalRelation)
	case filter.OptionalResource != nil:
		return txn.Get(tableRelationship, indexResource,
			filter.OptionalResource.Type, filter.OptionalResource.ID)
	case filter.OptionalSubject != nil:
		return txn.Get(tableRelationship, indexSubject,
			filter.OptionalSubject.Type, filter.OptionalSubject.ID)
	case filter.OptionalRelation != "":
		return txn.Get(tableRelationship, indexRelation, filter.OptionalRelation)
	default:
		return txn.Get(tableRelationship, indexID)
	}
}
