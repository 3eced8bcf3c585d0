// Package postgres implements the tuple store on PostgreSQL. The table is
// the 5-column relation with a uniqueness constraint over the full tuple and
// secondary indexes for the lookup patterns the graph layer issues.
package postgres

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/relguard/relguard/internal/datastore"
	"github.com/relguard/relguard/pkg/tuple"
)

const (
	tableTuple = "relationship_tuple"

	colID           = "id"
	colResourceType = "resource_type"
	colResourceID   = "resource_id"
	colRelation     = "relation"
	colSubjectType  = "subject_type"
	colSubjectID    = "subject_id"
)

const (
	errUnableToWrite  = "unable to write tuple: %w"
	errUnableToQuery  = "unable to query tuples: %w"
	errUnableToDelete = "unable to delete tuples: %w"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// bootstrapSchema creates the tuple table when it is missing. Full schema
// management is owned by the embedding application; this exists so the demo
// binary and integration tests can run against a bare database.
const bootstrapSchema = `CREATE TABLE IF NOT EXISTS relationship_tuple (
	id UUID PRIMARY KEY,
	resource_type VARCHAR NOT NULL,
	resource_id VARCHAR NOT NULL,
	relation VARCHAR NOT NULL,
	subject_type VARCHAR NOT NULL,
	subject_id VARCHAR NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CONSTRAINT uq_relationship_tuple UNIQUE (resource_type, resource_id, relation, subject_type, subject_id)
);
CREATE INDEX IF NOT EXISTS ix_tuple_resource_relation ON relationship_tuple (resource_type, resource_id, relation);
CREATE INDEX IF NOT EXISTS ix_tuple_subject ON relationship_tuple (subject_type, subject_id);
CREATE INDEX IF NOT EXISTS ix_tuple_relation ON relationship_tuple (relation);`

// Store is a TupleStore backed by a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

var _ datastore.TupleStore = (*Store)(nil)

// New connects to the given database URL and returns a store.
func New(ctx context.Context, url string) (*Store, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewWithPool wraps an existing pool owned by the caller.
func NewWithPool(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// EnsureSchema creates the tuple table and its indexes if absent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, bootstrapSchema); err != nil {
		return fmt.Errorf("unable to bootstrap tuple schema: %w", err)
	}
	return nil
}

func (s *Store) Grant(ctx context.Context, t tuple.Tuple) (bool, error) {
	query, args, err := psql.Insert(tableTuple).
		Columns(colID, colResourceType, colResourceID, colRelation, colSubjectType, colSubjectID).
		Values(uuid.NewString(), t.Resource.Type, t.Resource.ID, t.Relation, t.Subject.Type, t.Subject.ID).
		Suffix("ON CONFLICT ON CONSTRAINT uq_relationship_tuple DO NOTHING").
		ToSql()
	if err != nil {
		return false, fmt.Errorf(errUnableToWrite, err)
	}

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf(errUnableToWrite, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) Revoke(ctx context.Context, t tuple.Tuple) (int, error) {
	query, args, err := psql.Delete(tableTuple).
		Where(sq.Eq{
			colResourceType: t.Resource.Type,
			colResourceID:   t.Resource.ID,
			colRelation:     t.Relation,
			colSubjectType:  t.Subject.Type,
			colSubjectID:    t.Subject.ID,
		}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf(errUnableToDelete, err)
	}

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf(errUnableToDelete, err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *Store) RevokeAll(ctx context.Context, filter tuple.Filter) (int, error) {
	if filter.IsEmpty() {
		return 0, datastore.ErrEmptyFilter
	}

	query, args, err := psql.Delete(tableTuple).Where(filterClause(filter)).ToSql()
	if err != nil {
		return 0, fmt.Errorf(errUnableToDelete, err)
	}

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf(errUnableToDelete, err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *Store) Exists(ctx context.Context, t tuple.Tuple) (bool, error) {
	query, args, err := psql.Select("1").From(tableTuple).
		Where(sq.Eq{
			colResourceType: t.Resource.Type,
			colResourceID:   t.Resource.ID,
			colRelation:     t.Relation,
			colSubjectType:  t.Subject.Type,
			colSubjectID:    t.Subject.ID,
		}).
		Limit(1).
		ToSql()
	if err != nil {
		return false, fmt.Errorf(errUnableToQuery, err)
	}

	var one int
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&one); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf(errUnableToQuery, err)
	}
	return true, nil
}

func (s *Store) Query(ctx context.Context, filter tuple.Filter) ([]tuple.Tuple, error) {
	builder := psql.Select(colResourceType, colResourceID, colRelation, colSubjectType, colSubjectID).
		From(tableTuple)
	if !filter.IsEmpty() {
		builder = builder.Where(filterClause(filter))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf(errUnableToQuery, err)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf(errUnableToQuery, err)
	}
	defer rows.Close()

	var results []tuple.Tuple
	for rows.Next() {
		var t tuple.Tuple
		if err := rows.Scan(&t.Resource.Type, &t.Resource.ID, &t.Relation, &t.Subject.Type, &t.Subject.ID); err != nil {
			return nil, fmt.Errorf(errUnableToQuery, err)
		}
		results = append(results, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf(errUnableToQuery, err)
	}
	return results, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// filterClause translates a tuple filter into a conjunction of equality
// constraints; relation sets become IN clauses.
func filterClause(filter tuple.Filter) sq.Eq {
	clause := sq.Eq{}
	if filter.OptionalResource != nil {
		clause[colResourceType] = filter.OptionalResource.Type
		clause[colResourceID] = filter.OptionalResource.ID
	}
	if filter.OptionalResourceType != "" {
		clause[colResourceType] = filter.OptionalResourceType
	}
	if filter.OptionalSubject != nil {
		clause[colSubjectType] = filter.OptionalSubject.Type
		clause[colSubjectID] = filter.OptionalSubject.ID
	}
	if filter.OptionalSubjectType != "" {
		clause[colSubjectType] = filter.OptionalSubjectType
	}
	if filter.OptionalRelation != "" {
		clause[colRelation] = filter.OptionalRelation
	}
	if len(filter.OptionalRelations) > 0 {
		clause[colRelation] = filter.OptionalRelations
	}
	return clause
}
