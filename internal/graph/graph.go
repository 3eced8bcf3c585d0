// Package graph answers relationship questions that require more than an
// exact tuple match: relation hierarchies (holding editor satisfies a
// viewer check) and one-hop via paths (membership in a team that holds the
// relation). It composes the tuple store with the per-type relation
// schemas; it never mutates tuples.
package graph

import (
	"context"
	"sort"

	"github.com/relguard/relguard/internal/datastore"
	"github.com/relguard/relguard/pkg/schema"
	"github.com/relguard/relguard/pkg/tuple"
)

// SchemaSource resolves the relation schema for a resource type. A nil
// result means the type carries no relation declarations at all.
type SchemaSource interface {
	SchemaFor(tag string) *schema.RelationSchema
}

// Resolver performs graph-aware relationship resolution.
type Resolver struct {
	store   datastore.TupleStore
	schemas SchemaSource
}

// NewResolver creates a resolver over the given store and schema source.
func NewResolver(store datastore.TupleStore, schemas SchemaSource) *Resolver {
	return &Resolver{store: store, schemas: schemas}
}

// HasEffectiveRelation reports whether subject holds relation on object,
// accepting any relation in the object's effective set directly, or any
// one-hop via path declared for the relation. When the object's type
// declares no relation schema the check degrades to exact tuple matching.
func (r *Resolver) HasEffectiveRelation(ctx context.Context, subject tuple.Object, relation string, object tuple.Object) (bool, error) {
	subjectRef := tuple.RefOf(subject)
	objectRef := tuple.RefOf(object)

	sch := r.schemas.SchemaFor(objectRef.Type)
	if sch == nil || sch.IsEmpty() {
		return r.store.Exists(ctx, tuple.Tuple{Subject: subjectRef, Relation: relation, Resource: objectRef})
	}

	effective := sch.EffectiveRelations(relation)

	direct, err := r.store.Query(ctx, tuple.Filter{
		OptionalSubject:   &subjectRef,
		OptionalResource:  &objectRef,
		OptionalRelations: effective,
	})
	if err != nil {
		return false, err
	}
	if len(direct) > 0 {
		return true, nil
	}

	for local, intermediaryType := range sch.ViaPathsFor(relation) {
		satisfied, err := r.viaPathSatisfied(ctx, subjectRef, local, intermediaryType, effective, objectRef)
		if err != nil {
			return false, err
		}
		if satisfied {
			return true, nil
		}
	}
	return false, nil
}

// viaPathSatisfied checks one declared indirection: subject holds the local
// relation on some intermediary of the declared type, and that intermediary
// holds a relation from the effective set on the object. Both legs honor
// the hierarchy of their respective resource types.
func (r *Resolver) viaPathSatisfied(ctx context.Context, subjectRef tuple.ObjectRef, local, intermediaryType string, effective []string, objectRef tuple.ObjectRef) (bool, error) {
	intermediaries, err := r.store.Query(ctx, tuple.Filter{
		OptionalSubject:      &subjectRef,
		OptionalRelations:    r.effectiveForType(intermediaryType, local),
		OptionalResourceType: intermediaryType,
	})
	if err != nil {
		return false, err
	}
	if len(intermediaries) == 0 {
		return false, nil
	}

	memberOf := make(map[string]struct{}, len(intermediaries))
	for _, t := range intermediaries {
		memberOf[t.Resource.ID] = struct{}{}
	}

	// One query for all intermediary grants on the object, intersected with
	// the subject's intermediaries.
	holders, err := r.store.Query(ctx, tuple.Filter{
		OptionalSubjectType: intermediaryType,
		OptionalRelations:   effective,
		OptionalResource:    &objectRef,
	})
	if err != nil {
		return false, err
	}
	for _, t := range holders {
		if _, ok := memberOf[t.Subject.ID]; ok {
			return true, nil
		}
	}
	return false, nil
}

// RelationsBetween returns the distinct relation names subject holds
// directly on object, sorted.
func (r *Resolver) RelationsBetween(ctx context.Context, subject, object tuple.Object) ([]string, error) {
	subjectRef := tuple.RefOf(subject)
	objectRef := tuple.RefOf(object)

	results, err := r.store.Query(ctx, tuple.Filter{
		OptionalSubject:  &subjectRef,
		OptionalResource: &objectRef,
	})
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(results))
	for _, t := range results {
		seen[t.Relation] = struct{}{}
	}
	relations := make([]string, 0, len(seen))
	for rel := range seen {
		relations = append(relations, rel)
	}
	sort.Strings(relations)
	return relations, nil
}

// ObjectsWith returns tuples granting subject the exact relation,
// optionally restricted to a resource type. No hierarchy is consulted.
func (r *Resolver) ObjectsWith(ctx context.Context, subject tuple.Object, relation, objectType string) ([]tuple.Tuple, error) {
	subjectRef := tuple.RefOf(subject)
	return r.store.Query(ctx, tuple.Filter{
		OptionalSubject:      &subjectRef,
		OptionalRelation:     relation,
		OptionalResourceType: objectType,
	})
}

// SubjectsWith returns tuples granting the exact relation on object,
// optionally restricted to a subject type. No hierarchy is consulted.
func (r *Resolver) SubjectsWith(ctx context.Context, relation string, object tuple.Object, subjectType string) ([]tuple.Tuple, error) {
	objectRef := tuple.RefOf(object)
	return r.store.Query(ctx, tuple.Filter{
		OptionalSubjectType: subjectType,
		OptionalRelation:    relation,
		OptionalResource:    &objectRef,
	})
}

// ObjectsWithEffective returns tuples whose relation satisfies a check for
// relation on objects of objectType: the direct leg of "what can this
// subject access" listings.
func (r *Resolver) ObjectsWithEffective(ctx context.Context, subject tuple.Object, relation, objectType string) ([]tuple.Tuple, error) {
	subjectRef := tuple.RefOf(subject)
	return r.store.Query(ctx, tuple.Filter{
		OptionalSubject:      &subjectRef,
		OptionalRelations:    r.effectiveForType(objectType, relation),
		OptionalResourceType: objectType,
	})
}

// ObjectIDsForRelation returns the ids of every object of objectType for
// which subject effectively holds relation: the union of the direct
// effective tuples and the objects reachable through declared via paths.
func (r *Resolver) ObjectIDsForRelation(ctx context.Context, subject tuple.Object, relation, objectType string) ([]string, error) {
	subjectRef := tuple.RefOf(subject)

	ids := map[string]struct{}{}

	direct, err := r.ObjectsWithEffective(ctx, subject, relation, objectType)
	if err != nil {
		return nil, err
	}
	for _, t := range direct {
		ids[t.Resource.ID] = struct{}{}
	}

	sch := r.schemas.SchemaFor(objectType)
	if sch != nil {
		effective := sch.EffectiveRelations(relation)
		for local, intermediaryType := range sch.ViaPathsFor(relation) {
			intermediaries, err := r.store.Query(ctx, tuple.Filter{
				OptionalSubject:      &subjectRef,
				OptionalRelations:    r.effectiveForType(intermediaryType, local),
				OptionalResourceType: intermediaryType,
			})
			if err != nil {
				return nil, err
			}

			for _, via := range intermediaries {
				intermediaryRef := via.Resource
				reachable, err := r.store.Query(ctx, tuple.Filter{
					OptionalSubject:      &intermediaryRef,
					OptionalRelations:    effective,
					OptionalResourceType: objectType,
				})
				if err != nil {
					return nil, err
				}
				for _, t := range reachable {
					ids[t.Resource.ID] = struct{}{}
				}
			}
		}
	}

	results := make([]string, 0, len(ids))
	for id := range ids {
		results = append(results, id)
	}
	sort.Strings(results)
	return results, nil
}

// effectiveForType computes the effective set of relation against the
// schema of the given resource type, degrading to the singleton set when
// the type has no declarations.
func (r *Resolver) effectiveForType(objectType, relation string) []string {
	sch := r.schemas.SchemaFor(objectType)
	if sch == nil {
		return []string{relation}
	}
	return sch.EffectiveRelations(relation)
}
