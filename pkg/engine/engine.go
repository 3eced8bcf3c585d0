// Package engine exposes the authorization decision surface: permission
// checks, permission maps, batch decisions, scope construction, and tuple
// grant/revoke with cache invalidation.
package engine

import (
	"context"
	"time"

	"github.com/relguard/relguard/internal/datastore"
	"github.com/relguard/relguard/internal/graph"
	"github.com/relguard/relguard/internal/logging"
	"github.com/relguard/relguard/pkg/cache"
	"github.com/relguard/relguard/pkg/keys"
	"github.com/relguard/relguard/pkg/policy"
	"github.com/relguard/relguard/pkg/tuple"
)

const defaultCacheTTL = 5 * time.Minute

// PrefetchHook preloads persistence-layer associations for a batch of
// objects before their permissions are computed. It exists purely to avoid
// N+1 queries: its absence or failure never changes an authorization
// outcome, only its cost.
type PrefetchHook func(ctx context.Context, subject tuple.Object, objects []tuple.Object) error

// Engine is the authorization decision engine. Construct one at startup
// with the fully built registry; all methods are safe for concurrent use.
type Engine struct {
	registry *policy.Registry
	store    datastore.TupleStore
	resolver *graph.Resolver
	cache    *cache.Layer
	ttl      time.Duration
	prefetch PrefetchHook
	gens     *generations
}

// Option configures an Engine.
type Option func(*Engine)

// WithCacheStore injects the decision cache store. Without one, every
// decision is computed directly.
func WithCacheStore(store cache.Store) Option {
	return func(e *Engine) { e.cache = cache.NewLayer(store, e.ttl) }
}

// WithCacheTTL overrides the default decision TTL.
func WithCacheTTL(ttl time.Duration) Option {
	return func(e *Engine) { e.ttl = ttl }
}

// WithPrefetchHook installs the batch association prefetch hook.
func WithPrefetchHook(hook PrefetchHook) Option {
	return func(e *Engine) { e.prefetch = hook }
}

// New builds an engine over the registry and tuple store.
func New(registry *policy.Registry, store datastore.TupleStore, opts ...Option) *Engine {
	e := &Engine{
		registry: registry,
		store:    store,
		ttl:      defaultCacheTTL,
		gens:     newGenerations(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.cache == nil {
		e.cache = cache.NewLayer(nil, e.ttl)
	}
	e.resolver = graph.NewResolver(store, registry)
	return e
}

// Resolver exposes the graph resolver for callers that need raw
// relationship queries.
func (e *Engine) Resolver() *graph.Resolver { return e.resolver }

// Can reports whether subject may perform action on object. It never
// fails: a missing policy, an undeclared action, or any internal error is
// a deny.
func (e *Engine) Can(ctx context.Context, subject tuple.Object, action string, object tuple.Object, reqCtx policy.Context) (allowed bool) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error().Any("panic", r).Str("action", action).Msg("permission check panicked; denying")
			allowed = false
		}
	}()

	allowed, err := e.Check(ctx, subject, action, object, reqCtx)
	if err != nil {
		logging.Err(err).Str("action", action).Msg("permission check failed; denying")
		return false
	}
	return allowed
}

// Check is the diagnostic variant of Can: the same decision, but a missing
// policy surfaces as PolicyNotFoundError instead of folding into a deny.
func (e *Engine) Check(ctx context.Context, subject tuple.Object, action string, object tuple.Object, reqCtx policy.Context) (bool, error) {
	p, ok := e.registry.PolicyFor(object.ObjectType())
	if !ok {
		return false, &PolicyNotFoundError{ResourceType: object.ObjectType()}
	}

	subjectRef := tuple.RefOf(subject)
	objectRef := tuple.RefOf(object)
	key := keys.PermissionKey(subjectRef, action, objectRef, reqCtx) +
		"|" + e.gens.decisionFragment(subjectRef, objectRef)

	value, err := e.cache.Fetch(key, e.ttl, func() (any, error) {
		return e.decide(ctx, p, subject, action, object, reqCtx), nil
	})
	if err != nil {
		return false, err
	}
	allowed, ok := value.(bool)
	if !ok {
		// A foreign value under our key; recompute rather than trust it.
		return e.decide(ctx, p, subject, action, object, reqCtx), nil
	}
	return allowed, nil
}

// Authorize returns nil when the action is allowed. A missing policy is a
// loud PolicyNotFoundError; an explicit denial is a NotAuthorizedError
// carrying the policy's declared actions.
func (e *Engine) Authorize(ctx context.Context, subject tuple.Object, action string, object tuple.Object, reqCtx policy.Context) error {
	p, ok := e.registry.PolicyFor(object.ObjectType())
	if !ok {
		return &PolicyNotFoundError{ResourceType: object.ObjectType()}
	}

	if e.Can(ctx, subject, action, object, reqCtx) {
		return nil
	}
	return &NotAuthorizedError{
		Subject:          tuple.RefOf(subject),
		Action:           action,
		Object:           tuple.RefOf(object),
		AvailableActions: p.Actions(),
	}
}

// AllPermissions returns the decision for every action the object's policy
// declares. A missing policy yields an empty map.
func (e *Engine) AllPermissions(ctx context.Context, subject, object tuple.Object, reqCtx policy.Context) map[string]bool {
	p, ok := e.registry.PolicyFor(object.ObjectType())
	if !ok {
		return map[string]bool{}
	}

	subjectRef := tuple.RefOf(subject)
	objectRef := tuple.RefOf(object)
	key := keys.AllPermissionsKey(subjectRef, objectRef, reqCtx) +
		"|" + e.gens.decisionFragment(subjectRef, objectRef)

	value, err := e.cache.Fetch(key, e.ttl, func() (any, error) {
		return e.decideAll(ctx, p, subject, object, reqCtx), nil
	})
	if err != nil {
		return e.decideAll(ctx, p, subject, object, reqCtx)
	}
	decisions, ok := value.(map[string]bool)
	if !ok {
		return e.decideAll(ctx, p, subject, object, reqCtx)
	}
	return decisions
}

// AccessibleBy builds the query scope enumerating the objects of
// resourceType that subject may reach for action, delegating to the
// policy's registered scope builder.
func (e *Engine) AccessibleBy(ctx context.Context, subject tuple.Object, action, resourceType string, reqCtx policy.Context) (any, error) {
	p, ok := e.registry.PolicyFor(resourceType)
	if !ok {
		return nil, &PolicyNotFoundError{ResourceType: resourceType}
	}
	builder, ok := p.ScopeFor(action)
	if !ok {
		return nil, &NoScopeError{ResourceType: resourceType, Action: action}
	}

	eval := policy.NewEval(ctx, p, e.resolver, tuple.ObjectRef{Type: resourceType}, subject, reqCtx)
	return builder(eval)
}

// ObjectIDsForRelation lists the ids of objects of objectType for which
// subject effectively holds relation, cached under the relation-scope key.
func (e *Engine) ObjectIDsForRelation(ctx context.Context, subject tuple.Object, relation, objectType string) ([]string, error) {
	subjectRef := tuple.RefOf(subject)
	key := keys.RelationScopeKey(subjectRef, relation, objectType) +
		"|" + e.gens.scopeFragment(subjectRef, objectType)

	value, err := e.cache.Fetch(key, e.ttl, func() (any, error) {
		ids, err := e.resolver.ObjectIDsForRelation(ctx, subject, relation, objectType)
		if err != nil {
			return nil, err
		}
		return ids, nil
	})
	if err != nil {
		return nil, err
	}
	ids, ok := value.([]string)
	if !ok {
		return e.resolver.ObjectIDsForRelation(ctx, subject, relation, objectType)
	}
	return ids, nil
}

// HasRelation reports whether the exact tuple exists; no hierarchy.
func (e *Engine) HasRelation(ctx context.Context, subject tuple.Object, relation string, object tuple.Object) (bool, error) {
	return e.store.Exists(ctx, tuple.Tuple{
		Subject:  tuple.RefOf(subject),
		Relation: relation,
		Resource: tuple.RefOf(object),
	})
}

// HasEffectiveRelation reports whether subject holds relation on object
// through the relation hierarchy or a via path.
func (e *Engine) HasEffectiveRelation(ctx context.Context, subject tuple.Object, relation string, object tuple.Object) (bool, error) {
	return e.resolver.HasEffectiveRelation(ctx, subject, relation, object)
}

// RelationsBetween lists the distinct relations subject holds directly on
// object.
func (e *Engine) RelationsBetween(ctx context.Context, subject, object tuple.Object) ([]string, error) {
	return e.resolver.RelationsBetween(ctx, subject, object)
}

// ObjectsWith lists tuples granting subject the exact relation, optionally
// restricted to an object type.
func (e *Engine) ObjectsWith(ctx context.Context, subject tuple.Object, relation, objectType string) ([]tuple.Tuple, error) {
	return e.resolver.ObjectsWith(ctx, subject, relation, objectType)
}

// SubjectsWith lists tuples granting the exact relation on object,
// optionally restricted to a subject type.
func (e *Engine) SubjectsWith(ctx context.Context, relation string, object tuple.Object, subjectType string) ([]tuple.Tuple, error) {
	return e.resolver.SubjectsWith(ctx, relation, object, subjectType)
}

// Grant writes the relationship tuple; granting an existing tuple is a
// no-op. Cache entries touching either side are invalidated after the
// write is durably visible.
func (e *Engine) Grant(ctx context.Context, subject tuple.Object, relation string, object tuple.Object) error {
	t := tuple.Tuple{Subject: tuple.RefOf(subject), Relation: relation, Resource: tuple.RefOf(object)}
	if !t.ValidateNotEmpty() {
		return datastore.ErrInvalidTuple
	}
	created, err := e.store.Grant(ctx, t)
	if err != nil {
		return err
	}

	e.invalidate(t.Subject, t.Resource)
	if created {
		logging.Debug().Stringer("tuple", t).Msg("relationship granted")
	}
	return nil
}

// Revoke deletes the exact tuple, invalidating only when a row was
// actually removed. A missing tuple is not an error.
func (e *Engine) Revoke(ctx context.Context, subject tuple.Object, relation string, object tuple.Object) (int, error) {
	t := tuple.Tuple{Subject: tuple.RefOf(subject), Relation: relation, Resource: tuple.RefOf(object)}
	if !t.ValidateNotEmpty() {
		return 0, datastore.ErrInvalidTuple
	}
	removed, err := e.store.Revoke(ctx, t)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		e.invalidate(t.Subject, t.Resource)
		logging.Debug().Stringer("tuple", t).Msg("relationship revoked")
	}
	return removed, nil
}

// RevokeAll bulk-deletes tuples by subject and/or object; at least one
// must be given. Returns the removed count.
func (e *Engine) RevokeAll(ctx context.Context, subject, object tuple.Object) (int, error) {
	filter := tuple.Filter{}
	if subject != nil {
		if ref := tuple.RefOf(subject); !ref.IsZero() {
			filter.OptionalSubject = &ref
		}
	}
	if object != nil {
		if ref := tuple.RefOf(object); !ref.IsZero() {
			filter.OptionalResource = &ref
		}
	}
	if filter.IsEmpty() {
		return 0, datastore.ErrEmptyFilter
	}

	// Enumerate before deleting: a one-sided filter still deletes tuples
	// whose counterpart side it never names, and cached decisions touching
	// those counterparts must not survive the delete.
	matched, err := e.store.Query(ctx, filter)
	if err != nil {
		return 0, err
	}
	removed, err := e.store.RevokeAll(ctx, filter)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		seen := make(map[tuple.ObjectRef]struct{}, 2*len(matched))
		for _, t := range matched {
			e.invalidateRef(seen, t.Subject)
			e.invalidateRef(seen, t.Resource)
		}
		if filter.OptionalSubject != nil {
			e.invalidateRef(seen, *filter.OptionalSubject)
		}
		if filter.OptionalResource != nil {
			e.invalidateRef(seen, *filter.OptionalResource)
		}
	}
	return removed, nil
}

// ClearCache drops every cached decision.
func (e *Engine) ClearCache() {
	e.gens.bumpAll()
	e.cache.DeletePattern("*")
}

// ClearCacheForResource drops cached decisions touching the object.
func (e *Engine) ClearCacheForResource(object tuple.Object) {
	ref := tuple.RefOf(object)
	e.gens.bumpObject(ref)
	e.cache.DeletePattern("*" + ref.String() + "*")
}

// ClearCacheForUser drops cached decisions touching the subject.
func (e *Engine) ClearCacheForUser(subject tuple.Object) {
	ref := tuple.RefOf(subject)
	e.gens.bumpSubject(ref)
	e.cache.DeletePattern("*" + ref.String() + "*")
}

// invalidate runs after a tuple mutation is durably visible, so a
// concurrent check cannot re-cache a pre-mutation decision under a current
// key.
func (e *Engine) invalidate(subjectRef, objectRef tuple.ObjectRef) {
	e.gens.bumpSubject(subjectRef)
	e.gens.bumpObject(objectRef)
	e.cache.DeletePattern("*" + subjectRef.String() + "*")
	e.cache.DeletePattern("*" + objectRef.String() + "*")
}

// invalidateRef invalidates one ref at most once per bulk operation, in
// both its subject and object roles.
func (e *Engine) invalidateRef(seen map[tuple.ObjectRef]struct{}, ref tuple.ObjectRef) {
	if _, ok := seen[ref]; ok {
		return
	}
	seen[ref] = struct{}{}
	e.gens.bumpSubject(ref)
	e.cache.DeletePattern("*" + ref.String() + "*")
}

func (e *Engine) decide(ctx context.Context, p *policy.Policy, subject tuple.Object, action string, object tuple.Object, reqCtx policy.Context) bool {
	perm, ok := p.PermissionFor(action)
	if !ok {
		return false
	}
	return perm.Decide(policy.NewEval(ctx, p, e.resolver, object, subject, reqCtx))
}

func (e *Engine) decideAll(ctx context.Context, p *policy.Policy, subject, object tuple.Object, reqCtx policy.Context) map[string]bool {
	decisions := make(map[string]bool, len(p.Actions()))
	for _, action := range p.Actions() {
		decisions[action] = e.decide(ctx, p, subject, action, object, reqCtx)
	}
	return decisions
}
