package engine

import (
	"context"

	"github.com/relguard/relguard/internal/logging"
	"github.com/relguard/relguard/pkg/keys"
	"github.com/relguard/relguard/pkg/policy"
	"github.com/relguard/relguard/pkg/tuple"
)

// BatchPermissions computes the full permission map for many objects in
// one pass: associations are prefetched once, cache keys are built up
// front, hits are read in a single bulk round trip when the store supports
// it, and only the misses are computed and stored. The result holds one
// entry per input object; an object with no resolvable policy maps to an
// empty permission map.
func (e *Engine) BatchPermissions(ctx context.Context, subject tuple.Object, objects []tuple.Object, reqCtx policy.Context) map[tuple.ObjectRef]map[string]bool {
	results := make(map[tuple.ObjectRef]map[string]bool, len(objects))
	if len(objects) == 0 {
		return results
	}

	if e.prefetch != nil {
		if err := e.prefetch(ctx, subject, objects); err != nil {
			logging.Err(err).Int("objects", len(objects)).Msg("batch prefetch hook failed; continuing without preloaded associations")
		}
	}

	subjectRef := tuple.RefOf(subject)

	type pending struct {
		object tuple.Object
		ref    tuple.ObjectRef
		policy *policy.Policy
		key    string
	}

	cacheKeys := make([]string, 0, len(objects))
	work := make([]pending, 0, len(objects))
	for _, object := range objects {
		ref := tuple.RefOf(object)
		p, ok := e.registry.PolicyFor(ref.Type)
		if !ok {
			results[ref] = map[string]bool{}
			continue
		}

		key := keys.AllPermissionsKey(subjectRef, ref, reqCtx) +
			"|" + e.gens.decisionFragment(subjectRef, ref)
		cacheKeys = append(cacheKeys, key)
		work = append(work, pending{object: object, ref: ref, policy: p, key: key})
	}

	cached := e.cache.GetMulti(cacheKeys)

	for _, item := range work {
		if value, ok := cached[item.key]; ok {
			if decisions, ok := value.(map[string]bool); ok {
				results[item.ref] = decisions
				continue
			}
		}

		decisions := e.decideAll(ctx, item.policy, subject, item.object, reqCtx)
		e.cache.Set(item.key, decisions, e.ttl)
		results[item.ref] = decisions
	}
	return results
}
