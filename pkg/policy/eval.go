package policy

import (
	"context"

	"github.com/relguard/relguard/internal/logging"
	"github.com/relguard/relguard/pkg/tuple"
)

// Context carries caller-supplied request values into rule evaluation.
type Context map[string]any

// RelationChecker answers graph membership questions for rules and scope
// builders. The engine wires its graph resolver in here; a nil checker
// means every relation test answers false.
type RelationChecker interface {
	HasEffectiveRelation(ctx context.Context, subject tuple.Object, relation string, object tuple.Object) (bool, error)
	ObjectIDsForRelation(ctx context.Context, subject tuple.Object, relation, objectType string) ([]string, error)
}

// Eval is the environment handed to every rule: the decision inputs plus
// the helper operations rules may call. Rules receive it explicitly rather
// than capturing policy state.
type Eval struct {
	Object  tuple.Object
	Subject tuple.Object
	Context Context

	ctx       context.Context
	policy    *Policy
	relations RelationChecker
}

// NewEval builds an evaluation environment. The registry and engine are the
// usual constructors; tests may build one directly.
func NewEval(ctx context.Context, p *Policy, relations RelationChecker, object, subject tuple.Object, reqCtx Context) *Eval {
	return &Eval{
		Object:    object,
		Subject:   subject,
		Context:   reqCtx,
		ctx:       ctx,
		policy:    p,
		relations: relations,
	}
}

// Ctx returns the request context for rules that issue store calls.
func (e *Eval) Ctx() context.Context {
	if e.ctx == nil {
		return context.Background()
	}
	return e.ctx
}

// HasRelation reports whether the evaluation's subject effectively holds
// the relation on the evaluation's object, consulting the relation
// hierarchy and via paths. Any resolution failure answers false.
func (e *Eval) HasRelation(relation string) bool {
	return e.SubjectHasRelation(e.Subject, relation, e.Object)
}

// SubjectHasRelation is HasRelation for an arbitrary subject/object pair,
// for rules that test relations on associated objects.
func (e *Eval) SubjectHasRelation(subject tuple.Object, relation string, object tuple.Object) bool {
	if e.relations == nil || subject == nil || object == nil {
		return false
	}
	ok, err := e.relations.HasEffectiveRelation(e.Ctx(), subject, relation, object)
	if err != nil {
		logging.Err(err).
			Str("relation", relation).
			Msg("relation check failed during rule evaluation; treating as not held")
		return false
	}
	return ok
}

// ObjectIDsFor lists the ids of objects of objectType on which the
// evaluation's subject effectively holds relation. Scope builders use it
// to construct enumerable query shapes.
func (e *Eval) ObjectIDsFor(relation, objectType string) ([]string, error) {
	if e.relations == nil || e.Subject == nil {
		return nil, nil
	}
	return e.relations.ObjectIDsForRelation(e.Ctx(), e.Subject, relation, objectType)
}

// Condition evaluates a named reusable condition from the policy. An
// unknown condition name answers false and logs; rules share the same
// containment as permissions.
func (e *Eval) Condition(name string) bool {
	if e.policy == nil {
		return false
	}
	cond, ok := e.policy.conditions[name]
	if !ok {
		logging.Warn().
			Str("condition", name).
			Str("policy", e.policy.name).
			Msg("unknown condition referenced by rule")
		return false
	}
	return evaluateRule(e.policy.name+"."+name, "condition", cond, e)
}
