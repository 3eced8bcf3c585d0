// Package policy defines authorization policies: named permissions with
// ordered deny/allow rule lists, per-type relation schemas, reusable
// conditions, and scope builders, plus the registry that resolves a policy
// for a resource type through its ancestor chain.
package policy

import (
	"fmt"
	"sort"

	"github.com/relguard/relguard/pkg/schema"
)

// ScopeBuilder constructs a query shape (for example a SQL builder) that
// enumerates the objects a subject may reach for an action. The persistence
// layer consuming the shape is the caller's concern.
type ScopeBuilder func(e *Eval) (any, error)

// Policy is the static authorization description for one resource type.
// Build it fully before registration; afterwards it is read-only and safe
// for unsynchronized concurrent reads.
type Policy struct {
	name        string
	permissions map[string]*Permission
	actions     []string
	relations   *schema.RelationSchema
	conditions  map[string]Predicate
	scopes      map[string]ScopeBuilder
}

// New creates an empty policy named for its resource type.
func New(name string) *Policy {
	return &Policy{
		name:        name,
		permissions: make(map[string]*Permission),
		relations:   schema.New(),
		conditions:  make(map[string]Predicate),
		scopes:      make(map[string]ScopeBuilder),
	}
}

// Name returns the resource type name the policy was created with.
func (p *Policy) Name() string { return p.name }

// Permission returns the permission for the action, creating it on first
// use so rule registration chains naturally.
func (p *Policy) Permission(action string) *Permission {
	perm, ok := p.permissions[action]
	if !ok {
		perm = &Permission{action: action}
		p.permissions[action] = perm
		p.actions = append(p.actions, action)
		sort.Strings(p.actions)
	}
	return perm
}

// PermissionFor looks up an existing permission without creating one.
func (p *Policy) PermissionFor(action string) (*Permission, bool) {
	perm, ok := p.permissions[action]
	return perm, ok
}

// Actions returns the declared action names, sorted.
func (p *Policy) Actions() []string {
	out := make([]string, len(p.actions))
	copy(out, p.actions)
	return out
}

// Relation declares or extends a relation on the policy's schema.
func (p *Policy) Relation(name string, decl schema.Declaration) error {
	return p.relations.Declare(name, decl)
}

// MustRelation is Relation, panicking on configuration errors. Policies are
// built at startup where a malformed hierarchy should halt the process.
func (p *Policy) MustRelation(name string, decl schema.Declaration) *Policy {
	if err := p.relations.Declare(name, decl); err != nil {
		panic(fmt.Sprintf("policy %q: %v", p.name, err))
	}
	return p
}

// Relations exposes the policy's relation schema.
func (p *Policy) Relations() *schema.RelationSchema { return p.relations }

// Condition registers a reusable named condition rules can invoke through
// Eval.Condition.
func (p *Policy) Condition(name string, rule Predicate) *Policy {
	p.conditions[name] = rule
	return p
}

// Scope registers the scope builder for an action.
func (p *Policy) Scope(action string, builder ScopeBuilder) *Policy {
	p.scopes[action] = builder
	return p
}

// ScopeFor returns the scope builder registered for the action.
func (p *Policy) ScopeFor(action string) (ScopeBuilder, bool) {
	builder, ok := p.scopes[action]
	return builder, ok
}
