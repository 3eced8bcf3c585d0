package policy

import (
	"sync"

	"github.com/relguard/relguard/pkg/schema"
)

// Registry resolves resource type tags to policies. Resolution tries the
// exact tag first, then walks the registered parent chain upward until a
// policy is found or a type with no parent (the root boundary) is reached.
//
// A registry is an explicit instance passed to the engine, not process
// global state; tests construct a fresh one. Registration happens at
// startup; lookups afterwards are concurrent.
type Registry struct {
	mu       sync.RWMutex
	parents  map[string]string
	policies map[string]*Policy
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		parents:  make(map[string]string),
		policies: make(map[string]*Policy),
	}
}

// RegisterType records a type tag and its parent tag. An empty parent
// marks the tag as a root: lookups stop there.
func (r *Registry) RegisterType(tag, parent string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.parents[tag] = parent
}

// Register binds a policy to a type tag, implicitly registering the tag as
// a root if it has no parent registration yet.
func (r *Registry) Register(tag string, p *Policy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.policies[tag] = p
	if _, ok := r.parents[tag]; !ok {
		r.parents[tag] = ""
	}
}

// PolicyFor resolves the policy for a type tag, falling back through the
// ancestor chain. The visited set guards against accidental parent cycles.
func (r *Registry) PolicyFor(tag string) (*Policy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	visited := map[string]struct{}{}
	for current := tag; current != ""; {
		if _, seen := visited[current]; seen {
			break
		}
		visited[current] = struct{}{}

		if p, ok := r.policies[current]; ok {
			return p, true
		}
		current = r.parents[current]
	}
	return nil, false
}

// SchemaFor returns the relation schema of the resolved policy for the
// type tag, or nil when no policy resolves. Graph resolution degrades to
// exact tuple matching on a nil schema.
func (r *Registry) SchemaFor(tag string) *schema.RelationSchema {
	p, ok := r.PolicyFor(tag)
	if !ok {
		return nil
	}
	return p.Relations()
}
