// Package schema holds the per-resource-type relation declarations: which
// relation names exist, which relations imply which others, and which
// relations are reachable through a one-hop intermediary object.
package schema

import (
	"fmt"
	"sort"
	"strings"
)

// RelationCycleError is returned by Declare when a requires edge would make
// a relation imply itself, directly or transitively.
type RelationCycleError struct {
	Relation string
	Path     []string
}

func (e RelationCycleError) Error() string {
	return fmt.Sprintf("relation %q requires itself via [%s]", e.Relation, strings.Join(e.Path, " -> "))
}

type relationEntry struct {
	// requires holds the relations this relation implies: holding the entry's
	// relation satisfies a check for any relation in requires.
	requires map[string]struct{}

	// via maps a local relation name to the intermediary object type reachable
	// through it.
	via map[string]string
}

// RelationSchema accumulates relation declarations for a single resource
// type. Declarations merge: declaring the same relation twice never drops
// previously registered requires or via entries.
//
// All declarations happen at policy registration time; after that the schema
// is read-only and safe for unsynchronized concurrent reads.
type RelationSchema struct {
	relations map[string]*relationEntry
}

// New creates an empty relation schema.
func New() *RelationSchema {
	return &RelationSchema{relations: make(map[string]*relationEntry)}
}

// Declaration carries the optional pieces of a relation declaration.
type Declaration struct {
	// Requires lists relations implied by holding the declared relation.
	Requires []string

	// Via declares one-hop indirect paths: local relation name to the
	// intermediary object type.
	Via map[string]string
}

// Declare registers or extends a relation. Values merge with any previous
// declaration of the same name. A requires edge that would let the relation
// reach itself is rejected with RelationCycleError and leaves the schema
// unchanged.
func (s *RelationSchema) Declare(name string, decl Declaration) error {
	if name == "" {
		return fmt.Errorf("relation name must not be empty")
	}

	for _, required := range decl.Requires {
		if path, cyclic := s.wouldCycle(name, required); cyclic {
			return RelationCycleError{Relation: name, Path: path}
		}
	}

	entry, ok := s.relations[name]
	if !ok {
		entry = &relationEntry{
			requires: make(map[string]struct{}),
			via:      make(map[string]string),
		}
		s.relations[name] = entry
	}

	for _, required := range decl.Requires {
		entry.requires[required] = struct{}{}
	}
	for local, intermediaryType := range decl.Via {
		entry.via[local] = intermediaryType
	}
	return nil
}

// wouldCycle reports whether adding the edge name->required would allow name
// to imply itself. It walks the existing requires graph from required,
// tracking visited nodes so that malformed input cannot loop.
func (s *RelationSchema) wouldCycle(name, required string) ([]string, bool) {
	if required == name {
		return []string{name, name}, true
	}

	visited := map[string]struct{}{}
	var walk func(current string, path []string) ([]string, bool)
	walk = func(current string, path []string) ([]string, bool) {
		if current == name {
			return append(path, name), true
		}
		if _, seen := visited[current]; seen {
			return nil, false
		}
		visited[current] = struct{}{}

		entry, ok := s.relations[current]
		if !ok {
			return nil, false
		}
		for next := range entry.requires {
			if p, cyclic := walk(next, append(path, current)); cyclic {
				return p, true
			}
		}
		return nil, false
	}
	return walk(required, []string{name})
}

// Declared returns whether the relation name has any declaration.
func (s *RelationSchema) Declared(name string) bool {
	_, ok := s.relations[name]
	return ok
}

// IsEmpty returns whether no relations have been declared at all. Stores use
// this to degrade effective-relation checks to exact matching.
func (s *RelationSchema) IsEmpty() bool {
	return len(s.relations) == 0
}

// RelationNames returns all declared relation names, sorted.
func (s *RelationSchema) RelationNames() []string {
	names := make([]string, 0, len(s.relations))
	for name := range s.relations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// EffectiveRelations returns the set of relation names whose direct
// possession satisfies a check for name: name itself plus every relation
// that transitively requires it. For an undeclared name the result is
// exactly {name}; no hierarchy is assumed.
func (s *RelationSchema) EffectiveRelations(name string) []string {
	// Invert the requires edges: if A requires B then holding A satisfies a
	// check for B, so B is implied-by A.
	impliedBy := make(map[string][]string, len(s.relations))
	for relName, entry := range s.relations {
		for required := range entry.requires {
			impliedBy[required] = append(impliedBy[required], relName)
		}
	}

	return s.closure(name, func(current string) []string {
		return impliedBy[current]
	})
}

// SatisfiedRelations returns the set of relation checks that holding name
// directly satisfies: name plus the transitive closure of its requires
// edges. This is the reverse of EffectiveRelations.
func (s *RelationSchema) SatisfiedRelations(name string) []string {
	return s.closure(name, func(current string) []string {
		entry, ok := s.relations[current]
		if !ok {
			return nil
		}
		next := make([]string, 0, len(entry.requires))
		for required := range entry.requires {
			next = append(next, required)
		}
		return next
	})
}

// closure computes the visited set of a breadth-first walk from name. The
// visited set doubles as cycle breaking should a malformed graph sneak past
// declaration-time checks.
func (s *RelationSchema) closure(name string, edges func(string) []string) []string {
	visited := map[string]struct{}{name: {}}
	frontier := []string{name}
	for len(frontier) > 0 {
		current := frontier[0]
		frontier = frontier[1:]
		for _, next := range edges(current) {
			if _, seen := visited[next]; seen {
				continue
			}
			visited[next] = struct{}{}
			frontier = append(frontier, next)
		}
	}

	results := make([]string, 0, len(visited))
	for relName := range visited {
		results = append(results, relName)
	}
	sort.Strings(results)
	return results
}

// ViaPathsFor returns the merged via declarations for name: local relation
// name to intermediary object type. The returned map is a copy.
func (s *RelationSchema) ViaPathsFor(name string) map[string]string {
	entry, ok := s.relations[name]
	if !ok || len(entry.via) == 0 {
		return map[string]string{}
	}
	paths := make(map[string]string, len(entry.via))
	for local, intermediaryType := range entry.via {
		paths[local] = intermediaryType
	}
	return paths
}
