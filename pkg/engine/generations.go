package engine

import (
	"strconv"
	"sync"

	"github.com/relguard/relguard/pkg/tuple"
)

// generations versions cache keys so that tuple mutations make stale
// entries unreachable without requiring the store to support deletion.
// Every decision key carries the current global, subject, object, and
// object-type generation; bumping any of them after a mutation commits
// orphans the old entries, which then age out by TTL.
//
// Counters live in process: cross-process convergence is bounded by the
// cache TTL window, which is the documented consistency trade-off.
type generations struct {
	mu           sync.RWMutex
	global       uint64
	bySubject    map[string]uint64
	byObject     map[string]uint64
	byObjectType map[string]uint64
}

func newGenerations() *generations {
	return &generations{
		bySubject:    make(map[string]uint64),
		byObject:     make(map[string]uint64),
		byObjectType: make(map[string]uint64),
	}
}

// decisionFragment is appended to permission and all-permissions keys.
func (g *generations) decisionFragment(subject, object tuple.ObjectRef) string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return "g" + strconv.FormatUint(g.global, 10) +
		".s" + strconv.FormatUint(g.bySubject[subject.String()], 10) +
		".o" + strconv.FormatUint(g.byObject[object.String()], 10) +
		".t" + strconv.FormatUint(g.byObjectType[object.Type], 10)
}

// scopeFragment is appended to relation-scope keys, which depend on the
// subject and every object of the listed type.
func (g *generations) scopeFragment(subject tuple.ObjectRef, objectType string) string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return "g" + strconv.FormatUint(g.global, 10) +
		".s" + strconv.FormatUint(g.bySubject[subject.String()], 10) +
		".t" + strconv.FormatUint(g.byObjectType[objectType], 10)
}

func (g *generations) bumpSubject(subject tuple.ObjectRef) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.bySubject[subject.String()]++
	// The subject may also appear as an intermediary or resource in via
	// paths, so its object generation moves with it.
	g.byObject[subject.String()]++
	g.byObjectType[subject.Type]++
}

func (g *generations) bumpObject(object tuple.ObjectRef) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.byObject[object.String()]++
	g.bySubject[object.String()]++
	g.byObjectType[object.Type]++
}

func (g *generations) bumpAll() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.global++
}
