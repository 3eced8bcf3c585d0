package policy

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relguard/relguard/pkg/tuple"
)

var (
	alwaysTrue  = func(*Eval) (bool, error) { return true, nil }
	alwaysFalse = func(*Eval) (bool, error) { return false, nil }
	exploding   = func(*Eval) (bool, error) { panic("rule exploded") }
	erroring    = func(*Eval) (bool, error) { return true, errors.New("lookup failed") }
)

func testEval(t *testing.T, p *Policy) *Eval {
	t.Helper()
	doc := tuple.ObjectRef{Type: "document", ID: "doc1"}
	user := tuple.ObjectRef{Type: "user", ID: "alice"}
	return NewEval(context.Background(), p, nil, doc, user, nil)
}

func TestDecideDenyFirst(t *testing.T) {
	t.Parallel()

	tcs := []struct {
		name     string
		denies   []Predicate
		allows   []Predicate
		expected bool
	}{
		{"no rules is deny", nil, nil, false},
		{"allow matches", nil, []Predicate{alwaysTrue}, true},
		{"allow misses", nil, []Predicate{alwaysFalse}, false},
		{"deny wins over allow", []Predicate{alwaysTrue}, []Predicate{alwaysTrue}, false},
		{"non-matching deny falls through", []Predicate{alwaysFalse}, []Predicate{alwaysTrue}, true},
		{"first matching allow short-circuits", nil, []Predicate{alwaysFalse, alwaysTrue}, true},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			p := New("document")
			p.Permission("view").Deny(tc.denies...).Allow(tc.allows...)

			perm, ok := p.PermissionFor("view")
			require.True(t, ok)
			require.Equal(t, tc.expected, perm.Decide(testEval(t, p)))
		})
	}
}

func TestDecideContainsRuleFailures(t *testing.T) {
	t.Parallel()

	t.Run("panicking allow does not abort later rules", func(t *testing.T) {
		p := New("document")
		p.Permission("view").Allow(exploding, alwaysTrue)

		perm, _ := p.PermissionFor("view")
		require.True(t, perm.Decide(testEval(t, p)))
	})

	t.Run("erroring rule counts as not matched", func(t *testing.T) {
		p := New("document")
		p.Permission("view").Allow(erroring)

		perm, _ := p.PermissionFor("view")
		require.False(t, perm.Decide(testEval(t, p)))
	})

	t.Run("panicking deny does not flip the decision to allow", func(t *testing.T) {
		p := New("document")
		p.Permission("view").Deny(exploding, alwaysTrue).Allow(alwaysTrue)

		perm, _ := p.PermissionFor("view")
		require.False(t, perm.Decide(testEval(t, p)), "the second deny rule must still run")
	})
}

func TestConditions(t *testing.T) {
	t.Parallel()

	p := New("document")
	p.Condition("is_public", func(e *Eval) (bool, error) {
		public, _ := e.Context["public"].(bool)
		return public, nil
	})
	p.Permission("view").Allow(func(e *Eval) (bool, error) {
		return e.Condition("is_public"), nil
	})

	perm, _ := p.PermissionFor("view")

	doc := tuple.ObjectRef{Type: "document", ID: "doc1"}
	user := tuple.ObjectRef{Type: "user", ID: "alice"}

	e := NewEval(context.Background(), p, nil, doc, user, Context{"public": true})
	require.True(t, perm.Decide(e))

	e = NewEval(context.Background(), p, nil, doc, user, Context{"public": false})
	require.False(t, perm.Decide(e))

	t.Run("unknown condition answers false", func(t *testing.T) {
		require.False(t, e.Condition("no_such_condition"))
	})
}

func TestEvalHasRelationWithoutChecker(t *testing.T) {
	t.Parallel()

	p := New("document")
	e := testEval(t, p)
	require.False(t, e.HasRelation("viewer"))
}
