package keys

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relguard/relguard/pkg/policy"
	"github.com/relguard/relguard/pkg/tuple"
)

var (
	alice = tuple.ObjectRef{Type: "user", ID: "alice"}
	doc1  = tuple.ObjectRef{Type: "document", ID: "doc1"}
)

func TestPermissionKeyDeterministic(t *testing.T) {
	t.Parallel()

	first := PermissionKey(alice, "view", doc1, nil)
	second := PermissionKey(alice, "view", doc1, nil)
	require.Equal(t, first, second)
	require.Equal(t, "perm:user:alice:view:document:doc1", first)
}

func TestKeyKindsDiffer(t *testing.T) {
	t.Parallel()

	permKey := PermissionKey(alice, "view", doc1, nil)
	allKey := AllPermissionsKey(alice, doc1, nil)
	require.NotEqual(t, permKey, allKey)

	require.Equal(t, "policy:document", PolicyKey("document"))
	require.Equal(t, "relscope:user:alice:viewer:document", RelationScopeKey(alice, "viewer", "document"))
}

func TestContextFragmentInline(t *testing.T) {
	t.Parallel()

	fragment := ContextFragment(policy.Context{"b": 2, "a": "x", "c": true})
	require.Equal(t, "a=x,b=2,c=true", fragment, "entries render sorted")

	require.Empty(t, ContextFragment(nil))
	require.Empty(t, ContextFragment(policy.Context{}))
}

func TestContextFragmentHashesLargeOrComplex(t *testing.T) {
	t.Parallel()

	t.Run("more than three entries", func(t *testing.T) {
		fragment := ContextFragment(policy.Context{"a": 1, "b": 2, "c": 3, "d": 4})
		require.True(t, strings.HasPrefix(fragment, "h"), fragment)
	})

	t.Run("non-primitive value", func(t *testing.T) {
		fragment := ContextFragment(policy.Context{"ids": []string{"a", "b"}})
		require.True(t, strings.HasPrefix(fragment, "h"), fragment)
	})

	t.Run("hash is stable", func(t *testing.T) {
		ctx := policy.Context{"a": 1, "b": 2, "c": 3, "d": 4}
		require.Equal(t, ContextFragment(ctx), ContextFragment(ctx))
	})

	t.Run("different payloads hash differently", func(t *testing.T) {
		a := ContextFragment(policy.Context{"a": 1, "b": 2, "c": 3, "d": 4})
		b := ContextFragment(policy.Context{"a": 1, "b": 2, "c": 3, "d": 5})
		require.NotEqual(t, a, b)
	})
}

func TestContextFragmentEscapesSeparators(t *testing.T) {
	t.Parallel()

	// A value containing the separator characters must not render to the
	// same fragment as the multi-entry context it mimics.
	flat := ContextFragment(policy.Context{"a": "x,admin=true"})
	split := ContextFragment(policy.Context{"a": "x", "admin": "true"})
	require.NotEqual(t, flat, split)
	require.Equal(t, `a=x\,admin\=true`, flat)
	require.Equal(t, "a=x,admin=true", split)

	t.Run("keys are escaped too", func(t *testing.T) {
		a := ContextFragment(policy.Context{"a=b": "c"})
		b := ContextFragment(policy.Context{"a": "b=c"})
		require.NotEqual(t, a, b)
	})

	t.Run("hash input is escaped too", func(t *testing.T) {
		a := ContextFragment(policy.Context{"a": "x,b=1", "c": "2", "d": "3", "e": "4"})
		b := ContextFragment(policy.Context{"a": "x", "b": "1", "c": "2", "d": "3", "e": "4"})
		require.NotEqual(t, a, b)
	})
}

func TestContextChangesKey(t *testing.T) {
	t.Parallel()

	bare := PermissionKey(alice, "view", doc1, nil)
	withCtx := PermissionKey(alice, "view", doc1, policy.Context{"ip": "10.0.0.1"})
	require.NotEqual(t, bare, withCtx)
	require.Equal(t, bare+":ip=10.0.0.1", withCtx)
}

func TestMemoizedKeysMatchUnmemoized(t *testing.T) {
	t.Parallel()

	// The memo only applies to empty contexts; an equivalent key built with
	// a non-empty-then-removed context must match the memoized rendering.
	bob := tuple.ObjectRef{Type: "user", ID: "bob"}
	memoized := PermissionKey(bob, "edit", doc1, nil)
	require.Equal(t, "perm:user:bob:edit:document:doc1", memoized)

	again := PermissionKey(bob, "edit", doc1, policy.Context{})
	require.Equal(t, memoized, again)
}
