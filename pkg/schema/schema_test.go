package schema

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newDocumentSchema(t *testing.T) *RelationSchema {
	t.Helper()
	s := New()
	require.NoError(t, s.Declare("viewer", Declaration{}))
	require.NoError(t, s.Declare("editor", Declaration{Requires: []string{"viewer"}}))
	require.NoError(t, s.Declare("owner", Declaration{Requires: []string{"editor", "viewer"}}))
	return s
}

func TestEffectiveRelations(t *testing.T) {
	t.Parallel()

	s := newDocumentSchema(t)

	tcs := []struct {
		relation string
		expected []string
	}{
		{"viewer", []string{"editor", "owner", "viewer"}},
		{"editor", []string{"editor", "owner"}},
		{"owner", []string{"owner"}},
	}

	for _, tc := range tcs {
		t.Run(tc.relation, func(t *testing.T) {
			require.Equal(t, tc.expected, s.EffectiveRelations(tc.relation))
		})
	}
}

func TestEffectiveRelationsUndeclared(t *testing.T) {
	t.Parallel()

	s := newDocumentSchema(t)
	require.Equal(t, []string{"banned"}, s.EffectiveRelations("banned"))

	empty := New()
	require.Equal(t, []string{"viewer"}, empty.EffectiveRelations("viewer"))
}

func TestSatisfiedRelations(t *testing.T) {
	t.Parallel()

	s := newDocumentSchema(t)
	require.Equal(t, []string{"editor", "owner", "viewer"}, s.SatisfiedRelations("owner"))
	require.Equal(t, []string{"editor", "viewer"}, s.SatisfiedRelations("editor"))
	require.Equal(t, []string{"viewer"}, s.SatisfiedRelations("viewer"))
}

func TestDeclareMergesRatherThanOverwrites(t *testing.T) {
	t.Parallel()

	s := New()
	require.NoError(t, s.Declare("viewer", Declaration{Requires: []string{}}))
	require.NoError(t, s.Declare("editor", Declaration{Requires: []string{"viewer"}}))

	// A second declaration adds a via path without dropping the hierarchy.
	require.NoError(t, s.Declare("editor", Declaration{Via: map[string]string{"member": "team"}}))

	require.Equal(t, []string{"editor"}, s.EffectiveRelations("editor"))
	require.Equal(t, []string{"editor", "viewer"}, s.SatisfiedRelations("editor"))
	require.Equal(t, map[string]string{"member": "team"}, s.ViaPathsFor("editor"))

	// And a later declaration adds another via entry, merging both.
	require.NoError(t, s.Declare("editor", Declaration{Via: map[string]string{"collaborator": "workspace"}}))
	require.Equal(t, map[string]string{
		"member":       "team",
		"collaborator": "workspace",
	}, s.ViaPathsFor("editor"))
}

func TestDeclareRejectsCycles(t *testing.T) {
	t.Parallel()

	t.Run("direct self requirement", func(t *testing.T) {
		s := New()
		err := s.Declare("viewer", Declaration{Requires: []string{"viewer"}})
		require.Error(t, err)
		require.ErrorAs(t, err, &RelationCycleError{})
	})

	t.Run("transitive cycle", func(t *testing.T) {
		s := New()
		require.NoError(t, s.Declare("editor", Declaration{Requires: []string{"viewer"}}))
		require.NoError(t, s.Declare("viewer", Declaration{Requires: []string{"reader"}}))

		err := s.Declare("reader", Declaration{Requires: []string{"editor"}})
		require.Error(t, err)

		var cycleErr RelationCycleError
		require.ErrorAs(t, err, &cycleErr)
		require.Equal(t, "reader", cycleErr.Relation)

		// The failed declaration must leave the schema untouched.
		require.False(t, s.Declared("reader"))
	})
}

func TestViaPathsForUndeclared(t *testing.T) {
	t.Parallel()

	s := New()
	require.Empty(t, s.ViaPathsFor("viewer"))
}

func TestRelationNames(t *testing.T) {
	t.Parallel()

	s := newDocumentSchema(t)
	require.Equal(t, []string{"editor", "owner", "viewer"}, s.RelationNames())
	require.True(t, s.Declared("owner"))
	require.False(t, s.IsEmpty())
	require.True(t, New().IsEmpty())
}
