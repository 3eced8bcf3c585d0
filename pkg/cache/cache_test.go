package cache

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// failingStore errors on every operation, simulating a cache outage.
type failingStore struct{}

func (failingStore) Get(string) (any, bool, error)        { return nil, false, errors.New("store down") }
func (failingStore) Set(string, any, time.Duration) error { return errors.New("store down") }
func (failingStore) Delete(string) error                  { return errors.New("store down") }

func newMemoryLayer(t *testing.T) (*Layer, *MemoryStore) {
	t.Helper()
	store, err := NewMemoryStore(&Config{MaxCost: 1000, DefaultTTL: time.Minute})
	require.NoError(t, err)
	t.Cleanup(store.Close)
	return NewLayer(store, time.Minute), store
}

func TestFetchComputesAndCaches(t *testing.T) {
	t.Parallel()

	layer, store := newMemoryLayer(t)

	computes := 0
	compute := func() (any, error) {
		computes++
		return "decision", nil
	}

	value, err := layer.Fetch("k1", 0, compute)
	require.NoError(t, err)
	require.Equal(t, "decision", value)
	require.Equal(t, 1, computes)

	value, err = layer.Fetch("k1", 0, compute)
	require.NoError(t, err)
	require.Equal(t, "decision", value)
	require.Equal(t, 1, computes, "second fetch must hit the cache")
	require.NotZero(t, store.Hits())
}

func TestFetchWithNilStore(t *testing.T) {
	t.Parallel()

	layer := NewLayer(nil, time.Minute)
	require.False(t, layer.Enabled())

	computes := 0
	value, err := layer.Fetch("k1", 0, func() (any, error) {
		computes++
		return true, nil
	})
	require.NoError(t, err)
	require.Equal(t, true, value)

	_, err = layer.Fetch("k1", 0, func() (any, error) {
		computes++
		return true, nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, computes, "disabled layer always recomputes")
}

func TestFetchDegradesOnStoreFailure(t *testing.T) {
	t.Parallel()

	layer := NewLayer(failingStore{}, time.Minute)

	value, err := layer.Fetch("k1", 0, func() (any, error) { return 42, nil })
	require.NoError(t, err, "store failure must not surface")
	require.Equal(t, 42, value)
}

func TestFetchComputeErrorPropagates(t *testing.T) {
	t.Parallel()

	layer, _ := newMemoryLayer(t)

	boom := errors.New("compute failed")
	_, err := layer.Fetch("k1", 0, func() (any, error) { return nil, boom })
	require.ErrorIs(t, err, boom)

	// The failure must not have been cached.
	value, err := layer.Fetch("k1", 0, func() (any, error) { return "ok", nil })
	require.NoError(t, err)
	require.Equal(t, "ok", value)
}

func TestGetMulti(t *testing.T) {
	t.Parallel()

	layer, _ := newMemoryLayer(t)
	layer.Set("a", 1, 0)
	layer.Set("b", 2, 0)

	values := layer.GetMulti([]string{"a", "b", "missing"})
	require.Equal(t, map[string]any{"a": 1, "b": 2}, values)

	t.Run("nil store treats everything as miss", func(t *testing.T) {
		disabled := NewLayer(nil, 0)
		require.Nil(t, disabled.GetMulti([]string{"a"}))
	})

	t.Run("store without bulk support treats everything as miss", func(t *testing.T) {
		require.Nil(t, NewLayer(failingStore{}, 0).GetMulti([]string{"a"}))
	})
}

func TestDeletePatternWithoutSupportIsHarmless(t *testing.T) {
	t.Parallel()

	layer, _ := newMemoryLayer(t)
	layer.Set("perm:user:alice:view:document:doc1", true, 0)

	// MemoryStore has no pattern deletion; this must be a logged no-op.
	layer.DeletePattern("perm:user:alice:*")

	value, err := layer.Fetch("perm:user:alice:view:document:doc1", 0, func() (any, error) { return false, nil })
	require.NoError(t, err)
	require.Equal(t, true, value)
}
