package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/relguard/relguard/pkg/cache"
	"github.com/relguard/relguard/pkg/tuple"
)

// countingStore wraps a memory store and counts every operation, so tests
// can assert on round trips rather than just outcomes.
type countingStore struct {
	inner *cache.MemoryStore

	gets      atomic.Int64
	getMultis atomic.Int64
	sets      atomic.Int64
}

func (c *countingStore) Get(key string) (any, bool, error) {
	c.gets.Add(1)
	return c.inner.Get(key)
}

func (c *countingStore) Set(key string, value any, ttl time.Duration) error {
	c.sets.Add(1)
	return c.inner.Set(key, value, ttl)
}

func (c *countingStore) Delete(key string) error {
	return c.inner.Delete(key)
}

func (c *countingStore) GetMulti(keys []string) (map[string]any, error) {
	c.getMultis.Add(1)
	return c.inner.GetMulti(keys)
}

func newCountingStore(t *testing.T) *countingStore {
	t.Helper()
	inner, err := cache.NewMemoryStore(&cache.Config{MaxCost: 10_000, DefaultTTL: time.Minute})
	require.NoError(t, err)
	t.Cleanup(inner.Close)
	return &countingStore{inner: inner}
}

func TestBatchPermissionsEmptyInput(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := newCountingStore(t)
	hookCalls := 0
	e := newTestEngine(t,
		WithCacheStore(store),
		WithPrefetchHook(func(context.Context, tuple.Object, []tuple.Object) error {
			hookCalls++
			return nil
		}),
	)

	results := e.BatchPermissions(ctx, user{id: "alice"}, nil, nil)
	require.Empty(t, results)
	require.Zero(t, hookCalls, "empty input must not invoke the prefetch hook")
	require.Zero(t, store.gets.Load()+store.getMultis.Load()+store.sets.Load(),
		"empty input must not touch the cache store")
}

func TestBatchPermissionsComputesAndCaches(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := newCountingStore(t)
	e := newTestEngine(t, WithCacheStore(store))
	alice := user{id: "alice"}

	doc1 := document{id: "doc1"}
	doc2 := document{id: "doc2"}
	require.NoError(t, e.Grant(ctx, alice, "owner", doc1))

	objects := []tuple.Object{doc1, doc2}

	results := e.BatchPermissions(ctx, alice, objects, nil)
	require.Len(t, results, 2)
	require.Equal(t, map[string]bool{"view": true, "edit": true}, results[tuple.RefOf(doc1)])
	require.Equal(t, map[string]bool{"view": false, "edit": false}, results[tuple.RefOf(doc2)])
	require.Equal(t, int64(1), store.getMultis.Load(), "hits and misses partition in one bulk read")
	require.Equal(t, int64(2), store.sets.Load())

	// A second identical batch is served from cache entirely.
	again := e.BatchPermissions(ctx, alice, objects, nil)
	require.Equal(t, results, again)
	require.Equal(t, int64(2), store.getMultis.Load())
	require.Equal(t, int64(2), store.sets.Load(), "no new writes on a fully cached batch")
}

func TestBatchPermissionsMissingPolicy(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	e := newTestEngine(t)
	alice := user{id: "alice"}

	gadget := tuple.ObjectRef{Type: "gadget", ID: "g1"}
	doc := document{id: "doc1"}

	results := e.BatchPermissions(ctx, alice, []tuple.Object{gadget, doc}, nil)
	require.Len(t, results, 2, "one entry per input object even without a policy")
	require.Empty(t, results[gadget])
	require.Equal(t, map[string]bool{"view": false, "edit": false}, results[tuple.RefOf(doc)])
}

func TestBatchPermissionsPrefetchHook(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("hook receives the batch", func(t *testing.T) {
		var received []tuple.Object
		e := newTestEngine(t, WithPrefetchHook(func(_ context.Context, _ tuple.Object, objects []tuple.Object) error {
			received = objects
			return nil
		}))

		doc := document{id: "doc1"}
		e.BatchPermissions(ctx, user{id: "alice"}, []tuple.Object{doc}, nil)
		require.Equal(t, []tuple.Object{doc}, received)
	})

	t.Run("hook failure never changes the outcome", func(t *testing.T) {
		e := newTestEngine(t, WithPrefetchHook(func(context.Context, tuple.Object, []tuple.Object) error {
			return errors.New("association preload failed")
		}))
		alice := user{id: "alice"}
		doc := document{id: "doc1"}
		require.NoError(t, e.Grant(ctx, alice, "viewer", doc))

		results := e.BatchPermissions(ctx, alice, []tuple.Object{doc}, nil)
		require.Equal(t, map[string]bool{"view": true, "edit": false}, results[tuple.RefOf(doc)])
	})
}

func TestBatchPermissionsInvalidation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := newCountingStore(t)
	e := newTestEngine(t, WithCacheStore(store))
	alice := user{id: "alice"}
	doc := document{id: "doc1"}

	require.NoError(t, e.Grant(ctx, alice, "editor", doc))

	results := e.BatchPermissions(ctx, alice, []tuple.Object{doc}, nil)
	require.True(t, results[tuple.RefOf(doc)]["edit"])

	_, err := e.Revoke(ctx, alice, "editor", doc)
	require.NoError(t, err)

	results = e.BatchPermissions(ctx, alice, []tuple.Object{doc}, nil)
	require.False(t, results[tuple.RefOf(doc)]["edit"],
		"batch decisions must not survive a revoke")
}
