package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/Yiling-J/theine-go"
)

// MemoryStore is an in-process Store on a theine cache. It supports bulk
// reads but not pattern deletion: invalidation of in-process entries rides
// on the engine's generation-versioned keys.
type MemoryStore struct {
	cache      *theine.Cache[string, any]
	defaultTTL time.Duration
	closed     sync.Once

	hits   atomic.Uint64
	misses atomic.Uint64
}

var (
	_ Store      = (*MemoryStore)(nil)
	_ BulkReader = (*MemoryStore)(nil)
)

// NewMemoryStore builds an in-process store from the config.
func NewMemoryStore(config *Config) (*MemoryStore, error) {
	built, err := theine.NewBuilder[string, any](config.MaxCost).Build()
	if err != nil {
		return nil, err
	}
	return &MemoryStore{cache: built, defaultTTL: config.DefaultTTL}, nil
}

func (m *MemoryStore) Get(key string) (any, bool, error) {
	value, ok := m.cache.Get(key)
	if ok {
		m.hits.Add(1)
	} else {
		m.misses.Add(1)
	}
	return value, ok, nil
}

func (m *MemoryStore) Set(key string, value any, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = m.defaultTTL
	}
	if ttl <= 0 {
		m.cache.Set(key, value, 1)
		return nil
	}
	m.cache.SetWithTTL(key, value, 1, ttl)
	return nil
}

func (m *MemoryStore) Delete(key string) error {
	m.cache.Delete(key)
	return nil
}

func (m *MemoryStore) GetMulti(keys []string) (map[string]any, error) {
	values := make(map[string]any, len(keys))
	for _, key := range keys {
		if value, ok, _ := m.Get(key); ok {
			values[key] = value
		}
	}
	return values, nil
}

// Hits returns the number of reads answered from the cache.
func (m *MemoryStore) Hits() uint64 { return m.hits.Load() }

// Misses returns the number of reads that fell through.
func (m *MemoryStore) Misses() uint64 { return m.misses.Load() }

// Close releases the cache's background workers.
func (m *MemoryStore) Close() {
	m.closed.Do(func() {
		m.cache.Close()
	})
}
