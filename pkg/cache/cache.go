// Package cache is the decision cache layer: an injected key/value store
// with optional bulk-read and pattern-delete capabilities, wrapped so that
// a store failure can never change an authorization outcome, only its cost.
package cache

import (
	"time"

	"github.com/ccoveille/go-safecast/v2"
	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/relguard/relguard/internal/logging"
)

// Store is an injected key/value store for decision values. Implementations
// must be safe for concurrent use. Values are arbitrary serializable
// decision payloads.
type Store interface {
	// Get returns the value for key, whether it was present, and any store
	// error.
	Get(key string) (any, bool, error)

	// Set stores the value under key with the given TTL. A non-positive TTL
	// means the store's default lifetime.
	Set(key string, value any, ttl time.Duration) error

	// Delete removes the key if present.
	Delete(key string) error
}

// BulkReader is implemented by stores that can serve many keys in one round
// trip. Batch decisions use it to partition hits from misses.
type BulkReader interface {
	GetMulti(keys []string) (map[string]any, error)
}

// PatternDeleter is implemented by stores that support bulk eviction by key
// pattern (a literal prefix ending in `*`). Stores without it are still
// fully supported; invalidation relies on generation-versioned keys.
type PatternDeleter interface {
	DeletePattern(pattern string) (int, error)
}

// Config sizes a memory store.
type Config struct {
	// MaxCost is the cache capacity in cost units; the memory store charges
	// one unit per entry.
	MaxCost int64

	// DefaultTTL is applied to entries stored without an explicit TTL.
	DefaultTTL time.Duration
}

func (c *Config) MarshalZerologObject(e *zerolog.Event) {
	maxCost, _ := safecast.Convert[uint64](c.MaxCost)
	e.
		Str("maxCost", humanize.Comma(int64(maxCost))).
		Dur("defaultTTL", c.DefaultTTL)
}

// Layer wraps an optional Store with fetch-or-compute semantics. A nil
// store disables caching; every operation degrades to direct computation.
type Layer struct {
	store      Store
	defaultTTL time.Duration
}

// NewLayer wraps the store. Passing a nil store yields a disabled layer.
func NewLayer(store Store, defaultTTL time.Duration) *Layer {
	return &Layer{store: store, defaultTTL: defaultTTL}
}

// Enabled reports whether a backing store is configured.
func (l *Layer) Enabled() bool {
	return l != nil && l.store != nil
}

// Fetch returns the cached value for key or computes and stores it. Store
// failures fall back to direct computation and are logged, never returned:
// the cache is a performance layer, not a correctness dependency. Compute
// errors propagate untouched and nothing is stored.
func (l *Layer) Fetch(key string, ttl time.Duration, compute func() (any, error)) (any, error) {
	if !l.Enabled() {
		return compute()
	}

	value, ok, err := l.store.Get(key)
	if err != nil {
		logging.Err(err).Str("key", key).Msg("cache read failed; computing directly")
		return compute()
	}
	if ok {
		return value, nil
	}

	value, err = compute()
	if err != nil {
		return nil, err
	}
	l.Set(key, value, ttl)
	return value, nil
}

// Set stores a computed value, logging and swallowing store failures.
func (l *Layer) Set(key string, value any, ttl time.Duration) {
	if !l.Enabled() {
		return
	}
	if ttl <= 0 {
		ttl = l.defaultTTL
	}
	if err := l.store.Set(key, value, ttl); err != nil {
		logging.Err(err).Str("key", key).Msg("cache write failed; continuing uncached")
	}
}

// GetMulti reads many keys in one round trip when the store supports bulk
// reads. Without bulk support, or on any store failure, it returns nil and
// the caller treats every key as a miss.
func (l *Layer) GetMulti(keys []string) map[string]any {
	if !l.Enabled() || len(keys) == 0 {
		return nil
	}
	bulk, ok := l.store.(BulkReader)
	if !ok {
		return nil
	}
	values, err := bulk.GetMulti(keys)
	if err != nil {
		logging.Err(err).Int("keys", len(keys)).Msg("cache bulk read failed; treating all as misses")
		return nil
	}
	return values
}

// DeletePattern bulk-evicts keys matching the pattern when the store
// supports it; otherwise it logs the skip and returns. Callers must not
// depend on it for correctness.
func (l *Layer) DeletePattern(pattern string) {
	if !l.Enabled() {
		return
	}
	deleter, ok := l.store.(PatternDeleter)
	if !ok {
		logging.Debug().Str("pattern", pattern).Msg("cache store lacks pattern deletion; relying on key generations")
		return
	}
	removed, err := deleter.DeletePattern(pattern)
	if err != nil {
		logging.Err(err).Str("pattern", pattern).Msg("cache pattern delete failed")
		return
	}
	logging.Debug().Str("pattern", pattern).Int("removed", removed).Msg("cache pattern delete")
}
