package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkgfleet/pkgfleet/pkg/backend"
	"github.com/pkgfleet/pkgfleet/pkg/logging"
)

const keyPrefix = "result"

// Config holds result-cache configuration
type Config struct {
	// TTL is the maximum age before an entry stops being served
	TTL time.Duration
}

// DefaultConfig returns default cache configuration
func DefaultConfig() *Config {
	return &Config{
		TTL: 24 * time.Hour,
	}
}

// envelope is the stored representation of a cached result
type envelope struct {
	Value    backend.Value `json:"value"`
	StoredAt time.Time     `json:"stored_at"`
}

// ResultCache is the last-known-good store consulted when a live invocation
// is skipped or exhausted. Entries are keyed by (backend, operation, key)
// and written only after a live success; expiry is lazy on Get so expired
// entries simply read as misses.
type ResultCache struct {
	store  Store
	config *Config
	logger *logging.Logger
	now    func() time.Time
}

// New creates a result cache on top of the given store
func New(store Store, config *Config) *ResultCache {
	if config == nil {
		config = DefaultConfig()
	}
	if config.TTL <= 0 {
		config.TTL = 24 * time.Hour
	}

	return &ResultCache{
		store:  store,
		config: config,
		logger: logging.GetLogger(),
		now:    time.Now,
	}
}

// Key builds the slot key for one (backend, operation, key) triple
func Key(backendID string, op backend.OperationKind, key string) string {
	return fmt.Sprintf("%s:%s:%s:%s", keyPrefix, backendID, op, key)
}

// Get returns the cached value for the slot along with its age. Expired or
// undecodable entries read as misses; store errors are logged and read as
// misses because fallback must never fail harder than the live path did.
func (c *ResultCache) Get(ctx context.Context, backendID string, op backend.OperationKind, key string) (backend.Value, bool, time.Duration) {
	slot := Key(backendID, op, key)

	data, found, err := c.store.Get(ctx, slot)
	if err != nil {
		c.logger.Warn("Cache read failed",
			"key", slot,
			"error", err.Error(),
		)
		return backend.Value{}, false, 0
	}
	if !found {
		return backend.Value{}, false, 0
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.logger.Warn("Cache entry is corrupt, dropping",
			"key", slot,
			"error", err.Error(),
		)
		_ = c.store.Del(ctx, slot)
		return backend.Value{}, false, 0
	}

	age := c.now().Sub(env.StoredAt)
	if age > c.config.TTL {
		return backend.Value{}, false, 0
	}

	return env.Value, true, age
}

// Put overwrites the slot with a freshly observed live value. Last write
// wins; writing the same value again resets the entry's age.
func (c *ResultCache) Put(ctx context.Context, backendID string, op backend.OperationKind, key string, value backend.Value) error {
	slot := Key(backendID, op, key)

	data, err := json.Marshal(envelope{
		Value:    value,
		StoredAt: c.now(),
	})
	if err != nil {
		return fmt.Errorf("failed to serialize cache entry: %w", err)
	}

	if err := c.store.Set(ctx, slot, data, c.config.TTL); err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	return nil
}

// Invalidate drops the slot, used when a mutating operation makes the
// cached read-side value stale
func (c *ResultCache) Invalidate(ctx context.Context, backendID string, op backend.OperationKind, key string) error {
	return c.store.Del(ctx, Key(backendID, op, key))
}
