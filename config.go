package aegis

import "time"

// Config holds configuration for the Engine.
type Config struct {
	// CacheTTL bounds the lifetime of a cached resolved permission set.
	// Event-driven invalidation keeps the cache consistent on its own;
	// the TTL is a safety net for missed invalidations in multi-process
	// deployments sharing one store. Defaults to 5 minutes.
	CacheTTL time.Duration `json:"cache_ttl,omitempty"`

	// CacheMaxEntries caps the number of principals held by the default
	// in-memory cache. Zero means unbounded. Defaults to 10000.
	CacheMaxEntries int `json:"cache_max_entries,omitempty"`

	// DisableCache turns off decision caching entirely; every check
	// resolves against the store.
	DisableCache bool `json:"disable_cache,omitempty"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		CacheTTL:        5 * time.Minute,
		CacheMaxEntries: 10000,
	}
}
