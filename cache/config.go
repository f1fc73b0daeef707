package cache

import "time"

// Config represents cache configuration
type Config struct {
	// DefaultTTL is used when a write does not specify a freshness window
	DefaultTTL time.Duration `yaml:"default_ttl"`

	// StaleRetention bounds how long an entry stays readable after it was
	// written. Zero keeps entries until they are overwritten or invalidated.
	StaleRetention time.Duration `yaml:"stale_retention"`

	// CleanupInterval is the go-cache janitor interval, only used together
	// with a non-zero StaleRetention
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// DefaultCacheConfig returns default cache configuration
func DefaultCacheConfig() Config {
	return Config{
		DefaultTTL:      5 * time.Minute,
		StaleRetention:  0,
		CleanupInterval: 10 * time.Minute,
	}
}
