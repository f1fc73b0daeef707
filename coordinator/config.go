package coordinator

import "time"

// Config configures request coordination
type Config struct {
	// DefaultTTL applies to namespaces without their own TTL
	DefaultTTL time.Duration `yaml:"default_ttl"`

	// CoalesceWindow is how long an in-flight fetch absorbs duplicate calls
	CoalesceWindow time.Duration `yaml:"coalesce_window"`

	// Namespaces holds per-resource overrides
	Namespaces map[string]NamespaceConfig `yaml:"namespaces"`
}

// NamespaceConfig overrides coordination settings for one namespace
type NamespaceConfig struct {
	TTL            time.Duration `yaml:"ttl"`
	CoalesceWindow time.Duration `yaml:"coalesce_window"`

	// Debounce delays free-text queries of the namespace
	Debounce time.Duration `yaml:"debounce"`
}

// DefaultConfig returns default coordination settings
func DefaultConfig() Config {
	return Config{
		DefaultTTL:     5 * time.Minute,
		CoalesceWindow: 750 * time.Millisecond,
		Namespaces:     map[string]NamespaceConfig{},
	}
}

// TTL returns the freshness window for namespace
func (c Config) TTL(namespace string) time.Duration {
	if ns, ok := c.Namespaces[namespace]; ok && ns.TTL > 0 {
		return ns.TTL
	}
	return c.DefaultTTL
}

// Window returns the coalescing window for namespace
func (c Config) Window(namespace string) time.Duration {
	if ns, ok := c.Namespaces[namespace]; ok && ns.CoalesceWindow > 0 {
		return ns.CoalesceWindow
	}
	return c.CoalesceWindow
}

// Debounce returns the free-text debounce delay for namespace, 0 if none
func (c Config) Debounce(namespace string) time.Duration {
	return c.Namespaces[namespace].Debounce
}
