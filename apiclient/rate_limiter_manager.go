package apiclient

import (
	"math"
	"net/url"
	"sync"

	"golang.org/x/time/rate"
)

// Defaults in requests per minute, used when config is not provided
const (
	defaultRateLimitPerMinute = 600
)

// RateLimitConfig limits outgoing requests per backend host
type RateLimitConfig struct {
	RateLimitPerMinute int `yaml:"rate_limit_per_minute"`
	Burst              int `yaml:"burst"`
}

// IRateLimiterManager provides a limiter for a request URL
type IRateLimiterManager interface {
	GetLimiterForURL(u *url.URL) *rate.Limiter
	SetConfig(cfg RateLimitConfig)
}

// RateLimiterManager keeps one limiter per host
type RateLimiterManager struct {
	mu            sync.RWMutex
	hostToLimiter map[string]*rate.Limiter
	config        RateLimitConfig
}

// NewRateLimiterManager creates a manager with cfg
func NewRateLimiterManager(cfg RateLimitConfig) *RateLimiterManager {
	return &RateLimiterManager{
		hostToLimiter: make(map[string]*rate.Limiter),
		config:        cfg,
	}
}

// SetConfig applies a new config and rebuilds limiters if it changed
func (m *RateLimiterManager) SetConfig(cfg RateLimitConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cfg == m.config {
		return
	}
	m.config = cfg
	for host := range m.hostToLimiter {
		m.hostToLimiter[host] = m.newLimiterLocked()
	}
}

// GetLimiterForURL returns the limiter for the URL host, creating it if missing
func (m *RateLimiterManager) GetLimiterForURL(u *url.URL) *rate.Limiter {
	if m == nil || u == nil {
		return nil
	}
	host := u.Host

	m.mu.RLock()
	if lim, ok := m.hostToLimiter[host]; ok {
		m.mu.RUnlock()
		return lim
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	if lim, ok := m.hostToLimiter[host]; ok {
		return lim
	}
	limiter := m.newLimiterLocked()
	m.hostToLimiter[host] = limiter
	return limiter
}

func (m *RateLimiterManager) newLimiterLocked() *rate.Limiter {
	rpm := m.config.RateLimitPerMinute
	if rpm <= 0 {
		rpm = defaultRateLimitPerMinute
	}
	limit := rate.Limit(float64(rpm) / 60.0)

	burst := m.config.Burst
	if burst <= 0 {
		burst = defaultBurstForLimit(limit)
	}
	return rate.NewLimiter(limit, burst)
}

func defaultBurstForLimit(limit rate.Limit) int {
	if limit <= 1.0 {
		return 1
	}
	return int(math.Ceil(float64(limit)))
}
