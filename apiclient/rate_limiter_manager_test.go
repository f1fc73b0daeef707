package apiclient

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %s: %v", raw, err)
	}
	return u
}

func TestRateLimiterManager_PerHost(t *testing.T) {
	m := NewRateLimiterManager(RateLimitConfig{RateLimitPerMinute: 120, Burst: 4})

	a := m.GetLimiterForURL(mustParse(t, "http://backend.local/api/shops/"))
	b := m.GetLimiterForURL(mustParse(t, "http://backend.local/api/orders/"))
	other := m.GetLimiterForURL(mustParse(t, "http://cdn.local/img"))

	assert.Same(t, a, b)
	assert.NotSame(t, a, other)
	assert.Equal(t, rate.Limit(2), a.Limit())
	assert.Equal(t, 4, a.Burst())
}

func TestRateLimiterManager_Defaults(t *testing.T) {
	m := NewRateLimiterManager(RateLimitConfig{})
	lim := m.GetLimiterForURL(mustParse(t, "http://backend.local/"))
	assert.Equal(t, rate.Limit(10), lim.Limit())
	assert.Equal(t, 10, lim.Burst())

	slow := NewRateLimiterManager(RateLimitConfig{RateLimitPerMinute: 30})
	assert.Equal(t, 1, slow.GetLimiterForURL(mustParse(t, "http://backend.local/")).Burst())
}

func TestRateLimiterManager_SetConfigRebuilds(t *testing.T) {
	m := NewRateLimiterManager(RateLimitConfig{RateLimitPerMinute: 60})
	u := mustParse(t, "http://backend.local/")
	before := m.GetLimiterForURL(u)

	m.SetConfig(RateLimitConfig{RateLimitPerMinute: 60})
	assert.Same(t, before, m.GetLimiterForURL(u))

	m.SetConfig(RateLimitConfig{RateLimitPerMinute: 300, Burst: 7})
	after := m.GetLimiterForURL(u)
	assert.NotSame(t, before, after)
	assert.Equal(t, rate.Limit(5), after.Limit())
	assert.Equal(t, 7, after.Burst())
}

func TestRateLimiterManager_Nil(t *testing.T) {
	var m *RateLimiterManager
	assert.Nil(t, m.GetLimiterForURL(mustParse(t, "http://x/")))
	assert.Nil(t, NewRateLimiterManager(RateLimitConfig{}).GetLimiterForURL(nil))
}
