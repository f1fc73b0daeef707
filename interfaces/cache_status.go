package interfaces

// CacheStatus tells how a query result was obtained
type CacheStatus string

const (
	// CacheStatusHit means a fresh entry was served without a network call
	CacheStatusHit CacheStatus = "hit"
	// CacheStatusStale means the cached entry was past its TTL and this call refetched it
	CacheStatusStale CacheStatus = "stale"
	// CacheStatusMiss means the value was fetched by this call
	CacheStatusMiss CacheStatus = "miss"
	// CacheStatusShared means the call joined a fetch already in flight
	CacheStatusShared CacheStatus = "shared"
)

func (cs CacheStatus) String() string {
	return string(cs)
}

// FromNetwork reports whether the value came from a backend fetch
func (cs CacheStatus) FromNetwork() bool {
	return cs == CacheStatusMiss || cs == CacheStatusStale || cs == CacheStatusShared
}
