package cache

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a namespace/key pair holds no entry
var ErrNotFound = errors.New("cache entry not found")

// Entry is the last successfully fetched payload for one cache key
type Entry struct {
	Namespace string
	Key       string

	// Value is the JSON payload as returned by the backend
	Value []byte

	// FetchedAt is the wall clock time of the last successful population
	FetchedAt time.Time

	// TTL is the freshness window applied to this entry
	TTL time.Duration
}

// Age returns how old the entry is at the given time
func (e Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.FetchedAt)
}

// Version identifies the state of a key for conditional writes.
//
// Epoch grows on every invalidation of the key's namespace, Gen grows on every
// optimistic write, restore or delete of the key. Plain fetch writes leave the
// version untouched, so concurrent fetches keep last-write-wins semantics.
type Version struct {
	Epoch uint64
	Gen   uint64
}

// Clock returns the current time
type Clock func() time.Time
