package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/stephenolajire/stumart-query/cache"
	"github.com/stephenolajire/stumart-query/filter"
	"github.com/stephenolajire/stumart-query/interfaces"
	"github.com/stephenolajire/stumart-query/metrics"
)

// ErrSuperseded is returned to a debounced call replaced by a newer call in
// the same debounce group before its timer fired
var ErrSuperseded = errors.New("query superseded by a newer call")

// FetchFunc performs the network call for one filter set and returns the raw
// JSON payload. The coordinator never retries it.
type FetchFunc func(ctx context.Context, filters filter.Set) ([]byte, error)

// AuthSource provides the auth flags folded into cache keys
type AuthSource interface {
	AuthContext() filter.AuthContext
}

// Options tune a single Query call
type Options struct {
	// ForceRefresh skips both in-flight joining and the freshness check
	ForceRefresh bool

	// TTL overrides the namespace TTL for the stored result
	TTL time.Duration

	// Debounce delays the call; a newer call in the same group cancels it
	Debounce time.Duration

	// DebounceGroup defaults to the namespace
	DebounceGroup string
}

// Result is the outcome of a Query
type Result struct {
	Key       string
	Value     []byte
	Status    interfaces.CacheStatus
	FetchedAt time.Time
}

type marker struct {
	seq       uint64
	startedAt time.Time
}

type registration struct {
	namespace string
	filters   filter.Set
	fetch     FetchFunc
	ttl       time.Duration
}

// Coordinator mediates between callers asking for resource data and the
// network fetch: fresh cache hits short-circuit, duplicate calls inside the
// coalescing window share one fetch, and debounced calls only let the last
// call of a burst through.
type Coordinator struct {
	store  *cache.Store
	auth   AuthSource
	config Config
	logger *zap.Logger
	group  singleflight.Group

	mu         sync.Mutex
	seq        uint64
	inflight   map[string]marker
	registered map[string]registration
	debounced  map[string]*pendingCall
	writers    map[string]*metrics.MetricsWriter
}

// New creates a coordinator over store. auth may be nil for anonymous use.
func New(store *cache.Store, auth AuthSource, config Config, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = DefaultConfig().DefaultTTL
	}
	if config.CoalesceWindow <= 0 {
		config.CoalesceWindow = DefaultConfig().CoalesceWindow
	}

	return &Coordinator{
		store:      store,
		auth:       auth,
		config:     config,
		logger:     logger,
		inflight:   make(map[string]marker),
		registered: make(map[string]registration),
		debounced:  make(map[string]*pendingCall),
		writers:    make(map[string]*metrics.MetricsWriter),
	}
}

// Config returns the coordination settings
func (c *Coordinator) Config() Config {
	return c.config
}

// Store returns the underlying cache store
func (c *Coordinator) Store() *cache.Store {
	return c.store
}

// Key returns the cache key for namespace and filters under the current auth context
func (c *Coordinator) Key(namespace string, filters filter.Set) string {
	var auth filter.AuthContext
	if c.auth != nil {
		auth = c.auth.AuthContext()
	}
	return filter.Key(namespace, filters, auth)
}

// Peek returns the cached entry for namespace and filters without fetching
func (c *Coordinator) Peek(namespace string, filters filter.Set) (cache.Entry, bool) {
	return c.store.Get(namespace, c.Key(namespace, filters))
}

// Query returns data for namespace and filters, fetching it only when needed.
//
// Returns ctx.Err() if ctx ends first; a fetch already dispatched keeps
// running and still settles into the cache.
func (c *Coordinator) Query(ctx context.Context, namespace string, filters filter.Set, fetch FetchFunc, opts Options) (Result, error) {
	if opts.Debounce > 0 {
		return c.queryDebounced(ctx, namespace, filters, fetch, opts)
	}
	return c.query(ctx, namespace, filters, fetch, opts)
}

func (c *Coordinator) query(ctx context.Context, namespace string, filters filter.Set, fetch FetchFunc, opts Options) (Result, error) {
	key := c.Key(namespace, filters)
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = c.config.TTL(namespace)
	}

	c.mu.Lock()
	mw := c.writerLocked(namespace)
	c.registered[key] = registration{namespace: namespace, filters: filters, fetch: fetch, ttl: ttl}
	now := c.store.Now()

	if !opts.ForceRefresh {
		if m, ok := c.inflight[key]; ok && now.Sub(m.startedAt) < c.config.Window(namespace) {
			ch := c.group.DoChan(key, func() (interface{}, error) {
				// Unreachable while the marker is held: the marker is removed
				// by the running call before the group releases key.
				return Result{}, fmt.Errorf("no fetch in flight for %s", key)
			})
			c.mu.Unlock()
			mw.RecordLookup(metrics.LookupShared)
			c.logger.Debug("Coordinator: joined in-flight fetch", zap.String("key", key))
			return c.wait(ctx, ch, interfaces.CacheStatusShared)
		}
	}

	lookup, status := metrics.LookupMiss, interfaces.CacheStatusMiss
	if entry, ok := c.store.Get(namespace, key); ok {
		if !opts.ForceRefresh && c.store.IsFresh(entry) {
			c.mu.Unlock()
			mw.RecordLookup(metrics.LookupHit)
			return Result{Key: key, Value: entry.Value, Status: interfaces.CacheStatusHit, FetchedAt: entry.FetchedAt}, nil
		}
		if !c.store.IsFresh(entry) {
			lookup, status = metrics.LookupStale, interfaces.CacheStatusStale
		}
	}

	c.seq++
	seq := c.seq
	c.inflight[key] = marker{seq: seq, startedAt: now}
	version := c.store.Version(namespace, key)
	fetchCtx := context.WithoutCancel(ctx)

	// A previous call for key may still be registered in the group if its
	// window passed or this call forces a refresh; start a new one instead.
	c.group.Forget(key)
	ch := c.group.DoChan(key, func() (interface{}, error) {
		return c.dispatch(fetchCtx, key, namespace, filters, fetch, ttl, seq, version, mw)
	})
	c.mu.Unlock()

	mw.RecordLookup(lookup)
	return c.wait(ctx, ch, status)
}

// dispatch runs the fetch and settles its outcome into the cache
func (c *Coordinator) dispatch(ctx context.Context, key, namespace string, filters filter.Set, fetch FetchFunc, ttl time.Duration, seq uint64, version cache.Version, mw *metrics.MetricsWriter) (Result, error) {
	start := time.Now()
	value, err := fetch(ctx, filters)
	mw.RecordFetch(err, time.Since(start))

	c.mu.Lock()
	defer c.mu.Unlock()

	if m, ok := c.inflight[key]; ok && m.seq == seq {
		delete(c.inflight, key)
	}

	if err != nil {
		c.logger.Warn("Coordinator: fetch failed",
			zap.String("namespace", namespace),
			zap.String("key", key),
			zap.Error(err))
		return Result{}, fmt.Errorf("fetch %s: %w", namespace, err)
	}

	entry, stored := c.store.PutIfVersion(namespace, key, value, ttl, version)
	if !stored {
		// An optimistic write or invalidation landed while this fetch was in
		// flight; the caller still gets the server response.
		mw.RecordSupersededWrite()
		c.logger.Debug("Coordinator: fetch result not stored, entry changed since dispatch",
			zap.String("key", key))
		return Result{Key: key, Value: value, Status: interfaces.CacheStatusMiss, FetchedAt: c.store.Now()}, nil
	}

	return Result{Key: key, Value: entry.Value, Status: interfaces.CacheStatusMiss, FetchedAt: entry.FetchedAt}, nil
}

func (c *Coordinator) wait(ctx context.Context, ch <-chan singleflight.Result, status interfaces.CacheStatus) (Result, error) {
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Result{}, res.Err
		}
		result := res.Val.(Result)
		result.Status = status
		return result, nil
	}
}

// Refetch re-runs the last fetch registered for each key with ForceRefresh.
// Unknown keys are skipped. All keys are attempted; errors are joined.
func (c *Coordinator) Refetch(ctx context.Context, keys ...string) error {
	var errs []error
	for _, key := range keys {
		c.mu.Lock()
		reg, ok := c.registered[key]
		c.mu.Unlock()
		if !ok {
			c.logger.Debug("Coordinator: no fetch registered for key, skipping refetch", zap.String("key", key))
			continue
		}

		_, err := c.query(ctx, reg.namespace, reg.filters, reg.fetch, Options{ForceRefresh: true, TTL: reg.ttl})
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RefetchNamespace forces a refetch of every key of namespace still held in the cache
func (c *Coordinator) RefetchNamespace(ctx context.Context, namespace string) error {
	return c.Refetch(ctx, c.RegisteredKeys(namespace)...)
}

// RegisteredKeys returns the queried keys of namespace whose entry is still
// held in the cache. Registrations of entries that were invalidated, deleted
// or evicted are dropped, unless a fetch for them is in flight.
func (c *Coordinator) RegisteredKeys(namespace string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var keys []string
	for key, reg := range c.registered {
		if reg.namespace != namespace {
			continue
		}
		if _, ok := c.store.Get(namespace, key); !ok {
			if _, busy := c.inflight[key]; !busy {
				delete(c.registered, key)
			}
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// InFlight reports whether a fetch for key is currently dispatched
func (c *Coordinator) InFlight(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.inflight[key]
	return ok
}

// Reset forgets registered fetches and cancels pending debounced calls.
// Fetches already in flight run to completion but can no longer be joined,
// so a later call for the same key dispatches its own fetch.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.inflight {
		c.group.Forget(key)
	}
	c.inflight = make(map[string]marker)
	c.registered = make(map[string]registration)
	for group, p := range c.debounced {
		if p.task.Cancel() {
			p.out <- outcome{err: ErrSuperseded}
		}
		delete(c.debounced, group)
	}
}

func (c *Coordinator) writerLocked(namespace string) *metrics.MetricsWriter {
	mw, ok := c.writers[namespace]
	if !ok {
		mw = metrics.NewMetricsWriter(namespace)
		c.writers[namespace] = mw
	}
	return mw
}
