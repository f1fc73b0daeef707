package cache

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/stephenolajire/stumart-query/events"
	"github.com/stephenolajire/stumart-query/metrics"
)

// Store is the namespaced TTL cache shared by queries and mutations.
// It lives for one application session and is never persisted.
type Store struct {
	mu         sync.RWMutex
	config     Config
	now        Clock
	logger     *zap.Logger
	namespaces map[string]*GoCache
	writers    map[string]*metrics.MetricsWriter

	// epoch is bumped by InvalidateAll, nsEpochs by Invalidate
	epoch    uint64
	nsEpochs map[string]uint64
	gens     map[string]uint64

	notifyMu  sync.Mutex
	notifiers map[string]*events.Notifier
}

// Option configures a Store
type Option func(*Store)

// WithClock replaces the wall clock, mostly for tests
func WithClock(now Clock) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStore creates an empty store
func NewStore(config Config, opts ...Option) *Store {
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = DefaultCacheConfig().DefaultTTL
	}

	s := &Store{
		config:     config,
		now:        time.Now,
		logger:     zap.NewNop(),
		namespaces: make(map[string]*GoCache),
		writers:    make(map[string]*metrics.MetricsWriter),
		nsEpochs:   make(map[string]uint64),
		gens:       make(map[string]uint64),
		notifiers:  make(map[string]*events.Notifier),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now returns the store's notion of the current time
func (s *Store) Now() time.Time {
	return s.now()
}

// Get returns the entry for key in namespace. Stale entries are returned too.
func (s *Store) Get(namespace, key string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ns, ok := s.namespaces[namespace]
	if !ok {
		return Entry{}, false
	}
	return ns.Get(key)
}

// IsFresh reports whether the entry's age is still within its TTL
func (s *Store) IsFresh(entry Entry) bool {
	return s.now().Sub(entry.FetchedAt) < entry.TTL
}

// Put overwrites the entry for key and stamps FetchedAt with the current time
func (s *Store) Put(namespace, key string, value []byte, ttl time.Duration) Entry {
	defer s.changed(namespace)
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.putLocked(namespace, key, value, ttl)
}

// PutIfVersion stores the value only if the key's version still equals
// version, i.e. no optimistic write, restore or invalidation happened since
// version was read.
func (s *Store) PutIfVersion(namespace, key string, value []byte, ttl time.Duration, version Version) (Entry, bool) {
	defer s.changed(namespace)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.versionLocked(namespace, key) != version {
		return Entry{}, false
	}
	return s.putLocked(namespace, key, value, ttl), true
}

// Version returns the current version of key
func (s *Store) Version(namespace, key string) Version {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.versionLocked(namespace, key)
}

// SetOptimistic replaces the value of an existing entry keeping its FetchedAt
// and TTL, and bumps the key's generation. The returned version identifies the
// optimistic state for RestoreIfVersion. Returns ErrNotFound when the key
// holds no entry.
func (s *Store) SetOptimistic(namespace, key string, value []byte) (Entry, Version, error) {
	defer s.changed(namespace)
	s.mu.Lock()
	defer s.mu.Unlock()

	ns, ok := s.namespaces[namespace]
	if !ok {
		return Entry{}, Version{}, ErrNotFound
	}
	entry, ok := ns.Get(key)
	if !ok {
		return Entry{}, Version{}, ErrNotFound
	}

	entry.Value = value
	ns.Set(entry)
	s.gens[genKey(namespace, key)]++
	return entry, s.versionLocked(namespace, key), nil
}

// Restore writes a previously captured entry back verbatim
func (s *Store) Restore(entry Entry) {
	defer s.changed(entry.Namespace)
	s.mu.Lock()
	defer s.mu.Unlock()

	s.restoreLocked(entry)
}

// RestoreIfVersion writes entry back only if its key still holds version.
// An invalidation, another optimistic write or a restore since version was
// taken leaves the key untouched and returns false.
func (s *Store) RestoreIfVersion(entry Entry, version Version) bool {
	defer s.changed(entry.Namespace)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.versionLocked(entry.Namespace, entry.Key) != version {
		return false
	}
	s.restoreLocked(entry)
	return true
}

// Delete removes the entry for key
func (s *Store) Delete(namespace, key string) {
	defer s.changed(namespace)
	s.mu.Lock()
	defer s.mu.Unlock()

	s.gens[genKey(namespace, key)]++
	if ns, ok := s.namespaces[namespace]; ok {
		ns.Delete(key)
		s.recordSizeLocked(namespace)
	}
}

// Keys returns the sorted keys held in namespace
func (s *Store) Keys(namespace string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ns, ok := s.namespaces[namespace]
	if !ok {
		return nil
	}
	keys := ns.Keys()
	sort.Strings(keys)
	return keys
}

// Invalidate clears every entry of namespace
func (s *Store) Invalidate(namespace string) {
	defer s.changed(namespace)
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nsEpochs[namespace]++
	if ns, ok := s.namespaces[namespace]; ok {
		ns.Clear()
		s.recordSizeLocked(namespace)
	}
	s.logger.Debug("Cache: namespace invalidated", zap.String("namespace", namespace))
}

// InvalidateAll clears every namespace
func (s *Store) InvalidateAll() {
	defer s.changedAll()
	s.mu.Lock()
	defer s.mu.Unlock()

	s.epoch++
	for name, ns := range s.namespaces {
		ns.Clear()
		s.recordSizeLocked(name)
	}
	s.logger.Debug("Cache: all namespaces invalidated")
}

// Stats returns the number of entries per namespace
func (s *Store) Stats() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[string]int, len(s.namespaces))
	for name, ns := range s.namespaces {
		stats[name] = ns.ItemCount()
	}
	return stats
}

// Watch notifies on every write to namespace. Notifications coalesce and
// carry no payload; subscribers re-read the entries they care about.
func (s *Store) Watch(namespace string) events.ISubscription {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	n, ok := s.notifiers[namespace]
	if !ok {
		n = events.NewNotifier()
		s.notifiers[namespace] = n
	}
	return n.Subscribe()
}

func (s *Store) changed(namespace string) {
	s.notifyMu.Lock()
	n := s.notifiers[namespace]
	s.notifyMu.Unlock()

	if n != nil {
		n.Emit()
	}
}

func (s *Store) changedAll() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	for _, n := range s.notifiers {
		n.Emit()
	}
}

func (s *Store) putLocked(namespace, key string, value []byte, ttl time.Duration) Entry {
	if ttl <= 0 {
		ttl = s.config.DefaultTTL
	}

	entry := Entry{
		Namespace: namespace,
		Key:       key,
		Value:     value,
		FetchedAt: s.now(),
		TTL:       ttl,
	}
	s.namespaceLocked(namespace).Set(entry)
	s.recordSizeLocked(namespace)
	return entry
}

func (s *Store) restoreLocked(entry Entry) {
	s.namespaceLocked(entry.Namespace).Set(entry)
	s.gens[genKey(entry.Namespace, entry.Key)]++
	s.recordSizeLocked(entry.Namespace)
}

func (s *Store) versionLocked(namespace, key string) Version {
	return Version{
		Epoch: s.epoch + s.nsEpochs[namespace],
		Gen:   s.gens[genKey(namespace, key)],
	}
}

func (s *Store) namespaceLocked(namespace string) *GoCache {
	ns, ok := s.namespaces[namespace]
	if !ok {
		ns = NewGoCache(s.config.StaleRetention, s.config.CleanupInterval)
		s.namespaces[namespace] = ns
		s.writers[namespace] = metrics.NewMetricsWriter(namespace)
	}
	return ns
}

func (s *Store) recordSizeLocked(namespace string) {
	if w, ok := s.writers[namespace]; ok {
		w.RecordCacheSize(s.namespaces[namespace].ItemCount())
	}
}

func genKey(namespace, key string) string {
	return namespace + "\x00" + key
}
