package mutation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/stephenolajire/stumart-query/cache"
	"github.com/stephenolajire/stumart-query/metrics"
)

// Phase is the state of a single mutation
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseOptimisticApplied
	PhaseConfirmed
	PhaseRolledBack
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseOptimisticApplied:
		return "optimistic_applied"
	case PhaseConfirmed:
		return "confirmed"
	case PhaseRolledBack:
		return "rolled_back"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Patch rewrites one cache entry optimistically.
// Apply receives the current payload and must return a new one without
// modifying its input.
type Patch struct {
	Namespace string
	Key       string
	Apply     func(prev []byte) ([]byte, error)
}

// PatchJSON builds a Patch that decodes the entry as T, applies update and
// encodes the result
func PatchJSON[T any](namespace, key string, update func(T) T) Patch {
	return Patch{
		Namespace: namespace,
		Key:       key,
		Apply: func(prev []byte) ([]byte, error) {
			var value T
			if err := json.Unmarshal(prev, &value); err != nil {
				return nil, fmt.Errorf("decode %s: %w", key, err)
			}
			return json.Marshal(update(value))
		},
	}
}

// Mutation describes a remote write and the cache entries it affects
type Mutation struct {
	// Name labels logs and metrics
	Name string

	// Patches are applied before Write and rolled back if it fails
	Patches []Patch

	// Write performs the network call
	Write func(ctx context.Context) error

	// Refetch lists extra keys to refresh after a successful write, on top
	// of every patched key
	Refetch []string
}

// Refetcher forces a refetch of cache keys
type Refetcher interface {
	Refetch(ctx context.Context, keys ...string) error
}

type snapshot struct {
	entry   cache.Entry
	existed bool

	// applied is set once the optimistic value was written; version is the
	// key's version right after that write
	applied bool
	version cache.Version
}

// Coordinator runs mutations with the optimistic-update/rollback protocol
type Coordinator struct {
	store     *cache.Store
	refetcher Refetcher
	logger    *zap.Logger
	wg        sync.WaitGroup
}

// New creates a mutation coordinator
func New(store *cache.Store, refetcher Refetcher, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		store:     store,
		refetcher: refetcher,
		logger:    logger,
	}
}

// Mutate snapshots the affected entries, applies the optimistic patches,
// performs the write and then either schedules a forced refetch of every
// affected key or restores every snapshot verbatim.
//
// onPhase, if not nil, observes the phase transitions.
func (c *Coordinator) Mutate(ctx context.Context, m Mutation, onPhase func(Phase)) error {
	notify := func(p Phase) {
		if onPhase != nil {
			onPhase(p)
		}
	}

	snapshots := c.snapshot(m.Patches)

	if err := c.apply(m.Patches, snapshots); err != nil {
		c.rollback(snapshots)
		metrics.RecordMutation(m.Name, PhaseRolledBack.String())
		notify(PhaseRolledBack)
		notify(PhaseIdle)
		return fmt.Errorf("%s: optimistic update: %w", m.Name, err)
	}
	notify(PhaseOptimisticApplied)

	if err := m.Write(ctx); err != nil {
		c.rollback(snapshots)
		metrics.RecordMutation(m.Name, PhaseRolledBack.String())
		c.logger.Warn("Mutation: write failed, optimistic update rolled back",
			zap.String("mutation", m.Name),
			zap.Int("keys", len(snapshots)),
			zap.Error(err))
		notify(PhaseRolledBack)
		notify(PhaseIdle)
		return fmt.Errorf("%s: %w", m.Name, err)
	}

	metrics.RecordMutation(m.Name, PhaseConfirmed.String())
	notify(PhaseConfirmed)
	c.scheduleRefetch(ctx, m.Name, refetchKeys(m))
	notify(PhaseIdle)
	return nil
}

// Wait blocks until every scheduled refetch finished
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

func (c *Coordinator) snapshot(patches []Patch) []snapshot {
	snapshots := make([]snapshot, 0, len(patches))
	for _, p := range patches {
		entry, ok := c.store.Get(p.Namespace, p.Key)
		snapshots = append(snapshots, snapshot{entry: entry, existed: ok})
	}
	return snapshots
}

// apply rewrites every entry that existed at snapshot time
func (c *Coordinator) apply(patches []Patch, snapshots []snapshot) error {
	for i, p := range patches {
		if !snapshots[i].existed {
			continue
		}
		next, err := p.Apply(snapshots[i].entry.Value)
		if err != nil {
			return err
		}
		_, version, err := c.store.SetOptimistic(p.Namespace, p.Key, next)
		if errors.Is(err, cache.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		snapshots[i].applied = true
		snapshots[i].version = version
	}
	return nil
}

// rollback restores every entry this mutation patched. A key whose version
// moved since the optimistic write (invalidation, logout, a later mutation)
// is left as it is.
func (c *Coordinator) rollback(snapshots []snapshot) {
	for _, s := range snapshots {
		if !s.applied {
			continue
		}
		if !c.store.RestoreIfVersion(s.entry, s.version) {
			c.logger.Debug("Mutation: entry changed since optimistic write, not restored",
				zap.String("namespace", s.entry.Namespace),
				zap.String("key", s.entry.Key))
		}
	}
}

func (c *Coordinator) scheduleRefetch(ctx context.Context, name string, keys []string) {
	if c.refetcher == nil || len(keys) == 0 {
		return
	}

	c.wg.Add(1)
	go func(ctx context.Context) {
		defer c.wg.Done()
		if err := c.refetcher.Refetch(ctx, keys...); err != nil {
			c.logger.Warn("Mutation: confirmatory refetch failed",
				zap.String("mutation", name),
				zap.Error(err))
		}
	}(context.WithoutCancel(ctx))
}

func refetchKeys(m Mutation) []string {
	seen := make(map[string]struct{})
	var keys []string
	add := func(key string) {
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	for _, p := range m.Patches {
		add(p.Key)
	}
	for _, key := range m.Refetch {
		add(key)
	}
	return keys
}
