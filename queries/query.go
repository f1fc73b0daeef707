package queries

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/stephenolajire/stumart-query/coordinator"
	"github.com/stephenolajire/stumart-query/events"
	"github.com/stephenolajire/stumart-query/filter"
	"github.com/stephenolajire/stumart-query/interfaces"
)

// State is what a view renders for one query
type State[T any] struct {
	Data    T
	HasData bool

	// IsLoading is true while a fetch runs and no cached value exists for the
	// current filters
	IsLoading bool

	// IsFetching is true while any fetch runs, including background refreshes
	IsFetching bool

	// Error is the last fetch error. Data keeps the last known value.
	Error error

	Status    interfaces.CacheStatus
	FetchedAt time.Time
}

// Query binds one resource and its filters to the coordinator
type Query[T any] struct {
	coord     *coordinator.Coordinator
	namespace string
	fetch     coordinator.FetchFunc
	opts      coordinator.Options
	logger    *zap.Logger
	notifier  *events.Notifier

	mu        sync.Mutex
	filters   filter.Set
	gen       uint64
	fetching  int
	err       error
	status    interfaces.CacheStatus
	raw       []byte
	data      T
	hasData   bool
	fetchedAt time.Time
	watch     events.ISubscription
}

func newQuery[T any](coord *coordinator.Coordinator, namespace string, filters filter.Set, fetch coordinator.FetchFunc, opts coordinator.Options, logger *zap.Logger) *Query[T] {
	return &Query[T]{
		coord:     coord,
		namespace: namespace,
		fetch:     fetch,
		opts:      opts,
		logger:    logger,
		notifier:  events.NewNotifier(),
		filters:   filters,
	}
}

// Namespace returns the cache namespace of the query
func (q *Query[T]) Namespace() string {
	return q.namespace
}

// Filters returns the current filters
func (q *Query[T]) Filters() filter.Set {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.filters
}

// Key returns the cache key for the current filters
func (q *Query[T]) Key() string {
	return q.coord.Key(q.namespace, q.Filters())
}

// Load returns the cached value when fresh and fetches it otherwise
func (q *Query[T]) Load(ctx context.Context) State[T] {
	return q.run(ctx, false)
}

// Refetch fetches the current filters, bypassing the cache
func (q *Query[T]) Refetch(ctx context.Context) State[T] {
	return q.run(ctx, true)
}

// SetFilters switches the query to filters and loads them
func (q *Query[T]) SetFilters(ctx context.Context, filters filter.Set) State[T] {
	q.mu.Lock()
	q.filters = filters
	q.gen++
	q.err = nil
	q.mu.Unlock()

	return q.Load(ctx)
}

// State returns the current state without fetching. Cache writes made by
// other queries or by mutations are reflected.
func (q *Query[T]) State() State[T] {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.syncLocked()
	return q.stateLocked()
}

// Subscribe notifies on every state change of the query, including cache
// writes to its namespace
func (q *Query[T]) Subscribe() events.ISubscription {
	q.mu.Lock()
	if q.watch == nil {
		q.watch = q.coord.Store().Watch(q.namespace).Watch(context.Background(), q.notifier.Emit)
	}
	q.mu.Unlock()

	return q.notifier.Subscribe()
}

// Close stops watching the cache
func (q *Query[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.watch != nil {
		q.watch.Cancel()
		q.watch = nil
	}
}

func (q *Query[T]) run(ctx context.Context, force bool) State[T] {
	q.mu.Lock()
	filters, gen := q.filters, q.gen
	q.syncLocked()

	fresh := false
	if entry, ok := q.coord.Peek(q.namespace, filters); ok {
		fresh = q.coord.Store().IsFresh(entry)
	}
	willFetch := force || !fresh
	if willFetch {
		q.fetching++
	}
	q.mu.Unlock()

	if willFetch {
		q.notifier.Emit()
	}

	opts := q.opts
	opts.ForceRefresh = force
	res, err := q.coord.Query(ctx, q.namespace, filters, q.fetch, opts)

	q.mu.Lock()
	if willFetch {
		q.fetching--
	}
	if gen == q.gen {
		switch {
		case errors.Is(err, coordinator.ErrSuperseded):
			// a newer call owns the state
		case err != nil && ctx.Err() != nil:
			// the caller went away; the fetch still settles into the cache
		case err != nil:
			q.err = err
			q.logger.Warn("Query: fetch failed",
				zap.String("namespace", q.namespace),
				zap.Bool("serving_stale", q.hasData),
				zap.Error(err))
		default:
			q.err = nil
			q.status = res.Status
			q.syncLocked()
			if !q.hasData {
				// the result was not stored, e.g. the namespace was invalidated meanwhile
				q.decodeLocked(res.Value, res.FetchedAt)
			}
		}
	}
	st := q.stateLocked()
	q.mu.Unlock()

	q.notifier.Emit()
	return st
}

// syncLocked refreshes the decoded value from the cache entry of the current
// filters
func (q *Query[T]) syncLocked() {
	entry, ok := q.coord.Peek(q.namespace, q.filters)
	if !ok {
		var zero T
		q.data, q.raw, q.hasData, q.fetchedAt = zero, nil, false, time.Time{}
		return
	}
	if q.hasData && bytes.Equal(entry.Value, q.raw) {
		q.fetchedAt = entry.FetchedAt
		return
	}
	q.decodeLocked(entry.Value, entry.FetchedAt)
}

func (q *Query[T]) decodeLocked(raw []byte, fetchedAt time.Time) {
	var value T
	if err := json.Unmarshal(raw, &value); err != nil {
		q.err = fmt.Errorf("decode %s: %w", q.namespace, err)
		return
	}
	q.data, q.raw, q.hasData, q.fetchedAt = value, raw, true, fetchedAt
}

func (q *Query[T]) stateLocked() State[T] {
	return State[T]{
		Data:       q.data,
		HasData:    q.hasData,
		IsLoading:  q.fetching > 0 && !q.hasData,
		IsFetching: q.fetching > 0,
		Error:      q.err,
		Status:     q.status,
		FetchedAt:  q.fetchedAt,
	}
}
