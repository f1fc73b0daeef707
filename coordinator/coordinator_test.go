package coordinator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stephenolajire/stumart-query/cache"
	"github.com/stephenolajire/stumart-query/filter"
	"github.com/stephenolajire/stumart-query/interfaces"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type staticAuth filter.AuthContext

func (a staticAuth) AuthContext() filter.AuthContext { return filter.AuthContext(a) }

func newTestCoordinator(t *testing.T) (*Coordinator, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	store := cache.NewStore(cache.DefaultCacheConfig(), cache.WithClock(clock.Now))
	cfg := DefaultConfig()
	cfg.Namespaces["orders"] = NamespaceConfig{TTL: 2 * time.Minute}
	cfg.Namespaces["shops"] = NamespaceConfig{TTL: 5 * time.Minute}
	return New(store, staticAuth{}, cfg, nil), clock
}

// countingFetch returns payload and counts invocations
func countingFetch(payload string, calls *int32) FetchFunc {
	return func(ctx context.Context, filters filter.Set) ([]byte, error) {
		atomic.AddInt32(calls, 1)
		return []byte(payload), nil
	}
}

func TestQuery_CacheHitShortCircuits(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ctx := context.Background()
	var calls int32

	first, err := c.Query(ctx, "shops", filter.Set{Category: "Food", State: ""}, countingFetch(`["s1"]`, &calls), Options{})
	require.NoError(t, err)
	assert.Equal(t, interfaces.CacheStatusMiss, first.Status)

	second, err := c.Query(ctx, "shops", filter.Set{State: "", Category: "Food"}, countingFetch(`["s1"]`, &calls), Options{})
	require.NoError(t, err)
	assert.Equal(t, interfaces.CacheStatusHit, second.Status)
	assert.Equal(t, []byte(`["s1"]`), second.Value)
	assert.Equal(t, first.Key, second.Key)

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestQuery_StaleEntryTriggersRefetch(t *testing.T) {
	c, clock := newTestCoordinator(t)
	ctx := context.Background()
	var calls int32

	first, err := c.Query(ctx, "orders", filter.Set{}, countingFetch(`[]`, &calls), Options{})
	require.NoError(t, err)

	clock.Advance(3 * time.Minute)

	second, err := c.Query(ctx, "orders", filter.Set{}, countingFetch(`[1]`, &calls), Options{})
	require.NoError(t, err)
	assert.Equal(t, interfaces.CacheStatusStale, second.Status)
	assert.True(t, second.Status.FromNetwork())
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.True(t, second.FetchedAt.After(first.FetchedAt))

	entry, ok := c.Peek("orders", filter.Set{})
	require.True(t, ok)
	assert.Equal(t, []byte(`[1]`), entry.Value)
	assert.Equal(t, clock.Now(), entry.FetchedAt)
}

func TestQuery_TTLOverride(t *testing.T) {
	c, clock := newTestCoordinator(t)
	ctx := context.Background()
	var calls int32

	_, err := c.Query(ctx, "shops", filter.Set{}, countingFetch(`[]`, &calls), Options{TTL: time.Second})
	require.NoError(t, err)

	clock.Advance(2 * time.Second)

	_, err = c.Query(ctx, "shops", filter.Set{}, countingFetch(`[]`, &calls), Options{})
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestQuery_ForceRefreshBypassesCache(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ctx := context.Background()
	var calls int32

	_, err := c.Query(ctx, "shops", filter.Set{}, countingFetch(`[]`, &calls), Options{})
	require.NoError(t, err)
	res, err := c.Query(ctx, "shops", filter.Set{}, countingFetch(`[]`, &calls), Options{ForceRefresh: true})
	require.NoError(t, err)

	assert.Equal(t, interfaces.CacheStatusMiss, res.Status)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

// blockingFetch blocks until release is closed and signals each start
func blockingFetch(payload string, calls *int32, started chan<- struct{}, release <-chan struct{}) FetchFunc {
	return func(ctx context.Context, filters filter.Set) ([]byte, error) {
		atomic.AddInt32(calls, 1)
		started <- struct{}{}
		<-release
		return []byte(payload), nil
	}
}

func TestQuery_DuplicateSuppression(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ctx := context.Background()
	var calls int32
	started := make(chan struct{}, 2)
	release := make(chan struct{})
	fetch := blockingFetch(`["o1"]`, &calls, started, release)

	results := make(chan Result, 2)
	go func() {
		res, err := c.Query(ctx, "orders", filter.Set{}, fetch, Options{})
		assert.NoError(t, err)
		results <- res
	}()
	<-started

	go func() {
		res, err := c.Query(ctx, "orders", filter.Set{}, fetch, Options{})
		assert.NoError(t, err)
		results <- res
	}()

	// Give the second call time to join before the fetch settles
	time.Sleep(50 * time.Millisecond)
	close(release)

	statuses := []interfaces.CacheStatus{(<-results).Status, (<-results).Status}
	assert.ElementsMatch(t, []interfaces.CacheStatus{interfaces.CacheStatusMiss, interfaces.CacheStatusShared}, statuses)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.False(t, c.InFlight(c.Key("orders", filter.Set{})))
}

func TestQuery_CoalescingWindowExpires(t *testing.T) {
	c, clock := newTestCoordinator(t)
	ctx := context.Background()
	var calls int32
	started := make(chan struct{}, 2)
	release := make(chan struct{})
	fetch := blockingFetch(`[]`, &calls, started, release)

	done := make(chan struct{}, 2)
	go func() {
		_, _ = c.Query(ctx, "orders", filter.Set{}, fetch, Options{})
		done <- struct{}{}
	}()
	<-started

	clock.Advance(time.Second)

	go func() {
		_, _ = c.Query(ctx, "orders", filter.Set{}, fetch, Options{})
		done <- struct{}{}
	}()
	<-started

	close(release)
	<-done
	<-done
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestQuery_FailureLeavesCacheUntouched(t *testing.T) {
	c, clock := newTestCoordinator(t)
	ctx := context.Background()
	var calls int32

	_, err := c.Query(ctx, "orders", filter.Set{}, countingFetch(`["old"]`, &calls), Options{})
	require.NoError(t, err)
	clock.Advance(5 * time.Minute)

	backendErr := errors.New("503 service unavailable")
	_, err = c.Query(ctx, "orders", filter.Set{}, func(ctx context.Context, filters filter.Set) ([]byte, error) {
		return nil, backendErr
	}, Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, backendErr)

	entry, ok := c.Peek("orders", filter.Set{})
	require.True(t, ok)
	assert.Equal(t, []byte(`["old"]`), entry.Value)
	assert.False(t, c.InFlight(entry.Key))
}

func TestQuery_CallerCancellationDoesNotAbortFetch(t *testing.T) {
	c, _ := newTestCoordinator(t)
	var calls int32
	started := make(chan struct{}, 1)
	release := make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := c.Query(ctx, "shops", filter.Set{}, blockingFetch(`["late"]`, &calls, started, release), Options{})
		errCh <- err
	}()
	<-started
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)

	close(release)
	require.Eventually(t, func() bool {
		entry, ok := c.Peek("shops", filter.Set{})
		return ok && string(entry.Value) == `["late"]`
	}, time.Second, 10*time.Millisecond)
}

func TestQuery_OptimisticWriteWinsOverOlderFetch(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ctx := context.Background()
	var calls int32

	_, err := c.Query(ctx, "orders", filter.Set{}, countingFetch(`"PENDING"`, &calls), Options{})
	require.NoError(t, err)

	started := make(chan struct{}, 1)
	release := make(chan struct{})
	resCh := make(chan Result, 1)
	go func() {
		res, err := c.Query(ctx, "orders", filter.Set{}, blockingFetch(`"PENDING"`, &calls, started, release), Options{ForceRefresh: true})
		assert.NoError(t, err)
		resCh <- res
	}()
	<-started

	key := c.Key("orders", filter.Set{})
	_, _, err = c.Store().SetOptimistic("orders", key, []byte(`"CANCELLED"`))
	require.NoError(t, err)

	close(release)
	res := <-resCh
	assert.Equal(t, []byte(`"PENDING"`), res.Value)

	entry, _ := c.Peek("orders", filter.Set{})
	assert.Equal(t, []byte(`"CANCELLED"`), entry.Value)
}

func TestQuery_AuthContextChangesKey(t *testing.T) {
	clock := &testClock{now: time.Now()}
	store := cache.NewStore(cache.DefaultCacheConfig(), cache.WithClock(clock.Now))
	anonymous := New(store, staticAuth{}, DefaultConfig(), nil)
	member := New(store, staticAuth{Authenticated: true, Institution: "UNILAG"}, DefaultConfig(), nil)

	assert.NotEqual(t, anonymous.Key("shops", filter.Set{}), member.Key("shops", filter.Set{}))
}

func TestDebounce_OnlyLastCallReachesNetwork(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ctx := context.Background()

	var mu sync.Mutex
	var queried []string
	fetch := func(ctx context.Context, filters filter.Set) ([]byte, error) {
		mu.Lock()
		queried = append(queried, filters.Query)
		mu.Unlock()
		return []byte(`[]`), nil
	}

	firstErr := make(chan error, 1)
	go func() {
		_, err := c.Query(ctx, "products", filter.Set{Query: "ric"}, fetch, Options{Debounce: 300 * time.Millisecond})
		firstErr <- err
	}()

	time.Sleep(100 * time.Millisecond)

	res, err := c.Query(ctx, "products", filter.Set{Query: "rice"}, fetch, Options{Debounce: 300 * time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, interfaces.CacheStatusMiss, res.Status)
	assert.ErrorIs(t, <-firstErr, ErrSuperseded)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"rice"}, queried)
}

func TestDebounce_SeparateGroupsDoNotCancel(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ctx := context.Background()
	var calls int32

	var wg sync.WaitGroup
	for _, group := range []string{"a", "b"} {
		wg.Add(1)
		go func(group string) {
			defer wg.Done()
			_, err := c.Query(ctx, "products", filter.Set{Query: group}, countingFetch(`[]`, &calls),
				Options{Debounce: 50 * time.Millisecond, DebounceGroup: group})
			assert.NoError(t, err)
		}(group)
	}
	wg.Wait()
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestDebounce_ContextCancelled(t *testing.T) {
	c, _ := newTestCoordinator(t)
	var calls int32

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Query(ctx, "products", filter.Set{Query: "x"}, countingFetch(`[]`, &calls), Options{Debounce: 200 * time.Millisecond})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	time.Sleep(250 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestRefetch(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ctx := context.Background()
	var calls int32

	res, err := c.Query(ctx, "orders", filter.Set{Status: "PENDING"}, countingFetch(`[]`, &calls), Options{})
	require.NoError(t, err)

	require.NoError(t, c.Refetch(ctx, res.Key, "orders:unknown"))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))

	require.NoError(t, c.RefetchNamespace(ctx, "orders"))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Equal(t, []string{res.Key}, c.RegisteredKeys("orders"))
}

func TestRefetchNamespace_SkipsKeysNoLongerCached(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ctx := context.Background()
	var calls int32

	pending, err := c.Query(ctx, "orders", filter.Set{Status: "PENDING"}, countingFetch(`[]`, &calls), Options{})
	require.NoError(t, err)
	delivered, err := c.Query(ctx, "orders", filter.Set{Status: "DELIVERED"}, countingFetch(`[]`, &calls), Options{})
	require.NoError(t, err)

	c.Store().Delete("orders", pending.Key)
	assert.Equal(t, []string{delivered.Key}, c.RegisteredKeys("orders"))

	require.NoError(t, c.RefetchNamespace(ctx, "orders"))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	_, ok := c.Store().Get("orders", pending.Key)
	assert.False(t, ok, "a dropped key is not brought back by a namespace refetch")

	c.Store().Invalidate("orders")
	assert.Empty(t, c.RegisteredKeys("orders"))
	require.NoError(t, c.RefetchNamespace(ctx, "orders"))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))

	c.mu.Lock()
	assert.Empty(t, c.registered)
	c.mu.Unlock()
}

func TestRefetch_JoinsErrors(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ctx := context.Background()
	fail := false
	fetch := func(ctx context.Context, filters filter.Set) ([]byte, error) {
		if fail {
			return nil, errors.New("down")
		}
		return []byte(`{}`), nil
	}

	res, err := c.Query(ctx, "cart", filter.Set{}, fetch, Options{})
	require.NoError(t, err)

	fail = true
	err = c.Refetch(ctx, res.Key)
	assert.ErrorContains(t, err, "down")
}

func TestReset(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ctx := context.Background()
	var calls int32

	_, err := c.Query(ctx, "orders", filter.Set{}, countingFetch(`[]`, &calls), Options{})
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, err := c.Query(ctx, "products", filter.Set{Query: "x"}, countingFetch(`[]`, &calls), Options{Debounce: time.Second})
		errCh <- err
	}()
	time.Sleep(20 * time.Millisecond)

	c.Reset()
	assert.ErrorIs(t, <-errCh, ErrSuperseded)
	assert.Empty(t, c.RegisteredKeys("orders"))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestReset_InFlightFetchCannotBeJoined(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ctx := context.Background()
	var aliceCalls, bobCalls int32
	started := make(chan struct{}, 1)
	release := make(chan struct{})

	aliceRes := make(chan Result, 1)
	go func() {
		res, err := c.Query(ctx, "cart", filter.Set{}, blockingFetch(`{"owner":"alice"}`, &aliceCalls, started, release), Options{})
		assert.NoError(t, err)
		aliceRes <- res
	}()
	<-started

	// Logout sequence: coordinator reset then cache wipe
	c.Reset()
	c.Store().InvalidateAll()
	key := c.Key("cart", filter.Set{})
	assert.False(t, c.InFlight(key))

	res, err := c.Query(ctx, "cart", filter.Set{}, countingFetch(`{"owner":"bob"}`, &bobCalls), Options{})
	require.NoError(t, err)
	assert.Equal(t, interfaces.CacheStatusMiss, res.Status)
	assert.Equal(t, []byte(`{"owner":"bob"}`), res.Value)
	assert.Equal(t, int32(1), atomic.LoadInt32(&bobCalls))

	close(release)
	assert.Equal(t, []byte(`{"owner":"alice"}`), (<-aliceRes).Value)

	entry, ok := c.Peek("cart", filter.Set{})
	require.True(t, ok)
	assert.Equal(t, []byte(`{"owner":"bob"}`), entry.Value, "the fetch started before reset must not overwrite the cache")
	assert.Equal(t, int32(1), atomic.LoadInt32(&aliceCalls))
}
