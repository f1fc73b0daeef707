package e2etest

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stephenolajire/stumart-query/filter"
	"github.com/stephenolajire/stumart-query/models"
	"github.com/stephenolajire/stumart-query/session"
)

func TestShops_SecondLoadServedFromCache(t *testing.T) {
	env := SetupTest(t)

	first := env.Session.Queries().Shops(filter.Set{Category: "Food"})
	st := first.Load(env.Context)
	require.NoError(t, st.Error)
	require.Len(t, st.Data, 1)
	assert.Equal(t, "Food", st.Data[0].Category)

	// A second view with the same filters shares the cache entry
	second := env.Session.Queries().Shops(filter.Set{Category: "Food"})
	st = second.Load(env.Context)
	require.NoError(t, st.Error)
	assert.False(t, st.IsFetching)
	assert.Equal(t, 1, env.Backend.Hits("/api/shops/"))
}

func TestProducts_ConcurrentLoadsShareOneRequest(t *testing.T) {
	env := SetupTest(t)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			st := env.Session.Queries().Products(filter.Set{Category: "Food"}).Load(env.Context)
			assert.NoError(t, st.Error)
			assert.Equal(t, 1, st.Data.Count)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, env.Backend.Hits("/api/products/"))
}

func TestCancelOrder_RollsBackWhenBackendFails(t *testing.T) {
	env := SetupTest(t)
	env.Session.Login(session.Credentials{Token: "t", Institution: "UNILAG"})

	orders := env.Session.Queries().Orders(filter.Set{})
	defer orders.Close()
	require.NoError(t, orders.Load(env.Context).Error)

	env.Backend.FailNext("/api/orders/123/cancel/", 1)

	cancel := env.Session.Queries().CancelOrder()
	err := cancel.Mutate(env.Context, "123")
	require.Error(t, err)
	assert.Equal(t, err, cancel.Err())

	st := orders.State()
	require.Len(t, st.Data, 2)
	assert.Equal(t, models.OrderStatusPending, st.Data[0].Status)
}

func TestCancelOrder_ConfirmedByRefetch(t *testing.T) {
	env := SetupTest(t)
	env.Session.Login(session.Credentials{Token: "t"})

	orders := env.Session.Queries().Orders(filter.Set{})
	defer orders.Close()
	require.NoError(t, orders.Load(env.Context).Error)

	require.NoError(t, env.Session.Queries().CancelOrder().Mutate(env.Context, "123"))
	assert.Equal(t, models.OrderStatusCancelled, orders.State().Data[0].Status)

	env.Session.Mutator().Wait()
	assert.Equal(t, 2, env.Backend.Hits("/api/orders/"))
	assert.Equal(t, models.OrderStatusCancelled, orders.State().Data[0].Status)
}

func TestAddToCart_CountReconciledByRefetch(t *testing.T) {
	env := SetupTest(t)
	env.Session.Login(session.Credentials{Token: "t"})

	cart := env.Session.Queries().Cart()
	defer cart.Close()
	require.Equal(t, 0, cart.Load(env.Context).Data.Count)

	err := env.Session.Queries().AddToCart().Mutate(env.Context, models.AddToCartInput{
		ProductID: "42",
		Quantity:  2,
		UnitPrice: 1500,
	})
	require.NoError(t, err)

	env.Session.Mutator().Wait()
	st := cart.State()
	assert.Equal(t, 2, st.Data.Count)
	require.Len(t, st.Data.Items, 1)
	assert.Equal(t, "line-42", st.Data.Items[0].ID)
	assert.Equal(t, 2, env.Backend.Hits("/api/cart/"))
}

func TestSearch_OnlyLastKeystrokeFetches(t *testing.T) {
	env := SetupTest(t)
	q := env.Session.Queries()

	var wg sync.WaitGroup
	for _, text := range []string{"j", "jo", "jol"} {
		wg.Add(1)
		go func(text string) {
			defer wg.Done()
			q.SearchProducts(text, filter.Set{}).Load(env.Context)
		}(text)
		time.Sleep(20 * time.Millisecond)
	}
	wg.Wait()

	assert.Equal(t, 1, env.Backend.Hits("/api/search/"))
}

func TestOrders_AutoRefetch(t *testing.T) {
	env := SetupTest(t)
	env.Session.Login(session.Credentials{Token: "t"})

	orders := env.Session.Queries().Orders(filter.Set{})
	defer orders.Close()
	require.NoError(t, orders.Load(env.Context).Error)

	orders.StartAutoRefetch(env.Context)
	assert.Eventually(t, func() bool {
		return env.Backend.Hits("/api/orders/") >= 3
	}, 3*time.Second, 20*time.Millisecond)
}

func TestLogout_ClearsCachedData(t *testing.T) {
	env := SetupTest(t)
	env.Session.Login(session.Credentials{Token: "t"})

	cart := env.Session.Queries().Cart()
	defer cart.Close()
	require.True(t, cart.Load(env.Context).HasData)

	env.Session.Logout()
	assert.False(t, cart.State().HasData)
}
