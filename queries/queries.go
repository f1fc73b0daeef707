package queries

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/stephenolajire/stumart-query/apiclient"
	"github.com/stephenolajire/stumart-query/coordinator"
	"github.com/stephenolajire/stumart-query/filter"
	"github.com/stephenolajire/stumart-query/models"
	"github.com/stephenolajire/stumart-query/mutation"
	"github.com/stephenolajire/stumart-query/scheduler"
)

// Queries builds the resource queries and mutations of the marketplace
type Queries struct {
	coord   *coordinator.Coordinator
	mutator *mutation.Coordinator
	doer    apiclient.Doer
	config  Config
	logger  *zap.Logger
}

// New creates the resource facade over coord and doer
func New(coord *coordinator.Coordinator, mutator *mutation.Coordinator, doer apiclient.Doer, config Config, logger *zap.Logger) *Queries {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.OrdersRefetchInterval <= 0 {
		config.OrdersRefetchInterval = DefaultConfig().OrdersRefetchInterval
	}
	return &Queries{
		coord:   coord,
		mutator: mutator,
		doer:    doer,
		config:  config,
		logger:  logger,
	}
}

// Shops lists vendor shops
func (q *Queries) Shops(filters filter.Set) *Query[[]models.Shop] {
	return newQuery[[]models.Shop](q.coord, NamespaceShops, filters, q.list(pathShops), coordinator.Options{}, q.logger)
}

// ShopsBySchool lists the shops of one school
func (q *Queries) ShopsBySchool(school string, filters filter.Set) *Query[[]models.Shop] {
	filters.School = school
	return newQuery[[]models.Shop](q.coord, NamespaceShopsBySchool, filters, q.list(pathShopsBySchool), coordinator.Options{}, q.logger)
}

// Products lists products
func (q *Queries) Products(filters filter.Set) *Query[models.ProductPage] {
	return newQuery[models.ProductPage](q.coord, NamespaceProducts, filters, q.list(pathProducts), coordinator.Options{}, q.logger)
}

// Product loads a single product
func (q *Queries) Product(id string) *Query[models.Product] {
	fetch := func(ctx context.Context, filters filter.Set) ([]byte, error) {
		return q.get(ctx, productPath(filters.ProductID), filter.Set{})
	}
	return newQuery[models.Product](q.coord, NamespaceProducts, productFilters(id), fetch, coordinator.Options{}, q.logger)
}

// SearchProducts runs free-text product search. Calls are debounced; use
// SetFilters with a new Query text while the user types.
func (q *Queries) SearchProducts(text string, filters filter.Set) *Query[models.ProductPage] {
	filters.Query = text
	opts := coordinator.Options{
		Debounce:      q.coord.Config().Debounce(NamespaceProducts),
		DebounceGroup: NamespaceProducts + ":search",
	}
	return newQuery[models.ProductPage](q.coord, NamespaceProducts, filters, q.list(pathSearch), opts, q.logger)
}

// Cart loads the cart of the current user
func (q *Queries) Cart() *Query[models.CartState] {
	return newQuery[models.CartState](q.coord, NamespaceCart, filter.Set{}, q.list(pathCart), coordinator.Options{}, q.logger)
}

// Order loads a single order
func (q *Queries) Order(id string) *Query[models.Order] {
	fetch := func(ctx context.Context, filters filter.Set) ([]byte, error) {
		return q.get(ctx, orderPath(filters.OrderID), filter.Set{})
	}
	return newQuery[models.Order](q.coord, NamespaceOrderDetail, orderFilters(id), fetch, coordinator.Options{}, q.logger)
}

// Transactions lists payment transactions
func (q *Queries) Transactions(filters filter.Set) *Query[[]models.Transaction] {
	return newQuery[[]models.Transaction](q.coord, NamespaceTransactions, filters, q.list(pathTransactions), coordinator.Options{}, q.logger)
}

// OrdersQuery is the order list with periodic refetch while a view shows it
type OrdersQuery struct {
	*Query[[]models.Order]
	scheduler *scheduler.Scheduler
}

// Orders lists orders
func (q *Queries) Orders(filters filter.Set) *OrdersQuery {
	query := newQuery[[]models.Order](q.coord, NamespaceOrders, filters, q.list(pathOrders), coordinator.Options{}, q.logger)
	orders := &OrdersQuery{Query: query}
	orders.scheduler = scheduler.New(q.config.OrdersRefetchInterval, func(ctx context.Context) {
		if st := query.Refetch(ctx); st.Error != nil {
			q.logger.Debug("Orders: auto-refetch failed", zap.Error(st.Error))
		}
	})
	return orders
}

// StartAutoRefetch refetches the list periodically until ctx ends or
// StopAutoRefetch is called
func (o *OrdersQuery) StartAutoRefetch(ctx context.Context) {
	o.scheduler.Start(ctx, false)
}

// StopAutoRefetch stops the periodic refetch
func (o *OrdersQuery) StopAutoRefetch() {
	o.scheduler.Stop()
}

// AutoRefetching reports whether the periodic refetch runs
func (o *OrdersQuery) AutoRefetching() bool {
	return o.scheduler.IsRunning()
}

// Close stops the periodic refetch and the cache watch
func (o *OrdersQuery) Close() {
	o.StopAutoRefetch()
	o.Query.Close()
}

func productFilters(id string) filter.Set {
	return filter.Set{ProductID: id, ViewMode: "detail"}
}

func orderFilters(id string) filter.Set {
	return filter.Set{OrderID: id}
}

// list returns a fetch that GETs path with the filters as query parameters
func (q *Queries) list(path string) coordinator.FetchFunc {
	return func(ctx context.Context, filters filter.Set) ([]byte, error) {
		return q.get(ctx, path, filters)
	}
}

func (q *Queries) get(ctx context.Context, path string, filters filter.Set) ([]byte, error) {
	var params map[string][]string
	if !filters.IsEmpty() {
		params = filters.Values()
	}
	resp, err := q.doer.Do(ctx, path, apiclient.Request{Method: http.MethodGet, Params: params})
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (q *Queries) send(ctx context.Context, method, path string, body any) error {
	_, err := q.doer.Do(ctx, path, apiclient.Request{Method: method, Body: body})
	return err
}
