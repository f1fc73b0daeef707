package queries

import (
	"time"

	"github.com/stephenolajire/stumart-query/coordinator"
)

// Cache namespaces, one per resource
const (
	NamespaceShops         = "shops"
	NamespaceShopsBySchool = "shops_by_school"
	NamespaceProducts      = "products"
	NamespaceCart          = "cart"
	NamespaceOrders        = "orders"
	NamespaceOrderDetail   = "order_detail"
	NamespaceTransactions  = "transactions"
)

// Config configures the resource queries
type Config struct {
	// OrdersRefetchInterval is the auto-refetch period of open order lists
	OrdersRefetchInterval time.Duration `yaml:"orders_refetch_interval"`
}

// DefaultConfig returns default query settings
func DefaultConfig() Config {
	return Config{
		OrdersRefetchInterval: 30 * time.Second,
	}
}

// DefaultNamespaces returns the per-resource freshness policy
func DefaultNamespaces() map[string]coordinator.NamespaceConfig {
	return map[string]coordinator.NamespaceConfig{
		NamespaceShops:         {TTL: 5 * time.Minute},
		NamespaceShopsBySchool: {TTL: 5 * time.Minute},
		NamespaceProducts:      {TTL: 3 * time.Minute, Debounce: 400 * time.Millisecond},
		NamespaceCart:          {TTL: 10 * time.Second},
		NamespaceOrders:        {TTL: 2 * time.Minute},
		NamespaceOrderDetail:   {TTL: 2 * time.Minute},
		NamespaceTransactions:  {TTL: 10 * time.Minute},
	}
}

// WithDefaultNamespaces merges the defaults into cfg field by field: a
// namespace missing from cfg takes the default as a whole, and a configured
// namespace takes the default for every field it leaves at zero.
func WithDefaultNamespaces(cfg coordinator.Config) coordinator.Config {
	namespaces := DefaultNamespaces()
	for name, ns := range cfg.Namespaces {
		def := namespaces[name]
		if ns.TTL <= 0 {
			ns.TTL = def.TTL
		}
		if ns.CoalesceWindow <= 0 {
			ns.CoalesceWindow = def.CoalesceWindow
		}
		if ns.Debounce <= 0 {
			ns.Debounce = def.Debounce
		}
		namespaces[name] = ns
	}
	cfg.Namespaces = namespaces
	return cfg
}
