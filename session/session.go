package session

import (
	"sync"

	"go.uber.org/zap"

	"github.com/stephenolajire/stumart-query/apiclient"
	"github.com/stephenolajire/stumart-query/cache"
	"github.com/stephenolajire/stumart-query/coordinator"
	"github.com/stephenolajire/stumart-query/filter"
	"github.com/stephenolajire/stumart-query/metrics"
	"github.com/stephenolajire/stumart-query/mutation"
	"github.com/stephenolajire/stumart-query/queries"
)

// Config groups the settings of one session's data layer
type Config struct {
	API         apiclient.Config   `yaml:"api"`
	Cache       cache.Config       `yaml:"cache"`
	Coordinator coordinator.Config `yaml:"coordinator"`
	Queries     queries.Config     `yaml:"queries"`
}

// DefaultConfig returns default session settings
func DefaultConfig() Config {
	return Config{
		API:         apiclient.DefaultConfig(),
		Cache:       cache.DefaultCacheConfig(),
		Coordinator: queries.WithDefaultNamespaces(coordinator.DefaultConfig()),
		Queries:     queries.DefaultConfig(),
	}
}

// Credentials identify a logged in user
type Credentials struct {
	Token       string
	Institution string
}

// Session is the shared coordination point of the data layer: one cache,
// one coordinator and one mutation coordinator for the lifetime of the app.
// It also holds the auth context folded into cache keys.
type Session struct {
	store   *cache.Store
	coord   *coordinator.Coordinator
	mutator *mutation.Coordinator
	queries *queries.Queries
	logger  *zap.Logger

	mu    sync.RWMutex
	auth  filter.AuthContext
	token string
}

// Option configures a Session
type Option func(*options)

type options struct {
	doer      apiclient.Doer
	storeOpts []cache.Option
	logger    *zap.Logger
}

// WithDoer replaces the REST client, mostly for tests
func WithDoer(doer apiclient.Doer) Option {
	return func(o *options) {
		o.doer = doer
	}
}

// WithCacheOptions passes options to the cache store
func WithCacheOptions(opts ...cache.Option) Option {
	return func(o *options) {
		o.storeOpts = append(o.storeOpts, opts...)
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// New creates an anonymous session
func New(cfg Config, opts ...Option) *Session {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	logger := o.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Session{logger: logger}

	doer := o.doer
	if doer == nil {
		doer = apiclient.NewClient(cfg.API, s.Token, metrics.APIStatusHandler{}, logger.Named("api"))
	}

	s.store = cache.NewStore(cfg.Cache, append([]cache.Option{cache.WithLogger(logger.Named("cache"))}, o.storeOpts...)...)
	s.coord = coordinator.New(s.store, s, queries.WithDefaultNamespaces(cfg.Coordinator), logger.Named("coordinator"))
	s.mutator = mutation.New(s.store, s.coord, logger.Named("mutation"))
	s.queries = queries.New(s.coord, s.mutator, doer, cfg.Queries, logger.Named("queries"))
	return s
}

// AuthContext returns the auth flags folded into cache keys
func (s *Session) AuthContext() filter.AuthContext {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.auth
}

// Token returns the bearer token, "" when anonymous
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Login switches the session to an authenticated user. Cache keys change with
// the auth context, so anonymous entries are not served to the user.
func (s *Session) Login(creds Credentials) {
	s.mu.Lock()
	s.token = creds.Token
	s.auth = filter.AuthContext{Authenticated: true, Institution: creds.Institution}
	s.mu.Unlock()

	s.logger.Info("Session: logged in", zap.String("institution", creds.Institution))
}

// Logout clears the credentials, every cached entry and pending debounced
// calls
func (s *Session) Logout() {
	s.mu.Lock()
	s.token = ""
	s.auth = filter.AuthContext{}
	s.mu.Unlock()

	s.coord.Reset()
	s.store.InvalidateAll()
	s.logger.Info("Session: logged out, cache cleared")
}

// Queries returns the resource queries and mutations
func (s *Session) Queries() *queries.Queries {
	return s.queries
}

// Store returns the cache store
func (s *Session) Store() *cache.Store {
	return s.store
}

// Coordinator returns the request coordinator
func (s *Session) Coordinator() *coordinator.Coordinator {
	return s.coord
}

// Mutator returns the mutation coordinator
func (s *Session) Mutator() *mutation.Coordinator {
	return s.mutator
}

// Close waits for scheduled confirmatory refetches
func (s *Session) Close() {
	s.mutator.Wait()
}
