package api

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// CacheInspector exposes the cache operations the ops endpoints need
type CacheInspector interface {
	Stats() map[string]int
	Invalidate(namespace string)
	InvalidateAll()
}

// NamespaceRefetcher forces a refetch of every queried key in a namespace
type NamespaceRefetcher interface {
	RefetchNamespace(ctx context.Context, namespace string) error
	RegisteredKeys(namespace string) []string
}

// HealthCheck reports whether a component is up
type HealthCheck func() bool

// Server is the operational HTTP surface: health, metrics and cache control
type Server struct {
	port      string
	store     CacheInspector
	refetcher NamespaceRefetcher
	logger    *zap.Logger
	server    *http.Server

	mu     sync.RWMutex
	checks map[string]HealthCheck
}

func New(port string, store CacheInspector, refetcher NamespaceRefetcher, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		port:      port,
		store:     store,
		refetcher: refetcher,
		logger:    logger,
		checks:    make(map[string]HealthCheck),
	}
}

// AddHealthCheck reports name in /health using check
func (s *Server) AddHealthCheck(name string, check HealthCheck) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks[name] = check
}

// Handler builds the router
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()

	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/cache/stats", s.handleCacheStats).Methods(http.MethodGet)
	router.HandleFunc("/cache/invalidate", s.handleCacheInvalidate).Methods(http.MethodPost)
	router.HandleFunc("/cache/{namespace}/refetch", s.handleNamespaceRefetch).Methods(http.MethodPost)
	router.Handle("/metrics", promhttp.Handler())

	return router
}

func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:    ":" + s.port,
		Handler: s.Handler(),
	}

	s.logger.Info("Server: starting", zap.String("addr", "http://localhost:"+s.port))

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Server: listen failed", zap.Error(err))
		}
	}()

	return nil
}
