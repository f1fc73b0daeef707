package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type namespaceStats struct {
	Entries int `json:"entries"`
	Queries int `json:"queries"`
}

// handleCacheStats reports entry and registered query counts per namespace
func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	stats := s.store.Stats()
	result := make(map[string]namespaceStats, len(stats))
	for namespace, entries := range stats {
		result[namespace] = namespaceStats{
			Entries: entries,
			Queries: len(s.refetcher.RegisteredKeys(namespace)),
		}
	}
	s.sendJSONResponse(w, result)
}

// handleCacheInvalidate drops the namespaces listed in ?namespace=a,b, or
// everything when the parameter is absent
func (s *Server) handleCacheInvalidate(w http.ResponseWriter, r *http.Request) {
	namespaces := splitParamLowercase(getParamLowercase(r, "namespace"))
	if len(namespaces) == 0 {
		s.store.InvalidateAll()
		s.logger.Info("Server: invalidated all namespaces")
		s.sendJSONResponse(w, map[string]interface{}{"invalidated": "all"})
		return
	}

	for _, namespace := range namespaces {
		s.store.Invalidate(namespace)
	}
	s.logger.Info("Server: invalidated namespaces", zap.Strings("namespaces", namespaces))
	s.sendJSONResponse(w, map[string]interface{}{"invalidated": namespaces})
}

// handleNamespaceRefetch forces every query of the namespace to hit the backend
func (s *Server) handleNamespaceRefetch(w http.ResponseWriter, r *http.Request) {
	namespace := mux.Vars(r)["namespace"]
	keys := s.refetcher.RegisteredKeys(namespace)

	if err := s.refetcher.RefetchNamespace(r.Context(), namespace); err != nil {
		s.logger.Warn("Server: namespace refetch failed", zap.String("namespace", namespace), zap.Error(err))
		s.sendJSONStatus(w, http.StatusBadGateway, map[string]interface{}{"error": err.Error()})
		return
	}

	s.sendJSONResponse(w, map[string]interface{}{
		"namespace": namespace,
		"refetched": len(keys),
	})
}
