package api

import (
	"net/http"
)

// handleHealth responds with 200 OK and the state of every registered check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	services := make(map[string]string, len(s.checks))
	for name, check := range s.checks {
		services[name] = "down"
		if check() {
			services[name] = "up"
		}
	}
	s.mu.RUnlock()

	status := map[string]interface{}{
		"status":   "ok",
		"services": services,
	}

	s.sendJSONResponse(w, status)
}
