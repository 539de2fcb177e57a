package api

import (
	"net/http"
)

type healthResponse struct {
	Status              string `json:"status"`
	ProvidersConfigured int    `json:"providers_configured"`
}

// handleHealthz reports liveness. A service with no configured provider is
// still healthy; its executions fail with a config error.
func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	configured := 0
	for _, info := range s.providers.List() {
		if info.Configured {
			configured++
		}
	}
	s.writeJSON(w, http.StatusOK, healthResponse{Status: "ok", ProvidersConfigured: configured})
}
