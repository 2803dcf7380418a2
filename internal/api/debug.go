package api

import (
	"net/http"
	"time"

	"routeeta/internal/buildinfo"
)

// DebugJSON reports build info and the redacted runtime configuration. Admin only.
func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdmin(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"build":    buildinfo.Get(),
		"time":     s.now().UTC().Format(time.RFC3339),
		"authMode": s.Auth.Mode(),
		"config":   s.settings,
	})
}
