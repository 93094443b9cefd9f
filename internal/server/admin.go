package server

import (
	"net/http"
	"strconv"

	"github.com/earnwall/earnwall/internal/config"
)

// reloadProviders handles POST /admin/providers/reload: re-reads
// credentials from the environment and rebuilds the active adapter set.
func (s *Server) reloadProviders(w http.ResponseWriter, r *http.Request) {
	cfg := config.Load()
	s.registry.Reload(cfg.Providers)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "reloaded",
		"providers": s.registry.Statuses(),
	})
}

// listProviders handles GET /admin/providers.
func (s *Server) listProviders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"providers": s.registry.Statuses()})
}

// listAudit handles GET /admin/audit?severity=&limit=.
func (s *Server) listAudit(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	events, err := s.auditStore.ListRecent(r.URL.Query().Get("severity"), limit)
	if err != nil {
		s.logger.Error("list audit failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "storage error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// runBackup handles POST /admin/backup.
func (s *Server) runBackup(w http.ResponseWriter, r *http.Request) {
	if !s.backupMgr.Enabled() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "backup not configured"})
		return
	}
	key, err := s.backupMgr.RunNow(r.Context())
	if err != nil {
		s.logger.Error("manual backup failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "object_key": key})
}
