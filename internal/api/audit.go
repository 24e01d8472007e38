package api

import (
	"net/http"

	"github.com/nhd2106/mongo-safe/internal/storage"
)

// GET /api/v1/audit?run=ID&limit=N
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	limit := clamp(parseInt(r.URL.Query().Get("limit"), 50), 1, 500)
	items, err := s.UserStore.ListAudit(r.URL.Query().Get("run"), limit)
	if err != nil {
		s.dbErr(w, err)
		return
	}
	if items == nil {
		items = []storage.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}
