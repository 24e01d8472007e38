package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nhd2106/mongo-safe/internal/ir"
	"github.com/nhd2106/mongo-safe/internal/reporting"
	"github.com/nhd2106/mongo-safe/internal/rules"
	"github.com/nhd2106/mongo-safe/internal/storage"
)

// Store is the minimal contract the API needs.
type Store interface {
	ListRuns(limit, offset int) ([]storage.RunRow, error)
	LoadRun(id string) (ir.Run, error)
	LatestRunID() (string, error)
	ListFindings(runID, minSeverity string) ([]ir.Finding, error)
	GetFinding(runID, findingID string) (ir.Finding, error)

	ListWaivers(activeOnly bool) ([]storage.Waiver, error)
	CreateWaiver(ruleID, sourceGlob, pattern, reason, createdBy string, expires time.Time) (int64, error)
	RevokeWaiver(id int64) error
}

// UserStore is the auth/audit contract the API uses.
type UserStore interface {
	GetUserByUsername(string) (storage.User, string, error)
	CreateSession(int64, string, time.Time) error
	GetSession(string) (storage.User, error)
	DeleteSession(string) error
	LogAudit(username, action, resource string, meta map[string]any) error
	ListAudit(runID string, limit int) ([]storage.AuditEntry, error)
}

type Server struct {
	DB              Store
	UserStore       UserStore
	Catalog         *rules.Catalog // nil = rules.Builtin()
	Settings        rules.Settings // applies to POST /scan
	Logger          *zap.Logger
	AllowedOrigins  []string
	SessionDuration time.Duration
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	// Health
	mux.HandleFunc("GET /api/v1/health", s.handleHealth)

	// Auth
	mux.HandleFunc("POST /api/v1/auth/login", s.handleLogin)
	mux.HandleFunc("POST /api/v1/auth/logout", withAuth(s, s.handleLogout, "auth:logout"))
	mux.HandleFunc("GET /api/v1/me", withAuth(s, s.handleMe, "me"))

	// Runs
	mux.HandleFunc("GET /api/v1/runs", s.handleListRuns)
	mux.HandleFunc("GET /api/v1/runs/latest", s.handleGetLatest)
	mux.HandleFunc("GET /api/v1/runs/{id}", s.handleGetRun)
	mux.HandleFunc("GET /api/v1/runs/{id}/findings", s.handleListFindings)
	mux.HandleFunc("GET /api/v1/runs/{id}/findings/{fid}", s.handleGetFinding)

	// Rules
	mux.HandleFunc("GET /api/v1/rules", s.handleRules)
	mux.HandleFunc("GET /api/v1/rules/{id}", s.handleRule)

	// Ad-hoc scan
	mux.HandleFunc("POST /api/v1/scan", s.handleScan)

	// Waivers
	mux.HandleFunc("GET /api/v1/waivers", withAuth(s, s.handleListWaivers, "waivers:list"))
	mux.HandleFunc("POST /api/v1/waivers", withAdmin(s, s.handleCreateWaiver, "waivers:create"))
	mux.HandleFunc("POST /api/v1/waivers/{id}/revoke", withAdmin(s, s.handleRevokeWaiver, "waivers:revoke"))

	// Audit
	mux.HandleFunc("GET /api/v1/audit", withAdmin(s, s.handleListAudit, "audit:list"))

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		s.err(w, http.StatusNotFound, "not found")
	})
	return withLogging(s.logger(), withCORS(s, mux))
}

func (s *Server) catalog() *rules.Catalog {
	if s.Catalog == nil {
		return rules.Builtin()
	}
	return s.Catalog
}

func (s *Server) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func (s *Server) pickCORSOrigin(r *http.Request) string {
	if len(s.AllowedOrigins) == 0 {
		return ""
	}
	origin := r.Header.Get("Origin")
	for _, ao := range s.AllowedOrigins {
		if ao == "*" {
			return "*"
		}
		if origin != "" && strings.EqualFold(origin, ao) {
			return origin
		}
	}
	return ""
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":        true,
		"rules":     s.catalog().Len(),
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := clamp(parseInt(q.Get("limit"), 20), 1, 200)
	offset := max(parseInt(q.Get("offset"), 0), 0)

	rows, err := s.DB.ListRuns(limit, offset)
	if err != nil {
		s.dbErr(w, err)
		return
	}
	if rows == nil {
		rows = []storage.RunRow{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": rows, "limit": limit, "offset": offset,
	})
}

func (s *Server) handleGetLatest(w http.ResponseWriter, r *http.Request) {
	id, err := s.DB.LatestRunID()
	if err != nil {
		s.dbErr(w, err)
		return
	}
	s.writeRun(w, id)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	s.writeRun(w, r.PathValue("id"))
}

func (s *Server) writeRun(w http.ResponseWriter, id string) {
	run, err := s.DB.LoadRun(id)
	if err != nil {
		s.dbErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleListFindings(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	min := rules.SeverityLow
	if raw := r.URL.Query().Get("min_severity"); raw != "" {
		sev, ok := rules.ParseSeverity(raw)
		if !ok {
			s.err(w, http.StatusBadRequest, "min_severity must be low, medium or high")
			return
		}
		min = sev
	}
	items, err := s.DB.ListFindings(id, min.String())
	if err != nil {
		s.dbErr(w, err)
		return
	}
	if items == nil {
		items = []ir.Finding{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"run_id": id, "min_severity": min, "items": items, "count": len(items),
	})
}

// GET /api/v1/runs/{id}/findings/{fid}: the finding, its rule and the
// rendered-for-humans detail markdown.
func (s *Server) handleGetFinding(w http.ResponseWriter, r *http.Request) {
	f, err := s.DB.GetFinding(r.PathValue("id"), r.PathValue("fid"))
	if err != nil {
		s.dbErr(w, err)
		return
	}
	rule, _ := s.catalog().Get(f.RuleID)
	out := map[string]any{
		"finding":  f,
		"markdown": reporting.DetailMarkdown(f, rule),
	}
	if rule != nil {
		out["rule"] = toRuleDTO(rule)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) err(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"error": msg})
}

// dbErr maps storage.ErrNotFound to 404 and hides everything else behind a
// logged 500.
func (s *Server) dbErr(w http.ResponseWriter, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		s.err(w, http.StatusNotFound, "not found")
		return
	}
	s.logger().Error("store", zap.Error(err))
	s.err(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

func clamp(x, lo, hi int) int {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
