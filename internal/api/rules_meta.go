package api

import (
	"net/http"

	"github.com/nhd2106/mongo-safe/internal/present"
	"github.com/nhd2106/mongo-safe/internal/rules"
)

type ruleDTO struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Category      string `json:"category"`
	Severity      string `json:"severity"`
	Badge         string `json:"badge"`
	Color         string `json:"color"`
	CWE           string `json:"cwe,omitempty"`
	Pattern       string `json:"pattern"`
	Description   string `json:"description"`
	Remediation   string `json:"remediation"`
	UnsafeExample string `json:"unsafe_example,omitempty"`
	SafeExample   string `json:"safe_example,omitempty"`
	ReferenceURL  string `json:"reference_url"`
}

func toRuleDTO(r *rules.Rule) ruleDTO {
	sev := r.Severity.String()
	return ruleDTO{
		ID: r.ID, Name: r.Name, Category: string(r.Category), Severity: sev,
		Badge: present.Badge(sev), Color: present.Color(sev),
		CWE: r.CWE, Pattern: r.Pattern, Description: r.Description, Remediation: r.Remediation,
		UnsafeExample: r.UnsafeExample, SafeExample: r.SafeExample, ReferenceURL: r.ReferenceURL,
	}
}

// GET /api/v1/rules?q=&severity=&category=
func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var minSev rules.Severity
	if raw := q.Get("severity"); raw != "" {
		sev, ok := rules.ParseSeverity(raw)
		if !ok {
			s.err(w, http.StatusBadRequest, "severity must be low, medium or high")
			return
		}
		minSev = sev
	}
	cat := rules.Category(q.Get("category"))

	out := []ruleDTO{}
	for _, rr := range s.catalog().Search(q.Get("q")) {
		if minSev != "" && rr.Severity.Rank() < minSev.Rank() {
			continue
		}
		if cat != "" && rr.Category != cat {
			continue
		}
		out = append(out, toRuleDTO(rr))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out, "count": len(out)})
}

func (s *Server) handleRule(w http.ResponseWriter, r *http.Request) {
	rr, ok := s.catalog().Get(r.PathValue("id"))
	if !ok {
		s.err(w, http.StatusNotFound, "rule not found")
		return
	}
	writeJSON(w, http.StatusOK, toRuleDTO(rr))
}
