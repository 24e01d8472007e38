package reporting

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nhd2106/mongo-safe/internal/ir"
)

type DiffPayload struct {
	BaseID  string        `json:"base_id"`
	HeadID  string        `json:"head_id"`
	Summary DiffSummary   `json:"summary"`
	New     []DiffFinding `json:"new"`
	Removed []DiffFinding `json:"removed"`
	Changed []DiffChanged `json:"changed"`
}

type DiffSummary struct {
	NewCount     int `json:"new"`
	RemovedCount int `json:"removed"`
	ChangedCount int `json:"changed"`
}

type DiffFinding struct {
	RuleID   string `json:"rule_id"`
	Source   string `json:"source"`
	Line     int    `json:"line"`
	Severity string `json:"severity,omitempty"`
	Text     string `json:"text,omitempty"`
}

type DiffChanged struct {
	Key     string      `json:"key"`
	Base    DiffFinding `json:"base"`
	Head    DiffFinding `json:"head"`
	Changed []string    `json:"fields_changed"`
}

// Diff compares two runs. Findings are keyed by rule, source and matched
// text, so a finding that only moved lines shows up as changed rather than
// removed and re-added.
func Diff(base, head *ir.Run) DiffPayload {
	bm := index(base.Findings)
	hm := index(head.Findings)

	var added, removed []DiffFinding
	var changed []DiffChanged

	for k, hf := range hm {
		bf, ok := bm[k]
		if !ok {
			added = append(added, asDiff(hf))
			continue
		}
		var fields []string
		if norm(bf.Severity) != norm(hf.Severity) {
			fields = append(fields, "severity")
		}
		if bf.Line != hf.Line {
			fields = append(fields, "line")
		}
		if len(fields) > 0 {
			changed = append(changed, DiffChanged{Key: k, Base: asDiff(bf), Head: asDiff(hf), Changed: fields})
		}
	}
	for k, bf := range bm {
		if _, ok := hm[k]; !ok {
			removed = append(removed, asDiff(bf))
		}
	}

	sortDiff(added)
	sortDiff(removed)
	sort.Slice(changed, func(i, j int) bool { return changed[i].Key < changed[j].Key })

	return DiffPayload{
		BaseID: base.ID, HeadID: head.ID,
		Summary: DiffSummary{
			NewCount:     len(added),
			RemovedCount: len(removed),
			ChangedCount: len(changed),
		},
		New:     added,
		Removed: removed,
		Changed: changed,
	}
}

func WriteDiffJSON(outDir string, base, head *ir.Run) (string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(outDir, "diff_"+base.ID+"__"+head.ID+".json")
	b, err := json.MarshalIndent(Diff(base, head), "", "  ")
	if err != nil {
		return "", err
	}
	return path, os.WriteFile(path, b, 0o644)
}

// index keeps the first finding per key; a repeated identical line in one
// file collapses into one entry.
func index(fs []ir.Finding) map[string]ir.Finding {
	m := make(map[string]ir.Finding, len(fs))
	for _, f := range fs {
		k := keyOf(f)
		if _, dup := m[k]; !dup {
			m[k] = f
		}
	}
	return m
}

func keyOf(f ir.Finding) string {
	return norm(f.RuleID) + "|" + strings.TrimSpace(f.Source) + "|" + strings.TrimSpace(f.Text)
}

func asDiff(f ir.Finding) DiffFinding {
	return DiffFinding{RuleID: f.RuleID, Source: f.Source, Line: f.Line, Severity: f.Severity, Text: f.Text}
}

func sortDiff(ds []DiffFinding) {
	sort.Slice(ds, func(i, j int) bool {
		if ds[i].Source != ds[j].Source {
			return ds[i].Source < ds[j].Source
		}
		if ds[i].Line != ds[j].Line {
			return ds[i].Line < ds[j].Line
		}
		return ds[i].RuleID < ds[j].RuleID
	})
}

func norm(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
