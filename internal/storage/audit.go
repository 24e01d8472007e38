package storage

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nhd2106/mongo-safe/internal/ir"
)

// Audit actions written by this package.
const (
	ActionRunSaved = "run:save"
)

// AuditEntry is one row of the audit trail. RunID is set for events about
// a stored scan run.
type AuditEntry struct {
	ID       int64          `json:"id"`
	At       time.Time      `json:"at"`
	Username string         `json:"username"`
	Action   string         `json:"action"`
	Resource string         `json:"resource,omitempty"`
	RunID    string         `json:"run_id,omitempty"`
	Meta     map[string]any `json:"meta,omitempty"`
}

func (db *DB) LogAudit(username, action, resource string, meta map[string]any) error {
	return db.insertAudit(username, action, resource, "", meta)
}

// LogRunAudit records an event about run runID.
func (db *DB) LogRunAudit(username, action, runID string, meta map[string]any) error {
	if runID == "" {
		return fmt.Errorf("audit %s: empty run id", action)
	}
	return db.insertAudit(username, action, "", runID, meta)
}

// RecordRun audits a saved run with its source, grade and finding counts.
func (db *DB) RecordRun(username string, run *ir.Run) error {
	return db.LogRunAudit(username, ActionRunSaved, run.ID, map[string]any{
		"source":   run.Source,
		"grade":    run.Summary.Grade,
		"findings": run.Summary.Findings,
		"waived":   run.Context.Waived,
		"files":    len(run.Files),
	})
}

func (db *DB) insertAudit(username, action, resource, runID string, meta map[string]any) error {
	var metaJSON any
	if len(meta) > 0 {
		b, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("audit %s: %w", action, err)
		}
		metaJSON = string(b)
	}
	_, err := db.conn.Exec(`INSERT INTO audit(ts, username, action, resource, run_id, meta_json) VALUES(?,?,?,?,?,?)`,
		time.Now().UTC().Format(sortableTime), username, action, nz(resource), nz(runID), metaJSON)
	return err
}

// ListAudit returns the newest entries first. A non-empty runID keeps only
// that run's events; limit <= 0 means 50.
func (db *DB) ListAudit(runID string, limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT id, ts, COALESCE(username,''), action, COALESCE(resource,''), COALESCE(run_id,''), COALESCE(meta_json,'') FROM audit`
	var args []any
	if runID = strings.TrimSpace(runID); runID != "" {
		q += ` WHERE run_id=?`
		args = append(args, runID)
	}
	q += ` ORDER BY ts DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.conn.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		var e AuditEntry
		var ts, meta string
		if err := rows.Scan(&e.ID, &ts, &e.Username, &e.Action, &e.Resource, &e.RunID, &meta); err != nil {
			return nil, err
		}
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			e.At = t
		}
		if meta != "" {
			_ = json.Unmarshal([]byte(meta), &e.Meta)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
