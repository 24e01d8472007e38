package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nhd2106/mongo-safe/internal/ir"
)

// ListRuns returns a lightweight list of runs with counts.
func (db *DB) ListRuns(limit, offset int) ([]RunRow, error) {
	const q = `
		SELECT r.id, r.started_at, COALESCE(r.source,''), COALESCE(r.ir_version,''), COALESCE(r.grade,''),
		       (SELECT COUNT(1) FROM findings f WHERE f.run_id = r.id) AS findings
		  FROM runs r
		 ORDER BY r.started_at DESC, r.id DESC
		 LIMIT ? OFFSET ?`
	rows, err := db.conn.Query(q, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []RunRow
	for rows.Next() {
		var rr RunRow
		var startedAtStr string
		if err := rows.Scan(&rr.ID, &startedAtStr, &rr.Source, &rr.IRVersion, &rr.Grade, &rr.Findings); err != nil {
			return nil, err
		}
		// RFC3339Nano first, then RFC3339
		if t, err := time.Parse(time.RFC3339Nano, startedAtStr); err == nil {
			rr.StartedAt = t
		} else if t2, err2 := time.Parse(time.RFC3339, startedAtStr); err2 == nil {
			rr.StartedAt = t2
		}
		out = append(out, rr)
	}
	return out, rows.Err()
}

const sevRank = `(CASE lower(%s) WHEN 'high' THEN 3 WHEN 'medium' THEN 2 ELSE 1 END)`

// ListFindings returns findings for a run at or above a minimum severity,
// in (source, line, catalog order) order.
func (db *DB) ListFindings(runID, minSeverity string) ([]ir.Finding, error) {
	q := fmt.Sprintf(`
		SELECT id, rule_id, rule_name, category, severity, source, line, text, message, help_uri, ord
		  FROM findings
		 WHERE run_id = ?
		   AND %s >= %s
		 ORDER BY source, line, ord, id`, fmt.Sprintf(sevRank, "severity"), fmt.Sprintf(sevRank, "?"))
	rows, err := db.conn.Query(q, runID, minSeverity)
	if err != nil {
		return nil, fmt.Errorf("list findings: %w", err)
	}
	defer rows.Close()

	var out []ir.Finding
	for rows.Next() {
		f, err := scanFinding(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// GetFinding returns one finding of a run.
func (db *DB) GetFinding(runID, findingID string) (ir.Finding, error) {
	row := db.conn.QueryRow(`
		SELECT id, rule_id, rule_name, category, severity, source, line, text, message, help_uri, ord
		  FROM findings WHERE run_id = ? AND id = ?`, runID, findingID)
	f, err := scanFinding(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Finding{}, fmt.Errorf("finding %s: %w", findingID, ErrNotFound)
	}
	return f, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFinding(r rowScanner) (ir.Finding, error) {
	var f ir.Finding
	err := r.Scan(&f.ID, &f.RuleID, &f.RuleName, &f.Category, &f.Severity, &f.Source, &f.Line, &f.Text, &f.Message, &f.HelpURI, &f.Order)
	return f, err
}

func (db *DB) HasRun(id string) (bool, error) {
	const q = `SELECT 1 FROM runs WHERE id = ? LIMIT 1`
	var one int
	err := db.conn.QueryRow(q, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}
