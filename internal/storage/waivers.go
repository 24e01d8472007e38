package storage

import (
	"database/sql"
	"fmt"
	"time"
)

type Waiver struct {
	ID         int64      `json:"id"`
	RuleID     string     `json:"rule_id"`
	SourceGlob string     `json:"source_glob,omitempty"`
	PatternSub string     `json:"pattern_sub,omitempty"`
	Reason     string     `json:"reason"`
	ExpiresAt  time.Time  `json:"expires_at"`
	CreatedBy  string     `json:"created_by"`
	CreatedAt  time.Time  `json:"created_at"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
}

// ActiveAt reports whether the waiver is neither revoked nor expired at t.
func (w Waiver) ActiveAt(t time.Time) bool {
	if w.RevokedAt != nil {
		return false
	}
	return w.ExpiresAt.IsZero() || w.ExpiresAt.After(t)
}

func (db *DB) CreateWaiver(ruleID, sourceGlob, pattern, reason, createdBy string, expires time.Time) (int64, error) {
	now := time.Now().UTC().Format(sortableTime)
	res, err := db.conn.Exec(`
INSERT INTO waivers(rule_id, source_glob, pattern_sub, reason, expires_at, created_by, created_at)
VALUES(?,?,?,?,?,?,?)`,
		ruleID, nz(sourceGlob), nz(pattern), reason, expires.UTC().Format(sortableTime), createdBy, now)
	if err != nil {
		return 0, fmt.Errorf("create waiver: %w", err)
	}
	return res.LastInsertId()
}

// RevokeWaiver marks an active waiver revoked. Revoking an unknown or
// already revoked waiver returns ErrNotFound.
func (db *DB) RevokeWaiver(id int64) error {
	err := execOne(db.conn, `UPDATE waivers SET revoked_at=? WHERE id=? AND revoked_at IS NULL`,
		time.Now().UTC().Format(sortableTime), id)
	if err != nil {
		return fmt.Errorf("revoke waiver %d: %w", id, err)
	}
	return nil
}

func (db *DB) ListWaivers(activeOnly bool) ([]Waiver, error) {
	q := `
SELECT id, rule_id, COALESCE(source_glob,''), COALESCE(pattern_sub,''),
       reason, expires_at, created_by, created_at, revoked_at
FROM waivers`
	args := []any{}
	if activeOnly {
		q += ` WHERE (revoked_at IS NULL) AND (expires_at > ?)`
		args = append(args, time.Now().UTC().Format(sortableTime))
	}
	q += ` ORDER BY id DESC`
	rows, err := db.conn.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("list waivers: %w", err)
	}
	defer rows.Close()

	var out []Waiver
	for rows.Next() {
		var (
			w           Waiver
			exp, ca, ra sql.NullString
		)
		if err := rows.Scan(&w.ID, &w.RuleID, &w.SourceGlob, &w.PatternSub, &w.Reason, &exp, &w.CreatedBy, &ca, &ra); err != nil {
			return nil, err
		}
		if t, ok := parseTS(exp); ok {
			w.ExpiresAt = t
		}
		if t, ok := parseTS(ca); ok {
			w.CreatedAt = t
		}
		if t, ok := parseTS(ra); ok {
			w.RevokedAt = &t
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func parseTS(s sql.NullString) (time.Time, bool) {
	if !s.Valid {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	return t, err == nil
}

func nz(s string) any {
	if s == "" {
		return nil
	}
	return s
}
