package storage

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhd2106/mongo-safe/internal/ir"
)

func openTest(t *testing.T) *DB {
	t.Helper()
	db, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.CreateSchema())
	return db
}

func sampleRun(id string, started time.Time) *ir.Run {
	return &ir.Run{
		ID:        id,
		StartedAt: started,
		Source:    "src",
		IRVersion: ir.Version,
		Files:     []ir.File{{Path: "src/app.js", Lines: 3}},
		Findings: []ir.Finding{
			{ID: "MONGO-NO-PROJECTION-1", RuleID: "MONGO-NO-PROJECTION", Severity: "low", Source: "src/app.js", Line: 2, Order: 10},
			{ID: "MONGO-WHERE-INJECTION-1", RuleID: "MONGO-WHERE-INJECTION", Severity: "high", Source: "src/app.js", Line: 2, Order: 0},
			{ID: "MONGO-TLS-DISABLED-1", RuleID: "MONGO-TLS-DISABLED", Severity: "medium", Source: "src/a.js", Line: 9, Order: 20},
		},
		Summary: ir.Summary{Findings: 3, Grade: "C"},
	}
}

func TestRuns(t *testing.T) {
	db := openTest(t)
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	_, err := db.LatestRunID()
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, db.SaveRun(sampleRun("run-1", t0)))
	require.NoError(t, db.SaveRun(sampleRun("run-2", t0.Add(time.Minute))))

	latest, err := db.LatestRunID()
	require.NoError(t, err)
	assert.Equal(t, "run-2", latest)

	rows, err := db.ListRuns(10, 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "run-2", rows[0].ID)
	assert.Equal(t, "C", rows[0].Grade)

	run, err := db.LoadRun("run-1")
	require.NoError(t, err)
	assert.Equal(t, "src", run.Source)
	assert.Len(t, run.Findings, 3)

	_, err = db.LoadRun("nope")
	assert.True(t, errors.Is(err, ErrNotFound))

	ok, err := db.HasRun("run-1")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = db.HasRun("nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSaveRun_Replaces(t *testing.T) {
	db := openTest(t)
	run := sampleRun("run-1", time.Now())
	require.NoError(t, db.SaveRun(run))

	run.Findings = run.Findings[:1]
	require.NoError(t, db.SaveRun(run))

	fs, err := db.ListFindings("run-1", "low")
	require.NoError(t, err)
	assert.Len(t, fs, 1)
}

func TestListFindings_OrderAndFilter(t *testing.T) {
	db := openTest(t)
	require.NoError(t, db.SaveRun(sampleRun("run-1", time.Now())))

	fs, err := db.ListFindings("run-1", "low")
	require.NoError(t, err)
	require.Len(t, fs, 3)
	assert.Equal(t, "MONGO-TLS-DISABLED", fs[0].RuleID)
	assert.Equal(t, "MONGO-WHERE-INJECTION", fs[1].RuleID)
	assert.Equal(t, "MONGO-NO-PROJECTION", fs[2].RuleID)

	fs, err = db.ListFindings("run-1", "medium")
	require.NoError(t, err)
	assert.Len(t, fs, 2)

	fs, err = db.ListFindings("run-1", "HIGH")
	require.NoError(t, err)
	require.Len(t, fs, 1)
	assert.Equal(t, "high", fs[0].Severity)

	f, err := db.GetFinding("run-1", "MONGO-WHERE-INJECTION-1")
	require.NoError(t, err)
	assert.Equal(t, 2, f.Line)

	_, err = db.GetFinding("run-1", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUsersAndSessions(t *testing.T) {
	db := openTest(t)

	id, err := db.CreateUser("root", "hash", "admin")
	require.NoError(t, err)
	_, err = db.CreateUser("root", "hash", "admin")
	assert.Error(t, err, "usernames are unique")

	u, hash, err := db.GetUserByUsername("root")
	require.NoError(t, err)
	assert.Equal(t, id, u.ID)
	assert.Equal(t, "hash", hash)
	assert.Equal(t, "admin", u.Role)

	_, _, err = db.GetUserByUsername("ghost")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, db.CreateSession(id, "live", time.Now().Add(time.Hour)))
	require.NoError(t, db.CreateSession(id, "stale", time.Now().Add(-time.Hour)))

	got, err := db.GetSession("live")
	require.NoError(t, err)
	assert.Equal(t, "root", got.Username)

	_, err = db.GetSession("stale")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, db.DeleteSession("live"))
	assert.ErrorIs(t, db.DeleteSession("live"), ErrNotFound)

	require.NoError(t, db.LogAudit("root", "login", "", map[string]any{"ip": "127.0.0.1"}))
}

func TestAudit_RunEvents(t *testing.T) {
	db := openTest(t)
	run := sampleRun("run-1", time.Now())
	run.Context.Waived = 2
	require.NoError(t, db.SaveRun(run))

	require.NoError(t, db.LogAudit("root", "login", "", nil))
	require.NoError(t, db.RecordRun("ci", run))
	require.NoError(t, db.LogRunAudit("ann", "run:view", "run-2", nil))
	assert.Error(t, db.LogRunAudit("ann", "run:view", "", nil))

	all, err := db.ListAudit("", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "run:view", all[0].Action, "newest first")
	assert.Equal(t, "login", all[2].Action)
	assert.Empty(t, all[2].RunID)
	assert.Nil(t, all[2].Meta)

	got, err := db.ListAudit("run-1", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	e := got[0]
	assert.Equal(t, ActionRunSaved, e.Action)
	assert.Equal(t, "ci", e.Username)
	assert.Equal(t, "run-1", e.RunID)
	assert.Equal(t, "C", e.Meta["grade"])
	assert.Equal(t, "src", e.Meta["source"])
	assert.EqualValues(t, 3, e.Meta["findings"])
	assert.EqualValues(t, 2, e.Meta["waived"])
	assert.False(t, e.At.IsZero())

	limited, err := db.ListAudit("", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestWaivers(t *testing.T) {
	db := openTest(t)

	live, err := db.CreateWaiver("MONGO-WHERE-INJECTION", "src/*.js", "", "legacy", "root", time.Now().Add(time.Hour))
	require.NoError(t, err)
	_, err = db.CreateWaiver("MONGO-TLS-DISABLED", "", "tls", "dev only", "root", time.Now().Add(-time.Hour))
	require.NoError(t, err)

	all, err := db.ListWaivers(false)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "tls", all[0].PatternSub)
	assert.Empty(t, all[0].SourceGlob)

	active, err := db.ListWaivers(true)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, live, active[0].ID)
	assert.True(t, active[0].ActiveAt(time.Now()))

	require.NoError(t, db.RevokeWaiver(live))
	assert.ErrorIs(t, db.RevokeWaiver(live), ErrNotFound)
	assert.ErrorIs(t, db.RevokeWaiver(999), ErrNotFound)

	all, err = db.ListWaivers(false)
	require.NoError(t, err)
	for _, w := range all {
		if w.ID == live {
			require.NotNil(t, w.RevokedAt)
			assert.False(t, w.ActiveAt(time.Now()))
		}
	}
}
