package runner

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhd2106/mongo-safe/internal/ir"
	"github.com/nhd2106/mongo-safe/internal/rules"
	"github.com/nhd2106/mongo-safe/internal/sources"
	"github.com/nhd2106/mongo-safe/internal/storage"
)

var fixed = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

func sampleDocs() []sources.Document {
	return []sources.Document{
		{Path: "src/users.js", Text: "const all = db.users.find({});\nconst x = 1;\ndb.users.find({ $where: \"this.a == '\" + a + \"'\" });"},
		{Path: "src/clean.js", Text: "const x = 1;\n"},
		{Path: "internal/rules/catalog.go", Text: "db.users.find({});"},
		{Path: "config/db.js", Text: `const client = new MongoClient("mongodb://admin:pw@db.prod:27017/app", { tls: false });`},
	}
}

func TestAnalyze(t *testing.T) {
	run := Analyze(context.Background(), sampleDocs(), Options{Workers: 3, Now: fixed, Source: "."})

	assert.Equal(t, "run-"+fmt.Sprint(fixed().UnixNano()), run.ID)
	assert.Len(t, run.Files, 4)
	require.NotEmpty(t, run.Findings)

	for _, f := range run.Findings {
		assert.NotEqual(t, "internal/rules/catalog.go", f.Source)
		assert.True(t, strings.HasPrefix(f.ID, f.RuleID+"-"), f.ID)
	}
	var ids []string
	for _, f := range run.Findings {
		ids = append(ids, f.RuleID)
	}
	assert.Contains(t, ids, "MONGO-HARDCODED-CREDENTIALS")
	assert.Contains(t, ids, "MONGO-WHERE-INJECTION")
	assert.Contains(t, ids, "MONGO-UNCONSTRAINED-QUERY")

	// ordered by source, line, catalog order
	for i := 1; i < len(run.Findings); i++ {
		a, b := run.Findings[i-1], run.Findings[i]
		if a.Source == b.Source && a.Line == b.Line {
			assert.Less(t, a.Order, b.Order)
		} else if a.Source == b.Source {
			assert.Less(t, a.Line, b.Line)
		} else {
			assert.Less(t, a.Source, b.Source)
		}
	}

	assert.Equal(t, len(run.Findings), run.Summary.Findings)
	assert.NotEmpty(t, run.Summary.Grade)
}

func TestAnalyze_DeterministicAcrossWorkerCounts(t *testing.T) {
	a := Analyze(context.Background(), sampleDocs(), Options{Workers: 1, Now: fixed})
	b := Analyze(context.Background(), sampleDocs(), Options{Workers: 8, Now: fixed})
	assert.Equal(t, a.Findings, b.Findings)
}

func TestAnalyze_SettingsAndWaivers(t *testing.T) {
	opts := Options{
		Now:      fixed,
		Settings: rules.NewSettings("high", []string{"MONGO-WHERE-INJECTION"}),
		Waivers: []storage.Waiver{{
			RuleID: "MONGO-HARDCODED-CREDENTIALS", SourceGlob: "config/*.js", ExpiresAt: fixed().Add(time.Hour),
		}},
	}
	run := Analyze(context.Background(), sampleDocs(), opts)
	for _, f := range run.Findings {
		assert.Equal(t, "high", f.Severity)
		assert.NotEqual(t, "MONGO-WHERE-INJECTION", f.RuleID)
		assert.NotEqual(t, "MONGO-HARDCODED-CREDENTIALS", f.RuleID)
	}
	assert.Equal(t, 1, run.Context.Waived)
	assert.Equal(t, "high", run.Context.RuleSeverityThreshold)
	assert.Equal(t, []string{"MONGO-WHERE-INJECTION"}, run.Context.DisabledRules)
}

func TestAnalyze_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	run := Analyze(ctx, sampleDocs(), Options{Now: fixed})
	assert.LessOrEqual(t, len(run.Files), len(sampleDocs()))
}

func TestFindingID_Stable(t *testing.T) {
	a := FindingID("MONGO-X", "a.js", 3)
	assert.Equal(t, a, FindingID("MONGO-X", "a.js", 3))
	assert.NotEqual(t, a, FindingID("MONGO-X", "a.js", 4))
	assert.NotEqual(t, a, FindingID("MONGO-X", "b.js", 3))
	assert.Regexp(t, `^MONGO-X-[0-9a-f]{8}$`, a)
}

func TestSort(t *testing.T) {
	fs := []ir.Finding{
		{Source: "b", Line: 1, Order: 0},
		{Source: "a", Line: 2, Order: 1},
		{Source: "a", Line: 2, Order: 0},
		{Source: "a", Line: 1, Order: 5},
	}
	Sort(fs)
	assert.Equal(t, []ir.Finding{
		{Source: "a", Line: 1, Order: 5},
		{Source: "a", Line: 2, Order: 0},
		{Source: "a", Line: 2, Order: 1},
		{Source: "b", Line: 1, Order: 0},
	}, fs)
}
