package runner

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhd2106/mongo-safe/internal/ir"
	"github.com/nhd2106/mongo-safe/internal/rules"
	"github.com/nhd2106/mongo-safe/internal/sources"
)

// catalogSample is one document holding every built-in unsafe example, one
// per line, in catalog order.
func catalogSample() sources.Document {
	var b strings.Builder
	for _, r := range rules.Builtin().All() {
		b.WriteString(r.UnsafeExample)
		b.WriteByte('\n')
	}
	return sources.Document{Path: "samples/everything.js", Text: b.String()}
}

func analyzeSample(t *testing.T, threshold string) ir.Run {
	t.Helper()
	return Analyze(context.Background(), []sources.Document{catalogSample()}, Options{
		Settings: rules.NewSettings(threshold, nil),
		Now:      fixed,
	})
}

func TestSample_LowThreshold_EveryRuleFires(t *testing.T) {
	run := analyzeSample(t, "low")

	counts := map[string]int{}
	for _, f := range run.Findings {
		counts[f.RuleID]++
	}
	for i, r := range rules.Builtin().All() {
		assert.NotZero(t, counts[r.ID], "%s: its unsafe example on line %d did not fire", r.ID, i+1)
	}
	assert.Equal(t, len(run.Findings), run.Summary.Findings)
	assert.NotEqual(t, "A", run.Summary.Grade)
}

func TestSample_MediumThreshold_FiltersLow(t *testing.T) {
	low := analyzeSample(t, "low")
	med := analyzeSample(t, "medium")

	require.Less(t, len(med.Findings), len(low.Findings))
	for _, f := range med.Findings {
		assert.NotEqual(t, "low", f.Severity, f.RuleID)
	}
	// high rules survive any threshold
	var highLow, highMed int
	for _, f := range low.Findings {
		if f.Severity == "high" {
			highLow++
		}
	}
	for _, f := range med.Findings {
		if f.Severity == "high" {
			highMed++
		}
	}
	assert.Equal(t, highLow, highMed)
}

func TestSample_Deterministic(t *testing.T) {
	a := analyzeSample(t, "low")
	b := Analyze(context.Background(), []sources.Document{catalogSample()}, Options{Workers: 1, Now: fixed})
	require.Equal(t, len(a.Findings), len(b.Findings))
	for i := range a.Findings {
		assert.Equal(t, a.Findings[i].ID, b.Findings[i].ID)
	}
}
