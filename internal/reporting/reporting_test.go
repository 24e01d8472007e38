package reporting

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhd2106/mongo-safe/internal/ir"
	"github.com/nhd2106/mongo-safe/internal/rules"
)

func sampleRun() *ir.Run {
	return &ir.Run{
		ID:    "run-1",
		Files: []ir.File{{Path: "src/a.js", Lines: 10, Score: 14, Findings: 2, Grade: "F"}, {Path: "src/b.js", Lines: 3}},
		Findings: []ir.Finding{
			{ID: "W-1", RuleID: "MONGO-WHERE-INJECTION", RuleName: "Dynamic input in $where/$expr", Severity: "high", Category: "injection",
				Source: "src/a.js", Line: 2, Text: `db.users.find({ $where: "x" + y });`, Message: "where <injection>",
				HelpURI: "https://www.mongodb.com/docs/manual/reference/operator/query/where/"},
			{ID: "U-1", RuleID: "MONGO-UNCONSTRAINED-QUERY", RuleName: "Unconstrained query", Severity: "medium", Category: "exposure",
				Source: "src/a.js", Line: 5, Text: "db.users.find({});", Message: "unconstrained"},
			{ID: "C-1", RuleID: "ACME-CUSTOM", RuleName: "Custom", Severity: "low", Source: "./lib/c.js", Line: 1, Text: "x", Message: "custom"},
		},
		Summary: ir.Summary{Files: 2, Findings: 3, Grade: "F", BySeverity: map[string]int{"high": 1, "medium": 1, "low": 1}},
	}
}

func TestWrite_AllFormats(t *testing.T) {
	dir := t.TempDir()
	paths, err := Write(sampleRun(), dir, Formats)
	require.NoError(t, err)
	require.Len(t, paths, 4)
	for _, p := range paths {
		st, err := os.Stat(p)
		require.NoError(t, err)
		assert.Positive(t, st.Size())
	}

	_, err = Write(sampleRun(), dir, []string{"pdf"})
	assert.Error(t, err)
}

func TestHTML_EscapesAndColours(t *testing.T) {
	p, err := WriteHTML("run-1", t.TempDir(), sampleRun())
	require.NoError(t, err)
	b, err := os.ReadFile(p)
	require.NoError(t, err)
	s := string(b)
	assert.Contains(t, s, "where &lt;injection&gt;")
	assert.Contains(t, s, "#DC3545")
	assert.Contains(t, s, "Riskiest Files")
}

func TestSARIF(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodeSARIF(&buf, sampleRun(), rules.Builtin()))

	var doc struct {
		Version string `json:"version"`
		Runs    []struct {
			Tool struct {
				Driver struct {
					Rules []struct {
						ID      string `json:"id"`
						HelpURI string `json:"helpUri"`
					} `json:"rules"`
				} `json:"driver"`
			} `json:"tool"`
			Results []struct {
				RuleID    string `json:"ruleId"`
				RuleIndex int    `json:"ruleIndex"`
				Level     string `json:"level"`
				Locations []struct {
					PhysicalLocation struct {
						ArtifactLocation struct {
							URI string `json:"uri"`
						} `json:"artifactLocation"`
						Region struct {
							StartLine int `json:"startLine"`
						} `json:"region"`
					} `json:"physicalLocation"`
				} `json:"locations"`
			} `json:"results"`
		} `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "2.1.0", doc.Version)
	require.Len(t, doc.Runs, 1)
	run := doc.Runs[0]
	require.Len(t, run.Results, 3)
	assert.Len(t, run.Tool.Driver.Rules, 3)

	levels := []string{run.Results[0].Level, run.Results[1].Level, run.Results[2].Level}
	assert.Equal(t, []string{"error", "warning", "note"}, levels)
	assert.Equal(t, "lib/c.js", run.Results[2].Locations[0].PhysicalLocation.ArtifactLocation.URI)
	assert.Equal(t, 2, run.Results[0].Locations[0].PhysicalLocation.Region.StartLine)

	r0 := run.Tool.Driver.Rules[run.Results[0].RuleIndex]
	assert.Equal(t, "MONGO-WHERE-INJECTION", r0.ID)
	assert.Contains(t, r0.HelpURI, "mongodb.com")
}

func TestCheckstyle(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodeCheckstyle(&buf, sampleRun()))

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(buf.Bytes()))
	files := doc.FindElements("//file")
	assert.Len(t, files, 3)

	errs := doc.FindElements("//file[@name='src/a.js']/error")
	require.Len(t, errs, 2)
	assert.Equal(t, "2", errs[0].SelectAttrValue("line", ""))
	assert.Equal(t, "error", errs[0].SelectAttrValue("severity", ""))
	assert.Equal(t, "mongo-safe.MONGO-WHERE-INJECTION", errs[0].SelectAttrValue("source", ""))
}

func TestDiff(t *testing.T) {
	base := sampleRun()
	head := sampleRun()
	head.ID = "run-2"
	head.Findings[0].Line = 7          // moved
	head.Findings[1].Severity = "high" // re-rated
	head.Findings = head.Findings[:2]  // custom finding fixed
	head.Findings = append(head.Findings, ir.Finding{RuleID: "MONGO-TLS-DISABLED", Source: "src/db.js", Line: 1, Text: "tls: false"})

	d := Diff(base, head)
	assert.Equal(t, DiffSummary{NewCount: 1, RemovedCount: 1, ChangedCount: 2}, d.Summary)
	assert.Equal(t, "MONGO-TLS-DISABLED", d.New[0].RuleID)
	assert.Equal(t, "ACME-CUSTOM", d.Removed[0].RuleID)

	p, err := WriteDiffJSON(t.TempDir(), base, head)
	require.NoError(t, err)
	assert.Equal(t, "diff_run-1__run-2.json", filepath.Base(p))
}

func TestDetailMarkdown(t *testing.T) {
	r, ok := rules.Builtin().Get("MONGO-WHERE-INJECTION")
	require.True(t, ok)
	f := sampleRun().Findings[0]

	md := DetailMarkdown(f, r)
	for _, want := range []string{
		"● " + r.Name,
		"**Severity:** HIGH",
		f.Text,
		r.Description,
		r.Remediation,
		r.UnsafeExample,
		r.SafeExample,
		r.ReferenceURL,
		"src/a.js:2",
	} {
		assert.Contains(t, md, want)
	}

	orphan := DetailMarkdown(sampleRun().Findings[2], nil)
	assert.Contains(t, orphan, "custom")
	assert.Contains(t, orphan, "◆ Custom")
}

func TestRenderDetail(t *testing.T) {
	md := "# Title\n\nbody"
	assert.Equal(t, md, RenderDetail(md, DetailOptions{Plain: true}))
	out := RenderDetail(md, DetailOptions{Width: 60})
	assert.True(t, strings.Contains(out, "Title"))
}

func TestRuleMarkdown(t *testing.T) {
	r, ok := rules.Builtin().Get("MONGO-TLS-DISABLED")
	require.True(t, ok)
	md := RuleMarkdown(r)
	assert.True(t, strings.HasPrefix(md, "# ▲ "+r.Name))
	assert.Contains(t, md, "`MONGO-TLS-DISABLED`")
	assert.Contains(t, md, r.Pattern)
	assert.Contains(t, md, r.ReferenceURL)
}
