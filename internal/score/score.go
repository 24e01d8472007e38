// Package score turns findings into per-file and per-run risk scores.
package score

import (
	"strings"

	"github.com/nhd2106/mongo-safe/internal/ir"
)

// Weight is the score contribution of one finding of severity sev.
func Weight(sev string) int {
	switch strings.ToLower(sev) {
	case "high":
		return 10
	case "medium":
		return 4
	case "low":
		return 1
	default:
		return 0
	}
}

// File sums the weights of findings.
func File(findings []ir.Finding) int {
	total := 0
	for _, f := range findings {
		total += Weight(f.Severity)
	}
	return total
}

// Grade maps score density (points per 100 lines) to A..F.
func Grade(score, lines int) string {
	if score <= 0 {
		return "A"
	}
	if lines < 1 {
		lines = 1
	}
	density := float64(score) * 100 / float64(lines)
	switch {
	case density <= 2:
		return "B"
	case density <= 5:
		return "C"
	case density <= 10:
		return "D"
	default:
		return "F"
	}
}

// Annotate fills File scores and the run Summary from run.Findings.
func Annotate(run *ir.Run) {
	byFile := map[string][]ir.Finding{}
	for _, f := range run.Findings {
		byFile[f.Source] = append(byFile[f.Source], f)
	}

	sum := ir.Summary{
		Files:      len(run.Files),
		Findings:   len(run.Findings),
		BySeverity: map[string]int{"high": 0, "medium": 0, "low": 0},
		ByCategory: map[string]int{},
	}
	for i := range run.Files {
		fl := &run.Files[i]
		fs := byFile[fl.Path]
		fl.Findings = len(fs)
		fl.Score = File(fs)
		fl.Grade = Grade(fl.Score, fl.Lines)
		sum.Lines += fl.Lines
		sum.Score += fl.Score
	}
	for _, f := range run.Findings {
		sum.BySeverity[strings.ToLower(f.Severity)]++
		if f.Category != "" {
			sum.ByCategory[f.Category]++
		}
	}
	sum.Grade = Grade(sum.Score, sum.Lines)
	run.Summary = sum
}
