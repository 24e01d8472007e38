package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/nhd2106/mongo-safe/internal/ir"
	"github.com/nhd2106/mongo-safe/internal/present"
	"github.com/nhd2106/mongo-safe/internal/rules"
	"github.com/nhd2106/mongo-safe/internal/storage"
)

var (
	styleHeader = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#6C5CE7"))
	styleMeta   = lipgloss.NewStyle().Foreground(lipgloss.Color("#636e72"))
	styleOK     = lipgloss.NewStyle().Foreground(lipgloss.Color("#00B894"))
)

// printFindings writes one block per finding, grouped under its file.
func printFindings(w io.Writer, fs []ir.Finding) {
	last := ""
	for _, f := range fs {
		if f.Source != last {
			if last != "" {
				fmt.Fprintln(w)
			}
			fmt.Fprintln(w, styleHeader.Render(f.Source))
			last = f.Source
		}
		fmt.Fprintf(w, "  %5d  %s  %s\n", f.Line, present.Style(f.Severity).Render(present.Badge(f.Severity)), f.RuleName)
		fmt.Fprintf(w, "         %s\n", styleMeta.Render(f.RuleID+"  "+truncate(f.Text, 100)))
	}
	if len(fs) > 0 {
		fmt.Fprintln(w)
	}
}

func printSummary(w io.Writer, run *ir.Run) {
	s := run.Summary
	if s.Findings == 0 {
		fmt.Fprintln(w, styleOK.Render(fmt.Sprintf("No findings in %d files (%d lines). Grade %s.", s.Files, s.Lines, s.Grade)))
	} else {
		parts := make([]string, 0, 3)
		for _, sev := range []string{"high", "medium", "low"} {
			parts = append(parts, present.Style(sev).Render(fmt.Sprintf("%s %d", present.Label(sev), s.BySeverity[sev])))
		}
		fmt.Fprintf(w, "%d findings in %d files (%s). Grade %s, score %d.\n",
			s.Findings, s.Files, strings.Join(parts, ", "), s.Grade, s.Score)
	}
	if run.Context.Waived > 0 {
		fmt.Fprintln(w, styleMeta.Render(fmt.Sprintf("%d findings waived.", run.Context.Waived)))
	}
	fmt.Fprintln(w, styleMeta.Render("run "+run.ID))
}

func rulesTable(rs []*rules.Rule) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(styleMeta).
		Headers("ID", "SEVERITY", "CATEGORY", "NAME").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return styleHeader.Padding(0, 1)
			}
			if col == 1 && row >= 0 && row < len(rs) {
				return present.Style(rs[row].Severity.String()).Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
	for _, r := range rs {
		t.Row(r.ID, present.Badge(r.Severity.String()), string(r.Category), r.Name)
	}
	return t.String()
}

func runsTable(rows []storage.RunRow) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(styleMeta).
		Headers("RUN", "STARTED", "SOURCE", "GRADE", "FINDINGS")
	for _, r := range rows {
		t.Row(r.ID, r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.Source, r.Grade, strconv.Itoa(r.Findings))
	}
	return t.String()
}

func waiversTable(ws []storage.Waiver) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(styleMeta).
		Headers("ID", "RULE", "SOURCE", "PATTERN", "EXPIRES", "BY", "STATUS", "REASON")
	for _, w := range ws {
		status := "active"
		switch {
		case w.RevokedAt != nil:
			status = "revoked"
		case !w.ActiveAt(nowFunc()):
			status = "expired"
		}
		t.Row(strconv.FormatInt(w.ID, 10), w.RuleID, orDash(w.SourceGlob), orDash(w.PatternSub),
			w.ExpiresAt.Local().Format("2006-01-02"), w.CreatedBy, status, w.Reason)
	}
	return t.String()
}

func auditTable(es []storage.AuditEntry) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(styleMeta).
		Headers("ID", "AT", "USER", "ACTION", "RUN", "DETAIL")
	for _, e := range es {
		t.Row(strconv.FormatInt(e.ID, 10), e.At.Local().Format("2006-01-02 15:04:05"), orDash(e.Username),
			e.Action, orDash(e.RunID), orDash(auditDetail(e)))
	}
	return t.String()
}

// auditDetail renders the resource and meta as sorted key=value pairs.
func auditDetail(e storage.AuditEntry) string {
	parts := make([]string, 0, len(e.Meta)+1)
	if e.Resource != "" {
		parts = append(parts, e.Resource)
	}
	keys := make([]string, 0, len(e.Meta))
	for k := range e.Meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, e.Meta[k]))
	}
	return strings.Join(parts, " ")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
