package reporting

import (
	"fmt"
	"html"
	"io"
	"sort"

	"github.com/nhd2106/mongo-safe/internal/ir"
	"github.com/nhd2106/mongo-safe/internal/present"
)

func WriteHTML(runID, outDir string, run *ir.Run) (string, error) {
	return writeFile(outDir, runID+".html", func(w io.Writer) error {
		return renderHTML(w, run)
	})
}

func sevCell(sev string) string {
	return fmt.Sprintf("<td style='color:%s;white-space:nowrap'>%s</td>", present.Color(sev), html.EscapeString(present.Badge(sev)))
}

func renderHTML(f io.Writer, run *ir.Run) error {
	fmt.Fprintf(f, "<!doctype html><html><head><meta charset='utf-8'><title>%s</title>", html.EscapeString(run.ID))
	fmt.Fprint(f, "<style>body{font-family:system-ui,Arial,sans-serif;padding:20px;line-height:1.4} table{border-collapse:collapse;margin:8px 0} td,th{border:1px solid #ddd;padding:6px;vertical-align:top} h1,h2{margin:6px 0 4px} .dim{color:#666} .mono{font-family:ui-monospace,Menlo,Consolas,monospace}</style>")
	fmt.Fprint(f, "</head><body>")

	s := run.Summary
	fmt.Fprintf(f, "<h1>mongo-safe report – <span class='mono'>%s</span></h1>", html.EscapeString(run.ID))
	fmt.Fprintf(f, "<p>Files: %d &nbsp; Lines: %d &nbsp; Findings: %d &nbsp; Score: %d &nbsp; Grade: <b>%s</b></p>",
		s.Files, s.Lines, s.Findings, s.Score, html.EscapeString(s.Grade))
	fmt.Fprint(f, "<p>")
	for _, sev := range []string{"high", "medium", "low"} {
		fmt.Fprintf(f, "<span style='color:%s'>%s: %d</span> &nbsp; ", present.Color(sev), html.EscapeString(present.Badge(sev)), s.BySeverity[sev])
	}
	fmt.Fprint(f, "</p>")

	fmt.Fprintf(f, "<p class='dim'>Severity threshold: %s", html.EscapeString(run.Context.RuleSeverityThreshold))
	if n := len(run.Context.DisabledRules); n > 0 {
		fmt.Fprintf(f, " &nbsp; Disabled rules: %d", n)
	}
	if run.Context.Waived > 0 {
		fmt.Fprintf(f, " &nbsp; Waived findings: %d", run.Context.Waived)
	}
	fmt.Fprint(f, "</p>")

	// Riskiest files (by score desc, then path)
	files := append([]ir.File(nil), run.Files...)
	sort.Slice(files, func(i, j int) bool {
		if files[i].Score == files[j].Score {
			return files[i].Path < files[j].Path
		}
		return files[i].Score > files[j].Score
	})
	if len(files) > 0 && files[0].Score > 0 {
		fmt.Fprint(f, "<h2>Riskiest Files</h2><table><tr><th>File</th><th>Findings</th><th>Score</th><th>Grade</th></tr>")
		for i, fl := range files {
			if i == 20 || fl.Score == 0 {
				break
			}
			fmt.Fprintf(f, "<tr><td class='mono'>%s</td><td>%d</td><td>%d</td><td>%s</td></tr>",
				html.EscapeString(fl.Path), fl.Findings, fl.Score, html.EscapeString(fl.Grade))
		}
		fmt.Fprint(f, "</table>")
	}

	if len(run.Findings) > 0 {
		fmt.Fprint(f, "<h2>All Findings</h2><table><tr><th>Severity</th><th>Rule</th><th>Location</th><th>Code</th><th>Message</th></tr>")
		for _, fd := range run.Findings {
			fmt.Fprintf(f, "<tr>%s<td><a href='%s'>%s</a></td><td class='mono'>%s:%d</td><td class='mono'>%s</td><td>%s</td></tr>",
				sevCell(fd.Severity),
				html.EscapeString(fd.HelpURI),
				html.EscapeString(fd.RuleID),
				html.EscapeString(fd.Source), fd.Line,
				html.EscapeString(fd.Text),
				html.EscapeString(fd.Message),
			)
		}
		fmt.Fprint(f, "</table>")
	} else {
		fmt.Fprint(f, "<h2>All Findings</h2><p class='dim'>No findings at or above the configured threshold.</p>")
	}

	_, err := fmt.Fprint(f, "</body></html>")
	return err
}
