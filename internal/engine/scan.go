// Package engine runs catalog rules over source text one line at a time.
package engine

import (
	"strings"

	"github.com/nhd2106/mongo-safe/internal/rules"
)

// Finding is one rule match on one line.
type Finding struct {
	Rule *rules.Rule
	Line int    // 1-based
	Text string // the matched line, trimmed
}

// catalogSources are the path suffixes under which the rule catalog itself
// is stored. Scanning them would flag every unsafe example in the table.
var catalogSources = []string{
	"rules/catalog.go",
	"catalog.yaml",
}

// IsCatalogSource reports whether sourceID names the rule catalog.
// An empty sourceID never does.
func IsCatalogSource(sourceID string) bool {
	if sourceID == "" {
		return false
	}
	id := strings.ReplaceAll(sourceID, `\`, "/")
	for _, suffix := range catalogSources {
		if id == suffix || strings.HasSuffix(id, "/"+suffix) {
			return true
		}
	}
	return false
}

// Scan matches every rule in rs against every line of text and returns the
// findings ordered by line, then by position in rs. Lines are split on '\n'
// only; callers normalise CRLF first.
//
// Scan never fails. A source that is the catalog itself yields nothing.
func Scan(text string, rs []*rules.Rule, sourceID string) []Finding {
	if text == "" || len(rs) == 0 || IsCatalogSource(sourceID) {
		return nil
	}
	var out []Finding
	for i, line := range strings.Split(text, "\n") {
		for _, r := range rs {
			if r.Match(line) {
				out = append(out, Finding{
					Rule: r,
					Line: i + 1,
					Text: strings.TrimSpace(line),
				})
			}
		}
	}
	return out
}
