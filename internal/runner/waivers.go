package runner

import (
	"path"
	"strings"
	"time"

	"github.com/nhd2106/mongo-safe/internal/ir"
	"github.com/nhd2106/mongo-safe/internal/storage"
)

// ApplyWaivers filters out findings that match any active waiver.
// Returns (kept, waivedCount)
func ApplyWaivers(in []ir.Finding, waivers []storage.Waiver, now time.Time) ([]ir.Finding, int) {
	if len(waivers) == 0 || len(in) == 0 {
		return in, 0
	}
	out := make([]ir.Finding, 0, len(in))
	waived := 0
nextFinding:
	for _, f := range in {
		for _, w := range waivers {
			if !w.ActiveAt(now) {
				continue
			}
			if !eqCI(f.RuleID, w.RuleID) {
				continue
			}
			if w.SourceGlob != "" && !sourceMatches(w.SourceGlob, f.Source) {
				continue
			}
			if w.PatternSub != "" &&
				!strings.Contains(strings.ToUpper(f.Text), strings.ToUpper(w.PatternSub)) {
				continue
			}
			waived++
			continue nextFinding
		}
		out = append(out, f)
	}
	return out, waived
}

// sourceMatches tries the glob against the whole path, then against each
// trailing segment run, so "handlers/*.js" matches "src/handlers/login.js".
func sourceMatches(glob, source string) bool {
	glob = strings.ReplaceAll(glob, `\`, "/")
	source = strings.ReplaceAll(source, `\`, "/")
	if ok, _ := path.Match(glob, source); ok {
		return true
	}
	for i := 0; i < len(source); i++ {
		if source[i] != '/' {
			continue
		}
		if ok, _ := path.Match(glob, source[i+1:]); ok {
			return true
		}
	}
	return false
}

func eqCI(a, b string) bool { return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b)) }
