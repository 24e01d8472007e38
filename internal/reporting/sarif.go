package reporting

import (
	"encoding/json"
	"io"
	"path/filepath"
	"strings"

	"github.com/nhd2106/mongo-safe/internal/ir"
	"github.com/nhd2106/mongo-safe/internal/rules"
)

// ToolVersion is stamped into SARIF output; the CLI overrides it at link time.
var ToolVersion = "dev"

type sarifLog struct {
	Version string     `json:"version"`
	Schema  string     `json:"$schema"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool    sarifTool     `json:"tool"`
	Results []sarifResult `json:"results"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name           string      `json:"name"`
	Version        string      `json:"version"`
	InformationURI string      `json:"informationUri,omitempty"`
	Rules          []sarifRule `json:"rules"`
}

type sarifRule struct {
	ID               string       `json:"id"`
	Name             string       `json:"name"`
	ShortDescription sarifMessage `json:"shortDescription"`
	FullDescription  sarifMessage `json:"fullDescription"`
	Help             sarifMessage `json:"help"`
	HelpURI          string       `json:"helpUri,omitempty"`
	Properties       struct {
		Tags     []string `json:"tags,omitempty"`
		Severity string   `json:"severity"`
	} `json:"properties"`
}

type sarifResult struct {
	RuleID    string          `json:"ruleId"`
	RuleIndex int             `json:"ruleIndex"`
	Message   sarifMessage    `json:"message"`
	Level     string          `json:"level"` // error, warning, note
	Locations []sarifLocation `json:"locations"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

type sarifLocation struct {
	PhysicalLocation struct {
		ArtifactLocation struct {
			URI string `json:"uri"`
		} `json:"artifactLocation"`
		Region struct {
			StartLine int           `json:"startLine"`
			Snippet   *sarifMessage `json:"snippet,omitempty"`
		} `json:"region"`
	} `json:"physicalLocation"`
}

func WriteSARIF(runID, outDir string, run *ir.Run) (string, error) {
	return writeFile(outDir, runID+".sarif", func(w io.Writer) error {
		return EncodeSARIF(w, run, rules.Builtin())
	})
}

// EncodeSARIF writes run as a SARIF 2.1.0 log. Rule metadata comes from cat;
// findings of rules cat does not know still get a minimal rule entry.
func EncodeSARIF(w io.Writer, run *ir.Run, cat *rules.Catalog) error {
	var (
		driverRules []sarifRule
		ruleIndex   = map[string]int{}
	)
	addRule := func(f ir.Finding) int {
		if i, ok := ruleIndex[f.RuleID]; ok {
			return i
		}
		sr := sarifRule{ID: f.RuleID, Name: f.RuleName, HelpURI: f.HelpURI}
		sr.ShortDescription.Text = f.RuleName
		sr.FullDescription.Text = f.Message
		sr.Help.Text = f.Message
		sr.Properties.Severity = f.Severity
		if r, ok := cat.Get(f.RuleID); ok {
			sr.Name = r.Name
			sr.ShortDescription.Text = r.Name
			sr.FullDescription.Text = r.Description
			sr.Help.Text = r.Remediation + "\n\nSee " + r.ReferenceURL
			sr.HelpURI = r.ReferenceURL
			sr.Properties.Tags = []string{"security", string(r.Category)}
			if r.CWE != "" {
				sr.Properties.Tags = append(sr.Properties.Tags, r.CWE)
			}
		}
		ruleIndex[f.RuleID] = len(driverRules)
		driverRules = append(driverRules, sr)
		return len(driverRules) - 1
	}

	results := make([]sarifResult, 0, len(run.Findings))
	for _, f := range run.Findings {
		idx := addRule(f)
		start := f.Line
		if start <= 0 {
			start = 1
		}
		var loc sarifLocation
		loc.PhysicalLocation.ArtifactLocation.URI = toURI(f.Source)
		loc.PhysicalLocation.Region.StartLine = start
		if f.Text != "" {
			loc.PhysicalLocation.Region.Snippet = &sarifMessage{Text: f.Text}
		}
		results = append(results, sarifResult{
			RuleID:    f.RuleID,
			RuleIndex: idx,
			Level:     sevToLevel(f.Severity),
			Message:   sarifMessage{Text: strings.TrimSpace(f.Message)},
			Locations: []sarifLocation{loc},
		})
	}
	if driverRules == nil {
		driverRules = []sarifRule{}
	}

	log := sarifLog{
		Version: "2.1.0",
		Schema:  "https://schemastore.azurewebsites.net/schemas/json/sarif-2.1.0-rtm.5.json",
		Runs: []sarifRun{{
			Tool: sarifTool{Driver: sarifDriver{
				Name:           "mongo-safe",
				Version:        ToolVersion,
				InformationURI: "https://github.com/nhd2106/mongo-safe",
				Rules:          driverRules,
			}},
			Results: results,
		}},
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(log)
}

func sevToLevel(s string) string {
	switch strings.ToLower(s) {
	case "high":
		return "error"
	case "medium":
		return "warning"
	default:
		return "note"
	}
}

func toURI(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "UNKNOWN"
	}
	p = filepath.ToSlash(p)
	for strings.HasPrefix(p, "../") {
		p = strings.TrimPrefix(p, "../")
	}
	return strings.TrimPrefix(p, "./")
}
