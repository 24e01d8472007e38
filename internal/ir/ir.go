package ir

import "time"

const Version = "1.0"

type Run struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"started_at"`
	Source    string    `json:"source,omitempty"`
	IRVersion string    `json:"ir_version,omitempty"`

	Context  Context   `json:"context"`
	Files    []File    `json:"files"`
	Findings []Finding `json:"findings,omitempty"`
	Summary  Summary   `json:"summary"`
}

type Context struct {
	RuleSeverityThreshold string   `json:"rule_severity_threshold,omitempty"`
	DisabledRules         []string `json:"disabled_rules,omitempty"`
	RulePacks             []string `json:"rule_packs,omitempty"`
	Workers               int      `json:"workers,omitempty"`
	Waived                int      `json:"waived,omitempty"`
}

// File is one scanned source document.
type File struct {
	Path     string `json:"path"`
	Lines    int    `json:"lines"`
	Bytes    int    `json:"bytes"`
	Findings int    `json:"findings"`
	Score    int    `json:"score"`
	Grade    string `json:"grade"`
}

type Finding struct {
	ID       string `json:"id"`
	RuleID   string `json:"rule_id"`
	RuleName string `json:"rule_name"`
	Category string `json:"category"`
	Severity string `json:"severity"` // low|medium|high
	Source   string `json:"source"`
	Line     int    `json:"line"` // 1-based
	Text     string `json:"text"` // trimmed source line
	Message  string `json:"message"`
	HelpURI  string `json:"help_uri,omitempty"`
	// Order is the rule's catalog position, used as the tie-break on a line.
	Order int `json:"order"`
}

type Summary struct {
	Files      int            `json:"files"`
	Lines      int            `json:"lines"`
	Findings   int            `json:"findings"`
	Score      int            `json:"score"`
	Grade      string         `json:"grade"`
	BySeverity map[string]int `json:"by_severity"`
	ByCategory map[string]int `json:"by_category"`
}
