package rules

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dlclark/regexp2"
)

// Severity is the risk tier of a rule. Ordered high > medium > low.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Rank returns 3/2/1 for high/medium/low and 0 for anything else.
func (s Severity) Rank() int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

func (s Severity) Valid() bool { return s.Rank() > 0 }

func (s Severity) String() string { return string(s) }

// ParseSeverity accepts any casing and surrounding blanks. Unknown input
// yields the empty Severity and false.
func ParseSeverity(v string) (Severity, bool) {
	s := Severity(strings.ToLower(strings.TrimSpace(v)))
	if !s.Valid() {
		return "", false
	}
	return s, true
}

// Category groups rules by the kind of weakness they point at.
type Category string

const (
	CategoryInjection     Category = "injection"
	CategoryExposure      Category = "exposure"
	CategoryAuth          Category = "auth"
	CategoryDoS           Category = "dos"
	CategoryErrorHandling Category = "error-handling"
)

// Rule is a single line-level detector plus the remediation metadata shown
// to whoever reads the finding. Rules are built by NewCatalog and are never
// mutated afterwards.
type Rule struct {
	ID       string
	Name     string
	Category Category
	Severity Severity
	CWE      string
	// Pattern is matched case-insensitively against one line at a time.
	Pattern       string
	Description   string
	Remediation   string
	UnsafeExample string
	SafeExample   string
	ReferenceURL  string

	re *regexp2.Regexp
}

// matchTimeout bounds a single pattern evaluation against one line.
const matchTimeout = 250 * time.Millisecond

// Match reports whether the rule's pattern matches anywhere in line.
// A pattern evaluation that errors (for example a timeout) is a non-match.
func (r *Rule) Match(line string) bool {
	if r == nil || r.re == nil {
		return false
	}
	ok, err := r.re.MatchString(line)
	return err == nil && ok
}

// Locate returns the byte offsets of the first match in line.
func (r *Rule) Locate(line string) (start, end int, ok bool) {
	if r == nil || r.re == nil {
		return 0, 0, false
	}
	m, err := r.re.FindStringMatch(line)
	if err != nil || m == nil {
		return 0, 0, false
	}
	start = byteOffset(line, 0, m.Index)
	end = byteOffset(line, start, m.Length)
	return start, end, true
}

// byteOffset advances n runes from byte position from. regexp2 counts an
// invalid byte as one rune, and so does utf8.DecodeRuneInString.
func byteOffset(line string, from, n int) int {
	i := from
	for ; n > 0 && i < len(line); n-- {
		_, size := utf8.DecodeRuneInString(line[i:])
		i += size
	}
	return i
}

func compilePattern(p string) (*regexp2.Regexp, error) {
	re, err := regexp2.Compile(p, regexp2.IgnoreCase)
	if err != nil {
		return nil, err
	}
	re.MatchTimeout = matchTimeout
	return re, nil
}
