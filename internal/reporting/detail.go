package reporting

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"

	"github.com/nhd2106/mongo-safe/internal/ir"
	"github.com/nhd2106/mongo-safe/internal/present"
	"github.com/nhd2106/mongo-safe/internal/rules"
)

const fence = "```"

// DetailMarkdown formats one finding for a reader: the rule name and
// severity, why it matters, the matched line, an unsafe and a safe example,
// and where to read more. r may be nil for rules no longer in the catalog.
func DetailMarkdown(f ir.Finding, r *rules.Rule) string {
	var b strings.Builder
	name := f.RuleName
	if r != nil {
		name = r.Name
	}
	fmt.Fprintf(&b, "# %s %s\n\n", present.Icon(f.Severity), name)
	fmt.Fprintf(&b, "**Severity:** %s &nbsp; **Rule:** `%s`", present.Label(f.Severity), f.RuleID)
	if r != nil && r.CWE != "" {
		fmt.Fprintf(&b, " &nbsp; **%s**", r.CWE)
	}
	b.WriteString("\n\n")
	if f.Source != "" {
		fmt.Fprintf(&b, "**Location:** `%s:%d`\n\n", f.Source, f.Line)
	}

	b.WriteString("## Matched code\n\n")
	fmt.Fprintf(&b, "%sjs\n%s\n%s\n\n", fence, f.Text, fence)

	if r == nil {
		fmt.Fprintf(&b, "%s\n", f.Message)
		if f.HelpURI != "" {
			fmt.Fprintf(&b, "\n[Reference](%s)\n", f.HelpURI)
		}
		return b.String()
	}

	fmt.Fprintf(&b, "## Why this is risky\n\n%s\n\n", r.Description)
	fmt.Fprintf(&b, "## How to fix\n\n%s\n\n", r.Remediation)
	if r.UnsafeExample != "" {
		fmt.Fprintf(&b, "### Unsafe\n\n%sjs\n%s\n%s\n\n", fence, r.UnsafeExample, fence)
	}
	if r.SafeExample != "" {
		fmt.Fprintf(&b, "### Safe\n\n%sjs\n%s\n%s\n\n", fence, r.SafeExample, fence)
	}
	fmt.Fprintf(&b, "## Reference\n\n<%s>\n", r.ReferenceURL)
	return b.String()
}

// RuleMarkdown documents a catalog rule on its own, without a finding.
func RuleMarkdown(r *rules.Rule) string {
	var b strings.Builder
	sev := r.Severity.String()
	fmt.Fprintf(&b, "# %s %s\n\n", present.Icon(sev), r.Name)
	fmt.Fprintf(&b, "**Severity:** %s &nbsp; **Rule:** `%s` &nbsp; **Category:** %s", present.Label(sev), r.ID, r.Category)
	if r.CWE != "" {
		fmt.Fprintf(&b, " &nbsp; **%s**", r.CWE)
	}
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "%s\n\n", r.Description)
	fmt.Fprintf(&b, "## How to fix\n\n%s\n\n", r.Remediation)
	if r.UnsafeExample != "" {
		fmt.Fprintf(&b, "### Unsafe\n\n%sjs\n%s\n%s\n\n", fence, r.UnsafeExample, fence)
	}
	if r.SafeExample != "" {
		fmt.Fprintf(&b, "### Safe\n\n%sjs\n%s\n%s\n\n", fence, r.SafeExample, fence)
	}
	fmt.Fprintf(&b, "## Pattern\n\n%s\n%s\n%s\n\n", fence, r.Pattern, fence)
	fmt.Fprintf(&b, "## Reference\n\n<%s>\n", r.ReferenceURL)
	return b.String()
}

type DetailOptions struct {
	Plain bool // return the markdown untouched
	Width int  // 0 = renderer default
}

// RenderDetail renders md for a terminal. Rendering failures fall back to
// the raw markdown.
func RenderDetail(md string, opts DetailOptions) string {
	if opts.Plain {
		return md
	}
	options := []glamour.TermRendererOption{glamour.WithAutoStyle()}
	if opts.Width > 0 {
		options = append(options, glamour.WithWordWrap(opts.Width))
	}
	r, err := glamour.NewTermRenderer(options...)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return out
}

// ColorTerminal reports whether f is an interactive terminal that can show
// colour. NO_COLOR always wins.
func ColorTerminal(f *os.File) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd()) {
		return false
	}
	return termenv.ColorProfile() != termenv.Ascii
}
