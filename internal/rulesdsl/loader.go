// Package rulesdsl reads custom rule packs (YAML or TOML) and writes the
// catalog back out in the same format.
package rulesdsl

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/nhd2106/mongo-safe/internal/rules"
)

type dslPack struct {
	Rules []dslRule `yaml:"rules" toml:"rules"`
}

type dslRule struct {
	ID            string `yaml:"id" toml:"id"`
	Name          string `yaml:"name" toml:"name"`
	Category      string `yaml:"category,omitempty" toml:"category,omitempty"`
	Severity      string `yaml:"severity" toml:"severity"` // low|medium|high
	CWE           string `yaml:"cwe,omitempty" toml:"cwe,omitempty"`
	Pattern       string `yaml:"pattern" toml:"pattern"` // case-insensitive, one line
	Description   string `yaml:"description" toml:"description"`
	Remediation   string `yaml:"remediation" toml:"remediation"`
	UnsafeExample string `yaml:"unsafe_example,omitempty" toml:"unsafe_example,omitempty"`
	SafeExample   string `yaml:"safe_example,omitempty" toml:"safe_example,omitempty"`
	ReferenceURL  string `yaml:"reference_url" toml:"reference_url"`
}

// Load reads a rule pack. The format follows the file extension: .toml is
// TOML, anything else is YAML. Rules are not compiled here; pass them to
// (*rules.Catalog).Extend.
func Load(path string) ([]rules.Rule, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules pack: %w", err)
	}
	defs, err := Parse(b, formatFor(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return defs, nil
}

// Parse decodes a pack in format "yaml" or "toml".
func Parse(b []byte, format string) ([]rules.Rule, error) {
	var pack dslPack
	switch format {
	case "toml":
		if err := toml.Unmarshal(b, &pack); err != nil {
			return nil, fmt.Errorf("parse toml: %w", err)
		}
	default:
		if err := yaml.Unmarshal(b, &pack); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
	}
	out := make([]rules.Rule, 0, len(pack.Rules))
	for _, r := range pack.Rules {
		sev, _ := rules.ParseSeverity(r.Severity)
		if sev == "" {
			// keep the raw value so catalog validation reports it
			sev = rules.Severity(r.Severity)
		}
		out = append(out, rules.Rule{
			ID:            strings.TrimSpace(r.ID),
			Name:          r.Name,
			Category:      rules.Category(strings.ToLower(r.Category)),
			Severity:      sev,
			CWE:           r.CWE,
			Pattern:       r.Pattern,
			Description:   r.Description,
			Remediation:   r.Remediation,
			UnsafeExample: r.UnsafeExample,
			SafeExample:   r.SafeExample,
			ReferenceURL:  r.ReferenceURL,
		})
	}
	return out, nil
}

// LoadPacks extends base with every pack in order. The first invalid pack
// aborts with its catalog error.
func LoadPacks(base *rules.Catalog, paths []string) (*rules.Catalog, error) {
	cat := base
	for _, p := range paths {
		defs, err := Load(p)
		if err != nil {
			return nil, err
		}
		next, err := cat.Extend(defs)
		if err != nil {
			return nil, fmt.Errorf("rules pack %s: %w", p, err)
		}
		cat = next
	}
	return cat, nil
}

// Export encodes rs as a pack in format "yaml" or "toml".
func Export(rs []*rules.Rule, format string) ([]byte, error) {
	pack := dslPack{Rules: make([]dslRule, 0, len(rs))}
	for _, r := range rs {
		pack.Rules = append(pack.Rules, dslRule{
			ID:            r.ID,
			Name:          r.Name,
			Category:      string(r.Category),
			Severity:      r.Severity.String(),
			CWE:           r.CWE,
			Pattern:       r.Pattern,
			Description:   r.Description,
			Remediation:   r.Remediation,
			UnsafeExample: r.UnsafeExample,
			SafeExample:   r.SafeExample,
			ReferenceURL:  r.ReferenceURL,
		})
	}
	var buf bytes.Buffer
	switch format {
	case "toml":
		if err := toml.NewEncoder(&buf).Encode(pack); err != nil {
			return nil, fmt.Errorf("encode toml: %w", err)
		}
	default:
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(pack); err != nil {
			return nil, fmt.Errorf("encode yaml: %w", err)
		}
		_ = enc.Close()
	}
	return buf.Bytes(), nil
}

func formatFor(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return "toml"
	}
	return "yaml"
}
