package rules

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
)

// ErrInvalidCatalog is wrapped by every catalog construction failure.
var ErrInvalidCatalog = errors.New("invalid rule catalog")

// ConfigError lists every problem found while building a catalog.
type ConfigError struct {
	Problems []string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidCatalog, strings.Join(e.Problems, "; "))
}

func (e *ConfigError) Unwrap() error { return ErrInvalidCatalog }

// Catalog is an ordered, immutable collection of compiled rules.
type Catalog struct {
	rules []*Rule
	index map[string]int // UPPER(id) -> position
}

// NewCatalog validates and compiles defs, keeping their order.
func NewCatalog(defs []Rule) (*Catalog, error) {
	c := &Catalog{
		rules: make([]*Rule, 0, len(defs)),
		index: make(map[string]int, len(defs)),
	}
	var problems []string
	for i := range defs {
		r := defs[i]
		r.ID = strings.TrimSpace(r.ID)
		at := fmt.Sprintf("rule[%d]", i)
		if r.ID != "" {
			at = fmt.Sprintf("rule %q", r.ID)
		}

		if r.ID == "" {
			problems = append(problems, at+": id is required")
		} else if _, dup := c.index[strings.ToUpper(r.ID)]; dup {
			problems = append(problems, at+": duplicate id")
		}
		if strings.TrimSpace(r.Name) == "" {
			problems = append(problems, at+": name is required")
		}
		if !r.Severity.Valid() {
			problems = append(problems, fmt.Sprintf("%s: severity %q must be low|medium|high", at, r.Severity))
		}
		if strings.TrimSpace(r.Pattern) == "" {
			problems = append(problems, at+": pattern is required")
		} else {
			re, err := compilePattern(r.Pattern)
			if err != nil {
				problems = append(problems, fmt.Sprintf("%s: pattern: %v", at, err))
			}
			r.re = re
		}
		if err := validReference(r.ReferenceURL); err != nil {
			problems = append(problems, fmt.Sprintf("%s: reference url: %v", at, err))
		}

		if r.ID != "" {
			if _, dup := c.index[strings.ToUpper(r.ID)]; !dup {
				c.index[strings.ToUpper(r.ID)] = len(c.rules)
			}
		}
		c.rules = append(c.rules, &r)
	}
	if len(problems) > 0 {
		return nil, &ConfigError{Problems: problems}
	}
	return c, nil
}

func validReference(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return errors.New("required")
	}
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme %q not allowed", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}

var (
	builtinOnce sync.Once
	builtin     *Catalog
)

// Builtin returns the process-wide catalog of built-in rules. A malformed
// built-in table is a programming error and panics on first use.
func Builtin() *Catalog {
	builtinOnce.Do(func() {
		c, err := NewCatalog(builtinRules)
		if err != nil {
			panic(err)
		}
		builtin = c
	})
	return builtin
}

// All returns every rule in catalog order. The slice is a copy.
func (c *Catalog) All() []*Rule {
	out := make([]*Rule, len(c.rules))
	copy(out, c.rules)
	return out
}

func (c *Catalog) Len() int { return len(c.rules) }

// Get returns a rule by id (case-insensitive).
func (c *Catalog) Get(id string) (*Rule, bool) {
	idx, ok := c.index[strings.ToUpper(strings.TrimSpace(id))]
	if !ok {
		return nil, false
	}
	return c.rules[idx], true
}

// Position is the rule's index in catalog order, or -1.
func (c *Catalog) Position(id string) int {
	idx, ok := c.index[strings.ToUpper(strings.TrimSpace(id))]
	if !ok {
		return -1
	}
	return idx
}

// Select returns the rules enabled by s, in catalog order.
func (c *Catalog) Select(s Settings) []*Rule {
	s = s.withDefaults()
	out := make([]*Rule, 0, len(c.rules))
	for _, r := range c.rules {
		if s.Disabled[strings.ToUpper(r.ID)] {
			continue
		}
		if r.Severity.Rank() < s.Threshold.Rank() {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Extend returns a new catalog with defs appended after the receiver's
// rules. The receiver is left untouched.
func (c *Catalog) Extend(defs []Rule) (*Catalog, error) {
	all := make([]Rule, 0, len(c.rules)+len(defs))
	for _, r := range c.rules {
		all = append(all, *r)
	}
	all = append(all, defs...)
	return NewCatalog(all)
}
