package rules

import (
	"strings"

	"github.com/sahilm/fuzzy"
)

// Search ranks rules by a fuzzy match of query against "ID name category".
// An empty query returns every rule in catalog order.
func (c *Catalog) Search(query string) []*Rule {
	query = strings.TrimSpace(query)
	if query == "" {
		return c.All()
	}
	keys := make([]string, len(c.rules))
	for i, r := range c.rules {
		keys[i] = strings.ToLower(r.ID + " " + r.Name + " " + string(r.Category))
	}
	matches := fuzzy.Find(strings.ToLower(query), keys)
	out := make([]*Rule, 0, len(matches))
	for _, m := range matches {
		out = append(out, c.rules[m.Index])
	}
	return out
}
