package rules

import "strings"

// Settings narrows a catalog for a particular run.
type Settings struct {
	Threshold Severity
	Disabled  map[string]bool // UPPER(rule id) -> disabled
}

// NewSettings builds Settings from loosely typed config values.
func NewSettings(threshold string, disabled []string) Settings {
	s := Settings{Disabled: map[string]bool{}}
	if sev, ok := ParseSeverity(threshold); ok {
		s.Threshold = sev
	}
	for _, id := range disabled {
		id = strings.ToUpper(strings.TrimSpace(id))
		if id != "" {
			s.Disabled[id] = true
		}
	}
	return s
}

func (s Settings) withDefaults() Settings {
	if !s.Threshold.Valid() {
		s.Threshold = SeverityLow
	}
	if s.Disabled == nil {
		s.Disabled = map[string]bool{}
	}
	return s
}

// DisabledIDs returns the disabled rule ids, unordered.
func (s Settings) DisabledIDs() []string {
	out := make([]string, 0, len(s.Disabled))
	for id, off := range s.Disabled {
		if off {
			out = append(out, id)
		}
	}
	return out
}
