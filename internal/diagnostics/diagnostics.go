// Package diagnostics turns scan findings into editor-style inline markers
// and keeps the per-document state an integration needs: the latest
// version seen, the published markers and the finding behind each marker.
package diagnostics

import (
	"errors"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/nhd2106/mongo-safe/internal/engine"
	"github.com/nhd2106/mongo-safe/internal/rules"
)

var ErrClosed = errors.New("diagnostics: collection closed")

type Level int

const (
	LevelInformation Level = iota
	LevelWarning
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelError:
		return "error"
	case LevelWarning:
		return "warning"
	default:
		return "information"
	}
}

// LevelFor maps high to error, medium to warning and anything else to
// information.
func LevelFor(s rules.Severity) Level {
	switch s {
	case rules.SeverityHigh:
		return LevelError
	case rules.SeverityMedium:
		return LevelWarning
	default:
		return LevelInformation
	}
}

// Range is zero-based and end-exclusive on columns, counted in runes.
type Range struct {
	StartLine, StartCol int
	EndLine, EndCol     int
}

type Diagnostic struct {
	Range    Range
	Level    Level
	Code     string // rule id
	CodeURL  string // rule reference url
	Source   string // collection name
	Message  string
	Guidance string
}

// Key identifies one finding on one line of one document.
type Key struct {
	SourceID string
	Line     int // 1-based, as in engine.Finding
	RuleID   string
}

type document struct {
	version  int
	diags    []Diagnostic
	findings map[Key]engine.Finding
}

// Collection holds the published diagnostics of every open document. It is
// safe for concurrent use.
type Collection struct {
	name string

	mu     sync.RWMutex
	docs   map[string]*document
	closed bool
}

func NewCollection(name string) *Collection {
	return &Collection{name: name, docs: map[string]*document{}}
}

func (c *Collection) Name() string { return c.name }

// Publish replaces the diagnostics of sourceID with ones built from
// findings. A version older than the one already published is stale and
// is dropped; Publish then returns false. text is the scanned text and is
// used to size each marker to its full line.
func (c *Collection) Publish(sourceID string, version int, text string, findings []engine.Finding) bool {
	lines := strings.Split(text, "\n")
	diags := make([]Diagnostic, 0, len(findings))
	side := make(map[Key]engine.Finding, len(findings))
	for _, f := range findings {
		end := 0
		if f.Line >= 1 && f.Line <= len(lines) {
			end = utf8.RuneCountInString(lines[f.Line-1])
		}
		diags = append(diags, Diagnostic{
			Range:    Range{StartLine: f.Line - 1, StartCol: 0, EndLine: f.Line - 1, EndCol: end},
			Level:    LevelFor(f.Rule.Severity),
			Code:     f.Rule.ID,
			CodeURL:  f.Rule.ReferenceURL,
			Source:   c.name,
			Message:  f.Rule.Name + ": " + f.Rule.Description,
			Guidance: f.Rule.Remediation + " See " + f.Rule.ReferenceURL,
		})
		side[Key{SourceID: sourceID, Line: f.Line, RuleID: f.Rule.ID}] = f
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	if cur, ok := c.docs[sourceID]; ok && version < cur.version {
		return false
	}
	c.docs[sourceID] = &document{version: version, diags: diags, findings: side}
	return true
}

// Diagnostics returns a copy of what is published for sourceID.
func (c *Collection) Diagnostics(sourceID string) []Diagnostic {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.docs[sourceID]
	if !ok {
		return nil
	}
	return append([]Diagnostic(nil), d.diags...)
}

// Version is the last accepted version for sourceID, or -1.
func (c *Collection) Version(sourceID string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if d, ok := c.docs[sourceID]; ok {
		return d.version
	}
	return -1
}

// Lookup returns the finding behind a published marker.
func (c *Collection) Lookup(k Key) (engine.Finding, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.docs[k.SourceID]
	if !ok {
		return engine.Finding{}, false
	}
	f, ok := d.findings[k]
	return f, ok
}

// Sources lists documents with published state, unordered.
func (c *Collection) Sources() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.docs))
	for id := range c.docs {
		out = append(out, id)
	}
	return out
}

// Clear forgets sourceID, for example when its document is closed.
func (c *Collection) Clear(sourceID string) {
	c.mu.Lock()
	delete(c.docs, sourceID)
	c.mu.Unlock()
}

// Close drops all state. Later Publish calls are ignored.
func (c *Collection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.closed = true
	c.docs = map[string]*document{}
	return nil
}
