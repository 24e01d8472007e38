package diagnostics

import (
	"sync"

	"github.com/nhd2106/mongo-safe/internal/engine"
)

// Panel is the single detail view. Showing a finding replaces whatever the
// panel displayed before.
type Panel struct {
	render func(engine.Finding) string

	mu      sync.Mutex
	current *engine.Finding
	content string
	closed  bool
}

func NewPanel(render func(engine.Finding) string) *Panel {
	return &Panel{render: render}
}

// Show renders f into the panel, reopening it if it was closed.
func (p *Panel) Show(f engine.Finding) string {
	out := p.render(f)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = &f
	p.content = out
	p.closed = false
	return out
}

// Current returns the displayed finding, if any.
func (p *Panel) Current() (engine.Finding, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.current == nil {
		return engine.Finding{}, false
	}
	return *p.current, true
}

func (p *Panel) Content() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.content
}

func (p *Panel) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.current = nil
	p.content = ""
}
