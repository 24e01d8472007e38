// Package tui is the interactive findings browser: a table of findings and
// a detail view for the selected one.
package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhd2106/mongo-safe/internal/ir"
	"github.com/nhd2106/mongo-safe/internal/present"
	"github.com/nhd2106/mongo-safe/internal/reporting"
	"github.com/nhd2106/mongo-safe/internal/rules"
)

type viewState int

const (
	viewList viewState = iota
	viewDetail
)

var (
	colorBorder = lipgloss.Color("62")
	colorGray   = lipgloss.Color("240")

	styleTitle = lipgloss.NewStyle().
			Background(colorBorder).
			Foreground(lipgloss.Color("#FFF")).
			Bold(true).
			Padding(0, 1)

	styleHelp = lipgloss.NewStyle().Foreground(colorGray)
)

const helpList = "↑/↓ move | enter details | s min severity | q quit"
const helpDetail = "↑/↓ scroll | esc back | q quit"

// Renderer turns detail markdown into terminal text at the given width.
type Renderer func(md string, width int) string

type Options struct {
	Title    string
	Catalog  *rules.Catalog // nil = rules.Builtin()
	Renderer Renderer       // nil = glamour via reporting.RenderDetail
}

type model struct {
	title    string
	catalog  *rules.Catalog
	render   Renderer
	findings []ir.Finding

	minSeverity rules.Severity
	visible     []int // indexes into findings

	state  viewState
	table  table.Model
	detail viewport.Model

	width  int
	height int
}

func newModel(findings []ir.Finding, opts Options) model {
	cat := opts.Catalog
	if cat == nil {
		cat = rules.Builtin()
	}
	render := opts.Renderer
	if render == nil {
		render = func(md string, width int) string {
			return reporting.RenderDetail(md, reporting.DetailOptions{Width: width})
		}
	}
	title := opts.Title
	if title == "" {
		title = "mongo-safe"
	}

	t := table.New(
		table.WithColumns(columns(100)),
		table.WithFocused(true),
		table.WithHeight(10),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(colorGray).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	m := model{
		title:       title,
		catalog:     cat,
		render:      render,
		findings:    findings,
		minSeverity: rules.SeverityLow,
		table:       t,
		detail:      viewport.New(100, 20),
		width:       100,
		height:      30,
	}
	m.rebuild()
	return m
}

func columns(width int) []table.Column {
	text := max(20, width-10-32-24-6-8)
	return []table.Column{
		{Title: "Severity", Width: 10},
		{Title: "Rule", Width: 32},
		{Title: "Location", Width: 24},
		{Title: "Code", Width: text},
	}
}

// rebuild recomputes the visible rows for the current severity filter.
func (m *model) rebuild() {
	m.visible = make([]int, 0, len(m.findings))
	rows := make([]table.Row, 0, len(m.findings))
	for i, f := range m.findings {
		sev, _ := rules.ParseSeverity(f.Severity)
		if sev.Rank() < m.minSeverity.Rank() {
			continue
		}
		m.visible = append(m.visible, i)
		rows = append(rows, table.Row{
			present.Badge(f.Severity),
			f.RuleID,
			f.Source + ":" + strconv.Itoa(f.Line),
			f.Text,
		})
	}
	m.table.SetRows(rows)
	if m.table.Cursor() >= len(rows) {
		m.table.SetCursor(max(0, len(rows)-1))
	}
}

// selected returns the finding under the cursor.
func (m model) selected() (ir.Finding, bool) {
	c := m.table.Cursor()
	if c < 0 || c >= len(m.visible) {
		return ir.Finding{}, false
	}
	return m.findings[m.visible[c]], true
}

// listChrome is the list view's lines outside the table: title, the blank
// line under it and the help line.
const listChrome = 3

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.table.SetColumns(columns(msg.Width))
		// SetHeight covers the header block too and keeps the rest for rows
		m.table.SetHeight(max(5, msg.Height-listChrome))
		m.detail.Width = msg.Width
		m.detail.Height = max(3, msg.Height-3)
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		}
		if m.state == viewDetail {
			return m.updateDetail(msg)
		}
		return m.updateList(msg)
	}
	return m, nil
}

func (m model) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		f, ok := m.selected()
		if !ok {
			return m, nil
		}
		r, _ := m.catalog.Get(f.RuleID)
		m.detail.SetContent(m.render(reporting.DetailMarkdown(f, r), m.width))
		m.detail.GotoTop()
		m.state = viewDetail
		return m, nil
	case "s":
		m.minSeverity = nextSeverity(m.minSeverity)
		m.rebuild()
		return m, nil
	}
	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m model) updateDetail(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "backspace":
		m.state = viewList
		return m, nil
	}
	var cmd tea.Cmd
	m.detail, cmd = m.detail.Update(msg)
	return m, cmd
}

func nextSeverity(s rules.Severity) rules.Severity {
	switch s {
	case rules.SeverityLow:
		return rules.SeverityMedium
	case rules.SeverityMedium:
		return rules.SeverityHigh
	default:
		return rules.SeverityLow
	}
}

func (m model) View() string {
	if m.state == viewDetail {
		return m.detail.View() + "\n" + styleHelp.Render(helpDetail)
	}
	var b strings.Builder
	b.WriteString(styleTitle.Render(m.title))
	b.WriteString("  ")
	b.WriteString(m.counts())
	b.WriteString("\n\n")
	if len(m.visible) == 0 {
		b.WriteString("No findings at or above " + present.Label(m.minSeverity.String()) + ".\n")
	} else {
		b.WriteString(m.table.View())
		b.WriteString("\n")
	}
	b.WriteString(styleHelp.Render(fmt.Sprintf("min %s | %s", present.Label(m.minSeverity.String()), helpList)))
	return b.String()
}

func (m model) counts() string {
	n := map[string]int{}
	for _, f := range m.findings {
		n[strings.ToLower(f.Severity)]++
	}
	parts := make([]string, 0, 3)
	for _, sev := range []string{"high", "medium", "low"} {
		parts = append(parts, present.Style(sev).Render(fmt.Sprintf("%s %d", present.Icon(sev), n[sev])))
	}
	return strings.Join(parts, "  ")
}
