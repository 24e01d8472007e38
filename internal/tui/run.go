package tui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhd2106/mongo-safe/internal/ir"
)

func Run(findings []ir.Finding, opts Options) error {
	p := tea.NewProgram(newModel(findings, opts), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run findings tui: %w", err)
	}
	return nil
}
