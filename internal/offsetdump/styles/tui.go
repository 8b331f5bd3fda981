package styles

import (
	"github.com/charmbracelet/lipgloss/v2"
	"github.com/charmbracelet/x/exp/charmtone"
)

// Styles shared by the browse views and the plain summary.
var (
	Title    = lipgloss.NewStyle().Foreground(lipgloss.Color("99")).MarginLeft(2)
	Selected = lipgloss.NewStyle().Foreground(lipgloss.Color("170"))
	Dim      = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	Offset   = lipgloss.NewStyle().Foreground(lipgloss.Color(charmtone.Zest.Hex()))
	OK       = lipgloss.NewStyle().Foreground(lipgloss.Color(charmtone.Guac.Hex())).Bold(true)
	Fail     = lipgloss.NewStyle().Foreground(lipgloss.Color(charmtone.Cheeky.Hex())).Bold(true)

	Menu = lipgloss.NewStyle().
		Background(lipgloss.Color("235")).
		Foreground(lipgloss.Color("252")).
		Padding(0, 1)
)
