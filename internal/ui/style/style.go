// Package style provides the colours, icons and lipgloss styles shared by the
// CLI report and the pretty log handler.
package style

import "github.com/charmbracelet/lipgloss"

// Palette.
var (
	Ocean  = lipgloss.Color("#1D6FA5")
	Basalt = lipgloss.Color("#3F3F46")
	Slate  = lipgloss.Color("#667085")
	Sand   = lipgloss.Color("#D6B370")
	Green  = lipgloss.Color("#22A06B")
	Red    = lipgloss.Color("#D93025")
	Yellow = lipgloss.Color("#F59E0B")
)

// Icons.
const (
	Check   = "✓"
	Cross   = "✗"
	Warning = "!"
	Dot     = "●"
)

// Report styles.
var (
	Title = lipgloss.NewStyle().Bold(true).Foreground(Ocean)
	Label = lipgloss.NewStyle().Foreground(Slate).Width(22)
	Value = lipgloss.NewStyle().Bold(true)
	Good  = lipgloss.NewStyle().Foreground(Green)
	Box   = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(Basalt).
		Padding(0, 1)
)
