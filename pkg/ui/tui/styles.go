package tui

import (
	"github.com/charmbracelet/lipgloss"
)

var (
	accent    = lipgloss.Color("#4C8BF5")
	frame     = lipgloss.Color("#3B5998")
	highlight = lipgloss.Color("#F7D154")
	okGreen   = lipgloss.Color("#42B72A")
	caution   = lipgloss.Color("#F5A623")
	alertRed  = lipgloss.Color("#E4405F")
	inkBg     = lipgloss.Color("#101521")
	panelBg   = lipgloss.Color("#18202F")
	muted     = lipgloss.Color("#A8B3C4")
	faint     = lipgloss.Color("#5A6577")

	baseStyle = lipgloss.NewStyle().Background(inkBg).Foreground(muted)

	logoStyle = lipgloss.NewStyle().
			Foreground(accent).
			Bold(true).
			Align(lipgloss.Center)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(frame).
			Background(panelBg).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Background(frame).
			Foreground(lipgloss.Color("#FFFFFF")).
			Bold(true).
			Padding(0, 1).
			MarginBottom(1)

	statsLabelStyle = lipgloss.NewStyle().Foreground(accent).Bold(true).Width(14)
	statsValueStyle = lipgloss.NewStyle().Foreground(highlight)
	rateStyle       = lipgloss.NewStyle().Foreground(accent)

	successStyle = lipgloss.NewStyle().Foreground(okGreen).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(caution).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(alertRed).Bold(true)

	// Target rows in the active and queue panels
	targetRowStyle    = lipgloss.NewStyle().PaddingLeft(1)
	targetActiveStyle = lipgloss.NewStyle().Foreground(okGreen).Bold(true).PaddingLeft(1)
	targetDoneStyle   = lipgloss.NewStyle().Foreground(muted).Faint(true).PaddingLeft(1)

	barEmptyStyle = lipgloss.NewStyle().Foreground(faint)

	logTimestampStyle = lipgloss.NewStyle().Foreground(faint)
	logMessageStyle   = lipgloss.NewStyle().Foreground(muted)

	helpStyle = lipgloss.NewStyle().Foreground(faint).PaddingLeft(2)

	dropRateStyles = [...]lipgloss.Style{
		lipgloss.NewStyle().Foreground(okGreen),
		lipgloss.NewStyle().Foreground(caution),
		lipgloss.NewStyle().Foreground(alertRed).Bold(true),
	}
)

// GetDropRateStyle returns the style for a drop rate in percent
func GetDropRateStyle(percent float64) lipgloss.Style {
	switch {
	case percent >= 25:
		return dropRateStyles[2]
	case percent >= 5:
		return dropRateStyles[1]
	default:
		return dropRateStyles[0]
	}
}
