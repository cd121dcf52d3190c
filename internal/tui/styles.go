package tui

import "github.com/charmbracelet/lipgloss"

var (
	ColorNavy  = lipgloss.Color("#1B2A4A")
	ColorWhite = lipgloss.Color("#F5F5F5")
	ColorGray  = lipgloss.Color("245")
	ColorBlue  = lipgloss.Color("39")
	ColorGreen = lipgloss.Color("42")
	ColorAmber = lipgloss.Color("214")
	ColorRed   = lipgloss.Color("196")
)

var (
	sectionStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorGray).
			Padding(0, 1)

	activeSectionStyle = sectionStyle.
				BorderForeground(ColorBlue)

	chartTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBlue)

	helpStyle = lipgloss.NewStyle().
			Foreground(ColorGray).
			Italic(true)

	kpiValueStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorWhite)
	kpiLabelStyle = lipgloss.NewStyle().Foreground(ColorGray)

	pausedBadgeStyle = lipgloss.NewStyle().
				Background(ColorAmber).
				Foreground(lipgloss.Color("0")).
				Bold(true).
				Padding(0, 1)

	errorTextStyle = lipgloss.NewStyle().Foreground(ColorRed)
	okTextStyle    = lipgloss.NewStyle().Foreground(ColorGreen)
)

// healthStyle colours a slot or pacing label.
func healthStyle(label string) lipgloss.Style {
	switch label {
	case "healthy", "on_track":
		return okTextStyle
	case "warning", "under_delivery", "over_delivery":
		return lipgloss.NewStyle().Foreground(ColorAmber)
	case "critical":
		return errorTextStyle
	default:
		return lipgloss.NewStyle()
	}
}
