package monitor

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Dashboard color palette
const (
	ColorDarkBg    = lipgloss.Color("#0A0A0F")
	ColorSurfaceBg = lipgloss.Color("#12121A")
	ColorBorder    = lipgloss.Color("#2A2A4A")

	ColorHealthy  = lipgloss.Color("#39FF14")
	ColorWarning  = lipgloss.Color("#FFAA00")
	ColorCritical = lipgloss.Color("#FF0055")

	ColorTextPrimary   = lipgloss.Color("#FFFFFF")
	ColorTextSecondary = lipgloss.Color("#B4B4D0")
	ColorTextMuted     = lipgloss.Color("#6B6B8D")

	ColorAccent    = lipgloss.Color("#FF2E97")
	ColorAccentDim = lipgloss.Color("#BF40FF")

	ColorGraph = lipgloss.Color("#00FFFF")
)

// Thresholds for percentage severity
const (
	WarningThreshold  = 70.0
	CriticalThreshold = 90.0
)

var (
	HeaderStyle = lipgloss.NewStyle().
			Foreground(ColorTextPrimary).
			Background(ColorSurfaceBg).
			Bold(true).
			Padding(0, 1)

	FooterStyle = lipgloss.NewStyle().
			Foreground(ColorTextMuted).
			Padding(0, 1)

	SidebarStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder).
			Padding(0, 1).
			MarginRight(1)

	PanelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder).
			Padding(0, 1)

	TabStyle = lipgloss.NewStyle().
			Foreground(ColorTextMuted).
			Padding(0, 1)

	TabActiveStyle = lipgloss.NewStyle().
			Foreground(ColorAccent).
			Bold(true).
			Underline(true).
			Padding(0, 1)

	TitleStyle = lipgloss.NewStyle().
			Foreground(ColorAccent).
			Bold(true)

	LabelStyle = lipgloss.NewStyle().
			Foreground(ColorTextSecondary)

	ValueStyle = lipgloss.NewStyle().
			Foreground(ColorTextPrimary).
			Bold(true)

	MutedStyle = lipgloss.NewStyle().
			Foreground(ColorTextMuted)

	SuggestionStyle = lipgloss.NewStyle().
			Foreground(ColorAccentDim).
			Italic(true)
)

// Status glyphs
const (
	GlyphLive         = "◉"
	GlyphReconnecting = "◔"
	GlyphError        = "✗"
	GlyphDisconnected = "◌"
	GlyphPaused       = "॥"
)

// ConnectingSpinnerFrames rotate while a stream is connecting.
var ConnectingSpinnerFrames = []string{"◐", "◓", "◑", "◒"}

// ConnectingTextFrames animate the connecting label.
var ConnectingTextFrames = []string{
	"connecting",
	"connecting.",
	"connecting..",
	"connecting...",
}

// ConnectingTextSlowdown is how many spinner frames pass per text frame.
const ConnectingTextSlowdown = 3

// StatusColor returns the color for a stream status.
func StatusColor(s Status) lipgloss.Color {
	switch s {
	case StatusLive:
		return ColorHealthy
	case StatusConnecting, StatusReconnecting:
		return ColorWarning
	case StatusError:
		return ColorCritical
	default:
		return ColorTextMuted
	}
}

// MetricColor returns the color for a percentage-based metric:
// green below 70, amber below 90, red above.
func MetricColor(percent float64) lipgloss.Color {
	switch {
	case percent >= CriticalThreshold:
		return ColorCritical
	case percent >= WarningThreshold:
		return ColorWarning
	default:
		return ColorHealthy
	}
}

// MetricStyle returns a foreground style for a percentage.
func MetricStyle(percent float64) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(MetricColor(percent))
}

// ProgressBar renders a bracketless bar colored by threshold.
func ProgressBar(width int, percent float64) string {
	if width < 1 {
		width = 1
	}
	percent = clampPercent(percent)

	filled := int(percent / 100.0 * float64(width))
	if filled > width {
		filled = width
	}
	bar := strings.Repeat("▰", filled) + strings.Repeat("▱", width-filled)
	return MetricStyle(percent).Render(bar)
}

// SectionHeader renders ╭─ Title ───── Value ╮ across width.
func SectionHeader(title, value string, width int) string {
	if width < 10 {
		width = 10
	}

	leftWidth := 3 + lipgloss.Width(title) + 1
	rightWidth := 1 + lipgloss.Width(value) + 2
	fillWidth := width - leftWidth - rightWidth
	if fillWidth < 1 {
		fillWidth = 1
	}

	borderStyle := lipgloss.NewStyle().Foreground(ColorBorder)
	valueStyle := lipgloss.NewStyle().Foreground(ColorGraph).Bold(true)

	return borderStyle.Render("╭─ ") +
		TitleStyle.Render(title) +
		borderStyle.Render(" "+strings.Repeat("─", fillWidth)+" ") +
		valueStyle.Render(value) +
		borderStyle.Render(" ╮")
}

func clampPercent(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
