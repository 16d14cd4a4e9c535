// Package styles holds the lipgloss palette and text styles of the tram CLI.
package styles

import (
	"strconv"

	"github.com/charmbracelet/lipgloss"
)

// Palette
var (
	Primary      = lipgloss.Color("#0EA5E9") // Sky
	PrimaryLight = lipgloss.Color("#7DD3FC")
	Secondary    = lipgloss.Color("#F59E0B") // Amber

	Success = lipgloss.Color("#22C55E")
	Warning = lipgloss.Color("#EAB308")
	Error   = lipgloss.Color("#EF4444")
	Info    = lipgloss.Color("#6366F1")

	Text      = lipgloss.Color("#F8FAFC")
	TextMuted = lipgloss.Color("#94A3B8")
	Surface   = lipgloss.Color("#1E293B")
	Border    = lipgloss.Color("#334155")
)

// Text styles
var (
	Bold = lipgloss.NewStyle().Bold(true)

	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(Primary).
		MarginBottom(1)

	Subtitle = lipgloss.NewStyle().
			Bold(true).
			Foreground(PrimaryLight)

	Normal = lipgloss.NewStyle().Foreground(Text)

	Muted = lipgloss.NewStyle().Foreground(TextMuted)

	Highlight = lipgloss.NewStyle().
			Bold(true).
			Foreground(Secondary)

	Code = lipgloss.NewStyle().
		Foreground(Secondary).
		Background(Surface).
		Padding(0, 1)
)

// Status styles
var (
	SuccessStyle = lipgloss.NewStyle().Foreground(Success)
	WarningStyle = lipgloss.NewStyle().Foreground(Warning)
	ErrorStyle   = lipgloss.NewStyle().Foreground(Error)
	InfoStyle    = lipgloss.NewStyle().Foreground(Info)
)

// Icons
const (
	IconSuccess  = "✓"
	IconError    = "✗"
	IconWarning  = "⚠"
	IconInfo     = "ℹ"
	IconArrow    = "→"
	IconDot      = "•"
	IconPending  = "◌"
	IconDatabase = "🗄️"
	IconTram     = "🚋"
)

func roundedBox(border lipgloss.Color) lipgloss.Style {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(border).
		Padding(1, 2)
}

// Boxes
var (
	Box        = roundedBox(Border)
	BoxSuccess = roundedBox(Success)
	BoxError   = roundedBox(Error)
	InfoBox    = roundedBox(Info).MarginTop(1)
)

// Indent pads text two columns to the right.
var Indent = lipgloss.NewStyle().PaddingLeft(2)

// FormatSuccess formats a success message with icon
func FormatSuccess(msg string) string {
	return SuccessStyle.Render(IconSuccess) + " " + Normal.Render(msg)
}

// FormatError formats an error message with icon
func FormatError(msg string) string {
	return ErrorStyle.Render(IconError) + " " + Normal.Render(msg)
}

// FormatWarning formats a warning message with icon
func FormatWarning(msg string) string {
	return WarningStyle.Render(IconWarning) + " " + Normal.Render(msg)
}

// FormatInfo formats an info message with icon
func FormatInfo(msg string) string {
	return InfoStyle.Render(IconInfo) + " " + Normal.Render(msg)
}

// FormatStep formats step n of total.
func FormatStep(step, total int, msg string) string {
	label := "[" + strconv.Itoa(step) + "/" + strconv.Itoa(total) + "]"
	return lipgloss.NewStyle().Foreground(TextMuted).Width(8).Render(label) + " " + msg
}

// FormatKeyValue formats a key-value pair
func FormatKeyValue(key, value string) string {
	return lipgloss.NewStyle().Foreground(TextMuted).Width(20).Render(key+":") + " " + Highlight.Render(value)
}

// DisableColors clears the palette for terminals without color support.
func DisableColors() {
	for _, c := range []*lipgloss.Color{
		&Primary, &PrimaryLight, &Secondary,
		&Success, &Warning, &Error, &Info,
		&Text, &TextMuted, &Surface, &Border,
	} {
		*c = lipgloss.Color("")
	}

	Title = Title.UnsetForeground()
	Subtitle = Subtitle.UnsetForeground()
	Normal = Normal.UnsetForeground()
	Muted = Muted.UnsetForeground()
	Highlight = Highlight.UnsetForeground()
	Code = Code.UnsetForeground().UnsetBackground()
	SuccessStyle = SuccessStyle.UnsetForeground()
	WarningStyle = WarningStyle.UnsetForeground()
	ErrorStyle = ErrorStyle.UnsetForeground()
	InfoStyle = InfoStyle.UnsetForeground()
}
