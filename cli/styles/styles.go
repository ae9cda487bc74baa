// Package styles is the single source of truth for the behave CLI's
// terminal appearance. Every command renders through the colors,
// icons, and lipgloss styles defined here so the output stays
// consistent across subcommands.
package styles

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// Color palette. Violet primary with a slate neutral scale.
var (
	Primary       = lipgloss.Color("#7C3AED") // Violet
	PrimaryLight  = lipgloss.Color("#A78BFA")
	PrimaryDark   = lipgloss.Color("#5B21B6")
	Secondary     = lipgloss.Color("#06B6D4") // Cyan accent
	SecondaryDark = lipgloss.Color("#0E7490")

	Success      = lipgloss.Color("#22C55E") // Green
	SuccessLight = lipgloss.Color("#4ADE80")
	Warning      = lipgloss.Color("#EAB308") // Yellow
	WarningLight = lipgloss.Color("#FACC15")
	Error        = lipgloss.Color("#DC2626") // Red
	ErrorLight   = lipgloss.Color("#FCA5A5")
	Info         = lipgloss.Color("#0EA5E9") // Sky blue
	InfoLight    = lipgloss.Color("#38BDF8")

	Text       = lipgloss.Color("#F8FAFC") // Near white
	TextMuted  = lipgloss.Color("#94A3B8") // Slate
	TextDim    = lipgloss.Color("#64748B") // Darker slate
	Background = lipgloss.Color("#0F172A")
	Surface    = lipgloss.Color("#1E293B")
	Border     = lipgloss.Color("#334155")

	Accent1 = lipgloss.Color("#F472B6") // Pink
	Accent2 = lipgloss.Color("#A855F7") // Purple
	Accent3 = lipgloss.Color("#FB923C") // Orange
)

func colored(c lipgloss.Color) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(c)
}

func coloredBold(c lipgloss.Color) lipgloss.Style {
	return lipgloss.NewStyle().Bold(true).Foreground(c)
}

// Core text styles.
var (
	// Bold text without a color of its own
	Bold = lipgloss.NewStyle().Bold(true)

	// Title for top level headers
	Title = coloredBold(Primary).MarginBottom(1)

	// Subtitle for section headers
	Subtitle = coloredBold(PrimaryLight)

	// Normal body text
	Normal = colored(Text)

	// Muted for de-emphasized text
	Muted = colored(TextMuted)

	// Dim for barely visible text
	Dim = colored(TextDim)

	// Highlight for values worth drawing the eye to
	Highlight = coloredBold(Secondary)

	// Code for inline code fragments
	Code = colored(WarningLight).Background(Surface).Padding(0, 1)
)

// Status styles, one plain and one bold variant per severity.
var (
	SuccessStyle = colored(Success)
	SuccessBold  = coloredBold(Success)
	WarningStyle = colored(Warning)
	WarningBold  = coloredBold(Warning)
	ErrorStyle   = colored(Error)
	ErrorBold    = coloredBold(Error)
	InfoStyle    = colored(Info)
	InfoBold     = coloredBold(Info)
)

// Icons used as status and category markers in command output.
const (
	IconSuccess = "✓"
	IconError   = "✗"
	IconWarning = "⚠"
	IconInfo    = "ℹ"
	IconArrow   = "→"
	IconDot     = "•"
	IconCheck   = "✔"
	IconCross   = "✘"
	IconStar    = "★"
	IconHeart   = "♥"
	IconSparkle = "✨"
	IconRocket  = "🚀"
	IconPackage = "📦"
	IconFolder  = "📁"
	IconFile    = "📄"
	IconDB      = "🗄️"
	IconGear    = "⚙️"
	IconLock    = "🔒"
	IconKey     = "🔑"
	IconPending = "◌"
	IconStream  = "⇶"
	IconList    = "☰"
	IconChart   = "📊"
	IconHealth  = "❤️"
	IconBehave  = "🐝" // bee, as in be-have
)

func roundedBox(borderColor lipgloss.Color) lipgloss.Style {
	return lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).
		BorderForeground(borderColor).Padding(1, 2)
}

// Box styles for framed content.
var (
	Box          = roundedBox(Border)
	BoxHighlight = roundedBox(Primary)
	BoxSuccess   = roundedBox(Success)
	BoxError     = roundedBox(Error)
	BoxWarning   = roundedBox(Warning)
	InfoBox      = roundedBox(Info).MarginTop(1)
)

// Menu and list item styles.
var (
	MenuItem         = lipgloss.NewStyle().PaddingLeft(2)
	MenuItemSelected = coloredBold(Primary).PaddingLeft(2)
	ListItem         = colored(Text).PaddingLeft(2)
	ListItemBullet   = colored(Primary).PaddingRight(1)
)

// Layout helpers.
var (
	Indent       = lipgloss.NewStyle().PaddingLeft(2)
	DoubleIndent = lipgloss.NewStyle().PaddingLeft(4)
	Section      = lipgloss.NewStyle().MarginTop(1).MarginBottom(1)
)

func statusLine(mark lipgloss.Style, icon, msg string) string {
	return mark.Render(icon) + " " + Normal.Render(msg)
}

// FormatSuccess prefixes msg with a green check mark.
func FormatSuccess(msg string) string { return statusLine(SuccessStyle, IconSuccess, msg) }

// FormatError prefixes msg with a red cross.
func FormatError(msg string) string { return statusLine(ErrorStyle, IconError, msg) }

// FormatWarning prefixes msg with a warning sign.
func FormatWarning(msg string) string { return statusLine(WarningStyle, IconWarning, msg) }

// FormatInfo prefixes msg with an info sign.
func FormatInfo(msg string) string { return statusLine(InfoStyle, IconInfo, msg) }

// FormatStep renders a progress counter like "[2/5]" before msg.
func FormatStep(step, total int, msg string) string {
	counter := colored(TextMuted).Width(8)
	return counter.Render(fmt.Sprintf("[%d/%d]", step, total)) + " " + msg
}

// FormatKeyValue renders a left-aligned key column next to its value.
func FormatKeyValue(key, value string) string {
	col := colored(TextMuted).Width(20)
	return col.Render(key+":") + " " + Highlight.Render(value)
}

// DisableColors strips the palette for terminals without color
// support. Styles built after this call render plain text; styles
// captured at package init keep their colors.
func DisableColors() {
	for _, c := range []*lipgloss.Color{
		&Primary, &PrimaryLight, &PrimaryDark, &Secondary, &SecondaryDark,
		&Success, &SuccessLight, &Warning, &WarningLight,
		&Error, &ErrorLight, &Info, &InfoLight,
		&Text, &TextMuted, &TextDim, &Background, &Surface, &Border,
		&Accent1, &Accent2, &Accent3,
	} {
		*c = lipgloss.Color("")
	}
}
