// Package ui implements the interactive terminal components used by the
// behave CLI: spinners and progress bars built on bubbletea, bordered
// tables, status badges, and the startup banners.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/AshkanYarmoradi/go-behave/cli/styles"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// SpinnerType selects one of the bundled spinner animations.
type SpinnerType int

const (
	SpinnerDots SpinnerType = iota
	SpinnerPulse
	SpinnerLine
	SpinnerMinidots
	SpinnerPoints
	SpinnerJump
	SpinnerMeter
	SpinnerGlobe
	SpinnerMoon
	SpinnerMonkey
	SpinnerHamburger
)

var spinnerAnimations = map[SpinnerType]spinner.Spinner{
	SpinnerDots:      spinner.Dot,
	SpinnerPulse:     spinner.Pulse,
	SpinnerLine:      spinner.Line,
	SpinnerMinidots:  spinner.MiniDot,
	SpinnerPoints:    spinner.Points,
	SpinnerJump:      spinner.Jump,
	SpinnerMeter:     spinner.Meter,
	SpinnerGlobe:     spinner.Globe,
	SpinnerMoon:      spinner.Moon,
	SpinnerMonkey:    spinner.Monkey,
	SpinnerHamburger: spinner.Hamburger,
}

// isQuitKey reports whether the key should cancel an interactive view.
func isQuitKey(msg tea.KeyMsg) bool {
	switch msg.String() {
	case "esc", "q", "ctrl+c":
		return true
	}
	return false
}

// SpinnerDoneMsg stops a running spinner. Result is shown as the final
// line, styled as a success unless Err is set.
type SpinnerDoneMsg struct {
	Err    error
	Result string
}

// SpinnerModel runs a spinner animation next to a status message until
// a SpinnerDoneMsg arrives or the user cancels.
type SpinnerModel struct {
	sp       spinner.Model
	message  string
	quitting bool
	done     bool
	final    SpinnerDoneMsg
}

// NewSpinner builds a spinner showing text. Unknown types fall back
// to the dot animation.
func NewSpinner(text string, kind SpinnerType) SpinnerModel {
	anim, ok := spinnerAnimations[kind]
	if !ok {
		anim = spinner.Dot
	}

	sp := spinner.New()
	sp.Spinner = anim
	sp.Style = lipgloss.NewStyle().Foreground(styles.Primary)

	return SpinnerModel{sp: sp, message: text}
}

func (sm SpinnerModel) Init() tea.Cmd {
	return sm.sp.Tick
}

func (sm SpinnerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		next, cmd := sm.sp.Update(msg)
		sm.sp = next
		return sm, cmd

	case SpinnerDoneMsg:
		sm.done = true
		sm.final = msg
		return sm, tea.Quit

	case tea.KeyMsg:
		if isQuitKey(msg) {
			sm.quitting = true
			return sm, tea.Quit
		}
	}

	return sm, nil
}

func (sm SpinnerModel) View() string {
	switch {
	case sm.done && sm.final.Err != nil:
		return styles.FormatError(sm.final.Result) + "\n"
	case sm.done:
		return styles.FormatSuccess(sm.final.Result) + "\n"
	case sm.quitting:
		return styles.FormatWarning("Cancelled") + "\n"
	}
	return sm.sp.View() + " " + styles.Normal.Render(sm.message) + "\n"
}

// ProgressMsg moves a progress bar. Percent 1.0 or above marks the bar
// finished and quits the program.
type ProgressMsg struct {
	Message string
	Percent float64
}

// ProgressModel renders a gradient progress bar with a trailing label.
type ProgressModel struct {
	bar     progress.Model
	percent float64
	message string
	done    bool
}

// NewProgress builds a progress bar starting at zero.
func NewProgress(text string) ProgressModel {
	bar := progress.New(progress.WithDefaultGradient(), progress.WithWidth(40), progress.WithoutPercentage())
	return ProgressModel{bar: bar, message: text}
}

func (pm ProgressModel) Init() tea.Cmd {
	return nil
}

func (pm ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case progress.FrameMsg:
		next, cmd := pm.bar.Update(msg)
		pm.bar = next.(progress.Model)
		return pm, cmd

	case ProgressMsg:
		pm.percent, pm.message = msg.Percent, msg.Message
		if pm.percent < 1.0 {
			return pm, nil
		}
		pm.done = true
		return pm, tea.Quit

	case tea.KeyMsg:
		if isQuitKey(msg) {
			return pm, tea.Quit
		}
	}

	return pm, nil
}

func (pm ProgressModel) View() string {
	if pm.done {
		return styles.FormatSuccess(pm.message) + "\n"
	}
	return pm.bar.ViewAs(pm.percent) + " " + styles.Muted.Render(pm.message) + "\n"
}

// Table accumulates rows and renders them inside box-drawing borders.
// Column widths track the widest cell seen per column.
type Table struct {
	headers []string
	widths  []int
	rows    [][]string
}

// NewTable starts a table with the given column headers.
func NewTable(cols ...string) *Table {
	tb := &Table{headers: cols, widths: make([]int, len(cols))}
	for i, h := range cols {
		tb.widths[i] = len(h)
	}
	return tb
}

// AddRow appends a row. Missing trailing cells render empty, extra
// cells beyond the header count are dropped.
func (tb *Table) AddRow(values ...string) {
	row := make([]string, len(tb.headers))
	for i := range tb.headers {
		if i >= len(values) {
			continue
		}
		row[i] = values[i]
		if len(values[i]) > tb.widths[i] {
			tb.widths[i] = len(values[i])
		}
	}
	tb.rows = append(tb.rows, row)
}

// rule draws a horizontal border line with the given corner and
// junction runes, sized to the current column widths.
func (tb *Table) rule(left, junction, right string) string {
	segments := make([]string, len(tb.widths))
	for i, w := range tb.widths {
		segments[i] = strings.Repeat("─", w+2)
	}
	return left + strings.Join(segments, junction) + right
}

// Render returns the table as a bordered string. A table without
// headers renders as nothing.
func (tb *Table) Render() string {
	if len(tb.headers) == 0 {
		return ""
	}

	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(styles.Primary).Padding(0, 1)
	cellStyle := lipgloss.NewStyle().Foreground(styles.Text).Padding(0, 1)
	borderStyle := lipgloss.NewStyle().Foreground(styles.Border)

	sep := borderStyle.Render("│")
	line := func(cells []string, style lipgloss.Style) string {
		out := sep
		for i, cell := range cells {
			out += style.Width(tb.widths[i]).Render(cell) + sep
		}
		return out + "\n"
	}

	var b strings.Builder
	b.WriteString(borderStyle.Render(tb.rule("┌", "┬", "┐")) + "\n")
	b.WriteString(line(tb.headers, headerStyle))
	b.WriteString(borderStyle.Render(tb.rule("├", "┼", "┤")) + "\n")
	for _, row := range tb.rows {
		b.WriteString(line(row, cellStyle))
	}
	b.WriteString(borderStyle.Render(tb.rule("└", "┴", "┘")))

	return b.String()
}

// StatusBadge renders status inside a colored badge. The background
// tone follows the status word; unrecognized statuses get a neutral
// badge.
func StatusBadge(status string) string {
	background, foreground := styles.Surface, styles.Text

	switch strings.ToLower(status) {
	case "ok", "active", "healthy", "running", "applied", "success":
		background, foreground = styles.Success, lipgloss.Color("#000000")
	case "paused", "pending", "waiting":
		background, foreground = styles.Warning, lipgloss.Color("#000000")
	case "failed", "error", "stopped":
		background, foreground = styles.Error, lipgloss.Color("#FFFFFF")
	}

	return lipgloss.NewStyle().Background(background).Foreground(foreground).Padding(0, 1).Render(status)
}

// Banner renders the large ASCII art banner shown by the root command.
func Banner() string {
	art := `
    ██████╗ ███████╗██╗  ██╗ █████╗ ██╗   ██╗███████╗
    ██╔══██╗██╔════╝██║  ██║██╔══██╗██║   ██║██╔════╝
    ██████╔╝█████╗  ███████║███████║██║   ██║█████╗
    ██╔══██╗██╔══╝  ██╔══██║██╔══██║╚██╗ ██╔╝██╔══╝
    ██████╔╝███████╗██║  ██║██║  ██║ ╚████╔╝ ███████╗
    ╚═════╝ ╚══════╝╚═╝  ╚═╝╚═╝  ╚═╝  ╚═══╝  ╚══════╝

           Aggregate Behavior Engine for Go
`
	return lipgloss.NewStyle().Foreground(styles.Primary).Bold(true).Render(art)
}

// SimpleBanner renders a one line banner for subcommand output.
func SimpleBanner() string {
	name := lipgloss.NewStyle().Bold(true).Foreground(styles.Primary).Render("behave")
	return styles.IconBehave + " " + name + " " + styles.Muted.Render("- Aggregate Behavior Engine for Go")
}

// AnimationTickMsg advances the animated banner by one frame.
type AnimationTickMsg struct{}

// AnimatedBannerModel types out the project name one rune per frame.
type AnimatedBannerModel struct {
	frameIndex int
	done       bool
	frames     []string
}

func NewAnimatedBanner() AnimatedBannerModel {
	const name = "behave"
	frames := make([]string, 0, len(name)+1)
	frames = append(frames, styles.IconBehave)
	for i := 1; i <= len(name); i++ {
		frames = append(frames, styles.IconBehave+" "+name[:i])
	}
	return AnimatedBannerModel{frames: frames}
}

func animationTick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(time.Time) tea.Msg {
		return AnimationTickMsg{}
	})
}

func (ab AnimatedBannerModel) Init() tea.Cmd {
	return animationTick()
}

func (ab AnimatedBannerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg.(type) {
	case AnimationTickMsg:
		if ab.frameIndex >= len(ab.frames)-1 {
			ab.done = true
			return ab, tea.Quit
		}
		ab.frameIndex++
		return ab, animationTick()
	case tea.KeyMsg:
		// Any key skips the animation.
		return ab, tea.Quit
	}
	return ab, nil
}

func (ab AnimatedBannerModel) View() string {
	return lipgloss.NewStyle().Bold(true).Foreground(styles.Primary).Render(ab.frames[ab.frameIndex]) + "\n"
}

// Divider returns a horizontal rule of the given width.
func Divider(width int) string {
	rule := strings.Repeat("─", width)
	return styles.Dim.Render(rule)
}

// ListItems renders items as a bulleted list, one per line.
func ListItems(items []string) string {
	var b strings.Builder
	for _, item := range items {
		b.WriteString(styles.ListItemBullet.Render(styles.IconDot) + styles.ListItem.Render(item) + "\n")
	}
	return b.String()
}

// NumberedList renders items as a numbered list starting at one.
func NumberedList(items []string) string {
	number := lipgloss.NewStyle().Foreground(styles.Primary).Width(4)
	var b strings.Builder
	for i, item := range items {
		b.WriteString(number.Render(fmt.Sprintf("%d.", i+1)) + styles.Normal.Render(item) + "\n")
	}
	return b.String()
}

// Confirmation renders the outcome of a yes/no prompt.
func Confirmation(confirmed bool) string {
	word, style := "No", styles.ErrorStyle
	if confirmed {
		word, style = "Yes", styles.SuccessStyle
	}
	return style.Render(word)
}
