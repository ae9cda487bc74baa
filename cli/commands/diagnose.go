package commands

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/AshkanYarmoradi/go-behave/cli/config"
	"github.com/AshkanYarmoradi/go-behave/cli/styles"
	"github.com/AshkanYarmoradi/go-behave/cli/ui"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

// checkTimeout bounds each database-backed diagnostic.
const checkTimeout = 5 * time.Second

// NewDiagnoseCommand builds the diagnose command.
func NewDiagnoseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "diagnose",
		Short: "Check your behave setup",
		Long: `Run diagnostic checks on your behave setup.

Checks cover the configuration file, database connectivity, the journal
schema and its statistics, and basic system requirements.`,
		Aliases: []string{"diag", "doctor"},
		RunE:    runDiagnose,
	}
}

func runDiagnose(cmd *cobra.Command, args []string) error {
	fmt.Printf("\n%s\n\n%s\n\n", ui.Banner(), styles.Title.Render(styles.IconHealth+" Running Diagnostics"))

	checks := []DiagnosticCheck{
		{"Go Version", checkGoVersion},
		{"Configuration", checkConfiguration},
		{"Database Connection", checkDatabaseConnection},
		{"Journal Schema", checkJournalSchema},
		{"Journal Stats", checkJournalStats},
		{"System Resources", checkSystemResources},
	}

	var recommendations []string
	failures := 0

	for _, c := range checks {
		fmt.Printf("  %s Checking %s... ", styles.IconPending, c.Name)

		res := c.Check()
		fmt.Println(statusBadge(res.Status))

		if res.Status != StatusOK {
			failures++
		}
		if res.Message != "" {
			fmt.Printf("    %s\n", styles.Muted.Render(res.Message))
		}
		if res.Recommendation != "" {
			recommendations = append(recommendations, res.Recommendation)
		}
	}

	fmt.Printf("\n%s\n\n", ui.Divider(50))

	if failures == 0 {
		fmt.Println(styles.FormatSuccess("All checks passed! Your behave setup is healthy."))
		return nil
	}

	fmt.Println(styles.FormatWarning("Some checks did not pass."))
	fmt.Printf("\n%s\n", styles.Subtitle.Render("Recommendations:"))
	for _, rec := range recommendations {
		fmt.Printf("  %s %s\n", styles.IconArrow, rec)
	}

	return nil
}

func statusBadge(s CheckStatus) string {
	switch s {
	case StatusOK:
		return styles.SuccessStyle.Render("OK")
	case StatusWarning:
		return styles.WarningStyle.Render("WARNING")
	default:
		return styles.ErrorStyle.Render("FAILED")
	}
}

// CheckStatus grades the outcome of one diagnostic.
type CheckStatus int

const (
	StatusOK      CheckStatus = iota // healthy
	StatusWarning                    // usable, needs attention
	StatusError                      // broken
)

// CheckResult is what a diagnostic reports back: a grade, a human message,
// and optionally what to do about it.
type CheckResult struct {
	Status         CheckStatus
	Name           string
	Message        string
	Recommendation string // surfaced in the summary when checks fail
}

func newCheckResult(name string, status CheckStatus, msg string) CheckResult {
	return CheckResult{Name: name, Status: status, Message: msg}
}

func (r CheckResult) withRecommendation(note string) CheckResult {
	r.Recommendation = note
	return r
}

// DiagnosticCheck pairs a display name with the function that runs it.
type DiagnosticCheck struct {
	Name  string
	Check func() CheckResult
}

// dbCheck shares the plumbing of database-backed diagnostics: a bounded
// context, environment setup with per-check skip mapping, and cleanup.
// setupRec is the recommendation attached when setup itself fails.
func dbCheck(name, setupRec string, skips map[DiagnosticSkipReason]CheckResult, probe func(context.Context, *DiagnosticEnv) CheckResult) CheckResult {
	ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
	defer cancel()

	env, reason, err := SetupDiagnosticEnv(ctx)
	if result, ok := skips[reason]; ok {
		return result
	}
	if err != nil {
		return newCheckResult(name, StatusError, err.Error()).withRecommendation(setupRec)
	}
	defer env.Close()

	return probe(ctx, env)
}

// journalCheck is dbCheck preconfigured for checks that only make sense
// against a reachable database journal.
func journalCheck(name string, probe func(context.Context, *DiagnosticEnv) CheckResult) CheckResult {
	skipped := newCheckResult(name, StatusOK, "Skipped (memory driver or no config)")
	return dbCheck(name, "Check database connection", map[DiagnosticSkipReason]CheckResult{
		DiagnosticSkipNoConfig:     skipped,
		DiagnosticSkipMemoryDriver: skipped,
		DiagnosticSkipNoDBURL:      newCheckResult(name, StatusWarning, "Skipped (no database URL)"),
	}, probe)
}

func checkGoVersion() CheckResult {
	const name = "Go Version"
	v := runtime.Version()
	if v < "go1.21" {
		return newCheckResult(name, StatusWarning, v).
			withRecommendation("Upgrade to Go 1.21 or newer")
	}
	return newCheckResult(name, StatusOK, v)
}

func checkConfiguration() CheckResult {
	const name = "Configuration"

	dir, err := os.Getwd()
	if err != nil {
		return newCheckResult(name, StatusError, err.Error()).withRecommendation("Check permissions on the working directory")
	}
	if !config.Exists(dir) {
		return newCheckResult(name, StatusWarning, "No behave.yaml found").
			withRecommendation("Run 'behave init' to create a configuration file")
	}

	cfg, err := config.Load(dir)
	if err != nil {
		return newCheckResult(name, StatusError, "Invalid config: "+err.Error()).
			withRecommendation("Check behave.yaml syntax")
	}
	if problems := cfg.Validate(); len(problems) > 0 {
		return newCheckResult(name, StatusWarning, fmt.Sprintf("%d validation errors", len(problems))).
			withRecommendation(problems[0])
	}

	summary := fmt.Sprintf("Project: %s, Driver: %s", cfg.Project.Name, cfg.Database.Driver)
	return newCheckResult(name, StatusOK, summary)
}

func checkDatabaseConnection() CheckResult {
	const name = "Database Connection"

	skips := map[DiagnosticSkipReason]CheckResult{
		DiagnosticSkipNoConfig: newCheckResult(name, StatusWarning, "No configuration found").
			withRecommendation("Run 'behave init' first"),
		DiagnosticSkipMemoryDriver: newCheckResult(name, StatusOK, "Using in-memory driver (no connection needed)"),
		DiagnosticSkipNoDBURL: newCheckResult(name, StatusWarning, "DATABASE_URL not set").
			withRecommendation("Set DATABASE_URL environment variable"),
	}

	return dbCheck(name, "Double-check the connection credentials", skips, func(ctx context.Context, env *DiagnosticEnv) CheckResult {
		info, err := env.Adapter.GetDiagnosticInfo(ctx)
		switch {
		case err != nil:
			return newCheckResult(name, StatusError, err.Error()).
				withRecommendation("Make sure the database server is running")
		case !info.Connected:
			return newCheckResult(name, StatusError, info.Message).
				withRecommendation("Double-check the connection credentials")
		default:
			return newCheckResult(name, StatusOK, info.Message)
		}
	})
}

func checkJournalSchema() CheckResult {
	const name = "Journal Schema"
	return journalCheck(name, func(ctx context.Context, env *DiagnosticEnv) CheckResult {
		result, err := env.Adapter.CheckSchema(ctx, env.Config.Journal.TableName)
		if err != nil {
			return newCheckResult(name, StatusError, err.Error()).
				withRecommendation("Check the database user's permissions")
		}
		if !result.TableExists {
			return newCheckResult(name, StatusWarning, result.Message).withRecommendation("Run 'behave migrate up' to create tables")
		}
		return newCheckResult(name, StatusOK, result.Message)
	})
}

func checkJournalStats() CheckResult {
	const name = "Journal Stats"
	return journalCheck(name, func(ctx context.Context, env *DiagnosticEnv) CheckResult {
		stats, err := env.Adapter.GetJournalStats(ctx)
		if err != nil {
			return newCheckResult(name, StatusError, err.Error())
		}
		return newCheckResult(name, StatusOK, fmt.Sprintf("%d events across %d streams", stats.TotalEvents, stats.TotalStreams))
	})
}

// memWarnMB is the heap allocation above which the resource check warns.
const memWarnMB = 500

func checkSystemResources() CheckResult {
	const name = "System Resources"

	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)

	used := float64(stats.Alloc) / (1 << 20)
	reserved := float64(stats.Sys) / (1 << 20)
	msg := fmt.Sprintf("Memory: %.1f MB used, %.1f MB total", used, reserved)

	if used > memWarnMB {
		return newCheckResult(name, StatusWarning, msg).withRecommendation("Consider optimizing memory usage")
	}
	return newCheckResult(name, StatusOK, msg)
}

// NewVersionCommand builds the version command with the build-time version,
// commit, and date baked in.
func NewVersionCommand(version, commit, date string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version and build details",
		RunE: func(cmd *cobra.Command, args []string) error {
			printVersion(version, commit, date)
			return nil
		},
	}
}

func printVersion(version, commit, date string) {
	fmt.Printf("\n%s\n\n", ui.SimpleBanner())

	table := ui.NewTable("", "")
	for _, row := range [][2]string{
		{"Version", version},
		{"Commit", commit},
		{"Built", date},
		{"Go", runtime.Version()},
		{"OS/Arch", runtime.GOOS + "/" + runtime.GOARCH},
	} {
		table.AddRow(row[0], row[1])
	}
	fmt.Println(table.Render())
}

// AnimatedVersionModel plays a short intro animation before settling on the
// banner. It quits on its own after the last frame or on any key press.
type AnimatedVersionModel struct {
	version string
	done    bool
	phase   int // frame index, 0 through 5
}

func NewAnimatedVersion(v string) AnimatedVersionModel {
	return AnimatedVersionModel{version: v}
}

func animationTick() tea.Cmd {
	frame := func(time.Time) tea.Msg { return ui.AnimationTickMsg{} }
	return tea.Tick(100*time.Millisecond, frame)
}

func (av AnimatedVersionModel) Init() tea.Cmd {
	return animationTick()
}

func (av AnimatedVersionModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg.(type) {
	case tea.KeyMsg:
		return av, tea.Quit
	case ui.AnimationTickMsg:
		if av.phase++; av.phase <= 5 {
			return av, animationTick()
		}
		av.done = true
		return av, tea.Quit
	}
	return av, nil
}

func (av AnimatedVersionModel) View() string {
	if !av.done {
		frames := [...]string{
			styles.IconBehave,
			styles.IconBehave + " ▪",
			styles.IconBehave + " ▪▪",
			styles.IconBehave + " ▪▪▪",
			styles.IconBehave + " behave",
			ui.SimpleBanner(),
		}
		return "\n" + frames[av.phase] + "\n"
	}
	return ui.SimpleBanner() + "\n"
}
