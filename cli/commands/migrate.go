package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/AshkanYarmoradi/go-behave/cli/config"
	"github.com/AshkanYarmoradi/go-behave/cli/styles"
	"github.com/AshkanYarmoradi/go-behave/cli/ui"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

// NewMigrateCommand builds the migrate command tree.
func NewMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage journal schema migrations",
		Long:  "Run and manage journal schema migrations against the configured database.",
		Example: `  behave migrate up           # Apply every pending migration
  behave migrate down         # Roll back the most recent migration
  behave migrate status       # List applied and pending migrations
  behave migrate create NAME  # Scaffold up and down migration files`,
	}

	cmd.AddCommand(
		newMigrateUpCmd(),
		newMigrateDownCmd(),
		newMigrateStatusCmd(),
		newMigrateCreateCmd(),
	)

	return cmd
}

// withMigrationEnv opens a database-backed migration environment and runs fn
// against it. On the memory driver it prints notice and skips fn entirely.
func withMigrationEnv(ctx context.Context, notice string, fn func(context.Context, *MigrationEnv) error) error {
	ctx = ctxOrBackground(ctx)

	env, isMemory, err := SetupMigrationEnv(ctx)
	if err != nil {
		return err
	}
	if isMemory {
		fmt.Println(styles.FormatInfo(notice))
		return nil
	}
	defer env.Close()

	return fn(ctx, env)
}

func newMigrateUpCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "up",
		Short: "Apply outstanding migrations",
		Long: `Apply outstanding journal schema migrations.

Every pending migration runs unless --steps caps how many.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrationEnv(cmd.Context(), "Memory journals need no migrations",
				func(ctx context.Context, env *MigrationEnv) error {
					return applyMigrations(ctx, env, limit)
				})
		},
	}

	cmd.Flags().IntVarP(&limit, "steps", "n", 0, "How many migrations to apply, 0 for all")

	return cmd
}

func applyMigrations(ctx context.Context, env *MigrationEnv, limit int) error {
	if err := connectSpinner(); err != nil {
		return err
	}

	queue, err := pendingMigrations(ctx, env.Adapter, env.MigrationsPath)
	if err != nil {
		return err
	}
	if len(queue) == 0 {
		fmt.Println(styles.FormatSuccess("Journal schema is up to date"))
		return nil
	}
	if limit > 0 && limit < len(queue) {
		queue = queue[:limit]
	}

	fmt.Printf("\n%s Applying %d migration(s)...\n\n", styles.IconPending, len(queue))

	for _, mig := range queue {
		if err := applyOne(ctx, env.Adapter, mig); err != nil {
			return err
		}
	}

	fmt.Printf("\n%s\n", styles.FormatSuccess(fmt.Sprintf("Applied %d migration(s)", len(queue))))
	return nil
}

func applyOne(ctx context.Context, adapter CLIAdapter, mig migrationFile) error {
	fmt.Printf("  %s Applying %s... ", styles.IconPending, mig.Name)

	content, err := os.ReadFile(mig.Path)
	if err != nil {
		fmt.Println(styles.ErrorStyle.Render("FAILED"))
		return fmt.Errorf("read %s: %w", mig.Name, err)
	}

	if err := adapter.ExecuteSQL(ctx, string(content)); err != nil {
		fmt.Println(styles.ErrorStyle.Render("FAILED"))
		return fmt.Errorf("apply %s: %w", mig.Name, err)
	}

	if err := adapter.RecordMigration(ctx, mig.Name); err != nil {
		fmt.Println(styles.WarningStyle.Render("WARNING"))
		fmt.Printf("    %s\n", styles.FormatWarning("Applied, but recording it in the ledger failed"))
		return nil
	}

	fmt.Println(styles.SuccessStyle.Render("OK"))
	return nil
}

// connectSpinner plays a short connect animation so slow databases do not
// look like a hang.
func connectSpinner() error {
	prog := tea.NewProgram(ui.NewSpinner("Reaching the journal database...", ui.SpinnerDots))

	go func() {
		time.Sleep(500 * time.Millisecond)
		prog.Send(ui.SpinnerDoneMsg{Result: "Journal database reachable"})
	}()

	_, err := prog.Run()
	return err
}

func newMigrateDownCmd() *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back applied migrations",
		Long: `Roll back applied journal schema migrations.

Only the most recent migration is undone unless --steps asks for more.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrationEnv(cmd.Context(), "Memory journals need no migrations",
				func(ctx context.Context, env *MigrationEnv) error {
					return rollbackMigrations(ctx, env, count)
				})
		},
	}

	cmd.Flags().IntVarP(&count, "steps", "n", 1, "How many migrations to roll back")

	return cmd
}

func rollbackMigrations(ctx context.Context, env *MigrationEnv, count int) error {
	applied, err := appliedMigrations(ctx, env.Adapter, env.MigrationsPath)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		fmt.Println(styles.FormatInfo("Nothing to roll back"))
		return nil
	}

	if count < 1 {
		count = 1
	}
	if count < len(applied) {
		applied = applied[len(applied)-count:]
	}

	fmt.Printf("\n%s Rolling back %d migration(s)...\n\n", styles.IconWarning, len(applied))

	// Newest first.
	for i := len(applied) - 1; i >= 0; i-- {
		if err := rollbackOne(ctx, env.Adapter, applied[i]); err != nil {
			return err
		}
	}

	fmt.Printf("\n%s\n", styles.FormatSuccess("Rollback complete"))
	return nil
}

func rollbackOne(ctx context.Context, adapter CLIAdapter, mig migrationFile) error {
	fmt.Printf("  %s Rolling back %s... ", styles.IconPending, mig.Name)

	content, err := os.ReadFile(strings.TrimSuffix(mig.Path, ".sql") + ".down.sql")
	if os.IsNotExist(err) {
		fmt.Println(styles.WarningStyle.Render("SKIPPED (no .down.sql)"))
		return nil
	}
	if err != nil {
		fmt.Println(styles.ErrorStyle.Render("FAILED"))
		return fmt.Errorf("read down file for %s: %w", mig.Name, err)
	}

	if err := adapter.ExecuteSQL(ctx, string(content)); err != nil {
		fmt.Println(styles.ErrorStyle.Render("FAILED"))
		return fmt.Errorf("roll back %s: %w", mig.Name, err)
	}

	if err := adapter.RemoveMigrationRecord(ctx, mig.Name); err != nil {
		fmt.Println(styles.WarningStyle.Render("WARNING"))
		return nil
	}

	fmt.Println(styles.SuccessStyle.Render("OK"))
	return nil
}

func newMigrateStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List applied and pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrationEnv(cmd.Context(), "Memory journals keep no migration ledger", printMigrationStatus)
		},
	}
}

func printMigrationStatus(ctx context.Context, env *MigrationEnv) error {
	all, err := getAllMigrations(env.MigrationsPath)
	if err != nil {
		return err
	}

	applied, err := env.Adapter.ListMigrations(ctx)
	if err != nil {
		return err
	}

	appliedAt := make(map[string]time.Time, len(applied))
	for _, rec := range applied {
		appliedAt[rec.Name] = rec.AppliedAt
	}

	table := ui.NewTable("Migration", "Status", "Applied")
	waiting := 0

	for _, mig := range all {
		when, ok := appliedAt[mig.Name]
		switch {
		case !ok:
			waiting++
			table.AddRow(mig.Name, ui.StatusBadge("pending"), "-")
		case when.IsZero():
			table.AddRow(mig.Name, ui.StatusBadge("applied"), "✓")
		default:
			table.AddRow(mig.Name, ui.StatusBadge("applied"), when.Local().Format(time.DateTime))
		}
	}

	fmt.Printf("\n%s\n\n%s\n\n", styles.Title.Render(styles.IconDB+" Migration Status"), table.Render())

	if waiting > 0 {
		fmt.Println(styles.FormatWarning(fmt.Sprintf("%d pending migration(s)", waiting)))
		return nil
	}

	fmt.Println(styles.FormatSuccess("Journal schema is up to date"))
	return nil
}

func newMigrateCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <name>",
		Short: "Scaffold a new migration file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return createMigration(args[0])
		},
	}
}

// createMigration scaffolds an up and a down file under the configured
// migrations directory, numbered after the existing migrations.
func createMigration(name string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}

	cfg := config.DefaultConfig()
	if _, found, err := config.FindConfig(cwd); err == nil {
		cfg = found
	}

	dir := filepath.Join(cwd, cfg.Database.MigrationsDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	all, _ := getAllMigrations(dir)
	now := time.Now()
	base := fmt.Sprintf("%03d_%s_%s", len(all)+1, now.Format("20060102150405"), sanitizeName(name))

	for _, f := range []struct {
		path  string
		title string
		hint  string
	}{
		{filepath.Join(dir, base+".sql"), "Migration", "UP"},
		{filepath.Join(dir, base+".down.sql"), "Rollback", "DOWN"},
	} {
		content := fmt.Sprintf("-- %s: %s\n-- Created: %s\n\n-- Write your %s migration here\n",
			f.title, name, now.Format(time.RFC3339), f.hint)
		if err := os.WriteFile(f.path, []byte(content), 0o644); err != nil {
			return err
		}
		fmt.Println(styles.FormatSuccess("Created " + f.path))
	}

	return nil
}

// migrationFile is one migration file on disk.
type migrationFile struct {
	Name string // base name without the .sql suffix
	Path string // location of the up file
}

// getAllMigrations lists the up migrations in dir, sorted by name. A missing
// directory is treated as having no migrations.
func getAllMigrations(dir string) ([]migrationFile, error) {
	files, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var found []migrationFile
	for _, f := range files {
		name := f.Name()
		if f.IsDir() || !strings.HasSuffix(name, ".sql") || strings.HasSuffix(name, ".down.sql") {
			continue
		}
		found = append(found, migrationFile{
			Name: strings.TrimSuffix(name, ".sql"),
			Path: filepath.Join(dir, name),
		})
	}

	sort.Slice(found, func(i, j int) bool { return found[i].Name < found[j].Name })

	return found, nil
}

// pendingMigrations returns the on-disk migrations that have not been
// recorded as applied. When the ledger cannot be read, everything counts as
// pending.
func pendingMigrations(ctx context.Context, adapter CLIAdapter, dir string) ([]migrationFile, error) {
	all, err := getAllMigrations(dir)
	if err != nil {
		return nil, err
	}

	applied, err := adapter.GetAppliedMigrations(ctx)
	if err != nil {
		return all, nil
	}

	done := make(map[string]bool, len(applied))
	for _, n := range applied {
		done[n] = true
	}

	var missing []migrationFile
	for _, mig := range all {
		if !done[mig.Name] {
			missing = append(missing, mig)
		}
	}
	return missing, nil
}

// appliedMigrations maps recorded migration names back onto their expected
// on-disk paths, oldest first.
func appliedMigrations(ctx context.Context, adapter CLIAdapter, dir string) ([]migrationFile, error) {
	names, err := adapter.GetAppliedMigrations(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]migrationFile, len(names))
	for i, name := range names {
		out[i] = migrationFile{Name: name, Path: filepath.Join(dir, name+".sql")}
	}
	return out, nil
}

// sanitizeName normalizes a migration name for use in a file name.
func sanitizeName(name string) string {
	return strings.NewReplacer(" ", "_", "-", "_").Replace(strings.ToLower(name))
}
