package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/AshkanYarmoradi/go-behave/adapters"
	"github.com/AshkanYarmoradi/go-behave/adapters/memory"
	"github.com/AshkanYarmoradi/go-behave/adapters/postgres"
	"github.com/AshkanYarmoradi/go-behave/cli/config"
)

// CLIAdapter is the full adapter surface the CLI drives: journal access,
// stream queries, migrations, schema generation, and diagnostics.
type CLIAdapter interface {
	adapters.JournalAdapter
	adapters.StreamQueryAdapter
	adapters.DiagnosticAdapter
	adapters.MigrationAdapter
	adapters.SchemaProvider
}

// pingTimeout bounds the connection check when opening a database-backed
// adapter, so a bad URL fails fast instead of hanging the command.
const pingTimeout = 5 * time.Second

// resolveDatabaseURL expands environment references in a configured URL and
// reports whether the result is usable. An empty expansion or a literal
// ${DATABASE_URL} placeholder means the variable was never set.
func resolveDatabaseURL(raw string) (string, bool) {
	url := os.ExpandEnv(raw)
	return url, url != "" && url != "${DATABASE_URL}"
}

func memoryDriver(cfg *config.Config) bool {
	return cfg.Database.Driver == "memory"
}

// AdapterFactory opens adapters for a resolved configuration.
type AdapterFactory struct {
	cfg *config.Config
	url string
}

// NewAdapterFactory validates the database settings in cfg and returns a
// factory for them. Database-backed drivers require a usable URL up front.
func NewAdapterFactory(cfg *config.Config) (*AdapterFactory, error) {
	url, ok := resolveDatabaseURL(cfg.Database.URL)
	if !ok && !memoryDriver(cfg) {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}

	return &AdapterFactory{cfg: cfg, url: url}, nil
}

// CreateAdapter opens the adapter selected by the configured driver.
func (af *AdapterFactory) CreateAdapter(ctx context.Context) (CLIAdapter, error) {
	switch af.cfg.Database.Driver {
	case "postgres", "postgresql":
		return openPostgres(ctxOrBackground(ctx), af.url)
	case "memory":
		return memory.NewAdapter(), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", af.cfg.Database.Driver)
	}
}

// GetDatabaseURL returns the database URL after environment expansion.
func (af *AdapterFactory) GetDatabaseURL() string {
	return af.url
}

// IsMemoryDriver reports whether the factory targets the in-memory adapter.
func (af *AdapterFactory) IsMemoryDriver() bool {
	return memoryDriver(af.cfg)
}

// openPostgres connects to PostgreSQL and verifies the connection before
// handing the adapter out. The verification ping runs under pingTimeout.
func openPostgres(ctx context.Context, url string) (CLIAdapter, error) {
	adapter, err := postgres.NewAdapter(url)
	if err != nil {
		return nil, fmt.Errorf("open postgres adapter: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := adapter.Ping(pingCtx); err != nil {
		_ = adapter.Close()
		return nil, fmt.Errorf("postgres unreachable: %w", err)
	}

	return adapter, nil
}

// openConfigured validates cfg and opens its adapter in one step.
func openConfigured(ctx context.Context, cfg *config.Config) (CLIAdapter, error) {
	fac, err := NewAdapterFactory(cfg)
	if err != nil {
		return nil, err
	}
	return fac.CreateAdapter(ctx)
}

// ctxOrBackground returns ctx, or a background context when ctx is nil.
func ctxOrBackground(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

// openAdapterWithConfig locates behave.yaml, opens the configured adapter,
// and returns both along with a func that closes the adapter.
func openAdapterWithConfig(ctx context.Context) (CLIAdapter, *config.Config, func(), error) {
	cfg, _, err := requireConfig()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("no behave.yaml found: %w", err)
	}

	adapter, err := openConfigured(ctx, cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	return adapter, cfg, func() { _ = adapter.Close() }, nil
}

// openAdapter is openAdapterWithConfig for callers that do not need the config.
func openAdapter(ctx context.Context) (CLIAdapter, func(), error) {
	a, _, done, err := openAdapterWithConfig(ctx)
	return a, done, err
}

// requireConfig reads the nearest behave.yaml, searching upward from the
// working directory. The returned string is the directory the search
// started in.
func requireConfig() (*config.Config, string, error) {
	return findConfigFrom(false)
}

// configOrDefault is requireConfig with built-in defaults when no behave.yaml
// exists. Only os.Getwd failures surface as errors.
func configOrDefault() (*config.Config, string, error) {
	return findConfigFrom(true)
}

func findConfigFrom(fallback bool) (*config.Config, string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return nil, "", err
	}

	_, cfg, err := config.FindConfig(dir)
	switch {
	case err == nil:
		return cfg, dir, nil
	case fallback:
		return config.DefaultConfig(), dir, nil
	default:
		return nil, dir, err
	}
}

// MigrationEnv bundles what the migrate subcommands operate on: the open
// adapter, the config it came from, and the resolved migrations directory.
type MigrationEnv struct {
	Adapter        CLIAdapter
	Config         *config.Config
	Cwd            string
	MigrationsPath string
	releaseFn      func()
}

// Close releases the adapter held by the environment.
func (me *MigrationEnv) Close() {
	if me.releaseFn != nil {
		me.releaseFn()
	}
}

// SetupMigrationEnv prepares a MigrationEnv. The boolean result is true when
// the memory driver is configured; migrations do not apply to it and no
// environment is built.
func SetupMigrationEnv(ctx context.Context) (*MigrationEnv, bool, error) {
	cfg, cwd, err := requireConfig()
	if err != nil {
		return nil, false, fmt.Errorf("no behave.yaml found: %w", err)
	}
	if memoryDriver(cfg) {
		return nil, true, nil
	}

	adapter, done, err := openAdapter(ctx)
	if err != nil {
		return nil, false, err
	}

	env := &MigrationEnv{
		Adapter:        adapter,
		Config:         cfg,
		Cwd:            cwd,
		MigrationsPath: filepath.Join(cwd, cfg.Database.MigrationsDir),
		releaseFn:      done,
	}
	return env, false, nil
}

// DiagnosticSkipReason says why a database diagnostic produced no result.
type DiagnosticSkipReason int

const (
	// DiagnosticNotSkipped means the check ran, or failed outright.
	DiagnosticNotSkipped DiagnosticSkipReason = iota
	// DiagnosticSkipNoConfig means no behave.yaml was found.
	DiagnosticSkipNoConfig
	// DiagnosticSkipMemoryDriver means the memory driver needs no database.
	DiagnosticSkipMemoryDriver
	// DiagnosticSkipNoDBURL means DATABASE_URL is not set.
	DiagnosticSkipNoDBURL
)

// diagnosticSkip classifies configurations that leave nothing to check.
// Order matters: a missing config is reported before cfg is touched.
func diagnosticSkip(cfg *config.Config, found bool) DiagnosticSkipReason {
	switch {
	case !found:
		return DiagnosticSkipNoConfig
	case memoryDriver(cfg):
		return DiagnosticSkipMemoryDriver
	default:
		if _, ok := resolveDatabaseURL(cfg.Database.URL); !ok {
			return DiagnosticSkipNoDBURL
		}
		return DiagnosticNotSkipped
	}
}

// DiagnosticEnv carries the adapter and config for database diagnostics.
type DiagnosticEnv struct {
	Adapter   CLIAdapter
	Config    *config.Config
	releaseFn func()
}

// Close releases the adapter held by the environment.
func (de *DiagnosticEnv) Close() {
	if de.releaseFn != nil {
		de.releaseFn()
	}
}

// SetupDiagnosticEnv prepares a DiagnosticEnv, or reports why the database
// checks cannot run. A non-zero skip reason is not a failure; the caller
// should note it and move on.
func SetupDiagnosticEnv(ctx context.Context) (*DiagnosticEnv, DiagnosticSkipReason, error) {
	dir, err := os.Getwd()
	if err != nil {
		return nil, DiagnosticNotSkipped, err
	}

	_, cfg, err := config.FindConfig(dir)
	if reason := diagnosticSkip(cfg, err == nil); reason != DiagnosticNotSkipped {
		return nil, reason, nil
	}

	adapter, done, err := openAdapter(ctx)
	if err != nil {
		return nil, DiagnosticNotSkipped, err
	}

	env := &DiagnosticEnv{Adapter: adapter, Config: cfg, releaseFn: done}
	return env, DiagnosticNotSkipped, nil
}
