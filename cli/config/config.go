// Package config reads and writes behave.yaml, the project file the
// behave CLI uses to locate the database, journal tables, and code
// generation targets.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ConfigFileName is the file the CLI looks for in the project root.
const ConfigFileName = "behave.yaml"

// Config is the root of behave.yaml.
type Config struct {
	Version    string           `yaml:"version"`
	Project    ProjectConfig    `yaml:"project"`
	Database   DatabaseConfig   `yaml:"database"`
	Journal    JournalConfig    `yaml:"journal"`
	Generation GenerationConfig `yaml:"generation"`
}

// ProjectConfig identifies the Go project the CLI operates on.
type ProjectConfig struct {
	Name      string `yaml:"name"`
	Module    string `yaml:"module"`     // Go module path from go.mod
	SourceDir string `yaml:"source_dir"` // root source directory, relative to behave.yaml
}

// DatabaseConfig selects the journal backend.
type DatabaseConfig struct {
	Driver        string `yaml:"driver"` // postgres or memory
	URL           string `yaml:"url,omitempty"`
	Schema        string `yaml:"schema"`
	MigrationsDir string `yaml:"migrations_dir"`
}

// JournalConfig names the journal tables.
type JournalConfig struct {
	TableName            string `yaml:"table_name"`
	SnapshotTableName    string `yaml:"snapshot_table_name"`
	IdempotencyTableName string `yaml:"idempotency_table_name"`
}

// GenerationConfig names the packages scaffolded code is written to.
type GenerationConfig struct {
	AggregatePackage string `yaml:"aggregate_package"`
	EventPackage     string `yaml:"event_package"`
	CommandPackage   string `yaml:"command_package"`
}

// DefaultConfig returns the configuration `behave init` starts from.
func DefaultConfig() *Config {
	return &Config{
		Version: "1",
		Project: ProjectConfig{
			Name:      "my-behave-app",
			Module:    "github.com/user/my-behave-app",
			SourceDir: ".",
		},
		Database: DatabaseConfig{
			Driver:        "postgres",
			Schema:        "behave",
			MigrationsDir: "migrations",
		},
		Journal: JournalConfig{
			TableName:            "events",
			SnapshotTableName:    "snapshots",
			IdempotencyTableName: "processed_commands",
		},
		Generation: GenerationConfig{
			AggregatePackage: "internal/domain",
			EventPackage:     "internal/events",
			CommandPackage:   "internal/commands",
		},
	}
}

// Load reads behave.yaml from dir.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, ConfigFileName))
}

// LoadFile reads a configuration from an explicit path.
func LoadFile(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("behave: read config: %w", err)
	}
	cfg := new(Config)
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("behave: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the configuration as behave.yaml under dir.
func (cf *Config) Save(dir string) error {
	return cf.SaveFile(filepath.Join(dir, ConfigFileName))
}

// SaveFile writes the configuration to an explicit path.
func (cf *Config) SaveFile(path string) error {
	out, err := yaml.Marshal(cf)
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0644)
}

// Exists reports whether dir contains a behave.yaml.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ConfigFileName))
	return err == nil
}

// FindConfig walks from dir toward the filesystem root and returns the
// first directory containing behave.yaml along with the parsed config.
func FindConfig(dir string) (string, *Config, error) {
	for at := dir; ; {
		path := filepath.Join(at, ConfigFileName)
		if _, err := os.Stat(path); err == nil {
			cfg, err := LoadFile(path)
			if err != nil {
				return "", nil, err
			}
			return at, cfg, nil
		}

		parent := filepath.Dir(at)
		if parent == at {
			return "", nil, os.ErrNotExist
		}
		at = parent
	}
}

// Validate returns one message per problem found, empty when the
// configuration is usable.
func (cf *Config) Validate() []string {
	var problems []string

	if cf.Project.Name == "" {
		problems = append(problems, "project.name is required")
	}
	if cf.Project.Module == "" {
		problems = append(problems, "project.module is required")
	}

	switch cf.Database.Driver {
	case "postgres":
		if cf.Database.URL == "" {
			problems = append(problems, "database.url is required for postgres driver")
		}
	case "memory":
	case "":
		problems = append(problems, "database.driver is required")
		fallthrough
	default:
		problems = append(problems, "database.driver must be 'postgres' or 'memory'")
	}

	return problems
}

// GenerateYAML renders cfg as an annotated behave.yaml. The database
// URL is written as ${DATABASE_URL} so credentials stay out of the
// checked-in file.
func GenerateYAML(cfg *Config) string {
	return fmt.Sprintf(`# Behave Configuration File
# Read by the behave CLI and the code generators

version: "1"

# Project identity
project:
  # Short project name
  name: %q

  # Module path, matching go.mod
  module: %q

  # Source root, relative to this file
  source_dir: %q

# Journal database
database:
  # postgres or memory
  driver: %q

  # Connection string, required by the postgres driver
  url: "${DATABASE_URL}"

  # Schema that holds the journal tables
  schema: %q

  # Migration SQL directory
  migrations_dir: %q

# Journal table names
journal:
  table_name: %q
  snapshot_table_name: %q
  idempotency_table_name: %q

# Where generated code is written
generation:
  aggregate_package: %q
  event_package: %q
  command_package: %q
`,
		cfg.Project.Name, cfg.Project.Module, cfg.Project.SourceDir,
		cfg.Database.Driver, cfg.Database.Schema, cfg.Database.MigrationsDir,
		cfg.Journal.TableName, cfg.Journal.SnapshotTableName, cfg.Journal.IdempotencyTableName,
		cfg.Generation.AggregatePackage, cfg.Generation.EventPackage, cfg.Generation.CommandPackage,
	)
}
