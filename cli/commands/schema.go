package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/AshkanYarmoradi/go-behave/cli/config"
	"github.com/AshkanYarmoradi/go-behave/cli/styles"
	"github.com/spf13/cobra"
)

// NewSchemaCommand builds the schema command tree.
func NewSchemaCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Manage journal schema",
		Long: `Generate and manage the journal database schema.

Usage examples:
  behave schema generate           # Generate schema SQL
  behave schema print              # Print current schema`,
	}
	cmd.AddCommand(newSchemaGenerateCmd(), newSchemaPrintCmd())
	return cmd
}

func newSchemaGenerateCmd() *cobra.Command {
	var outFile string

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate journal schema SQL",
		RunE: func(cmd *cobra.Command, args []string) error {
			ddl, err := currentSchema(cmd.Context())
			if err != nil {
				return err
			}
			if outFile == "" {
				fmt.Println(ddl)
				return nil
			}
			if err := os.WriteFile(outFile, []byte(ddl), 0644); err != nil {
				return err
			}
			fmt.Println(styles.FormatSuccess("Schema written to " + outFile))
			return nil
		},
	}

	cmd.Flags().StringVarP(&outFile, "output", "o", "", "Write the SQL to a file instead of stdout")
	return cmd
}

func newSchemaPrintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "print",
		Short: "Print the journal schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			ddl, err := currentSchema(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Println()
			fmt.Println(styles.Title.Render(styles.IconDB + " Journal Schema"))
			fmt.Println()
			fmt.Println(styles.Code.Render(ddl))
			return nil
		},
	}
}

// currentSchema loads the config, or falls back to defaults, and renders the
// schema DDL for it.
func currentSchema(ctx context.Context) (string, error) {
	cfg, _, err := configOrDefault()
	if err != nil {
		return "", err
	}
	return schemaFromAdapter(ctx, cfg)
}

// schemaFromAdapter renders the DDL through the configured ad.
// Without a reachable database it falls back to the static template, so
// schema printing keeps working before anything is provisioned.
func schemaFromAdapter(ctx context.Context, cfg *config.Config) (string, error) {
	af, err := NewAdapterFactory(cfg)
	if err != nil {
		return fallbackSchema(cfg), nil
	}
	ad, err := af.CreateAdapter(ctx)
	if err != nil {
		return fallbackSchema(cfg), nil
	}
	defer func() { _ = ad.Close() }()

	j := cfg.Journal
	return ad.GenerateSchema(cfg.Project.Name, j.TableName, j.SnapshotTableName, j.IdempotencyTableName), nil
}

// fallbackSchema renders the PostgreSQL schema without touching an
// adapter. Used when DATABASE_URL is not set but the user still wants to see
// the DDL.
func fallbackSchema(cfg *config.Config) string {
	schema := cfg.Database.Schema
	if schema == "" {
		schema = "behave"
	}
	tableName := cfg.Journal.TableName
	if tableName == "" {
		tableName = "events"
	}
	snapshotTableName := cfg.Journal.SnapshotTableName
	if snapshotTableName == "" {
		snapshotTableName = "snapshots"
	}
	idempotencyTableName := cfg.Journal.IdempotencyTableName
	if idempotencyTableName == "" {
		idempotencyTableName = "processed_commands"
	}

	return fmt.Sprintf(`-- Journal schema for %[1]s
-- Generated for PostgreSQL 13+

CREATE SCHEMA IF NOT EXISTS %[2]s;

CREATE TABLE IF NOT EXISTS %[2]s.streams (
    id              BIGSERIAL PRIMARY KEY,
    stream_id       VARCHAR(500) NOT NULL UNIQUE,
    kind            VARCHAR(250) NOT NULL,
    version         BIGINT NOT NULL DEFAULT 0,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS %[2]s.%[3]s (
    global_position BIGSERIAL PRIMARY KEY,
    stream_id       VARCHAR(500) NOT NULL,
    version         BIGINT NOT NULL,
    event_id        UUID NOT NULL DEFAULT gen_random_uuid(),
    event_type      VARCHAR(500) NOT NULL,
    data            JSONB NOT NULL,
    metadata        JSONB,
    timestamp       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE(stream_id, version)
);

CREATE INDEX IF NOT EXISTS idx_streams_kind ON %[2]s.streams(kind);
CREATE INDEX IF NOT EXISTS idx_%[3]s_stream ON %[2]s.%[3]s(stream_id, version);
CREATE INDEX IF NOT EXISTS idx_%[3]s_type ON %[2]s.%[3]s(event_type);
CREATE INDEX IF NOT EXISTS idx_%[3]s_timestamp ON %[2]s.%[3]s(timestamp);

CREATE TABLE IF NOT EXISTS %[2]s.%[4]s (
    stream_id       VARCHAR(500) PRIMARY KEY,
    version         BIGINT NOT NULL,
    data            BYTEA NOT NULL,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS %[2]s.%[5]s (
    key             VARCHAR(255) PRIMARY KEY,
    command_type    VARCHAR(255) NOT NULL,
    aggregate_id    VARCHAR(255),
    version         BIGINT,
    response        JSONB,
    error           TEXT,
    success         BOOLEAN NOT NULL DEFAULT false,
    processed_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    expires_at      TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_%[5]s_expires_at ON %[2]s.%[5]s(expires_at);

CREATE TABLE IF NOT EXISTS %[2]s.schema_migrations (
    name            VARCHAR(500) PRIMARY KEY,
    applied_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`, cfg.Project.Name, schema, tableName, snapshotTableName, idempotencyTableName)
}
