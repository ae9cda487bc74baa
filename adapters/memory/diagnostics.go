package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/AshkanYarmoradi/go-behave/adapters"
)

// The memory adapter also backs CLI commands in projects that have not
// provisioned a database yet, so it satisfies the migration and diagnostic
// surfaces in memory.
var (
	_ adapters.MigrationAdapter  = (*MemoryAdapter)(nil)
	_ adapters.SchemaProvider    = (*MemoryAdapter)(nil)
	_ adapters.DiagnosticAdapter = (*MemoryAdapter)(nil)
)

// GetAppliedMigrations returns the names of migrations recorded on this
// adapter, in the order they were applied.
func (ma *MemoryAdapter) GetAppliedMigrations(ctx context.Context) ([]string, error) {
	infos, err := ma.ListMigrations(ctx)
	if err != nil {
		return nil, err
	}

	names := make([]string, len(infos))
	for i, m := range infos {
		names[i] = m.Name
	}
	return names, nil
}

// ListMigrations returns the recorded migrations with their applied times.
func (ma *MemoryAdapter) ListMigrations(ctx context.Context) ([]adapters.MigrationInfo, error) {
	var infos []adapters.MigrationInfo
	err := ma.read(ctx, func() error {
		infos = make([]adapters.MigrationInfo, len(ma.migrations))
		copy(infos, ma.migrations)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return infos, nil
}

// RecordMigration marks a migration as applied. Recording the same name
// twice is a no-op.
func (ma *MemoryAdapter) RecordMigration(ctx context.Context, name string) error {
	return ma.write(ctx, func() error {
		for _, existing := range ma.migrations {
			if existing.Name == name {
				return nil
			}
		}
		ma.migrations = append(ma.migrations, adapters.MigrationInfo{
			Name:      name,
			AppliedAt: time.Now().UTC(),
		})
		return nil
	})
}

// RemoveMigrationRecord removes a migration record.
func (ma *MemoryAdapter) RemoveMigrationRecord(ctx context.Context, name string) error {
	return ma.write(ctx, func() error {
		kept := ma.migrations[:0]
		for _, existing := range ma.migrations {
			if existing.Name != name {
				kept = append(kept, existing)
			}
		}
		ma.migrations = kept
		return nil
	})
}

// ExecuteSQL returns an error: the memory journal has no SQL engine.
func (ma *MemoryAdapter) ExecuteSQL(ctx context.Context, sqlText string) error {
	return fmt.Errorf("behave/memory: SQL execution is not supported")
}

// GenerateSchema returns a placeholder: the memory journal needs no DDL.
func (ma *MemoryAdapter) GenerateSchema(projectName, tableName, snapshotTableName, idempotencyTableName string) string {
	return fmt.Sprintf("-- %s uses the in-memory journal adapter.\n-- No database schema is required.\n", projectName)
}

// GetDiagnosticInfo reports the adapter's connection status.
func (ma *MemoryAdapter) GetDiagnosticInfo(ctx context.Context) (*adapters.DiagnosticInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ma.mu.RLock()
	defer ma.mu.RUnlock()

	if ma.closed {
		return &adapters.DiagnosticInfo{
			Connected: false,
			Message:   "adapter is closed",
		}, nil
	}

	return &adapters.DiagnosticInfo{
		Version:   "in-memory",
		Connected: true,
		Message:   "in-memory journal, data is not persisted",
	}, nil
}

// CheckSchema reports journal readiness and the current event count.
func (ma *MemoryAdapter) CheckSchema(ctx context.Context, tableName string) (*adapters.SchemaCheckResult, error) {
	result := &adapters.SchemaCheckResult{
		TableExists: true,
		Message:     "in-memory journal is ready",
	}
	err := ma.read(ctx, func() error {
		result.EventCount = int64(len(ma.journal))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
