/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package migrate provides a database migration runner over database/sql.
// Migrations are applied in order inside transactions, and the IDs of applied
// migrations are recorded in a versions table.
package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/acronis/go-webkit/log"
)

// DefaultVersionsTable is the default name of the table recording applied migration IDs.
const DefaultVersionsTable = "schema_migrations"

// Migration is a single schema change identified by a unique ID.
// IDs define the application order, so a sortable naming scheme
// (e.g. "0001_create_orders") is expected.
type Migration struct {
	ID  string
	SQL string
}

// Runner applies migrations to a database.
type Runner struct {
	db            *sql.DB
	versionsTable string
	logger        log.FieldLogger
}

// RunnerOpts represents an options for Runner.
type RunnerOpts struct {
	// VersionsTable is the name of the table recording applied migration IDs.
	// Defaults to DefaultVersionsTable.
	VersionsTable string

	// Logger is used for reporting applied migrations. Defaults to a disabled logger.
	Logger log.FieldLogger
}

// NewRunner creates a new Runner over the passed database.
func NewRunner(db *sql.DB) *Runner {
	return NewRunnerWithOpts(db, RunnerOpts{})
}

// NewRunnerWithOpts creates a new Runner over the passed database with the passed options.
func NewRunnerWithOpts(db *sql.DB, opts RunnerOpts) *Runner {
	versionsTable := opts.VersionsTable
	if versionsTable == "" {
		versionsTable = DefaultVersionsTable
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewDisabledLogger()
	}
	return &Runner{db: db, versionsTable: versionsTable, logger: logger}
}

// Run applies all pending migrations in ID order. Each migration runs in its
// own transaction together with the insert into the versions table, so a
// failed migration leaves the schema unchanged. Migrations already recorded
// in the versions table are skipped.
func (r *Runner) Run(ctx context.Context, migrations []Migration) error {
	if err := r.ensureVersionsTable(ctx); err != nil {
		return err
	}

	applied, err := r.Applied(ctx)
	if err != nil {
		return err
	}
	appliedSet := make(map[string]struct{}, len(applied))
	for _, id := range applied {
		appliedSet[id] = struct{}{}
	}

	sorted := append([]Migration{}, migrations...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	for _, m := range sorted {
		if _, ok := appliedSet[m.ID]; ok {
			continue
		}
		if err := r.apply(ctx, m); err != nil {
			return fmt.Errorf("apply migration %q: %w", m.ID, err)
		}
		r.logger.Info("migration applied", log.String("migration_id", m.ID))
	}
	return nil
}

// Applied returns the IDs of migrations recorded in the versions table, in application order.
func (r *Runner) Applied(ctx context.Context) ([]string, error) {
	if err := r.ensureVersionsTable(ctx); err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx,
		fmt.Sprintf("SELECT id FROM %s ORDER BY id", r.versionsTable))
	if err != nil {
		return nil, fmt.Errorf("query versions table: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err = rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan versions table row: %w", err)
		}
		ids = append(ids, id)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate versions table rows: %w", err)
	}
	return ids, nil
}

func (r *Runner) ensureVersionsTable(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (id TEXT PRIMARY KEY, applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP)",
		r.versionsTable))
	if err != nil {
		return fmt.Errorf("create versions table: %w", err)
	}
	return nil
}

func (r *Runner) apply(ctx context.Context, m Migration) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if _, err = tx.ExecContext(ctx, m.SQL); err != nil {
		_ = tx.Rollback()
		return err
	}
	if _, err = tx.ExecContext(ctx,
		fmt.Sprintf("INSERT INTO %s (id) VALUES ($1)", r.versionsTable), m.ID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("record migration: %w", err)
	}
	return tx.Commit()
}
