// Package duckdb persists the activity journal backing the stats dashboard.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/MickaelSuard/ComiaV2/internal/core/domain"
	"github.com/MickaelSuard/ComiaV2/internal/core/ports"
)

type Repository struct {
	db *sql.DB
}

// Ensure Repository implements the activity port
var _ ports.ActivityRepository = (*Repository)(nil)

// NewRepository opens (or creates) the DuckDB file and ensures the schema.
// An empty path opens an in-memory database.
func NewRepository(path string) (*Repository, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	r := &Repository{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repository) migrate() error {
	_, err := r.db.Exec(`
		CREATE TABLE IF NOT EXISTS activity (
			id          VARCHAR PRIMARY KEY,
			module      VARCHAR NOT NULL,
			action      VARCHAR NOT NULL,
			detail      VARCHAR,
			occurred_at TIMESTAMP NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("create activity table: %w", err)
	}
	return nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

// RecordEvent appends one activity row.
func (r *Repository) RecordEvent(ctx context.Context, event domain.ActivityEvent) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO activity (id, module, action, detail, occurred_at)
		VALUES (?, ?, ?, ?, ?)`,
		event.ID,
		string(event.Module),
		event.Action,
		event.Detail,
		event.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

// ListRecent returns the newest events (newest first).
func (r *Repository) ListRecent(ctx context.Context, limit int) ([]domain.ActivityEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, module, action, detail, occurred_at
		FROM activity
		ORDER BY occurred_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close()

	var out []domain.ActivityEvent
	for rows.Next() {
		var e domain.ActivityEvent
		var module string
		if err := rows.Scan(&e.ID, &module, &e.Action, &e.Detail, &e.OccurredAt); err != nil {
			return nil, err
		}
		e.Module = domain.ModuleKind(module)
		out = append(out, e)
	}
	if out == nil {
		out = []domain.ActivityEvent{}
	}
	return out, rows.Err()
}

// CountByModule aggregates submitted/completed/failed totals per module.
func (r *Repository) CountByModule(ctx context.Context) (map[domain.ModuleKind]domain.ModuleStats, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT module,
		       COUNT(*) FILTER (WHERE action = 'submitted'),
		       COUNT(*) FILTER (WHERE action = 'completed'),
		       COUNT(*) FILTER (WHERE action = 'failed')
		FROM activity
		GROUP BY module`)
	if err != nil {
		return nil, fmt.Errorf("aggregate activity: %w", err)
	}
	defer rows.Close()

	out := make(map[domain.ModuleKind]domain.ModuleStats)
	for rows.Next() {
		var module string
		var stats domain.ModuleStats
		if err := rows.Scan(&module, &stats.Submitted, &stats.Completed, &stats.Failed); err != nil {
			return nil, err
		}
		out[domain.ModuleKind(module)] = stats
	}
	return out, rows.Err()
}
