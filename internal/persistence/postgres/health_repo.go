package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/mediaheat/heatwatch/internal/persistence"
)

type healthRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewHealthRepo creates a PostgreSQL source-health repository.
func NewHealthRepo(db *sqlx.DB, timeout time.Duration) persistence.HealthRepo {
	return &healthRepo{db: db, timeout: timeout}
}

func (r *healthRepo) RecordOK(ctx context.Context, source string, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO source_health (source, last_ok, consecutive_errors, circuit_open_until)
		VALUES ($1, $2, 0, NULL)
		ON CONFLICT (source) DO UPDATE SET
			last_ok = EXCLUDED.last_ok,
			consecutive_errors = 0,
			circuit_open_until = NULL`

	if _, err := r.db.ExecContext(ctx, query, source, at); err != nil {
		return fmt.Errorf("failed to record ok for source %s: %w", source, err)
	}
	return nil
}

func (r *healthRepo) RecordError(ctx context.Context, source string, at, openUntil time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	// GREATEST keeps an already-open circuit from being shortened by a
	// racing worker that requested a smaller cool-down.
	query := `
		INSERT INTO source_health (source, last_error, consecutive_errors, circuit_open_until)
		VALUES ($1, $2, 1, $3)
		ON CONFLICT (source) DO UPDATE SET
			last_error = EXCLUDED.last_error,
			consecutive_errors = source_health.consecutive_errors + 1,
			circuit_open_until = GREATEST(EXCLUDED.circuit_open_until, source_health.circuit_open_until)`

	if _, err := r.db.ExecContext(ctx, query, source, at, openUntil); err != nil {
		return fmt.Errorf("failed to record error for source %s: %w", source, err)
	}
	return nil
}

func (r *healthRepo) Get(ctx context.Context, source string) (*persistence.SourceHealth, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT source, last_ok, last_error, consecutive_errors, circuit_open_until
		FROM source_health WHERE source = $1`

	var h persistence.SourceHealth
	err := r.db.GetContext(ctx, &h, query, source)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load health for source %s: %w", source, err)
	}
	return &h, nil
}

func (r *healthRepo) List(ctx context.Context) ([]persistence.SourceHealth, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var out []persistence.SourceHealth
	query := `
		SELECT source, last_ok, last_error, consecutive_errors, circuit_open_until
		FROM source_health ORDER BY source`
	if err := r.db.SelectContext(ctx, &out, query); err != nil {
		return nil, fmt.Errorf("failed to list source health: %w", err)
	}
	return out, nil
}
