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

type trendRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewTrendRepo creates a PostgreSQL trend-state repository.
func NewTrendRepo(db *sqlx.DB, timeout time.Duration) persistence.TrendRepo {
	return &trendRepo{db: db, timeout: timeout}
}

// RecordPass is a single atomic upsert: the consecutive counter increments
// only when the new pass timestamp is strictly newer than the stored one,
// so re-evaluating the same poll can never double-count.
func (r *trendRepo) RecordPass(ctx context.Context, entityID int64, ts time.Time) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO trend_state (entity_id, last_gate_pass_ts, consecutive_passes)
		VALUES ($1, $2, 1)
		ON CONFLICT (entity_id) DO UPDATE SET
			last_gate_pass_ts = EXCLUDED.last_gate_pass_ts,
			consecutive_passes = CASE
				WHEN trend_state.last_gate_pass_ts IS NOT NULL
				 AND EXCLUDED.last_gate_pass_ts > trend_state.last_gate_pass_ts
				THEN trend_state.consecutive_passes + 1
				ELSE 1
			END
		RETURNING consecutive_passes`

	var passes int
	if err := r.db.QueryRowxContext(ctx, query, entityID, ts).Scan(&passes); err != nil {
		return 0, fmt.Errorf("failed to record gate pass for entity %d: %w", entityID, err)
	}
	return passes, nil
}

func (r *trendRepo) RecordFail(ctx context.Context, entityID int64) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO trend_state (entity_id, consecutive_passes)
		VALUES ($1, 0)
		ON CONFLICT (entity_id) DO UPDATE SET consecutive_passes = 0`

	if _, err := r.db.ExecContext(ctx, query, entityID); err != nil {
		return fmt.Errorf("failed to record gate fail for entity %d: %w", entityID, err)
	}
	return nil
}

func (r *trendRepo) Get(ctx context.Context, entityID int64) (*persistence.TrendState, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT entity_id, last_gate_pass_ts, consecutive_passes, last_alert_ts, last_alert_heat, prior_peak_heat
		FROM trend_state WHERE entity_id = $1`

	var st persistence.TrendState
	err := r.db.GetContext(ctx, &st, query, entityID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load trend state for entity %d: %w", entityID, err)
	}
	return &st, nil
}

func (r *trendRepo) MarkAlerted(ctx context.Context, entityID int64, ts time.Time, heat float64) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO trend_state (entity_id, last_alert_ts, last_alert_heat, prior_peak_heat)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (entity_id) DO UPDATE SET
			last_alert_ts = EXCLUDED.last_alert_ts,
			last_alert_heat = EXCLUDED.last_alert_heat,
			prior_peak_heat = GREATEST(COALESCE(trend_state.prior_peak_heat, 0), EXCLUDED.prior_peak_heat)`

	if _, err := r.db.ExecContext(ctx, query, entityID, ts, heat); err != nil {
		return fmt.Errorf("failed to mark alert for entity %d: %w", entityID, err)
	}
	return nil
}
