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

type scoreRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewScoreRepo creates a PostgreSQL score repository.
func NewScoreRepo(db *sqlx.DB, timeout time.Duration) persistence.ScoreRepo {
	return &scoreRepo{db: db, timeout: timeout}
}

const scoreColumns = `entity_id, ts, velocity_z, accel, xplat, affect, novelty, et_fit, tentpole, decay, risk, heat, reasons`

func (r *scoreRepo) Insert(ctx context.Context, s persistence.Score) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO scores (` + scoreColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := r.db.ExecContext(ctx, query,
		s.EntityID, s.Timestamp, s.VelocityZ, s.Accel, s.Spread, s.Affect,
		s.Novelty, s.EtFit, s.Tentpole, s.Decay, s.Risk, s.Heat, s.Reasons)
	if err != nil {
		return fmt.Errorf("failed to insert score for entity %d: %w", s.EntityID, err)
	}
	return nil
}

func (r *scoreRepo) Latest(ctx context.Context, entityID int64) (*persistence.Score, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `SELECT ` + scoreColumns + ` FROM scores WHERE entity_id = $1 ORDER BY ts DESC LIMIT 1`

	var s persistence.Score
	err := r.db.GetContext(ctx, &s, query, entityID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest score for entity %d: %w", entityID, err)
	}
	return &s, nil
}

func (r *scoreRepo) LatestAll(ctx context.Context, since time.Time) ([]persistence.Score, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		WITH latest AS (
			SELECT entity_id, MAX(ts) AS ts
			FROM scores
			WHERE ts >= $1
			GROUP BY entity_id
		)
		SELECT s.entity_id, s.ts, s.velocity_z, s.accel, s.xplat, s.affect, s.novelty,
		       s.et_fit, s.tentpole, s.decay, s.risk, s.heat, s.reasons
		FROM scores s
		JOIN latest l ON l.entity_id = s.entity_id AND l.ts = s.ts
		ORDER BY s.heat DESC`

	var out []persistence.Score
	if err := r.db.SelectContext(ctx, &out, query, since); err != nil {
		return nil, fmt.Errorf("failed to load latest scores: %w", err)
	}
	return out, nil
}

func (r *scoreRepo) PeakTS(ctx context.Context, entityID int64, since time.Time) (*time.Time, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT ts FROM scores
		WHERE entity_id = $1 AND ts >= $2
		ORDER BY heat DESC, ts DESC
		LIMIT 1`

	var ts time.Time
	err := r.db.QueryRowxContext(ctx, query, entityID, since).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load peak ts for entity %d: %w", entityID, err)
	}
	return &ts, nil
}
