package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/mediaheat/heatwatch/internal/persistence"
)

type signalRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewSignalRepo creates a PostgreSQL signal repository.
func NewSignalRepo(db *sqlx.DB, timeout time.Duration) persistence.SignalRepo {
	return &signalRepo{db: db, timeout: timeout}
}

func (r *signalRepo) Insert(ctx context.Context, s persistence.Signal) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO signals (entity_id, source, metric, ts, value)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT DO NOTHING`

	if _, err := r.db.ExecContext(ctx, query, s.EntityID, s.Source, s.Metric, s.Timestamp, s.Value); err != nil {
		return fmt.Errorf("failed to insert signal %s/%s: %w", s.Source, s.Metric, err)
	}
	return nil
}

func (r *signalRepo) Series(ctx context.Context, entityID int64, source, metric string, since time.Time) ([]persistence.Point, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT ts, value FROM signals
		WHERE entity_id = $1 AND source = $2 AND metric = $3 AND ts >= $4
		ORDER BY ts ASC`

	var points []persistence.Point
	if err := r.db.SelectContext(ctx, &points, query, entityID, source, metric, since); err != nil {
		return nil, fmt.Errorf("failed to load series %s/%s: %w", source, metric, err)
	}
	return points, nil
}

func (r *signalRepo) MetricSeries(ctx context.Context, entityID int64, sources []string, since time.Time) (map[string]map[string][]persistence.Point, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT source, metric, ts, value FROM signals
		WHERE entity_id = $1 AND source = ANY($2) AND ts >= $3
		ORDER BY ts ASC`

	rows, err := r.db.QueryxContext(ctx, query, entityID, pq.Array(sources), since)
	if err != nil {
		return nil, fmt.Errorf("failed to load metric series: %w", err)
	}
	defer rows.Close()

	out := make(map[string]map[string][]persistence.Point)
	for rows.Next() {
		var source, metric string
		var p persistence.Point
		if err := rows.Scan(&source, &metric, &p.Timestamp, &p.Value); err != nil {
			return nil, fmt.Errorf("failed to scan signal row: %w", err)
		}
		byMetric, ok := out[source]
		if !ok {
			byMetric = make(map[string][]persistence.Point)
			out[source] = byMetric
		}
		byMetric[metric] = append(byMetric[metric], p)
	}
	return out, rows.Err()
}

func (r *signalRepo) HasRecent(ctx context.Context, entityID int64, sources []string, since time.Time) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `SELECT EXISTS (
		SELECT 1 FROM signals WHERE entity_id = $1 AND source = ANY($2) AND ts >= $3)`

	var exists bool
	if err := r.db.QueryRowxContext(ctx, query, entityID, pq.Array(sources), since).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to probe recent signals: %w", err)
	}
	return exists, nil
}
