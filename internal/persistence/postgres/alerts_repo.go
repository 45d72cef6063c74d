package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/mediaheat/heatwatch/internal/persistence"
)

type alertRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewAlertRepo creates a PostgreSQL alert repository.
func NewAlertRepo(db *sqlx.DB, timeout time.Duration) persistence.AlertRepo {
	return &alertRepo{db: db, timeout: timeout}
}

func (r *alertRepo) Insert(ctx context.Context, a persistence.Alert) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO alerts (id, entity_id, alert_ts, heat, reasons, pre_trade, lead_time_minutes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.ExecContext(ctx, query,
		a.ID, a.EntityID, a.AlertTS, a.Heat, a.Reasons, a.PreTrade, a.LeadTimeMinutes)
	if err != nil {
		return fmt.Errorf("failed to insert alert for entity %d: %w", a.EntityID, err)
	}
	return nil
}

func (r *alertRepo) Recent(ctx context.Context, limit int) ([]persistence.Alert, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT a.id, a.entity_id, e.name AS entity_name, a.alert_ts, a.heat, a.reasons, a.pre_trade, a.lead_time_minutes
		FROM alerts a
		JOIN entities e ON e.id = a.entity_id
		ORDER BY a.alert_ts DESC
		LIMIT $1`

	var out []persistence.Alert
	if err := r.db.SelectContext(ctx, &out, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list recent alerts: %w", err)
	}
	return out, nil
}
