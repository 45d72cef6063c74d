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

type mentionRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewMentionRepo creates a PostgreSQL trade-mention repository.
func NewMentionRepo(db *sqlx.DB, timeout time.Duration) persistence.MentionRepo {
	return &mentionRepo{db: db, timeout: timeout}
}

func (r *mentionRepo) Record(ctx context.Context, m persistence.TradeMention) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	// First write wins: a later scrape never moves first_seen_ts forward.
	query := `
		INSERT INTO trade_mentions (entity_id, source, first_seen_ts)
		VALUES ($1, $2, $3)
		ON CONFLICT (entity_id, source) DO NOTHING`

	if _, err := r.db.ExecContext(ctx, query, m.EntityID, m.Source, m.FirstSeenTS); err != nil {
		return fmt.Errorf("failed to record trade mention for entity %d: %w", m.EntityID, err)
	}
	return nil
}

func (r *mentionRepo) FirstMention(ctx context.Context, entityID int64) (*time.Time, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var ts sql.NullTime
	query := `SELECT MIN(first_seen_ts) FROM trade_mentions WHERE entity_id = $1`
	err := r.db.QueryRowxContext(ctx, query, entityID).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !ts.Valid) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load first trade mention for entity %d: %w", entityID, err)
	}
	t := ts.Time
	return &t, nil
}
