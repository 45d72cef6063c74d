package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/mediaheat/heatwatch/internal/persistence"
)

const defaultTimeout = 10 * time.Second

// Connect opens a pooled connection and verifies it with a ping.
func Connect(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

// NewStore wires all postgres repositories onto a single pool.
func NewStore(db *sqlx.DB) *persistence.Store {
	return &persistence.Store{
		Entities: NewEntityRepo(db, defaultTimeout),
		Signals:  NewSignalRepo(db, defaultTimeout),
		Scores:   NewScoreRepo(db, defaultTimeout),
		Trend:    NewTrendRepo(db, defaultTimeout),
		Mentions: NewMentionRepo(db, defaultTimeout),
		Alerts:   NewAlertRepo(db, defaultTimeout),
		Health:   NewHealthRepo(db, defaultTimeout),
		Audit:    NewAuditRepo(db, defaultTimeout),
	}
}
