package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/mediaheat/heatwatch/internal/persistence"
)

type entityRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewEntityRepo creates a PostgreSQL entity repository.
func NewEntityRepo(db *sqlx.DB, timeout time.Duration) persistence.EntityRepo {
	return &entityRepo{db: db, timeout: timeout}
}

func (r *entityRepo) Upsert(ctx context.Context, e persistence.Entity) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	// Alias union happens server-side so concurrent upserts never shrink
	// the alias set.
	query := `
		INSERT INTO entities (name, type, category, aliases, wiki_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (name) DO UPDATE SET
			aliases = ARRAY(SELECT DISTINCT unnest(entities.aliases || EXCLUDED.aliases)),
			wiki_id = COALESCE(EXCLUDED.wiki_id, entities.wiki_id)
		RETURNING id`

	var id int64
	err := r.db.QueryRowxContext(ctx, query,
		e.Name, e.Type, e.Category, pq.Array(e.Aliases), e.WikiID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert entity %q: %w", e.Name, err)
	}
	return id, nil
}

func (r *entityRepo) Get(ctx context.Context, id int64) (*persistence.Entity, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var e persistence.Entity
	var aliases pq.StringArray
	query := `SELECT id, name, type, category, aliases, wiki_id, created_at FROM entities WHERE id = $1`
	err := r.db.QueryRowxContext(ctx, query, id).
		Scan(&e.ID, &e.Name, &e.Type, &e.Category, &aliases, &e.WikiID, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load entity %d: %w", id, err)
	}
	e.Aliases = aliases
	return &e, nil
}

func (r *entityRepo) List(ctx context.Context) ([]persistence.Entity, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryxContext(ctx,
		`SELECT id, name, type, category, aliases, wiki_id, created_at FROM entities ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}
	defer rows.Close()

	var out []persistence.Entity
	for rows.Next() {
		var e persistence.Entity
		var aliases pq.StringArray
		if err := rows.Scan(&e.ID, &e.Name, &e.Type, &e.Category, &aliases, &e.WikiID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		e.Aliases = aliases
		out = append(out, e)
	}
	return out, rows.Err()
}
