package banish

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/zetxtech/anonycnbot/internal/postgres"
)

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	db  *pgxpool.Pool
	log zerolog.Logger
}

// NewPGRepository creates a new PostgreSQL-backed ban group repository.
func NewPGRepository(db *pgxpool.Pool, logger zerolog.Logger) *PGRepository {
	return &PGRepository{db: db, log: logger}
}

func (r *PGRepository) Create(ctx context.Context, until *time.Time, types []Type) (*Group, error) {
	g := &Group{Until: until, Types: map[Type]bool{}}
	err := postgres.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `INSERT INTO ban_groups (until) VALUES ($1) RETURNING id`, until)
		if err := row.Scan(&g.ID); err != nil {
			return fmt.Errorf("insert ban group: %w", err)
		}
		for _, t := range types {
			_, err := tx.Exec(ctx,
				`INSERT INTO ban_group_entries (ban_group_id, ban_type) VALUES ($1, $2)`, g.ID, int(t))
			if err != nil {
				return fmt.Errorf("insert ban group entry: %w", err)
			}
			g.Types[t] = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

func (r *PGRepository) GetByID(ctx context.Context, id uuid.UUID) (*Group, error) {
	g := &Group{ID: id, Types: map[Type]bool{}}
	row := r.db.QueryRow(ctx, `SELECT until FROM ban_groups WHERE id = $1`, id)
	if err := row.Scan(&g.Until); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query ban group: %w", err)
	}

	rows, err := r.db.Query(ctx, `SELECT ban_type FROM ban_group_entries WHERE ban_group_id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("query ban group entries: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var t int
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan ban group entry: %w", err)
		}
		g.Types[Type(t)] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ban group entries: %w", err)
	}
	return g, nil
}

func (r *PGRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM ban_groups WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete ban group: %w", err)
	}
	return nil
}
