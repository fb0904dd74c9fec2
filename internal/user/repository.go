package user

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/zetxtech/anonycnbot/internal/postgres"
)

const userColumns = `id, platform_id, first_name, last_name, username, created_at, last_activity`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.PlatformID, &u.FirstName, &u.LastName, &u.Username, &u.CreatedAt, &u.LastActivity); err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}

func scanRoleGrant(row pgx.Row) (RoleGrant, error) {
	var g RoleGrant
	var role int
	if err := row.Scan(&g.ID, &role, &g.ExpiresAt, &g.Code, &g.CreatedAt); err != nil {
		return RoleGrant{}, fmt.Errorf("scan role grant: %w", err)
	}
	g.Role = Role(role)
	return g, nil
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	db  *pgxpool.Pool
	log zerolog.Logger
}

// NewPGRepository creates a new PostgreSQL-backed user repository.
func NewPGRepository(db *pgxpool.Pool, logger zerolog.Logger) *PGRepository {
	return &PGRepository{db: db, log: logger}
}

func (r *PGRepository) Create(ctx context.Context, params CreateParams) (*User, error) {
	row := r.db.QueryRow(ctx,
		`INSERT INTO users (platform_id, first_name, last_name, username)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+userColumns,
		params.PlatformID, params.FirstName, params.LastName, params.Username,
	)
	u, err := scanUser(row)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

func (r *PGRepository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query user by id: %w", err)
	}
	return u, nil
}

func (r *PGRepository) GetByPlatformID(ctx context.Context, platformID int64) (*User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE platform_id = $1`, platformID)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query user by platform id: %w", err)
	}
	return u, nil
}

// GetOrCreate fetches the user for platformID, creating one from params if none exists yet. The bool return reports
// whether a new user was created.
func (r *PGRepository) GetOrCreate(ctx context.Context, params CreateParams) (*User, bool, error) {
	u, err := r.GetByPlatformID(ctx, params.PlatformID)
	if err == nil {
		return u, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	u, err = r.Create(ctx, params)
	if err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			u, err = r.GetByPlatformID(ctx, params.PlatformID)
			if err != nil {
				return nil, false, err
			}
			return u, false, nil
		}
		return nil, false, err
	}
	return u, true, nil
}

func (r *PGRepository) Touch(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx, `UPDATE users SET last_activity = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("touch user: %w", err)
	}
	return nil
}

// AddRole grants role to the user. An existing grant's expiry is extended rather than reset, so that calling
// AddRole(u, R, d) twice in a row yields an expiry of now+2d (spec.md §8). days<=0 makes the grant permanent.
func (r *PGRepository) AddRole(ctx context.Context, userID uuid.UUID, role Role, days int, code string) (*RoleGrant, error) {
	var row pgx.Row
	if days <= 0 {
		row = r.db.QueryRow(ctx,
			`INSERT INTO role_grants (user_id, role, expires_at, code)
			 VALUES ($1, $2, NULL, $3)
			 ON CONFLICT (user_id, role) DO UPDATE SET expires_at = NULL, code = EXCLUDED.code
			 RETURNING id, role, expires_at, code, created_at`,
			userID, int(role), code,
		)
	} else {
		interval := fmt.Sprintf("%d days", days)
		row = r.db.QueryRow(ctx,
			`INSERT INTO role_grants (user_id, role, expires_at, code)
			 VALUES ($1, $2, now() + $3::interval, $4)
			 ON CONFLICT (user_id, role) DO UPDATE SET
			     expires_at = CASE
			         WHEN role_grants.expires_at IS NULL THEN NULL
			         ELSE GREATEST(role_grants.expires_at, now()) + $3::interval
			     END,
			     code = EXCLUDED.code
			 RETURNING id, role, expires_at, code, created_at`,
			userID, int(role), interval, code,
		)
	}

	g, err := scanRoleGrant(row)
	if err != nil {
		return nil, fmt.Errorf("upsert role grant: %w", err)
	}
	return &g, nil
}

func (r *PGRepository) Roles(ctx context.Context, userID uuid.UUID) ([]RoleGrant, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, role, expires_at, code, created_at FROM role_grants WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("query role grants: %w", err)
	}
	defer rows.Close()

	var grants []RoleGrant
	for rows.Next() {
		g, err := scanRoleGrant(rows)
		if err != nil {
			return nil, err
		}
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate role grants: %w", err)
	}
	return grants, nil
}
