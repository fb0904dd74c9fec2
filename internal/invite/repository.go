package invite

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/zetxtech/anonycnbot/internal/postgres"
	"github.com/zetxtech/anonycnbot/internal/user"
)

const maxCodeRetries = 3

// requestColumns lists the columns returned by queries that produce a ValidationRequest.
const requestColumns = `id, code, role, days, used_grant_id, created_at`

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	db  *pgxpool.Pool
	log zerolog.Logger
}

// NewPGRepository creates a new PostgreSQL-backed validation request repository.
func NewPGRepository(db *pgxpool.Pool, logger zerolog.Logger) *PGRepository {
	return &PGRepository{db: db, log: logger}
}

// CreateCode generates params.Num random codes, inserting one ValidationRequest row per (code, role) pair. Retries
// on the unlikely event of a code collision against the (code, role) unique constraint.
func (r *PGRepository) CreateCode(ctx context.Context, params CreateCodeParams) ([]string, error) {
	length := params.Length
	if length <= 0 {
		length = 16
	}
	num := params.Num
	if num <= 0 {
		num = 1
	}

	codes := make([]string, 0, num)
	err := postgres.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		for i := 0; i < num; i++ {
			code, err := r.insertOneCode(ctx, tx, length, params.Roles, params.Days)
			if err != nil {
				return err
			}
			codes = append(codes, code)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return codes, nil
}

func (r *PGRepository) insertOneCode(ctx context.Context, tx pgx.Tx, length int, roles []user.Role, days *int) (string, error) {
	for attempt := 0; attempt < maxCodeRetries; attempt++ {
		code, err := generateCode(length)
		if err != nil {
			return "", fmt.Errorf("generate validation code: %w", err)
		}

		// Each attempt runs under a savepoint so a collision can be rolled back without aborting the outer transaction.
		sp, err := tx.Begin(ctx)
		if err != nil {
			return "", fmt.Errorf("begin code savepoint: %w", err)
		}
		ok := true
		for _, role := range roles {
			_, err := sp.Exec(ctx,
				`INSERT INTO validation_requests (code, role, days) VALUES ($1, $2, $3)`,
				code, int(role), days,
			)
			if err != nil {
				if postgres.IsUniqueViolation(err) {
					ok = false
					break
				}
				return "", fmt.Errorf("insert validation request: %w", err)
			}
		}
		if ok {
			if err := sp.Commit(ctx); err != nil {
				return "", fmt.Errorf("release code savepoint: %w", err)
			}
			return code, nil
		}
		if err := sp.Rollback(ctx); err != nil {
			return "", fmt.Errorf("roll back code savepoint: %w", err)
		}
	}
	return "", fmt.Errorf("generate unique validation code after %d attempts", maxCodeRetries)
}

// UseCode atomically consumes every unused ValidationRequest matching code, granting each role via grant and
// back-linking the request to the resulting RoleGrant.
func (r *PGRepository) UseCode(ctx context.Context, userID uuid.UUID, code string, grant GrantFunc) ([]user.Role, error) {
	var granted []user.Role

	err := postgres.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx,
			`SELECT id, role, days FROM validation_requests WHERE code = $1 AND used_grant_id IS NULL FOR UPDATE`,
			code,
		)
		if err != nil {
			return fmt.Errorf("query unused validation requests: %w", err)
		}
		type pending struct {
			id   uuid.UUID
			role user.Role
			days *int
		}
		var reqs []pending
		for rows.Next() {
			var p pending
			var role int
			if err := rows.Scan(&p.id, &role, &p.days); err != nil {
				rows.Close()
				return fmt.Errorf("scan validation request: %w", err)
			}
			p.role = user.Role(role)
			reqs = append(reqs, p)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterate validation requests: %w", err)
		}
		rows.Close()

		if len(reqs) == 0 {
			return ErrNotFound
		}

		for _, p := range reqs {
			days := 0
			if p.days != nil {
				days = *p.days
			}
			grantID, err := grant(ctx, userID, p.role, days, code)
			if err != nil {
				return fmt.Errorf("grant role %s: %w", p.role, err)
			}
			if _, err := tx.Exec(ctx,
				`UPDATE validation_requests SET used_grant_id = $1 WHERE id = $2`,
				grantID, p.id,
			); err != nil {
				return fmt.Errorf("mark validation request used: %w", err)
			}
			granted = append(granted, p.role)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return granted, nil
}

// GetByCode returns every ValidationRequest matching code, used and unused alike.
func (r *PGRepository) GetByCode(ctx context.Context, code string) ([]ValidationRequest, error) {
	rows, err := r.db.Query(ctx, `SELECT `+requestColumns+` FROM validation_requests WHERE code = $1`, code)
	if err != nil {
		return nil, fmt.Errorf("query validation requests by code: %w", err)
	}
	defer rows.Close()

	var reqs []ValidationRequest
	for rows.Next() {
		v, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate validation requests: %w", err)
	}
	if len(reqs) == 0 {
		return nil, ErrNotFound
	}
	return reqs, nil
}

func scanRequest(row pgx.Row) (*ValidationRequest, error) {
	var v ValidationRequest
	var role int
	err := row.Scan(&v.ID, &v.Code, &role, &v.Days, &v.UsedGrantID, &v.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan validation request: %w", err)
	}
	v.Role = user.Role(role)
	return &v, nil
}
