package member

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

const memberColumns = `id, group_id, user_id, role, joined_at, last_activity, last_mask, pinned_mask, ban_group_id, invitor_id`

func scanMember(row pgx.Row) (*Member, error) {
	var m Member
	var role int
	err := row.Scan(&m.ID, &m.GroupID, &m.UserID, &role, &m.JoinedAt, &m.LastActivity,
		&m.LastMask, &m.PinnedMask, &m.BanGroupID, &m.InvitorID)
	if err != nil {
		return nil, fmt.Errorf("scan member: %w", err)
	}
	m.Role = Role(role)
	return &m, nil
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	db  *pgxpool.Pool
	log zerolog.Logger
}

// NewPGRepository creates a new PostgreSQL-backed member repository.
func NewPGRepository(db *pgxpool.Pool, logger zerolog.Logger) *PGRepository {
	return &PGRepository{db: db, log: logger}
}

func (r *PGRepository) Create(ctx context.Context, params CreateParams) (*Member, error) {
	row := r.db.QueryRow(ctx,
		`INSERT INTO members (group_id, user_id, role, invitor_id)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+memberColumns,
		params.GroupID, params.UserID, int(params.Role), params.InvitorID,
	)
	m, err := scanMember(row)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("insert member: %w", err)
	}
	return m, nil
}

func (r *PGRepository) GetByID(ctx context.Context, id uuid.UUID) (*Member, error) {
	m, err := scanMember(r.db.QueryRow(ctx, `SELECT `+memberColumns+` FROM members WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return m, nil
}

func (r *PGRepository) GetByGroupAndUser(ctx context.Context, groupID, userID uuid.UUID) (*Member, error) {
	m, err := scanMember(r.db.QueryRow(ctx,
		`SELECT `+memberColumns+` FROM members WHERE group_id = $1 AND user_id = $2`, groupID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return m, nil
}

// ListRecipients returns members of groupID with role >= GUEST, excluding excludeMemberID, ordered by joined_at.
func (r *PGRepository) ListRecipients(ctx context.Context, groupID uuid.UUID, excludeMemberID uuid.UUID) ([]*Member, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+memberColumns+` FROM members
		 WHERE group_id = $1 AND id != $2 AND role >= $3
		 ORDER BY joined_at ASC`,
		groupID, excludeMemberID, int(RoleGuest),
	)
	if err != nil {
		return nil, fmt.Errorf("query recipients: %w", err)
	}
	defer rows.Close()

	var members []*Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recipients: %w", err)
	}
	return members, nil
}

func (r *PGRepository) SetRole(ctx context.Context, id uuid.UUID, role Role) error {
	tag, err := r.db.Exec(ctx, `UPDATE members SET role = $1 WHERE id = $2`, int(role), id)
	if err != nil {
		return fmt.Errorf("set member role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepository) SetBanGroup(ctx context.Context, id uuid.UUID, banGroupID *uuid.UUID) error {
	_, err := r.db.Exec(ctx, `UPDATE members SET ban_group_id = $1 WHERE id = $2`, banGroupID, id)
	if err != nil {
		return fmt.Errorf("set member ban group: %w", err)
	}
	return nil
}

func (r *PGRepository) SetLastMask(ctx context.Context, id uuid.UUID, mask *string) error {
	_, err := r.db.Exec(ctx, `UPDATE members SET last_mask = $1 WHERE id = $2`, mask, id)
	if err != nil {
		return fmt.Errorf("set last mask: %w", err)
	}
	return nil
}

func (r *PGRepository) SetPinnedMask(ctx context.Context, id uuid.UUID, mask *string) error {
	_, err := r.db.Exec(ctx, `UPDATE members SET pinned_mask = $1 WHERE id = $2`, mask, id)
	if err != nil {
		return fmt.Errorf("set pinned mask: %w", err)
	}
	return nil
}

func (r *PGRepository) Touch(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx, `UPDATE members SET last_activity = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("touch member: %w", err)
	}
	return nil
}
