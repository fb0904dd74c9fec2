package message

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

const messageColumns = `id, group_id, mid, member_id, mask, pinned, reply_to_id, created_at, updated_at`

func scanMessage(row pgx.Row) (*Message, error) {
	var m Message
	err := row.Scan(&m.ID, &m.GroupID, &m.MID, &m.MemberID, &m.Mask, &m.Pinned, &m.ReplyToID, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("scan message: %w", err)
	}
	return &m, nil
}

const pmColumns = `id, group_id, sender_member_id, recipient_member_id, sender_mid, recipient_mid, reply_to_id, created_at`

func scanPM(row pgx.Row) (*PMMessage, error) {
	var m PMMessage
	err := row.Scan(&m.ID, &m.GroupID, &m.SenderMemberID, &m.RecipientMemberID, &m.SenderMID, &m.RecipientMID,
		&m.ReplyToID, &m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("scan pm message: %w", err)
	}
	return &m, nil
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	db  *pgxpool.Pool
	log zerolog.Logger
}

// NewPGRepository creates a new PostgreSQL-backed message repository.
func NewPGRepository(db *pgxpool.Pool, logger zerolog.Logger) *PGRepository {
	return &PGRepository{db: db, log: logger}
}

func (r *PGRepository) Create(ctx context.Context, params CreateParams) (*Message, error) {
	row := r.db.QueryRow(ctx,
		`INSERT INTO messages (group_id, mid, member_id, mask, reply_to_id)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+messageColumns,
		params.GroupID, params.MID, params.MemberID, params.Mask, params.ReplyToID,
	)
	m, err := scanMessage(row)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return m, nil
}

func (r *PGRepository) GetByID(ctx context.Context, id uuid.UUID) (*Message, error) {
	m, err := scanMessage(r.db.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return m, nil
}

func (r *PGRepository) GetByMemberAndMID(ctx context.Context, memberID uuid.UUID, mid int64) (*Message, error) {
	m, err := scanMessage(r.db.QueryRow(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE member_id = $1 AND mid = $2`, memberID, mid))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return m, nil
}

func (r *PGRepository) SetPinned(ctx context.Context, id uuid.UUID, pinned bool) error {
	_, err := r.db.Exec(ctx, `UPDATE messages SET pinned = $1, updated_at = now() WHERE id = $2`, pinned, id)
	if err != nil {
		return fmt.Errorf("set message pinned: %w", err)
	}
	return nil
}

func (r *PGRepository) UpdatedNow(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx, `UPDATE messages SET updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("touch message updated_at: %w", err)
	}
	return nil
}

func (r *PGRepository) CreatePM(ctx context.Context, params CreatePMParams) (*PMMessage, error) {
	row := r.db.QueryRow(ctx,
		`INSERT INTO pm_messages (group_id, sender_member_id, recipient_member_id, sender_mid, recipient_mid, reply_to_id)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+pmColumns,
		params.GroupID, params.SenderMemberID, params.RecipientMemberID, params.SenderMID, params.RecipientMID, params.ReplyToID,
	)
	m, err := scanPM(row)
	if err != nil {
		return nil, fmt.Errorf("insert pm message: %w", err)
	}
	return m, nil
}

func (r *PGRepository) GetPMByRecipientAndMID(ctx context.Context, recipientMemberID uuid.UUID, mid int64) (*PMMessage, error) {
	m, err := scanPM(r.db.QueryRow(ctx,
		`SELECT `+pmColumns+` FROM pm_messages WHERE recipient_member_id = $1 AND recipient_mid = $2`,
		recipientMemberID, mid))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return m, nil
}
