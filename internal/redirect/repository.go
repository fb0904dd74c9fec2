package redirect

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

// PGIndex implements Index using PostgreSQL.
type PGIndex struct {
	db  *pgxpool.Pool
	log zerolog.Logger
}

// NewPGIndex creates a new PostgreSQL-backed redirect index.
func NewPGIndex(db *pgxpool.Pool, logger zerolog.Logger) *PGIndex {
	return &PGIndex{db: db, log: logger}
}

func scanRedirect(row pgx.Row) (*Redirect, error) {
	var r Redirect
	err := row.Scan(&r.ID, &r.SourceMessageID, &r.RecipientMemberID, &r.MID, &r.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("scan redirect: %w", err)
	}
	return &r, nil
}

func (idx *PGIndex) Record(ctx context.Context, sourceMessageID, recipientMemberID uuid.UUID, mid int64) (*Redirect, error) {
	row := idx.db.QueryRow(ctx,
		`INSERT INTO redirected_messages (source_message_id, recipient_member_id, mid)
		 VALUES ($1, $2, $3)
		 RETURNING id, source_message_id, recipient_member_id, mid, created_at`,
		sourceMessageID, recipientMemberID, mid,
	)
	r, err := scanRedirect(row)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("insert redirect: %w", err)
	}
	return r, nil
}

func (idx *PGIndex) RedirectFor(ctx context.Context, sourceMessageID, recipientMemberID uuid.UUID) (int64, error) {
	var mid int64
	err := idx.db.QueryRow(ctx,
		`SELECT mid FROM redirected_messages WHERE source_message_id = $1 AND recipient_member_id = $2`,
		sourceMessageID, recipientMemberID,
	).Scan(&mid)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("query redirect: %w", err)
	}
	return mid, nil
}

func (idx *PGIndex) Reverse(ctx context.Context, recipientMemberID uuid.UUID, mid int64) (uuid.UUID, error) {
	var sourceID uuid.UUID
	err := idx.db.QueryRow(ctx,
		`SELECT source_message_id FROM redirected_messages WHERE recipient_member_id = $1 AND mid = $2`,
		recipientMemberID, mid,
	).Scan(&sourceID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, ErrNotFound
		}
		return uuid.Nil, fmt.Errorf("reverse redirect: %w", err)
	}
	return sourceID, nil
}

func (idx *PGIndex) ListBySource(ctx context.Context, sourceMessageID uuid.UUID) ([]*Redirect, error) {
	rows, err := idx.db.Query(ctx,
		`SELECT id, source_message_id, recipient_member_id, mid, created_at
		 FROM redirected_messages WHERE source_message_id = $1`,
		sourceMessageID,
	)
	if err != nil {
		return nil, fmt.Errorf("query redirects by source: %w", err)
	}
	defer rows.Close()

	var redirects []*Redirect
	for rows.Next() {
		r, err := scanRedirect(rows)
		if err != nil {
			return nil, err
		}
		redirects = append(redirects, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate redirects: %w", err)
	}
	return redirects, nil
}
