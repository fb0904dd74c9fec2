package group

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/zetxtech/anonycnbot/internal/postgres"
)

const groupColumns = `id, token, platform_id, handle, title, creator_id, created_at, last_activity, disabled,
	default_ban_group_id, welcome_text, welcome_image_id, welcome_buttons, welcome_send_recent,
	chat_instruction, join_password_hash, privacy`

func scanGroup(row pgx.Row) (*Group, error) {
	var g Group
	var buttons []byte
	err := row.Scan(
		&g.ID, &g.Token, &g.PlatformID, &g.Handle, &g.Title, &g.CreatorID, &g.CreatedAt, &g.LastActivity,
		&g.Disabled, &g.DefaultBanGroupID, &g.WelcomeText, &g.WelcomeImageID, &buttons, &g.WelcomeSendRecent,
		&g.ChatInstruction, &g.JoinPasswordHash, &g.Privacy,
	)
	if err != nil {
		return nil, fmt.Errorf("scan group: %w", err)
	}
	if len(buttons) > 0 {
		if err := json.Unmarshal(buttons, &g.WelcomeButtons); err != nil {
			return nil, fmt.Errorf("unmarshal welcome buttons: %w", err)
		}
	}
	return &g, nil
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	db  *pgxpool.Pool
	log zerolog.Logger
}

// NewPGRepository creates a new PostgreSQL-backed group repository.
func NewPGRepository(db *pgxpool.Pool, logger zerolog.Logger) *PGRepository {
	return &PGRepository{db: db, log: logger}
}

func (r *PGRepository) GetByID(ctx context.Context, id uuid.UUID) (*Group, error) {
	g, err := scanGroup(r.db.QueryRow(ctx, `SELECT `+groupColumns+` FROM groups WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return g, nil
}

func (r *PGRepository) GetByToken(ctx context.Context, token string) (*Group, error) {
	g, err := scanGroup(r.db.QueryRow(ctx, `SELECT `+groupColumns+` FROM groups WHERE token = $1`, token))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return g, nil
}

func (r *PGRepository) GetByHandle(ctx context.Context, handle string) (*Group, error) {
	g, err := scanGroup(r.db.QueryRow(ctx, `SELECT `+groupColumns+` FROM groups WHERE handle = $1`, handle))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return g, nil
}

func (r *PGRepository) ListActive(ctx context.Context) ([]*Group, error) {
	rows, err := r.db.Query(ctx, `SELECT `+groupColumns+` FROM groups WHERE disabled = false`)
	if err != nil {
		return nil, fmt.Errorf("query active groups: %w", err)
	}
	defer rows.Close()

	var groups []*Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate active groups: %w", err)
	}
	return groups, nil
}

func (r *PGRepository) Update(ctx context.Context, id uuid.UUID, params UpdateParams) (*Group, error) {
	var setClauses []string
	var args []any

	add := func(clause string, value any) {
		args = append(args, value)
		setClauses = append(setClauses, fmt.Sprintf(clause, len(args)))
	}

	if params.Handle != nil {
		add("handle = $%d", *params.Handle)
	}
	if params.Title != nil {
		add("title = $%d", *params.Title)
	}
	if params.Disabled != nil {
		add("disabled = $%d", *params.Disabled)
	}
	if params.WelcomeText != nil {
		add("welcome_text = $%d", *params.WelcomeText)
	}
	if params.WelcomeImageID != nil {
		add("welcome_image_id = $%d", *params.WelcomeImageID)
	}
	if params.WelcomeButtons != nil {
		encoded, err := json.Marshal(*params.WelcomeButtons)
		if err != nil {
			return nil, fmt.Errorf("marshal welcome buttons: %w", err)
		}
		add("welcome_buttons = $%d", encoded)
	}
	if params.WelcomeSendRecent != nil {
		add("welcome_send_recent = $%d", *params.WelcomeSendRecent)
	}
	if params.ChatInstruction != nil {
		add("chat_instruction = $%d", *params.ChatInstruction)
	}
	if params.JoinPasswordHash != nil {
		add("join_password_hash = $%d", *params.JoinPasswordHash)
	}
	if params.Privacy != nil {
		add("privacy = $%d", *params.Privacy)
	}

	if len(setClauses) == 0 {
		return r.GetByID(ctx, id)
	}

	args = append(args, id)
	query := "UPDATE groups SET " + strings.Join(setClauses, ", ") +
		" WHERE id = $" + strconv.Itoa(len(args)) +
		" RETURNING " + groupColumns

	g, err := scanGroup(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		if postgres.IsUniqueViolation(err) {
			return nil, ErrHandleTaken
		}
		return nil, fmt.Errorf("update group: %w", err)
	}
	return g, nil
}

func (r *PGRepository) Touch(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx, `UPDATE groups SET last_activity = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("touch group: %w", err)
	}
	return nil
}

func (r *PGRepository) NMembers(ctx context.Context, groupID uuid.UUID) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT count(*) FROM members WHERE group_id = $1 AND role >= 3`, groupID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count members: %w", err)
	}
	return n, nil
}

func (r *PGRepository) NMessages(ctx context.Context, groupID uuid.UUID) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT count(*) FROM messages WHERE group_id = $1`, groupID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}
