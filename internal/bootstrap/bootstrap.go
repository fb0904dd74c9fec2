// Package bootstrap implements the relay controller's first-run creation step (spec.md §4.8 step 3): a Group, its
// creator Member, and its default BanGroup are created atomically, since a relay must never exist with only some of
// the three rows present.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zetxtech/anonycnbot/internal/banish"
	"github.com/zetxtech/anonycnbot/internal/group"
	"github.com/zetxtech/anonycnbot/internal/member"
	"github.com/zetxtech/anonycnbot/internal/postgres"
	"github.com/zetxtech/anonycnbot/internal/user"
)

// GroupParams groups the inputs for a first-run Group creation.
type GroupParams struct {
	Token      string
	PlatformID *int64
	Handle     *string
	Title      string
	CreatorID  uuid.UUID
}

// Result carries the three rows created atomically by CreateGroup.
type Result struct {
	Group    *group.Group
	Creator  *member.Member
	BanGroup *banish.Group
}

// CreateGroup inserts a Group row, an empty default BanGroup, and a CREATOR Member for params.CreatorID, all within
// one transaction. Role grants (GROUPER, and AWARDED for an invited creator, per spec.md §4.8 step 3) are applied
// afterward by the caller via GrantCreatorRoles, since they touch the global Users table rather than this relay's
// own rows and are not required for the relay to exist consistently.
func CreateGroup(ctx context.Context, db *pgxpool.Pool, params GroupParams) (*Result, error) {
	res := &Result{}

	err := postgres.WithTx(ctx, db, func(tx pgx.Tx) error {
		banGroupID, err := insertBanGroup(ctx, tx)
		if err != nil {
			return err
		}

		g, err := insertGroup(ctx, tx, params, banGroupID)
		if err != nil {
			return err
		}
		res.Group = g

		m, err := insertCreatorMember(ctx, tx, g.ID, params.CreatorID, banGroupID)
		if err != nil {
			return err
		}
		res.Creator = m

		res.BanGroup = &banish.Group{ID: banGroupID, Types: map[banish.Type]bool{}}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func insertBanGroup(ctx context.Context, tx pgx.Tx) (uuid.UUID, error) {
	var id uuid.UUID
	row := tx.QueryRow(ctx, `INSERT INTO ban_groups (until) VALUES (NULL) RETURNING id`)
	if err := row.Scan(&id); err != nil {
		return uuid.Nil, fmt.Errorf("insert default ban group: %w", err)
	}
	return id, nil
}

func insertGroup(ctx context.Context, tx pgx.Tx, params GroupParams, banGroupID uuid.UUID) (*group.Group, error) {
	g := &group.Group{
		Token:             params.Token,
		PlatformID:        params.PlatformID,
		Handle:            params.Handle,
		Title:             params.Title,
		CreatorID:         params.CreatorID,
		DefaultBanGroupID: banGroupID,
	}
	row := tx.QueryRow(ctx,
		`INSERT INTO groups (token, platform_id, handle, title, creator_id, default_ban_group_id, welcome_text,
			welcome_buttons, welcome_send_recent, chat_instruction, privacy)
		 VALUES ($1, $2, $3, $4, $5, $6, '', '[]'::jsonb, false, '', false)
		 RETURNING id, created_at, last_activity, disabled`,
		g.Token, g.PlatformID, g.Handle, g.Title, g.CreatorID, g.DefaultBanGroupID,
	)
	if err := row.Scan(&g.ID, &g.CreatedAt, &g.LastActivity, &g.Disabled); err != nil {
		return nil, fmt.Errorf("insert group: %w", err)
	}
	return g, nil
}

func insertCreatorMember(ctx context.Context, tx pgx.Tx, groupID, userID, banGroupID uuid.UUID) (*member.Member, error) {
	m := &member.Member{GroupID: groupID, UserID: userID, Role: member.RoleCreator, BanGroupID: &banGroupID}
	row := tx.QueryRow(ctx,
		`INSERT INTO members (group_id, user_id, role, ban_group_id)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, joined_at, last_activity`,
		m.GroupID, m.UserID, int(m.Role), m.BanGroupID,
	)
	if err := row.Scan(&m.ID, &m.JoinedAt, &m.LastActivity); err != nil {
		return nil, fmt.Errorf("insert creator member: %w", err)
	}
	return m, nil
}

// GrantCreatorRoles grants GROUPER to the creator, and AWARDED to both the creator and their inviter when the
// creator was themselves invited (spec.md §4.8 step 3: "grant the creator the GROUPER role (and the AWARDED role if
// they hold INVITED, plus the same grant to their inviter)"). invitorID is nil when the creator joined without an
// invite code.
func GrantCreatorRoles(ctx context.Context, users user.Repository, creatorID uuid.UUID, invitorID *uuid.UUID) error {
	if _, err := users.AddRole(ctx, creatorID, user.RoleGrouper, 0, ""); err != nil {
		return fmt.Errorf("grant grouper role: %w", err)
	}
	if invitorID == nil {
		return nil
	}
	if _, err := users.AddRole(ctx, creatorID, user.RoleAwarded, 0, ""); err != nil {
		return fmt.Errorf("grant awarded role to creator: %w", err)
	}
	if _, err := users.AddRole(ctx, *invitorID, user.RoleAwarded, 0, ""); err != nil {
		return fmt.Errorf("grant awarded role to inviter: %w", err)
	}
	return nil
}
