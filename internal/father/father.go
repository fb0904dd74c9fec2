// Package father implements the operator relay (spec.md §1, §6 "father relay"): the one always-running bot that
// accepts a user-supplied credential, spawns a group relay for it via internal/fleet, and issues the role-granting
// validation codes of spec.md §4.10. Its inbound grammar is distinct from a group relay's (internal/relay): no
// Member/mask/ban machinery, just account-level role grants and fleet lifecycle.
//
// spec.md describes the father's admin surface as "menu-driven" (inline-keyboard callbacks in the source system).
// internal/telegram's Client abstracts only text RPCs with no button/callback surface, so menu-driven ops are
// expressed here as plain slash commands instead — the same adaptation internal/relay already made for
// conversation flows that would otherwise need a keyboard.
package father

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/zetxtech/anonycnbot/internal/fleet"
	"github.com/zetxtech/anonycnbot/internal/group"
	"github.com/zetxtech/anonycnbot/internal/invite"
	"github.com/zetxtech/anonycnbot/internal/relayerr"
	"github.com/zetxtech/anonycnbot/internal/telegram"
	"github.com/zetxtech/anonycnbot/internal/user"
)

// defaultCodeLength matches internal/relay's per-group invite code length (spec.md §4.10 default of 16).
const defaultCodeLength = 16

// StatusSender delivers an ephemeral text reply to a chat. Same shape as relay.StatusSender, duplicated here since
// the father relay is a standalone bot with no dependency on internal/relay.
type StatusSender func(ctx context.Context, platformUserID int64, text string)

// Update is one inbound text message addressed to the father bot.
type Update struct {
	PlatformUserID int64
	Text           string
}

// Controller owns the father relay's dispatch. Unlike internal/relay.Controller it does not itself hold an SDK
// connection lifecycle; the caller (cmd/anonycnbot) starts and stops the father's telegram.Client the same way it
// does for every group relay.
type Controller struct {
	Client    telegram.Client
	Users     user.Repository
	Groups    group.Repository
	Codes     invite.Repository
	Fleet     *fleet.Supervisor
	AwardDays int

	Log zerolog.Logger
}

// HandleUpdate parses a leading "/name args" and dispatches it; anything else is ignored (the father relay has no
// non-command send path).
func (c *Controller) HandleUpdate(ctx context.Context, in Update, notify StatusSender) error {
	cmd, args, ok := parseCommand(in.Text)
	if !ok {
		return nil
	}

	u, _, err := c.Users.GetOrCreate(ctx, user.CreateParams{PlatformID: in.PlatformUserID})
	if err != nil {
		return fmt.Errorf("get or create user: %w", err)
	}

	var handlerErr error
	switch cmd {
	case "start":
		handlerErr = c.cmdStart(ctx, u, args, in, notify)
	case "newgroup":
		handlerErr = c.cmdNewGroup(ctx, u, args, in, notify)
	case "groups":
		handlerErr = c.cmdGroups(ctx, u, in, notify)
	case "delgroup":
		handlerErr = c.cmdDelGroup(ctx, u, args, in, notify)
	case "newcode":
		handlerErr = c.cmdNewCode(ctx, u, args, in, notify)
	default:
		if notify != nil {
			notify(ctx, in.PlatformUserID, "unknown command")
		}
		return nil
	}

	if handlerErr != nil {
		if relayerr.IsUserFacing(handlerErr) {
			if notify != nil {
				notify(ctx, in.PlatformUserID, handlerErr.Error())
			}
			return nil
		}
		return handlerErr
	}
	return nil
}

func parseCommand(text string) (name, args string, ok bool) {
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	rest := text[1:]
	name, args, _ = strings.Cut(rest, " ")
	name = strings.ToLower(strings.TrimSpace(name))
	if at := strings.IndexByte(name, '@'); at >= 0 {
		name = name[:at]
	}
	if name == "" {
		return "", "", false
	}
	return name, strings.TrimSpace(args), true
}

// cmdStart implements `/start [_c_<CODE>|_g_<GID>]` (spec.md §6 father command grammar).
func (c *Controller) cmdStart(ctx context.Context, u *user.User, args string, in Update, notify StatusSender) error {
	switch {
	case strings.HasPrefix(args, "_c_"):
		return c.redeemCode(ctx, u, strings.TrimPrefix(args, "_c_"), in, notify)
	case strings.HasPrefix(args, "_g_"):
		return c.showGroup(ctx, u, strings.TrimPrefix(args, "_g_"), in, notify)
	default:
		if notify != nil {
			notify(ctx, in.PlatformUserID, "send a bot credential with /newgroup <token> <title> to start a relay, "+
				"or /groups to list your relays")
		}
		return nil
	}
}

func (c *Controller) redeemCode(ctx context.Context, u *user.User, code string, in Update, notify StatusSender) error {
	roles, err := c.Codes.UseCode(ctx, u.ID, code, func(ctx context.Context, userID uuid.UUID, role user.Role, days int, code string) (uuid.UUID, error) {
		grant, err := c.Users.AddRole(ctx, userID, role, days, code)
		if err != nil {
			return uuid.Nil, err
		}
		return grant.ID, nil
	})
	if err != nil {
		if notify != nil {
			notify(ctx, in.PlatformUserID, "that code is invalid or already used")
		}
		return nil
	}

	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = r.String()
	}
	if notify != nil {
		notify(ctx, in.PlatformUserID, "granted: "+strings.Join(names, ", "))
	}
	return nil
}

func (c *Controller) showGroup(ctx context.Context, u *user.User, rawID string, in Update, notify StatusSender) error {
	gid, err := uuid.Parse(rawID)
	if err != nil {
		return relayerr.NewOperation("start", "malformed group id")
	}
	g, err := c.Groups.GetByID(ctx, gid)
	if err != nil {
		return relayerr.NewOperation("start", "no such group")
	}
	if g.CreatorID != u.ID {
		admin, err := c.isAdmin(ctx, u.ID)
		if err != nil {
			return fmt.Errorf("check admin role: %w", err)
		}
		if !admin {
			return relayerr.NewOperation("start", "you do not own this group")
		}
	}

	status := "running"
	if g.Disabled {
		status = "disabled"
	}
	if notify != nil {
		notify(ctx, in.PlatformUserID, fmt.Sprintf("%s (%s): %s", g.Title, status, g.ID))
	}
	return nil
}

// cmdNewGroup implements the father's relay-creation flow (spec.md §8 scenario 6 "Invite flow"): the caller supplies
// a bare bot credential and title; the father bootstraps a brand-new Group and starts its relay. The scenario's
// "inviter Y" half is not modeled here: no table in this schema retains who issued the validation code a user
// redeemed to reach GROUPER eligibility, so invitorID is always nil (see DESIGN.md).
func (c *Controller) cmdNewGroup(ctx context.Context, u *user.User, args string, in Update, notify StatusSender) error {
	token, title, ok := strings.Cut(args, " ")
	token = strings.TrimSpace(token)
	title = strings.TrimSpace(title)
	if !ok || token == "" || title == "" {
		return relayerr.NewOperation("newgroup", "usage: /newgroup <token> <title>")
	}

	if _, err := c.Fleet.BootstrapGroupBot(ctx, token, u.ID, nil, title); err != nil {
		return fmt.Errorf("bootstrap group bot: %w", err)
	}
	if notify != nil {
		notify(ctx, in.PlatformUserID, "relay started for "+title)
	}
	return nil
}

// cmdGroups lists the groups the caller owns, or every group when the caller holds ADMIN/CREATOR.
func (c *Controller) cmdGroups(ctx context.Context, u *user.User, in Update, notify StatusSender) error {
	groups, err := c.Groups.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active groups: %w", err)
	}

	admin, err := c.isAdmin(ctx, u.ID)
	if err != nil {
		return fmt.Errorf("check admin role: %w", err)
	}
	var lines []string
	for _, g := range groups {
		if !admin && g.CreatorID != u.ID {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s — %s", g.Title, g.ID))
	}
	if len(lines) == 0 {
		lines = []string{"no groups"}
	}
	if notify != nil {
		notify(ctx, in.PlatformUserID, strings.Join(lines, "\n"))
	}
	return nil
}

// cmdDelGroup implements group deletion (spec.md §6 "Menu-driven admin ops for ... group listing/deletion"): the
// relay is stopped and the Group row disabled; rows are retained, matching internal/relay's own disable-not-delete
// handling of credential deactivation.
func (c *Controller) cmdDelGroup(ctx context.Context, u *user.User, args string, in Update, notify StatusSender) error {
	gid, err := uuid.Parse(strings.TrimSpace(args))
	if err != nil {
		return relayerr.NewOperation("delgroup", "usage: /delgroup <group id>")
	}
	g, err := c.Groups.GetByID(ctx, gid)
	if err != nil {
		return relayerr.NewOperation("delgroup", "no such group")
	}
	if g.CreatorID != u.ID {
		admin, err := c.isAdmin(ctx, u.ID)
		if err != nil {
			return fmt.Errorf("check admin role: %w", err)
		}
		if !admin {
			return relayerr.NewOperation("delgroup", "you do not own this group")
		}
	}

	if err := c.Fleet.StopGroupBot(ctx, g.Token); err != nil {
		return fmt.Errorf("stop group bot: %w", err)
	}
	disabled := true
	if _, err := c.Groups.Update(ctx, g.ID, group.UpdateParams{Disabled: &disabled}); err != nil {
		return fmt.Errorf("disable group: %w", err)
	}
	if notify != nil {
		notify(ctx, in.PlatformUserID, "relay stopped")
	}
	return nil
}

// cmdNewCode implements validation-code generation (spec.md §4.10), ADMIN/CREATOR-gated. Usage:
// /newcode <role> [days] [num].
func (c *Controller) cmdNewCode(ctx context.Context, u *user.User, args string, in Update, notify StatusSender) error {
	admin, err := c.isAdmin(ctx, u.ID)
	if err != nil {
		return fmt.Errorf("check admin role: %w", err)
	}
	if !admin {
		return relayerr.NewOperation("newcode", "admin only")
	}

	fields := strings.Fields(args)
	if len(fields) == 0 {
		return relayerr.NewOperation("newcode", "usage: /newcode <role> [days] [num]")
	}

	role, ok := parseRole(fields[0])
	if !ok {
		return relayerr.NewOperation("newcode", "unknown role")
	}

	params := invite.CreateCodeParams{Roles: []user.Role{role}, Length: defaultCodeLength, Num: 1}
	if len(fields) > 1 {
		days, err := strconv.Atoi(fields[1])
		if err != nil {
			return relayerr.NewOperation("newcode", "days must be an integer")
		}
		params.Days = &days
	}
	if len(fields) > 2 {
		num, err := strconv.Atoi(fields[2])
		if err != nil || num <= 0 {
			return relayerr.NewOperation("newcode", "num must be a positive integer")
		}
		params.Num = num
	}

	codes, err := c.Codes.CreateCode(ctx, params)
	if err != nil {
		return fmt.Errorf("create validation code: %w", err)
	}
	if notify != nil {
		notify(ctx, in.PlatformUserID, strings.Join(codes, "\n"))
	}
	return nil
}

func parseRole(s string) (user.Role, bool) {
	switch strings.ToLower(s) {
	case "grouper":
		return user.RoleGrouper, true
	case "awarded":
		return user.RoleAwarded, true
	case "paying":
		return user.RolePaying, true
	case "admin":
		return user.RoleAdmin, true
	default:
		return user.RoleNone, false
	}
}

// isAdmin reports whether userID currently holds ADMIN or CREATOR, the two roles gated on father-relay
// administrative operations (code issuance, cross-user group listing/deletion).
func (c *Controller) isAdmin(ctx context.Context, userID uuid.UUID) (bool, error) {
	grants, err := c.Users.Roles(ctx, userID)
	if err != nil {
		return false, err
	}
	now := time.Now()
	for _, g := range grants {
		if !g.Active(now) {
			continue
		}
		if g.Role == user.RoleAdmin || g.Role == user.RoleCreator {
			return true, nil
		}
	}
	return false, nil
}
