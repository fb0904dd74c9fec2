package relay

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/zetxtech/anonycnbot/internal/banish"
	"github.com/zetxtech/anonycnbot/internal/invite"
	"github.com/zetxtech/anonycnbot/internal/member"
	"github.com/zetxtech/anonycnbot/internal/message"
	"github.com/zetxtech/anonycnbot/internal/permission"
	"github.com/zetxtech/anonycnbot/internal/queue"
	"github.com/zetxtech/anonycnbot/internal/relayerr"
	"github.com/zetxtech/anonycnbot/internal/user"
)

// inviteCodeLength is the length of a newly minted per-group invite code (spec.md §4.10 uses 16 as the default
// length for role-granting codes; per-group codes reuse the same default).
const inviteCodeLength = 16

func randomInviteCode() (string, error) {
	return invite.GenerateCode(inviteCodeLength)
}

// Command is one parsed `/name arg...` inbound, decoded the same way in.Text would be for an ordinary send.
type Command struct {
	Name string
	Args string
	In   Inbound
}

// HandleCommand routes a parsed command to its handler, wrapped in the concurrency mode commandTable assigns it
// (spec.md §4.8 "Inbound dispatch"). The check stage passed to Decorate is empty; each handler runs its own role and
// ban checks.
func (c *Controller) HandleCommand(ctx context.Context, groupID uuid.UUID, cmd Command, notify StatusSender) error {
	handler, ok := commandTable[cmd.Name]
	if !ok {
		if notify != nil {
			notify(ctx, cmd.In.PlatformUserID, "unknown command")
		}
		return nil
	}

	decorated := Decorate(c.Locks, handler.mode, func(ctx context.Context, userID int64) error {
		return nil
	}, func(ctx context.Context, userID int64) error {
		return handler.run(c, ctx, groupID, cmd, notify)
	})

	if err := decorated(ctx, cmd.In.PlatformUserID); err != nil {
		if err == ErrAlreadyRunning {
			if notify != nil {
				notify(ctx, cmd.In.PlatformUserID, "still working on your last request")
			}
			return nil
		}
		if relayerr.IsUserFacing(err) {
			if notify != nil {
				notify(ctx, cmd.In.PlatformUserID, err.Error())
			}
			return nil
		}
		return err
	}
	return nil
}

type commandHandler struct {
	mode Mode
	run  func(c *Controller, ctx context.Context, groupID uuid.UUID, cmd Command, notify StatusSender) error
}

var commandTable = map[string]commandHandler{
	"start":   {mode: ModeQueue, run: (*Controller).cmdStart},
	"delete":  {mode: ModeQueue, run: (*Controller).cmdDelete},
	"change":  {mode: ModeQueue, run: (*Controller).cmdChange},
	"setmask": {mode: ModeSingleton, run: (*Controller).cmdSetMask},
	"ban":     {mode: ModeQueue, run: (*Controller).cmdBan},
	"unban":   {mode: ModeQueue, run: (*Controller).cmdUnban},
	"pin":     {mode: ModeQueue, run: (*Controller).cmdPin},
	"unpin":   {mode: ModeQueue, run: (*Controller).cmdUnpin},
	"reveal":  {mode: ModeInf, run: (*Controller).cmdReveal},
	"manage":  {mode: ModeSingleton, run: (*Controller).cmdManage},
	"pm":      {mode: ModeQueue, run: (*Controller).cmdPM},
	"invite":  {mode: ModeInf, run: (*Controller).cmdInvite},
}

// resolveMember looks up the Member for cmd's sender, failing with a user-facing error if they are not a member of
// groupID.
func (c *Controller) resolveMember(ctx context.Context, groupID uuid.UUID, platformUserID int64) (*member.Member, error) {
	u, err := c.Users.GetByPlatformID(ctx, platformUserID)
	if err != nil {
		return nil, relayerr.NewOperation("command", "you are not in this group")
	}
	m, err := c.Members.GetByGroupAndUser(ctx, groupID, u.ID)
	if err != nil {
		return nil, relayerr.NewOperation("command", "you are not in this group")
	}
	return m, nil
}

// cmdStart implements `/start [_c_<CODE>]` (spec.md §4.10 "Invite codes (per-group)"): join as GUEST, consuming a
// per-group invite code if supplied.
func (c *Controller) cmdStart(ctx context.Context, groupID uuid.UUID, cmd Command, notify StatusSender) error {
	u, _, err := c.Users.GetOrCreate(ctx, user.CreateParams{PlatformID: cmd.In.PlatformUserID})
	if err != nil {
		return fmt.Errorf("get or create user: %w", err)
	}

	existing, err := c.Members.GetByGroupAndUser(ctx, groupID, u.ID)
	if err == nil {
		if notify != nil {
			notify(ctx, cmd.In.PlatformUserID, "welcome back")
		}
		return c.Members.Touch(ctx, existing.ID)
	}

	var invitorID *uuid.UUID
	code := strings.TrimPrefix(strings.TrimSpace(cmd.Args), "_c_")
	if code != "" {
		entry, ok, err := c.GroupInvites.Get(ctx, code)
		if err != nil {
			return fmt.Errorf("look up invite code: %w", err)
		}
		if !ok || entry.Redeemed() {
			return relayerr.NewOperation("start", "that invite code is invalid or exhausted")
		}
		inviter, err := c.Members.GetByID(ctx, entry.Inviter)
		if err != nil {
			return fmt.Errorf("look up inviter: %w", err)
		}
		memberBans, groupBans, err := c.loadBanGroups(ctx, inviter)
		if err != nil {
			return err
		}
		if denied, _ := permission.CheckBan(c.now(), inviter, memberBans, groupBans, banish.TypeInvite, true, false); denied {
			return relayerr.NewOperation("start", "that invite code is invalid or exhausted")
		}
		entry.RemainingUses--
		if err := c.GroupInvites.Set(ctx, code, entry); err != nil {
			return fmt.Errorf("update invite code: %w", err)
		}
		invitorID = &entry.Inviter
	}

	_, err = c.Members.Create(ctx, member.CreateParams{GroupID: groupID, UserID: u.ID, Role: member.RoleGuest, InvitorID: invitorID})
	if err != nil {
		return fmt.Errorf("create member: %w", err)
	}
	if notify != nil {
		notify(ctx, cmd.In.PlatformUserID, "joined the relay")
	}
	return nil
}

// cmdDelete implements `/delete`: delete the sender's own message that the command replies to, via the fan-out worker.
func (c *Controller) cmdDelete(ctx context.Context, groupID uuid.UUID, cmd Command, notify StatusSender) error {
	m, err := c.resolveMember(ctx, groupID, cmd.In.PlatformUserID)
	if err != nil {
		return err
	}
	if cmd.In.ReplyToMID == nil {
		return relayerr.NewOperation("delete", "reply to your message to delete it")
	}
	msg, err := c.Messages.GetByMemberAndMID(ctx, m.ID, *cmd.In.ReplyToMID)
	if err != nil {
		return relayerr.NewOperation("delete", "reply to your message to delete it")
	}
	op := queue.NewDelete(c.now(), msg.ID)
	if err := c.Queue.Put(ctx, op); err != nil {
		return fmt.Errorf("enqueue delete: %w", err)
	}
	if notify != nil {
		notify(ctx, cmd.In.PlatformUserID, "deleting…")
	}
	return nil
}

// cmdChange implements `/change`: edit the sender's own message that the command replies to with the text that
// follows.
func (c *Controller) cmdChange(ctx context.Context, groupID uuid.UUID, cmd Command, notify StatusSender) error {
	m, err := c.resolveMember(ctx, groupID, cmd.In.PlatformUserID)
	if err != nil {
		return err
	}
	if cmd.Args == "" {
		return relayerr.NewOperation("change", "reply to your message with the new text")
	}
	if cmd.In.ReplyToMID == nil {
		return relayerr.NewOperation("change", "reply to your message to edit it")
	}
	msg, err := c.Messages.GetByMemberAndMID(ctx, m.ID, *cmd.In.ReplyToMID)
	if err != nil {
		return relayerr.NewOperation("change", "reply to your message to edit it")
	}
	content := queue.Content{Text: cmd.Args, Entities: cmd.In.Entities}
	op := queue.NewEdit(c.now(), m.ID, msg.ID, content)
	if err := c.Queue.Put(ctx, op); err != nil {
		return fmt.Errorf("enqueue edit: %w", err)
	}
	if err := c.Messages.UpdatedNow(ctx, msg.ID); err != nil {
		return fmt.Errorf("touch message: %w", err)
	}
	if notify != nil {
		notify(ctx, cmd.In.PlatformUserID, "editing…")
	}
	return nil
}

// cmdSetMask implements `/setmask <emoji...>`.
func (c *Controller) cmdSetMask(ctx context.Context, groupID uuid.UUID, cmd Command, notify StatusSender) error {
	m, err := c.resolveMember(ctx, groupID, cmd.In.PlatformUserID)
	if err != nil {
		return err
	}
	return c.setPinnedMask(ctx, m, strings.TrimSpace(cmd.Args), notify, cmd.In.PlatformUserID)
}

// resolveTarget resolves the uid argument of a moderation command, falling back to the replied-to message's author
// per spec.md §6 "[uid] falls back to the replied-to message's author when absent".
func (c *Controller) resolveTarget(ctx context.Context, groupID uuid.UUID, cmd Command) (*member.Member, error) {
	arg := strings.TrimSpace(cmd.Args)
	if arg != "" {
		targetUser, err := c.Users.GetByPlatformID(ctx, parsePlatformID(arg))
		if err != nil {
			return nil, relayerr.NewOperation("command", "unknown target user")
		}
		return c.Members.GetByGroupAndUser(ctx, groupID, targetUser.ID)
	}
	if cmd.In.ReplyToAuthorPlatformID != nil {
		targetUser, err := c.Users.GetByPlatformID(ctx, *cmd.In.ReplyToAuthorPlatformID)
		if err != nil {
			return nil, relayerr.NewOperation("command", "unknown target user")
		}
		return c.Members.GetByGroupAndUser(ctx, groupID, targetUser.ID)
	}
	return nil, relayerr.NewOperation("command", "specify a uid or reply to the target's message")
}

func parsePlatformID(s string) int64 {
	var id int64
	fmt.Sscanf(s, "%d", &id)
	return id
}

// cmdBan implements `/ban [uid]`: bans the target from MESSAGE, MEDIA and RECEIVE (a minimal default denial set;
// operators escalate via `/manage` for finer-grained ban types).
func (c *Controller) cmdBan(ctx context.Context, groupID uuid.UUID, cmd Command, notify StatusSender) error {
	m, err := c.resolveMember(ctx, groupID, cmd.In.PlatformUserID)
	if err != nil {
		return err
	}
	if !m.Role.IsAdmin() {
		return relayerr.NewOperation("ban", "only admins may ban members")
	}
	target, err := c.resolveTarget(ctx, groupID, cmd)
	if err != nil {
		return err
	}
	if target.Role >= member.RoleAdmin {
		return relayerr.NewOperation("ban", "cannot ban an admin")
	}

	banGroup, err := c.Bans.Create(ctx, nil, []banish.Type{banish.TypeMessage, banish.TypeMedia, banish.TypeReceive})
	if err != nil {
		return fmt.Errorf("create ban group: %w", err)
	}
	oldBanGroupID := target.BanGroupID
	if err := c.Members.SetBanGroup(ctx, target.ID, &banGroup.ID); err != nil {
		return fmt.Errorf("apply ban: %w", err)
	}
	if oldBanGroupID != nil {
		_ = c.Bans.Delete(ctx, *oldBanGroupID)
	}
	if notify != nil {
		notify(ctx, cmd.In.PlatformUserID, "member banned")
	}
	return nil
}

// cmdUnban implements `/unban [uid]`: clears the target's member-level ban override.
func (c *Controller) cmdUnban(ctx context.Context, groupID uuid.UUID, cmd Command, notify StatusSender) error {
	m, err := c.resolveMember(ctx, groupID, cmd.In.PlatformUserID)
	if err != nil {
		return err
	}
	if !m.Role.IsAdmin() {
		return relayerr.NewOperation("unban", "only admins may unban members")
	}
	target, err := c.resolveTarget(ctx, groupID, cmd)
	if err != nil {
		return err
	}
	oldBanGroupID := target.BanGroupID
	if err := c.Members.SetBanGroup(ctx, target.ID, nil); err != nil {
		return fmt.Errorf("clear ban: %w", err)
	}
	if oldBanGroupID != nil {
		_ = c.Bans.Delete(ctx, *oldBanGroupID)
	}
	if notify != nil {
		notify(ctx, cmd.In.PlatformUserID, "member unbanned")
	}
	return nil
}

// cmdPin implements `/pin`: pins the replied-to message.
func (c *Controller) cmdPin(ctx context.Context, groupID uuid.UUID, cmd Command, notify StatusSender) error {
	m, err := c.resolveMember(ctx, groupID, cmd.In.PlatformUserID)
	if err != nil {
		return err
	}
	if !m.Role.IsAdmin() {
		return relayerr.NewOperation("pin", "only admins may pin messages")
	}
	if cmd.In.ReplyToMID == nil {
		return relayerr.NewOperation("pin", "reply to a message to pin it")
	}
	sourceID, _, err := c.resolveReplyTarget(ctx, m, *cmd.In.ReplyToMID)
	if err != nil || sourceID == nil {
		return relayerr.NewOperation("pin", "could not find that message")
	}
	op := queue.NewPin(c.now(), *sourceID)
	if err := c.Queue.Put(ctx, op); err != nil {
		return fmt.Errorf("enqueue pin: %w", err)
	}
	if err := c.Messages.SetPinned(ctx, *sourceID, true); err != nil {
		return fmt.Errorf("mark pinned: %w", err)
	}
	if notify != nil {
		notify(ctx, cmd.In.PlatformUserID, "pinning…")
	}
	return nil
}

// cmdUnpin implements `/unpin`.
func (c *Controller) cmdUnpin(ctx context.Context, groupID uuid.UUID, cmd Command, notify StatusSender) error {
	m, err := c.resolveMember(ctx, groupID, cmd.In.PlatformUserID)
	if err != nil {
		return err
	}
	if !m.Role.IsAdmin() {
		return relayerr.NewOperation("unpin", "only admins may unpin messages")
	}
	if cmd.In.ReplyToMID == nil {
		return relayerr.NewOperation("unpin", "reply to a message to unpin it")
	}
	sourceID, _, err := c.resolveReplyTarget(ctx, m, *cmd.In.ReplyToMID)
	if err != nil || sourceID == nil {
		return relayerr.NewOperation("unpin", "could not find that message")
	}
	op := queue.NewUnpin(c.now(), *sourceID)
	if err := c.Queue.Put(ctx, op); err != nil {
		return fmt.Errorf("enqueue unpin: %w", err)
	}
	if err := c.Messages.SetPinned(ctx, *sourceID, false); err != nil {
		return fmt.Errorf("mark unpinned: %w", err)
	}
	if notify != nil {
		notify(ctx, cmd.In.PlatformUserID, "unpinning…")
	}
	return nil
}

// cmdReveal implements `/reveal`: admins only, reveals the real user behind the replied-to message's mask.
func (c *Controller) cmdReveal(ctx context.Context, groupID uuid.UUID, cmd Command, notify StatusSender) error {
	m, err := c.resolveMember(ctx, groupID, cmd.In.PlatformUserID)
	if err != nil {
		return err
	}
	if !m.Role.IsAdmin() {
		return relayerr.NewOperation("reveal", "only admins may reveal a mask's owner")
	}
	if cmd.In.ReplyToMID == nil {
		return relayerr.NewOperation("reveal", "reply to a message to reveal its author")
	}
	sourceID, _, err := c.resolveReplyTarget(ctx, m, *cmd.In.ReplyToMID)
	if err != nil || sourceID == nil {
		return relayerr.NewOperation("reveal", "could not find that message")
	}
	msg, err := c.Messages.GetByID(ctx, *sourceID)
	if err != nil {
		return fmt.Errorf("load message: %w", err)
	}
	author, err := c.Members.GetByID(ctx, msg.MemberID)
	if err != nil {
		return fmt.Errorf("load author member: %w", err)
	}
	authorUser, err := c.Users.GetByID(ctx, author.UserID)
	if err != nil {
		return fmt.Errorf("load author user: %w", err)
	}
	if notify != nil {
		notify(ctx, cmd.In.PlatformUserID, fmt.Sprintf("that mask belongs to user %d", authorUser.PlatformID))
	}
	return nil
}

// cmdManage implements `/manage`: opens the admin conversation flows by prompting for which setting to edit. The
// menu UI itself is the caller's concern (spec.md §6 describes only the command grammar, not button layout); this
// handler establishes the relevant conversation status once the caller reports which field the admin picked.
func (c *Controller) cmdManage(ctx context.Context, groupID uuid.UUID, cmd Command, notify StatusSender) error {
	m, err := c.resolveMember(ctx, groupID, cmd.In.PlatformUserID)
	if err != nil {
		return err
	}
	if m.Role < member.RoleAdminAdmin {
		return relayerr.NewOperation("manage", "only senior admins may manage group settings")
	}

	target := strings.ToLower(strings.TrimSpace(cmd.Args))
	status, ok := map[string]Status{
		"welcome-message":  StatusEWMMMessage,
		"welcome-buttons":  StatusEWMMButton,
		"chat-instruction": StatusECIInstruction,
		"password":         StatusEPPassword,
	}[target]
	if !ok {
		if notify != nil {
			notify(ctx, cmd.In.PlatformUserID, "usage: /manage <welcome-message|welcome-buttons|chat-instruction|password>")
		}
		return nil
	}
	c.Conversations.Set(cmd.In.ChatID, cmd.In.PlatformUserID, status, nil)
	if notify != nil {
		notify(ctx, cmd.In.PlatformUserID, "send the new value now")
	}
	return nil
}

// cmdPM implements `/pm <text>`: reply to a member's forwarded copy to tunnel a private message to them directly.
func (c *Controller) cmdPM(ctx context.Context, groupID uuid.UUID, cmd Command, notify StatusSender) error {
	m, err := c.resolveMember(ctx, groupID, cmd.In.PlatformUserID)
	if err != nil {
		return err
	}
	if cmd.In.ReplyToMID == nil {
		return relayerr.NewOperation("pm", "reply to a member's message to pm them")
	}
	if cmd.Args == "" {
		return relayerr.NewOperation("pm", "include a message body")
	}

	memberBans, groupBans, err := c.loadBanGroups(ctx, m)
	if err != nil {
		return err
	}
	if _, err := permission.CheckBan(c.now(), m, memberBans, groupBans, banish.TypePMUser, true, true); err != nil {
		return err
	}

	sourceID, _, err := c.resolveReplyTarget(ctx, m, *cmd.In.ReplyToMID)
	if err != nil || sourceID == nil {
		return relayerr.NewOperation("pm", "could not find that member's message")
	}
	source, err := c.Messages.GetByID(ctx, *sourceID)
	if err != nil {
		return fmt.Errorf("load source message: %w", err)
	}
	recipient, err := c.Members.GetByID(ctx, source.MemberID)
	if err != nil {
		return fmt.Errorf("load recipient member: %w", err)
	}
	recipientUser, err := c.Users.GetByID(ctx, recipient.UserID)
	if err != nil {
		return fmt.Errorf("load recipient user: %w", err)
	}

	mid, err := c.Client.SendMessage(ctx, recipientUser.PlatformID, cmd.Args, entitiesToTelegram(cmd.In.Entities))
	if err != nil {
		return fmt.Errorf("send pm: %w", err)
	}
	pmParams := message.CreatePMParams{
		GroupID:           groupID,
		SenderMemberID:    m.ID,
		RecipientMemberID: recipient.ID,
		SenderMID:         cmd.In.MID,
		RecipientMID:      mid,
	}
	if _, err := c.Messages.CreatePM(ctx, pmParams); err != nil {
		return fmt.Errorf("persist pm: %w", err)
	}
	if notify != nil {
		notify(ctx, cmd.In.PlatformUserID, "sent privately")
	}
	return nil
}

// cmdInvite implements `/invite`: issues a per-group invite code (spec.md §4.10 "Invite codes (per-group)").
func (c *Controller) cmdInvite(ctx context.Context, groupID uuid.UUID, cmd Command, notify StatusSender) error {
	m, err := c.resolveMember(ctx, groupID, cmd.In.PlatformUserID)
	if err != nil {
		return err
	}
	memberBans, groupBans, err := c.loadBanGroups(ctx, m)
	if err != nil {
		return err
	}
	if _, err := permission.CheckBan(c.now(), m, memberBans, groupBans, banish.TypeInvite, true, true); err != nil {
		return err
	}

	code, err := randomInviteCode()
	if err != nil {
		return fmt.Errorf("generate invite code: %w", err)
	}
	entry := invite.Code{Inviter: m.ID, RemainingUses: 1}
	if err := c.GroupInvites.Set(ctx, code, entry); err != nil {
		return fmt.Errorf("persist invite code: %w", err)
	}
	if notify != nil {
		notify(ctx, cmd.In.PlatformUserID, fmt.Sprintf("invite code: %s", code))
	}
	return nil
}
