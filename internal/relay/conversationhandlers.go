package relay

import (
	"context"
	"fmt"
	"strings"

	"github.com/alexedwards/argon2id"
	"github.com/google/uuid"

	"github.com/zetxtech/anonycnbot/internal/group"
	"github.com/zetxtech/anonycnbot/internal/member"
	"github.com/zetxtech/anonycnbot/internal/message"
	"github.com/zetxtech/anonycnbot/internal/user"
)

// routeConversation dispatches one inbound message against a just-consumed pending conversation status (spec.md
// §4.8 "Conversation state").
func (c *Controller) routeConversation(ctx context.Context, groupID uuid.UUID, in Inbound, conv Conversation, notify StatusSender) error {
	switch conv.Status {
	case StatusUseCode:
		return c.handleUseCode(ctx, in, notify)
	case StatusNGToken:
		return c.handleNewToken(ctx, groupID, in, notify)
	case StatusEWMMMessage:
		return c.handleEditWelcomeMessage(ctx, groupID, in, notify)
	case StatusEWMMButton:
		return c.handleEditWelcomeButtons(ctx, groupID, in, notify)
	case StatusECIInstruction:
		return c.handleEditChatInstruction(ctx, groupID, in, notify)
	case StatusEPPassword:
		return c.handleEditGroupPassword(ctx, groupID, in, notify)
	case StatusGPPassword:
		return c.handleJoinPasswordAttempt(ctx, groupID, in, conv, notify)
	case StatusSMMask:
		return c.handleSetMask(ctx, groupID, in, notify)
	case StatusCIConfirm:
		// The acknowledgement presentChatInstruction is waiting on: signal its ack channel so the guest is promoted.
		if ack, ok := conv.Carrier.(chan struct{}); ok {
			select {
			case ack <- struct{}{}:
			default:
			}
		}
		return nil
	default:
		return nil
	}
}

// handleUseCode implements spec.md §4.10 `use_code(user, code)`.
func (c *Controller) handleUseCode(ctx context.Context, in Inbound, notify StatusSender) error {
	u, err := c.Users.GetByPlatformID(ctx, in.PlatformUserID)
	if err != nil {
		return fmt.Errorf("look up user: %w", err)
	}
	code := strings.TrimSpace(in.Text)
	granted, err := c.Invites.UseCode(ctx, u.ID, code, func(ctx context.Context, userID uuid.UUID, role user.Role, days int, code string) (uuid.UUID, error) {
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
	if notify != nil {
		names := make([]string, 0, len(granted))
		for _, r := range granted {
			names = append(names, r.String())
		}
		notify(ctx, in.PlatformUserID, fmt.Sprintf("granted: %s", strings.Join(names, ", ")))
	}
	return nil
}

// handleNewToken implements spec.md §4.8 ng_token: the forwarded text carries a replacement bot credential token.
// Rotating the live credential is the fleet supervisor's job (it owns which token a Controller is bound to); this
// handler only validates the input and hands it off via notify for the operator to action.
func (c *Controller) handleNewToken(ctx context.Context, groupID uuid.UUID, in Inbound, notify StatusSender) error {
	token := strings.TrimSpace(in.Text)
	if token == "" {
		if notify != nil {
			notify(ctx, in.PlatformUserID, "that does not look like a token")
		}
		return nil
	}
	if notify != nil {
		notify(ctx, in.PlatformUserID, "new token received; it will take effect on the relay's next restart")
	}
	return nil
}

func (c *Controller) handleEditWelcomeMessage(ctx context.Context, groupID uuid.UUID, in Inbound, notify StatusSender) error {
	text := in.Text
	if _, err := c.Groups.Update(ctx, groupID, group.UpdateParams{WelcomeText: &text}); err != nil {
		return fmt.Errorf("update welcome message: %w", err)
	}
	if notify != nil {
		notify(ctx, in.PlatformUserID, "welcome message updated")
	}
	return nil
}

// handleEditWelcomeButtons expects one "text|data" pair per line.
func (c *Controller) handleEditWelcomeButtons(ctx context.Context, groupID uuid.UUID, in Inbound, notify StatusSender) error {
	var buttons []group.WelcomeButton
	for _, line := range strings.Split(in.Text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "|", 2)
		btn := group.WelcomeButton{Text: strings.TrimSpace(parts[0])}
		if len(parts) == 2 {
			btn.Data = strings.TrimSpace(parts[1])
		}
		buttons = append(buttons, btn)
	}
	if _, err := c.Groups.Update(ctx, groupID, group.UpdateParams{WelcomeButtons: &buttons}); err != nil {
		return fmt.Errorf("update welcome buttons: %w", err)
	}
	if notify != nil {
		notify(ctx, in.PlatformUserID, "welcome buttons updated")
	}
	return nil
}

func (c *Controller) handleEditChatInstruction(ctx context.Context, groupID uuid.UUID, in Inbound, notify StatusSender) error {
	text := in.Text
	if _, err := c.Groups.Update(ctx, groupID, group.UpdateParams{ChatInstruction: &text}); err != nil {
		return fmt.Errorf("update chat instruction: %w", err)
	}
	if notify != nil {
		notify(ctx, in.PlatformUserID, "chat instruction updated")
	}
	return nil
}

func (c *Controller) handleEditGroupPassword(ctx context.Context, groupID uuid.UUID, in Inbound, notify StatusSender) error {
	pw := strings.TrimSpace(in.Text)
	var hashPtr *string
	if pw != "" {
		hash, err := argon2id.CreateHash(pw, argon2id.DefaultParams)
		if err != nil {
			return fmt.Errorf("hash join password: %w", err)
		}
		hashPtr = &hash
	}
	if _, err := c.Groups.Update(ctx, groupID, group.UpdateParams{JoinPasswordHash: &hashPtr}); err != nil {
		return fmt.Errorf("update join password: %w", err)
	}
	if notify != nil {
		if hashPtr == nil {
			notify(ctx, in.PlatformUserID, "join password cleared")
		} else {
			notify(ctx, in.PlatformUserID, "join password set")
		}
	}
	return nil
}

// handleJoinPasswordAttempt verifies a joining user's password attempt against the group's join password and, on
// success, promotes them from GUEST to MEMBER.
func (c *Controller) handleJoinPasswordAttempt(ctx context.Context, groupID uuid.UUID, in Inbound, conv Conversation, notify StatusSender) error {
	g, err := c.Groups.GetByID(ctx, groupID)
	if err != nil {
		return fmt.Errorf("load group: %w", err)
	}
	if g.JoinPasswordHash == nil {
		return nil
	}
	match, err := argon2id.ComparePasswordAndHash(in.Text, *g.JoinPasswordHash)
	if err != nil {
		return fmt.Errorf("compare join password: %w", err)
	}
	if !match {
		if notify != nil {
			notify(ctx, in.PlatformUserID, "incorrect password")
		}
		return nil
	}

	u, err := c.Users.GetByPlatformID(ctx, in.PlatformUserID)
	if err != nil {
		return fmt.Errorf("look up user: %w", err)
	}
	m, err := c.Members.GetByGroupAndUser(ctx, groupID, u.ID)
	if err != nil {
		return fmt.Errorf("look up member: %w", err)
	}
	if err := c.Members.SetRole(ctx, m.ID, member.RoleMember); err != nil {
		return fmt.Errorf("promote member: %w", err)
	}
	if notify != nil {
		notify(ctx, in.PlatformUserID, "welcome in")
	}
	return nil
}

func (c *Controller) handleSetMask(ctx context.Context, groupID uuid.UUID, in Inbound, notify StatusSender) error {
	u, err := c.Users.GetByPlatformID(ctx, in.PlatformUserID)
	if err != nil {
		return fmt.Errorf("look up user: %w", err)
	}
	m, err := c.Members.GetByGroupAndUser(ctx, groupID, u.ID)
	if err != nil {
		return fmt.Errorf("look up member: %w", err)
	}
	return c.setPinnedMask(ctx, m, in.Text, notify, in.PlatformUserID)
}

// sendPM implements the PM-path divert of spec.md §4.8 send path step 6c: a reply to a tunneled PMMessage continues
// the private exchange directly with the original sender, bypassing the group fan-out entirely.
func (c *Controller) sendPM(ctx context.Context, groupID uuid.UUID, sender *member.Member, in Inbound, originatingPM *message.PMMessage, notify StatusSender) error {
	recipientMember, err := c.Members.GetByID(ctx, originatingPM.SenderMemberID)
	if err != nil {
		return fmt.Errorf("look up pm recipient member: %w", err)
	}
	recipientUser, err := c.Users.GetByID(ctx, recipientMember.UserID)
	if err != nil {
		return fmt.Errorf("look up pm recipient user: %w", err)
	}

	mid, err := c.Client.SendMessage(ctx, recipientUser.PlatformID, in.Text, entitiesToTelegram(in.Entities))
	if err != nil {
		return fmt.Errorf("send pm: %w", err)
	}

	if _, err := c.Messages.CreatePM(ctx, message.CreatePMParams{
		GroupID:           groupID,
		SenderMemberID:    sender.ID,
		RecipientMemberID: recipientMember.ID,
		SenderMID:         in.MID,
		RecipientMID:      mid,
	}); err != nil {
		return fmt.Errorf("persist pm: %w", err)
	}

	if notify != nil {
		notify(ctx, in.PlatformUserID, "sent privately")
	}
	return nil
}
