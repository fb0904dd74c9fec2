package relay

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"

	"github.com/zetxtech/anonycnbot/internal/banish"
	"github.com/zetxtech/anonycnbot/internal/member"
	"github.com/zetxtech/anonycnbot/internal/message"
	"github.com/zetxtech/anonycnbot/internal/permission"
	"github.com/zetxtech/anonycnbot/internal/queue"
	"github.com/zetxtech/anonycnbot/internal/relayerr"
)

// chatInstructionTimeout bounds how long Send waits for a GUEST's ci_confirm acknowledgement (spec.md §4.8 step 4).
const chatInstructionTimeout = 120 * time.Second

// refreshEvery is how many poll quanta elapse between UI refreshes while waiting on a broadcast's completion signal
// (spec.md §4.8 step 8).
const refreshEvery = 10

var urlPattern = regexp.MustCompile(`(?i)\bhttps?://[^\s]+|\bwww\.[^\s]+`)

var markupPolicy = bluemonday.StrictPolicy()

// Inbound is the decoded platform event Send processes: the menu/command-parsing collaborator (spec.md §1, C11)
// is responsible for producing this from a raw platform update.
type Inbound struct {
	ChatID         int64
	PlatformUserID int64
	MID            int64
	Text           string
	Entities       []queue.Entity
	MediaID        *string
	Voice          bool
	Sticker        bool
	ReplyToMID     *int64

	// ReplyToAuthorPlatformID, when set, is the platform user id of the author of the message in.ReplyToMID refers
	// to. Command handlers that accept an optional target user id fall back to this (spec.md §4.9 "[uid] falls back
	// to the replied-to message's author when absent").
	ReplyToAuthorPlatformID *int64
}

// hasMarkup reports whether in.Text contains formatting bluemonday's strict policy would strip, used for the
// MARKUP content check (spec.md §4.8 "Content checks").
func (in Inbound) hasMarkup() bool {
	if in.Text == "" {
		return false
	}
	return markupPolicy.Sanitize(in.Text) != in.Text
}

func (in Inbound) hasLink() bool {
	if urlPattern.MatchString(in.Text) {
		return true
	}
	for _, e := range in.Entities {
		if e.Type == "url" || e.Type == "text_link" || e.Type == "mention" {
			return true
		}
	}
	return false
}

// StatusSender reports an ephemeral chat notice to a user; implemented by the caller (typically a thin wrapper over
// Client.SendMessage to the user's own chat).
type StatusSender func(ctx context.Context, platformUserID int64, text string)

// Send implements spec.md §4.8 "Send path (non-command text/media)". groupID scopes Member/mask/queue lookups.
func (c *Controller) Send(ctx context.Context, groupID uuid.UUID, in Inbound, notify StatusSender) error {
	// Step 1: a pending conversation status consumes this message instead of the ordinary send path.
	if conv, ok := c.Conversations.Consume(in.ChatID, in.PlatformUserID); ok {
		return c.routeConversation(ctx, groupID, in, conv, notify)
	}

	// Step 2: resolve the Member.
	u, err := c.Users.GetByPlatformID(ctx, in.PlatformUserID)
	if err != nil {
		return relayerr.NewOperation("send", "you are not in this group")
	}
	m, err := c.Members.GetByGroupAndUser(ctx, groupID, u.ID)
	if err != nil {
		return relayerr.NewOperation("send", "you are not in this group")
	}

	// Step 3: content checks against the Member's current bans.
	if err := c.checkContent(ctx, m, in); err != nil {
		return err
	}

	// Step 4: GUEST chat-instruction gate.
	if m.Role == member.RoleGuest {
		g, err := c.Groups.GetByID(ctx, groupID)
		if err != nil {
			return fmt.Errorf("load group: %w", err)
		}
		if g.ChatInstruction != "" {
			confirmed, err := c.presentChatInstruction(ctx, in, notify, g.ChatInstruction)
			if err != nil {
				return err
			}
			if !confirmed {
				return nil // silently dropped per spec.md §4.8 step 4
			}
			if err := c.Members.SetRole(ctx, m.ID, member.RoleMember); err != nil {
				return fmt.Errorf("promote guest to member: %w", err)
			}
			m.Role = member.RoleMember
		}
	}

	// Step 5: resolve mask.
	var mk string
	if m.PinnedMask != nil {
		mk = *m.PinnedMask
	} else {
		_, mk, err = c.Masks.GetMask(m.ID, false)
		if err != nil {
			return fmt.Errorf("allocate mask: %w", err)
		}
	}

	// Step 6: resolve reply target, diverting to the PM path on a PMMessage match.
	var replyToID *uuid.UUID
	if in.ReplyToMID != nil {
		sourceID, pm, err := c.resolveReplyTarget(ctx, m, *in.ReplyToMID)
		if err != nil {
			return fmt.Errorf("resolve reply target: %w", err)
		}
		if pm != nil {
			return c.sendPM(ctx, groupID, m, in, pm, notify)
		}
		replyToID = sourceID
	}

	// Step 7: persist the Message row, update last_mask.
	msg, err := c.Messages.Create(ctx, message.CreateParams{
		GroupID:   groupID,
		MID:       in.MID,
		MemberID:  m.ID,
		Mask:      mk,
		ReplyToID: replyToID,
	})
	if err != nil {
		return fmt.Errorf("persist message: %w", err)
	}
	if err := c.Members.SetLastMask(ctx, m.ID, &mk); err != nil {
		return fmt.Errorf("update last mask: %w", err)
	}

	// Step 8: enqueue a Broadcast and poll its completion.
	content := queue.Content{Text: in.Text, Entities: in.Entities, MediaID: in.MediaID, Voice: in.Voice}
	op := queue.NewBroadcast(c.now(), m.ID, msg.ID, content)
	if err := c.Queue.Put(ctx, op); err != nil {
		return fmt.Errorf("enqueue broadcast: %w", err)
	}

	if notify != nil {
		notify(ctx, in.PlatformUserID, "sending…")
	}
	return c.awaitBroadcast(ctx, groupID, op, in.PlatformUserID, notify)
}

// checkContent implements spec.md §4.8 "Content checks": MESSAGE unconditionally, MEDIA/STICKER/MARKUP/LINK/LONG as
// applicable, all against the Member's current bans (group default included).
func (c *Controller) checkContent(ctx context.Context, m *member.Member, in Inbound) error {
	checks := []struct {
		applies bool
		banType banish.Type
	}{
		{true, banish.TypeMessage},
		{in.MediaID != nil, banish.TypeMedia},
		{in.Sticker, banish.TypeSticker},
		{in.hasMarkup(), banish.TypeMarkup},
		{in.hasLink(), banish.TypeLink},
		{len(in.Text) > 200, banish.TypeLong},
	}

	for _, check := range checks {
		if !check.applies {
			continue
		}
		memberBans, groupBans, err := c.loadBanGroups(ctx, m)
		if err != nil {
			return err
		}
		if _, err := permission.CheckBan(c.now(), m, memberBans, groupBans, check.banType, true, true); err != nil {
			return err
		}
	}
	return nil
}

// resolveReplyTarget implements spec.md §4.8 send path step 6's three-way lookup: the sender's own Messages, its
// Redirects back to a source Message, then its PMMessages. Exactly one of the two return values is non-nil when a
// match is found; both are nil when mid matches nothing the sender has seen.
func (c *Controller) resolveReplyTarget(ctx context.Context, m *member.Member, mid int64) (*uuid.UUID, *message.PMMessage, error) {
	if own, err := c.Messages.GetByMemberAndMID(ctx, m.ID, mid); err == nil {
		return &own.ID, nil, nil
	}
	if sourceID, err := c.Redirects.Reverse(ctx, m.ID, mid); err == nil {
		return &sourceID, nil, nil
	}
	if pm, err := c.Messages.GetPMByRecipientAndMID(ctx, m.ID, mid); err == nil {
		return nil, pm, nil
	}
	return nil, nil, nil
}

func (c *Controller) loadBanGroups(ctx context.Context, m *member.Member) (*banish.Group, *banish.Group, error) {
	var memberBans *banish.Group
	if m.BanGroupID != nil {
		g, err := c.Bans.GetByID(ctx, *m.BanGroupID)
		if err != nil && !errors.Is(err, banish.ErrNotFound) {
			return nil, nil, fmt.Errorf("load member ban group: %w", err)
		}
		memberBans = g
	}

	g, err := c.Groups.GetByID(ctx, m.GroupID)
	if err != nil {
		return nil, nil, fmt.Errorf("load group: %w", err)
	}
	groupBans, err := c.Bans.GetByID(ctx, g.DefaultBanGroupID)
	if err != nil && !errors.Is(err, banish.ErrNotFound) {
		return nil, nil, fmt.Errorf("load default ban group: %w", err)
	}
	return memberBans, groupBans, nil
}

// presentChatInstruction shows text to the user and waits up to chatInstructionTimeout for a ci_confirm
// acknowledgement (spec.md §4.8 step 4).
func (c *Controller) presentChatInstruction(ctx context.Context, in Inbound, notify StatusSender, text string) (bool, error) {
	ack := make(chan struct{}, 1)
	c.Conversations.Set(in.ChatID, in.PlatformUserID, StatusCIConfirm, ack)

	if notify != nil {
		notify(ctx, in.PlatformUserID, text)
	}

	timer := time.NewTimer(chatInstructionTimeout)
	defer timer.Stop()
	select {
	case <-ack:
		return true, nil
	case <-timer.C:
		c.Conversations.Clear(in.ChatID, in.PlatformUserID)
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// awaitBroadcast polls op's completion signal every pollQuantum, refreshing the caller's status every refreshEvery
// iterations, for up to 30+5*n_members seconds (spec.md §4.8 step 8).
func (c *Controller) awaitBroadcast(ctx context.Context, groupID uuid.UUID, op queue.Op, platformUserID int64, notify StatusSender) error {
	n, err := c.Groups.NMembers(ctx, groupID)
	if err != nil {
		n = 0
	}
	deadline := time.Duration(30+5*n) * time.Second

	ticker := time.NewTicker(pollQuantum)
	defer ticker.Stop()
	overall := time.NewTimer(deadline)
	defer overall.Stop()

	iterations := 0
	for {
		select {
		case result := <-op.Done:
			if notify != nil {
				if result.Errors > 0 {
					notify(ctx, platformUserID, fmt.Sprintf("sent with %d error(s)", result.Errors))
				} else {
					notify(ctx, platformUserID, "sent")
				}
			}
			return nil
		case <-overall.C:
			return relayerr.NewOperation("send", "broadcast is taking longer than expected")
		case <-ticker.C:
			iterations++
			if notify != nil && iterations%refreshEvery == 0 {
				notify(ctx, platformUserID, "still sending…")
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
