// Package fanout implements the fan-out worker (spec.md §4.7 C7): the single cooperative consumer that translates
// one dequeued queue.Op into N outbound platform RPCs, one per recipient, with per-recipient error classification
// and redirect bookkeeping.
package fanout

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/zetxtech/anonycnbot/internal/banish"
	"github.com/zetxtech/anonycnbot/internal/member"
	"github.com/zetxtech/anonycnbot/internal/message"
	"github.com/zetxtech/anonycnbot/internal/queue"
	"github.com/zetxtech/anonycnbot/internal/redirect"
	"github.com/zetxtech/anonycnbot/internal/telegram"
	"github.com/zetxtech/anonycnbot/internal/user"
	"github.com/zetxtech/anonycnbot/internal/voice"
)

// GroupDenyFunc reports whether the group's default ban-group denies banType, used for the relay-wide gate in
// Broadcast step 1 (spec.md §4.7).
type GroupDenyFunc func(ctx context.Context, banType banish.Type) (bool, error)

// MemberDenyFunc reports whether m's own ban-group override denies banType, used for member-scope recipient
// filtering (spec.md §4.7 step 3: "member scope only", i.e. the group default is not re-consulted here).
type MemberDenyFunc func(ctx context.Context, m *member.Member, banType banish.Type) (bool, error)

// Worker executes ops dequeued from one relay's queue.Op queue. One Worker exists per relay.
type Worker struct {
	Client    telegram.Client
	Members   member.Repository
	Users     user.Repository
	Messages  message.Repository
	Redirects redirect.Index
	Voice     voice.Masker

	GroupDenied  GroupDenyFunc
	MemberDenied MemberDenyFunc

	// GroupPrime reports whether the relay's voice-masking eligibility is granted at the group level, independent of
	// the sender's own role (spec.md §4.7 step 3b "(group or sender user) has PRIME role").
	GroupPrime bool

	Now func() time.Time
}

func (w *Worker) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now()
}

// chatID resolves a Member to its platform chat id, the member's own platform user id in this one-bot-per-relay,
// private-chat-fan-out design (spec.md §1, §6).
func (w *Worker) chatID(ctx context.Context, m *member.Member) (int64, error) {
	u, err := w.Users.GetByID(ctx, m.UserID)
	if err != nil {
		return 0, fmt.Errorf("resolve chat id for member %s: %w", m.ID, err)
	}
	return u.PlatformID, nil
}

// composeBody implements spec.md §4.7 step 2: a text/caption body is prefixed with "{mask} | " and entity offsets
// shifted accordingly; a media-only body becomes "{mask} sent a media.".
func composeBody(mask string, content *queue.Content) (string, []telegram.Entity) {
	if content == nil {
		return "", nil
	}
	if content.Text != "" {
		prefix := mask + " | "
		shift := len(prefix) + 1
		entities := make([]telegram.Entity, len(content.Entities))
		for i, e := range content.Entities {
			entities[i] = telegram.Entity{Type: e.Type, Offset: e.Offset + shift, Length: e.Length}
		}
		return prefix + content.Text, entities
	}
	return mask + " sent a media.", nil
}

// resolveReplyTo implements spec.md §4.7 step 3a: if src replies to another message, look up that message's redirect
// for recipient r and pass its mid as the reply target. A missing redirect (recipient joined after the original) is
// not an error; no reply target is passed.
func (w *Worker) resolveReplyTo(ctx context.Context, src *message.Message, recipientID uuid.UUID) *int64 {
	if src.ReplyToID == nil {
		return nil
	}
	mid, err := w.Redirects.RedirectFor(ctx, *src.ReplyToID, recipientID)
	if err != nil {
		return nil
	}
	return &mid
}

// downgradeIfUnreachable applies spec.md §7's recipient downgrade rule: a terminal "unreachable" RPC failure for a
// non-CREATOR recipient downgrades them to LEFT. An error from the member-repository update is discarded: it is not
// added to the error count and does not abort the fan-out.
func (w *Worker) downgradeIfUnreachable(ctx context.Context, r *member.Member, err error) {
	if !telegram.IsUnreachable(err) || r.Role == member.RoleCreator {
		return
	}
	_ = w.Members.SetRole(ctx, r.ID, member.RoleLeft)
}

// signal delivers result on op.Done without blocking; Done is always created with capacity 1 (queue.NewBroadcast and
// siblings), so this never blocks under normal use.
func signal(op queue.Op, result queue.Result) {
	if op.Done == nil {
		return
	}
	select {
	case op.Done <- result:
	default:
	}
}
