package fanout

import (
	"context"
	"time"

	"github.com/zetxtech/anonycnbot/internal/banish"
	"github.com/zetxtech/anonycnbot/internal/member"
	"github.com/zetxtech/anonycnbot/internal/queue"
	"github.com/zetxtech/anonycnbot/internal/telegram"
)

// InterSendDelay is the spacing between successive sends within one bulk op (spec.md §4.7 "Bulk ops").
const InterSendDelay = time.Second

// BulkRedirect executes a BulkRedirect op: replaying ordered non-pinned history to one recipient, establishing new
// Redirects for messages they had not previously received (spec.md §4.7 "Bulk ops").
func (w *Worker) BulkRedirect(ctx context.Context, op queue.Op) queue.Result {
	return w.bulk(ctx, op, false)
}

// BulkPin executes a BulkPin op, symmetric to BulkRedirect but restricted to pinned messages.
func (w *Worker) BulkPin(ctx context.Context, op queue.Op) queue.Result {
	return w.bulk(ctx, op, true)
}

// bulk replays op.Replay (ordered Message IDs) to op.Recipient, one element at a time with InterSendDelay spacing
// between sends, never interleaved with the relay's main queue (the caller is responsible for running this on a
// detached task rather than the main consumer goroutine). Each replayed message is copied from an existing
// recipient's already-masked copy, never from the original sender's unmasked one.
func (w *Worker) bulk(ctx context.Context, op queue.Op, pinnedOnly bool) queue.Result {
	var result queue.Result

	r, err := w.Members.GetByID(ctx, op.Recipient)
	if err != nil {
		signal(op, result)
		return result
	}
	if r.Role == member.RoleBanned {
		signal(op, result)
		return result
	}
	if w.MemberDenied != nil {
		denied, err := w.MemberDenied(ctx, r, banish.TypeReceive)
		if err != nil || denied {
			signal(op, result)
			return result
		}
	}

	chatID, err := w.chatID(ctx, r)
	if err != nil {
		signal(op, result)
		return result
	}

	for i, msgID := range op.Replay {
		if i > 0 {
			timer := time.NewTimer(InterSendDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				signal(op, result)
				return result
			case <-timer.C:
			}
		}

		src, err := w.Messages.GetByID(ctx, msgID)
		if err != nil {
			continue
		}
		if pinnedOnly && !src.Pinned {
			continue
		}

		redirects, err := w.Redirects.ListBySource(ctx, msgID)
		if err != nil || len(redirects) == 0 {
			continue
		}
		from := redirects[0]
		fromMember, err := w.Members.GetByID(ctx, from.RecipientMemberID)
		if err != nil {
			continue
		}
		fromChatID, err := w.chatID(ctx, fromMember)
		if err != nil {
			continue
		}

		result.Requests++

		mid, err := w.Client.CopyMessage(ctx, chatID, fromChatID, from.MID, telegram.CopyOptions{})
		if err != nil {
			result.Errors++
			w.downgradeIfUnreachable(ctx, r, err)
			continue
		}
		if _, err := w.Redirects.Record(ctx, msgID, r.ID, mid); err != nil {
			result.Errors++
		}
	}

	signal(op, result)
	return result
}
