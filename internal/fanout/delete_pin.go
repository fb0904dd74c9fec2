package fanout

import (
	"context"

	"github.com/google/uuid"

	"github.com/zetxtech/anonycnbot/internal/member"
	"github.com/zetxtech/anonycnbot/internal/queue"
	"github.com/zetxtech/anonycnbot/internal/telegram"
)

// Delete executes a Delete op (spec.md §4.7 "Delete"): the owner's own copy is deleted by its source mid, and every
// other recipient's copy is deleted by its redirect mid.
func (w *Worker) Delete(ctx context.Context, op queue.Op) queue.Result {
	var result queue.Result

	src, err := w.Messages.GetByID(ctx, op.Message)
	if err != nil {
		signal(op, result)
		return result
	}

	owner, err := w.Members.GetByID(ctx, src.MemberID)
	if err == nil {
		result.Requests++
		if chatID, err := w.chatID(ctx, owner); err != nil {
			result.Errors++
		} else if err := w.Client.DeleteMessages(ctx, chatID, []int64{src.MID}); err != nil {
			result.Errors++
			w.downgradeIfUnreachable(ctx, owner, err)
		}
	}

	redirects, err := w.Redirects.ListBySource(ctx, src.ID)
	if err != nil {
		signal(op, result)
		return result
	}

	for _, rd := range redirects {
		result.Requests++

		r, err := w.Members.GetByID(ctx, rd.RecipientMemberID)
		if err != nil {
			result.Errors++
			continue
		}
		chatID, err := w.chatID(ctx, r)
		if err != nil {
			result.Errors++
			continue
		}
		if err := w.Client.DeleteMessages(ctx, chatID, []int64{rd.MID}); err != nil {
			result.Errors++
			w.downgradeIfUnreachable(ctx, r, err)
		}
	}

	signal(op, result)
	return result
}

// Pin executes a Pin op (spec.md §4.7 "Pin / Unpin"): every recipient (owner included) is touched; RECEIVE denial is
// ignored so admin-issued pins are universally visible, but ban status still excludes BANNED members via
// Members.ListRecipients' role threshold.
func (w *Worker) Pin(ctx context.Context, groupID uuid.UUID, op queue.Op) queue.Result {
	return w.pinUnpin(ctx, groupID, op, true)
}

// Unpin executes an Unpin op, symmetric to Pin.
func (w *Worker) Unpin(ctx context.Context, groupID uuid.UUID, op queue.Op) queue.Result {
	return w.pinUnpin(ctx, groupID, op, false)
}

func (w *Worker) pinUnpin(ctx context.Context, groupID uuid.UUID, op queue.Op, pin bool) queue.Result {
	var result queue.Result

	src, err := w.Messages.GetByID(ctx, op.Message)
	if err != nil {
		signal(op, result)
		return result
	}

	owner, err := w.Members.GetByID(ctx, src.MemberID)
	if err != nil {
		signal(op, result)
		return result
	}

	w.pinOne(ctx, owner, src.MID, pin, &result)

	recipients, err := w.Members.ListRecipients(ctx, groupID, owner.ID)
	if err != nil {
		signal(op, result)
		return result
	}

	for _, r := range recipients {
		mid, err := w.Redirects.RedirectFor(ctx, src.ID, r.ID)
		if err != nil {
			continue
		}
		w.pinOne(ctx, r, mid, pin, &result)
	}

	signal(op, result)
	return result
}

func (w *Worker) pinOne(ctx context.Context, m *member.Member, mid int64, pin bool, result *queue.Result) {
	result.Requests++

	chatID, err := w.chatID(ctx, m)
	if err != nil {
		result.Errors++
		return
	}

	if pin {
		err = w.Client.PinChatMessage(ctx, chatID, mid, telegram.PinOptions{})
	} else {
		err = w.Client.UnpinChatMessage(ctx, chatID, mid)
	}
	if err != nil {
		result.Errors++
		w.downgradeIfUnreachable(ctx, m, err)
	}
}
