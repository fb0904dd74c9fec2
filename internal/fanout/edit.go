package fanout

import (
	"context"

	"github.com/google/uuid"

	"github.com/zetxtech/anonycnbot/internal/queue"
)

// Edit executes an Edit op (spec.md §4.7 "Edit"): the same recipient enumeration as Broadcast, but only recipients
// with an existing Redirect are touched; a recipient without one is skipped rather than sent a new message.
func (w *Worker) Edit(ctx context.Context, groupID uuid.UUID, op queue.Op) queue.Result {
	var result queue.Result

	src, err := w.Messages.GetByID(ctx, op.Message)
	if err != nil {
		signal(op, result)
		return result
	}

	sender, err := w.Members.GetByID(ctx, op.Sender)
	if err != nil {
		signal(op, result)
		return result
	}

	body, entities := composeBody(src.Mask, op.Content)

	recipients, err := w.Members.ListRecipients(ctx, groupID, sender.ID)
	if err != nil {
		signal(op, result)
		return result
	}

	for _, r := range recipients {
		mid, err := w.Redirects.RedirectFor(ctx, src.ID, r.ID)
		if err != nil {
			continue
		}

		result.Requests++

		chatID, err := w.chatID(ctx, r)
		if err != nil {
			result.Errors++
			continue
		}

		if err := w.Client.EditMessageText(ctx, chatID, mid, body, entities); err != nil {
			result.Errors++
			w.downgradeIfUnreachable(ctx, r, err)
		}
	}

	signal(op, result)
	return result
}
