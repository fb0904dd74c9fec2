package fanout

import (
	"context"

	"github.com/google/uuid"

	"github.com/zetxtech/anonycnbot/internal/banish"
	"github.com/zetxtech/anonycnbot/internal/queue"
	"github.com/zetxtech/anonycnbot/internal/telegram"
)

// Broadcast executes a Broadcast op (spec.md §4.7 "Broadcast"). groupID scopes recipient enumeration.
func (w *Worker) Broadcast(ctx context.Context, groupID uuid.UUID, op queue.Op) queue.Result {
	var result queue.Result

	if w.GroupDenied != nil {
		denied, err := w.GroupDenied(ctx, banish.TypeReceive)
		if err != nil || denied {
			signal(op, result)
			return result
		}
	}

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

	senderChatID, err := w.chatID(ctx, sender)
	if err != nil {
		signal(op, result)
		return result
	}

	useVoiceMasking := false
	if op.Content != nil && op.Content.Voice && op.Content.MediaID != nil {
		senderUser, err := w.Users.GetByID(ctx, sender.UserID)
		useVoiceMasking = err == nil && (w.GroupPrime || senderUser.IsPrime(w.now()))
	}

	var cachedVoiceFileID string
	var cachedVoiceDuration int

	for _, r := range recipients {
		if w.MemberDenied != nil {
			denied, err := w.MemberDenied(ctx, r, banish.TypeReceive)
			if err != nil || denied {
				continue
			}
		}

		result.Requests++

		chatID, err := w.chatID(ctx, r)
		if err != nil {
			result.Errors++
			continue
		}

		replyTo := w.resolveReplyTo(ctx, src, r.ID)

		var mid int64
		if useVoiceMasking {
			mid, err = w.sendVoice(ctx, chatID, *op.Content.MediaID, &cachedVoiceFileID, &cachedVoiceDuration)
		} else {
			mid, err = w.Client.CopyMessage(ctx, chatID, senderChatID, src.MID, telegram.CopyOptions{
				ReplyToMessageID: replyTo,
				Caption:          body,
				CaptionEntities:  entities,
			})
		}

		if err != nil {
			result.Errors++
			w.downgradeIfUnreachable(ctx, r, err)
			continue
		}

		if _, err := w.Redirects.Record(ctx, src.ID, r.ID, mid); err != nil {
			result.Errors++
		}
	}

	signal(op, result)
	return result
}

// sendVoice performs the voice-masking step (spec.md §4.7 step 3b): the masked payload is produced once per
// broadcast and its resulting platform file id cached across recipients to avoid re-uploading.
func (w *Worker) sendVoice(ctx context.Context, chatID int64, mediaID string, cachedFileID *string, cachedDuration *int) (int64, error) {
	if *cachedFileID != "" {
		return w.Client.SendVoiceByFileID(ctx, chatID, *cachedFileID, *cachedDuration)
	}

	raw, err := w.Client.DownloadMedia(ctx, mediaID)
	if err != nil {
		return 0, err
	}
	masked, duration, err := w.Voice.MaskVoice(ctx, raw)
	if err != nil {
		return 0, err
	}
	mid, fileID, err := w.Client.SendVoice(ctx, chatID, masked, duration)
	if err != nil {
		return 0, err
	}
	*cachedFileID = fileID
	*cachedDuration = duration
	return mid, nil
}
