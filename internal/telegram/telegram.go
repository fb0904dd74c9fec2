// Package telegram declares the platform SDK surface the relay core consumes (spec.md §6) and classifies its errors.
// The core never depends on a concrete SDK type; internal/fanout and internal/relay depend only on Client.
package telegram

import (
	"context"
	"errors"
)

// Entity is a single formatting span within a message's text, using platform byte offsets.
type Entity struct {
	Type   string
	Offset int
	Length int
}

// CopyOptions carries the optional fields accepted by Client.CopyMessage.
type CopyOptions struct {
	ReplyToMessageID *int64
	Caption          string
	CaptionEntities  []Entity
}

// PinOptions carries the optional fields accepted by Client.PinChatMessage.
type PinOptions struct {
	BothSides bool
	Silent    bool
}

// ChatMember is the subset of platform chat-membership data the relay core consumes.
type ChatMember struct {
	UserID int64
	Status string
}

// Client is the platform SDK surface consumed by one relay (spec.md §6 "SDK surface"). One Client is bound to one
// Group's credential token.
type Client interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error

	SendMessage(ctx context.Context, chatID int64, text string, entities []Entity) (mid int64, err error)
	SendPhoto(ctx context.Context, chatID int64, fileID string, caption string) (mid int64, err error)
	// SendVoice uploads a freshly masked voice payload. fileID is the platform-assigned id of the uploaded file,
	// cacheable by the caller to avoid re-uploading the same bytes to subsequent recipients (spec.md §9 voice masking).
	SendVoice(ctx context.Context, chatID int64, oggBytes []byte, durationSeconds int) (mid int64, fileID string, err error)
	// SendVoiceByFileID re-sends a previously uploaded voice payload by its cached file id, avoiding a repeat upload.
	SendVoiceByFileID(ctx context.Context, chatID int64, fileID string, durationSeconds int) (mid int64, err error)
	CopyMessage(ctx context.Context, chatID int64, fromChatID int64, fromMID int64, opts CopyOptions) (mid int64, err error)
	EditMessageText(ctx context.Context, chatID int64, mid int64, text string, entities []Entity) error
	DeleteMessages(ctx context.Context, chatID int64, mids []int64) error
	PinChatMessage(ctx context.Context, chatID int64, mid int64, opts PinOptions) error
	UnpinChatMessage(ctx context.Context, chatID int64, mid int64) error

	GetUsers(ctx context.Context, userIDs []int64) ([]UserInfo, error)
	GetMessages(ctx context.Context, chatID int64, mids []int64) ([]MessageInfo, error)
	GetChatMembers(ctx context.Context, chatID int64) ([]ChatMember, error)
	SetBotCommands(ctx context.Context, commands []Command) error
	DownloadMedia(ctx context.Context, fileID string) ([]byte, error)
}

// UserInfo is the subset of platform user data the relay core consumes.
type UserInfo struct {
	ID        int64
	FirstName string
	LastName  string
	Username  string
}

// MessageInfo is the subset of platform message data the relay core consumes.
type MessageInfo struct {
	MID      int64
	Text     string
	Entities []Entity
	MediaID  string
}

// Command is one entry of a bot's registered command list (`/start`, `/ban`, …).
type Command struct {
	Name        string
	Description string
}

// Sentinel classification errors (spec.md §6, §7). A Client implementation wraps the concrete SDK error with one of
// these via errors.Join or fmt.Errorf("%w: ...", ErrUserBlocked) so callers can classify with errors.Is.
var (
	ErrUserBlocked        = errors.New("user blocked the bot")
	ErrUserDeactivated    = errors.New("user account deactivated")
	ErrMessageNotModified = errors.New("message not modified")
	ErrRateLimited        = errors.New("rate limited")
	// ErrCredentialDeactivated classifies a Start failure caused by the bot credential itself having been revoked or
	// deactivated on the platform side (spec.md §4.8 step 1), as distinct from a transient connection failure.
	ErrCredentialDeactivated = errors.New("bot credential deactivated")
)

// IsCredentialDeactivated reports whether err classifies as the bot's own credential having been deactivated.
func IsCredentialDeactivated(err error) bool {
	return errors.Is(err, ErrCredentialDeactivated)
}

// IsUnreachable reports whether err classifies as a terminal "recipient unreachable" failure (spec.md §7): the
// offending recipient should be downgraded to LEFT rather than retried.
func IsUnreachable(err error) bool {
	return errors.Is(err, ErrUserBlocked) || errors.Is(err, ErrUserDeactivated)
}
