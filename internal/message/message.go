// Package message models the authoritative Message and PMMessage records of spec.md §3.
package message

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors for the message package.
var (
	ErrNotFound = errors.New("message not found")
)

// Message is the authoritative record of a broadcast (spec.md §3).
type Message struct {
	ID        uuid.UUID
	GroupID   uuid.UUID
	MID       int64
	MemberID  uuid.UUID
	Mask      string
	Pinned    bool
	ReplyToID *uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CreateParams groups the inputs for creating a new Message.
type CreateParams struct {
	GroupID   uuid.UUID
	MID       int64
	MemberID  uuid.UUID
	Mask      string
	ReplyToID *uuid.UUID
}

// PMMessage is a private tunneled message between two members of the same group (spec.md §3).
type PMMessage struct {
	ID                uuid.UUID
	GroupID           uuid.UUID
	SenderMemberID    uuid.UUID
	RecipientMemberID uuid.UUID
	SenderMID         int64
	RecipientMID      int64
	ReplyToID         *uuid.UUID
	CreatedAt         time.Time
}

// CreatePMParams groups the inputs for creating a new PMMessage.
type CreatePMParams struct {
	GroupID           uuid.UUID
	SenderMemberID    uuid.UUID
	RecipientMemberID uuid.UUID
	SenderMID         int64
	RecipientMID      int64
	ReplyToID         *uuid.UUID
}

// Repository defines the data-access contract for message and PM-message operations (part of C1).
type Repository interface {
	Create(ctx context.Context, params CreateParams) (*Message, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Message, error)
	// GetByMemberAndMID finds a Message owned by the given member with the given sender-side mid, used to resolve
	// reply targets against the sender's own messages (spec.md §4.8 send path step 6a).
	GetByMemberAndMID(ctx context.Context, memberID uuid.UUID, mid int64) (*Message, error)
	SetPinned(ctx context.Context, id uuid.UUID, pinned bool) error
	UpdatedNow(ctx context.Context, id uuid.UUID) error

	CreatePM(ctx context.Context, params CreatePMParams) (*PMMessage, error)
	// GetPMByRecipientAndMID finds a PMMessage by the recipient-side mid, used to resolve reply targets against PM
	// history (spec.md §4.8 send path step 6c).
	GetPMByRecipientAndMID(ctx context.Context, recipientMemberID uuid.UUID, mid int64) (*PMMessage, error)
}
