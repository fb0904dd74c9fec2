// Package group models a hosted relay (spec.md §3 Group): one per bot credential, with its welcome flow and ban
// defaults.
package group

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors for the group package.
var (
	ErrNotFound      = errors.New("group not found")
	ErrTokenTaken    = errors.New("credential token already bound to a group")
	ErrHandleTaken   = errors.New("group handle already in use")
)

// WelcomeButton is one row of the welcome message's inline keyboard spec.
type WelcomeButton struct {
	Text string `json:"text"`
	Data string `json:"data"`
}

// Group is one hosted relay, keyed by its platform credential token.
type Group struct {
	ID                uuid.UUID
	Token             string
	PlatformID        *int64
	Handle            *string
	Title             string
	CreatorID         uuid.UUID
	CreatedAt         time.Time
	LastActivity      time.Time
	Disabled          bool
	DefaultBanGroupID uuid.UUID
	WelcomeText       string
	WelcomeImageID    *string
	WelcomeButtons    []WelcomeButton
	WelcomeSendRecent bool
	ChatInstruction   string
	JoinPasswordHash  *string
	Privacy           bool
}

// CreateParams groups the inputs needed to create a Group together with its creator Member and default BanGroup in a
// single atomic scope (spec.md §4.8 step 3).
type CreateParams struct {
	Token      string
	PlatformID *int64
	Handle     *string
	Title      string
	CreatorID  uuid.UUID
}

// UpdateParams groups the optional fields for partial updates. A nil pointer means "no change."
type UpdateParams struct {
	Handle            *string
	Title             *string
	Disabled          *bool
	WelcomeText       *string
	WelcomeImageID    *string
	WelcomeButtons    *[]WelcomeButton
	WelcomeSendRecent *bool
	ChatInstruction   *string
	JoinPasswordHash  **string
	Privacy           *bool
}

// Repository defines the data-access contract for group operations (part of C1).
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Group, error)
	GetByToken(ctx context.Context, token string) (*Group, error)
	GetByHandle(ctx context.Context, handle string) (*Group, error)
	ListActive(ctx context.Context) ([]*Group, error)
	Update(ctx context.Context, id uuid.UUID, params UpdateParams) (*Group, error)
	Touch(ctx context.Context, id uuid.UUID) error

	// NMembers counts Members of the group with role >= MemberRoleGuest, per spec.md §3 invariant 5.
	NMembers(ctx context.Context, groupID uuid.UUID) (int, error)
	// NMessages counts Messages belonging to the group, per spec.md §3 invariant 5.
	NMessages(ctx context.Context, groupID uuid.UUID) (int, error)
}
