// Package member models the (group, user) membership entity (spec.md §3 Member) and its ordered MemberRole.
package member

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors for the member package.
var (
	ErrNotFound      = errors.New("member not found")
	ErrAlreadyExists = errors.New("member already exists")
)

// Role is the ordered MemberRole enum from spec.md §3. Comparison is by ordinal.
type Role int

const (
	RoleNone Role = iota
	RoleBanned
	RoleLeft
	RoleGuest
	RoleMember
	RoleAdmin
	RoleAdminMsg
	RoleAdminBan
	RoleAdminAdmin
	RoleCreator
)

// String renders the role name, mainly for logging and chat notices.
func (r Role) String() string {
	switch r {
	case RoleNone:
		return "none"
	case RoleBanned:
		return "banned"
	case RoleLeft:
		return "left"
	case RoleGuest:
		return "guest"
	case RoleMember:
		return "member"
	case RoleAdmin:
		return "admin"
	case RoleAdminMsg:
		return "admin_msg"
	case RoleAdminBan:
		return "admin_ban"
	case RoleAdminAdmin:
		return "admin_admin"
	case RoleCreator:
		return "creator"
	default:
		return "unknown"
	}
}

// IsAdmin reports whether the role is one of the administrative tiers (ADMIN and above), which bypass bans per
// spec.md §4.4.
func (r Role) IsAdmin() bool {
	return r >= RoleAdmin
}

// Member is a (group, user) pair with its relay-local state. Fields mirror spec.md §3.
type Member struct {
	ID           uuid.UUID
	GroupID      uuid.UUID
	UserID       uuid.UUID
	Role         Role
	JoinedAt     time.Time
	LastActivity time.Time
	LastMask     *string
	PinnedMask   *string
	BanGroupID   *uuid.UUID
	InvitorID    *uuid.UUID
}

// CreateParams groups the inputs needed to create a Member.
type CreateParams struct {
	GroupID   uuid.UUID
	UserID    uuid.UUID
	Role      Role
	InvitorID *uuid.UUID
}

// Repository defines the data-access contract for member operations (part of C1).
type Repository interface {
	Create(ctx context.Context, params CreateParams) (*Member, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Member, error)
	GetByGroupAndUser(ctx context.Context, groupID, userID uuid.UUID) (*Member, error)
	// ListRecipients returns members of groupID with role >= GUEST, excluding excludeMemberID, ordered by joined_at.
	// Used by the fan-out worker to enumerate broadcast recipients (spec.md §4.7 step 3).
	ListRecipients(ctx context.Context, groupID uuid.UUID, excludeMemberID uuid.UUID) ([]*Member, error)
	SetRole(ctx context.Context, id uuid.UUID, role Role) error
	SetBanGroup(ctx context.Context, id uuid.UUID, banGroupID *uuid.UUID) error
	SetLastMask(ctx context.Context, id uuid.UUID, mask *string) error
	SetPinnedMask(ctx context.Context, id uuid.UUID, mask *string) error
	Touch(ctx context.Context, id uuid.UUID) error
}
