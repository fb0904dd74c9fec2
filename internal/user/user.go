// Package user models the global identity entity (spec.md §3 User) and its role-grants.
package user

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors for the user package.
var (
	ErrNotFound      = errors.New("user not found")
	ErrAlreadyExists = errors.New("user already exists")
)

// Role is the ordered global UserRole enum from spec.md §3. Comparison is by ordinal: NONE<BANNED<GROUPER<AWARDED<
// PAYING<ADMIN<CREATOR.
type Role int

const (
	RoleNone Role = iota
	RoleBanned
	RoleGrouper
	RoleAwarded
	RolePaying
	RoleAdmin
	RoleCreator
)

// String renders the role name, mainly for logging and error messages.
func (r Role) String() string {
	switch r {
	case RoleNone:
		return "none"
	case RoleBanned:
		return "banned"
	case RoleGrouper:
		return "grouper"
	case RoleAwarded:
		return "awarded"
	case RolePaying:
		return "paying"
	case RoleAdmin:
		return "admin"
	case RoleCreator:
		return "creator"
	default:
		return "unknown"
	}
}

// RoleGrant is a single (role, optional expiry, optional origin code) tuple held by a User.
type RoleGrant struct {
	ID        uuid.UUID
	Role      Role
	ExpiresAt *time.Time
	Code      string
	CreatedAt time.Time
}

// Active reports whether the grant is currently in effect relative to now.
func (g RoleGrant) Active(now time.Time) bool {
	return g.ExpiresAt == nil || g.ExpiresAt.After(now)
}

// User is the global identity entity. Fields mirror spec.md §3.
type User struct {
	ID           uuid.UUID
	PlatformID   int64
	FirstName    string
	LastName     string
	Username     *string
	CreatedAt    time.Time
	LastActivity time.Time
	Grants       []RoleGrant
}

// HasRole reports whether the user holds any of the given roles with a grant that is not expired as of now.
func (u *User) HasRole(now time.Time, roles ...Role) bool {
	for _, g := range u.Grants {
		if !g.Active(now) {
			continue
		}
		for _, r := range roles {
			if g.Role == r {
				return true
			}
		}
	}
	return false
}

// HighestRole returns the highest ordinal role the user holds with a non-expired grant as of now, or RoleNone if the
// user holds none. Used mainly to render a human-readable "got" role in permission error messages.
func (u *User) HighestRole(now time.Time) Role {
	highest := RoleNone
	for _, g := range u.Grants {
		if g.Active(now) && g.Role > highest {
			highest = g.Role
		}
	}
	return highest
}

// IsPrime reports whether the user holds AWARDED, PAYING, ADMIN or CREATOR with a non-expired grant as of now. This
// is the "PRIME" tier referenced by voice masking (spec.md §4.7) and mask-setting (spec.md §4.9) eligibility.
func (u *User) IsPrime(now time.Time) bool {
	return u.HasRole(now, RoleAwarded, RolePaying, RoleAdmin, RoleCreator)
}

// CreateParams groups the inputs for creating a new user.
type CreateParams struct {
	PlatformID int64
	FirstName  string
	LastName   string
	Username   *string
}

// Repository defines the data-access contract for user operations (part of C1).
type Repository interface {
	Create(ctx context.Context, params CreateParams) (*User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByPlatformID(ctx context.Context, platformID int64) (*User, error)
	GetOrCreate(ctx context.Context, params CreateParams) (*User, bool, error)
	Touch(ctx context.Context, id uuid.UUID) error

	// AddRole grants role to the user. If the user already holds an unexpired grant for the same role, its expiry is
	// extended by days rather than reset to now+days (see spec.md §8 round-trip property); an expired grant restarts
	// at now+days, and a permanent grant stays permanent. days<=0 means a permanent grant (no expiry).
	AddRole(ctx context.Context, userID uuid.UUID, role Role, days int, code string) (*RoleGrant, error)
	Roles(ctx context.Context, userID uuid.UUID) ([]RoleGrant, error)
}
