// Package banish models BanType denials and the BanGroups that bundle them (spec.md §3, §4.4).
package banish

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a BanGroup lookup misses.
var ErrNotFound = errors.New("ban group not found")

// Type enumerates capability denials. Values are stored as smallints; do not reorder existing entries.
type Type int

const (
	TypeReceive Type = iota
	TypeMessage
	TypeMedia
	TypeSticker
	TypeMarkup
	TypeLong
	TypeLink
	TypePinMask
	TypeLongMask1
	TypeLongMask2
	TypeLongMask3
	TypePMUser
	TypePMAdmin
	TypeInvite
)

// String renders the ban type name, mainly for logging and chat notices.
func (t Type) String() string {
	switch t {
	case TypeReceive:
		return "receive"
	case TypeMessage:
		return "message"
	case TypeMedia:
		return "media"
	case TypeSticker:
		return "sticker"
	case TypeMarkup:
		return "markup"
	case TypeLong:
		return "long"
	case TypeLink:
		return "link"
	case TypePinMask:
		return "pin_mask"
	case TypeLongMask1:
		return "long_mask_1"
	case TypeLongMask2:
		return "long_mask_2"
	case TypeLongMask3:
		return "long_mask_3"
	case TypePMUser:
		return "pm_user"
	case TypePMAdmin:
		return "pm_admin"
	case TypeInvite:
		return "invite"
	default:
		return "unknown"
	}
}

// Group is a named set of Type denials with an optional expiry. Attached to a Group (default) or a Member (override).
type Group struct {
	ID    uuid.UUID
	Until *time.Time
	Types map[Type]bool
}

// Expired reports whether the ban group's denial window has lapsed as of now. A nil Until never expires.
func (g *Group) Expired(now time.Time) bool {
	return g.Until != nil && !g.Until.After(now)
}

// Denies reports whether t is in the ban group's active set, honoring expiry.
func (g *Group) Denies(now time.Time, t Type) bool {
	if g == nil {
		return false
	}
	if g.Expired(now) {
		return false
	}
	return g.Types[t]
}

// Repository defines the data-access contract for ban group operations (part of C1). BanGroups are replaced
// atomically: a new row is created and referenced before the old one is deleted (spec.md §3 Lifecycles).
type Repository interface {
	Create(ctx context.Context, until *time.Time, types []Type) (*Group, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Group, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
