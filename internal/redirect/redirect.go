// Package redirect maps a source Message to each recipient's copy (spec.md §3 RedirectedMessage, §4.5).
package redirect

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrDuplicate is returned when a (recipient, mid) pair is inserted twice, which spec.md §4.5 treats as a bug that
// must fail loudly rather than silently overwrite.
var ErrDuplicate = errors.New("duplicate redirect for recipient and mid")

// ErrNotFound is returned when a redirect lookup misses.
var ErrNotFound = errors.New("redirect not found")

// Redirect is a (source Message, recipient Member, recipient-side mid) triple.
type Redirect struct {
	ID                uuid.UUID
	SourceMessageID   uuid.UUID
	RecipientMemberID uuid.UUID
	MID               int64
	CreatedAt         time.Time
}

// Index defines the data-access contract for the redirect index (C5).
type Index interface {
	// Record creates a RedirectedMessage row. Returns ErrDuplicate if (recipient, mid) already exists.
	Record(ctx context.Context, sourceMessageID, recipientMemberID uuid.UUID, mid int64) (*Redirect, error)

	// RedirectFor returns the recipient-side mid for (sourceMessageID, recipientMemberID), or ErrNotFound.
	RedirectFor(ctx context.Context, sourceMessageID, recipientMemberID uuid.UUID) (int64, error)

	// Reverse resolves a recipient-side mid back to its source Message id, used to identify the true reply target
	// when a recipient replies to a forwarded copy (spec.md §4.8 send path step 6b).
	Reverse(ctx context.Context, recipientMemberID uuid.UUID, mid int64) (uuid.UUID, error)

	// ListBySource returns all redirects for a source message, used by delete fan-out and bulk replay.
	ListBySource(ctx context.Context, sourceMessageID uuid.UUID) ([]*Redirect, error)
}
