// Package invite implements the two redemption mechanisms of spec.md §4.10: role-granting ValidationRequest codes
// (persisted, multi-use across roles) and per-group InviteCode entries (cache-backed, without expiry).
package invite

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/zetxtech/anonycnbot/internal/user"
)

// Sentinel errors for the invite package.
var (
	ErrNotFound     = errors.New("validation request not found")
	ErrCodeTooShort = errors.New("code length must be positive")
)

// codeAlphabet excludes "0" and "O" per spec.md §3 ValidationRequest: "dictionary-safe alphanumerics".
const codeAlphabet = "123456789ABCDEFGHIJKLMNPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// ValidationRequest is one redeemable (code, role) row. Fields mirror spec.md §3.
type ValidationRequest struct {
	ID          uuid.UUID
	Code        string
	Role        user.Role
	Days        *int
	UsedGrantID *uuid.UUID
	CreatedAt   time.Time
}

// Used reports whether the request has already been redeemed.
func (v ValidationRequest) Used() bool {
	return v.UsedGrantID != nil
}

// CreateCodeParams groups the inputs for CreateCode.
type CreateCodeParams struct {
	Roles  []user.Role
	Days   *int
	Length int
	Num    int
}

// GrantFunc grants role to userID, extending any existing grant's expiry per spec.md §8, and returns the resulting
// RoleGrant's ID so the ValidationRequest can back-link to it.
type GrantFunc func(ctx context.Context, userID uuid.UUID, role user.Role, days int, code string) (uuid.UUID, error)

// Repository defines the data-access contract for validation requests (part of C1/C10).
type Repository interface {
	// CreateCode generates params.Num random codes, each with one ValidationRequest row per role in params.Roles, and
	// returns the generated codes in order.
	CreateCode(ctx context.Context, params CreateCodeParams) ([]string, error)

	// UseCode atomically consumes every unused ValidationRequest matching code, granting (and extending, per
	// spec.md §8 round-trip property) each role to userID via grant, then back-links each request to the resulting
	// grant. Returns the roles actually granted. A code with no unused requests returns ErrNotFound. Idempotent: a
	// second call against an already-consumed code grants nothing and returns ErrNotFound.
	UseCode(ctx context.Context, userID uuid.UUID, code string, grant GrantFunc) ([]user.Role, error)

	GetByCode(ctx context.Context, code string) ([]ValidationRequest, error)
}

// GenerateCode produces a cryptographically random code of length characters drawn from codeAlphabet. Exported for
// the per-group invite codes of spec.md §4.10 "Invite codes (per-group)", which live in the cache store rather than
// alongside ValidationRequest and so are minted by the caller rather than CreateCode.
func GenerateCode(length int) (string, error) {
	return generateCode(length)
}

// generateCode produces a cryptographically random code of length characters drawn from codeAlphabet.
func generateCode(length int) (string, error) {
	if length <= 0 {
		return "", ErrCodeTooShort
	}
	alphabetLen := big.NewInt(int64(len(codeAlphabet)))
	buf := make([]byte, length)
	for i := range buf {
		n, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			return "", fmt.Errorf("crypto/rand: %w", err)
		}
		buf[i] = codeAlphabet[n.Int64()]
	}
	return string(buf), nil
}

// Code is a per-group invite kept in the cache store rather than Postgres (spec.md §4.10 "Invite codes
// (per-group)"). It only tracks remaining uses; codes carry no TTL and do not expire, since valkey.Dict stores its
// entries without one.
type Code struct {
	Inviter       uuid.UUID // Member ID
	RemainingUses int
}

// Redeemed reports whether the code has no uses remaining.
func (c Code) Redeemed() bool {
	return c.RemainingUses <= 0
}
