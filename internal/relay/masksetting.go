package relay

import (
	"context"
	"fmt"
	"unicode"

	"github.com/zetxtech/anonycnbot/internal/banish"
	"github.com/zetxtech/anonycnbot/internal/member"
	"github.com/zetxtech/anonycnbot/internal/permission"
	"github.com/zetxtech/anonycnbot/internal/queue"
	"github.com/zetxtech/anonycnbot/internal/relayerr"
	"github.com/zetxtech/anonycnbot/internal/telegram"
)

// zeroWidthJoiner and the variation-selector/skin-tone-modifier ranges glue adjacent runes into a single visible
// mask character (e.g. a ZWJ family emoji, or a thumbs-up plus a skin tone). No library in the dependency set
// performs full grapheme-cluster segmentation, so graphemes folds joiners and modifiers into the preceding rune
// instead of reaching for an out-of-pack dependency for this one narrow need.
const zeroWidthJoiner = '‍'

func isJoiningRune(r rune) bool {
	return r == zeroWidthJoiner ||
		unicode.Is(unicode.Mn, r) || // combining marks, incl. variation selectors' sibling ranges
		(r >= 0xFE00 && r <= 0xFE0F) || // variation selectors
		(r >= 0x1F3FB && r <= 0x1F3FF) // emoji skin-tone modifiers
}

// graphemes splits s into the visible mask units spec.md §4.8 "Mask-setting" counts length by, folding zero-width
// joiners, variation selectors and skin-tone modifiers into the rune they modify.
func graphemes(s string) []string {
	var out []string
	pendingJoin := false
	for _, r := range s {
		switch {
		case r == zeroWidthJoiner:
			pendingJoin = true
		case isJoiningRune(r) && len(out) > 0:
			out[len(out)-1] += string(r)
		case pendingJoin && len(out) > 0:
			out[len(out)-1] += string(r)
			pendingJoin = false
		default:
			out = append(out, string(r))
		}
	}
	return out
}

// longMaskBan maps a grapheme count to the LONG_MASK_{1,2,3} tier it must clear, per spec.md §4.8 "enforce
// LONG_MASK_{1,2,3} bans by length". The thresholds mirror the three ban tiers in ascending severity.
func longMaskBan(n int) (banish.Type, bool) {
	switch {
	case n > 3:
		return banish.TypeLongMask3, true
	case n > 2:
		return banish.TypeLongMask2, true
	case n > 1:
		return banish.TypeLongMask1, true
	default:
		return 0, false
	}
}

// SetMask implements spec.md §4.8 "Mask-setting": ADMIN/PRIME only, body must be one or more grapheme emoji,
// enforced against the LONG_MASK_{1,2,3} ban tiers, unique via mask.Allocator.TakeMask.
func (c *Controller) SetMask(ctx context.Context, m *member.Member, body string, notify StatusSender, platformUserID int64) error {
	return c.setPinnedMask(ctx, m, body, notify, platformUserID)
}

func (c *Controller) setPinnedMask(ctx context.Context, m *member.Member, body string, notify StatusSender, platformUserID int64) error {
	if !m.Role.IsAdmin() {
		u, err := c.Users.GetByID(ctx, m.UserID)
		if err != nil {
			return fmt.Errorf("look up user: %w", err)
		}
		if !u.IsPrime(c.now()) {
			return relayerr.NewOperation("setmask", "only admins or PRIME members may set a pinned mask")
		}
	}

	clusters := graphemes(body)
	if len(clusters) == 0 {
		return relayerr.NewOperation("setmask", "mask must contain at least one emoji")
	}

	if banType, applies := longMaskBan(len(clusters)); applies {
		memberBans, groupBans, err := c.loadBanGroups(ctx, m)
		if err != nil {
			return err
		}
		if _, err := permission.CheckBan(c.now(), m, memberBans, groupBans, banType, true, true); err != nil {
			return err
		}
	}

	if err := c.Masks.TakeMask(m.ID, body); err != nil {
		return fmt.Errorf("claim mask: %w", err)
	}
	if err := c.Members.SetPinnedMask(ctx, m.ID, &body); err != nil {
		return fmt.Errorf("persist pinned mask: %w", err)
	}
	if notify != nil {
		notify(ctx, platformUserID, fmt.Sprintf("mask set to %s", body))
	}
	return nil
}

// entitiesToTelegram adapts queue-domain entities to the telegram.Client wire shape; the two are structurally
// identical by construction (internal/fanout does the same conversion for broadcast content).
func entitiesToTelegram(in []queue.Entity) []telegram.Entity {
	out := make([]telegram.Entity, len(in))
	for i, e := range in {
		out[i] = telegram.Entity{Type: e.Type, Offset: e.Offset, Length: e.Length}
	}
	return out
}
