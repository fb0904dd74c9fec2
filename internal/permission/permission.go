// Package permission implements the role and ban-type evaluator consulted on every inbound event (spec.md §4.4).
package permission

import (
	"time"

	"github.com/zetxtech/anonycnbot/internal/banish"
	"github.com/zetxtech/anonycnbot/internal/member"
	"github.com/zetxtech/anonycnbot/internal/relayerr"
	"github.com/zetxtech/anonycnbot/internal/user"
)

// ValidateUser reports whether u holds any of roles with a non-expired grant as of now. reversed negates the
// predicate. If fail is true and the predicate is false, a *relayerr.UserRoleError is returned.
func ValidateUser(now time.Time, u *user.User, reversed, fail bool, roles ...user.Role) (bool, error) {
	ok := u.HasRole(now, roles...)
	if reversed {
		ok = !ok
	}
	if !ok && fail {
		return false, &relayerr.UserRoleError{Required: joinUserRoles(roles), Got: u.HighestRole(now).String()}
	}
	return ok, nil
}

// ValidateMember reports whether m's role satisfies the ordinal comparison role <= m.Role (spec.md §4.4: "analogous
// ordinal comparison"). reversed negates the predicate. If fail is true and the predicate is false, a
// *relayerr.MemberRoleError is returned.
func ValidateMember(m *member.Member, role member.Role, reversed, fail bool) (bool, error) {
	ok := m.Role >= role
	if reversed {
		ok = !ok
	}
	if !ok && fail {
		return false, &relayerr.MemberRoleError{Required: role.String(), Got: m.Role.String()}
	}
	return ok, nil
}

// CheckBan reports whether m is denied banType. ADMINs (spec.md §4.4: member.Role.IsAdmin()) bypass all bans.
// Otherwise the member's own ban-group is consulted first; if it does not deny banType and checkGroup is true, the
// group's default ban-group is consulted. Once one source denies, the other is not checked. If fail is true and the
// predicate is true (denied), a *relayerr.BanError is returned; the caller passes fail=false to use this as a plain
// predicate (spec.md §9 open question 3).
func CheckBan(now time.Time, m *member.Member, memberBanGroup, groupDefaultBanGroup *banish.Group, banType banish.Type, checkGroup, fail bool) (bool, error) {
	if m.Role.IsAdmin() {
		return false, nil
	}

	if memberBanGroup.Denies(now, banType) {
		return denyOrPredicate(banType, memberBanGroup, fail)
	}

	if checkGroup && groupDefaultBanGroup.Denies(now, banType) {
		return denyOrPredicate(banType, groupDefaultBanGroup, fail)
	}

	return false, nil
}

func denyOrPredicate(banType banish.Type, bg *banish.Group, fail bool) (bool, error) {
	if fail {
		return true, &relayerr.BanError{Type: banType.String(), Until: bg.Until}
	}
	return true, nil
}

func joinUserRoles(roles []user.Role) string {
	if len(roles) == 0 {
		return "none"
	}
	s := roles[0].String()
	for _, r := range roles[1:] {
		s += "," + r.String()
	}
	return s
}
