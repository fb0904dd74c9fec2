package permission

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zetxtech/anonycnbot/internal/banish"
	"github.com/zetxtech/anonycnbot/internal/member"
	"github.com/zetxtech/anonycnbot/internal/relayerr"
	"github.com/zetxtech/anonycnbot/internal/user"
)

var now = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestValidateUserFail(t *testing.T) {
	u := &user.User{Grants: []user.RoleGrant{{Role: user.RoleGrouper}}}

	ok, err := ValidateUser(now, u, false, false, user.RoleAdmin)
	assert.False(t, ok)
	assert.NoError(t, err)

	_, err = ValidateUser(now, u, false, true, user.RoleAdmin)
	var roleErr *relayerr.UserRoleError
	assert.ErrorAs(t, err, &roleErr)
}

func TestValidateUserReversed(t *testing.T) {
	u := &user.User{Grants: []user.RoleGrant{{Role: user.RoleAdmin}}}
	ok, err := ValidateUser(now, u, true, false, user.RoleAdmin)
	require.NoError(t, err)
	assert.False(t, ok, "reversed predicate should invert a held role")
}

func TestValidateMemberOrdinal(t *testing.T) {
	m := &member.Member{Role: member.RoleMember}

	ok, err := ValidateMember(m, member.RoleGuest, false, false)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = ValidateMember(m, member.RoleAdmin, false, true)
	assert.False(t, ok)
	var roleErr *relayerr.MemberRoleError
	assert.ErrorAs(t, err, &roleErr)
}

func TestCheckBanAdminBypassesAll(t *testing.T) {
	admin := &member.Member{Role: member.RoleAdmin}
	groupBG := &banish.Group{Types: map[banish.Type]bool{banish.TypeMessage: true}}

	denied, err := CheckBan(now, admin, nil, groupBG, banish.TypeMessage, true, false)
	require.NoError(t, err)
	assert.False(t, denied)
}

func TestCheckBanGroupDefaultAppliesWhenMemberOverrideAllows(t *testing.T) {
	m := &member.Member{Role: member.RoleGuest}
	memberBG := &banish.Group{Types: map[banish.Type]bool{}}
	groupBG := &banish.Group{Types: map[banish.Type]bool{banish.TypeMessage: true}}

	denied, err := CheckBan(now, m, memberBG, groupBG, banish.TypeMessage, true, false)
	require.NoError(t, err)
	assert.True(t, denied, "group default should still apply when member override does not deny and checkGroup is true")
}

func TestCheckBanFailRaisesBanError(t *testing.T) {
	m := &member.Member{Role: member.RoleGuest}
	memberBG := &banish.Group{Types: map[banish.Type]bool{banish.TypeMessage: true}}

	_, err := CheckBan(now, m, memberBG, nil, banish.TypeMessage, true, true)
	var banErr *relayerr.BanError
	assert.ErrorAs(t, err, &banErr)
}

func TestCheckBanExpiredGroupDoesNotDeny(t *testing.T) {
	past := now.Add(-time.Hour)
	m := &member.Member{Role: member.RoleGuest}
	memberBG := &banish.Group{Until: &past, Types: map[banish.Type]bool{banish.TypeMessage: true}}

	denied, err := CheckBan(now, m, memberBG, nil, banish.TypeMessage, false, false)
	require.NoError(t, err)
	assert.False(t, denied)
}
