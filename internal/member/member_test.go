package member

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoleOrdinalOrder(t *testing.T) {
	order := []Role{
		RoleNone, RoleBanned, RoleLeft, RoleGuest, RoleMember,
		RoleAdmin, RoleAdminMsg, RoleAdminBan, RoleAdminAdmin, RoleCreator,
	}
	for i := 1; i < len(order); i++ {
		assert.Less(t, int(order[i-1]), int(order[i]), "%s should be ordinally below %s", order[i-1], order[i])
	}
}

func TestRoleIsAdmin(t *testing.T) {
	assert.False(t, RoleGuest.IsAdmin())
	assert.False(t, RoleMember.IsAdmin())
	assert.True(t, RoleAdmin.IsAdmin())
	assert.True(t, RoleAdminMsg.IsAdmin())
	assert.True(t, RoleAdminBan.IsAdmin())
	assert.True(t, RoleAdminAdmin.IsAdmin())
	assert.True(t, RoleCreator.IsAdmin())
}
