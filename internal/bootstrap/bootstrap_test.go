package bootstrap

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zetxtech/anonycnbot/internal/user"
)

// fakeUserRoles implements user.Repository's AddRole/Roles for GrantCreatorRoles tests; the rest of the interface is
// unused by this package and returns zero values.
type fakeUserRoles struct {
	grants []grantCall
}

type grantCall struct {
	userID uuid.UUID
	role   user.Role
}

func (f *fakeUserRoles) Create(context.Context, user.CreateParams) (*user.User, error) { return nil, nil }
func (f *fakeUserRoles) GetByID(context.Context, uuid.UUID) (*user.User, error)         { return nil, nil }
func (f *fakeUserRoles) GetByPlatformID(context.Context, int64) (*user.User, error)     { return nil, nil }
func (f *fakeUserRoles) GetOrCreate(context.Context, user.CreateParams) (*user.User, bool, error) {
	return nil, false, nil
}
func (f *fakeUserRoles) Touch(context.Context, uuid.UUID) error { return nil }
func (f *fakeUserRoles) AddRole(_ context.Context, userID uuid.UUID, role user.Role, _ int, _ string) (*user.RoleGrant, error) {
	f.grants = append(f.grants, grantCall{userID, role})
	return &user.RoleGrant{Role: role}, nil
}
func (f *fakeUserRoles) Roles(context.Context, uuid.UUID) ([]user.RoleGrant, error) { return nil, nil }

var _ user.Repository = (*fakeUserRoles)(nil)

func TestGrantCreatorRolesWithoutInviter(t *testing.T) {
	ctx := context.Background()
	creator := uuid.New()
	users := &fakeUserRoles{}

	require.NoError(t, GrantCreatorRoles(ctx, users, creator, nil))

	assert.Equal(t, []grantCall{{creator, user.RoleGrouper}}, users.grants)
}

func TestGrantCreatorRolesWithInviterAlsoAwardsBoth(t *testing.T) {
	ctx := context.Background()
	creator := uuid.New()
	inviter := uuid.New()
	users := &fakeUserRoles{}

	require.NoError(t, GrantCreatorRoles(ctx, users, creator, &inviter))

	assert.Equal(t, []grantCall{
		{creator, user.RoleGrouper},
		{creator, user.RoleAwarded},
		{inviter, user.RoleAwarded},
	}, users.grants)
}
