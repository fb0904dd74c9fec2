package father

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zetxtech/anonycnbot/internal/fleet"
	"github.com/zetxtech/anonycnbot/internal/group"
	"github.com/zetxtech/anonycnbot/internal/invite"
	"github.com/zetxtech/anonycnbot/internal/user"
)

func TestParseCommand(t *testing.T) {
	cases := []struct {
		text     string
		wantName string
		wantArgs string
		wantOK   bool
	}{
		{"/start", "start", "", true},
		{"/start _c_ABC123", "start", "_c_ABC123", true},
		{"/newgroup@my_father_bot tok title here", "newgroup", "tok title here", true},
		{"not a command", "", "", false},
		{"/", "", "", false},
	}
	for _, c := range cases {
		name, args, ok := parseCommand(c.text)
		assert.Equal(t, c.wantOK, ok, c.text)
		if c.wantOK {
			assert.Equal(t, c.wantName, name, c.text)
			assert.Equal(t, c.wantArgs, args, c.text)
		}
	}
}

func TestParseRole(t *testing.T) {
	r, ok := parseRole("ADMIN")
	require.True(t, ok)
	assert.Equal(t, user.RoleAdmin, r)

	_, ok = parseRole("bogus")
	assert.False(t, ok)
}

// fakeUsers implements user.Repository over an in-memory map keyed by platform id.
type fakeUsers struct {
	mu     sync.Mutex
	byPID  map[int64]*user.User
	grants map[uuid.UUID][]user.RoleGrant
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byPID: map[int64]*user.User{}, grants: map[uuid.UUID][]user.RoleGrant{}}
}

func (f *fakeUsers) Create(_ context.Context, params user.CreateParams) (*user.User, error) {
	u := &user.User{ID: uuid.New(), PlatformID: params.PlatformID}
	f.mu.Lock()
	f.byPID[params.PlatformID] = u
	f.mu.Unlock()
	return u, nil
}

func (f *fakeUsers) GetByID(_ context.Context, id uuid.UUID) (*user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byPID {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, user.ErrNotFound
}

func (f *fakeUsers) GetByPlatformID(_ context.Context, platformID int64) (*user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.byPID[platformID]; ok {
		return u, nil
	}
	return nil, user.ErrNotFound
}

func (f *fakeUsers) GetOrCreate(ctx context.Context, params user.CreateParams) (*user.User, bool, error) {
	if u, err := f.GetByPlatformID(ctx, params.PlatformID); err == nil {
		return u, false, nil
	}
	u, err := f.Create(ctx, params)
	return u, true, err
}

func (f *fakeUsers) Touch(context.Context, uuid.UUID) error { return nil }

func (f *fakeUsers) AddRole(_ context.Context, userID uuid.UUID, role user.Role, days int, code string) (*user.RoleGrant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g := user.RoleGrant{ID: uuid.New(), Role: role, Code: code}
	if days > 0 {
		exp := time.Now().Add(time.Duration(days) * 24 * time.Hour)
		g.ExpiresAt = &exp
	}
	f.grants[userID] = append(f.grants[userID], g)
	return &g, nil
}

func (f *fakeUsers) Roles(_ context.Context, userID uuid.UUID) ([]user.RoleGrant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]user.RoleGrant(nil), f.grants[userID]...), nil
}

func (f *fakeUsers) grantAdmin(userID uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.grants[userID] = append(f.grants[userID], user.RoleGrant{ID: uuid.New(), Role: user.RoleAdmin})
}

// fakeGroups implements group.Repository over an in-memory map.
type fakeGroups struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*group.Group
}

func newFakeGroups(rows ...*group.Group) *fakeGroups {
	f := &fakeGroups{rows: map[uuid.UUID]*group.Group{}}
	for _, g := range rows {
		f.rows[g.ID] = g
	}
	return f
}

func (f *fakeGroups) GetByID(_ context.Context, id uuid.UUID) (*group.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.rows[id]
	if !ok {
		return nil, group.ErrNotFound
	}
	return g, nil
}
func (f *fakeGroups) GetByToken(context.Context, string) (*group.Group, error) {
	return nil, group.ErrNotFound
}
func (f *fakeGroups) GetByHandle(context.Context, string) (*group.Group, error) {
	return nil, group.ErrNotFound
}
func (f *fakeGroups) ListActive(context.Context) ([]*group.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*group.Group
	for _, g := range f.rows {
		if !g.Disabled {
			out = append(out, g)
		}
	}
	return out, nil
}
func (f *fakeGroups) Update(_ context.Context, id uuid.UUID, params group.UpdateParams) (*group.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.rows[id]
	if !ok {
		return nil, group.ErrNotFound
	}
	if params.Disabled != nil {
		g.Disabled = *params.Disabled
	}
	return g, nil
}
func (f *fakeGroups) Touch(context.Context, uuid.UUID) error            { return nil }
func (f *fakeGroups) NMembers(context.Context, uuid.UUID) (int, error)  { return 0, nil }
func (f *fakeGroups) NMessages(context.Context, uuid.UUID) (int, error) { return 0, nil }

// fakeCodes implements invite.Repository with a single pre-seeded redeemable code.
type fakeCodes struct {
	mu     sync.Mutex
	code   string
	role   user.Role
	used   bool
	issued [][]user.Role
}

func (f *fakeCodes) CreateCode(_ context.Context, params invite.CreateCodeParams) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.issued = append(f.issued, params.Roles)
	out := make([]string, params.Num)
	for i := range out {
		out[i] = "CODE"
	}
	return out, nil
}

func (f *fakeCodes) UseCode(ctx context.Context, userID uuid.UUID, code string, grant invite.GrantFunc) ([]user.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if code != f.code || f.used {
		return nil, invite.ErrNotFound
	}
	if _, err := grant(ctx, userID, f.role, 0, code); err != nil {
		return nil, err
	}
	f.used = true
	return []user.Role{f.role}, nil
}

func (f *fakeCodes) GetByCode(context.Context, string) ([]invite.ValidationRequest, error) {
	return nil, invite.ErrNotFound
}

func newController(users *fakeUsers, groups *fakeGroups, codes *fakeCodes, sup *fleet.Supervisor) *Controller {
	return &Controller{Users: users, Groups: groups, Codes: codes, Fleet: sup}
}

func TestHandleUpdateIgnoresNonCommands(t *testing.T) {
	c := newController(newFakeUsers(), newFakeGroups(), &fakeCodes{}, nil)
	var got string
	err := c.HandleUpdate(context.Background(), Update{PlatformUserID: 1, Text: "hello"}, func(_ context.Context, _ int64, text string) { got = text })
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestHandleUpdateUnknownCommand(t *testing.T) {
	c := newController(newFakeUsers(), newFakeGroups(), &fakeCodes{}, nil)
	var got string
	err := c.HandleUpdate(context.Background(), Update{PlatformUserID: 1, Text: "/bogus"}, func(_ context.Context, _ int64, text string) { got = text })
	require.NoError(t, err)
	assert.Equal(t, "unknown command", got)
}

func TestRedeemCodeGrantsRole(t *testing.T) {
	users := newFakeUsers()
	codes := &fakeCodes{code: "ABC123", role: user.RoleGrouper}
	c := newController(users, newFakeGroups(), codes, nil)

	var got string
	err := c.HandleUpdate(context.Background(), Update{PlatformUserID: 42, Text: "/start _c_ABC123"},
		func(_ context.Context, _ int64, text string) { got = text })
	require.NoError(t, err)
	assert.Equal(t, "granted: grouper", got)

	u, err := users.GetByPlatformID(context.Background(), 42)
	require.NoError(t, err)
	grants, err := users.Roles(context.Background(), u.ID)
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.Equal(t, user.RoleGrouper, grants[0].Role)
}

func TestRedeemCodeRejectsUnknownCode(t *testing.T) {
	c := newController(newFakeUsers(), newFakeGroups(), &fakeCodes{code: "ABC123", role: user.RoleGrouper}, nil)

	var got string
	err := c.HandleUpdate(context.Background(), Update{PlatformUserID: 42, Text: "/start _c_WRONG"},
		func(_ context.Context, _ int64, text string) { got = text })
	require.NoError(t, err)
	assert.Equal(t, "that code is invalid or already used", got)
}

func TestCmdGroupsFiltersToOwnGroupsUnlessAdmin(t *testing.T) {
	users := newFakeUsers()
	owner := uuid.New()
	other := uuid.New()
	mine := &group.Group{ID: uuid.New(), Title: "mine", CreatorID: owner}
	theirs := &group.Group{ID: uuid.New(), Title: "theirs", CreatorID: other}
	groups := newFakeGroups(mine, theirs)
	c := newController(users, groups, &fakeCodes{}, nil)

	ownerUser, _, err := users.GetOrCreate(context.Background(), user.CreateParams{PlatformID: 1})
	require.NoError(t, err)
	ownerUser.ID = owner
	users.byPID[1] = ownerUser

	var got string
	err = c.HandleUpdate(context.Background(), Update{PlatformUserID: 1, Text: "/groups"},
		func(_ context.Context, _ int64, text string) { got = text })
	require.NoError(t, err)
	assert.Contains(t, got, "mine")
	assert.NotContains(t, got, "theirs")

	users.grantAdmin(owner)
	err = c.HandleUpdate(context.Background(), Update{PlatformUserID: 1, Text: "/groups"},
		func(_ context.Context, _ int64, text string) { got = text })
	require.NoError(t, err)
	assert.Contains(t, got, "mine")
	assert.Contains(t, got, "theirs")
}

func TestCmdNewCodeRequiresAdmin(t *testing.T) {
	users := newFakeUsers()
	codes := &fakeCodes{}
	c := newController(users, newFakeGroups(), codes, nil)

	var got string
	err := c.HandleUpdate(context.Background(), Update{PlatformUserID: 7, Text: "/newcode grouper"},
		func(_ context.Context, _ int64, text string) { got = text })
	require.NoError(t, err)
	assert.Equal(t, "newcode: admin only", got)
	assert.Empty(t, codes.issued)

	u, _, err := users.GetOrCreate(context.Background(), user.CreateParams{PlatformID: 7})
	require.NoError(t, err)
	users.grantAdmin(u.ID)

	err = c.HandleUpdate(context.Background(), Update{PlatformUserID: 7, Text: "/newcode grouper 30 2"},
		func(_ context.Context, _ int64, text string) { got = text })
	require.NoError(t, err)
	require.Len(t, codes.issued, 1)
	assert.Equal(t, []user.Role{user.RoleGrouper}, codes.issued[0])
}

func TestCmdDelGroupRejectsNonOwnerNonAdmin(t *testing.T) {
	users := newFakeUsers()
	owner := uuid.New()
	g := &group.Group{ID: uuid.New(), Token: "tok", Title: "g", CreatorID: owner}
	groups := newFakeGroups(g)
	c := newController(users, groups, &fakeCodes{}, nil)

	var got string
	err := c.HandleUpdate(context.Background(), Update{PlatformUserID: 9, Text: "/delgroup " + g.ID.String()},
		func(_ context.Context, _ int64, text string) { got = text })
	require.NoError(t, err)
	assert.Equal(t, "delgroup: you do not own this group", got)
	assert.False(t, g.Disabled)
}
