package mask

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zetxtech/anonycnbot/internal/relayerr"
)

func TestTakeMaskThenGetMaskRoundTrip(t *testing.T) {
	a := New(nil)
	m := uuid.New()

	require.NoError(t, a.TakeMask(m, "🦊"))

	created, mk, err := a.GetMask(m, false)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "🦊", mk)
}

func TestGetMaskAssignsUniqueMasks(t *testing.T) {
	a := New(nil)
	seen := map[string]bool{}

	for i := 0; i < len(Alphabet); i++ {
		_, mk, err := a.GetMask(uuid.New(), false)
		require.NoError(t, err)
		assert.False(t, seen[mk], "mask %s assigned twice while alphabet has unused entries", mk)
		seen[mk] = true
	}
}

func TestAllocatorStealsDeterministicallyWhenOneIdleMaskRemains(t *testing.T) {
	a := New(nil)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := start
	a.SetClock(func() time.Time { return clock })

	members := make([]uuid.UUID, len(Alphabet))
	for i := range Alphabet {
		members[i] = uuid.New()
		_, _, err := a.GetMask(members[i], false)
		require.NoError(t, err)
	}

	// Age every assignment past the idle threshold, then refresh every member but members[0], so that members[0]'s
	// mask is the only idle one left.
	clock = start.Add(IdleThreshold + time.Hour)
	for _, m := range members[1:] {
		_, _, err := a.GetMask(m, false) // refresh m's mask to "now"
		require.NoError(t, err)
	}
	idleMask, ok := a.MaskFor(members[0])
	require.True(t, ok)

	newcomer := uuid.New()
	created, stolen, err := a.GetMask(newcomer, false)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, idleMask, stolen, "the only idle mask must be the one stolen")

	_, ok = a.MaskFor(members[0])
	assert.False(t, ok, "the idle holder must lose its assignment")
}

func TestAllocatorExhaustedWithoutIdleMasks(t *testing.T) {
	a := New(nil)
	for range Alphabet {
		_, _, err := a.GetMask(uuid.New(), false)
		require.NoError(t, err)
	}

	_, _, err := a.GetMask(uuid.New(), false)
	assert.ErrorIs(t, err, relayerr.ErrMaskNotAvailable)
}

func TestTakeMaskRefusesRecentlyUsedMask(t *testing.T) {
	a := New(nil)
	holder := uuid.New()
	require.NoError(t, a.TakeMask(holder, "🐼"))

	challenger := uuid.New()
	err := a.TakeMask(challenger, "🐼")
	assert.Error(t, err)
}

func TestTakeMaskStealsAfterIdleThreshold(t *testing.T) {
	a := New(nil)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := start
	a.SetClock(func() time.Time { return clock })

	holder := uuid.New()
	require.NoError(t, a.TakeMask(holder, "🐼"))

	clock = start.Add(IdleThreshold + time.Minute)
	challenger := uuid.New()
	require.NoError(t, a.TakeMask(challenger, "🐼"))

	_, ok := a.MaskFor(holder)
	assert.False(t, ok, "evicted holder must lose its assignment")
}
