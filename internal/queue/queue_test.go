package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestQueuePreservesFIFOOrder(t *testing.T) {
	ctx := context.Background()
	rdb := newTestClient(t)
	q := New(rdb, "t1")
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	sender, m1, m2, m3 := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	require.NoError(t, q.Put(ctx, NewBroadcast(now, sender, m1, Content{Text: "a"})))
	require.NoError(t, q.Put(ctx, NewBroadcast(now, sender, m2, Content{Text: "b"})))
	require.NoError(t, q.Put(ctx, NewBroadcast(now, sender, m3, Content{Text: "c"})))

	first, ok, err := q.Get(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	second, ok, err := q.Get(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	third, ok, err := q.Get(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, "a", first.Content.Text)
	assert.Equal(t, "b", second.Content.Text)
	assert.Equal(t, "c", third.Content.Text)

	_, ok, err = q.Get(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestQueueSurvivesRestartWithFreshSignal(t *testing.T) {
	ctx := context.Background()
	rdb := newTestClient(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	q1 := New(rdb, "t1")
	op := NewDelete(now, uuid.New())
	require.NoError(t, q1.Put(ctx, op))
	op.Done <- Result{Requests: 3, Errors: 0}

	q2 := New(rdb, "t1")
	restored, ok, err := q2.Get(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, op.ID, restored.ID)
	assert.Equal(t, KindDelete, restored.Kind)

	select {
	case <-restored.Done:
		t.Fatal("restored op's Done must be a fresh, unfired channel")
	default:
	}
}

func TestFromViewRoundTripsEveryField(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	recipient := uuid.New()
	replay := []uuid.UUID{uuid.New(), uuid.New()}
	op := NewBulkPin(now, recipient, replay)

	restored := FromView(ToView(op))

	assert.Equal(t, op.ID, restored.ID)
	assert.Equal(t, op.Kind, restored.Kind)
	assert.Equal(t, op.Recipient, restored.Recipient)
	assert.Equal(t, op.Replay, restored.Replay)
	assert.NotNil(t, restored.Done)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "broadcast", KindBroadcast.String())
	assert.Equal(t, "bulk_pin", KindBulkPin.String())
	assert.Equal(t, "unknown", Kind(99).String())
}
