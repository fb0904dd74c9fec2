package relay

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecorateModeInfAllowsConcurrency(t *testing.T) {
	locks := NewUserLockTable()
	started := make(chan struct{}, 2)
	release := make(chan struct{})

	h := Decorate(locks, ModeInf, nil, func(ctx context.Context, userID int64) error {
		started <- struct{}{}
		<-release
		return nil
	})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); _ = h(context.Background(), 1) }()
	go func() { defer wg.Done(); _ = h(context.Background(), 1) }()

	for i := 0; i < 2; i++ {
		select {
		case <-started:
		case <-time.After(time.Second):
			t.Fatal("expected both inf-mode invocations to start concurrently")
		}
	}
	close(release)
	wg.Wait()
}

func TestDecorateModeQueueSerializesPerUser(t *testing.T) {
	locks := NewUserLockTable()
	var mu sync.Mutex
	var order []int

	h := Decorate(locks, ModeQueue, nil, func(ctx context.Context, userID int64) error {
		mu.Lock()
		order = append(order, 1)
		mu.Unlock()
		time.Sleep(20 * time.Millisecond)
		mu.Lock()
		order = append(order, 2)
		mu.Unlock()
		return nil
	})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); _ = h(context.Background(), 9) }()
	go func() { defer wg.Done(); _ = h(context.Background(), 9) }()
	wg.Wait()

	require.Len(t, order, 4)
	assert.Equal(t, []int{1, 2, 1, 2}, order, "a second queue-mode call for the same user must wait for the first to finish")
}

func TestDecorateModeSingletonDropsWhileBusy(t *testing.T) {
	locks := NewUserLockTable()
	release := make(chan struct{})
	entered := make(chan struct{})

	h := Decorate(locks, ModeSingleton, nil, func(ctx context.Context, userID int64) error {
		close(entered)
		<-release
		return nil
	})

	go func() { _ = h(context.Background(), 5) }()
	<-entered

	err := h(context.Background(), 5)
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	close(release)
}

func TestDecorateCheckShortCircuits(t *testing.T) {
	locks := NewUserLockTable()
	called := false

	h := Decorate(locks, ModeInf, func(ctx context.Context, userID int64) error {
		return assert.AnError
	}, func(ctx context.Context, userID int64) error {
		called = true
		return nil
	})

	err := h(context.Background(), 1)
	assert.ErrorIs(t, err, assert.AnError)
	assert.False(t, called, "the wrapped handler must not run when check fails")
}
