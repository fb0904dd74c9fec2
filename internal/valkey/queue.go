package valkey

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Queue is a durable FIFO mirrored to a single Valkey key after every mutation, restored on first use (spec.md §4.2
// CacheQueue). T is the live element type, which may carry non-serializable members (completion signals, SDK
// handles); V is its "durable view" — the JSON-serializable projection written to Valkey. toView/fromView are the
// save_hook/load_hook pair spec.md §4.2 and §9 require: fromView must allocate fresh non-serializable members rather
// than leave them zero, since callers may still be waiting on them after a restart.
type Queue[T any, V any] struct {
	mu       sync.Mutex
	rdb      *redis.Client
	key      string
	loaded   bool
	items    []T
	toView   func(T) V
	fromView func(V) T
}

// NewQueue creates a Queue backed by the given Valkey client and key.
func NewQueue[T any, V any](rdb *redis.Client, key string, toView func(T) V, fromView func(V) T) *Queue[T, V] {
	return &Queue[T, V]{rdb: rdb, key: key, toView: toView, fromView: fromView}
}

// Load restores the queue from its backing key if it has not yet been loaded this process. A missing key yields an
// empty queue, not an error.
func (q *Queue[T, V]) Load(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.loadLocked(ctx)
}

func (q *Queue[T, V]) loadLocked(ctx context.Context) error {
	if q.loaded {
		return nil
	}
	raw, err := q.rdb.Get(ctx, q.key).Bytes()
	if errors.Is(err, redis.Nil) {
		q.loaded = true
		return nil
	}
	if err != nil {
		return fmt.Errorf("load queue %s: %w", q.key, err)
	}
	var views []V
	if err := json.Unmarshal(raw, &views); err != nil {
		return fmt.Errorf("unmarshal queue %s: %w", q.key, err)
	}
	items := make([]T, len(views))
	for i, v := range views {
		items[i] = q.fromView(v)
	}
	q.items = items
	q.loaded = true
	return nil
}

// Put appends item to the tail of the queue and mirrors the new state to Valkey.
func (q *Queue[T, V]) Put(ctx context.Context, item T) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.loadLocked(ctx); err != nil {
		return err
	}
	q.items = append(q.items, item)
	return q.persistLocked(ctx)
}

// Get pops and returns the item at the head of the queue. The bool return is false when the queue is empty.
func (q *Queue[T, V]) Get(ctx context.Context) (T, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var zero T
	if err := q.loadLocked(ctx); err != nil {
		return zero, false, err
	}
	if len(q.items) == 0 {
		return zero, false, nil
	}
	item := q.items[0]
	q.items = q.items[1:]
	if err := q.persistLocked(ctx); err != nil {
		return zero, false, err
	}
	return item, true, nil
}

// Len returns the number of queued items, lazily loading first.
func (q *Queue[T, V]) Len(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.loadLocked(ctx); err != nil {
		return 0, err
	}
	return len(q.items), nil
}

func (q *Queue[T, V]) persistLocked(ctx context.Context) error {
	views := make([]V, len(q.items))
	for i, item := range q.items {
		views[i] = q.toView(item)
	}
	encoded, err := json.Marshal(views)
	if err != nil {
		return fmt.Errorf("marshal queue %s: %w", q.key, err)
	}
	if err := q.rdb.Set(ctx, q.key, encoded, 0).Err(); err != nil {
		return fmt.Errorf("persist queue %s: %w", q.key, err)
	}
	return nil
}
