package valkey

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Dict is a lazy-loaded, in-process map mirrored to a single Valkey key: Set and Delete persist the whole map
// immediately, and Save persists it on demand (spec.md §4.2 CacheDict). It backs the per-relay invite codes.
//
// T must be JSON-serializable. Dict itself does not implement save_hook/load_hook; callers needing to strip
// non-serializable fields (completion signals, SDK handles) should marshal a "durable view" type as T instead of the
// live value — see Queue for the pattern.
type Dict[T any] struct {
	mu     sync.Mutex
	rdb    *redis.Client
	key    string
	loaded bool
	data   map[string]T
}

// NewDict creates a Dict backed by the given Valkey client and key. The map is not populated until the first
// operation, which triggers a lazy Load.
func NewDict[T any](rdb *redis.Client, key string) *Dict[T] {
	return &Dict[T]{rdb: rdb, key: key, data: make(map[string]T)}
}

// Load fetches the backing value from Valkey if it has not yet been loaded this process. A missing key is not an
// error; the dict starts empty.
func (d *Dict[T]) Load(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loadLocked(ctx)
}

func (d *Dict[T]) loadLocked(ctx context.Context) error {
	if d.loaded {
		return nil
	}
	raw, err := d.rdb.Get(ctx, d.key).Bytes()
	if errors.Is(err, redis.Nil) {
		d.loaded = true
		return nil
	}
	if err != nil {
		return fmt.Errorf("load dict %s: %w", d.key, err)
	}
	var data map[string]T
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("unmarshal dict %s: %w", d.key, err)
	}
	d.data = data
	d.loaded = true
	return nil
}

// Get returns the value for key and whether it was present, lazily loading first.
func (d *Dict[T]) Get(ctx context.Context, key string) (T, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var zero T
	if err := d.loadLocked(ctx); err != nil {
		return zero, false, err
	}
	v, ok := d.data[key]
	return v, ok, nil
}

// All returns a copy of every entry, lazily loading first.
func (d *Dict[T]) All(ctx context.Context) (map[string]T, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.loadLocked(ctx); err != nil {
		return nil, err
	}
	out := make(map[string]T, len(d.data))
	for k, v := range d.data {
		out[k] = v
	}
	return out, nil
}

// Set writes key=value in memory and persists the whole map immediately.
func (d *Dict[T]) Set(ctx context.Context, key string, value T) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.loadLocked(ctx); err != nil {
		return err
	}
	d.data[key] = value
	return d.saveLocked(ctx)
}

// Delete removes key in memory and persists the whole map immediately.
func (d *Dict[T]) Delete(ctx context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.loadLocked(ctx); err != nil {
		return err
	}
	delete(d.data, key)
	return d.saveLocked(ctx)
}

// Save explicitly persists the current in-memory map to Valkey.
func (d *Dict[T]) Save(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.saveLocked(ctx)
}

func (d *Dict[T]) saveLocked(ctx context.Context) error {
	encoded, err := json.Marshal(d.data)
	if err != nil {
		return fmt.Errorf("marshal dict %s: %w", d.key, err)
	}
	if err := d.rdb.Set(ctx, d.key, encoded, 0).Err(); err != nil {
		return fmt.Errorf("save dict %s: %w", d.key, err)
	}
	return nil
}
