// Package mask implements the per-relay emoji mask allocator (spec.md §3, §4.3). One Allocator exists per relay; it
// is never shared across relays.
package mask

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zetxtech/anonycnbot/internal/relayerr"
)

// IdleThreshold is the minimum idle duration before an assigned mask becomes stealable (spec.md §4.3 policy 2).
const IdleThreshold = 3 * 24 * time.Hour

// Alphabet is the curated set of single grapheme-cluster emoji masks assigned to members. Order is irrelevant;
// allocation picks uniformly at random among unused entries.
var Alphabet = []string{
	"🦊", "🐼", "🐻", "🐨", "🐯", "🦁", "🐸", "🐵", "🐙", "🦄",
	"🐲", "🦋", "🐝", "🦉", "🦅", "🦈", "🐬", "🐳", "🦀", "🐢",
	"🦔", "🐿️", "🦘", "🦙", "🐧", "🦩", "🦚", "🦜", "🐞", "🐌",
}

// Holder tracks the current assignment of one mask. Exported so callers can persist an Allocator's state (e.g. into
// a valkey.Dict) without reaching into package internals.
type Holder struct {
	Member   uuid.UUID
	LastUsed time.Time
}

// Allocator assigns and recycles masks within one relay, guarded by a single mutex held only for the duration of
// each operation (spec.md §4.3).
type Allocator struct {
	mu      sync.Mutex
	now     func() time.Time
	users   map[uuid.UUID]string // member -> mask
	masks   map[string]Holder    // mask -> holder
	persist func(users map[uuid.UUID]string, masks map[string]Holder) error
}

// New creates an empty Allocator. persist, if non-nil, is invoked after every mutation to mirror state to the
// backing CacheDict (spec.md §4.3 "save() is called after every mutation").
func New(persist func(users map[uuid.UUID]string, masks map[string]Holder) error) *Allocator {
	return &Allocator{
		now:     time.Now,
		users:   make(map[uuid.UUID]string),
		masks:   make(map[string]Holder),
		persist: persist,
	}
}

// SetClock overrides the allocator's time source. Exposed for deterministic idle-threshold tests.
func (a *Allocator) SetClock(now func() time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.now = now
}

// Restore replaces the allocator's state wholesale, used when rehydrating from the backing CacheDict at startup.
func (a *Allocator) Restore(users map[uuid.UUID]string, masks map[string]Holder) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.users = users
	a.masks = masks
}

// MaskFor returns the current mask for m, or "" if none is assigned. Does not mutate state.
func (a *Allocator) MaskFor(m uuid.UUID) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	mk, ok := a.users[m]
	return mk, ok
}

// GetMask returns the member's mask, allocating one if necessary. If the member already has a mask and renew is
// false, its last-used time is refreshed and (created=false, mask) is returned. Otherwise a new mask is allocated per
// the policy in spec.md §4.3.
func (a *Allocator) GetMask(m uuid.UUID, renew bool) (created bool, mk string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if existing, ok := a.users[m]; ok && !renew {
		h := a.masks[existing]
		h.LastUsed = a.now()
		a.masks[existing] = h
		if err := a.persistLocked(); err != nil {
			return false, "", err
		}
		return false, existing, nil
	}

	mk, err = a.allocateLocked(m)
	if err != nil {
		return false, "", err
	}
	return true, mk, nil
}

// TakeMask explicitly claims desired for m (used by /setmask). It succeeds if desired is unassigned, or if its
// current holder has been idle for longer than IdleThreshold, in which case the prior holder is evicted.
func (a *Allocator) TakeMask(m uuid.UUID, desired string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if h, ok := a.masks[desired]; ok && h.Member != m {
		if a.now().Sub(h.LastUsed) <= IdleThreshold {
			return relayerr.NewOperation("take_mask", fmt.Sprintf("mask %s is currently in use", desired))
		}
		delete(a.users, h.Member)
	}

	if old, ok := a.users[m]; ok {
		delete(a.masks, old)
	}

	a.users[m] = desired
	a.masks[desired] = Holder{Member: m, LastUsed: a.now()}
	return a.persistLocked()
}

// allocateLocked implements the allocation policy of spec.md §4.3. Caller must hold a.mu.
func (a *Allocator) allocateLocked(m uuid.UUID) (string, error) {
	var unused []string
	for _, candidate := range Alphabet {
		if _, taken := a.masks[candidate]; !taken {
			unused = append(unused, candidate)
		}
	}

	var chosen string
	if len(unused) > 0 {
		chosen = unused[rand.Intn(len(unused))]
	} else {
		var stealFrom string
		var oldestUsed time.Time
		found := false
		for mk, h := range a.masks {
			if a.now().Sub(h.LastUsed) <= IdleThreshold {
				continue
			}
			if !found || h.LastUsed.Before(oldestUsed) {
				stealFrom = mk
				oldestUsed = h.LastUsed
				found = true
			}
		}
		if !found {
			return "", relayerr.ErrMaskNotAvailable
		}
		delete(a.users, a.masks[stealFrom].Member)
		chosen = stealFrom
	}

	if old, ok := a.users[m]; ok {
		delete(a.masks, old)
	}
	a.users[m] = chosen
	a.masks[chosen] = Holder{Member: m, LastUsed: a.now()}
	if err := a.persistLocked(); err != nil {
		return "", err
	}
	return chosen, nil
}

func (a *Allocator) persistLocked() error {
	if a.persist == nil {
		return nil
	}
	return a.persist(a.users, a.masks)
}
