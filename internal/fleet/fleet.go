// Package fleet implements the process-wide relay supervisor (spec.md §4.9, C9): one Supervisor owns the lifecycle
// of every relay.Controller, keyed by its bot credential token. Grounded on usernameisnull-chat/server/hub.go's
// Hub: a registry keyed by name (there, topic name; here, token), a channel-fed monitor loop that serializes
// start/stop requests, and a live-count stat mirroring the one Hub keeps for its topics.
package fleet

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/zetxtech/anonycnbot/internal/group"
	"github.com/zetxtech/anonycnbot/internal/relay"
)

// RelayFactory builds a not-yet-started relay.Controller bound to token. The caller (Supervisor) calls Start on the
// result; the factory's job is only to assemble the Controller's dependencies (platform client, repositories, caches)
// for that one credential.
type RelayFactory func(ctx context.Context, token string, creatorID uuid.UUID) (*relay.Controller, error)

// entry is one running relay's bookkeeping: spec.md §4.9's `token → (task, relay, booted-signal)`.
type entry struct {
	token  string
	relay  *relay.Controller
	cancel context.CancelFunc
	booted chan struct{}
}

type startRequest struct {
	token     string
	creatorID uuid.UUID
	result    chan error
}

// Supervisor is the fleet-wide relay lifecycle manager (spec.md §4.9).
type Supervisor struct {
	Groups   group.Repository
	NewRelay RelayFactory
	Log      zerolog.Logger
	Now      func() time.Time

	mu      sync.Mutex
	entries map[string]*entry

	startQueue chan startRequest
	stop       chan chan struct{}

	startTime time.Time
}

// NewSupervisor creates a Supervisor ready to have Run called on it.
func NewSupervisor(groups group.Repository, newRelay RelayFactory, log zerolog.Logger) *Supervisor {
	return &Supervisor{
		Groups:     groups,
		NewRelay:   newRelay,
		Log:        log,
		entries:    make(map[string]*entry),
		startQueue: make(chan startRequest, 64),
		stop:       make(chan chan struct{}),
	}
}

func (s *Supervisor) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Run implements spec.md §4.9 "Startup": enumerate every non-disabled Group onto the start queue, then run the
// monitor task until ctx is cancelled. Run blocks until the monitor loop exits; cancel ctx or call Shutdown to stop
// it.
func (s *Supervisor) Run(ctx context.Context) error {
	s.startTime = s.now()

	groups, err := s.Groups.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("enumerate active groups: %w", err)
	}
	for _, g := range groups {
		if g.Disabled {
			continue
		}
		select {
		case s.startQueue <- startRequest{token: g.Token, creatorID: g.CreatorID, result: nil}:
		default:
			s.Log.Warn().Str("token", g.Token).Msg("start queue full at boot, dropping group")
		}
	}

	s.monitor(ctx)
	return nil
}

// monitor is spec.md §4.9's monitor task: it pops `(token, creator, signal)` off the start queue and spawns a relay
// per request, retaining the spawned task in entries. One monitor loop per Supervisor, but relay boot itself runs
// off a detached goroutine so a slow boot never blocks the next request's dequeue.
func (s *Supervisor) monitor(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.shutdownAll()
			return
		case done := <-s.stop:
			s.shutdownAll()
			close(done)
			return
		case req := <-s.startQueue:
			go func(req startRequest) {
				_, err := s.startGroupBot(ctx, req.token, req.creatorID)
				if req.result != nil {
					req.result <- err
				}
			}(req)
		}
	}
}

// StartGroupBot implements spec.md §4.9 `start_group_bot(token, creator)`: enqueues a start request and waits for
// the spawn to complete (or fail), returning the running Controller.
func (s *Supervisor) StartGroupBot(ctx context.Context, token string, creatorID uuid.UUID) (*relay.Controller, error) {
	if existing, ok := s.get(token); ok {
		return existing.relay, nil
	}

	result := make(chan error, 1)
	select {
	case s.startQueue <- startRequest{token: token, creatorID: creatorID, result: result}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case err := <-result:
		if err != nil {
			return nil, err
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	existing, ok := s.get(token)
	if !ok {
		return nil, fmt.Errorf("relay for token %q failed to register after boot", token)
	}
	return existing.relay, nil
}

// startGroupBot does the actual factory-build-and-Start work, recorded under entries on success.
func (s *Supervisor) startGroupBot(ctx context.Context, token string, creatorID uuid.UUID) (*relay.Controller, error) {
	if existing, ok := s.get(token); ok {
		return existing.relay, nil
	}

	r, err := s.NewRelay(ctx, token, creatorID)
	if err != nil {
		return nil, fmt.Errorf("build relay for token %q: %w", token, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := r.Start(runCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("start relay for token %q: %w", token, err)
	}

	s.register(token, r, runCtx, cancel)
	return r, nil
}

// BootstrapGroupBot registers a brand-new credential that has no Group row yet: it builds a relay for token and
// performs first-run Group creation via relay.Controller.BootstrapWithCreator instead of the plain Start used by
// startGroupBot, then registers the result the same way. Used by the father bot's relay-creation flow (spec.md §8
// scenario 6 "Invite flow"), the one path that turns a bare credential into a running group relay.
func (s *Supervisor) BootstrapGroupBot(ctx context.Context, token string, creatorID uuid.UUID, invitorID *uuid.UUID, title string) (*relay.Controller, error) {
	if existing, ok := s.get(token); ok {
		return existing.relay, nil
	}

	r, err := s.NewRelay(ctx, token, creatorID)
	if err != nil {
		return nil, fmt.Errorf("build relay for token %q: %w", token, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := r.BootstrapWithCreator(runCtx, creatorID, invitorID, title); err != nil {
		cancel()
		return nil, fmt.Errorf("bootstrap relay for token %q: %w", token, err)
	}

	s.register(token, r, runCtx, cancel)
	return r, nil
}

// register records a successfully started/bootstrapped relay and spawns its watch goroutine.
func (s *Supervisor) register(token string, r *relay.Controller, runCtx context.Context, cancel context.CancelFunc) {
	e := &entry{token: token, relay: r, cancel: cancel, booted: make(chan struct{})}
	close(e.booted)

	s.mu.Lock()
	s.entries[token] = e
	s.mu.Unlock()
	go s.watch(runCtx, e)
}

// watch observes a running relay's Failed channel and evicts it on a fatal fault (spec.md §4.9, §7
// "UserDeactivated for the relay itself" — Group.disabled=true, relay's failed signal fires, supervisor drops it).
// It exits without evicting when runCtx is cancelled first, since that means StopGroupBot (or a shutdown) already
// owns the eviction.
func (s *Supervisor) watch(runCtx context.Context, e *entry) {
	select {
	case err, ok := <-e.relay.Failed():
		if !ok {
			return
		}
		s.Log.Error().Str("token", e.token).Err(err).Msg("relay failed, evicting")
		s.evict(e.token)
	case <-runCtx.Done():
	}
}

// StopGroupBot implements spec.md §4.9 `stop_group_bot(token)`: cancels the relay's tasks and evicts it.
func (s *Supervisor) StopGroupBot(ctx context.Context, token string) error {
	e, ok := s.get(token)
	if !ok {
		return nil
	}
	err := e.relay.Stop(ctx)
	s.evict(token)
	return err
}

func (s *Supervisor) evict(token string) {
	s.mu.Lock()
	e, ok := s.entries[token]
	if ok {
		delete(s.entries, token)
	}
	s.mu.Unlock()
	if ok {
		e.cancel()
	}
}

func (s *Supervisor) get(token string) (*entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[token]
	return e, ok
}

// Shutdown cancels every running relay and stops the monitor loop, blocking until both have completed.
func (s *Supervisor) Shutdown() {
	done := make(chan struct{})
	s.stop <- done
	<-done
}

func (s *Supervisor) shutdownAll() {
	s.mu.Lock()
	tokens := make([]string, 0, len(s.entries))
	for t := range s.entries {
		tokens = append(tokens, t)
	}
	s.mu.Unlock()

	for _, t := range tokens {
		s.evict(t)
	}
}

// Stats is the Supervisor's process-wide report: the number of running relays and the Supervisor's start time. It
// carries no per-operation duration, request or error totals.
type Stats struct {
	Running   int
	StartTime time.Time
}

// Stats reports the Supervisor's current aggregate status.
func (s *Supervisor) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{Running: len(s.entries), StartTime: s.startTime}
}
