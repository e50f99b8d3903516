package actor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/roach88/interflow/internal/metrics"
	"github.com/roach88/interflow/internal/model"
)

// Source is the relational fallback an actor hydrates from. FindComponent
// must wrap store.ErrNotFound for absent components.
type Source interface {
	FindComponent(ctx context.Context, id uint64) (*model.ComponentState, error)
}

// Service is the actor surface the router consumes. Registry implements it
// in process and Client implements it over HTTP.
type Service interface {
	// Get returns the held state, or ErrComponentNotFound (load-or-404).
	Get(ctx context.Context, address string) (*model.ComponentState, error)
	// Hydrate backfills from the relational store and caches the result.
	Hydrate(ctx context.Context, address string, componentID uint64, messageID string) (*model.ComponentState, error)
	// Refresh replaces held state with the relational row, or drops it when
	// the row is gone.
	Refresh(ctx context.Context, address string, componentID uint64, messageID string) (*model.ComponentState, error)
	// RecordInvocation updates "has this ever been resolved" bookkeeping.
	RecordInvocation(ctx context.Context, address, userID string) error
}

// Load returns the actor's state, hydrating it from the relational store on
// a miss. Held drafts are re-read so a published component goes live on its
// next callback.
func Load(ctx context.Context, svc Service, address string, componentID uint64, messageID string) (*model.ComponentState, error) {
	st, err := svc.Get(ctx, address)
	switch {
	case err == nil && st.Draft:
		return svc.Refresh(ctx, address, componentID, messageID)
	case err == nil:
		return st, nil
	case errors.Is(err, ErrComponentNotFound):
		return svc.Hydrate(ctx, address, componentID, messageID)
	default:
		return nil, err
	}
}

// Defaults for NewRegistry.
const (
	DefaultShards      = 32
	DefaultIdleTimeout = 10 * time.Minute
	DefaultMailboxSize = 64
)

// Option configures a Registry.
type Option func(*Registry)

// WithShards sets the number of lock shards (minimum 1).
func WithShards(n int) Option {
	return func(r *Registry) {
		if n < 1 {
			n = 1
		}
		r.shardCount = n
	}
}

// WithIdleTimeout sets how long an actor may sit idle before evicting
// itself. Zero disables idle eviction.
func WithIdleTimeout(d time.Duration) Option {
	return func(r *Registry) { r.idleTimeout = d }
}

// WithMailboxSize sets the per-actor queue capacity. Callers block when it
// is full.
func WithMailboxSize(n int) Option {
	return func(r *Registry) { r.mailboxSize = n }
}

// WithClock replaces the time source used for invocation bookkeeping.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithMetrics records hydrations and resident actors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

type shard struct {
	mu     sync.Mutex
	actors map[string]*actor
}

// Registry hosts actors in a sharded map keyed by address, spawning them on
// first access.
//
// Thread-safety: safe for concurrent use. Operations on one address are
// serialized by that address's actor.
type Registry struct {
	shards      []*shard
	shardCount  int
	storage     Storage
	source      Source
	idleTimeout time.Duration
	mailboxSize int
	now         func() time.Time
	metrics     *metrics.Metrics

	wg     sync.WaitGroup
	closed atomic.Bool
}

// NewRegistry creates a registry persisting to storage and hydrating from
// source.
func NewRegistry(storage Storage, source Source, opts ...Option) *Registry {
	r := &Registry{
		shardCount:  DefaultShards,
		storage:     storage,
		source:      source,
		idleTimeout: DefaultIdleTimeout,
		mailboxSize: DefaultMailboxSize,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.shards = make([]*shard, r.shardCount)
	for i := range r.shards {
		r.shards[i] = &shard{actors: make(map[string]*actor)}
	}
	return r
}

func (r *Registry) shardFor(address string) *shard {
	return r.shards[xxhash.Sum64String(address)%uint64(len(r.shards))]
}

// lookup returns the resident actor for address, spawning one if needed.
func (r *Registry) lookup(address string) (*actor, error) {
	sh := r.shardFor(address)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if r.closed.Load() {
		return nil, ErrClosed
	}
	a, ok := sh.actors[address]
	if !ok {
		a = newActor(address, r)
		sh.actors[address] = a
		r.wg.Add(1)
		go a.run()
	}
	return a, nil
}

// do runs fn on the address's actor, retrying when it raced an eviction.
func (r *Registry) do(ctx context.Context, address string, fn func(a *actor) (*model.ComponentState, error)) (*model.ComponentState, error) {
	if !ValidAddress(address) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	for {
		a, err := r.lookup(address)
		if err != nil {
			return nil, err
		}
		st, err := a.call(ctx, &request{fn: fn})
		if errors.Is(err, errRetired) {
			continue
		}
		return st, err
	}
}

// Get returns the held state, restoring from storage if the actor is cold.
// Returns ErrComponentNotFound if nothing is held or persisted.
func (r *Registry) Get(ctx context.Context, address string) (*model.ComponentState, error) {
	return r.do(ctx, address, func(a *actor) (*model.ComponentState, error) {
		return a.get()
	})
}

// Hydrate fetches the component from the relational store, persists it and
// returns it. An actor that is already Ready returns its state without
// fetching again.
func (r *Registry) Hydrate(ctx context.Context, address string, componentID uint64, messageID string) (*model.ComponentState, error) {
	return r.do(ctx, address, func(a *actor) (*model.ComponentState, error) {
		return a.hydrate(ctx, componentID, messageID)
	})
}

// Load is the package-level Load in one mailbox turn.
func (r *Registry) Load(ctx context.Context, address string, componentID uint64, messageID string) (*model.ComponentState, error) {
	return r.do(ctx, address, func(a *actor) (*model.ComponentState, error) {
		st, err := a.get()
		switch {
		case errors.Is(err, ErrComponentNotFound):
			return a.hydrate(ctx, componentID, messageID)
		case err == nil && st.Draft:
			return a.refresh(ctx, componentID, messageID)
		default:
			return st, err
		}
	})
}

// Refresh re-reads the component from the relational store and replaces the
// held state, keeping invocation bookkeeping. Works on cold actors too. When
// the row is gone the snapshot is deleted and ErrComponentNotFound returned.
func (r *Registry) Refresh(ctx context.Context, address string, componentID uint64, messageID string) (*model.ComponentState, error) {
	return r.do(ctx, address, func(a *actor) (*model.ComponentState, error) {
		return a.refresh(ctx, componentID, messageID)
	})
}

// Update applies fn to the held state. fn runs on the actor goroutine and
// receives a private copy; the copy is committed only if fn returns nil and
// the snapshot persists.
func (r *Registry) Update(ctx context.Context, address string, fn func(*model.ComponentState) error) (*model.ComponentState, error) {
	return r.do(ctx, address, func(a *actor) (*model.ComponentState, error) {
		return a.update(fn)
	})
}

// RecordInvocation counts one resolved callback by userID.
func (r *Registry) RecordInvocation(ctx context.Context, address, userID string) error {
	_, err := r.Update(ctx, address, func(st *model.ComponentState) error {
		st.RecordInvocation(userID, r.now())
		return nil
	})
	return err
}

// Phase reports the phase of a resident actor. The second result is false
// when no actor is resident for address.
func (r *Registry) Phase(address string) (Phase, bool) {
	sh := r.shardFor(address)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	a, ok := sh.actors[address]
	if !ok {
		return PhaseUninitialized, false
	}
	return Phase(a.phase.Load()), true
}

// Len reports how many actors are resident.
func (r *Registry) Len() int {
	n := 0
	for _, sh := range r.shards {
		sh.mu.Lock()
		n += len(sh.actors)
		sh.mu.Unlock()
	}
	return n
}

// Evict stops the resident actor for address after its queued work ahead of
// the eviction completes. Persisted state is kept; the next access restores
// it.
func (r *Registry) Evict(ctx context.Context, address string) error {
	sh := r.shardFor(address)
	sh.mu.Lock()
	a, ok := sh.actors[address]
	sh.mu.Unlock()
	if !ok {
		return nil
	}

	_, err := a.call(ctx, &request{evict: true})
	if errors.Is(err, errRetired) {
		return nil
	}
	return err
}

// Close evicts every actor and waits for their goroutines. Storage is not
// closed.
func (r *Registry) Close(ctx context.Context) error {
	r.closed.Store(true)

	var resident []*actor
	for _, sh := range r.shards {
		sh.mu.Lock()
		for _, a := range sh.actors {
			resident = append(resident, a)
		}
		sh.mu.Unlock()
	}

	var errs []error
	for _, a := range resident {
		if _, err := a.call(ctx, &request{evict: true}); err != nil && !errors.Is(err, errRetired) {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	r.wg.Wait()
	return nil
}
