package actor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/roach88/interflow/internal/model"
	"github.com/roach88/interflow/internal/store"
)

// Phase is an actor's lifecycle position.
type Phase int32

const (
	PhaseUninitialized Phase = iota
	PhaseHydrating
	PhaseReady
)

func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhaseHydrating:
		return "hydrating"
	case PhaseReady:
		return "ready"
	default:
		return fmt.Sprintf("phase(%d)", int32(p))
	}
}

var (
	// ErrComponentNotFound means neither the actor nor the relational store
	// holds the component.
	ErrComponentNotFound = errors.New("component not found")

	// ErrAddressConflict means a hydrate named a different component than
	// the one the actor already holds.
	ErrAddressConflict = errors.New("actor holds a different component")

	// ErrInvalidAddress rejects addresses Address could not have produced.
	ErrInvalidAddress = errors.New("invalid actor address")

	// ErrClosed is returned after Registry.Close.
	ErrClosed = errors.New("actor registry closed")

	errRetired = errors.New("actor retired")
)

type response struct {
	state *model.ComponentState
	err   error
}

type request struct {
	ctx   context.Context
	fn    func(a *actor) (*model.ComponentState, error)
	evict bool
	reply chan response
}

// actor owns the state for one address. Fields below mailbox are touched
// only by the run goroutine.
type actor struct {
	address string
	reg     *Registry
	mailbox chan *request
	done    chan struct{}
	phase   atomic.Int32

	state *model.ComponentState
}

func newActor(address string, reg *Registry) *actor {
	return &actor{
		address: address,
		reg:     reg,
		mailbox: make(chan *request, reg.mailboxSize),
		done:    make(chan struct{}),
	}
}

// run drains the mailbox until the actor retires.
// CRITICAL: the only goroutine that reads or writes a.state.
func (a *actor) run() {
	defer a.reg.wg.Done()
	a.reg.metrics.ActorStarted()
	defer a.reg.metrics.ActorStopped()

	var idle <-chan time.Time
	var timer *time.Timer
	if a.reg.idleTimeout > 0 {
		timer = time.NewTimer(a.reg.idleTimeout)
		defer timer.Stop()
		idle = timer.C
	}

	for {
		select {
		case req := <-a.mailbox:
			if req.evict {
				a.retire(true)
				req.reply <- response{}
				return
			}
			if err := req.ctx.Err(); err != nil {
				req.reply <- response{err: err}
			} else {
				st, err := req.fn(a)
				req.reply <- response{state: st, err: err}
			}
			if timer != nil {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(a.reg.idleTimeout)
			}

		case <-idle:
			if a.retire(false) {
				slog.Debug("actor evicted after idle timeout", "address", a.address)
				return
			}
			timer.Reset(a.reg.idleTimeout)
		}
	}
}

// retire removes the actor from its shard and closes done. Without force it
// refuses while requests are queued.
func (a *actor) retire(force bool) bool {
	sh := a.reg.shardFor(a.address)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if !force && len(a.mailbox) > 0 {
		return false
	}
	if sh.actors[a.address] == a {
		delete(sh.actors, a.address)
	}
	close(a.done)
	return true
}

// call enqueues fn and waits for its result. errRetired means fn was not
// executed and the caller should retry on a fresh actor.
func (a *actor) call(ctx context.Context, req *request) (*model.ComponentState, error) {
	req.ctx = ctx
	req.reply = make(chan response, 1)

	select {
	case a.mailbox <- req:
	case <-a.done:
		return nil, errRetired
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-req.reply:
		return res.state, res.err
	case <-a.done:
		// A reply sent before retirement wins over the closed done channel.
		select {
		case res := <-req.reply:
			return res.state, res.err
		default:
			return nil, errRetired
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// restore loads the persisted snapshot when uninitialized. Reports whether
// the actor is Ready afterwards.
func (a *actor) restore() (bool, error) {
	if Phase(a.phase.Load()) == PhaseReady {
		return true, nil
	}

	b, err := a.reg.storage.Load(a.address)
	if errors.Is(err, ErrNoSnapshot) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	var st model.ComponentState
	if err := json.Unmarshal(b, &st); err != nil {
		return false, fmt.Errorf("decode snapshot %s: %w", a.address, err)
	}
	a.state = &st
	a.phase.Store(int32(PhaseReady))
	return true, nil
}

// persist writes st verbatim. Canonical encoding is only for revisions: it
// normalizes strings, and option values must match callbacks byte for byte.
func (a *actor) persist(st *model.ComponentState) error {
	b, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", a.address, err)
	}
	return a.reg.storage.Save(a.address, b)
}

func (a *actor) get() (*model.ComponentState, error) {
	ready, err := a.restore()
	if err != nil {
		return nil, err
	}
	if !ready {
		return nil, ErrComponentNotFound
	}
	return a.state.Clone(), nil
}

func (a *actor) hydrate(ctx context.Context, componentID uint64, messageID string) (*model.ComponentState, error) {
	ready, err := a.restore()
	if err != nil {
		return nil, err
	}
	if ready {
		if a.state.ID != componentID {
			return nil, fmt.Errorf("%w: %d, asked for %d", ErrAddressConflict, a.state.ID, componentID)
		}
		return a.state.Clone(), nil
	}

	a.phase.Store(int32(PhaseHydrating))
	st, err := a.fetch(ctx, componentID, messageID)
	if err != nil {
		a.phase.Store(int32(PhaseUninitialized))
		return nil, err
	}
	if err := a.persist(st); err != nil {
		a.phase.Store(int32(PhaseUninitialized))
		a.reg.metrics.Hydration("error")
		return nil, err
	}

	a.state = st
	a.phase.Store(int32(PhaseReady))
	a.reg.metrics.Hydration("ok")
	slog.Debug("actor hydrated", "address", a.address, "component_id", componentID)
	return a.state.Clone(), nil
}

// refresh replaces the held state with the current relational row. Draft
// and attachment changes made after hydration only reach the actor this
// way. A row that no longer exists drops the snapshot.
func (a *actor) refresh(ctx context.Context, componentID uint64, messageID string) (*model.ComponentState, error) {
	ready, err := a.restore()
	if err != nil {
		return nil, err
	}
	if ready && a.state.ID != componentID {
		return nil, fmt.Errorf("%w: %d, asked for %d", ErrAddressConflict, a.state.ID, componentID)
	}

	st, err := a.fetch(ctx, componentID, messageID)
	if errors.Is(err, ErrComponentNotFound) && ready {
		if derr := a.reg.storage.Delete(a.address); derr != nil {
			return nil, errors.Join(err, derr)
		}
		a.state = nil
		a.phase.Store(int32(PhaseUninitialized))
		slog.Debug("actor dropped", "address", a.address, "component_id", componentID)
	}
	if err != nil {
		return nil, err
	}

	if ready {
		st.KeepInvocations(a.state)
	}
	if err := a.persist(st); err != nil {
		a.reg.metrics.Hydration("error")
		return nil, err
	}
	a.state = st
	a.phase.Store(int32(PhaseReady))
	a.reg.metrics.Hydration("refreshed")
	return a.state.Clone(), nil
}

func (a *actor) fetch(ctx context.Context, componentID uint64, messageID string) (*model.ComponentState, error) {
	st, err := a.reg.source.FindComponent(ctx, componentID)
	if errors.Is(err, store.ErrNotFound) {
		a.reg.metrics.Hydration("not_found")
		return nil, fmt.Errorf("%w: %d", ErrComponentNotFound, componentID)
	}
	if err != nil {
		a.reg.metrics.Hydration("error")
		return nil, fmt.Errorf("fetch component %d: %w", componentID, err)
	}

	// A p_ identifier copied onto another message must not resolve.
	if st.MessageID != "" && messageID != "" && st.MessageID != messageID {
		a.reg.metrics.Hydration("not_found")
		return nil, fmt.Errorf("%w: %d is attached to message %s, not %s",
			ErrComponentNotFound, componentID, st.MessageID, messageID)
	}
	return st, nil
}

// update applies fn to a copy and commits it only if fn succeeds and the
// snapshot persists.
func (a *actor) update(fn func(*model.ComponentState) error) (*model.ComponentState, error) {
	ready, err := a.restore()
	if err != nil {
		return nil, err
	}
	if !ready {
		return nil, ErrComponentNotFound
	}

	next := a.state.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	if err := a.persist(next); err != nil {
		return nil, err
	}
	a.state = next
	return a.state.Clone(), nil
}
