// Package router dispatches component and modal callbacks.
//
// The identifier tier decides where state comes from: t_ identifiers read
// the ephemeral store, p_ identifiers load a component actor, and a_
// identifiers carry everything in the identifier itself. Every failure on
// the way to a response becomes a deterministic ephemeral reply; nothing
// escapes Route.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/interflow/internal/actor"
	"github.com/roach88/interflow/internal/ephemeral"
	"github.com/roach88/interflow/internal/flow"
	"github.com/roach88/interflow/internal/ids"
	"github.com/roach88/interflow/internal/metrics"
	"github.com/roach88/interflow/internal/model"
)

// Linker builds editor links for draft and flowless components.
type Linker interface {
	Link(componentID uint64, guildID string) (string, error)
}

// Option configures a Router.
type Option func(*Router)

// WithLinker adds editor links to draft and no-flow replies.
func WithLinker(l Linker) Option {
	return func(r *Router) { r.linker = l }
}

// WithMetrics counts callbacks by tier and outcome.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Router) { r.metrics = m }
}

// Router dispatches callbacks. It holds no per-request state.
type Router struct {
	table     *Table
	ephemeral ephemeral.Store
	actors    actor.Service
	executor  *flow.Executor
	linker    Linker
	metrics   *metrics.Metrics
}

// New creates a Router.
func New(table *Table, eph ephemeral.Store, actors actor.Service, executor *flow.Executor, opts ...Option) *Router {
	r := &Router{
		table:     table,
		ephemeral: eph,
		actors:    actors,
		executor:  executor,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// callback is the routable part of an interaction.
type callback struct {
	customID      string
	componentType discordgo.ComponentType
	values        []string
	modal         bool
}

func callbackOf(i *discordgo.Interaction) (callback, bool) {
	switch i.Type {
	case discordgo.InteractionMessageComponent:
		data, ok := i.Data.(discordgo.MessageComponentInteractionData)
		if !ok {
			return callback{}, false
		}
		return callback{customID: data.CustomID, componentType: data.ComponentType, values: data.Values}, true
	case discordgo.InteractionModalSubmit:
		data, ok := i.Data.(discordgo.ModalSubmitInteractionData)
		if !ok {
			return callback{}, false
		}
		return callback{customID: data.CustomID, modal: true}, true
	default:
		return callback{}, false
	}
}

// Route dispatches i and always returns a response. Failures are logged
// and turned into ephemeral replies.
func (r *Router) Route(ctx context.Context, i *discordgo.Interaction) Result {
	res, tier, err := r.dispatch(ctx, i)
	if err == nil {
		r.metrics.Callback(tier, "ok")
		return res
	}

	re := asRouteError(err)
	r.metrics.Callback(tier, string(re.Code))
	log := slog.With("interaction_id", i.ID, "code", re.Code)
	if re.Code == CodeInternal {
		log.Error("interaction failed", "error", re.Err)
	} else {
		log.Info("interaction refused", "error", re)
	}
	return Reply(re.Message)
}

// Dispatch is Route without the error-to-reply conversion.
func (r *Router) Dispatch(ctx context.Context, i *discordgo.Interaction) (Result, error) {
	res, _, err := r.dispatch(ctx, i)
	return res, err
}

func (r *Router) dispatch(ctx context.Context, i *discordgo.Interaction) (res Result, tier string, err error) {
	tier = "unknown"
	defer func() {
		if p := recover(); p != nil {
			res, err = Result{}, internal(fmt.Errorf("panic: %v", p))
		}
	}()

	cb, ok := callbackOf(i)
	if !ok {
		return Result{}, tier, Fail(CodeUnsupported, msgUnsupported, fmt.Errorf("interaction type %d", i.Type))
	}

	id, err := ids.Decode(cb.customID)
	if err != nil {
		return Result{}, tier, Fail(CodeMalformedIdentifier, msgMalformed, err)
	}
	tier = string(id.Tier)

	switch id.Tier {
	case ids.TierEphemeral:
		res, err = r.routeEphemeral(ctx, i, cb, id)
	case ids.TierActorBacked:
		res, err = r.routeActor(ctx, i, cb, id)
	case ids.TierSelfContained:
		res, err = r.routeSelfContained(ctx, i, cb, id)
	default:
		err = Fail(CodeMalformedIdentifier, msgMalformed, fmt.Errorf("tier %q", id.Tier))
	}
	return res, tier, err
}

func (r *Router) invoke(ctx context.Context, h Handler, req *Request) (Result, error) {
	res, err := h(ctx, req)
	if err != nil {
		return Result{}, asRouteError(err)
	}
	if res.Response == nil {
		return Result{}, internal(errors.New("handler returned no response"))
	}
	return res, nil
}

func (r *Router) routeEphemeral(ctx context.Context, i *discordgo.Interaction, cb callback, id ids.Identifier) (Result, error) {
	key := ephemeral.ComponentKey(int(cb.componentType), cb.customID)
	if cb.modal {
		key = ephemeral.ModalKey(cb.customID)
	}

	rec, err := ephemeral.GetRecord(ctx, r.ephemeral, key)
	if errors.Is(err, ephemeral.ErrNotFound) {
		return Result{}, Fail(CodeUnknownOrExpiredState, msgExpired, err)
	}
	if err != nil {
		return Result{}, internal(err)
	}

	h, ok := r.table.lookup(cb.modal, RoutingID(rec.RoutingID))
	if !ok {
		return Result{}, Fail(CodeUnknownRoutingID, msgUnknownID, fmt.Errorf("routing id %q", rec.RoutingID))
	}

	res, err := r.invoke(ctx, h, &Request{Interaction: i, CustomID: cb.customID, Identifier: id, Record: &rec})
	if err != nil {
		return Result{}, err
	}

	if rec.Once {
		if err := r.ephemeral.Delete(ctx, key); err != nil {
			slog.Warn("failed to consume run-once state", "key", key, "error", err)
		}
	}
	return res, nil
}

func (r *Router) routeSelfContained(ctx context.Context, i *discordgo.Interaction, cb callback, id ids.Identifier) (Result, error) {
	h, ok := r.table.lookup(cb.modal, RoutingID(id.RoutingID))
	if !ok {
		return Result{}, Fail(CodeUnknownRoutingID, msgUnknownID, fmt.Errorf("routing id %q", id.RoutingID))
	}
	return r.invoke(ctx, h, &Request{Interaction: i, CustomID: cb.customID, Identifier: id})
}

func (r *Router) routeActor(ctx context.Context, i *discordgo.Interaction, cb callback, id ids.Identifier) (Result, error) {
	if cb.modal || i.Message == nil {
		return Result{}, Fail(CodeComponentNotFound, msgNotFound, errors.New("actor-backed identifier without a message"))
	}

	address := actor.Address(i.Message.ID, cb.customID)
	st, err := actor.Load(ctx, r.actors, address, id.ComponentID, i.Message.ID)
	if errors.Is(err, actor.ErrComponentNotFound) {
		return Result{}, Fail(CodeComponentNotFound, msgNotFound, err)
	}
	if err != nil {
		return Result{}, internal(err)
	}

	if st.Draft {
		return Result{}, Fail(CodeComponentIsDraft, r.withLink(msgDraft, st), nil)
	}

	flows := st.SelectFlows(model.Kind(cb.componentType), cb.values)
	if len(flows) == 0 {
		return Result{}, Fail(CodeNoFlows, r.withLink(msgNoFlows, st), nil)
	}

	live := flow.NewLive(i, nil)
	live.Premium = st.Premium
	interactionID := i.ID
	return Result{
		Response: DeferUpdate(),
		Continuation: func(ctx context.Context) error {
			r.runFlows(ctx, interactionID, flows, live)
			if err := r.actors.RecordInvocation(ctx, address, live.UserID); err != nil {
				return fmt.Errorf("failed to record invocation: %w", err)
			}
			return nil
		},
	}, nil
}

// runFlows executes independently selected flows concurrently. Each flow
// works on its own copy of live, so results do not depend on ordering.
func (r *Router) runFlows(ctx context.Context, interactionID string, flows []model.Flow, live *flow.Live) {
	var g errgroup.Group
	for _, f := range flows {
		g.Go(func() error {
			res := r.executor.Execute(ctx, f, live)
			slog.Info("flow executed",
				"interaction_id", interactionID,
				"flow_id", f.ID,
				"actions", len(res.Actions),
				"failed", res.Failed(),
				"stopped", res.Stopped)
			return nil
		})
	}
	_ = g.Wait()
}

func (r *Router) withLink(msg string, st *model.ComponentState) string {
	if r.linker == nil {
		return msg + "."
	}
	link, err := r.linker.Link(st.ID, st.GuildID)
	if err != nil {
		slog.Warn("failed to build editor link", "component_id", st.ID, "error", err)
		return msg + "."
	}
	return msg + ". Edit it here: " + link
}
