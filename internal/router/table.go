package router

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/roach88/interflow/internal/ephemeral"
	"github.com/roach88/interflow/internal/ids"
)

// RoutingID names a handler. The set is closed: Register refuses ids not
// listed here.
type RoutingID string

const (
	RouteReactionRoleStart   RoutingID = "reaction-role-start"
	RouteDeleteReactionRole  RoutingID = "delete-reaction-role"
	RouteReactionRoleConfirm RoutingID = "reaction-role-confirm"
	RouteReactionRoleCancel  RoutingID = "reaction-role-cancel"
	RouteReactionRoleModal   RoutingID = "reaction-role-modal"
)

// RoutingIDs lists every known routing id.
var RoutingIDs = []RoutingID{
	RouteReactionRoleStart,
	RouteDeleteReactionRole,
	RouteReactionRoleConfirm,
	RouteReactionRoleCancel,
	RouteReactionRoleModal,
}

// Known reports whether id is a member of the closed set.
func Known(id RoutingID) bool {
	for _, k := range RoutingIDs {
		if k == id {
			return true
		}
	}
	return false
}

// Continuation is work run after the response has been sent. It is best
// effort: it may be dropped if the process stops first.
type Continuation func(ctx context.Context) error

// Result is a response plus optional deferred work.
type Result struct {
	Response     *discordgo.InteractionResponse
	Continuation Continuation
}

// Request is what a handler receives.
type Request struct {
	Interaction *discordgo.Interaction
	CustomID    string
	Identifier  ids.Identifier

	// Record is the ephemeral state behind a t_ identifier, nil otherwise.
	Record *ephemeral.Record
}

// Handler serves one routing id.
type Handler func(ctx context.Context, req *Request) (Result, error)

// Table is the dispatch table. Build it once at startup and pass it to New;
// it is read-only afterwards.
type Table struct {
	components map[RoutingID]Handler
	modals     map[RoutingID]Handler
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{
		components: make(map[RoutingID]Handler),
		modals:     make(map[RoutingID]Handler),
	}
}

// Register binds a component handler.
func (t *Table) Register(id RoutingID, h Handler) error {
	return t.add(t.components, id, h)
}

// RegisterModal binds a modal submit handler.
func (t *Table) RegisterModal(id RoutingID, h Handler) error {
	return t.add(t.modals, id, h)
}

func (t *Table) add(m map[RoutingID]Handler, id RoutingID, h Handler) error {
	if !Known(id) {
		return fmt.Errorf("unknown routing id %q", id)
	}
	if h == nil {
		return fmt.Errorf("nil handler for routing id %q", id)
	}
	if _, dup := m[id]; dup {
		return fmt.Errorf("routing id %q registered twice", id)
	}
	m[id] = h
	return nil
}

func (t *Table) lookup(modal bool, id RoutingID) (Handler, bool) {
	m := t.components
	if modal {
		m = t.modals
	}
	h, ok := m[id]
	return h, ok
}
