// Package handlers implements the routing-id handlers registered in the
// router's dispatch table: the reaction role wizard (a self-contained start
// button, then an ephemeral modal and confirm/cancel buttons) and the
// self-contained delete button.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/roach88/interflow/internal/ephemeral"
	"github.com/roach88/interflow/internal/ids"
	"github.com/roach88/interflow/internal/platform"
	"github.com/roach88/interflow/internal/router"
	"github.com/roach88/interflow/internal/store"
)

// Timeouts for wizard state, in seconds.
const (
	modalTimeout   = 600
	confirmTimeout = 300
)

// roleInputID is the text input holding the role id in the wizard modal.
const roleInputID = "role"

// ReactionRoles is the relational surface the handlers write to.
type ReactionRoles interface {
	PutReactionRole(ctx context.Context, rr store.ReactionRole) error
	DeleteReactionRole(ctx context.Context, messageID, reaction string) error
}

// Handlers holds handler dependencies.
type Handlers struct {
	roles     ReactionRoles
	platform  platform.Client
	ephemeral ephemeral.Store
	tokens    ids.TokenGenerator
}

// New creates Handlers.
func New(roles ReactionRoles, p platform.Client, eph ephemeral.Store, tokens ids.TokenGenerator) *Handlers {
	return &Handlers{roles: roles, platform: p, ephemeral: eph, tokens: tokens}
}

// Table builds the dispatch table with every handler registered.
func (h *Handlers) Table() (*router.Table, error) {
	t := router.NewTable()
	err := errors.Join(
		t.Register(router.RouteReactionRoleStart, h.StartReactionRole),
		t.Register(router.RouteDeleteReactionRole, h.DeleteReactionRole),
		t.Register(router.RouteReactionRoleConfirm, h.ConfirmReactionRole),
		t.Register(router.RouteReactionRoleCancel, h.CancelReactionRole),
		t.RegisterModal(router.RouteReactionRoleModal, h.SubmitReactionRole),
	)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// PendingReactionRole is the wizard state carried between steps.
type PendingReactionRole struct {
	ChannelID string `json:"channelId"`
	MessageID string `json:"messageId"`
	Reaction  string `json:"reaction"`
	RoleID    string `json:"roleId,omitempty"`
}

// issue stores state behind a fresh t_ identifier and returns the custom id.
func (h *Handlers) issue(ctx context.Context, key func(string) string, rec ephemeral.Record) (string, error) {
	customID, err := ids.Encode(ids.Ephemeral(h.tokens.Generate()))
	if err != nil {
		return "", err
	}
	if err := ephemeral.PutRecord(ctx, h.ephemeral, key(customID), rec); err != nil {
		return "", err
	}
	return customID, nil
}

func buttonKey(customID string) string {
	return ephemeral.ComponentKey(int(discordgo.ButtonComponent), customID)
}

func record(id router.RoutingID, timeout int, state any) (ephemeral.Record, error) {
	b, err := json.Marshal(state)
	if err != nil {
		return ephemeral.Record{}, err
	}
	return ephemeral.Record{RoutingID: string(id), Once: true, TimeoutSeconds: timeout, State: b}, nil
}

func pendingFrom(req *router.Request) (PendingReactionRole, error) {
	var p PendingReactionRole
	if req.Record == nil {
		return p, errors.New("missing wizard state")
	}
	if err := json.Unmarshal(req.Record.State, &p); err != nil {
		return p, fmt.Errorf("failed to decode wizard state: %w", err)
	}
	return p, nil
}

// PostReactionRoleSetup posts a message to channelID whose button opens the
// wizard for reaction on messageID. The button's a_ identifier carries the
// target, so it keeps working across restarts. Returns the posted message id.
func PostReactionRoleSetup(ctx context.Context, p platform.Client, channelID, messageID, reaction string) (string, error) {
	customID, err := ids.Encode(ids.SelfContained(string(router.RouteReactionRoleStart), messageID, reaction))
	if err != nil {
		return "", err
	}
	return p.SendMessage(ctx, channelID, platform.Message{
		Content: fmt.Sprintf("Set up a reaction role for %s on message %s.", reaction, messageID),
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				discordgo.Button{CustomID: customID, Label: "Choose role", Style: discordgo.PrimaryButton},
			}},
		},
	})
}

// StartReactionRole opens the wizard modal for the message and reaction
// named by the a_ identifier.
func (h *Handlers) StartReactionRole(ctx context.Context, req *router.Request) (router.Result, error) {
	fields, err := req.Identifier.Bind("message", "reaction")
	if err != nil {
		return router.Result{}, router.Fail(router.CodeMalformedIdentifier, "This button is broken.", err)
	}
	modal, err := h.OpenReactionRoleModal(ctx, PendingReactionRole{
		ChannelID: req.Interaction.ChannelID,
		MessageID: fields["message"],
		Reaction:  fields["reaction"],
	})
	if err != nil {
		return router.Result{}, err
	}
	return router.Result{Response: modal}, nil
}

// OpenReactionRoleModal starts the wizard: it returns a modal asking for the
// role to bind to reaction on the given message.
func (h *Handlers) OpenReactionRoleModal(ctx context.Context, pending PendingReactionRole) (*discordgo.InteractionResponse, error) {
	rec, err := record(router.RouteReactionRoleModal, modalTimeout, pending)
	if err != nil {
		return nil, err
	}
	customID, err := h.issue(ctx, ephemeral.ModalKey, rec)
	if err != nil {
		return nil, fmt.Errorf("failed to issue modal: %w", err)
	}
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID: customID,
			Title:    "Reaction role",
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					discordgo.TextInput{
						CustomID:    roleInputID,
						Label:       "Role ID",
						Style:       discordgo.TextInputShort,
						Required:    true,
						MinLength:   1,
						MaxLength:   20,
						Placeholder: "123456789012345678",
					},
				}},
			},
		},
	}, nil
}

// SubmitReactionRole reads the role from the modal and asks for
// confirmation.
func (h *Handlers) SubmitReactionRole(ctx context.Context, req *router.Request) (router.Result, error) {
	pending, err := pendingFrom(req)
	if err != nil {
		return router.Result{}, err
	}

	role := textInput(req.Interaction, roleInputID)
	if !isSnowflake(role) {
		return router.Reply("That is not a role ID."), nil
	}
	pending.RoleID = role

	confirm, err := record(router.RouteReactionRoleConfirm, confirmTimeout, pending)
	if err != nil {
		return router.Result{}, err
	}
	confirmID, err := h.issue(ctx, buttonKey, confirm)
	if err != nil {
		return router.Result{}, err
	}
	cancelID, err := h.issue(ctx, buttonKey, ephemeral.Record{
		RoutingID:      string(router.RouteReactionRoleCancel),
		Once:           true,
		TimeoutSeconds: confirmTimeout,
	})
	if err != nil {
		return router.Result{}, err
	}

	res := router.Reply(fmt.Sprintf("Give <@&%s> to members who react with %s?", pending.RoleID, pending.Reaction))
	res.Response.Data.Components = []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{CustomID: confirmID, Label: "Save", Style: discordgo.SuccessButton},
			discordgo.Button{CustomID: cancelID, Label: "Cancel", Style: discordgo.SecondaryButton},
		}},
	}
	return res, nil
}

// ConfirmReactionRole saves the binding and offers a delete button that
// needs no stored state.
func (h *Handlers) ConfirmReactionRole(ctx context.Context, req *router.Request) (router.Result, error) {
	pending, err := pendingFrom(req)
	if err != nil {
		return router.Result{}, err
	}
	deleteID, err := ids.Encode(ids.SelfContained(string(router.RouteDeleteReactionRole), pending.MessageID, pending.Reaction))
	if err != nil {
		return router.Result{}, router.Fail(router.CodeMalformedIdentifier, "That reaction cannot be used for a reaction role.", err)
	}
	if err := h.roles.PutReactionRole(ctx, store.ReactionRole{
		MessageID: pending.MessageID,
		Reaction:  pending.Reaction,
		RoleID:    pending.RoleID,
	}); err != nil {
		return router.Result{}, err
	}
	return router.UpdateMessage(
		fmt.Sprintf("Saved. Reacting with %s now gives <@&%s>.", pending.Reaction, pending.RoleID),
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{CustomID: deleteID, Label: "Delete", Style: discordgo.DangerButton},
		}},
	), nil
}

// CancelReactionRole ends the wizard.
func (h *Handlers) CancelReactionRole(context.Context, *router.Request) (router.Result, error) {
	return router.UpdateMessage("Cancelled."), nil
}

// DeleteReactionRole removes a binding named entirely by its a_ identifier
// (message id and reaction), then clears the reaction from the message
// after responding.
func (h *Handlers) DeleteReactionRole(ctx context.Context, req *router.Request) (router.Result, error) {
	fields, err := req.Identifier.Bind("message", "reaction")
	if err != nil {
		return router.Result{}, router.Fail(router.CodeMalformedIdentifier, "This button is broken.", err)
	}
	messageID, reaction := fields["message"], fields["reaction"]

	err = h.roles.DeleteReactionRole(ctx, messageID, reaction)
	if errors.Is(err, store.ErrNotFound) {
		return router.Reply("That reaction role no longer exists."), nil
	}
	if err != nil {
		return router.Result{}, err
	}

	channelID := req.Interaction.ChannelID
	res := router.UpdateMessage(fmt.Sprintf("Removed the reaction role for %s.", reaction))
	res.Continuation = func(ctx context.Context) error {
		err := h.platform.DeleteReaction(ctx, channelID, messageID, reaction)
		if platform.NotFound(err) {
			slog.Info("reaction already gone", "message_id", messageID, "reaction", reaction)
			return nil
		}
		return err
	}
	return res, nil
}

func textInput(i *discordgo.Interaction, customID string) string {
	data, ok := i.Data.(discordgo.ModalSubmitInteractionData)
	if !ok {
		return ""
	}
	for _, row := range data.Components {
		r, ok := row.(*discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, c := range r.Components {
			if in, ok := c.(*discordgo.TextInput); ok && in.CustomID == customID {
				return in.Value
			}
		}
	}
	return ""
}

func isSnowflake(s string) bool {
	if s == "" || len(s) > 20 || s[0] == '0' {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
