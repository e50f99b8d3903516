// Package platform is the chat platform REST surface used by flow actions
// and handlers. Discord implements it on top of discordgo with a
// process-wide rate limit in front of discordgo's per-route buckets.
package platform

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/time/rate"
)

// Message is an outgoing message. Components are only sent with channel
// messages.
type Message struct {
	Content    string
	Ephemeral  bool
	Components []discordgo.MessageComponent
}

// InteractionRef identifies an interaction for followups and edits of the
// original response.
type InteractionRef struct {
	AppID string
	Token string
}

// Client is the REST surface the engine needs.
type Client interface {
	AddRole(ctx context.Context, guildID, userID, roleID string) error
	RemoveRole(ctx context.Context, guildID, userID, roleID string) error
	SendMessage(ctx context.Context, channelID string, msg Message) (string, error)
	Followup(ctx context.Context, ref InteractionRef, msg Message) error
	DeleteMessage(ctx context.Context, channelID, messageID string) error
	DeleteReaction(ctx context.Context, channelID, messageID, emoji string) error
}

// APIError wraps a failed platform call.
type APIError struct {
	Op     string
	Status int
	Err    error
}

func (e *APIError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("platform %s: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("platform %s: %v", e.Op, e.Err)
}

func (e *APIError) Unwrap() error { return e.Err }

// NotFound reports whether err is a platform 404 (unknown message, role...).
func NotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	apiErr := &APIError{Op: op, Err: err}
	var rest *discordgo.RESTError
	if errors.As(err, &rest) && rest.Response != nil {
		apiErr.Status = rest.Response.StatusCode
	}
	return apiErr
}

// Discord implements Client with a bot token.
type Discord struct {
	session *discordgo.Session
	limiter *rate.Limiter
}

// NewDiscord creates a REST-only session. requestsPerSecond <= 0 disables
// the process-wide limit.
func NewDiscord(token string, requestsPerSecond float64, burst int) (*Discord, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	if burst < 1 {
		burst = 1
	}
	return &Discord{session: s, limiter: rate.NewLimiter(limit, burst)}, nil
}

func (d *Discord) wait(ctx context.Context, op string) ([]discordgo.RequestOption, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return nil, &APIError{Op: op, Err: err}
	}
	return []discordgo.RequestOption{discordgo.WithContext(ctx)}, nil
}

func (d *Discord) AddRole(ctx context.Context, guildID, userID, roleID string) error {
	opts, err := d.wait(ctx, "add role")
	if err != nil {
		return err
	}
	return wrap("add role", d.session.GuildMemberRoleAdd(guildID, userID, roleID, opts...))
}

func (d *Discord) RemoveRole(ctx context.Context, guildID, userID, roleID string) error {
	opts, err := d.wait(ctx, "remove role")
	if err != nil {
		return err
	}
	return wrap("remove role", d.session.GuildMemberRoleRemove(guildID, userID, roleID, opts...))
}

// safeMentions lets messages ping users but never roles or everyone.
func safeMentions() *discordgo.MessageAllowedMentions {
	return &discordgo.MessageAllowedMentions{
		Parse: []discordgo.AllowedMentionType{discordgo.AllowedMentionTypeUsers},
	}
}

func (d *Discord) SendMessage(ctx context.Context, channelID string, msg Message) (string, error) {
	opts, err := d.wait(ctx, "send message")
	if err != nil {
		return "", err
	}
	m, err := d.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content:         msg.Content,
		Components:      msg.Components,
		AllowedMentions: safeMentions(),
	}, opts...)
	if err != nil {
		return "", wrap("send message", err)
	}
	return m.ID, nil
}

func (d *Discord) Followup(ctx context.Context, ref InteractionRef, msg Message) error {
	opts, err := d.wait(ctx, "followup")
	if err != nil {
		return err
	}
	params := &discordgo.WebhookParams{
		Content:         msg.Content,
		AllowedMentions: safeMentions(),
	}
	if msg.Ephemeral {
		params.Flags = discordgo.MessageFlagsEphemeral
	}
	_, err = d.session.FollowupMessageCreate(interaction(ref), true, params, opts...)
	return wrap("followup", err)
}

func (d *Discord) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	opts, err := d.wait(ctx, "delete message")
	if err != nil {
		return err
	}
	return wrap("delete message", d.session.ChannelMessageDelete(channelID, messageID, opts...))
}

func (d *Discord) DeleteReaction(ctx context.Context, channelID, messageID, emoji string) error {
	opts, err := d.wait(ctx, "delete reaction")
	if err != nil {
		return err
	}
	return wrap("delete reaction", d.session.MessageReactionsRemoveEmoji(channelID, messageID, emoji, opts...))
}

func interaction(ref InteractionRef) *discordgo.Interaction {
	return &discordgo.Interaction{AppID: ref.AppID, Token: ref.Token}
}
