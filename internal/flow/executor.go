package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/roach88/interflow/internal/metrics"
	"github.com/roach88/interflow/internal/model"
	"github.com/roach88/interflow/internal/platform"
)

// Default limits.
const (
	DefaultMaxActions        = 5
	DefaultPremiumMaxActions = 20
	DefaultMaxWait           = 60 * time.Second
)

// Code classifies a non-successful action.
type Code string

const (
	CodePlatformAPIError    Code = "PlatformAPIError"
	CodeVariableUnresolved  Code = "VariableUnresolved"
	CodeActionLimitExceeded Code = "ActionLimitExceeded"
	CodeStopped             Code = "Stopped"
	CodeInvalidAction       Code = "InvalidAction"
	CodeCancelled           Code = "Cancelled"
)

// ActionResult is the outcome of one action.
type ActionResult struct {
	Index     int    `json:"index"`
	Action    string `json:"action"`
	Succeeded bool   `json:"succeeded"`
	Code      Code   `json:"code,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ExecutionResult records every action of a flow in order.
type ExecutionResult struct {
	FlowID  uint64         `json:"flowId,string"`
	Actions []ActionResult `json:"actions"`
	Stopped bool           `json:"stopped,omitempty"`
}

// Failed counts actions that did not succeed for a reason other than a
// deliberate Stop.
func (r ExecutionResult) Failed() int {
	n := 0
	for _, a := range r.Actions {
		if !a.Succeeded && a.Code != CodeStopped {
			n++
		}
	}
	return n
}

// Live is the resolved context of one callback.
type Live struct {
	Vars        Variables
	GuildID     string
	UserID      string
	ChannelID   string
	MessageID   string
	MemberRoles []string
	Interaction platform.InteractionRef
	Premium     bool
}

// NewLive resolves the live context of an interaction.
func NewLive(i *discordgo.Interaction, guild *discordgo.Guild) *Live {
	live := &Live{Vars: Resolve(i, guild)}
	if i == nil {
		return live
	}
	live.GuildID = i.GuildID
	live.ChannelID = i.ChannelID
	live.UserID = live.Vars["user.id"]
	if i.Message != nil {
		live.MessageID = i.Message.ID
	}
	if i.Member != nil {
		live.MemberRoles = append([]string(nil), i.Member.Roles...)
	}
	live.Interaction = platform.InteractionRef{AppID: i.AppID, Token: i.Token}
	return live
}

func (l *Live) clone() *Live {
	c := *l
	c.Vars = l.Vars.clone()
	c.MemberRoles = append([]string(nil), l.MemberRoles...)
	return &c
}

// Option configures an Executor.
type Option func(*Executor)

// WithLimits sets the free and premium action limits.
func WithLimits(free, premium int) Option {
	return func(e *Executor) {
		e.maxActions = free
		e.premiumMaxActions = premium
	}
}

// WithMaxWait caps Wait actions.
func WithMaxWait(d time.Duration) Option {
	return func(e *Executor) { e.maxWait = d }
}

// WithSleeper replaces the context-aware sleep used by Wait.
func WithSleeper(sleep func(context.Context, time.Duration) error) Option {
	return func(e *Executor) { e.sleep = sleep }
}

// WithMetrics records per-action outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// Executor runs flows against a platform client. It holds no per-run state
// and is safe for concurrent use.
type Executor struct {
	platform          platform.Client
	maxActions        int
	premiumMaxActions int
	maxWait           time.Duration
	sleep             func(context.Context, time.Duration) error
	metrics           *metrics.Metrics
}

// NewExecutor creates an Executor.
func NewExecutor(p platform.Client, opts ...Option) *Executor {
	e := &Executor{
		platform:          p,
		maxActions:        DefaultMaxActions,
		premiumMaxActions: DefaultPremiumMaxActions,
		maxWait:           DefaultMaxWait,
		sleep:             sleepContext,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Execute runs f in order. live is copied first, so variables set by the
// flow and role changes it makes are visible only to its own later actions.
func (e *Executor) Execute(ctx context.Context, f model.Flow, live *Live) ExecutionResult {
	if live == nil {
		live = &Live{}
	}
	run := &execution{Executor: e, live: live.clone()}
	if run.live.Vars == nil {
		run.live.Vars = make(Variables)
	}

	limit := e.maxActions
	if live.Premium {
		limit = e.premiumMaxActions
	}

	result := ExecutionResult{FlowID: f.ID, Actions: make([]ActionResult, 0, len(f.Actions))}
	for i, action := range f.Actions {
		res := ActionResult{Index: i, Action: action.Type().String()}
		switch {
		case result.Stopped:
			res.Code = CodeStopped
		case i >= limit:
			res.Code = CodeActionLimitExceeded
			res.Error = fmt.Sprintf("flow exceeds the limit of %d actions", limit)
		default:
			stop, err := run.apply(ctx, action)
			if err != nil {
				res.Code, res.Error = classify(err), err.Error()
				slog.Warn("flow action failed",
					"flow_id", f.ID, "index", i, "action", res.Action, "code", res.Code, "error", err)
			} else {
				res.Succeeded = true
			}
			if stop {
				result.Stopped = true
			}
		}
		e.metrics.FlowAction(res.Action, outcome(res))
		result.Actions = append(result.Actions, res)
	}
	return result
}

func outcome(r ActionResult) string {
	if r.Succeeded {
		return "succeeded"
	}
	return string(r.Code)
}

var errInvalidAction = errors.New("invalid action")

func classify(err error) Code {
	var unresolved *UnresolvedError
	switch {
	case errors.As(err, &unresolved):
		return CodeVariableUnresolved
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return CodeCancelled
	case errors.Is(err, errInvalidAction):
		return CodeInvalidAction
	default:
		return CodePlatformAPIError
	}
}

// execution is the mutable state of one Execute call.
type execution struct {
	*Executor
	live *Live
}

func (x *execution) apply(ctx context.Context, action model.Action) (stop bool, err error) {
	switch a := action.(type) {
	case model.Dud:
		return false, nil
	case model.Wait:
		return false, x.wait(ctx, a)
	case model.SetVariable:
		return false, x.setVariable(a)
	case model.AddRole:
		return false, x.changeRole(ctx, a.RoleID, true)
	case model.RemoveRole:
		return false, x.changeRole(ctx, a.RoleID, false)
	case model.ToggleRole:
		return false, x.toggleRole(ctx, a.RoleID)
	case model.SendMessage:
		return false, x.sendMessage(ctx, a)
	case model.DeleteMessage:
		return false, x.deleteMessage(ctx, a)
	case model.Stop:
		return true, x.stop(ctx, a)
	default:
		return false, fmt.Errorf("%w: %T", errInvalidAction, action)
	}
}

func (x *execution) wait(ctx context.Context, a model.Wait) error {
	if a.Seconds <= 0 {
		return nil
	}
	d := time.Duration(a.Seconds) * time.Second
	if d > x.maxWait {
		d = x.maxWait
	}
	return x.sleep(ctx, d)
}

func (x *execution) setVariable(a model.SetVariable) error {
	if !variableNamePattern.MatchString(a.Name) {
		return fmt.Errorf("%w: variable name %q", errInvalidAction, a.Name)
	}
	value, err := x.live.Vars.Substitute(a.Value)
	if err != nil {
		return err
	}
	x.live.Vars[a.Name] = value
	return nil
}

// member resolves the target of a role action.
func (x *execution) member(roleID string) (guildID, userID, role string, err error) {
	var missing []string
	if x.live.GuildID == "" {
		missing = append(missing, "guild.id")
	}
	if x.live.UserID == "" {
		missing = append(missing, "user.id")
	}
	if len(missing) > 0 {
		return "", "", "", &UnresolvedError{Names: missing}
	}
	role, err = x.live.Vars.Substitute(roleID)
	if err != nil {
		return "", "", "", err
	}
	if role == "" {
		return "", "", "", fmt.Errorf("%w: empty role id", errInvalidAction)
	}
	return x.live.GuildID, x.live.UserID, role, nil
}

func (x *execution) changeRole(ctx context.Context, roleID string, add bool) error {
	guildID, userID, role, err := x.member(roleID)
	if err != nil {
		return err
	}
	return x.setRole(ctx, guildID, userID, role, add)
}

// toggleRole decides from the role snapshot, which earlier actions of the
// same flow keep current.
func (x *execution) toggleRole(ctx context.Context, roleID string) error {
	guildID, userID, role, err := x.member(roleID)
	if err != nil {
		return err
	}
	return x.setRole(ctx, guildID, userID, role, !slices.Contains(x.live.MemberRoles, role))
}

func (x *execution) setRole(ctx context.Context, guildID, userID, role string, add bool) error {
	var err error
	if add {
		err = x.platform.AddRole(ctx, guildID, userID, role)
	} else {
		err = x.platform.RemoveRole(ctx, guildID, userID, role)
	}
	if err != nil {
		return err
	}
	x.setHasRole(role, add)
	return nil
}

func (x *execution) setHasRole(role string, has bool) {
	idx := slices.Index(x.live.MemberRoles, role)
	switch {
	case has && idx < 0:
		x.live.MemberRoles = append(x.live.MemberRoles, role)
	case !has && idx >= 0:
		x.live.MemberRoles = slices.Delete(x.live.MemberRoles, idx, idx+1)
	}
}

func (x *execution) sendMessage(ctx context.Context, a model.SendMessage) error {
	content, err := x.live.Vars.Substitute(a.Content)
	if err != nil {
		return err
	}
	if content == "" {
		return fmt.Errorf("%w: empty message", errInvalidAction)
	}
	msg := platform.Message{Content: content, Ephemeral: a.Ephemeral}
	if a.Response {
		return x.platform.Followup(ctx, x.live.Interaction, msg)
	}

	channel := a.ChannelID
	if channel == "" {
		channel = "{channel.id}"
	}
	channel, err = x.live.Vars.Substitute(channel)
	if err != nil {
		return err
	}
	_, err = x.platform.SendMessage(ctx, channel, msg)
	return err
}

func (x *execution) deleteMessage(ctx context.Context, a model.DeleteMessage) error {
	channel, message := a.ChannelID, a.MessageID
	if channel == "" {
		channel = "{channel.id}"
	}
	if message == "" {
		message = "{message.id}"
	}
	channel, err := x.live.Vars.Substitute(channel)
	if err != nil {
		return err
	}
	message, err = x.live.Vars.Substitute(message)
	if err != nil {
		return err
	}
	return x.platform.DeleteMessage(ctx, channel, message)
}

func (x *execution) stop(ctx context.Context, a model.Stop) error {
	if a.Message == "" {
		return nil
	}
	content, err := x.live.Vars.Substitute(a.Message)
	if err != nil {
		return err
	}
	return x.platform.Followup(ctx, x.live.Interaction, platform.Message{Content: content, Ephemeral: true})
}
