package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/interflow/internal/actor"
	"github.com/roach88/interflow/internal/ids"
	"github.com/roach88/interflow/internal/model"
	"github.com/roach88/interflow/internal/store"
)

// StoreOptions are the flags shared by commands that write the relational
// store. ActorsURL points at a running server's actor listener; when set,
// changed components are refreshed there so callbacks see them at once.
type StoreOptions struct {
	Database  string
	Driver    string
	ActorsURL string
}

func addStoreFlags(cmd *cobra.Command, opts *StoreOptions) {
	cmd.Flags().StringVar(&opts.Database, "db", "", "database DSN or SQLite path (required)")
	cmd.Flags().StringVar(&opts.Driver, "driver", "sqlite3", "database driver (sqlite3|postgres)")
	cmd.Flags().StringVar(&opts.ActorsURL, "actors", "", "actor listener to refresh, e.g. http://127.0.0.1:8081")
	_ = cmd.MarkFlagRequired("db")
}

func openStore(ctx context.Context, opts *StoreOptions, formatter *OutputFormatter) (*store.Store, error) {
	dialect, err := store.ParseDialect(opts.Driver)
	if err != nil {
		return nil, formatter.Fail(ExitCommandError, ErrCodeDatabase, err.Error(), nil)
	}
	db, err := store.Open(ctx, dialect, opts.Database)
	if err != nil {
		return nil, formatter.Fail(ExitCommandError, ErrCodeDatabase, "failed to open database", err)
	}
	return db, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// refreshActor asks the actor host to re-read st. Components not attached to
// a message have no actor yet and are skipped. Returns the refreshed address.
func refreshActor(ctx context.Context, baseURL string, st *model.ComponentState) (string, error) {
	if baseURL == "" || st.MessageID == "" {
		return "", nil
	}
	address := actor.Address(st.MessageID, ids.ActorBacked(st.ID).String())
	client := actor.NewClient(baseURL, &http.Client{Timeout: 10 * time.Second})
	if _, err := client.Refresh(ctx, address, st.ID, st.MessageID); err != nil {
		return "", err
	}
	return address, nil
}

// parseComponentID accepts a bare id or a p_ custom identifier.
func parseComponentID(s string) (uint64, error) {
	if strings.HasPrefix(s, "p_") {
		id, err := ids.Decode(s)
		if err != nil {
			return 0, err
		}
		return id.ComponentID, nil
	}
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%q is not a component id", s)
	}
	return id, nil
}

// ComponentResult describes one stored component.
type ComponentResult struct {
	ComponentID uint64 `json:"componentId,string"`
	CustomID    string `json:"customId"`
	Kind        int    `json:"kind"`
	Flows       int    `json:"flows"`
	Draft       bool   `json:"draft"`
	MessageID   string `json:"messageId,omitempty"`
	Refreshed   string `json:"refreshed,omitempty"`
}

func componentResult(st *model.ComponentState) ComponentResult {
	return ComponentResult{
		ComponentID: st.ID,
		CustomID:    ids.ActorBacked(st.ID).String(),
		Kind:        int(st.Data.Kind()),
		Flows:       len(st.Flows),
		Draft:       st.Draft,
		MessageID:   st.MessageID,
	}
}

func (r ComponentResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s kind=%d flows=%d", r.CustomID, r.Kind, r.Flows)
	if r.MessageID != "" {
		fmt.Fprintf(&b, " message=%s", r.MessageID)
	}
	if r.Draft {
		b.WriteString(" [draft]")
	}
	if r.Refreshed != "" {
		fmt.Fprintf(&b, "\nrefreshed actor %s", r.Refreshed)
	}
	return b.String()
}

// saveAndRefresh runs write, reloads the component and refreshes its actor.
func saveAndRefresh(cmd *cobra.Command, rootOpts *RootOptions, opts *StoreOptions, componentID uint64,
	write func(ctx context.Context, db *store.Store) error) error {
	formatter := newFormatter(rootOpts, cmd)
	ctx := commandContext(cmd)

	db, err := openStore(ctx, opts, formatter)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := write(ctx, db); err != nil {
		code := ExitCommandError
		if errors.Is(err, store.ErrNotFound) {
			code = ExitFailure
		}
		return formatter.Fail(code, ErrCodeDatabase, fmt.Sprintf("failed to update component %d", componentID), err)
	}

	st, err := db.FindComponent(ctx, componentID)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeDatabase, fmt.Sprintf("failed to reload component %d", componentID), err)
	}

	res := componentResult(st)
	address, err := refreshActor(ctx, opts.ActorsURL, st)
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeActor, "saved, but the actor host did not refresh", err)
	}
	res.Refreshed = address
	return formatter.Success(res)
}

// AttachOptions holds flags for the attach command.
type AttachOptions struct {
	*RootOptions
	StoreOptions
	GuildID   string
	ChannelID string
}

// NewAttachCommand creates the attach command.
func NewAttachCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AttachOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "attach <component-id> <message-id>",
		Short: "Record the message a component was posted on",
		Long: `Record the message carrying a component and mark it live. Callbacks
from that message then resolve to the component; copies of its p_
identifier on other messages do not.

Example:
  interflow attach --db ./interflow.db --guild 9000 --channel 42 p_1234567890 1100000000000000001
  interflow attach --db ./interflow.db --actors http://127.0.0.1:8081 1234567890 1100000000000000001`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseComponentID(args[0])
			if err != nil {
				return newFormatter(rootOpts, cmd).Fail(ExitFailure, ErrCodeMalformedID, err.Error(), nil)
			}
			return saveAndRefresh(cmd, rootOpts, &opts.StoreOptions, id, func(ctx context.Context, db *store.Store) error {
				return db.AttachToMessage(ctx, id, opts.GuildID, opts.ChannelID, args[1])
			})
		},
	}

	addStoreFlags(cmd, &opts.StoreOptions)
	cmd.Flags().StringVar(&opts.GuildID, "guild", "", "guild id of the message")
	cmd.Flags().StringVar(&opts.ChannelID, "channel", "", "channel id of the message")

	return cmd
}

// PublishOptions holds flags for the publish command.
type PublishOptions struct {
	*RootOptions
	StoreOptions
	Draft bool
}

// NewPublishCommand creates the publish command.
func NewPublishCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PublishOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "publish <component-id>",
		Short: "Take a component out of draft, or back into it",
		Long: `Clear the draft flag so the component's flows run. With --draft the
flag is set again and callbacks answer with an editor link instead.

Example:
  interflow publish --db ./interflow.db p_1234567890
  interflow publish --db ./interflow.db --draft --actors http://127.0.0.1:8081 p_1234567890`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseComponentID(args[0])
			if err != nil {
				return newFormatter(rootOpts, cmd).Fail(ExitFailure, ErrCodeMalformedID, err.Error(), nil)
			}
			return saveAndRefresh(cmd, rootOpts, &opts.StoreOptions, id, func(ctx context.Context, db *store.Store) error {
				return db.SetDraft(ctx, id, opts.Draft)
			})
		},
	}

	addStoreFlags(cmd, &opts.StoreOptions)
	cmd.Flags().BoolVar(&opts.Draft, "draft", false, "mark the component as draft instead")

	return cmd
}

// ComponentsResult lists the components on one message.
type ComponentsResult struct {
	MessageID  string            `json:"messageId"`
	Components []ComponentResult `json:"components"`
}

func (r ComponentsResult) String() string {
	if len(r.Components) == 0 {
		return "no components on message " + r.MessageID
	}
	lines := make([]string, len(r.Components))
	for i, c := range r.Components {
		lines[i] = c.String()
	}
	return strings.Join(lines, "\n")
}

// ComponentsOptions holds flags for the components command.
type ComponentsOptions struct {
	*RootOptions
	StoreOptions
}

// NewComponentsCommand creates the components command.
func NewComponentsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ComponentsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "components <message-id>",
		Short: "List the components attached to a message",
		Example: `  interflow components --db ./interflow.db 1100000000000000001
  interflow --format json components --db ./interflow.db 1100000000000000001`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)
			ctx := commandContext(cmd)

			db, err := openStore(ctx, &opts.StoreOptions, formatter)
			if err != nil {
				return err
			}
			defer db.Close()

			states, err := db.FindComponentsByMessage(ctx, args[0])
			if err != nil {
				return formatter.Fail(ExitCommandError, ErrCodeDatabase, "failed to list components", err)
			}
			res := ComponentsResult{MessageID: args[0], Components: make([]ComponentResult, len(states))}
			for i, st := range states {
				res.Components[i] = componentResult(st)
			}
			return formatter.Success(res)
		},
	}

	addStoreFlags(cmd, &opts.StoreOptions)
	return cmd
}
