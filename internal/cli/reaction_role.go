package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/interflow/internal/config"
	"github.com/roach88/interflow/internal/handlers"
	"github.com/roach88/interflow/internal/ids"
	"github.com/roach88/interflow/internal/platform"
)

// newPlatform builds the chat platform client. Tests swap it for a recorder.
var newPlatform = func(dc config.DiscordConfig) (platform.Client, error) {
	return platform.NewDiscord(dc.Token, dc.RequestsPerS, dc.Burst)
}

// ReactionRoleResult reports a posted setup message.
type ReactionRoleResult struct {
	ChannelID string `json:"channelId"`
	MessageID string `json:"messageId"`
}

func (r ReactionRoleResult) String() string {
	return fmt.Sprintf("posted setup message %s in channel %s", r.MessageID, r.ChannelID)
}

// ReactionRoleOptions holds flags for the reaction-role command.
type ReactionRoleOptions struct {
	*RootOptions
	ConfigPath string
}

// NewReactionRoleCommand creates the reaction-role command.
func NewReactionRoleCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReactionRoleOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "reaction-role <channel-id> <message-id> <reaction>",
		Short: "Post a button that starts the reaction role wizard",
		Long: `Post a message with a "Choose role" button into a channel. Pressing it
opens the wizard that binds the reaction on the target message to a role.
The button carries its state in an a_ identifier, so it works without any
stored record. Custom emoji written as name:id are not accepted.

Example:
  interflow reaction-role --config interflow.yaml 42 1100000000000000001 ✨`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)

			cfg, err := config.Load(opts.ConfigPath)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load config", err)
			}
			if cfg.Discord.Token == "" {
				return formatter.Fail(ExitCommandError, ErrCodeGeneric, "discord.token is required to post messages", nil)
			}
			p, err := newPlatform(cfg.Discord)
			if err != nil {
				return formatter.Fail(ExitCommandError, ErrCodeGeneric, "failed to create platform client", err)
			}

			posted, err := handlers.PostReactionRoleSetup(commandContext(cmd), p, args[0], args[1], args[2])
			switch {
			case errors.Is(err, ids.ErrMalformedIdentifier):
				return formatter.Fail(ExitFailure, ErrCodeMalformedID, "message id or reaction cannot be encoded", err)
			case err != nil:
				return formatter.Fail(ExitFailure, ErrCodeGeneric, "failed to post setup message", err)
			}
			return formatter.Success(ReactionRoleResult{ChannelID: args[0], MessageID: posted})
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to YAML config file")

	return cmd
}
