package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/interflow/internal/actor"
	"github.com/roach88/interflow/internal/ids"
)

// AddressResult is the actor address of a component on a message.
type AddressResult struct {
	MessageID   string `json:"messageId"`
	CustomID    string `json:"customId"`
	ComponentID uint64 `json:"componentId,string"`
	Address     string `json:"address"`
}

func (r AddressResult) String() string { return r.Address }

// NewAddressCommand creates the address command.
func NewAddressCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "address <message-id> <custom-id>",
		Short: "Derive the actor address of a component",
		Long: `Print the actor address for an actor-backed (p_) component on a message,
as used by the actor host's /actors/{address} endpoints.

Example:
  interflow address 1100000000000000001 p_1234567890`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAddress(rootOpts, args[0], args[1], cmd)
		},
	}
	return cmd
}

func runAddress(opts *RootOptions, messageID, customID string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	if messageID == "" {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "message id is empty", nil)
	}
	id, err := ids.Decode(customID)
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeMalformedID, "identifier does not decode", err)
	}
	if id.Tier != ids.TierActorBacked {
		return formatter.Fail(ExitFailure, ErrCodeMalformedID,
			fmt.Sprintf("%s identifiers have no actor", id.Tier), nil)
	}

	return formatter.Success(AddressResult{
		MessageID:   messageID,
		CustomID:    customID,
		ComponentID: id.ComponentID,
		Address:     actor.Address(messageID, customID),
	})
}
