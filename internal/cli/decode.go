package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/interflow/internal/actor"
	"github.com/roach88/interflow/internal/ephemeral"
	"github.com/roach88/interflow/internal/ids"
	"github.com/roach88/interflow/internal/router"
)

// DecodeResult describes a custom identifier and where its state lives.
type DecodeResult struct {
	Input       string   `json:"input"`
	Tier        ids.Tier `json:"tier"`
	Token       string   `json:"token,omitempty"`
	ComponentID uint64   `json:"componentId,omitempty,string"`
	RoutingID   string   `json:"routingId,omitempty"`
	Known       *bool    `json:"known,omitempty"`
	Fields      []string `json:"fields,omitempty"`

	// StateKeys lists ephemeral store keys for a t_ identifier.
	StateKeys []string `json:"stateKeys,omitempty"`
	// Address is the actor address, set for p_ identifiers when a message
	// id is given.
	Address string `json:"address,omitempty"`
}

func (r DecodeResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "tier: %s\n", r.Tier)
	switch r.Tier {
	case ids.TierEphemeral:
		fmt.Fprintf(&b, "token: %s\n", r.Token)
		for _, k := range r.StateKeys {
			fmt.Fprintf(&b, "key: %s\n", k)
		}
	case ids.TierActorBacked:
		fmt.Fprintf(&b, "component: %d\n", r.ComponentID)
		if r.Address != "" {
			fmt.Fprintf(&b, "address: %s\n", r.Address)
		}
	case ids.TierSelfContained:
		known := "unknown"
		if r.Known != nil && *r.Known {
			known = "registered"
		}
		fmt.Fprintf(&b, "routing id: %s (%s)\n", r.RoutingID, known)
		for i, f := range r.Fields {
			fmt.Fprintf(&b, "field %d: %s\n", i, f)
		}
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// DecodeOptions holds flags for the decode command.
type DecodeOptions struct {
	*RootOptions
	MessageID     string
	ComponentType int
}

// NewDecodeCommand creates the decode command.
func NewDecodeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DecodeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "decode <custom-id>",
		Short: "Decode a custom identifier",
		Long: `Decode a custom identifier and show where its state lives.

Example:
  interflow decode t_0192f0c4a1b87c3e9d5b2f6a8e4c1d07
  interflow decode p_1234567890 --message 1100000000000000001
  interflow decode a_delete-reaction-role_1100000000000000001:✨ --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDecode(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.MessageID, "message", "m", "", "message id, to derive the actor address of a p_ identifier")
	cmd.Flags().IntVar(&opts.ComponentType, "component-type", 0, "component type, to list only that ephemeral store key")

	return cmd
}

// componentTypes are the interactive component types a t_ key can carry.
var componentTypes = []int{2, 3, 5, 6, 7, 8}

func runDecode(opts *DecodeOptions, input string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	id, err := ids.Decode(input)
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeMalformedID, "identifier does not decode", err)
	}

	result := DecodeResult{
		Input:       input,
		Tier:        id.Tier,
		Token:       id.Token,
		ComponentID: id.ComponentID,
		RoutingID:   id.RoutingID,
		Fields:      id.Fields,
	}

	switch id.Tier {
	case ids.TierEphemeral:
		if opts.ComponentType != 0 {
			result.StateKeys = []string{ephemeral.ComponentKey(opts.ComponentType, input)}
		} else {
			for _, ct := range componentTypes {
				result.StateKeys = append(result.StateKeys, ephemeral.ComponentKey(ct, input))
			}
			result.StateKeys = append(result.StateKeys, ephemeral.ModalKey(input))
		}
	case ids.TierActorBacked:
		if opts.MessageID != "" {
			result.Address = actor.Address(opts.MessageID, input)
		}
	case ids.TierSelfContained:
		known := router.Known(router.RoutingID(id.RoutingID))
		result.Known = &known
	}

	formatter.VerboseLog("decoded %q as %s", input, id.Tier)
	return formatter.Success(result)
}
