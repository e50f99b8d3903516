// Package cli implements the interflow command tree.
package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
)

// RootOptions carries the persistent flags shared by every subcommand.
type RootOptions struct {
	Verbose bool
	Format  string
}

// ValidFormats lists the accepted --format values.
var ValidFormats = []string{"text", "json"}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "interflow",
		Short: "Route chat component interactions to their flows",
		Long: `Interflow receives interaction callbacks for buttons, selects and modals,
resolves each custom identifier to its state and runs the attached flows.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log diagnostics and error details")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "result format: text or json")

	cmd.AddCommand(
		NewServeCommand(opts),
		NewDecodeCommand(opts),
		NewValidateCommand(opts),
		NewImportCommand(opts),
		NewAttachCommand(opts),
		NewPublishCommand(opts),
		NewComponentsCommand(opts),
		NewAddressCommand(opts),
		NewReactionRoleCommand(opts),
	)

	return cmd
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}
