package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/interflow/internal/flow"
	"github.com/roach88/interflow/internal/flowschema"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid      bool                         `json:"valid"`
	Flows      int                          `json:"flows"`
	MaxActions int                          `json:"maxActions"`
	Errors     []flowschema.ValidationError `json:"errors,omitempty"`
}

func (r ValidationResult) String() string {
	if r.Valid {
		return fmt.Sprintf("✓ %d flow(s) valid (limit %d actions)", r.Flows, r.MaxActions)
	}
	var b strings.Builder
	b.WriteString("✗ Validation failed\n")
	for _, e := range r.Errors {
		b.WriteString("\n")
		if e.Line > 0 {
			fmt.Fprintf(&b, "line %d\n", e.Line)
		}
		fmt.Fprintf(&b, "  %s: %s: %s\n", e.Code, e.Field, e.Message)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Premium    bool
	MaxActions int
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <flows.json>",
		Short: "Validate a flow document",
		Long: `Validate a JSON array of flows against the flow schema.

Checks action shapes, duplicate flow ids, the per-flow action limit and
that every placeholder names a live variable or one set by an earlier
action. Use "-" to read from stdin.

Example:
  interflow validate flows.json
  interflow validate --premium flows.json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Premium, "premium", false, "apply the premium action limit")
	cmd.Flags().IntVar(&opts.MaxActions, "max-actions", 0, "override the action limit")

	return cmd
}

func runValidate(opts *ValidateOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	data, err := readInput(path, cmd.InOrStdin())
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("cannot read %s", path), err)
	}

	limit := actionLimit(opts.Premium)
	if opts.MaxActions > 0 {
		limit = opts.MaxActions
	}

	v, err := flowschema.New()
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "flow schema unavailable", err)
	}
	formatter.VerboseLog("validating %s with limit %d", path, limit)
	res := v.Validate(path, data, limit)

	result := ValidationResult{
		Valid:      res.Valid(),
		Flows:      len(res.Flows),
		MaxActions: limit,
		Errors:     res.Errors,
	}
	if result.Valid {
		return formatter.Success(result)
	}

	if formatter.Format == "json" {
		_ = formatter.encode(CLIResponse{
			Status: "error",
			Data:   result,
			Error:  &CLIError{Code: res.Errors[0].Code, Message: res.Errors[0].Message},
		})
	} else {
		fmt.Fprintln(formatter.Writer, result)
	}
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(res.Errors)))
}

func actionLimit(premium bool) int {
	if premium {
		return flow.DefaultPremiumMaxActions
	}
	return flow.DefaultMaxActions
}

// readInput reads path, or stdin when path is "-".
func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}
