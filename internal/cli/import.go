package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/interflow/internal/flowschema"
	"github.com/roach88/interflow/internal/ids"
	"github.com/roach88/interflow/internal/model"
)

// ImportResult reports a saved component.
type ImportResult struct {
	ComponentID uint64 `json:"componentId,string"`
	CustomID    string `json:"customId"`
	Kind        int    `json:"kind"`
	Flows       int    `json:"flows"`
	Draft       bool   `json:"draft"`
	Refreshed   string `json:"refreshed,omitempty"`
}

func (r ImportResult) String() string {
	s := fmt.Sprintf("%s (%d flow(s))", r.CustomID, r.Flows)
	if r.Draft {
		s += " [draft]"
	}
	if r.Refreshed != "" {
		s += "\nrefreshed actor " + r.Refreshed
	}
	return s
}

// componentFile is the import document: a component state whose flows are
// kept raw so they go through the flow schema first.
type componentFile struct {
	model.ComponentState
	Flows json.RawMessage `json:"flows"`
}

// ImportOptions holds flags for the import command.
type ImportOptions struct {
	*RootOptions
	StoreOptions
	CreatedBy string
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import <component.json>",
		Short: "Save a component and its flows",
		Long: `Validate a component document and save it with its flows to the
relational store. A component without an id is assigned a new snowflake.
Prints the p_ custom identifier to attach to the message.

Example:
  interflow import --db ./interflow.db button.json
  interflow import --driver postgres --db "postgres://localhost/interflow" select.json
  interflow import --db ./interflow.db --actors http://127.0.0.1:8081 edited.json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(opts, args[0], cmd)
		},
	}

	addStoreFlags(cmd, &opts.StoreOptions)
	cmd.Flags().StringVar(&opts.CreatedBy, "created-by", "", "user id recorded as creator")

	return cmd
}

func runImport(opts *ImportOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	data, err := readInput(path, cmd.InOrStdin())
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("cannot read %s", path), err)
	}

	var doc componentFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return formatter.Fail(ExitFailure, ErrCodeComponent, "component does not decode", err)
	}
	if doc.Data.Component == nil {
		return formatter.Fail(ExitFailure, ErrCodeComponent, "component has no data", nil)
	}

	st := doc.ComponentState
	if len(doc.Flows) > 0 {
		v, err := flowschema.New()
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeGeneric, "flow schema unavailable", err)
		}
		res := v.Validate(path+"#flows", doc.Flows, actionLimit(st.Premium))
		if !res.Valid() {
			first := res.Errors[0]
			return formatter.Fail(ExitFailure, first.Code, first.Error(), nil)
		}
		st.Flows = res.Flows
	}

	if st.ID == 0 {
		st.ID = ids.NewSnowflakes(0, 0).Next()
		formatter.VerboseLog("assigned component id %d", st.ID)
	}

	ctx := commandContext(cmd)
	db, err := openStore(ctx, &opts.StoreOptions, formatter)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.SaveComponent(ctx, &st, opts.CreatedBy); err != nil {
		return formatter.Fail(ExitFailure, ErrCodeDatabase, "failed to save component", err)
	}

	address, err := refreshActor(ctx, opts.ActorsURL, &st)
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeActor, "saved, but the actor host did not refresh", err)
	}

	return formatter.Success(ImportResult{
		ComponentID: st.ID,
		CustomID:    ids.ActorBacked(st.ID).String(),
		Kind:        int(st.Data.Kind()),
		Flows:       len(st.Flows),
		Draft:       st.Draft,
		Refreshed:   address,
	})
}
