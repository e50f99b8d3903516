// Package flowschema validates user-authored flow documents before they are
// stored. Structure is checked against an embedded CUE schema; limits,
// duplicate ids and placeholder references are checked in Go.
package flowschema

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/ast"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	cuejson "cuelang.org/go/encoding/json"

	"github.com/roach88/interflow/internal/flow"
	"github.com/roach88/interflow/internal/model"
)

//go:embed schema.cue
var schemaSource string

// Validation error codes (E200-E299)
const (
	ErrInvalidJSON       = "E200" // document is not JSON
	ErrSchema            = "E201" // document does not match the flow schema
	ErrDuplicateFlowID   = "E202" // two flows share an id
	ErrTooManyActions    = "E203" // flow exceeds the action limit
	ErrUndefinedVariable = "E204" // placeholder names no live or earlier variable
	ErrUnknownAction     = "E205" // action tag this engine does not execute
)

// ValidationError is one problem found in a flow document.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validator checks flow documents. Validate calls are serialized because a
// cue.Context is not safe for concurrent use.
type Validator struct {
	mu    sync.Mutex
	ctx   *cue.Context
	flows cue.Value
}

// New compiles the embedded schema.
func New() (*Validator, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("failed to compile flow schema: %w", err)
	}
	return &Validator{
		ctx:   ctx,
		flows: schema.LookupPath(cue.ParsePath("flows")),
	}, nil
}

// Result is the outcome of Validate. Flows is set only when Errors is empty.
type Result struct {
	Flows  []model.Flow      `json:"flows,omitempty"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// Valid reports whether no errors were found.
func (r Result) Valid() bool { return len(r.Errors) == 0 }

// Validate checks a JSON array of flows. maxActions <= 0 disables the action
// limit. All errors are collected rather than failing fast.
func (v *Validator) Validate(filename string, data []byte, maxActions int) Result {
	expr, err := cuejson.Extract(filename, data)
	if err != nil {
		return Result{Errors: []ValidationError{{Field: "document", Message: err.Error(), Code: ErrInvalidJSON}}}
	}

	if errs := v.schemaErrors(expr); len(errs) > 0 {
		return Result{Errors: errs}
	}

	var flows []model.Flow
	if err := json.Unmarshal(data, &flows); err != nil {
		return Result{Errors: []ValidationError{{Field: "document", Message: err.Error(), Code: ErrSchema}}}
	}

	errs := checkFlows(flows, maxActions)
	if len(errs) > 0 {
		return Result{Errors: errs}
	}
	return Result{Flows: flows}
}

func (v *Validator) schemaErrors(expr ast.Expr) []ValidationError {
	v.mu.Lock()
	defer v.mu.Unlock()

	doc := v.ctx.BuildExpr(expr)
	if errs := v.unknownTags(doc); len(errs) > 0 {
		return errs
	}
	if err := v.flows.Unify(doc).Validate(cue.Concrete(true)); err != nil {
		return cueErrors(err)
	}
	return nil
}

// unknownTags reports actions whose type tag is not executable. Checking
// these first gives a clearer message than a failed disjunction.
func (v *Validator) unknownTags(doc cue.Value) []ValidationError {
	var errs []ValidationError
	flows, err := doc.List()
	if err != nil {
		return nil
	}
	for fi := 0; flows.Next(); fi++ {
		actions, err := flows.Value().LookupPath(cue.ParsePath("actions")).List()
		if err != nil {
			continue
		}
		for ai := 0; actions.Next(); ai++ {
			a := actions.Value()
			tag, err := a.LookupPath(cue.ParsePath("type")).Int64()
			if err != nil {
				continue
			}
			if !knownTag(model.ActionType(tag)) {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("flows.%d.actions.%d.type", fi, ai),
					Message: fmt.Sprintf("unknown action type %d", tag),
					Code:    ErrUnknownAction,
					Line:    a.Pos().Line(),
				})
			}
		}
	}
	return errs
}

func knownTag(t model.ActionType) bool {
	switch t {
	case model.ActionDud, model.ActionWait, model.ActionSetVariable,
		model.ActionAddRole, model.ActionRemoveRole, model.ActionToggleRole,
		model.ActionSendMessage, model.ActionDeleteMessage, model.ActionStop:
		return true
	}
	return false
}

// cueErrors flattens a CUE error list into ValidationErrors.
func cueErrors(err error) []ValidationError {
	var out []ValidationError
	for _, e := range errors.Errors(err) {
		format, args := e.Msg()
		ve := ValidationError{
			Field:   strings.Join(e.Path(), "."),
			Message: fmt.Sprintf(format, args...),
			Code:    ErrSchema,
		}
		if ve.Field == "" {
			ve.Field = "document"
		}
		if positions := errors.Positions(e); len(positions) > 0 {
			ve.Line = positions[0].Line()
		}
		out = append(out, ve)
	}
	return out
}

func checkFlows(flows []model.Flow, maxActions int) []ValidationError {
	var errs []ValidationError
	seen := make(map[uint64]int, len(flows))
	for i, f := range flows {
		field := fmt.Sprintf("flows.%d", i)
		if prev, ok := seen[f.ID]; ok {
			errs = append(errs, ValidationError{
				Field:   field + ".id",
				Message: fmt.Sprintf("flow id %d already used by flows.%d", f.ID, prev),
				Code:    ErrDuplicateFlowID,
			})
		} else {
			seen[f.ID] = i
		}
		if maxActions > 0 && len(f.Actions) > maxActions {
			errs = append(errs, ValidationError{
				Field:   field + ".actions",
				Message: fmt.Sprintf("%d actions exceed the limit of %d", len(f.Actions), maxActions),
				Code:    ErrTooManyActions,
			})
		}
		errs = append(errs, checkPlaceholders(field, f.Actions)...)
	}
	return errs
}

// checkPlaceholders walks actions in order so a variable is only defined
// for actions after the SetVariable that binds it.
func checkPlaceholders(field string, actions model.Actions) []ValidationError {
	defined := make(map[string]bool, len(flow.LiveNames))
	for _, name := range flow.LiveNames {
		defined[name] = true
	}

	var errs []ValidationError
	for i, a := range actions {
		for _, name := range placeholderFields(a) {
			if defined[name] {
				continue
			}
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("%s.actions.%d", field, i),
				Message: fmt.Sprintf("variable {%s} is not defined", name),
				Code:    ErrUndefinedVariable,
			})
		}
		if sv, ok := a.(model.SetVariable); ok && flow.VariableNameValid(sv.Name) {
			defined[sv.Name] = true
		}
	}
	return errs
}

func placeholderFields(a model.Action) []string {
	var texts []string
	switch a := a.(type) {
	case model.SetVariable:
		texts = []string{a.Value}
	case model.AddRole:
		texts = []string{a.RoleID}
	case model.RemoveRole:
		texts = []string{a.RoleID}
	case model.ToggleRole:
		texts = []string{a.RoleID}
	case model.SendMessage:
		texts = []string{a.Content, a.ChannelID}
	case model.DeleteMessage:
		texts = []string{a.ChannelID, a.MessageID}
	case model.Stop:
		texts = []string{a.Message}
	}
	var names []string
	for _, t := range texts {
		names = append(names, flow.Placeholders(t)...)
	}
	return names
}
