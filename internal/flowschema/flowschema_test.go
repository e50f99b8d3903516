package flowschema

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/interflow/internal/model"
)

func newValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := New()
	require.NoError(t, err)
	return v
}

func codes(errs []ValidationError) []string {
	var out []string
	for _, e := range errs {
		out = append(out, e.Code)
	}
	return out
}

func TestValidateAcceptsFlows(t *testing.T) {
	doc := `[
  {
    "id": "1001",
    "name": "welcome",
    "actions": [
      {"type": 3, "name": "who", "value": "{member.display_name}"},
      {"type": 6, "roleId": "555"},
      {"type": 7, "content": "hello {who}", "response": true, "ephemeral": true},
      {"type": 1, "seconds": 3},
      {"type": 11}
    ]
  }
]`
	res := newValidator(t).Validate("flows.json", []byte(doc), 5)

	require.True(t, res.Valid(), "%v", res.Errors)
	require.Len(t, res.Flows, 1)
	assert.Equal(t, uint64(1001), res.Flows[0].ID)
	assert.Equal(t, model.ToggleRole{RoleID: "555"}, res.Flows[0].Actions[1])
}

func TestValidateInvalidJSON(t *testing.T) {
	res := newValidator(t).Validate("flows.json", []byte(`[{"id": `), 5)
	assert.Equal(t, []string{ErrInvalidJSON}, codes(res.Errors))
}

func TestValidateUnknownActionTag(t *testing.T) {
	doc := `[{"id": "1", "actions": [{"type": 4, "roleId": "1"}, {"type": 8}]}]`
	res := newValidator(t).Validate("flows.json", []byte(doc), 5)

	require.Len(t, res.Errors, 1)
	assert.Equal(t, ErrUnknownAction, res.Errors[0].Code)
	assert.Equal(t, "flows.0.actions.1.type", res.Errors[0].Field)
	assert.Empty(t, res.Flows)
}

func TestValidateSchemaErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{name: "missing id", doc: `[{"actions": []}]`},
		{name: "zero id", doc: `[{"id": "0", "actions": []}]`},
		{name: "numeric id", doc: `[{"id": 12, "actions": []}]`},
		{name: "unknown field", doc: `[{"id": "1", "actions": [{"type": 0, "extra": true}]}]`},
		{name: "empty role", doc: `[{"id": "1", "actions": [{"type": 4, "roleId": ""}]}]`},
		{name: "dotted variable", doc: `[{"id": "1", "actions": [{"type": 3, "name": "user.id", "value": "x"}]}]`},
		{name: "negative wait", doc: `[{"id": "1", "actions": [{"type": 1, "seconds": -1}]}]`},
		{name: "empty message", doc: `[{"id": "1", "actions": [{"type": 7, "content": ""}]}]`},
		{name: "not a list", doc: `{"id": "1", "actions": []}`},
	}
	v := newValidator(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := v.Validate("flows.json", []byte(tt.doc), 5)
			require.False(t, res.Valid())
			assert.Contains(t, codes(res.Errors), ErrSchema)
			assert.Empty(t, res.Flows)
		})
	}
}

func TestValidateActionLimit(t *testing.T) {
	doc := `[{"id": "1", "actions": [{"type": 0}, {"type": 0}, {"type": 0}]}]`
	v := newValidator(t)

	res := v.Validate("flows.json", []byte(doc), 2)
	assert.Equal(t, []string{ErrTooManyActions}, codes(res.Errors))

	assert.True(t, v.Validate("flows.json", []byte(doc), 3).Valid())
	assert.True(t, v.Validate("flows.json", []byte(doc), 0).Valid())
}

func TestValidateDuplicateIDs(t *testing.T) {
	doc := `[{"id": "7", "actions": []}, {"id": "7", "actions": []}]`
	res := newValidator(t).Validate("flows.json", []byte(doc), 5)

	require.Equal(t, []string{ErrDuplicateFlowID}, codes(res.Errors))
	assert.Equal(t, "flows.1.id", res.Errors[0].Field)
}

func TestValidateUndefinedVariables(t *testing.T) {
	doc := `[{"id": "1", "actions": [
  {"type": 7, "content": "{later}"},
  {"type": 3, "name": "later", "value": "x"},
  {"type": 7, "content": "{later} {user.mention}"},
  {"type": 10, "channelId": "{nowhere}"}
]}]`
	res := newValidator(t).Validate("flows.json", []byte(doc), 5)

	require.Equal(t, []string{ErrUndefinedVariable, ErrUndefinedVariable}, codes(res.Errors))
	assert.Equal(t, "flows.0.actions.0", res.Errors[0].Field)
	assert.Equal(t, "flows.0.actions.3", res.Errors[1].Field)
}

func TestValidationErrorString(t *testing.T) {
	e := ValidationError{Field: "flows.0", Message: "bad", Code: ErrSchema, Line: 3}
	assert.Equal(t, "[E201] line 3: flows.0: bad", e.Error())
	e.Line = 0
	assert.Equal(t, "[E201] flows.0: bad", e.Error())
}

func TestValidateConcurrentCallers(t *testing.T) {
	v := newValidator(t)
	good := []byte(`[{"id": "1", "actions": [{"type": 6, "roleId": "555"}]}]`)
	bad := []byte(`[{"id": "1", "actions": [{"type": 9}]}]`)

	var wg sync.WaitGroup
	results := make([]Result, 32)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			doc := good
			if i%2 == 1 {
				doc = bad
			}
			results[i] = v.Validate("flows.json", doc, 5)
		}()
	}
	wg.Wait()

	for i, res := range results {
		assert.Equal(t, i%2 == 0, res.Valid(), "caller %d: %v", i, res.Errors)
	}
}
