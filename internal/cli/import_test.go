package cli

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/interflow/internal/model"
	"github.com/roach88/interflow/internal/store"
)

const buttonDoc = `{
  "id": "1234567890",
  "guildId": "9000",
  "data": {"type": 2, "style": 1, "label": "Join", "flowId": "1001"},
  "flows": [
    {"id": "1001", "actions": [
      {"type": 4, "roleId": "555"},
      {"type": 7, "content": "Welcome {user.mention}", "response": true, "ephemeral": true}
    ]}
  ]
}`

func TestImportSavesComponent(t *testing.T) {
	db := filepath.Join(t.TempDir(), "interflow.db")
	path := writeFile(t, "button.json", buttonDoc)

	out, err := execute(t, "import", "--db", db, "--created-by", "42", path)
	require.NoError(t, err)
	assert.Equal(t, "p_1234567890 (1 flow(s))\n", out)

	st, err := store.Open(context.Background(), store.DialectSQLite, db)
	require.NoError(t, err)
	defer st.Close()

	got, err := st.FindComponent(context.Background(), 1234567890)
	require.NoError(t, err)
	assert.Equal(t, "9000", got.GuildID)
	assert.Equal(t, model.KindButton, got.Data.Kind())
	require.Len(t, got.Flows, 1)
	assert.Equal(t, model.AddRole{RoleID: "555"}, got.Flows[0].Actions[0])
}

func TestImportAssignsID(t *testing.T) {
	db := filepath.Join(t.TempDir(), "interflow.db")
	path := writeFile(t, "select.json", `{
  "draft": true,
  "data": {"type": 6, "placeholder": "Pick a role"}
}`)

	out, err := execute(t, "--format", "json", "import", "--db", db, path)
	require.NoError(t, err)

	var resp struct {
		Data ImportResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.NotZero(t, resp.Data.ComponentID)
	assert.True(t, strings.HasPrefix(resp.Data.CustomID, "p_"))
	assert.Equal(t, int(model.KindRoleSelect), resp.Data.Kind)
	assert.True(t, resp.Data.Draft)
	assert.Zero(t, resp.Data.Flows)
}

func TestImportRejectsInvalidFlows(t *testing.T) {
	db := filepath.Join(t.TempDir(), "interflow.db")
	path := writeFile(t, "button.json", `{
  "id": "5",
  "data": {"type": 2, "style": 1, "label": "x", "flowId": "1"},
  "flows": [{"id": "1", "actions": [{"type": 7, "content": "{nope}"}]}]
}`)

	out, err := execute(t, "import", "--db", db, path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [E204]")
}

func TestImportRejectsBadComponent(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not json", `{`},
		{"unknown component type", `{"id": "5", "data": {"type": 4}}`},
		{"no data", `{"id": "5"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := filepath.Join(t.TempDir(), "interflow.db")
			path := writeFile(t, "component.json", tt.doc)

			out, err := execute(t, "import", "--db", db, path)
			require.Error(t, err)
			assert.Contains(t, out, "Error [E101]")
		})
	}
}

func TestImportRequiresDB(t *testing.T) {
	path := writeFile(t, "button.json", buttonDoc)
	_, err := execute(t, "import", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"db" not set`)
}
