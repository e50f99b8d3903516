package cli

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/interflow/internal/actor"
	"github.com/roach88/interflow/internal/model"
	"github.com/roach88/interflow/internal/store"
)

const draftButtonDoc = `{
  "id": "1234567890",
  "draft": true,
  "data": {"type": 2, "style": 1, "label": "Join", "flowId": "1001"},
  "flows": [{"id": "1001", "actions": [{"type": 4, "roleId": "555"}]}]
}`

func openTestStore(t *testing.T, path string) *store.Store {
	t.Helper()
	st, err := store.Open(context.Background(), store.DialectSQLite, path)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

// actorHost serves an in-process registry backed by st, the way serve
// exposes it on the actor listener.
func actorHost(t *testing.T, st *store.Store) (*actor.Registry, string) {
	t.Helper()
	reg := actor.NewRegistry(actor.NewMemoryStorage(), st)
	t.Cleanup(func() { reg.Close(context.Background()) })

	m := mux.NewRouter()
	actor.NewHandler(reg).Register(m)
	srv := httptest.NewServer(m)
	t.Cleanup(srv.Close)
	return reg, srv.URL
}

func TestAttachRefreshesActor(t *testing.T) {
	ctx := context.Background()
	db := filepath.Join(t.TempDir(), "interflow.db")
	_, err := execute(t, "import", "--db", db, writeFile(t, "draft.json", draftButtonDoc))
	require.NoError(t, err)

	reg, url := actorHost(t, openTestStore(t, db))
	addr := actor.Address("m1", "p_1234567890")
	held, err := reg.Load(ctx, addr, 1234567890, "m1")
	require.NoError(t, err)
	require.True(t, held.Draft)

	out, err := execute(t, "attach", "--db", db, "--actors", url, "--guild", "9000", "--channel", "42",
		"p_1234567890", "m1")
	require.NoError(t, err)
	assert.Equal(t, "p_1234567890 kind=2 flows=1 message=m1\nrefreshed actor "+addr+"\n", out)

	got, err := reg.Get(ctx, addr)
	require.NoError(t, err)
	assert.False(t, got.Draft)
	assert.Equal(t, "m1", got.MessageID)
	assert.Equal(t, "42", got.ChannelID)
}

func TestAttachUnknownComponent(t *testing.T) {
	db := filepath.Join(t.TempDir(), "interflow.db")
	openTestStore(t, db)

	_, err := execute(t, "attach", "--db", db, "99", "m1")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeDatabase)
}

func TestAttachRejectsMalformedID(t *testing.T) {
	db := filepath.Join(t.TempDir(), "interflow.db")
	for _, arg := range []string{"p_", "abc", "0"} {
		_, err := execute(t, "attach", "--db", db, arg, "m1")
		require.Error(t, err, arg)
		assert.Equal(t, ExitFailure, GetExitCode(err), arg)
		assert.Contains(t, err.Error(), ErrCodeMalformedID, arg)
	}
}

func TestAttachKeepsWriteWhenActorHostIsDown(t *testing.T) {
	ctx := context.Background()
	db := filepath.Join(t.TempDir(), "interflow.db")
	_, err := execute(t, "import", "--db", db, writeFile(t, "draft.json", draftButtonDoc))
	require.NoError(t, err)

	srv := httptest.NewServer(mux.NewRouter())
	srv.Close()

	_, err = execute(t, "attach", "--db", db, "--actors", srv.URL, "1234567890", "m1")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeActor)

	got, err := openTestStore(t, db).FindComponent(ctx, 1234567890)
	require.NoError(t, err)
	assert.Equal(t, "m1", got.MessageID)
	assert.False(t, got.Draft)
}

func TestPublishTogglesDraft(t *testing.T) {
	ctx := context.Background()
	db := filepath.Join(t.TempDir(), "interflow.db")
	_, err := execute(t, "import", "--db", db, writeFile(t, "button.json", buttonDoc))
	require.NoError(t, err)
	_, err = execute(t, "attach", "--db", db, "1234567890", "m1")
	require.NoError(t, err)

	reg, url := actorHost(t, openTestStore(t, db))
	addr := actor.Address("m1", "p_1234567890")
	_, err = reg.Load(ctx, addr, 1234567890, "m1")
	require.NoError(t, err)

	out, err := execute(t, "publish", "--db", db, "--draft", "--actors", url, "p_1234567890")
	require.NoError(t, err)
	assert.Contains(t, out, "[draft]")

	got, err := reg.Get(ctx, addr)
	require.NoError(t, err)
	assert.True(t, got.Draft, "actor no longer runs flows")

	out, err = execute(t, "publish", "--db", db, "--actors", url, "p_1234567890")
	require.NoError(t, err)
	assert.NotContains(t, out, "[draft]")

	got, err = reg.Get(ctx, addr)
	require.NoError(t, err)
	assert.False(t, got.Draft)
}

func TestPublishSkipsRefreshForUnattachedComponent(t *testing.T) {
	db := filepath.Join(t.TempDir(), "interflow.db")
	_, err := execute(t, "import", "--db", db, writeFile(t, "draft.json", draftButtonDoc))
	require.NoError(t, err)

	// Nothing listens here; an unattached component has no actor to refresh.
	out, err := execute(t, "publish", "--db", db, "--actors", "http://127.0.0.1:1", "1234567890")
	require.NoError(t, err)
	assert.Equal(t, "p_1234567890 kind=2 flows=1\n", out)
}

func TestComponentsListsMessage(t *testing.T) {
	db := filepath.Join(t.TempDir(), "interflow.db")
	_, err := execute(t, "import", "--db", db, writeFile(t, "button.json", buttonDoc))
	require.NoError(t, err)
	_, err = execute(t, "import", "--db", db, writeFile(t, "select.json", `{
  "id": "1234567891",
  "draft": true,
  "data": {"type": 6, "placeholder": "Pick a role"}
}`))
	require.NoError(t, err)

	for _, id := range []string{"1234567890", "1234567891"} {
		_, err = execute(t, "attach", "--db", db, id, "m1")
		require.NoError(t, err)
	}
	_, err = execute(t, "publish", "--db", db, "--draft", "1234567891")
	require.NoError(t, err)

	out, err := execute(t, "components", "--db", db, "m1")
	require.NoError(t, err)
	assert.Equal(t, "p_1234567890 kind=2 flows=1 message=m1\n"+
		"p_1234567891 kind=6 flows=0 message=m1 [draft]\n", out)

	out, err = execute(t, "components", "--db", db, "m2")
	require.NoError(t, err)
	assert.Equal(t, "no components on message m2\n", out)
}

func TestImportRefreshesAttachedComponent(t *testing.T) {
	ctx := context.Background()
	db := filepath.Join(t.TempDir(), "interflow.db")
	_, err := execute(t, "import", "--db", db, writeFile(t, "button.json", buttonDoc))
	require.NoError(t, err)
	_, err = execute(t, "attach", "--db", db, "1234567890", "m1")
	require.NoError(t, err)

	reg, url := actorHost(t, openTestStore(t, db))
	addr := actor.Address("m1", "p_1234567890")
	_, err = reg.Load(ctx, addr, 1234567890, "m1")
	require.NoError(t, err)

	edited := writeFile(t, "edited.json", `{
  "id": "1234567890",
  "messageId": "m1",
  "data": {"type": 2, "style": 1, "label": "Join", "flowId": "1001"},
  "flows": [{"id": "1001", "actions": [{"type": 4, "roleId": "777"}]}]
}`)
	out, err := execute(t, "import", "--db", db, "--actors", url, edited)
	require.NoError(t, err)
	assert.Contains(t, out, "refreshed actor "+addr)

	got, err := reg.Get(ctx, addr)
	require.NoError(t, err)
	require.Len(t, got.Flows, 1)
	assert.Equal(t, model.AddRole{RoleID: "777"}, got.Flows[0].Actions[0])
}
