package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/interflow/internal/model"
)

// createTestStore opens a fresh SQLite store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(context.Background(), DialectSQLite, path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	s.WithClock(func() time.Time { return time.UnixMilli(1700000000000) })
	t.Cleanup(func() { s.Close() })
	return s
}

func buttonComponent(id uint64, flowID uint64) *model.ComponentState {
	return &model.ComponentState{
		ID:        id,
		GuildID:   "g1",
		ChannelID: "c1",
		MessageID: "m1",
		Draft:     false,
		Data:      model.ComponentData{Component: model.Button{Style: 1, Label: "Roles", FlowID: flowID}},
		Flows: []model.Flow{{
			ID:   flowID,
			Name: "toggle",
			Actions: model.Actions{
				model.ToggleRole{RoleID: "r1"},
				model.SendMessage{Content: "Toggled for {user.mention}", Response: true, Ephemeral: true},
				model.Stop{},
			},
		}},
	}
}

func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t)

	require.NoError(t, s.verifyPragma("journal_mode", "wal"))
	require.NoError(t, s.verifyPragma("synchronous", "1"))
	require.NoError(t, s.verifyPragma("busy_timeout", "5000"))
	require.NoError(t, s.verifyPragma("foreign_keys", "1"))
	require.NoError(t, s.verifyPragma("user_version", "1"))
}

func TestOpen_Idempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")

	s1, err := Open(ctx, DialectSQLite, path)
	require.NoError(t, err)
	require.NoError(t, s1.SaveComponent(ctx, buttonComponent(1, 10), "u1"))
	require.NoError(t, s1.Close())

	s2, err := Open(ctx, DialectSQLite, path)
	require.NoError(t, err)
	defer s2.Close()

	got, err := s2.FindComponent(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), got.ID)
}

func TestSaveAndFindComponent(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	want := buttonComponent(1234567890123456789, 42)
	require.NoError(t, s.SaveComponent(ctx, want, "creator"))

	got, err := s.FindComponent(ctx, want.ID)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSaveComponent_ReplacesFlows(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	st := buttonComponent(1, 10)
	require.NoError(t, s.SaveComponent(ctx, st, "u"))

	st.Data = model.ComponentData{Component: model.StringSelect{Options: []model.SelectOption{
		{Label: "A", Value: "a", FlowID: 20},
		{Label: "B", Value: "b", FlowID: 30},
	}}}
	st.Flows = []model.Flow{
		{ID: 30, Actions: model.Actions{model.AddRole{RoleID: "r3"}}},
		{ID: 20, Actions: model.Actions{}},
	}
	require.NoError(t, s.SaveComponent(ctx, st, "u"))

	got, err := s.FindComponent(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, model.KindStringSelect, got.Data.Kind())
	require.Len(t, got.Flows, 2)
	assert.Equal(t, uint64(20), got.Flows[0].ID)
	assert.Empty(t, got.Flows[0].Actions)
	assert.Equal(t, uint64(30), got.Flows[1].ID)
	assert.Equal(t, model.Actions{model.AddRole{RoleID: "r3"}}, got.Flows[1].Actions)
}

func TestSaveComponent_Rejects(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	assert.Error(t, s.SaveComponent(ctx, &model.ComponentState{}, ""))
	assert.Error(t, s.SaveComponent(ctx, &model.ComponentState{ID: 1}, ""))
}

func TestFindComponent_NotFound(t *testing.T) {
	s := createTestStore(t)
	_, err := s.FindComponent(context.Background(), 404)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFindComponentsByMessage(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	require.NoError(t, s.SaveComponent(ctx, buttonComponent(2, 20), ""))
	require.NoError(t, s.SaveComponent(ctx, buttonComponent(1, 10), ""))
	other := buttonComponent(3, 30)
	other.MessageID = "m2"
	require.NoError(t, s.SaveComponent(ctx, other, ""))

	got, err := s.FindComponentsByMessage(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(1), got[0].ID)
	assert.Equal(t, uint64(2), got[1].ID)
	assert.Len(t, got[1].Flows, 1)

	none, err := s.FindComponentsByMessage(ctx, "nothing")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestSetDraftAndAttach(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	st := buttonComponent(1, 10)
	st.Draft = true
	st.MessageID = ""
	require.NoError(t, s.SaveComponent(ctx, st, ""))

	require.NoError(t, s.AttachToMessage(ctx, 1, "g9", "c9", "m9"))
	got, err := s.FindComponent(ctx, 1)
	require.NoError(t, err)
	assert.False(t, got.Draft)
	assert.Equal(t, "m9", got.MessageID)

	require.NoError(t, s.SetDraft(ctx, 1, true))
	got, err = s.FindComponent(ctx, 1)
	require.NoError(t, err)
	assert.True(t, got.Draft)

	assert.ErrorIs(t, s.SetDraft(ctx, 2, true), ErrNotFound)
	assert.ErrorIs(t, s.AttachToMessage(ctx, 2, "", "", "m"), ErrNotFound)
}

func TestReactionRoles(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	rr := ReactionRole{MessageID: "123456789012345679", Reaction: "✨", RoleID: "r1"}
	require.NoError(t, s.PutReactionRole(ctx, rr))
	rr.RoleID = "r2"
	require.NoError(t, s.PutReactionRole(ctx, rr))

	got, err := s.GetReactionRole(ctx, rr.MessageID, "✨")
	require.NoError(t, err)
	assert.Equal(t, rr, got)

	require.NoError(t, s.DeleteReactionRole(ctx, rr.MessageID, "✨"))
	assert.ErrorIs(t, s.DeleteReactionRole(ctx, rr.MessageID, "✨"), ErrNotFound)

	_, err = s.GetReactionRole(ctx, rr.MessageID, "✨")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestParseDialect(t *testing.T) {
	d, err := ParseDialect("postgres")
	require.NoError(t, err)
	assert.Equal(t, DialectPostgres, d)
	assert.Equal(t, "postgres", d.DriverName())

	d, err = ParseDialect("")
	require.NoError(t, err)
	assert.Equal(t, DialectSQLite, d)
	assert.Equal(t, "sqlite3", d.DriverName())

	_, err = ParseDialect("mysql")
	assert.Error(t, err)
}

func TestRebind(t *testing.T) {
	pg := &Store{dialect: DialectPostgres}
	assert.Equal(t, "a = $1 AND b = $2", pg.rebind("a = ? AND b = ?"))

	lite := &Store{dialect: DialectSQLite}
	assert.Equal(t, "a = ? AND b = ?", lite.rebind("a = ? AND b = ?"))
}
