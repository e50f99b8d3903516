package store

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/interflow/internal/model"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db, DialectPostgres), mock
}

var componentCols = []string{"id", "guild_id", "channel_id", "message_id", "type", "data", "draft", "premium"}

func TestPostgres_FindComponent(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE id = $1")).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows(componentCols).
			AddRow(int64(42), "g1", "c1", "m1", 2, `{"type":2,"style":1,"flowId":"7"}`, false, true))

	mock.ExpectQuery(regexp.QuoteMeta("WHERE cf.component_id = $1")).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "position", "data"}).
			AddRow(int64(7), "greet", int64(0), `{"type":7,"content":"hi"}`).
			AddRow(int64(7), "greet", int64(1), `{"type":11}`).
			AddRow(int64(8), nil, nil, nil))

	got, err := s.FindComponent(context.Background(), 42)
	require.NoError(t, err)

	assert.Equal(t, &model.ComponentState{
		ID:        42,
		GuildID:   "g1",
		ChannelID: "c1",
		MessageID: "m1",
		Premium:   true,
		Data:      model.ComponentData{Component: model.Button{Style: 1, FlowID: 7}},
		Flows: []model.Flow{
			{ID: 7, Name: "greet", Actions: model.Actions{model.SendMessage{Content: "hi"}, model.Stop{}}},
			{ID: 8, Actions: model.Actions{}},
		},
	}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_FindComponentNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE id = $1")).
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows(componentCols))

	_, err := s.FindComponent(context.Background(), 99)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_FindComponentRejectsUnknownAction(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE id = $1")).
		WillReturnRows(sqlmock.NewRows(componentCols).
			AddRow(int64(1), nil, nil, "m1", 2, `{"type":2,"style":1,"flowId":"7"}`, false, false))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE cf.component_id = $1")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "position", "data"}).
			AddRow(int64(7), nil, int64(0), `{"type":9,"name":"thread"}`))

	_, err := s.FindComponent(context.Background(), 1)
	assert.ErrorIs(t, err, model.ErrUnknownTag)
}

func TestPostgres_SaveComponent(t *testing.T) {
	s, mock := newMockStore(t)
	st := &model.ComponentState{
		ID:        5,
		MessageID: "m1",
		Draft:     true,
		Data:      model.ComponentData{Component: model.Button{Style: 1, FlowID: 6}},
		Flows:     []model.Flow{{ID: 6, Actions: model.Actions{model.AddRole{RoleID: "r"}}}},
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO components")).
		WithArgs(int64(5), nil, nil, "m1", "u1", 2, sqlmock.AnyArg(), true, false, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM components_to_flows WHERE component_id = $1")).
		WithArgs(int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO flows (id, name) VALUES ($1, $2)")).
		WithArgs(int64(6), nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM flow_actions WHERE flow_id = $1")).
		WithArgs(int64(6)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO flow_actions (flow_id, position, type, data) VALUES ($1, $2, $3, $4)")).
		WithArgs(int64(6), 0, 4, `{"roleId":"r","type":4}`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO components_to_flows (component_id, flow_id) VALUES ($1, $2)")).
		WithArgs(int64(5), int64(6)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.SaveComponent(context.Background(), st, "u1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SaveComponentRollsBack(t *testing.T) {
	s, mock := newMockStore(t)
	st := &model.ComponentState{
		ID:   5,
		Data: model.ComponentData{Component: model.Button{Style: 1}},
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO components")).
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err := s.SaveComponent(context.Background(), st, "")
	assert.ErrorIs(t, err, assert.AnError)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SetDraft(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE components SET draft = $1, updated_at = $2 WHERE id = $3")).
		WithArgs(false, sqlmock.AnyArg(), int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE components SET draft = $1")).
		WithArgs(true, sqlmock.AnyArg(), int64(43)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ctx := context.Background()
	require.NoError(t, s.SetDraft(ctx, 42, false))
	assert.ErrorIs(t, s.SetDraft(ctx, 43, true), ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_DeleteReactionRole(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM reaction_roles WHERE message_id = $1 AND reaction = $2")).
		WithArgs("123456789012345679", "✨").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.DeleteReactionRole(context.Background(), "123456789012345679", "✨"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
