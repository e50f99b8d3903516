package ephemeral

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/interflow/internal/testutil"
)

var epoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestMemory() (*Memory, *testutil.ManualClock) {
	clock := testutil.NewManualClock(epoch)
	return NewMemory().WithClock(clock.Now), clock
}

func TestMemory_ExpiresWithinTTL(t *testing.T) {
	ctx := context.Background()
	m, clock := newTestMemory()

	require.NoError(t, m.Put(ctx, "k", []byte("v"), 60*time.Second))

	clock.Advance(59 * time.Second)
	got, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	clock.Advance(time.Second)
	_, err = m.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)

	clock.Set(epoch.Add(121 * time.Second))
	_, err = m.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_PutOverwritesAndResetsTTL(t *testing.T) {
	ctx := context.Background()
	m, clock := newTestMemory()

	require.NoError(t, m.Put(ctx, "k", []byte("first"), time.Minute))
	clock.Advance(50 * time.Second)
	require.NoError(t, m.Put(ctx, "k", []byte("second"), time.Minute))
	clock.Advance(50 * time.Second)

	got, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), got)
}

// Concurrent writers race; whichever write lands last is what readers see.
func TestMemory_LastWriteWins(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMemory()

	require.NoError(t, m.Put(ctx, "wizard", []byte(`{"step":1}`), time.Minute))
	require.NoError(t, m.Put(ctx, "wizard", []byte(`{"step":2}`), time.Minute))

	got, err := m.Get(ctx, "wizard")
	require.NoError(t, err)
	assert.JSONEq(t, `{"step":2}`, string(got))
}

func TestMemory_DeleteAndMissing(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMemory()

	_, err := m.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.Put(ctx, "k", []byte("v"), time.Minute))
	require.NoError(t, m.Delete(ctx, "k"))
	require.NoError(t, m.Delete(ctx, "k"))

	_, err = m.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_ValueIsCopied(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMemory()

	v := []byte("abc")
	require.NoError(t, m.Put(ctx, "k", v, time.Minute))
	v[0] = 'x'

	got, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)
}

func TestMemory_Sweep(t *testing.T) {
	ctx := context.Background()
	m, clock := newTestMemory()

	require.NoError(t, m.Put(ctx, "short", []byte("1"), 10*time.Second))
	require.NoError(t, m.Put(ctx, "long", []byte("2"), time.Hour))
	require.NoError(t, m.Put(ctx, "default", []byte("3"), 0))

	clock.Advance(time.Minute)
	assert.Equal(t, 1, m.Sweep())
	assert.Equal(t, 2, m.Len())

	clock.Advance(DefaultTTL)
	assert.Equal(t, 1, m.Sweep())
	assert.Equal(t, 1, m.Len())
}

func TestMemory_StartSweeperRejectsInvalidCron(t *testing.T) {
	m, _ := newTestMemory()
	err := m.StartSweeper(context.Background(), "not a cron")
	assert.Error(t, err)
}

func TestMemory_StartSweeperStopsOnCancel(t *testing.T) {
	m, _ := newTestMemory()
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, m.StartSweeper(ctx, ""))
	cancel()
}

func TestRecordHelpers(t *testing.T) {
	ctx := context.Background()
	m, clock := newTestMemory()
	key := ComponentKey(2, "t_abc")
	assert.Equal(t, "component-2-t_abc", key)
	assert.Equal(t, "modal-submit-t_abc", ModalKey("t_abc"))

	rec := Record{
		RoutingID:      "add-component-flow_options",
		Once:           true,
		TimeoutSeconds: 30,
		State:          []byte(`{"step":2}`),
	}
	require.NoError(t, PutRecord(ctx, m, key, rec))

	raw, err := m.Get(ctx, key)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"componentRoutingId": "add-component-flow_options",
		"componentOnce": true,
		"componentTimeout": 30,
		"state": {"step": 2}
	}`, string(raw))

	got, err := GetRecord(ctx, m, key)
	require.NoError(t, err)
	assert.Equal(t, rec.RoutingID, got.RoutingID)
	assert.True(t, got.Once)
	assert.JSONEq(t, `{"step":2}`, string(got.State))

	clock.Advance(31 * time.Second)
	_, err = GetRecord(ctx, m, key)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecordTTL(t *testing.T) {
	assert.Equal(t, DefaultTTL, Record{}.TTL())
	assert.Equal(t, 90*time.Second, Record{TimeoutSeconds: 90}.TTL())
}

func TestGetRecordRejectsGarbage(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMemory()
	require.NoError(t, m.Put(ctx, "k", []byte("{not json"), time.Minute))

	_, err := GetRecord(ctx, m, "k")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}
