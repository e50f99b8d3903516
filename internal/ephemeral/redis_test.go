package ephemeral

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Requires a reachable Redis; set INTERFLOW_TEST_REDIS_ADDR to run.
func newTestRedis(t *testing.T) *Redis {
	t.Helper()
	addr := os.Getenv("INTERFLOW_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("INTERFLOW_TEST_REDIS_ADDR not set")
	}

	r, err := NewRedis(context.Background(), RedisOptions{
		Addr:      addr,
		KeyPrefix: "interflow-test:" + uuid.NewString() + ":",
	})
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestRedis_PutGetDelete(t *testing.T) {
	ctx := context.Background()
	r := newTestRedis(t)

	_, err := r.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, r.Put(ctx, "k", []byte("v1"), time.Minute))
	require.NoError(t, r.Put(ctx, "k", []byte("v2"), time.Minute))

	got, err := r.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)

	require.NoError(t, r.Delete(ctx, "k"))
	_, err = r.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedis_Expires(t *testing.T) {
	ctx := context.Background()
	r := newTestRedis(t)

	require.NoError(t, r.Put(ctx, "k", []byte("v"), time.Second))
	assert.Eventually(t, func() bool {
		_, err := r.Get(ctx, "k")
		return err == ErrNotFound
	}, 3*time.Second, 100*time.Millisecond)
}
