package redis

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"

	"github.com/ytrtdfkgf/merkle-worldstate/kv"
)

// Redis has no MVCC snapshot, so it cannot satisfy dbtest's isolation
// case; exercise the rest of the kv.Environment contract directly.
func TestRedisEnvironment(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	env := NewFromClient(client)
	t.Cleanup(func() { env.Close() })

	require.NoError(t, env.Update(func(b kv.Batch) error {
		b.Put("tree-a", []byte("key"), []byte("value"))
		b.Put("tree-b", []byte("key"), []byte("other"))
		return nil
	}))

	snap, err := env.Snapshot()
	require.NoError(t, err)
	defer snap.Release()

	got, ok, err := snap.Get("tree-a", []byte("key"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("value"), got)

	other, ok, err := snap.Get("tree-b", []byte("key"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("other"), other)

	require.NoError(t, env.Update(func(b kv.Batch) error {
		b.Delete("tree-a", []byte("key"))
		return nil
	}))

	_, ok, err = snap.Get("tree-a", []byte("key"))
	require.NoError(t, err)
	require.False(t, ok)
}
