package leveldb

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ytrtdfkgf/merkle-worldstate/kv"
	"github.com/ytrtdfkgf/merkle-worldstate/kv/dbtest"
)

func TestLevelDBEnvironment(t *testing.T) {
	dbtest.TestEnvironmentSuite(t, func() kv.Environment {
		dir, err := os.MkdirTemp("", "worldstate-leveldb-*")
		require.NoError(t, err)
		t.Cleanup(func() { os.RemoveAll(dir) })

		env, err := Open(dir, Options{MapSizeKB: 1 << 20})
		require.NoError(t, err)
		t.Cleanup(func() { env.Close() })
		return env
	})
}

func TestLevelDBEnvironmentMapFull(t *testing.T) {
	dir, err := os.MkdirTemp("", "worldstate-leveldb-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	env, err := Open(dir, Options{MapSizeKB: 1})
	require.NoError(t, err)
	t.Cleanup(func() { env.Close() })

	big := make([]byte, 4096)
	err = env.Update(func(b kv.Batch) error {
		b.Put("tree-a", []byte("key"), big)
		return nil
	})
	require.ErrorIs(t, err, kv.ErrMapFull)
}
