// Copyright 2022 bnb-chain. All Rights Reserved.
//
// Distributed under MIT license.
// See file LICENSE for detail or copy at https://opensource.org/licenses/MIT

// Package dbtest runs a shared suite of behavioral tests against any
// kv.Environment implementation.
package dbtest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ytrtdfkgf/merkle-worldstate/kv"
)

// TestEnvironmentSuite runs a suite of tests against a kv.Environment
// implementation returned by New.
func TestEnvironmentSuite(t *testing.T, New func() kv.Environment) {
	t.Run("PutAndGet", func(t *testing.T) {
		env := New()
		defer env.Close()

		require.NoError(t, env.Update(func(b kv.Batch) error {
			b.Put("tree-a", []byte("key"), []byte("value"))
			return nil
		}))

		snap, err := env.Snapshot()
		require.NoError(t, err)
		defer snap.Release()

		got, ok, err := snap.Get("tree-a", []byte("key"))
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, []byte("value"), got)
	})

	t.Run("MissingKey", func(t *testing.T) {
		env := New()
		defer env.Close()

		snap, err := env.Snapshot()
		require.NoError(t, err)
		defer snap.Release()

		_, ok, err := snap.Get("tree-a", []byte("absent"))
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("NamedDatabasesAreIsolated", func(t *testing.T) {
		env := New()
		defer env.Close()

		require.NoError(t, env.Update(func(b kv.Batch) error {
			b.Put("a", []byte("k"), []byte("a-value"))
			b.Put("b", []byte("k"), []byte("b-value"))
			return nil
		}))

		snap, err := env.Snapshot()
		require.NoError(t, err)
		defer snap.Release()

		va, _, _ := snap.Get("a", []byte("k"))
		vb, _, _ := snap.Get("b", []byte("k"))
		require.Equal(t, []byte("a-value"), va)
		require.Equal(t, []byte("b-value"), vb)
	})

	t.Run("SnapshotIsolatedFromLaterWrites", func(t *testing.T) {
		env := New()
		defer env.Close()

		require.NoError(t, env.Update(func(b kv.Batch) error {
			b.Put("tree-a", []byte("key"), []byte("v1"))
			return nil
		}))

		snap, err := env.Snapshot()
		require.NoError(t, err)
		defer snap.Release()

		require.NoError(t, env.Update(func(b kv.Batch) error {
			b.Put("tree-a", []byte("key"), []byte("v2"))
			return nil
		}))

		got, ok, err := snap.Get("tree-a", []byte("key"))
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, []byte("v1"), got)
	})

	t.Run("DeleteRemovesKey", func(t *testing.T) {
		env := New()
		defer env.Close()

		require.NoError(t, env.Update(func(b kv.Batch) error {
			b.Put("tree-a", []byte("key"), []byte("value"))
			return nil
		}))
		require.NoError(t, env.Update(func(b kv.Batch) error {
			b.Delete("tree-a", []byte("key"))
			return nil
		}))

		snap, err := env.Snapshot()
		require.NoError(t, err)
		defer snap.Release()

		_, ok, err := snap.Get("tree-a", []byte("key"))
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("FailedUpdateDoesNotApply", func(t *testing.T) {
		env := New()
		defer env.Close()

		err := env.Update(func(b kv.Batch) error {
			b.Put("tree-a", []byte("key"), []byte("value"))
			return kv.ErrIO
		})
		require.Error(t, err)

		snap, err := env.Snapshot()
		require.NoError(t, err)
		defer snap.Release()

		_, ok, err := snap.Get("tree-a", []byte("key"))
		require.NoError(t, err)
		require.False(t, ok)
	})
}
