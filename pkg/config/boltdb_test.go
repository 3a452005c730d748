package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *BoltStore {
	t.Helper()
	store, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestGetMissingPath(t *testing.T) {
	store := openTestStore(t)

	_, found, err := store.Get("/cluster/rm/rules")
	require.NoError(t, err)
	require.False(t, found)
}

func TestPutThenGet(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.Put("/cluster/rm/rules", `[]`))

	v, found, err := store.Get("/cluster/rm/rules")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, `[]`, v)
}

func TestVersionStartsAtZeroAndBumps(t *testing.T) {
	store := openTestStore(t)

	v, err := store.GetVersion()
	require.NoError(t, err)
	require.Zero(t, v)

	require.NoError(t, store.Bump(7))
	v, err = store.GetVersion()
	require.NoError(t, err)
	require.Equal(t, int64(7), v)
}
