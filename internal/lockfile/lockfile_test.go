package lockfile

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAcquireThenAcquireAgainFails(t *testing.T) {
	dir := t.TempDir()

	l1, ok, err := Acquire(dir)
	require.NoError(t, err)
	require.True(t, ok)
	defer l1.Release()

	l2, ok2, err := Acquire(dir)
	require.NoError(t, err)
	require.False(t, ok2)
	require.Nil(t, l2)
}

func TestReleaseAllowsReacquire(t *testing.T) {
	dir := t.TempDir()

	l1, ok, err := Acquire(dir)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, l1.Release())

	l2, ok2, err := Acquire(dir)
	require.NoError(t, err)
	require.True(t, ok2)
	require.NoError(t, l2.Release())
}
