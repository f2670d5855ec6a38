package lock

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "dbintegrity.lock")
	l := New(path)

	require.NoError(t, l.Acquire())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), string(data))

	held, pid, err := l.IsHeld()
	require.NoError(t, err)
	assert.True(t, held)
	assert.Equal(t, os.Getpid(), pid)

	err = New(path).Acquire()
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, l.Release())
	require.NoError(t, l.Release())

	held, _, err = l.IsHeld()
	require.NoError(t, err)
	assert.False(t, held)
}

func TestAcquireStaleLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dbintegrity.lock")
	require.NoError(t, os.WriteFile(path, []byte("99999999"), 0o644))

	l := New(path)
	require.NoError(t, l.Acquire())
	t.Cleanup(func() { _ = l.Release() })

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), string(data))
}

func TestAcquireLockBeingWritten(t *testing.T) {
	for _, content := range []string{"", "not a pid"} {
		path := filepath.Join(t.TempDir(), "dbintegrity.lock")
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

		err := New(path).Acquire()
		assert.ErrorIs(t, err, ErrLocked, "content %q", content)

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, content, string(data), "owner's file must be left alone")
	}
}

func TestAcquireAbandonedGarbageLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dbintegrity.lock")
	require.NoError(t, os.WriteFile(path, []byte("not a pid"), 0o644))
	old := time.Now().Add(-2 * WriteGrace)
	require.NoError(t, os.Chtimes(path, old, old))

	l := New(path)
	require.NoError(t, l.Acquire())
	t.Cleanup(func() { _ = l.Release() })

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), string(data))
}

func TestRemoveStaleKeepsReplacedLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dbintegrity.lock")
	// another run replaced the stale file between the check and the removal
	require.NoError(t, os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644))

	err := New(path).removeStale()
	assert.ErrorIs(t, err, ErrLocked)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestDefaultPath(t *testing.T) {
	assert.Equal(t, DefaultPath, New("").Path())
}
