package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempLock(t *testing.T) *LockFile {
	t.Helper()
	return NewLockFile(filepath.Join(t.TempDir(), "unmind.lock"))
}

func TestLockLifecycle(t *testing.T) {
	lock := tempLock(t)

	owner, err := lock.Owner()
	require.NoError(t, err)
	assert.Zero(t, owner, "fresh lock should have no owner")

	require.NoError(t, lock.Acquire())

	owner, err = lock.Owner()
	require.NoError(t, err)
	assert.Equal(t, int32(os.Getpid()), owner)

	require.NoError(t, lock.Release())

	owner, err = lock.Owner()
	require.NoError(t, err)
	assert.Zero(t, owner, "released lock should have no owner")
}

func TestLockSecondAcquireFails(t *testing.T) {
	lock := tempLock(t)
	require.NoError(t, lock.Acquire())
	defer lock.Release()

	second := NewLockFile(lock.Path())
	err := second.Acquire()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAlreadyRunning)
}

func TestLockStalePIDCountsAsAbsent(t *testing.T) {
	lock := tempLock(t)

	// A process that has already exited gives us a PID that is known dead.
	cmd := exec.Command("true")
	require.NoError(t, cmd.Run())
	deadPid := cmd.Process.Pid

	require.NoError(t, os.WriteFile(lock.Path(), []byte(fmt.Sprintf("%d\n", deadPid)), 0644))

	owner, err := lock.Owner()
	require.NoError(t, err)
	assert.Zero(t, owner, "dead PID should read as stale")

	require.NoError(t, lock.Acquire(), "stale lock must be overwritable")
	owner, err = lock.Owner()
	require.NoError(t, err)
	assert.Equal(t, int32(os.Getpid()), owner)
}

func TestLockGarbageCountsAsAbsent(t *testing.T) {
	lock := tempLock(t)
	require.NoError(t, os.WriteFile(lock.Path(), []byte("banana\n"), 0644))

	owner, err := lock.Owner()
	require.NoError(t, err)
	assert.Zero(t, owner)

	require.NoError(t, lock.Acquire())
}

func TestLockCreatesParentDir(t *testing.T) {
	lock := NewLockFile(filepath.Join(t.TempDir(), "nested", "dir", "unmind.lock"))
	require.NoError(t, lock.Acquire())
	assert.FileExists(t, lock.Path())
}

func TestLockReleaseWhenMissing(t *testing.T) {
	lock := tempLock(t)
	assert.NoError(t, lock.Release(), "releasing a missing lock must not fail")
}
