package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/process"

	"github.com/unminlab/unmin/pkg/utils"
)

// LockFile guards the single daemon instance. The file holds the owning
// process ID in decimal; a lock whose process is gone counts as absent
// and gets overwritten by the next starter.
type LockFile struct {
	path string
}

// NewLockFile points at the lock location, typically
// <data-dir>/unmind.lock. Nothing is created until Acquire.
func NewLockFile(path string) *LockFile {
	return &LockFile{path: path}
}

// Path returns the lock file location.
func (l *LockFile) Path() string { return l.path }

// Owner returns the PID currently holding the lock, or 0 when the lock
// is free, stale or unreadable garbage.
func (l *LockFile) Owner() (int32, error) {
	data, err := os.ReadFile(l.path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read lock file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		// Garbage contents read as a stale lock.
		return 0, nil
	}

	alive, err := process.PidExists(int32(pid))
	if err != nil {
		return 0, fmt.Errorf("probe pid %d: %w", pid, err)
	}
	if !alive {
		return 0, nil
	}
	return int32(pid), nil
}

// Acquire writes our PID into the lock. It fails with ErrAlreadyRunning
// when any live process owns it; a stale lock is overwritten.
func (l *LockFile) Acquire() error {
	owner, err := l.Owner()
	if err != nil {
		return err
	}
	if owner != 0 {
		return fmt.Errorf("%w (pid %d)", ErrAlreadyRunning, owner)
	}

	if err := utils.EnsureDir(filepath.Dir(l.path)); err != nil {
		return fmt.Errorf("create lock dir: %w", err)
	}
	pid := strconv.Itoa(os.Getpid())
	if err := os.WriteFile(l.path, []byte(pid+"\n"), 0644); err != nil {
		return fmt.Errorf("write lock file: %w", err)
	}
	return nil
}

// Release removes the lock file. Missing is fine; Release after a crash
// of the previous owner must still succeed.
func (l *LockFile) Release() error {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove lock file: %w", err)
	}
	return nil
}
