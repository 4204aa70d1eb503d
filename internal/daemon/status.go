package daemon

import (
	"fmt"
	"time"

	"github.com/shirou/gopsutil/process"
)

// Status describes a running daemon process, probed from outside.
type Status struct {
	Running bool
	PID     int32
	Addr    string
	Uptime  time.Duration
	RSS     uint64  // resident memory in bytes
	CPU     float64 // percent, best effort
}

// ProbeStatus inspects the lock and, when it names a live process, pulls
// its runtime stats. Metric failures are not fatal: a daemon we cannot
// introspect is still running.
func ProbeStatus(lock *LockFile, addr string) (*Status, error) {
	pid, err := lock.Owner()
	if err != nil {
		return nil, err
	}
	if pid == 0 {
		return &Status{Running: false, Addr: addr}, nil
	}

	st := &Status{Running: true, PID: pid, Addr: addr}
	proc, err := process.NewProcess(pid)
	if err != nil {
		return st, nil
	}
	if created, err := proc.CreateTime(); err == nil {
		st.Uptime = time.Since(time.UnixMilli(created)).Truncate(time.Second)
	}
	if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
		st.RSS = mem.RSS
	}
	if cpu, err := proc.CPUPercent(); err == nil {
		st.CPU = cpu
	}
	return st, nil
}

// StopDaemon asks the process holding the lock to terminate, escalating
// to a kill when it ignores the request past the grace period. The
// daemon removes its own lock file during a clean stop; a killed one
// leaves a stale lock behind, which the next starter treats as absent.
func StopDaemon(lock *LockFile, grace time.Duration) error {
	pid, err := lock.Owner()
	if err != nil {
		return err
	}
	if pid == 0 {
		return fmt.Errorf("daemon is not running")
	}

	proc, err := process.NewProcess(pid)
	if err != nil {
		return fmt.Errorf("find daemon process %d: %w", pid, err)
	}
	if err := proc.Terminate(); err != nil {
		return fmt.Errorf("terminate daemon %d: %w", pid, err)
	}

	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		alive, err := process.PidExists(pid)
		if err != nil || !alive {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	if err := proc.Kill(); err != nil {
		return fmt.Errorf("kill daemon %d: %w", pid, err)
	}
	return lock.Release()
}
