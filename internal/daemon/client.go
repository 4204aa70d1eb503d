package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/unminlab/unmin/pkg/logger"
	"github.com/unminlab/unmin/pkg/utils"
)

// DaemonBinary is the executable spawned when autostart finds no daemon.
const DaemonBinary = "unmind"

// Client performs one-shot rename exchanges against the daemon, starting
// one first when none is running.
type Client struct {
	addr string
	lock *LockFile
	log  *logger.Logger

	dialTimeout time.Duration
	startupWait time.Duration
	autostart   bool
	daemonBin   string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithDialTimeout bounds each connection attempt.
func WithDialTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.dialTimeout = d }
}

// WithStartupWait bounds how long autostart waits for a fresh daemon to
// accept connections. Daemon startup includes a language server boot, so
// this is deliberately generous.
func WithStartupWait(d time.Duration) ClientOption {
	return func(c *Client) { c.startupWait = d }
}

// WithAutostart toggles launching the daemon when none is running.
func WithAutostart(enabled bool) ClientOption {
	return func(c *Client) { c.autostart = enabled }
}

// WithDaemonBinary overrides which executable autostart launches.
func WithDaemonBinary(path string) ClientOption {
	return func(c *Client) { c.daemonBin = path }
}

// NewClient builds a client for the daemon at addr, using lock to probe
// liveness before dialing.
func NewClient(addr string, lock *LockFile, log *logger.Logger, opts ...ClientOption) *Client {
	if log == nil {
		log = logger.Default()
	}
	c := &Client{
		addr:        addr,
		lock:        lock,
		log:         log,
		dialTimeout: 5 * time.Second,
		startupWait: 30 * time.Second,
		autostart:   true,
		daemonBin:   DaemonBinary,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsRunning reports whether a live process owns the daemon lock.
func (c *Client) IsRunning() (bool, error) {
	pid, err := c.lock.Owner()
	if err != nil {
		return false, err
	}
	return pid != 0, nil
}

// EnsureRunning starts the daemon when no live process owns the lock.
// Already-running daemons are left alone.
func (c *Client) EnsureRunning(ctx context.Context) error {
	running, err := c.IsRunning()
	if err != nil {
		return err
	}
	if running {
		return nil
	}
	return c.startDaemon(ctx)
}

// Rename sends one batch and returns the daemon's report. The file path
// is sent absolute since the daemon runs in its own working directory.
func (c *Client) Rename(ctx context.Context, filePath string, mappings map[string]string) (*Response, error) {
	running, err := c.IsRunning()
	if err != nil {
		return nil, err
	}
	if !running {
		if !c.autostart {
			return nil, fmt.Errorf("daemon is not running; start it with %s or enable autostart", DaemonBinary)
		}
		if err := c.startDaemon(ctx); err != nil {
			return nil, err
		}
	}

	conn, err := net.DialTimeout("tcp", c.addr, c.dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("dial daemon at %s: %w (start it with %s)", c.addr, err, DaemonBinary)
	}
	defer conn.Close()

	abs, err := filepath.Abs(filePath)
	if err != nil {
		abs = filePath
	}

	data, err := json.Marshal(Request{FilePath: abs, Mappings: mappings})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	if _, err := conn.Write(append(data, '\n')); err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	var resp Response
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &resp, nil
}

// startDaemon launches the daemon executable detached and polls its port
// until it accepts or the startup budget runs out. The binary is looked
// up next to the current executable first, then on PATH.
func (c *Client) startDaemon(ctx context.Context) error {
	bin := c.daemonBin
	if !filepath.IsAbs(bin) {
		if exe, err := os.Executable(); err == nil {
			sibling := filepath.Join(filepath.Dir(exe), bin)
			if utils.FileExists(sibling) {
				bin = sibling
			}
		}
	}
	path, err := exec.LookPath(bin)
	if err != nil {
		return fmt.Errorf("daemon binary %q not found: %w", c.daemonBin, err)
	}

	cmd := exec.Command(path, "-listen", c.addr, "-lock", c.lock.Path())
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}
	// Reap in the background; the daemon is expected to outlive us.
	go cmd.Wait()
	c.log.Info("started %s (pid %d), waiting for %s", filepath.Base(path), cmd.Process.Pid, c.addr)

	deadline := time.Now().Add(c.startupWait)
	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return err
		}
		conn, err := net.DialTimeout("tcp", c.addr, 500*time.Millisecond)
		if err == nil {
			conn.Close()
			return nil
		}
		time.Sleep(200 * time.Millisecond)
	}
	return fmt.Errorf("daemon did not come up on %s within %s", c.addr, c.startupWait)
}
