package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/unminlab/unmin/internal/lsp"
	"github.com/unminlab/unmin/internal/rename"
	"github.com/unminlab/unmin/pkg/logger"
	"github.com/unminlab/unmin/pkg/utils"
)

// DefaultAddr is where the daemon listens. Loopback only: the daemon
// exists to amortize language server startup for tools on this machine.
const DefaultAddr = "127.0.0.1:7831"

// ErrAlreadyRunning reports that a live daemon already holds the lock.
var ErrAlreadyRunning = errors.New("daemon already running")

// Renamer runs one rename batch. The production implementation is a
// rename.Orchestrator bound to a live language server session.
type Renamer interface {
	RenameAll(ctx context.Context, path string, targets []rename.Target) (*rename.Report, error)
}

// Daemon owns one language server session and serves rename batches over
// TCP: one newline-delimited JSON request and one response per
// connection. A Daemon is good for one Start/Stop cycle.
type Daemon struct {
	addr string
	lock *LockFile
	log  *logger.Logger

	serverConfig lsp.ServerConfig
	rootDir      string
	timeout      time.Duration

	mu       sync.Mutex
	started  bool
	listener net.Listener
	sess     *lsp.Session
	renamer  Renamer
	shutdown chan struct{}
	wg       sync.WaitGroup
}

// Option configures a Daemon.
type Option func(*Daemon)

// WithAddr overrides the listen address. Port 0 picks an ephemeral port,
// readable from Addr after Start.
func WithAddr(addr string) Option {
	return func(d *Daemon) { d.addr = addr }
}

// WithServerConfig overrides how the language server is launched.
func WithServerConfig(cfg lsp.ServerConfig) Option {
	return func(d *Daemon) { d.serverConfig = cfg }
}

// WithRootDir sets the workspace root announced to the language server.
func WithRootDir(dir string) Option {
	return func(d *Daemon) { d.rootDir = dir }
}

// WithRequestTimeout bounds individual language server requests.
func WithRequestTimeout(t time.Duration) Option {
	return func(d *Daemon) { d.timeout = t }
}

// WithRenamer supplies a pre-built batch runner instead of booting a
// language server session at Start.
func WithRenamer(r Renamer) Option {
	return func(d *Daemon) { d.renamer = r }
}

// NewDaemon builds a daemon guarding itself with lock. Nothing runs
// until Start.
func NewDaemon(lock *LockFile, log *logger.Logger, opts ...Option) *Daemon {
	if log == nil {
		log = logger.Default()
	}
	wd, err := os.Getwd()
	if err != nil {
		wd = os.TempDir()
	}
	d := &Daemon{
		addr:         DefaultAddr,
		lock:         lock,
		log:          log,
		serverConfig: lsp.DefaultServerConfig(),
		rootDir:      wd,
		shutdown:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start acquires the singleton lock, boots the language server session
// and begins accepting connections. When another live daemon holds the
// lock it returns ErrAlreadyRunning without side effects.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return fmt.Errorf("daemon already started")
	}
	d.mu.Unlock()

	if err := d.lock.Acquire(); err != nil {
		return err
	}

	if d.renamer == nil {
		sess := lsp.NewSession(d.serverConfig, d.rootDir, d.log.WithPrefix("lsp"))
		if err := sess.Start(ctx); err != nil {
			d.lock.Release()
			return fmt.Errorf("start language server: %w", err)
		}
		if d.timeout > 0 {
			sess.SetTimeout(d.timeout)
		}
		d.mu.Lock()
		d.sess = sess
		d.renamer = rename.NewOrchestrator(sess, d.log.WithPrefix("rename"))
		d.mu.Unlock()
	}

	ln, err := net.Listen("tcp", d.addr)
	if err != nil {
		d.disposeSession(ctx)
		d.lock.Release()
		return fmt.Errorf("listen on %s: %w", d.addr, err)
	}

	d.mu.Lock()
	d.started = true
	d.listener = ln
	d.mu.Unlock()

	d.log.Info("listening on %s (pid %d)", ln.Addr(), os.Getpid())

	d.wg.Add(1)
	go d.acceptLoop(ln)
	return nil
}

// Addr returns the bound listen address, which differs from the
// configured one when port 0 was requested.
func (d *Daemon) Addr() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.listener != nil {
		return d.listener.Addr().String()
	}
	return d.addr
}

// IsRunning reports whether the daemon has started and not yet stopped.
func (d *Daemon) IsRunning() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.started
}

// Stop closes the listener, waits for in-flight batches with a bounded
// grace period, disposes the language server session and releases the
// lock.
func (d *Daemon) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return nil
	}
	d.started = false
	ln := d.listener
	d.mu.Unlock()

	close(d.shutdown)
	if ln != nil {
		ln.Close()
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		d.log.Warn("timed out waiting for open connections")
	}

	err := d.disposeSession(ctx)
	if rerr := d.lock.Release(); rerr != nil && err == nil {
		err = rerr
	}
	d.log.Info("stopped")
	return err
}

func (d *Daemon) disposeSession(ctx context.Context) error {
	d.mu.Lock()
	sess := d.sess
	d.sess = nil
	d.mu.Unlock()

	if sess == nil {
		return nil
	}
	return sess.Close(ctx)
}

func (d *Daemon) acceptLoop(ln net.Listener) {
	defer d.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-d.shutdown:
			default:
				if !errors.Is(err, net.ErrClosed) {
					d.log.Error("accept: %v", err)
				}
			}
			return
		}
		d.wg.Add(1)
		go d.handleConn(conn)
	}
}

// handleConn performs exactly one request/response exchange and closes.
// Connections are handled concurrently and batches are not serialized
// against each other; callers are expected to send one batch at a time.
func (d *Daemon) handleConn(conn net.Conn) {
	defer d.wg.Done()
	defer conn.Close()

	batch := uuid.NewString()[:8]
	log := d.log.WithPrefix(batch)

	conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		log.Warn("read request: %v", err)
		return
	}

	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		log.Warn("malformed request: %v: %s", err, utils.TruncateString(string(line), 120))
		d.reply(conn, log, &Response{
			SuccessfulRenames: map[string]string{},
			FailedRenames:     map[string]string{},
			Error:             fmt.Sprintf("malformed request: %v", err),
		})
		return
	}

	log.Info("batch for %s: %d symbols", req.FilePath, len(req.Mappings))
	d.reply(conn, log, d.runBatch(context.Background(), req))
}

// runBatch adapts the wire request to orchestrator targets and back.
// Map iteration order is not stable, so targets run in sorted original
// name order to keep batches reproducible.
func (d *Daemon) runBatch(ctx context.Context, req Request) *Response {
	originals := make([]string, 0, len(req.Mappings))
	for orig := range req.Mappings {
		originals = append(originals, orig)
	}
	sort.Strings(originals)

	targets := make([]rename.Target, 0, len(originals))
	for _, orig := range originals {
		targets = append(targets, rename.Target{Original: orig, Desired: req.Mappings[orig]})
	}

	report, err := d.renamer.RenameAll(ctx, req.FilePath, targets)
	if err != nil {
		return &Response{
			SuccessfulRenames: map[string]string{},
			FailedRenames:     map[string]string{},
			Error:             err.Error(),
		}
	}
	return &Response{
		Success:           true,
		SuccessfulRenames: report.Renamed(),
		FailedRenames:     report.Failures(),
		TotalReferences:   report.TotalReferences,
	}
}

func (d *Daemon) reply(conn net.Conn, log *logger.Logger, resp *Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		log.Error("marshal response: %v", err)
		return
	}
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if _, err := conn.Write(append(data, '\n')); err != nil {
		log.Warn("write response: %v", err)
	}
}
