package lsp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/unminlab/unmin/pkg/logger"
)

// exitGracePeriod is how long Close waits for the server process to leave
// on its own after the shutdown/exit exchange before killing it.
const exitGracePeriod = 2 * time.Second

// ServerConfig describes how to launch a language server.
type ServerConfig struct {
	Command    string   `json:"command"`
	Args       []string `json:"args"`
	LanguageID string   `json:"language_id"` // announced in didOpen; empty means javascript
}

// DefaultServerConfig launches the TypeScript language server over stdio.
// It also serves plain JavaScript, which is what minified bundles are.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Command:    "typescript-language-server",
		Args:       []string{"--stdio"},
		LanguageID: "javascript",
	}
}

// Session owns one language server child process and the connection
// speaking to it. A Session is good for one Start/Close cycle.
type Session struct {
	config  ServerConfig
	rootDir string
	log     *logger.Logger

	mu       sync.Mutex
	started  bool
	cmd      *exec.Cmd
	conn     *Conn
	versions map[string]int // open document URI -> version
	caps     ServerCapabilities
}

// NewSession prepares a session rooted at rootDir. Nothing is spawned
// until Start.
func NewSession(config ServerConfig, rootDir string, log *logger.Logger) *Session {
	if log == nil {
		log = logger.Default()
	}
	if config.Command == "" {
		config = DefaultServerConfig()
	}
	if config.LanguageID == "" {
		config.LanguageID = "javascript"
	}
	return &Session{
		config:  config,
		rootDir: rootDir,
		log:     log,
	}
}

// Start launches the server process, wires its stdio into a connection
// and performs the initialize handshake. A spawn failure is fatal and
// surfaces immediately as a SpawnError.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("session already started")
	}
	s.mu.Unlock()

	cmd := exec.Command(s.config.Command, s.config.Args...)
	cmd.Dir = s.rootDir

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return &SpawnError{Command: s.config.Command, Err: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &SpawnError{Command: s.config.Command, Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return &SpawnError{Command: s.config.Command, Err: err}
	}

	if err := cmd.Start(); err != nil {
		return &SpawnError{Command: s.config.Command, Err: err}
	}
	s.log.Debug("language server started: %s (pid %d)", s.config.Command, cmd.Process.Pid)

	go s.drainStderr(stderr)

	conn := NewConn(stdout, stdin, s.log.WithPrefix("rpc"))
	s.registerHandlers(conn)
	conn.Run()

	s.mu.Lock()
	s.cmd = cmd
	s.conn = conn
	s.versions = make(map[string]int)
	s.started = true
	s.mu.Unlock()

	if err := s.initialize(ctx); err != nil {
		s.kill()
		return fmt.Errorf("initialize handshake: %w", err)
	}
	return nil
}

// SetTimeout adjusts the per-request deadline on the underlying connection.
func (s *Session) SetTimeout(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.SetTimeout(d)
	}
}

func (s *Session) initialize(ctx context.Context) error {
	pid := os.Getpid()
	params := InitializeParams{
		ProcessID:  &pid,
		ClientInfo: &ClientInfo{Name: "unmin"},
		RootURI:    PathToURI(s.rootDir),
		Capabilities: ClientCapabilities{
			Workspace: &WorkspaceClientCapabilities{
				WorkspaceEdit: &WorkspaceEditClientCapabilities{DocumentChanges: false},
				Configuration: true,
			},
			TextDocument: &TextDocumentClientCapabilities{
				Synchronization: &TextDocumentSyncClientCapabilities{DidSave: true},
				Rename:          &RenameClientCapabilities{PrepareSupport: true},
				References:      &ReferencesClientCapabilities{},
			},
		},
	}

	var result InitializeResult
	if err := s.conn.Call(ctx, "initialize", params, &result); err != nil {
		return err
	}

	s.mu.Lock()
	s.caps = result.Capabilities
	s.mu.Unlock()

	if result.ServerInfo != nil {
		s.log.Debug("initialized against %s %s", result.ServerInfo.Name, result.ServerInfo.Version)
	}
	return s.conn.Notify("initialized", InitializedParams{})
}

// registerHandlers wires the server-to-client traffic we care about. The
// rest is answered or dropped by the connection's defaults.
func (s *Session) registerHandlers(conn *Conn) {
	conn.OnNotification("window/showMessage", func(params json.RawMessage) {
		var p ShowMessageParams
		if err := json.Unmarshal(params, &p); err == nil {
			s.log.Info("server message: %s", p.Message)
		}
	})
	conn.OnNotification("window/logMessage", func(params json.RawMessage) {
		var p LogMessageParams
		if err := json.Unmarshal(params, &p); err == nil {
			s.log.Debug("server log: %s", p.Message)
		}
	})
	conn.OnNotification("textDocument/publishDiagnostics", func(params json.RawMessage) {
		var p PublishDiagnosticsParams
		if err := json.Unmarshal(params, &p); err == nil && len(p.Diagnostics) > 0 {
			s.log.Debug("%d diagnostics for %s", len(p.Diagnostics), p.URI)
		}
	})
	conn.OnRequest("workspace/configuration", func(params json.RawMessage) (interface{}, error) {
		var p struct {
			Items []json.RawMessage `json:"items"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		// One null per requested item: we carry no per-section settings.
		return make([]interface{}, len(p.Items)), nil
	})
}

// Capabilities returns what the server announced during initialize.
func (s *Session) Capabilities() ServerCapabilities {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.caps
}

// OpenDocument reads path from disk and announces it to the server,
// under the configured language id (javascript unless overridden:
// minified bundles are plain JS no matter what produced them). Opening
// an already-open document resyncs it instead.
func (s *Session) OpenDocument(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	uri := PathToURI(path)

	s.mu.Lock()
	if _, open := s.versions[uri]; open {
		s.mu.Unlock()
		return s.Resync(path, string(content))
	}
	s.versions[uri] = 1
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("session not started")
	}
	return conn.Notify("textDocument/didOpen", DidOpenTextDocumentParams{
		TextDocument: TextDocumentItem{
			URI:        uri,
			LanguageID: s.config.LanguageID,
			Version:    1,
			Text:       string(content),
		},
	})
}

// Resync replaces the server's view of an open document with content,
// bumping the document version. Call it after rewriting the file on disk
// so later requests see the current text.
func (s *Session) Resync(path, content string) error {
	uri := PathToURI(path)

	s.mu.Lock()
	v, open := s.versions[uri]
	if !open {
		s.mu.Unlock()
		return fmt.Errorf("document not open: %s", path)
	}
	v++
	s.versions[uri] = v
	conn := s.conn
	s.mu.Unlock()

	return conn.Notify("textDocument/didChange", DidChangeTextDocumentParams{
		TextDocument: VersionedTextDocumentIdentifier{
			TextDocumentIdentifier: TextDocumentIdentifier{URI: uri},
			Version:                v,
		},
		ContentChanges: []TextDocumentContentChangeEvent{{Text: content}},
	})
}

// CloseDocument tells the server the document is no longer of interest.
func (s *Session) CloseDocument(path string) error {
	uri := PathToURI(path)

	s.mu.Lock()
	_, open := s.versions[uri]
	delete(s.versions, uri)
	conn := s.conn
	s.mu.Unlock()

	if !open {
		return nil
	}
	return conn.Notify("textDocument/didClose", DidCloseTextDocumentParams{
		TextDocument: TextDocumentIdentifier{URI: uri},
	})
}

// PrepareRename probes whether the symbol at pos can be renamed. A null
// result or a server-side rejection both come back as ErrNotRenameable.
func (s *Session) PrepareRename(ctx context.Context, uri string, pos Position) error {
	params := TextDocumentPositionParams{
		TextDocument: TextDocumentIdentifier{URI: uri},
		Position:     pos,
	}
	var result json.RawMessage
	err := s.rpc().Call(ctx, "textDocument/prepareRename", params, &result)
	if err != nil {
		var respErr *ResponseError
		if errors.As(err, &respErr) {
			return fmt.Errorf("%w: %s", ErrNotRenameable, respErr.Message)
		}
		return err
	}
	if len(result) == 0 || string(result) == "null" {
		return fmt.Errorf("%w at %d:%d", ErrNotRenameable, pos.Line, pos.Character)
	}
	return nil
}

// Rename asks for the edits renaming the symbol at pos to newName.
func (s *Session) Rename(ctx context.Context, uri string, pos Position, newName string) (*WorkspaceEdit, error) {
	params := RenameParams{
		TextDocumentPositionParams: TextDocumentPositionParams{
			TextDocument: TextDocumentIdentifier{URI: uri},
			Position:     pos,
		},
		NewName: newName,
	}
	var edit WorkspaceEdit
	if err := s.rpc().Call(ctx, "textDocument/rename", params, &edit); err != nil {
		return nil, err
	}
	return &edit, nil
}

// References lists every location referencing the symbol at pos. Servers
// answer with null, a single location or a list; all three decode.
func (s *Session) References(ctx context.Context, uri string, pos Position, includeDeclaration bool) ([]Location, error) {
	params := ReferenceParams{
		TextDocumentPositionParams: TextDocumentPositionParams{
			TextDocument: TextDocumentIdentifier{URI: uri},
			Position:     pos,
		},
		Context: ReferenceContext{IncludeDeclaration: includeDeclaration},
	}
	var raw json.RawMessage
	if err := s.rpc().Call(ctx, "textDocument/references", params, &raw); err != nil {
		return nil, err
	}
	return decodeLocations(raw)
}

// Close shuts the server down politely: shutdown request, exit
// notification, then a bounded wait before the process is killed. Safe to
// call on a session that never started.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	conn, cmd := s.conn, s.cmd
	s.mu.Unlock()

	sctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.Call(sctx, "shutdown", nil, nil); err != nil {
		s.log.Warn("shutdown request failed: %v", err)
	}
	if err := conn.Notify("exit", nil); err != nil {
		s.log.Debug("exit notification failed: %v", err)
	}
	conn.Close()

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		if err != nil {
			s.log.Debug("language server exited: %v", err)
		}
	case <-time.After(exitGracePeriod):
		s.log.Warn("language server still running, killing pid %d", cmd.Process.Pid)
		_ = cmd.Process.Kill()
		<-done
	}
	return nil
}

// kill tears the process down without ceremony, for a failed handshake.
func (s *Session) kill() {
	s.mu.Lock()
	s.started = false
	cmd, conn := s.cmd, s.conn
	s.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	}
}

func (s *Session) rpc() *Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

func (s *Session) drainStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		s.log.Debug("server stderr: %s", scanner.Text())
	}
}

// decodeLocations accepts null, a bare Location or a []Location.
func decodeLocations(raw json.RawMessage) ([]Location, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var list []Location
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var single Location
	if err := json.Unmarshal(raw, &single); err == nil {
		return []Location{single}, nil
	}
	return nil, fmt.Errorf("unexpected references result: %s", string(raw))
}
