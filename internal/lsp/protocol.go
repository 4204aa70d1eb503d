package lsp

import (
	"encoding/json"
	"fmt"
)

// JSON-RPC 2.0 message structures

const jsonrpcVersion = "2.0"

// RequestMessage represents a JSON-RPC request
type RequestMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// ResponseMessage represents a JSON-RPC response
type ResponseMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ResponseError  `json:"error,omitempty"`
}

// NotificationMessage represents a JSON-RPC notification (a request without an ID)
type NotificationMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// ResponseError represents a JSON-RPC error object
type ResponseError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("server error %d: %s", e.Code, e.Message)
}

// Standard JSON-RPC error codes
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeRequestFailed  = -32803
)

// Basic protocol structures

// Position in a text document, zero-based. Character counts UTF-16 code
// units, not bytes or runes.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Range in a text document, end exclusive
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Location represents a place inside a document
type Location struct {
	URI   string `json:"uri"`
	Range Range  `json:"range"`
}

// TextEdit represents a single text replacement
type TextEdit struct {
	Range   Range  `json:"range"`
	NewText string `json:"newText"`
}

// WorkspaceEdit maps document URIs to the edits to apply there
type WorkspaceEdit struct {
	Changes map[string][]TextEdit `json:"changes,omitempty"`
}

// IsEmpty reports whether the edit carries no changes at all
func (w *WorkspaceEdit) IsEmpty() bool {
	if w == nil {
		return true
	}
	for _, edits := range w.Changes {
		if len(edits) > 0 {
			return false
		}
	}
	return true
}

// TextDocumentIdentifier identifies a document by URI
type TextDocumentIdentifier struct {
	URI string `json:"uri"`
}

// VersionedTextDocumentIdentifier identifies a specific version of a document
type VersionedTextDocumentIdentifier struct {
	TextDocumentIdentifier
	Version int `json:"version"`
}

// TextDocumentItem transfers a whole document to the server
type TextDocumentItem struct {
	URI        string `json:"uri"`
	LanguageID string `json:"languageId"`
	Version    int    `json:"version"`
	Text       string `json:"text"`
}

// TextDocumentPositionParams is the shared shape of position-based requests
type TextDocumentPositionParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Position     Position               `json:"position"`
}

// Initialize handshake

// ClientInfo identifies the client to the server
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// InitializeParams are the parameters of the initialize request
type InitializeParams struct {
	ProcessID    *int               `json:"processId"`
	ClientInfo   *ClientInfo        `json:"clientInfo,omitempty"`
	RootURI      string             `json:"rootUri,omitempty"`
	Capabilities ClientCapabilities `json:"capabilities"`
}

// ClientCapabilities advertises what this client understands
type ClientCapabilities struct {
	Workspace    *WorkspaceClientCapabilities    `json:"workspace,omitempty"`
	TextDocument *TextDocumentClientCapabilities `json:"textDocument,omitempty"`
}

// WorkspaceClientCapabilities covers workspace-level features
type WorkspaceClientCapabilities struct {
	WorkspaceEdit *WorkspaceEditClientCapabilities `json:"workspaceEdit,omitempty"`
	Configuration bool                             `json:"configuration,omitempty"`
}

// WorkspaceEditClientCapabilities describes the edit shapes we accept.
// DocumentChanges stays false so servers answer rename requests with the
// plain changes map.
type WorkspaceEditClientCapabilities struct {
	DocumentChanges bool `json:"documentChanges"`
}

// TextDocumentClientCapabilities covers per-document features
type TextDocumentClientCapabilities struct {
	Synchronization *TextDocumentSyncClientCapabilities `json:"synchronization,omitempty"`
	Rename          *RenameClientCapabilities           `json:"rename,omitempty"`
	References      *ReferencesClientCapabilities       `json:"references,omitempty"`
}

// TextDocumentSyncClientCapabilities describes document sync support
type TextDocumentSyncClientCapabilities struct {
	DynamicRegistration bool `json:"dynamicRegistration,omitempty"`
	DidSave             bool `json:"didSave,omitempty"`
}

// RenameClientCapabilities advertises prepareRename support
type RenameClientCapabilities struct {
	PrepareSupport bool `json:"prepareSupport,omitempty"`
}

// ReferencesClientCapabilities describes reference listing support
type ReferencesClientCapabilities struct {
	DynamicRegistration bool `json:"dynamicRegistration,omitempty"`
}

// InitializeResult is the server's answer to initialize
type InitializeResult struct {
	Capabilities ServerCapabilities `json:"capabilities"`
	ServerInfo   *ServerInfo        `json:"serverInfo,omitempty"`
}

// ServerInfo identifies the server implementation
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// ServerCapabilities is decoded loosely: providers may be booleans or
// option objects depending on the server, and we only need presence.
type ServerCapabilities struct {
	TextDocumentSync   json.RawMessage `json:"textDocumentSync,omitempty"`
	RenameProvider     json.RawMessage `json:"renameProvider,omitempty"`
	ReferencesProvider json.RawMessage `json:"referencesProvider,omitempty"`
}

// InitializedParams is the (empty) payload of the initialized notification
type InitializedParams struct{}

// Document synchronization

// DidOpenTextDocumentParams announces an opened document
type DidOpenTextDocumentParams struct {
	TextDocument TextDocumentItem `json:"textDocument"`
}

// DidChangeTextDocumentParams carries document content changes
type DidChangeTextDocumentParams struct {
	TextDocument   VersionedTextDocumentIdentifier  `json:"textDocument"`
	ContentChanges []TextDocumentContentChangeEvent `json:"contentChanges"`
}

// TextDocumentContentChangeEvent replaces the full document content
type TextDocumentContentChangeEvent struct {
	Text string `json:"text"`
}

// DidCloseTextDocumentParams announces a closed document
type DidCloseTextDocumentParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
}

// Rename and references

// ReferenceParams asks for all references to the symbol at a position
type ReferenceParams struct {
	TextDocumentPositionParams
	Context ReferenceContext `json:"context"`
}

// ReferenceContext controls whether the declaration itself is listed
type ReferenceContext struct {
	IncludeDeclaration bool `json:"includeDeclaration"`
}

// RenameParams asks for the workspace edit renaming the symbol at a position
type RenameParams struct {
	TextDocumentPositionParams
	NewName string `json:"newName"`
}

// Window notifications

// MessageType is the severity of a window message
type MessageType int

const (
	MessageError   MessageType = 1
	MessageWarning MessageType = 2
	MessageInfo    MessageType = 3
	MessageLog     MessageType = 4
)

// ShowMessageParams carries a message the server wants displayed
type ShowMessageParams struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
}

// LogMessageParams carries a server log entry
type LogMessageParams struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
}

// PublishDiagnosticsParams carries the diagnostics for one document
type PublishDiagnosticsParams struct {
	URI         string       `json:"uri"`
	Diagnostics []Diagnostic `json:"diagnostics"`
}

// Diagnostic is a single problem report
type Diagnostic struct {
	Range    Range  `json:"range"`
	Severity int    `json:"severity,omitempty"`
	Source   string `json:"source,omitempty"`
	Message  string `json:"message"`
}
