package lsp

import (
	"errors"
	"fmt"
)

// Sentinel errors for request plumbing. Callers classify with errors.Is:
// per-symbol failures get absorbed into a batch report, fatal ones abort
// the session.
var (
	// ErrTimeout reports that the server did not answer a request within
	// the deadline. The request is forgotten locally; nothing is sent to
	// cancel it on the server side.
	ErrTimeout = errors.New("request timed out")

	// ErrConnClosed reports that the connection shut down while a request
	// was in flight or before it could be written.
	ErrConnClosed = errors.New("connection closed")

	// ErrNotRenameable reports that the server rejected a prepareRename
	// probe for the symbol.
	ErrNotRenameable = errors.New("symbol is not renameable")
)

// TransportError wraps a read or write failure on the wire. Once the byte
// stream is broken no further exchange can succeed.
type TransportError struct {
	Op  string // "read" or "write"
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// SpawnError wraps a failure to launch the language server process.
type SpawnError struct {
	Command string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %q: %v", e.Command, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// IsFatal reports whether err ends the session for good, as opposed to a
// per-request failure the caller may absorb and carry on from.
func IsFatal(err error) bool {
	var te *TransportError
	var se *SpawnError
	if errors.As(err, &te) || errors.As(err, &se) {
		return true
	}
	return errors.Is(err, ErrConnClosed)
}
