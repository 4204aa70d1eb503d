package lsp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/unminlab/unmin/pkg/logger"
)

// DefaultRequestTimeout bounds how long Call waits for a response before
// giving up on the request.
const DefaultRequestTimeout = 30 * time.Second

// NotificationHandler processes a server-to-client notification.
type NotificationHandler func(params json.RawMessage)

// RequestHandler answers a server-to-client request.
type RequestHandler func(params json.RawMessage) (interface{}, error)

// Conn speaks JSON-RPC 2.0 with Content-Length framing over a byte stream
// and matches responses to requests by ID. One background goroutine owns
// all reads; writes are serialized through a single mutex so header and
// body never interleave between concurrent senders.
type Conn struct {
	reader *bufio.Reader
	writer io.Writer
	log    *logger.Logger

	writeMu sync.Mutex

	// Request IDs are allocated per connection, monotonically and never
	// zero, so a response can always be told apart from a notification.
	nextID atomic.Int64

	pendingMu sync.Mutex
	pending   map[int64]chan *ResponseMessage

	handlerMu       sync.RWMutex
	notifyHandlers  map[string]NotificationHandler
	requestHandlers map[string]RequestHandler

	timeout time.Duration

	closeOnce sync.Once
	closed    chan struct{}
}

// NewConn wraps a reader/writer pair in a connection. Run must be called
// before any Call can complete.
func NewConn(r io.Reader, w io.Writer, log *logger.Logger) *Conn {
	if log == nil {
		log = logger.Default()
	}
	return &Conn{
		reader:          bufio.NewReader(r),
		writer:          w,
		log:             log,
		pending:         make(map[int64]chan *ResponseMessage),
		notifyHandlers:  make(map[string]NotificationHandler),
		requestHandlers: make(map[string]RequestHandler),
		timeout:         DefaultRequestTimeout,
		closed:          make(chan struct{}),
	}
}

// SetTimeout overrides the default per-request deadline.
func (c *Conn) SetTimeout(d time.Duration) {
	if d > 0 {
		c.timeout = d
	}
}

// OnNotification registers a handler for a server-to-client notification.
func (c *Conn) OnNotification(method string, h NotificationHandler) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.notifyHandlers[method] = h
}

// OnRequest registers a handler for a server-to-client request.
func (c *Conn) OnRequest(method string, h RequestHandler) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.requestHandlers[method] = h
}

// Run starts the background read loop.
func (c *Conn) Run() {
	go c.readLoop()
}

// Close marks the connection closed and unblocks every in-flight Call.
// It is safe to call more than once. The read loop drains on its own when
// the underlying stream reaches EOF.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
	})
	return nil
}

// Call sends a request and waits for the matching response, decoding its
// result into result when non-nil. The pending entry is registered before
// the request is written so a fast response can never race past its waiter.
// On timeout the entry is dropped and ErrTimeout returned; a late response
// then ends up discarded by the dispatcher.
func (c *Conn) Call(ctx context.Context, method string, params, result interface{}) error {
	raw, err := marshalParams(params)
	if err != nil {
		return err
	}

	id := c.nextID.Add(1)
	req := RequestMessage{JSONRPC: jsonrpcVersion, ID: id, Method: method, Params: raw}

	respCh := make(chan *ResponseMessage, 1)
	c.pendingMu.Lock()
	c.pending[id] = respCh
	c.pendingMu.Unlock()

	if err := c.send(req); err != nil {
		c.removePending(id)
		if errors.Is(err, ErrConnClosed) {
			return ErrConnClosed
		}
		return &TransportError{Op: "write", Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	select {
	case resp := <-respCh:
		if resp.Error != nil {
			return resp.Error
		}
		if result != nil && len(resp.Result) > 0 && !bytes.Equal(resp.Result, []byte("null")) {
			if err := json.Unmarshal(resp.Result, result); err != nil {
				return fmt.Errorf("decode %s result: %w", method, err)
			}
		}
		return nil
	case <-ctx.Done():
		c.removePending(id)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%s: %w", method, ErrTimeout)
		}
		return ctx.Err()
	case <-c.closed:
		c.removePending(id)
		return ErrConnClosed
	}
}

// Notify sends a notification. No ID is allocated and no response is
// expected.
func (c *Conn) Notify(method string, params interface{}) error {
	raw, err := marshalParams(params)
	if err != nil {
		return err
	}
	note := NotificationMessage{JSONRPC: jsonrpcVersion, Method: method, Params: raw}
	if err := c.send(note); err != nil {
		if errors.Is(err, ErrConnClosed) {
			return ErrConnClosed
		}
		return &TransportError{Op: "write", Err: err}
	}
	return nil
}

func marshalParams(params interface{}) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}
	return raw, nil
}

// send writes one framed message. Header and body go out under the same
// lock so concurrent senders cannot interleave.
func (c *Conn) send(msg interface{}) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	select {
	case <-c.closed:
		return ErrConnClosed
	default:
	}

	if _, err := fmt.Fprintf(c.writer, "Content-Length: %d\r\n\r\n", len(body)); err != nil {
		return err
	}
	if _, err := c.writer.Write(body); err != nil {
		return err
	}
	return nil
}

func (c *Conn) removePending(id int64) {
	c.pendingMu.Lock()
	delete(c.pending, id)
	c.pendingMu.Unlock()
}

func (c *Conn) readLoop() {
	for {
		body, err := c.readMessage()
		if err != nil {
			select {
			case <-c.closed:
			default:
				if !errors.Is(err, io.EOF) {
					c.log.Error("read loop stopped: %v", err)
				}
				c.Close()
			}
			return
		}
		c.dispatch(body)
	}
}

// readMessage consumes one framed message: header lines up to a blank
// line, then exactly Content-Length bytes of body. Unknown headers are
// skipped; header names match case-insensitively.
func (c *Conn) readMessage() ([]byte, error) {
	contentLength := -1
	for {
		line, err := c.reader.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("malformed header %q", line)
		}
		if strings.EqualFold(strings.TrimSpace(name), "Content-Length") {
			n, err := strconv.Atoi(strings.TrimSpace(value))
			if err != nil {
				return nil, fmt.Errorf("invalid Content-Length %q", strings.TrimSpace(value))
			}
			contentLength = n
		}
	}
	if contentLength < 0 {
		return nil, fmt.Errorf("missing Content-Length header")
	}

	body := make([]byte, contentLength)
	if _, err := io.ReadFull(c.reader, body); err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// message is the tagged union an incoming frame decodes into before it is
// classified as request, response or notification.
type message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	Result  json.RawMessage `json:"result"`
	Error   *ResponseError  `json:"error"`
}

func (c *Conn) dispatch(body []byte) {
	var msg message
	if err := json.Unmarshal(body, &msg); err != nil {
		c.log.Error("discarding malformed frame: %v", err)
		return
	}

	switch {
	case msg.Method != "" && msg.ID != nil:
		c.handleRequest(*msg.ID, msg.Method, msg.Params)
	case msg.Method != "":
		c.handleNotification(msg.Method, msg.Params)
	case msg.ID != nil:
		c.handleResponse(&ResponseMessage{JSONRPC: msg.JSONRPC, ID: *msg.ID, Result: msg.Result, Error: msg.Error})
	default:
		c.log.Debug("discarding frame with neither id nor method")
	}
}

func (c *Conn) handleResponse(resp *ResponseMessage) {
	c.pendingMu.Lock()
	ch, ok := c.pending[resp.ID]
	if ok {
		delete(c.pending, resp.ID)
	}
	c.pendingMu.Unlock()

	if !ok {
		// Late reply to a request that already timed out, or an ID we
		// never issued. Nobody is waiting either way.
		c.log.Debug("dropping response for unknown request id %d", resp.ID)
		return
	}
	ch <- resp
}

func (c *Conn) handleNotification(method string, params json.RawMessage) {
	c.handlerMu.RLock()
	h, ok := c.notifyHandlers[method]
	c.handlerMu.RUnlock()

	if !ok {
		c.log.Debug("no handler for notification %s", method)
		return
	}
	// Handlers run off the read loop so a slow one cannot stall dispatch.
	go h(params)
}

func (c *Conn) handleRequest(id int64, method string, params json.RawMessage) {
	c.handlerMu.RLock()
	h, ok := c.requestHandlers[method]
	c.handlerMu.RUnlock()

	go func() {
		resp := ResponseMessage{JSONRPC: jsonrpcVersion, ID: id, Result: json.RawMessage("null")}
		if !ok {
			// Answer with null rather than ignore, so the server is never
			// left blocked on a capability we do not implement.
			c.log.Debug("no handler for server request %s, answering null", method)
		} else if result, err := h(params); err != nil {
			resp.Result = nil
			resp.Error = &ResponseError{Code: CodeInternalError, Message: err.Error()}
		} else if result != nil {
			raw, err := json.Marshal(result)
			if err != nil {
				resp.Result = nil
				resp.Error = &ResponseError{Code: CodeInternalError, Message: err.Error()}
			} else {
				resp.Result = raw
			}
		}
		if err := c.send(resp); err != nil {
			c.log.Warn("reply to %s failed: %v", method, err)
		}
	}()
}
