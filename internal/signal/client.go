package signal

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"oden/internal/domain"
)

var (
	// ErrClosed is returned for calls on a connection that has shut down.
	ErrClosed = errors.New("signal: connection closed")
	// ErrTimeout is returned when a call gets no response within its deadline.
	ErrTimeout = errors.New("signal: call timed out")
)

const defaultCallTimeout = 10 * time.Second

// ClientConfig configures a Client.
type ClientConfig struct {
	// Account is the registered number; used for echo detection and sent as
	// the "account" param when non-empty.
	Account     string
	CallTimeout time.Duration
	// Events receives every normalized message, in arrival order.
	Events domain.EventQueue
	Logger *slog.Logger
}

// Client speaks newline-delimited JSON-RPC 2.0 with a signal-cli daemon.
// One goroutine (Run) reads; writes are serialized by a mutex.
type Client struct {
	conn    net.Conn
	account string
	timeout time.Duration
	events  domain.EventQueue
	logger  *slog.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan incoming
	closed  bool
	done    chan struct{}
}

// Dial connects to the daemon at addr.
func Dial(ctx context.Context, addr string, cfg ClientConfig) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial signal-cli at %s: %w", addr, err)
	}
	return NewClient(conn, cfg), nil
}

// NewClient wraps an established connection. Run must be called to read from it.
func NewClient(conn net.Conn, cfg ClientConfig) *Client {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaultCallTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		conn:    conn,
		account: cfg.Account,
		timeout: cfg.CallTimeout,
		events:  cfg.Events,
		logger:  cfg.Logger,
		pending: make(map[string]chan incoming),
		done:    make(chan struct{}),
	}
}

// Run reads lines until the connection ends or ctx is cancelled. Responses
// are routed to waiting callers; receive notifications go to the event queue.
// It always returns a non-nil error; ErrClosed means the peer hung up.
func (c *Client) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { c.conn.Close() })
	defer stop()
	defer c.shutdown()

	r := bufio.NewReaderSize(c.conn, 64*1024)
	for {
		line, err := r.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			c.dispatch(line)
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return ErrClosed
			}
			return fmt.Errorf("read from signal-cli: %w", err)
		}
	}
}

func (c *Client) dispatch(line []byte) {
	var msg incoming
	if err := json.Unmarshal(line, &msg); err != nil {
		c.logger.Warn("unparseable line from signal-cli", "error", err, "bytes", len(line))
		return
	}

	if msg.isNotification() {
		if msg.Method != "receive" {
			c.logger.Debug("ignoring notification", "method", msg.Method)
			return
		}
		ev, ok, err := ParseReceive(msg.Params)
		if err != nil {
			c.logger.Warn("bad receive notification", "error", err)
			return
		}
		if !ok {
			return
		}
		if c.events != nil {
			c.events.Publish(ev)
		}
		return
	}

	id := msg.idString()
	c.mu.Lock()
	ch, ok := c.pending[id]
	delete(c.pending, id)
	c.mu.Unlock()
	if !ok {
		if msg.Error != nil {
			c.logger.Warn("signal-cli reported error", "id", id, "error", msg.Error)
		}
		return
	}
	ch <- msg
}

func (c *Client) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
	c.conn.Close()
	c.pending = make(map[string]chan incoming)
}

// Close ends the connection; Run returns shortly after.
func (c *Client) Close() error {
	c.shutdown()
	return nil
}

// Done is closed once the connection has shut down.
func (c *Client) Done() <-chan struct{} { return c.done }

// Call sends a request and waits for its response, decoding result into out
// when out is non-nil.
func (c *Client) Call(ctx context.Context, method string, params map[string]any, out any) error {
	id := uuid.NewString()
	ch := make(chan incoming, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.pending[id] = ch
	c.mu.Unlock()

	if err := c.write(request{JSONRPC: jsonrpcVersion, Method: method, Params: c.withAccount(params), ID: id}); err != nil {
		c.forget(id)
		return err
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case msg := <-ch:
		if msg.Error != nil {
			return fmt.Errorf("%s: %w", method, msg.Error)
		}
		if out != nil && len(msg.Result) > 0 {
			if err := json.Unmarshal(msg.Result, out); err != nil {
				return fmt.Errorf("decode %s result: %w", method, err)
			}
		}
		return nil
	case <-timer.C:
		c.forget(id)
		return fmt.Errorf("%s: %w", method, ErrTimeout)
	case <-ctx.Done():
		c.forget(id)
		return ctx.Err()
	case <-c.done:
		return fmt.Errorf("%s: %w", method, ErrClosed)
	}
}

// Notify sends a request without waiting for its response.
func (c *Client) Notify(ctx context.Context, method string, params map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	return c.write(request{JSONRPC: jsonrpcVersion, Method: method, Params: c.withAccount(params), ID: uuid.NewString()})
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) withAccount(params map[string]any) map[string]any {
	if c.account == "" {
		return params
	}
	if params == nil {
		params = make(map[string]any, 1)
	}
	if _, ok := params["account"]; !ok {
		params["account"] = c.account
	}
	return params
}

func (c *Client) write(req request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode %s: %w", req.Method, err)
	}
	data = append(data, '\n')

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.conn.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", req.Method, err)
	}
	return nil
}

// SendGroupMessage posts text to a group. The daemon's reply is not awaited.
func (c *Client) SendGroupMessage(ctx context.Context, groupID, text string) error {
	return c.Notify(ctx, "send", map[string]any{"groupId": groupID, "message": text})
}

// SendDirectMessage posts text to a single recipient.
func (c *Client) SendDirectMessage(ctx context.Context, recipient, text string) error {
	return c.Notify(ctx, "send", map[string]any{"recipient": []string{recipient}, "message": text})
}

// FetchAttachment returns the base64 payload of a stored attachment.
func (c *Client) FetchAttachment(ctx context.Context, id, groupID string) (string, error) {
	params := map[string]any{"id": id}
	if groupID != "" {
		params["groupId"] = groupID
	}
	var res attachmentResult
	if err := c.Call(ctx, "getAttachment", params, &res); err != nil {
		return "", err
	}
	if res.Data == "" {
		return "", fmt.Errorf("getAttachment %s: empty data", id)
	}
	return res.Data, nil
}

// ListGroups returns the groups known to the account.
func (c *Client) ListGroups(ctx context.Context) ([]Group, error) {
	var groups []Group
	if err := c.Call(ctx, "listGroups", nil, &groups); err != nil {
		return nil, err
	}
	return groups, nil
}

// UpdateProfile sets the account's display name.
func (c *Client) UpdateProfile(ctx context.Context, name string) error {
	return c.Notify(ctx, "updateProfile", map[string]any{"name": name})
}
