package socketrpc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/tinytelemetry/adpulse/internal/model"
)

// DefaultCallTimeout bounds a call whose context carries no earlier deadline.
const DefaultCallTimeout = 5 * time.Second

const clientMaxTokenSize = 16 * 1024 * 1024

// ErrClosed is returned by calls made after Close.
var ErrClosed = errors.New("socketrpc: client closed")

// Client talks to the sync agent over a Unix domain socket using JSON-RPC 2.0.
// A failed connection is re-dialled on the next call.
type Client struct {
	socketPath string
	timeout    time.Duration

	mu      sync.Mutex
	conn    net.Conn
	scanner *bufio.Scanner
	encoder *json.Encoder
	nextID  int
	closed  bool
}

// Dial connects to the socket RPC server at the given path. timeout bounds
// the dial and every call; zero selects DefaultCallTimeout.
func Dial(socketPath string, timeout time.Duration) (*Client, error) {
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	c := &Client{socketPath: socketPath, timeout: timeout}
	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) connect() error {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return fmt.Errorf("socketrpc: dial: %w", err)
	}
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, scannerInitBufSize), clientMaxTokenSize)
	c.conn = conn
	c.scanner = scanner
	c.encoder = json.NewEncoder(conn)
	return nil
}

func (c *Client) reset() {
	if c.conn != nil {
		c.conn.Close()
	}
	c.conn = nil
	c.scanner = nil
	c.encoder = nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// call performs a JSON-RPC call and unmarshals the result into dest.
func (c *Client) call(ctx context.Context, method string, params, dest any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.conn == nil {
		if err := c.connect(); err != nil {
			return err
		}
	}

	c.nextID++
	req := Request{JSONRPC: "2.0", ID: c.nextID, Method: method}
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("socketrpc: marshal params: %w", err)
		}
		req.Params = data
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn := c.conn
	conn.SetDeadline(deadline)
	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Now()) })
	defer stop()

	resp, err := c.roundTrip(req)
	if err != nil {
		c.reset()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	conn.SetDeadline(time.Time{})

	if resp.Error != nil {
		return resp.Error
	}
	if dest != nil {
		if err := json.Unmarshal(resp.Result, dest); err != nil {
			return fmt.Errorf("socketrpc: unmarshal result: %w", err)
		}
	}
	return nil
}

func (c *Client) roundTrip(req Request) (Response, error) {
	if err := c.encoder.Encode(req); err != nil {
		return Response{}, fmt.Errorf("socketrpc: send: %w", err)
	}
	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			return Response{}, fmt.Errorf("socketrpc: read: %w", err)
		}
		return Response{}, errors.New("socketrpc: connection closed")
	}
	var resp Response
	if err := json.Unmarshal(c.scanner.Bytes(), &resp); err != nil {
		return Response{}, fmt.Errorf("socketrpc: unmarshal response: %w", err)
	}
	if resp.ID != req.ID {
		return Response{}, fmt.Errorf("socketrpc: response id %d, want %d", resp.ID, req.ID)
	}
	return resp, nil
}

// Dashboard fetches the aggregated view.
func (c *Client) Dashboard(ctx context.Context) (model.Dashboard, error) {
	var d model.Dashboard
	err := c.call(ctx, MethodDashboard, nil, &d)
	return d, err
}

// Sources fetches per-source status.
func (c *Client) Sources(ctx context.Context) ([]model.SourceStatus, error) {
	var out []model.SourceStatus
	err := c.call(ctx, MethodSources, nil, &out)
	return out, err
}

// History fetches recorded attempts for source ("" for all).
func (c *Client) History(ctx context.Context, source string, limit int) (HistoryResult, error) {
	var out HistoryResult
	err := c.call(ctx, MethodHistory, HistoryParams{Source: source, Limit: limit}, &out)
	return out, err
}

// Refresh queues an immediate fetch. With wait set the call returns after
// the attempts settle.
func (c *Client) Refresh(ctx context.Context, source string, wait bool) ([]model.SourceStatus, error) {
	var out []model.SourceStatus
	err := c.call(ctx, MethodRefresh, SourceParams{Source: source, Wait: wait}, &out)
	return out, err
}

func (c *Client) Pause(ctx context.Context, source string) ([]model.SourceStatus, error) {
	var out []model.SourceStatus
	err := c.call(ctx, MethodPause, SourceParams{Source: source}, &out)
	return out, err
}

func (c *Client) Resume(ctx context.Context, source string) ([]model.SourceStatus, error) {
	var out []model.SourceStatus
	err := c.call(ctx, MethodResume, SourceParams{Source: source}, &out)
	return out, err
}
