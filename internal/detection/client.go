package detection

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"turret-ctrl/internal/framing"
)

const closeTimeout = time.Second

// Client is one connection to the perception service.
type Client struct {
	conn     net.Conn
	frames   *framing.Writer
	sentinel int64
	timeout  time.Duration
	buf      [ResponseBufferSize]byte
}

// ClientConfig controls dialing and per-exchange deadlines.
type ClientConfig struct {
	Addr        string
	Sentinel    int64
	DialTimeout time.Duration
	// ReplyTimeout bounds the wait for each response; zero waits forever.
	ReplyTimeout time.Duration
}

// Dial connects to the perception service.
func Dial(ctx context.Context, cfg ClientConfig) (*Client, error) {
	d := net.Dialer{Timeout: cfg.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", cfg.Addr)
	if err != nil {
		return nil, &framing.TransportError{Op: "dial " + cfg.Addr, Err: err}
	}
	return NewClient(conn, cfg), nil
}

// NewClient wraps an established connection.
func NewClient(conn net.Conn, cfg ClientConfig) *Client {
	sentinel := cfg.Sentinel
	if sentinel == 0 {
		sentinel = DefaultSentinel
	}
	return &Client{
		conn:     conn,
		frames:   framing.NewWriter(conn),
		sentinel: sentinel,
		timeout:  cfg.ReplyTimeout,
	}
}

// Exchange sends one encoded frame and waits for the response. A
// malformed response wraps ErrProtocol; anything else is a
// *framing.TransportError and the client should be closed.
func (c *Client) Exchange(jpeg []byte) (Result, error) {
	if err := c.frames.Send(jpeg); err != nil {
		return Result{}, err
	}
	if c.timeout > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
			return Result{}, &framing.TransportError{Op: "set deadline", Err: err}
		}
	}
	n, err := c.conn.Read(c.buf[:])
	if n == 0 {
		if err == nil || errors.Is(err, io.EOF) {
			err = fmt.Errorf("peer closed: %w", io.EOF)
		}
		return Result{}, &framing.TransportError{Op: "read response", Err: err}
	}
	return ParseResponse(string(c.buf[:n]), c.sentinel)
}

// Close sends the end-of-stream frame and closes the connection.
func (c *Client) Close() error {
	c.conn.SetWriteDeadline(time.Now().Add(closeTimeout))
	endErr := c.frames.End()
	if err := c.conn.Close(); err != nil {
		return err
	}
	return endErr
}
