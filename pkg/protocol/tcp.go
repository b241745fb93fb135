package protocol

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"time"
)

// TCPClient implements Client for raw TCP streams. Every call opens and
// closes its own connection.
type TCPClient struct {
	cfg    ClientConfig
	dialer *net.Dialer
}

// NewTCPClient creates a new TCP client.
func NewTCPClient(cfg ClientConfig) *TCPClient {
	return &TCPClient{
		cfg: cfg,
		dialer: &net.Dialer{
			Timeout: cfg.DialTimeout,
		},
	}
}

// Do writes req.Body to req.Endpoint and returns everything the peer sends
// back until it closes the stream.
func (c *TCPClient) Do(ctx context.Context, req *Request) *Response {
	start := time.Now()
	resp := &Response{}

	ctx, cancel := withTimeout(ctx, req.Timeout)
	defer cancel()

	conn, err := c.dialer.DialContext(ctx, "tcp", req.Endpoint.String())
	if err != nil {
		resp.Error = fmt.Errorf("connect to %s: %w", req.Endpoint, err)
		resp.Duration = time.Since(start)
		return resp
	}
	defer conn.Close()

	// Unblock reads and writes once the context is done.
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Now())
	})
	defer stop()

	n, err := conn.Write(req.Body)
	resp.BytesWritten = int64(n)
	if err != nil {
		resp.Error = fmt.Errorf("send to %s: %w", req.Endpoint, err)
		resp.Duration = time.Since(start)
		return resp
	}

	if c.cfg.HalfClose {
		if cw, ok := conn.(interface{ CloseWrite() error }); ok {
			if err := cw.CloseWrite(); err != nil {
				resp.Error = fmt.Errorf("close write to %s: %w", req.Endpoint, err)
				resp.Duration = time.Since(start)
				return resp
			}
		}
	}

	var buf bytes.Buffer
	read, err := buf.ReadFrom(conn)
	resp.BytesRead = read
	if read > 0 {
		resp.Body = buf.Bytes()
	}
	if err != nil {
		resp.Error = fmt.Errorf("read response from %s: %w", req.Endpoint, err)
	}

	resp.Duration = time.Since(start)
	return resp
}

// Close releases resources.
func (c *TCPClient) Close() error {
	return nil
}
