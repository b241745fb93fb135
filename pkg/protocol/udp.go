package protocol

import (
	"context"
	"fmt"
	"net"
	"time"
)

// UDPClient implements Client for single datagrams. It never waits for a
// reply.
type UDPClient struct {
	cfg ClientConfig
}

// NewUDPClient creates a new UDP client.
func NewUDPClient(cfg ClientConfig) *UDPClient {
	return &UDPClient{cfg: cfg}
}

// Do sends req.Body as one datagram from an ephemeral local port.
func (c *UDPClient) Do(ctx context.Context, req *Request) *Response {
	start := time.Now()
	resp := &Response{}

	ctx, cancel := withTimeout(ctx, req.Timeout)
	defer cancel()

	var lc net.ListenConfig
	pc, err := lc.ListenPacket(ctx, "udp", ":0")
	if err != nil {
		resp.Error = fmt.Errorf("bind udp socket: %w", err)
		resp.Duration = time.Since(start)
		return resp
	}
	defer pc.Close()

	dst, err := net.ResolveUDPAddr("udp", req.Endpoint.String())
	if err != nil {
		resp.Error = fmt.Errorf("resolve %s: %w", req.Endpoint, err)
		resp.Duration = time.Since(start)
		return resp
	}

	if deadline, ok := ctx.Deadline(); ok {
		pc.SetWriteDeadline(deadline)
	}

	n, err := pc.WriteTo(req.Body, dst)
	resp.BytesWritten = int64(n)
	if err != nil {
		resp.Error = fmt.Errorf("send datagram to %s: %w", req.Endpoint, err)
	}

	resp.Duration = time.Since(start)
	return resp
}

// Close releases resources.
func (c *UDPClient) Close() error {
	return nil
}
