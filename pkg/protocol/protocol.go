package protocol

import (
	"context"
	"time"

	"github.com/netprobe/pkg/address"
)

// Request represents a single exchange to perform.
type Request struct {
	// Endpoint is the peer for stream and datagram clients.
	Endpoint address.Endpoint
	// URL is the full target for HTTP clients.
	URL string
	// Body is the payload to send.
	Body []byte
	// Path is the source file for file transfers.
	Path string
	// Timeout bounds the whole exchange. Zero means no deadline.
	Timeout time.Duration
}

// Response represents the result of an exchange.
type Response struct {
	Body         []byte
	StatusCode   int
	Duration     time.Duration
	BytesRead    int64
	BytesWritten int64
	Error        error
}

// Failed reports whether the exchange ended with a transport or file error.
func (r *Response) Failed() bool {
	return r.Error != nil
}

// Client is the interface for protocol implementations.
type Client interface {
	// Do performs the exchange. It never panics; failures are returned in
	// Response.Error together with any bytes gathered before the failure.
	Do(ctx context.Context, req *Request) *Response

	// Close releases any resources held by the client.
	Close() error
}

// ClientConfig contains common configuration for all clients.
type ClientConfig struct {
	DialTimeout time.Duration
	TLSInsecure bool
	// HalfClose shuts the write side of a stream after the payload is sent
	// so the peer observes end of input.
	HalfClose bool
}

// withTimeout derives a deadline from req.Timeout when one is set.
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return ctx, func() {}
}
