package protocol

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/netprobe/pkg/address"
	"golang.org/x/net/http2"
)

// HTTPClient implements Client for HTTP and HTTPS GET requests.
type HTTPClient struct {
	client *http.Client
}

// NewHTTPClient creates a new HTTP client. Keep-alives are off so each
// request uses its own connection; HTTPS peers that offer h2 get HTTP/2.
func NewHTTPClient(cfg ClientConfig) *HTTPClient {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout: cfg.DialTimeout,
		}).DialContext,
		DisableKeepAlives: true,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.TLSInsecure,
		},
	}

	// Only fails when the transport was already configured for h2.
	_ = http2.ConfigureTransport(transport)

	return &HTTPClient{
		client: &http.Client{
			Transport: transport,
		},
	}
}

// TargetURL builds the request URL for an address typed by the user,
// replacing any scheme it already carries.
func TargetURL(secure bool, addr string) string {
	scheme := "http"
	if secure {
		scheme = "https"
	}
	return scheme + "://" + address.StripScheme(addr)
}

// Do issues a GET for req.URL and reads the whole body. A non-2xx status is
// not an error; only transport failures are.
func (c *HTTPClient) Do(ctx context.Context, req *Request) *Response {
	start := time.Now()
	resp := &Response{}

	ctx, cancel := withTimeout(ctx, req.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		resp.Error = fmt.Errorf("build request for %s: %w", req.URL, err)
		resp.Duration = time.Since(start)
		return resp
	}

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		resp.Error = fmt.Errorf("GET %s: %w", req.URL, err)
		resp.Duration = time.Since(start)
		return resp
	}
	defer httpResp.Body.Close()

	resp.StatusCode = httpResp.StatusCode

	body, err := io.ReadAll(httpResp.Body)
	resp.BytesRead = int64(len(body))
	if len(body) > 0 {
		resp.Body = body
	}
	if err != nil {
		resp.Error = fmt.Errorf("read body of %s: %w", req.URL, err)
	}

	resp.Duration = time.Since(start)
	return resp
}

// Close releases resources.
func (c *HTTPClient) Close() error {
	c.client.CloseIdleConnections()
	return nil
}
