package protocol

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/netprobe/internal/echo"
	"github.com/netprobe/internal/logger"
	"github.com/netprobe/pkg/address"
	"github.com/spf13/afero"
)

var testConfig = ClientConfig{
	DialTimeout: 2 * time.Second,
	HalfClose:   true,
}

func endpoint(t *testing.T, addr string) address.Endpoint {
	t.Helper()
	ep, err := address.Resolve(addr)
	if err != nil {
		t.Fatalf("Resolve(%q): %v", addr, err)
	}
	return ep
}

// closedPort returns an address nothing is listening on
func closedPort(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

func TestTCPClientEcho(t *testing.T) {
	srv, err := echo.ListenTCP("127.0.0.1:0", nil, logger.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Close()

	client := NewTCPClient(testConfig)
	defer client.Close()

	resp := client.Do(context.Background(), &Request{
		Endpoint: endpoint(t, srv.Addr()),
		Body:     []byte("hello over tcp"),
	})

	if resp.Failed() {
		t.Fatalf("unexpected error: %v", resp.Error)
	}
	if string(resp.Body) != "hello over tcp" {
		t.Errorf("Body = %q", resp.Body)
	}
	if resp.BytesWritten != 14 || resp.BytesRead != 14 {
		t.Errorf("BytesWritten=%d BytesRead=%d, want 14/14", resp.BytesWritten, resp.BytesRead)
	}
}

func TestTCPClientEmptyPayload(t *testing.T) {
	srv, err := echo.ListenTCP("127.0.0.1:0", func([]byte) []byte {
		return []byte("greeting")
	}, logger.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Close()

	resp := NewTCPClient(testConfig).Do(context.Background(), &Request{
		Endpoint: endpoint(t, srv.Addr()),
	})
	if resp.Failed() {
		t.Fatalf("unexpected error: %v", resp.Error)
	}
	if string(resp.Body) != "greeting" {
		t.Errorf("Body = %q, want greeting", resp.Body)
	}
}

func TestTCPClientUnreachable(t *testing.T) {
	resp := NewTCPClient(testConfig).Do(context.Background(), &Request{
		Endpoint: endpoint(t, closedPort(t)),
		Body:     []byte("nobody home"),
	})

	if !resp.Failed() {
		t.Fatal("expected a connect error")
	}
	if len(resp.Body) != 0 {
		t.Errorf("Body = %q, want empty", resp.Body)
	}
	if !strings.Contains(resp.Error.Error(), "connect to") {
		t.Errorf("error %q does not mention the connect step", resp.Error)
	}
}

// TestTCPClientTimeout uses a peer that accepts but never answers
func TestTCPClientTimeout(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	held := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			held <- conn
		}
	}()
	defer func() {
		select {
		case conn := <-held:
			conn.Close()
		default:
		}
	}()

	start := time.Now()
	resp := NewTCPClient(testConfig).Do(context.Background(), &Request{
		Endpoint: endpoint(t, ln.Addr().String()),
		Body:     []byte("anyone?"),
		Timeout:  200 * time.Millisecond,
	})

	if !resp.Failed() {
		t.Fatal("expected a timeout error")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Do took %s, deadline was not applied", elapsed)
	}
}

func TestTCPClientCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp := NewTCPClient(testConfig).Do(ctx, &Request{
		Endpoint: endpoint(t, closedPort(t)),
	})
	if !resp.Failed() {
		t.Fatal("expected an error for a cancelled context")
	}
}

// TestUDPClientFireAndForget sends to a server that never replies
func TestUDPClientFireAndForget(t *testing.T) {
	srv, err := echo.ListenUDP("127.0.0.1:0", false, logger.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Close()

	done := make(chan *Response, 1)
	go func() {
		done <- NewUDPClient(testConfig).Do(context.Background(), &Request{
			Endpoint: endpoint(t, srv.Addr()),
			Body:     []byte("fire"),
		})
	}()

	var resp *Response
	select {
	case resp = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("UDP send waited for a reply")
	}

	if resp.Failed() {
		t.Fatalf("unexpected error: %v", resp.Error)
	}
	if len(resp.Body) != 0 {
		t.Errorf("Body = %q, want none", resp.Body)
	}
	if resp.BytesWritten != 4 {
		t.Errorf("BytesWritten = %d, want 4", resp.BytesWritten)
	}

	select {
	case <-srv.Received():
	case <-time.After(2 * time.Second):
		t.Fatal("datagram never arrived")
	}
	if got := srv.Payloads(); len(got) != 1 || string(got[0]) != "fire" {
		t.Errorf("server received %q", got)
	}
}

func TestHTTPClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, "hello from http")
	}))
	defer srv.Close()

	client := NewHTTPClient(testConfig)
	defer client.Close()

	addr := strings.TrimPrefix(srv.URL, "http://")

	resp := client.Do(context.Background(), &Request{URL: TargetURL(false, addr)})
	if resp.Failed() {
		t.Fatalf("unexpected error: %v", resp.Error)
	}
	if resp.StatusCode != http.StatusOK || string(resp.Body) != "hello from http" {
		t.Errorf("got %d %q", resp.StatusCode, resp.Body)
	}

	// A non-2xx status is not a transport failure
	resp = client.Do(context.Background(), &Request{URL: TargetURL(false, addr+"/missing")})
	if resp.Failed() {
		t.Fatalf("404 treated as failure: %v", resp.Error)
	}
	if resp.StatusCode != http.StatusNotFound || len(resp.Body) == 0 {
		t.Errorf("got %d %q", resp.StatusCode, resp.Body)
	}
}

func TestHTTPSClient(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "secure")
	}))
	defer srv.Close()

	addr := strings.TrimPrefix(srv.URL, "https://")

	insecure := testConfig
	insecure.TLSInsecure = true
	resp := NewHTTPClient(insecure).Do(context.Background(), &Request{URL: TargetURL(true, addr)})
	if resp.Failed() {
		t.Fatalf("unexpected error: %v", resp.Error)
	}
	if string(resp.Body) != "secure" {
		t.Errorf("Body = %q", resp.Body)
	}

	// The test certificate is self-signed, so verification must fail
	resp = NewHTTPClient(testConfig).Do(context.Background(), &Request{URL: TargetURL(true, addr)})
	if !resp.Failed() {
		t.Fatal("expected TLS verification to fail")
	}
	if len(resp.Body) != 0 {
		t.Errorf("Body = %q, want empty", resp.Body)
	}
}

func TestHTTPClientUnreachable(t *testing.T) {
	resp := NewHTTPClient(testConfig).Do(context.Background(), &Request{URL: TargetURL(false, closedPort(t))})
	if !resp.Failed() {
		t.Fatal("expected a transport error")
	}
	if len(resp.Body) != 0 {
		t.Errorf("Body = %q, want empty", resp.Body)
	}
}

func TestTargetURL(t *testing.T) {
	tests := []struct {
		secure bool
		addr   string
		want   string
	}{
		{false, "example.com", "http://example.com"},
		{true, "example.com:8443/x", "https://example.com:8443/x"},
		{true, "http://example.com", "https://example.com"},
		{false, "127.0.0.1:8080", "http://127.0.0.1:8080"},
	}

	for _, tt := range tests {
		if got := TargetURL(tt.secure, tt.addr); got != tt.want {
			t.Errorf("TargetURL(%t, %q) = %q, want %q", tt.secure, tt.addr, got, tt.want)
		}
	}
}

// TestFileClientSendsExactBytes compares what the peer saw with the file
func TestFileClientSendsExactBytes(t *testing.T) {
	srv, err := echo.ListenTCP("127.0.0.1:0", func([]byte) []byte {
		return []byte("ack")
	}, logger.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Close()

	fs := afero.NewMemMapFs()
	content := make([]byte, 256*1024)
	for i := range content {
		content[i] = byte(i * 7)
	}
	if err := afero.WriteFile(fs, "/data/payload.bin", content, 0644); err != nil {
		t.Fatal(err)
	}

	client := NewFileClient(fs, NewTCPClient(testConfig))
	resp := client.Do(context.Background(), &Request{
		Endpoint: endpoint(t, srv.Addr()),
		Path:     "/data/payload.bin",
	})
	if resp.Failed() {
		t.Fatalf("unexpected error: %v", resp.Error)
	}
	if string(resp.Body) != "ack" {
		t.Errorf("Body = %q, want ack", resp.Body)
	}

	direct, err := afero.ReadFile(fs, "/data/payload.bin")
	if err != nil {
		t.Fatal(err)
	}
	got := srv.Payloads()
	if len(got) != 1 {
		t.Fatalf("server saw %d payloads, want 1", len(got))
	}
	if !bytes.Equal(got[0], direct) {
		t.Errorf("server received %d bytes that differ from the %d byte file", len(got[0]), len(direct))
	}
}

func TestFileClientMissingFile(t *testing.T) {
	srv, err := echo.ListenTCP("127.0.0.1:0", nil, logger.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Close()

	client := NewFileClient(afero.NewMemMapFs(), NewTCPClient(testConfig))
	resp := client.Do(context.Background(), &Request{
		Endpoint: endpoint(t, srv.Addr()),
		Path:     "/does/not/exist",
	})

	if !resp.Failed() {
		t.Fatal("expected a file read error")
	}
	if len(resp.Body) != 0 {
		t.Errorf("Body = %q, want empty", resp.Body)
	}
	if srv.Stats().Connections != 0 {
		t.Errorf("a connection was attempted despite the read failure")
	}
}
