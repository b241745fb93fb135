package echo

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gorilla/mux"
	"github.com/netprobe/internal/logger"
)

// ReplyFunc computes the reply for a received payload. A nil ReplyFunc
// echoes the payload unchanged.
type ReplyFunc func(payload []byte) []byte

// Stats tracks request statistics.
type Stats struct {
	Connections int64 `json:"connections"`
	Datagrams   int64 `json:"datagrams"`
	HTTP        int64 `json:"http_requests"`
	BytesIn     int64 `json:"bytes_in"`
}

// Snapshot returns a consistent copy of the counters.
func (st *Stats) Snapshot() Stats {
	return Stats{
		Connections: atomic.LoadInt64(&st.Connections),
		Datagrams:   atomic.LoadInt64(&st.Datagrams),
		HTTP:        atomic.LoadInt64(&st.HTTP),
		BytesIn:     atomic.LoadInt64(&st.BytesIn),
	}
}

// TCPServer reads each connection until the client closes its write side,
// then writes the reply and closes.
type TCPServer struct {
	*Recorder
	ln    net.Listener
	reply ReplyFunc
	log   *logger.Logger
	stats *Stats
	wg    sync.WaitGroup
}

// ListenTCP starts a TCP echo server on addr.
func ListenTCP(addr string, reply ReplyFunc, l *logger.Logger) (*TCPServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen tcp %s: %w", addr, err)
	}

	s := &TCPServer{
		Recorder: NewRecorder(),
		ln:       ln,
		reply:    reply,
		log:      l,
		stats:    &Stats{},
	}

	s.wg.Add(1)
	go s.serve()

	l.Info(fmt.Sprintf("[echo] tcp listening on %s", ln.Addr()))
	return s, nil
}

// Addr returns the listening address.
func (s *TCPServer) Addr() string {
	return s.ln.Addr().String()
}

func (s *TCPServer) serve() {
	defer s.wg.Done()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Error(fmt.Sprintf("[echo] accept failed - %v", err))
			continue
		}

		s.wg.Add(1)
		go s.handle(conn)
	}
}

func (s *TCPServer) handle(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	atomic.AddInt64(&s.stats.Connections, 1)

	payload, err := io.ReadAll(conn)
	if err != nil {
		s.log.Error(fmt.Sprintf("[echo] reading from %s failed - %v", conn.RemoteAddr(), err))
		return
	}
	atomic.AddInt64(&s.stats.BytesIn, int64(len(payload)))
	s.record(payload)

	out := payload
	if s.reply != nil {
		out = s.reply(payload)
	}
	if _, err := conn.Write(out); err != nil {
		s.log.Error(fmt.Sprintf("[echo] writing to %s failed - %v", conn.RemoteAddr(), err))
	}
}

// Stats returns the server counters.
func (s *TCPServer) Stats() Stats {
	return s.stats.Snapshot()
}

// Close stops accepting and waits for open connections to finish.
func (s *TCPServer) Close() error {
	err := s.ln.Close()
	s.wg.Wait()
	return err
}

// UDPServer records datagrams and optionally echoes them back.
type UDPServer struct {
	*Recorder
	pc       net.PacketConn
	echo     bool
	log      *logger.Logger
	stats    *Stats
	received chan struct{}
	wg       sync.WaitGroup
}

// ListenUDP starts a UDP server on addr. With echo false it never answers.
func ListenUDP(addr string, echo bool, l *logger.Logger) (*UDPServer, error) {
	pc, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen udp %s: %w", addr, err)
	}

	s := &UDPServer{
		Recorder: NewRecorder(),
		pc:       pc,
		echo:     echo,
		log:      l,
		stats:    &Stats{},
		received: make(chan struct{}, 1024),
	}

	s.wg.Add(1)
	go s.serve()

	l.Info(fmt.Sprintf("[echo] udp listening on %s (echo=%t)", pc.LocalAddr(), echo))
	return s, nil
}

// Addr returns the listening address.
func (s *UDPServer) Addr() string {
	return s.pc.LocalAddr().String()
}

// Received signals once per recorded datagram.
func (s *UDPServer) Received() <-chan struct{} {
	return s.received
}

func (s *UDPServer) serve() {
	defer s.wg.Done()

	buf := make([]byte, 64*1024)
	for {
		n, from, err := s.pc.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Error(fmt.Sprintf("[echo] udp read failed - %v", err))
			continue
		}

		atomic.AddInt64(&s.stats.Datagrams, 1)
		atomic.AddInt64(&s.stats.BytesIn, int64(n))
		s.record(buf[:n])

		select {
		case s.received <- struct{}{}:
		default:
		}

		if s.echo {
			if _, err := s.pc.WriteTo(buf[:n], from); err != nil {
				s.log.Error(fmt.Sprintf("[echo] udp write to %s failed - %v", from, err))
			}
		}
	}
}

// Stats returns the server counters.
func (s *UDPServer) Stats() Stats {
	return s.stats.Snapshot()
}

// Close stops the server.
func (s *UDPServer) Close() error {
	err := s.pc.Close()
	s.wg.Wait()
	return err
}

// NewHTTPHandler returns the echo HTTP routes:
//
//	GET  /               service info
//	GET  /health         health check
//	ANY  /echo           echoes the request body
//	GET  /status/{code}  replies with the given status code
//	GET  /api/stats      request statistics
func NewHTTPHandler(rec *Recorder, stats *Stats) http.Handler {
	r := mux.NewRouter()

	count := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, req *http.Request) {
			atomic.AddInt64(&stats.HTTP, 1)
			next(w, req)
		}
	}

	r.HandleFunc("/", count(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"service": "netprobe-echo",
			"status":  "running",
		})
	})).Methods(http.MethodGet)

	r.HandleFunc("/health", count(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})).Methods(http.MethodGet)

	r.HandleFunc("/echo", count(func(w http.ResponseWriter, req *http.Request) {
		body, err := io.ReadAll(req.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		atomic.AddInt64(&stats.BytesIn, int64(len(body)))
		rec.record(body)
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write(body)
	}))

	r.HandleFunc("/status/{code:[0-9]{3}}", count(func(w http.ResponseWriter, req *http.Request) {
		code, _ := strconv.Atoi(mux.Vars(req)["code"])
		w.WriteHeader(code)
		fmt.Fprintf(w, "status %d\n", code)
	})).Methods(http.MethodGet)

	r.HandleFunc("/api/stats", count(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, stats.Snapshot())
	})).Methods(http.MethodGet)

	return r
}

// HTTPServer serves NewHTTPHandler.
type HTTPServer struct {
	*Recorder
	ln     net.Listener
	server *http.Server
	stats  *Stats
}

// ListenHTTP starts the echo HTTP server on addr.
func ListenHTTP(addr string, l *logger.Logger) (*HTTPServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen http %s: %w", addr, err)
	}

	rec := NewRecorder()
	stats := &Stats{}
	s := &HTTPServer{
		Recorder: rec,
		ln:       ln,
		stats:    stats,
		server:   &http.Server{Handler: NewHTTPHandler(rec, stats)},
	}

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error(fmt.Sprintf("[echo] http server failed - %v", err))
		}
	}()

	l.Info(fmt.Sprintf("[echo] http listening on %s", ln.Addr()))
	return s, nil
}

// Addr returns the listening address.
func (s *HTTPServer) Addr() string {
	return s.ln.Addr().String()
}

// Stats returns the server counters.
func (s *HTTPServer) Stats() Stats {
	return s.stats.Snapshot()
}

// Close stops the server.
func (s *HTTPServer) Close() error {
	return s.server.Close()
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(buf.Bytes())
}
