package dispatch

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/netprobe/internal/config"
	"github.com/netprobe/pkg/address"
	"github.com/puzpuzpuz/xsync/v3"
)

// Summary aggregates one dispatch.
type Summary struct {
	RunID    string
	Name     string
	Protocol config.Protocol
	Endpoint address.Endpoint

	Jobs          int64
	Exchanges     int64
	Failed        int64
	SavesFailed   int64
	BytesSent     int64
	BytesReceived int64

	P50     time.Duration
	P95     time.Duration
	P99     time.Duration
	Max     time.Duration
	Elapsed time.Duration
}

// Succeeded returns the number of exchanges without a transport error.
func (s *Summary) Succeeded() int64 {
	return s.Exchanges - s.Failed
}

// Latencies are tracked in microseconds up to one hour.
const (
	minLatency = 1
	maxLatency = int64(time.Hour / time.Microsecond)
	sigFigs    = 3
)

// recorder collects exchange results from concurrent jobs.
type recorder struct {
	jobs          *xsync.Counter
	exchanges     *xsync.Counter
	failed        *xsync.Counter
	savesFailed   *xsync.Counter
	bytesSent     *xsync.Counter
	bytesReceived *xsync.Counter

	mu   sync.Mutex
	hist *hdrhistogram.Histogram
}

func newRecorder() *recorder {
	return &recorder{
		jobs:          xsync.NewCounter(),
		exchanges:     xsync.NewCounter(),
		failed:        xsync.NewCounter(),
		savesFailed:   xsync.NewCounter(),
		bytesSent:     xsync.NewCounter(),
		bytesReceived: xsync.NewCounter(),
		hist:          hdrhistogram.New(minLatency, maxLatency, sigFigs),
	}
}

func (r *recorder) observe(failed bool, d time.Duration, sent, received int64) {
	r.exchanges.Inc()
	if failed {
		r.failed.Inc()
	}
	r.bytesSent.Add(sent)
	r.bytesReceived.Add(received)

	us := d.Microseconds()
	if us < minLatency {
		us = minLatency
	}
	if us > maxLatency {
		us = maxLatency
	}

	r.mu.Lock()
	_ = r.hist.RecordValue(us)
	r.mu.Unlock()
}

func (r *recorder) summary() *Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := &Summary{
		Jobs:          r.jobs.Value(),
		Exchanges:     r.exchanges.Value(),
		Failed:        r.failed.Value(),
		SavesFailed:   r.savesFailed.Value(),
		BytesSent:     r.bytesSent.Value(),
		BytesReceived: r.bytesReceived.Value(),
	}
	if r.hist.TotalCount() > 0 {
		s.P50 = time.Duration(r.hist.ValueAtQuantile(50)) * time.Microsecond
		s.P95 = time.Duration(r.hist.ValueAtQuantile(95)) * time.Microsecond
		s.P99 = time.Duration(r.hist.ValueAtQuantile(99)) * time.Microsecond
		s.Max = time.Duration(r.hist.Max()) * time.Microsecond
	}
	return s
}
