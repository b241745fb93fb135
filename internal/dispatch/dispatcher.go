package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/netprobe/internal/config"
	"github.com/netprobe/internal/logger"
	"github.com/netprobe/internal/metrics"
	"github.com/netprobe/internal/worker"
	"github.com/netprobe/pkg/address"
	"github.com/netprobe/pkg/protocol"
)

// Reporter receives every response a job produces.
type Reporter interface {
	Report(body []byte, savePath string) error
}

// Options tunes how jobs execute.
type Options struct {
	// Timeout bounds each exchange. Zero means no deadline.
	Timeout time.Duration
}

// Dispatcher fans a request out over a worker pool and joins on the jobs.
type Dispatcher struct {
	pool    *worker.Pool
	clients map[config.Protocol]protocol.Client
	sink    Reporter
	metrics *metrics.Metrics
	log     *logger.Logger
	opts    Options
}

// New creates a dispatcher. The pool must be started before Dispatch.
func New(pool *worker.Pool, clients map[config.Protocol]protocol.Client, sink Reporter,
	m *metrics.Metrics, l *logger.Logger, opts Options) *Dispatcher {
	return &Dispatcher{
		pool:    pool,
		clients: clients,
		sink:    sink,
		metrics: m,
		log:     l,
		opts:    opts,
	}
}

// exchange is one send through one client within a job.
type exchange struct {
	proto  config.Protocol
	client protocol.Client
	req    protocol.Request
}

// Dispatch runs req.Count jobs and blocks until all of them have been
// reported. Validation and address errors are returned before any job is
// submitted. Per-exchange failures are logged and counted, not returned.
func (d *Dispatcher) Dispatch(ctx context.Context, req config.Request) (*Summary, error) {
	runID := uuid.NewString()
	d.log.Debug(fmt.Sprintf("[dispatch] run %s %s %s", runID, stateResolving, req.Address))

	if err := config.ValidateRequest(req); err != nil {
		return nil, err
	}

	endpoint, err := address.Resolve(req.Address)
	if err != nil {
		return nil, err
	}

	plan, err := d.plan(req, endpoint)
	if err != nil {
		return nil, err
	}

	rec := newRecorder()
	start := time.Now()

	d.log.Debug(fmt.Sprintf("[dispatch] run %s: %d %s job(s) to %s", runID, req.Count, req.Protocol, endpoint))

	var wg sync.WaitGroup
	var submitErr error
	for i := uint(0); i < req.Count; i++ {
		seq := int(i) + 1
		wg.Add(1)
		err := d.pool.Submit(ctx, worker.Job{
			Seq: seq,
			Run: func(ctx context.Context) {
				defer wg.Done()
				d.runJob(ctx, runID, seq, req, plan, rec)
			},
		})
		if err != nil {
			wg.Done()
			submitErr = fmt.Errorf("submit job %d: %w", seq, err)
			break
		}
	}
	wg.Wait()

	summary := rec.summary()
	summary.RunID = runID
	summary.Name = req.Name
	summary.Protocol = req.Protocol
	summary.Endpoint = endpoint
	summary.Elapsed = time.Since(start)

	return summary, submitErr
}

// plan selects the exchanges every job of req performs.
func (d *Dispatcher) plan(req config.Request, endpoint address.Endpoint) ([]exchange, error) {
	var plan []exchange

	add := func(proto config.Protocol, r protocol.Request) error {
		client, ok := d.clients[proto]
		if !ok {
			return fmt.Errorf("no client registered for protocol %s", proto)
		}
		r.Timeout = d.opts.Timeout
		plan = append(plan, exchange{proto: proto, client: client, req: r})
		return nil
	}

	var err error
	switch req.Protocol {
	case config.ProtocolTCP:
		if req.File != "" {
			err = add(config.ProtocolFile, protocol.Request{Endpoint: endpoint, Path: req.File})
		}
		if err == nil && (req.Message != "" || req.File == "") {
			err = add(config.ProtocolTCP, protocol.Request{Endpoint: endpoint, Body: []byte(req.Message)})
		}
	case config.ProtocolUDP:
		err = add(config.ProtocolUDP, protocol.Request{Endpoint: endpoint, Body: []byte(req.Message)})
	case config.ProtocolHTTP, config.ProtocolHTTPS:
		if req.Message != "" {
			d.log.Info(fmt.Sprintf("[dispatch] message is ignored in %s mode", req.Protocol))
		}
		secure := req.Protocol == config.ProtocolHTTPS
		err = add(req.Protocol, protocol.Request{Endpoint: endpoint, URL: protocol.TargetURL(secure, req.Address)})
	default:
		err = fmt.Errorf("unknown protocol %q", req.Protocol)
	}

	return plan, err
}

// runJob performs the exchanges of one job and reports each response.
func (d *Dispatcher) runJob(ctx context.Context, runID string, seq int, req config.Request, plan []exchange, rec *recorder) {
	rec.jobs.Inc()
	trace := func(s jobState, detail string) {
		d.log.Debug(fmt.Sprintf("[dispatch] run %s job %d %s%s", runID, seq, s, detail))
	}

	trace(stateCreated, " "+plan[0].req.Endpoint.String())

	outcome := stateSucceeded
	for _, ex := range plan {
		trace(stateSending, " "+string(ex.proto))

		r := ex.req
		resp := ex.client.Do(ctx, &r)

		failed := resp.Failed()
		if failed {
			outcome = stateFailed
			d.log.Error(fmt.Sprintf("[dispatch] job %d %s exchange with %s failed - %v", seq, ex.proto, ex.req.Endpoint, resp.Error))
		} else if ex.proto == config.ProtocolUDP {
			d.log.Info(fmt.Sprintf("Sent %d bytes over UDP", resp.BytesWritten))
		}

		d.metrics.RecordExchange(string(ex.proto), failed, resp.Duration, resp.BytesWritten, resp.BytesRead)
		rec.observe(failed, resp.Duration, resp.BytesWritten, resp.BytesRead)

		if err := d.sink.Report(resp.Body, req.Save); err != nil {
			d.metrics.IncSavesFailed()
			rec.savesFailed.Inc()
		}

		// An unreadable file aborts the rest of the job
		if failed && ex.proto == config.ProtocolFile {
			break
		}
	}

	trace(outcome, "")
	trace(stateReported, "")
}
