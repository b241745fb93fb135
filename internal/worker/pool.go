package worker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/netprobe/internal/config"
	"github.com/netprobe/internal/logger"
	"github.com/netprobe/internal/metrics"
	"golang.org/x/time/rate"
)

// ErrPoolStopped is returned when submitting to a stopped pool.
var ErrPoolStopped = errors.New("worker pool stopped")

// Job represents a single unit of work. Seq is only used for log lines.
type Job struct {
	Seq int
	Run func(ctx context.Context)
}

type queued struct {
	ctx context.Context
	job Job
}

// Pool manages a fixed set of worker goroutines. Every accepted job runs
// exactly once, even when its context is already cancelled, so callers can
// always join on their jobs.
type Pool struct {
	cfg     config.Dispatch
	metrics *metrics.Metrics
	log     *logger.Logger
	limiter *rate.Limiter
	jobs    chan queued
	wg      sync.WaitGroup
	active  int64
	mu      sync.RWMutex
	started bool
	stopped bool
}

// NewPool creates a new worker pool with cfg.Parallelism workers.
func NewPool(cfg config.Dispatch, m *metrics.Metrics, l *logger.Logger) *Pool {
	p := &Pool{
		cfg:     cfg,
		metrics: m,
		log:     l,
		limiter: rate.NewLimiter(rate.Inf, 1),
		jobs:    make(chan queued, cfg.QueueSize),
	}
	p.SetRate(cfg.Rate)
	return p
}

// Start launches the workers. Calling it more than once has no effect.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started || p.stopped {
		return
	}
	p.started = true

	for i := 0; i < p.cfg.Parallelism; i++ {
		p.wg.Add(1)
		go p.worker()
	}

	p.log.Debug(fmt.Sprintf("[worker] started %d workers with queue size %d", p.cfg.Parallelism, p.cfg.QueueSize))
}

// worker is the main worker goroutine.
func (p *Pool) worker() {
	defer p.wg.Done()

	for q := range p.jobs {
		p.metrics.SetQueuedJobs(len(p.jobs))
		p.processJob(q)
	}
}

// processJob executes a single job.
func (p *Pool) processJob(q queued) {
	// A cancelled context skips the wait; the job still runs and fails fast
	_ = p.limiter.Wait(q.ctx)

	p.metrics.SetActiveWorkers(int(atomic.AddInt64(&p.active, 1)))
	p.metrics.IncJobsInFlight()
	defer func() {
		p.metrics.SetActiveWorkers(int(atomic.AddInt64(&p.active, -1)))
		p.metrics.DecJobsInFlight()
	}()

	q.job.Run(q.ctx)
}

// Submit queues a job, blocking while the queue is full. Jobs are never
// dropped; Submit only gives up when ctx is done or the pool is stopped.
func (p *Pool) Submit(ctx context.Context, job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		return ErrPoolStopped
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	select {
	case p.jobs <- queued{ctx: ctx, job: job}:
		p.metrics.SetQueuedJobs(len(p.jobs))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetRate updates the rate limiter. Zero or less removes the limit.
func (p *Pool) SetRate(perSecond float64) {
	if perSecond <= 0 || math.IsInf(perSecond, 1) {
		p.limiter.SetLimit(rate.Inf)
		return
	}

	p.limiter.SetLimit(rate.Limit(perSecond))
	p.limiter.SetBurst(int(perSecond / 10)) // Burst of 10% of the rate
	if p.limiter.Burst() < 1 {
		p.limiter.SetBurst(1)
	}
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return p.cfg.Parallelism
}

// Active returns the number of workers currently running a job.
func (p *Pool) Active() int {
	return int(atomic.LoadInt64(&p.active))
}

// QueueSize returns the current queue length.
func (p *Pool) QueueSize() int {
	return len(p.jobs)
}

// Stop rejects new jobs, runs everything already queued and waits for the
// workers to exit.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.jobs)
	started := p.started
	p.mu.Unlock()

	if !started {
		return
	}
	p.wg.Wait()

	p.log.Debug("[worker] all workers stopped")
}
