package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/netprobe/internal/config"
	"github.com/netprobe/internal/logger"
	"github.com/netprobe/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newPool(parallelism, queue int) *Pool {
	return NewPool(config.Dispatch{Parallelism: parallelism, QueueSize: queue}, metrics.New(), logger.Nop())
}

func TestPoolRunsEveryJob(t *testing.T) {
	p := newPool(4, 2)
	p.Start()

	var ran int64
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		err := p.Submit(context.Background(), Job{Seq: i, Run: func(context.Context) {
			defer wg.Done()
			atomic.AddInt64(&ran, 1)
		}})
		if err != nil {
			t.Fatalf("Submit(%d) returned error: %v", i, err)
		}
	}
	wg.Wait()
	p.Stop()

	if ran != 50 {
		t.Errorf("ran %d jobs, want 50", ran)
	}
}

// TestPoolBoundsConcurrency checks that no more than Parallelism jobs are
// running at any moment
func TestPoolBoundsConcurrency(t *testing.T) {
	const size = 3
	p := newPool(size, 0)
	p.Start()
	defer p.Stop()

	var current, peak int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		p.Submit(context.Background(), Job{Seq: i, Run: func(context.Context) {
			defer wg.Done()
			n := atomic.AddInt64(&current, 1)
			for {
				old := atomic.LoadInt64(&peak)
				if n <= old || atomic.CompareAndSwapInt64(&peak, old, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt64(&current, -1)
		}})
	}
	wg.Wait()

	if peak > size {
		t.Errorf("peak concurrency %d exceeds pool size %d", peak, size)
	}
	if peak < 1 {
		t.Error("no job ran")
	}
}

func TestPoolSubmitCancelled(t *testing.T) {
	p := newPool(1, 0)
	p.Start()
	defer p.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.Submit(ctx, Job{Run: func(context.Context) {
		t.Error("job from a cancelled submit ran")
	}})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Submit() = %v, want context.Canceled", err)
	}
}

// TestPoolSubmitBlocksWhenFull fills the only worker and the queue, then
// expects the next submit to wait until its context expires
func TestPoolSubmitBlocksWhenFull(t *testing.T) {
	p := newPool(1, 1)
	p.Start()

	release := make(chan struct{})
	started := make(chan struct{})
	p.Submit(context.Background(), Job{Run: func(context.Context) {
		close(started)
		<-release
	}})
	<-started
	p.Submit(context.Background(), Job{Run: func(context.Context) {}})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := p.Submit(ctx, Job{Run: func(context.Context) {}}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Submit() on a full pool = %v, want deadline exceeded", err)
	}

	close(release)
	p.Stop()
}

func TestPoolStop(t *testing.T) {
	p := newPool(2, 8)
	p.Start()

	var ran int64
	for i := 0; i < 8; i++ {
		p.Submit(context.Background(), Job{Run: func(context.Context) {
			atomic.AddInt64(&ran, 1)
		}})
	}
	p.Stop()

	if ran != 8 {
		t.Errorf("Stop returned before queued jobs ran: %d of 8", ran)
	}
	if err := p.Submit(context.Background(), Job{Run: func(context.Context) {}}); !errors.Is(err, ErrPoolStopped) {
		t.Errorf("Submit() after Stop = %v, want ErrPoolStopped", err)
	}

	// Stop is idempotent
	p.Stop()
}

func TestPoolMetrics(t *testing.T) {
	m := metrics.New()
	p := NewPool(config.Dispatch{Parallelism: 2, QueueSize: 4}, m, logger.Nop())
	p.Start()

	done := make(chan struct{})
	p.Submit(context.Background(), Job{Run: func(context.Context) {
		if got := testutil.ToFloat64(m.JobsInFlight); got != 1 {
			t.Errorf("jobs in flight during run = %v, want 1", got)
		}
		close(done)
	}})
	<-done
	p.Stop()

	if got := testutil.ToFloat64(m.JobsInFlight); got != 0 {
		t.Errorf("jobs in flight after stop = %v, want 0", got)
	}
	if p.Active() != 0 {
		t.Errorf("Active() = %d after stop", p.Active())
	}
}

func TestPoolRate(t *testing.T) {
	p := NewPool(config.Dispatch{Parallelism: 4, QueueSize: 16, Rate: 20}, metrics.New(), logger.Nop())
	p.Start()

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		p.Submit(context.Background(), Job{Run: func(context.Context) { wg.Done() }})
	}
	wg.Wait()
	p.Stop()

	// burst of 2, then 4 more at 20/s
	if elapsed := time.Since(start); elapsed < 150*time.Millisecond {
		t.Errorf("6 jobs at 20/s finished in %s", elapsed)
	}
}
