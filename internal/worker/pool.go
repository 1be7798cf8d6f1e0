// Package worker runs import jobs in the background with bounded
// concurrency and a global start rate.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/FACorreiaa/smart-finance-importer/pkg/metrics"
)

var (
	ErrQueueFull = errors.New("worker queue is full")
	ErrClosed    = errors.New("worker pool is closed")
)

// JobProcessor processes one import job by id.
type JobProcessor interface {
	ProcessJob(ctx context.Context, jobID int64) error
}

// Config tunes the pool.
type Config struct {
	Concurrency   int
	JobsPerSecond float64
	Burst         int
	QueueSize     int
	// JobTimeout bounds a single job; zero means no limit.
	JobTimeout time.Duration
}

// Pool is an in-process job queue. A job id is held at most once between
// Enqueue and the end of its processing, so a sweeper can re-submit ids
// without running them twice.
type Pool struct {
	processor JobProcessor
	jobs      chan int64
	limiter   *rate.Limiter
	cfg       Config
	metrics   *metrics.Metrics
	logger    *slog.Logger

	mu      sync.Mutex
	pending map[int64]struct{}
	closed  bool
}

// New creates a pool. Run must be called to start processing.
func New(processor JobProcessor, cfg Config, logger *slog.Logger) *Pool {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1
	}
	limit := rate.Inf
	if cfg.JobsPerSecond > 0 {
		limit = rate.Limit(cfg.JobsPerSecond)
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}

	return &Pool{
		processor: processor,
		jobs:      make(chan int64, cfg.QueueSize),
		limiter:   rate.NewLimiter(limit, cfg.Burst),
		cfg:       cfg,
		logger:    logger,
		pending:   make(map[int64]struct{}),
	}
}

// WithMetrics publishes the queue depth.
func (p *Pool) WithMetrics(m *metrics.Metrics) *Pool {
	p.metrics = m
	return p
}

// Enqueue schedules jobID. Ids already queued or running are accepted
// without being queued again. It never blocks.
func (p *Pool) Enqueue(ctx context.Context, jobID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	if _, ok := p.pending[jobID]; ok {
		p.logger.DebugContext(ctx, "job already scheduled", "job_id", jobID)
		return nil
	}

	select {
	case p.jobs <- jobID:
		p.pending[jobID] = struct{}{}
		p.metrics.SetQueueDepth(len(p.jobs))
		return nil
	default:
		return ErrQueueFull
	}
}

// Pending returns the number of jobs queued or running.
func (p *Pool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// Run processes jobs until ctx is cancelled, then waits for running jobs.
// Jobs still queued at that point stay SENT in the store and are picked up
// by the next sweep.
func (p *Pool) Run(ctx context.Context) error {
	p.logger.InfoContext(ctx, "worker pool started",
		"concurrency", p.cfg.Concurrency,
		"jobs_per_second", p.cfg.JobsPerSecond,
		"queue_size", p.cfg.QueueSize,
	)

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.cfg.Concurrency; i++ {
		worker := i
		g.Go(func() error {
			p.loop(ctx, worker)
			return nil
		})
	}
	err := g.Wait()

	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.logger.Info("worker pool stopped", "abandoned", len(p.jobs))
	return err
}

func (p *Pool) loop(ctx context.Context, worker int) {
	for {
		select {
		case <-ctx.Done():
			return
		case jobID := <-p.jobs:
			p.metrics.SetQueueDepth(len(p.jobs))
			if err := p.limiter.Wait(ctx); err != nil {
				p.done(jobID)
				return
			}
			p.run(ctx, worker, jobID)
		}
	}
}

// run detaches the job from pool shutdown: a started job always finishes.
func (p *Pool) run(ctx context.Context, worker int, jobID int64) {
	defer p.done(jobID)

	ctx = context.WithoutCancel(ctx)
	if p.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.JobTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			p.logger.ErrorContext(ctx, "import job panicked", "job_id", jobID, "worker", worker, "panic", r)
		}
	}()

	started := time.Now()
	if err := p.processor.ProcessJob(ctx, jobID); err != nil {
		p.logger.ErrorContext(ctx, "import job returned an error",
			"job_id", jobID,
			"worker", worker,
			slog.Any("error", err),
		)
		return
	}
	p.logger.DebugContext(ctx, "import job done", "job_id", jobID, "worker", worker, "duration", time.Since(started))
}

func (p *Pool) done(jobID int64) {
	p.mu.Lock()
	delete(p.pending, jobID)
	p.mu.Unlock()
}
