package quote

import (
	"context"
	"sync"
	"time"

	"github.com/gatti/quote-cache/internal/platform/observability"
	"github.com/gatti/quote-cache/internal/platform/resilience"
)

// WorkerPoolConfig holds worker pool settings.
type WorkerPoolConfig struct {
	Workers     int
	MaxAttempts int
	RetryBase   time.Duration
	RetryMax    time.Duration
}

// WorkerPool drains the refresh queue with a fixed number of workers. Each
// worker independently dequeues, fetches through the upstream gate, and
// writes the store, so one slow upstream call never stalls the rest of the
// pool. Failed jobs are re-enqueued after an exponential backoff until
// their attempts run out.
type WorkerPool struct {
	queue    *RefreshQueue
	upstream *Upstream
	store    *Store
	registry *Registry
	cfg      WorkerPoolConfig
	logger   *observability.Logger
	metrics  *Metrics
	otel     *observability.Metrics

	wg      sync.WaitGroup
	timerMu sync.Mutex
	timers  map[*time.Timer]struct{}
}

// NewWorkerPool creates a pool; Start launches it.
func NewWorkerPool(queue *RefreshQueue, upstream *Upstream, store *Store, registry *Registry, cfg WorkerPoolConfig, logger *observability.Logger, metrics *Metrics, otel *observability.Metrics) *WorkerPool {
	if cfg.Workers <= 0 {
		cfg.Workers = 10
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 2 * time.Second
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = 30 * time.Second
	}

	return &WorkerPool{
		queue:    queue,
		upstream: upstream,
		store:    store,
		registry: registry,
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		otel:     otel,
		timers:   make(map[*time.Timer]struct{}),
	}
}

// Start launches the workers. They run until ctx is cancelled.
func (p *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			p.run(ctx, id)
		}(i)
	}
}

// Wait blocks until every worker has exited and pending retry timers are
// stopped. Call after cancelling the context passed to Start.
func (p *WorkerPool) Wait() {
	p.wg.Wait()

	p.timerMu.Lock()
	defer p.timerMu.Unlock()
	for timer := range p.timers {
		timer.Stop()
	}
	p.timers = make(map[*time.Timer]struct{})
}

func (p *WorkerPool) run(ctx context.Context, id int) {
	for {
		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			return
		}

		p.metrics.JobStarted()
		p.execute(ctx, job)
	}
}

// execute fetches the job's quote and writes the store. Background jobs are
// detached from their enqueuer, so the worker's ctx (process lifetime)
// bounds the call, not a client deadline.
func (p *WorkerPool) execute(ctx context.Context, job *Job) {
	raw, err := p.upstream.Fetch(ctx, job.Request)
	if err != nil {
		p.handleFailure(ctx, job, err)
		return
	}

	entry := NewEntry(raw, p.registry.TierOf(job.PairKey))
	p.store.Set(ctx, job.Key, entry)

	p.metrics.JobFinished(true)
	if p.otel != nil {
		p.otel.RecordRefreshJob(ctx, job.Priority.String(), "completed")
	}
}

func (p *WorkerPool) handleFailure(ctx context.Context, job *Job, err error) {
	job.AttemptsRemaining--

	if job.AttemptsRemaining <= 0 {
		p.metrics.JobFinished(false)
		if p.otel != nil {
			p.otel.RecordRefreshJob(ctx, job.Priority.String(), "failed")
		}
		p.logger.LogWarn(ctx, "refresh job failed, attempts exhausted",
			"key", job.Key,
			"priority", job.Priority.String(),
			"error", err.Error(),
		)
		return
	}

	attempt := p.cfg.MaxAttempts - job.AttemptsRemaining - 1
	delay := resilience.Backoff(attempt, p.cfg.RetryBase, p.cfg.RetryMax, 0)

	p.logger.LogDebug(ctx, "refresh job failed, retrying",
		"key", job.Key,
		"attempts_remaining", job.AttemptsRemaining,
		"delay", delay.String(),
		"error", err.Error(),
	)

	// The retry waits on a timer instead of parking the worker.
	p.metrics.JobRetried()
	if p.otel != nil {
		p.otel.RecordRefreshJob(ctx, job.Priority.String(), "retried")
	}

	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		p.timerMu.Lock()
		delete(p.timers, timer)
		p.timerMu.Unlock()

		if ctx.Err() != nil {
			return
		}
		if err := p.queue.Enqueue(ctx, job); err != nil {
			p.logger.LogDebug(ctx, "refresh retry dropped, queue full", "key", job.Key)
		}
	})

	p.timerMu.Lock()
	p.timers[timer] = struct{}{}
	p.timerMu.Unlock()
}
