package quote

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gatti/quote-cache/internal/pricing"
)

// Priority orders refresh jobs. Higher values dispatch first.
type Priority int

const (
	PriorityBackground Priority = iota
	PriorityNormal
	PriorityHigh
)

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	default:
		return "background"
	}
}

// ErrQueueFull is returned when a job cannot be admitted. Background
// submitters treat it as a silent drop (the next sweep retries); the admin
// force-refresh path surfaces it.
var ErrQueueFull = errors.New("refresh queue is full")

// Job is one pending refresh.
type Job struct {
	Key               string // fingerprint
	PairKey           string
	Request           pricing.QuoteRequest
	Priority          Priority
	AttemptsRemaining int
	SubmittedAt       time.Time
}

// NewJob builds a refresh job for a request.
func NewJob(req pricing.QuoteRequest, priority Priority, maxAttempts int) *Job {
	return &Job{
		Key:               Fingerprint(req),
		PairKey:           req.PairKey(),
		Request:           req,
		Priority:          priority,
		AttemptsRemaining: maxAttempts,
		SubmittedAt:       time.Now(),
	}
}

// RefreshQueue is a bounded three-band priority queue. Within a band jobs
// are FIFO; across bands the highest non-empty band is drained first.
// Structurally identical pending jobs coalesce: at most one job per
// fingerprint per band is pending at a time.
//
// The wakeup channel carries exactly one token per pending job, so a
// dequeue that receives a token always finds a job.
type RefreshQueue struct {
	mu       sync.Mutex
	bands    [3][]*Job
	pending  map[string]struct{}
	capacity int
	size     int
	wakeup   chan struct{}
	metrics  *Metrics
}

// NewRefreshQueue creates a queue bounded to capacity jobs.
func NewRefreshQueue(capacity int, metrics *Metrics) *RefreshQueue {
	if capacity <= 0 {
		capacity = 1000
	}
	return &RefreshQueue{
		pending:  make(map[string]struct{}),
		capacity: capacity,
		wakeup:   make(chan struct{}, capacity),
		metrics:  metrics,
	}
}

func pendingKey(p Priority, fingerprint string) string {
	return p.String() + "|" + fingerprint
}

// Enqueue admits a job. A job identical to one already pending in the same
// band is coalesced away (nil error, no new work). When the queue is full,
// a Normal or High job evicts the oldest Background job; if nothing is
// evictable, or the incoming job is itself Background, ErrQueueFull.
func (q *RefreshQueue) Enqueue(ctx context.Context, job *Job) error {
	q.mu.Lock()

	pk := pendingKey(job.Priority, job.Key)
	if _, dup := q.pending[pk]; dup {
		q.mu.Unlock()
		return nil
	}

	evicted := false
	if q.size >= q.capacity {
		if job.Priority == PriorityBackground || !q.evictOldestBackgroundLocked() {
			q.mu.Unlock()
			return ErrQueueFull
		}
		evicted = true
	}

	q.bands[job.Priority] = append(q.bands[job.Priority], job)
	q.pending[pk] = struct{}{}
	q.size++
	depth := q.size
	q.mu.Unlock()

	q.metrics.SetWaiting(ctx, depth)

	// One wakeup token per resident job. An eviction reuses the evicted
	// job's token, so only a net size increase sends a new one.
	if !evicted {
		q.wakeup <- struct{}{}
	}
	return nil
}

// evictOldestBackgroundLocked drops the head of the Background band.
func (q *RefreshQueue) evictOldestBackgroundLocked() bool {
	band := q.bands[PriorityBackground]
	if len(band) == 0 {
		return false
	}
	oldest := band[0]
	q.bands[PriorityBackground] = band[1:]
	delete(q.pending, pendingKey(PriorityBackground, oldest.Key))
	q.size--
	return true
}

// Dequeue blocks until a job is available or ctx is cancelled, then returns
// the oldest job of the highest non-empty band.
func (q *RefreshQueue) Dequeue(ctx context.Context) (*Job, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-q.wakeup:
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	for p := PriorityHigh; p >= PriorityBackground; p-- {
		band := q.bands[p]
		if len(band) == 0 {
			continue
		}
		job := band[0]
		q.bands[p] = band[1:]
		delete(q.pending, pendingKey(p, job.Key))
		q.size--
		q.metrics.SetWaiting(ctx, q.size)
		return job, nil
	}

	// Unreachable while the token invariant holds.
	return nil, errors.New("refresh queue: wakeup with no pending job")
}

// Len returns the number of pending jobs.
func (q *RefreshQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}
