// Package queue implements an in-process job queue with at-least-once
// delivery, per-job attempt tracking, and exponential backoff redelivery.
// Scheduling is a min-heap keyed by next-eligible time; execution is handed
// to a bounded worker pool. It stands in for any durable FIFO/priority job
// queue satisfying the same contract.
package queue

import (
	"container/heap"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Delivery outcome sentinels. Handlers classify failures by wrapping these;
// any other error counts as a business failure against the job's attempts.
var (
	// ErrTransient marks an infrastructure-level condition (e.g. lock
	// contention). The job is redelivered without consuming an attempt.
	ErrTransient = errors.New("transient job failure")

	// ErrPermanent marks a failure that redelivery cannot fix (e.g. an
	// invalid state transition). The job is dropped immediately.
	ErrPermanent = errors.New("permanent job failure")
)

// Transient wraps err so the queue redelivers without charging an attempt
func Transient(err error) error {
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// Permanent wraps err so the queue drops the job without redelivery
func Permanent(err error) error {
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// Job is a single unit of work. AttemptsMade is the 1-based delivery count
// as observed by the handler.
type Job struct {
	ID           string
	Payload      json.RawMessage
	MaxAttempts  int
	AttemptsMade int

	nextRunAt time.Time
	index     int // heap index
}

// JobOptions override queue defaults for a single job
type JobOptions struct {
	MaxAttempts int // 0 means use the queue default
}

// Handler processes one delivery of a job
type Handler func(ctx context.Context, job *Job) error

// Runner bounds concurrent job execution. *ants.Pool satisfies it.
type Runner interface {
	Submit(task func()) error
}

// Config holds per-queue retry defaults
type Config struct {
	DefaultMaxAttempts int
	Backoff            Backoff
}

// Queue schedules jobs and drives them through a handler
type Queue struct {
	name    string
	cfg     Config
	runner  Runner
	logger  *slog.Logger
	handler Handler

	mu      sync.Mutex
	jobs    jobHeap
	wake    chan struct{}
	started bool

	wg sync.WaitGroup // in-flight handler executions
}

// New creates a queue. A nil runner executes each job on its own goroutine.
func New(name string, cfg Config, runner Runner, logger *slog.Logger) *Queue {
	if cfg.DefaultMaxAttempts <= 0 {
		cfg.DefaultMaxAttempts = 1
	}
	return &Queue{
		name:   name,
		cfg:    cfg,
		runner: runner,
		logger: logger.With("queue", name),
		wake:   make(chan struct{}, 1),
	}
}

// Enqueue marshals the payload and schedules a job for immediate delivery.
// Returns the job id.
func (q *Queue) Enqueue(ctx context.Context, payload interface{}, opts JobOptions) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	value, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job payload for queue %s: %w", q.name, err)
	}

	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = q.cfg.DefaultMaxAttempts
	}

	job := &Job{
		ID:          uuid.New().String(),
		Payload:     value,
		MaxAttempts: maxAttempts,
		nextRunAt:   time.Now(),
	}

	q.mu.Lock()
	heap.Push(&q.jobs, job)
	q.mu.Unlock()
	q.signal()

	q.logger.Debug("Job enqueued", "job_id", job.ID, "max_attempts", job.MaxAttempts)
	return job.ID, nil
}

// Start begins delivering jobs to the handler until ctx is canceled
func (q *Queue) Start(ctx context.Context, handler Handler) {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		q.logger.Warn("Queue already started, ignoring duplicate Start")
		return
	}
	q.started = true
	q.handler = handler
	q.mu.Unlock()

	q.logger.Info("Queue started",
		"default_max_attempts", q.cfg.DefaultMaxAttempts,
		"backoff_base", q.cfg.Backoff.Base.String(),
	)

	go q.run(ctx)
}

// Wait blocks until all in-flight handler executions finish. Call after the
// Start context is canceled.
func (q *Queue) Wait() {
	q.wg.Wait()
}

// Depth returns the number of jobs waiting for delivery
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.jobs.Len()
}

func (q *Queue) run(ctx context.Context) {
	for {
		q.mu.Lock()
		var job *Job
		wait := time.Duration(-1)
		if q.jobs.Len() > 0 {
			now := time.Now()
			if next := q.jobs[0].nextRunAt; !next.After(now) {
				job = heap.Pop(&q.jobs).(*Job)
			} else {
				wait = next.Sub(now)
			}
		}
		q.mu.Unlock()

		if job != nil {
			q.dispatch(ctx, job)
			continue
		}

		if wait < 0 {
			select {
			case <-ctx.Done():
				q.logger.Info("Queue stopping, context canceled")
				return
			case <-q.wake:
			}
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			q.logger.Info("Queue stopping, context canceled")
			return
		case <-q.wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// dispatch hands one delivery to the runner. The attempt counter is bumped
// before the handler observes the job, so handlers see a 1-based count.
func (q *Queue) dispatch(ctx context.Context, job *Job) {
	job.AttemptsMade++
	q.wg.Add(1)

	execute := func() {
		defer q.wg.Done()
		err := q.handler(ctx, job)
		q.settle(job, err)
	}

	if q.runner == nil {
		go execute()
		return
	}
	if err := q.runner.Submit(execute); err != nil {
		// Pool saturated or released: fall back to an unbounded goroutine
		// rather than losing the delivery.
		q.logger.Warn("Worker pool rejected job, executing directly", "job_id", job.ID, "error", err)
		go execute()
	}
}

// settle applies the delivery outcome to the job's schedule
func (q *Queue) settle(job *Job, err error) {
	switch {
	case err == nil:
		q.logger.Debug("Job completed", "job_id", job.ID, "attempts_made", job.AttemptsMade)

	case errors.Is(err, ErrPermanent):
		q.logger.Error("Job permanently failed, no redelivery",
			"job_id", job.ID,
			"attempts_made", job.AttemptsMade,
			"error", err,
		)

	case errors.Is(err, ErrTransient):
		// Infrastructure-level failure: uncharge the attempt and redeliver
		// after the base delay.
		job.AttemptsMade--
		q.logger.Debug("Job delivery deferred by transient failure",
			"job_id", job.ID,
			"attempts_made", job.AttemptsMade,
			"error", err,
		)
		q.requeue(job, q.cfg.Backoff.Base)

	default:
		if job.AttemptsMade >= job.MaxAttempts {
			q.logger.Error("Job failed on final attempt",
				"job_id", job.ID,
				"attempts_made", job.AttemptsMade,
				"max_attempts", job.MaxAttempts,
				"error", err,
			)
			return
		}
		delay := q.cfg.Backoff.Delay(job.AttemptsMade)
		q.logger.Warn("Job failed, scheduling redelivery",
			"job_id", job.ID,
			"attempts_made", job.AttemptsMade,
			"max_attempts", job.MaxAttempts,
			"delay", delay.String(),
			"error", err,
		)
		q.requeue(job, delay)
	}
}

func (q *Queue) requeue(job *Job, delay time.Duration) {
	job.nextRunAt = time.Now().Add(delay)
	q.mu.Lock()
	heap.Push(&q.jobs, job)
	q.mu.Unlock()
	q.signal()
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// jobHeap orders jobs by next-eligible time
type jobHeap []*Job

func (h jobHeap) Len() int { return len(h) }

func (h jobHeap) Less(i, j int) bool { return h[i].nextRunAt.Before(h[j].nextRunAt) }

func (h jobHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *jobHeap) Push(x interface{}) {
	job := x.(*Job)
	job.index = len(*h)
	*h = append(*h, job)
}

func (h *jobHeap) Pop() interface{} {
	old := *h
	n := len(old)
	job := old[n-1]
	old[n-1] = nil
	job.index = -1
	*h = old[:n-1]
	return job
}
