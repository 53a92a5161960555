package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

var (
	// ErrQueueFull is returned by Submit when the buffer has no room.
	ErrQueueFull = errors.New("sync queue is full")

	// ErrQueueStopped is returned by Submit after Stop.
	ErrQueueStopped = errors.New("sync queue is stopped")
)

// DefaultQueueSize is the number of jobs that may wait behind the running one.
const DefaultQueueSize = 16

// Job is one unit of background work, usually a reconciliation.
type Job struct {
	// ID identifies the job in logs and API responses.
	ID  string
	Run func(ctx context.Context) error
}

// Queue runs submitted jobs one at a time on a single worker goroutine.
// Webhook deliveries and admin triggers all go through it, so writes to the
// directory store never overlap.
type Queue struct {
	jobs   chan Job
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	stopped bool

	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewQueue creates a queue that buffers up to size waiting jobs.
func NewQueue(size int, logger *slog.Logger) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		jobs:   make(chan Job, size),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start launches the worker. Calling it more than once has no effect.
func (q *Queue) Start() {
	q.startOnce.Do(func() {
		q.logger.Info("starting sync queue", slog.Int("size", cap(q.jobs)))
		q.wg.Add(1)
		go q.worker()
	})
}

// Submit enqueues job without blocking.
func (q *Queue) Submit(job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped {
		return ErrQueueStopped
	}
	select {
	case q.jobs <- job:
		q.logger.Debug("job queued", slog.String("job", job.ID), slog.Int("pending", len(q.jobs)))
		return nil
	default:
		return ErrQueueFull
	}
}

// Pending returns the number of jobs waiting to run.
func (q *Queue) Pending() int {
	return len(q.jobs)
}

// Stop rejects new jobs, lets the worker finish the queued ones and waits
// for it. When ctx expires first, the running job's context is cancelled
// and the jobs still waiting are dropped.
func (q *Queue) Stop(ctx context.Context) error {
	q.stopOnce.Do(func() {
		q.logger.Info("stopping sync queue", slog.Int("pending", len(q.jobs)))
		q.mu.Lock()
		q.stopped = true
		close(q.jobs)
		q.mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		<-done
		return ctx.Err()
	}
}

// worker runs jobs until the channel is closed and drained.
func (q *Queue) worker() {
	defer q.wg.Done()

	for job := range q.jobs {
		if q.ctx.Err() != nil {
			q.logger.Warn("dropping job after shutdown", slog.String("job", job.ID))
			continue
		}
		q.run(job)
	}
}

// run executes one job, recovering from panics so the worker survives.
func (q *Queue) run(job Job) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("job panicked", slog.String("job", job.ID), slog.Any("panic", r))
		}
	}()

	q.logger.Info("job started", slog.String("job", job.ID))
	if err := job.Run(q.ctx); err != nil {
		q.logger.Error("job failed", slog.String("job", job.ID), slog.String("error", err.Error()))
		return
	}
	q.logger.Info("job finished", slog.String("job", job.ID))
}
