// Package jobs runs pipeline work on background workers with at most one
// in-flight job per key. A Locker extends the key check to every queue
// sharing it, such as separate processes on one database.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/ksuid"

	"starlinks/internal/logger"
)

var (
	// ErrDuplicateJob is returned when a key of the job is already queued or running.
	ErrDuplicateJob = errors.New("job already in flight")

	// ErrQueueClosed is returned by Submit after Stop.
	ErrQueueClosed = errors.New("job queue is closed")

	// ErrQueueFull is returned when the buffer has no room.
	ErrQueueFull = errors.New("job queue is full")
)

// Locker claims job keys outside the queue. Acquire claims all keys for
// jobID or none and reports false when another job holds one of them.
type Locker interface {
	Acquire(ctx context.Context, jobID string, keys []string) (bool, error)
	Release(ctx context.Context, jobID string) error
}

// Option configures a Queue.
type Option func(*Queue)

// WithLocker makes the queue claim job keys through l as well.
func WithLocker(l Locker) Option {
	return func(q *Queue) { q.locker = l }
}

// Func is the unit of work. The context is cancelled when the queue stops.
type Func func(ctx context.Context) error

// Job is a submitted unit of work.
type Job struct {
	ID   string
	Name string
	Keys []string
	// Attempts is the number of tries before the job is reported as failed.
	Attempts int
	// Backoff is the pause between tries.
	Backoff time.Duration

	run Func
}

// Result reports the outcome of a finished job.
type Result struct {
	JobID    string
	Name     string
	Attempts int
	Err      error
	Duration time.Duration
}

// Queue is a fixed pool of workers fed by a buffered channel.
type Queue struct {
	jobs   chan *Job
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	locker Locker

	mu      sync.Mutex
	pending map[string]string
	waiters map[string]chan Result
	closed  bool
}

// NewQueue starts workers goroutines reading from a queue of queueSize.
func NewQueue(workers, queueSize int, opts ...Option) *Queue {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 32
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		jobs:    make(chan *Job, queueSize),
		ctx:     ctx,
		cancel:  cancel,
		pending: make(map[string]string),
		waiters: make(map[string]chan Result),
	}
	for _, opt := range opts {
		opt(q)
	}
	q.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go q.worker(i)
	}
	logger.Debug("Started job workers", "workers", workers, "queue_size", queueSize)
	return q
}

// Submit enqueues fn under keys and returns the job id. It fails with
// ErrDuplicateJob when any key is already in flight.
func (q *Queue) Submit(name string, fn Func, keys ...string) (string, error) {
	return q.SubmitJob(&Job{Name: name, Keys: keys, Attempts: 1}, fn)
}

// SubmitJob enqueues job with its retry settings.
func (q *Queue) SubmitJob(job *Job, fn Func) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return "", ErrQueueClosed
	}
	for _, key := range job.Keys {
		if owner, ok := q.pending[key]; ok {
			return "", fmt.Errorf("%w: %s (job %s)", ErrDuplicateJob, key, owner)
		}
	}

	job.ID = ksuid.New().String()
	job.run = fn
	if job.Attempts <= 0 {
		job.Attempts = 1
	}

	if q.locker != nil && len(job.Keys) > 0 {
		ok, err := q.locker.Acquire(q.ctx, job.ID, job.Keys)
		if err != nil {
			return "", fmt.Errorf("failed to claim job keys: %w", err)
		}
		if !ok {
			return "", fmt.Errorf("%w: %v held by another process", ErrDuplicateJob, job.Keys)
		}
	}

	select {
	case q.jobs <- job:
	default:
		q.release(job)
		return "", ErrQueueFull
	}
	for _, key := range job.Keys {
		q.pending[key] = job.ID
	}
	q.waiters[job.ID] = make(chan Result, 1)
	logger.Debug("Job queued", "job_id", job.ID, "job", job.Name, "keys", job.Keys)
	return job.ID, nil
}

// Wait blocks until the job finishes or ctx ends.
func (q *Queue) Wait(ctx context.Context, jobID string) (Result, error) {
	q.mu.Lock()
	ch, ok := q.waiters[jobID]
	q.mu.Unlock()
	if !ok {
		return Result{}, fmt.Errorf("unknown job %s", jobID)
	}

	select {
	case res := <-ch:
		q.mu.Lock()
		delete(q.waiters, jobID)
		q.mu.Unlock()
		return res, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// InFlight reports whether key belongs to a queued or running job.
func (q *Queue) InFlight(key string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.pending[key]
	return ok
}

// Stop closes the queue, lets workers drain queued jobs and waits for them.
// Cancelling ctx aborts running jobs.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()

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

func (q *Queue) worker(id int) {
	defer q.wg.Done()
	for job := range q.jobs {
		res := q.execute(id, job)
		q.release(job)

		q.mu.Lock()
		for _, key := range job.Keys {
			delete(q.pending, key)
		}
		ch := q.waiters[job.ID]
		q.mu.Unlock()

		if ch != nil {
			ch <- res
		}
	}
}

func (q *Queue) execute(worker int, job *Job) Result {
	log := logger.Get().With("job_id", job.ID, "job", job.Name, "worker", worker)
	start := time.Now()
	res := Result{JobID: job.ID, Name: job.Name}

	for attempt := 1; attempt <= job.Attempts; attempt++ {
		res.Attempts = attempt
		res.Err = q.runSafely(job)
		if res.Err == nil || q.ctx.Err() != nil {
			break
		}
		log.Warn("Job attempt failed", "attempt", attempt, "error", res.Err)
		if attempt < job.Attempts && job.Backoff > 0 {
			select {
			case <-time.After(job.Backoff):
			case <-q.ctx.Done():
			}
		}
	}

	res.Duration = time.Since(start)
	if res.Err != nil {
		log.Error("Job failed", "attempts", res.Attempts, "error", res.Err)
	} else {
		log.Info("Job finished", "attempts", res.Attempts, "duration", res.Duration)
	}
	return res
}

// release drops the external claim of job. It runs after the queue context
// may have been cancelled, so it uses its own.
func (q *Queue) release(job *Job) {
	if q.locker == nil || len(job.Keys) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := q.locker.Release(ctx, job.ID); err != nil {
		logger.Warn("Failed to release job keys", "job_id", job.ID, "keys", job.Keys, "error", err)
	}
}

func (q *Queue) runSafely(job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.Name, r)
		}
	}()
	return job.run(q.ctx)
}
