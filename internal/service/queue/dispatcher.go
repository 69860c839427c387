// Package queue runs conversion jobs on a fixed set of workers behind a
// bounded waiting line.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/emanuelef/yt-convert-go/internal/domain"
)

var (
	// ErrQueueFull is returned when every worker is busy and the waiting line
	// is at capacity.
	ErrQueueFull = errors.New("job queue is full")
	// ErrDispatcherStopped is returned for jobs submitted or still waiting
	// after Stop.
	ErrDispatcherStopped = errors.New("dispatcher has been stopped")
)

const defaultQueueSize = 10

// JobProcessor drives one job to a terminal stage.
type JobProcessor func(ctx context.Context, job *domain.Job)

// Dispatcher admits jobs without blocking and hands them to workers.
type Dispatcher struct {
	pending chan *domain.Job
	quit    chan struct{}
	workers int
	run     JobProcessor

	// gate is held for reading by Enqueue and for writing by Stop so that
	// nothing is sent on pending after it is closed.
	gate    sync.RWMutex
	stopped bool

	wg      sync.WaitGroup
	running atomic.Int64
}

// NewDispatcher creates a dispatcher with workers goroutines and room for
// queueSize waiting jobs. Non-positive sizes fall back to 1 worker and 10
// slots.
func NewDispatcher(workers, queueSize int, run JobProcessor) *Dispatcher {
	if queueSize < 1 {
		queueSize = defaultQueueSize
	}
	return &Dispatcher{
		pending: make(chan *domain.Job, queueSize),
		quit:    make(chan struct{}),
		workers: max(workers, 1),
		run:     run,
	}
}

// Start launches the workers. They exit on Stop or when ctx ends.
func (d *Dispatcher) Start(ctx context.Context) {
	d.wg.Add(d.workers)
	for n := 0; n < d.workers; n++ {
		go d.loop(ctx, n)
	}
	slog.Info("Dispatcher started", "workers", d.workers, "queue_size", cap(d.pending))
}

func (d *Dispatcher) loop(ctx context.Context, n int) {
	defer d.wg.Done()
	log := slog.With("worker_id", n)

	for {
		var job *domain.Job
		select {
		case <-d.quit:
			return
		case <-ctx.Done():
			return
		case j, ok := <-d.pending:
			if !ok {
				return
			}
			job = j
		}

		if !job.Claim() {
			log.Debug("Skipping withdrawn job", "job_id", job.ID)
			continue
		}
		log.Debug("Job picked up", "job_id", job.ID, "waited", time.Since(job.CreatedAt))
		d.execute(ctx, job)
	}
}

// execute runs one job. A panicking processor fails the job and leaves the
// worker alive.
func (d *Dispatcher) execute(ctx context.Context, job *domain.Job) {
	d.running.Add(1)
	defer d.running.Add(-1)

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Job processor panicked", "job_id", job.ID, "panic", r)
			job.MarkFailed(fmt.Errorf("job processor panicked: %v", r))
		}
	}()

	if d.run == nil {
		job.MarkFailed(errors.New("no job processor configured"))
		return
	}
	d.run(ctx, job)
}

// Enqueue admits job or fails fast with ErrQueueFull or ErrDispatcherStopped.
func (d *Dispatcher) Enqueue(job *domain.Job) error {
	d.gate.RLock()
	defer d.gate.RUnlock()

	if d.stopped {
		return ErrDispatcherStopped
	}

	select {
	case d.pending <- job:
		slog.Debug("Job queued", "job_id", job.ID, "waiting", len(d.pending))
		return nil
	default:
		slog.Warn("Rejecting job, queue full", "job_id", job.ID, "capacity", cap(d.pending))
		return ErrQueueFull
	}
}

// Stop waits for running jobs to return, then fails whatever is still
// waiting with ErrDispatcherStopped. It is safe to call more than once.
func (d *Dispatcher) Stop() {
	d.gate.Lock()
	if d.stopped {
		d.gate.Unlock()
		return
	}
	d.stopped = true
	close(d.quit)
	close(d.pending)
	d.gate.Unlock()

	d.wg.Wait()

	var dropped int
	for job := range d.pending {
		job.MarkFailed(ErrDispatcherStopped)
		dropped++
	}
	slog.Info("Dispatcher stopped", "dropped_jobs", dropped)
}

// QueueSize is the number of jobs waiting for a worker.
func (d *Dispatcher) QueueSize() int { return len(d.pending) }

// QueueCapacity is the maximum number of waiting jobs.
func (d *Dispatcher) QueueCapacity() int { return cap(d.pending) }

// IsFull reports whether the next Enqueue would be rejected.
func (d *Dispatcher) IsFull() bool { return len(d.pending) == cap(d.pending) }

// WorkerCount is the number of workers.
func (d *Dispatcher) WorkerCount() int { return d.workers }

// ActiveCount is the number of jobs currently inside the processor.
func (d *Dispatcher) ActiveCount() int { return int(d.running.Load()) }
