// Package worker schedules pipeline runs off the request path.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jonathan/pdfprep/internal/jobs"
	"github.com/jonathan/pdfprep/internal/pipeline"
)

var (
	// ErrQueueFull is returned by Submit when every worker is busy and the
	// queue has no free slot.
	ErrQueueFull = errors.New("job queue is full")
	// ErrClosed is returned by Submit after Shutdown has started.
	ErrClosed = errors.New("job queue is shutting down")
)

// Runner executes one pipeline task to completion. Expire closes out a task
// whose deadline passed while it was still queued.
type Runner interface {
	Run(ctx context.Context, task pipeline.Task) jobs.Record
	Expire(task pipeline.Task) jobs.Record
}

// Stats is a snapshot of the pool's load.
type Stats struct {
	Workers  int `json:"workers"`
	Queued   int `json:"queued"`
	Capacity int `json:"capacity"`
	InFlight int `json:"in_flight"`
}

// entry is a queued task. Whichever of the worker and the deadline timer
// claims it first decides whether the task runs or expires.
type entry struct {
	task    pipeline.Task
	timer   *time.Timer
	claimed atomic.Bool
}

func (e *entry) claim() bool {
	return e.claimed.CompareAndSwap(false, true)
}

// Pool runs tasks on a fixed number of workers fed by a bounded queue. With
// zero workers every task gets its own goroutine and Submit never reports a
// full queue. A task whose deadline passes while it waits is expired without
// waiting for a worker.
type Pool struct {
	runner    Runner
	logger    *slog.Logger
	workers   int
	queueSize int

	ch       chan *entry
	group    errgroup.Group
	ctx      context.Context
	cancel   context.CancelFunc
	inFlight atomic.Int64

	mu     sync.RWMutex
	closed bool
}

type Option func(*Pool)

// WithWorkers sets the number of workers; 0 selects one goroutine per task.
func WithWorkers(n int) Option {
	return func(p *Pool) {
		if n >= 0 {
			p.workers = n
		}
	}
}

// WithQueueSize sets how many tasks may wait for a free worker.
func WithQueueSize(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.queueSize = n
		}
	}
}

// New creates a pool and starts its workers.
func New(runner Runner, logger *slog.Logger, opts ...Option) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool{
		runner:    runner,
		logger:    logger,
		workers:   4,
		queueSize: 64,
	}
	for _, o := range opts {
		o(p)
	}
	p.ctx, p.cancel = context.WithCancel(context.Background())
	if p.workers > 0 {
		p.ch = make(chan *entry, p.queueSize)
		p.start()
	}
	return p
}

func (p *Pool) start() {
	for i := 0; i < p.workers; i++ {
		workerID := i + 1
		p.group.Go(func() error {
			p.logger.Debug("worker started", "worker_id", workerID)
			for e := range p.ch {
				if !e.claim() {
					continue
				}
				if e.timer != nil {
					e.timer.Stop()
				}
				p.execute(workerID, e.task)
			}
			p.logger.Debug("worker stopped", "worker_id", workerID)
			return nil
		})
	}
}

// Submit hands task to the pool without waiting for it to run.
func (p *Pool) Submit(_ context.Context, task pipeline.Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.logger.Warn("cannot enqueue: queue is shutting down", "job_id", task.JobID)
		return ErrClosed
	}

	if p.workers == 0 {
		p.group.Go(func() error {
			p.execute(0, task)
			return nil
		})
		return nil
	}

	e := &entry{task: task}
	if !task.Deadline.IsZero() {
		e.timer = time.AfterFunc(time.Until(task.Deadline), func() { p.expire(e) })
	}
	select {
	case p.ch <- e:
		p.logger.Info("queued file for processing", "job_id", task.JobID, "queued", len(p.ch))
		return nil
	default:
		e.claim()
		if e.timer != nil {
			e.timer.Stop()
		}
		p.logger.Warn("queue full, rejecting upload", "job_id", task.JobID, "capacity", p.queueSize)
		return ErrQueueFull
	}
}

// expire runs on the deadline timer of a queued task.
func (p *Pool) expire(e *entry) {
	if !e.claim() {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("runner panicked expiring task", "job_id", e.task.JobID, "panic", r)
		}
	}()
	rec := p.runner.Expire(e.task)
	p.logger.Warn("task expired in queue", "job_id", e.task.JobID, "status", rec.Status)
}

func (p *Pool) execute(workerID int, task pipeline.Task) {
	p.inFlight.Add(1)
	defer p.inFlight.Add(-1)
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("runner panicked", "worker_id", workerID, "job_id", task.JobID,
				"panic", r, "stack", string(debug.Stack()))
		}
	}()

	rec := p.runner.Run(p.ctx, task)
	p.logger.Info("job finished", "worker_id", workerID, "job_id", task.JobID, "status", rec.Status)
}

// Stats reports the current load.
func (p *Pool) Stats() Stats {
	s := Stats{Workers: p.workers, InFlight: int(p.inFlight.Load())}
	if p.ch != nil {
		s.Queued = len(p.ch)
		s.Capacity = cap(p.ch)
	}
	return s
}

// Shutdown stops intake and waits for queued and running tasks. If ctx ends
// first the runs still in progress are cancelled and ctx's error is returned
// without waiting for them to observe it.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	if p.ch != nil {
		close(p.ch)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = p.group.Wait()
	}()

	select {
	case <-done:
		p.cancel()
		p.logger.Info("queue drained, shutdown complete")
		return nil
	case <-ctx.Done():
		p.cancel()
		p.logger.Warn("shutdown interrupted by context, cancelling running jobs")
		return ctx.Err()
	}
}
