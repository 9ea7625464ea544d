package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/hupe1980/dexter/logging"
)

// DefaultWorkers is the pool size used when none is configured.
const DefaultWorkers = 4

// Job is the unit of work run by a Pool.
type Job func(ctx context.Context) (string, error)

// PoolOptions configures a Pool.
type PoolOptions struct {
	Workers int
	Logger  logging.Logger
}

// Pool runs jobs with at most Workers of them in flight. Submit never
// blocks; queued jobs wait for a free slot in their own goroutine.
type Pool struct {
	sem    *semaphore.Weighted
	ctx    context.Context
	cancel context.CancelFunc
	logger logging.Logger

	mu     sync.Mutex
	closed bool
	group  errgroup.Group
}

// NewPool creates a pool.
func NewPool(optFns ...func(o *PoolOptions)) *Pool {
	opts := PoolOptions{
		Workers: DefaultWorkers,
		Logger:  logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		sem:    semaphore.NewWeighted(int64(opts.Workers)),
		ctx:    ctx,
		cancel: cancel,
		logger: opts.Logger,
	}
}

// Submit schedules job and returns its handle immediately.
func (p *Pool) Submit(name string, job Job) *Handle {
	jobCtx, cancel := context.WithCancel(p.ctx)
	h := newHandle(name, cancel)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		cancel()
		h.resolve("", ErrPoolClosed)
		return h
	}

	p.logger.Debug("task.submitted", "task_id", h.id, "name", name)
	p.group.Go(func() error {
		defer cancel()
		if err := p.sem.Acquire(jobCtx, 1); err != nil {
			h.resolve("", ErrCancelled)
			p.logger.Debug("task.cancelled", "task_id", h.id, "name", name)
			return nil
		}
		defer p.sem.Release(1)

		h.running.Store(true)
		start := time.Now()
		result, err := runJob(jobCtx, job)
		if err != nil && h.cancelled.Load() && errors.Is(err, context.Canceled) {
			err = ErrCancelled
		}
		h.resolve(result, err)
		p.logger.Info("task.finished", "task_id", h.id, "name", name,
			"duration_ms", time.Since(start).Milliseconds(), "success", err == nil)
		return nil
	})
	return h
}

// Shutdown stops accepting jobs, cancels queued and running jobs and waits
// for them to return or for ctx to be done.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.cancel()

	done := make(chan struct{})
	go func() {
		_ = p.group.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func runJob(ctx context.Context, job Job) (result string, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = "", fmt.Errorf("task: job panicked: %v", r)
		}
	}()
	return job(ctx)
}
