// Package worker runs normalization passes requested through the queue.
package worker

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/arena/internal/adapters/mq/queue"
	"github.com/okian/arena/internal/domain/normalize"
	"github.com/okian/arena/pkg/logger"
	"github.com/okian/arena/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerCount  = 2
	defaultPassTimeout  = 30 * time.Second
	poolShutdownTimeout = 30 * time.Second
)

// Request is what workers read off the queue.
type Request = queue.Request

// Normalizer runs one normalization pass.
type Normalizer interface {
	Normalize(ctx context.Context) (normalize.Report, error)
}

// Queue defines how workers receive requests.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Request
}

// Worker consumes normalization requests.
type Worker interface {
	// Run starts the worker loop until ctx is canceled, Shutdown is called,
	// or the queue is closed and drained.
	Run(ctx context.Context)

	// Shutdown stops the worker after its current pass.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker processes requests from an in-process queue.
type InMemoryWorker struct {
	queue      Queue
	normalizer Normalizer
	name       string
	timeout    time.Duration

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	processed atomic.Int64
	failed    atomic.Int64

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, n Normalizer, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:      q,
		normalizer: n,
		name:       "worker",
		timeout:    defaultPassTimeout,
		shutdown:   make(chan struct{}),
		done:       make(chan struct{}),
		logger:     logger.Nop(),
	}

	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.Named(w.name)

	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	requests := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case req, ok := <-requests:
			if !ok {
				return
			}
			if m, ok := w.queue.(interface{ MarkDequeued() }); ok {
				m.MarkDequeued()
			}
			if err := w.process(ctx, req); err != nil {
				w.logger.Error(ctx, "normalization pass failed",
					logger.String("request_id", req.ID),
					logger.String("trigger", req.Trigger),
					logger.Error(err),
				)
			}
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Processed returns the number of passes that completed without error.
func (w *InMemoryWorker) Processed() int64 { return w.processed.Load() }

// Failed returns the number of passes that failed or panicked.
func (w *InMemoryWorker) Failed() int64 { return w.failed.Load() }

// process runs one pass. A panic inside the normalizer is turned into an
// error so the worker keeps serving.
func (w *InMemoryWorker) process(ctx context.Context, req Request) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("normalizer panic: %v", r)
		}
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Microseconds()) / 1000.0)
		if err != nil {
			w.failed.Add(1)
			metrics.RecordWorkerError()
			return
		}
		w.processed.Add(1)
	}()

	passCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	report, err := w.normalizer.Normalize(passCtx)
	if err != nil {
		return fmt.Errorf("request %s: %w", req.ID, err)
	}
	if report.Applied() {
		w.logger.Debug(ctx, "normalization applied",
			logger.String("request_id", req.ID),
			logger.Duration("took", report.Took),
			logger.Duration("queued_for", start.Sub(req.RequestedAt)),
		)
	}
	return nil
}

// Pool manages multiple workers.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue

	logger logger.Logger
}

// NewPool creates a new worker pool.
func NewPool(workerCount int, q Queue, n Normalizer, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = defaultWorkerCount
	}

	pool := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   q,
		logger:  logger.Nop(),
	}
	// Options are applied once up front to pick up the shared logger.
	base := &InMemoryWorker{}
	for _, opt := range opts {
		opt(base)
	}
	if base.logger != nil {
		pool.logger = base.logger.Named("worker-pool")
	}

	for i := 0; i < workerCount; i++ {
		workerOpts := append([]Option{}, opts...)
		workerOpts = append(workerOpts, WithName("worker-"+strconv.Itoa(i)))
		pool.workers[i] = NewInMemoryWorker(q, n, workerOpts...)
	}

	metrics.UpdateWorkerActiveCount(0)

	return pool
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	metrics.UpdateWorkerActiveCount(len(p.workers))
	p.logger.Info(ctx, "worker pool started", logger.Int("workers", len(p.workers)))
}

// Processed sums completed passes across workers.
func (p *Pool) Processed() int64 {
	var n int64
	for _, w := range p.workers {
		n += w.Processed()
	}
	return n
}

// Failed sums failed passes across workers.
func (p *Pool) Failed() int64 {
	var n int64
	for _, w := range p.workers {
		n += w.Failed()
	}
	return n
}

// Shutdown closes the queue, lets workers drain what is already queued and
// stops them. Workers still busy when ctx (or the pool timeout) expires are
// told to stop after their current pass.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var timedOut bool
	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			timedOut = true
			p.logger.Warn(ctx, "worker drain timed out", logger.Int("worker_id", i))
		}
	}
	for _, w := range p.workers {
		w.shutdownOnce.Do(func() { close(w.shutdown) })
	}
	metrics.UpdateWorkerActiveCount(0)
	if timedOut {
		return fmt.Errorf("worker pool shutdown: %w", shutdownCtx.Err())
	}
	return nil
}
