package queue

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sniperthink/chatqueue/pkg/log"
)

// Handler processes one dequeued message. Returning nil acknowledges it;
// returning an error requeues it (or dead-letters it when the error is
// wrapped with NonRetryable or retries are exhausted). Handlers must be
// idempotent: delivery is at-least-once.
type Handler func(ctx context.Context, msg *QueuedMessage) error

// WorkerPool runs N polling consumers against a queue. Dequeue never blocks,
// so each worker sleeps PollInterval between empty polls. While a handler
// runs, a heartbeat goroutine extends the lease at half the lease timeout.
type WorkerPool struct {
	queue     *Queue
	handler   Handler
	workers   int
	partition string // empty = any partition
	logger    *log.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// PoolOptions configures a WorkerPool.
type PoolOptions struct {
	// Workers is the number of concurrent consumers (default 4).
	Workers int
	// Partition pins the pool to one partition; empty accepts work from any.
	Partition string
}

// NewWorkerPool creates a pool; Start must be called to begin consuming.
func NewWorkerPool(q *Queue, handler Handler, opts PoolOptions, logger *log.Logger) *WorkerPool {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if logger == nil {
		logger = log.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerPool{
		queue:     q,
		handler:   handler,
		workers:   opts.Workers,
		partition: opts.Partition,
		logger:    logger.Named("workers"),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start() {
	for i := 0; i < wp.workers; i++ {
		wp.wg.Add(1)
		go wp.run(i)
	}
	wp.logger.Info("worker pool started",
		zap.Int("workers", wp.workers),
		zap.String("partition", wp.partition))
}

// Stop cancels all workers and waits for in-flight handlers to return.
func (wp *WorkerPool) Stop() {
	wp.cancel()
	wp.wg.Wait()
	wp.logger.Info("worker pool stopped")
}

func (wp *WorkerPool) run(id int) {
	defer wp.wg.Done()
	poll := wp.queue.Config().PollInterval

	for {
		select {
		case <-wp.ctx.Done():
			return
		default:
		}

		msg, lease, err := wp.queue.Dequeue(wp.ctx, wp.partition, 0)
		if err != nil {
			wp.logger.Error("dequeue failed", zap.Int("worker", id), zap.Error(err))
			wp.sleep(poll)
			continue
		}
		if msg == nil {
			wp.sleep(poll)
			continue
		}
		wp.process(id, msg, lease)
	}
}

func (wp *WorkerPool) sleep(d time.Duration) {
	select {
	case <-wp.ctx.Done():
	case <-time.After(d):
	}
}

func (wp *WorkerPool) process(id int, msg *QueuedMessage, lease *ProcessingLease) {
	hbCtx, stopHeartbeat := context.WithCancel(wp.ctx)
	defer stopHeartbeat()
	go wp.heartbeat(hbCtx, lease)

	err := wp.handler(wp.ctx, msg)
	stopHeartbeat()

	if err == nil {
		if cErr := wp.queue.Complete(wp.ctx, lease); cErr != nil {
			wp.logger.Warn("complete failed", zap.Int("worker", id), zap.Error(cErr))
		}
		return
	}

	retry := !IsNonRetryable(err)
	if fErr := wp.queue.Fail(wp.ctx, lease, err, retry, 0); fErr != nil {
		wp.logger.Error("fail reporting failed",
			zap.Int("worker", id),
			zap.String("message_id", msg.MessageID),
			zap.Error(fErr))
	}
}

// heartbeat extends the lease until its context is cancelled. The extended
// lease keeps the same message and lease identity, so the worker's final
// Complete/Fail is unaffected by the deadline moving.
func (wp *WorkerPool) heartbeat(ctx context.Context, lease *ProcessingLease) {
	interval := wp.queue.Config().LeaseTimeout / 2
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	current := lease
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			extended, err := wp.queue.ExtendLease(ctx, current, 0, 0)
			if err != nil {
				wp.logger.Warn("lease heartbeat failed",
					zap.String("message_id", lease.MessageID), zap.Error(err))
				continue
			}
			current = extended
		}
	}
}
