package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sniperthink/chatqueue/internal/storage"
	"github.com/sniperthink/chatqueue/pkg/log"
)

// RecoverExpiredLeases scans every known partition's in-flight entries and
// re-appends messages whose lease deadline has passed. The retry count is not
// touched: recovery handles a presumed crash, not a processing failure.
// Returns the number of messages returned to their partitions.
func (q *Queue) RecoverExpiredLeases(ctx context.Context, nowMs int64) (int, error) {
	nowMs = nowOr(nowMs)
	parts, err := q.store.SetMembers(ctx, keyPartitions)
	if err != nil {
		return 0, err
	}

	recovered := 0
	for _, partition := range parts {
		ids, err := q.store.SetMembers(ctx, processingSetKey(partition))
		if err != nil {
			q.logger.Warn("sweep: list in-flight failed", zap.String("partition", partition), zap.Error(err))
			continue
		}
		for _, id := range ids {
			raw, err := q.store.Get(ctx, processingKey(partition, id))
			if errors.Is(err, storage.ErrNotFound) {
				// entry outlived its TTL before the sweep got here; the
				// message data is gone, drop the stale membership
				q.logger.Warn("sweep: processing entry expired from store",
					zap.String("partition", partition), zap.String("message_id", id))
				_ = q.store.SetRemove(ctx, processingSetKey(partition), id)
				continue
			}
			if err != nil {
				q.logger.Warn("sweep: load entry failed",
					zap.String("partition", partition), zap.String("message_id", id), zap.Error(err))
				continue
			}
			var entry ProcessingEntry
			if err := json.Unmarshal(raw, &entry); err != nil {
				q.logger.Warn("sweep: undecodable entry",
					zap.String("partition", partition), zap.String("message_id", id), zap.Error(err))
				continue
			}
			if !entry.Lease.Expired(nowMs) {
				continue
			}

			rawMsg, err := json.Marshal(&entry.Message)
			if err != nil {
				q.logger.Warn("sweep: encode message failed", zap.String("message_id", id), zap.Error(err))
				continue
			}
			if _, err := q.store.Append(ctx, logKey(partition), rawMsg); err != nil {
				q.logger.Warn("sweep: requeue failed",
					zap.String("partition", partition), zap.String("message_id", id), zap.Error(err))
				continue
			}
			q.cleanupInFlight(ctx, &entry.Lease)
			recovered++
			q.logger.Info("sweep: reclaimed expired lease",
				zap.String("partition", partition),
				zap.String("message_id", id),
				zap.Int64("expired_at", entry.Lease.ExpiresAt))
		}
	}
	if recovered > 0 {
		q.observer.LeasesRecovered(recovered)
	}
	return recovered, nil
}

// Sweeper runs RecoverExpiredLeases on a fixed interval so an idle partition
// with a crashed worker still gets swept.
type Sweeper struct {
	queue    *Queue
	interval time.Duration
	logger   *log.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSweeper creates a sweeper over q. A zero interval defaults to 5s.
func NewSweeper(q *Queue, interval time.Duration, logger *log.Logger) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if logger == nil {
		logger = log.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Sweeper{
		queue:    q,
		interval: interval,
		logger:   logger.Named("sweeper"),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins the background sweep loop.
func (s *Sweeper) Start() {
	s.wg.Add(1)
	go s.run()
}

// Stop cancels the loop and waits for it to exit.
func (s *Sweeper) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *Sweeper) run() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("sweeper started", zap.Duration("interval", s.interval))
	for {
		select {
		case <-s.ctx.Done():
			s.logger.Info("sweeper stopped")
			return
		case <-ticker.C:
			n, err := s.queue.RecoverExpiredLeases(s.ctx, 0)
			if err != nil {
				s.logger.Error("sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				s.logger.Info("sweep recovered leases", zap.Int("count", n))
			}
		}
	}
}
