package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sniperthink/chatqueue/internal/storage"
	"github.com/sniperthink/chatqueue/pkg/log"
)

// Config carries the queue tuning knobs.
type Config struct {
	// MaxQueueSize is the per-partition backpressure threshold.
	MaxQueueSize int
	// LeaseTimeout is how long an unacknowledged lease stays valid.
	LeaseTimeout time.Duration
	// MaxRetries is the number of failed attempts before dead-lettering.
	MaxRetries int
	// DeadLetterRetention bounds how long dead-letter entries are kept.
	DeadLetterRetention time.Duration
	// PollInterval is advisory for consumer loops.
	PollInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = 1000
	}
	if c.LeaseTimeout <= 0 {
		c.LeaseTimeout = 30 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.DeadLetterRetention <= 0 {
		c.DeadLetterRetention = 24 * time.Hour
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 250 * time.Millisecond
	}
	return c
}

// Observer receives queue lifecycle notifications (metrics hook).
type Observer interface {
	MessageEnqueued(partition string)
	MessageDequeued(partition string)
	MessageCompleted(partition string)
	MessageFailed(partition string, deadLettered bool)
	LeasesRecovered(n int)
}

type noopObserver struct{}

func (noopObserver) MessageEnqueued(string)     {}
func (noopObserver) MessageDequeued(string)     {}
func (noopObserver) MessageCompleted(string)    {}
func (noopObserver) MessageFailed(string, bool) {}
func (noopObserver) LeasesRecovered(int)        {}

// Queue is the partitioned delivery queue: pending messages live in a
// per-partition append log, in-flight attempts in TTL'd processing entries
// guarded by leases. Delivery is at-least-once; the dequeue read-then-delete
// is two store operations and two readers racing the same partition can, in
// principle, both observe the oldest entry. Downstream handlers must be
// idempotent.
type Queue struct {
	store    storage.Store
	cfg      Config
	logger   *log.Logger
	observer Observer

	mu   sync.Mutex
	next int // rotating start index for any-partition dequeue
}

// New constructs a Queue over the given store.
func New(store storage.Store, cfg Config, logger *log.Logger) *Queue {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Queue{
		store:    store,
		cfg:      cfg.withDefaults(),
		logger:   logger.Named("queue"),
		observer: noopObserver{},
	}
}

// WithObserver attaches a lifecycle observer and returns the queue.
func (q *Queue) WithObserver(o Observer) *Queue {
	if o != nil {
		q.observer = o
	}
	return q
}

// Config returns the effective configuration.
func (q *Queue) Config() Config { return q.cfg }

func nowOr(nowMs int64) int64 {
	if nowMs <= 0 {
		return time.Now().UnixMilli()
	}
	return nowMs
}

// Enqueue appends msg to its partition's log. Returns ErrCapacityExceeded
// when the partition already holds MaxQueueSize pending messages; store
// errors are propagated unchanged. If nowMs <= 0, the wall clock is used.
func (q *Queue) Enqueue(ctx context.Context, msg *QueuedMessage, nowMs int64) error {
	if msg.MessageID == "" || msg.PartitionKey == "" {
		return errors.New("queue: message id and partition key are required")
	}
	depth, err := q.store.Length(ctx, logKey(msg.PartitionKey))
	if err != nil {
		return fmt.Errorf("queue depth: %w", err)
	}
	if depth >= int64(q.cfg.MaxQueueSize) {
		return fmt.Errorf("%w: partition %s holds %d messages", ErrCapacityExceeded, msg.PartitionKey, depth)
	}

	msg.EnqueuedAt = nowOr(nowMs)
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if _, err := q.store.Append(ctx, logKey(msg.PartitionKey), raw); err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	if err := q.store.SetAdd(ctx, keyPartitions, msg.PartitionKey); err != nil {
		// partition registry is best-effort; the next enqueue re-adds it
		q.logger.Warn("register partition failed", zap.String("partition", msg.PartitionKey), zap.Error(err))
	}
	q.observer.MessageEnqueued(msg.PartitionKey)
	return nil
}

// Dequeue removes the oldest pending message from partitionKey (or from any
// non-empty partition when partitionKey is empty), persists a processing
// entry with a fresh lease, and returns both. Returns (nil, nil, nil) when no
// partition has work; callers poll with their own interval.
func (q *Queue) Dequeue(ctx context.Context, partitionKey string, nowMs int64) (*QueuedMessage, *ProcessingLease, error) {
	nowMs = nowOr(nowMs)
	if partitionKey != "" {
		return q.dequeuePartition(ctx, partitionKey, nowMs)
	}

	parts, err := q.store.SetMembers(ctx, keyPartitions)
	if err != nil {
		return nil, nil, fmt.Errorf("list partitions: %w", err)
	}
	if len(parts) == 0 {
		return nil, nil, nil
	}
	sort.Strings(parts)

	q.mu.Lock()
	start := q.next % len(parts)
	q.next++
	q.mu.Unlock()

	for i := 0; i < len(parts); i++ {
		p := parts[(start+i)%len(parts)]
		msg, lease, err := q.dequeuePartition(ctx, p, nowMs)
		if err != nil {
			return nil, nil, err
		}
		if msg != nil {
			return msg, lease, nil
		}
	}
	return nil, nil, nil
}

func (q *Queue) dequeuePartition(ctx context.Context, partition string, nowMs int64) (*QueuedMessage, *ProcessingLease, error) {
	entries, err := q.store.ReadFrom(ctx, logKey(partition), 0, 1)
	if err != nil {
		return nil, nil, fmt.Errorf("read partition %s: %w", partition, err)
	}
	if len(entries) == 0 {
		return nil, nil, nil
	}
	head := entries[0]

	var msg QueuedMessage
	if err := json.Unmarshal(head.Payload, &msg); err != nil {
		// undecodable entries are dropped so they cannot wedge the partition
		q.logger.Warn("dropping undecodable entry", zap.String("partition", partition), zap.Error(err))
		_ = q.store.DeleteEntry(ctx, logKey(partition), head)
		return nil, nil, nil
	}

	if err := q.store.DeleteEntry(ctx, logKey(partition), head); err != nil {
		return nil, nil, fmt.Errorf("remove log entry: %w", err)
	}

	lease := ProcessingLease{
		MessageID:    msg.MessageID,
		PartitionKey: partition,
		LeaseID:      uuid.NewString(),
		ExpiresAt:    nowMs + q.cfg.LeaseTimeout.Milliseconds(),
	}
	entry := ProcessingEntry{Message: msg, Lease: lease, DequeuedAt: nowMs}
	rawEntry, err := json.Marshal(entry)
	if err != nil {
		return nil, nil, fmt.Errorf("encode processing entry: %w", err)
	}
	rawLease, err := json.Marshal(lease)
	if err != nil {
		return nil, nil, fmt.Errorf("encode lease: %w", err)
	}

	if err := q.store.Set(ctx, processingKey(partition, msg.MessageID), rawEntry, q.cfg.LeaseTimeout); err != nil {
		return nil, nil, fmt.Errorf("persist processing entry: %w", err)
	}
	if err := q.store.Set(ctx, leaseKey(partition, msg.MessageID), rawLease, q.cfg.LeaseTimeout); err != nil {
		return nil, nil, fmt.Errorf("persist lease: %w", err)
	}
	if err := q.store.SetAdd(ctx, processingSetKey(partition), msg.MessageID); err != nil {
		return nil, nil, fmt.Errorf("track processing entry: %w", err)
	}

	q.observer.MessageDequeued(partition)
	return &msg, &lease, nil
}

// Complete acknowledges a processed message: its processing entry and lease
// records are deleted. Completing an already-absent entry (reclaimed by the
// sweep, or completed twice) is a no-op.
func (q *Queue) Complete(ctx context.Context, lease *ProcessingLease) error {
	if err := q.deleteInFlight(ctx, lease.PartitionKey, lease.MessageID); err != nil {
		// cleanup is idempotent; a transient store blip must not crash a
		// worker that already finished processing
		q.logger.Warn("complete cleanup failed",
			zap.String("partition", lease.PartitionKey),
			zap.String("message_id", lease.MessageID),
			zap.Error(err))
		return nil
	}
	q.observer.MessageCompleted(lease.PartitionKey)
	return nil
}

// Fail records a failed attempt. With retry=true and retries remaining, the
// message is re-appended to its partition (retryCount+1, at the back).
// Otherwise it is dead-lettered and never re-queued automatically. Failing a
// message whose processing entry is gone logs and returns nil.
func (q *Queue) Fail(ctx context.Context, lease *ProcessingLease, procErr error, retry bool, nowMs int64) error {
	nowMs = nowOr(nowMs)
	raw, err := q.store.Get(ctx, processingKey(lease.PartitionKey, lease.MessageID))
	if errors.Is(err, storage.ErrNotFound) {
		q.logger.Warn("fail on missing processing entry; already recovered or completed",
			zap.String("partition", lease.PartitionKey),
			zap.String("message_id", lease.MessageID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("load processing entry: %w", err)
	}
	var entry ProcessingEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return fmt.Errorf("decode processing entry: %w", err)
	}

	reason := "unknown"
	if procErr != nil {
		reason = procErr.Error()
	}

	if retry && entry.Message.RetryCount < q.cfg.MaxRetries {
		entry.Message.RetryCount++
		entry.Message.LastError = reason
		entry.Message.LastFailedAt = nowMs
		rawMsg, err := json.Marshal(&entry.Message)
		if err != nil {
			return fmt.Errorf("encode retry message: %w", err)
		}
		if _, err := q.store.Append(ctx, logKey(lease.PartitionKey), rawMsg); err != nil {
			// leave the processing entry in place; the sweep re-delivers
			// once the lease expires
			return fmt.Errorf("requeue message: %w", err)
		}
		q.cleanupInFlight(ctx, lease)
		q.observer.MessageFailed(lease.PartitionKey, false)
		q.logger.Info("message requeued for retry",
			zap.String("partition", lease.PartitionKey),
			zap.String("message_id", lease.MessageID),
			zap.Int("retry_count", entry.Message.RetryCount))
		return nil
	}

	entry.Message.LastError = reason
	entry.Message.LastFailedAt = nowMs
	dle := DeadLetterEntry{Message: entry.Message, Reason: reason, DeadLetteredAt: nowMs}
	rawDLE, err := json.Marshal(&dle)
	if err != nil {
		return fmt.Errorf("encode dead letter: %w", err)
	}
	if err := q.store.Set(ctx, deadLetterKey(lease.PartitionKey, lease.MessageID), rawDLE, q.cfg.DeadLetterRetention); err != nil {
		return fmt.Errorf("write dead letter: %w", err)
	}
	if err := q.store.SetAdd(ctx, deadLetterSetKey(lease.PartitionKey), lease.MessageID); err != nil {
		return fmt.Errorf("track dead letter: %w", err)
	}
	q.cleanupInFlight(ctx, lease)
	q.observer.MessageFailed(lease.PartitionKey, true)
	q.logger.Warn("message dead-lettered",
		zap.String("partition", lease.PartitionKey),
		zap.String("message_id", lease.MessageID),
		zap.Int("retry_count", entry.Message.RetryCount),
		zap.String("reason", reason))
	return nil
}

// ExtendLease pushes the lease deadline to nowMs+extension and refreshes the
// TTLs on both the standalone lease record and the embedded copy in the
// processing entry. Best-effort when the entry was already reclaimed: the
// returned lease carries the new deadline but a later Complete/Fail no-ops.
func (q *Queue) ExtendLease(ctx context.Context, lease *ProcessingLease, extension time.Duration, nowMs int64) (*ProcessingLease, error) {
	if extension <= 0 {
		extension = q.cfg.LeaseTimeout
	}
	nowMs = nowOr(nowMs)
	extended := *lease
	extended.ExpiresAt = nowMs + extension.Milliseconds()

	rawLease, err := json.Marshal(&extended)
	if err != nil {
		return nil, fmt.Errorf("encode lease: %w", err)
	}
	if err := q.store.Set(ctx, leaseKey(lease.PartitionKey, lease.MessageID), rawLease, extension); err != nil {
		return nil, fmt.Errorf("extend lease: %w", err)
	}

	raw, err := q.store.Get(ctx, processingKey(lease.PartitionKey, lease.MessageID))
	if errors.Is(err, storage.ErrNotFound) {
		q.logger.Warn("extend on missing processing entry",
			zap.String("partition", lease.PartitionKey),
			zap.String("message_id", lease.MessageID))
		return &extended, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load processing entry: %w", err)
	}
	var entry ProcessingEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("decode processing entry: %w", err)
	}
	entry.Lease = extended
	rawEntry, err := json.Marshal(&entry)
	if err != nil {
		return nil, fmt.Errorf("encode processing entry: %w", err)
	}
	if err := q.store.Set(ctx, processingKey(lease.PartitionKey, lease.MessageID), rawEntry, extension); err != nil {
		return nil, fmt.Errorf("refresh processing entry: %w", err)
	}
	return &extended, nil
}

// cleanupInFlight removes in-flight records, logging instead of failing:
// whichever of worker and sweep loses the race just sees absent keys.
func (q *Queue) cleanupInFlight(ctx context.Context, lease *ProcessingLease) {
	if err := q.deleteInFlight(ctx, lease.PartitionKey, lease.MessageID); err != nil {
		q.logger.Warn("in-flight cleanup failed",
			zap.String("partition", lease.PartitionKey),
			zap.String("message_id", lease.MessageID),
			zap.Error(err))
	}
}

func (q *Queue) deleteInFlight(ctx context.Context, partition, messageID string) error {
	if err := q.store.Delete(ctx, processingKey(partition, messageID)); err != nil {
		return err
	}
	if err := q.store.Delete(ctx, leaseKey(partition, messageID)); err != nil {
		return err
	}
	return q.store.SetRemove(ctx, processingSetKey(partition), messageID)
}
