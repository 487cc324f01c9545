package intake

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/sniperthink/chatqueue/internal/lock"
	"github.com/sniperthink/chatqueue/internal/message"
	"github.com/sniperthink/chatqueue/internal/queue"
	"github.com/sniperthink/chatqueue/internal/sequence"
	"github.com/sniperthink/chatqueue/pkg/log"
)

// ErrDuplicate means an identical message arrived within the dedup window.
// Webhook providers redeliver on slow responses; a duplicate is dropped and
// acknowledged as success so the provider stops resending.
var ErrDuplicate = errors.New("intake: duplicate delivery")

// ErrUnavailable means the store-bound enqueue path is tripped open.
var ErrUnavailable = errors.New("intake: temporarily unavailable")

// Receipt describes an accepted message.
type Receipt struct {
	MessageID    string `json:"message_id"`
	PartitionKey string `json:"partition_key"`
	Sequence     int64  `json:"sequence"`
}

// Options tunes the intake pipeline.
type Options struct {
	// DedupWindow is how long a delivery's fingerprint suppresses repeats.
	DedupWindow time.Duration
}

// Intake is the webhook ingestion head: decode, deduplicate, assign a
// sequence number, enqueue.
type Intake struct {
	queue   *queue.Queue
	locks   *lock.Manager
	seq     *sequence.Generator
	breaker *gobreaker.CircuitBreaker
	window  time.Duration
	logger  *log.Logger
}

// New builds an Intake. The circuit breaker guards the enqueue path: five
// consecutive store failures open it for 10s so a dead backend sheds webhook
// load fast instead of timing out every request.
func New(q *queue.Queue, locks *lock.Manager, seq *sequence.Generator, opts Options, logger *log.Logger) *Intake {
	if logger == nil {
		logger = log.NewNop()
	}
	if opts.DedupWindow <= 0 {
		opts.DedupWindow = time.Minute
	}
	in := &Intake{
		queue:  q,
		locks:  locks,
		seq:    seq,
		window: opts.DedupWindow,
		logger: logger.Named("intake"),
	}
	in.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "enqueue",
		Timeout: 10 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
		// backpressure is the partition doing its job, not a store outage
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, queue.ErrCapacityExceeded)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			in.logger.Warn("breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return in
}

// HandleInbound runs one webhook delivery through the pipeline. Returns
// ErrDuplicate for redeliveries, queue.ErrCapacityExceeded when the target
// partition is full (the caller should answer 429), and ErrUnavailable when
// the breaker is open.
func (in *Intake) HandleInbound(ctx context.Context, env *message.Envelope) (*Receipt, error) {
	if err := env.Validate(); err != nil {
		return nil, err
	}
	partition := env.PartitionKey()

	token, err := in.locks.Acquire(ctx, dedupKey(env), in.window, 0)
	if err != nil {
		return nil, fmt.Errorf("dedup check: %w", err)
	}
	if token == "" {
		// the lock holds for the full window; an early release would
		// reopen the dedup gap while the provider is still retrying
		in.logger.Info("duplicate delivery dropped",
			zap.String("partition", partition),
			zap.String("platform", string(env.Platform)))
		return nil, ErrDuplicate
	}

	seq, err := in.seq.Next(ctx, partition)
	if err != nil {
		return nil, fmt.Errorf("assign sequence: %w", err)
	}

	payload, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	msg := &queue.QueuedMessage{
		MessageID:    uuid.NewString(),
		PartitionKey: partition,
		Payload:      payload,
	}

	_, err = in.breaker.Execute(func() (interface{}, error) {
		return nil, in.queue.Enqueue(ctx, msg, 0)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, ErrUnavailable
	}
	if err != nil {
		return nil, err
	}

	in.logger.Debug("message accepted",
		zap.String("partition", partition),
		zap.String("message_id", msg.MessageID),
		zap.Int64("sequence", seq))
	return &Receipt{MessageID: msg.MessageID, PartitionKey: partition, Sequence: seq}, nil
}

// dedupKey fingerprints a delivery by everything a provider redelivers
// verbatim: platform, addressing, body, and the platform timestamp.
func dedupKey(env *message.Envelope) string {
	h := sha256.New()
	h.Write([]byte(env.Platform))
	h.Write([]byte{0})
	h.Write([]byte(env.Sender()))
	h.Write([]byte{0})
	h.Write([]byte(env.PartitionKey()))
	h.Write([]byte{0})
	h.Write([]byte(env.Text()))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatInt(env.Timestamp(), 10)))
	return "dedup/" + hex.EncodeToString(h.Sum(nil))
}
