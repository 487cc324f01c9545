package queue

import "encoding/json"

// QueuedMessage is the unit of work held in a partition's append log. The
// payload is opaque to the queue; only intake and workers decode it.
type QueuedMessage struct {
	MessageID    string          `json:"message_id"`
	PartitionKey string          `json:"partition_key"`
	Payload      json.RawMessage `json:"payload"`
	RetryCount   int             `json:"retry_count"`
	EnqueuedAt   int64           `json:"enqueued_at"`
	LastError    string          `json:"last_error,omitempty"`
	LastFailedAt int64           `json:"last_failed_at,omitempty"`
}

// ProcessingLease is the ownership token for one in-flight attempt. Holding
// an unexpired lease is the sole authorization to Complete, Fail, or extend
// that message.
type ProcessingLease struct {
	MessageID    string `json:"message_id"`
	PartitionKey string `json:"partition_key"`
	LeaseID      string `json:"lease_id"`
	ExpiresAt    int64  `json:"expires_at"`
}

// Expired reports whether the lease deadline has passed at nowMs.
func (l ProcessingLease) Expired(nowMs int64) bool { return l.ExpiresAt <= nowMs }

// ProcessingEntry is the durable record of an in-flight attempt. It outlives
// the append-log entry (deleted at dequeue) so a crashed worker's message can
// be recovered. Its store TTL equals the lease timeout.
type ProcessingEntry struct {
	Message    QueuedMessage   `json:"message"`
	Lease      ProcessingLease `json:"lease"`
	DequeuedAt int64           `json:"dequeued_at"`
}

// DeadLetterEntry is the terminal record for a message that exhausted its
// retries or failed non-retryably. Kept for a fixed retention window for
// inspection; never re-enters the queue automatically.
type DeadLetterEntry struct {
	Message        QueuedMessage `json:"message"`
	Reason         string        `json:"reason"`
	DeadLetteredAt int64         `json:"dead_lettered_at"`
}
