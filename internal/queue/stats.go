package queue

import (
	"context"
	"encoding/json"
	"sort"

	"go.uber.org/zap"
)

// PartitionStats is the per-partition rollup.
type PartitionStats struct {
	Depth        int64 `json:"depth"`
	InFlight     int64 `json:"in_flight"`
	DeadLettered int64 `json:"dead_lettered"`
}

// Stats is the repository-wide rollup returned by Queue.Stats.
type Stats struct {
	TotalMessages      int64                     `json:"total_messages"`
	ProcessingMessages int64                     `json:"processing_messages"`
	FailedMessages     int64                     `json:"failed_messages"`
	Partitions         map[string]PartitionStats `json:"queues_by_partition"`
}

// Stats reports queue depth, in-flight count, and dead-letter count for every
// known partition plus totals. Read-only; membership sets are checked against
// the live entries so TTL-expired dead letters are not counted (and their
// stale members are dropped in passing).
func (q *Queue) Stats(ctx context.Context) (*Stats, error) {
	parts, err := q.store.SetMembers(ctx, keyPartitions)
	if err != nil {
		return nil, err
	}
	sort.Strings(parts)

	out := &Stats{Partitions: make(map[string]PartitionStats, len(parts))}
	for _, partition := range parts {
		ps := PartitionStats{}

		depth, err := q.store.Length(ctx, logKey(partition))
		if err != nil {
			return nil, err
		}
		ps.Depth = depth

		inflight, err := q.store.SetMembers(ctx, processingSetKey(partition))
		if err != nil {
			return nil, err
		}
		ps.InFlight = int64(len(inflight))

		dead, err := q.store.SetMembers(ctx, deadLetterSetKey(partition))
		if err != nil {
			return nil, err
		}
		for _, id := range dead {
			live, err := q.store.Exists(ctx, deadLetterKey(partition, id))
			if err != nil {
				return nil, err
			}
			if !live {
				q.logger.Debug("stats: pruning expired dead letter",
					zap.String("partition", partition), zap.String("message_id", id))
				_ = q.store.SetRemove(ctx, deadLetterSetKey(partition), id)
				continue
			}
			ps.DeadLettered++
		}

		out.Partitions[partition] = ps
		out.TotalMessages += ps.Depth
		out.ProcessingMessages += ps.InFlight
		out.FailedMessages += ps.DeadLettered
	}
	return out, nil
}

// DeadLetters returns the live dead-letter entries for a partition.
func (q *Queue) DeadLetters(ctx context.Context, partition string) ([]DeadLetterEntry, error) {
	ids, err := q.store.SetMembers(ctx, deadLetterSetKey(partition))
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	entries := make([]DeadLetterEntry, 0, len(ids))
	for _, id := range ids {
		raw, err := q.store.Get(ctx, deadLetterKey(partition, id))
		if err != nil {
			continue
		}
		var dle DeadLetterEntry
		if jsonErr := json.Unmarshal(raw, &dle); jsonErr != nil {
			q.logger.Warn("undecodable dead letter",
				zap.String("partition", partition), zap.String("message_id", id), zap.Error(jsonErr))
			continue
		}
		entries = append(entries, dle)
	}
	return entries, nil
}

// DeleteDeadLetter removes one dead-letter entry by hand (ops surface).
func (q *Queue) DeleteDeadLetter(ctx context.Context, partition, messageID string) error {
	if err := q.store.Delete(ctx, deadLetterKey(partition, messageID)); err != nil {
		return err
	}
	return q.store.SetRemove(ctx, deadLetterSetKey(partition), messageID)
}
