// Package queue implements the partitioned message delivery queue.
//
// Each partition (one conversation) is an append log of pending messages
// consumed strictly oldest-first. Dequeue moves the head into an in-flight
// processing entry guarded by a time-limited lease; Complete discards it,
// Fail re-appends it with an incremented retry count or dead-letters it once
// retries are exhausted. A background Sweeper returns messages whose lease
// expired without acknowledgement, which is the only cancellation mechanism:
// workers are never interrupted mid-handler.
//
// Delivery is at-least-once. The dequeue read and delete are separate store
// operations, so concurrent consumers of one partition can double-deliver;
// handlers must tolerate duplicates.
package queue
