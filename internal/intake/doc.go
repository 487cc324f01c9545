// Package intake is the head of the ingestion pipeline: it turns validated
// webhook payloads into queued messages. Duplicate deliveries are suppressed
// with a time-windowed lock keyed on a payload fingerprint, each message gets
// a per-conversation sequence number, and the store-bound enqueue runs behind
// a circuit breaker.
package intake
