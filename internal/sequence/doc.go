// Package sequence assigns dense per-conversation sequence numbers so
// downstream consumers can order messages within a conversation. The live
// counter is cached with a TTL and backed by a durable shadow key that
// survives cache eviction.
package sequence
