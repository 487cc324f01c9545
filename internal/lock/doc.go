// Package lock provides advisory locks over the key-value store, used to
// deduplicate concurrent webhook deliveries at intake. Locks are
// token-guarded and expire on their own; a crashed holder never wedges the
// resource.
package lock
