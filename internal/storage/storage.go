package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key is absent or has expired.
var ErrNotFound = errors.New("storage: not found")

// KeyValueStore is the key/value surface the queue subsystem builds on:
// plain get/set/delete with TTLs, an atomic counter, and member sets.
type KeyValueStore interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set writes key=value. ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// SetNX writes key=value only if the key is absent. Reports whether the
	// write happened.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// Exists reports whether key is present and unexpired.
	Exists(ctx context.Context, key string) (bool, error)
	// Expire resets the TTL on an existing key.
	Expire(ctx context.Context, key string, ttl time.Duration) error
	// Incr atomically increments the integer stored at key, creating it at 0
	// first when absent, and returns the new value.
	Incr(ctx context.Context, key string) (int64, error)
	// SetAdd adds members to the set stored at key.
	SetAdd(ctx context.Context, key string, members ...string) error
	// SetRemove removes members from the set stored at key.
	SetRemove(ctx context.Context, key string, members ...string) error
	// SetMembers returns all members of the set stored at key. An absent set
	// yields an empty slice, not an error.
	SetMembers(ctx context.Context, key string) ([]string, error)
}

// Entry is a single append-log record. Seq addresses the record in backends
// with native sequence keys (pebble); the redis backend addresses records by
// their payload bytes and leaves Seq at zero.
type Entry struct {
	Seq     uint64
	Payload []byte
}

// AppendLog is a per-partition ordered log: append at the tail, read from an
// offset, remove individual entries once consumed.
type AppendLog interface {
	// Append adds payload at the tail of the partition's log and returns the
	// assigned sequence (zero for backends without native sequences).
	Append(ctx context.Context, partition string, payload []byte) (uint64, error)
	// ReadFrom returns up to limit entries starting at offset (0 = oldest).
	ReadFrom(ctx context.Context, partition string, offset int64, limit int) ([]Entry, error)
	// DeleteEntry removes one previously read entry. Removing an entry that is
	// already gone is not an error.
	DeleteEntry(ctx context.Context, partition string, e Entry) error
	// Length returns the number of live entries in the partition.
	Length(ctx context.Context, partition string) (int64, error)
}

// Store is the combined backend surface the queue subsystem is wired with.
type Store interface {
	KeyValueStore
	AppendLog

	Ping(ctx context.Context) error
	Close() error
}
