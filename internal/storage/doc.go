// Package storage defines the key/value and append-log primitives the queue
// subsystem is built on, independent of any concrete backend.
//
// Two implementations exist:
//
//   - redisstore: production backend over a Redis server (lists as logs,
//     plain keys with TTLs, native INCR and sets)
//   - pebblestore: embedded single-node backend over Pebble, used for local
//     development and by the package tests
//
// All operations are I/O-bound and fallible; callers treat every call as
// potentially slow and propagate errors per their own policy.
package storage
