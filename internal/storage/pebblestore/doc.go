// Package pebblestore implements storage.Store over an embedded Pebble
// database for single-node deployments and tests.
//
// Expiry is application-level: every value carries an 8-byte unix-ms
// deadline prefix checked on read, so a key "expires" the first time it is
// observed past its deadline. Counters and member sets never expire on
// their own.
package pebblestore
