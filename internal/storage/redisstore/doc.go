// Package redisstore implements storage.Store over Redis. It is the
// production backend: TTLs, INCR, and sets map to native Redis commands and
// the per-partition append log maps to a Redis list (RPUSH/LRANGE/LREM).
package redisstore
