package redisstore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sniperthink/chatqueue/internal/storage"
)

// Options configures the Redis-backed store.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// Store implements storage.Store over a Redis server: plain keys with TTLs,
// native INCR and sets, and lists as per-partition append logs.
type Store struct {
	client *redis.Client
}

var _ storage.Store = (*Store)(nil)

// Open connects to Redis and verifies the connection.
func Open(ctx context.Context, opts Options) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &Store{client: client}, nil
}

func (s *Store) Close() error { return s.client.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.client.Ping(ctx).Err() }

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrNotFound
	}
	return b, err
}

func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return s.client.Set(ctx, key, value, ttl).Err()
}

func (s *Store) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if ttl < 0 {
		ttl = 0
	}
	return s.client.SetNX(ctx, key, value, ttl).Result()
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	return n > 0, err
}

func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return s.client.Expire(ctx, key, ttl).Err()
}

func (s *Store) Incr(ctx context.Context, key string) (int64, error) {
	return s.client.Incr(ctx, key).Result()
}

func (s *Store) SetAdd(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	return s.client.SAdd(ctx, key, args...).Err()
}

func (s *Store) SetRemove(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	return s.client.SRem(ctx, key, args...).Err()
}

func (s *Store) SetMembers(ctx context.Context, key string) ([]string, error) {
	return s.client.SMembers(ctx, key).Result()
}

// Append-log over Redis lists. Entries are addressed by payload bytes, so
// DeleteEntry is an LREM of the first matching value.

func (s *Store) Append(ctx context.Context, partition string, payload []byte) (uint64, error) {
	if err := s.client.RPush(ctx, partition, payload).Err(); err != nil {
		return 0, err
	}
	return 0, nil
}

func (s *Store) ReadFrom(ctx context.Context, partition string, offset int64, limit int) ([]storage.Entry, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = offset + int64(limit) - 1
	}
	vals, err := s.client.LRange(ctx, partition, offset, stop).Result()
	if err != nil {
		return nil, err
	}
	entries := make([]storage.Entry, 0, len(vals))
	for _, v := range vals {
		entries = append(entries, storage.Entry{Payload: []byte(v)})
	}
	return entries, nil
}

func (s *Store) DeleteEntry(ctx context.Context, partition string, e storage.Entry) error {
	return s.client.LRem(ctx, partition, 1, e.Payload).Err()
}

func (s *Store) Length(ctx context.Context, partition string) (int64, error) {
	return s.client.LLen(ctx, partition).Result()
}
