package pebblestore

import (
	"context"
	"encoding/binary"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/sniperthink/chatqueue/internal/storage"
)

// Options configures the embedded store.
type Options struct {
	// DataDir is the path to the Pebble database directory.
	DataDir string
	// Sync requests a WAL fsync on each committed write. Defaults to true.
	NoSync bool
}

// Store implements storage.Store over an embedded Pebble database. Key
// expiry is encoded as an 8-byte unix-ms prefix on each value and enforced
// lazily on read.
type Store struct {
	db        *pebble.DB
	writeOpts *pebble.WriteOptions

	// guards read-modify-write cycles (Incr, Expire)
	mu sync.Mutex
}

var _ storage.Store = (*Store)(nil)

// Open creates or opens the Pebble database at opts.DataDir.
func Open(opts Options) (*Store, error) {
	if opts.DataDir == "" {
		return nil, errors.New("pebblestore: Options.DataDir is required")
	}
	db, err := pebble.Open(opts.DataDir, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	wo := pebble.Sync
	if opts.NoSync {
		wo = pebble.NoSync
	}
	return &Store{db: db, writeOpts: wo}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	it, err := s.db.NewIter(nil)
	if err != nil {
		return err
	}
	return it.Close()
}

// encodeValue prefixes payload with its expiry deadline (0 = none).
func encodeValue(payload []byte, ttl time.Duration) []byte {
	var exp uint64
	if ttl > 0 {
		exp = uint64(time.Now().Add(ttl).UnixMilli())
	}
	out := make([]byte, 8+len(payload))
	binary.BigEndian.PutUint64(out[:8], exp)
	copy(out[8:], payload)
	return out
}

// decodeValue returns the payload, or false when the value has expired.
func decodeValue(raw []byte) ([]byte, bool) {
	if len(raw) < 8 {
		return nil, false
	}
	exp := binary.BigEndian.Uint64(raw[:8])
	if exp != 0 && int64(exp) <= time.Now().UnixMilli() {
		return nil, false
	}
	return append([]byte(nil), raw[8:]...), true
}

func (s *Store) getRaw(key []byte) ([]byte, error) {
	raw, closer, err := s.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	defer closer.Close()
	return append([]byte(nil), raw...), nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	raw, err := s.getRaw(kvKey(key))
	if err != nil {
		return nil, err
	}
	payload, ok := decodeValue(raw)
	if !ok {
		// expired; drop lazily
		_ = s.db.Delete(kvKey(key), s.writeOpts)
		return nil, storage.ErrNotFound
	}
	return payload, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.db.Set(kvKey(key), encodeValue(value, ttl), s.writeOpts)
}

func (s *Store) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, err := s.getRaw(kvKey(key))
	if err == nil {
		if _, live := decodeValue(raw); live {
			return false, nil
		}
	} else if !errors.Is(err, storage.ErrNotFound) {
		return false, err
	}
	if err := s.db.Set(kvKey(key), encodeValue(value, ttl), s.writeOpts); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.db.Delete(kvKey(key), s.writeOpts)
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, err := s.getRaw(kvKey(key))
	if err != nil {
		return err
	}
	payload, ok := decodeValue(raw)
	if !ok {
		return storage.ErrNotFound
	}
	return s.db.Set(kvKey(key), encodeValue(payload, ttl), s.writeOpts)
}

func (s *Store) Incr(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var cur int64
	raw, err := s.getRaw(kvKey(key))
	if err == nil {
		if payload, ok := decodeValue(raw); ok {
			cur, err = strconv.ParseInt(string(payload), 10, 64)
			if err != nil {
				return 0, err
			}
		}
	} else if !errors.Is(err, storage.ErrNotFound) {
		return 0, err
	}
	cur++
	// counters carry no expiry; Expire sets one explicitly when wanted
	if err := s.db.Set(kvKey(key), encodeValue([]byte(strconv.FormatInt(cur, 10)), 0), s.writeOpts); err != nil {
		return 0, err
	}
	return cur, nil
}

func (s *Store) SetAdd(ctx context.Context, key string, members ...string) error {
	b := s.db.NewBatch()
	defer b.Close()
	for _, m := range members {
		if err := b.Set(setMemberKey(key, m), nil, nil); err != nil {
			return err
		}
	}
	return b.Commit(s.writeOpts)
}

func (s *Store) SetRemove(ctx context.Context, key string, members ...string) error {
	b := s.db.NewBatch()
	defer b.Close()
	for _, m := range members {
		if err := b.Delete(setMemberKey(key, m), nil); err != nil {
			return err
		}
	}
	return b.Commit(s.writeOpts)
}

func (s *Store) SetMembers(ctx context.Context, key string) ([]string, error) {
	prefix := setScanPrefix(key)
	it, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: upperBound(prefix)})
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var members []string
	for ok := it.First(); ok; ok = it.Next() {
		k := it.Key()
		if len(k) <= len(prefix) {
			continue
		}
		members = append(members, string(k[len(prefix):]))
	}
	return members, nil
}
