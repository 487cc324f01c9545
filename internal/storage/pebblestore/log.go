package pebblestore

import (
	"context"
	"encoding/binary"
	"errors"

	"github.com/cockroachdb/pebble"

	"github.com/sniperthink/chatqueue/internal/storage"
)

// Append-log implementation. Entries are keyed by a per-partition big-endian
// sequence so a forward scan yields append order; the partition meta record
// carries lastSeq and a live-entry count so Length avoids a full scan.

func (s *Store) readLogMeta(partition string) (lastSeq, count uint64, err error) {
	raw, err := s.getRaw(logMetaKey(partition))
	if errors.Is(err, storage.ErrNotFound) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, err
	}
	if len(raw) >= 16 {
		lastSeq = binary.BigEndian.Uint64(raw[:8])
		count = binary.BigEndian.Uint64(raw[8:16])
	}
	return lastSeq, count, nil
}

func writeLogMeta(b *pebble.Batch, partition string, lastSeq, count uint64) error {
	var meta [16]byte
	binary.BigEndian.PutUint64(meta[:8], lastSeq)
	binary.BigEndian.PutUint64(meta[8:16], count)
	return b.Set(logMetaKey(partition), meta[:], nil)
}

func (s *Store) Append(ctx context.Context, partition string, payload []byte) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lastSeq, count, err := s.readLogMeta(partition)
	if err != nil {
		return 0, err
	}
	seq := lastSeq + 1

	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Set(logEntryKey(partition, seq), append([]byte(nil), payload...), nil); err != nil {
		return 0, err
	}
	if err := writeLogMeta(b, partition, seq, count+1); err != nil {
		return 0, err
	}
	if err := b.Commit(s.writeOpts); err != nil {
		return 0, err
	}
	return seq, nil
}

func (s *Store) ReadFrom(ctx context.Context, partition string, offset int64, limit int) ([]storage.Entry, error) {
	prefix := logEntryPrefix(partition)
	it, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: upperBound(prefix)})
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var (
		entries []storage.Entry
		idx     int64
	)
	for ok := it.First(); ok; ok = it.Next() {
		if idx < offset {
			idx++
			continue
		}
		if limit > 0 && len(entries) >= limit {
			break
		}
		k := it.Key()
		if len(k) < len(prefix)+8 {
			continue
		}
		seq := binary.BigEndian.Uint64(k[len(k)-8:])
		entries = append(entries, storage.Entry{
			Seq:     seq,
			Payload: append([]byte(nil), it.Value()...),
		})
		idx++
	}
	return entries, nil
}

func (s *Store) DeleteEntry(ctx context.Context, partition string, e storage.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := logEntryKey(partition, e.Seq)
	if _, err := s.getRaw(key); errors.Is(err, storage.ErrNotFound) {
		return nil
	} else if err != nil {
		return err
	}

	lastSeq, count, err := s.readLogMeta(partition)
	if err != nil {
		return err
	}
	if count > 0 {
		count--
	}

	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Delete(key, nil); err != nil {
		return err
	}
	if err := writeLogMeta(b, partition, lastSeq, count); err != nil {
		return err
	}
	return b.Commit(s.writeOpts)
}

func (s *Store) Length(ctx context.Context, partition string) (int64, error) {
	_, count, err := s.readLogMeta(partition)
	if err != nil {
		return 0, err
	}
	return int64(count), nil
}
