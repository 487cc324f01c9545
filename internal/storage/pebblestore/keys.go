package pebblestore

import "encoding/binary"

// Keyspace layout (byte-wise, lexicographically sortable):
//
//	kv/{key}                 - plain value, 8-byte expiry prefix
//	set/{key}/{member}       - set membership marker
//	wal/{partition}/e/{seq}  - append-log entry, seq big-endian 8 bytes
//	wal/{partition}/m        - append-log meta: lastSeq(8) | count(8)
var (
	sep        = byte('/')
	kvPrefix   = []byte("kv/")
	setPrefix  = []byte("set/")
	walPrefix  = []byte("wal/")
	entrySeg   = []byte("/e/")
	metaSuffix = []byte("/m")
)

func appendBE8(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

func kvKey(key string) []byte {
	k := make([]byte, 0, len(kvPrefix)+len(key))
	k = append(k, kvPrefix...)
	return append(k, key...)
}

func setMemberKey(key, member string) []byte {
	k := make([]byte, 0, len(setPrefix)+len(key)+1+len(member))
	k = append(k, setPrefix...)
	k = append(k, key...)
	k = append(k, sep)
	return append(k, member...)
}

func setScanPrefix(key string) []byte {
	k := make([]byte, 0, len(setPrefix)+len(key)+1)
	k = append(k, setPrefix...)
	k = append(k, key...)
	return append(k, sep)
}

func logEntryKey(partition string, seq uint64) []byte {
	k := make([]byte, 0, len(walPrefix)+len(partition)+len(entrySeg)+8)
	k = append(k, walPrefix...)
	k = append(k, partition...)
	k = append(k, entrySeg...)
	return appendBE8(k, seq)
}

func logEntryPrefix(partition string) []byte {
	k := make([]byte, 0, len(walPrefix)+len(partition)+len(entrySeg))
	k = append(k, walPrefix...)
	k = append(k, partition...)
	return append(k, entrySeg...)
}

func logMetaKey(partition string) []byte {
	k := make([]byte, 0, len(walPrefix)+len(partition)+len(metaSuffix))
	k = append(k, walPrefix...)
	k = append(k, partition...)
	return append(k, metaSuffix...)
}

// upperBound returns the exclusive scan bound for a prefix.
func upperBound(prefix []byte) []byte {
	return append(append([]byte{}, prefix...), 0xFF)
}
