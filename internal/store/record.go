package store

import "encoding/binary"

// headerSize is the fixed 8-byte header every entry carries: a 4-byte
// big-endian key length followed by a 4-byte big-endian signed value
// marker. Per spec.md §3/§6 there is no checksum and no timestamp on
// the wire.
const headerSize = 8

// tombstoneMarker is the sentinel value_marker that denotes a deletion.
const tombstoneMarker int32 = -1

// encodeHeader writes the 8-byte header for a key of length keyLen and
// a value marker (>= 0 is a byte length, -1 is a tombstone) into buf,
// which must be at least headerSize bytes.
func encodeHeader(buf []byte, keyLen uint32, marker int32) {
	binary.BigEndian.PutUint32(buf[0:4], keyLen)
	binary.BigEndian.PutUint32(buf[4:8], uint32(marker))
}

// decodeHeader reads the 8-byte header back out of buf.
func decodeHeader(buf []byte) (keyLen uint32, marker int32) {
	keyLen = binary.BigEndian.Uint32(buf[0:4])
	marker = int32(binary.BigEndian.Uint32(buf[4:8]))
	return keyLen, marker
}

// entrySize returns the total on-disk byte size of an entry with the
// given key length and value marker.
func entrySize(keyLen uint32, marker int32) int64 {
	valueLen := int64(0)
	if marker > 0 {
		valueLen = int64(marker)
	}
	return int64(headerSize) + int64(keyLen) + valueLen
}
