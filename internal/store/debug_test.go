package store

import (
	"bufio"
	"fmt"
	"io"
)

// DebugPrint writes a human-readable dump of every entry in l's log file
// to w, one line per entry, in on-disk order. It is a test-only aid for
// golden-style assertions and does not participate in recovery.
func DebugPrint(l *Log, w io.Writer) error {
	size, err := l.Size()
	if err != nil {
		return err
	}

	if _, err := l.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	r := bufio.NewReader(l.file)

	var pos int64
	var header [headerSize]byte
	for pos < size {
		if _, err := io.ReadFull(r, header[:]); err != nil {
			return err
		}
		keyLen, marker := decodeHeader(header[:])

		key := make([]byte, keyLen)
		if _, err := io.ReadFull(r, key); err != nil {
			return err
		}

		if marker == tombstoneMarker {
			fmt.Fprintf(w, "%d: tombstone key=%q\n", pos, key)
			pos += headerSize + int64(keyLen)
			continue
		}

		value := make([]byte, marker)
		if _, err := io.ReadFull(r, value); err != nil {
			return err
		}
		fmt.Fprintf(w, "%d: set key=%q value=%q\n", pos, key, value)
		pos += headerSize + int64(keyLen) + int64(marker)
	}

	return nil
}
