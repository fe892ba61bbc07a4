// Package store owns the on-disk log file: its binary format, the
// exclusive advisory lock that guards it, appends, random value reads,
// and the open-time recovery scan that rebuilds a keydir.KeyDir while
// repairing any torn tail. See spec.md §4.1.
package store

import (
	"bufio"
	"io"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"github.com/rendlabs/caskdb/internal/caskerr"
	"github.com/rendlabs/caskdb/internal/keydir"
)

// Log owns one append-only data file and the exclusive lock on it.
type Log struct {
	path string
	file *os.File
	lock *flock.Flock
	log  *zap.SugaredLogger
}

// Open opens or creates the log file at path, creating missing parent
// directories, and acquires an exclusive advisory lock on it. Open
// fails if another handle already holds the lock.
func Open(path string, logger *zap.SugaredLogger) (*Log, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, caskerr.IO("store.open.mkdir", err).WithPath(dir)
	}

	fl := flock.New(path)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, caskerr.IO("store.open.lock", err).WithPath(path)
	}
	if !locked {
		return nil, caskerr.LockHeld("store.open", path, nil)
	}

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		_ = fl.Unlock()
		return nil, caskerr.IO("store.open.open", err).WithPath(path)
	}

	logger.Infow("store: opened log", "path", path)
	return &Log{path: path, file: file, lock: fl, log: logger}, nil
}

// Path returns the path this Log was opened with.
func (l *Log) Path() string { return l.path }

// Size returns the current length of the log file.
func (l *Log) Size() (int64, error) {
	info, err := l.file.Stat()
	if err != nil {
		return 0, caskerr.IO("store.size", err).WithPath(l.path)
	}
	return info.Size(), nil
}

// Append writes one entry — key plus either a value or a tombstone
// marker — to the end of the log file through a single buffered write
// sized to the full entry, flushing that buffer before returning. It
// returns the entry's starting offset and total byte length.
//
// tombstone selects a tombstone entry, in which case value is ignored;
// otherwise value (nil or empty included) is written as an ordinary
// value. The caller derives the value's own offset as
// entryOffset + 8 + len(key) and its length as len(value).
func (l *Log) Append(key, value []byte, tombstone bool) (entryOffset int64, entryLength int64, err error) {
	marker := int32(len(value))
	if tombstone {
		marker = tombstoneMarker
	}

	pos, err := l.file.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, 0, caskerr.IO("store.append.seek", err).WithPath(l.path)
	}

	size := entrySize(uint32(len(key)), marker)
	w := bufio.NewWriterSize(l.file, int(size))

	var header [headerSize]byte
	encodeHeader(header[:], uint32(len(key)), marker)

	if _, err := w.Write(header[:]); err != nil {
		return 0, 0, caskerr.IO("store.append.write_header", err).WithPath(l.path)
	}
	if _, err := w.Write(key); err != nil {
		return 0, 0, caskerr.IO("store.append.write_key", err).WithPath(l.path)
	}
	if !tombstone {
		if _, err := w.Write(value); err != nil {
			return 0, 0, caskerr.IO("store.append.write_value", err).WithPath(l.path)
		}
	}
	if err := w.Flush(); err != nil {
		return 0, 0, caskerr.IO("store.append.flush", err).WithPath(l.path)
	}

	l.log.Debugw("store: appended entry",
		"offset", pos, "length", size, "key_len", len(key), "tombstone", tombstone)
	return pos, size, nil
}

// ReadValue reads exactly valueLength bytes starting at valueOffset.
func (l *Log) ReadValue(valueOffset int64, valueLength uint32) ([]byte, error) {
	buf := make([]byte, valueLength)
	if _, err := l.file.ReadAt(buf, valueOffset); err != nil {
		return nil, caskerr.IO("store.read_value", err).WithPath(l.path)
	}
	return buf, nil
}

// Truncate sets the file size to length. Used by recovery, and by
// compaction to clear its scratch log before writing to it.
func (l *Log) Truncate(length int64) error {
	if err := l.file.Truncate(length); err != nil {
		return caskerr.IO("store.truncate", err).WithPath(l.path)
	}
	return nil
}

// Sync forces all buffered and cached writes to stable storage.
func (l *Log) Sync() error {
	if err := l.file.Sync(); err != nil {
		return caskerr.IO("store.sync", err).WithPath(l.path)
	}
	return nil
}

// Close releases the file handle and the exclusive lock.
func (l *Log) Close() error {
	fileErr := l.file.Close()
	lockErr := l.lock.Unlock()

	switch {
	case fileErr != nil:
		return caskerr.IO("store.close", fileErr).WithPath(l.path)
	case lockErr != nil:
		return caskerr.IO("store.close.unlock", lockErr).WithPath(l.path)
	}

	l.log.Infow("store: closed log", "path", l.path)
	return nil
}

// Rename moves the log's underlying file to newPath and updates Path to
// reflect it. The open file handle and the advisory lock held against
// it are both tied to the file's inode rather than its name, so they
// stay valid and held throughout — compaction uses this to make a
// freshly written temp log canonical without ever closing it or
// dropping its lock.
func (l *Log) Rename(newPath string) error {
	if err := os.Rename(l.path, newPath); err != nil {
		return caskerr.IO("store.rename", err).WithPath(newPath)
	}
	l.path = newPath
	return nil
}

// ScanToBuildKeyDir performs the open-time recovery algorithm described
// in spec.md §4.1: a full linear scan from offset 0, populating a fresh
// KeyDir as it goes. Any entry found to be torn — a short read at any
// field, or a value extending past end of file — causes the log to be
// truncated to the start of that entry and the scan to stop; this is a
// repair, not an error.
func (l *Log) ScanToBuildKeyDir() (*keydir.KeyDir, error) {
	fileLen, err := l.Size()
	if err != nil {
		return nil, err
	}

	if _, err := l.file.Seek(0, io.SeekStart); err != nil {
		return nil, caskerr.IO("store.scan.seek", err).WithPath(l.path)
	}

	kd := keydir.New()
	r := bufio.NewReaderSize(l.file, 64*1024)

	var pos int64
	var header [headerSize]byte

	for pos < fileLen {
		n, err := io.ReadFull(r, header[:])
		if err != nil {
			if isShortRead(err, n) {
				l.log.Warnw("store: torn entry header at recovery, truncating", "offset", pos)
				break
			}
			return nil, caskerr.IO("store.scan.read_header", err).WithPath(l.path)
		}

		keyLen, marker := decodeHeader(header[:])
		valueOffset := pos + headerSize + int64(keyLen)

		key := make([]byte, keyLen)
		n, err = io.ReadFull(r, key)
		if err != nil {
			if isShortRead(err, n) {
				l.log.Warnw("store: torn entry key at recovery, truncating", "offset", pos)
				break
			}
			return nil, caskerr.IO("store.scan.read_key", err).WithPath(l.path)
		}

		if marker >= 0 {
			valueLen := int64(marker)
			if valueOffset+valueLen > fileLen {
				l.log.Warnw("store: torn entry value at recovery, truncating", "offset", pos)
				break
			}
			if valueLen > 0 {
				if _, err := r.Discard(int(valueLen)); err != nil {
					return nil, caskerr.IO("store.scan.discard_value", err).WithPath(l.path)
				}
			}
			kd.Insert(key, keydir.Record{ValueOffset: uint64(valueOffset), ValueLength: uint32(valueLen)})
			pos = valueOffset + valueLen
			continue
		}

		if marker != tombstoneMarker {
			// Any value marker other than a non-negative length or -1 is
			// illegal; treat exactly like a torn tail per spec.md §7.
			l.log.Warnw("store: invalid value marker at recovery, truncating", "offset", pos, "marker", marker)
			break
		}

		kd.Remove(key)
		pos = valueOffset
	}

	if pos != fileLen {
		if err := l.Truncate(pos); err != nil {
			return nil, err
		}
	}

	return kd, nil
}

// isShortRead reports whether err from io.ReadFull represents a torn
// (incomplete) read rather than a genuine I/O failure.
func isShortRead(err error, n int) bool {
	return err == io.ErrUnexpectedEOF || err == io.EOF
}
