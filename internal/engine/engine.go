// Package engine is the façade described in spec.md §2 and §4.3: it
// glues a store.Log and a keydir.KeyDir together, exposes the public
// Get/Set/Delete/Scan/Flush/Compact operations, and drives open-time
// recovery and compaction.
package engine

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rendlabs/caskdb/internal/caskerr"
	"github.com/rendlabs/caskdb/internal/keydir"
	"github.com/rendlabs/caskdb/internal/store"
)

// Engine is a single-process, single-file, log-structured key-value
// store. It is not safe for concurrent use from multiple goroutines
// without external synchronization — spec.md §5 specifies a
// single-threaded mutable access model.
type Engine struct {
	log    *store.Log
	keydir *keydir.KeyDir
	cfg    *config
}

// Open constructs a Log at path (creating it if absent), scans it to
// build a fresh KeyDir, and returns a ready Engine. Open fails if the
// path's exclusive lock is already held by another handle, or on any
// I/O or permission error.
func Open(path string, opts ...Option) (*Engine, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	log, err := store.Open(path, cfg.logger)
	if err != nil {
		return nil, err
	}

	kd, err := log.ScanToBuildKeyDir()
	if err != nil {
		_ = log.Close()
		return nil, err
	}

	cfg.logger.Infow("engine: opened", "path", path, "keys", kd.Len())
	return &Engine{log: log, keydir: kd, cfg: cfg}, nil
}

// OpenCompact opens path exactly as Open does, then compacts it if the
// garbage ratio at open time is at or above ratio. A ratio <= 0 forces
// compaction whenever any garbage exists; a ratio > 1 never compacts.
// Per spec.md §4.3.
func OpenCompact(path string, ratio float64, opts ...Option) (*Engine, error) {
	e, err := Open(path, opts...)
	if err != nil {
		return nil, err
	}

	live, total, err := e.Sizes()
	if err != nil {
		_ = e.Close()
		return nil, err
	}

	if total == 0 || live > total {
		return e, nil
	}

	garbage := total - live
	if garbage == 0 {
		return e, nil
	}

	garbageRatio := float64(garbage) / float64(total)
	if garbageRatio >= ratio {
		e.cfg.logger.Infow("engine: compacting at open",
			"path", path, "garbage_bytes", garbage, "total_bytes", total, "ratio", garbageRatio)
		if err := e.Compact(); err != nil {
			_ = e.Close()
			return nil, err
		}
	}

	return e, nil
}

// Get returns the current value for key, or caskerr.ErrKeyNotFound if
// the key is absent or tombstoned.
func (e *Engine) Get(key []byte) ([]byte, error) {
	rec, ok := e.keydir.Get(key)
	if !ok {
		return nil, caskerr.ErrKeyNotFound
	}
	return e.log.ReadValue(int64(rec.ValueOffset), rec.ValueLength)
}

// Set appends a non-tombstone entry for key/value, then updates the
// KeyDir to point at it. The append is flushed to the file before the
// KeyDir is touched; if the append fails, the KeyDir is left untouched
// and any prior mapping for key remains valid.
func (e *Engine) Set(key, value []byte) error {
	entryOffset, _, err := e.log.Append(key, value, false)
	if err != nil {
		return err
	}
	valueOffset := entryOffset + 8 + int64(len(key))
	e.keydir.Insert(key, keydir.Record{ValueOffset: uint64(valueOffset), ValueLength: uint32(len(value))})
	return nil
}

// Delete appends a tombstone entry for key (even if key is currently
// absent, per spec.md §9's Open Question decision), then removes key
// from the KeyDir. Removing an absent KeyDir entry is a no-op.
func (e *Engine) Delete(key []byte) error {
	if _, _, err := e.log.Append(key, nil, true); err != nil {
		return err
	}
	e.keydir.Remove(key)
	return nil
}

// Scan returns a lazily-reading Cursor over every key in r, in
// ascending order by default; the returned Cursor also supports
// reverse consumption via NextBack. The snapshot of matching keys is
// taken immediately; values are read from disk only as the caller
// consumes the cursor.
func (e *Engine) Scan(r keydir.Range) *Cursor {
	return newCursor(e.log, e.keydir.Range(r))
}

// Flush forces the log file to stable storage. Idempotent.
func (e *Engine) Flush() error {
	return e.log.Sync()
}

// Sizes returns the live and total byte sizes of the log file, per
// spec.md §4.3 "Size accounting". Live bytes are derived from the
// KeyDir (so tombstones and superseded entries are never counted);
// total bytes is the current file length.
func (e *Engine) Sizes() (live, total uint64, err error) {
	size, err := e.log.Size()
	if err != nil {
		return 0, 0, err
	}
	return e.keydir.LiveBytes(), uint64(size), nil
}

// String reports the engine's backend identity, per spec.md §6.
func (e *Engine) String() string { return "bitcask" }

// Compact rewrites the log file to contain exactly one entry per live
// key, in ascending key order, with no tombstones, then atomically
// swaps it in for the current file. See spec.md §4.3 "Compaction
// algorithm".
func (e *Engine) Compact() error {
	tmpPath := compactionTempPath(e.log.Path())

	newLog, err := store.Open(tmpPath, e.cfg.logger)
	if err != nil {
		return err
	}
	if err := newLog.Truncate(0); err != nil {
		_ = newLog.Close()
		_ = os.Remove(tmpPath)
		return err
	}

	newKeyDir := keydir.New()
	for _, entry := range e.keydir.Range(keydir.All()) {
		value, err := e.log.ReadValue(int64(entry.Record.ValueOffset), entry.Record.ValueLength)
		if err != nil {
			_ = newLog.Close()
			_ = os.Remove(tmpPath)
			return err
		}

		entryOffset, _, err := newLog.Append(entry.Key, value, false)
		if err != nil {
			_ = newLog.Close()
			_ = os.Remove(tmpPath)
			return err
		}

		valueOffset := entryOffset + 8 + int64(len(entry.Key))
		newKeyDir.Insert(entry.Key, keydir.Record{
			ValueOffset: uint64(valueOffset),
			ValueLength: entry.Record.ValueLength,
		})
	}

	oldPath := e.log.Path()
	if err := newLog.Rename(oldPath); err != nil {
		_ = newLog.Close()
		_ = os.Remove(tmpPath)
		return err
	}

	// newLog has held its exclusive lock continuously since it was
	// opened at tmpPath, and the rename above made that same locked
	// inode canonical — there is no instant where the canonical path is
	// unlocked. Releasing the superseded old handle can't undo the
	// rename, so a failure here is logged rather than returned.
	if err := e.log.Close(); err != nil {
		e.cfg.logger.Warnw("engine: failed to release old log after compaction", "error", err)
	}

	e.log = newLog
	e.keydir = newKeyDir

	e.cfg.logger.Infow("engine: compaction complete", "path", oldPath, "keys", newKeyDir.Len())
	return nil
}

// compactionTempPath derives a sibling path for the compaction scratch
// file, distinct from any caller-managed file, per spec.md §6.
func compactionTempPath(path string) string {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	return filepath.Join(dir, fmt.Sprintf(".%s.compact-tmp", base))
}

// Close attempts a final flush (unless disabled with
// WithSyncOnClose(false)), then releases the file lock. A flush
// failure is logged and swallowed, per spec.md §4.3 "close" — there is
// no caller left to receive it.
func (e *Engine) Close() error {
	if e.cfg.syncOnClose {
		if err := e.log.Sync(); err != nil {
			e.cfg.logger.Errorw("engine: flush on close failed", "error", err)
		}
	}
	return e.log.Close()
}
