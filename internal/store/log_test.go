package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testLogPath(t *testing.T) string {
	return filepath.Join(t.TempDir(), "caskdb.log")
}

func TestLog_OpenCreatesFile(t *testing.T) {
	path := testLogPath(t)

	l, err := Open(path, zap.NewNop().Sugar())
	require.NoError(t, err)
	defer l.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err)
	assert.Equal(t, path, l.Path())
}

func TestLog_AppendAndReadValue(t *testing.T) {
	l, err := Open(testLogPath(t), zap.NewNop().Sugar())
	require.NoError(t, err)
	defer l.Close()

	offset, length, err := l.Append([]byte("hello"), []byte("world"), false)
	require.NoError(t, err)
	assert.Equal(t, int64(0), offset)
	assert.Equal(t, int64(headerSize+len("hello")+len("world")), length)

	valueOffset := offset + headerSize + int64(len("hello"))
	value, err := l.ReadValue(valueOffset, uint32(len("world")))
	require.NoError(t, err)
	assert.Equal(t, []byte("world"), value)
}

func TestLog_AppendTombstone(t *testing.T) {
	l, err := Open(testLogPath(t), zap.NewNop().Sugar())
	require.NoError(t, err)
	defer l.Close()

	offset, length, err := l.Append([]byte("gone"), nil, true)
	require.NoError(t, err)
	assert.Equal(t, int64(headerSize+len("gone")), length)

	size, err := l.Size()
	require.NoError(t, err)
	assert.Equal(t, offset+length, size)
}

func TestLog_AppendEmptyValue(t *testing.T) {
	l, err := Open(testLogPath(t), zap.NewNop().Sugar())
	require.NoError(t, err)
	defer l.Close()

	offset, _, err := l.Append([]byte("k"), []byte{}, false)
	require.NoError(t, err)

	value, err := l.ReadValue(offset+headerSize+1, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte{}, value)
}

func TestLog_SecondOpenFailsWhileLocked(t *testing.T) {
	path := testLogPath(t)

	l1, err := Open(path, zap.NewNop().Sugar())
	require.NoError(t, err)
	defer l1.Close()

	_, err = Open(path, zap.NewNop().Sugar())
	require.Error(t, err)
}

func TestLog_ReopenAfterCloseSucceeds(t *testing.T) {
	path := testLogPath(t)

	l1, err := Open(path, zap.NewNop().Sugar())
	require.NoError(t, err)
	require.NoError(t, l1.Close())

	l2, err := Open(path, zap.NewNop().Sugar())
	require.NoError(t, err)
	require.NoError(t, l2.Close())
}

func TestLog_ScanToBuildKeyDir_Empty(t *testing.T) {
	l, err := Open(testLogPath(t), zap.NewNop().Sugar())
	require.NoError(t, err)
	defer l.Close()

	kd, err := l.ScanToBuildKeyDir()
	require.NoError(t, err)
	assert.Equal(t, 0, kd.Len())
}

func TestLog_ScanToBuildKeyDir_SetsAndTombstones(t *testing.T) {
	l, err := Open(testLogPath(t), zap.NewNop().Sugar())
	require.NoError(t, err)
	defer l.Close()

	_, _, err = l.Append([]byte("a"), []byte("1"), false)
	require.NoError(t, err)
	_, _, err = l.Append([]byte("b"), []byte("2"), false)
	require.NoError(t, err)
	_, _, err = l.Append([]byte("a"), nil, true)
	require.NoError(t, err)

	kd, err := l.ScanToBuildKeyDir()
	require.NoError(t, err)
	assert.Equal(t, 1, kd.Len())

	rec, ok := kd.Get([]byte("b"))
	require.True(t, ok)
	value, err := l.ReadValue(int64(rec.ValueOffset), rec.ValueLength)
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), value)

	_, ok = kd.Get([]byte("a"))
	assert.False(t, ok)
}

// TestLog_ScanToBuildKeyDir_TornTailAtEveryLength exercises spec.md §7's
// torn-write recovery: truncating a well-formed log at every byte offset
// inside its last entry must recover every entry before it and discard
// the partial tail, never returning an error.
func TestLog_ScanToBuildKeyDir_TornTailAtEveryLength(t *testing.T) {
	path := testLogPath(t)
	l, err := Open(path, zap.NewNop().Sugar())
	require.NoError(t, err)

	_, _, err = l.Append([]byte("k1"), []byte("v1"), false)
	require.NoError(t, err)
	lastOffset, lastLength, err := l.Append([]byte("k2"), []byte("value-two"), false)
	require.NoError(t, err)
	require.NoError(t, l.Close())

	fullSize := lastOffset + lastLength

	for truncateAt := lastOffset; truncateAt < fullSize; truncateAt++ {
		raw, err := os.ReadFile(path)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(path, raw[:truncateAt], 0o644))

		l, err := Open(path, zap.NewNop().Sugar())
		require.NoError(t, err)

		kd, err := l.ScanToBuildKeyDir()
		require.NoError(t, err)

		_, ok := kd.Get([]byte("k1"))
		assert.True(t, ok, "truncateAt=%d should still recover k1", truncateAt)
		_, ok = kd.Get([]byte("k2"))
		assert.False(t, ok, "truncateAt=%d should not recover the torn k2", truncateAt)

		size, err := l.Size()
		require.NoError(t, err)
		assert.Equal(t, lastOffset, size, "truncateAt=%d should repair the file to the start of the torn entry", truncateAt)

		require.NoError(t, l.Close())
		require.NoError(t, os.WriteFile(path, raw, 0o644))
	}
}

func TestLog_ScanToBuildKeyDir_InvalidMarkerTruncates(t *testing.T) {
	path := testLogPath(t)
	l, err := Open(path, zap.NewNop().Sugar())
	require.NoError(t, err)

	_, _, err = l.Append([]byte("good"), []byte("v"), false)
	require.NoError(t, err)
	goodSize, err := l.Size()
	require.NoError(t, err)

	var header [headerSize]byte
	encodeHeader(header[:], 3, -7)
	_, err = l.file.WriteAt(append(header[:], []byte("bad")...), goodSize)
	require.NoError(t, err)
	require.NoError(t, l.Close())

	l, err = Open(path, zap.NewNop().Sugar())
	require.NoError(t, err)
	defer l.Close()

	kd, err := l.ScanToBuildKeyDir()
	require.NoError(t, err)
	assert.Equal(t, 1, kd.Len())

	size, err := l.Size()
	require.NoError(t, err)
	assert.Equal(t, goodSize, size)
}

func TestLog_DebugPrint(t *testing.T) {
	l, err := Open(testLogPath(t), zap.NewNop().Sugar())
	require.NoError(t, err)
	defer l.Close()

	_, _, err = l.Append([]byte("k1"), []byte("v1"), false)
	require.NoError(t, err)
	_, _, err = l.Append([]byte("k1"), nil, true)
	require.NoError(t, err)

	var buf strings.Builder
	require.NoError(t, DebugPrint(l, &buf))

	out := buf.String()
	assert.Contains(t, out, `set key="k1" value="v1"`)
	assert.Contains(t, out, `tombstone key="k1"`)
}

// TestLog_RenameKeepsLockHeld exercises the property compaction relies
// on: after Rename, the handle's lock still guards the new path (a
// fresh Open of it fails) and no lock is left behind on the old path
// (a fresh Open of it succeeds).
func TestLog_RenameKeepsLockHeld(t *testing.T) {
	dir := t.TempDir()
	oldPath := filepath.Join(dir, "old.log")
	newPath := filepath.Join(dir, "new.log")

	l, err := Open(oldPath, zap.NewNop().Sugar())
	require.NoError(t, err)

	require.NoError(t, l.Rename(newPath))
	assert.Equal(t, newPath, l.Path())

	_, err = Open(newPath, zap.NewNop().Sugar())
	require.Error(t, err, "renamed-to path should still be locked by l")

	reopenedOld, err := Open(oldPath, zap.NewNop().Sugar())
	require.NoError(t, err, "renamed-away path should not still be locked")
	require.NoError(t, reopenedOld.Close())

	require.NoError(t, l.Close())
}

func TestLog_TruncateAndSync(t *testing.T) {
	l, err := Open(testLogPath(t), zap.NewNop().Sugar())
	require.NoError(t, err)
	defer l.Close()

	_, _, err = l.Append([]byte("k"), []byte("v"), false)
	require.NoError(t, err)
	require.NoError(t, l.Sync())
	require.NoError(t, l.Truncate(0))

	size, err := l.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(0), size)
}
