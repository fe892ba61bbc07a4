package engine

import (
	"github.com/rendlabs/caskdb/internal/keydir"
	"github.com/rendlabs/caskdb/internal/store"
)

// Cursor lazily yields (key, value) pairs for a Scan, reading each
// value from the log only when the caller asks for it. It supports
// both forward (Next) and reverse (NextBack) consumption of the same
// underlying ascending snapshot, mirroring the original engine's
// DoubleEndedIterator — see spec.md §4.3 "scan".
//
// A Cursor is a snapshot taken at Scan time; it does not observe
// mutations made to the Engine after it was created (spec.md §5).
type Cursor struct {
	log     *store.Log
	entries []keydir.Entry
	front   int
	back    int // exclusive
}

func newCursor(log *store.Log, entries []keydir.Entry) *Cursor {
	return &Cursor{log: log, entries: entries, front: 0, back: len(entries)}
}

// Next returns the next (key, value) pair in ascending key order. ok is
// false once the range is exhausted. If reading the value from disk
// fails, err is non-nil and ok is true — the key is still returned so
// the caller can decide whether to continue.
func (c *Cursor) Next() (key, value []byte, err error, ok bool) {
	if c.front >= c.back {
		return nil, nil, nil, false
	}
	e := c.entries[c.front]
	c.front++
	value, err = c.log.ReadValue(int64(e.Record.ValueOffset), e.Record.ValueLength)
	return e.Key, value, err, true
}

// NextBack returns the next (key, value) pair in descending key order,
// consuming from the opposite end of the same range as Next.
func (c *Cursor) NextBack() (key, value []byte, err error, ok bool) {
	if c.front >= c.back {
		return nil, nil, nil, false
	}
	c.back--
	e := c.entries[c.back]
	value, err = c.log.ReadValue(int64(e.Record.ValueOffset), e.Record.ValueLength)
	return e.Key, value, err, true
}

// Remaining reports how many entries have not yet been consumed from
// either end.
func (c *Cursor) Remaining() int {
	return c.back - c.front
}

// Collect drains the cursor forward into a slice, stopping at the
// first read error. It is a convenience for callers (and tests) that
// do not need lazy, item-by-item consumption.
func (c *Cursor) Collect() ([]KV, error) {
	out := make([]KV, 0, c.Remaining())
	for {
		k, v, err, ok := c.Next()
		if !ok {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, KV{Key: k, Value: v})
	}
}

// KV is one key/value pair returned by Cursor.Collect.
type KV struct {
	Key   []byte
	Value []byte
}
