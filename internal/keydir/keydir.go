// Package keydir implements the in-memory ordered index that maps a
// bitcask key to the offset and length of its latest value in the log
// file. Keys are ordered byte-wise lexicographically, with the empty
// key sorting before all others — the same ordering Go's native string
// comparison already gives, which is why keys are stored as strings
// here rather than []byte.
package keydir

import "sort"

// Record is the (value_offset, value_length) pair a KeyDir entry points
// at, per spec.md §3.
type Record struct {
	ValueOffset uint64
	ValueLength uint32
}

// KeyDir is an ordered map from key to Record. The zero value is not
// ready for use; construct with New.
//
// There is no ordered-map or B-tree third-party library wired to an
// actual keydir anywhere in the retrieval pack this engine was built
// from (see DESIGN.md), so KeyDir keeps a plain map for O(1) point
// lookups alongside a sorted slice of keys, updated with a
// binary-search insert/delete on every mutation. Range queries
// snapshot the matching slice of keys before the caller reads values,
// per the fallback spec.md §9 explicitly allows.
type KeyDir struct {
	records map[string]Record
	order   []string
}

// New returns an empty KeyDir.
func New() *KeyDir {
	return &KeyDir{records: make(map[string]Record)}
}

// Len reports the number of live keys.
func (kd *KeyDir) Len() int {
	return len(kd.order)
}

// Get returns the Record for key and whether it is present.
func (kd *KeyDir) Get(key []byte) (Record, bool) {
	rec, ok := kd.records[string(key)]
	return rec, ok
}

// Insert adds or overwrites the Record for key.
func (kd *KeyDir) Insert(key []byte, rec Record) {
	k := string(key)
	if _, exists := kd.records[k]; !exists {
		idx := sort.SearchStrings(kd.order, k)
		kd.order = append(kd.order, "")
		copy(kd.order[idx+1:], kd.order[idx:])
		kd.order[idx] = k
	}
	kd.records[k] = rec
}

// Remove deletes key from the KeyDir. Removing an absent key is a no-op.
func (kd *KeyDir) Remove(key []byte) {
	k := string(key)
	if _, exists := kd.records[k]; !exists {
		return
	}
	delete(kd.records, k)
	idx := sort.SearchStrings(kd.order, k)
	if idx < len(kd.order) && kd.order[idx] == k {
		kd.order = append(kd.order[:idx], kd.order[idx+1:]...)
	}
}

// Bound describes one end of a scan range. A nil Bound means unbounded
// on that side.
type Bound struct {
	Key       []byte
	Inclusive bool
}

// Range describes the [Lo, Hi] (or open/half-open/unbounded variants)
// key interval a Scan should visit, per spec.md §6's
// "inclusive/exclusive/unbounded on each end".
type Range struct {
	Lo *Bound
	Hi *Bound
}

// All returns the unbounded range covering every key.
func All() Range { return Range{} }

// Entry is one (key, Record) pair yielded by a range walk.
type Entry struct {
	Key    []byte
	Record Record
}

func (kd *KeyDir) inRange(k string, r Range) bool {
	if r.Lo != nil {
		lo := string(r.Lo.Key)
		if r.Lo.Inclusive {
			if k < lo {
				return false
			}
		} else if k <= lo {
			return false
		}
	}
	if r.Hi != nil {
		hi := string(r.Hi.Key)
		if r.Hi.Inclusive {
			if k > hi {
				return false
			}
		} else if k >= hi {
			return false
		}
	}
	return true
}

// boundsIndices returns the half-open [start, end) index window of
// kd.order that Range r can possibly include; inRange still filters
// the exclusive-bound edge cases precisely.
func (kd *KeyDir) boundsIndices(r Range) (start, end int) {
	start, end = 0, len(kd.order)
	if r.Lo != nil {
		lo := string(r.Lo.Key)
		start = sort.SearchStrings(kd.order, lo)
	}
	if r.Hi != nil {
		hi := string(r.Hi.Key)
		end = sort.SearchStrings(kd.order, hi)
		if end < len(kd.order) && kd.order[end] == hi && r.Hi.Inclusive {
			end++
		}
	}
	if start > end {
		start = end
	}
	return start, end
}

// Range returns a snapshot of the entries whose keys fall within r, in
// ascending key order.
func (kd *KeyDir) Range(r Range) []Entry {
	start, end := kd.boundsIndices(r)
	out := make([]Entry, 0, end-start)
	for _, k := range kd.order[start:end] {
		if !kd.inRange(k, r) {
			continue
		}
		out = append(out, Entry{Key: []byte(k), Record: kd.records[k]})
	}
	return out
}

// RangeReverse returns the same set of entries as Range, in descending
// key order.
func (kd *KeyDir) RangeReverse(r Range) []Entry {
	fwd := kd.Range(r)
	for i, j := 0, len(fwd)-1; i < j; i, j = i+1, j-1 {
		fwd[i], fwd[j] = fwd[j], fwd[i]
	}
	return fwd
}

// LiveBytes returns the number of bytes the log would occupy if it
// contained only a canonical, non-tombstone entry for every key
// currently in the KeyDir — spec.md §4.3 "Live size".
func (kd *KeyDir) LiveBytes() uint64 {
	var total uint64
	for k, rec := range kd.records {
		total += 8 + uint64(len(k)) + uint64(rec.ValueLength)
	}
	return total
}
