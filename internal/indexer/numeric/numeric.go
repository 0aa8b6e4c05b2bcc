// Package numeric maps float64 values to order-preserving uint64 keys and
// answers bounded range lookups over a sorted (key, doc) column.
package numeric

import (
	"math"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"
)

const signBit = uint64(1) << 63

// Encode maps v to a key whose unsigned order matches the numeric order of
// the inputs. Negative zero is folded onto zero. NaN must be rejected by the
// caller.
func Encode(v float64) uint64 {
	if v == 0 {
		v = 0
	}
	bits := math.Float64bits(v)
	if bits&signBit != 0 {
		return ^bits
	}
	return bits | signBit
}

// Bounds is a numeric interval with independent inclusivity per end. Use
// math.Inf for an open end.
type Bounds struct {
	Min        float64
	Max        float64
	IncludeMin bool
	IncludeMax bool
}

// Keys resolves the bounds to an inclusive key interval [lo, hi]. ok is false
// when the interval is empty.
func (b Bounds) Keys() (lo, hi uint64, ok bool) {
	if math.IsNaN(b.Min) || math.IsNaN(b.Max) {
		return 0, 0, false
	}
	lo = Encode(b.Min)
	hi = Encode(b.Max)
	if !b.IncludeMin {
		if lo == math.MaxUint64 {
			return 0, 0, false
		}
		lo++
	}
	if !b.IncludeMax {
		if hi == 0 {
			return 0, 0, false
		}
		hi--
	}
	if lo > hi {
		return 0, 0, false
	}
	return lo, hi, true
}

// Entry is one indexed value.
type Entry struct {
	Key   uint64 `json:"k"`
	DocID uint32 `json:"d"`
}

// Column is a set of entries for one field. Lookup requires it sorted.
type Column []Entry

// Sort orders the column by key, then doc ID.
func (c Column) Sort() {
	sort.Slice(c, func(i, j int) bool {
		if c[i].Key != c[j].Key {
			return c[i].Key < c[j].Key
		}
		return c[i].DocID < c[j].DocID
	})
}

// Lookup returns the docs whose value lies within b. The column must be
// sorted.
func (c Column) Lookup(b Bounds) *roaring.Bitmap {
	result := roaring.New()
	lo, hi, ok := b.Keys()
	if !ok {
		return result
	}
	start := sort.Search(len(c), func(i int) bool { return c[i].Key >= lo })
	for i := start; i < len(c) && c[i].Key <= hi; i++ {
		result.Add(c[i].DocID)
	}
	return result
}

// Scan is Lookup for an unsorted column.
func (c Column) Scan(b Bounds) *roaring.Bitmap {
	result := roaring.New()
	lo, hi, ok := b.Keys()
	if !ok {
		return result
	}
	for _, e := range c {
		if e.Key >= lo && e.Key <= hi {
			result.Add(e.DocID)
		}
	}
	return result
}
