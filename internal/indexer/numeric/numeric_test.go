package numeric

import (
	"math"
	"slices"
	"sort"
	"testing"
)

func TestEncodePreservesOrder(t *testing.T) {
	values := []float64{math.Inf(-1), -1e300, -65, -0.5, -math.SmallestNonzeroFloat64, 0,
		math.SmallestNonzeroFloat64, 0.5, 45, 59.9, 65, 1e300, math.Inf(1)}
	keys := make([]uint64, len(values))
	for i, v := range values {
		keys[i] = Encode(v)
	}
	if !sort.SliceIsSorted(keys, func(i, j int) bool { return keys[i] < keys[j] }) {
		t.Fatalf("keys not sorted: %v", keys)
	}
	for i := 1; i < len(keys); i++ {
		if keys[i-1] == keys[i] {
			t.Errorf("%v and %v share key %d", values[i-1], values[i], keys[i])
		}
	}
}

func TestEncodeFoldsNegativeZero(t *testing.T) {
	if Encode(math.Copysign(0, -1)) != Encode(0) {
		t.Error("-0 and +0 encode differently")
	}
}

func column(values ...float64) Column {
	c := make(Column, 0, len(values))
	for i, v := range values {
		c = append(c, Entry{Key: Encode(v), DocID: uint32(i)})
	}
	c.Sort()
	return c
}

func TestLookupInclusivity(t *testing.T) {
	// doc 0 = 50, doc 1 = 59.9, doc 2 = 70, doc 3 = 45, doc 4 = 70.0001
	c := column(50, 59.9, 70, 45, 70.0001)
	tests := []struct {
		name string
		b    Bounds
		want []uint32
	}{
		{"both inclusive", Bounds{50, 70, true, true}, []uint32{0, 1, 2}},
		{"exclude min", Bounds{50, 70, false, true}, []uint32{1, 2}},
		{"exclude max", Bounds{50, 70, true, false}, []uint32{0, 1}},
		{"both exclusive", Bounds{50, 70, false, false}, []uint32{1}},
		{"point inclusive", Bounds{70, 70, true, true}, []uint32{2}},
		{"point exclusive", Bounds{70, 70, false, true}, nil},
		{"inverted", Bounds{70, 50, true, true}, nil},
		{"open max", Bounds{60, math.Inf(1), true, true}, []uint32{2, 4}},
		{"nan", Bounds{math.NaN(), 70, true, true}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Lookup(tt.b).ToArray()
			if len(got) == 0 {
				got = nil
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("Lookup = %v, want %v", got, tt.want)
			}
			scan := c.Scan(tt.b).ToArray()
			if len(scan) == 0 {
				scan = nil
			}
			if !slices.Equal(scan, tt.want) {
				t.Errorf("Scan = %v, want %v", scan, tt.want)
			}
		})
	}
}
