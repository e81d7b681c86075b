package collections

import (
	"fmt"
	"io"
	"math"
	"sort"
)

// ============================================================================
// SortedVector - append-only ascending int32 vector
// ============================================================================

// SortedVector holds ascending int32 values, appended in order.
// Lookups are binary searches.
type SortedVector struct {
	values []int32
}

// NewSortedVector creates an empty vector.
func NewSortedVector(capacity int) *SortedVector {
	return &SortedVector{values: make([]int32, 0, capacity)}
}

// Append adds v. Appending the current last value again is a no-op.
func (v *SortedVector) Append(x int32) error {
	if n := len(v.values); n > 0 {
		last := v.values[n-1]
		if x == last {
			return nil
		}
		if x < last {
			return fmt.Errorf("%w: %d after %d", ErrUnsorted, x, last)
		}
	}
	v.values = append(v.values, x)
	return nil
}

// Len returns the number of values.
func (v *SortedVector) Len() int {
	return len(v.values)
}

// At returns the i-th value.
func (v *SortedVector) At(i int) int32 {
	return v.values[i]
}

// Values returns the backing slice. Callers must not modify it.
func (v *SortedVector) Values() []int32 {
	return v.values
}

// IndexAtOrBefore returns the index of the largest value <= x, or -1.
func (v *SortedVector) IndexAtOrBefore(x int32) int {
	return sort.Search(len(v.values), func(i int) bool { return v.values[i] > x }) - 1
}

// AtOrBefore returns the largest value <= x.
func (v *SortedVector) AtOrBefore(x int32) (int32, bool) {
	i := v.IndexAtOrBefore(x)
	if i < 0 {
		return 0, false
	}
	return v.values[i], true
}

// Before returns the largest value < x.
func (v *SortedVector) Before(x int32) (int32, bool) {
	return v.AtOrBefore(x - 1)
}

// After returns the smallest value > x.
func (v *SortedVector) After(x int32) (int32, bool) {
	i := v.IndexAtOrBefore(x) + 1
	if i >= len(v.values) {
		return 0, false
	}
	return v.values[i], true
}

// AtOrAfter returns the smallest value >= x.
func (v *SortedVector) AtOrAfter(x int32) (int32, bool) {
	return v.After(x - 1)
}

// WriteTo writes count:u32 followed by one u32 delta per value.
func (v *SortedVector) WriteTo(w io.Writer) (int64, error) {
	if err := WriteUint32(w, uint32(len(v.values))); err != nil {
		return 0, err
	}
	prev := int32(0)
	for _, x := range v.values {
		if err := WriteUint32(w, uint32(x-prev)); err != nil {
			return 0, err
		}
		prev = x
	}
	return int64(4 + 4*len(v.values)), nil
}

// ReadSortedVector reads a vector written by WriteTo.
func ReadSortedVector(r io.Reader) (*SortedVector, error) {
	n, err := ReadUint32(r)
	if err != nil {
		return nil, err
	}
	v := NewSortedVector(PreallocCap(n))
	prev := int64(0)
	for i := uint32(0); i < n; i++ {
		d, err := ReadUint32(r)
		if err != nil {
			return nil, err
		}
		prev += int64(d)
		if prev > math.MaxInt32 {
			return nil, fmt.Errorf("%w: sorted vector value %d overflows", ErrCorrupt, prev)
		}
		v.values = append(v.values, int32(prev))
	}
	return v, nil
}
