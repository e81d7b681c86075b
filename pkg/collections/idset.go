package collections

import (
	"fmt"
	"io"
	"sort"
)

// ============================================================================
// IDSet - growable sparse set of ascending IDs
// ============================================================================

// IDRange is an inclusive run of consecutive IDs.
type IDRange struct {
	First int32
	Last  int32
}

// IDSet stores ascending int32 IDs as runs. Threads use one to own the
// scattered IDs of their events; membership is O(log runs).
type IDSet struct {
	ranges []IDRange
	count  int
}

// NewIDSet creates an empty set.
func NewIDSet() *IDSet {
	return &IDSet{}
}

// Add appends id, which must not be below the current last member.
func (s *IDSet) Add(id int32) error {
	n := len(s.ranges)
	if n > 0 {
		last := &s.ranges[n-1]
		switch {
		case id == last.Last:
			return nil
		case id < last.Last:
			return fmt.Errorf("%w: %d after %d", ErrUnsorted, id, last.Last)
		case id == last.Last+1:
			last.Last = id
			s.count++
			return nil
		}
	}
	s.ranges = append(s.ranges, IDRange{First: id, Last: id})
	s.count++
	return nil
}

// AddRange appends the run [first, last].
func (s *IDSet) AddRange(first, last int32) error {
	if last < first {
		return fmt.Errorf("invalid range [%d, %d]", first, last)
	}
	if n := len(s.ranges); n > 0 && first <= s.ranges[n-1].Last {
		return fmt.Errorf("%w: range starts at %d after %d", ErrUnsorted, first, s.ranges[n-1].Last)
	}
	if n := len(s.ranges); n > 0 && first == s.ranges[n-1].Last+1 {
		s.ranges[n-1].Last = last
	} else {
		s.ranges = append(s.ranges, IDRange{First: first, Last: last})
	}
	s.count += int(last-first) + 1
	return nil
}

// rangeAtOrBefore returns the index of the last run starting at or before id.
func (s *IDSet) rangeAtOrBefore(id int32) int {
	return sort.Search(len(s.ranges), func(i int) bool { return s.ranges[i].First > id }) - 1
}

// Contains reports whether id is a member.
func (s *IDSet) Contains(id int32) bool {
	i := s.rangeAtOrBefore(id)
	return i >= 0 && id <= s.ranges[i].Last
}

// Prev returns the largest member < id.
func (s *IDSet) Prev(id int32) (int32, bool) {
	i := s.rangeAtOrBefore(id - 1)
	if i < 0 {
		return 0, false
	}
	r := s.ranges[i]
	if id-1 <= r.Last {
		return id - 1, true
	}
	return r.Last, true
}

// Next returns the smallest member > id.
func (s *IDSet) Next(id int32) (int32, bool) {
	i := s.rangeAtOrBefore(id + 1)
	if i >= 0 && id+1 <= s.ranges[i].Last {
		return id + 1, true
	}
	if i+1 < len(s.ranges) {
		return s.ranges[i+1].First, true
	}
	return 0, false
}

// First returns the smallest member.
func (s *IDSet) First() (int32, bool) {
	if len(s.ranges) == 0 {
		return 0, false
	}
	return s.ranges[0].First, true
}

// Last returns the largest member.
func (s *IDSet) Last() (int32, bool) {
	if len(s.ranges) == 0 {
		return 0, false
	}
	return s.ranges[len(s.ranges)-1].Last, true
}

// Len returns the number of members.
func (s *IDSet) Len() int {
	return s.count
}

// Ranges returns the runs in ascending order. Callers must not modify it.
func (s *IDSet) Ranges() []IDRange {
	return s.ranges
}

// WriteTo writes count:u32 followed by (first:u32, last:u32) per run.
func (s *IDSet) WriteTo(w io.Writer) (int64, error) {
	if err := WriteUint32(w, uint32(len(s.ranges))); err != nil {
		return 0, err
	}
	for _, r := range s.ranges {
		if err := WriteUint32(w, uint32(r.First)); err != nil {
			return 0, err
		}
		if err := WriteUint32(w, uint32(r.Last)); err != nil {
			return 0, err
		}
	}
	return int64(4 + 8*len(s.ranges)), nil
}

// ReadIDSet reads a set written by WriteTo.
func ReadIDSet(r io.Reader) (*IDSet, error) {
	n, err := ReadUint32(r)
	if err != nil {
		return nil, err
	}
	s := &IDSet{ranges: make([]IDRange, 0, PreallocCap(n))}
	for i := uint32(0); i < n; i++ {
		first, err := ReadUint32(r)
		if err != nil {
			return nil, err
		}
		last, err := ReadUint32(r)
		if err != nil {
			return nil, err
		}
		if err := s.AddRange(int32(first), int32(last)); err != nil {
			return nil, err
		}
	}
	return s, nil
}
