package serial

import (
	"container/heap"
	"fmt"
	"io"
)

// RecordSource yields records in ascending ID order, then io.EOF.
type RecordSource interface {
	Next() (Record, error)
}

type head struct {
	rec    Record
	thread int
}

type headHeap []head

func (h headHeap) Len() int            { return len(h) }
func (h headHeap) Less(i, j int) bool  { return h[i].rec.ID < h[j].rec.ID }
func (h headHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *headHeap) Push(x interface{}) { *h = append(*h, x.(head)) }
func (h *headHeap) Pop() interface{} {
	old := *h
	x := old[len(old)-1]
	*h = old[:len(old)-1]
	return x
}

// Merger interleaves per-thread logs into global ID order. Pool records
// are yielded as soon as they are read, ahead of any later event of
// their own log.
type Merger struct {
	sources []RecordSource
	heads   headHeap
	pending []Record
	last    Record
	started bool
}

// NewMerger primes every source. Thread indices follow the order of
// sources.
func NewMerger(sources []RecordSource) (*Merger, error) {
	m := &Merger{sources: sources}
	for i := range sources {
		if err := m.advance(i); err != nil {
			return nil, err
		}
	}
	heap.Init(&m.heads)
	return m, nil
}

func (m *Merger) advance(thread int) error {
	for {
		rec, err := m.sources[thread].Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("thread %d: %w", thread, err)
		}
		rec.Thread = thread
		if rec.IsPool() {
			m.pending = append(m.pending, rec)
			continue
		}
		heap.Push(&m.heads, head{rec: rec, thread: thread})
		return nil
	}
}

// Next returns the next record, or io.EOF when every log is drained.
// Two logs claiming the same ID is an error.
func (m *Merger) Next() (Record, error) {
	if len(m.pending) > 0 {
		rec := m.pending[0]
		m.pending = m.pending[1:]
		return rec, nil
	}
	if m.heads.Len() == 0 {
		return Record{}, io.EOF
	}
	h := heap.Pop(&m.heads).(head)
	if m.started && h.rec.ID == m.last.ID {
		return Record{}, fmt.Errorf("event %d claimed by threads %d and %d", h.rec.ID, m.last.Thread, h.thread)
	}
	m.last = h.rec
	m.started = true
	if err := m.advance(h.thread); err != nil {
		return Record{}, err
	}
	return h.rec, nil
}
