// Package history indexes, per entity, the ascending IDs of the events
// that touched it: writes to a field, element or static, invocations of a
// method, exceptions on a thread and so on.
//
// Every index is append-only during ingestion and read-only afterwards.
// Persisted indices use one container format: count:u32 followed by
// (key, vector) pairs, each vector being count:u32 then u32 deltas.
package history

import (
	"bufio"
	"errors"
	"io"
	"sort"

	"github.com/exec-trace/internal/event"
	"github.com/exec-trace/pkg/collections"
	apperrors "github.com/exec-trace/pkg/errors"
)

// KeyCodec persists and orders index keys.
type KeyCodec[K comparable] interface {
	Write(w io.Writer, k K) error
	Read(r io.Reader) (K, error)
	Less(a, b K) bool
}

// Index maps keys to ascending event IDs.
type Index[K comparable] struct {
	name    string
	codec   KeyCodec[K]
	entries map[K]*collections.SortedVector
	events  int
}

// NewIndex creates an empty index.
func NewIndex[K comparable](name string, codec KeyCodec[K]) *Index[K] {
	return &Index[K]{
		name:    name,
		codec:   codec,
		entries: make(map[K]*collections.SortedVector),
	}
}

// Name returns the index name, also its file name.
func (x *Index[K]) Name() string {
	return x.name
}

// Add appends id to the vector of k. IDs must arrive in ascending order
// per key; anything else is an ingestion defect.
func (x *Index[K]) Add(k K, id event.ID) error {
	v, ok := x.entries[k]
	if !ok {
		v = collections.NewSortedVector(4)
		x.entries[k] = v
	}
	n := v.Len()
	if err := v.Append(int32(id)); err != nil {
		if errors.Is(err, collections.ErrUnsorted) {
			return apperrors.Defectf("%s index: %v", x.name, err)
		}
		return err
	}
	if v.Len() > n {
		x.events++
	}
	return nil
}

// Events returns the vector of k, or nil.
func (x *Index[K]) Events(k K) *collections.SortedVector {
	return x.entries[k]
}

// LastAtOrBefore returns the latest event of k with ID <= at.
func (x *Index[K]) LastAtOrBefore(k K, at event.ID) event.ID {
	v, ok := x.entries[k]
	if !ok {
		return event.None
	}
	if id, ok := v.AtOrBefore(int32(at)); ok {
		return event.ID(id)
	}
	return event.None
}

// LastBefore returns the latest event of k with ID < at.
func (x *Index[K]) LastBefore(k K, at event.ID) event.ID {
	return x.LastAtOrBefore(k, at-1)
}

// FirstAfter returns the earliest event of k with ID > at.
func (x *Index[K]) FirstAfter(k K, at event.ID) event.ID {
	v, ok := x.entries[k]
	if !ok {
		return event.None
	}
	if id, ok := v.After(int32(at)); ok {
		return event.ID(id)
	}
	return event.None
}

// Keys returns the keys in codec order.
func (x *Index[K]) Keys() []K {
	keys := make([]K, 0, len(x.entries))
	for k := range x.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return x.codec.Less(keys[i], keys[j]) })
	return keys
}

// Len returns the number of keys.
func (x *Index[K]) Len() int {
	return len(x.entries)
}

// EventCount returns the number of indexed events.
func (x *Index[K]) EventCount() int {
	return x.events
}

// WriteTo writes the index in container format.
func (x *Index[K]) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: bufio.NewWriter(w)}
	if err := collections.WriteUint32(cw, uint32(len(x.entries))); err != nil {
		return cw.n, err
	}
	for _, k := range x.Keys() {
		if err := x.codec.Write(cw, k); err != nil {
			return cw.n, err
		}
		if _, err := x.entries[k].WriteTo(cw); err != nil {
			return cw.n, err
		}
	}
	return cw.n, cw.w.(*bufio.Writer).Flush()
}

// ReadFrom replaces the contents with an index in container format. It
// reads exactly the bytes WriteTo wrote, so indices can share a stream;
// callers buffer r.
func (x *Index[K]) ReadFrom(r io.Reader) (int64, error) {
	cr := &countingReader{r: r}
	n, err := collections.ReadUint32(cr)
	if err != nil {
		return cr.n, err
	}
	entries := make(map[K]*collections.SortedVector, collections.PreallocCap(n))
	events := 0
	for i := uint32(0); i < n; i++ {
		k, err := x.codec.Read(cr)
		if err != nil {
			return cr.n, err
		}
		v, err := collections.ReadSortedVector(cr)
		if err != nil {
			return cr.n, err
		}
		entries[k] = v
		events += v.Len()
	}
	x.entries = entries
	x.events = events
	return cr.n, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
