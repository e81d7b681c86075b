// Package block stores raw event data in fixed-size blocks aligned on the
// same ID ranges, and pages them between memory and disk.
//
// Block i of every kind covers IDs [i*N, (i+1)*N) where N is the
// configured events-per-block. Blocks are either fully resident or fully
// on disk; Pager keeps a hard cap on how many are resident.
package block

import (
	"bufio"
	"fmt"
	"io"
	"sort"

	"github.com/exec-trace/internal/event"
	"github.com/exec-trace/pkg/collections"
)

// DefaultEventsPerBlock is the block size used when none is configured.
const DefaultEventsPerBlock = 4096

// Kind names a block family. It is also its on-disk subdirectory.
type Kind string

const (
	KindIDs    Kind = "ids"
	KindValues Kind = "values"
	KindCalls  Kind = "calls"
)

var fileMagic = [2]byte{'X', 'B'}

const fileVersion = 1

// Layout maps event IDs to blocks.
type Layout struct {
	EventsPerBlock int
}

// Block returns the index of the block holding id.
func (l Layout) Block(id event.ID) int {
	return int(id) / l.EventsPerBlock
}

// First returns the first ID of block index.
func (l Layout) First(index int) event.ID {
	return event.ID(index * l.EventsPerBlock)
}

// Count returns how many blocks hold events IDs [0, events).
func (l Layout) Count(events int) int {
	return (events + l.EventsPerBlock - 1) / l.EventsPerBlock
}

// Codec creates, encodes and decodes blocks of one kind.
type Codec[T any] interface {
	Kind() Kind
	New(index int) T
	Encode(w io.Writer, b T) error
	Decode(r io.Reader, index int) (T, error)
}

func writeHeader(w io.Writer, kind Kind, index int) error {
	tag := byte(0)
	if len(kind) > 0 {
		tag = kind[0]
	}
	if _, err := w.Write([]byte{fileMagic[0], fileMagic[1], fileVersion, tag}); err != nil {
		return err
	}
	return collections.WriteUint32(w, uint32(index))
}

func readHeader(r io.Reader, kind Kind, index int) error {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return err
	}
	if hdr[0] != fileMagic[0] || hdr[1] != fileMagic[1] {
		return fmt.Errorf("bad block magic %q", hdr[:2])
	}
	if hdr[2] != fileVersion {
		return fmt.Errorf("unsupported block version %d", hdr[2])
	}
	if len(kind) > 0 && hdr[3] != kind[0] {
		return fmt.Errorf("block file holds kind %q, want %s", hdr[3], kind)
	}
	got, err := collections.ReadUint32(r)
	if err != nil {
		return err
	}
	if int(got) != index {
		return fmt.Errorf("block file holds block %d, want %d", got, index)
	}
	return nil
}

// writeIDMap writes count:u32 then (id:u32, value) pairs in ascending ID order.
func writeIDMap[V any](w *bufio.Writer, m map[event.ID]V, put func(*bufio.Writer, V) error) error {
	ids := sortedIDs(m)
	if err := collections.WriteUint32(w, uint32(len(ids))); err != nil {
		return err
	}
	for _, id := range ids {
		if err := collections.WriteUint32(w, uint32(id)); err != nil {
			return err
		}
		if err := put(w, m[id]); err != nil {
			return err
		}
	}
	return nil
}

func readIDMap[V any](r io.Reader, get func(io.Reader) (V, error)) (map[event.ID]V, error) {
	n, err := collections.ReadUint32(r)
	if err != nil {
		return nil, err
	}
	m := make(map[event.ID]V, collections.PreallocCap(n))
	for i := uint32(0); i < n; i++ {
		id, err := collections.ReadUint32(r)
		if err != nil {
			return nil, err
		}
		v, err := get(r)
		if err != nil {
			return nil, err
		}
		m[event.ID(id)] = v
	}
	return m, nil
}

func putU32(w *bufio.Writer, v uint32) error { return collections.WriteUint32(w, v) }
func putU64(w *bufio.Writer, v uint64) error { return collections.WriteUint64(w, v) }
func getU32(r io.Reader) (uint32, error)     { return collections.ReadUint32(r) }
func getU64(r io.Reader) (uint64, error)     { return collections.ReadUint64(r) }

func sortedIDs[V any](m map[event.ID]V) []event.ID {
	ids := make([]event.ID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
