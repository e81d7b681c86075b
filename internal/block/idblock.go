package block

import (
	"bufio"
	"fmt"
	"io"

	"github.com/exec-trace/internal/event"
	"github.com/exec-trace/pkg/collections"
)

const kindAbsent = 0xFF

// IDBlock holds the kind and instruction of every event in its range.
type IDBlock struct {
	index int
	first event.ID
	kinds []uint8
	refs  []event.InstructionRef
	count int
}

// Index returns the block index.
func (b *IDBlock) Index() int { return b.index }

// Len returns how many events are recorded.
func (b *IDBlock) Len() int { return b.count }

func (b *IDBlock) slot(id event.ID) (int, error) {
	off := int(id - b.first)
	if off < 0 || off >= len(b.kinds) {
		return 0, fmt.Errorf("event %d outside block %d", id, b.index)
	}
	return off, nil
}

// Set records the kind and instruction of id.
func (b *IDBlock) Set(id event.ID, kind event.Kind, ref event.InstructionRef) error {
	off, err := b.slot(id)
	if err != nil {
		return err
	}
	if b.kinds[off] == kindAbsent {
		b.count++
	}
	b.kinds[off] = uint8(kind)
	b.refs[off] = ref
	return nil
}

// Get returns the kind and instruction of id.
func (b *IDBlock) Get(id event.ID) (event.Kind, event.InstructionRef, bool) {
	off, err := b.slot(id)
	if err != nil || b.kinds[off] == kindAbsent {
		return 0, event.InstructionRef{}, false
	}
	return event.Kind(b.kinds[off]), b.refs[off], true
}

// IDCodec encodes IDBlocks.
type IDCodec struct {
	Layout Layout
}

// Kind implements Codec.
func (IDCodec) Kind() Kind { return KindIDs }

// New implements Codec.
func (c IDCodec) New(index int) *IDBlock {
	n := c.Layout.EventsPerBlock
	b := &IDBlock{
		index: index,
		first: c.Layout.First(index),
		kinds: make([]uint8, n),
		refs:  make([]event.InstructionRef, n),
	}
	for i := range b.kinds {
		b.kinds[i] = kindAbsent
	}
	return b
}

// Encode writes count:u32 then (offset:u32, kind:u8, ref:u32) per event.
func (c IDCodec) Encode(w io.Writer, b *IDBlock) error {
	bw := bufio.NewWriter(w)
	if err := writeHeader(bw, KindIDs, b.index); err != nil {
		return err
	}
	if err := collections.WriteUint32(bw, uint32(b.count)); err != nil {
		return err
	}
	for off, k := range b.kinds {
		if k == kindAbsent {
			continue
		}
		if err := collections.WriteUint32(bw, uint32(off)); err != nil {
			return err
		}
		if err := bw.WriteByte(k); err != nil {
			return err
		}
		if err := collections.WriteUint32(bw, b.refs[off].Pack()); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Decode implements Codec.
func (c IDCodec) Decode(r io.Reader, index int) (*IDBlock, error) {
	br := bufio.NewReader(r)
	if err := readHeader(br, KindIDs, index); err != nil {
		return nil, err
	}
	n, err := collections.ReadUint32(br)
	if err != nil {
		return nil, err
	}
	b := c.New(index)
	for i := uint32(0); i < n; i++ {
		off, err := collections.ReadUint32(br)
		if err != nil {
			return nil, err
		}
		k, err := br.ReadByte()
		if err != nil {
			return nil, err
		}
		packed, err := collections.ReadUint32(br)
		if err != nil {
			return nil, err
		}
		if err := b.Set(b.first+event.ID(off), event.Kind(k), event.UnpackInstructionRef(packed)); err != nil {
			return nil, err
		}
	}
	return b, nil
}
