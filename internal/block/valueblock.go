package block

import (
	"bufio"
	"io"
	"math"

	"github.com/exec-trace/internal/event"
)

// Operands are the non-value fields an event may carry.
type Operands struct {
	Target event.ObjectID
	Index  int32
	Class  event.ClassID
	Copy   event.ArrayCopy
	Delta  int32
}

// ValueBlock holds produced values in per-type sparse maps, plus the
// operand fields of the events in its range.
type ValueBlock struct {
	index int

	ints     map[event.ID]int32
	shorts   map[event.ID]int16
	bytes    map[event.ID]int8
	floats   map[event.ID]float32
	doubles  map[event.ID]float64
	chars    map[event.ID]uint16
	booleans map[event.ID]bool
	longs    map[event.ID]int64
	objects  map[event.ID]event.ObjectID

	increments map[event.ID]int32
	targets    map[event.ID]event.ObjectID
	indices    map[event.ID]int32
	classes    map[event.ID]event.ClassID
	copies     map[event.ID]event.ArrayCopy
}

func newValueBlock(index int) *ValueBlock {
	return &ValueBlock{
		index:      index,
		ints:       make(map[event.ID]int32),
		shorts:     make(map[event.ID]int16),
		bytes:      make(map[event.ID]int8),
		floats:     make(map[event.ID]float32),
		doubles:    make(map[event.ID]float64),
		chars:      make(map[event.ID]uint16),
		booleans:   make(map[event.ID]bool),
		longs:      make(map[event.ID]int64),
		objects:    make(map[event.ID]event.ObjectID),
		increments: make(map[event.ID]int32),
		targets:    make(map[event.ID]event.ObjectID),
		indices:    make(map[event.ID]int32),
		classes:    make(map[event.ID]event.ClassID),
		copies:     make(map[event.ID]event.ArrayCopy),
	}
}

// Index returns the block index.
func (b *ValueBlock) Index() int { return b.index }

// SetValue stores the value id produced.
func (b *ValueBlock) SetValue(id event.ID, p event.Payload) {
	switch p.Type {
	case event.TypeInt:
		b.ints[id] = p.Int()
	case event.TypeShort:
		b.shorts[id] = p.Short()
	case event.TypeByte:
		b.bytes[id] = p.Byte()
	case event.TypeFloat:
		b.floats[id] = p.Float()
	case event.TypeDouble:
		b.doubles[id] = p.Double()
	case event.TypeChar:
		b.chars[id] = p.Char()
	case event.TypeBoolean:
		b.booleans[id] = p.Boolean()
	case event.TypeLong:
		b.longs[id] = p.Long()
	case event.TypeObject:
		b.objects[id] = p.Object()
	}
}

// Value returns the value id produced.
func (b *ValueBlock) Value(id event.ID) (event.Payload, bool) {
	if v, ok := b.ints[id]; ok {
		return event.Int(v), true
	}
	if v, ok := b.objects[id]; ok {
		return event.Object(v), true
	}
	if v, ok := b.longs[id]; ok {
		return event.Long(v), true
	}
	if v, ok := b.booleans[id]; ok {
		return event.Boolean(v), true
	}
	if v, ok := b.doubles[id]; ok {
		return event.Double(v), true
	}
	if v, ok := b.floats[id]; ok {
		return event.Float(v), true
	}
	if v, ok := b.chars[id]; ok {
		return event.Char(v), true
	}
	if v, ok := b.shorts[id]; ok {
		return event.Short(v), true
	}
	if v, ok := b.bytes[id]; ok {
		return event.Byte(v), true
	}
	return event.Payload{}, false
}

// SetOperands stores the operand fields f of id.
func (b *ValueBlock) SetOperands(id event.ID, f event.Field, ops Operands) {
	if f.Has(event.FieldTarget) {
		b.targets[id] = ops.Target
	}
	if f.Has(event.FieldIndex) {
		b.indices[id] = ops.Index
	}
	if f.Has(event.FieldClass) {
		b.classes[id] = ops.Class
	}
	if f.Has(event.FieldCopy) {
		b.copies[id] = ops.Copy
	}
	if f.Has(event.FieldDelta) {
		b.increments[id] = ops.Delta
	}
}

// Operands returns whatever operand fields id carries.
func (b *ValueBlock) Operands(id event.ID) Operands {
	return Operands{
		Target: b.targets[id],
		Index:  b.indices[id],
		Class:  b.classes[id],
		Copy:   b.copies[id],
		Delta:  b.increments[id],
	}
}

// Increment returns the delta of an increment event.
func (b *ValueBlock) Increment(id event.ID) (int32, bool) {
	d, ok := b.increments[id]
	return d, ok
}

// ValueCodec encodes ValueBlocks.
type ValueCodec struct{}

// Kind implements Codec.
func (ValueCodec) Kind() Kind { return KindValues }

// New implements Codec.
func (ValueCodec) New(index int) *ValueBlock { return newValueBlock(index) }

// Encode writes each map in a fixed order.
func (ValueCodec) Encode(w io.Writer, b *ValueBlock) error {
	bw := bufio.NewWriter(w)
	if err := writeHeader(bw, KindValues, b.index); err != nil {
		return err
	}
	steps := []func() error{
		func() error { return writeIDMap(bw, b.ints, func(w *bufio.Writer, v int32) error { return putU32(w, uint32(v)) }) },
		func() error { return writeIDMap(bw, b.shorts, func(w *bufio.Writer, v int16) error { return putU32(w, uint32(uint16(v))) }) },
		func() error { return writeIDMap(bw, b.bytes, func(w *bufio.Writer, v int8) error { return w.WriteByte(byte(v)) }) },
		func() error { return writeIDMap(bw, b.floats, func(w *bufio.Writer, v float32) error { return putU32(w, math.Float32bits(v)) }) },
		func() error { return writeIDMap(bw, b.doubles, func(w *bufio.Writer, v float64) error { return putU64(w, math.Float64bits(v)) }) },
		func() error { return writeIDMap(bw, b.chars, func(w *bufio.Writer, v uint16) error { return putU32(w, uint32(v)) }) },
		func() error { return writeIDMap(bw, b.booleans, func(w *bufio.Writer, v bool) error { return w.WriteByte(boolByte(v)) }) },
		func() error { return writeIDMap(bw, b.longs, func(w *bufio.Writer, v int64) error { return putU64(w, uint64(v)) }) },
		func() error { return writeIDMap(bw, b.objects, func(w *bufio.Writer, v event.ObjectID) error { return putU64(w, uint64(v)) }) },
		func() error { return writeIDMap(bw, b.increments, func(w *bufio.Writer, v int32) error { return putU32(w, uint32(v)) }) },
		func() error { return writeIDMap(bw, b.targets, func(w *bufio.Writer, v event.ObjectID) error { return putU64(w, uint64(v)) }) },
		func() error { return writeIDMap(bw, b.indices, func(w *bufio.Writer, v int32) error { return putU32(w, uint32(v)) }) },
		func() error { return writeIDMap(bw, b.classes, func(w *bufio.Writer, v event.ClassID) error { return putU32(w, uint32(v)) }) },
		func() error { return writeIDMap(bw, b.copies, putCopy) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}

func putCopy(w *bufio.Writer, c event.ArrayCopy) error {
	if err := putU64(w, uint64(c.Source)); err != nil {
		return err
	}
	if err := putU32(w, uint32(c.SourcePos)); err != nil {
		return err
	}
	if err := putU64(w, uint64(c.Dest)); err != nil {
		return err
	}
	if err := putU32(w, uint32(c.DestPos)); err != nil {
		return err
	}
	return putU32(w, uint32(c.Length))
}

func getCopy(r io.Reader) (event.ArrayCopy, error) {
	var c event.ArrayCopy
	src, err := getU64(r)
	if err != nil {
		return c, err
	}
	srcPos, err := getU32(r)
	if err != nil {
		return c, err
	}
	dst, err := getU64(r)
	if err != nil {
		return c, err
	}
	dstPos, err := getU32(r)
	if err != nil {
		return c, err
	}
	n, err := getU32(r)
	if err != nil {
		return c, err
	}
	return event.ArrayCopy{
		Source:    event.ObjectID(src),
		SourcePos: int32(srcPos),
		Dest:      event.ObjectID(dst),
		DestPos:   int32(dstPos),
		Length:    int32(n),
	}, nil
}

func getByte(r io.Reader) (byte, error) {
	var buf [1]byte
	_, err := io.ReadFull(r, buf[:])
	return buf[0], err
}

// Decode implements Codec.
func (ValueCodec) Decode(r io.Reader, index int) (*ValueBlock, error) {
	br := bufio.NewReader(r)
	if err := readHeader(br, KindValues, index); err != nil {
		return nil, err
	}
	b := &ValueBlock{index: index}
	var err error
	if b.ints, err = readIDMap(br, func(r io.Reader) (int32, error) { v, err := getU32(r); return int32(v), err }); err != nil {
		return nil, err
	}
	if b.shorts, err = readIDMap(br, func(r io.Reader) (int16, error) { v, err := getU32(r); return int16(v), err }); err != nil {
		return nil, err
	}
	if b.bytes, err = readIDMap(br, func(r io.Reader) (int8, error) { v, err := getByte(r); return int8(v), err }); err != nil {
		return nil, err
	}
	if b.floats, err = readIDMap(br, func(r io.Reader) (float32, error) { v, err := getU32(r); return math.Float32frombits(v), err }); err != nil {
		return nil, err
	}
	if b.doubles, err = readIDMap(br, func(r io.Reader) (float64, error) { v, err := getU64(r); return math.Float64frombits(v), err }); err != nil {
		return nil, err
	}
	if b.chars, err = readIDMap(br, func(r io.Reader) (uint16, error) { v, err := getU32(r); return uint16(v), err }); err != nil {
		return nil, err
	}
	if b.booleans, err = readIDMap(br, func(r io.Reader) (bool, error) { v, err := getByte(r); return v != 0, err }); err != nil {
		return nil, err
	}
	if b.longs, err = readIDMap(br, func(r io.Reader) (int64, error) { v, err := getU64(r); return int64(v), err }); err != nil {
		return nil, err
	}
	if b.objects, err = readIDMap(br, func(r io.Reader) (event.ObjectID, error) { v, err := getU64(r); return event.ObjectID(v), err }); err != nil {
		return nil, err
	}
	if b.increments, err = readIDMap(br, func(r io.Reader) (int32, error) { v, err := getU32(r); return int32(v), err }); err != nil {
		return nil, err
	}
	if b.targets, err = readIDMap(br, func(r io.Reader) (event.ObjectID, error) { v, err := getU64(r); return event.ObjectID(v), err }); err != nil {
		return nil, err
	}
	if b.indices, err = readIDMap(br, func(r io.Reader) (int32, error) { v, err := getU32(r); return int32(v), err }); err != nil {
		return nil, err
	}
	if b.classes, err = readIDMap(br, func(r io.Reader) (event.ClassID, error) { v, err := getU32(r); return event.ClassID(v), err }); err != nil {
		return nil, err
	}
	if b.copies, err = readIDMap(br, getCopy); err != nil {
		return nil, err
	}
	return b, nil
}
