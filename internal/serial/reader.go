package serial

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"golang.org/x/exp/mmap"

	"github.com/exec-trace/internal/event"
)

// Source is a log held in a random-access medium.
type Source interface {
	io.ReaderAt

	// Len returns the size of the log in bytes.
	Len() int
}

// Reader decodes one thread's log.
type Reader struct {
	r       *bufio.Reader
	last    event.ID
	started bool
	offset  int64
}

// NewReader checks the log header and returns a Reader.
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReaderSize(r, 64<<10)
	var hdr [headerSize]byte
	if _, err := io.ReadFull(br, hdr[:]); err != nil {
		return nil, fmt.Errorf("read log header: %w", err)
	}
	if hdr[0] != magic[0] || hdr[1] != magic[1] {
		return nil, fmt.Errorf("bad log magic %q", hdr[:2])
	}
	if v := binary.BigEndian.Uint16(hdr[2:]); v != Version {
		return nil, fmt.Errorf("unsupported log version %d", v)
	}
	return &Reader{r: br, last: event.None, offset: headerSize}, nil
}

// NewSourceReader reads a log from a Source.
func NewSourceReader(src Source) (*Reader, error) {
	return NewReader(io.NewSectionReader(src, 0, int64(src.Len())))
}

// ReadByte implements io.ByteReader for the varint decoders.
func (r *Reader) ReadByte() (byte, error) {
	b, err := r.r.ReadByte()
	if err == nil {
		r.offset++
	}
	return b, err
}

func (r *Reader) uvarint() (uint64, error) {
	v, err := binary.ReadUvarint(r)
	return v, unexpected(err)
}

func (r *Reader) varint() (int64, error) {
	v, err := binary.ReadVarint(r)
	return v, unexpected(err)
}

// int32 reads a varint that must fit an int32.
func (r *Reader) int32(what string) (int32, error) {
	v, err := r.varint()
	if err != nil {
		return 0, err
	}
	if v < math.MinInt32 || v > math.MaxInt32 {
		return 0, fmt.Errorf("%s %d overflows int32", what, v)
	}
	return int32(v), nil
}

func (r *Reader) str() (string, error) {
	n, err := r.uvarint()
	if err != nil {
		return "", err
	}
	if n > 1<<24 {
		return "", fmt.Errorf("string of %d bytes exceeds limit", n)
	}
	buf := make([]byte, n)
	m, err := io.ReadFull(r.r, buf)
	r.offset += int64(m)
	if err != nil {
		return "", unexpected(err)
	}
	return string(buf), nil
}

func unexpected(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

// Offset returns the byte offset of the next record.
func (r *Reader) Offset() int64 {
	return r.offset
}

// Next decodes the next record. It returns io.EOF at a clean end of log.
func (r *Reader) Next() (Record, error) {
	at := r.offset
	rec, err := r.next()
	if err != nil && err != io.EOF {
		return Record{}, fmt.Errorf("record at offset %d: %w", at, err)
	}
	return rec, err
}

func (r *Reader) next() (Record, error) {
	hdr, err := r.ReadByte()
	if err != nil {
		return Record{}, err
	}
	kind := event.Kind(hdr & kindMask)
	if kind == event.KindPoolEntry {
		return r.pool()
	}
	if !kind.Valid() {
		return Record{}, fmt.Errorf("unknown kind %d", kind)
	}
	rec := Record{Kind: kind, IO: hdr&flagIO != 0}

	id, err := r.uvarint()
	if err != nil {
		return Record{}, err
	}
	switch {
	case hdr&flagSwitch != 0:
		if id > uint64(event.MaxID) {
			return Record{}, fmt.Errorf("event ID %d overflows", id)
		}
		rec.ID = event.ID(id)
	case !r.started:
		return Record{}, fmt.Errorf("first record carries a delta ID")
	default:
		if id > uint64(event.MaxID-r.last) {
			return Record{}, fmt.Errorf("event delta %d after %d overflows", id, r.last)
		}
		rec.ID = r.last + event.ID(id)
	}
	if rec.ID < 0 || (r.started && rec.ID <= r.last) {
		return Record{}, fmt.Errorf("event %d out of order after %d", rec.ID, r.last)
	}

	packed, err := r.uvarint()
	if err != nil {
		return Record{}, err
	}
	if packed > 0xFFFFFFFF {
		return Record{}, fmt.Errorf("instruction ref %d overflows", packed)
	}
	rec.Ref = event.UnpackInstructionRef(uint32(packed))

	if err := r.fields(&rec); err != nil {
		return Record{}, err
	}
	r.last = rec.ID
	r.started = true
	return rec, nil
}

func (r *Reader) fields(rec *Record) error {
	f := rec.Kind.Info().Fields
	if f.Has(event.FieldValue) {
		t, err := r.ReadByte()
		if err != nil {
			return unexpected(err)
		}
		if !event.ValueType(t).Valid() {
			return fmt.Errorf("unknown value type %d", t)
		}
		bits, err := r.uvarint()
		if err != nil {
			return err
		}
		rec.Value = event.Payload{Type: event.ValueType(t), Bits: bits}
	}
	if f.Has(event.FieldTarget) {
		v, err := r.varint()
		if err != nil {
			return err
		}
		rec.Target = event.ObjectID(v)
	}
	if f.Has(event.FieldIndex) {
		v, err := r.int32("index")
		if err != nil {
			return err
		}
		rec.Index = v
	}
	if f.Has(event.FieldClass) {
		v, err := r.uvarint()
		if err != nil {
			return err
		}
		if v > math.MaxUint16 {
			return fmt.Errorf("class %d overflows", v)
		}
		rec.Class = event.ClassID(v)
	}
	if f.Has(event.FieldCopy) {
		var err error
		c := &rec.Copy
		var src, dst int64
		if src, err = r.varint(); err != nil {
			return err
		}
		if c.SourcePos, err = r.int32("copy source position"); err != nil {
			return err
		}
		if dst, err = r.varint(); err != nil {
			return err
		}
		if c.DestPos, err = r.int32("copy destination position"); err != nil {
			return err
		}
		if c.Length, err = r.int32("copy length"); err != nil {
			return err
		}
		c.Source, c.Dest = event.ObjectID(src), event.ObjectID(dst)
	}
	if f.Has(event.FieldDelta) {
		v, err := r.int32("delta")
		if err != nil {
			return err
		}
		rec.Delta = v
	}
	return nil
}

func (r *Reader) pool() (Record, error) {
	obj, err := r.varint()
	if err != nil {
		return Record{}, err
	}
	typ, err := r.str()
	if err != nil {
		return Record{}, err
	}
	text, err := r.str()
	if err != nil {
		return Record{}, err
	}
	return Record{
		ID:   event.None,
		Kind: event.KindPoolEntry,
		Pool: &PoolEntry{Object: event.ObjectID(obj), Type: typ, Text: text},
	}, nil
}

// File is a Reader over a memory-mapped log.
type File struct {
	*Reader
	mapped *mmap.ReaderAt
}

// OpenFile maps the log at path.
func OpenFile(path string) (*File, error) {
	m, err := mmap.Open(path)
	if err != nil {
		return nil, err
	}
	r, err := NewSourceReader(m)
	if err != nil {
		m.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &File{Reader: r, mapped: m}, nil
}

// Size returns the mapped length.
func (f *File) Size() int64 {
	return int64(f.mapped.Len())
}

// Close unmaps the log.
func (f *File) Close() error {
	return f.mapped.Close()
}
