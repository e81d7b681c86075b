package serial

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/exec-trace/internal/event"
)

// Writer appends records to one thread's log.
type Writer struct {
	w       *bufio.Writer
	last    event.ID
	started bool
	scratch [binary.MaxVarintLen64]byte
}

// NewWriter writes the log header and returns a Writer.
func NewWriter(w io.Writer) (*Writer, error) {
	bw := bufio.NewWriter(w)
	hdr := [headerSize]byte{magic[0], magic[1]}
	binary.BigEndian.PutUint16(hdr[2:], Version)
	if _, err := bw.Write(hdr[:]); err != nil {
		return nil, err
	}
	return &Writer{w: bw, last: event.None}, nil
}

func (w *Writer) uvarint(v uint64) error {
	n := binary.PutUvarint(w.scratch[:], v)
	_, err := w.w.Write(w.scratch[:n])
	return err
}

func (w *Writer) varint(v int64) error {
	n := binary.PutVarint(w.scratch[:], v)
	_, err := w.w.Write(w.scratch[:n])
	return err
}

func (w *Writer) str(s string) error {
	if err := w.uvarint(uint64(len(s))); err != nil {
		return err
	}
	_, err := w.w.WriteString(s)
	return err
}

// Write appends an event record. IDs must increase. A gap from the
// previous ID is written as a thread switch with an absolute ID.
func (w *Writer) Write(rec Record) error {
	if !rec.Kind.Valid() {
		return fmt.Errorf("cannot write record of kind %s", rec.Kind)
	}
	if rec.ID < 0 || (w.started && rec.ID <= w.last) {
		return fmt.Errorf("event %d out of order after %d", rec.ID, w.last)
	}
	switched := !w.started || rec.ID != w.last+1
	hdr := byte(rec.Kind) & kindMask
	if switched {
		hdr |= flagSwitch
	}
	if rec.IO {
		hdr |= flagIO
	}
	if err := w.w.WriteByte(hdr); err != nil {
		return err
	}
	id := uint64(rec.ID)
	if !switched {
		id = uint64(rec.ID - w.last)
	}
	if err := w.uvarint(id); err != nil {
		return err
	}
	if err := w.uvarint(uint64(rec.Ref.Pack())); err != nil {
		return err
	}
	if err := w.fields(rec); err != nil {
		return err
	}
	w.last = rec.ID
	w.started = true
	return nil
}

func (w *Writer) fields(rec Record) error {
	f := rec.Kind.Info().Fields
	if f.Has(event.FieldValue) {
		if err := w.w.WriteByte(byte(rec.Value.Type)); err != nil {
			return err
		}
		if err := w.uvarint(rec.Value.Bits); err != nil {
			return err
		}
	}
	if f.Has(event.FieldTarget) {
		if err := w.varint(int64(rec.Target)); err != nil {
			return err
		}
	}
	if f.Has(event.FieldIndex) {
		if err := w.varint(int64(rec.Index)); err != nil {
			return err
		}
	}
	if f.Has(event.FieldClass) {
		if err := w.uvarint(uint64(rec.Class)); err != nil {
			return err
		}
	}
	if f.Has(event.FieldCopy) {
		for _, v := range []int64{int64(rec.Copy.Source), int64(rec.Copy.SourcePos), int64(rec.Copy.Dest), int64(rec.Copy.DestPos), int64(rec.Copy.Length)} {
			if err := w.varint(v); err != nil {
				return err
			}
		}
	}
	if f.Has(event.FieldDelta) {
		if err := w.varint(int64(rec.Delta)); err != nil {
			return err
		}
	}
	return nil
}

// WritePool appends a value-pool record.
func (w *Writer) WritePool(entry PoolEntry) error {
	if err := w.w.WriteByte(byte(event.KindPoolEntry)); err != nil {
		return err
	}
	if err := w.varint(int64(entry.Object)); err != nil {
		return err
	}
	if err := w.str(entry.Type); err != nil {
		return err
	}
	return w.str(entry.Text)
}

// Flush flushes buffered records.
func (w *Writer) Flush() error {
	return w.w.Flush()
}

// FileWriter is a Writer that owns its file.
type FileWriter struct {
	*Writer
	f *os.File
}

// CreateFile creates a log file at path.
func CreateFile(path string) (*FileWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w, err := NewWriter(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &FileWriter{Writer: w, f: f}, nil
}

// Close flushes and closes the file.
func (fw *FileWriter) Close() error {
	if err := fw.Flush(); err != nil {
		fw.f.Close()
		return err
	}
	return fw.f.Close()
}
