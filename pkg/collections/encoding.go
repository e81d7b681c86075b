package collections

import (
	"encoding/binary"
	"errors"
	"io"
)

// ErrUnsorted is returned when a value would break ascending order.
var ErrUnsorted = errors.New("value out of ascending order")

// ErrCorrupt is returned when encoded data contradicts itself.
var ErrCorrupt = errors.New("corrupt container encoding")

// maxPrealloc caps the capacity reserved from a count read off a stream.
// Larger containers grow as their elements actually arrive.
const maxPrealloc = 1 << 16

// PreallocCap returns the capacity to reserve for n decoded elements.
func PreallocCap(n uint32) int {
	if n > maxPrealloc {
		return maxPrealloc
	}
	return int(n)
}

// WriteUint32 writes v big-endian.
func WriteUint32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

// ReadUint32 reads a big-endian uint32.
func ReadUint32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

// WriteUint64 writes v big-endian.
func WriteUint64(w io.Writer, v uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

// ReadUint64 reads a big-endian uint64.
func ReadUint64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}
