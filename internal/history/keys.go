package history

import (
	"fmt"
	"io"

	"github.com/exec-trace/internal/event"
	"github.com/exec-trace/pkg/collections"
)

// FieldKey names one instance field of one object.
type FieldKey struct {
	Object event.ObjectID
	Field  string
}

// ElementKey names one element of one array.
type ElementKey struct {
	Array event.ObjectID
	Index int32
}

func writeString(w io.Writer, s string) error {
	if err := collections.WriteUint32(w, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	n, err := collections.ReadUint32(r)
	if err != nil {
		return "", err
	}
	if n > 1<<20 {
		return "", fmt.Errorf("key string of %d bytes exceeds limit", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// ObjectKeys encodes ObjectID keys.
type ObjectKeys struct{}

func (ObjectKeys) Write(w io.Writer, k event.ObjectID) error {
	return collections.WriteUint64(w, uint64(k))
}

func (ObjectKeys) Read(r io.Reader) (event.ObjectID, error) {
	v, err := collections.ReadUint64(r)
	return event.ObjectID(v), err
}

func (ObjectKeys) Less(a, b event.ObjectID) bool { return a < b }

// StringKeys encodes string keys.
type StringKeys struct{}

func (StringKeys) Write(w io.Writer, k string) error { return writeString(w, k) }
func (StringKeys) Read(r io.Reader) (string, error)  { return readString(r) }
func (StringKeys) Less(a, b string) bool             { return a < b }

// MethodKeys encodes MethodID keys.
type MethodKeys struct{}

func (MethodKeys) Write(w io.Writer, k event.MethodID) error {
	return collections.WriteUint32(w, uint32(k))
}

func (MethodKeys) Read(r io.Reader) (event.MethodID, error) {
	v, err := collections.ReadUint32(r)
	return event.MethodID(v), err
}

func (MethodKeys) Less(a, b event.MethodID) bool { return a < b }

// ThreadKeys encodes thread index keys.
type ThreadKeys struct{}

func (ThreadKeys) Write(w io.Writer, k int) error { return collections.WriteUint32(w, uint32(k)) }

func (ThreadKeys) Read(r io.Reader) (int, error) {
	v, err := collections.ReadUint32(r)
	return int(v), err
}

func (ThreadKeys) Less(a, b int) bool { return a < b }

// ClassKeys encodes ClassID keys.
type ClassKeys struct{}

func (ClassKeys) Write(w io.Writer, k event.ClassID) error {
	return collections.WriteUint32(w, uint32(k))
}

func (ClassKeys) Read(r io.Reader) (event.ClassID, error) {
	v, err := collections.ReadUint32(r)
	return event.ClassID(v), err
}

func (ClassKeys) Less(a, b event.ClassID) bool { return a < b }

// RefKeys encodes instruction ref keys.
type RefKeys struct{}

func (RefKeys) Write(w io.Writer, k event.InstructionRef) error {
	return collections.WriteUint32(w, k.Pack())
}

func (RefKeys) Read(r io.Reader) (event.InstructionRef, error) {
	v, err := collections.ReadUint32(r)
	return event.UnpackInstructionRef(v), err
}

func (RefKeys) Less(a, b event.InstructionRef) bool { return a.Pack() < b.Pack() }

// FieldKeys encodes FieldKey keys.
type FieldKeys struct{}

func (FieldKeys) Write(w io.Writer, k FieldKey) error {
	if err := collections.WriteUint64(w, uint64(k.Object)); err != nil {
		return err
	}
	return writeString(w, k.Field)
}

func (FieldKeys) Read(r io.Reader) (FieldKey, error) {
	obj, err := collections.ReadUint64(r)
	if err != nil {
		return FieldKey{}, err
	}
	field, err := readString(r)
	return FieldKey{Object: event.ObjectID(obj), Field: field}, err
}

func (FieldKeys) Less(a, b FieldKey) bool {
	if a.Object != b.Object {
		return a.Object < b.Object
	}
	return a.Field < b.Field
}

// ElementKeys encodes ElementKey keys.
type ElementKeys struct{}

func (ElementKeys) Write(w io.Writer, k ElementKey) error {
	if err := collections.WriteUint64(w, uint64(k.Array)); err != nil {
		return err
	}
	return collections.WriteUint32(w, uint32(k.Index))
}

func (ElementKeys) Read(r io.Reader) (ElementKey, error) {
	arr, err := collections.ReadUint64(r)
	if err != nil {
		return ElementKey{}, err
	}
	idx, err := collections.ReadUint32(r)
	return ElementKey{Array: event.ObjectID(arr), Index: int32(idx)}, err
}

func (ElementKeys) Less(a, b ElementKey) bool {
	if a.Array != b.Array {
		return a.Array < b.Array
	}
	return a.Index < b.Index
}
