package event

import "fmt"

const (
	// MaxClass is the largest class number an InstructionRef can hold.
	MaxClass = 1<<16 - 1
	// MaxIndex is the largest instruction index an InstructionRef can hold.
	MaxIndex = 1<<16 - 1
)

// InstructionRef names the static code location behind an event.
type InstructionRef struct {
	Class ClassID
	Index uint16
}

// NewInstructionRef builds a ref, rejecting values that do not fit.
func NewInstructionRef(class, index int) (InstructionRef, error) {
	if class < 0 || class > MaxClass {
		return InstructionRef{}, fmt.Errorf("class %d out of range [0, %d]", class, MaxClass)
	}
	if index < 0 || index > MaxIndex {
		return InstructionRef{}, fmt.Errorf("instruction index %d out of range [0, %d]", index, MaxIndex)
	}
	return InstructionRef{Class: ClassID(class), Index: uint16(index)}, nil
}

// MustInstructionRef is NewInstructionRef for constants known to fit.
func MustInstructionRef(class, index int) InstructionRef {
	ref, err := NewInstructionRef(class, index)
	if err != nil {
		panic(err)
	}
	return ref
}

// Pack returns the 32-bit persisted form.
func (r InstructionRef) Pack() uint32 {
	return uint32(r.Class)<<16 | uint32(r.Index)
}

// UnpackInstructionRef reverses Pack.
func UnpackInstructionRef(v uint32) InstructionRef {
	return InstructionRef{Class: ClassID(v >> 16), Index: uint16(v)}
}

// String renders the ref as class:index.
func (r InstructionRef) String() string {
	return fmt.Sprintf("%d:%d", r.Class, r.Index)
}
