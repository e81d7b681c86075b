package event

import "fmt"

// Kind is the closed 6-bit tag classifying an event.
type Kind uint8

// KindBits is the width of a kind in the serial record header.
const KindBits = 6

// MaxKinds is the number of representable kinds.
const MaxKinds = 1 << KindBits

// The persisted kind values. Never renumber.
const (
	KindInvokeVirtual Kind = iota
	KindInvokeSpecial
	KindInvokeStatic
	KindInvokeInterface
	KindStart
	KindReturn
	KindReturnValue
	KindThrow
	KindCatch
	KindPutField
	KindPutStatic
	KindSetArray
	KindGetField
	KindGetStatic
	KindGetArray
	KindSetLocal
	KindIncrement
	KindBranch
	KindSwitch
	KindNewObject
	KindNewArray
	KindConstant
	KindCompute
	KindArrayLength
	KindInstanceOf
	KindArrayCopy
	KindMonitor

	// KindPoolEntry marks a value-pool record in a serial log. It consumes
	// no event ID.
	KindPoolEntry Kind = MaxKinds - 1
)

// Field flags which operand fields a kind's record carries, in the order
// they are encoded.
type Field uint8

const (
	// FieldValue is the typed value the event produced or stored.
	FieldValue Field = 1 << iota
	// FieldTarget is the object or array operated on.
	FieldTarget
	// FieldIndex is an array index, or the length of a new array.
	FieldIndex
	// FieldClass is the declared class of a new object or array.
	FieldClass
	// FieldCopy holds the five arraycopy parameters.
	FieldCopy
	// FieldDelta is the constant added by an increment.
	FieldDelta
)

// Has reports whether f includes all of g.
func (f Field) Has(g Field) bool {
	return f&g == g
}

// Info is the metadata record of a kind.
type Info struct {
	Name   string
	Fields Field

	IsInvocation      bool
	IsStart           bool
	IsReturn          bool
	IsThrow           bool
	IsCatch           bool
	IsBranch          bool
	IsHeapRead        bool
	IsHeapWrite       bool
	IsLocalDefinition bool
	IsAllocation      bool

	defined bool
}

var kinds [MaxKinds]Info

func define(k Kind, info Info) {
	info.defined = true
	kinds[k] = info
}

func init() {
	for _, k := range []Kind{KindInvokeVirtual, KindInvokeSpecial, KindInvokeStatic, KindInvokeInterface} {
		define(k, Info{IsInvocation: true})
	}
	kinds[KindInvokeVirtual].Name = "invokevirtual"
	kinds[KindInvokeSpecial].Name = "invokespecial"
	kinds[KindInvokeStatic].Name = "invokestatic"
	kinds[KindInvokeInterface].Name = "invokeinterface"

	define(KindStart, Info{Name: "start", IsStart: true})
	define(KindReturn, Info{Name: "return", IsReturn: true})
	define(KindReturnValue, Info{Name: "return-value", Fields: FieldValue, IsReturn: true})
	define(KindThrow, Info{Name: "throw", Fields: FieldTarget, IsThrow: true})
	define(KindCatch, Info{Name: "catch", Fields: FieldValue, IsCatch: true})
	define(KindPutField, Info{Name: "putfield", Fields: FieldValue | FieldTarget, IsHeapWrite: true})
	define(KindPutStatic, Info{Name: "putstatic", Fields: FieldValue, IsHeapWrite: true})
	define(KindSetArray, Info{Name: "setarray", Fields: FieldValue | FieldTarget | FieldIndex, IsHeapWrite: true})
	define(KindGetField, Info{Name: "getfield", Fields: FieldValue | FieldTarget, IsHeapRead: true})
	define(KindGetStatic, Info{Name: "getstatic", Fields: FieldValue, IsHeapRead: true})
	define(KindGetArray, Info{Name: "getarray", Fields: FieldValue | FieldTarget | FieldIndex, IsHeapRead: true})
	define(KindSetLocal, Info{Name: "setlocal", Fields: FieldValue, IsLocalDefinition: true})
	define(KindIncrement, Info{Name: "increment", Fields: FieldValue | FieldDelta, IsLocalDefinition: true})
	define(KindBranch, Info{Name: "branch", Fields: FieldValue, IsBranch: true})
	define(KindSwitch, Info{Name: "switch", Fields: FieldValue, IsBranch: true})
	define(KindNewObject, Info{Name: "new", Fields: FieldValue | FieldClass, IsAllocation: true})
	define(KindNewArray, Info{Name: "newarray", Fields: FieldValue | FieldClass | FieldIndex, IsAllocation: true})
	define(KindConstant, Info{Name: "constant", Fields: FieldValue})
	define(KindCompute, Info{Name: "compute", Fields: FieldValue})
	define(KindArrayLength, Info{Name: "arraylength", Fields: FieldValue | FieldTarget})
	define(KindInstanceOf, Info{Name: "instanceof", Fields: FieldValue | FieldTarget})
	define(KindArrayCopy, Info{Name: "arraycopy", Fields: FieldCopy, IsHeapWrite: true})
	define(KindMonitor, Info{Name: "monitor", Fields: FieldTarget})
	define(KindPoolEntry, Info{Name: "pool-entry"})
}

// Info returns the metadata record of k.
func (k Kind) Info() *Info {
	return &kinds[k&(MaxKinds-1)]
}

// Valid reports whether k is a defined event kind.
func (k Kind) Valid() bool {
	return k < MaxKinds && kinds[k].defined && k != KindPoolEntry
}

// String returns the kind name.
func (k Kind) String() string {
	if k < MaxKinds && kinds[k].defined {
		return kinds[k].Name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ParseKind finds a kind by name.
func ParseKind(name string) (Kind, bool) {
	for k := Kind(0); k < MaxKinds; k++ {
		if kinds[k].defined && kinds[k].Name == name {
			return k, true
		}
	}
	return 0, false
}
