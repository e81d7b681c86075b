package event

import (
	"fmt"
	"math"
)

// ValueType tags a Payload. The values are persisted.
type ValueType uint8

const (
	TypeNone ValueType = iota
	TypeInt
	TypeShort
	TypeByte
	TypeFloat
	TypeDouble
	TypeChar
	TypeBoolean
	TypeLong
	TypeObject
)

var typeNames = [...]string{"none", "int", "short", "byte", "float", "double", "char", "boolean", "long", "object"}

// String returns the type name.
func (t ValueType) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("type(%d)", uint8(t))
}

// Valid reports whether t is a known type.
func (t ValueType) Valid() bool {
	return int(t) < len(typeNames)
}

// Payload is a typed primitive or object reference. The zero value is
// the absent payload.
type Payload struct {
	Type ValueType
	Bits uint64
}

// Int makes an int payload.
func Int(v int32) Payload { return Payload{TypeInt, uint64(uint32(v))} }

// Short makes a short payload.
func Short(v int16) Payload { return Payload{TypeShort, uint64(uint16(v))} }

// Byte makes a byte payload.
func Byte(v int8) Payload { return Payload{TypeByte, uint64(uint8(v))} }

// Float makes a float payload.
func Float(v float32) Payload { return Payload{TypeFloat, uint64(math.Float32bits(v))} }

// Double makes a double payload.
func Double(v float64) Payload { return Payload{TypeDouble, math.Float64bits(v)} }

// Char makes a char payload.
func Char(v uint16) Payload { return Payload{TypeChar, uint64(v)} }

// Boolean makes a boolean payload.
func Boolean(v bool) Payload {
	if v {
		return Payload{TypeBoolean, 1}
	}
	return Payload{TypeBoolean, 0}
}

// Long makes a long payload.
func Long(v int64) Payload { return Payload{TypeLong, uint64(v)} }

// Object makes an object reference payload.
func Object(id ObjectID) Payload { return Payload{TypeObject, uint64(id)} }

// Present reports whether the payload carries a value.
func (p Payload) Present() bool { return p.Type != TypeNone }

// Int returns the int value.
func (p Payload) Int() int32 { return int32(uint32(p.Bits)) }

// Short returns the short value.
func (p Payload) Short() int16 { return int16(uint16(p.Bits)) }

// Byte returns the byte value.
func (p Payload) Byte() int8 { return int8(uint8(p.Bits)) }

// Float returns the float value.
func (p Payload) Float() float32 { return math.Float32frombits(uint32(p.Bits)) }

// Double returns the double value.
func (p Payload) Double() float64 { return math.Float64frombits(p.Bits) }

// Char returns the char value.
func (p Payload) Char() uint16 { return uint16(p.Bits) }

// Boolean returns the boolean value.
func (p Payload) Boolean() bool { return p.Bits != 0 }

// Long returns the long value.
func (p Payload) Long() int64 { return int64(p.Bits) }

// Object returns the object reference.
func (p Payload) Object() ObjectID { return ObjectID(p.Bits) }

// Integral widens any integral payload to int64.
func (p Payload) Integral() (int64, bool) {
	switch p.Type {
	case TypeInt:
		return int64(p.Int()), true
	case TypeShort:
		return int64(p.Short()), true
	case TypeByte:
		return int64(p.Byte()), true
	case TypeChar:
		return int64(p.Char()), true
	case TypeLong:
		return p.Long(), true
	case TypeBoolean:
		return int64(p.Bits), true
	default:
		return 0, false
	}
}

// String renders the value.
func (p Payload) String() string {
	switch p.Type {
	case TypeNone:
		return "<none>"
	case TypeFloat:
		return fmt.Sprintf("%gf", p.Float())
	case TypeDouble:
		return fmt.Sprintf("%g", p.Double())
	case TypeChar:
		return fmt.Sprintf("'%c'", rune(p.Char()))
	case TypeBoolean:
		return fmt.Sprintf("%t", p.Boolean())
	case TypeLong:
		return fmt.Sprintf("%dL", p.Long())
	case TypeObject:
		if p.Object() == NullObject {
			return "null"
		}
		return fmt.Sprintf("#%d", p.Object())
	default:
		v, _ := p.Integral()
		return fmt.Sprintf("%d", v)
	}
}

// ArrayCopy holds the parameters of a bulk element copy.
type ArrayCopy struct {
	Source    ObjectID
	SourcePos int32
	Dest      ObjectID
	DestPos   int32
	Length    int32
}

// Covers reports whether destination index i was written by the copy.
func (c ArrayCopy) Covers(i int32) bool {
	return i >= c.DestPos && i < c.DestPos+c.Length
}

// SourceIndex maps destination index i to the source index it came from.
func (c ArrayCopy) SourceIndex(i int32) int32 {
	return c.SourcePos + (i - c.DestPos)
}
