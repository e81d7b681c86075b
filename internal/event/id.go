package event

import "math"

// ID identifies one recorded event. IDs are assigned in recording order
// across all threads.
type ID int32

// None marks an absent event.
const None ID = -1

// MaxID is the largest representable event ID.
const MaxID ID = math.MaxInt32

// Valid reports whether id refers to an event.
func (id ID) Valid() bool {
	return id >= 0
}

// ObjectID identifies a heap object. Zero is null and negative IDs are
// objects the recorder never resolved.
type ObjectID int64

// NullObject is the null reference.
const NullObject ObjectID = 0

// Resolved reports whether the object was identified by the recorder.
func (o ObjectID) Resolved() bool {
	return o > 0
}

// ClassID identifies a class in the static program model.
type ClassID uint16

// MethodID identifies a method in the static program model.
type MethodID int32

// NoMethod marks an absent method.
const NoMethod MethodID = -1
