// Package provenance answers "which event produced this value" and "which
// event decided that this event would run" over a loaded trace.
//
// Resolution never fails for an expected trace gap: it yields an Unknown
// value carrying a Reason. Errors are reserved for block I/O failures and
// ingestion defects.
package provenance

import (
	"fmt"

	"github.com/exec-trace/internal/event"
)

// Reason says why a value could not be resolved.
type Reason uint8

const (
	// ReasonUntracedCall means the value crossed a call whose other side
	// was not recorded.
	ReasonUntracedCall Reason = iota + 1
	// ReasonJumpSubroutine means the producer pushed a subroutine return
	// address.
	ReasonJumpSubroutine
	// ReasonNoDefinition means no defining event was found in the frame.
	ReasonNoDefinition
	// ReasonLostPlaceholder means an allocation never received its final
	// object ID.
	ReasonLostPlaceholder
	// ReasonUnknownCopySource means an arraycopy named an unidentified
	// source array.
	ReasonUnknownCopySource
	// ReasonNoProducer means the static model names no producer.
	ReasonNoProducer
	// ReasonExceptionalExit means the callee threw instead of returning.
	ReasonExceptionalExit
	// ReasonUnsupported means the producer cannot be traced.
	ReasonUnsupported
)

var reasonNames = map[Reason]string{
	ReasonUntracedCall:      "untraced-call",
	ReasonJumpSubroutine:    "jump-subroutine",
	ReasonNoDefinition:      "no-definition",
	ReasonLostPlaceholder:   "lost-placeholder",
	ReasonUnknownCopySource: "unknown-copy-source",
	ReasonNoProducer:        "no-producer",
	ReasonExceptionalExit:   "exceptional-exit",
	ReasonUnsupported:       "unsupported",
}

// String returns the reason name.
func (r Reason) String() string {
	if s, ok := reasonNames[r]; ok {
		return s
	}
	return fmt.Sprintf("reason(%d)", uint8(r))
}

// Value is a resolved value. Implementations are pointers so a cached
// result is returned as the same instance.
type Value interface {
	// Event is the producing event, or event.None.
	Event() event.ID
	String() string
	value()
}

// Constant is a literal pushed without a recorded event.
type Constant struct {
	Instruction event.InstructionRef
	Payload     event.Payload
}

// Traced is a value produced by a recorded event.
type Traced struct {
	ID      event.ID
	Payload event.Payload
}

// Increment is a local updated in place by a constant delta.
type Increment struct {
	ID      event.ID
	Delta   int32
	Payload event.Payload
}

// Unknown is a value that could not be resolved.
type Unknown struct {
	Reason Reason
	// At is the event where resolution stopped, or event.None.
	At event.ID
}

func (*Constant) value()  {}
func (*Traced) value()    {}
func (*Increment) value() {}
func (*Unknown) value()   {}

func (v *Constant) Event() event.ID  { return event.None }
func (v *Traced) Event() event.ID    { return v.ID }
func (v *Increment) Event() event.ID { return v.ID }
func (v *Unknown) Event() event.ID   { return event.None }

func (v *Constant) String() string {
	return fmt.Sprintf("constant %s at %s", v.Payload, v.Instruction)
}

func (v *Traced) String() string {
	if v.Payload.Present() {
		return fmt.Sprintf("%s from event %d", v.Payload, v.ID)
	}
	return fmt.Sprintf("event %d", v.ID)
}

func (v *Increment) String() string {
	return fmt.Sprintf("%s from increment %+d at event %d", v.Payload, v.Delta, v.ID)
}

func (v *Unknown) String() string {
	if v.At != event.None {
		return fmt.Sprintf("unknown (%s at event %d)", v.Reason, v.At)
	}
	return fmt.Sprintf("unknown (%s)", v.Reason)
}

// IsUnknown reports whether v is Unknown, and with which reason.
func IsUnknown(v Value) (Reason, bool) {
	if u, ok := v.(*Unknown); ok {
		return u.Reason, true
	}
	return 0, false
}

// ObjectOf returns the object a value refers to.
func ObjectOf(v Value) (event.ObjectID, bool) {
	var p event.Payload
	switch t := v.(type) {
	case *Traced:
		p = t.Payload
	case *Constant:
		p = t.Payload
	default:
		return 0, false
	}
	if p.Type != event.TypeObject {
		return 0, false
	}
	return p.Object(), true
}
