// Package program is the engine's view of the static program model: which
// method an instruction belongs to, how many stack values it consumes and
// which instructions could have produced them.
//
// The model itself is computed elsewhere; Program is the read-only
// interface the engine consumes. Memory is a complete in-memory
// implementation used by the CLI (loaded from JSON) and by tests.
package program

import (
	"github.com/exec-trace/internal/event"
)

// Op classifies an instruction by how its result can be recovered.
type Op uint8

const (
	// OpRecorded instructions log an event carrying their result.
	OpRecorded Op = iota
	// OpLoadLocal pushes a local slot (including the receiver) unlogged.
	OpLoadLocal
	// OpConstant pushes a literal unlogged.
	OpConstant
	// OpDuplicate copies or reorders stack values unlogged.
	OpDuplicate
	// OpJumpSubroutine pushes a return address.
	OpJumpSubroutine
	// OpOther produces nothing the engine can trace.
	OpOther
)

var opNames = [...]string{"recorded", "load-local", "constant", "duplicate", "jump-subroutine", "other"}

// String returns the op name.
func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return "unknown"
}

// DupRoute says which input of a duplication feeds argument Arg of Consumer.
type DupRoute struct {
	Consumer event.InstructionRef `json:"consumer"`
	Arg      int                  `json:"arg"`
	Input    int                  `json:"input"`
}

// Instruction is the static description of one instruction.
type Instruction struct {
	Ref    event.InstructionRef `json:"ref"`
	Method event.MethodID       `json:"method"`
	Op     Op                   `json:"op"`
	Kind   event.Kind           `json:"kind"`

	// ArgCount is the number of stack values consumed. Producers holds,
	// per argument, the instructions that could statically have pushed it.
	ArgCount  int                      `json:"argCount"`
	Producers [][]event.InstructionRef `json:"producers,omitempty"`

	Local    int           `json:"local,omitempty"`
	Constant event.Payload `json:"constant,omitempty"`
	Field    string        `json:"field,omitempty"`

	// Target is the statically named callee of an invocation.
	Target      event.MethodID `json:"target,omitempty"`
	ThreadStart bool           `json:"threadStart,omitempty"`

	ControlPreds []event.InstructionRef `json:"controlPreds,omitempty"`
	Dup          []DupRoute             `json:"dup,omitempty"`
}

// ProducersOf returns the instructions that could statically have pushed
// argument arg, in model order.
func (i *Instruction) ProducersOf(arg int) []event.InstructionRef {
	if arg < 0 || arg >= len(i.Producers) {
		return nil
	}
	return i.Producers[arg]
}

// DupInput returns which input of a duplication flows to (consumer, arg).
func (i *Instruction) DupInput(consumer event.InstructionRef, arg int) (int, bool) {
	for _, r := range i.Dup {
		if r.Consumer == consumer && r.Arg == arg {
			return r.Input, true
		}
	}
	if i.ArgCount == 1 {
		return 0, true
	}
	return 0, false
}

// IsControlPred reports whether ref may decide whether i executes.
func (i *Instruction) IsControlPred(ref event.InstructionRef) bool {
	for _, p := range i.ControlPreds {
		if p == ref {
			return true
		}
	}
	return false
}

// Method is the static description of one method.
type Method struct {
	ID        event.MethodID `json:"id"`
	Class     event.ClassID  `json:"class"`
	Name      string         `json:"name"`
	Signature string         `json:"signature"`

	Static      bool `json:"static,omitempty"`
	Implicit    bool `json:"implicit,omitempty"`
	ClassInit   bool `json:"classInit,omitempty"`
	Main        bool `json:"main,omitempty"`
	ThreadEntry bool `json:"threadEntry,omitempty"`
	Constructor bool `json:"constructor,omitempty"`

	// ParamSlots maps argument index to local slot; the receiver is
	// argument 0 of instance methods. Overrides lists the methods this one
	// directly overrides.
	ParamSlots []int            `json:"paramSlots,omitempty"`
	Overrides  []event.MethodID `json:"overrides,omitempty"`
}

// ArgForSlot returns the argument that arrives in local slot.
func (m *Method) ArgForSlot(slot int) (int, bool) {
	for arg, s := range m.ParamSlots {
		if s == slot {
			return arg, true
		}
	}
	return 0, false
}

// Analysis is the per-method static analysis result.
type Analysis struct {
	Method       event.MethodID
	Instructions map[event.InstructionRef]*Instruction
}

// Program is the static program model.
type Program interface {
	Method(id event.MethodID) (*Method, bool)
	// Methods returns every method ID, ascending.
	Methods() []event.MethodID
	MethodAt(ref event.InstructionRef) (event.MethodID, bool)
	Analyze(id event.MethodID) (*Analysis, error)
	MethodCount() int
	ClassCount() int
}
