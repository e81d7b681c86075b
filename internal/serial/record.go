// Package serial reads and writes the per-thread append-only event logs a
// recorder produces, and merges them into one stream in global ID order.
//
// A log starts with a 4-byte header (magic "XT", big-endian version) and
// is followed by records. Each record opens with one byte holding the
// thread-switch flag (0x80), the I/O flag (0x40) and the 6-bit kind. An
// event record then carries its ID, absolute as a uvarint when the switch
// flag is set and otherwise as a uvarint delta from the previous event of
// the same log, the packed instruction ref as a uvarint, and finally the
// operand fields its kind declares, in Field order.
//
// Value-pool records use KindPoolEntry and carry no ID or instruction.
package serial

import (
	"fmt"

	"github.com/exec-trace/internal/event"
)

const (
	flagSwitch = 0x80
	flagIO     = 0x40
	kindMask   = event.MaxKinds - 1

	headerSize = 4
)

var magic = [2]byte{'X', 'T'}

// Version is the current log format version.
const Version uint16 = 1

// PoolEntry binds an immutable value to an object ID.
type PoolEntry struct {
	Object event.ObjectID
	Type   string
	Text   string
}

// Record is one decoded log record.
type Record struct {
	// Thread is the index of the log the record came from. Set by Merger.
	Thread int

	ID   event.ID
	Kind event.Kind
	IO   bool
	Ref  event.InstructionRef

	Value  event.Payload
	Target event.ObjectID
	Index  int32
	Class  event.ClassID
	Copy   event.ArrayCopy
	Delta  int32

	// Pool is set only for KindPoolEntry records.
	Pool *PoolEntry
}

// IsPool reports whether r is a value-pool record.
func (r *Record) IsPool() bool {
	return r.Kind == event.KindPoolEntry
}

// String renders the record for diagnostics.
func (r Record) String() string {
	if r.IsPool() && r.Pool != nil {
		return fmt.Sprintf("pool #%d %s %q", r.Pool.Object, r.Pool.Type, r.Pool.Text)
	}
	return fmt.Sprintf("%d %s @%s", r.ID, r.Kind, r.Ref)
}
