package history

import "io"

// Component is one persisted history file.
type Component interface {
	io.WriterTo
	io.ReaderFrom
}

// Named pairs a component with its file name.
type Named struct {
	Name      string
	Component Component
}

// Set holds every history of one trace.
type Set struct {
	Fields       *Fields
	Statics      *Statics
	Arrays       *Arrays
	Objects      *Objects
	Invocations  *Invocations
	Exceptions   *Exceptions
	ClassInits   *ClassInits
	ThreadStarts *ThreadStarts
	CallTargets  *CallTargets
	Pool         *ValuePool
	Threads      *Threads
}

// NewSet creates an empty set.
func NewSet() *Set {
	return &Set{
		Fields:       NewFields(),
		Statics:      NewStatics(),
		Arrays:       NewArrays(),
		Objects:      NewObjects(),
		Invocations:  NewInvocations(),
		Exceptions:   NewExceptions(),
		ClassInits:   NewClassInits(),
		ThreadStarts: NewThreadStarts(),
		CallTargets:  NewCallTargets(),
		Pool:         NewValuePool(),
		Threads:      NewThreads(),
	}
}

// Components lists the persisted files in a fixed order.
func (s *Set) Components() []Named {
	return []Named{
		{"fields.idx", s.Fields},
		{"statics.idx", s.Statics},
		{"arrays.idx", s.Arrays},
		{"objects.tbl", s.Objects},
		{"invocations.idx", s.Invocations},
		{"exceptions.idx", s.Exceptions},
		{"class-inits.idx", s.ClassInits},
		{"thread-starts.idx", s.ThreadStarts},
		{"call-targets.tbl", s.CallTargets},
		{"pool.tbl", s.Pool},
		{"threads.tbl", s.Threads},
	}
}
