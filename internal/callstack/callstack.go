// Package callstack rebuilds per-thread call stacks from the event stream
// and emits the call correlations stored in call blocks.
//
// Each thread owns one Reconstructor fed in event order. Invocations wait
// in a pending queue until a matching start arrives; calls into untraced
// code never produce a start and are discarded once the frame that made
// them returns or unwinds.
package callstack

import (
	"github.com/exec-trace/internal/block"
	"github.com/exec-trace/internal/event"
	"github.com/exec-trace/internal/program"
	"github.com/exec-trace/pkg/collections"
	apperrors "github.com/exec-trace/pkg/errors"
)

// Correlator receives call correlations.
type Correlator interface {
	Correlate(c block.Correlation, from, to event.ID) error
}

// CorrelatorFunc adapts a function to Correlator.
type CorrelatorFunc func(c block.Correlation, from, to event.ID) error

// Correlate calls f.
func (f CorrelatorFunc) Correlate(c block.Correlation, from, to event.ID) error {
	return f(c, from, to)
}

// Methods resolves method metadata.
type Methods interface {
	Method(id event.MethodID) (*program.Method, bool)
}

// Frame is one active method activation.
type Frame struct {
	Start  event.ID
	Method event.MethodID
	// Invocation is the call that entered the frame, or event.None for an
	// untraced caller.
	Invocation event.ID
}

// Pending is an invocation awaiting its start, or a new object awaiting
// its constructor call.
type Pending struct {
	Event  event.ID
	Target event.MethodID
	Depth  int
}

// Reconstructor is the call-stack state machine of one thread.
type Reconstructor struct {
	thread  int
	methods Methods
	sink    Correlator

	frames  *collections.Stack[Frame]
	pending *collections.Stack[Pending]
	news    *collections.Stack[Pending]
}

// New creates a reconstructor for thread.
func New(thread int, methods Methods, sink Correlator) *Reconstructor {
	return &Reconstructor{
		thread:  thread,
		methods: methods,
		sink:    sink,
		frames:  collections.NewStack[Frame](16),
		pending: collections.NewStack[Pending](16),
		news:    collections.NewStack[Pending](4),
	}
}

// Depth returns the number of active frames.
func (r *Reconstructor) Depth() int {
	return r.frames.Len()
}

// Top returns the innermost frame.
func (r *Reconstructor) Top() (Frame, bool) {
	return r.frames.Peek()
}

// Frames returns a copy of the stack, outermost first.
func (r *Reconstructor) Frames() []Frame {
	return append([]Frame(nil), r.frames.Slice()...)
}

// Pending returns a copy of the pending invocations, oldest first.
func (r *Reconstructor) Pending() []Pending {
	return append([]Pending(nil), r.pending.Slice()...)
}

// Invoke records a call site executing with statically named target.
// A constructor call claims the newest unclaimed allocation made at the
// same depth.
func (r *Reconstructor) Invoke(id event.ID, target event.MethodID) error {
	depth := r.frames.Len()
	r.pending.Push(Pending{Event: id, Target: target, Depth: depth})

	m, ok := r.methods.Method(target)
	if !ok || !m.Constructor {
		return nil
	}
	if alloc, ok := r.news.Peek(); ok && alloc.Depth == depth {
		r.news.Pop()
		return r.sink.Correlate(block.NewToInit, alloc.Event, id)
	}
	return nil
}

// Allocate records an object allocation awaiting its constructor call.
func (r *Reconstructor) Allocate(id event.ID) {
	r.news.Push(Pending{Event: id, Target: event.NoMethod, Depth: r.frames.Len()})
}

// Start records entry into method.
func (r *Reconstructor) Start(id event.ID, method event.MethodID) error {
	frame := Frame{Start: id, Method: method, Invocation: event.None}
	if inv, ok := r.match(method); ok {
		frame.Invocation = inv
		if err := r.sink.Correlate(block.StartToInvocation, id, inv); err != nil {
			return err
		}
		if err := r.sink.Correlate(block.InvocationToStart, inv, id); err != nil {
			return err
		}
	}
	r.frames.Push(frame)
	return nil
}

// match pops the newest pending invocation at the current depth when the
// entered method can be its callee.
func (r *Reconstructor) match(method event.MethodID) (event.ID, bool) {
	top, ok := r.pending.Peek()
	if !ok || top.Depth != r.frames.Len() {
		return event.None, false
	}
	callee, ok := r.methods.Method(method)
	if !ok || callee.Implicit || callee.ClassInit {
		return event.None, false
	}
	if top.Target != method {
		target, ok := r.methods.Method(top.Target)
		if !ok || target.Signature != callee.Signature {
			return event.None, false
		}
	}
	r.pending.Pop()
	return top.Event, true
}

// Return records a normal exit from the innermost frame.
func (r *Reconstructor) Return(id event.ID) (Frame, error) {
	f, ok := r.frames.Pop()
	if !ok {
		return Frame{}, apperrors.Defectf("thread %d: return %d with empty call stack", r.thread, id)
	}
	if err := r.exit(f, id); err != nil {
		return f, err
	}
	if err := r.sink.Correlate(block.ExitToStart, id, f.Start); err != nil {
		return f, err
	}
	r.prune()
	return f, nil
}

// Catch records an exception arriving in a handler of method, unwinding
// every frame above the handler's. The handler's frame must be on the
// stack.
func (r *Reconstructor) Catch(id event.ID, method event.MethodID) ([]Frame, error) {
	i := r.frames.Len() - 1
	for i >= 0 && r.frames.At(i).Method != method {
		i--
	}
	if i < 0 {
		return nil, apperrors.Defectf("thread %d: catch %d in method %d unwound the whole call stack", r.thread, id, method)
	}
	popped := append([]Frame(nil), r.frames.Slice()[i+1:]...)
	r.frames.Truncate(i + 1)
	for j := len(popped) - 1; j >= 0; j-- {
		if err := r.exit(popped[j], id); err != nil {
			return popped, err
		}
	}
	if len(popped) > 0 {
		if err := r.sink.Correlate(block.ExitToStart, id, popped[0].Start); err != nil {
			return popped, err
		}
	}
	r.prune()
	return popped, nil
}

func (r *Reconstructor) exit(f Frame, id event.ID) error {
	return r.sink.Correlate(block.StartToExit, f.Start, id)
}

// prune drops pending entries made in frames that no longer exist.
func (r *Reconstructor) prune() {
	depth := r.frames.Len()
	for _, s := range []*collections.Stack[Pending]{r.pending, r.news} {
		for p, ok := s.Peek(); ok && p.Depth > depth; p, ok = s.Peek() {
			s.Pop()
		}
	}
}
