package trace

import (
	"sort"

	"github.com/exec-trace/internal/block"
	"github.com/exec-trace/internal/event"
	"github.com/exec-trace/internal/history"
	"github.com/exec-trace/internal/program"
	"github.com/exec-trace/internal/provenance"
	apperrors "github.com/exec-trace/pkg/errors"
)

// Kind returns the kind of id.
func (t *Trace) Kind(id event.ID) (event.Kind, error) {
	k, _, err := t.Event(id)
	return k, err
}

// Instruction returns the static instruction of id.
func (t *Trace) Instruction(id event.ID) (*program.Instruction, error) {
	_, ref, err := t.Event(id)
	if err != nil {
		return nil, err
	}
	return t.prog.Instruction(ref)
}

// ThreadOf returns the thread that recorded id, or -1.
func (t *Trace) ThreadOf(id event.ID) int {
	return t.hist.Threads.ThreadOf(id)
}

// Thread returns the description of thread i.
func (t *Trace) Thread(i int) (ThreadInfo, bool) {
	if i < 0 || i >= len(t.meta.Threads) {
		return ThreadInfo{}, false
	}
	return t.meta.Threads[i], true
}

// Threads returns the number of recorded threads.
func (t *Trace) Threads() int {
	return len(t.meta.Threads)
}

// Resolve returns the value consumed as argument arg of id.
func (t *Trace) Resolve(id event.ID, arg int) (provenance.Value, error) {
	return t.resolver.Resolve(id, arg)
}

// HeapDependency returns the write a heap read observed.
func (t *Trace) HeapDependency(id event.ID) (provenance.Value, error) {
	return t.resolver.HeapDependency(id)
}

// ControlDependency returns the event that decided id would execute.
func (t *Trace) ControlDependency(id event.ID) (event.ID, error) {
	return t.resolver.ControlDependency(id)
}

// Instance returns the receiver of an invocation, and whether it is known.
func (t *Trace) Instance(inv event.ID) (event.ObjectID, bool, error) {
	return t.resolver.Instance(inv)
}

// Frame is one activation on a reconstructed call stack.
type Frame struct {
	Start  event.ID
	Method *program.Method
	// Invocation is the call that entered the frame, or event.None.
	Invocation event.ID
}

// CallStack returns the recorded activations enclosing id, innermost
// first.
func (t *Trace) CallStack(id event.ID) ([]Frame, error) {
	if _, _, err := t.Event(id); err != nil {
		return nil, err
	}
	starts, err := t.resolver.Activations(id)
	if err != nil {
		return nil, err
	}
	frames := make([]Frame, 0, len(starts))
	for _, s := range starts {
		_, ref, err := t.Event(s)
		if err != nil {
			return nil, err
		}
		m, err := t.prog.MethodOf(ref)
		if err != nil {
			return nil, err
		}
		inv, err := t.Correlation(block.StartToInvocation, s)
		if err != nil {
			return nil, err
		}
		frames = append(frames, Frame{Start: s, Method: m, Invocation: inv})
	}
	return frames, nil
}

// Scope limits a scan.
type Scope int

const (
	// ScopeGlobal visits every event in ID order.
	ScopeGlobal Scope = iota
	// ScopeThread visits only the events of the starting event's thread.
	ScopeThread
)

// Predicate selects events during a scan.
type Predicate func(id event.ID, kind event.Kind, ref event.InstructionRef) bool

// ScanBackward returns the latest event before from that matches pred, or
// event.None.
func (t *Trace) ScanBackward(from event.ID, scope Scope, pred Predicate) (event.ID, error) {
	return t.scan(from, scope, pred, -1)
}

// ScanForward returns the earliest event after from that matches pred, or
// event.None.
func (t *Trace) ScanForward(from event.ID, scope Scope, pred Predicate) (event.ID, error) {
	return t.scan(from, scope, pred, 1)
}

func (t *Trace) scan(from event.ID, scope Scope, pred Predicate, dir int) (event.ID, error) {
	if err := t.checkID(from); err != nil {
		return event.None, err
	}
	thread := -1
	if scope == ScopeThread {
		if thread = t.ThreadOf(from); thread < 0 {
			return event.None, apperrors.Newf(apperrors.CodeNotFound, "no event %d", from)
		}
	}
	next := func(id event.ID) event.ID {
		switch {
		case thread >= 0 && dir < 0:
			return t.hist.Threads.Prev(thread, id)
		case thread >= 0:
			return t.hist.Threads.Next(thread, id)
		case dir < 0:
			return id - 1
		case int(id)+1 < t.meta.Events:
			return id + 1
		}
		return event.None
	}
	for id := next(from); id.Valid(); id = next(id) {
		k, ref, err := t.Event(id)
		if apperrors.IsNotFound(err) {
			continue
		}
		if err != nil {
			return event.None, err
		}
		if pred(id, k, ref) {
			return id, nil
		}
	}
	return event.None, nil
}

// Invocations returns the calls that entered method after the given
// point, ascending. Calls through an overridden method count when they
// were seen to enter method. A resolved instance restricts the result
// to calls on that receiver.
func (t *Trace) Invocations(method event.MethodID, instance event.ObjectID, after event.ID) ([]event.ID, error) {
	m, ok := t.prog.Method(method)
	if !ok {
		return nil, apperrors.Newf(apperrors.CodeNotFound, "method %d", method)
	}
	out := t.hist.Invocations.After(method, after)
	for _, base := range m.Overrides {
		for _, inv := range t.hist.Invocations.After(base, after) {
			entered, err := t.enters(inv, method)
			if err != nil {
				return nil, err
			}
			if entered {
				out = append(out, inv)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	out = dedupe(out)

	if !instance.Resolved() {
		return out, nil
	}
	filtered := out[:0]
	for _, inv := range out {
		obj, known, err := t.resolver.Instance(inv)
		if err != nil {
			return nil, err
		}
		if known && obj == instance {
			filtered = append(filtered, inv)
		}
	}
	return filtered, nil
}

// dedupe drops repeats from a sorted slice in place.
func dedupe(ids []event.ID) []event.ID {
	out := ids[:0]
	for i, id := range ids {
		if i == 0 || id != ids[i-1] {
			out = append(out, id)
		}
	}
	return out
}

func (t *Trace) enters(inv event.ID, method event.MethodID) (bool, error) {
	start, err := t.Correlation(block.InvocationToStart, inv)
	if err != nil || start == event.None {
		return false, err
	}
	_, ref, err := t.Event(start)
	if err != nil {
		return false, err
	}
	m, err := t.prog.MethodOf(ref)
	if err != nil {
		return false, err
	}
	return m.ID == method, nil
}

// LastFieldWrite returns the latest write of obj.field at or before at.
func (t *Trace) LastFieldWrite(obj event.ObjectID, field string, at event.ID) event.ID {
	return t.hist.Fields.LastWrite(obj, field, at)
}

// LastStaticWrite returns the latest write of a static field at or before
// at.
func (t *Trace) LastStaticWrite(name string, at event.ID) event.ID {
	return t.hist.Statics.LastWrite(name, at)
}

// LastArrayWrite returns the write that defined array[index] as of at,
// following copies.
func (t *Trace) LastArrayWrite(array event.ObjectID, index int32, at event.ID) (history.ArrayWrite, error) {
	return t.hist.Arrays.LastWrite(array, index, at, func(id event.ID) (event.ArrayCopy, error) {
		ops, err := t.Operands(id)
		if err != nil {
			return event.ArrayCopy{}, err
		}
		return ops.Copy, nil
	})
}

// IsIO reports whether id was flagged as I/O by the recorder.
func (t *Trace) IsIO(id event.ID) bool {
	return id.Valid() && t.io.Test(int(id))
}

// IOEvents returns the number of I/O events.
func (t *Trace) IOEvents() int {
	return t.io.Count()
}

// CallTargets returns the methods a call site may enter: its static
// targets plus any it was seen to enter.
func (t *Trace) CallTargets(site event.InstructionRef) []event.MethodID {
	return t.hist.CallTargets.Targets(site)
}

// ObservedCallTargets returns the methods a call site was seen to enter.
func (t *Trace) ObservedCallTargets(site event.InstructionRef) []event.MethodID {
	return t.hist.CallTargets.Observed(site)
}

// PoolValue returns the immutable value bound to obj.
func (t *Trace) PoolValue(obj event.ObjectID) (history.PoolValue, bool) {
	return t.hist.Pool.Value(obj)
}

// ObjectCreation returns the allocation event of obj, or event.None.
func (t *Trace) ObjectCreation(obj event.ObjectID) event.ID {
	return t.hist.Objects.Creation(obj)
}

// BlockStats reports pager activity per block kind.
func (t *Trace) BlockStats() map[block.Kind]block.Stats {
	return map[block.Kind]block.Stats{
		block.KindIDs:    t.ids.Stats(),
		block.KindValues: t.values.Stats(),
		block.KindCalls:  t.calls.Stats(),
	}
}
