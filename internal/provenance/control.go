package provenance

import (
	"github.com/exec-trace/internal/block"
	"github.com/exec-trace/internal/event"
)

// ControlDependency returns the latest executed branch or invocation that
// decided whether id would run.
//
// Within a method that is the latest executed static control predecessor.
// An event with none depends on the call that entered its method. Entry
// methods without a recorded call resolve to their root: the thread start
// call for a thread entry, the first reference to the class for a static
// initializer, and event.None for the program's main method. A method
// entered from untraced code depends on the latest invocation of the
// enclosing frame.
func (r *Resolver) ControlDependency(id event.ID) (event.ID, error) {
	k, ref, err := r.src.Event(id)
	if err != nil {
		return event.None, err
	}
	if k.Info().IsCatch {
		thread := r.src.Histories().Threads.ThreadOf(id)
		if t := r.src.Histories().Exceptions.LastThrow(thread, id); t != event.None {
			return t, nil
		}
	}

	inst, err := r.prog.Instruction(ref)
	if err != nil {
		return event.None, err
	}
	dep, err := r.frames.find(id, func(_ event.ID, pk event.Kind, pref event.InstructionRef) bool {
		info := pk.Info()
		return (info.IsBranch || info.IsInvocation) && inst.IsControlPred(pref)
	})
	if err != nil || dep != event.None {
		return dep, err
	}

	// Fall-through from method entry. Each pass climbs one frame.
	cur := id
	for {
		start, err := r.frames.start(cur)
		if err != nil || start == event.None {
			return event.None, err
		}
		inv, err := r.src.Correlation(block.StartToInvocation, start)
		if err != nil {
			return event.None, err
		}
		if inv != event.None {
			return inv, nil
		}

		_, sref, err := r.src.Event(start)
		if err != nil {
			return event.None, err
		}
		m, err := r.prog.MethodOf(sref)
		if err != nil {
			return event.None, err
		}
		switch {
		case m.Main:
			return event.None, nil
		case m.ClassInit:
			return r.src.Histories().ClassInits.Trigger(m.Class), nil
		case m.ThreadEntry:
			if s, err := r.threadStarter(start); err != nil || s != event.None {
				return s, err
			}
		}

		outer, err := r.frames.outer(start)
		if err != nil || outer == event.None {
			return event.None, err
		}
		r.logger.Debug("activation at %d entered from untraced code, climbing to %d", start, outer)
		ok, err := r.isInvocation(outer)
		if err != nil {
			return event.None, err
		}
		if ok {
			return outer, nil
		}
		inv, err = r.frames.find(outer, func(_ event.ID, pk event.Kind, _ event.InstructionRef) bool {
			return pk.Info().IsInvocation
		})
		if err != nil || inv != event.None {
			return inv, err
		}
		cur = outer
	}
}

func (r *Resolver) isInvocation(id event.ID) (bool, error) {
	k, _, err := r.src.Event(id)
	return err == nil && k.Info().IsInvocation, err
}

// threadStarter finds the thread-start call that launched the thread
// whose entry method began at start: the latest start call before the
// thread's first event whose receiver is the thread's object.
func (r *Resolver) threadStarter(start event.ID) (event.ID, error) {
	h := r.src.Histories()
	thread := h.Threads.ThreadOf(start)
	first := h.Threads.First(thread)
	obj := r.src.ThreadObject(thread)
	for _, cand := range h.ThreadStarts.Before(first) {
		if obj == event.NullObject {
			return cand, nil
		}
		recv, known, err := r.Instance(cand)
		if err != nil {
			return event.None, err
		}
		if known && recv == obj {
			return cand, nil
		}
	}
	return event.None, nil
}

// Activations returns the start events of the recorded activations
// enclosing id, innermost first.
func (r *Resolver) Activations(id event.ID) ([]event.ID, error) {
	var starts []event.ID
	cur := id
	for {
		start, err := r.frames.start(cur)
		if err != nil || start == event.None {
			return starts, err
		}
		starts = append(starts, start)
		cur, err = r.frames.outer(start)
		if err != nil || cur == event.None {
			return starts, err
		}
	}
}

// FrameStart returns the start event of id's activation.
func (r *Resolver) FrameStart(id event.ID) (event.ID, error) {
	return r.frames.start(id)
}

// PrevInFrame returns the previous event of id's activation, skipping
// nested calls.
func (r *Resolver) PrevInFrame(id event.ID) (event.ID, error) {
	return r.frames.prev(id)
}
