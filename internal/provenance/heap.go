package provenance

import (
	"github.com/exec-trace/internal/event"
	apperrors "github.com/exec-trace/pkg/errors"
)

// HeapDependency returns the write that defined the value a field, static
// or array read observed. A read with no recorded write yields the read
// itself: the value predates recording.
func (r *Resolver) HeapDependency(id event.ID) (Value, error) {
	k, ref, err := r.src.Event(id)
	if err != nil {
		return nil, err
	}
	if !k.Info().IsHeapRead {
		return nil, apperrors.Newf(apperrors.CodeInvalidInput, "event %d is a %s, not a heap read", id, k)
	}
	h := r.src.Histories()
	ops, err := r.src.Operands(id)
	if err != nil {
		return nil, err
	}

	write := event.None
	switch k {
	case event.KindGetField:
		inst, err := r.prog.Instruction(ref)
		if err != nil {
			return nil, err
		}
		write = h.Fields.LastWrite(ops.Target, inst.Field, id)
	case event.KindGetStatic:
		inst, err := r.prog.Instruction(ref)
		if err != nil {
			return nil, err
		}
		write = h.Statics.LastWrite(inst.Field, id)
	case event.KindGetArray:
		w, err := h.Arrays.LastWrite(ops.Target, ops.Index, id, r.copyParams)
		if err != nil {
			return nil, err
		}
		if w.UnknownSource {
			return &Unknown{Reason: ReasonUnknownCopySource, At: w.Event}, nil
		}
		write = w.Event
	}

	if write == event.None {
		write = id
	}
	wk, _, err := r.src.Event(write)
	if err != nil {
		return nil, err
	}
	if write != id && !wk.Info().IsHeapWrite {
		return nil, apperrors.Defectf("heap history of event %d resolved to %s event %d", id, wk, write)
	}
	payload, err := r.src.Payload(write)
	if err != nil {
		return nil, err
	}
	return &Traced{ID: write, Payload: payload}, nil
}

func (r *Resolver) copyParams(id event.ID) (event.ArrayCopy, error) {
	ops, err := r.src.Operands(id)
	if err != nil {
		return event.ArrayCopy{}, err
	}
	return ops.Copy, nil
}
