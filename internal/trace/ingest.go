package trace

import (
	"context"
	"io"

	"github.com/exec-trace/internal/block"
	"github.com/exec-trace/internal/callstack"
	"github.com/exec-trace/internal/event"
	"github.com/exec-trace/internal/history"
	"github.com/exec-trace/internal/program"
	"github.com/exec-trace/internal/serial"
	apperrors "github.com/exec-trace/pkg/errors"
)

// ingester feeds merged records into blocks, histories and the per-thread
// call-stack reconstructors. The current block of every kind stays
// locked until the stream moves past it.
type ingester struct {
	t      *Trace
	p      *progress
	stacks []*callstack.Reconstructor
	inits  []*initTracker

	locked int
	ids    *block.IDBlock
	values *block.ValueBlock
	blocks int
	count  int
}

func newIngester(t *Trace, p *progress) *ingester {
	in := &ingester{
		t:      t,
		p:      p,
		locked: -1,
		blocks: t.layout.Count(t.meta.Events),
	}
	sink := callstack.CorrelatorFunc(t.correlate)
	for i := range t.meta.Threads {
		in.stacks = append(in.stacks, callstack.New(i, t.prog, sink))
		in.inits = append(in.inits, &initTracker{})
	}
	return in
}

// initTracker finds what triggered each static initializer of a thread.
// The triggering access logs its event only once the initializer has
// returned, so a class binds to the next event in the frame the
// initializer returned to, skipping initializers chained in between.
type initTracker struct {
	running  []pendingInit
	awaiting []pendingInit
}

type pendingInit struct {
	class event.ClassID
	start event.ID
	// depth is the call depth the initializer returned to.
	depth int
	// before is the thread's event preceding the initializer, used when it
	// exits by exception or the thread ends first.
	before event.ID
}

// settle binds awaiting initializers that returned to depth, or deeper,
// to id.
func (it *initTracker) settle(h *history.Set, id event.ID, depth int) error {
	kept := it.awaiting[:0]
	for _, p := range it.awaiting {
		if p.depth < depth {
			kept = append(kept, p)
			continue
		}
		if err := h.ClassInits.Record(p.class, id); err != nil {
			return err
		}
	}
	it.awaiting = kept
	return nil
}

// returned moves the initializer whose frame started at start to awaiting.
func (it *initTracker) returned(start event.ID, depth int) {
	if n := len(it.running); n > 0 && it.running[n-1].start == start {
		p := it.running[n-1]
		p.depth = depth
		it.awaiting = append(it.awaiting, p)
		it.running = it.running[:n-1]
	}
}

// unwound binds initializers whose frames a catch discarded to the event
// before them.
func (it *initTracker) unwound(h *history.Set, frames []callstack.Frame) error {
	for _, f := range frames {
		n := len(it.running)
		if n == 0 || it.running[n-1].start != f.Start {
			continue
		}
		p := it.running[n-1]
		it.running = it.running[:n-1]
		if p.before.Valid() {
			if err := h.ClassInits.Record(p.class, p.before); err != nil {
				return err
			}
		}
	}
	return nil
}

// flush binds whatever is still pending at the end of the thread.
func (it *initTracker) flush(h *history.Set) error {
	for _, p := range append(it.awaiting, it.running...) {
		if p.before.Valid() {
			if err := h.ClassInits.Record(p.class, p.before); err != nil {
				return err
			}
		}
	}
	it.awaiting, it.running = nil, nil
	return nil
}

func (in *ingester) run(ctx context.Context, m *serial.Merger) (int, error) {
	defer in.unlock()
	for {
		rec, err := m.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return in.count, apperrors.Wrap(apperrors.CodeLoadFailure, "read logs", err)
		}
		if rec.IsPool() {
			if err := in.pool(rec); err != nil {
				return in.count, err
			}
			continue
		}
		if err := in.ingest(ctx, rec); err != nil {
			return in.count, err
		}
		in.count++
	}
	return in.count, in.finish()
}

func (in *ingester) lock(idx int) error {
	in.unlock()
	t := in.t
	ids, err := t.ids.Lock(idx)
	if err != nil {
		return err
	}
	values, err := t.values.Lock(idx)
	if err != nil {
		t.ids.Unlock(idx)
		return err
	}
	if _, err := t.calls.Lock(idx); err != nil {
		t.ids.Unlock(idx)
		t.values.Unlock(idx)
		return err
	}
	in.locked, in.ids, in.values = idx, ids, values
	if in.blocks > 0 {
		in.p.report(0.02 + 0.78*float64(idx)/float64(in.blocks))
	}
	return nil
}

func (in *ingester) unlock() {
	if in.locked < 0 {
		return
	}
	in.t.ids.Unlock(in.locked)
	in.t.values.Unlock(in.locked)
	in.t.calls.Unlock(in.locked)
	in.locked, in.ids, in.values = -1, nil, nil
}

func (in *ingester) ingest(ctx context.Context, rec serial.Record) error {
	t := in.t
	if rec.ID < 0 || int(rec.ID) >= t.meta.Events {
		return apperrors.Newf(apperrors.CodeLoadFailure, "event %d outside [0, %d)", rec.ID, t.meta.Events)
	}
	if !rec.Kind.Valid() {
		return apperrors.Newf(apperrors.CodeLoadFailure, "event %d has undefined kind %d", rec.ID, rec.Kind)
	}
	if rec.Thread < 0 || rec.Thread >= len(in.stacks) {
		return apperrors.Newf(apperrors.CodeLoadFailure, "event %d on unknown thread %d", rec.ID, rec.Thread)
	}

	idx := t.layout.Block(rec.ID)
	if idx != in.locked {
		if err := t.cancelled(ctx); err != nil {
			return err
		}
		if err := in.lock(idx); err != nil {
			return err
		}
	}
	if err := in.ids.Set(rec.ID, rec.Kind, rec.Ref); err != nil {
		return apperrors.Wrap(apperrors.CodeDefect, "store event", err)
	}
	info := rec.Kind.Info()
	if info.Fields.Has(event.FieldValue) {
		in.values.SetValue(rec.ID, rec.Value)
	}
	in.values.SetOperands(rec.ID, info.Fields, block.Operands{
		Target: rec.Target,
		Index:  rec.Index,
		Class:  rec.Class,
		Copy:   rec.Copy,
		Delta:  rec.Delta,
	})
	t.ids.MarkDirty(idx)
	t.values.MarkDirty(idx)

	prev := t.hist.Threads.Last(rec.Thread)
	if err := t.hist.Threads.Record(rec.Thread, rec.ID); err != nil {
		return err
	}
	if rec.IO {
		t.io.Set(int(rec.ID))
	}
	return in.apply(rec, info, prev)
}

// apply updates call stacks and histories for one event. prev is the
// previous event of the same thread.
func (in *ingester) apply(rec serial.Record, info *event.Info, prev event.ID) error {
	t := in.t
	h := t.hist
	stack := in.stacks[rec.Thread]
	inits := in.inits[rec.Thread]

	if len(inits.awaiting) > 0 {
		chained := false
		if info.IsStart {
			m, err := in.method(rec)
			if err != nil {
				return err
			}
			chained = m.ClassInit
		}
		if !chained {
			if err := inits.settle(h, rec.ID, stack.Depth()); err != nil {
				return err
			}
		}
	}

	switch {
	case info.IsInvocation:
		inst, err := in.instruction(rec)
		if err != nil {
			return err
		}
		if err := stack.Invoke(rec.ID, inst.Target); err != nil {
			return err
		}
		if err := h.Invocations.Add(inst.Target, rec.ID); err != nil {
			return err
		}
		if !h.CallTargets.Bound(rec.Ref) {
			h.CallTargets.Bind(rec.Ref, t.prog.StaticTargets(inst))
		}
		if inst.ThreadStart {
			return h.ThreadStarts.Add(rec.Ref, rec.ID)
		}
		return nil

	case info.IsStart:
		m, err := in.method(rec)
		if err != nil {
			return err
		}
		if err := stack.Start(rec.ID, m.ID); err != nil {
			return err
		}
		if top, ok := stack.Top(); ok && top.Invocation.Valid() {
			_, site, err := t.Event(top.Invocation)
			if err != nil {
				return err
			}
			h.CallTargets.Record(site, m.ID)
		}
		if m.ClassInit {
			inits.running = append(inits.running, pendingInit{class: m.Class, start: rec.ID, before: prev})
		}
		return nil

	case info.IsReturn:
		f, err := stack.Return(rec.ID)
		if err != nil {
			return err
		}
		inits.returned(f.Start, stack.Depth())
		return nil

	case info.IsCatch:
		m, err := in.method(rec)
		if err != nil {
			return err
		}
		popped, err := stack.Catch(rec.ID, m.ID)
		if err != nil {
			return err
		}
		if err := inits.unwound(h, popped); err != nil {
			return err
		}
		return h.Exceptions.Caught.Add(rec.Thread, rec.ID)

	case info.IsThrow:
		return h.Exceptions.Thrown.Add(rec.Thread, rec.ID)
	}

	switch rec.Kind {
	case event.KindPutField:
		inst, err := in.instruction(rec)
		if err != nil {
			return err
		}
		return h.Fields.Record(rec.Target, inst.Field, rec.ID)
	case event.KindPutStatic:
		inst, err := in.instruction(rec)
		if err != nil {
			return err
		}
		return h.Statics.Record(inst.Field, rec.ID)
	case event.KindSetArray:
		return h.Arrays.RecordElement(rec.Target, rec.Index, rec.ID)
	case event.KindArrayCopy:
		return h.Arrays.RecordCopy(rec.Copy.Dest, rec.ID)
	case event.KindNewObject, event.KindNewArray:
		if obj := rec.Value.Object(); obj.Resolved() {
			if err := h.Objects.Record(obj, rec.Class, rec.ID); err != nil {
				return err
			}
		}
		if rec.Kind == event.KindNewObject {
			stack.Allocate(rec.ID)
		}
	}
	return nil
}

func (in *ingester) instruction(rec serial.Record) (*program.Instruction, error) {
	inst, err := in.t.prog.Instruction(rec.Ref)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeLoadFailure, "event "+rec.String(), err)
	}
	return inst, nil
}

func (in *ingester) method(rec serial.Record) (*program.Method, error) {
	m, err := in.t.prog.MethodOf(rec.Ref)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeLoadFailure, "event "+rec.String(), err)
	}
	return m, nil
}

func (in *ingester) pool(rec serial.Record) error {
	if rec.Pool == nil {
		return apperrors.New(apperrors.CodeLoadFailure, "pool record without entry")
	}
	return in.t.hist.Pool.Put(rec.Pool.Object, history.PoolValue{Type: rec.Pool.Type, Text: rec.Pool.Text})
}

// finish records per-thread bounds and object counts into the metadata.
func (in *ingester) finish() error {
	t := in.t
	for _, it := range in.inits {
		if err := it.flush(t.hist); err != nil {
			return err
		}
	}
	for i := range t.meta.Threads {
		t.meta.Threads[i].First = t.hist.Threads.First(i)
		t.meta.Threads[i].Last = t.hist.Threads.Last(i)
		if d := in.stacks[i].Depth(); d > 0 {
			t.logger.Debug("thread %d ends with %d open frames", i, d)
		}
	}
	if n := t.hist.Objects.Len(); n > t.meta.Objects {
		t.meta.Objects = n
	}
	t.logger.Info("ingested %d events, %d objects, %d pooled values", in.count, t.hist.Objects.Len(), t.hist.Pool.Len())
	return nil
}
