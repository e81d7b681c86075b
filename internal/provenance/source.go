package provenance

import (
	"github.com/exec-trace/internal/block"
	"github.com/exec-trace/internal/event"
	"github.com/exec-trace/internal/history"
	apperrors "github.com/exec-trace/pkg/errors"
)

// Source is the loaded trace as the resolver sees it.
type Source interface {
	Event(id event.ID) (event.Kind, event.InstructionRef, error)
	Payload(id event.ID) (event.Payload, error)
	Operands(id event.ID) (block.Operands, error)
	Correlation(c block.Correlation, id event.ID) (event.ID, error)
	Histories() *history.Set
	// ThreadObject returns the object of a thread, or NullObject when the
	// recorder did not name it.
	ThreadObject(thread int) event.ObjectID
}

// frames walks a thread's events one method activation at a time.
type frames struct {
	src Source
}

func (f frames) threads() *history.Threads {
	return f.src.Histories().Threads
}

func (f frames) kind(id event.ID) (event.Kind, error) {
	k, _, err := f.src.Event(id)
	return k, err
}

// exitStart returns the start an exit event closes.
func (f frames) exitStart(id event.ID) (event.ID, error) {
	return f.src.Correlation(block.ExitToStart, id)
}

// prev returns the previous event of id's activation, skipping every
// nested activation whole. It returns event.None at the frame's start or
// at the first recorded event of the thread.
func (f frames) prev(id event.ID) (event.ID, error) {
	th := f.threads()
	thread := th.ThreadOf(id)
	if thread < 0 {
		return event.None, apperrors.Newf(apperrors.CodeNotFound, "event %d belongs to no thread", id)
	}
	k, err := f.kind(id)
	if err != nil {
		return event.None, err
	}
	from := id
	switch {
	case k.Info().IsStart:
		return event.None, nil
	case k.Info().IsCatch:
		s, err := f.exitStart(id)
		if err != nil {
			return event.None, err
		}
		if s != event.None {
			from = s
		}
	}

	return f.skip(thread, th.Prev(thread, from))
}

// outer returns the event of the enclosing activation that precedes
// start, or event.None.
func (f frames) outer(start event.ID) (event.ID, error) {
	th := f.threads()
	thread := th.ThreadOf(start)
	return f.skip(thread, th.Prev(thread, start))
}

// skip steps back over completed nested activations ending at p.
func (f frames) skip(thread int, p event.ID) (event.ID, error) {
	th := f.threads()
	for p != event.None {
		pk, err := f.kind(p)
		if err != nil {
			return event.None, err
		}
		if !pk.Info().IsReturn {
			return p, nil
		}
		s, err := f.exitStart(p)
		if err != nil {
			return event.None, err
		}
		if s == event.None {
			return event.None, apperrors.Defectf("return %d has no matching start", p)
		}
		p = th.Prev(thread, s)
	}
	return event.None, nil
}

// start returns the start event of id's activation, or event.None when
// the activation began before recording did.
func (f frames) start(id event.ID) (event.ID, error) {
	cur := id
	for {
		k, err := f.kind(cur)
		if err != nil {
			return event.None, err
		}
		if k.Info().IsStart {
			return cur, nil
		}
		p, err := f.prev(cur)
		if err != nil || p == event.None {
			return event.None, err
		}
		cur = p
	}
}

// find scans id's activation backwards, from the event before id, for the
// latest event matching pred.
func (f frames) find(id event.ID, pred func(event.ID, event.Kind, event.InstructionRef) bool) (event.ID, error) {
	cur := id
	for {
		p, err := f.prev(cur)
		if err != nil || p == event.None {
			return event.None, err
		}
		k, ref, err := f.src.Event(p)
		if err != nil {
			return event.None, err
		}
		if pred(p, k, ref) {
			return p, nil
		}
		cur = p
	}
}
