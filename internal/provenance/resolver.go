package provenance

import (
	"sync"

	"github.com/exec-trace/internal/block"
	"github.com/exec-trace/internal/event"
	"github.com/exec-trace/internal/program"
	apperrors "github.com/exec-trace/pkg/errors"
	"github.com/exec-trace/pkg/utils"
)

type argKey struct {
	event event.ID
	arg   int
}

// instance is a cached receiver lookup. Known distinguishes a resolved
// receiver from one that could not be determined.
type instance struct {
	object event.ObjectID
	known  bool
}

// Resolver resolves values and control dependencies. It is safe for
// concurrent use once the trace is loaded.
type Resolver struct {
	src    Source
	prog   *program.Cache
	frames frames
	logger utils.Logger

	mu        sync.Mutex
	values    map[argKey]Value
	instances map[event.ID]instance
}

// NewResolver creates a resolver over src.
func NewResolver(src Source, prog *program.Cache, logger utils.Logger) *Resolver {
	if logger == nil {
		logger = &utils.NullLogger{}
	}
	return &Resolver{
		src:       src,
		prog:      prog,
		frames:    frames{src: src},
		logger:    logger,
		values:    make(map[argKey]Value),
		instances: make(map[event.ID]instance),
	}
}

// CachedValues returns the number of cached resolutions.
func (r *Resolver) CachedValues() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.values)
}

// Resolve returns the value consumed as argument arg of event id. Repeated
// calls return the identical Value.
func (r *Resolver) Resolve(id event.ID, arg int) (Value, error) {
	key := argKey{id, arg}
	r.mu.Lock()
	if v, ok := r.values[key]; ok {
		r.mu.Unlock()
		return v, nil
	}
	r.mu.Unlock()

	v, err := r.resolve(id, arg)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cached, ok := r.values[key]; ok {
		return cached, nil
	}
	r.values[key] = v
	return v, nil
}

// resolve walks from consumer to producer. Crossing into a caller for a
// parameter restarts the walk at the invocation; duplications hop to
// their input. Both are loop iterations.
func (r *Resolver) resolve(id event.ID, arg int) (Value, error) {
	consumer := id
	visited := make(map[argKey]bool)
	for {
		if visited[argKey{consumer, arg}] {
			return nil, apperrors.Defectf("value of event %d argument %d depends on itself", id, arg)
		}
		visited[argKey{consumer, arg}] = true

		_, ref, err := r.src.Event(consumer)
		if err != nil {
			return nil, err
		}
		inst, err := r.prog.Instruction(ref)
		if err != nil {
			return nil, err
		}
		if arg < 0 || arg >= inst.ArgCount {
			return nil, apperrors.Newf(apperrors.CodeInvalidInput, "event %d has %d arguments, asked for %d", consumer, inst.ArgCount, arg)
		}

		origins, err := r.origins(inst, arg)
		if err != nil {
			return nil, err
		}
		if len(origins) == 0 {
			return &Unknown{Reason: ReasonNoProducer, At: consumer}, nil
		}
		p, producer, err := r.choose(consumer, origins)
		if err != nil {
			return nil, err
		}
		if p != event.None {
			return r.produced(p)
		}
		if producer == nil {
			return &Unknown{Reason: ReasonNoDefinition, At: consumer}, nil
		}

		switch producer.Op {
		case program.OpConstant:
			return &Constant{Instruction: producer.Ref, Payload: producer.Constant}, nil
		case program.OpJumpSubroutine:
			return &Unknown{Reason: ReasonJumpSubroutine, At: consumer}, nil
		case program.OpLoadLocal:
			v, next, nextArg, err := r.local(consumer, producer.Local)
			if err != nil || v != nil {
				return v, err
			}
			consumer, arg = next, nextArg
		default:
			return &Unknown{Reason: ReasonUnsupported, At: consumer}, nil
		}
	}
}

// choose picks the producer that ran among the static candidates. The
// latest executed recorded candidate in the frame wins unless a local
// load candidate had its slot assigned after it. Without an executed
// recorded candidate the first unrecorded one is returned. Both results
// are empty when only recorded candidates exist and none ran.
func (r *Resolver) choose(consumer event.ID, origins []*program.Instruction) (event.ID, *program.Instruction, error) {
	recorded := make(map[event.InstructionRef]bool)
	var rest []*program.Instruction
	for _, o := range origins {
		if o.Op == program.OpRecorded {
			recorded[o.Ref] = true
		} else {
			rest = append(rest, o)
		}
	}

	p := event.None
	if len(recorded) > 0 {
		var err error
		p, err = r.frames.find(consumer, func(_ event.ID, _ event.Kind, ref event.InstructionRef) bool {
			return recorded[ref]
		})
		if err != nil {
			return event.None, nil, err
		}
	}
	if p == event.None {
		if len(rest) == 0 {
			return event.None, nil, nil
		}
		return event.None, rest[0], nil
	}

	for _, o := range rest {
		if o.Op != program.OpLoadLocal {
			continue
		}
		def, err := r.localDef(consumer, o.Local)
		if err != nil {
			return event.None, nil, err
		}
		if def > p {
			return event.None, o, nil
		}
	}
	return p, nil, nil
}

// origins follows duplications from (inst, arg) to every instruction that
// could really have pushed the value, in model order.
func (r *Resolver) origins(inst *program.Instruction, arg int) ([]*program.Instruction, error) {
	type edge struct {
		consumer *program.Instruction
		arg      int
	}
	type hop struct {
		dup      event.InstructionRef
		consumer event.InstructionRef
		arg      int
	}
	var out []*program.Instruction
	found := make(map[event.InstructionRef]bool)
	hopped := make(map[hop]bool)
	queue := []edge{{inst, arg}}
	for len(queue) > 0 {
		e := queue[0]
		queue = queue[1:]
		for _, ref := range e.consumer.ProducersOf(e.arg) {
			p, err := r.prog.Instruction(ref)
			if err != nil {
				return nil, err
			}
			if p.Op != program.OpDuplicate {
				if !found[ref] {
					found[ref] = true
					out = append(out, p)
				}
				continue
			}
			h := hop{dup: ref, consumer: e.consumer.Ref, arg: e.arg}
			if hopped[h] {
				continue
			}
			hopped[h] = true
			if input, ok := p.DupInput(e.consumer.Ref, e.arg); ok {
				queue = append(queue, edge{p, input})
			}
		}
	}
	return out, nil
}

// localDef returns the latest assignment of slot in consumer's frame, the
// frame start when the slot was never assigned, or event.None.
func (r *Resolver) localDef(consumer event.ID, slot int) (event.ID, error) {
	return r.frames.find(consumer, func(id event.ID, k event.Kind, ref event.InstructionRef) bool {
		if k.Info().IsStart {
			return true
		}
		if !k.Info().IsLocalDefinition {
			return false
		}
		inst, err := r.prog.Instruction(ref)
		return err == nil && inst.Local == slot
	})
}

// local finds the definition of slot as seen by consumer. When the slot is
// a parameter never assigned in the frame, it returns the invocation and
// argument to continue from instead of a value.
func (r *Resolver) local(consumer event.ID, slot int) (Value, event.ID, int, error) {
	def, err := r.localDef(consumer, slot)
	if err != nil {
		return nil, event.None, 0, err
	}
	if def == event.None {
		return &Unknown{Reason: ReasonNoDefinition, At: consumer}, event.None, 0, nil
	}

	k, ref, err := r.src.Event(def)
	if err != nil {
		return nil, event.None, 0, err
	}
	if !k.Info().IsStart {
		v, err := r.produced(def)
		return v, event.None, 0, err
	}

	m, err := r.prog.MethodOf(ref)
	if err != nil {
		return nil, event.None, 0, err
	}
	param, ok := m.ArgForSlot(slot)
	if !ok {
		return &Unknown{Reason: ReasonNoDefinition, At: consumer}, event.None, 0, nil
	}
	inv, err := r.src.Correlation(block.StartToInvocation, def)
	if err != nil {
		return nil, event.None, 0, err
	}
	if inv == event.None {
		return &Unknown{Reason: ReasonUntracedCall, At: def}, event.None, 0, nil
	}
	return nil, inv, param, nil
}

// produced builds the value an executed producer event stands for,
// following calls and heap reads to the event that defined the value.
func (r *Resolver) produced(p event.ID) (Value, error) {
	k, _, err := r.src.Event(p)
	if err != nil {
		return nil, err
	}
	info := k.Info()
	switch {
	case info.IsInvocation:
		return r.returned(p)
	case info.IsHeapRead:
		return r.HeapDependency(p)
	case k == event.KindIncrement:
		payload, err := r.src.Payload(p)
		if err != nil {
			return nil, err
		}
		ops, err := r.src.Operands(p)
		if err != nil {
			return nil, err
		}
		return &Increment{ID: p, Delta: ops.Delta, Payload: payload}, nil
	}

	payload, err := r.src.Payload(p)
	if err != nil {
		return nil, err
	}
	if info.IsAllocation && payload.Type == event.TypeObject && !payload.Object().Resolved() {
		obj, err := r.constructed(p)
		if err != nil {
			return nil, err
		}
		if !obj.Resolved() {
			return &Unknown{Reason: ReasonLostPlaceholder, At: p}, nil
		}
		return &Traced{ID: p, Payload: event.Object(obj)}, nil
	}
	return &Traced{ID: p, Payload: payload}, nil
}

// constructed recovers the object an allocation placeholder became from
// the constructor that claimed it: the first event of the constructor's
// activation that operates on its receiver names the object. It returns
// NullObject when no constructor was correlated or none touched it.
func (r *Resolver) constructed(alloc event.ID) (event.ObjectID, error) {
	inv, err := r.src.Correlation(block.NewToInit, alloc)
	if err != nil || inv == event.None {
		return event.NullObject, err
	}
	start, err := r.src.Correlation(block.InvocationToStart, inv)
	if err != nil || start == event.None {
		return event.NullObject, err
	}
	_, ref, err := r.src.Event(start)
	if err != nil {
		return event.NullObject, err
	}
	m, err := r.prog.MethodOf(ref)
	if err != nil {
		return event.NullObject, err
	}
	if m.Static || len(m.ParamSlots) == 0 {
		return event.NullObject, nil
	}
	receiver := m.ParamSlots[0]

	exit, err := r.src.Correlation(block.StartToExit, start)
	if err != nil {
		return event.NullObject, err
	}
	th := r.src.Histories().Threads
	thread := th.ThreadOf(start)
	for cur := th.Next(thread, start); cur != event.None && (exit == event.None || cur < exit); cur = th.Next(thread, cur) {
		k, ref, err := r.src.Event(cur)
		if err != nil {
			return event.NullObject, err
		}
		if k.Info().IsStart {
			// Skip nested activations whole.
			nested, err := r.src.Correlation(block.StartToExit, cur)
			if err != nil {
				return event.NullObject, err
			}
			if nested == event.None {
				return event.NullObject, nil
			}
			cur = nested
			continue
		}
		if !k.Info().Fields.Has(event.FieldTarget) {
			continue
		}
		on, err := r.onReceiver(ref, receiver)
		if err != nil {
			return event.NullObject, err
		}
		if !on {
			continue
		}
		ops, err := r.src.Operands(cur)
		if err != nil {
			return event.NullObject, err
		}
		if ops.Target.Resolved() {
			return ops.Target, nil
		}
	}
	return event.NullObject, nil
}

// onReceiver reports whether the instruction at ref operates on the value
// loaded from local slot receiver.
func (r *Resolver) onReceiver(ref event.InstructionRef, receiver int) (bool, error) {
	inst, err := r.prog.Instruction(ref)
	if err != nil {
		return false, err
	}
	if inst.ArgCount == 0 {
		return false, nil
	}
	origins, err := r.origins(inst, 0)
	if err != nil {
		return false, err
	}
	for _, o := range origins {
		if o.Op == program.OpLoadLocal && o.Local == receiver {
			return true, nil
		}
	}
	return false, nil
}

// returned resolves the value an invocation left on the stack.
func (r *Resolver) returned(inv event.ID) (Value, error) {
	start, err := r.src.Correlation(block.InvocationToStart, inv)
	if err != nil {
		return nil, err
	}
	if start == event.None {
		return &Unknown{Reason: ReasonUntracedCall, At: inv}, nil
	}
	exit, err := r.src.Correlation(block.StartToExit, start)
	if err != nil {
		return nil, err
	}
	if exit == event.None {
		return &Unknown{Reason: ReasonNoDefinition, At: start}, nil
	}
	k, _, err := r.src.Event(exit)
	if err != nil {
		return nil, err
	}
	if k.Info().IsCatch {
		return &Unknown{Reason: ReasonExceptionalExit, At: exit}, nil
	}
	payload, err := r.src.Payload(exit)
	if err != nil {
		return nil, err
	}
	return &Traced{ID: exit, Payload: payload}, nil
}

// Instance returns the receiver object of an invocation.
func (r *Resolver) Instance(inv event.ID) (event.ObjectID, bool, error) {
	r.mu.Lock()
	if c, ok := r.instances[inv]; ok {
		r.mu.Unlock()
		return c.object, c.known, nil
	}
	r.mu.Unlock()

	c, err := r.instance(inv)
	if err != nil {
		return event.NullObject, false, err
	}
	r.mu.Lock()
	r.instances[inv] = c
	r.mu.Unlock()
	return c.object, c.known, nil
}

func (r *Resolver) instance(inv event.ID) (instance, error) {
	k, ref, err := r.src.Event(inv)
	if err != nil {
		return instance{}, err
	}
	if !k.Info().IsInvocation || k == event.KindInvokeStatic {
		return instance{}, nil
	}
	inst, err := r.prog.Instruction(ref)
	if err != nil {
		return instance{}, err
	}
	if inst.ArgCount == 0 {
		return instance{}, nil
	}
	v, err := r.Resolve(inv, 0)
	if err != nil {
		return instance{}, err
	}
	obj, ok := ObjectOf(v)
	if !ok {
		return instance{}, nil
	}
	return instance{object: obj, known: true}, nil
}
