package history

import (
	"bufio"
	"io"
	"sort"

	"github.com/exec-trace/internal/event"
	"github.com/exec-trace/pkg/collections"
)

// Invocations indexes invocation events by statically named target.
type Invocations struct {
	*Index[event.MethodID]
}

// NewInvocations creates an empty invocation history.
func NewInvocations() *Invocations {
	return &Invocations{NewIndex[event.MethodID]("invocations", MethodKeys{})}
}

// After returns the invocations of m later than at, ascending.
func (v *Invocations) After(m event.MethodID, at event.ID) []event.ID {
	vec := v.Events(m)
	if vec == nil {
		return nil
	}
	values := vec.Values()[vec.IndexAtOrBefore(int32(at))+1:]
	out := make([]event.ID, len(values))
	for i, id := range values {
		out[i] = event.ID(id)
	}
	return out
}

// Exceptions indexes throw and catch events per thread.
type Exceptions struct {
	Thrown *Index[int]
	Caught *Index[int]
}

// NewExceptions creates an empty exception history.
func NewExceptions() *Exceptions {
	return &Exceptions{
		Thrown: NewIndex[int]("exceptions-thrown", ThreadKeys{}),
		Caught: NewIndex[int]("exceptions-caught", ThreadKeys{}),
	}
}

// LastThrow returns the latest throw on thread strictly before at.
func (e *Exceptions) LastThrow(thread int, at event.ID) event.ID {
	return e.Thrown.LastBefore(thread, at)
}

// LastCatch returns the latest catch on thread strictly before at.
func (e *Exceptions) LastCatch(thread int, at event.ID) event.ID {
	return e.Caught.LastBefore(thread, at)
}

// WriteTo writes thrown then caught.
func (e *Exceptions) WriteTo(w io.Writer) (int64, error) {
	n, err := e.Thrown.WriteTo(w)
	if err != nil {
		return n, err
	}
	m, err := e.Caught.WriteTo(w)
	return n + m, err
}

// ReadFrom reads what WriteTo wrote.
func (e *Exceptions) ReadFrom(r io.Reader) (int64, error) {
	n, err := e.Thrown.ReadFrom(r)
	if err != nil {
		return n, err
	}
	m, err := e.Caught.ReadFrom(r)
	return n + m, err
}

// ClassInits records, per class, the first event that caused its static
// initializer to run.
type ClassInits struct {
	*Index[event.ClassID]
}

// NewClassInits creates an empty class-initialization history.
func NewClassInits() *ClassInits {
	return &ClassInits{NewIndex[event.ClassID]("class-inits", ClassKeys{})}
}

// Record notes id as a trigger of class. Only the first is kept.
func (c *ClassInits) Record(class event.ClassID, id event.ID) error {
	if c.Events(class) != nil {
		return nil
	}
	return c.Add(class, id)
}

// Trigger returns the event that triggered class initialization.
func (c *ClassInits) Trigger(class event.ClassID) event.ID {
	v := c.Events(class)
	if v == nil || v.Len() == 0 {
		return event.None
	}
	return event.ID(v.At(0))
}

// ThreadStarts indexes thread-start invocations by call site.
type ThreadStarts struct {
	*Index[event.InstructionRef]
}

// NewThreadStarts creates an empty thread-start history.
func NewThreadStarts() *ThreadStarts {
	return &ThreadStarts{NewIndex[event.InstructionRef]("thread-starts", RefKeys{})}
}

// Before returns every thread-start invocation earlier than at, latest
// first.
func (t *ThreadStarts) Before(at event.ID) []event.ID {
	var out []event.ID
	for _, k := range t.Keys() {
		v := t.Events(k)
		for i := v.IndexAtOrBefore(int32(at) - 1); i >= 0; i-- {
			out = append(out, event.ID(v.At(i)))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] > out[j] })
	return out
}

// CallTargets binds each call site to the methods it may enter. Static
// targets come from the program model; observed targets are the methods a
// call from the site was seen to start.
type CallTargets struct {
	static   map[event.InstructionRef][]event.MethodID
	observed map[event.InstructionRef][]event.MethodID
}

// NewCallTargets creates an empty call graph.
func NewCallTargets() *CallTargets {
	return &CallTargets{
		static:   make(map[event.InstructionRef][]event.MethodID),
		observed: make(map[event.InstructionRef][]event.MethodID),
	}
}

// Bind sets the statically possible targets of site.
func (c *CallTargets) Bind(site event.InstructionRef, targets []event.MethodID) {
	var ms []event.MethodID
	for _, m := range targets {
		ms = insertMethod(ms, m)
	}
	c.static[site] = ms
}

// Bound reports whether site has static targets.
func (c *CallTargets) Bound(site event.InstructionRef) bool {
	_, ok := c.static[site]
	return ok
}

// Record notes that site entered m.
func (c *CallTargets) Record(site event.InstructionRef, m event.MethodID) {
	c.observed[site] = insertMethod(c.observed[site], m)
}

func insertMethod(ms []event.MethodID, m event.MethodID) []event.MethodID {
	i := sort.Search(len(ms), func(i int) bool { return ms[i] >= m })
	if i < len(ms) && ms[i] == m {
		return ms
	}
	ms = append(ms, 0)
	copy(ms[i+1:], ms[i:])
	ms[i] = m
	return ms
}

// Targets returns the static and observed targets of site, ascending.
func (c *CallTargets) Targets(site event.InstructionRef) []event.MethodID {
	static, observed := c.static[site], c.observed[site]
	if len(observed) == 0 {
		return static
	}
	if len(static) == 0 {
		return observed
	}
	out := append([]event.MethodID(nil), static...)
	for _, m := range observed {
		out = insertMethod(out, m)
	}
	return out
}

// Observed returns the methods site was seen to enter, ascending.
func (c *CallTargets) Observed(site event.InstructionRef) []event.MethodID {
	return c.observed[site]
}

// Sites returns the number of call sites with any target.
func (c *CallTargets) Sites() int {
	n := len(c.static)
	for s := range c.observed {
		if _, ok := c.static[s]; !ok {
			n++
		}
	}
	return n
}

// ObservedSites returns the number of call sites seen to enter a method.
func (c *CallTargets) ObservedSites() int {
	return len(c.observed)
}

// WriteTo writes the static table then the observed table. Each is
// count:u32 then (site:u32, n:u32, method:u32*) per site.
func (c *CallTargets) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: bufio.NewWriter(w)}
	for _, table := range []map[event.InstructionRef][]event.MethodID{c.static, c.observed} {
		if err := writeTargets(cw, table); err != nil {
			return cw.n, err
		}
	}
	return cw.n, cw.w.(*bufio.Writer).Flush()
}

func writeTargets(w io.Writer, table map[event.InstructionRef][]event.MethodID) error {
	sites := make([]event.InstructionRef, 0, len(table))
	for s := range table {
		sites = append(sites, s)
	}
	sort.Slice(sites, func(i, j int) bool { return sites[i].Pack() < sites[j].Pack() })
	if err := collections.WriteUint32(w, uint32(len(sites))); err != nil {
		return err
	}
	for _, s := range sites {
		ms := table[s]
		if err := collections.WriteUint32(w, s.Pack()); err != nil {
			return err
		}
		if err := collections.WriteUint32(w, uint32(len(ms))); err != nil {
			return err
		}
		for _, m := range ms {
			if err := collections.WriteUint32(w, uint32(m)); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReadFrom reads what WriteTo wrote.
func (c *CallTargets) ReadFrom(r io.Reader) (int64, error) {
	cr := &countingReader{r: r}
	static, err := readTargets(cr)
	if err != nil {
		return cr.n, err
	}
	observed, err := readTargets(cr)
	if err != nil {
		return cr.n, err
	}
	c.static, c.observed = static, observed
	return cr.n, nil
}

func readTargets(r io.Reader) (map[event.InstructionRef][]event.MethodID, error) {
	n, err := collections.ReadUint32(r)
	if err != nil {
		return nil, err
	}
	table := make(map[event.InstructionRef][]event.MethodID, collections.PreallocCap(n))
	for i := uint32(0); i < n; i++ {
		site, err := collections.ReadUint32(r)
		if err != nil {
			return nil, err
		}
		count, err := collections.ReadUint32(r)
		if err != nil {
			return nil, err
		}
		ms := make([]event.MethodID, 0, collections.PreallocCap(count))
		for j := uint32(0); j < count; j++ {
			m, err := collections.ReadUint32(r)
			if err != nil {
				return nil, err
			}
			ms = append(ms, event.MethodID(m))
		}
		table[event.UnpackInstructionRef(site)] = ms
	}
	return table, nil
}
