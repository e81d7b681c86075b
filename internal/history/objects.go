package history

import (
	"bufio"
	"fmt"
	"io"
	"sort"

	"github.com/exec-trace/internal/event"
	"github.com/exec-trace/pkg/collections"
	apperrors "github.com/exec-trace/pkg/errors"
)

type objectInfo struct {
	created event.ID
	class   event.ClassID
}

// Objects records the creation event and declared class of every object.
type Objects struct {
	objects map[event.ObjectID]objectInfo
}

// NewObjects creates an empty object table.
func NewObjects() *Objects {
	return &Objects{objects: make(map[event.ObjectID]objectInfo)}
}

// Record notes that id created obj of class. An object is created once.
func (o *Objects) Record(obj event.ObjectID, class event.ClassID, id event.ID) error {
	if prev, ok := o.objects[obj]; ok {
		return apperrors.Defectf("object %d created at %d and again at %d", obj, prev.created, id)
	}
	o.objects[obj] = objectInfo{created: id, class: class}
	return nil
}

// Creation returns the event that created obj.
func (o *Objects) Creation(obj event.ObjectID) event.ID {
	if info, ok := o.objects[obj]; ok {
		return info.created
	}
	return event.None
}

// Class returns the declared class of obj.
func (o *Objects) Class(obj event.ObjectID) (event.ClassID, bool) {
	info, ok := o.objects[obj]
	return info.class, ok
}

// Len returns the number of objects.
func (o *Objects) Len() int {
	return len(o.objects)
}

// WriteTo writes count:u32 then (object:u64, event:u32, class:u32) rows.
func (o *Objects) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: bufio.NewWriter(w)}
	ids := make([]event.ObjectID, 0, len(o.objects))
	for id := range o.objects {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if err := collections.WriteUint32(cw, uint32(len(ids))); err != nil {
		return cw.n, err
	}
	for _, id := range ids {
		info := o.objects[id]
		if err := collections.WriteUint64(cw, uint64(id)); err != nil {
			return cw.n, err
		}
		if err := collections.WriteUint32(cw, uint32(info.created)); err != nil {
			return cw.n, err
		}
		if err := collections.WriteUint32(cw, uint32(info.class)); err != nil {
			return cw.n, err
		}
	}
	return cw.n, cw.w.(*bufio.Writer).Flush()
}

// ReadFrom reads what WriteTo wrote.
func (o *Objects) ReadFrom(r io.Reader) (int64, error) {
	cr := &countingReader{r: r}
	n, err := collections.ReadUint32(cr)
	if err != nil {
		return cr.n, err
	}
	objects := make(map[event.ObjectID]objectInfo, collections.PreallocCap(n))
	for i := uint32(0); i < n; i++ {
		id, err := collections.ReadUint64(cr)
		if err != nil {
			return cr.n, err
		}
		created, err := collections.ReadUint32(cr)
		if err != nil {
			return cr.n, err
		}
		class, err := collections.ReadUint32(cr)
		if err != nil {
			return cr.n, err
		}
		objects[event.ObjectID(id)] = objectInfo{created: event.ID(created), class: event.ClassID(class)}
	}
	o.objects = objects
	return cr.n, nil
}

// PoolValue is an immutable value stored once and shared by ID.
type PoolValue struct {
	Type string
	Text string
}

// String renders the value.
func (v PoolValue) String() string {
	if v.Type == "string" {
		return fmt.Sprintf("%q", v.Text)
	}
	return v.Type + "(" + v.Text + ")"
}

// ValuePool is the bidirectional object ID <-> immutable value table.
type ValuePool struct {
	byID    map[event.ObjectID]PoolValue
	byValue map[PoolValue]event.ObjectID
}

// NewValuePool creates an empty pool.
func NewValuePool() *ValuePool {
	return &ValuePool{
		byID:    make(map[event.ObjectID]PoolValue),
		byValue: make(map[PoolValue]event.ObjectID),
	}
}

// Put binds obj to v. Rebinding an ID to a different value is a defect.
func (p *ValuePool) Put(obj event.ObjectID, v PoolValue) error {
	if prev, ok := p.byID[obj]; ok {
		if prev != v {
			return apperrors.Defectf("pool object %d rebound from %s to %s", obj, prev, v)
		}
		return nil
	}
	p.byID[obj] = v
	if _, ok := p.byValue[v]; !ok {
		p.byValue[v] = obj
	}
	return nil
}

// Value returns the value bound to obj.
func (p *ValuePool) Value(obj event.ObjectID) (PoolValue, bool) {
	v, ok := p.byID[obj]
	return v, ok
}

// Object returns the first object bound to v.
func (p *ValuePool) Object(v PoolValue) (event.ObjectID, bool) {
	id, ok := p.byValue[v]
	return id, ok
}

// Len returns the number of bound objects.
func (p *ValuePool) Len() int {
	return len(p.byID)
}

// WriteTo writes count:u32 then (object:u64, type, text) rows with
// length-prefixed strings.
func (p *ValuePool) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: bufio.NewWriter(w)}
	ids := make([]event.ObjectID, 0, len(p.byID))
	for id := range p.byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if err := collections.WriteUint32(cw, uint32(len(ids))); err != nil {
		return cw.n, err
	}
	for _, id := range ids {
		v := p.byID[id]
		if err := collections.WriteUint64(cw, uint64(id)); err != nil {
			return cw.n, err
		}
		if err := writeString(cw, v.Type); err != nil {
			return cw.n, err
		}
		if err := writeString(cw, v.Text); err != nil {
			return cw.n, err
		}
	}
	return cw.n, cw.w.(*bufio.Writer).Flush()
}

// ReadFrom reads what WriteTo wrote.
func (p *ValuePool) ReadFrom(r io.Reader) (int64, error) {
	cr := &countingReader{r: r}
	n, err := collections.ReadUint32(cr)
	if err != nil {
		return cr.n, err
	}
	fresh := NewValuePool()
	for i := uint32(0); i < n; i++ {
		id, err := collections.ReadUint64(cr)
		if err != nil {
			return cr.n, err
		}
		typ, err := readString(cr)
		if err != nil {
			return cr.n, err
		}
		text, err := readString(cr)
		if err != nil {
			return cr.n, err
		}
		if err := fresh.Put(event.ObjectID(id), PoolValue{Type: typ, Text: text}); err != nil {
			return cr.n, err
		}
	}
	*p = *fresh
	return cr.n, nil
}

// Threads records which event IDs each thread owns.
type Threads struct {
	sets []*collections.IDSet
}

// NewThreads creates an empty thread table.
func NewThreads() *Threads {
	return &Threads{}
}

// Record appends id to thread.
func (t *Threads) Record(thread int, id event.ID) error {
	for len(t.sets) <= thread {
		t.sets = append(t.sets, collections.NewIDSet())
	}
	if err := t.sets[thread].Add(int32(id)); err != nil {
		return apperrors.Defectf("thread %d: %v", thread, err)
	}
	return nil
}

// Count returns the number of threads.
func (t *Threads) Count() int {
	return len(t.sets)
}

// Set returns the IDs of thread, or nil.
func (t *Threads) Set(thread int) *collections.IDSet {
	if thread < 0 || thread >= len(t.sets) {
		return nil
	}
	return t.sets[thread]
}

// ThreadOf returns the thread owning id, or -1.
func (t *Threads) ThreadOf(id event.ID) int {
	for i, s := range t.sets {
		if s.Contains(int32(id)) {
			return i
		}
	}
	return -1
}

// Prev returns the previous event of id's thread.
func (t *Threads) Prev(thread int, id event.ID) event.ID {
	if s := t.Set(thread); s != nil {
		if p, ok := s.Prev(int32(id)); ok {
			return event.ID(p)
		}
	}
	return event.None
}

// Next returns the next event of id's thread.
func (t *Threads) Next(thread int, id event.ID) event.ID {
	if s := t.Set(thread); s != nil {
		if n, ok := s.Next(int32(id)); ok {
			return event.ID(n)
		}
	}
	return event.None
}

// First returns the first event of thread.
func (t *Threads) First(thread int) event.ID {
	if s := t.Set(thread); s != nil {
		if f, ok := s.First(); ok {
			return event.ID(f)
		}
	}
	return event.None
}

// Last returns the last event of thread.
func (t *Threads) Last(thread int) event.ID {
	if s := t.Set(thread); s != nil {
		if l, ok := s.Last(); ok {
			return event.ID(l)
		}
	}
	return event.None
}

// WriteTo writes count:u32 then one ID set per thread.
func (t *Threads) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: bufio.NewWriter(w)}
	if err := collections.WriteUint32(cw, uint32(len(t.sets))); err != nil {
		return cw.n, err
	}
	for _, s := range t.sets {
		if _, err := s.WriteTo(cw); err != nil {
			return cw.n, err
		}
	}
	return cw.n, cw.w.(*bufio.Writer).Flush()
}

// ReadFrom reads what WriteTo wrote.
func (t *Threads) ReadFrom(r io.Reader) (int64, error) {
	cr := &countingReader{r: r}
	n, err := collections.ReadUint32(cr)
	if err != nil {
		return cr.n, err
	}
	sets := make([]*collections.IDSet, 0, collections.PreallocCap(n))
	for i := uint32(0); i < n; i++ {
		s, err := collections.ReadIDSet(cr)
		if err != nil {
			return cr.n, err
		}
		sets = append(sets, s)
	}
	t.sets = sets
	return cr.n, nil
}
