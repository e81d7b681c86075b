package history

import (
	"io"

	"github.com/exec-trace/internal/event"
)

// Fields indexes instance field writes by (object, field).
type Fields struct {
	*Index[FieldKey]
}

// NewFields creates an empty field history.
func NewFields() *Fields {
	return &Fields{NewIndex[FieldKey]("fields", FieldKeys{})}
}

// Record appends a write of field on obj.
func (f *Fields) Record(obj event.ObjectID, field string, id event.ID) error {
	return f.Add(FieldKey{Object: obj, Field: field}, id)
}

// LastWrite returns the latest write of field on obj at or before at.
func (f *Fields) LastWrite(obj event.ObjectID, field string, at event.ID) event.ID {
	return f.LastAtOrBefore(FieldKey{Object: obj, Field: field}, at)
}

// NextWrite returns the earliest write of field on obj after at.
func (f *Fields) NextWrite(obj event.ObjectID, field string, at event.ID) event.ID {
	return f.FirstAfter(FieldKey{Object: obj, Field: field}, at)
}

// Statics indexes static field writes by qualified name.
type Statics struct {
	*Index[string]
}

// NewStatics creates an empty static history.
func NewStatics() *Statics {
	return &Statics{NewIndex[string]("statics", StringKeys{})}
}

// Record appends a write of the named static.
func (s *Statics) Record(name string, id event.ID) error {
	return s.Add(name, id)
}

// LastWrite returns the latest write of name at or before at.
func (s *Statics) LastWrite(name string, at event.ID) event.ID {
	return s.LastAtOrBefore(name, at)
}

// CopyLookup returns the parameters of an arraycopy event.
type CopyLookup func(id event.ID) (event.ArrayCopy, error)

// ArrayWrite is the outcome of an element write lookup.
type ArrayWrite struct {
	// Event is the write that defined the element, or event.None.
	Event event.ID
	// Array and Index locate the element Event wrote. They differ from
	// the query when copies were followed.
	Array event.ObjectID
	Index int32
	// Copies lists the arraycopy events followed, latest first.
	Copies []event.ID
	// UnknownSource is set when a followed copy named an unidentified
	// source array. Event is then that copy.
	UnknownSource bool
}

// Arrays indexes element writes by (array, index) and bulk copies by
// destination array.
type Arrays struct {
	Elements *Index[ElementKey]
	Copies   *Index[event.ObjectID]
}

// NewArrays creates an empty array history.
func NewArrays() *Arrays {
	return &Arrays{
		Elements: NewIndex[ElementKey]("array-elements", ElementKeys{}),
		Copies:   NewIndex[event.ObjectID]("array-copies", ObjectKeys{}),
	}
}

// RecordElement appends a write of array[index].
func (a *Arrays) RecordElement(array event.ObjectID, index int32, id event.ID) error {
	return a.Elements.Add(ElementKey{Array: array, Index: index}, id)
}

// RecordCopy appends a bulk copy into the destination array.
func (a *Arrays) RecordCopy(dest event.ObjectID, id event.ID) error {
	return a.Copies.Add(dest, id)
}

// LastWrite finds the event that defined array[index] as of at. A copy
// into the array newer than the latest direct write redirects the query to
// the source element as it stood just before the copy; this repeats until
// a direct write, nothing, or an unidentified source is found.
func (a *Arrays) LastWrite(array event.ObjectID, index int32, at event.ID, lookup CopyLookup) (ArrayWrite, error) {
	var followed []event.ID
	for {
		direct := a.Elements.LastAtOrBefore(ElementKey{Array: array, Index: index}, at)

		copyID, cp, found, err := a.lastCovering(array, index, at, direct, lookup)
		if err != nil {
			return ArrayWrite{}, err
		}
		if !found {
			return ArrayWrite{Event: direct, Array: array, Index: index, Copies: followed}, nil
		}
		followed = append(followed, copyID)
		if cp.Source < 0 {
			return ArrayWrite{Event: copyID, Array: array, Index: index, Copies: followed, UnknownSource: true}, nil
		}
		array, index, at = cp.Source, cp.SourceIndex(index), copyID-1
	}
}

// lastCovering returns the latest copy into array in (after, at] whose
// destination range covers index.
func (a *Arrays) lastCovering(array event.ObjectID, index int32, at, after event.ID, lookup CopyLookup) (event.ID, event.ArrayCopy, bool, error) {
	v := a.Copies.Events(array)
	if v == nil {
		return event.None, event.ArrayCopy{}, false, nil
	}
	for i := v.IndexAtOrBefore(int32(at)); i >= 0; i-- {
		id := event.ID(v.At(i))
		if id <= after {
			break
		}
		cp, err := lookup(id)
		if err != nil {
			return event.None, event.ArrayCopy{}, false, err
		}
		if cp.Covers(index) {
			return id, cp, true, nil
		}
	}
	return event.None, event.ArrayCopy{}, false, nil
}

// WriteTo writes both indices, elements first.
func (a *Arrays) WriteTo(w io.Writer) (int64, error) {
	n, err := a.Elements.WriteTo(w)
	if err != nil {
		return n, err
	}
	m, err := a.Copies.WriteTo(w)
	return n + m, err
}

// ReadFrom reads what WriteTo wrote.
func (a *Arrays) ReadFrom(r io.Reader) (int64, error) {
	n, err := a.Elements.ReadFrom(r)
	if err != nil {
		return n, err
	}
	m, err := a.Copies.ReadFrom(r)
	return n + m, err
}
