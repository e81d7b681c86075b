package history

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exec-trace/internal/event"
	apperrors "github.com/exec-trace/pkg/errors"
)

func TestIndex_Queries(t *testing.T) {
	x := NewIndex[string]("t", StringKeys{})
	for _, id := range []event.ID{3, 9, 9, 20} {
		require.NoError(t, x.Add("a", id))
	}
	assert.Equal(t, 3, x.EventCount())

	assert.Equal(t, event.ID(9), x.LastAtOrBefore("a", 9))
	assert.Equal(t, event.ID(3), x.LastBefore("a", 9))
	assert.Equal(t, event.ID(20), x.FirstAfter("a", 9))
	assert.Equal(t, event.None, x.LastAtOrBefore("a", 2))
	assert.Equal(t, event.None, x.FirstAfter("a", 20))
	assert.Equal(t, event.None, x.LastAtOrBefore("missing", 100))

	err := x.Add("a", 5)
	require.Error(t, err)
	assert.True(t, apperrors.IsDefect(err))
}

func TestFields_LastWrite(t *testing.T) {
	f := NewFields()
	require.NoError(t, f.Record(7, "x", 10))
	require.NoError(t, f.Record(8, "x", 12))
	require.NoError(t, f.Record(7, "x", 30))
	require.NoError(t, f.Record(7, "y", 31))

	assert.Equal(t, event.ID(10), f.LastWrite(7, "x", 29))
	assert.Equal(t, event.ID(30), f.LastWrite(7, "x", 30))
	assert.Equal(t, event.ID(12), f.LastWrite(8, "x", 40))
	assert.Equal(t, event.ID(30), f.NextWrite(7, "x", 10))
	assert.Equal(t, event.None, f.LastWrite(7, "y", 30))
}

func TestArrays_DirectWrite(t *testing.T) {
	a := NewArrays()
	require.NoError(t, a.RecordElement(1, 2, 10))

	w, err := a.LastWrite(1, 2, 40, nil)
	require.NoError(t, err)
	assert.Equal(t, event.ID(10), w.Event)
	assert.Empty(t, w.Copies)
}

func copies(m map[event.ID]event.ArrayCopy) CopyLookup {
	return func(id event.ID) (event.ArrayCopy, error) {
		return m[id], nil
	}
}

func TestArrays_FollowsCopy(t *testing.T) {
	const src, dst = event.ObjectID(1), event.ObjectID(2)
	a := NewArrays()
	require.NoError(t, a.RecordElement(src, 3, 5))
	require.NoError(t, a.RecordElement(dst, 1, 6))
	require.NoError(t, a.RecordCopy(dst, 20))
	require.NoError(t, a.RecordElement(src, 3, 25))

	lookup := copies(map[event.ID]event.ArrayCopy{
		20: {Source: src, SourcePos: 2, Dest: dst, DestPos: 0, Length: 4},
	})
	w, err := a.LastWrite(dst, 1, 30, lookup)
	require.NoError(t, err)
	assert.Equal(t, event.ID(5), w.Event)
	assert.Equal(t, src, w.Array)
	assert.Equal(t, int32(3), w.Index)
	assert.Equal(t, []event.ID{20}, w.Copies)

	// Outside the copied range the direct write stands.
	require.NoError(t, a.RecordElement(dst, 9, 21))
	w, err = a.LastWrite(dst, 9, 30, lookup)
	require.NoError(t, err)
	assert.Equal(t, event.ID(21), w.Event)

	// A direct write after the copy wins.
	require.NoError(t, a.RecordElement(dst, 1, 22))
	w, err = a.LastWrite(dst, 1, 30, lookup)
	require.NoError(t, err)
	assert.Equal(t, event.ID(22), w.Event)
}

func TestArrays_ChainedCopies(t *testing.T) {
	a := NewArrays()
	require.NoError(t, a.RecordElement(1, 0, 1))
	require.NoError(t, a.RecordCopy(2, 10))
	require.NoError(t, a.RecordCopy(3, 11))
	lookup := copies(map[event.ID]event.ArrayCopy{
		10: {Source: 1, SourcePos: 0, Dest: 2, DestPos: 5, Length: 1},
		11: {Source: 2, SourcePos: 5, Dest: 3, DestPos: 0, Length: 1},
	})

	w, err := a.LastWrite(3, 0, 12, lookup)
	require.NoError(t, err)
	assert.Equal(t, event.ID(1), w.Event)
	assert.Equal(t, []event.ID{11, 10}, w.Copies)
}

func TestArrays_NegativeSourceIsUnknown(t *testing.T) {
	a := NewArrays()
	require.NoError(t, a.RecordCopy(2, 10))
	lookup := copies(map[event.ID]event.ArrayCopy{
		10: {Source: -4, SourcePos: 0, Dest: 2, DestPos: 0, Length: 8},
	})

	w, err := a.LastWrite(2, 3, 12, lookup)
	require.NoError(t, err)
	assert.True(t, w.UnknownSource)
	assert.Equal(t, event.ID(10), w.Event)
}

func TestArrays_SelfCopy(t *testing.T) {
	a := NewArrays()
	require.NoError(t, a.RecordElement(1, 0, 3))
	require.NoError(t, a.RecordCopy(1, 10))
	lookup := copies(map[event.ID]event.ArrayCopy{
		10: {Source: 1, SourcePos: 0, Dest: 1, DestPos: 1, Length: 1},
	})

	w, err := a.LastWrite(1, 1, 20, lookup)
	require.NoError(t, err)
	assert.Equal(t, event.ID(3), w.Event)
	assert.Equal(t, int32(0), w.Index)
}

func TestClassInits_KeepsFirst(t *testing.T) {
	c := NewClassInits()
	require.NoError(t, c.Record(4, 10))
	require.NoError(t, c.Record(4, 30))
	assert.Equal(t, event.ID(10), c.Trigger(4))
	assert.Equal(t, event.None, c.Trigger(5))
}

func TestThreadStarts_Before(t *testing.T) {
	s := NewThreadStarts()
	require.NoError(t, s.Add(event.MustInstructionRef(1, 1), 5))
	require.NoError(t, s.Add(event.MustInstructionRef(1, 1), 40))
	require.NoError(t, s.Add(event.MustInstructionRef(2, 7), 12))

	assert.Equal(t, []event.ID{12, 5}, s.Before(40))
}

func TestCallTargets_Record(t *testing.T) {
	c := NewCallTargets()
	site := event.MustInstructionRef(1, 2)
	c.Record(site, 9)
	c.Record(site, 3)
	c.Record(site, 9)
	assert.Equal(t, []event.MethodID{3, 9}, c.Targets(site))
	assert.Equal(t, 1, c.Sites())

	// Static binding adds targets never entered; observed ones refine it.
	assert.False(t, c.Bound(site))
	c.Bind(site, []event.MethodID{5, 3})
	assert.True(t, c.Bound(site))
	assert.Equal(t, []event.MethodID{3, 5, 9}, c.Targets(site))
	assert.Equal(t, []event.MethodID{3, 9}, c.Observed(site))

	other := event.MustInstructionRef(1, 8)
	c.Bind(other, []event.MethodID{4})
	assert.Equal(t, []event.MethodID{4}, c.Targets(other))
	assert.Empty(t, c.Observed(other))
	assert.Equal(t, 2, c.Sites())
	assert.Equal(t, 1, c.ObservedSites())
}

func TestObjects_CreatedOnce(t *testing.T) {
	o := NewObjects()
	require.NoError(t, o.Record(5, 2, 10))
	err := o.Record(5, 2, 11)
	require.Error(t, err)
	assert.True(t, apperrors.IsDefect(err))

	assert.Equal(t, event.ID(10), o.Creation(5))
	class, ok := o.Class(5)
	assert.True(t, ok)
	assert.Equal(t, event.ClassID(2), class)
}

func TestValuePool(t *testing.T) {
	p := NewValuePool()
	hello := PoolValue{Type: "string", Text: "hello"}
	require.NoError(t, p.Put(3, hello))
	require.NoError(t, p.Put(3, hello))
	require.NoError(t, p.Put(4, hello))
	assert.Error(t, p.Put(3, PoolValue{Type: "string", Text: "bye"}))

	v, ok := p.Value(4)
	require.True(t, ok)
	assert.Equal(t, `"hello"`, v.String())
	id, ok := p.Object(hello)
	require.True(t, ok)
	assert.Equal(t, event.ObjectID(3), id)
}

func TestThreads(t *testing.T) {
	th := NewThreads()
	for _, id := range []event.ID{0, 1, 4} {
		require.NoError(t, th.Record(0, id))
	}
	for _, id := range []event.ID{2, 3, 5} {
		require.NoError(t, th.Record(1, id))
	}
	assert.Equal(t, 2, th.Count())
	assert.Equal(t, 1, th.ThreadOf(3))
	assert.Equal(t, -1, th.ThreadOf(9))
	assert.Equal(t, event.ID(1), th.Prev(0, 4))
	assert.Equal(t, event.ID(5), th.Next(1, 3))
	assert.Equal(t, event.None, th.Prev(0, 0))
	assert.Equal(t, event.ID(4), th.Last(0))
	assert.True(t, apperrors.IsDefect(th.Record(0, 2)))
}

func populate(t *testing.T) *Set {
	t.Helper()
	s := NewSet()
	require.NoError(t, s.Fields.Record(7, "x", 10))
	require.NoError(t, s.Fields.Record(7, "x", 30))
	require.NoError(t, s.Statics.Record("A.count", 11))
	require.NoError(t, s.Arrays.RecordElement(1, 3, 5))
	require.NoError(t, s.Arrays.RecordCopy(2, 20))
	require.NoError(t, s.Objects.Record(7, 3, 2))
	require.NoError(t, s.Invocations.Add(4, 12))
	require.NoError(t, s.Invocations.Add(4, 18))
	require.NoError(t, s.Exceptions.Thrown.Add(0, 50))
	require.NoError(t, s.Exceptions.Caught.Add(0, 70))
	require.NoError(t, s.ClassInits.Record(3, 1))
	require.NoError(t, s.ThreadStarts.Add(event.MustInstructionRef(1, 4), 14))
	s.CallTargets.Record(event.MustInstructionRef(1, 6), 4)
	s.CallTargets.Bind(event.MustInstructionRef(1, 6), []event.MethodID{2})
	require.NoError(t, s.Pool.Put(9, PoolValue{Type: "string", Text: "hi"}))
	require.NoError(t, s.Threads.Record(0, 1))
	require.NoError(t, s.Threads.Record(0, 2))
	require.NoError(t, s.Threads.Record(1, 3))
	return s
}

func TestSet_RoundTrip(t *testing.T) {
	before := populate(t)
	after := NewSet()

	bc, ac := before.Components(), after.Components()
	require.Len(t, ac, len(bc))
	for i := range bc {
		var buf bytes.Buffer
		_, err := bc[i].Component.WriteTo(&buf)
		require.NoError(t, err, bc[i].Name)
		n := int64(buf.Len())
		read, err := ac[i].Component.ReadFrom(&buf)
		require.NoError(t, err, bc[i].Name)
		assert.Equal(t, n, read, bc[i].Name)
		assert.Zero(t, buf.Len(), bc[i].Name)
	}

	lookup := copies(map[event.ID]event.ArrayCopy{
		20: {Source: 1, SourcePos: 2, Dest: 2, DestPos: 0, Length: 4},
	})
	for _, at := range []event.ID{0, 10, 29, 30, 100} {
		assert.Equal(t, before.Fields.LastWrite(7, "x", at), after.Fields.LastWrite(7, "x", at))
		assert.Equal(t, before.Statics.LastWrite("A.count", at), after.Statics.LastWrite("A.count", at))
		assert.Equal(t, before.Invocations.After(4, at), after.Invocations.After(4, at))
		assert.Equal(t, before.Exceptions.LastThrow(0, at), after.Exceptions.LastThrow(0, at))
		assert.Equal(t, before.Exceptions.LastCatch(0, at), after.Exceptions.LastCatch(0, at))
		assert.Equal(t, before.ThreadStarts.Before(at), after.ThreadStarts.Before(at))

		bw, err := before.Arrays.LastWrite(2, 1, at, lookup)
		require.NoError(t, err)
		aw, err := after.Arrays.LastWrite(2, 1, at, lookup)
		require.NoError(t, err)
		assert.Equal(t, bw, aw)
	}
	assert.Equal(t, event.ID(2), after.Objects.Creation(7))
	assert.Equal(t, event.ID(1), after.ClassInits.Trigger(3))
	assert.Equal(t, []event.MethodID{2, 4}, after.CallTargets.Targets(event.MustInstructionRef(1, 6)))
	assert.Equal(t, []event.MethodID{4}, after.CallTargets.Observed(event.MustInstructionRef(1, 6)))
	v, ok := after.Pool.Value(9)
	require.True(t, ok)
	assert.Equal(t, "hi", v.Text)
	assert.Equal(t, 1, after.Threads.ThreadOf(3))
	assert.Equal(t, 2, after.Invocations.EventCount())
}
