package callstack

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exec-trace/internal/block"
	"github.com/exec-trace/internal/event"
	"github.com/exec-trace/internal/program"
	apperrors "github.com/exec-trace/pkg/errors"
)

type link struct {
	c        block.Correlation
	from, to event.ID
}

type recorder struct {
	links []link
}

func (r *recorder) Correlate(c block.Correlation, from, to event.ID) error {
	r.links = append(r.links, link{c, from, to})
	return nil
}

func (r *recorder) get(c block.Correlation, from event.ID) event.ID {
	for _, l := range r.links {
		if l.c == c && l.from == from {
			return l.to
		}
	}
	return event.None
}

const (
	mMain event.MethodID = iota
	mFoo
	mBar
	mBaseRun
	mRun
	mClinit
	mInit
	mLib
)

func methods() *program.Memory {
	m := program.NewMemory()
	m.AddMethod(program.Method{ID: mMain, Name: "main", Signature: "main()V", Static: true, Main: true})
	m.AddMethod(program.Method{ID: mFoo, Name: "foo", Signature: "foo()V"})
	m.AddMethod(program.Method{ID: mBar, Name: "bar", Signature: "bar(I)I"})
	m.AddMethod(program.Method{ID: mBaseRun, Name: "run", Signature: "run()V"})
	m.AddMethod(program.Method{ID: mRun, Class: 1, Name: "run", Signature: "run()V"})
	m.AddMethod(program.Method{ID: mClinit, Class: 2, Name: "<clinit>", Signature: "<clinit>()V", Static: true, ClassInit: true, Implicit: true})
	m.AddMethod(program.Method{ID: mInit, Class: 3, Name: "<init>", Signature: "<init>()V", Constructor: true})
	m.AddMethod(program.Method{ID: mLib, Name: "sort", Signature: "sort()V"})
	return m
}

func newRecon() (*Reconstructor, *recorder) {
	rec := &recorder{}
	return New(0, methods(), rec), rec
}

func TestReconstructor_MatchedCall(t *testing.T) {
	r, rec := newRecon()
	require.NoError(t, r.Start(0, mMain))
	require.NoError(t, r.Invoke(1, mFoo))
	require.NoError(t, r.Start(2, mFoo))
	assert.Equal(t, 2, r.Depth())

	f, err := r.Return(3)
	require.NoError(t, err)
	assert.Equal(t, Frame{Start: 2, Method: mFoo, Invocation: 1}, f)
	assert.Equal(t, 1, r.Depth())

	assert.Equal(t, event.ID(1), rec.get(block.StartToInvocation, 2))
	assert.Equal(t, event.ID(2), rec.get(block.InvocationToStart, 1))
	assert.Equal(t, event.ID(3), rec.get(block.StartToExit, 2))
	assert.Equal(t, event.ID(2), rec.get(block.ExitToStart, 3))
	assert.Equal(t, event.None, rec.get(block.StartToInvocation, 0))
}

func TestReconstructor_VirtualDispatchMatchesBySignature(t *testing.T) {
	r, rec := newRecon()
	require.NoError(t, r.Start(0, mMain))
	require.NoError(t, r.Invoke(1, mBaseRun))
	require.NoError(t, r.Start(2, mRun))
	assert.Equal(t, event.ID(1), rec.get(block.StartToInvocation, 2))
	assert.Empty(t, r.Pending())
}

func TestReconstructor_ImplicitStartIsUntraced(t *testing.T) {
	r, rec := newRecon()
	require.NoError(t, r.Start(0, mMain))
	require.NoError(t, r.Invoke(1, mFoo))
	require.NoError(t, r.Start(2, mClinit))
	top, ok := r.Top()
	require.True(t, ok)
	assert.Equal(t, event.None, top.Invocation)
	_, err := r.Return(3)
	require.NoError(t, err)

	// The pending call to foo survived the initializer.
	require.NoError(t, r.Start(4, mFoo))
	assert.Equal(t, event.ID(1), rec.get(block.StartToInvocation, 4))
}

func TestReconstructor_PrunesStaleInvocations(t *testing.T) {
	r, _ := newRecon()
	require.NoError(t, r.Start(0, mMain))
	require.NoError(t, r.Invoke(1, mFoo))
	require.NoError(t, r.Start(2, mFoo))
	require.NoError(t, r.Invoke(3, mLib))
	require.NoError(t, r.Invoke(4, mLib))
	assert.Len(t, r.Pending(), 2)

	_, err := r.Return(5)
	require.NoError(t, err)
	assert.Empty(t, r.Pending())
	assert.Equal(t, 1, r.Depth())
}

func TestReconstructor_SignatureMismatchIsUntraced(t *testing.T) {
	r, rec := newRecon()
	require.NoError(t, r.Start(0, mMain))
	require.NoError(t, r.Invoke(1, mLib))
	require.NoError(t, r.Start(2, mBar))
	assert.Equal(t, event.None, rec.get(block.StartToInvocation, 2))
	assert.Len(t, r.Pending(), 1)
}

func TestReconstructor_CatchUnwinds(t *testing.T) {
	r, rec := newRecon()
	require.NoError(t, r.Start(0, mMain))
	require.NoError(t, r.Invoke(1, mFoo))
	require.NoError(t, r.Start(2, mFoo))
	require.NoError(t, r.Invoke(3, mBar))
	require.NoError(t, r.Start(4, mBar))
	require.NoError(t, r.Invoke(5, mLib))

	popped, err := r.Catch(6, mMain)
	require.NoError(t, err)
	require.Len(t, popped, 2)
	assert.Equal(t, 1, r.Depth())
	assert.Empty(t, r.Pending())

	assert.Equal(t, event.ID(6), rec.get(block.StartToExit, 2))
	assert.Equal(t, event.ID(6), rec.get(block.StartToExit, 4))
	assert.Equal(t, event.ID(2), rec.get(block.ExitToStart, 6))
}

func TestReconstructor_CatchInSameFrame(t *testing.T) {
	r, rec := newRecon()
	require.NoError(t, r.Start(0, mMain))
	popped, err := r.Catch(1, mMain)
	require.NoError(t, err)
	assert.Empty(t, popped)
	assert.Equal(t, event.None, rec.get(block.ExitToStart, 1))
}

func TestReconstructor_CatchEmptyingStackIsDefect(t *testing.T) {
	r, _ := newRecon()
	require.NoError(t, r.Start(0, mFoo))
	_, err := r.Catch(1, mMain)
	require.Error(t, err)
	assert.True(t, apperrors.IsDefect(err))
}

func TestReconstructor_ReturnOnEmptyStackIsDefect(t *testing.T) {
	r, _ := newRecon()
	_, err := r.Return(0)
	assert.True(t, apperrors.IsDefect(err))
}

func TestReconstructor_NewToInit(t *testing.T) {
	r, rec := newRecon()
	require.NoError(t, r.Start(0, mMain))
	r.Allocate(1)
	r.Allocate(2)
	require.NoError(t, r.Invoke(3, mInit))
	require.NoError(t, r.Start(4, mInit))
	// A super constructor call one level down claims nothing.
	require.NoError(t, r.Invoke(5, mInit))
	_, err := r.Return(6)
	require.NoError(t, err)
	require.NoError(t, r.Invoke(7, mInit))

	assert.Equal(t, event.ID(3), rec.get(block.NewToInit, 2))
	assert.Equal(t, event.ID(7), rec.get(block.NewToInit, 1))
}

func TestReconstructor_DepthCountsUnmatchedStarts(t *testing.T) {
	r, _ := newRecon()
	type step struct {
		apply func() error
		depth int
	}
	steps := []step{
		{func() error { return r.Start(0, mMain) }, 1},
		{func() error { return r.Invoke(1, mFoo) }, 1},
		{func() error { return r.Start(2, mFoo) }, 2},
		{func() error { return r.Start(3, mClinit) }, 3},
		{func() error { _, err := r.Return(4); return err }, 2},
		{func() error { return r.Start(5, mBar) }, 3},
		{func() error { _, err := r.Catch(6, mMain); return err }, 1},
	}
	for i, s := range steps {
		require.NoError(t, s.apply(), "step %d", i)
		assert.Equal(t, s.depth, r.Depth(), "step %d", i)
	}
}
