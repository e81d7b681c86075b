package program

import (
	"bytes"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exec-trace/internal/event"
	apperrors "github.com/exec-trace/pkg/errors"
)

func ref(class, index int) event.InstructionRef {
	return event.MustInstructionRef(class, index)
}

func sampleModel(t *testing.T) *Memory {
	t.Helper()
	m := NewMemory()
	m.AddMethod(Method{ID: 1, Class: 2, Name: "run", Signature: "run()V", ParamSlots: []int{0}})
	m.AddMethod(Method{ID: 2, Class: 3, Name: "<clinit>", Signature: "<clinit>()V", Static: true, Implicit: true, ClassInit: true})
	_, err := m.AddInstruction(Instruction{Ref: ref(2, 0), Method: 1, Op: OpLoadLocal, Local: 0})
	require.NoError(t, err)
	_, err = m.AddInstruction(Instruction{
		Ref: ref(2, 1), Method: 1, Op: OpDuplicate, ArgCount: 2,
		Producers: [][]event.InstructionRef{{ref(2, 0)}, {ref(2, 0)}},
		Dup:       []DupRoute{{Consumer: ref(2, 2), Arg: 1, Input: 0}},
	})
	require.NoError(t, err)
	_, err = m.AddInstruction(Instruction{
		Ref: ref(2, 2), Method: 1, Op: OpRecorded, Kind: event.KindPutField, ArgCount: 2,
		Producers: [][]event.InstructionRef{{ref(2, 1)}, {ref(2, 1)}}, Field: "A.f",
		ControlPreds: []event.InstructionRef{ref(2, 0)},
	})
	require.NoError(t, err)
	return m
}

func TestMemory(t *testing.T) {
	m := sampleModel(t)
	assert.Equal(t, 2, m.MethodCount())
	assert.Equal(t, 4, m.ClassCount())

	id, ok := m.MethodAt(ref(2, 1))
	require.True(t, ok)
	assert.Equal(t, event.MethodID(1), id)

	_, err := m.AddInstruction(Instruction{Ref: ref(9, 9), Method: 99})
	assert.Equal(t, apperrors.CodeInvalidInput, apperrors.GetErrorCode(err))

	_, err = m.AddInstruction(Instruction{Ref: ref(2, 1), Method: 2})
	assert.Error(t, err)

	_, err = m.Analyze(42)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestInstructionHelpers(t *testing.T) {
	m := sampleModel(t)
	a, err := m.Analyze(1)
	require.NoError(t, err)

	dup := a.Instructions[ref(2, 1)]
	in, ok := dup.DupInput(ref(2, 2), 1)
	assert.True(t, ok)
	assert.Equal(t, 0, in)
	_, ok = dup.DupInput(ref(2, 2), 0)
	assert.False(t, ok)

	put := a.Instructions[ref(2, 2)]
	assert.Equal(t, []event.InstructionRef{ref(2, 1)}, put.ProducersOf(1))
	assert.Empty(t, put.ProducersOf(5))
	assert.Empty(t, put.ProducersOf(-1))
	assert.True(t, put.IsControlPred(ref(2, 0)))
	assert.False(t, put.IsControlPred(ref(2, 1)))

	meth, _ := m.Method(1)
	arg, ok := meth.ArgForSlot(0)
	assert.True(t, ok)
	assert.Equal(t, 0, arg)
	_, ok = meth.ArgForSlot(3)
	assert.False(t, ok)
}

func TestJSONRoundTrip(t *testing.T) {
	m := sampleModel(t)
	var buf bytes.Buffer
	require.NoError(t, m.WriteJSON(&buf))

	read, err := ReadJSON(&buf)
	require.NoError(t, err)

	want, _ := m.Analyze(1)
	got, err := read.Analyze(1)
	require.NoError(t, err)
	if diff := cmp.Diff(want.Instructions, got.Instructions); diff != "" {
		t.Errorf("instructions differ after reload (-want +got):\n%s", diff)
	}
	meth, ok := read.Method(2)
	require.True(t, ok)
	assert.True(t, meth.ClassInit)

	_, err = ReadJSON(bytes.NewReader([]byte("{")))
	assert.True(t, apperrors.IsLoadFailure(err))
}

func TestCache(t *testing.T) {
	m := sampleModel(t)
	c, err := NewCache(m, 1)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			inst, err := c.Instruction(ref(2, 2))
			assert.NoError(t, err)
			assert.Equal(t, "A.f", inst.Field)
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, m.AnalyzeCalls(), int64(8))
	assert.Equal(t, 1, c.Len())

	calls := m.AnalyzeCalls()
	_, err = c.Instruction(ref(2, 0))
	require.NoError(t, err)
	assert.Equal(t, calls, m.AnalyzeCalls(), "resident analysis must be reused")

	// method 2 evicts method 1 from a cache of one
	_, err = c.Analysis(2)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Len())

	meth, err := c.MethodOf(ref(2, 0))
	require.NoError(t, err)
	assert.Equal(t, "run", meth.Name)

	_, err = c.Instruction(ref(7, 7))
	assert.True(t, apperrors.IsNotFound(err))
}

func TestCache_StaticTargets(t *testing.T) {
	m := NewMemory()
	m.AddMethod(Method{ID: 1, Class: 1, Name: "speak", Signature: "speak()V"})
	m.AddMethod(Method{ID: 2, Class: 2, Name: "speak", Signature: "speak()V", Overrides: []event.MethodID{1}})
	m.AddMethod(Method{ID: 3, Class: 3, Name: "speak", Signature: "speak()V", Overrides: []event.MethodID{2}})
	m.AddMethod(Method{ID: 4, Class: 4, Name: "other", Signature: "other()V"})
	assert.Equal(t, []event.MethodID{1, 2, 3, 4}, m.Methods())

	c, err := NewCache(m, 4)
	require.NoError(t, err)
	assert.Equal(t, []event.MethodID{2, 3}, c.Overriders(1))
	assert.Equal(t, []event.MethodID{3}, c.Overriders(2))
	assert.Empty(t, c.Overriders(4))

	assert.Equal(t, []event.MethodID{1, 2, 3}, c.StaticTargets(&Instruction{Kind: event.KindInvokeVirtual, Target: 1}))
	assert.Equal(t, []event.MethodID{4}, c.StaticTargets(&Instruction{Kind: event.KindInvokeStatic, Target: 4}))
}
