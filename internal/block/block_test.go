package block

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exec-trace/internal/event"
)

var layout = Layout{EventsPerBlock: 8}

func TestLayout(t *testing.T) {
	assert.Equal(t, 0, layout.Block(7))
	assert.Equal(t, 1, layout.Block(8))
	assert.Equal(t, event.ID(16), layout.First(2))
	assert.Equal(t, 0, layout.Count(0))
	assert.Equal(t, 2, layout.Count(9))
}

func TestIDBlock(t *testing.T) {
	codec := IDCodec{Layout: layout}
	b := codec.New(1)
	require.NoError(t, b.Set(8, event.KindStart, event.MustInstructionRef(3, 0)))
	require.NoError(t, b.Set(15, event.KindInvokeVirtual, event.MustInstructionRef(3, 9)))
	assert.Error(t, b.Set(16, event.KindReturn, event.InstructionRef{}))
	assert.Error(t, b.Set(7, event.KindReturn, event.InstructionRef{}))
	assert.Equal(t, 2, b.Len())

	k, ref, ok := b.Get(15)
	require.True(t, ok)
	assert.Equal(t, event.KindInvokeVirtual, k)
	assert.Equal(t, event.MustInstructionRef(3, 9), ref)
	_, _, ok = b.Get(9)
	assert.False(t, ok)

	var buf bytes.Buffer
	require.NoError(t, codec.Encode(&buf, b))
	read, err := codec.Decode(bytes.NewReader(buf.Bytes()), 1)
	require.NoError(t, err)
	if diff := cmp.Diff(b, read, cmp.AllowUnexported(IDBlock{})); diff != "" {
		t.Errorf("id block differs after reload (-want +got):\n%s", diff)
	}

	_, err = codec.Decode(bytes.NewReader(buf.Bytes()), 2)
	assert.Error(t, err, "index mismatch must be rejected")
	_, err = ValueCodec{}.Decode(bytes.NewReader(buf.Bytes()), 1)
	assert.Error(t, err, "kind mismatch must be rejected")
}

func TestValueBlock(t *testing.T) {
	codec := ValueCodec{}
	b := codec.New(0)
	payloads := map[event.ID]event.Payload{
		0: event.Int(-7),
		1: event.Short(300),
		2: event.Byte(-1),
		3: event.Float(0.25),
		4: event.Double(-1e300),
		5: event.Char('z'),
		6: event.Boolean(true),
		7: event.Long(-1),
	}
	for id, p := range payloads {
		b.SetValue(id, p)
	}
	b.SetValue(8, event.Object(99))
	b.SetOperands(8, event.FieldClass, Operands{Class: 4})
	b.SetOperands(9, event.FieldCopy, Operands{Copy: event.ArrayCopy{Source: -2, SourcePos: 1, Dest: 5, DestPos: 3, Length: 2}})
	b.SetOperands(10, event.FieldTarget|event.FieldIndex, Operands{Target: 5, Index: 3})
	b.SetOperands(11, event.FieldDelta, Operands{Delta: -4})

	var buf bytes.Buffer
	require.NoError(t, codec.Encode(&buf, b))
	read, err := codec.Decode(&buf, 0)
	require.NoError(t, err)

	for id, want := range payloads {
		got, ok := read.Value(id)
		require.True(t, ok, "value of %d", id)
		assert.Equal(t, want, got, "value of %d", id)
	}
	got, ok := read.Value(8)
	require.True(t, ok)
	assert.Equal(t, event.Object(99), got)
	_, ok = read.Value(12)
	assert.False(t, ok)

	assert.Equal(t, event.ClassID(4), read.Operands(8).Class)
	assert.Equal(t, event.ObjectID(-2), read.Operands(9).Copy.Source)
	assert.Equal(t, Operands{Target: 5, Index: 3}, read.Operands(10))
	d, ok := read.Increment(11)
	assert.True(t, ok)
	assert.Equal(t, int32(-4), d)
}

func TestCallBlock(t *testing.T) {
	codec := CallCodec{}
	b := codec.New(3)
	b.Set(StartToInvocation, 25, 24)
	b.Set(InvocationToStart, 24, 25)
	b.Set(ExitToStart, 30, 25)
	b.Set(NewToInit, 26, 28)

	var buf bytes.Buffer
	require.NoError(t, codec.Encode(&buf, b))
	read, err := codec.Decode(&buf, 3)
	require.NoError(t, err)

	assert.Equal(t, event.ID(24), read.Get(StartToInvocation, 25))
	assert.Equal(t, event.ID(25), read.Get(ExitToStart, 30))
	assert.Equal(t, event.ID(28), read.Get(NewToInit, 26))
	assert.Equal(t, event.None, read.Get(StartToExit, 25))
	assert.Equal(t, 1, read.Len(InvocationToStart))
}
