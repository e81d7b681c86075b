package event

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstructionRef(t *testing.T) {
	ref, err := NewInstructionRef(513, 7)
	require.NoError(t, err)
	assert.Equal(t, ClassID(513), ref.Class)
	assert.Equal(t, uint16(7), ref.Index)
	assert.Equal(t, ref, UnpackInstructionRef(ref.Pack()))
	assert.Equal(t, "513:7", ref.String())

	max := MustInstructionRef(MaxClass, MaxIndex)
	assert.Equal(t, uint32(math.MaxUint32), max.Pack())

	_, err = NewInstructionRef(MaxClass+1, 0)
	assert.Error(t, err)
	_, err = NewInstructionRef(0, -1)
	assert.Error(t, err)
	assert.Panics(t, func() { MustInstructionRef(-1, 0) })
}

func TestKindTable(t *testing.T) {
	assert.True(t, KindInvokeStatic.Info().IsInvocation)
	assert.True(t, KindStart.Info().IsStart)
	assert.True(t, KindReturnValue.Info().IsReturn)
	assert.True(t, KindReturnValue.Info().Fields.Has(FieldValue))
	assert.False(t, KindReturn.Info().Fields.Has(FieldValue))
	assert.True(t, KindSetArray.Info().Fields.Has(FieldTarget|FieldIndex|FieldValue))
	assert.True(t, KindArrayCopy.Info().IsHeapWrite)
	assert.True(t, KindGetArray.Info().IsHeapRead)
	assert.True(t, KindIncrement.Info().IsLocalDefinition)

	for k := Kind(0); k < MaxKinds; k++ {
		info := k.Info()
		if !k.Valid() {
			continue
		}
		n := 0
		for _, b := range []bool{info.IsInvocation, info.IsStart, info.IsReturn, info.IsThrow, info.IsCatch} {
			if b {
				n++
			}
		}
		assert.LessOrEqual(t, n, 1, "kind %s has overlapping call roles", k)

		parsed, ok := ParseKind(k.String())
		require.True(t, ok)
		assert.Equal(t, k, parsed)
	}

	assert.False(t, KindPoolEntry.Valid())
	assert.False(t, Kind(40).Valid())
	assert.Equal(t, "kind(40)", Kind(40).String())
}

func TestPayload(t *testing.T) {
	tests := []struct {
		name string
		p    Payload
		str  string
	}{
		{"int", Int(-5), "-5"},
		{"short", Short(-2), "-2"},
		{"byte", Byte(127), "127"},
		{"float", Float(1.5), "1.5f"},
		{"double", Double(2.25), "2.25"},
		{"char", Char('x'), "'x'"},
		{"boolean", Boolean(true), "true"},
		{"long", Long(math.MinInt64), "-9223372036854775808L"},
		{"object", Object(42), "#42"},
		{"null", Object(NullObject), "null"},
		{"none", Payload{}, "<none>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.str, tt.p.String())
		})
	}

	assert.Equal(t, int32(-5), Int(-5).Int())
	assert.Equal(t, float32(1.5), Float(1.5).Float())
	assert.Equal(t, ObjectID(-3), Object(-3).Object())
	assert.False(t, Payload{}.Present())

	v, ok := Short(-2).Integral()
	assert.True(t, ok)
	assert.Equal(t, int64(-2), v)
	_, ok = Double(1).Integral()
	assert.False(t, ok)
}

func TestArrayCopy(t *testing.T) {
	c := ArrayCopy{Source: 1, SourcePos: 2, Dest: 9, DestPos: 0, Length: 4}
	assert.True(t, c.Covers(1))
	assert.False(t, c.Covers(4))
	assert.False(t, c.Covers(-1))
	assert.Equal(t, int32(3), c.SourceIndex(1))
}

func TestIDs(t *testing.T) {
	assert.False(t, None.Valid())
	assert.True(t, ID(0).Valid())
	assert.False(t, ObjectID(-1).Resolved())
	assert.False(t, NullObject.Resolved())
	assert.True(t, ObjectID(7).Resolved())
}
