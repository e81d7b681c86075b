package collections

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStack(t *testing.T) {
	s := NewStack[int](2)
	assert.True(t, s.IsEmpty())

	_, ok := s.Pop()
	assert.False(t, ok)

	for i := 1; i <= 4; i++ {
		s.Push(i)
	}
	top, ok := s.Peek()
	assert.True(t, ok)
	assert.Equal(t, 4, top)
	assert.Equal(t, 2, s.At(1))

	v, _ := s.Pop()
	assert.Equal(t, 4, v)
	assert.Equal(t, []int{1, 2, 3}, s.Slice())

	s.Truncate(1)
	assert.Equal(t, 1, s.Len())
	s.Truncate(5)
	assert.Equal(t, 1, s.Len())
	s.Truncate(-1)
	assert.True(t, s.IsEmpty())
}
