package collections

// Stack is a LIFO stack backed by a slice.
type Stack[T any] struct {
	items []T
}

// NewStack creates a stack with the given initial capacity.
func NewStack[T any](capacity int) *Stack[T] {
	return &Stack[T]{items: make([]T, 0, capacity)}
}

// Push pushes v.
func (s *Stack[T]) Push(v T) {
	s.items = append(s.items, v)
}

// Pop removes and returns the top element.
func (s *Stack[T]) Pop() (T, bool) {
	var zero T
	if len(s.items) == 0 {
		return zero, false
	}
	v := s.items[len(s.items)-1]
	s.items[len(s.items)-1] = zero
	s.items = s.items[:len(s.items)-1]
	return v, true
}

// Peek returns the top element without removing it.
func (s *Stack[T]) Peek() (T, bool) {
	var zero T
	if len(s.items) == 0 {
		return zero, false
	}
	return s.items[len(s.items)-1], true
}

// At returns the element at depth i counted from the bottom.
func (s *Stack[T]) At(i int) T {
	return s.items[i]
}

// Truncate drops elements above depth n.
func (s *Stack[T]) Truncate(n int) {
	if n < 0 {
		n = 0
	}
	var zero T
	for i := n; i < len(s.items); i++ {
		s.items[i] = zero
	}
	if n < len(s.items) {
		s.items = s.items[:n]
	}
}

// IsEmpty reports whether the stack is empty.
func (s *Stack[T]) IsEmpty() bool {
	return len(s.items) == 0
}

// Len returns the number of elements.
func (s *Stack[T]) Len() int {
	return len(s.items)
}

// Slice returns the elements bottom to top. The slice is shared.
func (s *Stack[T]) Slice() []T {
	return s.items
}
