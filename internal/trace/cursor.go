package trace

import "github.com/exec-trace/internal/event"

// StackCursor walks the call stack at one event, from the innermost
// frame outward. At level 0 the cursor's event is the queried event; at
// level n it is the invocation that entered the frame at level n-1.
type StackCursor struct {
	at     event.ID
	frames []Frame
	level  int
}

// StackCursor returns a cursor over the call stack at id.
func (t *Trace) StackCursor(id event.ID) (*StackCursor, error) {
	frames, err := t.CallStack(id)
	if err != nil {
		return nil, err
	}
	return &StackCursor{at: id, frames: frames}, nil
}

// Depth returns the number of recorded frames.
func (c *StackCursor) Depth() int {
	return len(c.frames)
}

// Level returns the current frame, 0 being innermost.
func (c *StackCursor) Level() int {
	return c.level
}

// Frame returns the current frame.
func (c *StackCursor) Frame() (Frame, bool) {
	if c.level >= len(c.frames) {
		return Frame{}, false
	}
	return c.frames[c.level], true
}

// Event returns the current event of the current frame. It is
// event.None when the frame below was entered from untraced code.
func (c *StackCursor) Event() event.ID {
	if c.level == 0 {
		return c.at
	}
	return c.frames[c.level-1].Invocation
}

// Up moves to the enclosing frame.
func (c *StackCursor) Up() bool {
	if c.level+1 >= len(c.frames) {
		return false
	}
	c.level++
	return true
}

// Down moves toward the innermost frame.
func (c *StackCursor) Down() bool {
	if c.level == 0 {
		return false
	}
	c.level--
	return true
}
