package block

import (
	"bufio"
	"io"

	"github.com/exec-trace/internal/event"
)

// Correlation names one of the call-correlation maps.
type Correlation uint8

const (
	// StartToInvocation maps a callee entry to the call site that caused it.
	StartToInvocation Correlation = iota
	// InvocationToStart is the inverse of StartToInvocation.
	InvocationToStart
	// StartToExit maps a callee entry to its return or catching event.
	StartToExit
	// ExitToStart is the inverse of StartToExit. A catch that unwound
	// several frames maps to the outermost start it popped.
	ExitToStart
	// NewToInit maps an allocation to its constructor invocation.
	NewToInit

	numCorrelations
)

// CallBlock holds the call-correlation maps keyed by IDs in its range.
type CallBlock struct {
	index int
	maps  [numCorrelations]map[event.ID]event.ID
}

// Index returns the block index.
func (b *CallBlock) Index() int { return b.index }

// Set records from -> to in map c.
func (b *CallBlock) Set(c Correlation, from, to event.ID) {
	b.maps[c][from] = to
}

// Get returns the correlated event, or event.None.
func (b *CallBlock) Get(c Correlation, from event.ID) event.ID {
	if to, ok := b.maps[c][from]; ok {
		return to
	}
	return event.None
}

// Len returns the number of entries in map c.
func (b *CallBlock) Len(c Correlation) int {
	return len(b.maps[c])
}

// CallCodec encodes CallBlocks.
type CallCodec struct{}

// Kind implements Codec.
func (CallCodec) Kind() Kind { return KindCalls }

// New implements Codec.
func (CallCodec) New(index int) *CallBlock {
	b := &CallBlock{index: index}
	for i := range b.maps {
		b.maps[i] = make(map[event.ID]event.ID)
	}
	return b
}

// Encode writes the maps in Correlation order.
func (CallCodec) Encode(w io.Writer, b *CallBlock) error {
	bw := bufio.NewWriter(w)
	if err := writeHeader(bw, KindCalls, b.index); err != nil {
		return err
	}
	for _, m := range b.maps {
		if err := writeIDMap(bw, m, func(w *bufio.Writer, v event.ID) error { return putU32(w, uint32(v)) }); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Decode implements Codec.
func (CallCodec) Decode(r io.Reader, index int) (*CallBlock, error) {
	br := bufio.NewReader(r)
	if err := readHeader(br, KindCalls, index); err != nil {
		return nil, err
	}
	b := &CallBlock{index: index}
	for i := range b.maps {
		m, err := readIDMap(br, func(r io.Reader) (event.ID, error) { v, err := getU32(r); return event.ID(v), err })
		if err != nil {
			return nil, err
		}
		b.maps[i] = m
	}
	return b, nil
}
