// Package collections provides the compact containers the trace engine is
// built from: bitsets, sorted event vectors and sparse ID range sets.
package collections

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math/bits"
)

// ============================================================================
// Bitset - growable boolean set
// ============================================================================

// Bitset is a growable set of non-negative integers, one bit per element.
type Bitset struct {
	words []uint64
	size  int
}

// NewBitset creates a bitset sized for n elements.
func NewBitset(n int) *Bitset {
	if n <= 0 {
		n = 64
	}
	return &Bitset{words: make([]uint64, (n+63)/64)}
}

// Set sets bit i.
func (b *Bitset) Set(i int) {
	if i < 0 {
		return
	}
	w := i / 64
	if w >= len(b.words) {
		b.grow(w + 1)
	}
	b.words[w] |= 1 << (uint(i) % 64)
	if i >= b.size {
		b.size = i + 1
	}
}

// SetRange sets bits [lo, hi).
func (b *Bitset) SetRange(lo, hi int) {
	for i := lo; i < hi; i++ {
		b.Set(i)
	}
}

// Clear clears bit i.
func (b *Bitset) Clear(i int) {
	if i < 0 || i/64 >= len(b.words) {
		return
	}
	b.words[i/64] &^= 1 << (uint(i) % 64)
}

// Test reports whether bit i is set.
func (b *Bitset) Test(i int) bool {
	if i < 0 || i/64 >= len(b.words) {
		return false
	}
	return b.words[i/64]&(1<<(uint(i)%64)) != 0
}

// Count returns the number of set bits.
func (b *Bitset) Count() int {
	n := 0
	for _, w := range b.words {
		n += bits.OnesCount64(w)
	}
	return n
}

// Size returns one past the highest bit ever set.
func (b *Bitset) Size() int {
	return b.size
}

func (b *Bitset) grow(words int) {
	if words <= len(b.words) {
		return
	}
	n := len(b.words) * 2
	if n < words {
		n = words
	}
	grown := make([]uint64, n)
	copy(grown, b.words)
	b.words = grown
}

// Iterate calls fn for every set bit in ascending order until fn returns false.
func (b *Bitset) Iterate(fn func(i int) bool) {
	for wi, w := range b.words {
		for w != 0 {
			tz := bits.TrailingZeros64(w)
			if !fn(wi*64 + tz) {
				return
			}
			w &= w - 1
		}
	}
}

// WriteTo writes size:u32, words:u32, word:u64*.
func (b *Bitset) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	var n int64
	var hdr [8]byte
	binary.BigEndian.PutUint32(hdr[:4], uint32(b.size))
	binary.BigEndian.PutUint32(hdr[4:], uint32(len(b.words)))
	m, err := bw.Write(hdr[:])
	n += int64(m)
	if err != nil {
		return n, err
	}
	var buf [8]byte
	for _, word := range b.words {
		binary.BigEndian.PutUint64(buf[:], word)
		m, err = bw.Write(buf[:])
		n += int64(m)
		if err != nil {
			return n, err
		}
	}
	return n, bw.Flush()
}

// ReadBitset reads a bitset written by WriteTo.
func ReadBitset(r io.Reader) (*Bitset, error) {
	var hdr [8]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(hdr[:4])
	words := binary.BigEndian.Uint32(hdr[4:])
	if uint64(size) > uint64(words)*64 {
		return nil, fmt.Errorf("%w: bitset of %d bits in %d words", ErrCorrupt, size, words)
	}
	b := &Bitset{size: int(size), words: make([]uint64, 0, PreallocCap(words))}
	var buf [8]byte
	for i := uint32(0); i < words; i++ {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, err
		}
		b.words = append(b.words, binary.BigEndian.Uint64(buf[:]))
	}
	return b, nil
}
