package collections

import (
	"bytes"
	"errors"
	"testing"
)

func TestBitset_Basic(t *testing.T) {
	b := NewBitset(100)

	b.Set(0)
	b.Set(50)
	b.Set(99)

	if !b.Test(0) || !b.Test(50) || !b.Test(99) {
		t.Error("Expected bits 0, 50 and 99 to be set")
	}
	if b.Test(1) {
		t.Error("Expected bit 1 to be clear")
	}
	if b.Count() != 3 {
		t.Errorf("Expected count 3, got %d", b.Count())
	}

	b.Clear(50)
	if b.Test(50) {
		t.Error("Expected bit 50 to be clear after Clear")
	}
	if b.Count() != 2 {
		t.Errorf("Expected count 2 after Clear, got %d", b.Count())
	}
}

func TestBitset_Grow(t *testing.T) {
	b := NewBitset(64)

	b.Set(200)
	if !b.Test(200) {
		t.Error("Expected bit 200 to be set after grow")
	}
	if b.Size() != 201 {
		t.Errorf("Expected size 201, got %d", b.Size())
	}
	if b.Test(-1) || b.Test(10000) {
		t.Error("Out of range bits must read as clear")
	}
}

func TestBitset_Iterate(t *testing.T) {
	b := NewBitset(10)
	b.SetRange(3, 6)
	b.Set(130)

	var got []int
	b.Iterate(func(i int) bool {
		got = append(got, i)
		return true
	})
	want := []int{3, 4, 5, 130}
	if len(got) != len(want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Expected %v, got %v", want, got)
		}
	}

	count := 0
	b.Iterate(func(i int) bool {
		count++
		return false
	})
	if count != 1 {
		t.Errorf("Expected iteration to stop after one bit, got %d", count)
	}
}

func TestBitset_RoundTrip(t *testing.T) {
	b := NewBitset(1)
	for _, i := range []int{0, 7, 64, 65, 999} {
		b.Set(i)
	}

	var buf bytes.Buffer
	if _, err := b.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	read, err := ReadBitset(&buf)
	if err != nil {
		t.Fatalf("ReadBitset: %v", err)
	}
	for i := 0; i < 1000; i++ {
		if read.Test(i) != b.Test(i) {
			t.Fatalf("bit %d differs after reload", i)
		}
	}
	if read.Size() != b.Size() {
		t.Errorf("Expected size %d, got %d", b.Size(), read.Size())
	}
}

func TestReadBitset_Corrupt(t *testing.T) {
	// A huge word count backed by four bytes must fail, not allocate.
	_, err := ReadBitset(bytes.NewReader([]byte{0, 0, 0, 8, 0xFF, 0xFF, 0xFF, 0xFF}))
	if err == nil {
		t.Fatal("Expected truncated bitset to fail")
	}

	_, err = ReadBitset(bytes.NewReader([]byte{0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0, 0}))
	if !errors.Is(err, ErrCorrupt) {
		t.Errorf("Expected ErrCorrupt for 256 bits in one word, got %v", err)
	}
}
