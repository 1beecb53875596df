package statebin

import (
	"errors"
	"testing"
)

func TestBuilder_AddValueBitsPacksLSBFirst(t *testing.T) {
	b := NewBuilder(2)
	if err := b.AddValueBits(3, 0b101); err != nil {
		t.Fatalf("AddValueBits: %v", err)
	}
	if err := b.AddValueBits(7, 0b1000001); err != nil {
		t.Fatalf("AddValueBits: %v", err)
	}
	// bits 0..2 = 101, bits 3..9 = 1000001
	got := b.Bytes()
	if got[0] != 0b00001101 || got[1] != 0b00000010 {
		t.Fatalf("bytes = %08b %08b", got[0], got[1])
	}
	if b.Cursor() != 10 {
		t.Fatalf("cursor = %d", b.Cursor())
	}
}

func TestBuilder_Errors(t *testing.T) {
	b := NewBuilder(1)
	if err := b.AddValueBits(2, 4); !errors.Is(err, ErrValueTooLarge) {
		t.Fatalf("expected ErrValueTooLarge, got %v", err)
	}
	if err := b.AddValueBits(9, 0); !errors.Is(err, ErrCursorRange) {
		t.Fatalf("expected ErrCursorRange, got %v", err)
	}
	if err := AddRegionBitsByNRegions(b, 2, 5, 0, 4, 4); !errors.Is(err, ErrValueOutOfRange) {
		t.Fatalf("expected ErrValueOutOfRange, got %v", err)
	}
	if err := AddRegionBitsByNRegions(b, 2, 1, 0, 4, 0); !errors.Is(err, ErrInvalidRegions) {
		t.Fatalf("expected ErrInvalidRegions, got %v", err)
	}
	if err := AddRegionBitsByRegionSize(b, 2, 1.0, 0.0, 4.0, 0.0); !errors.Is(err, ErrInvalidRegions) {
		t.Fatalf("expected ErrInvalidRegions, got %v", err)
	}
	if b.Cursor() != 0 {
		t.Fatalf("failed adds moved the cursor to %d", b.Cursor())
	}
}

func TestBuilder_Regions(t *testing.T) {
	cases := []struct {
		value float64
		want  byte
	}{
		{0, 0}, {2.4, 0}, {2.5, 1}, {9.99, 3}, {10, 3},
	}
	for _, c := range cases {
		b := NewBuilder(1)
		if err := AddRegionBitsByNRegions(b, 2, c.value, 0, 10, 4); err != nil {
			t.Fatalf("value %v: %v", c.value, err)
		}
		if got := b.Bytes()[0]; got != c.want {
			t.Fatalf("value %v: region %d, want %d", c.value, got, c.want)
		}
	}

	// 100 regions requested, 3 bits address 8.
	b := NewBuilder(1)
	if err := AddRegionBitsByNRegions(b, 3, 99, 0, 100, 100); err != nil {
		t.Fatalf("capped: %v", err)
	}
	if got := b.Bytes()[0]; got != 7 {
		t.Fatalf("capped region = %d, want 7", got)
	}

	b = NewBuilder(1)
	if err := AddRegionBitsByRegionSize(b, 4, int32(-5), -10, 10, 4); err != nil {
		t.Fatalf("by size: %v", err)
	}
	if got := b.Bytes()[0]; got != 1 {
		t.Fatalf("by size region = %d, want 1", got)
	}
}

func TestBin_EqualBytesHashEqual(t *testing.T) {
	a := NewBuilder(8)
	b := NewBuilder(8)
	for _, bb := range []*Builder{a, b} {
		if err := bb.AddValueBits(16, 0xBEEF); err != nil {
			t.Fatalf("AddValueBits: %v", err)
		}
	}
	if a.Bin8() != b.Bin8() || a.Bin8().Hash() != b.Bin8().Hash() {
		t.Fatalf("equal builders produced different bins")
	}
	if a.Bin8().String() != "efbe000000000000" {
		t.Fatalf("String() = %s", a.Bin8().String())
	}
	other := NewBuilder(8)
	_ = other.AddValueBits(16, 0xBEEE)
	if other.Bin8() == a.Bin8() {
		t.Fatalf("different values produced equal bins")
	}
}
