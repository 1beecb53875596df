package timeline

import (
	"encoding/json"
	"testing"
)

func TestFrameMap_FloorCeilErase(t *testing.T) {
	var m FrameMap[string]
	for _, f := range []int64{10, 2, 7, 5} {
		m.Set(f, string(rune('a'+f)))
	}
	if got := m.Keys(); len(got) != 4 || got[0] != 2 || got[3] != 10 {
		t.Fatalf("keys not sorted: %v", got)
	}
	if f, _, ok := m.Floor(6); !ok || f != 5 {
		t.Fatalf("Floor(6)=%d,%v want 5", f, ok)
	}
	if f, _, ok := m.Floor(7); !ok || f != 7 {
		t.Fatalf("Floor(7)=%d,%v want 7", f, ok)
	}
	if _, _, ok := m.Floor(1); ok {
		t.Fatalf("Floor(1) should miss")
	}
	if f, _, ok := m.Ceil(8); !ok || f != 10 {
		t.Fatalf("Ceil(8)=%d,%v want 10", f, ok)
	}

	removed := m.EraseAfter(5)
	if len(removed) != 2 || m.Len() != 2 {
		t.Fatalf("EraseAfter(5): removed=%d len=%d", len(removed), m.Len())
	}
	m.EraseFrom(5)
	if m.Len() != 1 || !m.Has(2) {
		t.Fatalf("EraseFrom(5) left %v", m.Keys())
	}
}

func TestFrameMap_InsertKeepsExisting(t *testing.T) {
	var m FrameMap[int]
	if !m.Insert(3, 1) {
		t.Fatalf("first insert should succeed")
	}
	if m.Insert(3, 2) {
		t.Fatalf("second insert should be rejected")
	}
	if v, _ := m.Get(3); v != 1 {
		t.Fatalf("value overwritten: %d", v)
	}
	if _, ok := m.Delete(3); !ok || m.Len() != 0 {
		t.Fatalf("delete failed")
	}
}

func TestDiff_MergeOverWins(t *testing.T) {
	var base, over Diff
	base.Set(1, Inputs{Buttons: A})
	base.Set(2, Inputs{Buttons: B})
	over.Set(2, Inputs{Buttons: Z})
	over.Set(3, Inputs{StickX: 10})

	merged := Merged(&base, &over)
	if merged.Len() != 3 {
		t.Fatalf("merged len=%d", merged.Len())
	}
	if in, _ := merged.Get(2); in.Buttons != Z {
		t.Fatalf("frame 2 should come from over, got %v", in)
	}
	if in, _ := base.Get(2); in.Buttons != B {
		t.Fatalf("base mutated: %v", in)
	}
}

func TestDiff_JSONRoundTrip(t *testing.T) {
	var d Diff
	d.Set(10, Inputs{Buttons: A | B, StickX: -5, StickY: 7})
	d.Set(12, Inputs{})
	b, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Diff
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !back.Equal(&d) {
		t.Fatalf("round trip mismatch: %s vs %s", back, d)
	}
	if first, _ := back.First(); first != 10 {
		t.Fatalf("first=%d", first)
	}
}
