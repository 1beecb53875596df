package resource

import (
	"testing"

	"github.com/TylerKehne/sm64-tas-scripting-sub001/internal/timeline"
)

type counterState struct {
	Frame int64
	Sum   int64
}

// counterSim accumulates stick input so state depends on the full input history.
type counterSim struct {
	st counterState
	in timeline.Inputs
}

func (s *counterSim) Advance() {
	s.st.Sum = s.st.Sum*31 + int64(s.in.StickX) + int64(s.in.Buttons)
	s.st.Frame++
}
func (s *counterSim) Save() counterState           { return s.st }
func (s *counterSim) Load(st counterState)         { s.st = st }
func (s *counterSim) StateSize(counterState) int64 { return 16 }
func (s *counterSim) SetInputs(in timeline.Inputs) { s.in = in }
func (s *counterSim) Frame() int64                 { return s.st.Frame }

func TestResource_SaveAdvanceLoadRoundTrip(t *testing.T) {
	sim := &counterSim{}
	res := New[counterState](sim, 1024)

	sim.SetInputs(timeline.Inputs{StickX: 3})
	res.FrameAdvance()
	before := sim.st

	id, err := res.SaveState()
	if err != nil {
		t.Fatalf("SaveState: %v", err)
	}
	res.FrameAdvance()
	res.FrameAdvance()
	if sim.st == before {
		t.Fatalf("advance did not change state")
	}
	if err := res.LoadState(id); err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if sim.st != before {
		t.Fatalf("round trip mismatch: got %+v want %+v", sim.st, before)
	}

	if err := res.LoadState(StartSlot); err != nil {
		t.Fatalf("load start: %v", err)
	}
	if sim.st.Frame != res.InitialFrame() || sim.st.Sum != 0 {
		t.Fatalf("start save not restored: %+v", sim.st)
	}
	if !res.IsValid(StartSlot) {
		t.Fatalf("start slot must always be valid")
	}
}

func TestResource_HeuristicsDefaultToTrueWithoutSamples(t *testing.T) {
	res := New[counterState](&counterSim{}, 1024)
	if !res.ShouldSave(5) || !res.ShouldLoad(5) {
		t.Fatalf("expected true before any timing samples")
	}
	if res.ShouldSave(0) || res.ShouldLoad(0) {
		t.Fatalf("zero frames never justify a save or load")
	}
	if !res.ShouldSave(-1) {
		t.Fatalf("negative estimate forces a save")
	}
}
